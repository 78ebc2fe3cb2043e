package feed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enriplaso/BackMark/internal/contracts"
)

// CandleRepository stores historical candles in Postgres.
type CandleRepository struct {
	pool *pgxpool.Pool
}

// NewCandleRepository creates a new candle repository
func NewCandleRepository(pool *pgxpool.Pool) *CandleRepository {
	return &CandleRepository{pool: pool}
}

// Save saves a single candle
func (r *CandleRepository) Save(ctx context.Context, symbol, interval string, candle contracts.Candle) error {
	query := `
		INSERT INTO candles (symbol, interval, open_time, open_price, close_price, high_price, low_price, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, interval, open_time) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			close_price = EXCLUDED.close_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			volume = EXCLUDED.volume
	`

	_, err := r.pool.Exec(ctx, query,
		symbol, interval, candle.Time, candle.Open, candle.Close, candle.High, candle.Low, candle.Volume,
	)
	return err
}

// SaveBatch saves multiple candles
func (r *CandleRepository) SaveBatch(ctx context.Context, symbol, interval string, candles []contracts.Candle) error {
	for _, candle := range candles {
		if err := r.Save(ctx, symbol, interval, candle); err != nil {
			return fmt.Errorf("failed to save candle at %s: %w", candle.Time, err)
		}
	}
	return nil
}

// GetRange retrieves candles for a symbol within a time range, oldest first
func (r *CandleRepository) GetRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]contracts.Candle, error) {
	query := `
		SELECT open_time, open_price, close_price, high_price, low_price, volume
		FROM candles
		WHERE symbol = $1 AND interval = $2 AND open_time BETWEEN $3 AND $4
		ORDER BY open_time ASC
	`

	rows, err := r.pool.Query(ctx, query, symbol, interval, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []contracts.Candle
	for rows.Next() {
		var c contracts.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.Close, &c.High, &c.Low, &c.Volume); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Latest retrieves the most recent candle open time for a symbol, or the
// zero time when no candles are stored.
func (r *CandleRepository) Latest(ctx context.Context, symbol, interval string) (time.Time, error) {
	query := `
		SELECT COALESCE(MAX(open_time), 'epoch'::timestamptz)
		FROM candles
		WHERE symbol = $1 AND interval = $2
	`

	var latest time.Time
	if err := r.pool.QueryRow(ctx, query, symbol, interval).Scan(&latest); err != nil {
		return time.Time{}, err
	}
	if latest.Unix() == 0 {
		return time.Time{}, nil
	}
	return latest, nil
}

// PostgresSource streams ticks from candles stored in the database. The
// full range is loaded up front; candle ranges for a backtest are small
// enough to hold in memory.
type PostgresSource struct {
	ticks []contracts.Tick
	pos   int
}

// NewPostgresSource loads the candle range for a symbol and wraps it as
// a tick source.
func NewPostgresSource(ctx context.Context, repo *CandleRepository, symbol, interval string, from, to time.Time) (*PostgresSource, error) {
	candles, err := repo.GetRange(ctx, symbol, interval, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load candles: %w", err)
	}

	ticks := make([]contracts.Tick, len(candles))
	for i, c := range candles {
		ticks[i] = c.Tick()
	}
	return &PostgresSource{ticks: ticks}, nil
}

// Next returns the next tick, or io.EOF once the range is exhausted.
func (s *PostgresSource) Next(ctx context.Context) (contracts.Tick, error) {
	if err := ctx.Err(); err != nil {
		return contracts.Tick{}, err
	}
	if s.pos >= len(s.ticks) {
		return contracts.Tick{}, io.EOF
	}
	tick := s.ticks[s.pos]
	s.pos++
	return tick, nil
}

// Close is a no-op; the repository owns the connection pool.
func (s *PostgresSource) Close() error {
	return nil
}
