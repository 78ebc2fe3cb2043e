// Package feed provides the market data sources a backtest run can be
// driven from: CSV files on disk, candles stored in Postgres, or a live
// exchange stream.
package feed

import (
	"context"

	"github.com/enriplaso/BackMark/internal/contracts"
)

// Source streams market ticks in timestamp order. Next returns io.EOF
// once the source is exhausted.
type Source interface {
	Next(ctx context.Context) (contracts.Tick, error)
	Close() error
}
