// Package jobs holds the scheduled jobs of the service.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/enriplaso/BackMark/internal/feed"
	"github.com/enriplaso/BackMark/internal/fetch"
	"github.com/enriplaso/BackMark/pkg/config"
	"github.com/enriplaso/BackMark/pkg/logger"
)

// CandleSyncJob keeps the candle store up to date by fetching the bars
// published since the last stored one.
type CandleSyncJob struct {
	fetcher  *fetch.Client
	repo     *feed.CandleRepository
	config   *config.Config
	logger   *logger.Logger
	interval string
}

// NewCandleSyncJob creates a candle sync job for the configured product.
func NewCandleSyncJob(fetcher *fetch.Client, repo *feed.CandleRepository, cfg *config.Config, log *logger.Logger, interval string) *CandleSyncJob {
	return &CandleSyncJob{
		fetcher:  fetcher,
		repo:     repo,
		config:   cfg,
		logger:   log,
		interval: interval,
	}
}

// Name returns the job name
func (j *CandleSyncJob) Name() string {
	return "candle_sync"
}

// Schedule returns the cron schedule (daily at 00:05 UTC)
func (j *CandleSyncJob) Schedule() string {
	return "0 5 0 * * *"
}

// Run fetches and stores candles newer than the latest stored one.
func (j *CandleSyncJob) Run(ctx context.Context) error {
	symbol := productToSymbol(j.config.Simulation.Product)

	latest, err := j.repo.Latest(ctx, symbol, j.interval)
	if err != nil {
		return fmt.Errorf("latest candle lookup: %w", err)
	}

	now := time.Now().UTC()
	from := latest
	if from.IsZero() {
		// First sync: backfill the last 30 days.
		from = now.AddDate(0, 0, -30)
	}

	j.logger.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"interval": j.interval,
		"from":     from.Format(time.RFC3339),
	}).Info("Syncing candles")

	candles, err := j.fetcher.Range(ctx, symbol, j.interval, from, now)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) == 0 {
		j.logger.Info("No new candles")
		return nil
	}

	if err := j.repo.SaveBatch(ctx, symbol, j.interval, candles); err != nil {
		return fmt.Errorf("save candles: %w", err)
	}

	j.logger.WithField("candles", len(candles)).Info("Candle sync complete")
	return nil
}

// productToSymbol turns a product label like "BTC-USD" into the
// exchange symbol "BTCUSDT".
func productToSymbol(product string) string {
	symbol := strings.ReplaceAll(strings.ToUpper(product), "-", "")
	if strings.HasSuffix(symbol, "USD") && !strings.HasSuffix(symbol, "USDT") {
		symbol += "T"
	}
	return symbol
}
