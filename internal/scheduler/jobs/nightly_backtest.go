package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/enriplaso/BackMark/internal/backtest"
	"github.com/enriplaso/BackMark/internal/exchange"
	"github.com/enriplaso/BackMark/internal/feed"
	"github.com/enriplaso/BackMark/internal/strategy"
	"github.com/enriplaso/BackMark/pkg/config"
	"github.com/enriplaso/BackMark/pkg/logger"
)

// NightlyBacktestJob replays the last 30 days of stored candles through
// the default strategy each night, so a drifting strategy shows up in
// the logs before anyone trades on it.
type NightlyBacktestJob struct {
	repo     *feed.CandleRepository
	config   *config.Config
	logger   *logger.Logger
	interval string
}

// NewNightlyBacktestJob creates the nightly backtest job.
func NewNightlyBacktestJob(repo *feed.CandleRepository, cfg *config.Config, log *logger.Logger, interval string) *NightlyBacktestJob {
	return &NightlyBacktestJob{
		repo:     repo,
		config:   cfg,
		logger:   log,
		interval: interval,
	}
}

// Name returns the job name
func (j *NightlyBacktestJob) Name() string {
	return "nightly_backtest"
}

// Schedule returns the cron schedule (daily at 00:30 UTC, after the
// candle sync)
func (j *NightlyBacktestJob) Schedule() string {
	return "0 30 0 * * *"
}

// Run backtests the default strategy over the last 30 days of candles.
func (j *NightlyBacktestJob) Run(ctx context.Context) error {
	symbol := productToSymbol(j.config.Simulation.Product)
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	source, err := feed.NewPostgresSource(ctx, j.repo, symbol, j.interval, from, to)
	if err != nil {
		return fmt.Errorf("load candles: %w", err)
	}
	defer source.Close()

	sim := exchange.NewSimulator(exchange.Options{
		Product: j.config.Simulation.Product,
		Balance: j.config.Simulation.Balance,
		Fee:     j.config.Simulation.Fee,
	}, j.logger)

	strat, err := strategy.NewSMACross(sim, j.logger, 10, 50, 1)
	if err != nil {
		return err
	}

	result, err := backtest.NewEngine(sim, strat, j.logger).Run(ctx, source)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"symbol":       symbol,
		"ticks":        result.Ticks,
		"profit_pct":   fmt.Sprintf("%.2f%%", result.ProfitPct),
		"max_drawdown": fmt.Sprintf("%.2f%%", result.MaxDrawdown*100),
		"trades":       result.BuyTrades + result.SellTrades,
	}).Info("Nightly backtest complete")

	return nil
}
