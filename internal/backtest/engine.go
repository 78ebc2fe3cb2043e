// Package backtest drives a strategy through historical market data
// against the exchange simulator and reports performance.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/enriplaso/BackMark/internal/exchange"
	"github.com/enriplaso/BackMark/internal/feed"
	"github.com/enriplaso/BackMark/internal/strategy"
	"github.com/enriplaso/BackMark/pkg/logger"
)

// Engine replays a tick source through a strategy and the simulated
// exchange. Each tick is handed to the strategy first, then matched
// against the order book, so orders placed on a tick execute no earlier
// than that same tick's matching pass.
type Engine struct {
	simulator *exchange.Simulator
	strategy  strategy.Strategy
	logger    *logger.Logger
}

// NewEngine creates a backtest engine around a simulator and a strategy.
func NewEngine(sim *exchange.Simulator, strat strategy.Strategy, log *logger.Logger) *Engine {
	return &Engine{
		simulator: sim,
		strategy:  strat,
		logger:    log,
	}
}

// Run replays the source to exhaustion and computes the result. A
// strategy error aborts the run; a cancelled context does too.
func (e *Engine) Run(ctx context.Context, source feed.Source) (*Result, error) {
	initial := e.simulator.Account()

	e.logger.WithFields(map[string]interface{}{
		"product": e.simulator.Product(),
		"balance": initial.Balance,
		"fee":     initial.Fee,
	}).Info("Starting backtest")

	startTime := time.Now()

	result := &Result{
		Product:         e.simulator.Product(),
		InitialBalance:  initial.Balance,
		InitialHoldings: initial.Holdings,
		EquityCurve:     make([]EquityPoint, 0),
	}

	var ticks int
	var lastPrice float64

	for {
		tick, err := source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("tick source failed: %w", err)
		}

		if err := e.strategy.CheckPosition(ctx, tick); err != nil {
			return nil, fmt.Errorf("strategy failed at %s: %w", tick.Time, err)
		}

		e.simulator.ProcessTick(tick)
		ticks++
		lastPrice = tick.Price

		account := e.simulator.Account()
		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Time:   tick.Time,
			Equity: account.Balance + account.Holdings*tick.Price,
		})

		if result.FirstTick.IsZero() {
			result.FirstTick = tick.Time
			result.FirstPrice = tick.Price
		}
		result.LastTick = tick.Time
	}

	final := e.simulator.Account()
	result.Ticks = ticks
	result.Duration = time.Since(startTime)
	result.FinalBalance = final.Balance
	result.FinalHoldings = final.Holdings
	result.FinalPrice = lastPrice
	result.Trades = e.simulator.Trades()
	result.ClosedOrders = e.simulator.ClosedOrders()
	result.finalize()

	e.logger.WithFields(map[string]interface{}{
		"ticks":        ticks,
		"duration":     result.Duration.Seconds(),
		"trades":       len(result.Trades),
		"profit":       fmt.Sprintf("%.2f", result.TotalProfit),
		"profit_pct":   fmt.Sprintf("%.2f%%", result.ProfitPct),
		"max_drawdown": fmt.Sprintf("%.2f%%", result.MaxDrawdown*100),
	}).Info("Backtest completed")

	return result, nil
}
