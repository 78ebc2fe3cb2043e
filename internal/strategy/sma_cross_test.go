package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enriplaso/BackMark/internal/contracts"
	"github.com/enriplaso/BackMark/internal/exchange"
	"github.com/enriplaso/BackMark/pkg/logger"
)

func TestNewSMACrossValidation(t *testing.T) {
	sim := exchange.NewSimulator(exchange.Options{Balance: 1000}, logger.NewSilent())

	_, err := NewSMACross(sim, logger.NewSilent(), 5, 5, 0.5)
	assert.Error(t, err)

	_, err = NewSMACross(sim, logger.NewSilent(), 0, 5, 0.5)
	assert.Error(t, err)

	_, err = NewSMACross(sim, logger.NewSilent(), 2, 5, 0)
	assert.Error(t, err)

	_, err = NewSMACross(sim, logger.NewSilent(), 2, 5, 1.5)
	assert.Error(t, err)

	_, err = NewSMACross(sim, logger.NewSilent(), 2, 5, 1)
	assert.NoError(t, err)
}

func TestSMACrossTradesCrossovers(t *testing.T) {
	sim := exchange.NewSimulator(exchange.Options{
		Product: "BTC-USD",
		Balance: 10000,
		Fee:     0.1,
	}, logger.NewSilent())

	strat, err := NewSMACross(sim, logger.NewSilent(), 2, 3, 0.5)
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	run := func(prices ...float64) {
		for _, price := range prices {
			tick := contracts.Tick{Time: start, Price: price, Volume: 1e6}
			require.NoError(t, strat.CheckPosition(ctx, tick))
			sim.ProcessTick(tick)
			start = start.Add(time.Minute)
		}
	}

	// Warm-up and a falling market: no trades.
	run(100, 90, 80)
	assert.Empty(t, sim.Trades())

	// Short average crosses above the long one: entry.
	run(120)
	trades := sim.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, contracts.SideBuy, trades[0].Side)
	assert.Greater(t, sim.Account().Holdings, 0.0)

	// Short average crosses back below: full exit.
	run(60, 50)
	trades = sim.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, contracts.SideSell, trades[1].Side)
	assert.InDelta(t, 0, sim.Account().Holdings, 1e-9)
}

func TestSMACrossNoTradeBeforeWarmup(t *testing.T) {
	sim := exchange.NewSimulator(exchange.Options{Balance: 10000}, logger.NewSilent())

	strat, err := NewSMACross(sim, logger.NewSilent(), 2, 5, 0.5)
	require.NoError(t, err)

	ctx := context.Background()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, price := range []float64{100, 50, 200, 40} {
		tick := contracts.Tick{Time: start.Add(time.Duration(i) * time.Minute), Price: price, Volume: 1e6}
		require.NoError(t, strat.CheckPosition(ctx, tick))
		sim.ProcessTick(tick)
	}

	assert.Empty(t, sim.Trades())
	assert.Empty(t, sim.ActiveOrders())
}
