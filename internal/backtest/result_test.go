package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/enriplaso/BackMark/internal/contracts"
)

func TestFinalizeValuesInitialHoldingsAtFirstPrice(t *testing.T) {
	r := &Result{
		InitialBalance:  1000,
		InitialHoldings: 2,
		FirstPrice:      100,
		FinalBalance:    500,
		FinalHoldings:   5,
		FinalPrice:      150,
	}
	r.finalize()

	assert.InDelta(t, 1250, r.FinalEquity, 1e-9)
	assert.InDelta(t, 50, r.TotalProfit, 1e-9)
	assert.InDelta(t, 50.0/1200.0*100, r.ProfitPct, 1e-9)
}

func TestFinalizeCountsTradesBySide(t *testing.T) {
	r := &Result{
		Trades: []contracts.Trade{
			{Side: contracts.SideBuy},
			{Side: contracts.SideBuy},
			{Side: contracts.SideSell},
		},
	}
	r.finalize()

	assert.Equal(t, 2, r.BuyTrades)
	assert.Equal(t, 1, r.SellTrades)
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name     string
		equities []float64
		want     float64
	}{
		{"empty curve", nil, 0},
		{"monotonic rise", []float64{100, 110, 120}, 0},
		{"single dip", []float64{100, 80, 120}, 0.2},
		{"deeper dip after new peak", []float64{100, 80, 120, 90}, 0.25},
		{"worst kept after recovery", []float64{100, 50, 200}, 0.5},
		{"zero peak skipped", []float64{0, 0}, 0},
	}

	t0 := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			curve := make([]EquityPoint, len(tt.equities))
			for i, eq := range tt.equities {
				curve[i] = EquityPoint{Time: t0.Add(time.Duration(i) * time.Minute), Equity: eq}
			}
			assert.InDelta(t, tt.want, maxDrawdown(curve), 1e-9)
		})
	}
}
