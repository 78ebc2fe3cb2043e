package backtest

import (
	"time"

	"github.com/enriplaso/BackMark/internal/contracts"
)

// Result holds the outcome of one backtest run.
type Result struct {
	Product   string        `json:"product"`
	Ticks     int           `json:"ticks"`
	FirstTick time.Time     `json:"first_tick"`
	LastTick  time.Time     `json:"last_tick"`
	Duration  time.Duration `json:"duration"`

	InitialBalance  float64 `json:"initial_balance"`
	InitialHoldings float64 `json:"initial_holdings"`
	FinalBalance    float64 `json:"final_balance"`
	FinalHoldings   float64 `json:"final_holdings"`
	FirstPrice      float64 `json:"first_price"`
	FinalPrice      float64 `json:"final_price"`

	// FinalEquity marks remaining holdings to the last tick price.
	FinalEquity float64 `json:"final_equity"`
	TotalProfit float64 `json:"total_profit"`
	ProfitPct   float64 `json:"profit_pct"`
	MaxDrawdown float64 `json:"max_drawdown"`

	BuyTrades  int `json:"buy_trades"`
	SellTrades int `json:"sell_trades"`

	EquityCurve  []EquityPoint     `json:"equity_curve"`
	Trades       []contracts.Trade `json:"trades"`
	ClosedOrders []contracts.Order `json:"closed_orders"`
}

// EquityPoint is one point of the equity curve: balance plus holdings
// marked to the tick price.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// finalize computes the derived metrics once the run is complete.
func (r *Result) finalize() {
	r.FinalEquity = r.FinalBalance + r.FinalHoldings*r.FinalPrice

	// Starting holdings are valued at the first tick price so that
	// profit measures what the strategy did, not the initial position.
	initialEquity := r.InitialBalance + r.InitialHoldings*r.FirstPrice

	r.TotalProfit = r.FinalEquity - initialEquity
	if initialEquity > 0 {
		r.ProfitPct = (r.TotalProfit / initialEquity) * 100
	}

	for _, trade := range r.Trades {
		switch trade.Side {
		case contracts.SideBuy:
			r.BuyTrades++
		case contracts.SideSell:
			r.SellTrades++
		}
	}

	r.MaxDrawdown = maxDrawdown(r.EquityCurve)
}

// maxDrawdown is the largest peak-to-trough equity decline, as a
// fraction of the peak.
func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}

	var worst float64
	peak := curve[0].Equity

	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - point.Equity) / peak
		if drawdown > worst {
			worst = drawdown
		}
	}

	return worst
}
