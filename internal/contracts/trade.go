package contracts

import "time"

// Trade is an immutable record of one fill, full or partial. Price is
// the executed notional as it hit the account: for a buy, the funds
// debited including fee; for a sell, the proceeds credited net of fee.
// BalanceAfter and HoldingsAfter snapshot the account right after the
// fill was applied.
type Trade struct {
	OrderID       string    `json:"order_id"`
	Side          Side      `json:"side"`
	Price         float64   `json:"price"`
	Quantity      float64   `json:"quantity"`
	CreatedAt     time.Time `json:"created_at"`
	BalanceAfter  float64   `json:"balance_after"`
	HoldingsAfter float64   `json:"holdings_after"`
}
