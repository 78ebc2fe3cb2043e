package contracts

import "github.com/google/uuid"

// Account is the single trading account a simulation runs against.
// Balance is quote currency, Holdings is product units; both may be
// fractional. Fee is the percentage of executed notional charged on
// every fill. Only the execution engine mutates an Account, and only
// while processing a tick.
type Account struct {
	ID       string  `json:"id"`
	Balance  float64 `json:"balance"`
	Holdings float64 `json:"holdings"`
	Fee      float64 `json:"fee"` // percent, e.g. 0.1 for 0.1%
	Currency string  `json:"currency"`
}

// NewAccount creates an account with the given starting balance,
// holdings and fee rate.
func NewAccount(balance, holdings, fee float64, currency string) *Account {
	if currency == "" {
		currency = "USD"
	}
	return &Account{
		ID:       uuid.NewString(),
		Balance:  balance,
		Holdings: holdings,
		Fee:      fee,
		Currency: currency,
	}
}
