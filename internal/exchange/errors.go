package exchange

import "errors"

// Validation failures raised by the simulator before an order is
// admitted to the book. A rejected placement never mutates the account
// or the order book.
var (
	// ErrInsufficientFunds means a buy's funds plus the fee exceed the balance.
	ErrInsufficientFunds = errors.New("not enough funds in the account")

	// ErrInsufficientHoldings means a sell's quantity exceeds current holdings.
	ErrInsufficientHoldings = errors.New("not enough product quantity to sell")

	// ErrInvalidQuantity means a non-positive funds or quantity amount.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")

	// ErrInvalidPrice means a non-positive limit or stop price.
	ErrInvalidPrice = errors.New("price must be greater than 0")

	// ErrMissingExpiry means GOOD_TILL_TIME was requested without an expiry.
	ErrMissingExpiry = errors.New("no expiration time for GOOD_TILL_TIME order")
)
