package contracts

import (
	"time"

	"github.com/google/uuid"
)

// Side represents buy or sell
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType represents market or limit order
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Stop is the trigger condition that arms a stop order. A stop order
// rests untouched until the trigger price is crossed, then trades as a
// plain market order.
type Stop string

const (
	StopNone  Stop = ""
	StopLoss  Stop = "LOSS"  // triggers once the tick price falls to or below the stop price
	StopEntry Stop = "ENTRY" // triggers once the tick price rises to or above the stop price
)

// TimeInForce governs what happens to the unfilled remainder of an
// order when a tick cannot fill it completely.
type TimeInForce string

const (
	GoodTillCancel    TimeInForce = "GTC" // remainder stays on the book (default)
	GoodTillTime      TimeInForce = "GTT" // like GTC until the expire time is reached
	ImmediateOrCancel TimeInForce = "IOC" // partial fill executes, remainder is cancelled
	FillOrKill        TimeInForce = "FOK" // cancelled outright unless fully fillable
)

// Status represents the order lifecycle state
type Status string

const (
	StatusReceived Status = "RECEIVED"
	StatusDone     Status = "DONE"
)

// Done reasons recorded when an order leaves the active book.
const (
	DoneReasonFilled          = "Filled"
	DoneReasonCancelled       = "Cancelled"
	DoneReasonPartiallyFilled = "Partially Filled"
	DoneReasonExpired         = "Expired"
)

// Order is a request to exchange account currency for product units or
// vice versa. BUY orders are sized in Funds (quote currency), SELL
// orders in Quantity (product units); the engine shrinks the sized
// field as partial fills execute. Orders are built through the
// per-flavor constructors below so that a SELL with funds, a BUY with
// quantity, or a stop without a trigger price cannot exist.
type Order struct {
	ID          string      `json:"id"`
	Side        Side        `json:"side"`
	Type        OrderType   `json:"type"`
	Stop        Stop        `json:"stop,omitempty"`
	StopPrice   float64     `json:"stop_price,omitempty"`
	Price       float64     `json:"price,omitempty"` // limit price, LIMIT orders only
	Funds       float64     `json:"funds,omitempty"`
	Quantity    float64     `json:"quantity,omitempty"`
	TimeInForce TimeInForce `json:"time_in_force"`
	ExpireTime  time.Time   `json:"expire_time,omitzero"` // GTT only
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	DoneAt      time.Time   `json:"done_at,omitzero"`
	DoneReason  string      `json:"done_reason,omitempty"`
}

// NewMarketBuy creates an unconditional market buy for the given funds.
func NewMarketBuy(funds float64, tif TimeInForce, expireTime time.Time, now time.Time) *Order {
	o := newOrder(SideBuy, OrderTypeMarket, tif, expireTime, now)
	o.Funds = funds
	return o
}

// NewMarketSell creates an unconditional market sell for the given quantity.
func NewMarketSell(quantity float64, tif TimeInForce, expireTime time.Time, now time.Time) *Order {
	o := newOrder(SideSell, OrderTypeMarket, tif, expireTime, now)
	o.Quantity = quantity
	return o
}

// NewLimitBuy creates a buy that becomes fillable once the tick price
// drops to or below the limit price.
func NewLimitBuy(limitPrice, funds float64, tif TimeInForce, expireTime time.Time, now time.Time) *Order {
	o := newOrder(SideBuy, OrderTypeLimit, tif, expireTime, now)
	o.Price = limitPrice
	o.Funds = funds
	return o
}

// NewLimitSell creates a sell that becomes fillable once the tick price
// rises to or above the limit price.
func NewLimitSell(limitPrice, quantity float64, tif TimeInForce, expireTime time.Time, now time.Time) *Order {
	o := newOrder(SideSell, OrderTypeLimit, tif, expireTime, now)
	o.Price = limitPrice
	o.Quantity = quantity
	return o
}

// NewStopEntry creates a buy that arms once the tick price reaches the
// stop price from below, then trades as a market buy. A sell-side entry
// stop would imply shorting and cannot be constructed.
func NewStopEntry(stopPrice, funds float64, tif TimeInForce, expireTime time.Time, now time.Time) *Order {
	o := newOrder(SideBuy, OrderTypeMarket, tif, expireTime, now)
	o.Stop = StopEntry
	o.StopPrice = stopPrice
	o.Funds = funds
	return o
}

// NewStopLoss creates a sell that arms once the tick price reaches the
// stop price from above, then trades as a market sell. A buy-side loss
// stop would imply covering a short and cannot be constructed.
func NewStopLoss(stopPrice, quantity float64, tif TimeInForce, expireTime time.Time, now time.Time) *Order {
	o := newOrder(SideSell, OrderTypeMarket, tif, expireTime, now)
	o.Stop = StopLoss
	o.StopPrice = stopPrice
	o.Quantity = quantity
	return o
}

func newOrder(side Side, typ OrderType, tif TimeInForce, expireTime time.Time, now time.Time) *Order {
	if tif == "" {
		tif = GoodTillCancel
	}
	o := &Order{
		ID:          uuid.NewString(),
		Side:        side,
		Type:        typ,
		TimeInForce: tif,
		Status:      StatusReceived,
		CreatedAt:   now,
	}
	if tif == GoodTillTime {
		o.ExpireTime = expireTime
	}
	return o
}

// IsDone reports whether the order has left the active book.
func (o *Order) IsDone() bool {
	return o.Status == StatusDone
}

// HasStop reports whether the order still carries an untriggered stop condition.
func (o *Order) HasStop() bool {
	return o.Stop != StopNone
}
