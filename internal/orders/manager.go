package orders

import (
	"math"
	"time"

	"github.com/enriplaso/BackMark/internal/contracts"
	"github.com/enriplaso/BackMark/pkg/logger"
)

// Manager is the order book and matching engine of the simulated
// exchange. It owns the active orders, the closed orders and the trade
// log for the lifetime of one simulation run. Orders handed to Add
// belong to the Manager from that point on; callers read them back only
// as copies through the query methods.
//
// The Manager is not safe for concurrent use. A simulation run is
// strictly tick-at-a-time, so one Manager must stay confined to one
// goroutine.
type Manager struct {
	active []*contracts.Order
	closed []*contracts.Order
	trades []contracts.Trade
	logger *logger.Logger
}

// NewManager creates an empty order book.
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		active: make([]*contracts.Order, 0),
		closed: make([]*contracts.Order, 0),
		trades: make([]contracts.Trade, 0),
		logger: log,
	}
}

// Add admits an order into the active book. Eligibility is not checked
// here; the facade validates before admission and the order waits for
// a tick that makes it executable.
func (m *Manager) Add(order *contracts.Order) {
	m.active = append(m.active, order)
}

// ActiveOrders returns a copy of the active book.
func (m *Manager) ActiveOrders() []contracts.Order {
	out := make([]contracts.Order, len(m.active))
	for i, o := range m.active {
		out[i] = *o
	}
	return out
}

// ClosedOrders returns a copy of the closed book.
func (m *Manager) ClosedOrders() []contracts.Order {
	out := make([]contracts.Order, len(m.closed))
	for i, o := range m.closed {
		out[i] = *o
	}
	return out
}

// Trades returns a copy of the trade log.
func (m *Manager) Trades() []contracts.Trade {
	out := make([]contracts.Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// OrderByID looks an order up among active then closed orders.
func (m *Manager) OrderByID(id string) (contracts.Order, bool) {
	for _, o := range m.active {
		if o.ID == id {
			return *o, true
		}
	}
	for _, o := range m.closed {
		if o.ID == id {
			return *o, true
		}
	}
	return contracts.Order{}, false
}

// CancelOrder closes an active order with reason "Cancelled". Unknown
// or already closed ids are a no-op, not an error: cancelling something
// that is no longer on the book is an expected race for a strategy.
func (m *Manager) CancelOrder(id string, timestamp time.Time) {
	for _, o := range m.active {
		if o.ID == id {
			m.closeOrder(o, timestamp, contracts.DoneReasonCancelled)
			return
		}
	}
	m.logger.WithField("order_id", id).Warn("Cancel requested for unknown order")
}

// CancelAllOrders cancels every order on the active book.
func (m *Manager) CancelAllOrders(timestamp time.Time) {
	snapshot := make([]*contracts.Order, len(m.active))
	copy(snapshot, m.active)
	for _, o := range snapshot {
		m.closeOrder(o, timestamp, contracts.DoneReasonCancelled)
	}
}

// ProcessTick evaluates every active order against one tick and
// executes the eligible ones. The active book is snapshotted first
// because fills close orders mid-iteration.
//
// Each order sees the full tick volume: volume is not depleted across
// orders within one tick. That keeps orders independent of each other
// and of processing sequence, at the cost of overstating liquidity when
// several large orders trigger on the same tick.
func (m *Manager) ProcessTick(account *contracts.Account, tick contracts.Tick) {
	snapshot := make([]*contracts.Order, len(m.active))
	copy(snapshot, m.active)

	for _, order := range snapshot {
		if order.IsDone() || !eligible(order, tick) {
			continue
		}

		// A triggered stop converts to a plain market order and does not re-arm.
		if order.HasStop() {
			order.Stop = contracts.StopNone
			order.StopPrice = 0
			order.Type = contracts.OrderTypeMarket
		}

		switch order.Side {
		case contracts.SideBuy:
			m.executeBuy(order, account, tick)
		case contracts.SideSell:
			m.executeSell(order, account, tick)
		}
	}
}

// eligible decides whether an order may trade on this tick. Ineligible
// orders are left untouched and re-evaluated on the next tick.
//
// Buy-side stop losses and sell-side stop entries would require shorting
// and are rejected at order construction, so both stop arms below are
// single-sided.
func eligible(order *contracts.Order, tick contracts.Tick) bool {
	return (order.Type == contracts.OrderTypeMarket && !order.HasStop()) ||
		(order.Stop == contracts.StopLoss && tick.Price <= order.StopPrice) ||
		(order.Stop == contracts.StopEntry && tick.Price >= order.StopPrice) ||
		(order.Side == contracts.SideBuy && order.Type == contracts.OrderTypeLimit && tick.Price <= order.Price) ||
		(order.Side == contracts.SideSell && order.Type == contracts.OrderTypeLimit && tick.Price >= order.Price)
}

// executeBuy fills a buy order against the tick. The fee is part of the
// order's funds: a full fill debits exactly Funds and buys
// (Funds - fee) / price units.
func (m *Manager) executeBuy(order *contracts.Order, account *contracts.Account, tick contracts.Tick) {
	fee := calculateFee(order.Funds, account.Fee)
	desiredQuantity := (order.Funds - fee) / tick.Price

	if tick.Volume >= desiredQuantity {
		if account.Balance < order.Funds {
			m.logger.WithField("order_id", order.ID).Warn("Insufficient balance for buy order")
			return
		}
		account.Balance -= order.Funds
		account.Holdings += desiredQuantity
		m.recordTrade(order, order.Funds, desiredQuantity, account, tick.Time)
		order.Funds = 0
		m.closeOrder(order, tick.Time, contracts.DoneReasonFilled)
		return
	}

	// Volume cannot cover the order: resolve time-in-force before
	// touching the account.
	switch order.TimeInForce {
	case contracts.FillOrKill:
		m.closeOrder(order, tick.Time, contracts.DoneReasonCancelled)
		return
	case contracts.GoodTillTime:
		if !tick.Time.Before(order.ExpireTime) {
			m.closeOrder(order, tick.Time, contracts.DoneReasonExpired)
			return
		}
	}

	tradeFunds := math.Min(tick.Volume*tick.Price, order.Funds)
	fee = calculateFee(tradeFunds, account.Fee)
	quantityBought := (tradeFunds - fee) / tick.Price

	if account.Balance < tradeFunds {
		m.logger.WithField("order_id", order.ID).Warn("Insufficient balance for buy order")
		return
	}

	account.Balance -= tradeFunds
	account.Holdings += quantityBought
	m.recordTrade(order, tradeFunds, quantityBought, account, tick.Time)
	order.Funds -= tradeFunds

	if order.Funds <= 0 {
		m.closeOrder(order, tick.Time, contracts.DoneReasonFilled)
	} else if order.TimeInForce == contracts.ImmediateOrCancel {
		m.closeOrder(order, tick.Time, contracts.DoneReasonPartiallyFilled)
	}
}

// executeSell fills a sell order against the tick, crediting proceeds
// net of fee and debiting holdings.
func (m *Manager) executeSell(order *contracts.Order, account *contracts.Account, tick contracts.Tick) {
	if account.Holdings < order.Quantity {
		m.logger.WithField("order_id", order.ID).Warn("Insufficient holdings for sell order")
		return
	}

	if tick.Volume >= order.Quantity {
		earnings := order.Quantity * tick.Price
		fee := calculateFee(earnings, account.Fee)
		proceeds := earnings - fee

		account.Balance += proceeds
		account.Holdings -= order.Quantity
		m.recordTrade(order, proceeds, order.Quantity, account, tick.Time)
		order.Quantity = 0
		m.closeOrder(order, tick.Time, contracts.DoneReasonFilled)
		return
	}

	switch order.TimeInForce {
	case contracts.FillOrKill:
		m.closeOrder(order, tick.Time, contracts.DoneReasonCancelled)
		return
	case contracts.GoodTillTime:
		if !tick.Time.Before(order.ExpireTime) {
			m.closeOrder(order, tick.Time, contracts.DoneReasonExpired)
			return
		}
	}

	quantitySold := math.Min(tick.Volume, order.Quantity)
	earnings := quantitySold * tick.Price
	fee := calculateFee(earnings, account.Fee)
	proceeds := earnings - fee

	account.Balance += proceeds
	account.Holdings -= quantitySold
	m.recordTrade(order, proceeds, quantitySold, account, tick.Time)
	order.Quantity -= quantitySold

	if order.Quantity <= 0 {
		m.closeOrder(order, tick.Time, contracts.DoneReasonFilled)
	} else if order.TimeInForce == contracts.ImmediateOrCancel {
		m.closeOrder(order, tick.Time, contracts.DoneReasonPartiallyFilled)
	}
}

// closeOrder moves an order from the active to the closed book. Closing
// is terminal: a second close attempt on the same order is ignored.
func (m *Manager) closeOrder(order *contracts.Order, timestamp time.Time, reason string) {
	if order.IsDone() {
		return
	}
	order.Status = contracts.StatusDone
	order.DoneAt = timestamp
	order.DoneReason = reason
	m.closed = append(m.closed, order)

	for i, active := range m.active {
		if active.ID == order.ID {
			m.active = append(m.active[:i], m.active[i+1:]...)
			break
		}
	}
}

// recordTrade appends a fill to the trade log with post-fill account snapshots.
func (m *Manager) recordTrade(order *contracts.Order, price, quantity float64, account *contracts.Account, timestamp time.Time) {
	m.trades = append(m.trades, contracts.Trade{
		OrderID:       order.ID,
		Side:          order.Side,
		Price:         price,
		Quantity:      quantity,
		CreatedAt:     timestamp,
		BalanceAfter:  account.Balance,
		HoldingsAfter: account.Holdings,
	})
	m.logger.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"side":     order.Side,
		"price":    price,
		"quantity": quantity,
	}).Debug("Trade executed")
}

// calculateFee returns the fee for a notional amount at a percentage rate.
func calculateFee(amount, feeRate float64) float64 {
	return (feeRate / 100) * amount
}
