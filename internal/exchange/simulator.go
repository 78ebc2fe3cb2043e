package exchange

import (
	"fmt"
	"slices"
	"time"

	"github.com/enriplaso/BackMark/internal/contracts"
	"github.com/enriplaso/BackMark/internal/orders"
	"github.com/enriplaso/BackMark/pkg/logger"
)

// Options configures a simulation run.
type Options struct {
	Product  string  // e.g. "BTC-USD"
	Balance  float64 // starting quote balance
	Holdings float64 // starting product quantity
	Fee      float64 // exchange fee, percent of executed notional
	Currency string  // quote currency label, default USD
}

// OrderOption customizes a single order placement.
type OrderOption func(*orderParams)

type orderParams struct {
	tif        contracts.TimeInForce
	expireTime time.Time
}

// WithTimeInForce sets the order's time-in-force policy. The default is
// GOOD_TILL_CANCEL.
func WithTimeInForce(tif contracts.TimeInForce) OrderOption {
	return func(p *orderParams) { p.tif = tif }
}

// WithExpiry sets the instant a GOOD_TILL_TIME order expires.
func WithExpiry(t time.Time) OrderOption {
	return func(p *orderParams) { p.expireTime = t }
}

// Simulator is the exchange facade a strategy trades against. It owns
// the account, validates every placement against account state, and
// hands validated orders to the execution engine. Placement methods
// return the order id; order state afterwards is read back only through
// the query methods, never through a live reference.
type Simulator struct {
	account *contracts.Account
	orders  *orders.Manager
	logger  *logger.Logger
	product string

	// timestamp of the tick currently or most recently processed,
	// used as the creation/cancellation instant for orders placed
	// between ticks
	now time.Time
}

// NewSimulator creates a simulator with a fresh account.
func NewSimulator(opts Options, log *logger.Logger) *Simulator {
	return &Simulator{
		account: contracts.NewAccount(opts.Balance, opts.Holdings, opts.Fee, opts.Currency),
		orders:  orders.NewManager(log),
		logger:  log,
		product: opts.Product,
	}
}

// ProcessTick advances the simulation by one market tick: every active
// order is tested against the tick and filled when eligible. Called
// exactly once per historical data row, in timestamp order.
func (s *Simulator) ProcessTick(tick contracts.Tick) {
	s.now = tick.Time
	s.orders.ProcessTick(s.account, tick)
}

// MarketBuy places a market order to spend the given funds.
func (s *Simulator) MarketBuy(funds float64, opts ...OrderOption) (string, error) {
	params, err := buildParams(opts)
	if err != nil {
		return "", err
	}
	if err := s.validateFunds(funds); err != nil {
		return "", err
	}
	return s.admit(contracts.NewMarketBuy(funds, params.tif, params.expireTime, s.now))
}

// MarketSell places a market order to sell the given quantity.
func (s *Simulator) MarketSell(quantity float64, opts ...OrderOption) (string, error) {
	params, err := buildParams(opts)
	if err != nil {
		return "", err
	}
	if err := s.validateQuantity(quantity); err != nil {
		return "", err
	}
	return s.admit(contracts.NewMarketSell(quantity, params.tif, params.expireTime, s.now))
}

// LimitBuy places a buy that executes once the price drops to or below
// the limit price.
func (s *Simulator) LimitBuy(limitPrice, funds float64, opts ...OrderOption) (string, error) {
	params, err := buildParams(opts)
	if err != nil {
		return "", err
	}
	if err := s.validatePrice(limitPrice); err != nil {
		return "", err
	}
	if err := s.validateFunds(funds); err != nil {
		return "", err
	}
	return s.admit(contracts.NewLimitBuy(limitPrice, funds, params.tif, params.expireTime, s.now))
}

// LimitSell places a sell that executes once the price rises to or
// above the limit price.
func (s *Simulator) LimitSell(limitPrice, quantity float64, opts ...OrderOption) (string, error) {
	params, err := buildParams(opts)
	if err != nil {
		return "", err
	}
	if err := s.validatePrice(limitPrice); err != nil {
		return "", err
	}
	if err := s.validateQuantity(quantity); err != nil {
		return "", err
	}
	return s.admit(contracts.NewLimitSell(limitPrice, quantity, params.tif, params.expireTime, s.now))
}

// StopEntry places a buy that arms once the price reaches the stop
// price from below.
func (s *Simulator) StopEntry(stopPrice, funds float64, opts ...OrderOption) (string, error) {
	params, err := buildParams(opts)
	if err != nil {
		return "", err
	}
	if err := s.validatePrice(stopPrice); err != nil {
		return "", err
	}
	if err := s.validateFunds(funds); err != nil {
		return "", err
	}
	return s.admit(contracts.NewStopEntry(stopPrice, funds, params.tif, params.expireTime, s.now))
}

// StopLoss places a sell that arms once the price reaches the stop
// price from above.
func (s *Simulator) StopLoss(stopPrice, quantity float64, opts ...OrderOption) (string, error) {
	params, err := buildParams(opts)
	if err != nil {
		return "", err
	}
	if err := s.validatePrice(stopPrice); err != nil {
		return "", err
	}
	if err := s.validateQuantity(quantity); err != nil {
		return "", err
	}
	return s.admit(contracts.NewStopLoss(stopPrice, quantity, params.tif, params.expireTime, s.now))
}

// CancelOrder cancels an active order. Cancelling an unknown or already
// closed order is a no-op.
func (s *Simulator) CancelOrder(id string) {
	s.orders.CancelOrder(id, s.now)
}

// CancelAllOrders clears the active book.
func (s *Simulator) CancelAllOrders() {
	s.orders.CancelAllOrders(s.now)
}

// Account returns a snapshot of the account.
func (s *Simulator) Account() contracts.Account {
	return *s.account
}

// Product returns the traded product label.
func (s *Simulator) Product() string {
	return s.product
}

// ActiveOrders returns the active book, optionally filtered by status.
func (s *Simulator) ActiveOrders(statuses ...contracts.Status) []contracts.Order {
	active := s.orders.ActiveOrders()
	if len(statuses) == 0 {
		return active
	}
	filtered := make([]contracts.Order, 0, len(active))
	for _, o := range active {
		if slices.Contains(statuses, o.Status) {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

// ClosedOrders returns every order that reached a terminal state.
func (s *Simulator) ClosedOrders() []contracts.Order {
	return s.orders.ClosedOrders()
}

// OrderByID looks up a single order among active and closed orders.
func (s *Simulator) OrderByID(id string) (contracts.Order, bool) {
	return s.orders.OrderByID(id)
}

// Trades returns the trade log.
func (s *Simulator) Trades() []contracts.Trade {
	return s.orders.Trades()
}

func (s *Simulator) admit(order *contracts.Order) (string, error) {
	s.orders.Add(order)
	s.logger.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"side":     order.Side,
		"type":     order.Type,
		"tif":      order.TimeInForce,
	}).Debug("Order admitted")
	return order.ID, nil
}

func buildParams(opts []OrderOption) (orderParams, error) {
	params := orderParams{tif: contracts.GoodTillCancel}
	for _, opt := range opts {
		opt(&params)
	}
	if params.tif == contracts.GoodTillTime && params.expireTime.IsZero() {
		return params, ErrMissingExpiry
	}
	return params, nil
}

func (s *Simulator) validateFunds(funds float64) error {
	if funds <= 0 {
		return fmt.Errorf("%w: funds %.2f", ErrInvalidQuantity, funds)
	}
	fee := (s.account.Fee / 100) * funds
	if funds+fee > s.account.Balance {
		return fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, funds+fee, s.account.Balance)
	}
	return nil
}

func (s *Simulator) validateQuantity(quantity float64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity %.8f", ErrInvalidQuantity, quantity)
	}
	if quantity > s.account.Holdings {
		return fmt.Errorf("%w: need %.8f, have %.8f", ErrInsufficientHoldings, quantity, s.account.Holdings)
	}
	return nil
}

func (s *Simulator) validatePrice(price float64) error {
	if price <= 0 {
		return fmt.Errorf("%w: price %.2f", ErrInvalidPrice, price)
	}
	return nil
}
