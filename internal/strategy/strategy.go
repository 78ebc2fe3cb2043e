// Package strategy defines the trading strategy interface and the
// built-in strategies that ship with the backtester.
package strategy

import (
	"context"

	"github.com/enriplaso/BackMark/internal/contracts"
	"github.com/enriplaso/BackMark/internal/exchange"
)

// Client is the trading surface a strategy places orders through. The
// exchange simulator satisfies it; a live broker adapter could too.
type Client interface {
	MarketBuy(funds float64, opts ...exchange.OrderOption) (string, error)
	MarketSell(quantity float64, opts ...exchange.OrderOption) (string, error)
	LimitBuy(limitPrice, funds float64, opts ...exchange.OrderOption) (string, error)
	LimitSell(limitPrice, quantity float64, opts ...exchange.OrderOption) (string, error)
	StopEntry(stopPrice, funds float64, opts ...exchange.OrderOption) (string, error)
	StopLoss(stopPrice, quantity float64, opts ...exchange.OrderOption) (string, error)
	CancelOrder(id string)
	CancelAllOrders()
	Account() contracts.Account
	ActiveOrders(statuses ...contracts.Status) []contracts.Order
}

// Strategy is called once per tick, before the tick is matched against
// the order book, so orders placed here rest until the next tick.
type Strategy interface {
	CheckPosition(ctx context.Context, tick contracts.Tick) error
}
