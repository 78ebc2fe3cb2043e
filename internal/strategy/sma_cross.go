package strategy

import (
	"context"
	"fmt"

	"github.com/enriplaso/BackMark/internal/contracts"
	"github.com/enriplaso/BackMark/pkg/logger"
)

// SMACross trades simple moving average crossovers: it buys when the
// short average crosses above the long one and sells the whole position
// when it crosses back below. Price history lives in a fixed ring
// buffer with a running sum, so each tick is O(shortPeriod) with no
// allocation.
type SMACross struct {
	client Client
	logger *logger.Logger

	shortPeriod int
	longPeriod  int
	allocation  float64 // fraction of the balance committed per entry

	prices []float64
	head   int
	count  int
	sum    float64

	prevShort float64
	prevLong  float64
}

// NewSMACross creates an SMA crossover strategy. allocation is the
// fraction of the available balance spent on each entry, in (0, 1].
func NewSMACross(client Client, log *logger.Logger, shortPeriod, longPeriod int, allocation float64) (*SMACross, error) {
	if shortPeriod <= 0 || shortPeriod >= longPeriod {
		return nil, fmt.Errorf("short period %d must be positive and less than long period %d", shortPeriod, longPeriod)
	}
	if allocation <= 0 || allocation > 1 {
		return nil, fmt.Errorf("allocation %.2f must be in (0, 1]", allocation)
	}
	return &SMACross{
		client:      client,
		logger:      log,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		allocation:  allocation,
		prices:      make([]float64, longPeriod),
	}, nil
}

// CheckPosition updates the moving averages with the tick price and
// places a market order on a crossover.
func (s *SMACross) CheckPosition(ctx context.Context, tick contracts.Tick) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.push(tick.Price)
	if s.count < s.longPeriod {
		return nil
	}

	currLong := s.sum / float64(s.longPeriod)
	currShort := s.shortSMA()

	defer func() {
		s.prevShort = currShort
		s.prevLong = currLong
	}()

	if s.prevShort == 0 || s.prevLong == 0 {
		return nil
	}

	account := s.client.Account()

	// Golden cross: short average rises above the long one.
	if s.prevShort <= s.prevLong && currShort > currLong {
		funds := account.Balance * s.allocation
		fee := (account.Fee / 100) * funds
		funds -= fee
		if funds <= 0 {
			return nil
		}
		id, err := s.client.MarketBuy(funds)
		if err != nil {
			return fmt.Errorf("entry order failed: %w", err)
		}
		s.logger.WithFields(map[string]interface{}{
			"order_id": id,
			"funds":    funds,
			"price":    tick.Price,
		}).Info("Golden cross, entering position")
		return nil
	}

	// Dead cross: short average falls below the long one.
	if s.prevShort >= s.prevLong && currShort < currLong {
		if account.Holdings <= 0 {
			return nil
		}
		id, err := s.client.MarketSell(account.Holdings)
		if err != nil {
			return fmt.Errorf("exit order failed: %w", err)
		}
		s.logger.WithFields(map[string]interface{}{
			"order_id": id,
			"quantity": account.Holdings,
			"price":    tick.Price,
		}).Info("Dead cross, exiting position")
	}

	return nil
}

// push adds a price to the ring buffer, evicting the oldest once full.
func (s *SMACross) push(price float64) {
	if s.count == s.longPeriod {
		s.sum -= s.prices[s.head]
	}
	s.prices[s.head] = price
	s.sum += price
	s.head = (s.head + 1) % s.longPeriod
	if s.count < s.longPeriod {
		s.count++
	}
}

// shortSMA averages the most recent shortPeriod prices, walking the
// ring buffer backwards from the latest write.
func (s *SMACross) shortSMA() float64 {
	var sum float64
	idx := s.head
	for i := 0; i < s.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = s.longPeriod - 1
		}
		sum += s.prices[idx]
	}
	return sum / float64(s.shortPeriod)
}
