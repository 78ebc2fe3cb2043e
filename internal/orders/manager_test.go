package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enriplaso/BackMark/internal/contracts"
	"github.com/enriplaso/BackMark/pkg/logger"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func tick(offset time.Duration, price, volume float64) contracts.Tick {
	return contracts.Tick{Time: t0.Add(offset), Price: price, Volume: volume}
}

func newTestManager() (*Manager, *contracts.Account) {
	return NewManager(logger.NewSilent()), contracts.NewAccount(10000, 0, 0.1, "USD")
}

func TestMarketBuyFullFill(t *testing.T) {
	m, account := newTestManager()

	order := contracts.NewMarketBuy(1000, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	m.ProcessTick(account, tick(0, 100, 50))

	// Fee comes out of the committed funds: 0.1% of 1000 = 1,
	// so 999 / 100 = 9.99 units for a debit of exactly 1000.
	assert.InDelta(t, 9000, account.Balance, 1e-9)
	assert.InDelta(t, 9.99, account.Holdings, 1e-9)

	closed := m.ClosedOrders()
	require.Len(t, closed, 1)
	assert.Equal(t, contracts.StatusDone, closed[0].Status)
	assert.Equal(t, contracts.DoneReasonFilled, closed[0].DoneReason)
	assert.Equal(t, t0, closed[0].DoneAt)
	assert.Empty(t, m.ActiveOrders())

	trades := m.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, order.ID, trades[0].OrderID)
	assert.Equal(t, contracts.SideBuy, trades[0].Side)
	assert.InDelta(t, 1000, trades[0].Price, 1e-9)
	assert.InDelta(t, 9.99, trades[0].Quantity, 1e-9)
	assert.InDelta(t, account.Balance, trades[0].BalanceAfter, 1e-9)
	assert.InDelta(t, account.Holdings, trades[0].HoldingsAfter, 1e-9)
}

func TestMarketSellFullFill(t *testing.T) {
	m := NewManager(logger.NewSilent())
	account := contracts.NewAccount(0, 10, 0.1, "USD")

	order := contracts.NewMarketSell(10, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	m.ProcessTick(account, tick(0, 100, 50))

	// Proceeds are credited net of fee: 1000 - 1.
	assert.InDelta(t, 999, account.Balance, 1e-9)
	assert.InDelta(t, 0, account.Holdings, 1e-9)

	trades := m.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, contracts.SideSell, trades[0].Side)
	assert.InDelta(t, 999, trades[0].Price, 1e-9)
	assert.InDelta(t, 10, trades[0].Quantity, 1e-9)
}

func TestPartialFillsAccumulateToFull(t *testing.T) {
	m := NewManager(logger.NewSilent())
	account := contracts.NewAccount(5000, 0, 0.1, "USD")

	order := contracts.NewMarketBuy(5000, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	// Volume covers only 3000 of notional: partial fill, remainder stays.
	m.ProcessTick(account, tick(0, 100, 30))

	require.Len(t, m.ActiveOrders(), 1)
	assert.InDelta(t, 2000, account.Balance, 1e-9)
	assert.InDelta(t, 29.97, account.Holdings, 1e-9)

	// Second tick covers the remaining 2000.
	m.ProcessTick(account, tick(time.Minute, 100, 30))

	assert.Empty(t, m.ActiveOrders())
	closed := m.ClosedOrders()
	require.Len(t, closed, 1)
	assert.Equal(t, contracts.DoneReasonFilled, closed[0].DoneReason)

	assert.InDelta(t, 0, account.Balance, 1e-9)
	assert.InDelta(t, 49.95, account.Holdings, 1e-9)

	trades := m.Trades()
	require.Len(t, trades, 2)
	assert.InDelta(t, 3000, trades[0].Price, 1e-9)
	assert.InDelta(t, 2000, trades[1].Price, 1e-9)
}

func TestPartialSellAccumulates(t *testing.T) {
	m := NewManager(logger.NewSilent())
	account := contracts.NewAccount(0, 100, 0, "USD")

	order := contracts.NewMarketSell(100, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	m.ProcessTick(account, tick(0, 50, 40))
	require.Len(t, m.ActiveOrders(), 1)
	assert.InDelta(t, 2000, account.Balance, 1e-9)
	assert.InDelta(t, 60, account.Holdings, 1e-9)

	m.ProcessTick(account, tick(time.Minute, 50, 60))
	assert.Empty(t, m.ActiveOrders())
	assert.InDelta(t, 5000, account.Balance, 1e-9)
	assert.InDelta(t, 0, account.Holdings, 1e-9)
}

func TestFillOrKillCancelsOnPartial(t *testing.T) {
	m, account := newTestManager()

	order := contracts.NewMarketBuy(5000, contracts.FillOrKill, time.Time{}, t0)
	m.Add(order)

	balanceBefore := account.Balance
	m.ProcessTick(account, tick(0, 100, 10))

	// All or nothing: no partial execution, no account mutation.
	assert.Equal(t, balanceBefore, account.Balance)
	assert.Zero(t, account.Holdings)
	assert.Empty(t, m.Trades())

	closed := m.ClosedOrders()
	require.Len(t, closed, 1)
	assert.Equal(t, contracts.DoneReasonCancelled, closed[0].DoneReason)
}

func TestFillOrKillFillsWhenVolumeCovers(t *testing.T) {
	m, account := newTestManager()

	order := contracts.NewMarketBuy(1000, contracts.FillOrKill, time.Time{}, t0)
	m.Add(order)

	m.ProcessTick(account, tick(0, 100, 100))

	closed := m.ClosedOrders()
	require.Len(t, closed, 1)
	assert.Equal(t, contracts.DoneReasonFilled, closed[0].DoneReason)
}

func TestImmediateOrCancelKeepsPartial(t *testing.T) {
	m, account := newTestManager()

	order := contracts.NewMarketBuy(5000, contracts.ImmediateOrCancel, time.Time{}, t0)
	m.Add(order)

	m.ProcessTick(account, tick(0, 100, 10))

	// The partial executes, then the remainder is cancelled.
	assert.InDelta(t, 9000, account.Balance, 1e-9)
	require.Len(t, m.Trades(), 1)

	closed := m.ClosedOrders()
	require.Len(t, closed, 1)
	assert.Equal(t, contracts.DoneReasonPartiallyFilled, closed[0].DoneReason)
	assert.Empty(t, m.ActiveOrders())
}

func TestGoodTillTimeExpiresOnPartialTick(t *testing.T) {
	m, account := newTestManager()

	expire := t0.Add(time.Hour)
	order := contracts.NewMarketBuy(5000, contracts.GoodTillTime, expire, t0)
	m.Add(order)

	// Before expiry a partial executes and the remainder waits.
	m.ProcessTick(account, tick(0, 100, 10))
	require.Len(t, m.ActiveOrders(), 1)
	require.Len(t, m.Trades(), 1)

	// At expiry the remainder is closed without executing.
	balanceBefore := account.Balance
	m.ProcessTick(account, tick(time.Hour, 100, 10))

	assert.Equal(t, balanceBefore, account.Balance)
	require.Len(t, m.Trades(), 1)

	closed := m.ClosedOrders()
	require.Len(t, closed, 1)
	assert.Equal(t, contracts.DoneReasonExpired, closed[0].DoneReason)
}

func TestGoodTillTimeFullFillIgnoresExpiry(t *testing.T) {
	m, account := newTestManager()

	// Expiry already passed, but the tick covers the whole order. The
	// expiry check only runs when a fill would be partial.
	order := contracts.NewMarketBuy(1000, contracts.GoodTillTime, t0.Add(-time.Hour), t0)
	m.Add(order)

	m.ProcessTick(account, tick(0, 100, 100))

	closed := m.ClosedOrders()
	require.Len(t, closed, 1)
	assert.Equal(t, contracts.DoneReasonFilled, closed[0].DoneReason)
}

func TestLimitBuyWaitsForPrice(t *testing.T) {
	m, account := newTestManager()

	order := contracts.NewLimitBuy(90, 900, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	// Above the limit: not eligible, untouched.
	m.ProcessTick(account, tick(0, 100, 100))
	assert.Len(t, m.ActiveOrders(), 1)
	assert.Empty(t, m.Trades())

	// At the limit: fills.
	m.ProcessTick(account, tick(time.Minute, 90, 100))
	assert.Empty(t, m.ActiveOrders())
	require.Len(t, m.Trades(), 1)
}

func TestLimitSellWaitsForPrice(t *testing.T) {
	m := NewManager(logger.NewSilent())
	account := contracts.NewAccount(0, 5, 0, "USD")

	order := contracts.NewLimitSell(110, 5, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	m.ProcessTick(account, tick(0, 100, 100))
	assert.Len(t, m.ActiveOrders(), 1)

	m.ProcessTick(account, tick(time.Minute, 110, 100))
	assert.Empty(t, m.ActiveOrders())
	assert.InDelta(t, 550, account.Balance, 1e-9)
}

func TestStopLossTriggersOnlyAtOrBelowStop(t *testing.T) {
	m := NewManager(logger.NewSilent())
	account := contracts.NewAccount(0, 1, 0, "USD")

	order := contracts.NewStopLoss(9000, 1, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	// Prices above the trigger leave the stop armed.
	m.ProcessTick(account, tick(0, 9500, 100))
	m.ProcessTick(account, tick(time.Minute, 9001, 100))
	assert.Len(t, m.ActiveOrders(), 1)
	assert.Empty(t, m.Trades())

	// First tick at or below the trigger fills at that tick's price.
	m.ProcessTick(account, tick(2*time.Minute, 8900, 100))
	assert.Empty(t, m.ActiveOrders())
	require.Len(t, m.Trades(), 1)
	assert.InDelta(t, 8900, m.Trades()[0].Price, 1e-9)
}

func TestStopEntryTriggersAtOrAboveStop(t *testing.T) {
	m, account := newTestManager()

	order := contracts.NewStopEntry(105, 1000, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	m.ProcessTick(account, tick(0, 100, 100))
	assert.Empty(t, m.Trades())

	m.ProcessTick(account, tick(time.Minute, 105, 100))
	require.Len(t, m.Trades(), 1)
}

func TestTriggeredStopDoesNotRearm(t *testing.T) {
	m := NewManager(logger.NewSilent())
	account := contracts.NewAccount(0, 100, 0, "USD")

	order := contracts.NewStopLoss(90, 100, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	// Trigger with only partial volume: the stop converts to a market
	// sell and the remainder stays on the book as a plain market order.
	m.ProcessTick(account, tick(0, 89, 40))
	require.Len(t, m.ActiveOrders(), 1)

	remaining := m.ActiveOrders()[0]
	assert.Equal(t, contracts.StopNone, remaining.Stop)
	assert.Zero(t, remaining.StopPrice)
	assert.Equal(t, contracts.OrderTypeMarket, remaining.Type)

	// Price back above the old trigger: a market order fills anyway.
	m.ProcessTick(account, tick(time.Minute, 95, 100))
	assert.Empty(t, m.ActiveOrders())
}

func TestSellSkippedWhenHoldingsShort(t *testing.T) {
	m := NewManager(logger.NewSilent())
	account := contracts.NewAccount(0, 2, 0, "USD")

	order := contracts.NewMarketSell(5, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	m.ProcessTick(account, tick(0, 100, 100))

	// No fill, no close: the order waits in case holdings recover.
	assert.Len(t, m.ActiveOrders(), 1)
	assert.Empty(t, m.Trades())
	assert.InDelta(t, 2, account.Holdings, 1e-9)
}

func TestCancelOrder(t *testing.T) {
	m, account := newTestManager()

	order := contracts.NewLimitBuy(90, 900, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	m.CancelOrder(order.ID, t0.Add(time.Minute))

	assert.Empty(t, m.ActiveOrders())
	closed := m.ClosedOrders()
	require.Len(t, closed, 1)
	assert.Equal(t, contracts.DoneReasonCancelled, closed[0].DoneReason)
	assert.Equal(t, t0.Add(time.Minute), closed[0].DoneAt)

	// Cancelled orders never execute, even on an eligible tick.
	m.ProcessTick(account, tick(2*time.Minute, 80, 100))
	assert.Empty(t, m.Trades())
}

func TestCancelUnknownOrderIsNoop(t *testing.T) {
	m, _ := newTestManager()

	m.CancelOrder("no-such-order", t0)

	assert.Empty(t, m.ActiveOrders())
	assert.Empty(t, m.ClosedOrders())
}

func TestCancelIsIdempotent(t *testing.T) {
	m, _ := newTestManager()

	order := contracts.NewLimitBuy(90, 900, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	m.CancelOrder(order.ID, t0)
	m.CancelOrder(order.ID, t0.Add(time.Minute))

	closed := m.ClosedOrders()
	require.Len(t, closed, 1)
	assert.Equal(t, t0, closed[0].DoneAt)
}

func TestCancelAllOrders(t *testing.T) {
	m, _ := newTestManager()

	m.Add(contracts.NewLimitBuy(90, 100, contracts.GoodTillCancel, time.Time{}, t0))
	m.Add(contracts.NewLimitBuy(80, 100, contracts.GoodTillCancel, time.Time{}, t0))
	m.Add(contracts.NewMarketBuy(100, contracts.GoodTillCancel, time.Time{}, t0))

	m.CancelAllOrders(t0.Add(time.Minute))

	assert.Empty(t, m.ActiveOrders())
	closed := m.ClosedOrders()
	require.Len(t, closed, 3)
	for _, o := range closed {
		assert.Equal(t, contracts.DoneReasonCancelled, o.DoneReason)
	}
}

func TestOrderByID(t *testing.T) {
	m, account := newTestManager()

	order := contracts.NewMarketBuy(1000, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	found, ok := m.OrderByID(order.ID)
	require.True(t, ok)
	assert.Equal(t, contracts.StatusReceived, found.Status)

	m.ProcessTick(account, tick(0, 100, 100))

	found, ok = m.OrderByID(order.ID)
	require.True(t, ok)
	assert.Equal(t, contracts.StatusDone, found.Status)

	_, ok = m.OrderByID("missing")
	assert.False(t, ok)
}

func TestQueriesReturnCopies(t *testing.T) {
	m, _ := newTestManager()

	order := contracts.NewLimitBuy(90, 900, contracts.GoodTillCancel, time.Time{}, t0)
	m.Add(order)

	snapshot := m.ActiveOrders()
	snapshot[0].Funds = 0
	snapshot[0].Status = contracts.StatusDone

	fresh, ok := m.OrderByID(order.ID)
	require.True(t, ok)
	assert.InDelta(t, 900, fresh.Funds, 1e-9)
	assert.Equal(t, contracts.StatusReceived, fresh.Status)
}

func TestTradeLogBalancesAreConsistent(t *testing.T) {
	m := NewManager(logger.NewSilent())
	account := contracts.NewAccount(5000, 0, 0.1, "USD")

	m.Add(contracts.NewMarketBuy(5000, contracts.GoodTillCancel, time.Time{}, t0))
	m.ProcessTick(account, tick(0, 100, 30))

	m.Add(contracts.NewMarketSell(20, contracts.GoodTillCancel, time.Time{}, t0.Add(time.Minute)))
	m.ProcessTick(account, tick(time.Minute, 110, 100))

	// Replaying the trade log from the initial balances must land on
	// every recorded snapshot.
	balance, holdings := 5000.0, 0.0
	for _, tr := range m.Trades() {
		switch tr.Side {
		case contracts.SideBuy:
			balance -= tr.Price
			holdings += tr.Quantity
		case contracts.SideSell:
			balance += tr.Price
			holdings -= tr.Quantity
		}
		assert.InDelta(t, tr.BalanceAfter, balance, 1e-9)
		assert.InDelta(t, tr.HoldingsAfter, holdings, 1e-9)
	}
	assert.InDelta(t, account.Balance, balance, 1e-9)
	assert.InDelta(t, account.Holdings, holdings, 1e-9)
}

func TestCalculateFee(t *testing.T) {
	assert.InDelta(t, 1, calculateFee(1000, 0.1), 1e-9)
	assert.InDelta(t, 0, calculateFee(1000, 0), 1e-9)
	assert.InDelta(t, 25, calculateFee(1000, 2.5), 1e-9)
}
