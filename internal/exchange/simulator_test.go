package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enriplaso/BackMark/internal/contracts"
	"github.com/enriplaso/BackMark/pkg/logger"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestSimulator() *Simulator {
	return NewSimulator(Options{
		Product: "BTC-USD",
		Balance: 10000,
		Fee:     0.1,
	}, logger.NewSilent())
}

func TestMarketBuyLifecycle(t *testing.T) {
	sim := newTestSimulator()

	id, err := sim.MarketBuy(1000)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	order, ok := sim.OrderByID(id)
	require.True(t, ok)
	assert.Equal(t, contracts.StatusReceived, order.Status)
	assert.Equal(t, contracts.GoodTillCancel, order.TimeInForce)

	sim.ProcessTick(contracts.Tick{Time: t0, Price: 100, Volume: 100})

	order, ok = sim.OrderByID(id)
	require.True(t, ok)
	assert.Equal(t, contracts.StatusDone, order.Status)
	assert.Equal(t, contracts.DoneReasonFilled, order.DoneReason)

	account := sim.Account()
	assert.InDelta(t, 9000, account.Balance, 1e-9)
	assert.InDelta(t, 9.99, account.Holdings, 1e-9)
	require.Len(t, sim.Trades(), 1)
}

func TestValidationRejectsWithoutMutation(t *testing.T) {
	sim := newTestSimulator()

	cases := []struct {
		name    string
		place   func() (string, error)
		wantErr error
	}{
		{"zero funds", func() (string, error) { return sim.MarketBuy(0) }, ErrInvalidQuantity},
		{"negative funds", func() (string, error) { return sim.MarketBuy(-5) }, ErrInvalidQuantity},
		{"funds beyond balance", func() (string, error) { return sim.MarketBuy(20000) }, ErrInsufficientFunds},
		{"fee pushes past balance", func() (string, error) { return sim.MarketBuy(9995) }, ErrInsufficientFunds},
		{"zero quantity", func() (string, error) { return sim.MarketSell(0) }, ErrInvalidQuantity},
		{"quantity beyond holdings", func() (string, error) { return sim.MarketSell(1) }, ErrInsufficientHoldings},
		{"zero limit price", func() (string, error) { return sim.LimitBuy(0, 100) }, ErrInvalidPrice},
		{"negative stop price", func() (string, error) { return sim.StopLoss(-1, 1) }, ErrInvalidPrice},
		{"gtt without expiry", func() (string, error) {
			return sim.MarketBuy(100, WithTimeInForce(contracts.GoodTillTime))
		}, ErrMissingExpiry},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := tc.place()
			require.ErrorIs(t, err, tc.wantErr)
			assert.Empty(t, id)
		})
	}

	// Rejected placements leave no trace anywhere.
	assert.Empty(t, sim.ActiveOrders())
	assert.Empty(t, sim.ClosedOrders())
	assert.Empty(t, sim.Trades())
	account := sim.Account()
	assert.InDelta(t, 10000, account.Balance, 1e-9)
	assert.Zero(t, account.Holdings)
}

func TestGoodTillTimeRequiresExpiryOnlyForGTT(t *testing.T) {
	sim := newTestSimulator()

	id, err := sim.LimitBuy(90, 100,
		WithTimeInForce(contracts.GoodTillTime),
		WithExpiry(t0.Add(time.Hour)))
	require.NoError(t, err)

	order, ok := sim.OrderByID(id)
	require.True(t, ok)
	assert.Equal(t, contracts.GoodTillTime, order.TimeInForce)
	assert.Equal(t, t0.Add(time.Hour), order.ExpireTime)

	// Non-GTT orders ignore a stray expiry option.
	id, err = sim.MarketBuy(100, WithExpiry(t0.Add(time.Hour)))
	require.NoError(t, err)
	order, ok = sim.OrderByID(id)
	require.True(t, ok)
	assert.True(t, order.ExpireTime.IsZero())
}

func TestStopEntryThenStopLossRoundTrip(t *testing.T) {
	sim := newTestSimulator()

	entryID, err := sim.StopEntry(105, 1000)
	require.NoError(t, err)

	sim.ProcessTick(contracts.Tick{Time: t0, Price: 100, Volume: 100})
	order, _ := sim.OrderByID(entryID)
	assert.Equal(t, contracts.StatusReceived, order.Status)

	sim.ProcessTick(contracts.Tick{Time: t0.Add(time.Minute), Price: 106, Volume: 100})
	order, _ = sim.OrderByID(entryID)
	assert.Equal(t, contracts.StatusDone, order.Status)

	held := sim.Account().Holdings
	require.Greater(t, held, 0.0)

	lossID, err := sim.StopLoss(95, held)
	require.NoError(t, err)

	sim.ProcessTick(contracts.Tick{Time: t0.Add(2 * time.Minute), Price: 94, Volume: 100})
	order, _ = sim.OrderByID(lossID)
	assert.Equal(t, contracts.StatusDone, order.Status)
	assert.InDelta(t, 0, sim.Account().Holdings, 1e-9)
}

func TestSellValidationUsesCurrentHoldings(t *testing.T) {
	sim := newTestSimulator()

	_, err := sim.MarketBuy(1000)
	require.NoError(t, err)
	sim.ProcessTick(contracts.Tick{Time: t0, Price: 100, Volume: 100})

	// 9.99 units held after the buy. Selling more is rejected.
	_, err = sim.MarketSell(10)
	assert.ErrorIs(t, err, ErrInsufficientHoldings)

	_, err = sim.MarketSell(9.99)
	assert.NoError(t, err)
}

func TestActiveOrdersStatusFilter(t *testing.T) {
	sim := newTestSimulator()

	_, err := sim.LimitBuy(90, 100)
	require.NoError(t, err)
	_, err = sim.LimitBuy(80, 100)
	require.NoError(t, err)

	assert.Len(t, sim.ActiveOrders(), 2)
	assert.Len(t, sim.ActiveOrders(contracts.StatusReceived), 2)
	assert.Empty(t, sim.ActiveOrders(contracts.StatusDone))
}

func TestCancelOrderAndCancelAll(t *testing.T) {
	sim := newTestSimulator()
	sim.ProcessTick(contracts.Tick{Time: t0, Price: 100, Volume: 0})

	id, err := sim.LimitBuy(90, 100)
	require.NoError(t, err)
	_, err = sim.LimitBuy(80, 100)
	require.NoError(t, err)

	sim.CancelOrder(id)
	assert.Len(t, sim.ActiveOrders(), 1)

	cancelled, ok := sim.OrderByID(id)
	require.True(t, ok)
	assert.Equal(t, contracts.DoneReasonCancelled, cancelled.DoneReason)
	assert.Equal(t, t0, cancelled.DoneAt)

	sim.CancelAllOrders()
	assert.Empty(t, sim.ActiveOrders())
	assert.Len(t, sim.ClosedOrders(), 2)
}

func TestAccountReturnsSnapshot(t *testing.T) {
	sim := newTestSimulator()

	account := sim.Account()
	account.Balance = 0

	assert.InDelta(t, 10000, sim.Account().Balance, 1e-9)
}

func TestDefaultCurrencyAndProduct(t *testing.T) {
	sim := NewSimulator(Options{Product: "ETH-USD", Balance: 100, Fee: 0}, logger.NewSilent())

	assert.Equal(t, "ETH-USD", sim.Product())
	assert.Equal(t, "USD", sim.Account().Currency)
}
