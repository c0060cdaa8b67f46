package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
)

func quoted(id int64, back, lay float64) signal.Snapshot {
	return signal.Snapshot{InstrumentID: id, BestBack: signal.Price(back), BestLay: signal.Price(lay)}
}

func complete(o *execution.Order) execution.OrderUpdate {
	return execution.OrderUpdate{
		OrderID: o.ID, InstrumentID: o.InstrumentID, Status: execution.ExecutionComplete,
		SizeMatched: o.Size, AveragePriceMatched: o.Price,
	}
}

func TestMarketMakerEligibility(t *testing.T) {
	m := NewMarketMaker(Params{}, zerolog.Nop())
	cases := []struct {
		name       string
		marketType string
		toStart    time.Duration
		want       bool
	}{
		{"win far from off", signal.MarketTypeWin, 10 * time.Minute, true},
		{"place at lead", signal.MarketTypePlace, 30 * time.Second, true},
		{"inside lead", signal.MarketTypeWin, 29 * time.Second, false},
		{"other market type", "FORECAST", 10 * time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := m.CheckMarketBook(marketBook(tc.marketType, tc.toStart))
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestMarketMakerOneNewQuotePerBook(t *testing.T) {
	m := NewMarketMaker(Params{}, zerolog.Nop())
	book := marketBook(signal.MarketTypeWin, 2*time.Minute, quoted(1, 1.98, 2.02), quoted(2, 1.98, 2.04))

	actions := m.ProcessMarketBook(book)
	require.Len(t, actions, 1)
	assert.Equal(t, int64(1), actions[0].Order.InstrumentID)
	assert.Equal(t, execution.Back, actions[0].Order.Side)
	assert.Equal(t, 2.0, actions[0].Order.Price)
	assert.Equal(t, 0.1, actions[0].Order.Size)
	_, ok := m.Position("1.1", 2)
	assert.False(t, ok)

	actions = m.ProcessMarketBook(book)
	require.Len(t, actions, 1)
	assert.Equal(t, int64(2), actions[0].Order.InstrumentID)
	assert.Equal(t, 2.02, actions[0].Order.Price)
}

func TestMarketMakerNeedsSpreadAndPrices(t *testing.T) {
	m := NewMarketMaker(Params{}, zerolog.Nop())
	noLay := signal.Snapshot{InstrumentID: 3, BestBack: signal.Price(1.5)}
	book := marketBook(signal.MarketTypeWin, 2*time.Minute, quoted(1, 2.0, 2.02), noLay)
	assert.Empty(t, m.ProcessMarketBook(book))
}

func TestMarketMakerRoundTrip(t *testing.T) {
	m := NewMarketMaker(Params{}, zerolog.Nop())
	actions := m.ProcessMarketBook(marketBook(signal.MarketTypeWin, 2*time.Minute, quoted(1, 1.98, 2.02)))
	require.Len(t, actions, 1)
	back := actions[0].Order

	assert.Empty(t, m.ProcessOrders([]execution.OrderUpdate{{OrderID: back.ID, Status: execution.Executable}}))

	actions = m.ProcessMarketBook(marketBook(signal.MarketTypeWin, 110*time.Second, quoted(1, 1.97, 2.0)))
	require.Len(t, actions, 1)
	assert.Equal(t, execution.Amend, actions[0].Kind)
	assert.Equal(t, back.ID, actions[0].OrderID)
	assert.Equal(t, 1.99, actions[0].Price)

	matched := complete(back)
	matched.AveragePriceMatched = 1.99
	actions = m.ProcessOrders([]execution.OrderUpdate{matched})
	require.Len(t, actions, 1)
	lay := actions[0].Order
	assert.Equal(t, execution.Lay, lay.Side)
	assert.Equal(t, 1.99, lay.Price)

	assert.Empty(t, m.ProcessOrders([]execution.OrderUpdate{complete(lay)}))
	_, ok := m.Position("1.1", 1)
	assert.False(t, ok, "completed round trip is removed")
}

func TestMarketMakerAbandonsWhenBackSideEmpties(t *testing.T) {
	m := NewMarketMaker(Params{}, zerolog.Nop())
	actions := m.ProcessMarketBook(marketBook(signal.MarketTypeWin, 2*time.Minute, quoted(1, 1.98, 2.02)))
	require.Len(t, actions, 1)
	back := actions[0].Order
	assert.Empty(t, m.ProcessOrders([]execution.OrderUpdate{{OrderID: back.ID, Status: execution.Executable}}))

	layOnly := signal.Snapshot{InstrumentID: 1, BestLay: signal.Price(2.0)}
	m.ProcessMarketBook(marketBook(signal.MarketTypeWin, 110*time.Second, layOnly))

	assert.Empty(t, m.ProcessOrders([]execution.OrderUpdate{complete(back)}), "no lay hedge without a best back")
	_, ok := m.Position("1.1", 1)
	assert.False(t, ok)
}

func TestMarketMakerExitsWhenRunnerLeavesBook(t *testing.T) {
	m := NewMarketMaker(Params{}, zerolog.Nop())
	actions := m.ProcessMarketBook(marketBook(signal.MarketTypeWin, 2*time.Minute, quoted(1, 1.98, 2.02)))
	require.Len(t, actions, 1)
	back := actions[0].Order

	actions = m.ProcessMarketBook(marketBook(signal.MarketTypeWin, 110*time.Second, quoted(2, 3.0, 3.05)))
	require.Len(t, actions, 1)
	assert.Equal(t, execution.Cancel, actions[0].Kind)
	assert.Equal(t, back.ID, actions[0].OrderID)
	_, ok := m.Position("1.1", 1)
	assert.False(t, ok)
}

func TestMarketMakerIgnoresUnknownCompletions(t *testing.T) {
	m := NewMarketMaker(Params{}, zerolog.Nop())
	m.ProcessMarketBook(marketBook(signal.MarketTypeWin, 2*time.Minute, quoted(1, 1.98, 2.02)))

	actions := m.ProcessOrders([]execution.OrderUpdate{{OrderID: "elsewhere", InstrumentID: 1, Status: execution.ExecutionComplete}})
	assert.Empty(t, actions)
	pos, ok := m.Position("1.1", 1)
	require.True(t, ok)
	assert.Equal(t, execution.Pending, pos.Back().Status)
}

func TestMarketMakerDropsClosedMarkets(t *testing.T) {
	m := NewMarketMaker(Params{}, zerolog.Nop())
	m.ProcessMarketBook(marketBook(signal.MarketTypeWin, 2*time.Minute, quoted(1, 1.98, 2.02)))

	closed := marketBook(signal.MarketTypeWin, -time.Minute)
	closed.Meta.Closed = true
	_, ok := m.CheckMarketBook(closed)
	assert.False(t, ok)
	_, ok = m.Position("1.1", 1)
	assert.False(t, ok)
}
