package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
	"github.com/felixmccuaig/greyhounds-trading/internal/position"
	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
)

var start = time.Date(2024, 3, 9, 19, 30, 0, 0, time.UTC)

func marketBook(marketType string, toStart time.Duration, runners ...signal.Snapshot) signal.MarketBook {
	return signal.MarketBook{
		Meta:        signal.MarketMeta{MarketID: "1.1", MarketType: marketType, StartTime: start},
		PublishTime: start.Add(-toStart),
		Runners:     runners,
	}
}

func traded(id int64, ltp float64) signal.Snapshot {
	return signal.Snapshot{InstrumentID: id, LastTraded: signal.Price(ltp), TotalMatched: signal.Price(250)}
}

func newDirectional(t *testing.T) *Directional {
	t.Helper()
	d, err := NewDirectional(Params{ShortWindow: 2, LongWindow: 3, Stake: 2}, zerolog.Nop())
	require.NoError(t, err)
	return d
}

// feed walks a selection down from 6 to 4, which reads as a rise to come on the third book.
func feed(t *testing.T, d *Directional) []execution.Action {
	t.Helper()
	var actions []execution.Action
	for i, px := range []float64{6, 5, 4} {
		book := marketBook(signal.MarketTypeWin, 4*time.Minute-time.Duration(i)*100*time.Millisecond, traded(7, px))
		_, ok := d.CheckMarketBook(book)
		require.True(t, ok)
		actions = d.ProcessMarketBook(book)
		if i < 2 {
			require.Empty(t, actions)
		}
	}
	return actions
}

func TestDirectionalEligibility(t *testing.T) {
	d := newDirectional(t)
	cases := []struct {
		name       string
		marketType string
		toStart    time.Duration
		want       bool
	}{
		{"win inside window", signal.MarketTypeWin, 5 * time.Minute, true},
		{"place inside window", signal.MarketTypePlace, time.Second, true},
		{"too early", signal.MarketTypeWin, 5*time.Minute + time.Second, false},
		{"in play", signal.MarketTypeWin, 0, false},
		{"other market type", "FORECAST", time.Minute, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := d.CheckMarketBook(marketBook(tc.marketType, tc.toStart))
			assert.Equal(t, tc.want, ok)
		})
	}

	closed := marketBook(signal.MarketTypeWin, time.Minute)
	closed.Meta.Closed = true
	_, ok := d.CheckMarketBook(closed)
	assert.False(t, ok)
}

func TestDirectionalEntersOnSignal(t *testing.T) {
	d := newDirectional(t)
	actions := feed(t, d)
	require.Len(t, actions, 1)
	order := actions[0].Order
	assert.Equal(t, execution.Place, actions[0].Kind)
	assert.Equal(t, execution.Lay, order.Side)
	assert.Equal(t, 4.0, order.Price)
	assert.Equal(t, 2.0, order.Size)
	assert.Equal(t, position.ReasonEnter, order.Notes["trigger"])

	trades := d.Trades("1.1")
	require.Contains(t, trades, int64(7))
	assert.Equal(t, position.Entered, trades[7].State())

	// An existing trade blocks a second entry on the same selection.
	book := marketBook(signal.MarketTypeWin, 3*time.Minute+59*time.Second+800*time.Millisecond, traded(7, 3.9))
	for _, a := range d.ProcessMarketBook(book) {
		assert.NotEqual(t, execution.Place, a.Kind)
	}
}

func TestDirectionalSkipsIncompleteSnapshots(t *testing.T) {
	d := newDirectional(t)
	for _, px := range []float64{6, 5, 4} {
		snap := traded(7, px)
		snap.TotalMatched = nil
		assert.Empty(t, d.ProcessMarketBook(marketBook(signal.MarketTypeWin, time.Minute, snap)))
	}
	assert.Empty(t, d.Trades("1.1"))
}

func TestDirectionalGoingInPlayExitsTrades(t *testing.T) {
	d := newDirectional(t)
	entry := feed(t, d)[0].Order

	actions, ok := d.CheckMarketBook(marketBook(signal.MarketTypeWin, 0))
	assert.False(t, ok)
	require.Len(t, actions, 1)
	assert.Equal(t, execution.Cancel, actions[0].Kind)
	assert.Equal(t, entry.ID, actions[0].OrderID)

	// The resting entry was matched before the cancel landed: flatten LAY 2 @ 4.
	actions = d.ProcessOrders([]execution.OrderUpdate{{
		OrderID: entry.ID, Status: execution.ExecutionComplete, SizeMatched: 2, AveragePriceMatched: 4,
	}})
	require.Len(t, actions, 1)
	exit := actions[0].Order
	assert.Equal(t, execution.Back, exit.Side)
	assert.Equal(t, 4.0, exit.Price)
	assert.Equal(t, 2.0, exit.Size)
	assert.Equal(t, position.ReasonGoingInPlay, exit.Notes["trigger"])

	actions = d.ProcessOrders([]execution.OrderUpdate{{
		OrderID: exit.ID, Status: execution.ExecutionComplete, SizeMatched: 2, AveragePriceMatched: 4,
	}})
	assert.Empty(t, actions)
	assert.True(t, d.Trades("1.1")[7].IsClosed())
}

func TestDirectionalClosedMarketDiscardsState(t *testing.T) {
	d := newDirectional(t)
	feed(t, d)
	require.NotEmpty(t, d.Trades("1.1"))

	closed := marketBook(signal.MarketTypeWin, -time.Minute)
	closed.Meta.Closed = true
	_, ok := d.CheckMarketBook(closed)
	assert.False(t, ok)
	assert.Empty(t, d.Trades("1.1"))

	// History starts again from scratch.
	book := marketBook(signal.MarketTypeWin, time.Minute, traded(7, 4))
	assert.Empty(t, d.ProcessMarketBook(book))
}

func TestDirectionalProportionalStake(t *testing.T) {
	d, err := NewDirectional(Params{ShortWindow: 2, LongWindow: 3, MaxLiability: 5}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1.67, d.stake(4))
	assert.Equal(t, 0.05, d.stake(1000))
	assert.Zero(t, d.stake(1))
}

func TestBuildSelectsMode(t *testing.T) {
	s, err := Build("market_making", Params{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "MarketMaker", s.Name())

	s, err = Build("", Params{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "MovingAverage", s.Name())

	_, err = Build("moving_average", Params{ShortWindow: 40, LongWindow: 30}, zerolog.Nop())
	assert.Error(t, err)
}
