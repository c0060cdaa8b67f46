package strategy

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
	"github.com/felixmccuaig/greyhounds-trading/internal/ladder"
	"github.com/felixmccuaig/greyhounds-trading/internal/position"
	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
)

const minProportionalStake = 0.05

// Directional trades the moving-average signal in the minutes before the off, one trailing-stop
// trade per selection.
type Directional struct {
	params Params
	log    zerolog.Logger

	mu      sync.Mutex
	markets map[string]*marketState
}

type marketState struct {
	signals *MovingAverage
	trades  map[int64]*position.StopTrade
	inPlay  bool
}

// NewDirectional validates the moving-average windows and returns an idle strategy.
func NewDirectional(params Params, log zerolog.Logger) (*Directional, error) {
	params = params.withDefaults()
	if _, err := NewMovingAverage(params.ShortWindow, params.LongWindow); err != nil {
		return nil, err
	}
	return &Directional{
		params:  params,
		log:     log.With().Str("strategy", "moving_average").Logger(),
		markets: make(map[string]*marketState),
	}, nil
}

// Name returns the identifier for logging.
func (d *Directional) Name() string { return "MovingAverage" }

// CheckMarketBook accepts WIN and PLACE markets inside the entry window. A market that has
// gone in play has its open trades exited; a closed market is forgotten.
func (d *Directional) CheckMarketBook(book signal.MarketBook) ([]execution.Action, bool) {
	if !tradeable(book) {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if book.Meta.Closed {
		d.discard(book.Meta.MarketID)
		return nil, false
	}
	tts := book.TimeToStart()
	if tts <= 0 {
		state := d.markets[book.Meta.MarketID]
		if state == nil {
			return nil, false
		}
		state.inPlay = true
		var actions []execution.Action
		for id, trade := range state.trades {
			if trade.IsClosed() {
				continue
			}
			action, err := trade.ForceExit(position.ReasonGoingInPlay)
			if err != nil {
				d.log.Error().Err(err).Int64("sel", id).Msg("forced exit failed")
				delete(state.trades, id)
				continue
			}
			if action != nil {
				actions = append(actions, *action)
			}
		}
		return actions, false
	}
	return nil, tts <= time.Duration(d.params.EntryWindowSecs)*time.Second
}

// ProcessMarketBook updates open trades, feeds the signal generator and enters new trades.
func (d *Directional) ProcessMarketBook(book signal.MarketBook) []execution.Action {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := d.state(book.Meta.MarketID)
	var actions []execution.Action
	for _, snap := range book.Runners {
		if snap.LastTraded == nil || snap.TotalMatched == nil {
			continue
		}
		id := snap.InstrumentID
		ltp := *snap.LastTraded

		if trade, ok := state.trades[id]; ok {
			if trade.IsClosed() {
				delete(state.trades, id)
				continue
			}
			action, err := trade.UpdatePrice(book, snap)
			if err != nil {
				d.log.Error().Err(err).Str("market", book.Meta.MarketID).Int64("sel", id).Msg("dropping trade")
				delete(state.trades, id)
				continue
			}
			if action != nil {
				actions = append(actions, *action)
			}
		}

		side := state.signals.Observe(id, ltp)
		if side == signal.None {
			continue
		}
		if _, ok := state.trades[id]; ok {
			continue
		}
		if action := d.enter(state, book, snap, side); action != nil {
			actions = append(actions, *action)
		}
	}
	return actions
}

func (d *Directional) enter(state *marketState, book signal.MarketBook, snap signal.Snapshot, side signal.Direction) *execution.Action {
	stake := d.stake(*snap.LastTraded)
	if stake <= 0 {
		return nil
	}
	trade, err := position.NewStopTrade(position.TradeParams{
		MarketID:          book.Meta.MarketID,
		InstrumentID:      snap.InstrumentID,
		Side:              side,
		Stake:             stake,
		StopLossType:      position.Trailing,
		TrailingDistance:  d.params.TrailingDistance,
		TakeProfitPercent: d.params.TakeProfitPercent,
		OrderTimeout:      d.params.orderTimeout(),
	}, d.log)
	if err != nil {
		d.log.Error().Err(err).Msg("cannot build trade")
		return nil
	}
	if _, err := trade.UpdatePrice(book, snap); err != nil {
		d.log.Error().Err(err).Msg("cannot prime trade")
		return nil
	}
	action, err := trade.EnterPosition(book, snap)
	if err != nil || action == nil {
		return nil
	}
	state.trades[snap.InstrumentID] = trade
	if short, long, ok := state.signals.Means(snap.InstrumentID); ok {
		d.log.Info().Str("market", book.Meta.MarketID).Int64("sel", snap.InstrumentID).Str("side", side.String()).
			Float64("short_ma", short).Float64("long_ma", long).Msg("signal")
	}
	return action
}

// stake sizes the entry. With a liability cap the stake is scaled so a loss at these odds
// costs at most the cap.
func (d *Directional) stake(odds float64) float64 {
	if d.params.MaxLiability <= 0 {
		return d.params.Stake
	}
	if odds <= 1 {
		return 0
	}
	return math.Max(ladder.Round2(d.params.MaxLiability/(odds-1)), minProportionalStake)
}

// ProcessOrders routes status updates to every open trade; trades ignore orders they do not own.
// Trades in markets that went in play are exited as soon as nothing is outstanding.
func (d *Directional) ProcessOrders(updates []execution.OrderUpdate) []execution.Action {
	d.mu.Lock()
	defer d.mu.Unlock()

	var actions []execution.Action
	for _, state := range d.markets {
		for id, trade := range state.trades {
			if _, err := trade.UpdateOrders(updates); err != nil {
				d.log.Warn().Err(err).Int64("sel", id).Msg("order update")
			}
			if !state.inPlay || trade.IsClosed() || trade.Outstanding() != nil {
				continue
			}
			action, err := trade.ForceExit(position.ReasonGoingInPlay)
			if err != nil {
				d.log.Error().Err(err).Int64("sel", id).Msg("forced exit failed")
				continue
			}
			if action != nil {
				actions = append(actions, *action)
			}
		}
	}
	return actions
}

// Trades returns the open trades of a market.
func (d *Directional) Trades(marketID string) map[int64]*position.StopTrade {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[int64]*position.StopTrade)
	if state := d.markets[marketID]; state != nil {
		for id, trade := range state.trades {
			out[id] = trade
		}
	}
	return out
}

func (d *Directional) state(marketID string) *marketState {
	state := d.markets[marketID]
	if state == nil {
		// windows were validated in NewDirectional
		signals, _ := NewMovingAverage(d.params.ShortWindow, d.params.LongWindow)
		state = &marketState{signals: signals, trades: make(map[int64]*position.StopTrade)}
		d.markets[marketID] = state
	}
	return state
}

func (d *Directional) discard(marketID string) {
	state := d.markets[marketID]
	if state == nil {
		return
	}
	for _, id := range state.signals.instruments() {
		state.signals.Discard(id)
	}
	delete(d.markets, marketID)
	d.log.Debug().Str("market", marketID).Msg("market closed, state discarded")
}
