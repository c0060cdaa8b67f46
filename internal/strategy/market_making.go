package strategy

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
	"github.com/felixmccuaig/greyhounds-trading/internal/ladder"
	"github.com/felixmccuaig/greyhounds-trading/internal/position"
	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
)

type quoteKey struct {
	market string
	sel    int64
}

// MarketMaker quotes a back inside wide spreads and hedges each fill with a lay one tick
// outside the best back. At most one quote is open per selection.
type MarketMaker struct {
	params Params
	log    zerolog.Logger

	mu        sync.Mutex
	positions map[quoteKey]*position.QuotePosition
}

// NewMarketMaker returns an idle market maker.
func NewMarketMaker(params Params, log zerolog.Logger) *MarketMaker {
	return &MarketMaker{
		params:    params.withDefaults(),
		log:       log.With().Str("strategy", "market_making").Logger(),
		positions: make(map[quoteKey]*position.QuotePosition),
	}
}

// Name returns the identifier for logging.
func (m *MarketMaker) Name() string { return "MarketMaker" }

// CheckMarketBook accepts open WIN and PLACE markets far enough from the off. Positions of a
// closed market are dropped.
func (m *MarketMaker) CheckMarketBook(book signal.MarketBook) ([]execution.Action, bool) {
	if !tradeable(book) {
		return nil, false
	}
	if book.Meta.Closed {
		m.mu.Lock()
		for key := range m.positions {
			if key.market == book.Meta.MarketID {
				delete(m.positions, key)
			}
		}
		m.mu.Unlock()
		return nil, false
	}
	return nil, book.TimeToStart() >= time.Duration(m.params.MinQuoteLeadSecs)*time.Second
}

// ProcessMarketBook reprices resting legs and opens at most one new quote per book.
func (m *MarketMaker) ProcessMarketBook(book signal.MarketBook) []execution.Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	actions := m.refresh(book)
	for _, snap := range book.Runners {
		if snap.BestBack == nil || snap.BestLay == nil {
			m.log.Debug().Int64("sel", snap.InstrumentID).Msg("no prices available, skipping")
			continue
		}
		key := quoteKey{market: book.Meta.MarketID, sel: snap.InstrumentID}
		spread := ladder.SpreadInTicks(snap.BestBack, snap.BestLay)
		m.log.Debug().Int64("sel", snap.InstrumentID).Int("ticks", spread).Float64("back", *snap.BestBack).
			Float64("lay", *snap.BestLay).Msg("spread")

		if pos, ok := m.positions[key]; ok {
			if !pos.IsClosed() {
				action, err := pos.UpdatePrice(book, snap)
				if err != nil {
					m.log.Error().Err(err).Int64("sel", snap.InstrumentID).Msg("reprice failed")
				}
				if action != nil {
					actions = append(actions, *action)
				}
				continue
			}
			delete(m.positions, key)
		}
		if spread < m.params.MinSpreadTicks {
			continue
		}
		pos := position.NewQuotePosition(position.QuoteParams{
			MarketID:             book.Meta.MarketID,
			InstrumentID:         snap.InstrumentID,
			Stake:                m.params.QuoteStake,
			PriceAdjustmentTicks: m.params.PriceAdjustmentTicks,
		}, m.log)
		action, err := pos.EnterPosition(book, snap)
		if err != nil || action == nil {
			continue
		}
		m.positions[key] = pos
		actions = append(actions, *action)
		break
	}
	return actions
}

// refresh hands every open position of the market its latest runner, so a side that has gone
// empty is seen before any leg is placed against it. A position whose runner left the book is
// abandoned.
func (m *MarketMaker) refresh(book signal.MarketBook) []execution.Action {
	var actions []execution.Action
	for key, pos := range m.positions {
		if key.market != book.Meta.MarketID {
			continue
		}
		snap, ok := book.Runner(key.sel)
		if !ok {
			action, _ := pos.ExitPosition("runner missing from book")
			if action != nil {
				actions = append(actions, *action)
			}
			delete(m.positions, key)
			continue
		}
		pos.Observe(book, snap)
	}
	return actions
}

// ProcessOrders routes each update to the position owning the order. Legs are only ever
// created here or in ProcessMarketBook, so an unmatched completion is an inconsistency.
func (m *MarketMaker) ProcessOrders(updates []execution.OrderUpdate) []execution.Action {
	m.mu.Lock()
	defer m.mu.Unlock()

	var actions []execution.Action
	for _, u := range updates {
		key, pos := m.owner(u.OrderID)
		if pos == nil {
			if u.Status == execution.ExecutionComplete {
				m.log.Warn().Str("order", u.OrderID).Int64("sel", u.InstrumentID).
					Msg("executed order doesn't match an active position")
			}
			continue
		}
		action, err := pos.UpdateOrders([]execution.OrderUpdate{u})
		if err != nil {
			m.log.Warn().Err(err).Str("order", u.OrderID).Msg("order update")
		}
		if action != nil {
			actions = append(actions, *action)
		}
		if pos.IsClosed() {
			delete(m.positions, key)
		}
	}
	return actions
}

// Position returns the active quote for a selection.
func (m *MarketMaker) Position(marketID string, instrumentID int64) (*position.QuotePosition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[quoteKey{market: marketID, sel: instrumentID}]
	return pos, ok
}

func (m *MarketMaker) owner(orderID string) (quoteKey, *position.QuotePosition) {
	for key, pos := range m.positions {
		if pos.Owns(orderID) {
			return key, pos
		}
	}
	return quoteKey{}, nil
}
