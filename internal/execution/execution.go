// Package execution handles order lifecycle and interaction with venues.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/felixmccuaig/greyhounds-trading/internal/metrics"
	"github.com/felixmccuaig/greyhounds-trading/internal/risk"
)

// ErrRiskRejected is returned when a placement breaches the exposure limits.
var ErrRiskRejected = errors.New("order rejected by risk limits")

type selectionKey struct {
	market string
	sel    int64
}

type liveOrder struct {
	key   selectionKey
	back  bool
	price float64
	size  float64
}

type outcome struct {
	ifWin, ifLose float64
}

// Executor forwards strategy actions to a venue after applying risk limits, and keeps the
// per-selection outcomes those limits are checked against.
type Executor struct {
	log    zerolog.Logger
	venue  Venue
	limits risk.Limits

	mu      sync.Mutex
	live    map[string]liveOrder
	matched map[selectionKey]outcome
}

// NewExecutor wraps a venue with logging, metrics and exposure limits.
func NewExecutor(log zerolog.Logger, venue Venue, limits risk.Limits) *Executor {
	return &Executor{
		log:     log,
		venue:   venue,
		limits:  limits,
		live:    make(map[string]liveOrder),
		matched: make(map[selectionKey]outcome),
	}
}

// Dispatch sends a single action to the venue. It never waits for the outcome of the request.
func (executor *Executor) Dispatch(ctx context.Context, action *Action) error {
	if action == nil {
		return nil
	}
	switch action.Kind {
	case Place:
		return executor.place(ctx, action.Order)
	case Amend:
		metrics.AmendsTotal.Inc()
		executor.log.Debug().Str("order", action.OrderID).Float64("px", action.Price).Msg("amend order")
		if err := executor.venue.Amend(ctx, action.OrderID, action.Price); err != nil {
			return err
		}
		executor.repriceLive(action.OrderID, action.Price)
		if action.Order != nil {
			action.Order.Price = action.Price
		}
		return nil
	case Cancel:
		metrics.CancelsTotal.Inc()
		executor.log.Debug().Str("order", action.OrderID).Msg("cancel order")
		return executor.venue.Cancel(ctx, action.OrderID)
	default:
		return fmt.Errorf("unknown action kind %d", action.Kind)
	}
}

func (executor *Executor) place(ctx context.Context, order *Order) error {
	if order == nil {
		return errors.New("place action without order")
	}
	lo := liveOrder{
		key:   selectionKey{market: order.MarketID, sel: order.InstrumentID},
		back:  order.Side == Back,
		price: order.Price,
		size:  order.Size,
	}
	liability := risk.Liability(lo.back, lo.price, lo.size)

	executor.mu.Lock()
	current := executor.worstCase(lo.key, nil)
	next := executor.worstCase(lo.key, &lo)
	if !executor.limits.Allow(liability, current, next) {
		executor.mu.Unlock()
		metrics.OrdersRejected.WithLabelValues(string(order.Side)).Inc()
		executor.log.Warn().Str("market", order.MarketID).Int64("sel", order.InstrumentID).
			Str("side", string(order.Side)).Float64("liability", liability).Float64("exposure", current).
			Float64("next", next).Msg("order blocked by risk limits")
		return ErrRiskRejected
	}
	executor.live[order.ID] = lo
	executor.mu.Unlock()

	trigger := order.Notes["trigger"]
	metrics.OrdersTotal.WithLabelValues(string(order.Side), trigger).Inc()
	executor.log.Info().Str("market", order.MarketID).Int64("sel", order.InstrumentID).Str("side", string(order.Side)).
		Float64("size", order.Size).Float64("px", order.Price).Str("trigger", trigger).Msg("submit order")
	return executor.venue.Place(ctx, *order)
}

// worstCase is the selection's loss on its worse result if every resting order, plus extra,
// were matched only where that hurts. Must be called with mu held.
func (executor *Executor) worstCase(key selectionKey, extra *liveOrder) float64 {
	book := executor.matched[key]
	add := func(lo liveOrder) {
		ifWin, ifLose := risk.Outcome(lo.back, lo.price, lo.size)
		book.ifWin += math.Min(0, ifWin)
		book.ifLose += math.Min(0, ifLose)
	}
	for _, lo := range executor.live {
		if lo.key == key {
			add(lo)
		}
	}
	if extra != nil {
		add(*extra)
	}
	return risk.Worst(book.ifWin, book.ifLose)
}

func (executor *Executor) repriceLive(id string, price float64) {
	executor.mu.Lock()
	defer executor.mu.Unlock()
	if lo, ok := executor.live[id]; ok {
		lo.price = price
		executor.live[id] = lo
	}
}

// Observe settles exposure bookkeeping once an order reaches a terminal status: the matched
// part joins the selection's outcomes and the rest stops counting.
func (executor *Executor) Observe(update OrderUpdate) {
	metrics.OrderUpdatesTotal.WithLabelValues(string(update.Status)).Inc()
	if !update.Status.Terminal() {
		return
	}
	executor.mu.Lock()
	defer executor.mu.Unlock()
	lo, ok := executor.live[update.OrderID]
	if !ok {
		return
	}
	delete(executor.live, update.OrderID)
	if update.SizeMatched <= 0 {
		return
	}
	price := update.AveragePriceMatched
	if price <= 0 {
		price = lo.price
	}
	ifWin, ifLose := risk.Outcome(lo.back, price, update.SizeMatched)
	book := executor.matched[lo.key]
	book.ifWin += ifWin
	book.ifLose += ifLose
	executor.matched[lo.key] = book
}

// Release forgets every order and outcome of a market once it has closed.
func (executor *Executor) Release(marketID string) {
	executor.mu.Lock()
	defer executor.mu.Unlock()
	for id, lo := range executor.live {
		if lo.key.market == marketID {
			delete(executor.live, id)
		}
	}
	for key := range executor.matched {
		if key.market == marketID {
			delete(executor.matched, key)
		}
	}
}

// Exposure returns the worst-case loss currently attributed to a selection of a market.
func (executor *Executor) Exposure(marketID string, instrumentID int64) float64 {
	executor.mu.Lock()
	defer executor.mu.Unlock()
	return executor.worstCase(selectionKey{market: marketID, sel: instrumentID}, nil)
}
