// Package engine drives a strategy: it feeds market books and order updates through it on one
// goroutine and routes the resulting actions to the venue.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
	"github.com/felixmccuaig/greyhounds-trading/internal/strategy"
)

// BookObserver is told about every book before the strategy sees it. The paper venue uses it
// to match resting orders and settle closed markets.
type BookObserver interface {
	ObserveBook(book signal.MarketBook)
}

// Archive persists books as they arrive.
type Archive interface {
	Append(ctx context.Context, book signal.MarketBook) error
}

// Stats counts what a runner has processed.
type Stats struct {
	Books    int
	Updates  int
	Actions  int
	Rejected int
}

// Runner serialises books and order updates for a single strategy instance.
type Runner struct {
	log      zerolog.Logger
	strat    strategy.Strategy
	exec     *execution.Executor
	venue    execution.Venue
	observer BookObserver
	archive  Archive

	// lapses for placements the executor refused, delivered with the next batch of updates
	pending []execution.OrderUpdate
	stats   Stats
}

// Option customises a Runner.
type Option func(*Runner)

// WithObserver registers a component that sees each book ahead of the strategy.
func WithObserver(o BookObserver) Option { return func(r *Runner) { r.observer = o } }

// WithArchive records each book before it is processed.
func WithArchive(a Archive) Option { return func(r *Runner) { r.archive = a } }

// New wires a strategy to an executor and the venue whose updates it consumes.
func New(log zerolog.Logger, strat strategy.Strategy, exec *execution.Executor, venue execution.Venue, opts ...Option) *Runner {
	r := &Runner{
		log:   log.With().Str("strategy", strat.Name()).Logger(),
		strat: strat,
		exec:  exec,
		venue: venue,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns the counters accumulated so far.
func (r *Runner) Stats() Stats { return r.stats }

// Run consumes books until the channel is closed or the context ends. Order updates arriving
// between books are handled as they come.
func (r *Runner) Run(ctx context.Context, books <-chan signal.MarketBook) error {
	updates := r.venue.Updates()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case book, ok := <-books:
			if !ok {
				r.handleUpdates(ctx, r.collect())
				r.log.Info().Int("books", r.stats.Books).Int("updates", r.stats.Updates).
					Int("actions", r.stats.Actions).Int("rejected", r.stats.Rejected).Msg("book source exhausted")
				return nil
			}
			r.HandleBook(ctx, book)
		case u := <-updates:
			r.handleUpdates(ctx, append([]execution.OrderUpdate{u}, r.collect()...))
		}
	}
}

// HandleBook runs one book through the pipeline: archive, venue matching, pending order
// updates, then the strategy. A closed market releases its exposure.
func (r *Runner) HandleBook(ctx context.Context, book signal.MarketBook) {
	r.stats.Books++
	if r.archive != nil {
		if err := r.archive.Append(ctx, book); err != nil {
			r.log.Error().Err(err).Str("market", book.Meta.MarketID).Msg("archive book")
		}
	}
	if r.observer != nil {
		r.observer.ObserveBook(book)
	}
	r.handleUpdates(ctx, r.collect())

	actions, ok := r.strat.CheckMarketBook(book)
	r.dispatch(ctx, actions, book.PublishTime)
	if book.Meta.Closed {
		r.exec.Release(book.Meta.MarketID)
	}
	if !ok {
		return
	}
	r.dispatch(ctx, r.strat.ProcessMarketBook(book), book.PublishTime)
}

// collect drains whatever the venue has queued without blocking, plus any synthesized lapses.
func (r *Runner) collect() []execution.OrderUpdate {
	out := r.pending
	r.pending = nil
	updates := r.venue.Updates()
	for {
		select {
		case u := <-updates:
			out = append(out, u)
		default:
			return out
		}
	}
}

func (r *Runner) handleUpdates(ctx context.Context, updates []execution.OrderUpdate) {
	if len(updates) == 0 {
		return
	}
	r.stats.Updates += len(updates)
	for _, u := range updates {
		r.exec.Observe(u)
	}
	at := updates[len(updates)-1].Time
	r.dispatch(ctx, r.strat.ProcessOrders(updates), at)
}

func (r *Runner) dispatch(ctx context.Context, actions []execution.Action, at time.Time) {
	for i := range actions {
		action := &actions[i]
		r.stats.Actions++
		err := r.exec.Dispatch(ctx, action)
		if err == nil {
			continue
		}
		if action.Kind == execution.Place && action.Order != nil {
			if errors.Is(err, execution.ErrRiskRejected) {
				r.stats.Rejected++
			} else {
				r.log.Error().Err(err).Str("order", action.OrderID).Msg("place order")
			}
			// reported back as an expiry on the next batch
			r.pending = append(r.pending, action.Order.Lapse(at))
			continue
		}
		r.log.Warn().Err(err).Str("kind", action.Kind.String()).Str("order", action.OrderID).Msg("dispatch action")
	}
}
