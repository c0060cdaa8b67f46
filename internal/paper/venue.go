// Package paper simulates an exchange for dry runs and backtests: a venue that matches resting
// orders against observed books, a blotter of executed orders, and a settled bankroll.
package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
	"github.com/felixmccuaig/greyhounds-trading/internal/risk"
	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
)

// ErrUnknownOrder is returned when amending or cancelling an order that is not resting.
var ErrUnknownOrder = errors.New("order is not live")

const defaultUpdateBuffer = 1024

type liveOrder struct {
	order *execution.Order
	seq   uint64
}

// Venue is a simulated exchange. Orders rest until an observed book crosses them and then fill
// in full at their limit price. Closed markets with results are settled into the ledger and the
// account.
type Venue struct {
	log      zerolog.Logger
	account  *Account
	ledger   *Ledger
	recorder Recorder
	buffer   int

	mu      sync.Mutex
	seq     uint64
	live    map[string]*liveOrder
	books   map[string]signal.MarketBook
	settled map[string]bool
	backlog []execution.OrderUpdate
	updates chan execution.OrderUpdate
}

// Option customises a Venue.
type Option func(*Venue)

// WithRecorder forwards settled records to r.
func WithRecorder(r Recorder) Option { return func(v *Venue) { v.recorder = r } }

// WithUpdateBuffer sizes the update channel.
func WithUpdateBuffer(n int) Option { return func(v *Venue) { v.buffer = n } }

// NewVenue builds a venue over an account and a ledger; nil arguments get empty defaults.
func NewVenue(log zerolog.Logger, account *Account, ledger *Ledger, opts ...Option) *Venue {
	if account == nil {
		account = NewAccount(0)
	}
	if ledger == nil {
		ledger = NewLedger(0)
	}
	v := &Venue{
		log:     log.With().Str("venue", "paper").Logger(),
		account: account,
		ledger:  ledger,
		buffer:  defaultUpdateBuffer,
		live:    make(map[string]*liveOrder),
		books:   make(map[string]signal.MarketBook),
		settled: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.buffer <= 0 {
		v.buffer = defaultUpdateBuffer
	}
	v.updates = make(chan execution.OrderUpdate, v.buffer)
	return v
}

// Account returns the bankroll behind the venue.
func (v *Venue) Account() *Account { return v.account }

// Ledger returns the blotter of executed orders.
func (v *Venue) Ledger() *Ledger { return v.ledger }

// Updates delivers order status notifications in the order they happened.
func (v *Venue) Updates() <-chan execution.OrderUpdate { return v.updates }

// Place accepts an order. Acceptance and any immediate match against the latest book of the
// market are reported on Updates; an order the bankroll cannot cover is reported as expired.
func (v *Venue) Place(ctx context.Context, order execution.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if order.Price <= 1 || order.Size <= 0 {
		return fmt.Errorf("invalid order %s: price %.2f size %.2f", order.ID, order.Price, order.Size)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, dup := v.live[order.ID]; dup {
		return fmt.Errorf("duplicate order id %s", order.ID)
	}
	o := order
	o.Notes = copyNotes(order.Notes)
	at := v.clock(o.MarketID, o.PlacedAt)
	liability := risk.Liability(o.Side == execution.Back, o.Price, o.Size)
	if err := v.account.Reserve(o.MarketID, o.ID, liability); err != nil {
		v.log.Warn().Err(err).Str("order", o.ID).Float64("liability", liability).Msg("order lapsed")
		v.emit(o.Lapse(at))
		return nil
	}

	o.Status = execution.Executable
	v.seq++
	v.live[o.ID] = &liveOrder{order: &o, seq: v.seq}
	v.emit(update(&o, at))
	if book, ok := v.books[o.MarketID]; ok {
		v.match(&o, book)
	}
	v.flush()
	return nil
}

// Amend moves a resting order to a new price and re-checks it against the latest book.
func (v *Venue) Amend(ctx context.Context, orderID string, price float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	lo, ok := v.live[orderID]
	if !ok {
		return ErrUnknownOrder
	}
	o := lo.order
	if price <= 1 {
		return fmt.Errorf("invalid price %.2f for %s", price, orderID)
	}
	if err := v.account.Reserve(o.MarketID, o.ID, risk.Liability(o.Side == execution.Back, price, o.Size)); err != nil {
		return err
	}
	o.Price = price
	v.emit(update(o, v.clock(o.MarketID, o.PlacedAt)))
	if book, ok := v.books[o.MarketID]; ok {
		v.match(o, book)
	}
	v.flush()
	return nil
}

// Cancel removes the unmatched remainder. The order completes with whatever had matched.
func (v *Venue) Cancel(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	lo, ok := v.live[orderID]
	if !ok {
		return ErrUnknownOrder
	}
	o := lo.order
	delete(v.live, orderID)
	o.Status = execution.ExecutionComplete
	if o.SizeMatched <= 0 {
		v.account.Release(o.ID)
	}
	v.emit(update(o, v.clock(o.MarketID, o.PlacedAt)))
	v.flush()
	return nil
}

// ObserveBook matches resting orders of the book's market. A closed market has its remaining
// orders lapsed and, once results are present, is settled.
func (v *Venue) ObserveBook(book signal.MarketBook) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.flush()

	market := book.Meta.MarketID
	v.books[market] = book
	for _, o := range v.resting(market) {
		if book.Meta.Closed {
			delete(v.live, o.ID)
			if o.SizeMatched <= 0 {
				v.account.Release(o.ID)
			}
			v.emit(o.Lapse(book.PublishTime))
			continue
		}
		v.match(o, book)
	}
	if book.Meta.Closed {
		winners := book.Winners()
		if len(winners) > 0 && !v.settled[market] {
			v.settle(market, winners)
		}
		delete(v.books, market)
	}
	v.flush()
}

func (v *Venue) settle(market string, winners map[int64]bool) {
	records, profit := v.ledger.Settle(market, winners)
	v.account.Settle(market, profit)
	v.settled[market] = true
	if v.recorder != nil {
		for _, rec := range records {
			v.recorder.Record(rec)
		}
		if f, ok := v.recorder.(interface{ Flush() error }); ok {
			if err := f.Flush(); err != nil {
				v.log.Error().Err(err).Msg("flush blotter")
			}
		}
	}
	pnl, _ := profit.Round(2).Float64()
	v.log.Info().Str("market", market).Int("orders", len(records)).Float64("profit", pnl).Msg("market settled")
}

func (v *Venue) resting(market string) []*execution.Order {
	var orders []*liveOrder
	for _, lo := range v.live {
		if lo.order.MarketID == market {
			orders = append(orders, lo)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].seq < orders[j].seq })
	out := make([]*execution.Order, len(orders))
	for i, lo := range orders {
		out[i] = lo.order
	}
	return out
}

func (v *Venue) match(o *execution.Order, book signal.MarketBook) {
	snap, ok := book.Runner(o.InstrumentID)
	if !ok || !crosses(o, snap) {
		return
	}
	delete(v.live, o.ID)
	o.Status = execution.ExecutionComplete
	o.SizeMatched = o.Size
	o.AveragePriceMatched = o.Price
	v.ledger.Record(Record{
		MarketID:     o.MarketID,
		InstrumentID: o.InstrumentID,
		OrderID:      o.ID,
		Side:         o.Side,
		Price:        o.AveragePriceMatched,
		Size:         o.SizeMatched,
		Trigger:      o.Notes["trigger"],
		Time:         book.PublishTime,
	})
	v.log.Debug().Str("order", o.ID).Str("side", string(o.Side)).Float64("px", o.Price).Float64("size", o.Size).
		Msg("order matched")
	v.emit(update(o, book.PublishTime))
}

// crosses reports whether the book trades through the order: a back is matched once backers
// can get at least its price, a lay once layers can get at most its price.
func crosses(o *execution.Order, snap signal.Snapshot) bool {
	if o.Side == execution.Back {
		return atLeast(snap.BestBack, o.Price) || atLeast(snap.LastTraded, o.Price)
	}
	return atMost(snap.BestLay, o.Price) || atMost(snap.LastTraded, o.Price)
}

func atLeast(v *float64, price float64) bool { return v != nil && *v >= price }
func atMost(v *float64, price float64) bool { return v != nil && *v <= price }

func (v *Venue) clock(market string, fallback time.Time) time.Time {
	if book, ok := v.books[market]; ok {
		return book.PublishTime
	}
	return fallback
}

func (v *Venue) emit(u execution.OrderUpdate) {
	v.backlog = append(v.backlog, u)
	v.flush()
}

// flush moves queued updates into the channel without blocking; whatever does not fit waits
// for the next venue call.
func (v *Venue) flush() {
	for len(v.backlog) > 0 {
		select {
		case v.updates <- v.backlog[0]:
			v.backlog = v.backlog[1:]
		default:
			return
		}
	}
}

func update(o *execution.Order, at time.Time) execution.OrderUpdate {
	return execution.OrderUpdate{
		OrderID:             o.ID,
		MarketID:            o.MarketID,
		InstrumentID:        o.InstrumentID,
		Status:              o.Status,
		AveragePriceMatched: o.AveragePriceMatched,
		SizeMatched:         o.SizeMatched,
		Time:                at,
	}
}

func copyNotes(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, val := range in {
		out[k] = val
	}
	return out
}
