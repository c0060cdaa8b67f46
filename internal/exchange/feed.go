// Package exchange hosts the market book sources the runner consumes.
package exchange

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/felixmccuaig/greyhounds-trading/internal/ladder"
	"github.com/felixmccuaig/greyhounds-trading/internal/metrics"
	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
	"github.com/felixmccuaig/greyhounds-trading/internal/store"
)

const (
	// ProviderStub emits deterministic synthetic races (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderReplay replays books recorded in a BookStore.
	ProviderReplay = "replay"
	// ProviderStream reads JSON market books from a websocket.
	ProviderStream = "stream"
)

// Feed represents a pluggable market book source.
type Feed struct {
	provider  string
	markets   []string
	log       zerolog.Logger
	interval  time.Duration
	streamURL string
	store     *store.BookStore
	raceEvery time.Duration
	mu        sync.RWMutex
}

// Option configures Feed construction parameters.
type Option func(*Feed)

const (
	defaultInterval  = 500 * time.Millisecond
	defaultRaceEvery = 5 * time.Minute
)

// WithInterval overrides the publish cadence of the stub provider.
func WithInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithRaceEvery sets how far ahead of the first book each stub race starts.
func WithRaceEvery(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.raceEvery = d
		}
	}
}

// WithStreamURL points the stream provider at a websocket endpoint.
func WithStreamURL(url string) Option {
	return func(f *Feed) { f.streamURL = strings.TrimSpace(url) }
}

// WithStore backs the replay provider.
func WithStore(s *store.BookStore) Option {
	return func(f *Feed) { f.store = s }
}

// NewFeed constructs a feed backed by the requested provider. An empty market list means every
// market the provider offers.
func NewFeed(provider string, markets []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:  strings.ToLower(provider),
		log:       log.With().Str("provider", strings.ToLower(provider)).Logger(),
		interval:  defaultInterval,
		raceEvery: defaultRaceEvery,
	}
	f.setMarkets(markets)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetMarkets replaces the tracked market list (deduplicated, sorted for determinism).
func (f *Feed) SetMarkets(markets []string) {
	f.setMarkets(markets)
}

func (f *Feed) setMarkets(markets []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(markets))
	for _, m := range markets {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		unique[m] = struct{}{}
	}
	f.markets = f.markets[:0]
	for m := range unique {
		f.markets = append(f.markets, m)
	}
	sort.Strings(f.markets)
}

func (f *Feed) snapshotMarkets() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.markets))
	copy(out, f.markets)
	return out
}

func (f *Feed) wants(marketID string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.markets) == 0 {
		return true
	}
	i := sort.SearchStrings(f.markets, marketID)
	return i < len(f.markets) && f.markets[i] == marketID
}

// Run pushes books onto the provided channel until the context is canceled or a finite source
// is exhausted.
func (f *Feed) Run(ctx context.Context, out chan<- signal.MarketBook) error {
	switch f.provider {
	case ProviderReplay:
		return f.runReplay(ctx, out)
	case ProviderStream:
		return f.runStream(ctx, out)
	case ProviderStub:
		return f.runStub(ctx, out)
	default:
		return fmt.Errorf("unknown feed provider %q", f.provider)
	}
}

func (f *Feed) publish(ctx context.Context, out chan<- signal.MarketBook, book signal.MarketBook) error {
	select {
	case out <- book:
		metrics.BooksTotal.WithLabelValues(book.Meta.MarketType).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) runReplay(ctx context.Context, out chan<- signal.MarketBook) error {
	if f.store == nil {
		return fmt.Errorf("replay feed requires a book store")
	}
	n := 0
	err := f.store.Replay(ctx, func(book signal.MarketBook) error {
		n++
		return f.publish(ctx, out, book)
	}, f.snapshotMarkets()...)
	f.log.Info().Int("books", n).Msg("replay finished")
	return err
}

// stubRace is a synthetic six-dog race whose prices drift on a random walk along the ladder.
// Each configured market runs consecutive races under ids suffixed with the race number.
type stubRace struct {
	id      string
	start   time.Time
	rng     *rand.Rand
	ltp     []float64
	matched []float64
}

func newStubRace(id string, seed int64, start time.Time) *stubRace {
	r := &stubRace{id: id, start: start, rng: rand.New(rand.NewSource(seed))}
	for i := 0; i < 6; i++ {
		r.ltp = append(r.ltp, ladder.Round2(2+float64(i)*1.5))
		r.matched = append(r.matched, 0)
	}
	return r
}

func (r *stubRace) book(now time.Time) signal.MarketBook {
	book := signal.MarketBook{
		Meta:        signal.MarketMeta{MarketID: r.id, MarketType: signal.MarketTypeWin, StartTime: r.start},
		PublishTime: now,
	}
	if !now.Before(r.start) {
		book.Meta.Closed = true
		winner := r.rng.Intn(len(r.ltp))
		for i := range r.ltp {
			res := signal.Loser
			if i == winner {
				res = signal.Winner
			}
			book.Runners = append(book.Runners, signal.Snapshot{InstrumentID: int64(i + 1), Result: res})
		}
		return book
	}
	for i := range r.ltp {
		r.ltp[i] = math.Max(1.01, ladder.MoveTicks(r.ltp[i], r.rng.Intn(5)-2))
		r.matched[i] += float64(r.rng.Intn(40))
		ltp, matched := r.ltp[i], r.matched[i]
		back := ladder.MoveTicks(ltp, -1-r.rng.Intn(2))
		lay := ladder.MoveTicks(ltp, 1+r.rng.Intn(2))
		book.Runners = append(book.Runners, signal.Snapshot{
			InstrumentID: int64(i + 1),
			BestBack:     signal.Price(math.Max(1.01, back)),
			BestLay:      signal.Price(lay),
			LastTraded:   signal.Price(ltp),
			TotalMatched: signal.Price(matched),
		})
	}
	return book
}

func (f *Feed) runStub(ctx context.Context, out chan<- signal.MarketBook) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	races := make(map[string]*stubRace)
	rounds := make(map[string]int)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			markets := f.snapshotMarkets()
			if len(markets) == 0 {
				markets = []string{"1.0"}
			}
			for i, id := range markets {
				race := races[id]
				if race == nil {
					raceID := fmt.Sprintf("%s.%d", id, rounds[id]+1)
					race = newStubRace(raceID, int64(i+1)*7919+int64(rounds[id]), now.Add(f.raceEvery))
					races[id] = race
				}
				book := race.book(now)
				if book.Meta.Closed {
					delete(races, id)
					rounds[id]++
				}
				if err := f.publish(ctx, out, book); err != nil {
					return err
				}
			}
		}
	}
}
