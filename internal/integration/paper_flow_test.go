package integration

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/felixmccuaig/greyhounds-trading/internal/engine"
	"github.com/felixmccuaig/greyhounds-trading/internal/exchange"
	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
	"github.com/felixmccuaig/greyhounds-trading/internal/paper"
	"github.com/felixmccuaig/greyhounds-trading/internal/risk"
	sig "github.com/felixmccuaig/greyhounds-trading/internal/signal"
	"github.com/felixmccuaig/greyhounds-trading/internal/store"
	"github.com/felixmccuaig/greyhounds-trading/internal/strategy"
)

// syncBuffer lets the runner goroutine log while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPaperFlowProducesOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	feed := exchange.NewFeed(exchange.ProviderStub, []string{"1.77"}, zerolog.Nop(), exchange.WithInterval(5*time.Millisecond))
	books := make(chan sig.MarketBook, 8)
	go func() {
		_ = feed.Run(ctx, books)
	}()

	var buf syncBuffer
	logger := zerolog.New(&buf)
	strat, err := strategy.Build("market_making", strategy.Params{QuoteStake: 1}, logger)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	venue := paper.NewVenue(logger, paper.NewAccount(1000), nil)
	exec := execution.NewExecutor(logger, venue, risk.Limits{MaxOrderExposure: 20})
	runner := engine.New(logger, strat, exec, venue, engine.WithObserver(venue))

	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx, books) }()

	for {
		if strings.Contains(buf.String(), "submit order") {
			if !strings.Contains(buf.String(), `"trigger":"Back quote"`) {
				t.Fatalf("expected back quote trigger in log output, got %s", buf.String())
			}
			cancel()
			<-done
			if venue.Account().Snapshot().Reserved <= 0 && len(venue.Ledger().Snapshot()) == 0 {
				t.Fatalf("expected the quote to reserve funds or fill")
			}
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("timed out waiting for integration flow")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestReplayedRoundTripSettles(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "books.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	off := time.Date(2024, 3, 9, 19, 30, 0, 0, time.UTC)
	quote := func(at time.Duration, back, lay, ltp float64) sig.MarketBook {
		return sig.MarketBook{
			Meta:        sig.MarketMeta{MarketID: "1.50", MarketType: sig.MarketTypeWin, StartTime: off},
			PublishTime: off.Add(at),
			Runners: []sig.Snapshot{{
				InstrumentID: 7,
				BestBack:     sig.Price(back),
				BestLay:      sig.Price(lay),
				LastTraded:   sig.Price(ltp),
				TotalMatched: sig.Price(500),
			}},
		}
	}
	closed := sig.MarketBook{
		Meta:        sig.MarketMeta{MarketID: "1.50", MarketType: sig.MarketTypeWin, StartTime: off, Closed: true},
		PublishTime: off.Add(time.Minute),
		Runners:     []sig.Snapshot{{InstrumentID: 7, Result: sig.Winner}},
	}
	for _, b := range []sig.MarketBook{
		// back quote rests at 3.15, one tick inside the best lay
		quote(-300*time.Second, 3.0, 3.2, 3.1),
		// best back reaches 3.15 and fills it; the lay hedge goes in at 3.05
		quote(-290*time.Second, 3.15, 3.25, 3.15),
		// best lay drops to 3.05 and fills the hedge
		quote(-280*time.Second, 3.0, 3.05, 3.05),
		closed,
	} {
		if err := s.Append(ctx, b); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	feed := exchange.NewFeed(exchange.ProviderReplay, nil, zerolog.Nop(), exchange.WithStore(s))
	books := make(chan sig.MarketBook)
	go func() {
		if err := feed.Run(ctx, books); err != nil {
			t.Errorf("replay: %v", err)
		}
		close(books)
	}()

	strat, err := strategy.Build("mm", strategy.Params{QuoteStake: 2}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	account := paper.NewAccount(100)
	venue := paper.NewVenue(zerolog.Nop(), account, nil)
	exec := execution.NewExecutor(zerolog.Nop(), venue, risk.Limits{})
	runner := engine.New(zerolog.Nop(), strat, exec, venue, engine.WithObserver(venue))
	if err := runner.Run(ctx, books); err != nil {
		t.Fatalf("run: %v", err)
	}

	report := venue.Ledger().Report()
	if len(report.Markets) != 1 {
		t.Fatalf("expected one settled market, got %+v", report.Markets)
	}
	records := report.Markets[0].Selections[7]
	if len(records) != 2 {
		t.Fatalf("expected back and lay records, got %+v", records)
	}
	if records[0].Side != execution.Back || records[0].Price != 3.15 {
		t.Fatalf("unexpected back leg %+v", records[0])
	}
	if records[1].Side != execution.Lay || records[1].Price != 3.05 {
		t.Fatalf("unexpected lay leg %+v", records[1])
	}
	// (3.15-1)*2 won on the back, (3.05-1)*2 lost on the lay
	if diff := report.Total - 0.2; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected total 0.20, got %.4f", report.Total)
	}
	if snap := account.Snapshot(); snap.Reserved != 0 || snap.Balance < 100.19 || snap.Balance > 100.21 {
		t.Fatalf("unexpected account %+v", snap)
	}
	if stats := runner.Stats(); stats.Actions != 2 || stats.Rejected != 0 {
		t.Fatalf("unexpected runner stats %+v", stats)
	}
}
