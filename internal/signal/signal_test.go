package signal

import (
	"testing"
	"time"
)

func TestTimeToStart(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	book := MarketBook{Meta: MarketMeta{StartTime: now.Add(90 * time.Second)}, PublishTime: now}
	if got := book.TimeToStart(); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
}

func TestRunnerLookupAndWinners(t *testing.T) {
	book := MarketBook{Runners: []Snapshot{
		{InstrumentID: 1, LastTraded: Price(2.5), Result: Loser},
		{InstrumentID: 2, LastTraded: Price(4), Result: Winner},
	}}
	snap, ok := book.Runner(2)
	if !ok || *snap.LastTraded != 4 {
		t.Fatalf("expected runner 2, got %+v", snap)
	}
	if _, ok := book.Runner(9); ok {
		t.Fatalf("unexpected runner 9")
	}
	winners := book.Winners()
	if len(winners) != 1 || !winners[2] {
		t.Fatalf("unexpected winners %+v", winners)
	}
}

func TestDirectionString(t *testing.T) {
	if Long.String() != "long" || Short.String() != "short" || None.String() != "none" {
		t.Fatalf("unexpected direction names")
	}
}
