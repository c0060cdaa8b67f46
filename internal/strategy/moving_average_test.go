package strategy

import (
	"testing"

	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
)

func TestMovingAverageNeedsFullHistory(t *testing.T) {
	ma, err := NewMovingAverage(2, 3)
	if err != nil {
		t.Fatalf("NewMovingAverage: %v", err)
	}
	for _, px := range []float64{10, 12} {
		if got := ma.Observe(1, px); got != signal.None {
			t.Fatalf("expected no signal before the window fills, got %s", got)
		}
	}
	if _, _, ok := ma.Means(1); ok {
		t.Fatalf("means reported before the window filled")
	}
}

func TestMovingAverageEqualMeansIsNone(t *testing.T) {
	ma, _ := NewMovingAverage(2, 3)
	var got signal.Direction
	for _, px := range []float64{10, 10, 10, 12, 8} {
		got = ma.Observe(1, px)
	}
	if got != signal.None {
		t.Fatalf("expected none, got %s", got)
	}
	short, long, ok := ma.Means(1)
	if !ok || short != 10 || long != 10 {
		t.Fatalf("unexpected means short=%.2f long=%.2f ok=%v", short, long, ok)
	}
}

func TestMovingAverageShortSignal(t *testing.T) {
	ma, _ := NewMovingAverage(2, 4)
	var got signal.Direction
	// long mean 4.5, short mean 5.5, price 6 >= 5.5
	for _, px := range []float64{3, 4, 5, 6} {
		got = ma.Observe(9, px)
	}
	if got != signal.Short {
		t.Fatalf("expected short, got %s", got)
	}
}

func TestMovingAverageLongSignal(t *testing.T) {
	ma, _ := NewMovingAverage(2, 4)
	var got signal.Direction
	for _, px := range []float64{6, 5, 4, 3} {
		got = ma.Observe(9, px)
	}
	if got != signal.Long {
		t.Fatalf("expected long, got %s", got)
	}
}

func TestMovingAveragePriceMustConfirm(t *testing.T) {
	ma, _ := NewMovingAverage(2, 4)
	var got signal.Direction
	// short mean 5 above long mean 3.75 but price 4 is below it
	for _, px := range []float64{2, 3, 6, 4} {
		got = ma.Observe(9, px)
	}
	if got != signal.None {
		t.Fatalf("expected none, got %s", got)
	}
}

func TestMovingAverageEvictsOldest(t *testing.T) {
	ma, _ := NewMovingAverage(1, 2)
	for _, px := range []float64{100, 4, 6} {
		ma.Observe(3, px)
	}
	short, long, _ := ma.Means(3)
	if short != 6 || long != 5 {
		t.Fatalf("expected short=6 long=5 after eviction, got %.2f %.2f", short, long)
	}
}

func TestMovingAverageKeepsSelectionsApart(t *testing.T) {
	ma, _ := NewMovingAverage(1, 2)
	ma.Observe(1, 2)
	ma.Observe(2, 50)
	ma.Observe(1, 3)
	short, long, ok := ma.Means(1)
	if !ok || short != 3 || long != 2.5 {
		t.Fatalf("histories leaked between selections: %.2f %.2f %v", short, long, ok)
	}
	ma.Discard(1)
	if _, _, ok := ma.Means(1); ok {
		t.Fatalf("expected history discarded")
	}
}

func TestMovingAverageRejectsWindows(t *testing.T) {
	if _, err := NewMovingAverage(0, 3); err == nil {
		t.Fatalf("expected error for empty short window")
	}
	if _, err := NewMovingAverage(5, 3); err == nil {
		t.Fatalf("expected error for short window longer than long window")
	}
}
