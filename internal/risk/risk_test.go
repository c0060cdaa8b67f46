package risk

import (
	"math"
	"testing"
)

func TestAllow(t *testing.T) {
	limits := Limits{MaxOrderExposure: 50, MaxSelectionExposure: 80}
	if !limits.Allow(49.9, 0, 49.9) {
		t.Fatalf("expected liability under limit to pass")
	}
	if limits.Allow(50.1, 0, 50.1) {
		t.Fatalf("expected liability above order limit to fail")
	}
	if limits.Allow(40, 45, 85) {
		t.Fatalf("expected selection limit to fail")
	}
}

func TestAllowReducingOrder(t *testing.T) {
	limits := Limits{MaxOrderExposure: 5, MaxSelectionExposure: 10}
	if !limits.Allow(60, 90, 20) {
		t.Fatalf("an order lowering the worst case must pass")
	}
	if !limits.Allow(3, 18, 18) {
		t.Fatalf("an order leaving the worst case unchanged must pass")
	}
}

func TestAllowUnlimited(t *testing.T) {
	if !(Limits{}).Allow(1e9, 0, 1e9) {
		t.Fatalf("zero limits should not block")
	}
}

func TestLiability(t *testing.T) {
	if got := Liability(true, 3, 10); got != 10 {
		t.Fatalf("back liability should equal stake, got %.2f", got)
	}
	if got := Liability(false, 3, 10); got != 20 {
		t.Fatalf("lay liability should be (price-1)*stake, got %.2f", got)
	}
}

func TestOutcomeAndWorst(t *testing.T) {
	layWin, layLose := Outcome(false, 10, 2)
	backWin, backLose := Outcome(true, 9.4, 2.11)
	if layWin != -18 || layLose != 2 {
		t.Fatalf("unexpected lay outcome %.2f/%.2f", layWin, layLose)
	}
	if got := Worst(layWin, layLose); got != 18 {
		t.Fatalf("expected worst 18, got %.2f", got)
	}
	// backing the laid selection hedges both results
	win, lose := layWin+backWin, layLose+backLose
	if got := Worst(win, lose); math.Abs(got-0.276) > 1e-9 {
		t.Fatalf("expected hedged worst 0.276, got %.4f", got)
	}
	if Worst(1, 2) != 0 {
		t.Fatalf("a book profiting on both results has no loss")
	}
}
