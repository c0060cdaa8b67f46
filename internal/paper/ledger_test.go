package paper

import (
	"testing"

	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
)

func TestProfit(t *testing.T) {
	cases := []struct {
		side execution.Side
		won  bool
		want string
	}{
		{execution.Back, true, "10"},
		{execution.Back, false, "-10"},
		{execution.Lay, true, "-10"},
		{execution.Lay, false, "10"},
	}
	for _, tc := range cases {
		if got := Profit(tc.side, 2, 10, tc.won); got.String() != tc.want {
			t.Fatalf("%s won=%v: expected %s, got %s", tc.side, tc.won, tc.want, got)
		}
	}
}

func TestLedgerSettleAndReport(t *testing.T) {
	ledger := NewLedger(4)
	ledger.Record(Record{MarketID: "1.1", InstrumentID: 7, OrderID: "a", Side: execution.Lay, Price: 4, Size: 2})
	ledger.Record(Record{MarketID: "1.1", InstrumentID: 7, OrderID: "b", Side: execution.Back, Price: 4.2, Size: 2})
	ledger.Record(Record{MarketID: "1.2", InstrumentID: 9, OrderID: "c", Side: execution.Back, Price: 3, Size: 1})

	settled, profit := ledger.Settle("1.1", map[int64]bool{8: true})
	if len(settled) != 2 {
		t.Fatalf("expected 2 settled records, got %d", len(settled))
	}
	// lay 2 @ 4 on a loser +2, back 2 @ 4.2 on a loser -2
	if !profit.IsZero() {
		t.Fatalf("expected flat market, got %s", profit)
	}
	if again, _ := ledger.Settle("1.1", map[int64]bool{7: true}); len(again) != 0 {
		t.Fatalf("settled records must not settle twice")
	}
	ledger.Settle("1.2", map[int64]bool{9: true})

	report := ledger.Report()
	if len(report.Markets) != 2 || report.Markets[0].MarketID != "1.1" {
		t.Fatalf("unexpected markets %+v", report.Markets)
	}
	if report.Markets[1].Profit != 2 || report.Total != 2 {
		t.Fatalf("unexpected profit: market %.2f total %.2f", report.Markets[1].Profit, report.Total)
	}
	if ids := report.Markets[0].SelectionIDs(); len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("unexpected selections %v", ids)
	}

	ledger.Reset()
	if len(ledger.Snapshot()) != 0 {
		t.Fatalf("expected ledger reset")
	}
}
