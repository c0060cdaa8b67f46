package paper

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
)

// Record is one executed order as it appears in the blotter. Profit is set once the market
// settles.
type Record struct {
	MarketID     string         `json:"marketId"`
	InstrumentID int64          `json:"selectionId"`
	OrderID      string         `json:"orderId"`
	Side         execution.Side `json:"side"`
	Price        float64        `json:"price"`
	Size         float64        `json:"size"`
	Trigger      string         `json:"trigger,omitempty"`
	Time         time.Time      `json:"time"`
	Settled      bool           `json:"settled"`
	Won          bool           `json:"won"`
	Profit       float64        `json:"profit"`
}

// Recorder receives settled records.
type Recorder interface {
	Record(Record)
}

// Ledger stores executed orders in memory and settles them per market.
type Ledger struct {
	mu      sync.Mutex
	records []Record
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{records: make([]Record, 0, capacity)}
}

// Record appends an executed order to the ledger.
func (l *Ledger) Record(rec Record) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
}

// Settle prices every unsettled record of the market against the winning selections and
// returns the settled records with the market profit.
func (l *Ledger) Settle(marketID string, winners map[int64]bool) ([]Record, decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var (
		settled []Record
		total   decimal.Decimal
	)
	for i := range l.records {
		rec := &l.records[i]
		if rec.MarketID != marketID || rec.Settled {
			continue
		}
		profit := Profit(rec.Side, rec.Price, rec.Size, winners[rec.InstrumentID])
		rec.Settled = true
		rec.Won = winners[rec.InstrumentID]
		rec.Profit, _ = profit.Round(2).Float64()
		total = total.Add(profit)
		settled = append(settled, *rec)
	}
	return settled, total
}

// Profit is the settled result of a matched bet: a back wins (price-1)*size or loses its
// stake; a lay is the mirror image.
func Profit(side execution.Side, price, size float64, won bool) decimal.Decimal {
	stake := decimal.NewFromFloat(size)
	odds := decimal.NewFromFloat(price).Sub(decimal.NewFromInt(1))
	var profit decimal.Decimal
	if won {
		profit = odds.Mul(stake)
	} else {
		profit = stake.Neg()
	}
	if side == execution.Lay {
		profit = profit.Neg()
	}
	return profit
}

// Snapshot returns a copy of the recorded orders.
func (l *Ledger) Snapshot() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Reset clears all stored records.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.records = l.records[:0]
	l.mu.Unlock()
}

// MarketReport summarises the settled orders of one market.
type MarketReport struct {
	MarketID   string
	Profit     float64
	Selections map[int64][]Record
}

// Report is the realized profit per market and overall.
type Report struct {
	Markets []MarketReport
	Total   float64
}

// Report builds the profit report over settled records, markets in first-seen order.
func (l *Ledger) Report() Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	index := make(map[string]int)
	sums := make(map[string]decimal.Decimal)
	var (
		report Report
		total  decimal.Decimal
	)
	for _, rec := range l.records {
		if !rec.Settled {
			continue
		}
		i, ok := index[rec.MarketID]
		if !ok {
			i = len(report.Markets)
			index[rec.MarketID] = i
			report.Markets = append(report.Markets, MarketReport{MarketID: rec.MarketID, Selections: make(map[int64][]Record)})
		}
		m := &report.Markets[i]
		m.Selections[rec.InstrumentID] = append(m.Selections[rec.InstrumentID], rec)
		p := decimal.NewFromFloat(rec.Profit)
		sums[rec.MarketID] = sums[rec.MarketID].Add(p)
		total = total.Add(p)
	}
	for i := range report.Markets {
		report.Markets[i].Profit, _ = sums[report.Markets[i].MarketID].Round(2).Float64()
	}
	report.Total, _ = total.Round(2).Float64()
	return report
}

// SelectionIDs lists the selections of a market report in ascending order.
func (m MarketReport) SelectionIDs() []int64 {
	ids := make([]int64, 0, len(m.Selections))
	for id := range m.Selections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
