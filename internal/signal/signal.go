// Package signal standardizes payloads shared between data ingestion and strategy layers.
package signal

import "time"

// Market types the strategies trade.
const (
	MarketTypeWin   = "WIN"
	MarketTypePlace = "PLACE"
)

// Result is the settlement outcome of a selection once its market closes.
type Result string

const (
	Unsettled Result = ""
	Winner    Result = "WINNER"
	Loser     Result = "LOSER"
)

// Snapshot models the order-book view of a single selection within a market book.
// Absent prices are nil.
type Snapshot struct {
	InstrumentID int64    `json:"id"`
	BestBack     *float64 `json:"batb,omitempty"`
	BestLay      *float64 `json:"batl,omitempty"`
	LastTraded   *float64 `json:"ltp,omitempty"`
	TotalMatched *float64 `json:"tv,omitempty"`
	Result       Result   `json:"result,omitempty"`
}

// MarketMeta carries the market definition fields strategies gate on.
type MarketMeta struct {
	MarketID   string    `json:"marketId"`
	MarketType string    `json:"marketType"`
	StartTime  time.Time `json:"startTime"`
	Closed     bool      `json:"closed"`
}

// MarketBook is one published update of a market: its definition plus every runner snapshot.
type MarketBook struct {
	Meta        MarketMeta `json:"meta"`
	PublishTime time.Time  `json:"pt"`
	Runners     []Snapshot `json:"runners"`
}

// TimeToStart is the gap between the scheduled start and the publish time.
func (b MarketBook) TimeToStart() time.Duration {
	return b.Meta.StartTime.Sub(b.PublishTime)
}

// Runner returns the snapshot for instrumentID, if present.
func (b MarketBook) Runner(instrumentID int64) (Snapshot, bool) {
	for _, r := range b.Runners {
		if r.InstrumentID == instrumentID {
			return r, true
		}
	}
	return Snapshot{}, false
}

// Winners lists the selections settled as winners.
func (b MarketBook) Winners() map[int64]bool {
	out := make(map[int64]bool)
	for _, r := range b.Runners {
		if r.Result == Winner {
			out[r.InstrumentID] = true
		}
	}
	return out
}

// Direction expresses the bias derived from the moving averages.
type Direction int

const (
	None Direction = iota
	// Long expects the price to rise.
	Long
	// Short expects the price to fall.
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "none"
	}
}

// Price is a convenience for building snapshots.
func Price(v float64) *float64 { return &v }
