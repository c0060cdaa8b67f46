package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Side enumerates the two sides of a bet.
type Side string

const (
	// Back profits if the selection wins.
	Back Side = "BACK"
	// Lay profits if the selection does not win.
	Lay Side = "LAY"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Back {
		return Lay
	}
	return Back
}

// Status mirrors the exchange order lifecycle.
type Status string

const (
	Pending           Status = "PENDING"
	Executable        Status = "EXECUTABLE"
	ExecutionComplete Status = "EXECUTION_COMPLETE"
	Expired           Status = "EXPIRED"
)

// Terminal reports whether no further matching can happen.
func (s Status) Terminal() bool {
	return s == ExecutionComplete || s == Expired
}

const sizeEpsilon = 1e-9

// Order is the core's copy of a limit order. The venue owns the live order; the copy is kept in
// step through OrderUpdate notifications.
type Order struct {
	ID                  string            `json:"id"`
	MarketID            string            `json:"marketId"`
	InstrumentID        int64             `json:"selectionId"`
	Side                Side              `json:"side"`
	Price               float64           `json:"price"`
	Size                float64           `json:"size"`
	Status              Status            `json:"status"`
	AveragePriceMatched float64           `json:"averagePriceMatched"`
	SizeMatched         float64           `json:"sizeMatched"`
	Notes               map[string]string `json:"notes,omitempty"`
	PlacedAt            time.Time         `json:"placedAt"`
}

// NewOrder builds a pending limit order with a fresh id.
func NewOrder(marketID string, instrumentID int64, side Side, price, size float64, placedAt time.Time) *Order {
	return &Order{
		ID:           uuid.NewString(),
		MarketID:     marketID,
		InstrumentID: instrumentID,
		Side:         side,
		Price:        price,
		Size:         size,
		Status:       Pending,
		Notes:        make(map[string]string),
		PlacedAt:     placedAt,
	}
}

// Apply copies the matched state of an update onto the order. Updates arriving after the order
// reached a terminal status are ignored and Apply returns false.
func (o *Order) Apply(u OrderUpdate) bool {
	if o.Status.Terminal() {
		return false
	}
	o.Status = u.Status
	o.SizeMatched = u.SizeMatched
	if u.AveragePriceMatched > 0 {
		o.AveragePriceMatched = u.AveragePriceMatched
	}
	return true
}

// FullyMatched reports whether the whole requested size has been matched.
func (o *Order) FullyMatched() bool {
	return o.Status == ExecutionComplete && o.SizeMatched+sizeEpsilon >= o.Size
}

// MatchedPrice is the average matched price, or the limit price when nothing has been
// reported yet.
func (o *Order) MatchedPrice() float64 {
	if o.AveragePriceMatched > 0 {
		return o.AveragePriceMatched
	}
	return o.Price
}

// Lapse reports the order as expired without any match, used when a placement never reached
// the venue.
func (o *Order) Lapse(at time.Time) OrderUpdate {
	return OrderUpdate{
		OrderID:      o.ID,
		MarketID:     o.MarketID,
		InstrumentID: o.InstrumentID,
		Status:       Expired,
		Time:         at,
	}
}

// OrderUpdate is an asynchronous status notification from the venue.
type OrderUpdate struct {
	OrderID             string    `json:"id"`
	MarketID            string    `json:"marketId"`
	InstrumentID        int64     `json:"selectionId"`
	Status              Status    `json:"status"`
	AveragePriceMatched float64   `json:"averagePriceMatched"`
	SizeMatched         float64   `json:"sizeMatched"`
	Time                time.Time `json:"time"`
}

// ActionKind distinguishes the requests a strategy can make of the venue.
type ActionKind int

const (
	Place ActionKind = iota
	Amend
	Cancel
)

func (k ActionKind) String() string {
	switch k {
	case Amend:
		return "amend"
	case Cancel:
		return "cancel"
	default:
		return "place"
	}
}

// Action is an order request emitted by a strategy.
type Action struct {
	Kind    ActionKind
	Order   *Order
	OrderID string
	Price   float64
}

// PlaceAction wraps an order placement.
func PlaceAction(o *Order) *Action { return &Action{Kind: Place, Order: o, OrderID: o.ID} }

// AmendAction requests a new price for a resting order. The order keeps its current price until
// the venue has accepted the amendment.
func AmendAction(o *Order, price float64) *Action {
	return &Action{Kind: Amend, Order: o, OrderID: o.ID, Price: price}
}

// CancelAction requests cancellation of the unmatched remainder of an order.
func CancelAction(id string) *Action { return &Action{Kind: Cancel, OrderID: id} }

// Venue accepts order requests without blocking on their outcome; results are delivered on
// Updates.
type Venue interface {
	Place(ctx context.Context, order Order) error
	Amend(ctx context.Context, orderID string, price float64) error
	Cancel(ctx context.Context, orderID string) error
	Updates() <-chan OrderUpdate
}
