package position

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
	"github.com/felixmccuaig/greyhounds-trading/internal/ladder"
	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
)

// Quote triggers recorded on market-making orders.
const (
	ReasonBackQuote = "Back quote"
	ReasonLayHedge  = "Lay hedge"
)

// QuoteParams configures a QuotePosition.
type QuoteParams struct {
	MarketID             string
	InstrumentID         int64
	Stake                float64
	PriceAdjustmentTicks int
	Ladder               ladder.Ladder
}

// QuotePosition is a back quote resting inside the spread followed, once fully matched, by a lay
// hedge one tick outside the best back. The lay leg never exists before the back leg is filled.
type QuotePosition struct {
	params QuoteParams
	log    zerolog.Logger

	back, lay         *execution.Order
	bestBack, bestLay *float64
	lastBook          signal.MarketBook
	closed            bool
	completed         bool
}

// NewQuotePosition returns an empty quote for one selection.
func NewQuotePosition(params QuoteParams, log zerolog.Logger) *QuotePosition {
	if params.PriceAdjustmentTicks <= 0 {
		params.PriceAdjustmentTicks = 1
	}
	if len(params.Ladder.Bands()) == 0 {
		params.Ladder = ladder.Default
	}
	return &QuotePosition{
		params: params,
		log:    log.With().Str("market", params.MarketID).Int64("sel", params.InstrumentID).Logger(),
	}
}

// Back returns the back leg, nil before entry.
func (q *QuotePosition) Back() *execution.Order { return q.back }

// Lay returns the lay leg, nil until the back leg is filled.
func (q *QuotePosition) Lay() *execution.Order { return q.lay }

// IsClosed is true once the round trip completed or the position was abandoned.
func (q *QuotePosition) IsClosed() bool { return q.closed }

// Completed reports whether both legs were fully matched.
func (q *QuotePosition) Completed() bool { return q.completed }

// Owns reports whether orderID is one of the legs.
func (q *QuotePosition) Owns(orderID string) bool {
	return (q.back != nil && q.back.ID == orderID) || (q.lay != nil && q.lay.ID == orderID)
}

// Observe refreshes the cached best prices without acting on them.
func (q *QuotePosition) Observe(book signal.MarketBook, snap signal.Snapshot) {
	q.bestBack = snap.BestBack
	q.bestLay = snap.BestLay
	q.lastBook = book
}

// EnterPosition places the back quote one tick inside the best lay price.
func (q *QuotePosition) EnterPosition(book signal.MarketBook, snap signal.Snapshot) (*execution.Action, error) {
	q.Observe(book, snap)
	if q.back != nil || q.closed || q.bestLay == nil {
		return nil, nil
	}
	lay := *q.bestLay
	price := ladder.Round2(lay - q.params.Ladder.TickSize(lay))
	order := execution.NewOrder(q.params.MarketID, q.params.InstrumentID, execution.Back, price, q.params.Stake, book.PublishTime)
	order.Notes["trigger"] = ReasonBackQuote
	q.back = order
	q.log.Info().Float64("px", price).Float64("best_lay", lay).Msg("placed back quote")
	return execution.PlaceAction(order), nil
}

// UpdatePrice moves a resting leg towards the opposing best price, never to a worse price than
// it already has.
func (q *QuotePosition) UpdatePrice(book signal.MarketBook, snap signal.Snapshot) (*execution.Action, error) {
	q.Observe(book, snap)
	if q.closed {
		return nil, nil
	}
	adj := q.params.PriceAdjustmentTicks
	switch {
	case q.back != nil && q.back.Status == execution.Executable:
		if q.bestLay == nil {
			return nil, nil
		}
		next := math.Min(q.back.Price, q.params.Ladder.MoveTicks(*q.bestLay, -adj))
		return q.reprice(q.back, next), nil
	case q.lay != nil && q.lay.Status == execution.Executable:
		if q.bestBack == nil {
			return nil, nil
		}
		next := math.Max(q.lay.Price, q.params.Ladder.MoveTicks(*q.bestBack, adj))
		return q.reprice(q.lay, next), nil
	}
	return nil, nil
}

func (q *QuotePosition) reprice(order *execution.Order, price float64) *execution.Action {
	if price == order.Price {
		return nil
	}
	q.log.Info().Str("leg", string(order.Side)).Float64("from", order.Price).Float64("to", price).Msg("updated order price")
	return execution.AmendAction(order, price)
}

// UpdateOrders sequences the legs: a filled back leg triggers the lay hedge, a filled lay leg
// closes the position. Missing liquidity or a leg that ends unfilled abandons the position.
func (q *QuotePosition) UpdateOrders(updates []execution.OrderUpdate) (*execution.Action, error) {
	var (
		action *execution.Action
		err    error
	)
	for _, u := range updates {
		switch {
		case q.back != nil && u.OrderID == q.back.ID:
			if !q.back.Apply(u) || !u.Status.Terminal() || q.closed {
				continue
			}
			if !q.back.FullyMatched() {
				q.abandon("back quote ended unfilled")
				continue
			}
			if a := q.placeLay(); a != nil {
				action = a
			}
		case q.lay != nil && u.OrderID == q.lay.ID:
			if !q.lay.Apply(u) || !u.Status.Terminal() || q.closed {
				continue
			}
			if q.lay.FullyMatched() {
				q.completed = true
				q.closed = true
				q.log.Info().Float64("back_px", q.back.MatchedPrice()).Float64("lay_px", q.lay.MatchedPrice()).
					Msg("completed full trade")
			} else {
				q.abandon("lay hedge ended unfilled")
			}
		default:
			if u.Status == execution.ExecutionComplete {
				err = ErrUnknownOrder
			}
		}
	}
	return action, err
}

func (q *QuotePosition) placeLay() *execution.Action {
	if q.lay != nil {
		return nil
	}
	if q.bestBack == nil {
		q.abandon("no back prices available")
		return nil
	}
	tickRef := *q.bestBack
	if q.bestLay != nil {
		tickRef = *q.bestLay
	}
	price := ladder.Round2(*q.bestBack + q.params.Ladder.TickSize(tickRef))
	order := execution.NewOrder(q.params.MarketID, q.params.InstrumentID, execution.Lay, price, q.params.Stake, q.lastBook.PublishTime)
	order.Notes["trigger"] = ReasonLayHedge
	q.lay = order
	q.log.Info().Float64("px", price).Msg("placed lay order")
	return execution.PlaceAction(order)
}

func (q *QuotePosition) abandon(why string) {
	q.closed = true
	q.log.Warn().Str("why", why).Msg("abandoning position")
}

// ExitPosition abandons the quote, cancelling whichever leg is still resting.
func (q *QuotePosition) ExitPosition(reason string) (*execution.Action, error) {
	if q.closed {
		return nil, nil
	}
	q.abandon(reason)
	for _, leg := range []*execution.Order{q.lay, q.back} {
		if leg != nil && !leg.Status.Terminal() {
			return execution.CancelAction(leg.ID), nil
		}
	}
	return nil, nil
}
