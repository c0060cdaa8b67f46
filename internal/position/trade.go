// Package position owns the per-selection order state of a strategy: the directional trade with
// its stop-loss and take-profit rules, and the two-leg market-making quote.
package position

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
	"github.com/felixmccuaig/greyhounds-trading/internal/ladder"
	"github.com/felixmccuaig/greyhounds-trading/internal/metrics"
	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
)

var (
	// ErrMissingTrailingDistance is a configuration error: trailing stops need a distance.
	ErrMissingTrailingDistance = errors.New("trailing stop distance must be set")
	// ErrMissingStopLoss is a configuration error: fixed stops need a price.
	ErrMissingStopLoss = errors.New("fixed stop loss requires a stop price")
	// ErrNotEntered is raised when exit rules are evaluated before the entry price exists.
	ErrNotEntered = errors.New("take profit / stop loss evaluated before entry")
	// ErrUnknownOrder marks a completion for an order the position does not own.
	ErrUnknownOrder = errors.New("order does not belong to position")
)

// Exit triggers recorded on the exit order notes.
const (
	ReasonTakeProfit  = "Take profit"
	ReasonStopLoss    = "Stop loss"
	ReasonTimeout     = "timeout"
	ReasonGoingInPlay = "Going in play"
	ReasonEnter       = "Enter position"
)

// Trade is the order lifecycle capability shared by the directional and market-making strategies.
type Trade interface {
	EnterPosition(book signal.MarketBook, snap signal.Snapshot) (*execution.Action, error)
	ExitPosition(reason string) (*execution.Action, error)
	UpdatePrice(book signal.MarketBook, snap signal.Snapshot) (*execution.Action, error)
	UpdateOrders(updates []execution.OrderUpdate) (*execution.Action, error)
	IsClosed() bool
}

var (
	_ Trade = (*StopTrade)(nil)
	_ Trade = (*QuotePosition)(nil)
)

// StopLossType selects how the stop price evolves.
type StopLossType string

const (
	Fixed    StopLossType = "fixed"
	Trailing StopLossType = "trailing"
)

// State is the lifecycle stage of a StopTrade.
type State string

const (
	NoPosition State = "NO_POSITION"
	Entered    State = "ENTERED"
	Exiting    State = "EXITING"
	Closed     State = "CLOSED"
)

// DefaultOrderTimeout bounds how long an order may stay outstanding, measured in publish time.
const DefaultOrderTimeout = time.Second

// TradeParams configures a StopTrade.
type TradeParams struct {
	MarketID          string
	InstrumentID      int64
	Side              signal.Direction
	Stake             float64
	StopLossType      StopLossType
	StopLossPrice     float64
	TrailingDistance  float64
	TakeProfitPercent float64
	OrderTimeout      time.Duration
}

// StopTrade is one directional position on a selection. It keeps at most one outstanding order
// and decides entry, take-profit, stop-loss and timeout exits from the prices it is fed.
type StopTrade struct {
	params TradeParams
	log    zerolog.Logger

	orders          []*execution.Order
	outstanding     *execution.Order
	outstandingExit bool
	cancelRequested bool
	orderPlacedAt   time.Time
	lastPublish     time.Time

	entered    bool
	enterPrice float64
	takeProfit float64
	stopLoss   *float64

	ltp, bestBack, bestLay float64
	maxPrice, minPrice     *float64

	exitReason string
	exit       bool
}

// NewStopTrade validates the stop configuration and returns a trade with no position.
func NewStopTrade(params TradeParams, log zerolog.Logger) (*StopTrade, error) {
	switch params.StopLossType {
	case Trailing:
		if params.TrailingDistance <= 0 {
			return nil, ErrMissingTrailingDistance
		}
	case Fixed, "":
		params.StopLossType = Fixed
		if params.StopLossPrice <= 0 {
			return nil, ErrMissingStopLoss
		}
	}
	if params.TakeProfitPercent <= 0 {
		params.TakeProfitPercent = 0.03
	}
	if params.OrderTimeout <= 0 {
		params.OrderTimeout = DefaultOrderTimeout
	}
	t := &StopTrade{
		params: params,
		log: log.With().Str("market", params.MarketID).Int64("sel", params.InstrumentID).
			Str("side", params.Side.String()).Logger(),
	}
	if params.StopLossType == Fixed {
		stop := params.StopLossPrice
		t.stopLoss = &stop
	}
	return t, nil
}

// MarketID returns the market the trade belongs to.
func (t *StopTrade) MarketID() string { return t.params.MarketID }

// Orders returns the trade's orders in placement order.
func (t *StopTrade) Orders() []*execution.Order { return t.orders }

// Outstanding returns the order awaiting completion, if any.
func (t *StopTrade) Outstanding() *execution.Order { return t.outstanding }

// StopLoss returns the current stop price.
func (t *StopTrade) StopLoss() (float64, bool) {
	if t.stopLoss == nil {
		return 0, false
	}
	return *t.stopLoss, true
}

// TakeProfit returns the take-profit price; zero before entry.
func (t *StopTrade) TakeProfit() float64 { return t.takeProfit }

// State reports the lifecycle stage.
func (t *StopTrade) State() State {
	switch {
	case !t.entered:
		return NoPosition
	case t.IsClosed():
		return Closed
	case t.exit || t.exitReason != "":
		return Exiting
	default:
		return Entered
	}
}

// IsClosed is true once an exit has been issued and nothing is outstanding.
func (t *StopTrade) IsClosed() bool {
	return t.exit && t.outstanding == nil
}

// EnterPosition places the entry order at the last traded price: a lay when the price is
// expected to rise, a back when it is expected to fall.
func (t *StopTrade) EnterPosition(book signal.MarketBook, snap signal.Snapshot) (*execution.Action, error) {
	if t.entered {
		return nil, nil
	}
	price := t.ltp
	if snap.LastTraded != nil {
		price = *snap.LastTraded
	}
	if price <= 0 {
		return nil, nil
	}
	side := execution.Back
	if t.params.Side == signal.Long {
		side = execution.Lay
	}
	order := execution.NewOrder(t.params.MarketID, t.params.InstrumentID, side, price, t.params.Stake, book.PublishTime)
	order.Notes["trigger"] = ReasonEnter
	order.Notes["side"] = t.params.Side.String()

	t.entered = true
	t.enterPrice = price
	if t.params.Side == signal.Long {
		t.takeProfit = price + price*t.params.TakeProfitPercent
	} else {
		t.takeProfit = price - price*t.params.TakeProfitPercent
	}
	if t.params.StopLossType == Trailing && t.stopLoss == nil {
		stop := price - t.params.TrailingDistance
		if t.params.Side == signal.Short {
			stop = price + t.params.TrailingDistance
		}
		t.stopLoss = &stop
	}
	t.track(order, false, book.PublishTime)

	t.log.Info().Float64("size", t.params.Stake).Float64("px", price).Float64("tp", t.takeProfit).
		Msg("entering position")
	return execution.PlaceAction(order), nil
}

// UpdatePrice feeds one snapshot through the exit rules. The price cache is refreshed first, even
// without a last traded price. The stale-order timeout is checked before anything else, then the
// trailing stop, take profit and stop loss in that order.
func (t *StopTrade) UpdatePrice(book signal.MarketBook, snap signal.Snapshot) (*execution.Action, error) {
	t.lastPublish = book.PublishTime
	if snap.LastTraded == nil {
		t.bestBack = orDefault(snap.BestBack, t.bestBack)
		t.bestLay = orDefault(snap.BestLay, t.bestLay)
		return nil, nil
	}
	price := *snap.LastTraded
	t.ltp = price
	t.bestBack = orDefault(snap.BestBack, price)
	t.bestLay = orDefault(snap.BestLay, price)

	if t.entered && t.outstanding != nil && book.PublishTime.Sub(t.orderPlacedAt) > t.params.OrderTimeout {
		return t.expireOutstanding(), nil
	}
	if !t.entered {
		return nil, nil
	}

	if t.maxPrice == nil || price > *t.maxPrice {
		t.maxPrice = &price
	}
	if t.minPrice == nil || price < *t.minPrice {
		t.minPrice = &price
	}

	if t.params.StopLossType == Trailing {
		if err := t.updateTrailingStop(price); err != nil {
			return nil, err
		}
	}

	if t.exit {
		return nil, nil
	}
	if t.exitReason != "" {
		if t.outstanding != nil {
			return nil, nil
		}
		return t.ExitPosition(t.exitReason)
	}

	action, err := t.checkTakeProfit(price)
	if err != nil || action != nil {
		return action, err
	}
	return t.checkStopLoss(price)
}

func (t *StopTrade) expireOutstanding() *execution.Action {
	if t.cancelRequested {
		return nil
	}
	t.cancelRequested = true
	if t.exitReason == "" {
		t.exitReason = ReasonTimeout
	}
	t.log.Warn().Str("order", t.outstanding.ID).Time("placed", t.orderPlacedAt).Time("publish", t.lastPublish).
		Str("trigger", t.exitReason).Msg("cancelling outstanding order")
	return execution.CancelAction(t.outstanding.ID)
}

// ForceExit leaves the position regardless of the price rules. A resting entry order is
// cancelled first; the cash-out follows on the next call once the cancellation is reported.
// An exit order already in flight is left to complete.
func (t *StopTrade) ForceExit(reason string) (*execution.Action, error) {
	if t.outstanding == nil {
		return t.ExitPosition(reason)
	}
	if t.exitReason == "" {
		t.exitReason = reason
	}
	if t.outstandingExit {
		return nil, nil
	}
	return t.expireOutstanding(), nil
}

// updateTrailingStop keeps the stop TrailingDistance behind the price and only ever moves it in
// the trade's favour: up for a long, down for a short. Books recorded under a stop that moved the
// other way will not reproduce the same exits.
func (t *StopTrade) updateTrailingStop(price float64) error {
	if t.params.TrailingDistance <= 0 {
		return ErrMissingTrailingDistance
	}
	if t.params.Side == signal.Short {
		candidate := price + t.params.TrailingDistance
		if t.stopLoss == nil || candidate < *t.stopLoss {
			t.stopLoss = &candidate
		}
	} else {
		candidate := price - t.params.TrailingDistance
		if t.stopLoss == nil || candidate > *t.stopLoss {
			t.stopLoss = &candidate
		}
	}
	t.log.Debug().Float64("stop", *t.stopLoss).Msg("stop loss updated")
	return nil
}

func (t *StopTrade) checkTakeProfit(price float64) (*execution.Action, error) {
	if !t.entered {
		return nil, ErrNotEntered
	}
	if t.params.Side == signal.Short {
		if price <= t.takeProfit {
			return t.ExitPosition(ReasonTakeProfit)
		}
	} else if price >= t.takeProfit {
		return t.ExitPosition(ReasonTakeProfit)
	}
	return nil, nil
}

func (t *StopTrade) checkStopLoss(price float64) (*execution.Action, error) {
	if !t.entered || t.stopLoss == nil {
		return nil, ErrNotEntered
	}
	if t.params.Side == signal.Short {
		if price > *t.stopLoss {
			return t.ExitPosition(ReasonStopLoss)
		}
	} else if price < *t.stopLoss {
		return t.ExitPosition(ReasonStopLoss)
	}
	return nil, nil
}

// ExitPosition issues the cash-out order flattening every fully executed order of the trade.
// While an order is outstanding it does nothing, so repeated exit requests place one order.
func (t *StopTrade) ExitPosition(reason string) (*execution.Action, error) {
	if t.outstanding != nil || !t.entered || t.exit {
		return nil, nil
	}
	if t.exitReason == "" {
		t.exitReason = reason
	}

	var filled []*execution.Order
	for _, o := range t.orders {
		if o.Status == execution.ExecutionComplete && o.SizeMatched > 0 {
			filled = append(filled, o)
		}
	}
	ifWin, ifLose := Exposure(filled)
	side, price, stake := CashOut(ifWin, ifLose, t.bestBack, t.bestLay)
	stake = ladder.Round2(stake)

	t.exit = true
	if stake <= 0 {
		t.log.Info().Str("trigger", reason).Msg("no matched exposure, closing without exit order")
		return nil, nil
	}

	order := execution.NewOrder(t.params.MarketID, t.params.InstrumentID, side, price, stake, t.lastPublish)
	order.Notes["trigger"] = reason
	order.Notes["side"] = t.params.Side.String()
	t.track(order, true, t.lastPublish)
	metrics.ExitsTotal.WithLabelValues(reason).Inc()

	t.log.Info().Float64("size", stake).Str("exit_side", string(side)).Float64("px", price).
		Float64("entry", t.enterPrice).Str("trigger", reason).Msg("exiting position")
	return execution.PlaceAction(order), nil
}

func (t *StopTrade) track(order *execution.Order, exit bool, at time.Time) {
	t.orders = append(t.orders, order)
	t.outstanding = order
	t.outstandingExit = exit
	t.cancelRequested = false
	t.orderPlacedAt = at
}

// UpdateOrders applies status notifications to the trade's orders. When the outstanding order
// terminates its reference is released and the latest publish time becomes the new timeout
// reference; an exit that terminated short of a full fill is reopened for the residual.
func (t *StopTrade) UpdateOrders(updates []execution.OrderUpdate) (*execution.Action, error) {
	for _, u := range updates {
		order := t.find(u.OrderID)
		if order == nil {
			continue
		}
		if !order.Apply(u) {
			continue
		}
		if t.outstanding == nil || t.outstanding.ID != u.OrderID || !u.Status.Terminal() {
			continue
		}
		t.outstanding = nil
		t.cancelRequested = false
		t.orderPlacedAt = t.lastPublish
		if t.outstandingExit && !order.FullyMatched() {
			t.exit = false
			t.log.Warn().Str("order", order.ID).Float64("matched", order.SizeMatched).Float64("size", order.Size).
				Msg("exit order ended unfilled, will retry")
		}
		t.outstandingExit = false
	}
	return nil, nil
}

func (t *StopTrade) find(id string) *execution.Order {
	for _, o := range t.orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// Info is a diagnostic record of the trade.
func (t *StopTrade) Info() map[string]any {
	info := map[string]any{
		"market_id":              t.params.MarketID,
		"selection_id":           t.params.InstrumentID,
		"side":                   t.params.Side.String(),
		"state":                  string(t.State()),
		"stop_loss_type":         string(t.params.StopLossType),
		"trailing_stop_distance": t.params.TrailingDistance,
		"enter_price":            t.enterPrice,
		"take_profit_price":      t.takeProfit,
		"best_back_price":        t.bestBack,
		"best_lay_price":         t.bestLay,
		"exit_reason":            t.exitReason,
	}
	if t.stopLoss != nil {
		info["stop_loss_price"] = *t.stopLoss
	}
	if t.maxPrice != nil {
		info["max_price"] = *t.maxPrice
	}
	if t.minPrice != nil {
		info["min_price"] = *t.minPrice
	}
	return info
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
