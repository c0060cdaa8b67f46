package position

import "github.com/felixmccuaig/greyhounds-trading/internal/execution"

// PositionIfWin is the contribution of a matched order to the book if the selection wins.
func PositionIfWin(o *execution.Order) float64 {
	price, size := o.MatchedPrice(), o.SizeMatched
	switch o.Side {
	case execution.Back:
		return price * size
	case execution.Lay:
		return -price * size
	}
	return 0
}

// PositionIfLose is the contribution of a matched order to the book if the selection loses.
func PositionIfLose(o *execution.Order) float64 {
	size := o.SizeMatched
	switch o.Side {
	case execution.Back:
		return -size
	case execution.Lay:
		return size
	}
	return 0
}

// Exposure sums win and lose outcomes over orders, left to right.
func Exposure(orders []*execution.Order) (ifWin, ifLose float64) {
	for _, o := range orders {
		ifWin += PositionIfWin(o)
		ifLose += PositionIfLose(o)
	}
	return ifWin, ifLose
}

// CashOut picks the order that flattens the given exposure: a lay at the best lay price when the
// book is long the win outcome, otherwise a back at the best back price.
func CashOut(ifWin, ifLose, bestBack, bestLay float64) (execution.Side, float64, float64) {
	if ifWin > ifLose {
		return execution.Lay, bestLay, (ifWin - ifLose) / (bestLay + 1)
	}
	return execution.Back, bestBack, -(ifWin - ifLose) / (bestBack + 1)
}
