// Package risk holds the exposure guard-rails applied before an order leaves the process.
package risk

import "math"

// Limits caps the liability of a single order and the worst-case loss on one selection.
// A zero limit disables the check.
type Limits struct {
	MaxOrderExposure     float64
	MaxSelectionExposure float64
}

// Liability is the amount lost if the bet goes against the order: the stake for a back, the
// stake times (price - 1) for a lay.
func Liability(back bool, price, size float64) float64 {
	if back {
		return size
	}
	return (price - 1) * size
}

// Outcome is the profit of a matched order if its selection wins and if it loses.
func Outcome(back bool, price, size float64) (ifWin, ifLose float64) {
	if back {
		return (price - 1) * size, -size
	}
	return -(price - 1) * size, size
}

// Worst is the loss on the worse of the two results, zero when both profit.
func Worst(ifWin, ifLose float64) float64 {
	return math.Max(0, -math.Min(ifWin, ifLose))
}

// Allow reports whether an order with the given liability may move the selection's worst-case
// loss from current to next. An order that does not raise the worst case always passes, so a
// position can be flattened whatever its size.
func (l Limits) Allow(orderLiability, current, next float64) bool {
	if next <= current {
		return true
	}
	if l.MaxOrderExposure > 0 && orderLiability > l.MaxOrderExposure {
		return false
	}
	if l.MaxSelectionExposure > 0 && next > l.MaxSelectionExposure {
		return false
	}
	return true
}
