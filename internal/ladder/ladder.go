// Package ladder converts exchange prices to and from tick units over the non-uniform
// price increment table.
package ladder

import (
	"math"

	"github.com/shopspring/decimal"
)

// FallbackIncrement applies to prices outside every band.
const FallbackIncrement = 0.01

// Band is a price range and the increment traded inside it.
type Band struct {
	Low       float64
	High      float64
	Increment float64
}

// Ladder is an ordered, non-overlapping set of bands. It is never mutated after construction
// and is safe to share between goroutines.
type Ladder struct {
	bands []Band
}

// Default is the exchange price ladder between 1.01 and 1000.
var Default = New([]Band{
	{1.01, 2, 0.01},
	{2, 3, 0.02},
	{3, 4, 0.05},
	{4, 6, 0.1},
	{6, 10, 0.2},
	{10, 20, 0.5},
	{20, 30, 1},
	{30, 50, 2},
	{50, 100, 5},
	{100, 1000, 10},
})

// New copies bands into a Ladder.
func New(bands []Band) Ladder {
	out := make([]Band, len(bands))
	copy(out, bands)
	return Ladder{bands: out}
}

// Bands returns a copy of the ladder table.
func (l Ladder) Bands() []Band {
	out := make([]Band, len(l.bands))
	copy(out, l.bands)
	return out
}

// TickSize returns the increment of the band with Low <= price < High.
func (l Ladder) TickSize(price float64) float64 {
	for _, b := range l.bands {
		if b.Low <= price && price < b.High {
			return b.Increment
		}
	}
	return FallbackIncrement
}

// NextTick returns the price one tick above price.
func (l Ladder) NextTick(price float64) float64 {
	return Round2(price + l.TickSize(price))
}

// PreviousTick returns the price one tick below price. Bands are matched as Low < price <= High,
// so a price sitting on a boundary steps down with the lower band's increment.
func (l Ladder) PreviousTick(price float64) float64 {
	for i := len(l.bands) - 1; i >= 0; i-- {
		b := l.bands[i]
		if b.Low < price && price <= b.High {
			return Round2(price - b.Increment)
		}
	}
	return Round2(price - FallbackIncrement)
}

// MoveTicks walks |ticks| single steps up (ticks > 0) or down (ticks < 0). Each step
// re-derives the tick size from the price reached so far.
func (l Ladder) MoveTicks(price float64, ticks int) float64 {
	for i := 0; i < abs(ticks); i++ {
		if ticks > 0 {
			price = l.NextTick(price)
		} else {
			price = l.PreviousTick(price)
		}
	}
	return price
}

// SpreadInTicks approximates the back/lay gap as floor(lay/tick - back/tick) using the tick
// size at the lay price. It returns 0 when either side of the book is empty.
func (l Ladder) SpreadInTicks(bestBack, bestLay *float64) int {
	if bestBack == nil || bestLay == nil {
		return 0
	}
	tick := l.TickSize(*bestLay)
	return int(math.Floor(*bestLay/tick - *bestBack/tick))
}

// Round2 rounds x to two decimal places. All price arithmetic goes through it so that
// boundary comparisons see identical values.
func Round2(x float64) float64 {
	f, _ := decimal.NewFromFloat(x).Round(2).Float64()
	return f
}

// Helpers below operate on Default.

func TickSize(price float64) float64 { return Default.TickSize(price) }
func NextTick(price float64) float64 { return Default.NextTick(price) }
func PreviousTick(price float64) float64 { return Default.PreviousTick(price) }
func MoveTicks(price float64, ticks int) float64 { return Default.MoveTicks(price, ticks) }
func SpreadInTicks(bestBack, bestLay *float64) int { return Default.SpreadInTicks(bestBack, bestLay) }

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
