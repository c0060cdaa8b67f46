package strategy

import (
	"fmt"
	"sync"

	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
)

// MovingAverage derives a directional bias per selection from the mean of its most recent
// last-traded prices against the mean of a longer window.
type MovingAverage struct {
	short     int
	long      int
	mu        sync.Mutex
	histories map[int64]*priceHistory
}

type priceHistory struct {
	prices []float64
}

// NewMovingAverage builds a generator; the long window is also the history capacity.
func NewMovingAverage(shortWindow, longWindow int) (*MovingAverage, error) {
	if shortWindow <= 0 || shortWindow > longWindow {
		return nil, fmt.Errorf("invalid moving average windows short=%d long=%d", shortWindow, longWindow)
	}
	return &MovingAverage{
		short:     shortWindow,
		long:      longWindow,
		histories: make(map[int64]*priceHistory),
	}, nil
}

// Observe records price for the selection and returns the signal for the updated history.
// A short mean above the long mean with the price at or above it reads as a fall to come
// (Short); the mirror case reads as a rise (Long).
func (m *MovingAverage) Observe(instrumentID int64, price float64) signal.Direction {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.histories[instrumentID]
	if h == nil {
		h = &priceHistory{prices: make([]float64, 0, m.long)}
		m.histories[instrumentID] = h
	}
	h.push(price, m.long)
	if len(h.prices) < m.long {
		return signal.None
	}
	shortMean, longMean := h.means(m.short)
	switch {
	case shortMean > longMean && price >= shortMean:
		return signal.Short
	case shortMean < longMean && price <= shortMean:
		return signal.Long
	default:
		return signal.None
	}
}

// Means returns the current window means once the history is full.
func (m *MovingAverage) Means(instrumentID int64) (short, long float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.histories[instrumentID]
	if h == nil || len(h.prices) < m.long {
		return 0, 0, false
	}
	short, long = h.means(m.short)
	return short, long, true
}

// Discard drops the selection's history.
func (m *MovingAverage) Discard(instrumentID int64) {
	m.mu.Lock()
	delete(m.histories, instrumentID)
	m.mu.Unlock()
}

func (m *MovingAverage) instruments() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.histories))
	for id := range m.histories {
		ids = append(ids, id)
	}
	return ids
}

func (h *priceHistory) push(price float64, capacity int) {
	if len(h.prices) == capacity {
		copy(h.prices, h.prices[1:])
		h.prices = h.prices[:capacity-1]
	}
	h.prices = append(h.prices, price)
}

func (h *priceHistory) means(shortWindow int) (float64, float64) {
	return mean(h.prices[len(h.prices)-shortWindow:]), mean(h.prices)
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
