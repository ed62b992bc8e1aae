package methods

import (
	"streamta/internal/core"
	"streamta/internal/ringbuf"
)

// WMA calculates the linearly Weighted Moving Average: the newest value has
// weight period, the oldest weight 1.
//
// Both the plain and the weighted sums are maintained incrementally: on each
// push every weight drops by one, which removes exactly the previous plain sum
// from the weighted sum.
type WMA struct {
	win       *ringbuf.Window
	n         float64
	sum       float64
	weighted  float64
	invWeight float64
}

// NewWMA creates a new WMA with the given period, seeded with seed.
func NewWMA(period core.PeriodType, seed float64) *WMA {
	n := float64(period)
	total := n * (n + 1) / 2
	return &WMA{
		win:       ringbuf.New(int(period), seed),
		n:         n,
		sum:       seed * n,
		weighted:  seed * total,
		invWeight: 1 / total,
	}
}

func (w *WMA) Next(value float64) float64 {
	old := w.win.Push(value)
	w.weighted += w.n*value - w.sum
	w.sum += value - old
	return w.weighted * w.invWeight
}
