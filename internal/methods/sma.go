package methods

import (
	"streamta/internal/core"
	"streamta/internal/ringbuf"
)

// SMA calculates Simple Moving Average over a rolling window.
// The window starts filled with the seed, so the average is defined from
// the first call.
type SMA struct {
	win   *ringbuf.Window
	sum   float64
	divby float64
}

// NewSMA creates a new SMA with the given period, seeded with seed.
func NewSMA(period core.PeriodType, seed float64) *SMA {
	n := int(period)
	return &SMA{
		win:   ringbuf.New(n, seed),
		sum:   seed * float64(n),
		divby: 1 / float64(n),
	}
}

func (s *SMA) Next(value float64) float64 {
	// Subtract the oldest value being overwritten
	s.sum += value - s.win.Push(value)
	return s.sum * s.divby
}
