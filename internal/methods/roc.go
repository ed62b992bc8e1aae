package methods

import (
	"streamta/internal/core"
	"streamta/internal/ringbuf"
)

// RateOfChange emits (v - old) / old where old is the value pushed period
// calls ago. The window starts filled with the seed, so until period values
// have been observed old is the first observed value. A zero denominator
// yields 0.
type RateOfChange struct {
	win *ringbuf.Window
}

// NewRateOfChange creates a RateOfChange over period values seeded with seed.
// period must be in [1, PeriodMax).
func NewRateOfChange(period core.PeriodType, seed float64) (*RateOfChange, error) {
	if err := core.CheckRange("RateOfChange", "period", int(period), 1, core.PeriodMax); err != nil {
		return nil, err
	}
	return &RateOfChange{win: ringbuf.New(int(period), seed)}, nil
}

// Next feeds one value and returns the current rate of change.
func (r *RateOfChange) Next(v float64) float64 {
	old := r.win.Push(v)
	if old == 0 {
		return 0
	}
	return (v - old) / old
}
