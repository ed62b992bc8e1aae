package methods

import (
	"streamta/internal/core"
	"streamta/internal/ringbuf"
)

// ReversalSignal confirms local extrema of a scalar stream. The candidate is
// the value observed right calls ago; it is confirmed once left earlier and
// right later values are in the window, so signals lag the pivot by right
// calls.
//
// A maximum is confirmed when the candidate is strictly greater than each of
// its left predecessors and not less than any of its right successors. Among
// equal extremes the earliest one therefore wins. Minima are symmetric.
type ReversalSignal struct {
	left int
	win  *ringbuf.Window
}

// NewReversalSignal creates a detector with the given left and right limits.
// The window is prefilled with seed. left and right must be at least 1 and
// left+right below PeriodMax.
func NewReversalSignal(left, right core.PeriodType, seed float64) (*ReversalSignal, error) {
	if err := core.CheckRange("ReversalSignal", "left", int(left), 1, core.PeriodMax); err != nil {
		return nil, err
	}
	if err := core.CheckRange("ReversalSignal", "right", int(right), 1, core.PeriodMax); err != nil {
		return nil, err
	}
	if err := core.CheckRange("ReversalSignal", "left+right", int(left)+int(right), 2, core.PeriodMax); err != nil {
		return nil, err
	}
	return &ReversalSignal{
		left: int(left),
		win:  ringbuf.New(int(left)+int(right)+1, seed),
	}, nil
}

// Next feeds one value and returns Buy when a local maximum is confirmed,
// Sell when a local minimum is confirmed, None otherwise.
func (r *ReversalSignal) Next(v float64) core.Action {
	r.win.Push(v)
	c := r.win.At(r.left)

	isMax, isMin := true, true
	for i := 0; i < r.left; i++ {
		x := r.win.At(i)
		if x >= c {
			isMax = false
		}
		if x <= c {
			isMin = false
		}
		if !isMax && !isMin {
			return core.None
		}
	}
	for i := r.left + 1; i < r.win.Len(); i++ {
		x := r.win.At(i)
		if x > c {
			isMax = false
		}
		if x < c {
			isMin = false
		}
		if !isMax && !isMin {
			return core.None
		}
	}

	switch {
	case isMax && !isMin:
		return core.Buy
	case isMin && !isMax:
		return core.Sell
	}
	return core.None
}
