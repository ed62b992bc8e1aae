package methods

import "streamta/internal/core"

// Cross detects when series a crosses series b between two consecutive calls.
// The zero value is ready to use; its first call always returns core.None.
type Cross struct {
	prevA, prevB float64
	primed       bool
}

// Next feeds the current pair and returns Buy on an upward cross
// (a was <= b, now a > b), Sell on a downward cross (a was >= b, now a < b),
// None otherwise.
func (c *Cross) Next(a, b float64) core.Action {
	prevA, prevB, primed := c.prevA, c.prevB, c.primed
	c.prevA, c.prevB, c.primed = a, b, true

	if !primed {
		return core.None
	}
	switch {
	case prevA <= prevB && a > b:
		return core.Buy
	case prevA >= prevB && a < b:
		return core.Sell
	default:
		return core.None
	}
}
