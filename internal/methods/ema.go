package methods

import "streamta/internal/core"

// EMA calculates Exponential Moving Average.
// O(1) per update, no window storage needed.
type EMA struct {
	multiplier float64
	current    float64
}

// NewEMA creates a new EMA with the given period, seeded with seed.
func NewEMA(period core.PeriodType, seed float64) *EMA {
	return &EMA{
		multiplier: 2.0 / float64(int(period)+1),
		current:    seed,
	}
}

func (e *EMA) Next(value float64) float64 {
	// EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (value * e.multiplier) + (e.current * (1 - e.multiplier))
	return e.current
}
