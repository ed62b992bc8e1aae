package methods

import "streamta/internal/core"

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing):
// SMMA = (prev*(period-1) + price) / period.
type SMMA struct {
	period  float64
	current float64
}

// NewSMMA creates a new SMMA with the given period, seeded with seed.
func NewSMMA(period core.PeriodType, seed float64) *SMMA {
	return &SMMA{period: float64(period), current: seed}
}

func (s *SMMA) Next(value float64) float64 {
	s.current = (s.current*(s.period-1) + value) / s.period
	return s.current
}
