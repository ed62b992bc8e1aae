package core

// MovingAverageConstructor is a moving-average kind bound to a period. It is
// the only thing an indicator knows about the averaging it composes.
type MovingAverageConstructor interface {
	// Init builds a stateful average seeded with seed. Returns a
	// ParameterRangeError when the period is outside [2, PeriodMax).
	Init(seed float64) (MovingAverageInstance, error)

	// Period returns the configured period.
	Period() PeriodType

	// String returns the canonical text form, e.g. "WMA:10".
	String() string
}

// MovingAverageInstance ingests one scalar per call and returns the current
// average.
type MovingAverageInstance interface {
	Next(value float64) float64
}
