// Package core defines the evaluation contract shared by every indicator:
// an immutable, validated configuration produces a stateful instance bound to
// the first observed bar, and the instance is then advanced one bar at a time.
//
// Nothing in this package performs I/O or blocks. An Instance is owned by a
// single goroutine; independent instances share no mutable state.
package core

import (
	"math"

	"streamta/internal/model"
)

// PeriodType is the integer type of every window length and period.
type PeriodType uint8

// PeriodMax is the exclusive upper bound for any period.
const PeriodMax = math.MaxUint8

// Config is a validated, immutable indicator configuration.
type Config interface {
	// Name returns the indicator kind, e.g. "coppock_curve".
	Name() string

	// Validate reports whether every structural constraint holds. Pure.
	Validate() bool

	// Set assigns one field from its string form. A failed Set leaves the
	// configuration unchanged.
	Set(field, value string) error

	// Params returns every field in the string form accepted by Set.
	Params() map[string]string

	// Size returns the result shape: number of values and signals.
	Size() (values, signals int)

	// Init builds an Instance bound to the first bar. Returns ErrWrongConfig
	// when Validate is false.
	Init(first model.OHLCV) (Instance, error)
}

// Instance is the live state of one configured indicator over one series.
type Instance interface {
	// Config returns a copy of the configuration the instance was built from.
	Config() Config

	// Next advances the instance by exactly one bar.
	Next(bar model.OHLCV) Result
}

// Result is the per-bar output of an Instance.
type Result struct {
	Values  []float64
	Signals []Action
}

// NewResult copies values and signals into a Result.
func NewResult(values []float64, signals []Action) Result {
	r := Result{
		Values:  make([]float64, len(values)),
		Signals: make([]Action, len(signals)),
	}
	copy(r.Values, values)
	copy(r.Signals, signals)
	return r
}

// SignalInts returns the signals as -1/0/+1 integers.
func (r Result) SignalInts() []int8 {
	out := make([]int8, len(r.Signals))
	for i, s := range r.Signals {
		out[i] = int8(s)
	}
	return out
}
