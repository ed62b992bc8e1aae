package methods

import (
	"errors"
	"math"
	"testing"

	"streamta/internal/core"
)

func TestRateOfChange_Correctness_Period3(t *testing.T) {
	// Seeded with 10, then fed 10, 11, 12, 13, 14.
	// Until 3 values are pushed the denominator is the seed (first value):
	//   10 → (10-10)/10 = 0
	//   11 → (11-10)/10 = 0.1
	//   12 → (12-10)/10 = 0.2
	//   13 → (13-10)/10 = 0.3   (evicts the 10 pushed by the first call)
	//   14 → (14-11)/11
	roc, err := NewRateOfChange(3, 10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	prices := []float64{10, 11, 12, 13, 14}
	expected := []float64{0, 0.1, 0.2, 0.3, 3.0 / 11}

	for i, p := range prices {
		assertClose(t, "RoC(3)", roc.Next(p), expected[i], 1e-12)
	}
}

func TestRateOfChange_ConstantSeries(t *testing.T) {
	const v = 42.5
	roc, _ := NewRateOfChange(5, v)
	for i := 0; i < 20; i++ {
		if got := roc.Next(v); got != 0 {
			t.Fatalf("call %d: got %v, want 0", i, got)
		}
	}
}

func TestRateOfChange_ZeroSeriesIsNeutral(t *testing.T) {
	roc, _ := NewRateOfChange(4, 0)
	for i := 0; i < 12; i++ {
		got := roc.Next(0)
		if got != 0 || math.IsNaN(got) || math.IsInf(got, 0) {
			t.Fatalf("call %d: got %v, want 0", i, got)
		}
	}
}

func TestRateOfChange_ZeroDenominator(t *testing.T) {
	// Seed 0: the first period outputs use a zero denominator.
	roc, _ := NewRateOfChange(2, 0)
	if got := roc.Next(5); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
	if got := roc.Next(6); got != 0 {
		t.Fatalf("got %v, want 0", got)
	}
	// Now the denominator is the 5 pushed two calls ago.
	assertClose(t, "RoC after warm-up", roc.Next(7), 0.4, 1e-12)
}

func TestRateOfChange_PeriodRange(t *testing.T) {
	var rerr *core.ParameterRangeError
	if _, err := NewRateOfChange(0, 1); !errors.As(err, &rerr) {
		t.Errorf("period 0: expected ParameterRangeError, got %v", err)
	}
	if _, err := NewRateOfChange(core.PeriodMax, 1); !errors.As(err, &rerr) {
		t.Errorf("period PeriodMax: expected ParameterRangeError, got %v", err)
	}
	if _, err := NewRateOfChange(1, 1); err != nil {
		t.Errorf("period 1: %v", err)
	}
}
