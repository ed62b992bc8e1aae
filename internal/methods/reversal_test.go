package methods

import (
	"errors"
	"testing"

	"streamta/internal/core"
)

func feedReversal(t *testing.T, r *ReversalSignal, values []float64) []core.Action {
	t.Helper()
	out := make([]core.Action, len(values))
	for i, v := range values {
		out[i] = r.Next(v)
	}
	return out
}

func TestReversal_SpikeConfirmedAfterRight(t *testing.T) {
	limits := []struct{ left, right int }{
		{1, 1}, {3, 2}, {2, 3}, {4, 2}, {1, 5}, {5, 1},
	}
	const height = 10.0

	for _, lim := range limits {
		m := lim.left
		if lim.right > m {
			m = lim.right
		}
		// m zeros, spike, m zeros.
		values := make([]float64, 2*m+1)
		spike := m
		values[spike] = height

		r, err := NewReversalSignal(core.PeriodType(lim.left), core.PeriodType(lim.right), 0)
		if err != nil {
			t.Fatalf("left=%d right=%d: %v", lim.left, lim.right, err)
		}
		got := feedReversal(t, r, values)

		for i, a := range got {
			want := core.None
			if i == spike+lim.right {
				want = core.Buy
			}
			if a != want {
				t.Errorf("left=%d right=%d call %d: got %s, want %s", lim.left, lim.right, i, a, want)
			}
		}
	}
}

func TestReversal_Dip(t *testing.T) {
	r, _ := NewReversalSignal(2, 2, 5)
	values := []float64{5, 5, 5, 1, 5, 5, 5}
	got := feedReversal(t, r, values)

	for i, a := range got {
		want := core.None
		if i == 5 {
			want = core.Sell
		}
		if a != want {
			t.Errorf("call %d: got %s, want %s", i, a, want)
		}
	}
}

func TestReversal_EqualExtremesReportEarliest(t *testing.T) {
	// Two equal tops at index 1 and 2: only the first one is a pivot, and it
	// is reported right=1 call later. The same rule makes index 3 the bottom
	// of the two trailing zeros.
	r, _ := NewReversalSignal(1, 1, 0)
	got := feedReversal(t, r, []float64{0, 5, 5, 0, 0})
	want := []core.Action{core.None, core.None, core.Buy, core.None, core.Sell}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestReversal_FlatSeriesNeverSignals(t *testing.T) {
	r, _ := NewReversalSignal(4, 2, 3)
	for i := 0; i < 50; i++ {
		if a := r.Next(3); a != core.None {
			t.Fatalf("call %d: flat series produced %s", i, a)
		}
	}
}

func TestReversal_NoLookAhead(t *testing.T) {
	// The spike cannot be confirmed before right later values exist,
	// no matter what those later values are going to be.
	r, _ := NewReversalSignal(2, 3, 0)
	for i, v := range []float64{0, 0, 9, 1, 1} {
		if a := r.Next(v); a != core.None {
			t.Fatalf("call %d: premature signal %s", i, a)
		}
	}
	if a := r.Next(1); a != core.Buy {
		t.Fatalf("expected confirmation on the third later value, got %s", a)
	}
}

func TestReversal_ParameterRange(t *testing.T) {
	var rerr *core.ParameterRangeError
	cases := []struct {
		left, right core.PeriodType
		param       string
	}{
		{0, 2, "left"},
		{2, 0, "right"},
		{200, 100, "left+right"},
		{254, 1, "left+right"},
	}
	for _, tc := range cases {
		_, err := NewReversalSignal(tc.left, tc.right, 0)
		if !errors.As(err, &rerr) {
			t.Fatalf("left=%d right=%d: expected ParameterRangeError, got %v", tc.left, tc.right, err)
		}
		if rerr.Param != tc.param {
			t.Errorf("left=%d right=%d: param=%q, want %q", tc.left, tc.right, rerr.Param, tc.param)
		}
	}
	if _, err := NewReversalSignal(253, 1, 0); err != nil {
		t.Errorf("253+1 is legal: %v", err)
	}
}
