package methods

import (
	"errors"
	"testing"

	"streamta/internal/core"
)

func TestSMA_Correctness_Period3(t *testing.T) {
	// Window starts as [0, 0, 0].
	// 1 → (0+0+1)/3, 2 → (0+1+2)/3, 3 → (1+2+3)/3, 4 → (2+3+4)/3
	sma := NewSMA(3, 0)
	prices := []float64{1, 2, 3, 4}
	expected := []float64{1.0 / 3, 1, 2, 3}
	for i, p := range prices {
		assertClose(t, "SMA(3)", sma.Next(p), expected[i], 1e-12)
	}
}

func TestSMA_SeededIsFlat(t *testing.T) {
	sma := NewSMA(5, 100)
	for i := 0; i < 10; i++ {
		assertClose(t, "SMA seeded", sma.Next(100), 100, 1e-12)
	}
}

func TestEMA_Correctness_Period3(t *testing.T) {
	// multiplier = 2/(3+1) = 0.5, seed 0:
	// 100 → 50, 100 → 75, 100 → 87.5
	ema := NewEMA(3, 0)
	for i, want := range []float64{50, 75, 87.5} {
		assertClose(t, "EMA(3) step "+string(rune('0'+i)), ema.Next(100), want, 1e-12)
	}
}

func TestWMA_Correctness_Period3(t *testing.T) {
	// Weights 1, 2, 3 (newest heaviest), divisor 6, window starts [0, 0, 0].
	// 1 → (0+0+3)/6           = 0.5
	// 2 → (0+2+6)/6           = 1.3333
	// 3 → (1+4+9)/6           = 2.3333
	// 4 → (2+6+12)/6          = 3.3333
	// 10 → (3+8+30)/6         = 6.8333
	wma := NewWMA(3, 0)
	prices := []float64{1, 2, 3, 4, 10}
	expected := []float64{0.5, 8.0 / 6, 14.0 / 6, 20.0 / 6, 41.0 / 6}
	for i, p := range prices {
		assertClose(t, "WMA(3)", wma.Next(p), expected[i], 1e-12)
	}
}

func TestWMA_MatchesDirectComputation(t *testing.T) {
	const period = 10
	wma := NewWMA(period, 0)
	var history []float64
	for i := 0; i < 200; i++ {
		v := float64((i*37)%23) - 11
		history = append(history, v)
		got := wma.Next(v)

		num, den := 0.0, 0.0
		for w := 1; w <= period; w++ {
			idx := len(history) - 1 - (period - w)
			x := 0.0
			if idx >= 0 {
				x = history[idx]
			}
			num += float64(w) * x
			den += float64(w)
		}
		assertClose(t, "WMA incremental vs direct", got, num/den, 1e-9)
	}
}

func TestSMMA_Correctness_Period3(t *testing.T) {
	// (prev*2 + price)/3, seed 0: 3 → 1, 3 → 5/3, 6 → (10/3 + 6)/3
	smma := NewSMMA(3, 0)
	expected := []float64{1, 5.0 / 3, (10.0/3 + 6) / 3}
	for i, p := range []float64{3, 3, 6} {
		assertClose(t, "SMMA(3)", smma.Next(p), expected[i], 1e-12)
	}
}

func TestMA_InitDispatch(t *testing.T) {
	checks := map[MA]func(core.MovingAverageInstance) bool{
		SMAOf(3):  func(i core.MovingAverageInstance) bool { _, ok := i.(*SMA); return ok },
		EMAOf(3):  func(i core.MovingAverageInstance) bool { _, ok := i.(*EMA); return ok },
		WMAOf(3):  func(i core.MovingAverageInstance) bool { _, ok := i.(*WMA); return ok },
		SMMAOf(3): func(i core.MovingAverageInstance) bool { _, ok := i.(*SMMA); return ok },
	}
	for ma, isKind := range checks {
		inst, err := ma.Init(0)
		if err != nil {
			t.Fatalf("%s: %v", ma, err)
		}
		if !isKind(inst) {
			t.Errorf("%s: got %T", ma, inst)
		}
	}
}

func TestMA_InitPeriodRange(t *testing.T) {
	var rerr *core.ParameterRangeError
	for _, p := range []core.PeriodType{0, 1, core.PeriodMax} {
		_, err := WMAOf(p).Init(0)
		if !errors.As(err, &rerr) {
			t.Errorf("period %d: expected ParameterRangeError, got %v", p, err)
		}
	}
	if _, err := EMAOf(2).Init(0); err != nil {
		t.Errorf("period 2: %v", err)
	}
}

func TestParseMA(t *testing.T) {
	cases := []struct {
		in   string
		want MA
	}{
		{"WMA:10", WMAOf(10)},
		{"wma:10", WMAOf(10)},
		{"ema-5", EMAOf(5)},
		{" SMMA : 14 ", SMMAOf(14)},
		{"SMA:254", SMAOf(254)},
	}
	for _, tc := range cases {
		got, err := ParseMA(tc.in)
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%q: got %s, want %s", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "WMA", "WMA:", ":10", "HMA:10", "WMA:x", "WMA:256", "WMA:-1"} {
		if _, err := ParseMA(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestMA_StringRoundTrip(t *testing.T) {
	for _, m := range []MA{SMAOf(2), EMAOf(5), WMAOf(10), SMMAOf(200)} {
		got, err := ParseMA(m.String())
		if err != nil {
			t.Fatalf("%s: %v", m, err)
		}
		if got != m {
			t.Errorf("round trip: got %s, want %s", got, m)
		}
	}
}

func TestSetMA_LeavesFieldOnError(t *testing.T) {
	var dst core.MovingAverageConstructor = EMAOf(5)
	err := SetMA(&dst, "s3_ma", "XYZ:3")
	var perr *core.ParameterParseError
	if !errors.As(err, &perr) || perr.Field != "s3_ma" {
		t.Fatalf("expected ParameterParseError for s3_ma, got %v", err)
	}
	if dst != EMAOf(5) {
		t.Fatalf("field mutated on error: %v", dst)
	}
	if err := SetMA(&dst, "s3_ma", "SMA:7"); err != nil || dst != SMAOf(7) {
		t.Fatalf("set: %v, %v", dst, err)
	}
}
