package indicator

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"streamta/internal/core"
	"streamta/internal/methods"
	"streamta/internal/model"
)

// identityMA is a moving average that returns its input unchanged.
type identityMA struct{ period core.PeriodType }

func (m identityMA) Init(float64) (core.MovingAverageInstance, error) { return identityInst{}, nil }
func (m identityMA) Period() core.PeriodType                          { return m.period }
func (m identityMA) String() string                                   { return "ID" }

type identityInst struct{}

func (identityInst) Next(v float64) float64 { return v }

// failingMA passes Validate but cannot be initialized.
type failingMA struct{}

func (failingMA) Init(float64) (core.MovingAverageInstance, error) {
	return nil, errors.New("boom")
}
func (failingMA) Period() core.PeriodType { return 3 }
func (failingMA) String() string          { return "FAIL:3" }

func closeBar(c float64) model.Bar {
	return model.Bar{Token: "2885", Exchange: "NSE", TF: 60, Open: c, High: c, Low: c, Close: c}
}

func TestCoppockCurve_Defaults(t *testing.T) {
	c := DefaultCoppockCurve()
	if !c.Validate() {
		t.Fatal("default config must validate")
	}
	want := map[string]string{
		"ma1":      "WMA:10",
		"period2":  "14",
		"period3":  "11",
		"s2_left":  "4",
		"s2_right": "2",
		"s3_ma":    "EMA:5",
		"source":   "close",
	}
	if got := c.Params(); !reflect.DeepEqual(got, want) {
		t.Errorf("Params() = %v, want %v", got, want)
	}
	if v, s := c.Size(); v != 2 || s != 3 {
		t.Errorf("Size() = (%d, %d), want (2, 3)", v, s)
	}
	if c.Name() != "coppock_curve" {
		t.Errorf("Name() = %q", c.Name())
	}
}

func TestCoppockCurve_ValidateIsConjunction(t *testing.T) {
	maPeriods := []core.PeriodType{0, 1, 2, 10, 254, 255}
	periods := []core.PeriodType{0, 1, 11, 14, 254, 255}
	pivots := []core.PeriodType{0, 1, 4, 127, 128, 254}

	inRangeMA := func(p core.PeriodType) bool { return p > 1 && p < 255 }

	checked := 0
	for _, ma := range maPeriods {
		for _, p2 := range periods {
			for _, p3 := range periods {
				for _, l := range pivots {
					for _, r := range pivots {
						c := DefaultCoppockCurve()
						c.MA1 = methods.WMAOf(ma)
						c.S3MA = methods.EMAOf(maPeriods[(int(ma)+int(l))%len(maPeriods)])
						c.Period2, c.Period3 = p2, p3
						c.S2Left, c.S2Right = l, r

						want := inRangeMA(c.MA1.Period()) &&
							p2 > p3 && p2 < 255 && p3 > 0 &&
							inRangeMA(c.S3MA.Period()) &&
							l > 0 && r > 0 && int(l)+int(r) < 255
						if got := c.Validate(); got != want {
							t.Fatalf("Validate(%v) = %v, want %v", c.Params(), got, want)
						}
						checked++
					}
				}
			}
		}
	}
	if checked == 0 {
		t.Fatal("no combinations checked")
	}
}

func TestCoppockCurve_NilMovingAverageIsInvalid(t *testing.T) {
	c := DefaultCoppockCurve()
	c.S3MA = nil
	if c.Validate() {
		t.Error("nil s3_ma must not validate")
	}
	if _, err := c.Init(closeBar(1)); !errors.Is(err, core.ErrWrongConfig) {
		t.Errorf("expected ErrWrongConfig, got %v", err)
	}
}

func TestCoppockCurve_InitRejectsInvalid(t *testing.T) {
	c := DefaultCoppockCurve()
	c.Period3 = c.Period2 // long RoC must be longer than short

	inst, err := c.Init(closeBar(100))
	if !errors.Is(err, core.ErrWrongConfig) {
		t.Fatalf("expected ErrWrongConfig, got %v", err)
	}
	if inst != nil {
		t.Error("invalid config must not yield an instance")
	}
}

func TestCoppockCurve_InitPropagatesMAError(t *testing.T) {
	c := DefaultCoppockCurve()
	c.S3MA = failingMA{}

	inst, err := c.Init(closeBar(100))
	if err == nil || inst != nil {
		t.Fatalf("expected init error and no instance, got %v, %v", inst, err)
	}
	if errors.Is(err, core.ErrWrongConfig) {
		t.Error("construction failure is not a validation failure")
	}
}

func TestCoppockCurve_ConstantSeriesIsFlat(t *testing.T) {
	c := DefaultCoppockCurve()
	inst, err := c.Init(closeBar(250))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		r := inst.Next(closeBar(250))
		if len(r.Values) != 2 || len(r.Signals) != 3 {
			t.Fatalf("bar %d: shape (%d, %d), want (2, 3)", i, len(r.Values), len(r.Signals))
		}
		for j, v := range r.Values {
			if v != 0 {
				t.Fatalf("bar %d: value %d = %v, want 0", i, j, v)
			}
		}
		for j, s := range r.Signals {
			if s != core.None {
				t.Fatalf("bar %d: signal %d = %v, want none", i, j, s)
			}
		}
	}
}

// With identity averages and p_t = 2^t, RoC(p) at bar t is 2^t-1 until the
// window fills and 2^p-1 afterwards (exact in float64), so main is
// non-decreasing and crosses zero exactly once, at t=1. Main rises strictly
// until t=14 and is flat after, so the first plateau value is the only
// pivot, confirmed s2_right=2 bars later.
func TestCoppockCurve_IdentityMAOnDoublingSeries(t *testing.T) {
	c := DefaultCoppockCurve()
	c.MA1 = identityMA{period: 2}
	c.S3MA = identityMA{period: 2}

	inst, err := c.Init(closeBar(1))
	if err != nil {
		t.Fatal(err)
	}

	roc := func(p, t int) float64 {
		if t < p {
			return math.Ldexp(1, t) - 1
		}
		return math.Ldexp(1, p) - 1
	}

	prevMain := math.Inf(-1)
	upCrosses, pivots := 0, 0
	for step := 0; step < 40; step++ {
		r := inst.Next(closeBar(math.Ldexp(1, step)))

		main, signal := r.Values[0], r.Values[1]
		want := roc(14, step) + roc(11, step)
		if main != want {
			t.Fatalf("t=%d: main=%v, want %v", step, main, want)
		}
		if signal != main {
			t.Fatalf("t=%d: identity signal line=%v, want %v", step, signal, main)
		}
		if main < prevMain {
			t.Fatalf("t=%d: main decreased %v → %v", step, prevMain, main)
		}
		prevMain = main

		switch r.Signals[0] {
		case core.Buy:
			upCrosses++
			if step != 1 {
				t.Errorf("zero cross at t=%d, want t=1", step)
			}
		case core.Sell:
			t.Errorf("t=%d: unexpected downward zero cross", step)
		}
		switch r.Signals[1] {
		case core.Buy:
			pivots++
			if step != 16 {
				t.Errorf("pivot high at t=%d, want t=16", step)
			}
		case core.Sell:
			t.Errorf("t=%d: pivot low on a non-decreasing series", step)
		}
		if r.Signals[2] != core.None {
			t.Errorf("t=%d: line cross %v with identical lines", step, r.Signals[2])
		}
	}
	if upCrosses != 1 {
		t.Errorf("expected exactly one upward zero cross, got %d", upCrosses)
	}
	if pivots != 1 {
		t.Errorf("expected exactly one pivot high, got %d", pivots)
	}
}

func TestCoppockCurve_SourceSelectsInput(t *testing.T) {
	c := DefaultCoppockCurve()
	c.MA1 = identityMA{period: 2}
	c.S3MA = identityMA{period: 2}
	c.Source = model.SourceHigh

	first := model.Bar{Open: 1, High: 10, Low: 1, Close: 1}
	inst, err := c.Init(first)
	if err != nil {
		t.Fatal(err)
	}
	// Close moves, high does not: RoC of high stays 0.
	r := inst.Next(model.Bar{Open: 1, High: 10, Low: 1, Close: 5})
	if r.Values[0] != 0 {
		t.Errorf("expected main=0 for unchanged high, got %v", r.Values[0])
	}
	// High doubles: both RoC windows still hold the seed 10.
	r = inst.Next(model.Bar{Open: 1, High: 20, Low: 1, Close: 5})
	if r.Values[0] != 2 {
		t.Errorf("expected main=2 after high doubled, got %v", r.Values[0])
	}
}

func TestCoppockCurve_SetRoundTrip(t *testing.T) {
	src := DefaultCoppockCurve()
	src.MA1 = methods.SMMAOf(7)
	src.Period2, src.Period3 = 20, 9
	src.S2Left, src.S2Right = 3, 5
	src.S3MA = methods.SMAOf(4)
	src.Source = model.SourceOHLC4

	var dst CoppockCurve
	for field, value := range src.Params() {
		if err := dst.Set(field, value); err != nil {
			t.Fatalf("Set(%q, %q): %v", field, value, err)
		}
	}
	if !reflect.DeepEqual(dst, src) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", dst, src)
	}
}

func TestCoppockCurve_SetErrors(t *testing.T) {
	tests := []struct {
		field, value string
	}{
		{"period2", "abc"},
		{"period2", "-1"},
		{"period2", "256"},
		{"period3", ""},
		{"s2_left", "1.5"},
		{"ma1", "HMA:10"},
		{"ma1", "WMA"},
		{"s3_ma", "EMA:x"},
		{"source", "median"},
	}
	for _, tt := range tests {
		c := DefaultCoppockCurve()
		before := c.Params()
		err := c.Set(tt.field, tt.value)
		var pe *core.ParameterParseError
		if !errors.As(err, &pe) {
			t.Errorf("Set(%q, %q): expected *ParameterParseError, got %v", tt.field, tt.value, err)
			continue
		}
		if pe.Field != tt.field || pe.Value != tt.value {
			t.Errorf("error carries (%q, %q), want (%q, %q)", pe.Field, pe.Value, tt.field, tt.value)
		}
		if !reflect.DeepEqual(c.Params(), before) {
			t.Errorf("Set(%q, %q) changed the config on error", tt.field, tt.value)
		}
	}
}

func TestCoppockCurve_SetUnknownField(t *testing.T) {
	c := DefaultCoppockCurve()
	err := c.Set("period4", "3")

	var ue *core.UnknownFieldError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UnknownFieldError, got %v", err)
	}
	if !errors.Is(err, core.ErrParameterParse) {
		t.Error("unknown field should match ErrParameterParse")
	}
	var pe *core.ParameterParseError
	if errors.As(err, &pe) {
		t.Error("unknown field must be distinguishable from a parse error")
	}
}

func TestCoppockCurve_InstanceOwnsConfigCopy(t *testing.T) {
	c := DefaultCoppockCurve()
	inst, err := c.Init(closeBar(100))
	if err != nil {
		t.Fatal(err)
	}

	// Mutating the source config after Init does not reach the instance.
	if err := c.Set("period2", "30"); err != nil {
		t.Fatal(err)
	}
	if got := inst.Config().Params()["period2"]; got != "14" {
		t.Errorf("instance period2 = %s, want 14", got)
	}

	// Nor does mutating the returned copy.
	cp := inst.Config()
	if err := cp.Set("period3", "5"); err != nil {
		t.Fatal(err)
	}
	if got := inst.Config().Params()["period3"]; got != "11" {
		t.Errorf("instance period3 = %s, want 11", got)
	}
}

// Long RoC 3 and short RoC 2 with identity averages on p_t = 2^t: main is
// 0, 2, 6, 10, 10, ... so the zero line is crossed once upward at t=1 and
// the plateau start at t=3 is confirmed as the only pivot at t=5.
func TestCoppockCurve_ShortRoCPairOnDoublingSeries(t *testing.T) {
	c := DefaultCoppockCurve()
	c.MA1 = identityMA{period: 2}
	c.S3MA = identityMA{period: 2}
	c.Period2 = 3
	c.Period3 = 2
	if !c.Validate() {
		t.Fatal("3/2 config should validate")
	}

	inst, err := c.Init(closeBar(1))
	if err != nil {
		t.Fatal(err)
	}

	wantMain := []float64{0, 2, 6, 10, 10, 10, 10, 10, 10, 10, 10, 10}
	prevMain := math.Inf(-1)
	var crosses, pivots []int
	for step, want := range wantMain {
		r := inst.Next(closeBar(math.Ldexp(1, step)))
		main := r.Values[0]
		if main != want {
			t.Fatalf("t=%d: main=%v, want %v", step, main, want)
		}
		if main < prevMain {
			t.Fatalf("t=%d: main decreased %v → %v", step, prevMain, main)
		}
		prevMain = main

		switch r.Signals[0] {
		case core.Buy:
			crosses = append(crosses, step)
		case core.Sell:
			t.Errorf("t=%d: unexpected downward zero cross", step)
		}
		switch r.Signals[1] {
		case core.Buy:
			pivots = append(pivots, step)
		case core.Sell:
			t.Errorf("t=%d: pivot low on a non-decreasing series", step)
		}
	}
	if !reflect.DeepEqual(crosses, []int{1}) {
		t.Errorf("upward zero crosses at %v, want [1]", crosses)
	}
	if !reflect.DeepEqual(pivots, []int{5}) {
		t.Errorf("pivot highs at %v, want [5]", pivots)
	}
}
