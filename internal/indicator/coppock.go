package indicator

import (
	"fmt"

	"streamta/internal/core"
	"streamta/internal/methods"
	"streamta/internal/model"
)

// CoppockCurveName is the kind name of the Coppock curve.
const CoppockCurveName = "coppock_curve"

// CoppockCurve configures the Coppock curve: the sum of a long and a short
// rate of change, smoothed by MA1, with S3MA as its signal line.
//
// Values:
//
//	0: main line, MA1(RoC(Period2) + RoC(Period3))
//	1: signal line, S3MA(main)
//
// Signals:
//
//	0: main crosses zero (Buy upward, Sell downward)
//	1: pivot of main (Buy at a local maximum, Sell at a local minimum)
//	2: main crosses the signal line
type CoppockCurve struct {
	MA1     core.MovingAverageConstructor
	Period2 core.PeriodType // long RoC
	Period3 core.PeriodType // short RoC
	S2Left  core.PeriodType
	S2Right core.PeriodType
	S3MA    core.MovingAverageConstructor
	Source  model.Source
}

// DefaultCoppockCurve returns the classic parameters: WMA(10) over
// RoC(14)+RoC(11) of close, pivot 4/2 and an EMA(5) signal line.
func DefaultCoppockCurve() CoppockCurve {
	return CoppockCurve{
		MA1:     methods.WMAOf(10),
		Period2: 14,
		Period3: 11,
		S2Left:  4,
		S2Right: 2,
		S3MA:    methods.EMAOf(5),
		Source:  model.SourceClose,
	}
}

var coppockFields = core.FieldTable[CoppockCurve]{
	"ma1":      func(c *CoppockCurve, v string) error { return methods.SetMA(&c.MA1, "ma1", v) },
	"period2":  func(c *CoppockCurve, v string) error { return core.SetPeriod(&c.Period2, "period2", v) },
	"period3":  func(c *CoppockCurve, v string) error { return core.SetPeriod(&c.Period3, "period3", v) },
	"s2_left":  func(c *CoppockCurve, v string) error { return core.SetPeriod(&c.S2Left, "s2_left", v) },
	"s2_right": func(c *CoppockCurve, v string) error { return core.SetPeriod(&c.S2Right, "s2_right", v) },
	"s3_ma":    func(c *CoppockCurve, v string) error { return methods.SetMA(&c.S3MA, "s3_ma", v) },
	"source":   func(c *CoppockCurve, v string) error { return core.SetSource(&c.Source, "source", v) },
}

var _ core.Config = (*CoppockCurve)(nil)

func (c *CoppockCurve) Name() string { return CoppockCurveName }

// Validate reports whether all parameters are in range.
func (c *CoppockCurve) Validate() bool {
	return maPeriodOK(c.MA1) &&
		c.Period2 > c.Period3 &&
		c.Period2 < core.PeriodMax &&
		c.Period3 > 0 &&
		maPeriodOK(c.S3MA) &&
		c.S2Left > 0 &&
		c.S2Right > 0 &&
		int(c.S2Left)+int(c.S2Right) < core.PeriodMax
}

func maPeriodOK(m core.MovingAverageConstructor) bool {
	return m != nil && m.Period() > 1 && m.Period() < core.PeriodMax
}

func (c *CoppockCurve) Set(field, value string) error {
	return coppockFields.Set(c, field, value)
}

// Params returns every field in the form Set accepts.
func (c *CoppockCurve) Params() map[string]string {
	return map[string]string{
		"ma1":      maString(c.MA1),
		"period2":  core.FormatPeriod(c.Period2),
		"period3":  core.FormatPeriod(c.Period3),
		"s2_left":  core.FormatPeriod(c.S2Left),
		"s2_right": core.FormatPeriod(c.S2Right),
		"s3_ma":    maString(c.S3MA),
		"source":   c.Source.String(),
	}
}

func maString(m core.MovingAverageConstructor) string {
	if m == nil {
		return ""
	}
	return m.String()
}

func (c *CoppockCurve) Size() (values, signals int) { return 2, 3 }

// Init builds an instance from a copy of c. The RoC windows are seeded with
// the first bar's source value; both averages and the pivot start at 0.
func (c *CoppockCurve) Init(first model.OHLCV) (core.Instance, error) {
	if !c.Validate() {
		return nil, fmt.Errorf("%s: %w", CoppockCurveName, core.ErrWrongConfig)
	}
	cfg := *c
	src := cfg.Source.Of(first)

	roc1, err := methods.NewRateOfChange(cfg.Period2, src)
	if err != nil {
		return nil, fmt.Errorf("%s: period2: %w", CoppockCurveName, err)
	}
	roc2, err := methods.NewRateOfChange(cfg.Period3, src)
	if err != nil {
		return nil, fmt.Errorf("%s: period3: %w", CoppockCurveName, err)
	}
	ma1, err := cfg.MA1.Init(0)
	if err != nil {
		return nil, fmt.Errorf("%s: ma1: %w", CoppockCurveName, err)
	}
	ma2, err := cfg.S3MA.Init(0)
	if err != nil {
		return nil, fmt.Errorf("%s: s3_ma: %w", CoppockCurveName, err)
	}
	pivot, err := methods.NewReversalSignal(cfg.S2Left, cfg.S2Right, 0)
	if err != nil {
		return nil, fmt.Errorf("%s: s2_left/s2_right: %w", CoppockCurveName, err)
	}

	return &CoppockCurveInstance{
		cfg:   cfg,
		roc1:  roc1,
		roc2:  roc2,
		ma1:   ma1,
		ma2:   ma2,
		pivot: pivot,
	}, nil
}

// CoppockCurveInstance is the live state of a Coppock curve over one series.
type CoppockCurveInstance struct {
	cfg CoppockCurve

	roc1, roc2 *methods.RateOfChange
	ma1, ma2   core.MovingAverageInstance
	zeroCross  methods.Cross
	pivot      *methods.ReversalSignal
	lineCross  methods.Cross
}

var _ core.Instance = (*CoppockCurveInstance)(nil)

// Config returns a copy of the build-time configuration.
func (i *CoppockCurveInstance) Config() core.Config {
	cfg := i.cfg
	return &cfg
}

func (i *CoppockCurveInstance) Next(bar model.OHLCV) core.Result {
	src := i.cfg.Source.Of(bar)

	v1 := i.roc1.Next(src)
	v2 := i.roc2.Next(src)

	main := i.ma1.Next(v1 + v2)
	signal := i.ma2.Next(main)

	return core.Result{
		Values: []float64{main, signal},
		Signals: []core.Action{
			i.zeroCross.Next(main, 0),
			i.pivot.Next(main),
			i.lineCross.Next(main, signal),
		},
	}
}
