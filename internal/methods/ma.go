package methods

import (
	"fmt"
	"strconv"
	"strings"

	"streamta/internal/core"
)

// MAKind enumerates the built-in moving average kinds.
type MAKind uint8

const (
	KindSMA MAKind = iota
	KindEMA
	KindWMA
	KindSMMA
)

var maKindNames = [...]string{
	KindSMA:  "SMA",
	KindEMA:  "EMA",
	KindWMA:  "WMA",
	KindSMMA: "SMMA",
}

func (k MAKind) String() string {
	if int(k) < len(maKindNames) {
		return maKindNames[k]
	}
	return "MAKind(" + strconv.Itoa(int(k)) + ")"
}

// MA is a moving average kind bound to a period. It satisfies
// core.MovingAverageConstructor.
type MA struct {
	Kind   MAKind
	Length core.PeriodType
}

var _ core.MovingAverageConstructor = MA{}

func SMAOf(period core.PeriodType) MA  { return MA{Kind: KindSMA, Length: period} }
func EMAOf(period core.PeriodType) MA  { return MA{Kind: KindEMA, Length: period} }
func WMAOf(period core.PeriodType) MA  { return MA{Kind: KindWMA, Length: period} }
func SMMAOf(period core.PeriodType) MA { return MA{Kind: KindSMMA, Length: period} }

// Period returns the configured period.
func (m MA) Period() core.PeriodType { return m.Length }

// String returns "KIND:PERIOD", e.g. "WMA:10".
func (m MA) String() string {
	return m.Kind.String() + ":" + strconv.Itoa(int(m.Length))
}

// Init builds a stateful average seeded with seed.
// The period must be in [2, PeriodMax).
func (m MA) Init(seed float64) (core.MovingAverageInstance, error) {
	if err := core.CheckRange(m.Kind.String(), "period", int(m.Length), 2, core.PeriodMax); err != nil {
		return nil, err
	}
	switch m.Kind {
	case KindSMA:
		return NewSMA(m.Length, seed), nil
	case KindEMA:
		return NewEMA(m.Length, seed), nil
	case KindWMA:
		return NewWMA(m.Length, seed), nil
	case KindSMMA:
		return NewSMMA(m.Length, seed), nil
	default:
		return nil, fmt.Errorf("unknown moving average kind %d", m.Kind)
	}
}

// ParseMA parses "KIND:PERIOD" (case-insensitive). "kind-period" is accepted
// as well, e.g. "ema-5".
func ParseMA(s string) (MA, error) {
	s = strings.TrimSpace(s)
	sep := strings.IndexAny(s, ":-")
	if sep <= 0 {
		return MA{}, fmt.Errorf("moving average %q: expected KIND:PERIOD", s)
	}
	name := strings.ToUpper(strings.TrimSpace(s[:sep]))
	period, err := strconv.ParseUint(strings.TrimSpace(s[sep+1:]), 10, 8)
	if err != nil {
		return MA{}, fmt.Errorf("moving average %q: bad period: %w", s, err)
	}
	for i, n := range maKindNames {
		if n == name {
			return MA{Kind: MAKind(i), Length: core.PeriodType(period)}, nil
		}
	}
	return MA{}, fmt.Errorf("moving average %q: unknown kind %q", s, name)
}

// SetMA parses value into *dst. *dst is untouched on error.
func SetMA(dst *core.MovingAverageConstructor, field, value string) error {
	m, err := ParseMA(value)
	if err != nil {
		return &core.ParameterParseError{Field: field, Value: value, Err: err}
	}
	*dst = m
	return nil
}
