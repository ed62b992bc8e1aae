package model

import (
	"fmt"
	"strings"
)

// Source selects which scalar of a bar feeds an indicator.
type Source uint8

const (
	SourceClose Source = iota
	SourceOpen
	SourceHigh
	SourceLow
	SourceVolume
	SourceHL2   // (high+low)/2
	SourceTP    // typical price, (high+low+close)/3
	SourceOHLC4 // (open+high+low+close)/4
)

var sourceNames = [...]string{
	SourceClose:  "close",
	SourceOpen:   "open",
	SourceHigh:   "high",
	SourceLow:    "low",
	SourceVolume: "volume",
	SourceHL2:    "hl2",
	SourceTP:     "tp",
	SourceOHLC4:  "ohlc4",
}

// Of returns the selected scalar of bar. It is a pure projection.
func (s Source) Of(bar OHLCV) float64 {
	switch s {
	case SourceOpen:
		return bar.O()
	case SourceHigh:
		return bar.H()
	case SourceLow:
		return bar.L()
	case SourceVolume:
		return bar.V()
	case SourceHL2:
		return (bar.H() + bar.L()) / 2
	case SourceTP:
		return (bar.H() + bar.L() + bar.C()) / 3
	case SourceOHLC4:
		return (bar.O() + bar.H() + bar.L() + bar.C()) / 4
	default:
		return bar.C()
	}
}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "Source(" + fmt.Sprint(uint8(s)) + ")"
}

// ParseSource parses a source name case-insensitively. "hlc3" is accepted as
// an alias of "tp".
func ParseSource(s string) (Source, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "hlc3" {
		return SourceTP, nil
	}
	for i, n := range sourceNames {
		if n == name {
			return Source(i), nil
		}
	}
	return 0, fmt.Errorf("unknown source %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Source) UnmarshalText(text []byte) error {
	v, err := ParseSource(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
