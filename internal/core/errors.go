package core

import (
	"errors"
	"fmt"
)

// ErrWrongConfig is returned by Init when the configuration fails Validate.
var ErrWrongConfig = errors.New("wrong indicator config")

// ErrParameterParse matches every ParameterParseError and UnknownFieldError
// via errors.Is.
var ErrParameterParse = errors.New("parameter parse error")

// ParameterParseError reports a string that could not be converted to the
// type of the named field.
type ParameterParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParameterParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot parse %q for parameter %q: %v", e.Value, e.Field, e.Err)
	}
	return fmt.Sprintf("cannot parse %q for parameter %q", e.Value, e.Field)
}

func (e *ParameterParseError) Unwrap() error { return e.Err }

func (e *ParameterParseError) Is(target error) bool { return target == ErrParameterParse }

// UnknownFieldError reports a Set call naming a field the configuration
// does not have.
type UnknownFieldError struct {
	Field string
	Value string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown parameter %q (value %q)", e.Field, e.Value)
}

func (e *UnknownFieldError) Is(target error) bool { return target == ErrParameterParse }

// ParameterRangeError is returned when a primitive or moving average is
// constructed with a parameter outside its legal range [Min, Max).
type ParameterRangeError struct {
	Method string // e.g. "RateOfChange"
	Param  string // e.g. "period"
	Value  int
	Min    int
	Max    int
}

func (e *ParameterRangeError) Error() string {
	return fmt.Sprintf("%s: %s=%d out of range [%d, %d)", e.Method, e.Param, e.Value, e.Min, e.Max)
}

// CheckRange returns a ParameterRangeError unless lo <= value < hi.
func CheckRange(method, param string, value, lo, hi int) error {
	if value < lo || value >= hi {
		return &ParameterRangeError{Method: method, Param: param, Value: value, Min: lo, Max: hi}
	}
	return nil
}
