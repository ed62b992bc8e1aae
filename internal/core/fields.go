package core

import (
	"strconv"

	"streamta/internal/model"
)

// FieldSetter parses value and assigns it to one field of cfg.
type FieldSetter[C any] func(cfg *C, value string) error

// FieldTable maps field names to setters. Built once per configuration type.
type FieldTable[C any] map[string]FieldSetter[C]

// Set dispatches to the setter registered for field.
func (t FieldTable[C]) Set(cfg *C, field, value string) error {
	set, ok := t[field]
	if !ok {
		return &UnknownFieldError{Field: field, Value: value}
	}
	return set(cfg, value)
}

// SetPeriod parses value into *dst. *dst is untouched on error.
func SetPeriod(dst *PeriodType, field, value string) error {
	n, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return &ParameterParseError{Field: field, Value: value, Err: err}
	}
	*dst = PeriodType(n)
	return nil
}

// SetSource parses value into *dst. *dst is untouched on error.
func SetSource(dst *model.Source, field, value string) error {
	s, err := model.ParseSource(value)
	if err != nil {
		return &ParameterParseError{Field: field, Value: value, Err: err}
	}
	*dst = s
	return nil
}

// FormatPeriod returns the string form accepted by SetPeriod.
func FormatPeriod(p PeriodType) string {
	return strconv.Itoa(int(p))
}
