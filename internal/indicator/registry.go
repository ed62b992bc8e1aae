package indicator

import (
	"fmt"
	"sort"

	"streamta/internal/core"
)

// Factory returns a configuration with default parameters.
type Factory func() core.Config

var registry = map[string]Factory{
	CoppockCurveName: func() core.Config {
		c := DefaultCoppockCurve()
		return &c
	},
}

// Kinds returns the registered indicator kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Default returns the default configuration of kind.
func Default(kind string) (core.Config, error) {
	f, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown indicator kind %q", kind)
	}
	return f(), nil
}

// Build returns the default configuration of kind with params applied via
// Set. Params are applied in key order so the first failing key is stable.
// The result is validated.
func Build(kind string, params map[string]string) (core.Config, error) {
	cfg, err := Default(kind)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := cfg.Set(k, params[k]); err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
	}
	if !cfg.Validate() {
		return nil, fmt.Errorf("%s: %w", kind, core.ErrWrongConfig)
	}
	return cfg, nil
}
