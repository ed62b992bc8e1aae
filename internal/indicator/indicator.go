// Package indicator holds the concrete indicators built on internal/core and
// the engine that drives them over many bar series.
//
// An Engine owns one Instance per configured indicator per series and must be
// used from a single goroutine. Pool shards series across several engines.
package indicator

import (
	"errors"
	"fmt"

	"streamta/internal/core"
	"streamta/internal/model"
)

// Spec binds a configuration to the name its results are published under.
type Spec struct {
	Name   string
	Config core.Config
}

// ValidateSpecs checks names are present and unique and every configuration
// validates.
func ValidateSpecs(specs []Spec) error {
	if len(specs) == 0 {
		return errors.New("no indicators configured")
	}
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return errors.New("indicator with empty name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate indicator name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Config == nil {
			return fmt.Errorf("indicator %q: missing config", s.Name)
		}
		if !s.Config.Validate() {
			return fmt.Errorf("indicator %q (%s): %w", s.Name, s.Config.Name(), core.ErrWrongConfig)
		}
	}
	return nil
}

// FromStored builds specs from persisted indicator definitions.
func FromStored(stored []model.StoredIndicator) ([]Spec, error) {
	specs := make([]Spec, 0, len(stored))
	for _, si := range stored {
		cfg, err := Build(si.Kind, si.Params)
		if err != nil {
			return nil, fmt.Errorf("indicator %q: %w", si.Name, err)
		}
		specs = append(specs, Spec{Name: si.Name, Config: cfg})
	}
	return specs, nil
}

// ToStored converts specs to their persisted form.
func ToStored(specs []Spec) []model.StoredIndicator {
	out := make([]model.StoredIndicator, len(specs))
	for i, s := range specs {
		out[i] = model.StoredIndicator{
			Name:   s.Name,
			Kind:   s.Config.Name(),
			Params: s.Config.Params(),
		}
	}
	return out
}
