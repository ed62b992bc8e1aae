package indicator

import (
	"fmt"
	"maps"

	"streamta/internal/core"
	"streamta/internal/model"
)

// Reload replaces the engine's indicator set. Instances of indicators whose
// name, kind and params are unchanged keep their accumulated state; new or
// changed indicators are initialized from the next bar of each series.
// Returns the number of preserved and pending instances across all series.
func (e *Engine) Reload(specs []Spec) (preserved, created int, err error) {
	if err := ValidateSpecs(specs); err != nil {
		return 0, 0, err
	}

	oldIdx := make(map[string]int, len(e.specs))
	for i, s := range e.specs {
		oldIdx[s.Name] = i
	}
	// reuse[i] is the old slot for new spec i, or -1.
	reuse := make([]int, len(specs))
	for i, s := range specs {
		reuse[i] = -1
		if j, ok := oldIdx[s.Name]; ok && sameConfig(e.specs[j].Config, s.Config) {
			reuse[i] = j
		}
	}

	for key, si := range e.state {
		next := make([]core.Instance, len(specs))
		pending := false
		for i, j := range reuse {
			if j >= 0 && si.instances[j] != nil {
				next[i] = si.instances[j]
				preserved++
			} else {
				pending = true
				created++
			}
		}
		e.state[key] = &seriesInstances{instances: next, lastTS: si.lastTS, pending: pending}
	}

	e.specs = specs
	// Series that failed under the old set may succeed under the new one.
	clear(e.failed)

	e.log.Info("indicator set reloaded",
		"indicators", len(specs), "series", len(e.state),
		"preserved", preserved, "pending", created)
	return preserved, created, nil
}

// fillSeries initializes the nil slots of si from bar. Nothing is assigned
// unless every slot initializes.
func (e *Engine) fillSeries(si *seriesInstances, bar model.Bar) error {
	fresh := make([]core.Instance, len(si.instances))
	for i, inst := range si.instances {
		if inst != nil {
			continue
		}
		s := e.specs[i]
		n, err := s.Config.Init(bar)
		if err != nil {
			if e.prom != nil {
				e.prom.InitFailures.WithLabelValues(s.Name).Inc()
			}
			return fmt.Errorf("indicator %q: %w", s.Name, err)
		}
		fresh[i] = n
	}
	for i, n := range fresh {
		if n != nil {
			si.instances[i] = n
		}
	}
	si.pending = false
	return nil
}

func sameConfig(a, b core.Config) bool {
	return a.Name() == b.Name() && maps.Equal(a.Params(), b.Params())
}
