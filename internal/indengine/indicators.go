package indengine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"streamta/config"
	"streamta/internal/indicator"
	"streamta/internal/model"
)

// loadSpecs resolves the indicator set: the YAML file if present, else the
// set last stored in SQLite, else a default Coppock curve. The result is
// stored back so the next start without a file sees the same set.
func (svc *Service) loadSpecs(ctx context.Context) ([]indicator.Spec, string, error) {
	stored, origin, err := svc.storedIndicators(ctx)
	if err != nil {
		return nil, "", err
	}
	specs, err := indicator.FromStored(stored)
	if err != nil {
		return nil, "", fmt.Errorf("indicators from %s: %w", origin, err)
	}
	if err := indicator.ValidateSpecs(specs); err != nil {
		return nil, "", fmt.Errorf("indicators from %s: %w", origin, err)
	}
	svc.persistSpecs(ctx, specs)
	return specs, origin, nil
}

func (svc *Service) storedIndicators(ctx context.Context) ([]model.StoredIndicator, string, error) {
	path := svc.cfg.IndicatorsFile
	if path != "" {
		inds, err := config.LoadIndicators(path)
		switch {
		case err == nil:
			return inds, path, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, "", err
		}
		svc.log.Info("indicator file not found", "path", path)
	}

	if svc.sqlReader != nil {
		inds, err := svc.sqlReader.LoadIndicators(ctx)
		if err != nil {
			svc.log.Warn("stored indicators unreadable", "err", err)
		} else if len(inds) > 0 {
			return inds, "sqlite", nil
		}
	}

	def := indicator.DefaultCoppockCurve()
	return indicator.ToStored([]indicator.Spec{{Name: "coppock", Config: &def}}), "defaults", nil
}

func (svc *Service) persistSpecs(ctx context.Context, specs []indicator.Spec) {
	if svc.sqlWriter == nil {
		return
	}
	if err := svc.sqlWriter.SaveIndicators(ctx, indicator.ToStored(specs)); err != nil {
		svc.log.Warn("saving indicator set failed", "err", err)
	}
}

// Reload validates stored and swaps it in on every shard. Unchanged
// indicators keep their state.
func (svc *Service) Reload(ctx context.Context, stored []model.StoredIndicator) error {
	specs, err := indicator.FromStored(stored)
	if err != nil {
		return err
	}
	if err := svc.pool.Reload(ctx, specs); err != nil {
		return err
	}
	svc.setSpecs(specs)
	svc.persistSpecs(ctx, specs)
	svc.log.Info("indicator set reloaded", "indicators", len(specs))
	return nil
}

// activeIndicators reports the active set in stored form.
func (svc *Service) activeIndicators() []model.StoredIndicator {
	return indicator.ToStored(svc.Specs())
}
