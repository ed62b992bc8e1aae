package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the engine from concrete storage implementations
// (Redis, SQLite). Each implementation satisfies one or more of them.

// ResultWriter writes indicator results.
type ResultWriter interface {
	// WriteResultBatch writes multiple indicator results in a single batch.
	WriteResultBatch(ctx context.Context, results []IndicatorResult) error

	// Close releases underlying resources.
	Close() error
}

// BarReader reads stored bars for replay and warm-up.
type BarReader interface {
	// ReadBars reads bars for one instrument and TF, ordered by time.
	ReadBars(ctx context.Context, exchange, token string, tf int, afterTS int64) ([]Bar, error)

	// ReadAllBars reads all bars of a TF across instruments, ordered by time.
	ReadAllBars(ctx context.Context, tf int, afterTS int64) ([]Bar, error)
}

// StoredIndicator is the persisted form of a named indicator configuration.
// Params hold every field in its canonical string form, as accepted by Set.
type StoredIndicator struct {
	Name   string            `json:"name" yaml:"name"`
	Kind   string            `json:"kind" yaml:"kind"`
	Params map[string]string `json:"params" yaml:"params"`
}

// ConfigStore persists named indicator configurations.
type ConfigStore interface {
	SaveIndicators(ctx context.Context, inds []StoredIndicator) error
	LoadIndicators(ctx context.Context) ([]StoredIndicator, error)
}
