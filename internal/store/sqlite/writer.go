// Package sqlite persists bar history, the active indicator set and a journal
// of emitted signals in a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"streamta/internal/metrics"
	"streamta/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/streamta.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
type Writer struct {
	db   *sql.DB
	prom *metrics.Metrics
}

var (
	_ model.ConfigStore  = (*Writer)(nil)
	_ model.ResultWriter = (*Writer)(nil)
)

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// SetMetrics makes the writer report commit latency to m.
func (w *Writer) SetMetrics(m *metrics.Metrics) { w.prom = m }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite database opened", "path", cfg.DBPath)
	return &Writer{db: db}, nil
}

func open(path string) (*sql.DB, error) {
	return sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			token    TEXT    NOT NULL,
			exchange TEXT    NOT NULL,
			tf       INTEGER NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			volume   REAL,
			PRIMARY KEY (exchange, token, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS indicator_configs (
			position INTEGER NOT NULL,
			name     TEXT    NOT NULL PRIMARY KEY,
			kind     TEXT    NOT NULL,
			params   TEXT    NOT NULL,
			saved_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS signals (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			name     TEXT    NOT NULL,
			token    TEXT    NOT NULL,
			exchange TEXT    NOT NULL,
			tf       INTEGER NOT NULL,
			ts       INTEGER NOT NULL,
			vals     TEXT    NOT NULL,
			signals  TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_signals_name_ts ON signals (name, ts);
	`)
	return err
}

// RunBars reads bars from barCh and inserts them in batched transactions.
// Flushes every batchSize bars OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or barCh is closed.
func (w *Writer) RunBars(ctx context.Context, barCh <-chan model.Bar) {
	batch := make([]model.Bar, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// ctx may already be done; the final flush still has to commit.
		if err := w.WriteBars(context.WithoutCancel(ctx), batch); err != nil {
			slog.Error("sqlite bar batch insert failed", "bars", len(batch), "err", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case bar, ok := <-barCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, bar)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteBars inserts bars in a single transaction. Existing bars with the same
// series and timestamp are replaced.
func (w *Writer) WriteBars(ctx context.Context, bars []model.Bar) error {
	return w.inTx(ctx, `
		INSERT OR REPLACE INTO bars (token, exchange, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, len(bars), func(stmt *sql.Stmt, i int) error {
		b := &bars[i]
		_, err := stmt.ExecContext(ctx, b.Token, b.Exchange, b.TF, b.TS.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume)
		return err
	})
}

// RunSignals reads results from resultCh and journals those carrying a
// non-neutral signal, in batched transactions. Blocks until ctx is cancelled
// or resultCh is closed.
func (w *Writer) RunSignals(ctx context.Context, resultCh <-chan model.IndicatorResult) {
	batch := make([]model.IndicatorResult, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.WriteResultBatch(context.WithoutCancel(ctx), batch); err != nil {
			slog.Error("sqlite signal batch insert failed", "results", len(batch), "err", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case r, ok := <-resultCh:
			if !ok {
				flush()
				return
			}
			if !r.HasSignal() {
				continue
			}
			batch = append(batch, r)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// WriteResultBatch journals results in a single transaction. Results are
// written as given; RunSignals filters out neutral ones.
func (w *Writer) WriteResultBatch(ctx context.Context, results []model.IndicatorResult) error {
	if len(results) == 0 {
		return nil
	}
	start := time.Now()
	err := w.inTx(ctx, `
		INSERT INTO signals (name, token, exchange, tf, ts, vals, signals)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, len(results), func(stmt *sql.Stmt, i int) error {
		r := &results[i]
		vals, err := json.Marshal(r.Values)
		if err != nil {
			return err
		}
		sigs, err := json.Marshal(r.Signals)
		if err != nil {
			return err
		}
		_, err = stmt.ExecContext(ctx, r.Name, r.Token, r.Exchange, r.TF, r.TS.Unix(), string(vals), string(sigs))
		return err
	})
	if err == nil && w.prom != nil {
		w.prom.SQLiteCommitDur.Observe(time.Since(start).Seconds())
	}
	return err
}

// inTx prepares query once and runs exec for indices [0, n) in a transaction.
func (w *Writer) inTx(ctx context.Context, query string, n int, exec func(*sql.Stmt, int) error) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// SaveIndicators replaces the stored indicator set.
func (w *Writer) SaveIndicators(ctx context.Context, inds []model.StoredIndicator) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM indicator_configs`); err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite clear indicator_configs: %w", err)
	}
	now := time.Now().Unix()
	for i, ind := range inds {
		params, err := json.Marshal(ind.Params)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal params of %q: %w", ind.Name, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO indicator_configs (position, name, kind, params, saved_at) VALUES (?, ?, ?, ?, ?)`,
			i, ind.Name, ind.Kind, string(params), now)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert indicator %q: %w", ind.Name, err)
		}
	}
	return tx.Commit()
}

// LoadIndicators returns the stored indicator set in saved order.
func (w *Writer) LoadIndicators(ctx context.Context) ([]model.StoredIndicator, error) {
	return loadIndicators(ctx, w.db)
}

// GetLastTimestamp returns the last stored bar timestamp for a series.
// Returns 0 if no bars exist.
func (w *Writer) GetLastTimestamp(ctx context.Context, exchange, token string, tf int) (int64, error) {
	var ts sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM bars WHERE exchange = ? AND token = ? AND tf = ?`,
		exchange, token, tf,
	).Scan(&ts)
	if err != nil {
		return 0, err
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
