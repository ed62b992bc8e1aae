package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"streamta/internal/model"
)

// Reader provides read-only access to SQLite for backfill and replay.
type Reader struct {
	db *sql.DB
}

var (
	_ model.BarReader = (*Reader)(nil)
)

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	slog.Info("sqlite reader opened", "path", dbPath)
	return &Reader{db: db}, nil
}

// ReadBars reads bars for one exchange:token and TF after afterTS (unix
// seconds), ordered by timestamp ascending for correct replay order.
func (r *Reader) ReadBars(ctx context.Context, exchange, token string, tf int, afterTS int64) ([]model.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT token, exchange, tf, ts, open, high, low, close, volume
		FROM bars
		WHERE exchange = ? AND token = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, exchange, token, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	return scanBars(rows)
}

// ReadAllBars reads all bars of a TF after afterTS, ordered by timestamp.
func (r *Reader) ReadAllBars(ctx context.Context, tf int, afterTS int64) ([]model.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT token, exchange, tf, ts, open, high, low, close, volume
		FROM bars
		WHERE tf = ? AND ts > ?
		ORDER BY ts ASC, exchange ASC, token ASC
	`, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query all bars: %w", err)
	}
	return scanBars(rows)
}

func scanBars(rows *sql.Rows) ([]model.Bar, error) {
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var tsUnix int64
		var vol sql.NullFloat64
		if err := rows.Scan(&b.Token, &b.Exchange, &b.TF, &tsUnix, &b.Open, &b.High, &b.Low, &b.Close, &vol); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.TS = time.Unix(tsUnix, 0).UTC()
		b.Volume = vol.Float64
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LoadIndicators returns the stored indicator set in saved order.
func (r *Reader) LoadIndicators(ctx context.Context) ([]model.StoredIndicator, error) {
	return loadIndicators(ctx, r.db)
}

func loadIndicators(ctx context.Context, db *sql.DB) ([]model.StoredIndicator, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, kind, params FROM indicator_configs ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query indicator_configs: %w", err)
	}
	defer rows.Close()

	var out []model.StoredIndicator
	for rows.Next() {
		var ind model.StoredIndicator
		var params string
		if err := rows.Scan(&ind.Name, &ind.Kind, &params); err != nil {
			return nil, fmt.Errorf("sqlite scan indicator_configs: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &ind.Params); err != nil {
			return nil, fmt.Errorf("indicator %q: bad params: %w", ind.Name, err)
		}
		out = append(out, ind)
	}
	return out, rows.Err()
}

// ReadSignals returns the most recent journaled results of an indicator,
// newest first. limit <= 0 returns all.
func (r *Reader) ReadSignals(ctx context.Context, name string, limit int) ([]model.IndicatorResult, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, token, exchange, tf, ts, vals, signals
		FROM signals
		WHERE name = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var out []model.IndicatorResult
	for rows.Next() {
		var res model.IndicatorResult
		var tsUnix int64
		var vals, sigs string
		if err := rows.Scan(&res.Name, &res.Token, &res.Exchange, &res.TF, &tsUnix, &vals, &sigs); err != nil {
			return nil, fmt.Errorf("sqlite scan signals: %w", err)
		}
		res.TS = time.Unix(tsUnix, 0).UTC()
		if err := json.Unmarshal([]byte(vals), &res.Values); err != nil {
			return nil, fmt.Errorf("signals row: bad values: %w", err)
		}
		if err := json.Unmarshal([]byte(sigs), &res.Signals); err != nil {
			return nil, fmt.Errorf("signals row: bad signals: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
