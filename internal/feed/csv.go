package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"streamta/internal/model"
)

// CSVSource replays bars read from a CSV file.
//
// The first row is a header. Recognized columns (case-insensitive): ts (or
// time, timestamp, date), open, high, low, close, and optionally volume,
// token, exchange, tf. Timestamps are RFC 3339, "2006-01-02 15:04:05",
// "2006-01-02" or unix seconds/milliseconds.
type CSVSource struct {
	Path     string
	Defaults Defaults
	Speed    float64
}

var _ Source = (*CSVSource)(nil)

// Run reads the whole file and replays it.
func (s *CSVSource) Run(ctx context.Context, out chan<- model.Bar) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	bars, err := ReadCSV(f, s.Defaults)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", s.Path, err)
	}
	return NewReplayer(s.Path, bars, s.Speed).Run(ctx, out)
}

var csvAliases = map[string]string{
	"ts": "ts", "time": "ts", "timestamp": "ts", "date": "ts", "datetime": "ts",
	"open": "open", "o": "open",
	"high": "high", "h": "high",
	"low": "low", "l": "low",
	"close": "close", "c": "close",
	"volume": "volume", "v": "volume", "vol": "volume",
	"token": "token", "symbol": "token",
	"exchange": "exchange", "tf": "tf",
}

// ReadCSV parses bars from r. Rows keep file order.
func ReadCSV(r io.Reader, d Defaults) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv")
		}
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		if name, ok := csvAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			col[name] = i
		}
	}
	for _, req := range []string{"ts", "open", "high", "low", "close"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("csv header missing %q column", req)
		}
	}

	var bars []model.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		b, err := parseCSVRow(rec, col)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		d.apply(&b)
		bars = append(bars, b)
	}
	return bars, nil
}

func parseCSVRow(rec []string, col map[string]int) (model.Bar, error) {
	var b model.Bar
	get := func(name string) (string, bool) {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}
	num := func(name string, dst *float64) error {
		v, ok := get(name)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = f
		return nil
	}

	ts, _ := get("ts")
	t, err := parseTime(ts)
	if err != nil {
		return b, err
	}
	b.TS = t

	for name, dst := range map[string]*float64{
		"open": &b.Open, "high": &b.High, "low": &b.Low, "close": &b.Close, "volume": &b.Volume,
	} {
		if err := num(name, dst); err != nil {
			return b, err
		}
	}
	if v, ok := get("token"); ok {
		b.Token = v
	}
	if v, ok := get("exchange"); ok {
		b.Exchange = v
	}
	if v, ok := get("tf"); ok && v != "" {
		tf, err := strconv.Atoi(v)
		if err != nil || tf <= 0 {
			return b, fmt.Errorf("tf: bad value %q", v)
		}
		b.TF = tf
	}
	return b, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime parses a timestamp in one of timeLayouts (as UTC) or unix
// seconds. Integers above 1e12 are unix milliseconds.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("ts: empty")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("ts: unrecognized timestamp %q", s)
}
