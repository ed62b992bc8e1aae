package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"streamta/internal/model"
)

// BarRecord is the Parquet schema for bar files.
type BarRecord struct {
	Token     string  `parquet:"token"`
	Exchange  string  `parquet:"exchange"`
	TF        int32   `parquet:"tf"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

func recordFromBar(b model.Bar) BarRecord {
	return BarRecord{
		Token:     b.Token,
		Exchange:  b.Exchange,
		TF:        int32(b.TF),
		Timestamp: b.TS.UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	}
}

func (r BarRecord) bar() model.Bar {
	return model.Bar{
		Token:    r.Token,
		Exchange: r.Exchange,
		TF:       int(r.TF),
		TS:       time.UnixMilli(r.Timestamp).UTC(),
		Open:     r.Open,
		High:     r.High,
		Low:      r.Low,
		Close:    r.Close,
		Volume:   r.Volume,
	}
}

// ReadParquet reads every bar in a Parquet file, filling missing series
// fields from d.
func ReadParquet(path string, d Defaults) ([]model.Bar, error) {
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	bars := make([]model.Bar, len(records))
	for i, r := range records {
		bars[i] = r.bar()
		d.apply(&bars[i])
	}
	return bars, nil
}

// WriteParquet writes bars to a Parquet file, creating parent directories.
func WriteParquet(path string, bars []model.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = recordFromBar(b)
	}
	return parquet.WriteFile(path, records)
}

// ParquetSource replays bars read from a Parquet file.
type ParquetSource struct {
	Path     string
	Defaults Defaults
	Speed    float64
}

var _ Source = (*ParquetSource)(nil)

func (s *ParquetSource) Run(ctx context.Context, out chan<- model.Bar) error {
	bars, err := ReadParquet(s.Path, s.Defaults)
	if err != nil {
		return err
	}
	return NewReplayer(s.Path, bars, s.Speed).Run(ctx, out)
}
