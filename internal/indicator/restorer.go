package indicator

import (
	"context"
	"fmt"
	"log/slog"

	"streamta/internal/model"
)

// Processor is anything that turns one bar into indicator results: an Engine,
// or a Pool that is not running.
type Processor interface {
	Process(bar model.Bar) ([]model.IndicatorResult, error)
}

// Backfill replays stored bars through p before the live feed starts, so
// instances are warm when the first live bar arrives.
//
// For each TF it reads every stored bar and keeps the last maxBars per series
// (0 keeps all). If onResults is non-nil it receives the results of each bar.
// Returns the number of bars replayed.
func Backfill(ctx context.Context, p Processor, reader model.BarReader, tfs []int, maxBars int, onResults func([]model.IndicatorResult)) (int, error) {
	if reader == nil {
		return 0, nil
	}

	total := 0
	for _, tf := range tfs {
		bars, err := reader.ReadAllBars(ctx, tf, 0)
		if err != nil {
			return total, fmt.Errorf("backfill tf=%d: %w", tf, err)
		}
		bars = tailPerSeries(bars, maxBars)

		fed := 0
		for _, bar := range bars {
			if err := ctx.Err(); err != nil {
				return total + fed, err
			}
			results, err := p.Process(bar)
			if err != nil {
				continue
			}
			if onResults != nil && len(results) > 0 {
				onResults(results)
			}
			fed++
		}
		total += fed
		if fed > 0 {
			slog.Info("backfilled bars from history", "tf", tf, "bars", fed)
		}
	}
	return total, nil
}

// tailPerSeries keeps the last n bars of every series, preserving order.
func tailPerSeries(bars []model.Bar, n int) []model.Bar {
	if n <= 0 {
		return bars
	}
	counts := make(map[string]int)
	for i := range bars {
		counts[bars[i].SeriesKey()]++
	}
	out := make([]model.Bar, 0, len(bars))
	seen := make(map[string]int)
	for i := range bars {
		key := bars[i].SeriesKey()
		seen[key]++
		if counts[key]-seen[key] < n {
			out = append(out, bars[i])
		}
	}
	return out
}
