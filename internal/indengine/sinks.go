package indengine

import (
	"context"
	"log/slog"
	"time"

	"streamta/internal/model"
)

const (
	sinkBatchSize  = 64
	sinkFlushDelay = 100 * time.Millisecond
)

// runBatches writes results from ch to w in batches of sinkBatchSize, or
// every sinkFlushDelay. Blocks until ch is closed or ctx is done; the last
// partial batch is flushed either way.
func runBatches(ctx context.Context, name string, ch <-chan model.IndicatorResult, w model.ResultWriter) {
	batch := make([]model.IndicatorResult, 0, sinkBatchSize)
	ticker := time.NewTicker(sinkFlushDelay)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.WriteResultBatch(context.WithoutCancel(ctx), batch); err != nil {
			slog.Warn("result batch not written", "sink", name, "results", len(batch), "err", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case r, ok := <-ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, r)
			if len(batch) >= sinkBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
