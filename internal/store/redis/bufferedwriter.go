package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"streamta/internal/model"
)

// BufferedWriter wraps a ResultWriter with a circuit breaker.
// While the circuit is open, result batches are buffered locally and written
// on the next call that finds the circuit closed or half-open.
type BufferedWriter struct {
	writer model.ResultWriter
	cb     *CircuitBreaker

	mu     sync.Mutex
	buffer []model.IndicatorResult
	maxBuf int // max buffered results before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func(n int)     // called when n results are buffered (for metrics)
	OnDrop   func(n int)     // called when n buffered results are dropped
	OnFlush  func(count int) // called after writing buffered results
}

var _ model.ResultWriter = (*BufferedWriter)(nil)

// NewBufferedWriter creates a BufferedWriter wrapping w.
func NewBufferedWriter(w model.ResultWriter, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	return &BufferedWriter{
		writer: w,
		cb:     cb,
		buffer: make([]model.IndicatorResult, 0, 256),
		maxBuf: maxBufferSize,
	}
}

// WriteResultBatch writes any buffered results followed by results through
// the circuit breaker. If the circuit is open, or the write fails, the
// results are kept for the next attempt and nil is returned.
func (bw *BufferedWriter) WriteResultBatch(ctx context.Context, results []model.IndicatorResult) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	pending := len(bw.buffer)
	batch := results
	if pending > 0 {
		batch = make([]model.IndicatorResult, 0, pending+len(results))
		batch = append(batch, bw.buffer...)
		batch = append(batch, results...)
	}
	if len(batch) == 0 {
		return nil
	}

	err := bw.cb.Execute(func() error {
		return bw.writer.WriteResultBatch(ctx, batch)
	})
	if err != nil {
		if !errors.Is(err, ErrCircuitOpen) {
			slog.Warn("result write failed, buffering", "results", len(batch), "err", err)
		}
		bw.bufferLocked(results)
		return nil
	}

	if pending > 0 {
		bw.buffer = bw.buffer[:0]
		slog.Info("flushed buffered results", "count", pending)
		if bw.OnFlush != nil {
			bw.OnFlush(pending)
		}
	}
	return nil
}

func (bw *BufferedWriter) bufferLocked(results []model.IndicatorResult) {
	bw.buffer = append(bw.buffer, results...)
	if over := len(bw.buffer) - bw.maxBuf; over > 0 {
		// Buffer full, drop oldest
		bw.buffer = append(bw.buffer[:0], bw.buffer[over:]...)
		if bw.OnDrop != nil {
			bw.OnDrop(over)
		}
	}
	if bw.OnBuffer != nil && len(results) > 0 {
		bw.OnBuffer(len(results))
	}
}

// PendingCount returns the number of buffered results waiting to be written.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Close closes the underlying writer. Buffered results are discarded.
func (bw *BufferedWriter) Close() error {
	if n := bw.PendingCount(); n > 0 {
		slog.Warn("closing with unwritten results", "count", n)
	}
	return bw.writer.Close()
}
