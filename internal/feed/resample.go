package feed

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"streamta/internal/model"
)

// bucketState holds the forming bar for one (series, target TF) pair.
type bucketState struct {
	bucket int64 // bucket start, unix seconds
	bar    model.Bar
}

// Resampler aggregates bars of one base TF into every target TF that is a
// multiple of it. A target bar is emitted once a base bar of a later bucket
// arrives, or on Flush. Base bars pass through when the base TF is itself a
// target. Bars of any other TF are dropped, so a target series never gets
// both a native and an aggregated bar for the same bucket.
// Not safe for concurrent use.
type Resampler struct {
	base int
	tfs  []int

	// states[targetTF][exchange:token]; every state is built from base bars.
	states map[int]map[string]*bucketState

	// OnStale is called when a base bar older than the forming bucket is
	// dropped (optional).
	OnStale func(b model.Bar)

	// OnForeign is called for a dropped bar whose TF is not the base
	// (optional).
	OnForeign func(b model.Bar)
}

// NewResampler creates a Resampler from base bars into the target TFs
// (seconds).
func NewResampler(base int, tfs []int) *Resampler {
	tfs = slices.Clone(tfs)
	slices.Sort(tfs)
	states := make(map[int]map[string]*bucketState, len(tfs))
	for _, tf := range tfs {
		states[tf] = make(map[string]*bucketState, 64)
	}
	return &Resampler{base: base, tfs: tfs, states: states}
}

// Base returns the base TF.
func (r *Resampler) Base() int { return r.base }

// Add feeds one base bar and returns the bars it completes, in TF order.
func (r *Resampler) Add(b model.Bar) []model.Bar {
	if b.TF != r.base || b.TF <= 0 {
		if r.OnForeign != nil {
			r.OnForeign(b)
		}
		return nil
	}

	var out []model.Bar
	ts := b.TS.Unix()
	key := b.Key()

	for _, tf := range r.tfs {
		switch {
		case tf == b.TF:
			out = append(out, b)
			continue
		case tf < b.TF || tf%b.TF != 0:
			continue
		}

		tf64 := int64(tf)
		bucket := ts - (ts % tf64)
		st, exists := r.states[tf][key]

		if exists && bucket < st.bucket {
			if r.OnStale != nil {
				r.OnStale(b)
			}
			continue
		}
		if exists && bucket > st.bucket {
			out = append(out, st.bar)
			exists = false
		}
		if !exists {
			nb := b
			nb.TF = tf
			nb.TS = time.Unix(bucket, 0).UTC()
			r.states[tf][key] = &bucketState{bucket: bucket, bar: nb}
			continue
		}

		fb := &st.bar
		fb.High = max(fb.High, b.High)
		fb.Low = min(fb.Low, b.Low)
		fb.Close = b.Close
		fb.Volume += b.Volume
	}
	return out
}

// Flush returns every forming bar and resets the state. Bars are ordered by
// time, then TF.
func (r *Resampler) Flush() []model.Bar {
	var out []model.Bar
	for _, tf := range r.tfs {
		for key, st := range r.states[tf] {
			out = append(out, st.bar)
			delete(r.states[tf], key)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Bar) int {
		if c := a.TS.Compare(b.TS); c != 0 {
			return c
		}
		return a.TF - b.TF
	})
	return out
}

// ResampledSource runs Inner and resamples its bars of TF Base into TFs.
// Inner bars of other TFs are dropped.
type ResampledSource struct {
	Inner Source
	Base  int
	TFs   []int
}

var _ Source = (*ResampledSource)(nil)

// Run emits resampled bars; forming bars are flushed when Inner finishes.
func (s *ResampledSource) Run(ctx context.Context, out chan<- model.Bar) error {
	rs := NewResampler(s.Base, s.TFs)
	stale, foreign := 0, 0
	rs.OnStale = func(model.Bar) { stale++ }
	rs.OnForeign = func(model.Bar) { foreign++ }

	in := make(chan model.Bar, 256)
	errCh := make(chan error, 1)
	go func() {
		defer close(in)
		errCh <- s.Inner.Run(ctx, in)
	}()

	send := func(bars []model.Bar) bool {
		for _, b := range bars {
			select {
			case out <- b:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	for b := range in {
		if !send(rs.Add(b)) {
			break
		}
	}
	err := <-errCh
	if err == nil && ctx.Err() == nil {
		send(rs.Flush())
	}
	if stale > 0 {
		slog.Warn("resampler dropped stale bars", "count", stale)
	}
	if foreign > 0 {
		slog.Warn("resampler dropped bars not of the base TF", "base", s.Base, "count", foreign)
	}
	return err
}
