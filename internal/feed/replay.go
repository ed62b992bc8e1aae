package feed

import (
	"context"
	"log/slog"
	"time"

	"streamta/internal/model"
)

// maxReplayGap caps the pause between two replayed bars.
const maxReplayGap = 5 * time.Second

// Replayer emits a fixed set of bars in time order at a speed multiplier:
// 1 is real time, 10 is ten times faster, 0 is as fast as possible.
type Replayer struct {
	bars  []model.Bar
	speed float64
	name  string

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

var _ Source = (*Replayer)(nil)

// NewReplayer creates a Replayer over bars, which are sorted by time (stable,
// so bars with equal timestamps keep their order).
func NewReplayer(name string, bars []model.Bar, speed float64) *Replayer {
	SortBars(bars)
	if speed < 0 {
		speed = 0
	}
	return &Replayer{bars: bars, speed: speed, name: name, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Len returns the number of bars to replay.
func (r *Replayer) Len() int { return len(r.bars) }

// Run emits every bar into out, pacing gaps between bar timestamps by the
// speed multiplier. Returns ctx.Err() if cancelled.
func (r *Replayer) Run(ctx context.Context, out chan<- model.Bar) error {
	if len(r.bars) == 0 {
		slog.Info("replay: no bars", "feed", r.name)
		return nil
	}
	slog.Info("replay started", "feed", r.name, "bars", len(r.bars), "speed", r.speed)

	var prevTS time.Time
	emitted := 0
	for _, b := range r.bars {
		if r.speed > 0 && !prevTS.IsZero() {
			if gap := b.TS.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / r.speed)
				if scaled > maxReplayGap {
					scaled = maxReplayGap
				}
				if err := r.sleep(ctx, scaled); err != nil {
					slog.Info("replay cancelled", "feed", r.name, "emitted", emitted)
					return err
				}
			}
		}
		prevTS = b.TS

		select {
		case out <- b:
			emitted++
		case <-ctx.Done():
			slog.Info("replay cancelled", "feed", r.name, "emitted", emitted)
			return ctx.Err()
		}
	}

	slog.Info("replay completed", "feed", r.name, "bars", emitted)
	return nil
}
