package indicator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"streamta/internal/model"
)

const shardBuffer = 256

// Pool runs one Engine per worker. Bars are sharded by series key so every
// instance is owned by exactly one goroutine and a series is processed in
// arrival order.
type Pool struct {
	engines []*Engine
	log     *slog.Logger

	mu      sync.Mutex
	reloads []chan reloadReq // one per shard while Run is active
	stopped chan struct{}    // closed when the active Run returns
}

// ErrPoolStopped is returned by Reload when Run ends mid-reload.
var ErrPoolStopped = errors.New("indicator pool stopped")

// NewPool creates a pool of workers engines sharing the same indicator set.
// Configurations are only read after construction, so engines may share them.
func NewPool(workers int, specs []Spec, opts ...Option) (*Pool, error) {
	if workers < 1 {
		return nil, errors.New("pool needs at least one worker")
	}
	p := &Pool{engines: make([]*Engine, workers)}
	for i := range p.engines {
		e, err := NewEngine(specs, opts...)
		if err != nil {
			return nil, err
		}
		p.engines[i] = e
	}
	p.log = p.engines[0].log
	return p, nil
}

// Workers returns the number of shards.
func (p *Pool) Workers() int { return len(p.engines) }

// Shard returns the worker index that owns seriesKey.
func (p *Pool) Shard(seriesKey string) int {
	return shardOf(seriesKey, len(p.engines))
}

func shardOf(key string, n int) int {
	return int(xxhash.Sum64String(key) % uint64(n))
}

// Process runs bar through the engine of its shard. It must not be called
// while Run is active. It is serialized with Reload.
func (p *Pool) Process(bar model.Bar) ([]model.IndicatorResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engines[p.Shard(bar.SeriesKey())].Process(bar)
}

// Run dispatches bars from in to the shard engines and forwards their
// results to out. Blocks until in is closed and every shard has drained, or
// ctx is done. Run must not be called concurrently with itself.
func (p *Pool) Run(ctx context.Context, in <-chan model.Bar, out chan<- model.IndicatorResult) error {
	g, gctx := errgroup.WithContext(ctx)

	shards := make([]chan model.Bar, len(p.engines))
	reloads := make([]chan reloadReq, len(p.engines))
	for i := range p.engines {
		shards[i] = make(chan model.Bar, shardBuffer)
		reloads[i] = make(chan reloadReq)
	}
	// Registered before any shard starts so Reload never touches an engine
	// a shard goroutine owns.
	stopped := make(chan struct{})
	p.mu.Lock()
	p.reloads, p.stopped = reloads, stopped
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.reloads, p.stopped = nil, nil
		p.mu.Unlock()
	}()

	for i, e := range p.engines {
		i, e := i, e // per-iteration copies for goroutine capture (go 1.21 loop semantics)
		g.Go(func() error {
			e.run(gctx, shards[i], reloads[i], out)
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range shards {
				close(ch)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return nil
			case bar, ok := <-in:
				if !ok {
					return nil
				}
				select {
				case shards[p.Shard(bar.SeriesKey())] <- bar:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})

	p.log.Info("indicator pool started", "workers", len(p.engines))
	err := g.Wait()
	close(stopped)
	p.log.Info("indicator pool stopped")
	return err
}

// Reload swaps the indicator set of every shard. While Run is active each
// shard applies it between two bars; otherwise it is applied directly.
func (p *Pool) Reload(ctx context.Context, specs []Spec) error {
	if err := ValidateSpecs(specs); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reloads == nil {
		for _, e := range p.engines {
			if _, _, err := e.Reload(specs); err != nil {
				return err
			}
		}
		return nil
	}

	done := make(chan error, len(p.reloads))
	for _, rc := range p.reloads {
		select {
		case rc <- reloadReq{specs: specs, done: done}:
		case <-p.stopped:
			return ErrPoolStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for range p.reloads {
		select {
		case err := <-done:
			if err != nil {
				return err
			}
		case <-p.stopped:
			return ErrPoolStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.log.Info("indicator pool reloaded", "indicators", len(specs), "workers", len(p.reloads))
	return nil
}

// Series returns the live series count across shards. It must not be called
// while Run is active.
func (p *Pool) Series() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.engines {
		n += e.Series()
	}
	return n
}
