package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"streamta/internal/core"
	"streamta/internal/logger"
	"streamta/internal/metrics"
	"streamta/internal/model"
)

// seriesInstances holds live instances for one series, parallel to the
// engine's specs.
type seriesInstances struct {
	instances []core.Instance
	lastTS    time.Time
	pending   bool // some slots are nil after a reload
}

// Engine computes every configured indicator over many bar series.
// Designed for single-goroutine usage, no locks needed.
type Engine struct {
	specs []Spec

	// state[seriesKey] → live instances
	state map[string]*seriesInstances
	// failed[seriesKey] → init error, so a bad series is logged once
	failed map[string]error

	log  *slog.Logger
	prom *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics makes the engine report to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.prom = m }
}

// NewEngine creates an engine for the given indicators. Every spec must
// validate.
func NewEngine(specs []Spec, opts ...Option) (*Engine, error) {
	if err := ValidateSpecs(specs); err != nil {
		return nil, err
	}
	e := &Engine{
		specs:  specs,
		state:  make(map[string]*seriesInstances, 64),
		failed: make(map[string]error),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Specs returns the configured indicators.
func (e *Engine) Specs() []Spec { return e.specs }

// Series returns the number of series with live instances.
func (e *Engine) Series() int { return len(e.state) }

// Process feeds one bar to every indicator of its series and returns one
// result per indicator. The first bar of a series initializes its
// instances and is then processed like any other bar. A series whose
// initialization failed keeps returning that error.
func (e *Engine) Process(bar model.Bar) ([]model.IndicatorResult, error) {
	key := bar.SeriesKey()
	si, exists := e.state[key]
	if !exists {
		if err, bad := e.failed[key]; bad {
			return nil, err
		}
		var err error
		si, err = e.initSeries(bar)
		if err != nil {
			e.failed[key] = err
			e.log.Error("indicator init failed, skipping series", "series", key,
				"trace_id", logger.GenerateTraceID(key, bar.TS), "err", err)
			return nil, err
		}
		e.state[key] = si
		if e.prom != nil {
			e.prom.SeriesActive.Inc()
		}
		e.log.Debug("series initialized", "series", key, "indicators", len(si.instances))
	} else if si.pending {
		if err := e.fillSeries(si, bar); err != nil {
			delete(e.state, key)
			e.failed[key] = err
			if e.prom != nil {
				e.prom.SeriesActive.Dec()
			}
			e.log.Error("indicator init after reload failed, skipping series", "series", key, "err", err)
			return nil, err
		}
	}

	if !si.lastTS.IsZero() && !bar.TS.After(si.lastTS) {
		e.log.Warn("non-increasing bar timestamp", "series", key, "ts", bar.TS, "last", si.lastTS,
			"trace_id", logger.GenerateTraceID(key, bar.TS))
	}
	si.lastTS = bar.TS

	start := time.Now()
	results := make([]model.IndicatorResult, 0, len(si.instances))
	for i, inst := range si.instances {
		r := inst.Next(bar)
		results = append(results, model.IndicatorResult{
			Name:     e.specs[i].Name,
			Token:    bar.Token,
			Exchange: bar.Exchange,
			TF:       bar.TF,
			TS:       bar.TS,
			Values:   r.Values,
			Signals:  r.SignalInts(),
		})
	}

	if e.prom != nil {
		e.prom.ComputeDur.Observe(time.Since(start).Seconds())
		e.prom.BarsTotal.Inc()
		e.observeResults(results)
	}
	return results, nil
}

// initSeries builds every instance for a series. Nothing is kept unless all
// instances initialize.
func (e *Engine) initSeries(first model.Bar) (*seriesInstances, error) {
	insts := make([]core.Instance, len(e.specs))
	for i, s := range e.specs {
		inst, err := s.Config.Init(first)
		if err != nil {
			if e.prom != nil {
				e.prom.InitFailures.WithLabelValues(s.Name).Inc()
			}
			return nil, fmt.Errorf("indicator %q: %w", s.Name, err)
		}
		insts[i] = inst
	}
	return &seriesInstances{instances: insts}, nil
}

func (e *Engine) observeResults(results []model.IndicatorResult) {
	for _, r := range results {
		e.prom.ResultsTotal.WithLabelValues(r.Name).Inc()
		for j, s := range r.Signals {
			if s == 0 {
				continue
			}
			e.prom.SignalsTotal.WithLabelValues(r.Name, strconv.Itoa(j), core.Action(s).String()).Inc()
		}
	}
}

// Run consumes bars and emits indicator results. Blocks until ctx is done or
// barCh is closed. Sends to resultCh block, so a slow consumer applies
// backpressure rather than losing signals.
func (e *Engine) Run(ctx context.Context, barCh <-chan model.Bar, resultCh chan<- model.IndicatorResult) {
	e.run(ctx, barCh, nil, resultCh)
}

// reloadReq asks a running engine to swap its indicator set between bars.
type reloadReq struct {
	specs []Spec
	done  chan<- error
}

func (e *Engine) run(ctx context.Context, barCh <-chan model.Bar, reloadCh <-chan reloadReq, resultCh chan<- model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-reloadCh:
			_, _, err := e.Reload(req.specs)
			req.done <- err
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			results, err := e.Process(bar)
			if err != nil {
				continue // logged by Process
			}
			for _, r := range results {
				select {
				case resultCh <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
