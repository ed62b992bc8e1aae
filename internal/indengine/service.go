// Package indengine wires the indicator service: a bar feed into the sharded
// indicator pool, and its results out to Redis, the SQLite signal journal
// and the websocket gateway.
package indengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"streamta/config"
	"streamta/internal/bus"
	"streamta/internal/feed"
	"streamta/internal/gateway"
	"streamta/internal/indicator"
	"streamta/internal/metrics"
	"streamta/internal/model"
	"streamta/internal/notification"
	redisstore "streamta/internal/store/redis"
	sqlitestore "streamta/internal/store/sqlite"
)

const (
	barBuffer    = 5000
	resultBuffer = 5000
)

// Service is the top-level orchestrator for the indicator engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg  *config.Config
	tfs  []int
	log  *slog.Logger
	prom *metrics.Metrics

	health *metrics.HealthStatus

	mu    sync.RWMutex
	specs []indicator.Spec
	pool  *indicator.Pool

	sqlWriter   *sqlitestore.Writer
	sqlReader   *sqlitestore.Reader
	redisWriter *redisstore.Writer
	results     model.ResultWriter // circuit-broken Redis writer, nil when Redis is off
	hub         *gateway.Hub
	notifier    notification.Notifier // nil when no alert target is configured
	source      feed.Source
}

// New connects to SQLite and Redis, loads the indicator set and builds the
// feed. Nothing runs until Run.
func New(cfg *config.Config, reg prometheus.Registerer) (*Service, error) {
	svc := &Service{
		cfg:    cfg,
		tfs:    cfg.ParseTFs(),
		log:    slog.Default().With("component", "indengine"),
		prom:   metrics.NewMetrics(reg),
		health: metrics.NewHealthStatus(),
	}

	// ---- Open SQLite ----
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite dir: %w", err)
	}
	var err error
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		svc.log.Warn("sqlite writer init failed, continuing without journal", "err", err)
	} else {
		svc.sqlWriter.SetMetrics(svc.prom)
	}
	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		svc.log.Warn("sqlite reader init failed, continuing without backfill", "err", err)
	}
	svc.health.SetSQLite(true, svc.sqlWriter != nil)

	// ---- Connect to Redis ----
	if cfg.RedisEnabled {
		svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.redisWriter.SetMetrics(svc.prom)
		cb := redisstore.NewCircuitBreaker("redis-results", 5, 10*time.Second)
		cb.OnStateChange = func(_, to redisstore.State) {
			svc.health.SetRedis(true, to != redisstore.StateOpen)
		}
		bw := redisstore.NewBufferedWriter(svc.redisWriter, cb, 0)
		bw.OnDrop = func(n int) { svc.prom.ResultsDropped.Add(float64(n)) }
		bw.OnFlush = func(n int) { svc.log.Info("flushed buffered results", "count", n) }
		svc.results = bw
	}
	svc.health.SetRedis(cfg.RedisEnabled, svc.redisWriter != nil)

	// ---- Indicator set ----
	specs, origin, err := svc.loadSpecs(context.Background())
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.pool, err = indicator.NewPool(cfg.Workers, specs,
		indicator.WithLogger(slog.Default()), indicator.WithMetrics(svc.prom))
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.setSpecs(specs)
	svc.log.Info("indicator set loaded", "from", origin, "indicators", len(specs), "workers", cfg.Workers)

	svc.hub = gateway.NewHub(svc.prom)
	svc.notifier = buildNotifier(cfg)

	// ---- Feed ----
	svc.source, err = svc.buildSource()
	if err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

// Run starts all subsystems and blocks until the feed is exhausted and every
// result has been written, or ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	svc.log.Info("starting indicator engine", "feed", cfg.FeedKind, "tfs", svc.tfs)

	auxCtx, auxCancel := context.WithCancel(ctx)
	defer auxCancel()

	// ---- HTTP: metrics + health, gateway + reload ----
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, svc.health, nil)
	metricsSrv.Start()

	gwSrv := &http.Server{
		Addr:              cfg.GatewayAddr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		svc.log.Info("gateway listening", "addr", cfg.GatewayAddr)
		if err := gwSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			svc.log.Error("gateway server error", "err", err)
		}
	}()

	svc.health.StartLivenessChecker(auxCtx, svc.redisClient(), svc.sqlDB(), 10*time.Second)
	if svc.redisWriter != nil {
		go svc.subscribeConfig(auxCtx, svc.redisWriter.Client())
	}
	if svc.hubFromRedis() {
		go svc.hub.RunPubSub(auxCtx, svc.redisWriter.Client())
	}

	// ---- Warm up from stored bars ----
	if cfg.FeedKind != config.FeedHistory && svc.sqlReader != nil {
		n, err := indicator.Backfill(ctx, svc.pool, svc.sqlReader, svc.tfs, cfg.BackfillBars, svc.publishBackfill(ctx))
		if err != nil {
			svc.log.Warn("backfill incomplete", "bars", n, "err", err)
		} else if n > 0 {
			svc.log.Info("warmed up indicators from history", "bars", n)
		}
	}

	// ---- Pipeline ----
	err := svc.runPipeline(ctx)

	// ---- Graceful shutdown ----
	auxCancel()
	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	gwSrv.Shutdown(shutCtx)
	metricsSrv.Stop(shutCtx)
	svc.Close()
	svc.log.Info("shutdown complete")
	return err
}

// runPipeline runs feed → pool → sinks until the feed ends or ctx is done.
func (svc *Service) runPipeline(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	raw := make(chan model.Bar, barBuffer)
	bars := make(chan model.Bar, barBuffer)
	results := make(chan model.IndicatorResult, resultBuffer)

	g.Go(func() error {
		defer close(raw)
		svc.health.SetFeedRunning(true)
		defer svc.health.SetFeedRunning(false)
		err := svc.source.Run(gctx, raw)
		if err != nil && gctx.Err() == nil {
			svc.prom.FeedErrors.WithLabelValues(svc.cfg.FeedKind).Inc()
			return fmt.Errorf("feed %s: %w", svc.cfg.FeedKind, err)
		}
		svc.log.Info("feed finished", "feed", svc.cfg.FeedKind)
		return nil
	})
	var journal chan model.Bar
	if svc.sqlWriter != nil && svc.cfg.JournalBars && svc.cfg.FeedKind != config.FeedHistory {
		journal = make(chan model.Bar, barBuffer)
		g.Go(func() error {
			svc.sqlWriter.RunBars(gctx, journal)
			return nil
		})
	}
	g.Go(func() error {
		defer close(bars)
		if journal != nil {
			defer close(journal)
		}
		svc.tap(gctx, raw, bars, journal)
		return nil
	})
	g.Go(func() error {
		defer close(results)
		return svc.pool.Run(gctx, bars, results)
	})

	fan := bus.New[model.IndicatorResult]()
	fan.OnDrop = func(int) { svc.prom.ResultsDropped.Inc() }
	if svc.results != nil {
		ch := fan.Subscribe(resultBuffer, false)
		g.Go(func() error {
			runBatches(gctx, "redis", ch, svc.results)
			return nil
		})
	}
	if svc.sqlWriter != nil {
		ch := fan.Subscribe(resultBuffer, false)
		g.Go(func() error {
			svc.sqlWriter.RunSignals(gctx, ch)
			return nil
		})
	}
	if svc.notifier != nil {
		ch := fan.Subscribe(resultBuffer, true)
		g.Go(func() error {
			notification.Run(gctx, svc.notifier, ch)
			return nil
		})
	}
	if !svc.hubFromRedis() {
		hubCh := fan.Subscribe(resultBuffer, true)
		g.Go(func() error {
			svc.hub.Run(gctx, hubCh)
			return nil
		})
	}
	g.Go(func() error {
		fan.Run(gctx, results)
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildNotifier returns the configured alert targets, or nil when none is.
func buildNotifier(cfg *config.Config) notification.Notifier {
	var targets notification.Multi
	if cfg.NotifyLog {
		targets = append(targets, notification.NewLogNotifier(nil))
	}
	if cfg.NotifyWebhookURL != "" {
		targets = append(targets, notification.NewWebhookNotifier(cfg.NotifyWebhookURL, cfg.NotifyWebhookToken))
	}
	if cfg.TelegramBotToken != "" {
		targets = append(targets, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	switch len(targets) {
	case 0:
		return nil
	case 1:
		return targets[0]
	}
	return targets
}

// tap records feed liveness for each bar on its way to the pool, and copies it
// to journal when that is non-nil.
func (svc *Service) tap(ctx context.Context, in <-chan model.Bar, out, journal chan<- model.Bar) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-in:
			if !ok {
				return
			}
			svc.health.SetLastBarTime(b.TS)
			svc.prom.BarLag.Set(time.Since(b.TS).Seconds())
			select {
			case out <- b:
			case <-ctx.Done():
				return
			}
			if journal == nil {
				continue
			}
			select {
			case journal <- b:
			case <-ctx.Done():
				return
			}
		}
	}
}

// publishBackfill returns the callback that writes warm-up results to Redis,
// or nil when Redis is off.
func (svc *Service) publishBackfill(ctx context.Context) func([]model.IndicatorResult) {
	if svc.results == nil {
		return nil
	}
	return func(results []model.IndicatorResult) {
		if err := svc.results.WriteResultBatch(ctx, results); err != nil {
			svc.log.Warn("backfill publish failed", "results", len(results), "err", err)
		}
	}
}

// hubFromRedis reports whether the gateway hub reads results back from Redis
// PubSub rather than from the local pool.
func (svc *Service) hubFromRedis() bool {
	return svc.cfg.GatewayPubSub && svc.redisWriter != nil
}

func (svc *Service) sqlDB() *sql.DB {
	if svc.sqlWriter == nil {
		return nil
	}
	return svc.sqlWriter.DB()
}

func (svc *Service) redisClient() *goredis.Client {
	if svc.redisWriter == nil {
		return nil
	}
	return svc.redisWriter.Client()
}

// Specs returns the active indicator set.
func (svc *Service) Specs() []indicator.Spec {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.specs
}

func (svc *Service) setSpecs(specs []indicator.Spec) {
	svc.mu.Lock()
	svc.specs = specs
	svc.mu.Unlock()

	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	svc.health.SetIndicators(names)
}

// Close releases stores and connections. Safe to call on a partially built
// Service.
func (svc *Service) Close() {
	if svc.source != nil {
		if c, ok := svc.source.(interface{ Close() error }); ok {
			c.Close()
		}
	}
	if svc.sqlReader != nil {
		svc.sqlReader.Close()
		svc.sqlReader = nil
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
		svc.sqlWriter = nil
	}
	if svc.results != nil {
		svc.results.Close()
		svc.results, svc.redisWriter = nil, nil
	} else if svc.redisWriter != nil {
		svc.redisWriter.Close()
		svc.redisWriter = nil
	}
}
