// Package metrics exposes Prometheus metrics and a health endpoint for the
// indicator engine.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the indicator engine.
type Metrics struct {
	BarsTotal      prometheus.Counter
	ResultsTotal   *prometheus.CounterVec // labels: indicator
	SignalsTotal   *prometheus.CounterVec // labels: indicator, signal, action
	InitFailures   *prometheus.CounterVec // labels: indicator
	ComputeDur     prometheus.Histogram
	SeriesActive   prometheus.Gauge
	BarLag         prometheus.Gauge
	ResultsDropped prometheus.Counter

	// Sinks
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram
	WSClients       prometheus.Gauge

	// Feeds
	FeedErrors *prometheus.CounterVec // labels: feed
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the Prometheus default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BarsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_bars_total",
			Help: "Total bars fed to indicator instances",
		}),
		ResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_results_total",
			Help: "Total indicator results produced (by indicator)",
		}, []string{"indicator"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_signals_total",
			Help: "Non-neutral signals emitted (by indicator, signal index and action)",
		}, []string{"indicator", "signal", "action"}),
		InitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_init_failures_total",
			Help: "Series whose indicator instances could not be initialized",
		}, []string{"indicator"}),
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_compute_duration_seconds",
			Help:    "Indicator compute latency per bar (all indicators of a series)",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		SeriesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_series_active",
			Help: "Series with live indicator instances",
		}),
		BarLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_bar_lag_seconds",
			Help: "Lag between the latest bar timestamp and processing time",
		}),
		ResultsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "indengine_results_dropped_total",
			Help: "Results dropped because a sink channel was full",
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_redis_write_duration_seconds",
			Help:    "Redis result batch write latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "indengine_sqlite_commit_duration_seconds",
			Help:    "SQLite signal journal commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "indengine_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		FeedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indengine_feed_errors_total",
			Help: "Bar feed errors (by feed)",
		}, []string{"feed"}),
	}

	reg.MustRegister(
		m.BarsTotal,
		m.ResultsTotal,
		m.SignalsTotal,
		m.InitFailures,
		m.ComputeDur,
		m.SeriesActive,
		m.BarLag,
		m.ResultsDropped,
		m.RedisWriteDur,
		m.SQLiteCommitDur,
		m.WSClients,
		m.FeedErrors,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteEnabled  bool      `json:"sqlite_enabled"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	FeedRunning    bool      `json:"feed_running"`
	LastBarTime    time.Time `json:"last_bar_time"`
	Indicators     []string  `json:"indicators"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRedis(enabled, connected bool) {
	h.mu.Lock()
	h.RedisEnabled, h.RedisConnected = enabled, connected
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLite(enabled, ok bool) {
	h.mu.Lock()
	h.SQLiteEnabled, h.SQLiteOK = enabled, ok
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedRunning(v bool) {
	h.mu.Lock()
	h.FeedRunning = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetIndicators(names []string) {
	h.mu.Lock()
	h.Indicators = names
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil dependencies are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// status computes the overall state: "healthy", "degraded" or "unhealthy".
// Only enabled dependencies count.
func (h *HealthStatus) status() (string, int) {
	redisDown := h.RedisEnabled && !h.RedisConnected
	sqliteDown := h.SQLiteEnabled && !h.SQLiteOK

	switch {
	case !h.FeedRunning || (redisDown && sqliteDown):
		return "unhealthy", http.StatusServiceUnavailable
	case redisDown || sqliteDown:
		return "degraded", http.StatusServiceUnavailable
	default:
		return "healthy", http.StatusOK
	}
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus, httpCode := h.status()

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedRunning     bool     `json:"feed_running"`
		BarAge          string   `json:"bar_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		Indicators      []string `json:"indicators"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedRunning:     h.FeedRunning,
		BarAge:          barAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Indicators:      h.Indicators,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server. A nil gatherer serves the
// Prometheus default gatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", "err", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
