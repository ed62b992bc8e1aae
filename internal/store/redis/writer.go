// Package redis publishes indicator results to Redis and consumes live bars
// from Redis Streams.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"streamta/internal/metrics"
	"streamta/internal/model"
)

const defaultLatestTTL = 30 * time.Minute

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes bars and indicator results to Redis.
type Writer struct {
	client *goredis.Client
	prom   *metrics.Metrics
}

var _ model.ResultWriter = (*Writer)(nil)

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// SetMetrics makes the writer report write latency to m.
func (w *Writer) SetMetrics(m *metrics.Metrics) { w.prom = m }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client, err := dial(cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, err
	}
	slog.Info("redis writer connected", "addr", cfg.Addr)
	return &Writer{client: client}, nil
}

func dial(addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// streamMaxLen keeps roughly 3h of entries for a TF, at least 200.
func streamMaxLen(tf int) int64 {
	if tf <= 0 {
		return 200
	}
	maxLen := int64(10800/tf) + 100
	if maxLen < 200 {
		maxLen = 200
	}
	return maxLen
}

// WriteResultBatch writes results in a single pipeline: XADD to the result
// stream, SET of the latest value and PUBLISH for live subscribers.
func (w *Writer) WriteResultBatch(ctx context.Context, results []model.IndicatorResult) error {
	if len(results) == 0 {
		return nil
	}
	start := time.Now()

	pipe := w.client.Pipeline()
	for i := range results {
		r := &results[i]
		data := string(r.JSON())

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: r.StreamKey(),
			MaxLen: streamMaxLen(r.TF),
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Set(ctx, r.LatestKey(), data, defaultLatestTTL)
		pipe.Publish(ctx, r.PubSubChannel(), data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis result pipeline (%d results): %w", len(results), err)
	}
	if w.prom != nil {
		w.prom.RedisWriteDur.Observe(time.Since(start).Seconds())
	}
	return nil
}

// WriteBars appends bars to their series streams. Used to seed streams for
// replay and by feed tooling.
func (w *Writer) WriteBars(ctx context.Context, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	pipe := w.client.Pipeline()
	for i := range bars {
		b := &bars[i]
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: b.StreamKey(),
			MaxLen: streamMaxLen(b.TF),
			Approx: true,
			Values: map[string]interface{}{"data": string(b.JSON())},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis bar pipeline (%d bars): %w", len(bars), err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
