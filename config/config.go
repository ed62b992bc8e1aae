// Package config loads service settings from the environment (with an
// optional .env file) and the indicator set from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"streamta/internal/model"
)

// Feed kinds accepted in FEED_KIND.
const (
	FeedRedis   = "redis"
	FeedCSV     = "csv"
	FeedParquet = "parquet"
	FeedHistory = "history"
)

// Config holds the service configuration.
type Config struct {
	// Infrastructure
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisEnabled  bool   `envconfig:"REDIS_ENABLED" default:"true"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"data/streamta.db"`
	MetricsAddr   string `envconfig:"METRICS_ADDR" default:":9090"`
	GatewayAddr   string `envconfig:"GATEWAY_ADDR" default:":9091"`

	// Feed the websocket gateway from Redis PubSub instead of in-process, so
	// it shows the results of every engine publishing to the same Redis.
	GatewayPubSub bool `envconfig:"GATEWAY_PUBSUB" default:"false"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Engine
	Workers        int    `envconfig:"WORKERS" default:"4"`
	IndicatorsFile string `envconfig:"INDICATORS_FILE" default:"config/indicators.yaml"`
	BackfillBars   int    `envconfig:"BACKFILL_BARS" default:"500"`

	// Store live bars in SQLite for later warm-up. Ignored for the history feed.
	JournalBars bool `envconfig:"JOURNAL_BARS" default:"true"`

	// Timeframes in seconds, comma-separated, e.g. "60,300,900".
	EnabledTFs string `envconfig:"ENABLED_TFS" default:"60,300"`

	// Feed
	FeedKind     string  `envconfig:"FEED_KIND" default:"redis"`
	FeedPath     string  `envconfig:"FEED_PATH"`
	FeedSpeed    float64 `envconfig:"FEED_SPEED" default:"0"`
	FeedExchange string  `envconfig:"FEED_EXCHANGE" default:"NSE"`
	FeedToken    string  `envconfig:"FEED_TOKEN"`
	FeedFromTS   int64   `envconfig:"FEED_FROM_TS" default:"0"`

	// TF of file rows that carry none, and the base TF when resampling;
	// 0 means the smallest enabled TF.
	FeedTF int `envconfig:"FEED_TF" default:"0"`

	// Aggregate feed bars into ENABLED_TFS.
	Resample bool `envconfig:"RESAMPLE" default:"false"`

	// Redis feed instruments as "exchange:token" pairs.
	Instruments   []string `envconfig:"INSTRUMENTS"`
	ConsumerGroup string   `envconfig:"CONSUMER_GROUP" default:"indengine"`
	ConsumerName  string   `envconfig:"CONSUMER_NAME"`

	ShutdownGrace time.Duration `envconfig:"SHUTDOWN_GRACE" default:"5s"`

	// Signal alerts
	NotifyLog          bool   `envconfig:"NOTIFY_LOG" default:"false"`
	NotifyWebhookURL   string `envconfig:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookToken string `envconfig:"NOTIFY_WEBHOOK_TOKEN"`
	TelegramBotToken   string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID     string `envconfig:"TELEGRAM_CHAT_ID"`
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ConsumerName == "" {
		host, _ := os.Hostname()
		cfg.ConsumerName = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: WORKERS must be >= 1, got %d", c.Workers)
	}
	switch c.FeedKind {
	case FeedRedis, FeedHistory:
	case FeedCSV, FeedParquet:
		if c.FeedPath == "" {
			return fmt.Errorf("config: FEED_PATH is required for feed %q", c.FeedKind)
		}
	default:
		return fmt.Errorf("config: unknown FEED_KIND %q", c.FeedKind)
	}
	if c.FeedSpeed < 0 {
		return fmt.Errorf("config: FEED_SPEED must be >= 0, got %v", c.FeedSpeed)
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return errors.New("config: TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	if len(c.ParseTFs()) == 0 {
		return fmt.Errorf("config: ENABLED_TFS has no valid timeframe: %q", c.EnabledTFs)
	}
	return nil
}

// ParseTFs parses EnabledTFs into timeframe durations in seconds, skipping
// invalid entries.
func (c *Config) ParseTFs() []int {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			slog.Warn("skipping invalid TF value", "value", p)
			continue
		}
		tfs = append(tfs, n)
	}
	return tfs
}

// IndicatorFile is the YAML layout of the indicator set.
type IndicatorFile struct {
	Indicators []model.StoredIndicator `yaml:"indicators"`
}

// LoadIndicators reads the named indicator set from a YAML file. Params are
// left as strings; they are applied through each config's Set.
func LoadIndicators(path string) ([]model.StoredIndicator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseIndicators(data)
}

// ParseIndicators decodes an IndicatorFile document.
func ParseIndicators(data []byte) ([]model.StoredIndicator, error) {
	var f IndicatorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("indicators yaml: %w", err)
	}
	for i, ind := range f.Indicators {
		if ind.Name == "" {
			return nil, fmt.Errorf("indicators yaml: entry %d has no name", i)
		}
		if ind.Kind == "" {
			return nil, fmt.Errorf("indicators yaml: %q has no kind", ind.Name)
		}
	}
	return f.Indicators, nil
}

// MarshalIndicators encodes the indicator set as an IndicatorFile document.
func MarshalIndicators(inds []model.StoredIndicator) ([]byte, error) {
	return yaml.Marshal(IndicatorFile{Indicators: inds})
}
