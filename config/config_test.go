package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"streamta/internal/indicator"
)

func clearEnv(t *testing.T) {
	t.Helper()
	// Keep a stray .env in the test dir from leaking in.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	for _, k := range []string{
		"REDIS_ADDR", "WORKERS", "FEED_KIND", "FEED_PATH", "FEED_SPEED",
		"ENABLED_TFS", "INSTRUMENTS", "CONSUMER_NAME", "LOG_FORMAT",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "JOURNAL_BARS",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.Workers != 4 || cfg.FeedKind != FeedRedis {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.ConsumerName == "" {
		t.Error("consumer name not derived")
	}
	if !cfg.JournalBars {
		t.Error("bar journal should default on")
	}
	if got := cfg.ParseTFs(); !reflect.DeepEqual(got, []int{60, 300}) {
		t.Errorf("ParseTFs = %v", got)
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("WORKERS", "8")
	t.Setenv("FEED_KIND", "csv")
	t.Setenv("FEED_PATH", "bars.csv")
	t.Setenv("INSTRUMENTS", "NSE:26000,BSE:1")
	t.Setenv("ENABLED_TFS", "60, x, -5, 900")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 8 || cfg.FeedPath != "bars.csv" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Instruments, []string{"NSE:26000", "BSE:1"}) {
		t.Errorf("Instruments = %v", cfg.Instruments)
	}
	if got := cfg.ParseTFs(); !reflect.DeepEqual(got, []int{60, 900}) {
		t.Errorf("ParseTFs = %v", got)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"workers", map[string]string{"WORKERS": "0"}, "WORKERS"},
		{"feed kind", map[string]string{"FEED_KIND": "kafka"}, "FEED_KIND"},
		{"feed path", map[string]string{"FEED_KIND": "parquet"}, "FEED_PATH"},
		{"speed", map[string]string{"FEED_SPEED": "-1"}, "FEED_SPEED"},
		{"tfs", map[string]string{"ENABLED_TFS": "x"}, "ENABLED_TFS"},
		{"type", map[string]string{"WORKERS": "many"}, "WORKERS"},
		{"telegram", map[string]string{"TELEGRAM_BOT_TOKEN": "t"}, "TELEGRAM_CHAT_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	if err := os.WriteFile(".env", []byte("WORKERS=3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("WORKERS") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3 from .env", cfg.Workers)
	}
}

func TestLoadIndicatorsShippedFile(t *testing.T) {
	inds, err := LoadIndicators("indicators.yaml")
	if err != nil {
		t.Fatalf("LoadIndicators: %v", err)
	}
	specs, err := indicator.FromStored(inds)
	if err != nil {
		t.Fatalf("FromStored: %v", err)
	}
	if err := indicator.ValidateSpecs(specs); err != nil {
		t.Fatalf("ValidateSpecs: %v", err)
	}
	if len(specs) != 2 || specs[0].Name != "coppock" {
		t.Errorf("specs = %+v", specs)
	}
}

func TestParseIndicatorsErrors(t *testing.T) {
	tests := map[string]string{
		"no name": "indicators:\n  - kind: coppock_curve\n",
		"no kind": "indicators:\n  - name: c\n",
		"bad doc": "indicators: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseIndicators([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestMarshalIndicatorsRoundTrip(t *testing.T) {
	specs := []indicator.Spec{{Name: "c", Config: ptr(indicator.DefaultCoppockCurve())}}
	data, err := MarshalIndicators(indicator.ToStored(specs))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	back, err := LoadIndicators(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, indicator.ToStored(specs)) {
		t.Errorf("round trip = %+v", back)
	}
}

func ptr[T any](v T) *T { return &v }
