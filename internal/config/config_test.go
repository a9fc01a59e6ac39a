package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/STRATINT/eventcurator/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != defaultDataDir {
		t.Errorf("expected default data dir %q, got %q", defaultDataDir, cfg.Storage.DataDir)
	}
	if cfg.Pipeline.RunTimeout != defaultRunTimeout {
		t.Errorf("expected default run timeout %v, got %v", defaultRunTimeout, cfg.Pipeline.RunTimeout)
	}
	if cfg.Pipeline.ConcurrentFetches != defaultConcurrentFetches {
		t.Errorf("expected %d concurrent fetches, got %d", defaultConcurrentFetches, cfg.Pipeline.ConcurrentFetches)
	}
	if cfg.Pipeline.Location.String() != defaultTimezone {
		t.Errorf("expected timezone %q, got %q", defaultTimezone, cfg.Pipeline.Location)
	}
	if cfg.Editorial.Retention != 60*24*time.Hour {
		t.Errorf("expected 60 day retention, got %v", cfg.Editorial.Retention)
	}
	if !cfg.Editorial.AutoRejectEnabled {
		t.Error("expected auto-reject to be enabled by default")
	}
	if cfg.Dedup.DateTolerance != 24*time.Hour {
		t.Errorf("expected 24h date tolerance, got %v", cfg.Dedup.DateTolerance)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"DATA_DIR":                   "/var/lib/events",
		"RUN_TIMEOUT_SECONDS":        "30",
		"CONCURRENT_FETCHES":         "8",
		"TIMEZONE":                   "UTC",
		"RETENTION_DAYS":             "30",
		"AUTO_REJECT_ENABLED":        "false",
		"AUTO_REJECT_EXEMPT":         "weekly-*, market-?",
		"DEDUP_DATE_TOLERANCE_HOURS": "12",
		"DEDUP_DISTANCE_KM":          "1.5",
		"COORD_PRECISION":            "4",
		"LOG_LEVEL":                  "debug",
		"LOG_FORMAT":                 "text",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.DataDir != "/var/lib/events" {
		t.Errorf("unexpected data dir %q", cfg.Storage.DataDir)
	}
	if cfg.Pipeline.RunTimeout != 30*time.Second {
		t.Errorf("expected run timeout %v, got %v", 30*time.Second, cfg.Pipeline.RunTimeout)
	}
	if cfg.Pipeline.ConcurrentFetches != 8 {
		t.Errorf("expected 8 concurrent fetches, got %d", cfg.Pipeline.ConcurrentFetches)
	}
	if cfg.Pipeline.Location != time.UTC {
		t.Errorf("expected UTC, got %v", cfg.Pipeline.Location)
	}
	if cfg.Editorial.Retention != 30*24*time.Hour {
		t.Errorf("expected 30 day retention, got %v", cfg.Editorial.Retention)
	}
	if cfg.Editorial.AutoRejectEnabled {
		t.Error("expected auto-reject to be disabled")
	}
	if got := strings.Join(cfg.Editorial.AutoRejectExempt, "|"); got != "weekly-*|market-?" {
		t.Errorf("unexpected exempt list %q", got)
	}
	if cfg.Dedup.DateTolerance != 12*time.Hour {
		t.Errorf("expected 12h tolerance, got %v", cfg.Dedup.DateTolerance)
	}
	if cfg.Dedup.DistanceKM != 1.5 {
		t.Errorf("expected 1.5km, got %v", cfg.Dedup.DistanceKM)
	}
	if cfg.Dedup.CoordPrecision != 4 {
		t.Errorf("expected precision 4, got %d", cfg.Dedup.CoordPrecision)
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("expected log level %v, got %v", slog.LevelDebug, cfg.Logging.Level)
	}
	if cfg.Logging.Format != overrides["LOG_FORMAT"] {
		t.Errorf("expected log format %q, got %q", overrides["LOG_FORMAT"], cfg.Logging.Format)
	}
}

func TestLoadWithInvalidValues(t *testing.T) {
	tests := map[string]string{
		"RUN_TIMEOUT_SECONDS":        "-1",
		"CONCURRENT_FETCHES":         "0",
		"RETENTION_DAYS":             "abc",
		"AUTO_REJECT_ENABLED":        "maybe",
		"DEDUP_DISTANCE_KM":          "-2",
		"DEDUP_DATE_TOLERANCE_HOURS": "3.5",
		"COORD_PRECISION":            "12",
		"DEDUP_TITLE_SIMILARITY":     "1.5",
		"TIMEZONE":                   "Mars/Olympus_Mons",
		"LOG_LEVEL":                  "verbose",
		"LOG_FORMAT":                 "xml",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(key, value)

			if _, err := Load(); err == nil {
				t.Fatalf("expected error when %s=%q", key, value)
			}
		})
	}
}

func TestLoadDatabaseURL(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    string
		wantErr bool
	}{
		{
			name: "none selects file store",
			want: "",
		},
		{
			name: "direct url wins",
			env: map[string]string{
				"DATABASE_URL":             "postgres://curator@localhost/events",
				"INSTANCE_CONNECTION_NAME": "proj:region:inst",
			},
			want: "postgres://curator@localhost/events",
		},
		{
			name: "cloud sql socket with password",
			env: map[string]string{
				"INSTANCE_CONNECTION_NAME": "proj:region:inst",
				"DB_USER":                  "curator",
				"DB_PASSWORD":              "secret",
				"DB_NAME":                  "events",
			},
			want: "host=/cloudsql/proj:region:inst user=curator password=secret dbname=events sslmode=disable",
		},
		{
			name: "cloud sql socket with iam auth",
			env: map[string]string{
				"INSTANCE_CONNECTION_NAME": "proj:region:inst",
				"DB_USER":                  "curator",
				"DB_NAME":                  "events",
			},
			want: "host=/cloudsql/proj:region:inst user=curator dbname=events sslmode=disable",
		},
		{
			name:    "cloud sql without user",
			env:     map[string]string{"INSTANCE_CONNECTION_NAME": "proj:region:inst"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load returned error: %v", err)
			}
			if cfg.Storage.DatabaseURL != tt.want {
				t.Errorf("DatabaseURL = %q, want %q", cfg.Storage.DatabaseURL, tt.want)
			}
		})
	}
}

func TestParseLogLevelAliases(t *testing.T) {
	tests := map[string]slog.Level{
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
	}

	for input, expected := range tests {
		level, err := parseLogLevel(input)
		if err != nil {
			t.Fatalf("parseLogLevel(%q) returned error: %v", input, err)
		}

		if level != expected {
			t.Errorf("parseLogLevel(%q) = %v, want %v", input, level, expected)
		}
	}
}

func TestLoadDoesNotPersistEnvBetweenRuns(t *testing.T) {
	clearConfigEnv(t)

	t.Setenv("RUN_TIMEOUT_SECONDS", "5")
	if _, err := Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.Unsetenv("RUN_TIMEOUT_SECONDS"); err != nil {
		t.Fatalf("failed to unset env: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Pipeline.RunTimeout != defaultRunTimeout {
		t.Errorf("expected default run timeout after reset, got %v", cfg.Pipeline.RunTimeout)
	}
}

func TestParsePipeline(t *testing.T) {
	doc := `
sources:
  - name: stadt-hof
    url: https://www.hof.de/veranstaltungen.rss
    type: rss
    options:
      filter_ads: true
      exclude_keywords: [Gewinnspiel]
      max_days_ahead: 90
      default_location: {name: Hof, lat: 50.3167, lon: 11.9167}
      category: community
  - name: flyers
    url: https://example.org/flyers
    type: image
    enabled: false
providers:
  - name: openai
    kind: paid
    backend: openai
    priority: 2
    api_key_env: OPENAI_API_KEY
    min_delay: 1s
    max_delay: 3s
    max_requests: 50
  - name: pollinations
    kind: free
    backend: web
    priority: 1
    min_delay: 2s
    max_delay: 5s
auto_reject:
  keywords: [casino]
`
	p, err := ParsePipeline([]byte(doc))
	if err != nil {
		t.Fatalf("ParsePipeline returned error: %v", err)
	}

	if len(p.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(p.Sources))
	}
	enabled := p.EnabledSources()
	if len(enabled) != 1 || enabled[0].Name != "stadt-hof" {
		t.Fatalf("expected only stadt-hof enabled, got %+v", enabled)
	}

	opts := enabled[0].Options
	if !opts.FilterAds || opts.MaxDaysAhead != 90 || opts.DefaultLocation == nil || opts.DefaultLocation.Lat != 50.3167 {
		t.Errorf("options not decoded: %+v", opts)
	}

	if p.Providers[0].Name != "pollinations" {
		t.Errorf("providers not sorted by priority: %s first", p.Providers[0].Name)
	}
	if p.Providers[1].MinDelay != time.Second || p.Providers[1].MaxDelay != 3*time.Second {
		t.Errorf("delays not decoded: %+v", p.Providers[1])
	}
	if p.Providers[1].Kind != models.ProviderKindPaid {
		t.Errorf("unexpected kind %q", p.Providers[1].Kind)
	}
	if len(p.AutoReject.Keywords) != 1 {
		t.Errorf("expected auto-reject keyword, got %v", p.AutoReject.Keywords)
	}
}

func TestParsePipelineRejectsInvalidEntries(t *testing.T) {
	tests := map[string]string{
		"unknown type":     "sources: [{name: a, url: http://x, type: ftp}]",
		"missing url":      "sources: [{name: a, type: rss}]",
		"duplicate name":   "sources: [{name: a, url: http://x, type: rss}, {name: a, url: http://y, type: rss}]",
		"unknown kind":     "providers: [{name: p, kind: magic}]",
		"inverted delays":  "providers: [{name: p, kind: free, min_delay: 5s, max_delay: 1s}]",
		"malformed yaml":   "sources: [",
		"negative horizon": "sources: [{name: a, url: http://x, type: rss, options: {max_days_ahead: -1}}]",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParsePipeline([]byte(doc)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"DATA_DIR",
		"DATABASE_URL",
		"INSTANCE_CONNECTION_NAME",
		"DB_USER",
		"DB_PASSWORD",
		"DB_NAME",
		"PIPELINE_FILE",
		"RUN_TIMEOUT_SECONDS",
		"CONCURRENT_FETCHES",
		"TIMEZONE",
		"RETENTION_DAYS",
		"STALE_AFTER_DAYS",
		"AUTO_REJECT_ENABLED",
		"AUTO_REJECT_EXEMPT",
		"DEDUP_DATE_TOLERANCE_HOURS",
		"DEDUP_DISTANCE_KM",
		"COORD_PRECISION",
		"DEDUP_TITLE_SIMILARITY",
		"OCR_LANGUAGES",
		"TESSERACT_BIN",
		"METRICS_FILE",
		"LOG_LEVEL",
		"LOG_FORMAT",
	}

	for _, key := range keys {
		t.Setenv(key, "")
	}
}
