package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without a zoneinfo database
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Logging    LoggingConfig
	Storage    StorageConfig
	Pipeline   PipelineConfig
	Dedup      DedupConfig
	Editorial  EditorialConfig
	Imaging    ImagingConfig
	MetricsOut string
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// StorageConfig selects and parameterises the persistence backend.
type StorageConfig struct {
	DataDir     string
	DatabaseURL string
}

// PipelineConfig holds scrape run parameters.
type PipelineConfig struct {
	File              string
	RunTimeout        time.Duration
	ConcurrentFetches int
	Location          *time.Location
}

// DedupConfig holds the near-duplicate matching thresholds.
type DedupConfig struct {
	DateTolerance   time.Duration
	DistanceKM      float64
	CoordPrecision  int
	TitleSimilarity float64
}

// EditorialConfig holds retention and auto-reject settings.
type EditorialConfig struct {
	Retention         time.Duration
	AutoRejectEnabled bool
	AutoRejectExempt  []string
	StaleAfter        time.Duration
}

// ImagingConfig holds OCR settings.
type ImagingConfig struct {
	OCRLanguages string
	TesseractBin string
}

const (
	defaultLogFormat         = "json"
	defaultDataDir           = "./data"
	defaultPipelineFile      = "pipeline.yaml"
	defaultRunTimeout        = 10 * time.Minute
	defaultConcurrentFetches = 3
	defaultTimezone          = "Europe/Berlin"
	defaultRetentionDays     = 60
	defaultToleranceHours    = 24
	defaultDistanceKM        = 0.5
	defaultCoordPrecision    = 5
	defaultTitleSimilarity   = 1.0
	defaultStaleAfterDays    = 2
	defaultOCRLanguages      = "deu+eng"
	defaultTesseractBin      = "tesseract"
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided.
func Load() (Config, error) {
	loc, err := time.LoadLocation(getEnv("TIMEZONE", defaultTimezone))
	if err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	dbURL, err := databaseURL()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Storage: StorageConfig{
			DataDir:     getEnv("DATA_DIR", defaultDataDir),
			DatabaseURL: dbURL,
		},
		Pipeline: PipelineConfig{
			File:              getEnv("PIPELINE_FILE", defaultPipelineFile),
			RunTimeout:        defaultRunTimeout,
			ConcurrentFetches: defaultConcurrentFetches,
			Location:          loc,
		},
		Dedup: DedupConfig{
			DateTolerance:   defaultToleranceHours * time.Hour,
			DistanceKM:      defaultDistanceKM,
			CoordPrecision:  defaultCoordPrecision,
			TitleSimilarity: defaultTitleSimilarity,
		},
		Editorial: EditorialConfig{
			Retention:         defaultRetentionDays * 24 * time.Hour,
			AutoRejectEnabled: true,
			StaleAfter:        defaultStaleAfterDays * 24 * time.Hour,
		},
		Imaging: ImagingConfig{
			OCRLanguages: getEnv("OCR_LANGUAGES", defaultOCRLanguages),
			TesseractBin: getEnv("TESSERACT_BIN", defaultTesseractBin),
		},
		MetricsOut: os.Getenv("METRICS_FILE"),
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("RUN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RUN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Pipeline.RunTimeout = d
	}

	if v := os.Getenv("CONCURRENT_FETCHES"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CONCURRENT_FETCHES: %w", err)
		}
		cfg.Pipeline.ConcurrentFetches = n
	}

	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETENTION_DAYS: %w", err)
		}
		cfg.Editorial.Retention = time.Duration(n) * 24 * time.Hour
	}

	if v := os.Getenv("STALE_AFTER_DAYS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid STALE_AFTER_DAYS: %w", err)
		}
		cfg.Editorial.StaleAfter = time.Duration(n) * 24 * time.Hour
	}

	if v := os.Getenv("AUTO_REJECT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid AUTO_REJECT_ENABLED: %w", err)
		}
		cfg.Editorial.AutoRejectEnabled = enabled
	}

	if v := os.Getenv("AUTO_REJECT_EXEMPT"); v != "" {
		cfg.Editorial.AutoRejectExempt = splitList(v)
	}

	if v := os.Getenv("DEDUP_DATE_TOLERANCE_HOURS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DEDUP_DATE_TOLERANCE_HOURS: %w", err)
		}
		cfg.Dedup.DateTolerance = time.Duration(n) * time.Hour
	}

	if v := os.Getenv("DEDUP_DISTANCE_KM"); v != "" {
		km, err := strconv.ParseFloat(v, 64)
		if err != nil || km < 0 {
			return Config{}, fmt.Errorf("invalid DEDUP_DISTANCE_KM: must be a non-negative number")
		}
		cfg.Dedup.DistanceKM = km
	}

	if v := os.Getenv("COORD_PRECISION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 8 {
			return Config{}, fmt.Errorf("invalid COORD_PRECISION: must be between 0 and 8")
		}
		cfg.Dedup.CoordPrecision = n
	}

	if v := os.Getenv("DEDUP_TITLE_SIMILARITY"); v != "" {
		sim, err := strconv.ParseFloat(v, 64)
		if err != nil || sim <= 0 || sim > 1 {
			return Config{}, fmt.Errorf("invalid DEDUP_TITLE_SIMILARITY: must be in (0, 1]")
		}
		cfg.Dedup.TitleSimilarity = sim
	}

	return cfg, nil
}

// databaseURL returns DATABASE_URL, or a Unix socket connection string for
// a Cloud SQL instance mounted at /cloudsql/INSTANCE_CONNECTION_NAME. An
// empty result selects the file store.
func databaseURL() (string, error) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	instance := os.Getenv("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", nil
	}

	dbUser := os.Getenv("DB_USER")
	dbName := os.Getenv("DB_NAME")
	if dbUser == "" || dbName == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	socketPath := "/cloudsql/" + instance
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			socketPath, dbUser, password, dbName), nil
	}
	// IAM authentication needs no password.
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable", socketPath, dbUser, dbName), nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
