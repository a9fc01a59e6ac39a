package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/STRATINT/eventcurator/internal/config"
	"github.com/STRATINT/eventcurator/internal/database"
	"github.com/STRATINT/eventcurator/internal/dedup"
	"github.com/STRATINT/eventcurator/internal/enrichment"
	"github.com/STRATINT/eventcurator/internal/eventmanager"
	"github.com/STRATINT/eventcurator/internal/imaging"
	"github.com/STRATINT/eventcurator/internal/ingestion"
	"github.com/STRATINT/eventcurator/internal/logging"
	"github.com/STRATINT/eventcurator/internal/metrics"
	"github.com/STRATINT/eventcurator/internal/storage"
)

// app holds the wiring for one command invocation.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     storage.Store
	db        *sql.DB
	pg        *database.PostgresStore
	manager   *eventmanager.Manager
	collector *metrics.RunCollector
}

// withApp wires the application, runs fn and writes the metrics textfile.
// Scrape needs the full pipeline; the editorial commands only need the store.
func withApp(cmd *cobra.Command, command string, scrape bool, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	a, err := newApp(ctx, command, scrape)
	if err != nil {
		return err
	}
	defer a.close()

	runErr := fn(ctx, a)

	a.collector.ObserveRun(time.Since(started))
	if sizes, err := a.store.Load(ctx); err == nil {
		a.collector.CollectionSizes(sizes.Sizes())
	}
	if a.cfg.MetricsOut != "" {
		if err := a.collector.WriteTextfile(a.cfg.MetricsOut); err != nil {
			a.logger.Warn("failed to write metrics textfile", "path", a.cfg.MetricsOut, "error", err)
		}
	}
	return runErr
}

func newApp(ctx context.Context, command string, scrape bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	logger = logging.ForRun(logger, uuid.NewString(), command)

	collector, err := metrics.NewRunCollector()
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, collector: collector}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	pipelineFile, err := config.LoadPipeline(cfg.Pipeline.File)
	if err != nil {
		if scrape || !errors.Is(err, os.ErrNotExist) {
			a.close()
			return nil, fmt.Errorf("failed to load pipeline file: %w", err)
		}
		logger.Debug("pipeline file not found, using no auto-reject keywords", "path", cfg.Pipeline.File)
	}

	exempt := eventmanager.NewExemption(cfg.Editorial.AutoRejectExempt)
	managerCfg := eventmanager.Config{
		Retention:         cfg.Editorial.Retention,
		StaleAfter:        cfg.Editorial.StaleAfter,
		AutoRejectEnabled: cfg.Editorial.AutoRejectEnabled,
		RejectKeywords:    pipelineFile.AutoReject.Keywords,
		Exempt:            exempt,
		Location:          cfg.Pipeline.Location,
		Now:               time.Now,
	}

	if !scrape {
		a.manager = eventmanager.NewManager(a.store, nil, nil, nil, logger, managerCfg)
		return a, nil
	}

	client := &http.Client{Timeout: 30 * time.Second}

	registry := ingestion.NewRegistry(client, ingestion.DefaultRetryPolicy(), logger)
	sources, buildErrs := registry.BuildAll(pipelineFile.Sources)
	for _, err := range buildErrs {
		logger.Warn("skipping misconfigured source", "error", err)
	}

	providers, err := enrichment.NewProviders(pipelineFile.Providers, client, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to configure providers: %w", err)
	}
	gateway := enrichment.NewGateway(providers, cfg.Pipeline.Location, logger).WithObserver(collector)
	for _, p := range gateway.Providers() {
		logger.Debug("provider configured", "provider", p.Name(), "kind", p.Kind(), "available", p.Available())
	}

	ocr := imaging.NewTesseractRunner(cfg.Imaging.TesseractBin, cfg.Imaging.OCRLanguages)
	if !ocr.Available() {
		logger.Warn("tesseract not found, flyer images fall back to EXIF and post text", "binary", cfg.Imaging.TesseractBin)
	}
	analyzer := imaging.NewAnalyzer(imaging.NewExifReader(cfg.Pipeline.Location), ocr, gateway, cfg.Pipeline.Location, logger)

	pipeline := ingestion.NewPipeline(analyzer, gateway, logger, ingestion.PipelineConfig{
		ConcurrentFetches: cfg.Pipeline.ConcurrentFetches,
		RunTimeout:        cfg.Pipeline.RunTimeout,
		Location:          cfg.Pipeline.Location,
		Now:               time.Now,
	})

	deduplicator := dedup.New(dedup.Options{
		Location:        cfg.Pipeline.Location,
		CoordPrecision:  cfg.Dedup.CoordPrecision,
		DateTolerance:   cfg.Dedup.DateTolerance,
		DistanceKM:      cfg.Dedup.DistanceKM,
		TitleSimilarity: cfg.Dedup.TitleSimilarity,
		RejectRecurring: cfg.Editorial.AutoRejectEnabled,
		Exempt:          exempt.Match,
	}, logger)

	a.manager = eventmanager.NewManager(a.store, pipeline, deduplicator, sources, logger, managerCfg)
	return a, nil
}

// openStore uses Postgres when DATABASE_URL is set and the JSON file store
// otherwise.
func (a *app) openStore(ctx context.Context) error {
	if a.cfg.Storage.DatabaseURL == "" {
		store, err := storage.NewFileStore(a.cfg.Storage.DataDir, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open data dir: %w", err)
		}
		a.store = store
		return nil
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = a.cfg.Storage.DatabaseURL
	a.logger.Info("connecting to database", "url", database.RedactURL(dbCfg.URL))
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return err
	}
	if err := database.RunMigrations(ctx, db, database.Migrations(), a.logger); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.db = db
	a.pg = database.NewPostgresStore(db, a.logger)
	a.store = a.pg
	return nil
}

// databaseStats reports pool statistics and reachability for the Postgres
// store, or nil for the file store.
func (a *app) databaseStats(ctx context.Context) map[string]any {
	if a.pg == nil {
		return nil
	}
	stats := a.pg.PoolStats()
	stats["healthy"] = true
	if err := a.pg.Health(ctx); err != nil {
		stats["healthy"] = false
		stats["error"] = err.Error()
	}
	return stats
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

// recordScrape copies a run summary into the metrics collector.
func (a *app) recordScrape(s eventmanager.RunSummary) {
	a.collector.Sources("succeeded", s.Sources.Succeeded)
	a.collector.Sources("failed", s.Sources.Failed)
	for stage, n := range map[string]int{
		"fetched":       s.Candidates.Fetched,
		"valid":         s.Candidates.Valid,
		"invalid":       s.Candidates.Invalid,
		"filtered":      s.Candidates.Filtered,
		"new":           s.Candidates.New,
		"merged":        s.Candidates.Merged,
		"auto_rejected": s.Candidates.AutoRejected + s.AutoReject.Total(),
	} {
		a.collector.Candidates(stage, n)
	}
}
