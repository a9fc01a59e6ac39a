package eventmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/STRATINT/eventcurator/internal/dedup"
	"github.com/STRATINT/eventcurator/internal/ingestion"
	"github.com/STRATINT/eventcurator/internal/models"
	"github.com/STRATINT/eventcurator/internal/storage"
)

var (
	// ErrNoUsableInput means a scrape run had nothing to work with: no
	// sources, every source failed, or no candidates were fetched.
	ErrNoUsableInput = errors.New("no usable input")

	// ErrEventNotFound means a selector named an ID that is in no collection.
	ErrEventNotFound = errors.New("event not found")

	// ErrInvalidTransition means the event is not in a state the requested
	// action can move it from.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNoMatch means a wildcard selector matched no eligible event.
	ErrNoMatch = errors.New("pattern matched no events")
)

// Scraper runs one scrape over the given sources.
type Scraper interface {
	Run(ctx context.Context, sources []ingestion.Source) ingestion.RunResult
}

// Config holds editorial settings.
type Config struct {
	Retention         time.Duration
	StaleAfter        time.Duration
	AutoRejectEnabled bool
	RejectKeywords    []string
	Exempt            Exemption
	Location          *time.Location
	Now               func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Retention:         60 * 24 * time.Hour,
		StaleAfter:        2 * 24 * time.Hour,
		AutoRejectEnabled: true,
		Location:          time.UTC,
		Now:               time.Now,
	}
}

// Manager drives events through their editorial lifecycle:
// scrape → pending → published|rejected → archived.
type Manager struct {
	store   storage.Store
	scraper Scraper
	dedup   *dedup.Deduplicator
	sources []ingestion.Source
	config  Config
	logger  *slog.Logger
}

// NewManager creates a manager. scraper, dedup and sources are only needed
// for Scrape.
func NewManager(
	store storage.Store,
	scraper Scraper,
	deduplicator *dedup.Deduplicator,
	sources []ingestion.Source,
	logger *slog.Logger,
	config Config,
) *Manager {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Manager{
		store:   store,
		scraper: scraper,
		dedup:   deduplicator,
		sources: sources,
		config:  config,
		logger:  logger,
	}
}

// SourceCounts summarises source outcomes of a run.
type SourceCounts struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// CandidateCounts summarises candidate outcomes of a run.
type CandidateCounts struct {
	Fetched      int `json:"fetched"`
	Valid        int `json:"valid"`
	Invalid      int `json:"invalid"`
	Filtered     int `json:"filtered"`
	New          int `json:"new"`
	Merged       int `json:"merged"`
	AutoRejected int `json:"auto_rejected"`
	Ambiguous    int `json:"ambiguous"`
}

// RunSummary is the structured result of a scrape.
type RunSummary struct {
	RunID       string                     `json:"run_id"`
	Started     time.Time                  `json:"started"`
	Finished    time.Time                  `json:"finished"`
	TimedOut    bool                       `json:"timed_out,omitempty"`
	Sources     SourceCounts               `json:"sources"`
	Candidates  CandidateCounts            `json:"candidates"`
	AutoReject  AutoRejectSummary          `json:"auto_reject"`
	Collections map[models.EventStatus]int `json:"collections,omitempty"`
	Reports     []ingestion.SourceReport   `json:"source_reports,omitempty"`
	Invalid     []ingestion.Rejection      `json:"invalid,omitempty"`
	NewIDs      []string                   `json:"new_ids,omitempty"`
}

// Scrape fetches every source, merges the valid candidates into the
// collections, applies the auto-reject rules and persists the result.
// The summary is returned even when err is ErrNoUsableInput.
func (m *Manager) Scrape(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{Started: m.config.Now()}

	if len(m.sources) == 0 {
		summary.Finished = m.config.Now()
		return summary, fmt.Errorf("%w: no sources configured", ErrNoUsableInput)
	}

	result := m.scraper.Run(ctx, m.sources)
	summary.RunID = result.RunID
	summary.TimedOut = result.TimedOut
	summary.Reports = result.Sources
	summary.Invalid = result.Invalid
	summary.Sources = SourceCounts{
		Attempted: len(result.Sources),
		Succeeded: result.Count(ingestion.SourceStateSucceeded),
		Failed:    result.Count(ingestion.SourceStateFailed),
	}
	summary.Candidates.Fetched = result.Fetched()
	summary.Candidates.Valid = len(result.Candidates)
	summary.Candidates.Invalid = len(result.Invalid)
	summary.Candidates.Filtered = len(result.Filtered)

	// Valid candidates from sources cut off by the run timeout still count.
	if len(result.Candidates) == 0 {
		switch {
		case !result.Succeeded():
			summary.Finished = m.config.Now()
			return summary, fmt.Errorf("%w: all %d sources failed", ErrNoUsableInput, summary.Sources.Failed)
		case summary.Candidates.Fetched == 0:
			summary.Finished = m.config.Now()
			return summary, fmt.Errorf("%w: no candidates fetched", ErrNoUsableInput)
		}
	}

	cols, err := m.store.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load collections: %w", err)
	}

	now := m.config.Now()
	stats := m.dedup.Merge(&cols, result.Candidates, now)
	summary.Candidates.New = stats.New
	summary.Candidates.Merged = stats.Merged
	summary.Candidates.AutoRejected = stats.AutoRejected
	summary.Candidates.Ambiguous = stats.Ambiguous
	summary.NewIDs = stats.NewIDs

	summary.AutoReject = m.applyAutoReject(&cols, now)

	// Persist even if the run was cut short; partial results are kept.
	if err := m.store.Save(context.WithoutCancel(ctx), cols); err != nil {
		return summary, fmt.Errorf("failed to save collections: %w", err)
	}

	summary.Collections = cols.Sizes()
	summary.Finished = m.config.Now()
	m.logger.Info("scrape completed",
		"run_id", summary.RunID,
		"sources_succeeded", summary.Sources.Succeeded,
		"sources_failed", summary.Sources.Failed,
		"new", summary.Candidates.New,
		"merged", summary.Candidates.Merged,
		"auto_rejected", summary.Candidates.AutoRejected+summary.AutoReject.Total(),
	)
	return summary, nil
}

// Stats describes the stored collections.
type Stats struct {
	Collections map[models.EventStatus]int `json:"collections"`
	Archive     map[string]int             `json:"archive"`
}

// Stats returns collection sizes and the size of every archive partition.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	cols, err := m.store.Load(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to load collections: %w", err)
	}
	months, err := m.store.ArchiveMonths(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to list archive partitions: %w", err)
	}

	stats := Stats{Collections: cols.Sizes(), Archive: make(map[string]int, len(months))}
	for _, month := range months {
		events, err := m.store.LoadArchive(ctx, month)
		if err != nil {
			return Stats{}, fmt.Errorf("failed to load archive %s: %w", month, err)
		}
		stats.Archive[month] = len(events)
	}
	return stats, nil
}
