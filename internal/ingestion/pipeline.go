package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/STRATINT/eventcurator/internal/models"
	"github.com/STRATINT/eventcurator/internal/schema"
)

// Structurer turns an unstructured candidate (image payload or raw text)
// into one with title and start filled in.
type Structurer interface {
	Structure(ctx context.Context, c models.Candidate) (models.Candidate, error)
}

// SourceState is the per-source run state.
type SourceState string

const (
	SourceStatePending   SourceState = "pending"
	SourceStateFetching  SourceState = "fetching"
	SourceStateSucceeded SourceState = "succeeded"
	SourceStateFailed    SourceState = "failed"
)

// SourceReport records the outcome of one source within a run.
type SourceReport struct {
	Name     string            `json:"name"`
	Kind     models.SourceKind `json:"kind"`
	State    SourceState       `json:"state"`
	Fetched  int               `json:"fetched"`
	Valid    int               `json:"valid"`
	Invalid  int               `json:"invalid"`
	Filtered int               `json:"filtered"`
	Error    string            `json:"error,omitempty"`
	Duration time.Duration     `json:"duration"`

	err error
}

// Err returns the failure recorded for the source, if any.
func (r SourceReport) Err() error {
	return r.err
}

// Rejection records a candidate dropped during the run.
type Rejection struct {
	Source string `json:"source"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// RunResult aggregates a scrape run.
type RunResult struct {
	RunID      string         `json:"run_id"`
	Started    time.Time      `json:"started"`
	Finished   time.Time      `json:"finished"`
	Sources    []SourceReport `json:"sources"`
	Candidates []models.Event `json:"-"`
	Invalid    []Rejection    `json:"invalid,omitempty"`
	Filtered   []Rejection    `json:"filtered,omitempty"`
	TimedOut   bool           `json:"timed_out,omitempty"`
}

// Succeeded reports whether at least one source succeeded.
func (r RunResult) Succeeded() bool {
	return r.Count(SourceStateSucceeded) > 0
}

// Count returns the number of sources in the given state.
func (r RunResult) Count(state SourceState) int {
	n := 0
	for _, s := range r.Sources {
		if s.State == state {
			n++
		}
	}
	return n
}

// Fetched returns the number of candidates fetched across all sources.
func (r RunResult) Fetched() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Fetched
	}
	return n
}

// PipelineConfig holds configuration for a scrape run.
type PipelineConfig struct {
	ConcurrentFetches int
	RunTimeout        time.Duration
	Location          *time.Location
	Now               func() time.Time
}

// DefaultPipelineConfig returns sensible defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ConcurrentFetches: 3,
		RunTimeout:        10 * time.Minute,
		Location:          time.UTC,
		Now:               time.Now,
	}
}

// Pipeline fetches sources concurrently, structures unstructured
// candidates and validates everything against the event schema.
type Pipeline struct {
	images Structurer
	text   Structurer
	logger *slog.Logger
	config PipelineConfig
}

// NewPipeline creates a pipeline. images handles candidates with an image
// payload, text handles raw-text candidates; either may be nil, in which
// case such candidates are recorded as invalid.
func NewPipeline(images, text Structurer, logger *slog.Logger, config PipelineConfig) *Pipeline {
	if config.ConcurrentFetches <= 0 {
		config.ConcurrentFetches = 1
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Pipeline{images: images, text: text, logger: logger, config: config}
}

// sourceOutcome is what one source contributes to the run.
type sourceOutcome struct {
	report   SourceReport
	events   []models.Event
	invalid  []Rejection
	filtered []Rejection
}

// Run fetches every source. A source failure never affects the other
// sources; on run timeout the remaining sources are marked failed and
// everything collected so far is kept.
func (p *Pipeline) Run(ctx context.Context, sources []Source) RunResult {
	result := RunResult{
		RunID:   uuid.NewString(),
		Started: p.config.Now(),
		Sources: make([]SourceReport, len(sources)),
	}
	for i, src := range sources {
		result.Sources[i] = SourceReport{Name: src.Name(), Kind: src.Kind(), State: SourceStatePending}
	}

	if p.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.RunTimeout)
		defer cancel()
	}

	p.logger.Info("starting scrape run", "run_id", result.RunID, "sources", len(sources))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		semaphore = make(chan struct{}, p.config.ConcurrentFetches)
	)

	for i, src := range sources {
		wg.Add(1)

		go func(i int, src Source) {
			defer wg.Done()

			var out sourceOutcome
			select {
			case semaphore <- struct{}{}:
				out = p.runSource(ctx, src)
				<-semaphore
			case <-ctx.Done():
				out.report = SourceReport{Name: src.Name(), Kind: src.Kind(), State: SourceStateFailed, err: ctx.Err()}
				out.report.Error = ctx.Err().Error()
			}

			mu.Lock()
			defer mu.Unlock()
			result.Sources[i] = out.report
			result.Candidates = append(result.Candidates, out.events...)
			result.Invalid = append(result.Invalid, out.invalid...)
			result.Filtered = append(result.Filtered, out.filtered...)
		}(i, src)
	}

	wg.Wait()

	result.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
	result.Finished = p.config.Now()

	p.logger.Info("scrape run finished",
		"run_id", result.RunID,
		"succeeded", result.Count(SourceStateSucceeded),
		"failed", result.Count(SourceStateFailed),
		"candidates", len(result.Candidates),
		"invalid", len(result.Invalid),
		"filtered", len(result.Filtered),
		"timed_out", result.TimedOut,
	)

	return result
}

// runSource drives one source through pending → fetching → succeeded|failed.
func (p *Pipeline) runSource(ctx context.Context, src Source) sourceOutcome {
	start := time.Now()
	out := sourceOutcome{report: SourceReport{Name: src.Name(), Kind: src.Kind(), State: SourceStateFetching}}
	logger := p.logger.With("source", src.Name())
	filter := NewOptionFilter(src.Options())

	fail := func(err error) sourceOutcome {
		out.report.State = SourceStateFailed
		out.report.err = err
		out.report.Error = err.Error()
		out.report.Duration = time.Since(start)
		logger.Warn("source failed", "error", err, "fetched", out.report.Fetched, "kept", len(out.events))
		return out
	}

	seq, err := src.Fetch(ctx)
	if err != nil {
		var unavailable *SourceUnavailableError
		if !errors.As(err, &unavailable) {
			err = &SourceUnavailableError{Source: src.Name(), Err: err}
		}
		return fail(err)
	}

	for c := range seq {
		if ctx.Err() != nil {
			break
		}
		out.report.Fetched++
		c.SourceName = src.Name()
		c.SourceKind = src.Kind()

		event, reason, invalid := p.process(ctx, filter, c)
		switch {
		case invalid:
			out.report.Invalid++
			out.invalid = append(out.invalid, Rejection{Source: src.Name(), Title: c.Title, Reason: reason})
			logger.Debug("invalid candidate", "title", c.Title, "reason", reason)
		case reason != "":
			out.report.Filtered++
			out.filtered = append(out.filtered, Rejection{Source: src.Name(), Title: event.Title, Reason: reason})
		default:
			out.report.Valid++
			out.events = append(out.events, event)
		}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	out.report.State = SourceStateSucceeded
	out.report.Duration = time.Since(start)
	logger.Info("source fetched",
		"fetched", out.report.Fetched,
		"valid", out.report.Valid,
		"invalid", out.report.Invalid,
		"filtered", out.report.Filtered,
		"duration_ms", out.report.Duration.Milliseconds(),
	)
	return out
}

// process structures, filters and validates one candidate. It returns the
// event, or a reason with invalid=true for schema failures and invalid=false
// for option filters.
func (p *Pipeline) process(ctx context.Context, filter OptionFilter, c models.Candidate) (models.Event, string, bool) {
	if c.NeedsExtraction() {
		structurer := p.text
		if len(c.Image) > 0 {
			structurer = p.images
		}
		if structurer == nil {
			return models.Event{}, "no extractor configured for unstructured candidate", true
		}

		structured, err := structurer.Structure(ctx, c)
		if err != nil {
			return models.Event{}, "extraction failed: " + err.Error(), true
		}
		structured.SourceName, structured.SourceKind = c.SourceName, c.SourceKind
		structured.FetchedAt = c.FetchedAt
		if structured.URL == "" {
			structured.URL = c.URL
		}
		if structured.ImageURL == "" {
			structured.ImageURL = c.ImageURL
		}
		c = structured
	}

	filter.Prepare(&c)
	if reason := filter.Screen(c); reason != "" {
		return models.Event{Title: c.Title}, reason, false
	}

	event, err := schema.Build(c, p.config.Now(), p.config.Location)
	if err != nil {
		return models.Event{}, err.Error(), true
	}

	if reason := filter.Horizon(event, p.config.Now()); reason != "" {
		return event, reason, false
	}
	return event, "", false
}
