package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

// Gateway tries providers in priority order and falls back to the
// deterministic heuristics when every provider fails or is unavailable.
type Gateway struct {
	providers []Provider
	fallback  Provider
	observer  Observer
	location  *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

// NewGateway creates a gateway over providers, already sorted by priority.
// A HeuristicExtractor is always appended as the last strategy.
func NewGateway(providers []Provider, loc *time.Location, logger *slog.Logger) *Gateway {
	if loc == nil {
		loc = time.UTC
	}
	return &Gateway{
		providers: providers,
		fallback:  NewHeuristicExtractor(loc),
		location:  loc,
		now:       time.Now,
		logger:    logger,
	}
}

// WithObserver records provider outcomes on o.
func (g *Gateway) WithObserver(o Observer) *Gateway {
	g.observer = o
	return g
}

// Providers returns the configured providers in priority order, without the
// heuristic fallback.
func (g *Gateway) Providers() []Provider {
	return g.providers
}

// Extract structures text. Rate limits, errors and unavailable providers
// fall through to the next strategy; ErrNoEvent from any strategy ends the
// chain. The returned candidate still needs schema validation.
func (g *Gateway) Extract(ctx context.Context, text string, hint Hint) (Extraction, error) {
	var ex Extraction
	if hint.Location == nil {
		hint.Location = g.location
	}
	if hint.Now.IsZero() {
		hint.Now = g.now()
	}

	for _, p := range append(g.providers[:len(g.providers):len(g.providers)], g.fallback) {
		c, err := g.try(ctx, p, text, hint)
		ex.Attempts = append(ex.Attempts, newAttempt(p.Name(), err))

		switch {
		case err == nil:
			ex.Candidate = c
			ex.Provider = p.Name()
			return ex, nil
		case errors.Is(err, ErrNoEvent):
			return ex, err
		case ctx.Err() != nil:
			return ex, ctx.Err()
		}

		g.logger.Debug("provider fell through", "provider", p.Name(), "error", err)
	}

	return ex, ErrNoEvent
}

func (g *Gateway) try(ctx context.Context, p Provider, text string, hint Hint) (*models.Candidate, error) {
	if !p.Available() {
		g.observe(p.Name(), "unavailable")
		return nil, ErrProviderUnavailable
	}
	if l := p.Limiter(); l != nil {
		if err := l.Wait(ctx); err != nil {
			g.observe(p.Name(), "rate_limited")
			return nil, err
		}
	}

	c, err := p.Extract(ctx, text, hint)
	switch {
	case err == nil:
		g.observe(p.Name(), "success")
	case errors.Is(err, ErrNoEvent):
		g.observe(p.Name(), "no_event")
	case errors.Is(err, ErrRateLimitExceeded):
		g.observe(p.Name(), "rate_limited")
	default:
		g.observe(p.Name(), "error")
		g.logger.Warn("provider failed", "provider", p.Name(), "error", err)
	}
	return c, err
}

func (g *Gateway) observe(provider, outcome string) {
	if g.observer != nil {
		g.observer.ProviderRequest(provider, outcome)
	}
}

func newAttempt(provider string, err error) Attempt {
	a := Attempt{Provider: provider, Err: err}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// Structure fills an unstructured candidate from its raw text. Fields the
// candidate already carries win over extracted ones.
func (g *Gateway) Structure(ctx context.Context, c models.Candidate) (models.Candidate, error) {
	text := strings.TrimSpace(strings.Join([]string{c.Title, c.Description, c.RawText}, "\n"))
	if text == "" {
		return c, ErrNoEvent
	}

	ex, err := g.Extract(ctx, text, Hint{Source: c.SourceName, Place: c.LocationName})
	if err != nil {
		return c, err
	}
	g.logger.Debug("structured candidate", "source", c.SourceName, "provider", ex.Provider, "attempts", len(ex.Attempts))
	return Fill(c, *ex.Candidate), nil
}

// Fill copies extracted fields into the empty fields of c.
func Fill(c, extracted models.Candidate) models.Candidate {
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = strings.TrimSpace(src)
		}
	}
	fill(&c.Title, extracted.Title)
	fill(&c.Description, extracted.Description)
	fill(&c.Start, extracted.Start)
	fill(&c.End, extracted.End)
	fill(&c.LocationName, extracted.LocationName)
	fill(&c.Category, extracted.Category)
	if c.Lat == nil && c.Lon == nil && extracted.Lat != nil && extracted.Lon != nil {
		c.Lat, c.Lon = extracted.Lat, extracted.Lon
	}
	return c
}
