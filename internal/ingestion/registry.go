package ingestion

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/STRATINT/eventcurator/internal/models"
)

// Registry builds sources from configuration. One registry is constructed
// per run and handed to the pipeline; it holds no process-wide state.
type Registry struct {
	fetcher *fetcher
	logger  *slog.Logger
}

// NewRegistry creates a registry whose sources share client and policy.
// A nil client gets a default with a 30s timeout.
func NewRegistry(client *http.Client, policy RetryPolicy, logger *slog.Logger) *Registry {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Registry{
		fetcher: &fetcher{client: client, policy: policy, logger: logger},
		logger:  logger,
	}
}

// Build constructs the source variant for cfg.
func (r *Registry) Build(cfg models.SourceConfig) (Source, error) {
	if cfg.Name == "" || cfg.URL == "" {
		return nil, fmt.Errorf("source %q: name and url are required", cfg.Name)
	}
	for field := range cfg.Options.Fields {
		if !slices.Contains(jsonFields, field) && !slices.Contains(socialFields, field) {
			return nil, fmt.Errorf("source %q: unknown field mapping %q", cfg.Name, field)
		}
	}

	logger := r.logger.With("source", cfg.Name)
	switch cfg.Type {
	case models.SourceKindRSS:
		return NewRSSSource(cfg, r.fetcher, logger), nil
	case models.SourceKindHTML:
		return NewHTMLSource(cfg, r.fetcher, logger), nil
	case models.SourceKindJSON:
		return NewJSONSource(cfg, r.fetcher, logger), nil
	case models.SourceKindImage:
		return NewImageSource(cfg, r.fetcher, logger), nil
	case models.SourceKindSocial:
		return NewSocialSource(cfg, r.fetcher, logger), nil
	default:
		return nil, fmt.Errorf("source %q: unknown source type: %s", cfg.Name, cfg.Type)
	}
}

// BuildAll builds every enabled source. Configuration errors are returned
// per source and do not prevent the others from being built.
func (r *Registry) BuildAll(cfgs []models.SourceConfig) ([]Source, []error) {
	sources := make([]Source, 0, len(cfgs))
	var errs []error
	for _, cfg := range cfgs {
		if !cfg.IsEnabled() {
			r.logger.Debug("source disabled", "source", cfg.Name)
			continue
		}
		src, err := r.Build(cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sources = append(sources, src)
	}
	return sources, errs
}
