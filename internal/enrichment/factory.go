package enrichment

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/STRATINT/eventcurator/internal/models"
)

// Backends understood by NewProviders.
const (
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendLocal     = "local"
	BackendWeb       = "web"
	BackendHosted    = "hosted"
)

// NewProviders builds providers from configuration, keeping the configured
// order. Disabled providers are still built so they show up as unavailable.
func NewProviders(cfgs []models.ProviderConfig, client *http.Client, logger *slog.Logger) ([]Provider, error) {
	var (
		out  []Provider
		errs []error
	)
	for i, cfg := range cfgs {
		if cfg.Name == "" {
			cfg.Name = fmt.Sprintf("provider-%d", i)
		}
		backend := cfg.Backend
		if backend == "" {
			backend = defaultBackend(cfg.Kind)
		}
		plog := logger.With("provider", cfg.Name)

		switch backend {
		case BackendOpenAI:
			out = append(out, NewOpenAIProvider(cfg, client, plog))
		case BackendAnthropic:
			out = append(out, NewAnthropicProvider(cfg, client, plog))
		case BackendLocal:
			out = append(out, NewLocalProvider(cfg, client, plog))
		case BackendWeb:
			out = append(out, NewWebQueryProvider(cfg, client, plog))
		case BackendHosted:
			out = append(out, NewHostedProvider(cfg, client, plog))
		default:
			errs = append(errs, fmt.Errorf("provider %q: unsupported backend %q", cfg.Name, backend))
		}
	}
	return out, errors.Join(errs...)
}

func defaultBackend(kind models.ProviderKind) string {
	switch kind {
	case models.ProviderKindPaid:
		return BackendOpenAI
	case models.ProviderKindLocal:
		return BackendLocal
	default:
		return BackendWeb
	}
}
