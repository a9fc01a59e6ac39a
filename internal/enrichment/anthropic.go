package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/STRATINT/eventcurator/internal/models"
)

const (
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	anthropicMaxTokens    = 1024
)

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	name    string
	kind    models.ProviderKind
	model   string
	timeout time.Duration
	client  anthropic.Client
	limiter *RateLimiter
	enabled bool
	logger  *slog.Logger
}

// NewAnthropicProvider creates a paid provider. The API key is read from the
// variable named by cfg.APIKeyEnv (ANTHROPIC_API_KEY by default); without a
// key the provider reports itself unavailable.
func NewAnthropicProvider(cfg models.ProviderConfig, httpClient *http.Client, logger *slog.Logger) *AnthropicProvider {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "ANTHROPIC_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)

	// Retries are the gateway's job: a failure falls through to the next provider.
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	model := defaultAnthropicModel
	if cfg.Model != "" {
		model = cfg.Model
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if apiKey == "" {
		logger.Info("paid provider has no API key, skipping", "provider", cfg.Name, "env", keyEnv)
	}
	return &AnthropicProvider{
		name:    cfg.Name,
		kind:    cfg.Kind,
		model:   model,
		timeout: timeout,
		client:  anthropic.NewClient(opts...),
		limiter: NewRateLimiter(cfg.MinDelay, cfg.MaxDelay, cfg.MaxRequests),
		enabled: cfg.IsEnabled() && apiKey != "",
		logger:  logger,
	}
}

func (p *AnthropicProvider) Name() string              { return p.name }
func (p *AnthropicProvider) Kind() models.ProviderKind { return p.kind }
func (p *AnthropicProvider) Available() bool           { return p.enabled }
func (p *AnthropicProvider) Limiter() *RateLimiter     { return p.limiter }

// Extract asks the model for a JSON event object.
func (p *AnthropicProvider) Extract(ctx context.Context, text string, hint Hint) (*models.Candidate, error) {
	apiCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	message, err := p.client.Messages.New(apiCtx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   anthropicMaxTokens,
		Temperature: anthropic.Float(0),
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildExtractionPrompt(text, hint))),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%s: %w", p.name, ErrRateLimitExceeded)
		}
		return nil, fmt.Errorf("%s messages request failed: %w", p.name, err)
	}
	if len(message.Content) == 0 {
		return nil, fmt.Errorf("%s returned no content", p.name)
	}

	p.logger.Debug("messages completion",
		"provider", p.name,
		"model", p.model,
		"latency_ms", time.Since(start).Milliseconds(),
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens)

	return ParseExtraction(strings.TrimSpace(message.Content[0].Text))
}
