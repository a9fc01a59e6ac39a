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

	"github.com/sashabaranov/go-openai"

	"github.com/STRATINT/eventcurator/internal/models"
)

const (
	defaultOpenAIModel  = openai.GPT4oMini
	defaultLocalModel   = "llama3.1"
	defaultLocalBaseURL = "http://localhost:11434/v1"
	defaultTimeout      = 30 * time.Second
)

// ChatProvider talks to an OpenAI compatible chat completion endpoint. It
// serves both the paid OpenAI API and local inference servers.
type ChatProvider struct {
	name    string
	kind    models.ProviderKind
	model   string
	timeout time.Duration
	client  *openai.Client
	limiter *RateLimiter
	enabled bool
	logger  *slog.Logger
}

// NewOpenAIProvider creates the paid provider. The API key is read from the
// variable named by cfg.APIKeyEnv (OPENAI_API_KEY by default); without a key
// the provider reports itself unavailable.
func NewOpenAIProvider(cfg models.ProviderConfig, httpClient *http.Client, logger *slog.Logger) *ChatProvider {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	apiKey := os.Getenv(keyEnv)

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	p := newChatProvider(cfg, clientCfg, defaultOpenAIModel, logger)
	p.enabled = p.enabled && apiKey != ""
	if apiKey == "" {
		logger.Info("paid provider has no API key, skipping", "provider", p.name, "env", keyEnv)
	}
	return p
}

// NewLocalProvider creates a provider for a local OpenAI compatible server
// such as Ollama.
func NewLocalProvider(cfg models.ProviderConfig, httpClient *http.Client, logger *slog.Logger) *ChatProvider {
	apiKey := "local"
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = defaultLocalBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}
	return newChatProvider(cfg, clientCfg, defaultLocalModel, logger)
}

func newChatProvider(cfg models.ProviderConfig, clientCfg openai.ClientConfig, model string, logger *slog.Logger) *ChatProvider {
	if cfg.Model != "" {
		model = cfg.Model
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ChatProvider{
		name:    cfg.Name,
		kind:    cfg.Kind,
		model:   model,
		timeout: timeout,
		client:  openai.NewClientWithConfig(clientCfg),
		limiter: NewRateLimiter(cfg.MinDelay, cfg.MaxDelay, cfg.MaxRequests),
		enabled: cfg.IsEnabled(),
		logger:  logger,
	}
}

func (p *ChatProvider) Name() string              { return p.name }
func (p *ChatProvider) Kind() models.ProviderKind { return p.kind }
func (p *ChatProvider) Available() bool           { return p.enabled }
func (p *ChatProvider) Limiter() *RateLimiter     { return p.limiter }

// Extract asks the model for a JSON event object.
func (p *ChatProvider) Extract(ctx context.Context, text string, hint Hint) (*models.Candidate, error) {
	apiCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(apiCtx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildExtractionPrompt(text, hint),
			},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%s: %w", p.name, ErrRateLimitExceeded)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%s: %w", p.name, ErrRateLimitExceeded)
		}
		return nil, fmt.Errorf("%s chat completion failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", p.name)
	}

	p.logger.Debug("chat completion",
		"provider", p.name,
		"model", p.model,
		"latency_ms", time.Since(start).Milliseconds(),
		"total_tokens", resp.Usage.TotalTokens)

	return ParseExtraction(strings.TrimSpace(resp.Choices[0].Message.Content))
}
