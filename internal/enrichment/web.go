package enrichment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

const (
	defaultWebBaseURL = "https://text.pollinations.ai/"
	maxAnswerSize     = 1 << 20
)

// WebQueryProvider queries an anonymous text endpoint that answers a prompt
// embedded in the URL path.
type WebQueryProvider struct {
	name    string
	baseURL string
	model   string
	timeout time.Duration
	client  *http.Client
	limiter *RateLimiter
	enabled bool
	logger  *slog.Logger
}

// NewWebQueryProvider creates a free provider.
func NewWebQueryProvider(cfg models.ProviderConfig, client *http.Client, logger *slog.Logger) *WebQueryProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultWebBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &WebQueryProvider{
		name:    cfg.Name,
		baseURL: baseURL,
		model:   cfg.Model,
		timeout: timeout,
		client:  client,
		limiter: NewRateLimiter(cfg.MinDelay, cfg.MaxDelay, cfg.MaxRequests),
		enabled: cfg.IsEnabled(),
		logger:  logger,
	}
}

func (p *WebQueryProvider) Name() string              { return p.name }
func (p *WebQueryProvider) Kind() models.ProviderKind { return models.ProviderKindFree }
func (p *WebQueryProvider) Available() bool           { return p.enabled }
func (p *WebQueryProvider) Limiter() *RateLimiter     { return p.limiter }

// Extract sends the prompt as a GET request and parses the plain answer.
func (p *WebQueryProvider) Extract(ctx context.Context, text string, hint Hint) (*models.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := SystemPrompt + "\n\n" + BuildExtractionPrompt(text, hint)
	target := p.baseURL + url.PathEscape(prompt)
	q := url.Values{"json": {"true"}}
	if p.model != "" {
		q.Set("model", p.model)
	}
	target += "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%s: %w", p.name, ErrRateLimitExceeded)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned HTTP %d", p.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerSize))
	if err != nil {
		return nil, fmt.Errorf("%s read answer: %w", p.name, err)
	}
	return ParseExtraction(string(body))
}
