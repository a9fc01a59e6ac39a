package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/STRATINT/eventcurator/internal/models"
)

const tokenIssuer = "eventcurator"

// HostedProvider calls a self-hosted extraction service. Every request
// carries a short-lived HS256 bearer token signed with the shared secret.
type HostedProvider struct {
	name    string
	kind    models.ProviderKind
	url     string
	model   string
	secret  []byte
	timeout time.Duration
	client  *http.Client
	limiter *RateLimiter
	enabled bool
	now     func() time.Time
	logger  *slog.Logger
}

type hostedRequest struct {
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

type hostedResponse struct {
	Answer string `json:"answer"`
}

// NewHostedProvider creates a provider for an extraction service at
// cfg.BaseURL. The signing secret is read from cfg.APIKeyEnv
// (HOSTED_PROVIDER_SECRET by default).
func NewHostedProvider(cfg models.ProviderConfig, client *http.Client, logger *slog.Logger) *HostedProvider {
	secretEnv := cfg.APIKeyEnv
	if secretEnv == "" {
		secretEnv = "HOSTED_PROVIDER_SECRET"
	}
	secret := os.Getenv(secretEnv)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	if secret == "" || cfg.BaseURL == "" {
		logger.Info("hosted provider not configured, skipping", "provider", cfg.Name, "env", secretEnv)
	}

	return &HostedProvider{
		name:    cfg.Name,
		kind:    cfg.Kind,
		url:     strings.TrimRight(cfg.BaseURL, "/") + "/extract",
		model:   cfg.Model,
		secret:  []byte(secret),
		timeout: timeout,
		client:  client,
		limiter: NewRateLimiter(cfg.MinDelay, cfg.MaxDelay, cfg.MaxRequests),
		enabled: cfg.IsEnabled() && secret != "" && cfg.BaseURL != "",
		now:     time.Now,
		logger:  logger,
	}
}

func (p *HostedProvider) Name() string              { return p.name }
func (p *HostedProvider) Kind() models.ProviderKind { return p.kind }
func (p *HostedProvider) Available() bool           { return p.enabled }
func (p *HostedProvider) Limiter() *RateLimiter     { return p.limiter }

// Extract posts the prompt and parses the service's answer.
func (p *HostedProvider) Extract(ctx context.Context, text string, hint Hint) (*models.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	token, err := p.token()
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(hostedRequest{
		System: SystemPrompt,
		Prompt: BuildExtractionPrompt(text, hint),
		Model:  p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", p.name, ErrRateLimitExceeded)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%s rejected credentials (HTTP %d)", p.name, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%s returned HTTP %d", p.name, resp.StatusCode)
	}

	var out hostedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAnswerSize)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s decode answer: %w", p.name, err)
	}
	return ParseExtraction(out.Answer)
}

func (p *HostedProvider) token() (string, error) {
	now := p.now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   p.name,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
