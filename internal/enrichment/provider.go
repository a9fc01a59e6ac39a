package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

var (
	// ErrNoEvent means the provider read the text and found no event.
	ErrNoEvent = errors.New("no event in text")

	// ErrRateLimitExceeded means the provider's session cap is reached or
	// the backend answered with a rate limit.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrProviderUnavailable means the provider is disabled or unconfigured.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Hint carries context that helps a provider resolve relative dates and
// places.
type Hint struct {
	Source   string
	Now      time.Time
	Location *time.Location
	Place    string     // default place name of the source
	TakenAt  *time.Time // EXIF capture time of a flyer
}

// Provider turns unstructured text into a candidate.
type Provider interface {
	// Name returns the configured provider name.
	Name() string

	// Kind returns the provider category.
	Kind() models.ProviderKind

	// Available reports whether the provider is configured and enabled.
	Available() bool

	// Limiter returns the provider's rate limiter, or nil for none.
	Limiter() *RateLimiter

	// Extract structures text. It returns ErrNoEvent when the text does not
	// describe an event.
	Extract(ctx context.Context, text string, hint Hint) (*models.Candidate, error)
}

// Attempt records one provider tried by the gateway.
type Attempt struct {
	Provider string `json:"provider"`
	Err      error  `json:"-"`
	Error    string `json:"error,omitempty"`
}

// Extraction is the gateway result.
type Extraction struct {
	Candidate *models.Candidate
	Provider  string
	Attempts  []Attempt
}

// Observer receives one outcome per provider request.
type Observer interface {
	ProviderRequest(provider, outcome string)
}
