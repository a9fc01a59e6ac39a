package ingestion

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

// Source is one configured origin of event candidates.
type Source interface {
	// Name returns the configured source name.
	Name() string

	// Kind returns the source variant.
	Kind() models.SourceKind

	// Options returns the filtering and fallback options.
	Options() models.SourceOptions

	// Fetch retrieves the source and returns a lazy, finite sequence of
	// candidates. The sequence is consumed once; calling Fetch again
	// re-fetches from the network.
	Fetch(ctx context.Context) (iter.Seq[models.Candidate], error)
}

// SourceUnavailableError reports a network or parse failure for a source.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

const (
	userAgent       = "eventcurator/1.0 (+https://github.com/STRATINT/eventcurator)"
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 20 << 20
)

// fetcher performs GET requests with the shared retry policy.
type fetcher struct {
	client *http.Client
	policy RetryPolicy
	logger *slog.Logger
}

// body is a fetched payload with its response content type.
type body struct {
	data        []byte
	contentType string
	finalURL    string
}

func (f *fetcher) get(ctx context.Context, url string) (body, error) {
	var out body

	err := Retry(ctx, f.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return NewRetryableError(fmt.Errorf("http get failed: %w", err))
		}
		defer resp.Body.Close()

		if err := classifyStatus(resp); err != nil {
			return err
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return NewRetryableError(fmt.Errorf("reading body: %w", err))
		}

		out = body{data: data, contentType: resp.Header.Get("Content-Type"), finalURL: resp.Request.URL.String()}
		return nil
	})
	if err != nil {
		f.logger.Debug("fetch failed", "url", url, "error", err)
		return body{}, err
	}

	return out, nil
}

// seqOf yields candidates built lazily from items.
func seqOf[T any](items []T, limit int, build func(T) (models.Candidate, bool)) iter.Seq[models.Candidate] {
	return func(yield func(models.Candidate) bool) {
		emitted := 0
		for _, item := range items {
			if limit > 0 && emitted >= limit {
				return
			}
			c, ok := build(item)
			if !ok {
				continue
			}
			emitted++
			if !yield(c) {
				return
			}
		}
	}
}
