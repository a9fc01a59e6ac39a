package enrichment

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// RateLimiter serializes requests to one provider. Every request after the
// first waits a random delay in [MinDelay, MaxDelay] measured from the
// previous request; after MaxRequests requests (0 = unlimited) it refuses
// with ErrRateLimitExceeded for the rest of the session.
type RateLimiter struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	MaxRequests int

	mu    sync.Mutex
	count int
	last  time.Time
}

// NewRateLimiter creates a limiter. A max below min is raised to min.
func NewRateLimiter(minDelay, maxDelay time.Duration, maxRequests int) *RateLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &RateLimiter{MinDelay: minDelay, MaxDelay: maxDelay, MaxRequests: maxRequests}
}

// Wait blocks until the next request may be sent. The lock is held while
// waiting, so concurrent callers queue up behind each other.
func (l *RateLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.MaxRequests > 0 && l.count >= l.MaxRequests {
		return ErrRateLimitExceeded
	}

	if !l.last.IsZero() {
		if wait := time.Until(l.last.Add(l.delay())); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	l.count++
	l.last = time.Now()
	return nil
}

// Used returns the number of requests granted this session.
func (l *RateLimiter) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *RateLimiter) delay() time.Duration {
	spread := l.MaxDelay - l.MinDelay
	if spread <= 0 {
		return l.MinDelay
	}
	return l.MinDelay + rand.N(spread+1)
}
