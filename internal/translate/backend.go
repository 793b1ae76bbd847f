package translate

import (
	"context"

	"golang.org/x/time/rate"
)

// BackendConfig names one entry in the Translator's ordered fallback chain.
type BackendConfig struct {
	Kind            BackendKind
	Endpoint        string
	TimeoutMs       int
	RateLimitPerSec float64
}

// RateLimitedBackend wraps a Backend with a per-backend token bucket. When
// the bucket is exhausted the wrapped backend is treated as unavailable for
// this event rather than being retried or blocked on (SPEC_FULL.md §4.5
// "Rate limiting").
type RateLimitedBackend struct {
	inner   Backend
	limiter *rate.Limiter
}

// NewRateLimitedBackend wraps inner with a token bucket refilling at
// ratePerSec tokens/second, burst 1.
func NewRateLimitedBackend(inner Backend, ratePerSec float64) *RateLimitedBackend {
	var limiter *rate.Limiter
	if ratePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return &RateLimitedBackend{inner: inner, limiter: limiter}
}

func (b *RateLimitedBackend) Name() string { return b.inner.Name() }

func (b *RateLimitedBackend) Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error) {
	if b.limiter != nil && !b.limiter.Allow() {
		return Result{}, ErrRateLimited
	}
	return b.inner.Translate(ctx, text, sourceLang, targetLang)
}
