package clients

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter paces calls to a rate limited API such as Graph or the
// Salesforce REST endpoints.
type RateLimiter interface {
	Allow() bool
	Wait(ctx context.Context) error
	GetStats() RateLimiterStats
}

// RateLimiterStats describes limiter configuration and usage.
type RateLimiterStats struct {
	Rate            float64 `json:"rate"`
	Burst           int     `json:"burst"`
	AllowedRequests int64   `json:"allowed_requests"`
	BlockedRequests int64   `json:"blocked_requests"`
}

// Limiter is a token bucket starting full, counting allowed and blocked calls.
type Limiter struct {
	limiter *rate.Limiter
	allowed atomic.Int64
	blocked atomic.Int64
}

// NewLimiter allows perSecond calls per second in bursts of up to burst.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// NewRateLimiter is NewLimiter for whole-number rates, as configured in
// reliability.rate_limit_per_sec.
func NewRateLimiter(perSecond, burst int) RateLimiter {
	return NewLimiter(float64(perSecond), burst)
}

func (l *Limiter) Allow() bool {
	if l.limiter.Allow() {
		l.allowed.Add(1)
		return true
	}
	l.blocked.Add(1)
	return false
}

// Wait blocks until a token is available. It fails at once when ctx would
// expire before then.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		l.blocked.Add(1)
		return err
	}
	l.allowed.Add(1)
	return nil
}

func (l *Limiter) GetStats() RateLimiterStats {
	return RateLimiterStats{
		Rate:            float64(l.limiter.Limit()),
		Burst:           l.limiter.Burst(),
		AllowedRequests: l.allowed.Load(),
		BlockedRequests: l.blocked.Load(),
	}
}
