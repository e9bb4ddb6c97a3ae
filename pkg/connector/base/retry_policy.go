package base

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy retries a failing call with jittered exponential backoff.
// Attempt n (0 based) waits InitialDelay * Multiplier^n, capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// NewRetryPolicy doubles the delay after each attempt, up to a minute.
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     max(maxAttempts, 1),
		InitialDelay:    initialDelay,
		MaxDelay:        time.Minute,
		Multiplier:      2,
		RandomizeFactor: 0.25,
	}
}

// NoRetryPolicy makes a single attempt.
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{MaxAttempts: 1}
}

// LoggingRetries returns a copy of rp that warns before every retry of operation.
func (rp *RetryPolicy) LoggingRetries(logger *zap.Logger, operation string) *RetryPolicy {
	cp := *rp
	cp.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying operation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", rp.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return &cp
}

// Execute retries fn on every error.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	return rp.ExecuteWithCondition(ctx, fn, func(error) bool { return true })
}

// ExecuteWithCondition retries fn while shouldRetry accepts its error. An
// error shouldRetry rejects is returned unwrapped.
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	attempts := max(rp.MaxAttempts, 1)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !shouldRetry(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		delay := rp.GetDelay(attempt)
		if rp.OnRetry != nil {
			rp.OnRetry(attempt+1, err, delay)
		}
		if werr := sleep(ctx, delay); werr != nil {
			return fmt.Errorf("retry cancelled: %w", werr)
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, err)
}

// GetDelay returns the wait after the given failed attempt.
func (rp *RetryPolicy) GetDelay(attempt int) time.Duration {
	d := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))
	if rp.MaxDelay > 0 {
		d = math.Min(d, float64(rp.MaxDelay))
	}
	if rp.RandomizeFactor > 0 {
		spread := d * rp.RandomizeFactor
		d += (rand.Float64()*2 - 1) * spread //nolint:gosec // jitter
	}
	return time.Duration(d)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
