package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines retry backoff behavior
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter
// This prevents thundering herd by spreading retry attempts over time
type ExponentialBackoff struct {
	BaseDelay  time.Duration // Initial delay (e.g., 100ms)
	MaxDelay   time.Duration // Maximum delay (e.g., 30s)
	Multiplier float64       // Exponential multiplier (typically 2.0)
	Jitter     float64       // Jitter factor (0.0-1.0, typically 0.1 for ±10%)
}

// GatewayBackoff returns backoff defaults for counterparty gateway retries
//
// Retry sequence with defaults (±10% jitter):
//   - Attempt 0: ~100ms
//   - Attempt 1: ~200ms
//   - Attempt 2: ~400ms
//   - Attempt 3: ~800ms
//   - Attempt 4: ~1.6s
func GatewayBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// PersistenceBackoff returns backoff configuration for internal persistence
// retries on the callback path, where the counterparty has already been
// acknowledged and the write just needs to land.
func PersistenceBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Multiplier: 2.0,
		Jitter:     0.1,
	}
}

// NextDelay calculates the delay for the given attempt number (0-indexed)
//
// The delay is calculated as: BaseDelay * (Multiplier ^ attempt) ± jitter,
// capped at MaxDelay.
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return eb.BaseDelay
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt))
	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	jitterAmount := delay * eb.Jitter
	jitter := (rand.Float64()*2 - 1) * jitterAmount

	return time.Duration(delay + jitter)
}

// Retry runs fn up to maxAttempts times, sleeping per the strategy between
// attempts. Returns nil on the first success, the last error otherwise.
// Context cancellation aborts the wait and returns the context error.
func Retry(ctx context.Context, maxAttempts int, strategy BackoffStrategy, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(strategy.NextDelay(attempt)):
		}
	}
	return lastErr
}
