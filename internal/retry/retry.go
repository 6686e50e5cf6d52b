// Package retry runs an operation with exponential backoff. The symbol store
// uses it to ride out transient symbol-server failures; engine commands are
// never retried.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config defines the retry behavior.
//
// The zero value is not usable; MaxRetries and InitialBackoff must be set.
type Config struct {
	// MaxRetries is the maximum number of attempts, including the first.
	MaxRetries int

	// InitialBackoff is the wait before the second attempt. Each further
	// attempt doubles it.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait. Zero means no cap.
	MaxBackoff time.Duration

	// Jitter adds up to Jitter*backoff extra wait, growing linearly with the
	// attempt number (0.0 to 1.0).
	Jitter float64
}

// ShouldRetryFunc reports whether err is worth another attempt. A nil
// ShouldRetryFunc retries every error.
type ShouldRetryFunc func(error) bool

// Do calls fn until it succeeds, shouldRetry rejects its error, the attempts
// run out, or ctx is done. Exhaustion wraps the last error.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(calculateBackoff(cfg, attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		lastErr = err
	}

	if cfg.MaxRetries == 1 {
		return lastErr
	}
	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxRetries, lastErr)
}

// calculateBackoff returns InitialBackoff * 2^(attempt-1), capped and jittered.
func calculateBackoff(cfg Config, attempt int) time.Duration {
	multiplier := math.Pow(2, float64(attempt-1))
	backoff := time.Duration(multiplier * float64(cfg.InitialBackoff))

	if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}

	if cfg.Jitter > 0 {
		jitterAmount := float64(backoff) * cfg.Jitter * float64(attempt) / float64(cfg.MaxRetries)
		backoff += time.Duration(jitterAmount)
	}

	return backoff
}
