package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// Backoff retries an operation with exponential delays and full jitter.
// Zero fields take defaults: 3 attempts, 100ms base, 10s cap.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Cap      time.Duration
}

func (b Backoff) withDefaults() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.Base <= 0 {
		b.Base = 100 * time.Millisecond
	}
	if b.Cap <= 0 {
		b.Cap = 10 * time.Second
	}
	return b
}

// delay returns the upper bound of the sleep after the given failed attempt
// (1-based).
func (b Backoff) delay(attempt int) time.Duration {
	d := b.Base << (attempt - 1)
	if d <= 0 || d > b.Cap {
		return b.Cap
	}
	return d
}

// Do calls fn until it succeeds, returns a Permanent error, the attempts run
// out or ctx ends.
func (b Backoff) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	b = b.withDefaults()
	log := slog.Default().With("component", "backoff", "operation", name)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 1 {
				log.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == b.Attempts {
			return fmt.Errorf("%s: giving up after %d attempts: %w", name, attempt, err)
		}

		wait := rand.N(b.delay(attempt)) + time.Millisecond
		log.Warn("attempt failed", "attempt", attempt, "of", b.Attempts, "error", err, "retry_in", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), err)
		}
	}
}
