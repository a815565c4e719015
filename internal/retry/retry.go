// Package retry provides backoff helpers for long-lived consumers that
// reconnect after transient failures.
package retry

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// PermanentError marks an error that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so IsPermanent reports true for it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is marked permanent.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// Backoff returns the capped exponential delay for attempt (1-based).
func Backoff(attempt int, initial, max time.Duration, factor float64) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	if factor <= 0 {
		factor = 2.0
	}

	delay := float64(initial) * math.Pow(factor, float64(attempt-1))
	if delay > float64(max) {
		delay = float64(max)
	}
	return time.Duration(delay)
}

// BackoffWithJitter is Backoff randomized into [0.5, 1.5) of the base
// delay, so a fleet of consumers does not reconnect in lockstep.
func BackoffWithJitter(attempt int, initial, max time.Duration, factor float64) time.Duration {
	base := Backoff(attempt, initial, max, factor)
	jitterFactor := 0.5 + rand.Float64() // #nosec G404 -- jitter does not require cryptographic randomness
	return time.Duration(float64(base) * jitterFactor)
}
