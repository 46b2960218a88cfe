package embedder

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"
)

// RetryConfig configures exponential backoff for embedding API calls
type RetryConfig struct {
	MaxRetries int // Attempts in total, at least one
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryConfig returns the backoff used by the HTTP providers
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: MaxRetries,
		BaseDelay:  time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier: BackoffMultiplier,
	}
}

// next returns the delay after d
func (c RetryConfig) next(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * c.Multiplier)
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// permanentError marks a failure that retrying cannot fix, such as a
// rejected API key or a malformed request
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// throttledError carries the server's Retry-After delay
type throttledError struct {
	err   error
	after time.Duration
}

func (e *throttledError) Error() string { return e.err.Error() }
func (e *throttledError) Unwrap() error { return e.err }

// throttled wraps err with the delay requested by a 429 response, if any
func throttled(err error, header http.Header) error {
	secs, convErr := strconv.Atoi(header.Get("Retry-After"))
	if convErr != nil || secs <= 0 {
		return err
	}
	return &throttledError{err: err, after: time.Duration(secs) * time.Second}
}

// retryWithBackoff calls fn until it succeeds, returns a permanent error, the
// attempts run out or ctx is done. A throttled error waits at least the
// server's delay, capped at MaxDelay.
func retryWithBackoff[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxRetries, 1)
	delay := cfg.BaseDelay

	var err error
	for attempt := 1; ; attempt++ {
		var result T
		if result, err = fn(); err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if attempt == attempts {
			return zero, err
		}

		wait := delay
		var th *throttledError
		if errors.As(err, &th) && th.after > wait {
			wait = th.after
			if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
				wait = cfg.MaxDelay
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay = cfg.next(delay)
	}
}
