package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"time"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseWait   = 1 * time.Second
)

// Func represents a function that can be retried.
type Func func() error

// Option configures a call to Do.
type Option func(*options)

type options struct {
	maxRetries int
	baseWait   time.Duration
}

// WithMaxRetries sets the maximum number of attempts.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

// WithBaseWait sets the base wait used for exponential backoff.
func WithBaseWait(d time.Duration) Option {
	return func(o *options) { o.baseWait = d }
}

// Do executes f, retrying recoverable failures with exponential backoff and
// jitter. Errors are retried when they are marked recoverable or carry a
// retryable HTTP status code; anything else is returned immediately.
func Do(ctx context.Context, f Func, opts ...Option) error {
	o := &options{maxRetries: DefaultMaxRetries, baseWait: DefaultBaseWait}
	for _, opt := range opts {
		opt(o)
	}

	var lastErr error
	for attempt := 0; attempt < o.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(float64(o.baseWait) * math.Pow(2, float64(attempt-1)))
			jitter := time.Duration(rand.Float64() * float64(backoff) * 0.1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}
		err := f()
		if err == nil {
			return nil
		}
		lastErr = err
		var apiErr APIError
		if errors.As(err, &apiErr) {
			if !ShouldRetry(apiErr.StatusCode()) {
				return err
			}
			continue
		}
		if !IsRecoverable(err) {
			return err
		}
	}
	return lastErr
}

// ShouldRetry determines if the given status code should trigger a retry.
func ShouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || // 429
		statusCode == http.StatusInternalServerError || // 500
		statusCode == http.StatusBadGateway || // 502
		statusCode == http.StatusServiceUnavailable || // 503
		statusCode == http.StatusGatewayTimeout // 504
}

// APIError is implemented by errors that carry an HTTP status code.
type APIError interface {
	error
	StatusCode() int
}

// RecoverableError marks an error as safe to retry.
type RecoverableError struct {
	err error
}

// NewRecoverableError wraps err so that Do will retry it.
func NewRecoverableError(err error) *RecoverableError {
	return &RecoverableError{err: err}
}

func (e *RecoverableError) Error() string { return e.err.Error() }

func (e *RecoverableError) Unwrap() error { return e.err }

// IsRecoverable reports whether err is marked recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var r *RecoverableError
	return errors.As(err, &r)
}
