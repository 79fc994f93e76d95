// Package retry implements the bounded exponential-backoff policy injected
// into every external-call site (graph store, vector store, embedding model,
// answer synthesis).
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Policy holds the retry configuration for one class of external calls.
// The zero value is not usable; construct with DefaultPolicy or from config.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// Multiplier is the exponential backoff factor.
	Multiplier float64
	// Jitter is the fraction of the delay randomized on each sleep, in
	// [0, 1]. Zero disables jitter, which keeps tests deterministic.
	Jitter float64
}

// DefaultPolicy returns the policy used when configuration does not override
// it.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      0.2,
	}
}

// ExhaustedError reports that a call failed after all attempts. The wrapped
// error is the last failure.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// TransientError marks an error as retryable regardless of its concrete type.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient classifies an error as retryable: explicit TransientError
// marks, network timeouts, rate limits and upstream 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// A batch exceeding its deadline is treated as a transient failure
	// subject to the normal retry policy.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	return false
}

// Do runs fn with the policy's backoff schedule. Non-transient errors fail
// immediately; transient errors are retried until attempts are exhausted,
// then wrapped in an ExhaustedError. Context cancellation aborts the backoff
// sleep.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(p.delay(attempt - 1)):
			case <-ctx.Done():
				return fmt.Errorf("%s: cancelled during retry backoff: %w", op, ctx.Err())
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: cancelled: %w", op, err)
		}
	}

	return &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}

// delay computes the backoff before the given retry (1-based).
func (p Policy) delay(retry int) time.Duration {
	base := float64(p.BaseDelay)
	if base <= 0 {
		base = float64(500 * time.Millisecond)
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}

	d := base * math.Pow(mult, float64(retry-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		// Spread the delay across [1-jitter, 1+jitter].
		d *= 1 + p.Jitter*(2*rand.Float64()-1)
	}
	return time.Duration(d)
}
