package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/amishk599/jobsync/internal/model"
)

// Retrier retries transient failures with exponential backoff and jitter.
// Adapters use it for listing and feed page requests (detail requests are
// not retried); the Slack notifier uses it for webhook posts.
type Retrier struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// New returns a Retrier.
// maxRetries is the number of additional attempts after the first failure.
// baseDelay is the delay before the first retry, doubled on each subsequent retry.
func New(maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Retrier {
	return &Retrier{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// Do calls fn, retrying on transient errors. what names the request in logs.
// A nil Retrier calls fn exactly once.
func (r *Retrier) Do(ctx context.Context, what string, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || r == nil {
		return err
	}

	if !isRetryable(err) {
		return err
	}

	lastErr := err
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		delay := r.backoffDelay(attempt, lastErr)

		r.logger.Warn("retrying after transient error",
			"request", what,
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (r *Retrier) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := r.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)

	return delay
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Transient()
	}

	// Network, DNS, truncated body.
	return true
}
