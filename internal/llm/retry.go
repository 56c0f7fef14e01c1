package llm

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Retryable()
}

type retrying struct {
	next       Completer
	maxRetries int
	delay      func(attempt int) time.Duration
}

// WithRetry retries retryable failures up to maxRetries extra times with
// exponential backoff. Other errors are returned immediately.
func WithRetry(c Completer, maxRetries int) Completer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &retrying{next: c, maxRetries: maxRetries, delay: retryDelay}
}

func (r *retrying) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		out, err := r.next.Generate(ctx, prompt, opts)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == r.maxRetries {
			break
		}
		t := time.NewTimer(r.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return "", lastErr
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 500 * time.Millisecond
	// exponential backoff capped at 10s
	d := base << attempt
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

type limited struct {
	next    Completer
	limiter *rate.Limiter
}

// WithRateLimit spaces calls so no more than perMinute requests start per minute.
func WithRateLimit(c Completer, perMinute int) Completer {
	return &limited{
		next:    c,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), 1),
	}
}

func (l *limited) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Generate(ctx, prompt, opts)
}
