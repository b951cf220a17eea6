package governance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// RetryConfig defines retry behavior for outbound fetches.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries).
	MaxRetries int
	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration
	// BackoffMultiplier is the factor by which backoff increases.
	BackoffMultiplier float64
	// Jitter adds up to 25% random delay to each backoff.
	Jitter bool
	// RetryableStatusCodes defines which HTTP status codes should trigger retries.
	RetryableStatusCodes map[int]bool
}

// DefaultRetryConfig returns the defaults used for remote context fetches.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		RetryableStatusCodes: map[int]bool{
			http.StatusRequestTimeout:      true, // 408
			http.StatusTooManyRequests:     true, // 429
			http.StatusInternalServerError: true, // 500
			http.StatusBadGateway:          true, // 502
			http.StatusServiceUnavailable:  true, // 503
			http.StatusGatewayTimeout:      true, // 504
		},
	}
}

// RetryPolicy determines if and when an attempt should be repeated.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy, filling unset fields from DefaultRetryConfig.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	defaults := DefaultRetryConfig()
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if config.RetryableStatusCodes == nil {
		config.RetryableStatusCodes = defaults.RetryableStatusCodes
	}

	return &RetryPolicy{config: config}
}

// Config returns a copy of the current retry configuration.
func (rp *RetryPolicy) Config() RetryConfig {
	return rp.config
}

// ShouldRetry decides whether attempt (zero-based) may be followed by another one.
// A received status code decides on its own; without one, transient network errors
// are retried.
func (rp *RetryPolicy) ShouldRetry(statusCode int, err error, attempt int) bool {
	if attempt >= rp.config.MaxRetries {
		return false
	}
	if statusCode > 0 {
		return rp.config.RetryableStatusCodes[statusCode]
	}
	return IsRetryableError(err)
}

// CalculateBackoff returns the delay before the next retry attempt.
func (rp *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := time.Duration(float64(rp.config.InitialBackoff) * math.Pow(rp.config.BackoffMultiplier, float64(attempt)))

	if backoff > rp.config.MaxBackoff {
		backoff = rp.config.MaxBackoff
	}

	if rp.config.Jitter && backoff >= 4 {
		// #nosec G404 - Non-cryptographic random is acceptable for jitter
		backoff += time.Duration(rand.Int63n(int64(backoff / 4)))
	}

	return backoff
}

// Do runs fn until it reports a 2xx status without error, the policy gives up, or
// ctx is cancelled. fn returns the HTTP status it observed, or 0 when none was received.
func (rp *RetryPolicy) Do(ctx context.Context, fn func(context.Context) (int, error)) (int, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		statusCode, err := fn(ctx)
		if err == nil && statusCode >= 200 && statusCode < 300 {
			return statusCode, nil
		}
		if err == nil {
			err = fmt.Errorf("unexpected status %d", statusCode)
		}

		if !rp.ShouldRetry(statusCode, err, attempt) {
			if attempt == 0 {
				return statusCode, err
			}
			return statusCode, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetriesExceeded, attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(rp.CalculateBackoff(attempt)):
		}
	}
}

// IsRetryableError determines if an error indicates a transient failure.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := err.Error()
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"temporary failure",
		"EOF",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
