package governance

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) *RetryPolicy {
	return NewRetryPolicy(RetryConfig{
		MaxRetries:        maxRetries,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	})
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	rp := fastRetry(2)

	tests := []struct {
		name    string
		status  int
		err     error
		attempt int
		want    bool
	}{
		{name: "service unavailable", status: http.StatusServiceUnavailable, attempt: 0, want: true},
		{name: "too many requests", status: http.StatusTooManyRequests, attempt: 1, want: true},
		{name: "not found", status: http.StatusNotFound, attempt: 0, want: false},
		{name: "attempts exhausted", status: http.StatusBadGateway, attempt: 2, want: false},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "permanent error", err: errors.New("unsupported protocol scheme"), want: false},
		{name: "no status and no error", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rp.ShouldRetry(tt.status, tt.err, tt.attempt))
		})
	}
}

func TestRetryPolicy_CalculateBackoff(t *testing.T) {
	rp := NewRetryPolicy(RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2,
	})

	assert.Equal(t, 100*time.Millisecond, rp.CalculateBackoff(0))
	assert.Equal(t, 200*time.Millisecond, rp.CalculateBackoff(1))
	assert.Equal(t, 400*time.Millisecond, rp.CalculateBackoff(2))
	assert.Equal(t, time.Second, rp.CalculateBackoff(5))
}

func TestRetryPolicy_CalculateBackoffJitter(t *testing.T) {
	rp := NewRetryPolicy(RetryConfig{
		MaxRetries:        1,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	})

	for i := 0; i < 20; i++ {
		d := rp.CalculateBackoff(0)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 125*time.Millisecond)
	}
}

func TestNewRetryPolicy_FillsDefaults(t *testing.T) {
	cfg := NewRetryPolicy(RetryConfig{MaxRetries: -1}).Config()

	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, DefaultRetryConfig().InitialBackoff, cfg.InitialBackoff)
	assert.Equal(t, DefaultRetryConfig().MaxBackoff, cfg.MaxBackoff)
	assert.InDelta(t, 2.0, cfg.BackoffMultiplier, 0)
	assert.True(t, cfg.RetryableStatusCodes[http.StatusGatewayTimeout])
}

func TestRetryPolicy_DoSucceedsAfterTransientFailures(t *testing.T) {
	rp := fastRetry(3)
	calls := 0

	status, err := rp.Do(context.Background(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return http.StatusServiceUnavailable, nil
		}
		return http.StatusOK, nil
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_DoGivesUp(t *testing.T) {
	rp := fastRetry(2)
	calls := 0

	status, err := rp.Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return http.StatusBadGateway, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_DoDoesNotRetryPermanentStatus(t *testing.T) {
	rp := fastRetry(2)
	calls := 0

	status, err := rp.Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return http.StatusNotFound, nil
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_DoHonoursCancellation(t *testing.T) {
	rp := NewRetryPolicy(RetryConfig{MaxRetries: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := rp.Do(ctx, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("connection reset by peer")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
