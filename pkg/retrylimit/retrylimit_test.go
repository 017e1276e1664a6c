package retrylimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type statusErr int

func (s statusErr) Error() string   { return http.StatusText(int(s)) }
func (s statusErr) StatusCode() int { return int(s) }

func fastConfig(attempts int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	cfg.RateLimitDelay = time.Millisecond
	return cfg
}

func TestWithRetryStopsOnFatal(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := WithRetryConfig(context.Background(), func() error {
		calls++
		return &FatalError{Err: boom}
	}, nil, fastConfig(5))

	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestWithRetryRecoversFromServerError(t *testing.T) {
	calls := 0
	lim := NewAdaptiveLimiter(50, 1, 100, 1, 0.5)
	err := WithRetryConfig(context.Background(), func() error {
		calls++
		if calls < 3 {
			return statusErr(http.StatusServiceUnavailable)
		}
		return nil
	}, lim, fastConfig(5))

	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if lim.CurrentLimit() >= 50 {
		t.Fatalf("limiter not slowed down: %.2f", lim.CurrentLimit())
	}
}

func TestWithRetryMaxAttemptsWrapsLastError(t *testing.T) {
	err := WithRetryConfig(context.Background(), func() error {
		return statusErr(http.StatusTooManyRequests)
	}, nil, fastConfig(2))

	var se statusErr
	if !errors.As(err, &se) || se.StatusCode() != http.StatusTooManyRequests {
		t.Fatalf("err = %v", err)
	}
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithRetryConfig(ctx, func() error { return nil }, nil, fastConfig(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestAdaptiveLimiterBounds(t *testing.T) {
	lim := NewAdaptiveLimiter(4, 2, 8, 1, 0.5)
	for range 5 {
		lim.RateLimited()
	}
	if lim.CurrentLimit() != 2 {
		t.Fatalf("limit = %.2f, want min 2", lim.CurrentLimit())
	}
}
