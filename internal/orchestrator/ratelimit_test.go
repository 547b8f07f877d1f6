package orchestrator

import (
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)}
}

func requireRateLimit(t *testing.T, err error, window string, wait time.Duration) {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeRateLimit {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if !typed.Retryable() {
		t.Fatalf("rate limit must be retryable")
	}
	if got := typed.RetryAfter(); got != wait {
		t.Fatalf("expected retry after %s, got %s", wait, got)
	}
	details, _ := typed.Details().(map[string]any)
	if details["window"] != window {
		t.Fatalf("expected %s window, got %v", window, details)
	}
}

func TestRateTrackerRequestsPerMinute(t *testing.T) {
	clock := newTestClock()
	r := NewRateTracker(RateLimits{RequestsPerMinute: 2, RequestsPerHour: 100}, clock.Now)

	for i := 0; i < 2; i++ {
		if err := r.Check(10); err != nil {
			t.Fatalf("call %d: unexpected error %v", i, err)
		}
		r.Record(10)
		clock.Advance(10 * time.Second)
	}

	// oldest call was 20s ago
	requireRateLimit(t, r.Check(10), "minute", 40*time.Second)

	clock.Advance(40 * time.Second)
	if err := r.Check(10); err != nil {
		t.Fatalf("expected window to free up, got %v", err)
	}
}

func TestRateTrackerTokensPerMinute(t *testing.T) {
	clock := newTestClock()
	r := NewRateTracker(RateLimits{TokensPerMinute: 100}, clock.Now)

	r.Record(60)
	clock.Advance(15 * time.Second)
	r.Record(30)

	if err := r.Check(10); err != nil {
		t.Fatalf("100 tokens should fit exactly, got %v", err)
	}
	// 90 used + 40 needs 30 freed: the first entry leaves in 45s
	requireRateLimit(t, r.Check(40), "minute", 45*time.Second)
}

func TestRateTrackerChecksMinuteBeforeHour(t *testing.T) {
	clock := newTestClock()
	r := NewRateTracker(RateLimits{RequestsPerMinute: 1, RequestsPerHour: 1}, clock.Now)

	r.Record(1)
	requireRateLimit(t, r.Check(1), "minute", time.Minute)

	clock.Advance(2 * time.Minute)
	requireRateLimit(t, r.Check(1), "hour", 58*time.Minute)
}

func TestRateTrackerPrunesLazily(t *testing.T) {
	clock := newTestClock()
	r := NewRateTracker(RateLimits{RequestsPerHour: 5}, clock.Now)
	for i := 0; i < 5; i++ {
		r.Record(100)
	}
	clock.Advance(time.Hour)

	if err := r.Check(1); err != nil {
		t.Fatalf("expected hour window to be empty, got %v", err)
	}
	mr, mt, hr, ht := r.Usage()
	if mr != 0 || mt != 0 || hr != 0 || ht != 0 {
		t.Fatalf("expected empty usage, got %d %d %d %d", mr, mt, hr, ht)
	}
	if len(r.events) != 0 {
		t.Fatalf("expected pruned events, got %d", len(r.events))
	}
}

func TestBackoffIsCapped(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 200 * time.Millisecond},
		{1, 400 * time.Millisecond},
		{2, 800 * time.Millisecond},
		{3, 1600 * time.Millisecond},
		{4, 2 * time.Second},
		{10, 2 * time.Second},
	}
	for _, tc := range cases {
		if got := backoff(200*time.Millisecond, 2*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}
