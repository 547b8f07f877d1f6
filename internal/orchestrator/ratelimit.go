package orchestrator

import (
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

// RateLimits bounds model usage per session. Zero disables a bound.
type RateLimits struct {
	RequestsPerMinute int
	TokensPerMinute   int
	RequestsPerHour   int
	TokensPerHour     int
}

type usage struct {
	at     time.Time
	tokens int
}

// RateTracker keeps sliding minute and hour windows of model calls for one
// session. Expired entries are pruned on every check.
type RateTracker struct {
	mu     sync.Mutex
	limits RateLimits
	events []usage
	now    func() time.Time
}

func NewRateTracker(limits RateLimits, now func() time.Time) *RateTracker {
	if now == nil {
		now = time.Now
	}
	return &RateTracker{limits: limits, now: now}
}

type window struct {
	name     string
	span     time.Duration
	requests int
	tokens   int
}

// Check reports whether a call of the given estimated size fits every
// window. The minute window is checked first. The returned error carries
// the delay until the blocking window frees up.
func (r *RateTracker) Check(tokens int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.prune(now)
	windows := []window{
		{"minute", time.Minute, r.limits.RequestsPerMinute, r.limits.TokensPerMinute},
		{"hour", time.Hour, r.limits.RequestsPerHour, r.limits.TokensPerHour},
	}
	for _, w := range windows {
		count, used, oldest := r.inWindow(now, w.span)
		switch {
		case w.requests > 0 && count+1 > w.requests:
			return rateLimited(w, "requests", count, w.requests, oldest.Add(w.span).Sub(now))
		case w.tokens > 0 && used+tokens > w.tokens:
			return rateLimited(w, "tokens", used, w.tokens, r.freeAfter(now, w.span, used+tokens-w.tokens))
		}
	}
	return nil
}

// Record counts one completed call.
func (r *RateTracker) Record(tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, usage{at: r.now(), tokens: tokens})
}

// Usage returns the request and token counts of the minute and hour windows.
func (r *RateTracker) Usage() (minuteRequests, minuteTokens, hourRequests, hourTokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.prune(now)
	minuteRequests, minuteTokens, _ = r.inWindow(now, time.Minute)
	hourRequests, hourTokens, _ = r.inWindow(now, time.Hour)
	return
}

func (r *RateTracker) prune(now time.Time) {
	cutoff := now.Add(-time.Hour)
	i := 0
	for i < len(r.events) && !r.events[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		r.events = append(r.events[:0], r.events[i:]...)
	}
}

func (r *RateTracker) inWindow(now time.Time, span time.Duration) (count, tokens int, oldest time.Time) {
	cutoff := now.Add(-span)
	for _, e := range r.events {
		if !e.at.After(cutoff) {
			continue
		}
		if count == 0 {
			oldest = e.at
		}
		count++
		tokens += e.tokens
	}
	return count, tokens, oldest
}

// freeAfter is how long until at least excess tokens leave the window.
func (r *RateTracker) freeAfter(now time.Time, span time.Duration, excess int) time.Duration {
	cutoff := now.Add(-span)
	freed := 0
	for _, e := range r.events {
		if !e.at.After(cutoff) {
			continue
		}
		freed += e.tokens
		if freed >= excess {
			return e.at.Add(span).Sub(now)
		}
	}
	return span
}

func rateLimited(w window, kind string, used, limit int, wait time.Duration) error {
	if wait < time.Second {
		wait = time.Second
	}
	return pkgerrors.Newf(pkgerrors.CodeRateLimit, "%s per %s limit reached (%d/%d)", kind, w.name, used, limit).
		WithRetryAfter(wait).
		WithDetails(map[string]any{"window": w.name, "kind": kind, "used": used, "limit": limit})
}
