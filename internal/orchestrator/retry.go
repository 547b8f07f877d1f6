package orchestrator

import (
	"context"
	"time"

	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

// recovery is what the loop does after a failed attempt.
type recovery struct {
	retry     bool
	delay     time.Duration
	summarize bool
	degrade   bool
}

// backoff doubles base per attempt (attempt 0 waits base) and stops at max.
func backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// recoveryFor maps a classified model failure to its recovery. attempt is
// the number of attempts made so far.
func (o *Orchestrator) recoveryFor(err *pkgerrors.Error, attempt int, summarized bool) recovery {
	budgetLeft := attempt < o.cfg.MaxRetryAttempts
	switch err.Code() {
	case pkgerrors.CodeRateLimit:
		delay := err.RetryAfter()
		if delay <= 0 {
			delay = backoff(o.cfg.BaseBackoff, o.cfg.MaxBackoff, attempt-1)
		}
		return recovery{retry: budgetLeft, delay: delay}
	case pkgerrors.CodeTimeout, pkgerrors.CodeLLMAPI:
		return recovery{retry: budgetLeft, delay: backoff(o.cfg.BaseBackoff, o.cfg.MaxBackoff, attempt-1)}
	case pkgerrors.CodeContextLength:
		return recovery{retry: !summarized, summarize: true}
	case pkgerrors.CodeFunctionCall:
		return recovery{retry: budgetLeft, delay: o.cfg.FunctionRetryDelay}
	case pkgerrors.CodeQuotaExceeded:
		return recovery{degrade: true}
	}
	return recovery{}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
