package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
	"github.com/angelmondragon/voicecommerce-backend/pkg/metrics"
)

const sessionExpiryJobName = "session-expiry"

type expiredSessions interface {
	ListExpired(ctx context.Context) ([]uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// runtimeCloser drops per-session conversation state.
type runtimeCloser interface {
	Shutdown(sessionID uuid.UUID)
}

type SessionExpiryJobParams struct {
	Logger   *logger.Logger
	Sessions expiredSessions
	Runtimes runtimeCloser
	Metrics  *metrics.CronJobMetrics
}

func NewSessionExpiryJob(params SessionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session service required")
	}
	return &sessionExpiryJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		runtimes: params.Runtimes,
		metrics:  params.Metrics,
	}, nil
}

type sessionExpiryJob struct {
	logg     *logger.Logger
	sessions expiredSessions
	runtimes runtimeCloser
	metrics  *metrics.CronJobMetrics
}

func (j *sessionExpiryJob) Name() string { return sessionExpiryJobName }

func (j *sessionExpiryJob) Run(ctx context.Context) error {
	ids, err := j.sessions.ListExpired(ctx)
	if err != nil {
		return fmt.Errorf("list expired sessions: %w", err)
	}
	var errs error
	removed := 0
	for _, id := range ids {
		if j.runtimes != nil {
			j.runtimes.Shutdown(id)
		}
		if err := j.sessions.Delete(ctx, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete session %s: %w", id, err))
			continue
		}
		removed++
	}
	j.metrics.AddSwept(sessionExpiryJobName, removed)
	if removed > 0 {
		j.logg.Info(j.logg.WithField(ctx, "count", removed), "session.expiry_sweep")
	}
	return errs
}
