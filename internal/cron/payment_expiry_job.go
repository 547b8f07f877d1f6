package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/voicecommerce-backend/internal/checkout"
	"github.com/angelmondragon/voicecommerce-backend/internal/payments"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
	"github.com/angelmondragon/voicecommerce-backend/pkg/metrics"
)

const paymentExpiryJobName = "payment-expiry"

type paymentSweeper interface {
	SweepExpired(ctx context.Context) []payments.Session
}

type paymentSettler interface {
	Watching(paymentSessionID uuid.UUID) bool
	Settle(ctx context.Context, ps payments.Session) (*checkout.Settlement, error)
}

type PaymentExpiryJobParams struct {
	Logger   *logger.Logger
	Payments paymentSweeper
	Settler  paymentSettler
	Metrics  *metrics.CronJobMetrics
}

// NewPaymentExpiryJob builds the job that cancels payment sessions past
// their expiry and fails their orders.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment service required")
	}
	if params.Settler == nil {
		return nil, fmt.Errorf("settler required")
	}
	return &paymentExpiryJob{
		logg:     params.Logger,
		payments: params.Payments,
		settler:  params.Settler,
		metrics:  params.Metrics,
	}, nil
}

type paymentExpiryJob struct {
	logg     *logger.Logger
	payments paymentSweeper
	settler  paymentSettler
	metrics  *metrics.CronJobMetrics
}

func (j *paymentExpiryJob) Name() string { return paymentExpiryJobName }

func (j *paymentExpiryJob) Run(ctx context.Context) error {
	swept := j.payments.SweepExpired(ctx)
	j.metrics.AddSwept(paymentExpiryJobName, len(swept))

	var errs error
	settled := 0
	for _, ps := range swept {
		// a watched session is settled by its own poller
		if j.settler.Watching(ps.ID) {
			continue
		}
		if _, err := j.settler.Settle(ctx, ps); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("settle payment session %s: %w", ps.ID, err))
			continue
		}
		settled++
	}
	if len(swept) > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{"expired": len(swept), "settled": settled})
		j.logg.Info(logCtx, "payment.expiry_sweep")
	}
	return errs
}
