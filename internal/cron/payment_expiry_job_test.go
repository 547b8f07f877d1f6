package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/internal/checkout"
	"github.com/angelmondragon/voicecommerce-backend/internal/payments"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
)

type fakeSweeper struct {
	swept []payments.Session
}

func (f *fakeSweeper) SweepExpired(context.Context) []payments.Session { return f.swept }

type fakeSettler struct {
	watching map[uuid.UUID]bool
	failFor  uuid.UUID
	settled  []uuid.UUID
}

func (f *fakeSettler) Watching(id uuid.UUID) bool { return f.watching[id] }

func (f *fakeSettler) Settle(_ context.Context, ps payments.Session) (*checkout.Settlement, error) {
	if ps.ID == f.failFor {
		return nil, errors.New("order missing")
	}
	f.settled = append(f.settled, ps.ID)
	return &checkout.Settlement{PaymentSessionID: ps.ID, OrderID: ps.OrderID, Outcome: checkout.OutcomeExpired}, nil
}

func expiredSession() payments.Session {
	return payments.Session{
		ID:            uuid.New(),
		OrderID:       uuid.New(),
		Status:        enums.PaymentSessionStatusCancelled,
		FailureReason: payments.ReasonExpired,
	}
}

func TestPaymentExpiryJobSettlesUnwatchedSessions(t *testing.T) {
	watched, orphan, broken := expiredSession(), expiredSession(), expiredSession()
	settler := &fakeSettler{watching: map[uuid.UUID]bool{watched.ID: true}, failFor: broken.ID}
	job, err := NewPaymentExpiryJob(PaymentExpiryJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Payments: &fakeSweeper{swept: []payments.Session{watched, broken, orphan}},
		Settler:  settler,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	err = job.Run(context.Background())
	if err == nil {
		t.Fatalf("expected the failed settlement to be reported")
	}
	if len(settler.settled) != 1 || settler.settled[0] != orphan.ID {
		t.Fatalf("expected only the unwatched session settled, got %v", settler.settled)
	}
}

func TestPaymentExpiryJobIsQuietWithNothingExpired(t *testing.T) {
	job, err := NewPaymentExpiryJob(PaymentExpiryJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Payments: &fakeSweeper{},
		Settler:  &fakeSettler{},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}
