package payments

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

// Session is a simulated payment attempt for one order.
type Session struct {
	ID            uuid.UUID                  `json:"id"`
	OrderID       uuid.UUID                  `json:"orderId"`
	Amount        int64                      `json:"amount"`
	Currency      enums.Currency             `json:"currency"`
	Status        enums.PaymentSessionStatus `json:"status"`
	Attempts      int                        `json:"attempts"`
	FailureReason string                     `json:"failureReason,omitempty"`
	CreatedAt     time.Time                  `json:"createdAt"`
	UpdatedAt     time.Time                  `json:"updatedAt"`
	ExpiresAt     time.Time                  `json:"expiresAt"`
}

// Resolved reports whether the session reached an outcome the integration
// layer acts on.
func (s Session) Resolved() bool {
	switch s.Status {
	case enums.PaymentSessionStatusCompleted, enums.PaymentSessionStatusFailed, enums.PaymentSessionStatusCancelled:
		return true
	}
	return false
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

var transitions = map[enums.PaymentSessionStatus][]enums.PaymentSessionStatus{
	enums.PaymentSessionStatusCreated:    {enums.PaymentSessionStatusPending, enums.PaymentSessionStatusCancelled},
	enums.PaymentSessionStatusPending:    {enums.PaymentSessionStatusProcessing, enums.PaymentSessionStatusCancelled},
	enums.PaymentSessionStatusProcessing: {enums.PaymentSessionStatusCompleted, enums.PaymentSessionStatusFailed, enums.PaymentSessionStatusCancelled},
	enums.PaymentSessionStatusFailed:     {enums.PaymentSessionStatusCreated, enums.PaymentSessionStatusCancelled},
}

// CanTransition reports whether from -> to is a legal payment status move.
func CanTransition(from, to enums.PaymentSessionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func invalidStatus(s *Session, to enums.PaymentSessionStatus) error {
	return pkgerrors.Newf(pkgerrors.CodePaymentInvalidStatus, "payment session %s cannot move from %s to %s", s.ID, s.Status, to).
		WithDetails(map[string]any{"from": string(s.Status), "to": string(to)})
}

func notFound(id uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodePaymentNotFound, "payment session %s not found", id)
}
