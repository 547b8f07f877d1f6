package enums

import "fmt"

// PaymentSessionStatus tracks a simulated payment session.
type PaymentSessionStatus string

const (
	PaymentSessionStatusCreated    PaymentSessionStatus = "created"
	PaymentSessionStatusPending    PaymentSessionStatus = "pending"
	PaymentSessionStatusProcessing PaymentSessionStatus = "processing"
	PaymentSessionStatusCompleted  PaymentSessionStatus = "completed"
	PaymentSessionStatusFailed     PaymentSessionStatus = "failed"
	PaymentSessionStatusCancelled  PaymentSessionStatus = "cancelled"
)

var validPaymentSessionStatuses = []PaymentSessionStatus{
	PaymentSessionStatusCreated,
	PaymentSessionStatusPending,
	PaymentSessionStatusProcessing,
	PaymentSessionStatusCompleted,
	PaymentSessionStatusFailed,
	PaymentSessionStatusCancelled,
}

// String implements fmt.Stringer.
func (p PaymentSessionStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentSessionStatus.
func (p PaymentSessionStatus) IsValid() bool {
	for _, candidate := range validPaymentSessionStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentSessionStatus converts raw input into a PaymentSessionStatus.
func ParsePaymentSessionStatus(value string) (PaymentSessionStatus, error) {
	for _, candidate := range validPaymentSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment session status %q", value)
}

// IsTerminal reports whether the session can no longer change on its own.
// Failed sessions are not terminal: they may be retried or cancelled.
func (p PaymentSessionStatus) IsTerminal() bool {
	return p == PaymentSessionStatusCompleted || p == PaymentSessionStatusCancelled
}
