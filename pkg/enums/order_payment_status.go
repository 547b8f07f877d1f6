package enums

import "fmt"

// OrderPaymentStatus mirrors the payment outcome recorded on an order.
type OrderPaymentStatus string

const (
	OrderPaymentStatusPending    OrderPaymentStatus = "pending"
	OrderPaymentStatusProcessing OrderPaymentStatus = "processing"
	OrderPaymentStatusCompleted  OrderPaymentStatus = "completed"
	OrderPaymentStatusFailed     OrderPaymentStatus = "failed"
)

var validOrderPaymentStatuses = []OrderPaymentStatus{
	OrderPaymentStatusPending,
	OrderPaymentStatusProcessing,
	OrderPaymentStatusCompleted,
	OrderPaymentStatusFailed,
}

// String implements fmt.Stringer.
func (o OrderPaymentStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderPaymentStatus.
func (o OrderPaymentStatus) IsValid() bool {
	for _, candidate := range validOrderPaymentStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderPaymentStatus converts raw input into an OrderPaymentStatus.
func ParseOrderPaymentStatus(value string) (OrderPaymentStatus, error) {
	for _, candidate := range validOrderPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order payment status %q", value)
}
