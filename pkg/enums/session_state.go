package enums

import "fmt"

// SessionState is the conversational state of a voice session.
type SessionState string

const (
	SessionStateIdle                  SessionState = "idle"
	SessionStateListening             SessionState = "listening"
	SessionStateProcessingVoice       SessionState = "processing_voice"
	SessionStateIntentDetected        SessionState = "intent_detected"
	SessionStateSlotFilling           SessionState = "slot_filling"
	SessionStateCartReview            SessionState = "cart_review"
	SessionStateCheckoutInfo          SessionState = "checkout_info"
	SessionStatePaymentSessionCreated SessionState = "payment_session_created"
	SessionStatePaymentPending        SessionState = "payment_pending"
	SessionStatePaymentCompleted      SessionState = "payment_completed"
	SessionStatePaymentFailed         SessionState = "payment_failed"
	SessionStateOrderConfirmed        SessionState = "order_confirmed"
	SessionStateError                 SessionState = "error"
)

var validSessionStates = []SessionState{
	SessionStateIdle,
	SessionStateListening,
	SessionStateProcessingVoice,
	SessionStateIntentDetected,
	SessionStateSlotFilling,
	SessionStateCartReview,
	SessionStateCheckoutInfo,
	SessionStatePaymentSessionCreated,
	SessionStatePaymentPending,
	SessionStatePaymentCompleted,
	SessionStatePaymentFailed,
	SessionStateOrderConfirmed,
	SessionStateError,
}

// String implements fmt.Stringer.
func (s SessionState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SessionState.
func (s SessionState) IsValid() bool {
	for _, candidate := range validSessionStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSessionState converts raw input into a SessionState.
func ParseSessionState(value string) (SessionState, error) {
	for _, candidate := range validSessionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid session state %q", value)
}

// SessionStates returns every known state in declaration order.
func SessionStates() []SessionState {
	return append([]SessionState(nil), validSessionStates...)
}
