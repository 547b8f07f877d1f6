package statemachine

import (
	"github.com/angelmondragon/voicecommerce-backend/internal/intent"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
)

// Trigger names the event that drives a transition.
type Trigger string

const (
	TriggerStartListening    Trigger = "start_listening"
	TriggerVoiceReceived     Trigger = "voice_received"
	TriggerLowConfidence     Trigger = "low_confidence"
	TriggerIntentClassified  Trigger = "intent_classified"
	TriggerSlotsMissing      Trigger = "slots_missing"
	TriggerSlotsFilled       Trigger = "slots_filled"
	TriggerCartUpdated       Trigger = "cart_updated"
	TriggerCheckoutRequested Trigger = "checkout_requested"
	TriggerOrderCreated      Trigger = "order_created"
	TriggerPaymentStarted    Trigger = "payment_started"
	TriggerPaymentSucceeded  Trigger = "payment_succeeded"
	TriggerPaymentFailed     Trigger = "payment_failed"
	TriggerPaymentRetried    Trigger = "payment_retried"
	TriggerPaymentCancelled  Trigger = "payment_cancelled"
	TriggerOrderConfirmed    Trigger = "order_confirmed"
	TriggerTurnCompleted     Trigger = "turn_completed"
	TriggerReset             Trigger = "reset"
	TriggerErrorOccurred     Trigger = "error_occurred"
	TriggerRecover           Trigger = "recover"
)

// MaxPaymentRetries bounds payment_failed -> payment_session_created.
const MaxPaymentRetries = 3

// Guard inspects the session before a transition is allowed.
type Guard func(s *sessions.Session) bool

func hasCartItems(s *sessions.Session) bool { return !s.Cart.IsEmpty() }

func hasOrder(s *sessions.Session) bool { return s.CurrentOrderID != nil }

func slotsComplete(s *sessions.Session) bool {
	if s.Context.CurrentIntent == nil {
		return len(s.Context.MissingSlots) == 0
	}
	return intent.IsComplete(*s.Context.CurrentIntent)
}

func retryBudgetLeft(s *sessions.Session) bool { return s.Context.RetryCount < MaxPaymentRetries }

// Transition is a named edge of the session graph.
type Transition struct {
	From    enums.SessionState
	To      enums.SessionState
	Trigger Trigger
	Guard   Guard
	guardID string
	Action  func(s *sessions.Session)
}

// destinations declares where each state may go. error is added to every
// state except itself.
var destinations = map[enums.SessionState][]enums.SessionState{
	enums.SessionStateIdle: {
		enums.SessionStateListening, enums.SessionStateProcessingVoice, enums.SessionStateIntentDetected,
	},
	enums.SessionStateListening: {
		enums.SessionStateProcessingVoice, enums.SessionStateIntentDetected, enums.SessionStateIdle,
	},
	enums.SessionStateProcessingVoice: {
		enums.SessionStateIntentDetected, enums.SessionStateListening, enums.SessionStateIdle,
	},
	enums.SessionStateIntentDetected: {
		enums.SessionStateSlotFilling, enums.SessionStateCartReview, enums.SessionStateCheckoutInfo,
		enums.SessionStateListening, enums.SessionStateIdle,
	},
	enums.SessionStateSlotFilling: {
		enums.SessionStateIntentDetected, enums.SessionStateCartReview, enums.SessionStateCheckoutInfo,
		enums.SessionStateListening, enums.SessionStateIdle,
	},
	enums.SessionStateCartReview: {
		enums.SessionStateIntentDetected, enums.SessionStateSlotFilling, enums.SessionStateCheckoutInfo,
		enums.SessionStateListening, enums.SessionStateIdle,
	},
	enums.SessionStateCheckoutInfo: {
		enums.SessionStateSlotFilling, enums.SessionStateCartReview, enums.SessionStatePaymentSessionCreated,
		enums.SessionStateIdle,
	},
	enums.SessionStatePaymentSessionCreated: {
		enums.SessionStatePaymentPending, enums.SessionStateCheckoutInfo, enums.SessionStateIdle,
	},
	enums.SessionStatePaymentPending: {
		enums.SessionStatePaymentCompleted, enums.SessionStatePaymentFailed,
	},
	enums.SessionStatePaymentCompleted: {
		enums.SessionStateOrderConfirmed,
	},
	enums.SessionStatePaymentFailed: {
		enums.SessionStatePaymentSessionCreated, enums.SessionStateCheckoutInfo, enums.SessionStateIdle,
	},
	enums.SessionStateOrderConfirmed: {
		enums.SessionStateIdle, enums.SessionStateListening, enums.SessionStateIntentDetected,
	},
	enums.SessionStateError: {
		enums.SessionStateIdle,
	},
}

func clearContext(s *sessions.Session) {
	degraded := s.Context.DegradedMode
	s.Context = sessions.StateContext{DegradedMode: degraded}
}

func recordMissingSlots(s *sessions.Session) {
	if s.Context.CurrentIntent != nil {
		s.Context.MissingSlots = intent.MissingSlots(*s.Context.CurrentIntent)
	}
}

func clearMissingSlots(s *sessions.Session) { s.Context.MissingSlots = nil }

func countPaymentFailure(s *sessions.Session) { s.Context.RetryCount++ }

func defaultTransitions() []Transition {
	t := func(from, to enums.SessionState, trig Trigger) Transition {
		return Transition{From: from, To: to, Trigger: trig}
	}
	guarded := func(tr Transition, id string, g Guard) Transition {
		tr.Guard, tr.guardID = g, id
		return tr
	}
	withAction := func(tr Transition, a func(*sessions.Session)) Transition {
		tr.Action = a
		return tr
	}

	list := []Transition{
		t(enums.SessionStateIdle, enums.SessionStateListening, TriggerStartListening),
		t(enums.SessionStateIdle, enums.SessionStateProcessingVoice, TriggerVoiceReceived),
		t(enums.SessionStateIdle, enums.SessionStateIntentDetected, TriggerIntentClassified),

		t(enums.SessionStateListening, enums.SessionStateProcessingVoice, TriggerVoiceReceived),
		t(enums.SessionStateListening, enums.SessionStateIntentDetected, TriggerIntentClassified),

		t(enums.SessionStateProcessingVoice, enums.SessionStateIntentDetected, TriggerIntentClassified),
		t(enums.SessionStateProcessingVoice, enums.SessionStateListening, TriggerLowConfidence),

		withAction(t(enums.SessionStateIntentDetected, enums.SessionStateSlotFilling, TriggerSlotsMissing), recordMissingSlots),
		t(enums.SessionStateIntentDetected, enums.SessionStateCartReview, TriggerCartUpdated),
		guarded(t(enums.SessionStateIntentDetected, enums.SessionStateCheckoutInfo, TriggerCheckoutRequested), "hasCartItems", hasCartItems),
		t(enums.SessionStateIntentDetected, enums.SessionStateListening, TriggerTurnCompleted),

		withAction(guarded(t(enums.SessionStateSlotFilling, enums.SessionStateIntentDetected, TriggerSlotsFilled), "slotsComplete", slotsComplete), clearMissingSlots),
		withAction(guarded(t(enums.SessionStateSlotFilling, enums.SessionStateCartReview, TriggerCartUpdated), "slotsComplete", slotsComplete), clearMissingSlots),
		withAction(guarded(t(enums.SessionStateSlotFilling, enums.SessionStateCheckoutInfo, TriggerCheckoutRequested), "hasCartItems", hasCartItems), clearMissingSlots),
		t(enums.SessionStateSlotFilling, enums.SessionStateListening, TriggerTurnCompleted),

		t(enums.SessionStateCartReview, enums.SessionStateIntentDetected, TriggerIntentClassified),
		withAction(t(enums.SessionStateCartReview, enums.SessionStateSlotFilling, TriggerSlotsMissing), recordMissingSlots),
		guarded(t(enums.SessionStateCartReview, enums.SessionStateCheckoutInfo, TriggerCheckoutRequested), "hasCartItems", hasCartItems),
		t(enums.SessionStateCartReview, enums.SessionStateListening, TriggerTurnCompleted),

		withAction(t(enums.SessionStateCheckoutInfo, enums.SessionStateSlotFilling, TriggerSlotsMissing), recordMissingSlots),
		t(enums.SessionStateCheckoutInfo, enums.SessionStateCartReview, TriggerCartUpdated),
		guarded(t(enums.SessionStateCheckoutInfo, enums.SessionStatePaymentSessionCreated, TriggerOrderCreated), "hasOrder", hasOrder),

		guarded(t(enums.SessionStatePaymentSessionCreated, enums.SessionStatePaymentPending, TriggerPaymentStarted), "hasOrder", hasOrder),
		t(enums.SessionStatePaymentSessionCreated, enums.SessionStateCheckoutInfo, TriggerPaymentCancelled),

		t(enums.SessionStatePaymentPending, enums.SessionStatePaymentCompleted, TriggerPaymentSucceeded),
		withAction(t(enums.SessionStatePaymentPending, enums.SessionStatePaymentFailed, TriggerPaymentFailed), countPaymentFailure),

		guarded(t(enums.SessionStatePaymentCompleted, enums.SessionStateOrderConfirmed, TriggerOrderConfirmed), "hasOrder", hasOrder),

		guarded(t(enums.SessionStatePaymentFailed, enums.SessionStatePaymentSessionCreated, TriggerPaymentRetried), "retryBudgetLeft", retryBudgetLeft),
		t(enums.SessionStatePaymentFailed, enums.SessionStateCheckoutInfo, TriggerPaymentCancelled),

		t(enums.SessionStateOrderConfirmed, enums.SessionStateListening, TriggerTurnCompleted),
		t(enums.SessionStateOrderConfirmed, enums.SessionStateIntentDetected, TriggerIntentClassified),

		withAction(t(enums.SessionStateError, enums.SessionStateIdle, TriggerRecover), clearContext),
	}

	for from, tos := range destinations {
		for _, to := range tos {
			if to == enums.SessionStateIdle && from != enums.SessionStateError {
				list = append(list, withAction(t(from, to, TriggerReset), clearContext))
			}
		}
		if from != enums.SessionStateError {
			list = append(list, t(from, enums.SessionStateError, TriggerErrorOccurred))
		}
	}
	return list
}
