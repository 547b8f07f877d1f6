package sessions

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/internal/cart"
	"github.com/angelmondragon/voicecommerce-backend/internal/intent"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
)

// StateContext carries what the state machine needs between turns.
// RetryCount counts failed payments for the current order; ModelFailures
// counts consecutive failed model attempts.
type StateContext struct {
	CurrentIntent *intent.Intent `json:"currentIntent,omitempty"`
	MissingSlots  []string       `json:"missingSlots,omitempty"`
	RetryCount    int            `json:"retryCount"`
	ModelFailures int            `json:"modelFailures"`
	LastError     string         `json:"lastError,omitempty"`
	DegradedMode  bool           `json:"degradedMode"`
}

// Session is one voice conversation. State changes go through the state
// machine; everything else is mutated while holding the session lock.
type Session struct {
	ID             uuid.UUID          `json:"id"`
	UserID         string             `json:"userId,omitempty"`
	State          enums.SessionState `json:"state"`
	Context        StateContext       `json:"context"`
	Cart           cart.Cart          `json:"cart"`
	CurrentOrderID *uuid.UUID         `json:"currentOrderId,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	LastActiveAt   time.Time          `json:"lastActiveAt"`
	ExpiresAt      time.Time          `json:"expiresAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Clone deep-copies the parts of a session callers are allowed to mutate.
func (s Session) Clone() Session {
	out := s
	out.Cart = s.Cart.Clone()
	if s.CurrentOrderID != nil {
		id := *s.CurrentOrderID
		out.CurrentOrderID = &id
	}
	out.Context.MissingSlots = append([]string(nil), s.Context.MissingSlots...)
	if s.Context.CurrentIntent != nil {
		in := *s.Context.CurrentIntent
		if in.Slots != nil {
			in.Slots = make(map[string]string, len(s.Context.CurrentIntent.Slots))
			for k, v := range s.Context.CurrentIntent.Slots {
				in.Slots[k] = v
			}
		}
		out.Context.CurrentIntent = &in
	}
	return out
}
