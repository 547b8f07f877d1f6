package uisync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
)

type EventType string

const (
	EventUIUpdate    EventType = "ui_update"
	EventToast       EventType = "toast"
	EventNavigation  EventType = "navigation"
	EventStateChange EventType = "state_change"
)

const (
	PanelChat     = "chat"
	PanelProducts = "products"
	PanelCart     = "cart"
	PanelCoupons  = "coupons"
	PanelCheckout = "checkout"
	PanelPayment  = "payment"
	PanelOrder    = "order"
	PanelSystem   = "system"
)

// Event is anything the client renders.
type Event interface {
	EventType() EventType
}

type UIUpdate struct {
	Panel string `json:"panel"`
	View  string `json:"view"`
	Data  any    `json:"data,omitempty"`
}

func (UIUpdate) EventType() EventType { return EventUIUpdate }

type Toast struct {
	Kind       enums.ToastKind `json:"kind"`
	Message    string          `json:"message"`
	DurationMS int64           `json:"durationMs"`
}

func (Toast) EventType() EventType { return EventToast }

type Navigation struct {
	To     string            `json:"to"`
	Params map[string]string `json:"params,omitempty"`
}

func (Navigation) EventType() EventType { return EventNavigation }

type StateChange struct {
	From    enums.SessionState `json:"from"`
	To      enums.SessionState `json:"to"`
	Trigger string             `json:"trigger"`
	Context any                `json:"context,omitempty"`
}

func (StateChange) EventType() EventType { return EventStateChange }

// Envelope is the wire form of an event. Seq is monotonic per emitter.
type Envelope struct {
	ID        string          `json:"id"`
	SessionID uuid.UUID       `json:"sessionId"`
	Type      EventType       `json:"type"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func NewEnvelope(sessionID uuid.UUID, ev Event, seq uint64, at time.Time) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s event: %w", ev.EventType(), err)
	}
	return Envelope{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      ev.EventType(),
		Seq:       seq,
		Timestamp: at.UTC(),
		Payload:   payload,
	}, nil
}

// Decode unmarshals the payload into dst.
func (e Envelope) Decode(dst any) error {
	return json.Unmarshal(e.Payload, dst)
}

// Emitter delivers events to a session's client.
type Emitter interface {
	Emit(ctx context.Context, sessionID uuid.UUID, ev Event) error
}

// BestEffort wraps an emitter so delivery failures are logged and dropped.
// UI events never fail the operation that produced them.
type BestEffort struct {
	next Emitter
	logg *logger.Logger
}

func NewBestEffort(next Emitter, logg *logger.Logger) *BestEffort {
	return &BestEffort{next: next, logg: logg}
}

func (b *BestEffort) Emit(ctx context.Context, sessionID uuid.UUID, ev Event) error {
	if b == nil || b.next == nil {
		return nil
	}
	if err := b.next.Emit(ctx, sessionID, ev); err != nil && b.logg != nil {
		ctx = b.logg.WithSessionID(ctx, sessionID.String())
		b.logg.Error(b.logg.WithField(ctx, "event_type", string(ev.EventType())), "ui event dropped", err)
	}
	return nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, uuid.UUID, Event) error { return nil }
