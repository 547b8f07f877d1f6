package uisync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
)

type messagePublisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string, orderingKey string) error
}

// PubSubEmitter publishes envelopes to the UI events topic so gateway
// instances can fan them out to connected clients. Messages are ordered per
// session.
type PubSubEmitter struct {
	pub messagePublisher
	seq atomic.Uint64
	now func() time.Time
}

func NewPubSubEmitter(pub *pubsub.Publisher, now func() time.Time) (*PubSubEmitter, error) {
	if pub == nil {
		return nil, fmt.Errorf("ui events publisher required")
	}
	pub.EnableMessageOrdering = true
	return newPubSubEmitter(topicPublisher{pub: pub}, now), nil
}

func newPubSubEmitter(pub messagePublisher, now func() time.Time) *PubSubEmitter {
	if now == nil {
		now = time.Now
	}
	return &PubSubEmitter{pub: pub, now: now}
}

func (p *PubSubEmitter) Emit(ctx context.Context, sessionID uuid.UUID, ev Event) error {
	env, err := NewEnvelope(sessionID, ev, p.seq.Add(1), p.now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	attrs := map[string]string{
		"session_id": sessionID.String(),
		"event_type": string(env.Type),
	}
	if err := p.pub.Publish(ctx, payload, attrs, sessionID.String()); err != nil {
		return fmt.Errorf("publish %s event: %w", env.Type, err)
	}
	return nil
}

type topicPublisher struct {
	pub *pubsub.Publisher
}

func (t topicPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string, orderingKey string) error {
	res := t.pub.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: orderingKey,
	})
	if _, err := res.Get(ctx); err != nil {
		t.pub.ResumePublish(orderingKey)
		return err
	}
	return nil
}
