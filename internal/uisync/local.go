package uisync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

const topicPrefix = "ui."

// LocalBus fans events out in-process over a watermill go channel, one topic
// per session.
type LocalBus struct {
	pubsub *gochannel.GoChannel
	seq    atomic.Uint64
	now    func() time.Time
}

func NewLocalBus(buffer int64, now func() time.Time) *LocalBus {
	if buffer <= 0 {
		buffer = 64
	}
	if now == nil {
		now = time.Now
	}
	return &LocalBus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: buffer}, watermill.NopLogger{}),
		now:    now,
	}
}

func (b *LocalBus) Emit(_ context.Context, sessionID uuid.UUID, ev Event) error {
	env, err := NewEnvelope(sessionID, ev, b.seq.Add(1), b.now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	msg := message.NewMessage(env.ID, payload)
	msg.Metadata.Set("event_type", string(env.Type))
	return b.pubsub.Publish(topic(sessionID), msg)
}

// Subscribe streams a session's envelopes until ctx is done. Events published
// before the subscription are not replayed.
func (b *LocalBus) Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan Envelope, error) {
	messages, err := b.pubsub.Subscribe(ctx, topic(sessionID))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}
	out := make(chan Envelope)
	go func() {
		defer close(out)
		for msg := range messages {
			var env Envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *LocalBus) Close() error {
	return b.pubsub.Close()
}

func topic(sessionID uuid.UUID) string {
	return topicPrefix + sessionID.String()
}
