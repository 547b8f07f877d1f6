package uisync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recorder keeps every emitted envelope in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Envelope
	err    error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent Emit calls return err after recording.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *Recorder) Emit(_ context.Context, sessionID uuid.UUID, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	env, err := NewEnvelope(sessionID, ev, uint64(len(r.events)+1), time.Now())
	if err != nil {
		return err
	}
	r.events = append(r.events, env)
	return r.err
}

func (r *Recorder) Events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.events...)
}

// OfType filters recorded envelopes by type.
func (r *Recorder) OfType(t EventType) []Envelope {
	var out []Envelope
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Toasts() []Toast {
	var out []Toast
	for _, e := range r.OfType(EventToast) {
		var t Toast
		if e.Decode(&t) == nil {
			out = append(out, t)
		}
	}
	return out
}

func (r *Recorder) StateChanges() []StateChange {
	var out []StateChange
	for _, e := range r.OfType(EventStateChange) {
		var sc StateChange
		if e.Decode(&sc) == nil {
			out = append(out, sc)
		}
	}
	return out
}

func (r *Recorder) Updates(panel string) []UIUpdate {
	var out []UIUpdate
	for _, e := range r.OfType(EventUIUpdate) {
		var u UIUpdate
		if e.Decode(&u) == nil && (panel == "" || u.Panel == panel) {
			out = append(out, u)
		}
	}
	return out
}

func (r *Recorder) Navigations() []Navigation {
	var out []Navigation
	for _, e := range r.OfType(EventNavigation) {
		var n Navigation
		if e.Decode(&n) == nil {
			out = append(out, n)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
