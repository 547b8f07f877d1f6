package statemachine

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/internal/intent"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	"github.com/angelmondragon/voicecommerce-backend/internal/uisync"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
)

type sessionUpdater interface {
	Update(ctx context.Context, id uuid.UUID, fn func(*sessions.Session) error) (*sessions.Session, error)
}

// Driver applies transitions to stored sessions. Callers hold the session
// lock.
type Driver struct {
	machine  *Machine
	sessions sessionUpdater
}

func NewDriver(m *Machine, s sessionUpdater) *Driver {
	return &Driver{machine: m, sessions: s}
}

func (d *Driver) Machine() *Machine {
	return d.machine
}

// update runs fn on the stored session and announces its state changes
// only once the session is saved.
func (d *Driver) update(ctx context.Context, id uuid.UUID, fn func(*sessions.Session) ([]uisync.StateChange, error)) (*sessions.Session, error) {
	var changes []uisync.StateChange
	sess, err := d.sessions.Update(ctx, id, func(s *sessions.Session) error {
		changes = nil
		out, err := fn(s)
		if err != nil {
			return err
		}
		changes = out
		return nil
	})
	if err != nil {
		return sess, err
	}
	d.machine.emit(ctx, id, changes...)
	return sess, nil
}

// Transition loads the session, executes one transition and saves it.
func (d *Driver) Transition(ctx context.Context, id uuid.UUID, to enums.SessionState, trigger Trigger) (*sessions.Session, error) {
	return d.update(ctx, id, func(s *sessions.Session) ([]uisync.StateChange, error) {
		change, err := d.machine.apply(ctx, s, to, trigger)
		if err != nil {
			return nil, err
		}
		return []uisync.StateChange{change}, nil
	})
}

// TransitionPath applies a sequence of transitions; nothing is saved or
// announced unless all of them succeed.
func (d *Driver) TransitionPath(ctx context.Context, id uuid.UUID, steps ...Step) (*sessions.Session, error) {
	return d.update(ctx, id, func(s *sessions.Session) ([]uisync.StateChange, error) {
		var changes []uisync.StateChange
		for _, st := range steps {
			if s.State == st.To {
				continue
			}
			change, err := d.machine.apply(ctx, s, st.To, st.Trigger)
			if err != nil {
				return nil, err
			}
			changes = append(changes, change)
		}
		return changes, nil
	})
}

type Step struct {
	To      enums.SessionState
	Trigger Trigger
}

// Advance records the intent on the session and moves it to the state the
// intent implies, stepping through intent_detected when there is no direct
// edge.
func (d *Driver) Advance(ctx context.Context, id uuid.UUID, in intent.Intent) (*sessions.Session, error) {
	return d.update(ctx, id, func(s *sessions.Session) ([]uisync.StateChange, error) {
		return d.machine.advance(ctx, s, in)
	})
}

// Fail moves the stored session to error.
func (d *Driver) Fail(ctx context.Context, id uuid.UUID, cause error) (*sessions.Session, error) {
	return d.update(ctx, id, func(s *sessions.Session) ([]uisync.StateChange, error) {
		return d.machine.fail(ctx, s, cause)
	})
}

// Reset forces the stored session back to idle.
func (d *Driver) Reset(ctx context.Context, id uuid.UUID) (*sessions.Session, error) {
	return d.update(ctx, id, func(s *sessions.Session) ([]uisync.StateChange, error) {
		return []uisync.StateChange{d.machine.reset(s)}, nil
	})
}

// Advance is the in-memory form of Driver.Advance. On failure s is left as
// it was and nothing is announced.
func (m *Machine) Advance(ctx context.Context, s *sessions.Session, in intent.Intent) error {
	changes, err := m.advance(ctx, s, in)
	if err != nil {
		return err
	}
	m.emit(ctx, s.ID, changes...)
	return nil
}

func (m *Machine) advance(ctx context.Context, s *sessions.Session, in intent.Intent) ([]uisync.StateChange, error) {
	snapshot := s.Clone()
	cp := in
	s.Context.CurrentIntent = &cp

	next, trigger, ok := NextStateForIntent(s.State, in)
	if !ok {
		if s.State == enums.SessionStateSlotFilling {
			s.Context.MissingSlots = intent.MissingSlots(in)
		}
		return nil, nil
	}
	var changes []uisync.StateChange
	if _, direct := m.Lookup(s.State, next, trigger); !direct && s.State != enums.SessionStateIntentDetected {
		via, viaTrigger, _ := toIntentDetected(s.State)
		if _, ok := m.Lookup(s.State, via, viaTrigger); ok {
			change, err := m.apply(ctx, s, via, viaTrigger)
			if err != nil {
				*s = snapshot
				return nil, err
			}
			changes = append(changes, change)
		}
	}
	if s.State == next {
		return changes, nil
	}
	change, err := m.apply(ctx, s, next, trigger)
	if err != nil {
		*s = snapshot
		return nil, err
	}
	return append(changes, change), nil
}
