package statemachine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/internal/intent"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	"github.com/angelmondragon/voicecommerce-backend/internal/uisync"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
	"github.com/angelmondragon/voicecommerce-backend/pkg/metrics"
)

// Hook runs on state entry or exit. A failing hook aborts the transition and
// restores the session.
type Hook func(ctx context.Context, s *sessions.Session) error

type edge struct {
	from    enums.SessionState
	to      enums.SessionState
	trigger Trigger
}

// Machine validates and applies session state transitions. It mutates the
// session in place; persisting is the caller's job.
type Machine struct {
	allowed     map[enums.SessionState]map[enums.SessionState]bool
	transitions map[edge]Transition
	enter       map[enums.SessionState][]Hook
	exit        map[enums.SessionState][]Hook
	emitter     uisync.Emitter
	metrics     *metrics.OrchestratorMetrics
	logg        *logger.Logger
}

type Option func(*Machine)

func WithEmitter(e uisync.Emitter) Option {
	return func(m *Machine) { m.emitter = e }
}

func WithMetrics(om *metrics.OrchestratorMetrics) Option {
	return func(m *Machine) { m.metrics = om }
}

func WithLogger(logg *logger.Logger) Option {
	return func(m *Machine) { m.logg = logg }
}

func OnEnter(state enums.SessionState, h Hook) Option {
	return func(m *Machine) { m.enter[state] = append(m.enter[state], h) }
}

func OnExit(state enums.SessionState, h Hook) Option {
	return func(m *Machine) { m.exit[state] = append(m.exit[state], h) }
}

func New(opts ...Option) *Machine {
	m := &Machine{
		allowed:     map[enums.SessionState]map[enums.SessionState]bool{},
		transitions: map[edge]Transition{},
		enter:       map[enums.SessionState][]Hook{},
		exit:        map[enums.SessionState][]Hook{},
		emitter:     uisync.Nop{},
	}
	for from, tos := range destinations {
		set := map[enums.SessionState]bool{}
		for _, to := range tos {
			set[to] = true
		}
		if from != enums.SessionStateError {
			set[enums.SessionStateError] = true
		}
		m.allowed[from] = set
	}
	for _, tr := range defaultTransitions() {
		m.transitions[edge{tr.From, tr.To, tr.Trigger}] = tr
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsValidTransition reports whether to is in from's declared destination set.
func (m *Machine) IsValidTransition(from, to enums.SessionState) bool {
	return m.allowed[from][to]
}

// Lookup returns the named transition for (from, to, trigger).
func (m *Machine) Lookup(from, to enums.SessionState, trigger Trigger) (Transition, bool) {
	tr, ok := m.transitions[edge{from, to, trigger}]
	return tr, ok
}

// ExecuteTransition validates first (declared pair, named transition, guard)
// and only then runs exit hook, action, enter hook and emits state_change.
func (m *Machine) ExecuteTransition(ctx context.Context, s *sessions.Session, to enums.SessionState, trigger Trigger) error {
	change, err := m.apply(ctx, s, to, trigger)
	if err != nil {
		return err
	}
	m.emit(ctx, s.ID, change)
	return nil
}

// apply performs the transition on s without announcing it.
func (m *Machine) apply(ctx context.Context, s *sessions.Session, to enums.SessionState, trigger Trigger) (uisync.StateChange, error) {
	from := s.State
	if !m.IsValidTransition(from, to) {
		return uisync.StateChange{}, m.reject(from, to, trigger, "transition not declared")
	}
	tr, ok := m.Lookup(from, to, trigger)
	if !ok {
		return uisync.StateChange{}, m.reject(from, to, trigger, "no transition for trigger")
	}
	if tr.Guard != nil && !tr.Guard(s) {
		return uisync.StateChange{}, m.reject(from, to, trigger, "guard "+tr.guardID+" rejected")
	}

	snapshot := s.Clone()
	for _, h := range m.exit[from] {
		if err := h(ctx, s); err != nil {
			*s = snapshot
			return uisync.StateChange{}, m.hookFailed(from, to, trigger, err)
		}
	}
	if tr.Action != nil {
		tr.Action(s)
	}
	s.State = to
	for _, h := range m.enter[to] {
		if err := h(ctx, s); err != nil {
			*s = snapshot
			return uisync.StateChange{}, m.hookFailed(from, to, trigger, err)
		}
	}

	m.metrics.IncTransition(string(to), true)
	return uisync.StateChange{
		From:    from,
		To:      to,
		Trigger: string(trigger),
		Context: s.Clone().Context,
	}, nil
}

func (m *Machine) emit(ctx context.Context, sessionID uuid.UUID, changes ...uisync.StateChange) {
	for _, change := range changes {
		if err := m.emitter.Emit(ctx, sessionID, change); err != nil && m.logg != nil {
			logCtx := m.logg.WithSessionID(ctx, sessionID.String())
			logCtx = m.logg.WithFields(logCtx, map[string]any{"from": string(change.From), "to": string(change.To)})
			m.logg.Error(logCtx, "statemachine.emit_failed", err)
		}
	}
}

// Fail moves the session to error, recording the cause.
func (m *Machine) Fail(ctx context.Context, s *sessions.Session, cause error) error {
	changes, err := m.fail(ctx, s, cause)
	if err != nil {
		return err
	}
	m.emit(ctx, s.ID, changes...)
	return nil
}

func (m *Machine) fail(ctx context.Context, s *sessions.Session, cause error) ([]uisync.StateChange, error) {
	if cause != nil {
		s.Context.LastError = cause.Error()
	}
	if s.State == enums.SessionStateError {
		return nil, nil
	}
	change, err := m.apply(ctx, s, enums.SessionStateError, TriggerErrorOccurred)
	if err != nil {
		return nil, err
	}
	return []uisync.StateChange{change}, nil
}

// Reset forces idle and clears the state context. Hooks do not run.
func (m *Machine) Reset(ctx context.Context, s *sessions.Session) {
	m.emit(ctx, s.ID, m.reset(s))
}

func (m *Machine) reset(s *sessions.Session) uisync.StateChange {
	from := s.State
	s.State = enums.SessionStateIdle
	s.Context = sessions.StateContext{}
	m.metrics.IncTransition(string(enums.SessionStateIdle), true)
	return uisync.StateChange{
		From:    from,
		To:      enums.SessionStateIdle,
		Trigger: string(TriggerReset),
	}
}

func (m *Machine) reject(from, to enums.SessionState, trigger Trigger, reason string) error {
	m.metrics.IncTransition(string(to), false)
	return pkgerrors.Newf(pkgerrors.CodeStateTransition, "cannot move session from %s to %s: %s", from, to, reason).
		WithDetails(map[string]any{
			"from":        string(from),
			"to":          string(to),
			"trigger":     string(trigger),
			"recommended": string(enums.SessionStateIdle),
		})
}

func (m *Machine) hookFailed(from, to enums.SessionState, trigger Trigger, err error) error {
	m.metrics.IncTransition(string(to), false)
	return pkgerrors.Wrap(pkgerrors.CodeStateTransition, err, fmt.Sprintf("hook failed moving %s to %s", from, to)).
		WithDetails(map[string]any{
			"from":        string(from),
			"to":          string(to),
			"trigger":     string(trigger),
			"recommended": string(enums.SessionStateIdle),
		})
}

// NextStateForIntent derives the state a classified intent implies from
// current. ok is false when the intent does not move the session.
func NextStateForIntent(current enums.SessionState, in intent.Intent) (next enums.SessionState, trigger Trigger, ok bool) {
	if len(intent.MissingSlots(in)) > 0 {
		if current == enums.SessionStateSlotFilling {
			return current, "", false
		}
		return enums.SessionStateSlotFilling, TriggerSlotsMissing, true
	}

	switch in.Category {
	case enums.IntentCategoryProduct:
		if in.Action == intent.ActionAdd {
			return enums.SessionStateCartReview, TriggerCartUpdated, true
		}
		return toIntentDetected(current)
	case enums.IntentCategoryCoupon:
		return enums.SessionStateCartReview, TriggerCartUpdated, true
	case enums.IntentCategoryOrder:
		switch in.Action {
		case intent.ActionCreate:
			if current == enums.SessionStateCheckoutInfo {
				return enums.SessionStatePaymentSessionCreated, TriggerOrderCreated, true
			}
			return enums.SessionStateCheckoutInfo, TriggerCheckoutRequested, true
		case intent.ActionPickup:
			if current == enums.SessionStateCheckoutInfo {
				return current, "", false
			}
			return enums.SessionStateCheckoutInfo, TriggerCheckoutRequested, true
		case intent.ActionCancel:
			return enums.SessionStateIdle, TriggerReset, true
		}
		return current, "", false
	case enums.IntentCategoryGeneral:
		if in.Action == intent.ActionGreeting && current == enums.SessionStateIdle {
			return enums.SessionStateListening, TriggerStartListening, true
		}
	}
	return current, "", false
}

func toIntentDetected(current enums.SessionState) (enums.SessionState, Trigger, bool) {
	switch current {
	case enums.SessionStateIntentDetected:
		return current, "", false
	case enums.SessionStateSlotFilling:
		return enums.SessionStateIntentDetected, TriggerSlotsFilled, true
	}
	return enums.SessionStateIntentDetected, TriggerIntentClassified, true
}
