package statemachine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/internal/cart"
	"github.com/angelmondragon/voicecommerce-backend/internal/intent"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	"github.com/angelmondragon/voicecommerce-backend/internal/uisync"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

func newSession(state enums.SessionState) *sessions.Session {
	id := uuid.New()
	return &sessions.Session{ID: id, State: state, Cart: cart.New(id, "", enums.CurrencyKRW)}
}

func withItem(s *sessions.Session) *sessions.Session {
	s.Cart.Items = append(s.Cart.Items, cart.Item{ProductID: "americano", Quantity: 1, UnitPrice: 4500})
	return s
}

func transitionDetails(t *testing.T, err error) map[string]any {
	t.Helper()
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateTransition {
		t.Fatalf("expected STATE_TRANSITION_ERROR, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", typed.Details())
	}
	return details
}

func TestErrorReachableFromEveryStateAndRecoversOnlyToIdle(t *testing.T) {
	m := New()
	for _, state := range enums.SessionStates() {
		if state == enums.SessionStateError {
			continue
		}
		if !m.IsValidTransition(state, enums.SessionStateError) {
			t.Fatalf("error not reachable from %s", state)
		}
		s := newSession(state)
		if err := m.ExecuteTransition(context.Background(), s, enums.SessionStateError, TriggerErrorOccurred); err != nil {
			t.Fatalf("error_occurred from %s: %v", state, err)
		}
	}
	for _, state := range enums.SessionStates() {
		want := state == enums.SessionStateIdle
		if got := m.IsValidTransition(enums.SessionStateError, state); got != want {
			t.Fatalf("error -> %s valid=%v, want %v", state, got, want)
		}
	}
}

func TestEveryNamedTransitionIsDeclared(t *testing.T) {
	m := New()
	for e := range m.transitions {
		if !m.IsValidTransition(e.from, e.to) {
			t.Fatalf("named transition %s -> %s (%s) is not in the destination set", e.from, e.to, e.trigger)
		}
	}
}

func TestExecuteTransitionRunsHooksInOrder(t *testing.T) {
	var calls []string
	rec := uisync.NewRecorder()
	m := New(
		WithEmitter(rec),
		OnExit(enums.SessionStateIntentDetected, func(_ context.Context, s *sessions.Session) error {
			calls = append(calls, "exit:"+string(s.State))
			return nil
		}),
		OnEnter(enums.SessionStateSlotFilling, func(_ context.Context, s *sessions.Session) error {
			calls = append(calls, "enter:"+string(s.State))
			if len(s.Context.MissingSlots) == 0 {
				return errors.New("action should have recorded missing slots")
			}
			return nil
		}),
	)
	s := newSession(enums.SessionStateIntentDetected)
	s.Context.CurrentIntent = &intent.Intent{Category: enums.IntentCategoryCoupon, Action: intent.ActionApply}

	if err := m.ExecuteTransition(context.Background(), s, enums.SessionStateSlotFilling, TriggerSlotsMissing); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if len(calls) != 2 || calls[0] != "exit:intent_detected" || calls[1] != "enter:slot_filling" {
		t.Fatalf("unexpected hook order %v", calls)
	}
	if s.Context.MissingSlots[0] != intent.SlotCouponCode {
		t.Fatalf("unexpected missing slots %v", s.Context.MissingSlots)
	}
	changes := rec.StateChanges()
	if len(changes) != 1 || changes[0].From != enums.SessionStateIntentDetected || changes[0].To != enums.SessionStateSlotFilling || changes[0].Trigger != string(TriggerSlotsMissing) {
		t.Fatalf("unexpected state change events %+v", changes)
	}
}

func TestValidationFailureRunsNoHooks(t *testing.T) {
	exitCalled := false
	rec := uisync.NewRecorder()
	m := New(WithEmitter(rec), OnExit(enums.SessionStateCartReview, func(context.Context, *sessions.Session) error {
		exitCalled = true
		return nil
	}))

	s := newSession(enums.SessionStateCartReview)
	err := m.ExecuteTransition(context.Background(), s, enums.SessionStateCheckoutInfo, TriggerCheckoutRequested)
	details := transitionDetails(t, err)
	if details["recommended"] != "idle" || details["from"] != "cart_review" || details["to"] != "checkout_info" {
		t.Fatalf("unexpected details %v", details)
	}
	if exitCalled {
		t.Fatalf("exit hook ran although the guard failed")
	}
	if s.State != enums.SessionStateCartReview || len(rec.Events()) != 0 {
		t.Fatalf("rejected transition must not change state or emit")
	}

	err = m.ExecuteTransition(context.Background(), newSession(enums.SessionStateIdle), enums.SessionStatePaymentPending, TriggerPaymentStarted)
	transitionDetails(t, err)

	err = m.ExecuteTransition(context.Background(), newSession(enums.SessionStateIdle), enums.SessionStateListening, TriggerOrderCreated)
	transitionDetails(t, err)
}

func TestFailingEnterHookRestoresSession(t *testing.T) {
	m := New(OnEnter(enums.SessionStateIdle, func(context.Context, *sessions.Session) error {
		return errors.New("enter failed")
	}))
	s := newSession(enums.SessionStateError)
	s.Context.LastError = "boom"

	err := m.ExecuteTransition(context.Background(), s, enums.SessionStateIdle, TriggerRecover)
	transitionDetails(t, err)
	if s.State != enums.SessionStateError || s.Context.LastError != "boom" {
		t.Fatalf("session not restored: %+v", s)
	}
}

func TestPaymentRetryBudget(t *testing.T) {
	m := New()
	ctx := context.Background()
	s := withItem(newSession(enums.SessionStateCheckoutInfo))
	orderID := uuid.New()
	s.CurrentOrderID = &orderID

	if err := m.ExecuteTransition(ctx, s, enums.SessionStatePaymentSessionCreated, TriggerOrderCreated); err != nil {
		t.Fatalf("order created: %v", err)
	}
	for i := 0; i < MaxPaymentRetries; i++ {
		if err := m.ExecuteTransition(ctx, s, enums.SessionStatePaymentPending, TriggerPaymentStarted); err != nil {
			t.Fatalf("attempt %d start: %v", i, err)
		}
		if err := m.ExecuteTransition(ctx, s, enums.SessionStatePaymentFailed, TriggerPaymentFailed); err != nil {
			t.Fatalf("attempt %d fail: %v", i, err)
		}
		if i < MaxPaymentRetries-1 {
			if err := m.ExecuteTransition(ctx, s, enums.SessionStatePaymentSessionCreated, TriggerPaymentRetried); err != nil {
				t.Fatalf("attempt %d retry: %v", i, err)
			}
		}
	}
	err := m.ExecuteTransition(ctx, s, enums.SessionStatePaymentSessionCreated, TriggerPaymentRetried)
	transitionDetails(t, err)
	if s.Context.RetryCount != MaxPaymentRetries {
		t.Fatalf("expected %d recorded failures, got %d", MaxPaymentRetries, s.Context.RetryCount)
	}
}

func TestNextStateForIntent(t *testing.T) {
	create := intent.Intent{Category: enums.IntentCategoryOrder, Action: intent.ActionCreate, Slots: map[string]string{
		intent.SlotOrderType: "pickup", intent.SlotCustomerName: "민수", intent.SlotPhone: "01012345678",
	}}
	cases := []struct {
		name    string
		current enums.SessionState
		in      intent.Intent
		next    enums.SessionState
		trigger Trigger
		ok      bool
	}{
		{"order.create from checkout", enums.SessionStateCheckoutInfo, create, enums.SessionStatePaymentSessionCreated, TriggerOrderCreated, true},
		{"order.create from cart", enums.SessionStateCartReview, create, enums.SessionStateCheckoutInfo, TriggerCheckoutRequested, true},
		{"incomplete intent", enums.SessionStateIdle, intent.Intent{Category: enums.IntentCategoryOrder, Action: intent.ActionCreate}, enums.SessionStateSlotFilling, TriggerSlotsMissing, true},
		{"still incomplete", enums.SessionStateSlotFilling, intent.Intent{Category: enums.IntentCategoryOrder, Action: intent.ActionCreate}, enums.SessionStateSlotFilling, "", false},
		{"add to cart", enums.SessionStateIdle, intent.Intent{Category: enums.IntentCategoryProduct, Action: intent.ActionAdd, Slots: map[string]string{intent.SlotProduct: "latte"}}, enums.SessionStateCartReview, TriggerCartUpdated, true},
		{"search after slot filling", enums.SessionStateSlotFilling, intent.Intent{Category: enums.IntentCategoryProduct, Action: intent.ActionSearch}, enums.SessionStateIntentDetected, TriggerSlotsFilled, true},
		{"greeting from idle", enums.SessionStateIdle, intent.Intent{Category: enums.IntentCategoryGeneral, Action: intent.ActionGreeting}, enums.SessionStateListening, TriggerStartListening, true},
		{"chat stays", enums.SessionStateCartReview, intent.Intent{Category: enums.IntentCategoryGeneral, Action: intent.ActionChat}, enums.SessionStateCartReview, "", false},
		{"cancel resets", enums.SessionStateCheckoutInfo, intent.Intent{Category: enums.IntentCategoryOrder, Action: intent.ActionCancel}, enums.SessionStateIdle, TriggerReset, true},
	}
	for _, tc := range cases {
		next, trigger, ok := NextStateForIntent(tc.current, tc.in)
		if next != tc.next || trigger != tc.trigger || ok != tc.ok {
			t.Fatalf("%s: got (%s, %s, %v), want (%s, %s, %v)", tc.name, next, trigger, ok, tc.next, tc.trigger, tc.ok)
		}
	}
}

func TestAdvanceStepsThroughIntentDetected(t *testing.T) {
	rec := uisync.NewRecorder()
	m := New(WithEmitter(rec))
	s := newSession(enums.SessionStateIdle)
	add := intent.Intent{Category: enums.IntentCategoryProduct, Action: intent.ActionAdd, Slots: map[string]string{intent.SlotProduct: "americano"}}

	if err := m.Advance(context.Background(), s, add); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if s.State != enums.SessionStateCartReview {
		t.Fatalf("expected cart_review, got %s", s.State)
	}
	changes := rec.StateChanges()
	if len(changes) != 2 || changes[0].To != enums.SessionStateIntentDetected {
		t.Fatalf("expected two hops, got %+v", changes)
	}
	if s.Context.CurrentIntent == nil || s.Context.CurrentIntent.Key() != "product.add" {
		t.Fatalf("intent not recorded: %+v", s.Context.CurrentIntent)
	}

	partial := intent.Intent{Category: enums.IntentCategoryOrder, Action: intent.ActionCreate, Slots: map[string]string{intent.SlotOrderType: "pickup"}}
	if err := m.Advance(context.Background(), s, partial); err != nil {
		t.Fatalf("advance partial: %v", err)
	}
	if s.State != enums.SessionStateSlotFilling || len(s.Context.MissingSlots) != 2 {
		t.Fatalf("expected slot filling with 2 missing slots, got %s %v", s.State, s.Context.MissingSlots)
	}
}

func TestResetAndFail(t *testing.T) {
	rec := uisync.NewRecorder()
	m := New(WithEmitter(rec))
	ctx := context.Background()
	s := newSession(enums.SessionStatePaymentPending)
	s.Context.RetryCount = 2

	if err := m.Fail(ctx, s, errors.New("gateway down")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if s.State != enums.SessionStateError || s.Context.LastError != "gateway down" {
		t.Fatalf("unexpected session after fail %+v", s)
	}
	if err := m.ExecuteTransition(ctx, s, enums.SessionStateListening, TriggerStartListening); err == nil {
		t.Fatalf("error must only recover to idle")
	}

	m.Reset(ctx, s)
	if s.State != enums.SessionStateIdle || s.Context.RetryCount != 0 || s.Context.LastError != "" {
		t.Fatalf("reset did not clear context: %+v", s)
	}
	last := rec.StateChanges()[len(rec.StateChanges())-1]
	if last.To != enums.SessionStateIdle || last.Trigger != string(TriggerReset) {
		t.Fatalf("unexpected reset event %+v", last)
	}
}

func TestDriverPersistsTransitions(t *testing.T) {
	svc, err := sessions.NewService(sessions.ServiceParams{Store: sessions.NewMemoryStore(), TTL: time.Hour})
	if err != nil {
		t.Fatalf("session service: %v", err)
	}
	ctx := context.Background()
	sess, err := svc.Start(ctx, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	d := NewDriver(New(), svc)

	if _, err := d.Transition(ctx, sess.ID, enums.SessionStateListening, TriggerStartListening); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if _, err := d.TransitionPath(ctx, sess.ID,
		Step{To: enums.SessionStateIntentDetected, Trigger: TriggerIntentClassified},
		Step{To: enums.SessionStateCheckoutInfo, Trigger: TriggerCheckoutRequested},
	); err == nil {
		t.Fatalf("expected guard failure for empty cart")
	}
	got, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != enums.SessionStateListening {
		t.Fatalf("failed path must not persist partial progress, got %s", got.State)
	}
}

func TestDriverAnnouncesOnlySavedTransitions(t *testing.T) {
	svc, err := sessions.NewService(sessions.ServiceParams{Store: sessions.NewMemoryStore(), TTL: time.Hour})
	if err != nil {
		t.Fatalf("session service: %v", err)
	}
	ctx := context.Background()
	rec := uisync.NewRecorder()
	d := NewDriver(New(
		WithEmitter(rec),
		OnEnter(enums.SessionStateCartReview, func(context.Context, *sessions.Session) error {
			return errors.New("cart panel unavailable")
		}),
	), svc)

	sess, err := svc.Start(ctx, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := d.TransitionPath(ctx, sess.ID,
		Step{To: enums.SessionStateListening, Trigger: TriggerStartListening},
		Step{To: enums.SessionStateCheckoutInfo, Trigger: TriggerCheckoutRequested},
	); err == nil {
		t.Fatalf("expected listening -> checkout_info to be rejected")
	}
	if got := rec.StateChanges(); len(got) != 0 {
		t.Fatalf("rolled back path announced %+v", got)
	}

	add := intent.Intent{Category: enums.IntentCategoryProduct, Action: intent.ActionAdd, Slots: map[string]string{intent.SlotProduct: "americano"}}
	if _, err := d.Advance(ctx, sess.ID, add); err == nil {
		t.Fatalf("expected failing enter hook to abort advance")
	}
	if got := rec.StateChanges(); len(got) != 0 {
		t.Fatalf("rolled back advance announced %+v", got)
	}
	got, err := svc.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != enums.SessionStateIdle || got.Context.CurrentIntent != nil {
		t.Fatalf("session changed by failed transitions: %s %+v", got.State, got.Context.CurrentIntent)
	}

	if _, err := d.TransitionPath(ctx, sess.ID,
		Step{To: enums.SessionStateListening, Trigger: TriggerStartListening},
		Step{To: enums.SessionStateIntentDetected, Trigger: TriggerIntentClassified},
	); err != nil {
		t.Fatalf("path: %v", err)
	}
	changes := rec.StateChanges()
	if len(changes) != 2 || changes[0].To != enums.SessionStateListening || changes[1].To != enums.SessionStateIntentDetected {
		t.Fatalf("expected both saved hops announced in order, got %+v", changes)
	}
}

func TestInMemoryAdvanceRestoresSessionOnFailure(t *testing.T) {
	rec := uisync.NewRecorder()
	m := New(WithEmitter(rec), OnEnter(enums.SessionStateCartReview, func(context.Context, *sessions.Session) error {
		return errors.New("boom")
	}))
	s := newSession(enums.SessionStateIdle)
	add := intent.Intent{Category: enums.IntentCategoryProduct, Action: intent.ActionAdd, Slots: map[string]string{intent.SlotProduct: "latte"}}

	if err := m.Advance(context.Background(), s, add); err == nil {
		t.Fatalf("expected advance to fail")
	}
	if s.State != enums.SessionStateIdle || s.Context.CurrentIntent != nil {
		t.Fatalf("session not restored: %s %+v", s.State, s.Context.CurrentIntent)
	}
	if len(rec.StateChanges()) != 0 {
		t.Fatalf("failed advance announced %+v", rec.StateChanges())
	}
}
