package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/voicecommerce-backend/internal/payments"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	"github.com/angelmondragon/voicecommerce-backend/internal/statemachine"
	"github.com/angelmondragon/voicecommerce-backend/internal/uisync"
	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
)

// Outcome is how a payment session settled from the order's point of view.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeExpired   Outcome = "expired"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTimedOut  Outcome = "timed_out"
)

const ViewReceipt = "receipt"

type paymentReader interface {
	Get(ctx context.Context, id uuid.UUID) (*payments.Session, error)
	Cancel(ctx context.Context, id uuid.UUID) (*payments.Session, error)
}

type orderLedger interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkPaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderPaymentStatus, paymentSessionID *uuid.UUID) (*models.Order, error)
	SetOrderStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus, metadata map[string]any) (*models.Order, error)
	AttachReceipt(ctx context.Context, orderID uuid.UUID, token string) (*models.Order, error)
}

type sessionLocker interface {
	Lock(ctx context.Context, id uuid.UUID) (func(), error)
}

type sessionDriver interface {
	TransitionPath(ctx context.Context, id uuid.UUID, steps ...statemachine.Step) (*sessions.Session, error)
}

// Settlement is the result of reconciling one payment session.
type Settlement struct {
	PaymentSessionID uuid.UUID `json:"paymentSessionId"`
	OrderID          uuid.UUID `json:"orderId"`
	SessionID        uuid.UUID `json:"sessionId"`
	Outcome          Outcome   `json:"outcome"`
	Receipt          string    `json:"receipt,omitempty"`
}

type ReconcilerParams struct {
	Payments     paymentReader
	Orders       orderLedger
	Driver       sessionDriver
	Locks        sessionLocker
	Emitter      uisync.Emitter
	Toasts       *uisync.Toasts
	Receipts     config.ReceiptsConfig
	PollInterval time.Duration
	PollAttempts int
	Logger       *logger.Logger
	Now          func() time.Time
}

// Reconciler carries payment outcomes into orders, session state and the
// client. Each payment session has at most one polling task.
type Reconciler struct {
	payments paymentReader
	orders   orderLedger
	driver   sessionDriver
	locks    sessionLocker
	emitter  uisync.Emitter
	toasts   *uisync.Toasts
	receipts config.ReceiptsConfig
	interval time.Duration
	attempts int
	logg     *logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	watches map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
}

func NewReconciler(p ReconcilerParams) (*Reconciler, error) {
	if p.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if p.Driver == nil {
		return nil, fmt.Errorf("state machine driver required")
	}
	if p.Toasts == nil {
		return nil, fmt.Errorf("toasts required")
	}
	if p.Emitter == nil {
		p.Emitter = uisync.Nop{}
	}
	if p.PollInterval <= 0 {
		p.PollInterval = time.Second
	}
	if p.PollAttempts <= 0 {
		p.PollAttempts = 30
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Reconciler{
		payments: p.Payments,
		orders:   p.Orders,
		driver:   p.Driver,
		locks:    p.Locks,
		emitter:  p.Emitter,
		toasts:   p.Toasts,
		receipts: p.Receipts,
		interval: p.PollInterval,
		attempts: p.PollAttempts,
		logg:     p.Logger,
		now:      p.Now,
		watches:  map[uuid.UUID]context.CancelFunc{},
	}, nil
}

// Watch starts a background Await for the payment session. It reports false
// when the session is already watched.
func (r *Reconciler) Watch(paymentSessionID uuid.UUID) bool {
	ctx, release, ok := r.claim(context.Background(), paymentSessionID)
	if !ok {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer release()
		if _, err := r.poll(ctx, paymentSessionID); err != nil && !errors.Is(err, context.Canceled) {
			r.logError(ctx, paymentSessionID, "checkout.watch_failed", err)
		}
	}()
	return true
}

// Await polls the payment session until it resolves, then settles it. Running
// out of attempts cancels the payment and settles it as failed.
func (r *Reconciler) Await(ctx context.Context, paymentSessionID uuid.UUID) (*Settlement, error) {
	ctx, release, ok := r.claim(ctx, paymentSessionID)
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "payment session %s is already being reconciled", paymentSessionID)
	}
	defer release()
	return r.poll(ctx, paymentSessionID)
}

// Watching reports whether a polling task owns the payment session.
func (r *Reconciler) Watching(paymentSessionID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.watches[paymentSessionID]
	return ok
}

// Stop cancels the polling task for a payment session, if any.
func (r *Reconciler) Stop(paymentSessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.watches[paymentSessionID]; ok {
		cancel()
	}
}

// Shutdown cancels every polling task and waits for them.
func (r *Reconciler) Shutdown() {
	r.mu.Lock()
	for _, cancel := range r.watches {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Reconciler) claim(parent context.Context, id uuid.UUID) (context.Context, func(), bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.watches[id]; taken {
		return nil, nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	r.watches[id] = cancel
	return ctx, func() {
		cancel()
		r.mu.Lock()
		delete(r.watches, id)
		r.mu.Unlock()
	}, true
}

func (r *Reconciler) poll(ctx context.Context, id uuid.UUID) (*Settlement, error) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		ps, err := r.payments.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ps.Resolved() {
			return r.Settle(ctx, *ps)
		}
		if attempt >= r.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	cancelled, err := r.payments.Cancel(ctx, id)
	if err != nil {
		// The session resolved between the last poll and the cancel.
		if ps, getErr := r.payments.Get(ctx, id); getErr == nil && ps.Resolved() {
			return r.Settle(ctx, *ps)
		}
		return nil, err
	}
	return r.settle(ctx, *cancelled, OutcomeTimedOut)
}

// Settle applies a resolved payment session to its order and session.
func (r *Reconciler) Settle(ctx context.Context, ps payments.Session) (*Settlement, error) {
	return r.settle(ctx, ps, outcomeOf(ps))
}

func outcomeOf(ps payments.Session) Outcome {
	switch ps.Status {
	case enums.PaymentSessionStatusCompleted:
		return OutcomeCompleted
	case enums.PaymentSessionStatusFailed:
		return OutcomeFailed
	case enums.PaymentSessionStatusCancelled:
		if ps.FailureReason == payments.ReasonExpired {
			return OutcomeExpired
		}
		return OutcomeCancelled
	}
	return ""
}

func (r *Reconciler) settle(ctx context.Context, ps payments.Session, outcome Outcome) (*Settlement, error) {
	if outcome == "" {
		return nil, pkgerrors.Newf(pkgerrors.CodePaymentInvalidStatus, "payment session %s is still %s", ps.ID, ps.Status)
	}
	order, err := r.orders.GetOrder(ctx, ps.OrderID)
	if err != nil {
		return nil, err
	}
	if r.locks != nil {
		unlock, err := r.locks.Lock(ctx, order.SessionID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	out := &Settlement{PaymentSessionID: ps.ID, OrderID: order.ID, SessionID: order.SessionID, Outcome: outcome}
	if outcome == OutcomeCompleted {
		receipt, err := r.succeed(ctx, order, ps)
		if err != nil {
			return nil, err
		}
		out.Receipt = receipt
	} else if err := r.fail(ctx, order, ps, outcome); err != nil {
		return nil, err
	}

	if r.logg != nil {
		logCtx := r.logg.WithPaymentSessionID(ctx, ps.ID.String())
		logCtx = r.logg.WithOrderID(logCtx, order.ID.String())
		logCtx = r.logg.WithField(logCtx, "outcome", string(outcome))
		r.logg.Info(logCtx, "checkout.settled")
	}
	return out, nil
}

func (r *Reconciler) succeed(ctx context.Context, order *models.Order, ps payments.Session) (string, error) {
	if order.ReceiptToken != nil && order.Status == enums.OrderStatusConfirmed {
		return *order.ReceiptToken, nil
	}

	psID := ps.ID
	if order.PaymentStatus != enums.OrderPaymentStatusCompleted {
		if _, err := r.orders.MarkPaymentStatus(ctx, order.ID, enums.OrderPaymentStatusCompleted, &psID); err != nil {
			return "", err
		}
	}
	if order.Status == enums.OrderStatusCreated {
		if _, err := r.orders.SetOrderStatus(ctx, order.ID, enums.OrderStatusConfirmed, map[string]any{
			"payment_session_id": psID.String(),
		}); err != nil {
			return "", err
		}
	}

	receipt, err := SignReceipt(r.receipts, ReceiptInput{
		OrderID:          order.ID,
		PaymentSessionID: psID,
		Amount:           ps.Amount,
		Currency:         ps.Currency,
		PaidAt:           ps.UpdatedAt,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign receipt")
	}
	if _, err := r.orders.AttachReceipt(ctx, order.ID, receipt); err != nil {
		return "", err
	}

	if _, err := r.driver.TransitionPath(ctx, order.SessionID,
		statemachine.Step{To: enums.SessionStatePaymentPending, Trigger: statemachine.TriggerPaymentStarted},
		statemachine.Step{To: enums.SessionStatePaymentCompleted, Trigger: statemachine.TriggerPaymentSucceeded},
		statemachine.Step{To: enums.SessionStateOrderConfirmed, Trigger: statemachine.TriggerOrderConfirmed},
	); err != nil {
		r.logError(ctx, ps.ID, "checkout.session_transition_failed", err)
	}

	emitErr := multierr.Combine(
		r.emitter.Emit(ctx, order.SessionID, uisync.UIUpdate{
			Panel: uisync.PanelPayment,
			View:  string(OutcomeCompleted),
			Data:  map[string]any{"orderId": order.ID, "amount": ps.Amount, "currency": ps.Currency},
		}),
		r.emitter.Emit(ctx, order.SessionID, uisync.Navigation{
			To:     ViewReceipt,
			Params: map[string]string{"orderId": order.ID.String(), "receipt": receipt},
		}),
		r.emitter.Emit(ctx, order.SessionID, r.toasts.New(enums.ToastKindSuccess, uisync.MsgOrderConfirmed)),
	)
	if emitErr != nil {
		r.logError(ctx, ps.ID, "checkout.emit_failed", emitErr)
	}
	return receipt, nil
}

func (r *Reconciler) fail(ctx context.Context, order *models.Order, ps payments.Session, outcome Outcome) error {
	if order.PaymentStatus == enums.OrderPaymentStatusCompleted {
		return pkgerrors.Newf(pkgerrors.CodePaymentInvalidStatus, "order %s is already paid", order.ID)
	}
	psID := ps.ID
	already := order.PaymentStatus == enums.OrderPaymentStatusFailed &&
		order.PaymentSessionID != nil && *order.PaymentSessionID == psID
	if !already {
		if _, err := r.orders.MarkPaymentStatus(ctx, order.ID, enums.OrderPaymentStatusFailed, &psID); err != nil {
			return err
		}
	}
	if outcome == OutcomeCancelled {
		// The caller that cancelled owns the session state.
		return nil
	}

	if !already {
		if _, err := r.driver.TransitionPath(ctx, order.SessionID,
			statemachine.Step{To: enums.SessionStatePaymentPending, Trigger: statemachine.TriggerPaymentStarted},
			statemachine.Step{To: enums.SessionStatePaymentFailed, Trigger: statemachine.TriggerPaymentFailed},
		); err != nil {
			r.logError(ctx, ps.ID, "checkout.session_transition_failed", err)
		}
	}

	key := uisync.MsgPaymentFailed
	if outcome == OutcomeExpired || outcome == OutcomeTimedOut {
		key = uisync.MsgPaymentExpired
	}
	emitErr := multierr.Combine(
		r.emitter.Emit(ctx, order.SessionID, uisync.UIUpdate{
			Panel: uisync.PanelPayment,
			View:  string(outcome),
			Data: map[string]any{
				"orderId":   order.ID,
				"reason":    ps.FailureReason,
				"retryable": outcome == OutcomeFailed,
			},
		}),
		r.emitter.Emit(ctx, order.SessionID, r.toasts.New(enums.ToastKindError, key)),
	)
	if emitErr != nil {
		r.logError(ctx, ps.ID, "checkout.emit_failed", emitErr)
	}
	return nil
}

func (r *Reconciler) logError(ctx context.Context, id uuid.UUID, msg string, err error) {
	if r.logg == nil {
		return
	}
	r.logg.Error(r.logg.WithPaymentSessionID(ctx, id.String()), msg, err)
}
