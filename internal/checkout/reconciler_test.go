package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/voicecommerce-backend/internal/cart"
	"github.com/angelmondragon/voicecommerce-backend/internal/catalog"
	"github.com/angelmondragon/voicecommerce-backend/internal/coupons"
	"github.com/angelmondragon/voicecommerce-backend/internal/orders"
	"github.com/angelmondragon/voicecommerce-backend/internal/payments"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	"github.com/angelmondragon/voicecommerce-backend/internal/statemachine"
	"github.com/angelmondragon/voicecommerce-backend/internal/uisync"
	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
	"github.com/angelmondragon/voicecommerce-backend/pkg/db/dbtest"
	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

var testNow = time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)

var testReceipts = config.ReceiptsConfig{Secret: "receipt-test-secret", Issuer: "voicecommerce", TTL: time.Hour}

type harness struct {
	orders     orders.Service
	carts      *cart.Service
	sessions   *sessions.Service
	driver     *statemachine.Driver
	payments   *payments.Service
	reconciler *Reconciler
	events     *uisync.Recorder
}

func newHarness(t *testing.T, outcome payments.Outcome, delay time.Duration, attempts int) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	dbtest.SeedCatalog(t, conn)
	now := func() time.Time { return testNow }

	catalogRepo := catalog.NewRepository(conn)
	catalogSvc, err := catalog.NewService(catalogRepo)
	require.NoError(t, err)
	couponRepo := coupons.NewRepository(conn)

	sessSvc, err := sessions.NewService(sessions.ServiceParams{Store: sessions.NewMemoryStore(), TTL: 30 * time.Minute, Now: now})
	require.NoError(t, err)
	carts, err := cart.NewService(sessSvc, catalogSvc, couponRepo, cart.DefaultPolicy(), now)
	require.NoError(t, err)

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(conn),
		Tx:        dbtest.Tx{DB: conn},
		Inventory: catalogRepo,
		Coupons:   couponRepo,
		Locations: catalogSvc,
		Sessions:  sessSvc,
		Delivery:  config.DeliveryConfig{BaseFee: 3000, TaxRatePercent: 10},
		Now:       now,
	})
	require.NoError(t, err)

	paySvc, err := payments.NewService(payments.ServiceParams{
		Store:           payments.NewStore(),
		Orders:          orderSvc,
		Simulator:       payments.NewSimulator(0.9, outcome, 1),
		TTL:             10 * time.Minute,
		ProcessingDelay: delay,
		Now:             now,
	})
	require.NoError(t, err)
	t.Cleanup(paySvc.Shutdown)

	events := uisync.NewRecorder()
	driver := statemachine.NewDriver(statemachine.New(statemachine.WithEmitter(events)), sessSvc)
	toasts, err := uisync.NewToasts("en", time.Second)
	require.NoError(t, err)

	rec, err := NewReconciler(ReconcilerParams{
		Payments:     paySvc,
		Orders:       orderSvc,
		Driver:       driver,
		Locks:        sessSvc.Locks(),
		Emitter:      events,
		Toasts:       toasts,
		Receipts:     testReceipts,
		PollInterval: 5 * time.Millisecond,
		PollAttempts: attempts,
		Now:          now,
	})
	require.NoError(t, err)
	t.Cleanup(rec.Shutdown)

	return &harness{
		orders:     orderSvc,
		carts:      carts,
		sessions:   sessSvc,
		driver:     driver,
		payments:   paySvc,
		reconciler: rec,
		events:     events,
	}
}

// placePickupOrder buys two americanos (9000) for pickup and leaves the
// session waiting on payment.
func (h *harness) placePickupOrder(t *testing.T) (uuid.UUID, *models.Order) {
	t.Helper()
	ctx := context.Background()
	sess, err := h.sessions.Start(ctx, "user-1")
	require.NoError(t, err)
	c, err := h.carts.AddItem(ctx, sess.ID, "americano", 2, nil)
	require.NoError(t, err)
	require.Equal(t, int64(9000), c.Total)

	order, err := h.orders.CreateOrder(ctx, sess.ID, orders.CreateOrderRequest{
		OrderType:        enums.OrderTypePickup,
		Customer:         orders.CustomerInput{Name: "김민수", Phone: "010-1234-5678"},
		PickupLocationID: "gangnam",
	})
	require.NoError(t, err)
	require.Equal(t, int64(9900), order.Total)

	_, err = h.sessions.Update(ctx, sess.ID, func(s *sessions.Session) error {
		s.State = enums.SessionStatePaymentSessionCreated
		return nil
	})
	require.NoError(t, err)
	h.events.Reset()
	return sess.ID, order
}

func (h *harness) pay(t *testing.T, orderID uuid.UUID) *payments.Session {
	t.Helper()
	ctx := context.Background()
	ps, err := h.payments.Create(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, int64(9900), ps.Amount)
	_, err = h.payments.Process(ctx, ps.ID)
	require.NoError(t, err)
	return ps
}

func TestPickupHappyPath(t *testing.T) {
	h := newHarness(t, payments.OutcomeSuccess, 0, 200)
	ctx := context.Background()
	sessionID, order := h.placePickupOrder(t)
	ps := h.pay(t, order.ID)

	settled, err := h.reconciler.Await(ctx, ps.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, settled.Outcome)
	assert.Equal(t, sessionID, settled.SessionID)
	require.NotEmpty(t, settled.Receipt)

	stored, err := h.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderPaymentStatusCompleted, stored.PaymentStatus)
	assert.Equal(t, enums.OrderStatusConfirmed, stored.Status)
	require.NotNil(t, stored.ConfirmedAt)
	require.NotNil(t, stored.ReceiptToken)
	assert.Equal(t, settled.Receipt, *stored.ReceiptToken)

	claims, err := ParseReceipt(testReceipts, settled.Receipt, testNow)
	require.NoError(t, err)
	assert.Equal(t, order.ID, claims.OrderID)
	assert.Equal(t, int64(9900), claims.Amount)
	assert.Equal(t, enums.CurrencyKRW, claims.Currency)

	sess, err := h.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, enums.SessionStateOrderConfirmed, sess.State)

	var path []enums.SessionState
	for _, sc := range h.events.StateChanges() {
		path = append(path, sc.To)
	}
	assert.Equal(t, []enums.SessionState{
		enums.SessionStatePaymentPending,
		enums.SessionStatePaymentCompleted,
		enums.SessionStateOrderConfirmed,
	}, path)

	navs := h.events.Navigations()
	require.Len(t, navs, 1)
	assert.Equal(t, ViewReceipt, navs[0].To)
	assert.Equal(t, order.ID.String(), navs[0].Params["orderId"])
	require.Len(t, h.events.Toasts(), 1)
	assert.Equal(t, enums.ToastKindSuccess, h.events.Toasts()[0].Kind)
}

func TestFailedPaymentThenRetry(t *testing.T) {
	h := newHarness(t, payments.OutcomeFailure, 0, 200)
	ctx := context.Background()
	sessionID, order := h.placePickupOrder(t)
	ps := h.pay(t, order.ID)

	settled, err := h.reconciler.Await(ctx, ps.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, settled.Outcome)

	stored, err := h.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderPaymentStatusFailed, stored.PaymentStatus)
	assert.True(t, stored.PaymentRetryable)
	assert.Equal(t, enums.OrderStatusCreated, stored.Status)

	sess, err := h.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, enums.SessionStatePaymentFailed, sess.State)
	assert.Equal(t, 1, sess.Context.RetryCount)
	require.Len(t, h.events.Toasts(), 1)
	assert.Equal(t, enums.ToastKindError, h.events.Toasts()[0].Kind)

	h.payments.Simulator().Force(payments.OutcomeSuccess)
	_, err = h.payments.Retry(ctx, ps.ID)
	require.NoError(t, err)
	_, err = h.driver.Transition(ctx, sessionID, enums.SessionStatePaymentSessionCreated, statemachine.TriggerPaymentRetried)
	require.NoError(t, err)
	_, err = h.orders.MarkPaymentStatus(ctx, order.ID, enums.OrderPaymentStatusProcessing, &ps.ID)
	require.NoError(t, err)
	_, err = h.payments.Process(ctx, ps.ID)
	require.NoError(t, err)

	settled, err = h.reconciler.Await(ctx, ps.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, settled.Outcome)

	stored, err = h.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, stored.Status)
	assert.False(t, stored.PaymentRetryable)
}

func TestAwaitExhaustionCancelsPayment(t *testing.T) {
	h := newHarness(t, payments.OutcomeSuccess, time.Hour, 3)
	ctx := context.Background()
	sessionID, order := h.placePickupOrder(t)
	ps := h.pay(t, order.ID)

	settled, err := h.reconciler.Await(ctx, ps.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, settled.Outcome)

	current, err := h.payments.Get(ctx, ps.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentSessionStatusCancelled, current.Status)

	stored, err := h.orders.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderPaymentStatusFailed, stored.PaymentStatus)
	assert.Equal(t, enums.OrderStatusCreated, stored.Status)

	sess, err := h.sessions.Get(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, enums.SessionStatePaymentFailed, sess.State)
}

func TestSingleOwnerPerPaymentSession(t *testing.T) {
	h := newHarness(t, payments.OutcomeSuccess, time.Hour, 1000)
	_, order := h.placePickupOrder(t)
	ps := h.pay(t, order.ID)

	require.True(t, h.reconciler.Watch(ps.ID))
	require.False(t, h.reconciler.Watch(ps.ID))
	require.True(t, h.reconciler.Watching(ps.ID))

	_, err := h.reconciler.Await(context.Background(), ps.ID)
	require.Equal(t, pkgerrors.CodeConflict, pkgerrors.CodeOf(err))

	h.reconciler.Stop(ps.ID)
	require.Eventually(t, func() bool { return !h.reconciler.Watching(ps.ID) }, time.Second, 5*time.Millisecond)
}

func TestSettleRejectsUnresolvedSession(t *testing.T) {
	h := newHarness(t, payments.OutcomeSuccess, time.Hour, 10)
	_, order := h.placePickupOrder(t)
	ps := h.pay(t, order.ID)

	current, err := h.payments.Get(context.Background(), ps.ID)
	require.NoError(t, err)
	_, err = h.reconciler.Settle(context.Background(), *current)
	require.Equal(t, pkgerrors.CodePaymentInvalidStatus, pkgerrors.CodeOf(err))
}

func TestReceiptRejectsForeignSecret(t *testing.T) {
	token, err := SignReceipt(testReceipts, ReceiptInput{
		OrderID:          uuid.New(),
		PaymentSessionID: uuid.New(),
		Amount:           9900,
		Currency:         enums.CurrencyKRW,
		PaidAt:           testNow,
	})
	require.NoError(t, err)

	other := testReceipts
	other.Secret = "someone-else"
	_, err = ParseReceipt(other, token, testNow)
	require.Error(t, err)

	_, err = ParseReceipt(testReceipts, token, testNow.Add(2*time.Hour))
	require.Error(t, err)
}
