package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/voicecommerce-backend/api/controllers"
	"github.com/angelmondragon/voicecommerce-backend/internal/cart"
	"github.com/angelmondragon/voicecommerce-backend/internal/functions"
	"github.com/angelmondragon/voicecommerce-backend/internal/orchestrator"
	"github.com/angelmondragon/voicecommerce-backend/internal/payments"
	"github.com/angelmondragon/voicecommerce-backend/internal/sessions"
	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

type stubSessions struct {
	mu    sync.Mutex
	items map[uuid.UUID]*sessions.Session
}

func (s *stubSessions) Start(_ context.Context, userID string) (*sessions.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &sessions.Session{ID: uuid.New(), UserID: userID, State: enums.SessionStateIdle}
	s.items[sess.ID] = sess
	return sess, nil
}

func (s *stubSessions) Get(_ context.Context, id uuid.UUID) (*sessions.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.items[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
	}
	return sess, nil
}

func (s *stubSessions) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

type stubConversation struct {
	transcripts []orchestrator.Transcript
	intents     []string
	shutdown    []uuid.UUID
}

func (s *stubConversation) HandleTranscript(_ context.Context, sessionID uuid.UUID, tr orchestrator.Transcript) (*orchestrator.Turn, error) {
	s.transcripts = append(s.transcripts, tr)
	if !tr.IsFinal {
		return nil, nil
	}
	return &orchestrator.Turn{SessionID: sessionID, Mode: orchestrator.ModeModel, Text: "ok"}, nil
}

func (s *stubConversation) HandleIntent(_ context.Context, sessionID uuid.UUID, text string) (*orchestrator.Turn, error) {
	s.intents = append(s.intents, text)
	return &orchestrator.Turn{SessionID: sessionID, Mode: orchestrator.ModeRules}, nil
}

func (s *stubConversation) Shutdown(sessionID uuid.UUID) {
	s.shutdown = append(s.shutdown, sessionID)
}

type stubCarts struct{}

func (stubCarts) Get(_ context.Context, sessionID uuid.UUID) (*cart.Cart, error) {
	c := cart.New(sessionID, "", enums.CurrencyKRW)
	return &c, nil
}

type stubOrders struct {
	order    *models.Order
	status   enums.OrderStatus
	metadata map[string]any
}

func (s *stubOrders) GetOrder(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s *stubOrders) ListSessionOrders(_ context.Context, sessionID uuid.UUID) ([]models.Order, error) {
	if s.order == nil || s.order.SessionID != sessionID {
		return nil, nil
	}
	return []models.Order{*s.order}, nil
}

func (s *stubOrders) SetOrderStatus(_ context.Context, _ uuid.UUID, status enums.OrderStatus, metadata map[string]any) (*models.Order, error) {
	s.status = status
	s.metadata = metadata
	updated := *s.order
	updated.Status = status
	return &updated, nil
}

type stubPayments struct {
	session *payments.Session
}

func (s stubPayments) Get(_ context.Context, id uuid.UUID) (*payments.Session, error) {
	if s.session == nil || s.session.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodePaymentNotFound, "payment session not found")
	}
	return s.session, nil
}

type recordedCall struct {
	sessionID uuid.UUID
	call      functions.Call
}

type stubFunctions struct {
	calls []recordedCall
	resp  functions.Response
}

func (s *stubFunctions) Handle(_ context.Context, sessionID uuid.UUID, call functions.Call) functions.Response {
	s.calls = append(s.calls, recordedCall{sessionID: sessionID, call: call})
	resp := s.resp
	resp.ID = call.ID
	return resp
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type fixture struct {
	handler http.Handler
	sess    *stubSessions
	conv    *stubConversation
	orders  *stubOrders
	fns     *stubFunctions
	order   *models.Order
	payment *payments.Session
}

func newFixture(t *testing.T, readiness ...controllers.NamedPinger) *fixture {
	t.Helper()
	f := &fixture{
		sess: &stubSessions{items: map[uuid.UUID]*sessions.Session{}},
		conv: &stubConversation{},
		fns:  &stubFunctions{},
	}
	owner, err := f.sess.Start(context.Background(), "user-1")
	require.NoError(t, err)
	f.order = &models.Order{
		ID:            uuid.New(),
		SessionID:     owner.ID,
		Type:          enums.OrderTypePickup,
		Status:        enums.OrderStatusCreated,
		PaymentStatus: enums.OrderPaymentStatusPending,
		Total:         9900,
		Currency:      enums.CurrencyKRW,
		CreatedAt:     time.Now(),
	}
	f.orders = &stubOrders{order: f.order}
	f.payment = &payments.Session{ID: uuid.New(), OrderID: f.order.ID, Amount: 9900, Status: enums.PaymentSessionStatusPending}

	f.handler = NewRouter(Deps{
		Config:       &config.Config{App: config.AppConfig{Env: "test"}},
		Sessions:     f.sess,
		Locks:        sessions.NewLocker(),
		Conversation: f.conv,
		Carts:        stubCarts{},
		Orders:       f.orders,
		Payments:     stubPayments{session: f.payment},
		Functions:    f.fns,
		Gatherer:     prometheus.NewRegistry(),
		Readiness:    readiness,
	})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Data
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope.Error.Code
}

func TestHealthRoutes(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-VoiceCommerce-Env"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = f.do(http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyReportsFailingDependency(t *testing.T) {
	f := newFixture(t, controllers.NamedPinger{Name: "redis", Pinger: failingPinger{}})
	rec := f.do(http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeDependency), decodeErrorCode(t, rec))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartAndFetchSession(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/sessions", `{"userId":"  user-42  "}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "user-42", data["userId"])

	rec = f.do(http.MethodGet, "/v1/sessions/"+data["id"].(string), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionRoutesRejectMalformedID(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/v1/sessions/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeErrorCode(t, rec))
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/v1/sessions/"+uuid.NewString()+"/cart", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInterimTranscriptIsAccepted(t *testing.T) {
	f := newFixture(t)
	path := "/v1/sessions/" + f.order.SessionID.String() + "/transcripts"

	rec := f.do(http.MethodPost, path, `{"text":"아메리카노","confidence":0.9,"isFinal":false}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(http.MethodPost, path, `{"text":"아메리카노 두 잔","confidence":0.9,"isFinal":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.conv.transcripts, 2)
	assert.Equal(t, "아메리카노 두 잔", f.conv.transcripts[1].Text)
}

func TestTranscriptRejectsOutOfRangeConfidence(t *testing.T) {
	f := newFixture(t)
	path := "/v1/sessions/" + f.order.SessionID.String() + "/transcripts"
	rec := f.do(http.MethodPost, path, `{"text":"hi","confidence":1.5,"isFinal":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.conv.transcripts)
}

func TestIntentRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/sessions/"+f.order.SessionID.String()+"/intents", `{"text":"장바구니 보여줘"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"장바구니 보여줘"}, f.conv.intents)
}

func TestEndSessionShutsDownConversation(t *testing.T) {
	f := newFixture(t)
	id := f.order.SessionID
	rec := f.do(http.MethodDelete, "/v1/sessions/"+id.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []uuid.UUID{id}, f.conv.shutdown)

	rec = f.do(http.MethodGet, "/v1/sessions/"+id.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrderFetchAndSessionOrders(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/v1/orders/"+f.order.ID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	assert.Equal(t, "created", data["status"])
	assert.EqualValues(t, 9900, data["total"])

	rec = f.do(http.MethodGet, "/v1/sessions/"+f.order.SessionID.String()+"/orders?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/v1/sessions/"+f.order.SessionID.String()+"/orders?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderStatusUpdate(t *testing.T) {
	f := newFixture(t)
	path := "/v1/orders/" + f.order.ID.String() + "/status"

	rec := f.do(http.MethodPatch, path, `{"status":"teleported"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPatch, path, `{"status":"Cancelled","reason":"customer changed mind"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.OrderStatusCancelled, f.orders.status)
	assert.Equal(t, "api", f.orders.metadata["source"])
	assert.Equal(t, "customer changed mind", f.orders.metadata["reason"])
}

func TestCreatePaymentSessionRunsFunctionForOwningSession(t *testing.T) {
	f := newFixture(t)
	f.fns.resp = functions.Response{Result: f.payment}

	rec := f.do(http.MethodPost, "/v1/orders/"+f.order.ID.String()+"/payment-sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, f.fns.calls, 1)
	got := f.fns.calls[0]
	assert.Equal(t, f.order.SessionID, got.sessionID)
	assert.Equal(t, functions.CreatePaymentSession, got.call.Name)
	assert.JSONEq(t, `{"orderId":"`+f.order.ID.String()+`"}`, string(got.call.Parameters))
}

func TestPaymentActionsMapFunctionErrors(t *testing.T) {
	f := newFixture(t)
	f.fns.resp = functions.Response{Error: &functions.CallError{
		Code:    pkgerrors.CodePaymentInvalidStatus,
		Message: "payment session cannot move from completed to processing",
	}}

	rec := f.do(http.MethodPost, "/v1/payment-sessions/"+f.payment.ID.String()+"/process", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(pkgerrors.CodePaymentInvalidStatus), decodeErrorCode(t, rec))
	require.Len(t, f.fns.calls, 1)
	assert.Equal(t, functions.ProcessPayment, f.fns.calls[0].call.Name)
	assert.Equal(t, f.order.SessionID, f.fns.calls[0].sessionID)
}

func TestPaymentActionRoutes(t *testing.T) {
	f := newFixture(t)
	f.fns.resp = functions.Response{Result: map[string]any{"status": "ok"}}

	for _, action := range []string{"cancel", "retry"} {
		rec := f.do(http.MethodPost, "/v1/payment-sessions/"+f.payment.ID.String()+"/"+action, "")
		assert.Equal(t, http.StatusOK, rec.Code, action)
	}
	require.Len(t, f.fns.calls, 2)
	assert.Equal(t, functions.CancelPayment, f.fns.calls[0].call.Name)
	assert.Equal(t, functions.RetryPayment, f.fns.calls[1].call.Name)

	rec := f.do(http.MethodPost, "/v1/payment-sessions/"+uuid.NewString()+"/process", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
