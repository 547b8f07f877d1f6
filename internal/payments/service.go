package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
	"github.com/angelmondragon/voicecommerce-backend/pkg/metrics"
)

const (
	ReasonExpired   = "expired"
	ReasonCancelled = "cancelled"
	ReasonDeclined  = "declined by simulated gateway"
	ReasonReplaced  = "replaced by a new payment session"
)

type orderLookup interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	AttachPaymentSession(ctx context.Context, orderID, paymentSessionID uuid.UUID) (*models.Order, error)
}

type ServiceParams struct {
	Store           *Store
	Orders          orderLookup
	Simulator       *Simulator
	TTL             time.Duration
	ProcessingDelay time.Duration
	Metrics         *metrics.CommerceMetrics
	Logger          *logger.Logger
	Now             func() time.Time
}

// Service drives payment sessions through
// created -> pending -> processing -> completed|failed. Each processing
// session owns exactly one background task.
type Service struct {
	store   *Store
	orders  orderLookup
	sim     *Simulator
	ttl     time.Duration
	delay   time.Duration
	metrics *metrics.CommerceMetrics
	logg    *logger.Logger
	now     func() time.Time

	mu    sync.Mutex
	tasks map[uuid.UUID]context.CancelFunc
	wg    sync.WaitGroup
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("payment store required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("order lookup required")
	}
	if p.Simulator == nil {
		return nil, fmt.Errorf("payment simulator required")
	}
	if p.TTL <= 0 {
		return nil, fmt.Errorf("payment session ttl must be positive")
	}
	if p.ProcessingDelay < 0 {
		p.ProcessingDelay = 0
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Service{
		store:   p.Store,
		orders:  p.Orders,
		sim:     p.Simulator,
		ttl:     p.TTL,
		delay:   p.ProcessingDelay,
		metrics: p.Metrics,
		logg:    p.Logger,
		now:     p.Now,
		tasks:   map[uuid.UUID]context.CancelFunc{},
	}, nil
}

func (s *Service) Simulator() *Simulator {
	return s.sim
}

// Create opens a payment session for an order still awaiting payment. An
// order has at most one open session; failed sessions are cancelled once
// the new one is attached.
func (s *Service) Create(ctx context.Context, orderID uuid.UUID) (*Session, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != enums.OrderPaymentStatusPending && order.PaymentStatus != enums.OrderPaymentStatusFailed {
		return nil, pkgerrors.Newf(pkgerrors.CodePaymentInvalidStatus, "order %s payment is %s", order.ID, order.PaymentStatus).
			WithDetails(map[string]any{"payment_status": string(order.PaymentStatus)})
	}
	var replaced []uuid.UUID
	for _, existing := range s.store.ForOrder(orderID) {
		if existing.Status.IsTerminal() || existing.Expired(s.now()) {
			continue
		}
		if existing.Status == enums.PaymentSessionStatusFailed {
			replaced = append(replaced, existing.ID)
			continue
		}
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "order %s already has open payment session %s", orderID, existing.ID).
			WithDetails(map[string]any{"payment_session_id": existing.ID.String()})
	}

	now := s.now()
	ps := Session{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Amount:    order.Total,
		Currency:  order.Currency,
		Status:    enums.PaymentSessionStatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.store.Insert(ps)
	if _, err := s.orders.AttachPaymentSession(ctx, order.ID, ps.ID); err != nil {
		_, _ = s.store.Cancel(ps.ID, "order rejected session", now)
		return nil, err
	}
	for _, id := range replaced {
		s.stop(id)
		if old, err := s.store.Cancel(id, ReasonReplaced, now); err == nil {
			s.log(ctx, old, "payment.session_replaced")
		}
	}
	s.log(ctx, ps, "payment.session_created")
	return &ps, nil
}

func (s *Service) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	ps, ok := s.store.Get(id)
	if !ok {
		return nil, notFound(id)
	}
	return &ps, nil
}

// Process moves created -> pending and schedules resolution after the
// processing delay.
func (s *Service) Process(ctx context.Context, id uuid.UUID) (*Session, error) {
	now := s.now()
	ps, err := s.store.Update(id, func(ps *Session) error {
		if ps.Expired(now) {
			return expired(ps)
		}
		if ps.Status != enums.PaymentSessionStatusCreated {
			return invalidStatus(ps, enums.PaymentSessionStatusPending)
		}
		ps.Status = enums.PaymentSessionStatusPending
		ps.Attempts++
		ps.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.schedule(ps.ID)
	s.log(ctx, ps, "payment.processing_started")
	return &ps, nil
}

// Retry reopens a failed session before it expires.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*Session, error) {
	now := s.now()
	ps, err := s.store.Update(id, func(ps *Session) error {
		if ps.Status != enums.PaymentSessionStatusFailed {
			return invalidStatus(ps, enums.PaymentSessionStatusCreated)
		}
		if ps.Expired(now) {
			return expired(ps)
		}
		ps.Status = enums.PaymentSessionStatusCreated
		ps.FailureReason = ""
		ps.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log(ctx, ps, "payment.retried")
	return &ps, nil
}

// Cancel stops a session and its pending task. Completed and cancelled
// sessions are final.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Session, error) {
	ps, err := s.store.Cancel(id, ReasonCancelled, s.now())
	if err != nil {
		return nil, err
	}
	s.stop(id)
	s.metrics.IncPaymentOutcome(string(ps.Status))
	s.log(ctx, ps, "payment.cancelled")
	return &ps, nil
}

// SweepExpired cancels expired sessions and stops their tasks.
func (s *Service) SweepExpired(ctx context.Context) []Session {
	swept := s.store.Sweep(s.now())
	for _, ps := range swept {
		s.stop(ps.ID)
		s.metrics.IncPaymentOutcome(string(ps.Status))
		s.log(ctx, ps, "payment.expired")
	}
	return swept
}

// Shutdown cancels every in-flight task and waits for them to exit.
func (s *Service) Shutdown() {
	s.mu.Lock()
	for id, cancel := range s.tasks {
		cancel()
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) schedule(id uuid.UUID) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if prev, ok := s.tasks[id]; ok {
		prev()
	}
	s.tasks[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.forget(id, ctx)

		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.resolve(ctx, id)
	}()
}

func (s *Service) resolve(ctx context.Context, id uuid.UUID) {
	now := s.now()
	if _, err := s.store.Update(id, func(ps *Session) error {
		if ps.Status != enums.PaymentSessionStatusPending {
			return invalidStatus(ps, enums.PaymentSessionStatusProcessing)
		}
		ps.Status = enums.PaymentSessionStatusProcessing
		ps.UpdatedAt = now
		return nil
	}); err != nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	success := s.sim.Succeeds()
	ps, err := s.store.Update(id, func(ps *Session) error {
		if ps.Status != enums.PaymentSessionStatusProcessing {
			return invalidStatus(ps, enums.PaymentSessionStatusCompleted)
		}
		if success {
			ps.Status = enums.PaymentSessionStatusCompleted
		} else {
			ps.Status = enums.PaymentSessionStatusFailed
			ps.FailureReason = ReasonDeclined
		}
		ps.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return
	}
	s.metrics.IncPaymentOutcome(string(ps.Status))
	if success {
		s.metrics.AddCaptured(string(ps.Currency), ps.Amount)
	}
	s.log(context.Background(), ps, "payment.resolved")
}

// forget drops the task handle if it still belongs to this run.
func (s *Service) forget(id uuid.UUID, ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.tasks[id]; ok && ctx.Err() == nil {
		cancel()
		delete(s.tasks, id)
	}
}

func (s *Service) stop(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.tasks[id]; ok {
		cancel()
		delete(s.tasks, id)
	}
}

func (s *Service) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Service) log(ctx context.Context, ps Session, msg string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithPaymentSessionID(ctx, ps.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"order_id": ps.OrderID.String(),
		"status":   string(ps.Status),
		"attempts": ps.Attempts,
	})
	s.logg.Info(logCtx, msg)
}

func expired(ps *Session) error {
	return pkgerrors.Newf(pkgerrors.CodePaymentExpired, "payment session %s expired at %s", ps.ID, ps.ExpiresAt.Format(time.RFC3339)).
		WithDetails(map[string]any{"expires_at": ps.ExpiresAt})
}
