package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/internal/cart"
	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/logger"
)

type ServiceParams struct {
	Store    Store
	TTL      time.Duration
	Currency enums.Currency
	Logger   *logger.Logger
	Now      func() time.Time
}

// Service owns session lifecycle and adapts the session-held cart for the
// cart engine.
type Service struct {
	store    Store
	ttl      time.Duration
	currency enums.Currency
	logg     *logger.Logger
	now      func() time.Time
	locks    *Locker
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("session store required")
	}
	if p.TTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	if p.Currency == "" {
		p.Currency = enums.CurrencyKRW
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &Service{
		store:    p.Store,
		ttl:      p.TTL,
		currency: p.Currency,
		logg:     p.Logger,
		now:      p.Now,
		locks:    NewLocker(),
	}, nil
}

// Locks exposes the per-session serialization point shared by the HTTP
// handlers and the orchestrator.
func (s *Service) Locks() *Locker {
	return s.locks
}

// Start opens an idle session with an empty cart.
func (s *Service) Start(ctx context.Context, userID string) (*Session, error) {
	now := s.now().UTC()
	sess := &Session{
		ID:           uuid.New(),
		UserID:       userID,
		State:        enums.SessionStateIdle,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(s.ttl),
	}
	sess.Cart = cart.New(sess.ID, userID, s.currency)
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithSessionID(ctx, sess.ID.String()), "session started")
	}
	return sess, nil
}

// Get returns the session; an expired one reads as NOT_FOUND.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "session %s expired", id)
	}
	return sess, nil
}

// Touch extends the session's expiry from now.
func (s *Service) Touch(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.Update(ctx, id, func(*Session) error { return nil })
}

func (s *Service) Save(ctx context.Context, sess *Session) error {
	return s.store.Save(ctx, sess)
}

// Update loads, mutates and saves a session, refreshing its activity window.
// Callers hold the session lock.
func (s *Service) Update(ctx context.Context, id uuid.UUID, fn func(*Session) error) (*Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sess); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess.LastActiveAt = now
	sess.ExpiresAt = now.Add(s.ttl)
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) ListExpired(ctx context.Context) ([]uuid.UUID, error) {
	return s.store.ListExpired(ctx, s.now())
}

// LoadCart satisfies the cart engine's Store.
func (s *Service) LoadCart(ctx context.Context, sessionID uuid.UUID) (*cart.Cart, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c := sess.Cart.Clone()
	if c.SessionID == uuid.Nil {
		c = cart.New(sess.ID, sess.UserID, s.currency)
	}
	return &c, nil
}

func (s *Service) SaveCart(ctx context.Context, c *cart.Cart) error {
	_, err := s.Update(ctx, c.SessionID, func(sess *Session) error {
		sess.Cart = c.Clone()
		return nil
	})
	return err
}
