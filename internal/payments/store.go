package payments

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voicecommerce-backend/pkg/enums"
)

// Store owns payment sessions for the life of the process. Sessions live in
// an arena slice; the id and order indexes point into it.
type Store struct {
	mu      sync.RWMutex
	arena   []Session
	byID    map[uuid.UUID]int
	byOrder map[uuid.UUID][]int
}

func NewStore() *Store {
	return &Store{byID: map[uuid.UUID]int{}, byOrder: map[uuid.UUID][]int{}}
}

func (s *Store) Insert(ps Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := len(s.arena)
	s.arena = append(s.arena, ps)
	s.byID[ps.ID] = idx
	s.byOrder[ps.OrderID] = append(s.byOrder[ps.OrderID], idx)
}

func (s *Store) Get(id uuid.UUID) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return Session{}, false
	}
	return s.arena[idx], true
}

// ForOrder lists an order's sessions oldest first.
func (s *Store) ForOrder(orderID uuid.UUID) []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0, len(s.byOrder[orderID]))
	for _, idx := range s.byOrder[orderID] {
		out = append(out, s.arena[idx])
	}
	return out
}

// Update applies fn to the stored session under the write lock. The change
// is discarded when fn fails.
func (s *Store) Update(id uuid.UUID, fn func(*Session) error) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return Session{}, notFound(id)
	}
	draft := s.arena[idx]
	if err := fn(&draft); err != nil {
		return s.arena[idx], err
	}
	s.arena[idx] = draft
	return draft, nil
}

// Cancel moves a non-terminal session to cancelled.
func (s *Store) Cancel(id uuid.UUID, reason string, now time.Time) (Session, error) {
	return s.Update(id, func(ps *Session) error {
		if !CanTransition(ps.Status, enums.PaymentSessionStatusCancelled) {
			return invalidStatus(ps, enums.PaymentSessionStatusCancelled)
		}
		ps.Status = enums.PaymentSessionStatusCancelled
		ps.FailureReason = reason
		ps.UpdatedAt = now
		return nil
	})
}

// Sweep cancels every non-terminal session whose expiry has passed and
// returns them.
func (s *Store) Sweep(now time.Time) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var swept []Session
	for i := range s.arena {
		ps := &s.arena[i]
		if ps.Status.IsTerminal() || !ps.Expired(now) {
			continue
		}
		ps.Status = enums.PaymentSessionStatusCancelled
		ps.FailureReason = ReasonExpired
		ps.UpdatedAt = now
		swept = append(swept, *ps)
	}
	return swept
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.arena)
}
