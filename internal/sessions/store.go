package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

// Store persists sessions. Get returns NOT_FOUND for unknown ids.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// MemoryStore keeps sessions in a slice indexed by id.
type MemoryStore struct {
	mu    sync.RWMutex
	arena []Session
	index map[uuid.UUID]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: map[uuid.UUID]int{}}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.index[s.ID]; ok {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "session %s already exists", s.ID)
	}
	m.index[s.ID] = len(m.arena)
	m.arena = append(m.arena, s.Clone())
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	out := m.arena[i].Clone()
	return &out, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[s.ID]
	if !ok {
		return sessionNotFound(s.ID)
	}
	m.arena[i] = s.Clone()
	return nil
}

// Delete swaps the last entry into the freed slot.
func (m *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[id]
	if !ok {
		return nil
	}
	last := len(m.arena) - 1
	if i != last {
		m.arena[i] = m.arena[last]
		m.index[m.arena[i].ID] = i
	}
	m.arena = m.arena[:last]
	delete(m.index, id)
	return nil
}

func (m *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []uuid.UUID
	for i := range m.arena {
		if m.arena[i].Expired(now) {
			out = append(out, m.arena[i].ID)
		}
	}
	return out, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.arena)
}

func sessionNotFound(id uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "session %s not found", id)
}
