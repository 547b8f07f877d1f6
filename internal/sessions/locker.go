package sessions

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Locker serializes work per session id. Distinct ids never block each other.
type Locker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{slots: map[uuid.UUID]*slot{}}
}

// Lock blocks until the session is free or ctx is done. The returned func
// releases the lock and is safe to call more than once.
func (l *Locker) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(id, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(id, s)
		})
	}, nil
}

func (l *Locker) release(id uuid.UUID, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, id)
	}
}

func (l *Locker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
