package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
	"github.com/angelmondragon/voicecommerce-backend/pkg/redis"
)

// minKeyTTL keeps a just-expired session readable until the sweep removes it.
const minKeyTTL = time.Minute

type redisClient interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScore(ctx context.Context, key string, maxScore float64) ([]string, error)
	ZRem(ctx context.Context, key string, members ...string) error
	SessionKey(sessionID string) string
	SessionExpiryKey() string
}

// RedisStore serializes sessions as JSON under a TTL'd key and indexes their
// expiry in a sorted set for the sweep job.
type RedisStore struct {
	client redisClient
	now    func() time.Time
}

func NewRedisStore(client redisClient, now func() time.Time) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, now: now}, nil
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode session")
	}
	ok, err := r.client.SetNX(ctx, r.client.SessionKey(s.ID.String()), payload, r.ttl(s))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
	}
	if !ok {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "session %s already exists", s.ID)
	}
	return r.index(ctx, s)
}

func (r *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	raw, err := r.client.Get(ctx, r.client.SessionKey(id.String()))
	if err != nil {
		if redis.IsNil(err) {
			return nil, sessionNotFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode session")
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode session")
	}
	if err := r.client.Set(ctx, r.client.SessionKey(s.ID.String()), payload, r.ttl(s)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save session")
	}
	return r.index(ctx, s)
}

func (r *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, r.client.SessionKey(id.String())); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete session")
	}
	if err := r.client.ZRem(ctx, r.client.SessionExpiryKey(), id.String()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unindex session")
	}
	return nil
}

func (r *RedisStore) ListExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	members, err := r.client.ZRangeByScore(ctx, r.client.SessionExpiryKey(), float64(now.Unix()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired sessions")
	}
	out := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (r *RedisStore) index(ctx context.Context, s *Session) error {
	if err := r.client.ZAdd(ctx, r.client.SessionExpiryKey(), float64(s.ExpiresAt.Unix()), s.ID.String()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "index session expiry")
	}
	return nil
}

func (r *RedisStore) ttl(s *Session) time.Duration {
	ttl := s.ExpiresAt.Sub(r.now()) + minKeyTTL
	if ttl < minKeyTTL {
		return minKeyTTL
	}
	return ttl
}
