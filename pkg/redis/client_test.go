package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/voicecommerce-backend/pkg/config"
)

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.SessionKey("abc")
	if err := client.Set(ctx, key, `{"id":"abc"}`, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != `{"id":"abc"}` {
		t.Fatalf("unexpected value %q", got)
	}
	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	ok, err := client.SetNX(ctx, client.LockKey("cron"), "owner-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first setnx should win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, client.LockKey("cron"), "owner-2", time.Minute)
	if err != nil || ok {
		t.Fatalf("second setnx should lose, ok=%v err=%v", ok, err)
	}
}

func TestSortedSetExpiryIndex(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.SessionExpiryKey()

	for id, score := range map[string]float64{"a": 100, "b": 200, "c": 300} {
		if err := client.ZAdd(ctx, key, score, id); err != nil {
			t.Fatalf("zadd failed: %v", err)
		}
	}
	due, err := client.ZRangeByScore(ctx, key, 250)
	if err != nil {
		t.Fatalf("zrange failed: %v", err)
	}
	if len(due) != 2 || due[0] != "a" || due[1] != "b" {
		t.Fatalf("unexpected due members %v", due)
	}
	if err := client.ZRem(ctx, key, "a"); err != nil {
		t.Fatalf("zrem failed: %v", err)
	}
	due, _ = client.ZRangeByScore(ctx, key, 250)
	if len(due) != 1 || due[0] != "b" {
		t.Fatalf("unexpected members after zrem %v", due)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error for uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close should be a no-op, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.SessionKey("s1"); got != "vc:session:s1" {
		t.Fatalf("unexpected session key %s", got)
	}
	if got := client.SessionExpiryKey(); got != "vc:expiry:session" {
		t.Fatalf("unexpected expiry key %s", got)
	}
	if got := client.LockKey("cron-worker"); got != "vc:lock:cron-worker" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.IdempotencyKey("scope", "id"); got != "vc:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.SessionKey(""); got != "vc:session" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	if _, err := optionsFromConfig(configWith("", "")); err == nil {
		t.Fatal("expected error without url or address")
	}
	opts, err := optionsFromConfig(configWith("redis://localhost:6379/2", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 10 {
		t.Fatalf("unexpected options db=%d pool=%d", opts.DB, opts.PoolSize)
	}
}

type mockCmdable struct {
	data map[string]string
	sets map[string]map[string]float64
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		sets: make(map[string]map[string]float64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]float64)
		m.sets[key] = set
	}
	for _, z := range members {
		set[fmt.Sprint(z.Member)] = z.Score
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (m *mockCmdable) ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd {
	maxScore, _ := strconv.ParseFloat(opt.Max, 64)
	type scored struct {
		member string
		score  float64
	}
	var hits []scored
	for member, score := range m.sets[key] {
		if score <= maxScore {
			hits = append(hits, scored{member, score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score < hits[j].score })
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.member
	}
	return redis.NewStringSliceResult(out, nil)
}

func (m *mockCmdable) ZRem(ctx context.Context, key string, members ...any) *redis.IntCmd {
	for _, member := range members {
		delete(m.sets[key], fmt.Sprint(member))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func configWith(url, addr string) config.RedisConfig {
	return config.RedisConfig{URL: url, Address: addr, PoolSize: 10}
}
