package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-engine/pkg/config"
	"github.com/angelmondragon/marketplace-engine/pkg/logger"
)

func TestIdempotencyLifecycle(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.IdempotencyKey("payouts", "abc")
	ok, err := client.SetNX(ctx, key, "in-flight", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first SetNX to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, key, "in-flight", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second SetNX to lose, ok=%v err=%v", ok, err)
	}

	if err := client.Set(ctx, key, "done", time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	v, err := client.Get(ctx, key)
	if err != nil || v != "done" {
		t.Fatalf("unexpected get %q %v", v, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestIncrWithTTLSetsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.RateLimitKey("writes", "user-1")
	if key != "mkt:ratelimit:writes:user-1" {
		t.Fatalf("unexpected rate limit key %s", key)
	}

	for want := int64(1); want <= 3; want++ {
		got, err := client.IncrWithTTL(ctx, key, time.Minute)
		if err != nil || got != want {
			t.Fatalf("expected count %d, got %d (%v)", want, got, err)
		}
		if want == 1 {
			delete(mock.expiries, key)
		}
	}
	if _, set := mock.expiries[key]; set {
		t.Fatal("expiry should only be set on the first increment")
	}
}

func TestPublishUsesChannelPrefix(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock, keyspace: keyspace{channelPrefix: "marketplace"}}

	if err := client.Publish(context.Background(), "user:42", map[string]string{"status": "accepted"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(mock.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(mock.published))
	}
	got := mock.published[0]
	if got.channel != "marketplace:user:42" {
		t.Fatalf("unexpected channel %q", got.channel)
	}
	if got.payload != `{"status":"accepted"}` {
		t.Fatalf("unexpected payload %s", got.payload)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error without a store")
	}
	if err := client.Publish(context.Background(), "x", "y"); err == nil {
		t.Fatal("expected publish error without a store")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close without raw client should be a no-op: %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "mkt:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.IdempotencyKey("scope", ""); got != "mkt:idempotency:scope" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
	if got := client.RateLimitKey(" writes ", "user-1"); got != "mkt:ratelimit:writes:user-1" {
		t.Fatalf("parts should be trimmed, got %s", got)
	}
	if got := client.ChannelKey("zone:north"); got != "zone:north" {
		t.Fatalf("unprefixed channel expected, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 3 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestSlowCommandHookLogsOnlySlowCommands(t *testing.T) {
	buf := &bytes.Buffer{}
	hook := slowCommandHook{
		logg:      logger.New(logger.Options{ServiceName: "redis-test", Output: buf}),
		threshold: 20 * time.Millisecond,
	}
	ctx := context.Background()

	fast := hook.ProcessHook(func(context.Context, redis.Cmder) error { return nil })
	if err := fast(ctx, redis.NewStatusCmd(ctx, "ping")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("fast command should not log, got %s", buf.String())
	}

	slow := hook.ProcessHook(func(context.Context, redis.Cmder) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	})
	if err := slow(ctx, redis.NewStringCmd(ctx, "get", "mkt:idempotency:secret")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), `"redis_command":"get"`) {
		t.Fatalf("expected slow command entry, got %s", buf.String())
	}
	if strings.Contains(buf.String(), "secret") {
		t.Fatalf("keys must not be logged: %s", buf.String())
	}
}

type publishCall struct {
	channel string
	payload string
}

type mockCmdable struct {
	data      map[string]string
	counters  map[string]int64
	expiries  map[string]time.Duration
	published []publishCall
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     make(map[string]string),
		counters: make(map[string]int64),
		expiries: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.counters[key]++
	return redis.NewIntResult(m.counters[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expiries[key] = expiration
	return redis.NewBoolResult(true, nil)
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

func (m *mockCmdable) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	var payload string
	switch v := message.(type) {
	case []byte:
		payload = string(v)
	default:
		payload = fmt.Sprint(v)
	}
	m.published = append(m.published, publishCall{channel: channel, payload: payload})
	return redis.NewIntResult(1, nil)
}
