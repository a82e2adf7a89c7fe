package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/config"
	"github.com/redis/go-redis/v9"
)

// fakeServer mimics the handful of commands and scripts the client sends.
type fakeServer struct {
	mu      sync.Mutex
	now     time.Time
	values  map[string]string
	expires map[string]time.Time
	sets    map[string]map[string]struct{}
	evals   int
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		now:     time.Unix(1_700_000_000, 0),
		values:  map[string]string{},
		expires: map[string]time.Time{},
		sets:    map[string]map[string]struct{}{},
	}
}

func (f *fakeServer) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fakeServer) expire() {
	for k, at := range f.expires {
		if !f.now.Before(at) {
			delete(f.values, k)
			delete(f.sets, k)
			delete(f.expires, k)
		}
	}
}

func (f *fakeServer) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeServer) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expire()
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeServer) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = fmt.Sprint(value)
	if ttl > 0 {
		f.expires[key] = f.now.Add(ttl)
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeServer) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expire()
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = fmt.Sprint(value)
	if ttl > 0 {
		f.expires[key] = f.now.Add(ttl)
	}
	return redis.NewBoolResult(true, nil)
}

func (f *fakeServer) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			n++
		}
		if _, ok := f.sets[k]; ok {
			n++
		}
		delete(f.values, k)
		delete(f.sets, k)
		delete(f.expires, k)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeServer) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expire()
	set, ok := f.sets[key]
	if !ok {
		set = map[string]struct{}{}
		f.sets[key] = set
	}
	var added int64
	for _, m := range members {
		member := fmt.Sprint(m)
		if _, ok := set[member]; !ok {
			set[member] = struct{}{}
			added++
		}
	}
	return redis.NewIntResult(added, nil)
}

func (f *fakeServer) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expire()
	out := []string{}
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return redis.NewStringSliceResult(out, nil)
}

func (f *fakeServer) PExpire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, isValue := f.values[key]
	_, isSet := f.sets[key]
	if !isValue && !isSet {
		return redis.NewBoolResult(false, nil)
	}
	f.expires[key] = f.now.Add(ttl)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeServer) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals++
	f.expire()
	key := keys[0]

	switch script {
	case fixedWindowScript:
		var n int64
		fmt.Sscan(f.values[key], &n)
		n++
		f.values[key] = fmt.Sprint(n)
		if _, ok := f.expires[key]; !ok {
			f.expires[key] = f.now.Add(time.Duration(args[0].(int64)) * time.Millisecond)
		}
		return redis.NewCmdResult([]any{n, f.expires[key].Sub(f.now).Milliseconds()}, nil)
	case compareAndDeleteScript:
		if v, ok := f.values[key]; ok && v == args[0] {
			delete(f.values, key)
			delete(f.expires, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, errors.New("unknown script"))
}

func newTestClient() (*Client, *fakeServer) {
	srv := newFakeServer()
	return &Client{cmd: srv, prefix: "bb"}, srv
}

func TestFixedWindowAllow(t *testing.T) {
	client, srv := newTestClient()
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		w, err := client.FixedWindowAllow(ctx, "login:ip:1.2.3.4", 2, time.Minute)
		if err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
		if !w.Allowed || w.Count != i {
			t.Fatalf("hit %d: unexpected window %+v", i, w)
		}
	}

	srv.advance(20 * time.Second)
	w, err := client.FixedWindowAllow(ctx, "login:ip:1.2.3.4", 2, time.Minute)
	if err != nil {
		t.Fatalf("third hit: %v", err)
	}
	if w.Allowed || w.Count != 3 {
		t.Fatalf("expected limit reached, got %+v", w)
	}
	if w.ResetIn != 40*time.Second {
		t.Fatalf("expected reset in 40s, got %s", w.ResetIn)
	}

	srv.advance(40 * time.Second)
	w, err = client.FixedWindowAllow(ctx, "login:ip:1.2.3.4", 2, time.Minute)
	if err != nil || !w.Allowed || w.Count != 1 {
		t.Fatalf("expected a fresh window, got %+v err=%v", w, err)
	}
}

func TestFixedWindowAllowRejectsZeroWindow(t *testing.T) {
	client, srv := newTestClient()
	if _, err := client.FixedWindowAllow(context.Background(), "x", 1, 0); err == nil {
		t.Fatal("expected error for zero window")
	}
	if srv.evals != 0 {
		t.Fatal("no script should run for an invalid window")
	}
}

func TestCompareAndDelete(t *testing.T) {
	client, _ := newTestClient()
	ctx := context.Background()

	if ok, err := client.SetNX(ctx, "k", "owner-1", time.Minute); err != nil || !ok {
		t.Fatalf("setnx: ok=%v err=%v", ok, err)
	}
	if ok, _ := client.SetNX(ctx, "k", "owner-2", time.Minute); ok {
		t.Fatal("second setnx must lose")
	}

	removed, err := client.CompareAndDelete(ctx, "k", "owner-2")
	if err != nil || removed {
		t.Fatalf("stale owner must not delete, removed=%v err=%v", removed, err)
	}
	removed, err = client.CompareAndDelete(ctx, "k", "owner-1")
	if err != nil || !removed {
		t.Fatalf("owner delete failed, removed=%v err=%v", removed, err)
	}
	if _, err := client.Get(ctx, "k"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestSetGetDel(t *testing.T) {
	client, srv := newTestClient()
	ctx := context.Background()
	key := client.SessionKey("jti-1")

	if err := client.Set(ctx, key, "payload", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := client.Get(ctx, key); err != nil || got != "payload" {
		t.Fatalf("get: %q err=%v", got, err)
	}
	srv.advance(time.Minute)
	if _, err := client.Get(ctx, key); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected expiry, got %v", err)
	}

	_ = client.Set(ctx, key, "again", 0)
	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := client.Get(ctx, key); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestSetMembersExpireWithTTL(t *testing.T) {
	client, srv := newTestClient()
	ctx := context.Background()
	key := client.UserSessionsKey("user-1")

	if err := client.AddToSet(ctx, key, time.Hour, "jti-1", "jti-2"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := client.AddToSet(ctx, key, time.Hour, "jti-2"); err != nil {
		t.Fatalf("add again: %v", err)
	}
	members, err := client.SetMembers(ctx, key)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected two members, got %v", members)
	}

	srv.advance(time.Hour)
	members, err = client.SetMembers(ctx, key)
	if err != nil || len(members) != 0 {
		t.Fatalf("expected expired set, got %v err=%v", members, err)
	}
	if err := client.AddToSet(ctx, key, time.Hour); err != nil {
		t.Fatalf("empty add must be a no-op, got %v", err)
	}
}

func TestZeroClient(t *testing.T) {
	var client *Client
	if err := client.Ping(context.Background()); !errors.Is(err, errNoConnection) {
		t.Fatalf("expected errNoConnection, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close should be a no-op, got %v", err)
	}
	if _, err := (&Client{}).FixedWindowAllow(context.Background(), "x", 1, time.Second); !errors.Is(err, errNoConnection) {
		t.Fatalf("expected errNoConnection, got %v", err)
	}
}

func TestKeys(t *testing.T) {
	cases := []struct{ got, want string }{
		{(&Client{prefix: "bb"}).RateLimitKey("scope"), "bb:rate_limit:scope"},
		{(&Client{prefix: "bb"}).SessionKey("abc"), "bb:session:access:abc"},
		{(&Client{prefix: "bb"}).UserSessionsKey("u1"), "bb:session:user:u1"},
		{(&Client{prefix: "stg:"}).LockKey("maintain"), "stg:lock:maintain"},
		{(&Client{}).Key("a", " ", "b"), "bb:a:b"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, tc.got)
		}
	}
}

func TestBuildOptions(t *testing.T) {
	opts, err := buildOptions(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7, DB: 5})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.DB != 3 || opts.PoolSize != 7 {
		t.Fatalf("url values must win, got db=%d pool=%d", opts.DB, opts.PoolSize)
	}

	opts, err = buildOptions(config.RedisConfig{Address: "cache:6380", DB: 2, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}

	if _, err := buildOptions(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
	if _, err := buildOptions(config.RedisConfig{URL: "http://nope"}); err == nil {
		t.Fatal("expected error for a non-redis url")
	}
}
