package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisFixedWindowLimiterAllowThenDeny(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisFixedWindowLimiter(client, "test")
	ctx := context.Background()

	if ok, _, err := l.Allow(ctx, "code:10.0.0.1", 1, time.Minute); err != nil || !ok {
		t.Fatalf("expected first hit allowed, ok=%v err=%v", ok, err)
	}
	ok, retry, err := l.Allow(ctx, "code:10.0.0.1", 1, time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second hit denied, ok=%v err=%v", ok, err)
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("expected retry within window, got %v", retry)
	}
	if !mr.Exists("test:rate_limit:code:10.0.0.1") {
		t.Fatalf("expected prefixed window key, have %v", mr.Keys())
	}

	mr.FastForward(time.Minute)
	if ok, _, err := l.Allow(ctx, "code:10.0.0.1", 1, time.Minute); err != nil || !ok {
		t.Fatalf("expected window to expire, ok=%v err=%v", ok, err)
	}
}

func TestRedisFixedWindowLimiterErrors(t *testing.T) {
	if _, _, err := NewRedisFixedWindowLimiter(nil, "").Allow(context.Background(), "k", 1, time.Second); err == nil {
		t.Fatal("expected nil client error")
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()
	if _, _, err := NewRedisFixedWindowLimiter(client, "").Allow(context.Background(), "k", 1, time.Second); err == nil {
		t.Fatal("expected backend error")
	}
}

func TestParseRedisInt64(t *testing.T) {
	if v, err := parseRedisInt64(int64(4)); err != nil || v != 4 {
		t.Fatalf("int64 parse mismatch v=%d err=%v", v, err)
	}
	if v, err := parseRedisInt64("7"); err != nil || v != 7 {
		t.Fatalf("string parse mismatch v=%d err=%v", v, err)
	}
	if _, err := parseRedisInt64(errors.New("x")); err == nil {
		t.Fatal("expected unexpected type error")
	}
}
