package redis

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter(newFakeRedis(), 3, time.Minute)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "sess-1")
		if err != nil {
			t.Fatalf("Allow #%d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("Allow #%d = false, want true", i+1)
		}
	}
	ok, err := rl.Allow(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Allow over limit: %v", err)
	}
	if ok {
		t.Fatal("Allow over limit = true, want false")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter(newFakeRedis(), 1, time.Minute)

	if ok, _ := rl.Allow(ctx, "sess-1"); !ok {
		t.Fatal("first prompt on sess-1 denied")
	}
	if ok, _ := rl.Allow(ctx, "sess-2"); !ok {
		t.Fatal("first prompt on sess-2 denied after sess-1 used its budget")
	}
}

func TestRateLimiterPropagatesStoreError(t *testing.T) {
	client := newFakeRedis()
	client.incrErr = errors.New("connection refused")
	rl := NewRateLimiter(client, 3, time.Minute)

	if _, err := rl.Allow(context.Background(), "sess-1"); err == nil {
		t.Fatal("Allow with broken store returned nil error")
	}
}
