package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiterTryConsume(t *testing.T) {
	rl := NewRateLimiter(3, nil)

	for i := 0; i < 3; i++ {
		if !rl.TryConsume() {
			t.Fatalf("consume %d should succeed", i+1)
		}
	}
	if rl.TryConsume() {
		t.Error("bucket should be empty after draining")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, nil)
	for i := 0; i < 100; i++ {
		if !rl.TryConsume() {
			t.Fatal("disabled limiter should never block")
		}
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("disabled wait: %v", err)
	}
}

func TestRateLimiterBackoff(t *testing.T) {
	rl := NewRateLimiter(60, nil)
	rl.Record429(50 * time.Millisecond)

	if rl.TryConsume() {
		t.Error("consume should fail during backoff window")
	}

	_, backoff := rl.Status()
	if backoff <= 0 {
		t.Error("status should report active backoff")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.TryConsume() {
		t.Error("consume should succeed after backoff expires")
	}
}

func TestRateLimiterWaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter(1, nil)
	if err := rl.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(600, nil) // 10 per second
	for rl.TryConsume() {
	}

	time.Sleep(250 * time.Millisecond)
	if !rl.TryConsume() {
		t.Error("tokens should refill over time")
	}
}
