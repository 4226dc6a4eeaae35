package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_ZeroRateIsUnlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !limiter.getLimiter("gpt-5").Allow() {
			t.Fatalf("request %d refused by an unlimited limiter", i)
		}
	}
}

func TestLimiter_PerModelBuckets(t *testing.T) {
	// 1 rps, burst 1
	limiter := NewLimiter(1, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "gpt-5"); err != nil {
		t.Errorf("first wait failed: %v", err)
	}
	if limiter.getLimiter("gpt-5").Allow() {
		t.Errorf("expected allow to fail (exhausted tokens)")
	}
	if !limiter.getLimiter("qwen3-vl").Allow() {
		t.Errorf("expected allow for another model")
	}
}

func TestLimiter_SetRate(t *testing.T) {
	limiter := NewLimiter(0, 10)
	limiter.SetRate("slow-model", 0.001, 1)

	if !limiter.getLimiter("slow-model").Allow() {
		t.Error("expected first request to pass")
	}
	if limiter.getLimiter("slow-model").Allow() {
		t.Error("expected second request to be throttled")
	}

	limiter = NewLimiter(0.001, 1)
	limiter.SetRate("local", 0, 1)
	for i := 0; i < 10; i++ {
		if !limiter.getLimiter("local").Allow() {
			t.Fatalf("request %d refused after rate override to unlimited", i)
		}
	}
}

func TestSleep_HonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Error("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep ignored cancellation")
	}
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("zero sleep returned %v", err)
	}
}
