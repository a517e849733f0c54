package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestIntervalLimiterSpacesRequestStarts(t *testing.T) {
	l := NewInterval(3) // 20s between starts
	if l.Interval() != 20*time.Second {
		t.Fatalf("expected 20s interval, got %v", l.Interval())
	}

	now := time.Unix(0, 0)
	var slept []time.Duration
	l.now = func() time.Time { return now }
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}

	// First call goes straight through; the next two wait a full interval.
	if len(slept) != 2 {
		t.Fatalf("expected 2 sleeps, got %v", slept)
	}
	for i, d := range slept {
		if d != 20*time.Second {
			t.Fatalf("sleep %d: expected 20s, got %v", i, d)
		}
	}
}

func TestIntervalLimiterDisabled(t *testing.T) {
	l := NewInterval(0)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("disabled limiter should not block: %v", err)
	}
}

func TestIntervalLimiterHonorsCancellation(t *testing.T) {
	l := NewInterval(1) // 60s interval
	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	cancel()
	if err := l.Wait(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGateBoundsConcurrency(t *testing.T) {
	g := NewGate(2)
	ctx := context.Background()

	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("acquire 2: %v", err)
	}

	full, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := g.Acquire(full); err == nil {
		t.Fatal("expected third acquire to block until timeout")
	}

	g.Release()
	if err := g.Acquire(ctx); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}
