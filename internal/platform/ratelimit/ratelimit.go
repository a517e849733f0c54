package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// IntervalLimiter enforces a minimum wall-clock gap between the *starts* of
// consecutive outbound requests. It serializes request starts, not their
// completion; callers suspend in Wait until their slot opens.
type IntervalLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// NewInterval derives the limiter from a requests-per-minute budget.
// rpm <= 0 disables the limiter.
func NewInterval(rpm float64) *IntervalLimiter {
	var interval time.Duration
	if rpm > 0 {
		interval = time.Duration(float64(time.Minute) / rpm)
	}
	return &IntervalLimiter{
		interval: interval,
		now:      time.Now,
		sleep:    defaultSleep,
	}
}

// NewIntervalWithClock is NewInterval with an injectable clock and sleeper,
// for callers that pace against simulated time. Nil funcs keep the defaults.
func NewIntervalWithClock(rpm float64, now func() time.Time, sleep func(context.Context, time.Duration) error) *IntervalLimiter {
	l := NewInterval(rpm)
	if now != nil {
		l.now = now
	}
	if sleep != nil {
		l.sleep = sleep
	}
	return l
}

func (l *IntervalLimiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Wait blocks until the caller may start a request, or ctx is done.
func (l *IntervalLimiter) Wait(ctx context.Context) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}
	l.mu.Lock()
	now := l.now()
	start := l.next
	if start.Before(now) {
		start = now
	}
	l.next = start.Add(l.interval)
	l.mu.Unlock()

	if d := start.Sub(now); d > 0 {
		return l.sleep(ctx, d)
	}
	return ctx.Err()
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Gate bounds in-flight requests per gateway instance.
type Gate struct {
	sem *semaphore.Weighted
}

func NewGate(n int) *Gate {
	if n <= 0 {
		n = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n))}
}

func (g *Gate) Acquire(ctx context.Context) error {
	if g == nil || g.sem == nil {
		return ctx.Err()
	}
	return g.sem.Acquire(ctx, 1)
}

func (g *Gate) Release() {
	if g == nil || g.sem == nil {
		return
	}
	g.sem.Release(1)
}
