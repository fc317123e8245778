package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum spacing between requests to one host.
type Limiter interface {
	Wait(ctx context.Context) error
	SetDelay(delay time.Duration)
}

// HostLimiter is the politeness throttle: callers block until at least the
// configured delay has passed since the previous request. The mutex also
// serializes waiters, so only one request proceeds at a time.
type HostLimiter struct {
	delay      time.Duration
	lastAction time.Time
	mu         sync.Mutex
}

func NewHostLimiter(delay time.Duration) *HostLimiter {
	return &HostLimiter{delay: delay}
}

func (l *HostLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := time.Since(l.lastAction)
	if elapsed < l.delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.delay - elapsed):
		}
	}

	l.lastAction = time.Now()
	return nil
}

func (l *HostLimiter) SetDelay(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = delay
}
