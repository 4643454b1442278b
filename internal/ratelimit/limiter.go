// Package ratelimit provides a per-key token bucket. The engine uses it to
// sample stride records per source node so a hot node cannot flood the
// telemetry sink.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a per-key token bucket rate limiter. Each key gets its own
// bucket with the configured rate and burst. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int     // bucket capacity and initial token count
	nowFunc func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewLimiter creates a limiter with the given rate (tokens/sec) and burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// SetClock replaces the time source. Nil restores time.Now.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	l.nowFunc = now
}

// Allow reports whether an event for key may proceed, consuming a token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), seen: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.seen).Seconds(); elapsed > 0 {
		b.tokens = min(float64(l.burst), b.tokens+l.rate*elapsed)
		b.seen = now
	}
	if b.tokens < 1.0 {
		return false
	}
	b.tokens--
	return true
}

// Prune drops buckets idle for at least idle and returns how many were
// removed. A bucket idle that long has refilled completely, so dropping it
// does not change future decisions once idle·rate ≥ burst.
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFunc()
	n := 0
	for k, b := range l.buckets {
		if now.Sub(b.seen) >= idle {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
