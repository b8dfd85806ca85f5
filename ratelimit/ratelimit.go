// Package ratelimit implements RateLimiter: a per-domain token bucket with
// jittered exponential backoff (spec §4.2). Grounded on the teacher's
// api/middleware/ratelimit.go, which keys golang.org/x/time/rate limiters
// per identity with a background eviction sweep; generalized here to key
// per domain and to add a blocking acquire with context cancellation.
package ratelimit

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limits configures one domain's token bucket.
type Limits struct {
	PerMinute float64
	Burst     int
}

// DefaultLimits is the spec's stated default: 10 req/min, burst 3.
var DefaultLimits = Limits{PerMinute: 10, Burst: 3}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BackoffConfig controls Limiter.Backoff's jittered exponential delay.
type BackoffConfig struct {
	Base          time.Duration
	Max           time.Duration
	JitterFactor  float64 // <= 0.3 per spec
}

// DefaultBackoff matches the spec's stated formula bounds.
var DefaultBackoff = BackoffConfig{
	Base:         500 * time.Millisecond,
	Max:          30 * time.Second,
	JitterFactor: 0.3,
}

// Limiter is a per-domain token-bucket rate limiter.
type Limiter struct {
	mu       sync.Mutex
	entries  map[string]*limiterEntry
	backoff  BackoffConfig

	evictAfter time.Duration
	stopEvict  chan struct{}
}

// New creates a Limiter. Domains unused for evictAfter are swept by a
// background goroutine every evictAfter/12 (min 1 minute).
func New(backoff BackoffConfig) *Limiter {
	l := &Limiter{
		entries:    make(map[string]*limiterEntry),
		backoff:    backoff,
		evictAfter: time.Hour,
		stopEvict:  make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

// Close stops the background eviction goroutine.
func (l *Limiter) Close() {
	close(l.stopEvict)
}

func (l *Limiter) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-l.evictAfter)
			l.mu.Lock()
			for domain, e := range l.entries {
				if e.lastSeen.Before(cutoff) {
					delete(l.entries, domain)
				}
			}
			l.mu.Unlock()
		case <-l.stopEvict:
			return
		}
	}
}

func (l *Limiter) getEntry(domain string, lim Limits) *limiterEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[domain]
	if !ok {
		e = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(lim.PerMinute/60.0), lim.Burst),
		}
		l.entries[domain] = e
	}
	e.lastSeen = time.Now()
	return e
}

// Acquire waits until a token is available for domain, using lim (or
// DefaultLimits if the zero value). Cancellation via ctx aborts the wait
// without consuming a token.
func (l *Limiter) Acquire(ctx context.Context, domain string, lim Limits) error {
	if lim.PerMinute == 0 {
		lim = DefaultLimits
	}
	entry := l.getEntry(domain, lim)
	return entry.limiter.Wait(ctx)
}

// Release is a no-op for the token-bucket strategy; present for symmetry
// with slot-style providers the spec allows as an alternative backend.
func (l *Limiter) Release(domain string) {}

// Backoff computes the jittered exponential delay for the given retry
// attempt (0-indexed): min(base*2^attempt, max) ± base*jitterFactor.
func (l *Limiter) Backoff(attempt int) time.Duration {
	return computeBackoff(l.backoff, attempt)
}

func computeBackoff(cfg BackoffConfig, attempt int) time.Duration {
	raw := float64(cfg.Base) * math.Pow(2, float64(attempt))
	if raw > float64(cfg.Max) {
		raw = float64(cfg.Max)
	}
	jitter := (rand.Float64()*2 - 1) * cfg.JitterFactor * float64(cfg.Base)
	d := time.Duration(raw + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// Sleep blocks for the backoff delay of attempt, honoring ctx cancellation.
func (l *Limiter) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(l.Backoff(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
