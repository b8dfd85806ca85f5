package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_AcquireConsumesBurst(t *testing.T) {
	l := New(DefaultBackoff)
	defer l.Close()

	lim := Limits{PerMinute: 600, Burst: 2}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := l.Acquire(ctx, "example.com", lim); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := l.Acquire(ctx, "example.com", lim); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
}

func TestLimiter_AcquirePerDomainIndependent(t *testing.T) {
	l := New(DefaultBackoff)
	defer l.Close()

	lim := Limits{PerMinute: 60, Burst: 1}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := l.Acquire(ctx, "a.com", lim); err != nil {
		t.Fatalf("a.com acquire: %v", err)
	}
	if err := l.Acquire(ctx, "b.com", lim); err != nil {
		t.Fatalf("b.com acquire should not be limited by a.com's bucket: %v", err)
	}
}

func TestLimiter_AcquireCancellation(t *testing.T) {
	l := New(DefaultBackoff)
	defer l.Close()

	lim := Limits{PerMinute: 1, Burst: 1}
	ctx := context.Background()
	if err := l.Acquire(ctx, "slow.com", lim); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	cctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(cctx, "slow.com", lim); err == nil {
		t.Error("expected context deadline error on exhausted bucket")
	}
}

func TestComputeBackoff_BoundedByMax(t *testing.T) {
	cfg := BackoffConfig{Base: 100 * time.Millisecond, Max: 500 * time.Millisecond, JitterFactor: 0.3}
	for attempt := 0; attempt < 10; attempt++ {
		d := computeBackoff(cfg, attempt)
		upper := cfg.Max + time.Duration(float64(cfg.Base)*cfg.JitterFactor)
		if d > upper {
			t.Errorf("attempt %d: backoff %v exceeds max+jitter %v", attempt, d, upper)
		}
		if d < 0 {
			t.Errorf("attempt %d: backoff negative: %v", attempt, d)
		}
	}
}

func TestComputeBackoff_GrowsExponentially(t *testing.T) {
	cfg := BackoffConfig{Base: 100 * time.Millisecond, Max: time.Hour, JitterFactor: 0}
	d0 := computeBackoff(cfg, 0)
	d3 := computeBackoff(cfg, 3)
	if d3 <= d0 {
		t.Errorf("expected backoff to grow with attempt: d0=%v d3=%v", d0, d3)
	}
}
