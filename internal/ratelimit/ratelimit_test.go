package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func TestAllowUpToLimit(t *testing.T) {
	clock := newClock()
	m := NewMemory(WithClock(clock.Now))

	for i := 1; i <= 5; i++ {
		d := m.Allow("1.2.3.4", 5, time.Minute)
		if !d.Allowed {
			t.Fatalf("request %d rejected", i)
		}
		if d.Remaining != 5-i {
			t.Errorf("request %d: remaining = %d, want %d", i, d.Remaining, 5-i)
		}
	}

	d := m.Allow("1.2.3.4", 5, time.Minute)
	if d.Allowed {
		t.Fatal("request 6 should be rejected")
	}
	if d.RetryAfter != time.Minute {
		t.Errorf("retry after = %v, want 1m", d.RetryAfter)
	}

	clock.Advance(20 * time.Second)
	d = m.Allow("1.2.3.4", 5, time.Minute)
	if d.Allowed || d.RetryAfter != 40*time.Second {
		t.Errorf("mid-window decision = %+v", d)
	}
}

func TestWindowRollover(t *testing.T) {
	clock := newClock()
	m := NewMemory(WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		m.Allow("k", 3, time.Minute)
	}
	if m.Allow("k", 3, time.Minute).Allowed {
		t.Fatal("expected rejection at limit")
	}

	clock.Advance(time.Minute)
	if !m.Allow("k", 3, time.Minute).Allowed {
		t.Fatal("expected a fresh window once the old one elapsed")
	}
}

func TestIdentifiersAreIndependent(t *testing.T) {
	m := NewMemory()
	m.Allow("a", 1, time.Minute)
	if m.Allow("a", 1, time.Minute).Allowed {
		t.Error("a should be limited")
	}
	if !m.Allow("b", 1, time.Minute).Allowed {
		t.Error("b should not share a's counter")
	}
}

func TestSweepDropsExpiredEntries(t *testing.T) {
	clock := newClock()
	m := NewMemory(WithClock(clock.Now), WithSweepThreshold(10))

	for i := 0; i < 11; i++ {
		m.Allow(fmt.Sprintf("ip-%d", i), 5, time.Minute)
	}
	if m.Len() != 11 {
		t.Fatalf("tracked %d ids, want 11", m.Len())
	}

	clock.Advance(2 * time.Minute)
	m.Allow("fresh", 5, time.Minute)
	if m.Len() != 1 {
		t.Errorf("tracked %d ids after sweep, want 1", m.Len())
	}
}

func TestSweepKeepsLiveEntries(t *testing.T) {
	clock := newClock()
	m := NewMemory(WithClock(clock.Now), WithSweepThreshold(2))

	m.Allow("a", 1, time.Minute)
	m.Allow("b", 1, time.Minute)
	m.Allow("c", 1, time.Minute)
	m.Allow("d", 1, time.Minute) // triggers a sweep; nothing expired

	if m.Allow("a", 1, time.Minute).Allowed {
		t.Error("sweep must not forget an entry whose window is still open")
	}
}

func TestReset(t *testing.T) {
	m := NewMemory()
	m.Allow("x", 1, time.Hour)
	if m.Allow("x", 1, time.Hour).Allowed {
		t.Fatal("expected rejection before reset")
	}
	m.Reset()
	if !m.Allow("x", 1, time.Hour).Allowed {
		t.Error("expected a clean slate after Reset")
	}
}

func TestConcurrentAllowNeverExceedsLimit(t *testing.T) {
	m := NewMemory()
	const limit = 50

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Allow("shared", limit, time.Hour).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("admitted %d requests, want exactly %d", allowed, limit)
	}
}

func TestMemorySatisfiesLimiter(t *testing.T) {
	var _ Limiter = NewMemory()
}
