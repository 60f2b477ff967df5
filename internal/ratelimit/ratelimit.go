// Package ratelimit provides the fixed-window limiter used by the request
// guard and the login endpoint.
//
// Memory keeps its counters in process memory. Every replica of the server
// has its own counters, so a fleet of N instances admits up to limit*N
// requests per window for the same identifier. Swap in a shared Limiter
// implementation when that matters.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultSweepThreshold is the number of tracked identifiers above which
// Memory drops expired entries on the next call.
const DefaultSweepThreshold = 10000

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // zero when allowed
}

// Limiter admits or rejects a request for an identifier. Implementations must
// be safe for concurrent use.
type Limiter interface {
	Allow(id string, limit int, window time.Duration) Decision
}

type entry struct {
	count   int
	resetAt time.Time
}

// Memory is an in-process fixed-window Limiter.
type Memory struct {
	mu             sync.Mutex
	entries        map[string]*entry
	sweepThreshold int
	now            func() time.Time
}

// Option configures a Memory limiter.
type Option func(*Memory)

// WithSweepThreshold overrides DefaultSweepThreshold.
func WithSweepThreshold(n int) Option {
	return func(m *Memory) {
		if n > 0 {
			m.sweepThreshold = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns an empty in-process limiter.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		entries:        make(map[string]*entry),
		sweepThreshold: DefaultSweepThreshold,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Allow counts one request for id. The first request of a window opens it;
// once limit requests have been admitted, further requests are rejected until
// the window elapses. Increment and comparison happen under one lock.
func (m *Memory) Allow(id string, limit int, window time.Duration) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if len(m.entries) > m.sweepThreshold {
		m.sweep(now)
	}

	e, ok := m.entries[id]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{resetAt: now.Add(window)}
		m.entries[id] = e
	}

	if e.count >= limit {
		return Decision{Allowed: false, RetryAfter: e.resetAt.Sub(now)}
	}
	e.count++
	return Decision{Allowed: true, Remaining: limit - e.count}
}

// sweep drops every entry whose window has elapsed. Caller holds m.mu.
func (m *Memory) sweep(now time.Time) {
	for id, e := range m.entries {
		if !now.Before(e.resetAt) {
			delete(m.entries, id)
		}
	}
}

// Len returns the number of tracked identifiers.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Reset forgets every counter.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry)
}
