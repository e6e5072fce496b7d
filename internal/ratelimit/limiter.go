// Package ratelimit implements per-source admission control for the
// webhook endpoint: a fixed one-second window with a hard burst ceiling and
// a sustained-average ceiling underneath it. Short bursts pass; sustained
// abuse does not.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Defaults match the provider's observed retry behavior: bursts of up to
// ten deliveries are legitimate, a sustained rate above two per second is
// not.
const (
	DefaultBurstLimit   = 10
	DefaultSustainLimit = 2
	DefaultWindow       = time.Second
	DefaultIdleTTL      = 60 * time.Second
)

// Result is the outcome of a limit check.
type Result struct {
	Allowed    bool
	RetryAfter int // seconds, positive when rejected
}

type entry struct {
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

// Limiter tracks one window per source key. All methods are safe for
// concurrent use.
type Limiter struct {
	mu      sync.Mutex
	sources map[string]*entry

	burstLimit   int
	sustainLimit float64
	window       time.Duration
	idleTTL      time.Duration

	now func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimits overrides the burst and sustained ceilings.
func WithLimits(burst int, sustain float64) Option {
	return func(l *Limiter) {
		l.burstLimit = burst
		l.sustainLimit = sustain
	}
}

// WithWindow overrides the accounting window.
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		l.window = window
	}
}

// New creates a limiter with the default webhook ceilings.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		sources:      make(map[string]*entry),
		burstLimit:   DefaultBurstLimit,
		sustainLimit: DefaultSustainLimit,
		window:       DefaultWindow,
		idleTTL:      DefaultIdleTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckLimit admits or rejects one request from sourceKey.
//
// The two-tier check: the burst ceiling caps any single window outright;
// below it, the sustained-average ceiling kicks in only after two requests
// have already been admitted, so a short legitimate burst is never punished
// for its own speed.
func (l *Limiter) CheckLimit(sourceKey string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.sources[sourceKey]
	if !ok {
		l.sources[sourceKey] = &entry{windowStart: now, count: 1, lastSeen: now}
		return Result{Allowed: true}
	}

	elapsed := now.Sub(e.windowStart)
	if elapsed >= l.window {
		e.windowStart = now
		e.count = 1
		e.lastSeen = now
		return Result{Allowed: true}
	}

	retryAfter := int(math.Ceil(float64(l.window-elapsed) / float64(time.Second)))
	if retryAfter < 1 {
		retryAfter = 1
	}

	if e.count >= l.burstLimit {
		e.lastSeen = now
		return Result{Allowed: false, RetryAfter: retryAfter}
	}

	if elapsed > 0 {
		average := float64(e.count) / elapsed.Seconds()
		if average > l.sustainLimit && e.count > 2 {
			e.lastSeen = now
			return Result{Allowed: false, RetryAfter: retryAfter}
		}
	}

	e.count++
	e.lastSeen = now
	return Result{Allowed: true}
}

// Sweep removes sources idle past the idle TTL and returns how many were
// evicted.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, e := range l.sources {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.sources, key)
			removed++
		}
	}
	return removed
}

// TrackedSources returns the number of distinct sources currently tracked.
func (l *Limiter) TrackedSources() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sources)
}
