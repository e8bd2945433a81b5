// Package pumpguard implements pump motor protection: start-rate limiting
// over a true sliding window plus an overload lockout (spec §4.7 Pump
// Control).
package pumpguard

import (
	"sync"
	"sync/atomic"
	"time"
)

// Limiter tracks DO_PUMP_START rising-edge timestamps in a sliding
// window and denies a start that would exceed the configured cap, the
// way a token bucket denies a request with insufficient balance — but
// evaluated against the actual 3600-second sliding window the spec's
// invariant 6 requires, not a periodic full refill.
type Limiter struct {
	mu          sync.Mutex
	starts      []time.Time
	windowSec   float64
	lockedUntil time.Time
	locked      bool

	deniedTotal  atomic.Uint64
	startedTotal atomic.Uint64
}

// NewLimiter returns a limiter over a sliding window of windowSec
// seconds (spec default 3600).
func NewLimiter(windowSec float64) *Limiter {
	return &Limiter{windowSec: windowSec}
}

func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-time.Duration(l.windowSec * float64(time.Second)))
	i := 0
	for ; i < len(l.starts); i++ {
		if l.starts[i].After(cutoff) {
			break
		}
	}
	l.starts = l.starts[i:]
}

// TryStart attempts to record a pump start at time now against maxPerHour.
// Returns false if locked out or if the sliding window is already at
// capacity.
func (l *Limiter) TryStart(now time.Time, maxPerHour int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked && now.Before(l.lockedUntil) {
		l.deniedTotal.Add(1)
		return false
	}
	l.locked = false
	l.prune(now)
	if len(l.starts) >= maxPerHour {
		l.deniedTotal.Add(1)
		return false
	}
	l.starts = append(l.starts, now)
	l.startedTotal.Add(1)
	return true
}

// Lockout forces a deny-all window of lockoutSec starting at now,
// triggered by a pump-overload trip (spec: "force off and enter a
// lockout ... during which starts are denied even if the operator
// requests them").
func (l *Limiter) Lockout(now time.Time, lockoutSec float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = true
	l.lockedUntil = now.Add(time.Duration(lockoutSec * float64(time.Second)))
}

// Locked reports whether a lockout is currently in effect.
func (l *Limiter) Locked(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked && now.Before(l.lockedUntil)
}

// StartsInWindow returns the count of starts currently inside the
// sliding window, after pruning expired entries.
func (l *Limiter) StartsInWindow(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(now)
	return len(l.starts)
}

// DeniedTotal returns the lifetime count of denied start attempts.
func (l *Limiter) DeniedTotal() uint64 { return l.deniedTotal.Load() }

// StartedTotal returns the lifetime count of accepted starts.
func (l *Limiter) StartedTotal() uint64 { return l.startedTotal.Load() }
