package pumpguard

import (
	"testing"
	"time"
)

func TestTryStartAllowsUpToCapThenDenies(t *testing.T) {
	l := NewLimiter(3600)
	now := time.Unix(1000, 0)
	for i := 0; i < 6; i++ {
		if !l.TryStart(now, 6) {
			t.Fatalf("start %d should be allowed under cap of 6", i)
		}
		now = now.Add(time.Minute)
	}
	if l.TryStart(now, 6) {
		t.Fatalf("7th start within the sliding window should be denied")
	}
	if l.DeniedTotal() != 1 {
		t.Errorf("expected DeniedTotal()==1, got %d", l.DeniedTotal())
	}
}

func TestSlidingWindowPrunesExpiredStarts(t *testing.T) {
	l := NewLimiter(3600)
	now := time.Unix(1000, 0)
	for i := 0; i < 6; i++ {
		l.TryStart(now, 6)
	}
	later := now.Add(61 * time.Minute)
	if !l.TryStart(later, 6) {
		t.Fatalf("expected a start to be allowed once the 1-hour window has elapsed")
	}
}

func TestLockoutDeniesRegardlessOfWindow(t *testing.T) {
	l := NewLimiter(3600)
	now := time.Unix(1000, 0)
	l.Lockout(now, 60)
	if !l.Locked(now) {
		t.Fatalf("expected Locked() true immediately after Lockout")
	}
	if l.TryStart(now, 6) {
		t.Fatalf("expected TryStart to be denied during lockout")
	}
	if l.Locked(now.Add(61 * time.Second)) {
		t.Errorf("expected lockout to expire after its duration")
	}
	if !l.TryStart(now.Add(61*time.Second), 6) {
		t.Errorf("expected a start to succeed once lockout has expired")
	}
}

func TestStartsInWindowReflectsPruning(t *testing.T) {
	l := NewLimiter(3600)
	now := time.Unix(1000, 0)
	l.TryStart(now, 10)
	l.TryStart(now.Add(time.Minute), 10)
	if got := l.StartsInWindow(now.Add(time.Minute)); got != 2 {
		t.Fatalf("expected 2 starts in window, got %d", got)
	}
	if got := l.StartsInWindow(now.Add(61 * time.Minute)); got != 0 {
		t.Fatalf("expected 0 starts once window has fully elapsed, got %d", got)
	}
}
