// Package pump implements Pump Control: drives DO_PUMP_START per
// state-machine request with start-rate limiting and overload lockout
// (spec §4.7).
package pump

import (
	"time"

	"github.com/lactplc/skidcore/internal/pumpguard"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/tagstore"
)

// Module owns the start-rate limiter and the last commanded state, so it
// can detect the rising edge that counts as a "start attempt".
type Module struct {
	limiter     *pumpguard.Limiter
	lastCommand bool
}

// New returns a Module with a 3600-second sliding start-rate window
// (spec §8 invariant 6).
func New() *Module {
	return &Module{limiter: pumpguard.NewLimiter(3600)}
}

// Step drives DO_PUMP_START. wantRunning is the State Machine's desired
// pump state for this scan (true in Running/Divert/Proving once startup
// completes, false otherwise); overload is the Safety Manager's
// pump-overload alarm condition this scan.
func (m *Module) Step(store *tagstore.Store, sp setpoints.Snapshot, now time.Time, wantRunning, overload bool) error {
	if overload {
		m.limiter.Lockout(now, sp.PumpLockoutSec)
		m.lastCommand = false
		return store.WriteBool(tagstore.DOPumpStart, false, tagstore.Good)
	}

	risingEdge := wantRunning && !m.lastCommand
	allow := wantRunning
	if risingEdge {
		allow = m.limiter.TryStart(now, sp.PumpMaxStartsPerHour)
	} else if wantRunning && m.limiter.Locked(now) {
		allow = false
	}

	m.lastCommand = allow
	return store.WriteBool(tagstore.DOPumpStart, allow, tagstore.Good)
}

// Locked reports whether the pump is currently in its overload lockout
// window.
func (m *Module) Locked(now time.Time) bool { return m.limiter.Locked(now) }

// StartsInWindow reports the current sliding-window start count, for
// metrics and console QUERY.
func (m *Module) StartsInWindow(now time.Time) int { return m.limiter.StartsInWindow(now) }
