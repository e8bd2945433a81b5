// Package statemachine implements the top-level Operating State Machine
// (spec §4.6): legal transitions, entry/per-scan/exit actions expressed
// as desired outputs, and the illegal-command rejection rule.
package statemachine

import (
	"fmt"
	"sync"
	"time"
)

// State is the operating mode of the unit.
type State uint8

const (
	Idle State = iota
	Startup
	Running
	Divert
	Proving
	Shutdown
	EStop
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Startup:
		return "Startup"
	case Running:
		return "Running"
	case Divert:
		return "Divert"
	case Proving:
		return "Proving"
	case Shutdown:
		return "Shutdown"
	case EStop:
		return "EStop"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
	}
}

// Event is a trigger offered to the machine in a given scan: either an
// operator command or a safety request. At most one of each may be true
// in the same scan; the machine applies commands first, then safety
// (safety wins), per spec §4.8 step 5.
type Event struct {
	CmdStart bool
	CmdStop  bool
	CmdProve bool
	CmdReset bool

	RequestEStop    bool
	RequestShutdown bool
	RequestDivert   bool

	// Gates: feedback confirmations the machine consults to advance
	// Startup/Shutdown without blocking (spec §4.6, §5).
	StartupComplete  bool // all startup gates satisfied
	StartupFailed    bool // startup abort condition
	ProveComplete    bool
	ProveAborted     bool
	PumpStoppedOK    bool // pump stopped confirmed, for Shutdown->Idle
	EStopCleared     bool
}

// legal holds the transition table from spec §4.6. The zero value (no
// entry) means the transition is illegal and must be rejected.
var legal = map[State]map[State]bool{
	Idle:     {Startup: true},
	Startup:  {Running: true, Idle: true},
	Running:  {Divert: true, Proving: true, Shutdown: true},
	Divert:   {Running: true, Shutdown: true},
	Proving:  {Running: true},
	Shutdown: {Idle: true},
}

func isLegal(from, to State) bool {
	if to == EStop {
		return true // any -> EStop is always legal
	}
	if from == EStop {
		return to == Idle
	}
	return legal[from][to]
}

// Machine holds the current operating state and performs each scan's
// transition decision. It is only ever mutated by the Controller's scan
// thread.
type Machine struct {
	mu      sync.RWMutex
	current State
	enteredAt time.Time
	now     func() time.Time

	// IllegalCommand is incremented whenever an attempted transition is
	// rejected, for Info-alarm raising by the caller.
	IllegalAttempts int
}

// New returns a machine starting in Idle.
func New(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{current: Idle, enteredAt: now(), now: now}
}

// Current returns the active state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// TimeInState reports how long the machine has held its current state.
func (m *Machine) TimeInState() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now().Sub(m.enteredAt)
}

// Step applies one scan's event to the machine and returns the resulting
// state plus whether a transition occurred. Safety requests are applied
// only after operator commands, and always win a conflict (spec §4.8
// step 5); EStop preempts unconditionally from any state.
func (m *Machine) Step(ev Event) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	target, attempted, illegal := m.decide(from, ev)
	if illegal {
		m.IllegalAttempts++
		return from, false
	}
	if !attempted {
		return from, false
	}
	if !isLegal(from, target) {
		m.IllegalAttempts++
		return from, false
	}
	if target == from {
		return from, false
	}
	m.current = target
	m.enteredAt = m.now()
	return target, true
}

// commandIssued reports whether any operator command was asserted this
// scan, regardless of whether it applies to the current state.
func commandIssued(ev Event) bool {
	return ev.CmdStart || ev.CmdStop || ev.CmdProve || ev.CmdReset
}

// decide computes the candidate target state for one scan, without
// legality checking. attempted is false when no event calls for a
// transition this scan. illegal is true when an operator command was
// issued that does not apply in the current state (spec §4.6/§7: an
// attempted illegal command raises an Info alarm rather than being
// silently dropped); it is mutually exclusive with attempted.
func (m *Machine) decide(from State, ev Event) (target State, attempted bool, illegal bool) {
	// Safety wins: evaluate first so it is never shadowed by a queued
	// operator command, but apply cross-cutting EStop unconditionally.
	if ev.RequestEStop {
		return EStop, true, false
	}

	switch from {
	case Idle:
		if ev.CmdStart {
			return Startup, true, false
		}
		if commandIssued(ev) {
			return from, false, true
		}
	case Startup:
		if ev.RequestShutdown {
			return Idle, true, false
		}
		if ev.StartupFailed {
			return Idle, true, false
		}
		if ev.StartupComplete {
			return Running, true, false
		}
		if commandIssued(ev) {
			return from, false, true
		}
	case Running:
		if ev.RequestShutdown || ev.CmdStop {
			return Shutdown, true, false
		}
		if ev.RequestDivert {
			return Divert, true, false
		}
		if ev.CmdProve {
			return Proving, true, false
		}
		if ev.CmdStart || ev.CmdReset {
			return from, false, true
		}
	case Divert:
		if ev.RequestShutdown || ev.CmdStop {
			return Shutdown, true, false
		}
		if !ev.RequestDivert {
			return Running, true, false
		}
		if ev.CmdStart || ev.CmdProve || ev.CmdReset {
			return from, false, true
		}
	case Proving:
		// No Proving->Shutdown edge exists (spec §4.6 lists only
		// Running/Divert->Shutdown): a Shutdown-level request here waits
		// for prove completion/abort rather than attempting and being
		// rejected as an illegal command. EStop still preempts above.
		if ev.ProveComplete || ev.ProveAborted {
			return Running, true, false
		}
		if commandIssued(ev) {
			return from, false, true
		}
	case Shutdown:
		if ev.PumpStoppedOK {
			return Idle, true, false
		}
		if commandIssued(ev) {
			return from, false, true
		}
	case EStop:
		if ev.EStopCleared && ev.CmdReset {
			return Idle, true, false
		}
		if ev.CmdReset {
			// RESET is the right command for this state; it just isn't
			// actionable yet because the E-Stop loop hasn't cleared.
			return from, false, false
		}
		if commandIssued(ev) {
			return from, false, true
		}
	}
	return from, false, false
}
