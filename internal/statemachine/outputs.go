package statemachine

// Outputs is the set of desired outputs the State Machine itself drives
// directly, expressed per spec §4.6/§8 as explicit booleans rather than
// a shared mutable object (spec §9 design note).
type Outputs struct {
	DivertCmd       bool // DO_DIVERT_CMD: false=SALES, true=DIVERT
	PumpWantRunning bool // fed to the Pump Control module, which rate-limits/gates it
	ForceSampleOff  bool
	ForceProverOff  bool
	Beacon          bool
	Horn            bool
}

// FailSafeDivert reports whether spec §8 invariant 2 forces DO_DIVERT_CMD
// to DIVERT for the given state, independent of RequestDivert: Idle,
// Startup (handled by the Sequencer instead, before its own SALES swing),
// Shutdown and EStop.
func FailSafeDivert(s State) bool {
	switch s {
	case Idle, Shutdown, EStop:
		return true
	default:
		return false
	}
}

// EStopOutputs is the unconditional, single-scan EStop entry action
// (spec §4.6): every actuator output forced to its safe state.
func EStopOutputs() Outputs {
	return Outputs{
		DivertCmd:       true,
		PumpWantRunning: false,
		ForceSampleOff:  true,
		ForceProverOff:  true,
		Beacon:          true,
		Horn:            true,
	}
}

// Outputs computes this scan's state-driven outputs for states other
// than Startup (whose outputs come from the Sequencer) and EStop (whose
// outputs are the unconditional EStopOutputs()).
func (m *Machine) Outputs(state State, requestDivert bool) Outputs {
	if state == EStop {
		return EStopOutputs()
	}
	out := Outputs{
		DivertCmd: FailSafeDivert(state) || requestDivert || state == Divert,
	}
	switch state {
	case Running, Proving:
		out.PumpWantRunning = true
	case Divert:
		out.PumpWantRunning = true
	case Shutdown, Idle:
		out.PumpWantRunning = false
		out.ForceSampleOff = true
		out.ForceProverOff = true
	}
	if state != Proving {
		out.ForceProverOff = true
	}
	return out
}
