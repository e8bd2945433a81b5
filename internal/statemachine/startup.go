package statemachine

// StartupStep is one stage of the scan-paced startup sequence (spec
// §4.6): command divert to DIVERT, wait for confirmation, start the
// pump, wait for confirmation, stabilize BS&W, then either swing to
// SALES and enter Running or settle for Divert.
type StartupStep uint8

const (
	StepCommandDivert StartupStep = iota
	StepWaitDivertConfirm
	StepStartPump
	StepWaitPumpConfirm
	StepStabilizeBSW
	StepSwingToSales
	StepWaitSalesConfirm
	StepEnterRunning
	StepEnterDivert
	StepFailed
)

// Sequencer advances the startup sequence one scan at a time without
// blocking, expressing each wait as a deadline in scan counts.
type Sequencer struct {
	step          StartupStep
	scansInStep   int
	stabilizeGoal int
}

// NewSequencer returns a sequencer ready to begin at Startup entry.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Reset re-arms the sequencer for the next Startup entry.
func (s *Sequencer) Reset() {
	s.step = StepCommandDivert
	s.scansInStep = 0
}

// Decision is what the sequencer wants this scan: its desired outputs
// plus whether the Startup attempt has concluded (successfully or not).
type Decision struct {
	DivertCmd       bool
	PumpWantRunning bool
	Complete        bool
	Failed          bool
	EnteredDivert   bool // true if the completed attempt settled for Divert, not SALES
}

// Step advances the sequence given this scan's field feedback and
// timeouts (all expressed in scan counts, computed by the caller from
// the relevant *_timeout_sec setpoint and the scan period).
func (s *Sequencer) Step(divertConfirmed, salesConfirmed, pumpRunning bool, bswMean, bswDivertPct float64, divertTimeoutScans, pumpTimeoutScans, stabilizeScans int) Decision {
	s.scansInStep++

	switch s.step {
	case StepCommandDivert:
		s.advance(StepWaitDivertConfirm)
		return Decision{DivertCmd: true}

	case StepWaitDivertConfirm:
		if divertConfirmed {
			s.advance(StepStartPump)
			return Decision{DivertCmd: true}
		}
		if s.scansInStep > divertTimeoutScans {
			s.advance(StepFailed)
			return Decision{DivertCmd: true, Failed: true, Complete: true}
		}
		return Decision{DivertCmd: true}

	case StepStartPump:
		s.advance(StepWaitPumpConfirm)
		return Decision{DivertCmd: true, PumpWantRunning: true}

	case StepWaitPumpConfirm:
		if pumpRunning {
			s.stabilizeGoal = stabilizeScans
			s.advance(StepStabilizeBSW)
			return Decision{DivertCmd: true, PumpWantRunning: true}
		}
		if s.scansInStep > pumpTimeoutScans {
			s.advance(StepFailed)
			return Decision{DivertCmd: true, Failed: true, Complete: true}
		}
		return Decision{DivertCmd: true, PumpWantRunning: true}

	case StepStabilizeBSW:
		if s.scansInStep >= s.stabilizeGoal {
			if bswMean < bswDivertPct {
				s.advance(StepSwingToSales)
			} else {
				s.advance(StepEnterDivert)
			}
		}
		return Decision{DivertCmd: true, PumpWantRunning: true}

	case StepSwingToSales:
		s.advance(StepWaitSalesConfirm)
		return Decision{DivertCmd: false, PumpWantRunning: true}

	case StepWaitSalesConfirm:
		if salesConfirmed {
			s.advance(StepEnterRunning)
			return Decision{DivertCmd: false, PumpWantRunning: true}
		}
		if s.scansInStep > divertTimeoutScans {
			s.advance(StepFailed)
			return Decision{DivertCmd: true, PumpWantRunning: true, Failed: true, Complete: true}
		}
		return Decision{DivertCmd: false, PumpWantRunning: true}

	case StepEnterRunning:
		return Decision{DivertCmd: false, PumpWantRunning: true, Complete: true}

	case StepEnterDivert:
		return Decision{DivertCmd: true, PumpWantRunning: true, Complete: true, EnteredDivert: true}

	default: // StepFailed
		return Decision{DivertCmd: true, Failed: true, Complete: true}
	}
}

func (s *Sequencer) advance(next StartupStep) {
	s.step = next
	s.scansInStep = 0
}
