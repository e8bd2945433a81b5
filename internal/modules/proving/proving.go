// Package proving implements meter proving: N certified-volume runs used
// to derive and, if repeatable enough, adopt a new meter factor (spec
// §4.7).
package proving

import (
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/tagstore"
)

type phase uint8

const (
	idle phase = iota
	openingValve
	waitingStart
	running
	closingValve
	done
)

// Run is one completed proving run's result.
type Run struct {
	Pulses      uint64
	RawFactor   float64
}

// Report is the final outcome of a proving sequence (spec §3 Proving Report).
type Report struct {
	Runs             []Run
	Repeatability    float64
	Passed           bool
	CandidateFactor  float64
}

// Module orchestrates the proving sequence. Start() begins it; Step()
// advances it one scan at a time without blocking, per spec §5's
// no-blocking-in-module rule.
type Module struct {
	ph          phase
	runs        []Run
	startPulses uint64
	active      bool
	lastReport  *Report
}

// New returns an idle proving module.
func New() *Module { return &Module{} }

// Active reports whether a proving sequence is in progress.
func (m *Module) Active() bool { return m.active }

// Start begins a new proving sequence, discarding any prior in-progress
// run.
func (m *Module) Start() {
	m.ph = openingValve
	m.runs = nil
	m.active = true
	m.lastReport = nil
}

// Abort cancels an in-progress sequence without adopting a new factor.
func (m *Module) Abort() {
	m.ph = idle
	m.active = false
}

// LastReport returns the most recently completed proving report, if any.
func (m *Module) LastReport() *Report { return m.lastReport }

// Step advances the proving sequence by one scan. runDisplaced is true
// when the operator or prover-return signal indicates the certified
// volume has been displaced for the current run, ending it. sp is the
// setpoints store (not a snapshot) because a passing run must install a
// new meter_factor atomically.
func (m *Module) Step(store *tagstore.Store, sps *setpoints.Store, runDisplaced bool) (complete bool, err error) {
	sp := sps.Current()
	if !m.active {
		return false, nil
	}

	switch m.ph {
	case openingValve:
		if err := store.WriteBool(tagstore.DOProverValveCmd, true, tagstore.Good); err != nil {
			return false, err
		}
		m.ph = waitingStart

	case waitingStart:
		open, _, _, _ := store.ReadBool(tagstore.DIProverValveOpen)
		if !open {
			return false, nil
		}
		pulses, _, _, err := store.ReadPulse(tagstore.PIMeterPulse)
		if err != nil {
			return false, err
		}
		m.startPulses = pulses
		m.ph = running

	case running:
		if !runDisplaced {
			return false, nil
		}
		endPulses, _, _, err := store.ReadPulse(tagstore.PIMeterPulse)
		if err != nil {
			return false, err
		}
		deltaPulses := endPulses - m.startPulses
		grossBBL := float64(deltaPulses) / sp.MeterKFactor
		rawFactor := sp.ProveCertifiedBarrels / grossBBL
		m.runs = append(m.runs, Run{Pulses: deltaPulses, RawFactor: rawFactor})

		if len(m.runs) >= sp.ProveRuns {
			m.ph = closingValve
		} else {
			m.ph = openingValve
		}

	case closingValve:
		if err := store.WriteBool(tagstore.DOProverValveCmd, false, tagstore.Good); err != nil {
			return false, err
		}
		m.lastReport = m.finalize(sp)
		if m.lastReport.Passed {
			patched := sp
			patched.MeterFactor = m.lastReport.CandidateFactor
			if err := sps.Apply(patched); err != nil {
				return false, err
			}
			if err := store.WriteFloat(tagstore.VTMeterFactor, m.lastReport.CandidateFactor, tagstore.Good); err != nil {
				return false, err
			}
		}
		m.ph = done
		m.active = false
		return true, nil
	}
	return false, nil
}

func (m *Module) finalize(sp setpoints.Snapshot) *Report {
	min, max, sum := m.runs[0].RawFactor, m.runs[0].RawFactor, 0.0
	for _, r := range m.runs {
		if r.RawFactor < min {
			min = r.RawFactor
		}
		if r.RawFactor > max {
			max = r.RawFactor
		}
		sum += r.RawFactor
	}
	mean := sum / float64(len(m.runs))
	repeatability := (max - min) / min

	rep := &Report{
		Runs:          append([]Run(nil), m.runs...),
		Repeatability: repeatability,
	}
	if repeatability <= sp.RepeatabilityTolerance {
		rep.Passed = true
		rep.CandidateFactor = mean
	} else {
		rep.Passed = false
		rep.CandidateFactor = sp.MeterFactor
	}
	return rep
}
