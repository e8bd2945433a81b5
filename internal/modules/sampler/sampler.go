// Package sampler implements flow-proportional grab sampling (spec §4.7).
package sampler

import (
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/statemachine"
	"github.com/lactplc/skidcore/internal/tagstore"
)

// Module accumulates net barrels since the last grab and fires a grab
// when the accumulator crosses barrels_per_grab.
type Module struct {
	accumBBL    float64
	solenoidEnd int // scan count at which DO_SAMPLE_SOL should de-energize; 0 = off
	scan        int
	prevNetBBL  float64
	havePrev    bool
}

// New returns a zeroed sampler module.
func New() *Module {
	return &Module{}
}

// Step consumes this scan's net-barrel total (already updated by Flow
// Measurement earlier in the Process Modules pass) and drives the grab
// solenoid and mix pump outputs.
func (m *Module) Step(store *tagstore.Store, sp setpoints.Snapshot, state statemachine.State) error {
	m.scan++

	netBBL, _, _, err := store.ReadFloat(tagstore.VTNetBBL)
	if err != nil {
		return err
	}
	if !m.havePrev {
		m.prevNetBBL = netBBL
		m.havePrev = true
	}
	delta := netBBL - m.prevNetBBL
	m.prevNetBBL = netBBL

	potHi, _, _, _ := store.ReadBool(tagstore.DISamplePotHi)
	suppressed := state != statemachine.Running || potHi

	if !suppressed && delta > 0 {
		m.accumBBL += delta
	}

	if !suppressed && m.accumBBL >= sp.SampleBarrelsPerGrab {
		m.accumBBL = 0
		grabs, _, _, _ := store.ReadFloat(tagstore.VTSampleGrabs)
		vol, _, _, _ := store.ReadFloat(tagstore.VTSampleVolumeML)
		if err := store.WriteFloat(tagstore.VTSampleGrabs, grabs+1, tagstore.Good); err != nil {
			return err
		}
		if err := store.WriteFloat(tagstore.VTSampleVolumeML, vol+sp.GrabVolumeML, tagstore.Good); err != nil {
			return err
		}
		durationScans := scansFor(sp.GrabDurationMS, sp.ScanPeriodMS)
		m.solenoidEnd = m.scan + durationScans
	}

	solOn := m.solenoidEnd > 0 && m.scan < m.solenoidEnd
	if m.solenoidEnd > 0 && m.scan >= m.solenoidEnd {
		m.solenoidEnd = 0
	}
	// Sampling scope invariant (spec §8 #3): never energized outside
	// Running with the pot clear.
	if suppressed {
		solOn = false
	}
	if err := store.WriteBool(tagstore.DOSampleSol, solOn, tagstore.Good); err != nil {
		return err
	}
	return store.WriteBool(tagstore.DOSampleMixPump, state == statemachine.Running, tagstore.Good)
}

func scansFor(ms, scanPeriodMS float64) int {
	if scanPeriodMS <= 0 {
		return 1
	}
	n := int(ms/scanPeriodMS + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}
