// Package flow implements Flow Measurement: pulse counting with
// counter-wrap-safe deltas, gross/net barrel totalization and CTL
// temperature correction (spec §4.7).
package flow

import (
	"github.com/lactplc/skidcore/internal/ctlmodel"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/statemachine"
	"github.com/lactplc/skidcore/internal/tagstore"
)

// Module holds the previous-scan pulse count needed to compute a
// counter-wrap-safe delta.
type Module struct {
	havePrev bool
	prev     uint64
	model    ctlmodel.Model
}

// New returns a Module using the named CTL model (spec §9 Open Question
// b: substitutable without changing the interface). Pass "" for the
// default linear model.
func New(modelName string) (*Module, error) {
	name := modelName
	if name == "" {
		name = "linear"
	}
	m, err := ctlmodel.Get(name)
	if err != nil {
		return nil, err
	}
	return &Module{model: m}, nil
}

// deltaPulses computes current-previous as unsigned modular subtraction,
// correctly handling counter wrap (spec §9 design note).
func deltaPulses(prev, cur uint64) uint64 {
	return cur - prev // unsigned subtraction wraps, which is the correct behavior
}

// Step runs one scan of Flow Measurement. pumpRunning and state gate
// totalization: accumulation happens only while state is Running, Divert
// or Proving AND the pump is running; Divert volume accumulates into a
// separate ledger from Running/Proving's main total (spec §9 Open
// Question a).
func (m *Module) Step(store *tagstore.Store, sp setpoints.Snapshot, state statemachine.State, pumpRunning bool) error {
	raw, quality, _, err := store.ReadPulse(tagstore.PIMeterPulse)
	if err != nil {
		return err
	}

	if !m.havePrev {
		m.prev = raw
		m.havePrev = true
		return nil
	}
	delta := deltaPulses(m.prev, raw)
	m.prev = raw

	if delta == 0 || quality == tagstore.Bad {
		return nil
	}

	accumulating := pumpRunning && (state == statemachine.Running || state == statemachine.Divert || state == statemachine.Proving)
	if !accumulating {
		return nil
	}

	grossDelta := float64(delta) / sp.MeterKFactor

	tempF, tq, _, _ := store.ReadFloat(tagstore.AIMeterTemp)
	ctl, clamped := m.model.CTL(tempF, sp.TempBaseDegF, sp.APIThermalExpansionAlpha)
	q := tagstore.Good
	if clamped || tq == tagstore.Bad {
		q = tagstore.Uncertain
	}

	netDelta := grossDelta * sp.MeterFactor * ctl

	if state == statemachine.Divert {
		prevDiverted, _, _, _ := store.ReadFloat(tagstore.VTDivertedBBL)
		if err := store.WriteFloat(tagstore.VTDivertedBBL, prevDiverted+netDelta, q); err != nil {
			return err
		}
		return nil
	}

	prevGross, _, _, _ := store.ReadFloat(tagstore.VTGrossBBL)
	prevNet, _, _, _ := store.ReadFloat(tagstore.VTNetBBL)
	if err := store.WriteFloat(tagstore.VTGrossBBL, prevGross+grossDelta, tagstore.Good); err != nil {
		return err
	}
	return store.WriteFloat(tagstore.VTNetBBL, prevNet+netDelta, q)
}
