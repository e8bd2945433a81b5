package flow

import (
	"testing"

	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/statemachine"
	"github.com/lactplc/skidcore/internal/tagstore"
)

func newStore() *tagstore.Store {
	s := tagstore.New(nil)
	tagstore.DeclareLACT(s)
	return s
}

func approxEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func TestFirstScanEstablishesBaselineWithoutAccumulating(t *testing.T) {
	store := newStore()
	m, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	store.WritePulse(tagstore.PIMeterPulse, 1000, tagstore.Good)

	if err := m.Step(store, setpoints.Defaults(), statemachine.Running, true); err != nil {
		t.Fatalf("Step: %v", err)
	}
	gross, _, _, _ := store.ReadFloat(tagstore.VTGrossBBL)
	if gross != 0 {
		t.Fatalf("expected no accumulation on the baseline-establishing scan, got %v", gross)
	}
}

func TestTotalizationAtUnityFactorAndBaseTemp(t *testing.T) {
	store := newStore()
	m, _ := New("")
	sp := setpoints.Defaults()
	sp.MeterKFactor = 100.0
	sp.MeterFactor = 1.0
	store.WriteFloat(tagstore.AIMeterTemp, 60.0, tagstore.Good)

	store.WritePulse(tagstore.PIMeterPulse, 0, tagstore.Good)
	m.Step(store, sp, statemachine.Running, true) // baseline

	store.WritePulse(tagstore.PIMeterPulse, 10000, tagstore.Good)
	if err := m.Step(store, sp, statemachine.Running, true); err != nil {
		t.Fatalf("Step: %v", err)
	}

	gross, _, _, _ := store.ReadFloat(tagstore.VTGrossBBL)
	net, _, _, _ := store.ReadFloat(tagstore.VTNetBBL)
	if !approxEqual(gross, 100.0, 0.001) {
		t.Errorf("expected gross delta 100.000, got %v", gross)
	}
	if !approxEqual(net, 100.0, 0.001) {
		t.Errorf("expected net delta 100.000, got %v", net)
	}
}

func TestCTLAtElevatedTempReducesNetVolume(t *testing.T) {
	store := newStore()
	m, _ := New("")
	sp := setpoints.Defaults()
	sp.MeterKFactor = 100.0
	sp.MeterFactor = 1.0
	sp.APIThermalExpansionAlpha = 0.00045
	store.WriteFloat(tagstore.AIMeterTemp, 120.0, tagstore.Good)

	store.WritePulse(tagstore.PIMeterPulse, 0, tagstore.Good)
	m.Step(store, sp, statemachine.Running, true)
	store.WritePulse(tagstore.PIMeterPulse, 10000, tagstore.Good)
	m.Step(store, sp, statemachine.Running, true)

	net, _, _, _ := store.ReadFloat(tagstore.VTNetBBL)
	want := 100.0 * (1 - 0.00045*60)
	if !approxEqual(net, want, 0.01) {
		t.Fatalf("expected net delta %.3f, got %.3f", want, net)
	}
}

func TestCounterWrapHandledAsUnsignedDelta(t *testing.T) {
	store := newStore()
	m, _ := New("")
	sp := setpoints.Defaults()
	sp.MeterKFactor = 100.0

	store.WritePulse(tagstore.PIMeterPulse, ^uint64(0)-99, tagstore.Good) // near max
	m.Step(store, sp, statemachine.Running, true)
	store.WritePulse(tagstore.PIMeterPulse, 99, tagstore.Good) // wrapped past zero
	if err := m.Step(store, sp, statemachine.Running, true); err != nil {
		t.Fatalf("Step: %v", err)
	}
	gross, _, _, _ := store.ReadFloat(tagstore.VTGrossBBL)
	if !approxEqual(gross, 199.0/100.0, 1e-6) {
		t.Fatalf("expected wrap-safe delta of 199 pulses, got gross=%v", gross)
	}
}

func TestNoAccumulationWhenPumpNotRunning(t *testing.T) {
	store := newStore()
	m, _ := New("")
	sp := setpoints.Defaults()
	store.WritePulse(tagstore.PIMeterPulse, 0, tagstore.Good)
	m.Step(store, sp, statemachine.Running, true)
	store.WritePulse(tagstore.PIMeterPulse, 10000, tagstore.Good)
	m.Step(store, sp, statemachine.Running, false)

	gross, _, _, _ := store.ReadFloat(tagstore.VTGrossBBL)
	if gross != 0 {
		t.Fatalf("expected no accumulation while pump is not running, got %v", gross)
	}
}

func TestNoAccumulationOutsideRunningDivertProving(t *testing.T) {
	store := newStore()
	m, _ := New("")
	sp := setpoints.Defaults()
	store.WritePulse(tagstore.PIMeterPulse, 0, tagstore.Good)
	m.Step(store, sp, statemachine.Idle, true)
	store.WritePulse(tagstore.PIMeterPulse, 10000, tagstore.Good)
	m.Step(store, sp, statemachine.Idle, true)

	gross, _, _, _ := store.ReadFloat(tagstore.VTGrossBBL)
	if gross != 0 {
		t.Fatalf("expected no accumulation in Idle state, got %v", gross)
	}
}

func TestDivertAccumulatesIntoSeparateTotal(t *testing.T) {
	store := newStore()
	m, _ := New("")
	sp := setpoints.Defaults()
	sp.MeterKFactor = 100.0
	sp.MeterFactor = 1.0
	store.WriteFloat(tagstore.AIMeterTemp, 60.0, tagstore.Good)

	store.WritePulse(tagstore.PIMeterPulse, 0, tagstore.Good)
	m.Step(store, sp, statemachine.Divert, true)
	store.WritePulse(tagstore.PIMeterPulse, 10000, tagstore.Good)
	m.Step(store, sp, statemachine.Divert, true)

	diverted, _, _, _ := store.ReadFloat(tagstore.VTDivertedBBL)
	gross, _, _, _ := store.ReadFloat(tagstore.VTGrossBBL)
	if !approxEqual(diverted, 100.0, 0.001) {
		t.Fatalf("expected diverted total to accumulate, got %v", diverted)
	}
	if gross != 0 {
		t.Fatalf("expected the custody gross total to remain untouched during Divert, got %v", gross)
	}
}

func TestUnknownModelNameErrors(t *testing.T) {
	if _, err := New("not-a-real-model"); err == nil {
		t.Fatalf("expected an error constructing Module with an unregistered CTL model name")
	}
}
