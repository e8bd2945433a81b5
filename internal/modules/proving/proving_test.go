package proving

import (
	"testing"

	"github.com/lactplc/skidcore/internal/setpoints"
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

// runOneRun drives the module through a single run's openingValve ->
// waitingStart -> running phases, injecting enough pulses to realize
// rawFactor against the current certified-volume/k-factor setpoints.
func runOneRun(t *testing.T, store *tagstore.Store, sp *setpoints.Store, m *Module, rawFactor float64) (complete bool) {
	t.Helper()
	cur := sp.Current()

	complete, err := m.Step(store, sp, false) // openingValve -> writes DO_PROVER_VLV_CMD
	if err != nil {
		t.Fatalf("Step (open): %v", err)
	}
	if complete {
		t.Fatalf("unexpected completion while opening valve")
	}
	store.WriteBool(tagstore.DIProverValveOpen, true, tagstore.Good)

	complete, err = m.Step(store, sp, false) // waitingStart -> latches start pulses
	if err != nil {
		t.Fatalf("Step (waitingStart): %v", err)
	}
	if complete {
		t.Fatalf("unexpected completion while waiting for valve-open confirmation")
	}

	grossBBL := cur.ProveCertifiedBarrels / rawFactor
	deltaPulses := uint64(grossBBL * cur.MeterKFactor)
	pulses, _, _, _ := store.ReadPulse(tagstore.PIMeterPulse)
	store.WritePulse(tagstore.PIMeterPulse, pulses+deltaPulses, tagstore.Good)

	complete, err = m.Step(store, sp, true) // running -> records the run
	if err != nil {
		t.Fatalf("Step (running): %v", err)
	}
	store.WriteBool(tagstore.DIProverValveOpen, false, tagstore.Good)
	return complete
}

func TestProvingPassAdoptsMeanFactor(t *testing.T) {
	store := newStore()
	sp := setpoints.NewStore()
	patch := sp.Current()
	patch.ProveRuns = 5
	patch.RepeatabilityTolerance = 0.0005
	patch.MeterKFactor = 100.0
	patch.ProveCertifiedBarrels = 500.0
	sp.Apply(patch)

	m := New()
	m.Start()
	if !m.Active() {
		t.Fatalf("expected Active() after Start()")
	}

	rawFactors := []float64{1.0012, 1.0009, 1.0011, 1.0010, 1.0013}
	for _, rf := range rawFactors {
		if runOneRun(t, store, sp, m, rf) {
			t.Fatalf("unexpected completion before the valve-closing scan")
		}
	}
	// The scan after the 5th run closes the prover valve and reports completion.
	complete, err := m.Step(store, sp, false)
	if err != nil {
		t.Fatalf("Step (closing): %v", err)
	}
	if !complete {
		t.Fatalf("expected completion on the valve-closing scan after the 5th run")
	}
	if m.Active() {
		t.Fatalf("expected Active() false after completion")
	}

	rep := m.LastReport()
	if rep == nil {
		t.Fatalf("expected a LastReport after completion")
	}
	if !rep.Passed {
		t.Fatalf("expected the run set to pass, repeatability=%v", rep.Repeatability)
	}
	if !approxEqual(rep.CandidateFactor, 1.0011, 0.0001) {
		t.Fatalf("expected candidate factor near 1.0011, got %v", rep.CandidateFactor)
	}

	mf := sp.Current().MeterFactor
	if !approxEqual(mf, 1.0011, 0.0001) {
		t.Fatalf("expected adopted meter_factor near 1.0011, got %v", mf)
	}
	tagMF, _, _, _ := store.ReadFloat(tagstore.VTMeterFactor)
	if !approxEqual(tagMF, mf, 1e-9) {
		t.Fatalf("expected VT_METER_FACTOR tag to mirror the adopted setpoint, got %v vs %v", tagMF, mf)
	}
}

func TestProvingFailLeavesMeterFactorUnchanged(t *testing.T) {
	store := newStore()
	sp := setpoints.NewStore()
	patch := sp.Current()
	patch.ProveRuns = 2
	patch.RepeatabilityTolerance = 0.0001 // tight, will fail
	patch.MeterKFactor = 100.0
	patch.ProveCertifiedBarrels = 500.0
	originalMF := patch.MeterFactor
	sp.Apply(patch)

	m := New()
	m.Start()
	runOneRun(t, store, sp, m, 1.0012)
	runOneRun(t, store, sp, m, 1.0200) // wildly different -> fails repeatability
	complete, err := m.Step(store, sp, false) // closes the valve and finalizes the report
	if err != nil {
		t.Fatalf("Step (closing): %v", err)
	}

	if !complete {
		t.Fatalf("expected completion after the configured run count")
	}
	rep := m.LastReport()
	if rep.Passed {
		t.Fatalf("expected the run set to fail repeatability, got %v", rep.Repeatability)
	}
	if sp.Current().MeterFactor != originalMF {
		t.Fatalf("expected meter_factor unchanged on a failed prove, got %v", sp.Current().MeterFactor)
	}
}

func TestAbortStopsSequenceWithoutReport(t *testing.T) {
	m := New()
	m.Start()
	m.Abort()
	if m.Active() {
		t.Fatalf("expected Active() false after Abort")
	}
	if m.LastReport() != nil {
		t.Fatalf("expected no report after an aborted sequence")
	}
}

func TestStepIsNoOpWhenNotActive(t *testing.T) {
	store := newStore()
	sp := setpoints.NewStore()
	m := New()
	complete, err := m.Step(store, sp, false)
	if err != nil || complete {
		t.Fatalf("expected Step to no-op when inactive, got complete=%v err=%v", complete, err)
	}
}
