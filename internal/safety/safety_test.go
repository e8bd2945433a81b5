package safety

import (
	"testing"

	"github.com/lactplc/skidcore/internal/alarm"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/statemachine"
	"github.com/lactplc/skidcore/internal/tagstore"
)

// newHealthyStore returns a declared tag store with every interlock input
// in its non-tripping position, so tests need only perturb the one
// condition under test.
func newHealthyStore() *tagstore.Store {
	s := tagstore.New(nil)
	tagstore.DeclareLACT(s)
	s.WriteBool(tagstore.DIEStop, true, tagstore.Good) // NC loop intact
	s.WriteBool(tagstore.DIInletValveOpen, true, tagstore.Good)
	s.WriteBool(tagstore.DIOutletValveOpen, true, tagstore.Good)
	s.WriteBool(tagstore.DIPumpOverload, false, tagstore.Good)
	s.WriteFloat(tagstore.AIInletPress, 50, tagstore.Good)
	s.WriteFloat(tagstore.AILoopHiPress, 100, tagstore.Good)
	s.WriteFloat(tagstore.AIStrainerDP, 5, tagstore.Good)
	s.WriteBool(tagstore.DIStrainerHiDP, false, tagstore.Good)
	s.WriteBool(tagstore.DISamplePotHi, false, tagstore.Good)
	s.WriteFloat(tagstore.AIMeterTemp, 60, tagstore.Good)
	s.WriteBool(tagstore.DIDivertSales, true, tagstore.Good)
	s.WriteBool(tagstore.DIDivertDivert, false, tagstore.Good)
	return s
}

func healthyInputs() Inputs {
	return Inputs{BSWMean: 0.3, BSWQuality: tagstore.Good, DivertCommand: false}
}

func TestHealthyStateRequestsNothing(t *testing.T) {
	m := NewManager()
	store := newHealthyStore()
	sp := setpoints.Defaults()
	ann := alarm.New(nil)

	req := m.Evaluate(store, sp, statemachine.Running, ann, healthyInputs())
	if req.EStop || req.Shutdown || req.Divert {
		t.Fatalf("expected no demand from a fully healthy store, got %+v", req)
	}
}

func TestEStopAssertedImmediately(t *testing.T) {
	m := NewManager()
	store := newHealthyStore()
	store.WriteBool(tagstore.DIEStop, false, tagstore.Good) // NC loop broken
	sp := setpoints.Defaults()
	ann := alarm.New(nil)

	req := m.Evaluate(store, sp, statemachine.Running, ann, healthyInputs())
	if !req.EStop {
		t.Fatalf("expected EStop demand, got %+v", req)
	}
	active := ann.ListActive()
	if len(active) != 1 || active[0].ID != AlarmEStop {
		t.Fatalf("expected only ESTOP alarm active, got %+v", active)
	}
}

func TestPumpOverloadRequestsShutdownImmediately(t *testing.T) {
	m := NewManager()
	store := newHealthyStore()
	store.WriteBool(tagstore.DIPumpOverload, true, tagstore.Good)
	sp := setpoints.Defaults()
	ann := alarm.New(nil)

	req := m.Evaluate(store, sp, statemachine.Running, ann, healthyInputs())
	if !req.Shutdown {
		t.Fatalf("expected Shutdown demand on pump overload, got %+v", req)
	}
}

func TestInletValveShutDebouncesBeforeDemanding(t *testing.T) {
	m := NewManager()
	store := newHealthyStore()
	store.WriteBool(tagstore.DIInletValveOpen, false, tagstore.Good)
	sp := setpoints.Defaults()
	ann := alarm.New(nil)

	// Debounce threshold is 2 consecutive scans; first scan must not demand.
	req := m.Evaluate(store, sp, statemachine.Running, ann, healthyInputs())
	if req.Shutdown {
		t.Fatalf("expected no demand on first scan of inlet valve shut, got %+v", req)
	}
	req = m.Evaluate(store, sp, statemachine.Running, ann, healthyInputs())
	if !req.Shutdown {
		t.Fatalf("expected Shutdown demand after debounce threshold, got %+v", req)
	}
}

func TestValveChecksOnlyApplyInStartupOrRunning(t *testing.T) {
	m := NewManager()
	store := newHealthyStore()
	store.WriteBool(tagstore.DIInletValveOpen, false, tagstore.Good)
	sp := setpoints.Defaults()
	ann := alarm.New(nil)

	for i := 0; i < 5; i++ {
		req := m.Evaluate(store, sp, statemachine.Idle, ann, healthyInputs())
		if req.Shutdown {
			t.Fatalf("expected valve-shut check to be inert outside Startup/Running, got %+v", req)
		}
	}
}

func TestBSWHighRequestsDivertAfterDebounce(t *testing.T) {
	m := NewManager()
	store := newHealthyStore()
	sp := setpoints.Defaults() // BSWDivertPct=1.0, BSWDebounceSec=5, scan_period=100ms -> 50 scans
	ann := alarm.New(nil)

	in := healthyInputs()
	in.BSWMean = 1.5

	var lastReq Request
	for i := 0; i < 49; i++ {
		lastReq = m.Evaluate(store, sp, statemachine.Running, ann, in)
		if lastReq.Divert {
			t.Fatalf("divert demanded too early at scan %d", i)
		}
	}
	lastReq = m.Evaluate(store, sp, statemachine.Running, ann, in)
	if !lastReq.Divert {
		t.Fatalf("expected Divert demand once BS&W-high debounce elapses, got %+v", lastReq)
	}
}

func TestHighestPrioritizesEStopOverShutdownOverDivert(t *testing.T) {
	cases := []struct {
		name     string
		demands  []Request
		wantEStop, wantShutdown, wantDivert bool
	}{
		{"estop wins", []Request{{Divert: true}, {EStop: true}, {Shutdown: true}}, true, false, false},
		{"shutdown wins over divert", []Request{{Divert: true}, {Shutdown: true}}, false, true, false},
		{"divert alone", []Request{{Divert: true}}, false, false, true},
		{"nothing", nil, false, false, false},
	}
	for _, c := range cases {
		got := Highest(c.demands)
		if got.EStop != c.wantEStop || got.Shutdown != c.wantShutdown || got.Divert != c.wantDivert {
			t.Errorf("%s: Highest(%+v) = %+v, want EStop=%v Shutdown=%v Divert=%v",
				c.name, c.demands, got, c.wantEStop, c.wantShutdown, c.wantDivert)
		}
	}
}

func TestDebounceResetOnFalseRun(t *testing.T) {
	d := NewDebounce()
	tr, fr := d.Update(true)
	if tr != 1 || fr != 0 {
		t.Fatalf("expected 1/0 after first true update, got %d/%d", tr, fr)
	}
	tr, fr = d.Update(false)
	if tr != 0 || fr != 1 {
		t.Fatalf("expected 0/1 after false update, got %d/%d", tr, fr)
	}
	d.Reset()
	tr, fr = d.Update(true)
	if tr != 1 || fr != 0 {
		t.Fatalf("expected counters to restart after Reset, got %d/%d", tr, fr)
	}
}
