package pressure

import (
	"testing"

	"github.com/lactplc/skidcore/internal/alarm"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/tagstore"
)

func newStore() *tagstore.Store {
	s := tagstore.New(nil)
	tagstore.DeclareLACT(s)
	return s
}

func TestLoopPressHighRaisesWithHysteresis(t *testing.T) {
	store := newStore()
	m := New()
	ann := alarm.New(nil)
	sp := setpoints.Defaults()
	sp.LoopPressHiPSI = 275.0

	store.WriteFloat(tagstore.AIInletPress, 50, tagstore.Good)
	store.WriteFloat(tagstore.AILoopHiPress, 100, tagstore.Good)
	m.Step(store, sp, ann)
	if len(ann.ListActive()) != 0 {
		t.Fatalf("expected no alarms at nominal pressure")
	}

	store.WriteFloat(tagstore.AILoopHiPress, 300, tagstore.Good)
	m.Step(store, sp, ann)
	active := ann.ListActive()
	if len(active) != 1 || active[0].ID != "LOOP_PRESS_HI" {
		t.Fatalf("expected LOOP_PRESS_HI active, got %+v", active)
	}

	// Dropping just below the hi setpoint, but still inside the
	// hysteresis band, should not clear yet.
	band := tagstore.RangeLoopHiPress.Hi * hysteresisFrac
	store.WriteFloat(tagstore.AILoopHiPress, sp.LoopPressHiPSI-band/2, tagstore.Good)
	m.Step(store, sp, ann)
	if len(ann.ListActive()) != 1 {
		t.Fatalf("expected alarm to remain latched inside the hysteresis band")
	}

	store.WriteFloat(tagstore.AILoopHiPress, sp.LoopPressHiPSI-band*2, tagstore.Good)
	m.Step(store, sp, ann)
	if len(ann.ListActive()) != 0 {
		t.Fatalf("expected alarm to clear once below hi-minus-hysteresis")
	}
}

func TestInletPressLowRaises(t *testing.T) {
	store := newStore()
	m := New()
	ann := alarm.New(nil)
	sp := setpoints.Defaults()
	sp.InletPressLoPSI = 5.0

	store.WriteFloat(tagstore.AIInletPress, 50, tagstore.Good)
	m.Step(store, sp, ann)
	if len(ann.ListActive()) != 0 {
		t.Fatalf("expected no alarm at healthy inlet pressure")
	}

	store.WriteFloat(tagstore.AIInletPress, 1.0, tagstore.Good)
	m.Step(store, sp, ann)
	active := ann.ListActive()
	if len(active) != 1 || active[0].ID != "INLET_PRESS_LO" {
		t.Fatalf("expected INLET_PRESS_LO active, got %+v", active)
	}
}

func TestLimitsResolveFreshEachScan(t *testing.T) {
	store := newStore()
	m := New()
	ann := alarm.New(nil)
	sp := setpoints.Defaults()
	sp.LoopPressHiPSI = 275.0

	store.WriteFloat(tagstore.AIInletPress, 50, tagstore.Good)
	store.WriteFloat(tagstore.AILoopHiPress, 260, tagstore.Good)
	m.Step(store, sp, ann)
	if len(ann.ListActive()) != 0 {
		t.Fatalf("expected no alarm under the original limit")
	}

	sp.LoopPressHiPSI = 250 // operator lowers the limit via SET
	m.Step(store, sp, ann)
	if len(ann.ListActive()) != 1 {
		t.Fatalf("expected the new, lower limit to take effect immediately")
	}
}
