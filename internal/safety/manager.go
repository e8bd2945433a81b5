package safety

import (
	"github.com/lactplc/skidcore/internal/alarm"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/statemachine"
	"github.com/lactplc/skidcore/internal/tagstore"
)

// Alarm IDs for the fixed, ordered interlock list (spec §4.5).
const (
	AlarmEStop           = "ESTOP"
	AlarmPumpOverload    = "PUMP_OVERLOAD"
	AlarmInletValveShut  = "INLET_VLV_NOT_OPEN"
	AlarmOutletValveShut = "OUTLET_VLV_NOT_OPEN"
	AlarmInletPressLo    = "INLET_PRESS_LOW"
	AlarmLoopPressHi     = "LOOP_PRESS_HIGH"
	AlarmStrainerDPHi    = "STRAINER_DP_HIGH"
	AlarmBSWProbeFail    = "BSW_PROBE_FAIL"
	AlarmBSWHigh         = "BSW_HIGH"
	AlarmDivertTravel    = "DIVERT_VALVE_TRAVEL"
	AlarmSamplePotFull   = "SAMPLE_POT_FULL"
	AlarmTempOutOfRange  = "METER_TEMP_OUT_OF_RANGE"
)

// LatchedAlarmIDs lists the Critical alarms whose action is
// RequestShutdown or RequestEStop — the ones spec §3 requires to latch
// until an explicit operator RESET, regardless of how quickly their
// underlying condition clears. The Controller's RESET handling calls
// alarm.Annunciator.Reset on each of these.
var LatchedAlarmIDs = []string{
	AlarmEStop,
	AlarmPumpOverload,
	AlarmInletValveShut,
	AlarmOutletValveShut,
	AlarmInletPressLo,
	AlarmLoopPressHi,
	AlarmDivertTravel,
}

// Manager evaluates the mandatory interlock checks each scan and folds
// them into a single Request for the State Machine, raising/clearing
// alarms as it goes.
type Manager struct {
	debounce map[string]*Debounce

	divertTravelScans int
	lastDivertCmd     bool
}

// NewManager returns a Manager with a fresh debounce counter per
// scan-count-debounced check.
func NewManager() *Manager {
	ids := []string{
		AlarmInletValveShut, AlarmOutletValveShut, AlarmInletPressLo,
		AlarmLoopPressHi, AlarmStrainerDPHi, AlarmBSWProbeFail,
		AlarmBSWHigh, AlarmTempOutOfRange,
	}
	m := &Manager{debounce: make(map[string]*Debounce, len(ids))}
	for _, id := range ids {
		m.debounce[id] = NewDebounce()
	}
	return m
}

func scansFor(seconds, scanPeriodMS float64) int {
	if scanPeriodMS <= 0 {
		return 1
	}
	n := int(seconds*1000.0/scanPeriodMS + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// Inputs bundles the values the Manager needs beyond the raw store. The
// BS&W mean and quality come from the *previous* scan's Process Modules
// pass (spec §4.8: BS&W Monitor runs after the Safety Manager's own
// evaluate step — see controller.Scan for the exact ordering this
// resolves).
type Inputs struct {
	BSWMean         float64
	BSWQuality      tagstore.Quality
	DivertCommand   bool // DO_DIVERT_CMD value the State Machine drove last scan
	SamplePotWarned bool
}

// Evaluate runs the fixed, ordered interlock list and returns the single
// highest-priority Request for the State Machine to consume this scan.
func (m *Manager) Evaluate(store *tagstore.Store, sp setpoints.Snapshot, state statemachine.State, ann *alarm.Annunciator, in Inputs) Request {
	var demands []Request

	// E-Stop: DI_ESTOP wired normally-closed, so de-energized (false)
	// means asserted.
	estopAsserted, _, _, _ := store.ReadBool(tagstore.DIEStop)
	if !estopAsserted {
		ann.Raise(AlarmEStop, alarm.Critical, alarm.ActionRequestEStop)
		demands = append(demands, Request{EStop: true})
	} else {
		ann.Clear(AlarmEStop)
	}

	overload, _, _, _ := store.ReadBool(tagstore.DIPumpOverload)
	if overload {
		ann.Raise(AlarmPumpOverload, alarm.Critical, alarm.ActionRequestShutdown)
		demands = append(demands, Request{Shutdown: true})
	} else {
		ann.Clear(AlarmPumpOverload)
	}

	inStartupOrRunning := state == statemachine.Startup || state == statemachine.Running

	m.debouncedShutdown(store, sp, ann, AlarmInletValveShut,
		inStartupOrRunning && !mustReadBool(store, tagstore.DIInletValveOpen),
		2, &demands)

	m.debouncedShutdown(store, sp, ann, AlarmOutletValveShut,
		inStartupOrRunning && !mustReadBool(store, tagstore.DIOutletValveOpen),
		2, &demands)

	inletPress, _, _, _ := store.ReadFloat(tagstore.AIInletPress)
	m.debouncedShutdown(store, sp, ann, AlarmInletPressLo,
		inletPress < sp.InletPressLoPSI, scansFor(10, sp.ScanPeriodMS), &demands)

	loopPress, _, _, _ := store.ReadFloat(tagstore.AILoopHiPress)
	m.debouncedShutdown(store, sp, ann, AlarmLoopPressHi,
		loopPress > sp.LoopPressHiPSI, scansFor(5, sp.ScanPeriodMS), &demands)

	strainerDP, _, _, _ := store.ReadFloat(tagstore.AIStrainerDP)
	strainerDI, _, _, _ := store.ReadBool(tagstore.DIStrainerHiDP)
	m.debouncedWarn(ann, AlarmStrainerDPHi,
		strainerDP > sp.StrainerDPHiPSI || strainerDI, scansFor(5, sp.ScanPeriodMS))

	probeBad := in.BSWQuality == tagstore.Bad || in.BSWMean < 0 || in.BSWMean > 5
	m.debouncedDivert(ann, AlarmBSWProbeFail, probeBad, scansFor(3, sp.ScanPeriodMS), &demands)

	m.debouncedDivert(ann, AlarmBSWHigh, in.BSWMean > sp.BSWDivertPct,
		scansFor(sp.BSWDebounceSec, sp.ScanPeriodMS), &demands)

	// Divert valve travel: commanded position not confirmed within
	// travel_timeout_sec.
	if in.DivertCommand != m.lastDivertCmd {
		m.divertTravelScans = 0
		m.lastDivertCmd = in.DivertCommand
	} else {
		m.divertTravelScans++
	}
	confirmed := confirmedDivertPosition(store, in.DivertCommand)
	if !confirmed && m.divertTravelScans >= scansFor(sp.DivertTravelTimeoutSec, sp.ScanPeriodMS) {
		ann.Raise(AlarmDivertTravel, alarm.Critical, alarm.ActionRequestShutdown)
		demands = append(demands, Request{Shutdown: true})
	} else if confirmed {
		ann.Clear(AlarmDivertTravel)
	}

	potHi, _, _, _ := store.ReadBool(tagstore.DISamplePotHi)
	if potHi {
		ann.Raise(AlarmSamplePotFull, alarm.Warn, alarm.ActionNone)
	} else {
		ann.Clear(AlarmSamplePotFull)
	}

	temp, _, _, _ := store.ReadFloat(tagstore.AIMeterTemp)
	m.debouncedWarn(ann, AlarmTempOutOfRange,
		temp < sp.TempLoDegF || temp > sp.TempHiDegF, scansFor(10, sp.ScanPeriodMS))

	return Highest(demands)
}

func mustReadBool(store *tagstore.Store, name string) bool {
	v, _, _, _ := store.ReadBool(name)
	return v
}

func confirmedDivertPosition(store *tagstore.Store, commandedDivert bool) bool {
	if commandedDivert {
		v, _, _, _ := store.ReadBool(tagstore.DIDivertDivert)
		return v
	}
	v, _, _, _ := store.ReadBool(tagstore.DIDivertSales)
	return v
}

func (m *Manager) debouncedShutdown(store *tagstore.Store, sp setpoints.Snapshot, ann *alarm.Annunciator, id string, predicate bool, debounceScans int, demands *[]Request) {
	trueRun, falseRun := m.debounce[id].Update(predicate)
	if trueRun >= debounceScans {
		ann.Raise(id, alarm.Critical, alarm.ActionRequestShutdown)
		*demands = append(*demands, Request{Shutdown: true})
		return
	}
	if falseRun >= debounceScans {
		ann.Clear(id)
	}
}

func (m *Manager) debouncedDivert(ann *alarm.Annunciator, id string, predicate bool, debounceScans int, demands *[]Request) {
	trueRun, falseRun := m.debounce[id].Update(predicate)
	if trueRun >= debounceScans {
		ann.Raise(id, alarm.Critical, alarm.ActionRequestDivert)
		*demands = append(*demands, Request{Divert: true})
		return
	}
	if falseRun >= debounceScans {
		ann.Clear(id)
	}
}

func (m *Manager) debouncedWarn(ann *alarm.Annunciator, id string, predicate bool, debounceScans int) {
	trueRun, falseRun := m.debounce[id].Update(predicate)
	if trueRun >= debounceScans {
		ann.Raise(id, alarm.Warn, alarm.ActionNone)
		return
	}
	if falseRun >= debounceScans {
		ann.Clear(id)
	}
}
