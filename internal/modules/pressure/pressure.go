// Package pressure implements the Pressure module: reads AI pressure
// tags each scan and raises hi/lo alarms with hysteresis (spec §4.7).
package pressure

import (
	"github.com/lactplc/skidcore/internal/alarm"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/tagstore"
)

// hysteresisFrac is the default 2% of span hysteresis band (spec §4.7).
const hysteresisFrac = 0.02

// Point monitors one analog pressure tag against hi/lo limits with
// hysteresis.
type Point struct {
	Tag       string
	AlarmID   string
	Lo, Hi    float64
	rng       tagstore.Range
	activeHi  bool
	activeLo  bool
}

// NewPoint returns a monitored point over the tag's full declared range
// as the hysteresis span.
func NewPoint(tag, alarmID string, rng tagstore.Range, lo, hi float64) *Point {
	return &Point{Tag: tag, AlarmID: alarmID, Lo: lo, Hi: hi, rng: rng}
}

func (p *Point) step(store *tagstore.Store, ann *alarm.Annunciator) error {
	v, _, _, err := store.ReadFloat(p.Tag)
	if err != nil {
		return err
	}
	span := p.rng.Hi - p.rng.Lo
	band := span * hysteresisFrac

	if p.activeHi {
		if v < p.Hi-band {
			p.activeHi = false
			ann.Clear(p.AlarmID + "_HI")
		}
	} else if v > p.Hi {
		p.activeHi = true
		ann.Raise(p.AlarmID+"_HI", alarm.Warn, alarm.ActionNone)
	}

	if p.activeLo {
		if v > p.Lo+band {
			p.activeLo = false
			ann.Clear(p.AlarmID + "_LO")
		}
	} else if v < p.Lo {
		p.activeLo = true
		ann.Raise(p.AlarmID+"_LO", alarm.Warn, alarm.ActionNone)
	}
	return nil
}

// Module monitors every configured pressure point each scan.
type Module struct {
	inlet    *Point
	loop     *Point
	strainer *Point
}

// New returns a Module monitoring inlet, loop and strainer differential
// pressure.
func New() *Module {
	return &Module{
		inlet:    NewPoint(tagstore.AIInletPress, "INLET_PRESS", tagstore.RangeInletPress, 0, tagstore.RangeInletPress.Hi),
		loop:     NewPoint(tagstore.AILoopHiPress, "LOOP_PRESS", tagstore.RangeLoopHiPress, tagstore.RangeLoopHiPress.Lo, 0),
		strainer: NewPoint(tagstore.AIStrainerDP, "STRAINER_DP", tagstore.RangeStrainerDP, tagstore.RangeStrainerDP.Lo, 0),
	}
}

// Step evaluates all monitored pressure points. Limits are resolved
// fresh from the snapshot each scan so a SET takes effect immediately.
func (m *Module) Step(store *tagstore.Store, sp setpoints.Snapshot, ann *alarm.Annunciator) error {
	m.inlet.Lo = sp.InletPressLoPSI
	m.loop.Hi = sp.LoopPressHiPSI
	m.strainer.Hi = sp.StrainerDPHiPSI

	for _, p := range []*Point{m.inlet, m.loop, m.strainer} {
		if err := p.step(store, ann); err != nil {
			return err
		}
	}
	return nil
}
