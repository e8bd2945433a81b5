// Package temperature implements the Temperature module: reads
// AI_METER_TEMP each scan, raises hi/lo alarms with hysteresis, and
// publishes the value Flow Measurement's CTL computation consumes (spec
// §4.7). Safety-critical debounced hi/lo alarming is owned by the Safety
// Manager (spec §4.5); this module's own hysteresis check is the
// non-safety "publish and annunciate" pass the spec groups Pressure and
// Temperature under together.
package temperature

import (
	"github.com/lactplc/skidcore/internal/alarm"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/tagstore"
)

const hysteresisFrac = 0.02

// Module tracks meter-temperature hi/lo alarm state.
type Module struct {
	activeHi bool
	activeLo bool
}

// New returns a zeroed temperature module.
func New() *Module { return &Module{} }

// Step reads AI_METER_TEMP and raises/clears hi/lo alarms with
// hysteresis against the configured limits.
func (m *Module) Step(store *tagstore.Store, sp setpoints.Snapshot, ann *alarm.Annunciator) error {
	v, _, _, err := store.ReadFloat(tagstore.AIMeterTemp)
	if err != nil {
		return err
	}
	span := tagstore.RangeMeterTemp.Hi - tagstore.RangeMeterTemp.Lo
	band := span * hysteresisFrac

	if m.activeHi {
		if v < sp.TempHiDegF-band {
			m.activeHi = false
			ann.Clear("METER_TEMP_HI")
		}
	} else if v > sp.TempHiDegF {
		m.activeHi = true
		ann.Raise("METER_TEMP_HI", alarm.Warn, alarm.ActionNone)
	}

	if m.activeLo {
		if v > sp.TempLoDegF+band {
			m.activeLo = false
			ann.Clear("METER_TEMP_LO")
		}
	} else if v < sp.TempLoDegF {
		m.activeLo = true
		ann.Raise("METER_TEMP_LO", alarm.Warn, alarm.ActionNone)
	}
	return nil
}
