// Package setpoints holds the tunable configuration snapshot consumed by
// process modules and the Safety Manager.
package setpoints

import (
	"fmt"
	"sync/atomic"
)

// Snapshot is an immutable record of every recognized setpoint (spec §6).
// Modules resolve Current() once per scan so a whole scan observes one
// consistent set of values.
type Snapshot struct {
	BSWDivertPct               float64
	BSWDebounceSec             float64
	MeterKFactor               float64
	MeterFactor                float64
	APIThermalExpansionAlpha   float64
	TempBaseDegF               float64
	TempLoDegF                 float64
	TempHiDegF                 float64
	InletPressLoPSI            float64
	LoopPressHiPSI             float64
	StrainerDPHiPSI            float64
	BackpressureSalesPSI       float64
	BackpressureDivertPSI      float64
	SampleBarrelsPerGrab       float64
	GrabDurationMS             float64
	GrabVolumeML               float64
	PumpMaxStartsPerHour       int
	PumpLockoutSec             float64
	PumpStartTimeoutSec        float64
	DivertTravelTimeoutSec     float64
	ScanPeriodMS               float64
	ProveRuns                  int
	RepeatabilityTolerance     float64
	ProveCertifiedBarrels      float64
}

// Defaults returns the snapshot named by spec §6 defaults.
func Defaults() Snapshot {
	return Snapshot{
		BSWDivertPct:             1.0,
		BSWDebounceSec:           5,
		MeterKFactor:             100.0,
		MeterFactor:              1.0,
		APIThermalExpansionAlpha: 0.00045,
		TempBaseDegF:             60.0,
		TempLoDegF:               20.0,
		TempHiDegF:               150.0,
		InletPressLoPSI:          5.0,
		LoopPressHiPSI:           275.0,
		StrainerDPHiPSI:          25.0,
		BackpressureSalesPSI:     50.0,
		BackpressureDivertPSI:    50.0,
		SampleBarrelsPerGrab:     20.0,
		GrabDurationMS:           500,
		GrabVolumeML:             1.5,
		PumpMaxStartsPerHour:     6,
		PumpLockoutSec:           60,
		PumpStartTimeoutSec:      10,
		DivertTravelTimeoutSec:   5,
		ScanPeriodMS:             100,
		ProveRuns:                5,
		RepeatabilityTolerance:   0.0005,
		ProveCertifiedBarrels:    500.0,
	}
}

// InvalidSetpointError names the field and the violated domain.
type InvalidSetpointError struct {
	Field string
	Value float64
	Msg   string
}

func (e *InvalidSetpointError) Error() string {
	return fmt.Sprintf("setpoints: invalid %s=%v: %s", e.Field, e.Value, e.Msg)
}

type domain struct {
	lo, hi float64
}

func inDomain(name string, v float64, d domain) error {
	if v < d.lo || v > d.hi {
		return &InvalidSetpointError{Field: name, Value: v, Msg: fmt.Sprintf("must be in [%v, %v]", d.lo, d.hi)}
	}
	return nil
}

// Validate checks every field against its declared domain (spec §6),
// collecting the first violation. Returns nil if the snapshot is legal.
func Validate(s Snapshot) error {
	checks := []struct {
		name string
		v    float64
		d    domain
	}{
		{"bsw_divert_pct", s.BSWDivertPct, domain{0.1, 5.0}},
		{"bsw_debounce_sec", s.BSWDebounceSec, domain{0, 60}},
		{"meter_k_factor", s.MeterKFactor, domain{1.0, 10000.0}},
		{"meter_factor", s.MeterFactor, domain{0.9800, 1.0200}},
		{"api_thermal_expansion_alpha", s.APIThermalExpansionAlpha, domain{0.0003, 0.0006}},
		{"backpressure_sales_psi", s.BackpressureSalesPSI, domain{0, 150}},
		{"backpressure_divert_psi", s.BackpressureDivertPSI, domain{0, 150}},
		{"grab_duration_ms", s.GrabDurationMS, domain{1, 60000}},
		{"grab_volume_ml", s.GrabVolumeML, domain{0.01, 1000}},
		{"pump_lockout_sec", s.PumpLockoutSec, domain{0, 86400}},
		{"pump_start_timeout_sec", s.PumpStartTimeoutSec, domain{0, 3600}},
		{"divert_travel_timeout_sec", s.DivertTravelTimeoutSec, domain{0, 3600}},
		{"scan_period_ms", s.ScanPeriodMS, domain{1, 60000}},
		{"repeatability_tolerance", s.RepeatabilityTolerance, domain{0.00001, 0.05}},
		{"prove_certified_barrels", s.ProveCertifiedBarrels, domain{0.001, 1e9}},
	}
	for _, c := range checks {
		if err := inDomain(c.name, c.v, c.d); err != nil {
			return err
		}
	}
	if s.PumpMaxStartsPerHour < 1 || s.PumpMaxStartsPerHour > 1000 {
		return &InvalidSetpointError{Field: "pump_max_starts_per_hour", Value: float64(s.PumpMaxStartsPerHour), Msg: "must be in [1, 1000]"}
	}
	if s.ProveRuns < 2 || s.ProveRuns > 50 {
		return &InvalidSetpointError{Field: "prove_runs", Value: float64(s.ProveRuns), Msg: "must be in [2, 50]"}
	}
	if s.TempHiDegF <= s.TempLoDegF {
		return &InvalidSetpointError{Field: "temp_hi_deg_f", Value: s.TempHiDegF, Msg: "must exceed temp_lo_deg_f"}
	}
	return nil
}

// Store holds the live, atomically-swapped setpoints snapshot.
type Store struct {
	v atomic.Value // Snapshot
}

// NewStore returns a Store seeded with Defaults().
func NewStore() *Store {
	s := &Store{}
	s.v.Store(Defaults())
	return s
}

// Current returns the currently installed immutable snapshot.
func (s *Store) Current() Snapshot {
	return s.v.Load().(Snapshot)
}

// Apply validates patch in full against its own domain and, only if valid,
// atomically installs it as the new current snapshot. On failure the
// existing snapshot is left unchanged.
func (s *Store) Apply(patch Snapshot) error {
	if err := Validate(patch); err != nil {
		return err
	}
	s.v.Store(patch)
	return nil
}
