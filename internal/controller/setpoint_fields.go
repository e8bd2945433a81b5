package controller

import (
	"fmt"

	"github.com/lactplc/skidcore/internal/setpoints"
)

// applySetpointField writes value into the named field of patch. Unknown
// names are rejected before Validate ever runs.
func applySetpointField(patch *setpoints.Snapshot, name string, value float64) error {
	switch name {
	case "bsw_divert_pct":
		patch.BSWDivertPct = value
	case "bsw_debounce_sec":
		patch.BSWDebounceSec = value
	case "meter_k_factor":
		patch.MeterKFactor = value
	case "meter_factor":
		patch.MeterFactor = value
	case "api_thermal_expansion_alpha":
		patch.APIThermalExpansionAlpha = value
	case "temp_base_deg_f":
		patch.TempBaseDegF = value
	case "temp_lo_deg_f":
		patch.TempLoDegF = value
	case "temp_hi_deg_f":
		patch.TempHiDegF = value
	case "inlet_press_lo_psi":
		patch.InletPressLoPSI = value
	case "loop_press_hi_psi":
		patch.LoopPressHiPSI = value
	case "strainer_dp_hi_psi":
		patch.StrainerDPHiPSI = value
	case "backpressure_sales_psi":
		patch.BackpressureSalesPSI = value
	case "backpressure_divert_psi":
		patch.BackpressureDivertPSI = value
	case "sample_barrels_per_grab":
		patch.SampleBarrelsPerGrab = value
	case "grab_duration_ms":
		patch.GrabDurationMS = value
	case "grab_volume_ml":
		patch.GrabVolumeML = value
	case "pump_max_starts_per_hour":
		patch.PumpMaxStartsPerHour = int(value)
	case "pump_lockout_sec":
		patch.PumpLockoutSec = value
	case "pump_start_timeout_sec":
		patch.PumpStartTimeoutSec = value
	case "divert_travel_timeout_sec":
		patch.DivertTravelTimeoutSec = value
	case "scan_period_ms":
		patch.ScanPeriodMS = value
	case "prove_runs":
		patch.ProveRuns = int(value)
	case "repeatability_tolerance":
		patch.RepeatabilityTolerance = value
	case "prove_certified_barrels":
		patch.ProveCertifiedBarrels = value
	default:
		return fmt.Errorf("setpoints: unknown field %q", name)
	}
	return nil
}
