package setpoints

import "testing"

func TestDefaultsValidate(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Defaults() should validate, got %v", err)
	}
}

func TestValidateRejectsOutOfDomain(t *testing.T) {
	s := Defaults()
	s.BSWDivertPct = 0.01 // below 0.1 floor
	err := Validate(s)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	ise, ok := err.(*InvalidSetpointError)
	if !ok {
		t.Fatalf("expected *InvalidSetpointError, got %T", err)
	}
	if ise.Field != "bsw_divert_pct" {
		t.Errorf("expected field bsw_divert_pct, got %s", ise.Field)
	}
}

func TestValidateRejectsInvertedTempBand(t *testing.T) {
	s := Defaults()
	s.TempHiDegF = s.TempLoDegF - 1
	if err := Validate(s); err == nil {
		t.Fatalf("expected error for temp_hi <= temp_lo")
	}
}

func TestStoreApplyRejectsInvalidPatchLeavesCurrentUnchanged(t *testing.T) {
	store := NewStore()
	before := store.Current()

	bad := before
	bad.ProveRuns = 1 // below floor of 2
	if err := store.Apply(bad); err == nil {
		t.Fatalf("expected Apply to reject invalid patch")
	}

	after := store.Current()
	if after != before {
		t.Fatalf("Current() changed after rejected Apply")
	}
}

func TestStoreApplyInstallsValidPatch(t *testing.T) {
	store := NewStore()
	patch := store.Current()
	patch.MeterFactor = 1.0050
	if err := store.Apply(patch); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := store.Current().MeterFactor; got != 1.0050 {
		t.Errorf("expected MeterFactor 1.0050, got %v", got)
	}
}
