package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestValidateCollectsEveryViolation(t *testing.T) {
	cfg := Defaults()
	cfg.SchemaVersion = "2"
	cfg.SkidID = ""
	cfg.ScanPeriodMS = 0
	cfg.Observability.LogLevel = "verbose"

	err := Validate(&cfg)
	if err == nil {
		t.Fatalf("expected a validation error")
	}
	msg := err.Error()
	for _, want := range []string{"schema_version", "skid_id", "scan_period_ms", "log_level"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected validation error to mention %q, got: %s", want, msg)
		}
	}
}

func TestValidateRequiresFieldbusAddrUnlessSimulated(t *testing.T) {
	cfg := Defaults()
	cfg.Fieldbus.Addr = ""
	if err := Validate(&cfg); err == nil {
		t.Fatalf("expected an error for empty fieldbus.addr with simulated=false")
	}
	cfg.Fieldbus.Simulated = true
	if err := Validate(&cfg); err != nil {
		t.Fatalf("expected simulated mode to tolerate an empty fieldbus.addr, got %v", err)
	}
}

func TestValidateRejectsRealtimeWithoutPriority(t *testing.T) {
	cfg := Defaults()
	cfg.Platform.Realtime = true
	cfg.Platform.Priority = 0
	if err := Validate(&cfg); err == nil {
		t.Fatalf("expected an error for realtime=true with an out-of-range priority")
	}
}

func TestLoadReadsAndMergesOverYAMLDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "schema_version: \"1\"\nskid_id: skid-07\nscan_period_ms: 250\nfieldbus:\n  addr: 10.0.0.5:502\n  unit_id: 3\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SkidID != "skid-07" || cfg.ScanPeriodMS != 250 {
		t.Fatalf("expected file values to override defaults, got %+v", cfg)
	}
	if cfg.Fieldbus.UnitID != 3 {
		t.Fatalf("expected nested fieldbus.unit_id from file, got %d", cfg.Fieldbus.UnitID)
	}
	if cfg.Storage.RetentionDays != 365 {
		t.Fatalf("expected storage.retention_days to keep its default, got %d", cfg.Storage.RetentionDays)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("schema_version: \"9\"\n"), 0o644); err != nil {
		t.Fatalf("write test config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected Load to reject an invalid schema_version")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
