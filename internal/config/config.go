// Package config provides configuration loading and validation for the
// LACT unit control daemon.
//
// Configuration file: /etc/lactd/config.yaml (default)
// Schema version: 1
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (scan period, fieldbus timeout, retention,
//     real-time priority).
//   - Addresses and paths are checked only for being non-empty; their
//     format and absoluteness are not checked.
//   - Invalid config on startup: the daemon refuses to start (fatal error).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the Makefile via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for lactd. Tunables that the
// Setpoints Manager owns at runtime (bsw_divert_pct, meter_k_factor, scan
// period, ...) are NOT here — this struct covers only what is fixed for the
// life of the process: how to reach the field, where to persist state, and
// how to expose diagnostics.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// SkidID identifies this unit in ledger entries and batch reports.
	// Default: hostname.
	SkidID string `yaml:"skid_id"`

	// ScanPeriodMS is the daemon's startup scan period, before any operator
	// SET scan_period_ms command. Default: 100.
	ScanPeriodMS int `yaml:"scan_period_ms"`

	Fieldbus      FieldbusConfig      `yaml:"fieldbus"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
	Operator      OperatorConfig      `yaml:"operator"`
	Platform      PlatformConfig      `yaml:"platform"`
}

// FieldbusConfig configures the Modbus TCP connection to the skid's field
// I/O (spec §6 register map).
type FieldbusConfig struct {
	// Addr is the Modbus TCP endpoint, host:port. Default: 127.0.0.1:502.
	Addr string `yaml:"addr"`

	// UnitID is the Modbus slave/unit identifier. Default: 1.
	UnitID uint8 `yaml:"unit_id"`

	// Timeout bounds each ReadInputs/WriteOutputs round trip. Exceeding it
	// fails that scan's I/O without blocking the scan thread past the
	// scan period. Default: 50ms.
	Timeout time.Duration `yaml:"timeout"`

	// Simulated runs against the in-memory I/O double instead of opening a
	// Modbus TCP connection. Default: false.
	Simulated bool `yaml:"simulated"`
}

// StorageConfig holds BoltDB persistence parameters.
type StorageConfig struct {
	// DBPath is the absolute path to the BoltDB file holding the audit
	// ledger, batch reports and proving reports.
	// Default: /var/lib/lactd/lactd.db.
	DBPath string `yaml:"db_path"`

	// RetentionDays bounds how long closed batch/proving records are kept
	// before compaction. Default: 365 (custody records, not telemetry).
	RetentionDays int `yaml:"retention_days"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`
}

// OperatorConfig holds the operator command console parameters. Overrides
// allow a privileged console user to issue START/STOP/PROVE/RESET/SET/
// CLOSE_BATCH/QUERY/DUMP without restarting the daemon.
type OperatorConfig struct {
	// SocketPath is the Unix domain socket path the console listens on.
	// Permissions: 0600, owned by root. Default: /run/lactd/operator.sock.
	SocketPath string `yaml:"socket_path"`

	// Enabled controls whether the operator socket is active.
	// Default: true.
	Enabled bool `yaml:"enabled"`
}

// PlatformConfig holds real-time scheduling hardening parameters for the
// scan thread (best-effort; failures here are logged, never fatal).
type PlatformConfig struct {
	// Realtime enables SCHED_FIFO + mlockall hardening. Default: false
	// (requires CAP_SYS_NICE/CAP_IPC_LOCK; off by default for dev boxes).
	Realtime bool `yaml:"realtime"`

	// Priority is the SCHED_FIFO priority used when Realtime is true.
	// Default: 80.
	Priority int `yaml:"priority"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		SkidID:        hostname,
		ScanPeriodMS:  100,
		Fieldbus: FieldbusConfig{
			Addr:    "127.0.0.1:502",
			UnitID:  1,
			Timeout: 50 * time.Millisecond,
		},
		Storage: StorageConfig{
			DBPath:        DefaultDBPath,
			RetentionDays: 365,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Operator: OperatorConfig{
			Enabled:    true,
			SocketPath: "/run/lactd/operator.sock",
		},
		Platform: PlatformConfig{
			Realtime: false,
			Priority: 80,
		},
	}
}

// DefaultDBPath mirrors the storage package constant for use in config
// defaults.
const DefaultDBPath = "/var/lib/lactd/lactd.db"

// Load reads and validates a config file from the given path. Returns the
// merged config (defaults overridden by file values). Returns an error if
// the file cannot be read, parsed, or validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness, collecting every
// violation found rather than failing on the first.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.SkidID == "" {
		errs = append(errs, "skid_id must not be empty")
	}
	if cfg.ScanPeriodMS < 1 || cfg.ScanPeriodMS > 60000 {
		errs = append(errs, fmt.Sprintf("scan_period_ms must be in [1, 60000], got %d", cfg.ScanPeriodMS))
	}
	if !cfg.Fieldbus.Simulated && cfg.Fieldbus.Addr == "" {
		errs = append(errs, "fieldbus.addr must not be empty unless fieldbus.simulated is true")
	}
	if cfg.Fieldbus.Timeout < time.Millisecond {
		errs = append(errs, fmt.Sprintf("fieldbus.timeout must be >= 1ms, got %s", cfg.Fieldbus.Timeout))
	}
	if cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if cfg.Storage.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("storage.retention_days must be >= 1, got %d", cfg.Storage.RetentionDays))
	}
	switch cfg.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_level must be one of debug|info|warn|error, got %q", cfg.Observability.LogLevel))
	}
	switch cfg.Observability.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("observability.log_format must be one of json|console, got %q", cfg.Observability.LogFormat))
	}
	if cfg.Operator.Enabled && cfg.Operator.SocketPath == "" {
		errs = append(errs, "operator.socket_path must not be empty when operator.enabled is true")
	}
	if cfg.Platform.Realtime && (cfg.Platform.Priority < 1 || cfg.Platform.Priority > 99) {
		errs = append(errs, fmt.Sprintf("platform.priority must be in [1, 99], got %d", cfg.Platform.Priority))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
