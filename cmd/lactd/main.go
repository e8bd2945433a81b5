// Package main — cmd/lactd/main.go
//
// LACT unit control daemon entrypoint.
//
// Startup sequence:
//  1. Root check — abort if not running as root (Modbus privileged port,
//     operator socket ownership).
//  2. Load and validate config from /etc/lactd/config.yaml.
//  3. Initialise structured logger (zap, JSON format).
//  4. Open BoltDB storage.
//  5. Prune stale ledger entries.
//  6. Apply real-time hardening (mlockall, SCHED_FIFO) — best effort.
//  7. Open the field I/O port (Modbus TCP, or the in-memory simulator).
//  8. Start Prometheus metrics server (127.0.0.1:9091).
//  9. Assemble the Controller and start the scan loop.
// 10. Start the operator command console (Unix socket), if enabled.
// 11. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel root context (propagates to the scan loop, operator server,
//     metrics server).
//  2. Wait for the scan loop to finish its final safe-state scan (max 5s).
//  3. Close the field I/O port.
//  4. Close BoltDB.
//  5. Flush logger.
//  6. Exit 0.
//
// On field I/O open failure or config validation failure: exit 1
// immediately (no partial state).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lactplc/skidcore/internal/audit"
	"github.com/lactplc/skidcore/internal/config"
	"github.com/lactplc/skidcore/internal/controller"
	"github.com/lactplc/skidcore/internal/fieldbus"
	"github.com/lactplc/skidcore/internal/ioport"
	"github.com/lactplc/skidcore/internal/observability"
	"github.com/lactplc/skidcore/internal/operator"
	"github.com/lactplc/skidcore/internal/platform"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/simulator"
	"github.com/lactplc/skidcore/internal/storage"
	"github.com/lactplc/skidcore/internal/tagstore"
)

func main() {
	// ── Flags ────────────────────────────────────────────────────────────────
	configPath := flag.String("config", "/etc/lactd/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("lactd %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Root check ───────────────────────────────────────────────────
	if os.Getuid() != 0 {
		fmt.Fprintln(os.Stderr, "FATAL: lactd must run as root (UID 0)")
		os.Exit(1)
	}

	// ── Step 2: Load config ──────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 3: Initialise logger ─────────────────────────────────────────────
	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("lactd starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("skid_id", cfg.SkidID),
		zap.String("config", *configPath),
	)

	// ── Root context with cancellation ───────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 4: Open BoltDB ──────────────────────────────────────────────────
	db, err := storage.Open(cfg.Storage.DBPath, cfg.Storage.RetentionDays)
	if err != nil {
		log.Fatal("BoltDB open failed", zap.Error(err), zap.String("path", cfg.Storage.DBPath))
	}
	defer db.Close() //nolint:errcheck
	log.Info("BoltDB opened", zap.String("path", cfg.Storage.DBPath))

	// ── Step 5: Prune stale ledger entries ───────────────────────────────────
	pruned, err := db.PruneOldLedgerEntries()
	if err != nil {
		log.Warn("ledger pruning failed", zap.Error(err))
	} else {
		log.Info("ledger pruned", zap.Int("deleted", pruned))
	}

	// ── Step 6: Real-time hardening ──────────────────────────────────────────
	platform.Harden(cfg.Platform, log)

	// ── Step 7: Field I/O port ───────────────────────────────────────────────
	var io ioport.Port
	if cfg.Fieldbus.Simulated {
		io = simulator.New()
		log.Info("field I/O: running against in-memory simulator")
	} else {
		fbCtx, fbCancel := context.WithTimeout(ctx, cfg.Fieldbus.Timeout)
		port, err := fieldbus.New(fbCtx, cfg.Fieldbus.Addr, cfg.Fieldbus.UnitID, cfg.Fieldbus.Timeout)
		fbCancel()
		if err != nil {
			log.Fatal("fieldbus connect failed", zap.Error(err), zap.String("addr", cfg.Fieldbus.Addr))
		}
		io = port
		log.Info("field I/O: connected to Modbus TCP", zap.String("addr", cfg.Fieldbus.Addr))
	}
	defer io.Close() //nolint:errcheck

	// ── Audit ledger ──────────────────────────────────────────────────────────
	ledger, err := audit.NewLedger(db, cfg.SkidID, time.Now, log)
	if err != nil {
		log.Fatal("audit ledger resume failed", zap.Error(err))
	}

	// ── Step 8: Prometheus metrics ────────────────────────────────────────────
	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Tag Store and Setpoints ───────────────────────────────────────────────
	store := tagstore.New(nil)
	tagstore.DeclareLACT(store)

	spStore := setpoints.NewStore()
	defaults := setpoints.Defaults()
	defaults.ScanPeriodMS = float64(cfg.ScanPeriodMS)
	if err := spStore.Apply(defaults); err != nil {
		log.Fatal("startup setpoints invalid", zap.Error(err))
	}

	// ── Step 9: Controller / scan loop ───────────────────────────────────────
	ctrl, err := controller.New(controller.Config{
		Store:     store,
		Setpoints: spStore,
		IO:        io,
		Log:       log,
		Metrics:   metrics,
		Audit:     ledger,
		Now:       time.Now,
		IOTimeout: cfg.Fieldbus.Timeout,
	})
	if err != nil {
		log.Fatal("controller assembly failed", zap.Error(err))
	}

	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		if err := ctrl.Run(ctx); err != nil {
			log.Error("scan loop exited with error", zap.Error(err))
		}
	}()
	log.Info("scan loop started", zap.Int("scan_period_ms", cfg.ScanPeriodMS))

	// ── Step 10: Operator command console ────────────────────────────────────
	if cfg.Operator.Enabled {
		opSrv := operator.NewServer(cfg.Operator.SocketPath, ctrl, log)
		go func() {
			if err := opSrv.ListenAndServe(ctx); err != nil {
				log.Error("operator server error", zap.Error(err))
			}
		}()
		log.Info("operator console started", zap.String("socket", cfg.Operator.SocketPath))
	} else {
		log.Info("operator console disabled")
	}

	// ── Step 11: Wait for shutdown signal ─────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()

	shutdownTimer := time.NewTimer(5 * time.Second)
	defer shutdownTimer.Stop()
	select {
	case <-shutdownTimer.C:
		log.Warn("scan loop shutdown timeout — forcing exit")
	case <-scanDone:
		log.Info("scan loop stopped cleanly")
	}

	log.Info("lactd shutdown complete")
}

// buildLogger constructs a zap.Logger with the given level and format.
func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}
