// Package observability — metrics.go
//
// Prometheus metrics for the LACT unit control daemon.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback only — no external exposure.
//
// Metric naming convention: lactd_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// Cardinality control:
//   - State labels use the string state name (7 values max).
//   - Alarm severity is a 3-value label (info, warn, critical).
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for lactd. It satisfies
// the controller.Metrics interface.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Scan executive ───────────────────────────────────────────────────

	// ScanDuration records the wall-clock time of each scan cycle.
	ScanDuration prometheus.Histogram

	// ScanOverrunsTotal counts scans whose computation exceeded the
	// configured scan period (spec §4.8 step 9).
	ScanOverrunsTotal prometheus.Counter

	// ─── Operating state ──────────────────────────────────────────────────

	// State is a 1 for the currently active state's label, 0 for the rest.
	// Labels: state (Idle, Startup, Running, Divert, Proving, Shutdown, EStop)
	State *prometheus.GaugeVec

	// AlarmsRaisedTotal counts alarm raises, by severity.
	AlarmsRaisedTotal *prometheus.CounterVec

	// ─── Batch / flow ─────────────────────────────────────────────────────

	GrossBarrels    prometheus.Gauge
	NetBarrels      prometheus.Gauge
	DivertedBarrels prometheus.Gauge

	// ─── Pump ─────────────────────────────────────────────────────────────

	PumpStartsInWindow prometheus.Gauge

	// ─── Proving ──────────────────────────────────────────────────────────

	// ProveResultsTotal counts completed proving runs, by outcome.
	// Labels: result (passed, failed)
	ProveResultsTotal *prometheus.CounterVec

	// ─── Storage ──────────────────────────────────────────────────────────

	StorageWriteLatency prometheus.Histogram

	// ─── Daemon ───────────────────────────────────────────────────────────

	UptimeSeconds prometheus.Gauge

	startTime time.Time
	stateNames []string
}

var stateNames = []string{"Idle", "Startup", "Running", "Divert", "Proving", "Shutdown", "EStop"}

// NewMetrics creates and registers all lactd Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:   reg,
		startTime:  time.Now(),
		stateNames: stateNames,

		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lactd",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of each scan cycle.",
			Buckets:   []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2},
		}),

		ScanOverrunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lactd",
			Subsystem: "scan",
			Name:      "overruns_total",
			Help:      "Total scans whose computation exceeded the configured scan period.",
		}),

		State: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lactd",
			Subsystem: "state",
			Name:      "current",
			Help:      "1 for the currently active operating state's label, 0 for the rest.",
		}, []string{"state"}),

		AlarmsRaisedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lactd",
			Subsystem: "alarm",
			Name:      "raised_total",
			Help:      "Total alarm raises, by severity.",
		}, []string{"severity"}),

		GrossBarrels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lactd",
			Subsystem: "batch",
			Name:      "gross_barrels",
			Help:      "Running gross barrels for the batch in progress.",
		}),

		NetBarrels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lactd",
			Subsystem: "batch",
			Name:      "net_barrels",
			Help:      "Running net (meter-factor- and CTL-corrected) barrels for the batch in progress.",
		}),

		DivertedBarrels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lactd",
			Subsystem: "batch",
			Name:      "diverted_barrels",
			Help:      "Running diverted barrels for the batch in progress, tracked separately from the sales ledger.",
		}),

		PumpStartsInWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lactd",
			Subsystem: "pump",
			Name:      "starts_in_window",
			Help:      "Pump starts counted in the current sliding 3600-second window.",
		}),

		ProveResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lactd",
			Subsystem: "proving",
			Name:      "results_total",
			Help:      "Total completed proving runs, by outcome.",
		}, []string{"result"}),

		StorageWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lactd",
			Subsystem: "storage",
			Name:      "write_latency_seconds",
			Help:      "BoltDB write transaction latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lactd",
			Subsystem: "daemon",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the daemon started.",
		}),
	}

	reg.MustRegister(
		m.ScanDuration,
		m.ScanOverrunsTotal,
		m.State,
		m.AlarmsRaisedTotal,
		m.GrossBarrels,
		m.NetBarrels,
		m.DivertedBarrels,
		m.PumpStartsInWindow,
		m.ProveResultsTotal,
		m.StorageWriteLatency,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	for _, s := range stateNames {
		m.State.WithLabelValues(s).Set(0)
	}

	return m
}

// ObserveScanDuration implements controller.Metrics.
func (m *Metrics) ObserveScanDuration(d time.Duration) { m.ScanDuration.Observe(d.Seconds()) }

// IncScanOverrun implements controller.Metrics.
func (m *Metrics) IncScanOverrun() { m.ScanOverrunsTotal.Inc() }

// SetState implements controller.Metrics.
func (m *Metrics) SetState(s string) {
	for _, name := range m.stateNames {
		if name == s {
			m.State.WithLabelValues(name).Set(1)
		} else {
			m.State.WithLabelValues(name).Set(0)
		}
	}
}

// IncAlarmRaised implements controller.Metrics.
func (m *Metrics) IncAlarmRaised(severity string) { m.AlarmsRaisedTotal.WithLabelValues(severity).Inc() }

// SetBatchTotals implements controller.Metrics.
func (m *Metrics) SetBatchTotals(gross, net, diverted float64) {
	m.GrossBarrels.Set(gross)
	m.NetBarrels.Set(net)
	m.DivertedBarrels.Set(diverted)
}

// SetPumpStartsInWindow implements controller.Metrics.
func (m *Metrics) SetPumpStartsInWindow(n int) { m.PumpStartsInWindow.Set(float64(n)) }

// IncProveResult implements controller.Metrics.
func (m *Metrics) IncProveResult(passed bool) {
	result := "failed"
	if passed {
		result = "passed"
	}
	m.ProveResultsTotal.WithLabelValues(result).Inc()
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given
// address. Blocks until ctx is cancelled or the server fails. Binds to
// addr (e.g., "127.0.0.1:9091") and serves GET /metrics and /healthz.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

// updateUptime periodically updates the UptimeSeconds gauge.
func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
