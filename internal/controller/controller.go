// Package controller implements the Controller (Scan Executive): the
// fixed-cadence scan loop that orchestrates every other component (spec
// §4.8).
package controller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lactplc/skidcore/internal/alarm"
	"github.com/lactplc/skidcore/internal/cmdqueue"
	bswmodule "github.com/lactplc/skidcore/internal/modules/bsw"
	"github.com/lactplc/skidcore/internal/modules/flow"
	"github.com/lactplc/skidcore/internal/modules/pressure"
	"github.com/lactplc/skidcore/internal/modules/proving"
	"github.com/lactplc/skidcore/internal/modules/pump"
	"github.com/lactplc/skidcore/internal/modules/sampler"
	"github.com/lactplc/skidcore/internal/modules/temperature"
	"github.com/lactplc/skidcore/internal/ioport"
	"github.com/lactplc/skidcore/internal/safety"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/statemachine"
	"github.com/lactplc/skidcore/internal/tagstore"
)

// Metrics is the narrow surface the Controller drives; the Observability
// collaborator implements it.
type Metrics interface {
	ObserveScanDuration(d time.Duration)
	IncScanOverrun()
	SetState(s string)
	IncAlarmRaised(severity string)
	SetBatchTotals(gross, net, diverted float64)
	SetPumpStartsInWindow(n int)
	IncProveResult(passed bool)
}

// AuditSink is the narrow surface the Controller writes safety/state
// decisions to; the hash-chained ledger collaborator implements it.
type AuditSink interface {
	Record(kind string, payload map[string]any) error
}

type noopMetrics struct{}

func (noopMetrics) ObserveScanDuration(time.Duration)    {}
func (noopMetrics) IncScanOverrun()                      {}
func (noopMetrics) SetState(string)                      {}
func (noopMetrics) IncAlarmRaised(string)                {}
func (noopMetrics) SetBatchTotals(float64, float64, float64) {}
func (noopMetrics) SetPumpStartsInWindow(int)            {}
func (noopMetrics) IncProveResult(bool)                  {}

type noopAudit struct{}

func (noopAudit) Record(string, map[string]any) error { return nil }

// Config bundles the Controller's fixed-at-construction dependencies.
type Config struct {
	Store    *tagstore.Store
	Setpoints *setpoints.Store
	IO       ioport.Port
	Log      *zap.Logger
	Metrics  Metrics
	Audit    AuditSink
	Now      func() time.Time
	CommandQueueCapacity int
	DrainPerScan         int
	IOTimeout            time.Duration
}

// Controller owns the scan loop and every safety/control collaborator.
type Controller struct {
	store *tagstore.Store
	sp    *setpoints.Store
	io    ioport.Port
	log   *zap.Logger
	metrics Metrics
	audit   AuditSink
	now     func() time.Time

	queue        *cmdqueue.Queue
	drainPerScan int
	ioTimeout    time.Duration

	ann      *alarm.Annunciator
	safetyMgr *safety.Manager
	sm        *statemachine.Machine
	seq       *statemachine.Sequencer

	bswMod   *bswmodule.Module
	flowMod  *flow.Module
	pressMod *pressure.Module
	tempMod  *temperature.Module
	sampMod  *sampler.Module
	pumpMod  *pump.Module
	proveMod *proving.Module

	batch *BatchTotals

	scanCount       int
	lastOutputs     statemachine.Outputs
	lastBatchReport *BatchReport
	activeAlarms    map[string]bool

	// proveJustCompleted/proveJustAborted latch the previous scan's
	// Proving module outcome for applyCommands to consume as this scan's
	// ProveComplete/ProveAborted event: the module completes in step 6
	// (runProcessModules), one step after the State Machine (step 5) has
	// already applied this scan's event, so the transition is taken on
	// the following scan.
	proveJustCompleted bool
	proveJustAborted   bool
}

// New assembles a Controller from cfg, declaring the full tag namespace
// and wiring every process module. It does not start the scan loop.
func New(cfg Config) (*Controller, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Audit == nil {
		cfg.Audit = noopAudit{}
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.CommandQueueCapacity == 0 {
		cfg.CommandQueueCapacity = 64
	}
	if cfg.DrainPerScan == 0 {
		cfg.DrainPerScan = 8
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = 50 * time.Millisecond
	}

	flowMod, err := flow.New("")
	if err != nil {
		return nil, fmt.Errorf("controller: flow module: %w", err)
	}

	c := &Controller{
		store: cfg.Store,
		sp:    cfg.Setpoints,
		io:    cfg.IO,
		log:   cfg.Log,
		metrics: cfg.Metrics,
		audit:   cfg.Audit,
		now:     cfg.Now,

		queue:        cmdqueue.New(cfg.CommandQueueCapacity),
		drainPerScan: cfg.DrainPerScan,
		ioTimeout:    cfg.IOTimeout,

		ann:       alarm.New(cfg.Now),
		safetyMgr: safety.NewManager(),
		sm:        statemachine.New(cfg.Now),
		seq:       statemachine.NewSequencer(),

		bswMod:   bswmodule.New(),
		flowMod:  flowMod,
		pressMod: pressure.New(),
		tempMod:  temperature.New(),
		sampMod:  sampler.New(),
		pumpMod:  pump.New(),
		proveMod: proving.New(),

		batch:        NewBatch(cfg.Now()),
		activeAlarms: make(map[string]bool),
	}
	return c, nil
}

// State returns the current operating state.
func (c *Controller) State() statemachine.State { return c.sm.Current() }

// Alarms returns every currently active alarm.
func (c *Controller) Alarms() []alarm.Alarm { return c.ann.ListActive() }

// LastBatchReport returns the most recently closed batch report, or nil
// if no batch has been closed yet.
func (c *Controller) LastBatchReport() *BatchReport { return c.lastBatchReport }

// Enqueue submits an operator command onto the bounded command queue for
// the next scan to drain; it never performs logic on the calling thread
// and never blocks (spec §4.8: drop-on-full).
func (c *Controller) Enqueue(cmd cmdqueue.Command) bool { return c.queue.Enqueue(cmd) }

// Start, Stop, Prove and Reset enqueue the corresponding operator command.
func (c *Controller) Start() bool { return c.Enqueue(cmdqueue.Command{Kind: cmdqueue.Start}) }
func (c *Controller) Stop() bool  { return c.Enqueue(cmdqueue.Command{Kind: cmdqueue.Stop}) }
func (c *Controller) Prove() bool { return c.Enqueue(cmdqueue.Command{Kind: cmdqueue.Prove}) }
func (c *Controller) Reset() bool { return c.Enqueue(cmdqueue.Command{Kind: cmdqueue.Reset}) }

// Set enqueues a setpoint change, replying on the returned channel once
// the scan thread has validated and applied (or rejected) it.
func (c *Controller) Set(name string, value float64) <-chan cmdqueue.Result {
	reply := make(chan cmdqueue.Result, 1)
	if !c.Enqueue(cmdqueue.Command{Kind: cmdqueue.Set, SetName: name, SetValue: value, Reply: reply}) {
		reply <- cmdqueue.Result{OK: false, Message: "command queue full"}
	}
	return reply
}

// CloseBatch enqueues a batch close, replying once the report has been
// persisted and the running totals reset.
func (c *Controller) CloseBatch() <-chan cmdqueue.Result {
	reply := make(chan cmdqueue.Result, 1)
	if !c.Enqueue(cmdqueue.Command{Kind: cmdqueue.CloseBatch, Reply: reply}) {
		reply <- cmdqueue.Result{OK: false, Message: "command queue full"}
	}
	return reply
}

// Query enqueues a tag read; tag == "" returns every tag.
func (c *Controller) Query(tag string) <-chan cmdqueue.Result {
	reply := make(chan cmdqueue.Result, 1)
	if !c.Enqueue(cmdqueue.Command{Kind: cmdqueue.Query, QueryTag: tag, Reply: reply}) {
		reply <- cmdqueue.Result{OK: false, Message: "command queue full"}
	}
	return reply
}

// Dump enqueues an alarm-list dump.
func (c *Controller) Dump() <-chan cmdqueue.Result {
	reply := make(chan cmdqueue.Result, 1)
	if !c.Enqueue(cmdqueue.Command{Kind: cmdqueue.Dump, Reply: reply}) {
		reply <- cmdqueue.Result{OK: false, Message: "command queue full"}
	}
	return reply
}

// Run executes the scan loop at the configured scan period until ctx is
// cancelled, then drives a final safe-state scan before returning (spec
// §5: finish in-flight scan, drive outputs to Idle, write once more).
func (c *Controller) Run(ctx context.Context) error {
	period := time.Duration(c.sp.Current().ScanPeriodMS) * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.shutdownScan()
		default:
		}

		t0 := c.now()
		if err := c.Scan(ctx); err != nil {
			c.log.Error("scan failed", zap.Error(err))
		}
		elapsed := c.now().Sub(t0)
		c.metrics.ObserveScanDuration(elapsed)

		period = time.Duration(c.sp.Current().ScanPeriodMS) * time.Millisecond
		if elapsed > period {
			c.metrics.IncScanOverrun()
			c.log.Warn("scan overrun", zap.Duration("elapsed", elapsed), zap.Duration("period", period))
			ticker.Reset(period)
			continue
		}

		select {
		case <-ctx.Done():
			return c.shutdownScan()
		case <-ticker.C:
		}
	}
}

func (c *Controller) shutdownScan() error {
	c.sm.Step(statemachine.Event{RequestShutdown: true})
	out := c.sm.Outputs(statemachine.Idle, false)
	c.applyOutputs(out)
	c.store.WriteBool(tagstore.DOPumpStart, out.PumpWantRunning, tagstore.Good)
	ctx, cancel := context.WithTimeout(context.Background(), c.ioTimeout)
	defer cancel()
	return c.io.WriteOutputs(ctx, c.store)
}

func (c *Controller) applyOutputs(out statemachine.Outputs) {
	c.store.WriteBool(tagstore.DODivertCmd, out.DivertCmd, tagstore.Good)
	if out.ForceSampleOff {
		c.store.WriteBool(tagstore.DOSampleSol, false, tagstore.Good)
		c.store.WriteBool(tagstore.DOSampleMixPump, false, tagstore.Good)
	}
	if out.ForceProverOff {
		c.store.WriteBool(tagstore.DOProverValveCmd, false, tagstore.Good)
	}
	if out.Beacon {
		c.store.WriteBool(tagstore.DOAlarmBeacon, true, tagstore.Good)
	}
	if out.Horn {
		c.store.WriteBool(tagstore.DOAlarmHorn, true, tagstore.Good)
	}
}
