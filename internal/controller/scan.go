package controller

import (
	"context"

	"go.uber.org/zap"

	"github.com/lactplc/skidcore/internal/alarm"
	"github.com/lactplc/skidcore/internal/safety"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/statemachine"
	"github.com/lactplc/skidcore/internal/tagstore"
)

// Scan executes one full scan cycle (spec §4.8, steps 1-8; step 9's
// sleep is the caller's concern in Run).
func (c *Controller) Scan(ctx context.Context) error {
	c.scanCount++
	sp := c.sp.Current()

	cmds := c.queue.Drain(c.drainPerScan)
	ev := c.applyCommands(cmds, sp)

	ioCtx, cancel := context.WithTimeout(ctx, c.ioTimeout)
	if err := c.io.ReadInputs(ioCtx, c.store); err != nil {
		cancel()
		c.log.Warn("read_inputs failed", zap.Error(err))
	} else {
		cancel()
	}

	prevDivertCmd, _, _, _ := c.store.ReadBool(tagstore.DODivertCmd)
	req := c.safetyMgr.Evaluate(c.store, sp, c.sm.Current(), c.ann, c.safetyInputs(prevDivertCmd))
	ev.RequestEStop = req.EStop
	ev.RequestShutdown = req.Shutdown
	ev.RequestDivert = req.Divert

	attemptsBefore := c.sm.IllegalAttempts
	c.applyStateMachine(sp, &ev)

	if c.sm.IllegalAttempts != attemptsBefore {
		c.ann.Raise("ILLEGAL_COMMAND", alarm.Info, alarm.ActionNone)
	} else {
		c.ann.Clear("ILLEGAL_COMMAND")
	}

	state := c.sm.Current()
	c.metrics.SetState(state.String())

	if err := c.runProcessModules(sp, state); err != nil {
		c.log.Error("process module failure", zap.Error(err))
	}

	c.recordNewAlarms()

	beacon, horn := c.ann.BeaconHorn()
	c.store.WriteBool(tagstore.DOAlarmBeacon, beacon, tagstore.Good)
	c.store.WriteBool(tagstore.DOAlarmHorn, horn, tagstore.Good)
	c.store.WriteBool(tagstore.DOStatusGreen, state == statemachine.Running, tagstore.Good)

	writeCtx, cancel2 := context.WithTimeout(ctx, c.ioTimeout)
	defer cancel2()
	if err := c.io.WriteOutputs(writeCtx, c.store); err != nil {
		c.log.Warn("write_outputs failed", zap.Error(err))
	}
	return nil
}

// safetyInputs gathers the cross-module values the Safety Manager needs
// beyond raw tags. BSWMean/Quality come from the *previous* scan's BS&W
// Monitor sample (this scan's own sample happens later, in step 6);
// this is the one-scan lag spec §4.8's fixed ordering implies and is
// safe because BS&W changes slowly relative to the scan period.
func (c *Controller) safetyInputs(prevDivertCmd bool) safety.Inputs {
	return safety.Inputs{
		BSWMean:       c.bswMod.Mean(),
		BSWQuality:    c.bswMod.Quality(),
		DivertCommand: prevDivertCmd,
	}
}

func (c *Controller) runProcessModules(sp setpoints.Snapshot, state statemachine.State) error {
	if err := c.bswMod.Step(c.store); err != nil {
		return err
	}
	pumpRunning, _, _, _ := c.store.ReadBool(tagstore.DIPumpRunning)
	if err := c.flowMod.Step(c.store, sp, state, pumpRunning); err != nil {
		return err
	}
	if err := c.pressMod.Step(c.store, sp, c.ann); err != nil {
		return err
	}
	if err := c.tempMod.Step(c.store, sp, c.ann); err != nil {
		return err
	}
	if err := c.sampMod.Step(c.store, sp, state); err != nil {
		return err
	}

	overload, _, _, _ := c.store.ReadBool(tagstore.DIPumpOverload)
	wantRunning := c.lastOutputs.PumpWantRunning
	if err := c.pumpMod.Step(c.store, sp, c.now(), wantRunning, overload); err != nil {
		return err
	}
	c.metrics.SetPumpStartsInWindow(c.pumpMod.StartsInWindow(c.now()))

	if state == statemachine.Proving {
		runDisplaced, _, _, _ := c.store.ReadBool(tagstore.DIAirElimFloat)
		complete, err := c.proveMod.Step(c.store, c.sp, runDisplaced)
		if err != nil {
			return err
		}
		if complete {
			rep := c.proveMod.LastReport()
			c.proveJustCompleted = rep.Passed
			c.proveJustAborted = !rep.Passed
			c.metrics.IncProveResult(rep.Passed)
			c.audit.Record("prove_complete", map[string]any{
				"passed":        rep.Passed,
				"repeatability":  rep.Repeatability,
				"candidate":     rep.CandidateFactor,
			})
		}
	}

	temp, _, _, _ := c.store.ReadFloat(tagstore.AIMeterTemp)
	c.batch.ObserveTemp(temp)

	gross, _, _, _ := c.store.ReadFloat(tagstore.VTGrossBBL)
	net, _, _, _ := c.store.ReadFloat(tagstore.VTNetBBL)
	diverted, _, _, _ := c.store.ReadFloat(tagstore.VTDivertedBBL)
	c.metrics.SetBatchTotals(gross, net, diverted)
	return nil
}

// applyStateMachine runs the Startup sequencer when in Startup, else
// feeds ev directly to the Machine, then materializes this scan's
// desired outputs.
func (c *Controller) applyStateMachine(sp setpoints.Snapshot, ev *statemachine.Event) {
	if c.sm.Current() == statemachine.Startup {
		divertConfirmed, _, _, _ := c.store.ReadBool(tagstore.DIDivertDivert)
		salesConfirmed, _, _, _ := c.store.ReadBool(tagstore.DIDivertSales)
		pumpRunning, _, _, _ := c.store.ReadBool(tagstore.DIPumpRunning)
		bswMean := c.bswMod.Mean()

		divertTimeoutScans := scansFor(sp.DivertTravelTimeoutSec, sp.ScanPeriodMS)
		pumpTimeoutScans := scansFor(sp.PumpStartTimeoutSec, sp.ScanPeriodMS)
		stabilizeScans := scansFor(5, sp.ScanPeriodMS)

		dec := c.seq.Step(divertConfirmed, salesConfirmed, pumpRunning, bswMean, sp.BSWDivertPct,
			divertTimeoutScans, pumpTimeoutScans, stabilizeScans)

		c.lastOutputs = statemachine.Outputs{DivertCmd: dec.DivertCmd, PumpWantRunning: dec.PumpWantRunning}
		c.applyOutputsPartial(c.lastOutputs)

		if dec.Complete {
			switch {
			case dec.Failed:
				ev.StartupFailed = true
			case dec.EnteredDivert:
				// The stabilize wait ended with BS&W still over the
				// divert threshold. Stay in Startup — with DO_DIVERT_CMD
				// already held at DIVERT by dec.DivertCmd above — until
				// the Safety Manager's own BSW-high debounce has
				// independently raised ev.RequestDivert, so the moment
				// this leaves Startup for Running, Outputs(Running, true)
				// keeps the divert valve commanded and DO_DIVERT_CMD
				// never swings to SALES first.
				if ev.RequestDivert {
					ev.StartupComplete = true
				}
			default:
				ev.StartupComplete = true
			}
		}
	}

	prev := c.sm.Current()
	next, transitioned := c.sm.Step(*ev)
	if transitioned {
		c.audit.Record("state_transition", map[string]any{"from": prev.String(), "to": next.String()})
		if next == statemachine.Startup {
			c.seq.Reset()
		}
	}

	if next != statemachine.Startup {
		out := c.sm.Outputs(next, ev.RequestDivert)
		c.lastOutputs = out
		c.applyOutputsPartial(out)
	}
}

func (c *Controller) applyOutputsPartial(out statemachine.Outputs) {
	c.store.WriteBool(tagstore.DODivertCmd, out.DivertCmd, tagstore.Good)
	if out.ForceSampleOff {
		c.store.WriteBool(tagstore.DOSampleSol, false, tagstore.Good)
		c.store.WriteBool(tagstore.DOSampleMixPump, false, tagstore.Good)
	}
	if out.ForceProverOff {
		c.store.WriteBool(tagstore.DOProverValveCmd, false, tagstore.Good)
	}
	if state := c.sm.Current(); state == statemachine.EStop {
		c.store.WriteBool(tagstore.DOAlarmBeacon, true, tagstore.Good)
		c.store.WriteBool(tagstore.DOAlarmHorn, true, tagstore.Good)
	}
}

// recordNewAlarms increments the alarm-raised counter for every alarm that
// transitioned active this scan (edge-triggered, matching the
// Annunciator's own Raise semantics) and records it to the audit ledger.
func (c *Controller) recordNewAlarms() {
	active := make(map[string]bool)
	for _, a := range c.ann.ListActive() {
		active[a.ID] = true
		if !c.activeAlarms[a.ID] {
			sev := "info"
			switch a.Severity {
			case alarm.Warn:
				sev = "warn"
			case alarm.Critical:
				sev = "critical"
			}
			c.metrics.IncAlarmRaised(sev)
			c.audit.Record("alarm_raised", map[string]any{"id": a.ID, "severity": sev})
		}
	}
	c.activeAlarms = active
}

func scansFor(seconds, scanPeriodMS float64) int {
	if scanPeriodMS <= 0 {
		return 1
	}
	n := int(seconds*1000.0/scanPeriodMS + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}
