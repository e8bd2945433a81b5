package controller

import (
	"fmt"

	"github.com/lactplc/skidcore/internal/cmdqueue"
	"github.com/lactplc/skidcore/internal/safety"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/statemachine"
	"github.com/lactplc/skidcore/internal/tagstore"
)

// applyCommands folds this scan's drained operator commands into a
// statemachine.Event and handles the commands the state machine itself
// doesn't consume (SET, CLOSE_BATCH, QUERY, DUMP) synchronously, replying
// on each command's channel if present.
func (c *Controller) applyCommands(cmds []cmdqueue.Command, sp setpoints.Snapshot) statemachine.Event {
	var ev statemachine.Event

	pumpStopped, _, _, _ := c.store.ReadBool(tagstore.DIPumpRunning)
	ev.PumpStoppedOK = !pumpStopped
	estopLine, _, _, _ := c.store.ReadBool(tagstore.DIEStop)
	ev.EStopCleared = estopLine

	ev.ProveComplete = c.proveJustCompleted
	ev.ProveAborted = c.proveJustAborted
	c.proveJustCompleted = false
	c.proveJustAborted = false

	for _, cmd := range cmds {
		switch cmd.Kind {
		case cmdqueue.Start:
			ev.CmdStart = true
			c.reply(cmd, cmdqueue.Result{OK: true})
		case cmdqueue.Stop:
			ev.CmdStop = true
			c.reply(cmd, cmdqueue.Result{OK: true})
		case cmdqueue.Prove:
			ev.CmdProve = true
			c.reply(cmd, cmdqueue.Result{OK: true})
		case cmdqueue.Reset:
			ev.CmdReset = true
			for _, id := range safety.LatchedAlarmIDs {
				c.ann.Reset(id)
			}
			c.reply(cmd, cmdqueue.Result{OK: true})
		case cmdqueue.Set:
			c.handleSet(cmd)
		case cmdqueue.CloseBatch:
			c.handleCloseBatch(cmd)
		case cmdqueue.Query:
			c.handleQuery(cmd)
		case cmdqueue.Dump:
			c.handleDump(cmd)
		}
	}

	if ev.CmdProve && c.sm.Current() == statemachine.Running {
		c.proveMod.Start()
	}

	return ev
}

func (c *Controller) reply(cmd cmdqueue.Command, res cmdqueue.Result) {
	if cmd.Reply == nil {
		return
	}
	select {
	case cmd.Reply <- res:
	default:
	}
}

func (c *Controller) handleSet(cmd cmdqueue.Command) {
	patch := c.sp.Current()
	if err := applySetpointField(&patch, cmd.SetName, cmd.SetValue); err != nil {
		c.reply(cmd, cmdqueue.Result{OK: false, Message: err.Error()})
		return
	}
	if err := c.sp.Apply(patch); err != nil {
		c.reply(cmd, cmdqueue.Result{OK: false, Message: err.Error()})
		return
	}
	c.reply(cmd, cmdqueue.Result{OK: true})
}

func (c *Controller) handleCloseBatch(cmd cmdqueue.Command) {
	gross, _, _, _ := c.store.ReadFloat(tagstore.VTGrossBBL)
	net, _, _, _ := c.store.ReadFloat(tagstore.VTNetBBL)
	diverted, _, _, _ := c.store.ReadFloat(tagstore.VTDivertedBBL)
	volML, _, _, _ := c.store.ReadFloat(tagstore.VTSampleVolumeML)

	report := BatchReport{
		ClosedAt:    c.now(),
		StartedAt:   c.batch.StartedAt,
		GrossBBL:    gross,
		NetBBL:      net,
		DivertedBBL: diverted,
		AvgTempF:    c.batch.AverageTemp(),
		MeterFactor: c.sp.Current().MeterFactor,
		SampleVolML: volML,
	}
	c.audit.Record("batch_closed", map[string]any{
		"gross_bbl": report.GrossBBL, "net_bbl": report.NetBBL,
		"diverted_bbl": report.DivertedBBL, "avg_temp_f": report.AvgTempF,
		"meter_factor": report.MeterFactor, "sample_vol_ml": report.SampleVolML,
	})

	c.store.WriteFloat(tagstore.VTGrossBBL, 0, tagstore.Good)
	c.store.WriteFloat(tagstore.VTNetBBL, 0, tagstore.Good)
	c.store.WriteFloat(tagstore.VTDivertedBBL, 0, tagstore.Good)
	c.store.WriteFloat(tagstore.VTSampleGrabs, 0, tagstore.Good)
	c.store.WriteFloat(tagstore.VTSampleVolumeML, 0, tagstore.Good)
	c.batch = NewBatch(c.now())

	c.lastBatchReport = &report
	c.reply(cmd, cmdqueue.Result{OK: true})
}

func (c *Controller) handleQuery(cmd cmdqueue.Command) {
	if cmd.QueryTag != "" {
		snaps := c.store.Snapshot()
		for _, s := range snaps {
			if s.Name == cmd.QueryTag {
				c.reply(cmd, cmdqueue.Result{OK: true, Tags: []cmdqueue.TagValue{tagValueOf(s)}})
				return
			}
		}
		c.reply(cmd, cmdqueue.Result{OK: false, Message: "unknown tag"})
		return
	}
	snaps := c.store.Snapshot()
	out := make([]cmdqueue.TagValue, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, tagValueOf(s))
	}
	c.reply(cmd, cmdqueue.Result{OK: true, Tags: out})
}

func (c *Controller) handleDump(cmd cmdqueue.Command) {
	var ids []string
	for _, a := range c.ann.List() {
		ids = append(ids, a.ID)
	}
	c.reply(cmd, cmdqueue.Result{OK: true, Alarms: ids})
}

func tagValueOf(s tagstore.TagSnapshot) cmdqueue.TagValue {
	switch s.Kind {
	case tagstore.DI, tagstore.DO:
		return cmdqueue.TagValue{Name: s.Name, Value: fmt.Sprintf("%v", s.Bool)}
	case tagstore.PI:
		return cmdqueue.TagValue{Name: s.Name, Value: fmt.Sprintf("%d", s.Pulse)}
	default:
		return cmdqueue.TagValue{Name: s.Name, Value: fmt.Sprintf("%v", s.Float)}
	}
}
