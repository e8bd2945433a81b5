// Package main — cmd/lact-sim/main.go
//
// LACT scenario runner.
//
// Drives the Controller against the in-memory simulator I/O port through
// the seven end-to-end scenarios (S1-S7), asserting the expected outcome
// of each and reporting PASS/FAIL per scenario plus a final exit code.
// Every scenario runs from a fresh Controller in Idle with default
// setpoints, on a frozen monotonic clock, so repeated runs are
// bit-reproducible (the scan determinism invariant this tool exists to
// exercise).
//
// Usage:
//
//	lact-sim [-scenario S1]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lactplc/skidcore/internal/controller"
	"github.com/lactplc/skidcore/internal/setpoints"
	"github.com/lactplc/skidcore/internal/simulator"
	"github.com/lactplc/skidcore/internal/statemachine"
	"github.com/lactplc/skidcore/internal/tagstore"
)

type harness struct {
	store *tagstore.Store
	sp    *setpoints.Store
	sim   *simulator.Port
	ctrl  *controller.Controller
	clock *fakeClock
	ctx   context.Context
}

// fakeClock is a monotonic, manually-advanced clock: no wall-clock read
// anywhere in the scan path, so scenario runs are reproducible bit for
// bit (spec §8 invariant 8).
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newHarness() *harness {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	store := tagstore.New(clock.Now)
	tagstore.DeclareLACT(store)
	sp := setpoints.NewStore()
	sim := simulator.New()

	ctrl, err := controller.New(controller.Config{
		Store:     store,
		Setpoints: sp,
		IO:        sim,
		Now:       clock.Now,
	})
	if err != nil {
		panic(err)
	}

	return &harness{store: store, sp: sp, sim: sim, ctrl: ctrl, clock: clock, ctx: context.Background()}
}

// runScans advances the scan loop n times, stepping the fake clock by
// one scan period per iteration.
func (h *harness) runScans(n int) {
	period := time.Duration(h.sp.Current().ScanPeriodMS) * time.Millisecond
	for i := 0; i < n; i++ {
		_ = h.ctrl.Scan(h.ctx)
		h.clock.Advance(period)
	}
}

func (h *harness) readBool(name string) bool {
	v, _, _, _ := h.store.ReadBool(name)
	return v
}

func (h *harness) readFloat(name string) float64 {
	v, _, _, _ := h.store.ReadFloat(name)
	return v
}

type scenario struct {
	name string
	run  func(h *harness) error
}

func approxEqual(got, want, tol float64) bool {
	d := got - want
	if d < 0 {
		d = -d
	}
	return d <= tol
}

var scenarios = []scenario{
	{"S1", scenarioNormalStart},
	{"S2", scenarioBSWDivertAndRecovery},
	{"S3", scenarioTotalization},
	{"S4", scenarioCTLAtElevatedTemp},
	{"S5", scenarioEStopFromAnyState},
	{"S6", scenarioProvingPass},
	{"S7", scenarioPumpOverloadLockout},
}

func scenarioNormalStart(h *harness) error {
	h.sim.SetDiscrete(tagstore.DIInletValveOpen, true)
	h.sim.SetDiscrete(tagstore.DIOutletValveOpen, true)
	h.sim.SetAnalog(tagstore.AIBSWProbe, 0.3)

	h.ctrl.Start()
	h.runScans(60)

	if h.ctrl.State() != statemachine.Running {
		return fmt.Errorf("expected state Running, got %s", h.ctrl.State())
	}
	if !h.readBool(tagstore.DOPumpStart) {
		return fmt.Errorf("expected DO_PUMP_START=1")
	}
	if !h.readBool(tagstore.DIPumpRunning) {
		return fmt.Errorf("expected DI_PUMP_RUNNING=1")
	}
	if h.readBool(tagstore.DODivertCmd) != tagstore.DivertSales {
		return fmt.Errorf("expected DO_DIVERT_CMD=SALES")
	}
	return nil
}

func startAndRun(h *harness) error {
	h.sim.SetDiscrete(tagstore.DIInletValveOpen, true)
	h.sim.SetDiscrete(tagstore.DIOutletValveOpen, true)
	h.sim.SetAnalog(tagstore.AIBSWProbe, 0.3)
	h.ctrl.Start()
	h.runScans(60)
	if h.ctrl.State() != statemachine.Running {
		return fmt.Errorf("setup: expected Running, got %s", h.ctrl.State())
	}
	return nil
}

func scenarioBSWDivertAndRecovery(h *harness) error {
	if err := startAndRun(h); err != nil {
		return err
	}

	h.sim.SetAnalog(tagstore.AIBSWProbe, 1.5)
	h.runScans(60)
	if h.ctrl.State() != statemachine.Divert {
		return fmt.Errorf("expected state Divert after BS&W excursion, got %s", h.ctrl.State())
	}
	if h.readBool(tagstore.DODivertCmd) != tagstore.DivertDivert {
		return fmt.Errorf("expected DO_DIVERT_CMD=DIVERT")
	}

	h.sim.SetAnalog(tagstore.AIBSWProbe, 0.4)
	h.runScans(60)
	if h.ctrl.State() != statemachine.Running {
		return fmt.Errorf("expected state Running after BS&W recovery, got %s", h.ctrl.State())
	}
	if h.readBool(tagstore.DODivertCmd) != tagstore.DivertSales {
		return fmt.Errorf("expected DO_DIVERT_CMD=SALES after recovery")
	}
	return nil
}

func scenarioTotalization(h *harness) error {
	if err := startAndRun(h); err != nil {
		return err
	}

	patch := h.sp.Current()
	patch.MeterKFactor = 100.0
	patch.MeterFactor = 1.0
	if err := h.sp.Apply(patch); err != nil {
		return err
	}
	h.sim.SetAnalog(tagstore.AIMeterTemp, 60.0)

	grossBefore := h.readFloat(tagstore.VTGrossBBL)
	netBefore := h.readFloat(tagstore.VTNetBBL)

	h.sim.AddPulses(10000)
	h.runScans(1)

	grossDelta := h.readFloat(tagstore.VTGrossBBL) - grossBefore
	netDelta := h.readFloat(tagstore.VTNetBBL) - netBefore

	if !approxEqual(grossDelta, 100.0, 0.001) {
		return fmt.Errorf("expected gross_bbl delta 100.000, got %.3f", grossDelta)
	}
	if !approxEqual(netDelta, 100.0, 0.001) {
		return fmt.Errorf("expected net_bbl delta 100.000, got %.3f", netDelta)
	}
	return nil
}

func scenarioCTLAtElevatedTemp(h *harness) error {
	if err := startAndRun(h); err != nil {
		return err
	}

	patch := h.sp.Current()
	patch.MeterKFactor = 100.0
	patch.MeterFactor = 1.0
	patch.APIThermalExpansionAlpha = 0.00045
	if err := h.sp.Apply(patch); err != nil {
		return err
	}
	h.sim.SetAnalog(tagstore.AIMeterTemp, 120.0)

	grossBefore := h.readFloat(tagstore.VTGrossBBL)
	netBefore := h.readFloat(tagstore.VTNetBBL)

	h.sim.AddPulses(10000)
	h.runScans(1)

	grossDelta := h.readFloat(tagstore.VTGrossBBL) - grossBefore
	netDelta := h.readFloat(tagstore.VTNetBBL) - netBefore

	wantNet := 100.0 * (1 - 0.00045*60)
	if !approxEqual(grossDelta, 100.0, 0.001) {
		return fmt.Errorf("expected gross_bbl delta 100.000, got %.3f", grossDelta)
	}
	if !approxEqual(netDelta, wantNet, 0.01) {
		return fmt.Errorf("expected net_bbl delta %.3f, got %.3f", wantNet, netDelta)
	}
	return nil
}

func scenarioEStopFromAnyState(h *harness) error {
	if err := startAndRun(h); err != nil {
		return err
	}

	h.ctrl.Prove()
	h.runScans(2)
	if h.ctrl.State() != statemachine.Proving {
		return fmt.Errorf("setup: expected Proving, got %s", h.ctrl.State())
	}

	h.sim.SetDiscrete(tagstore.DIEStop, false) // NC loop broken
	h.runScans(1)

	if h.ctrl.State() != statemachine.EStop {
		return fmt.Errorf("expected state EStop, got %s", h.ctrl.State())
	}
	if h.readBool(tagstore.DOPumpStart) || h.readBool(tagstore.DOSampleSol) || h.readBool(tagstore.DOProverValveCmd) {
		return fmt.Errorf("expected pump/sample/prover outputs off in EStop")
	}

	h.sim.SetDiscrete(tagstore.DIEStop, true) // NC loop restored
	h.ctrl.Reset()
	h.runScans(1)

	if h.ctrl.State() != statemachine.Idle {
		return fmt.Errorf("expected state Idle after RESET, got %s", h.ctrl.State())
	}
	return nil
}

func scenarioProvingPass(h *harness) error {
	if err := startAndRun(h); err != nil {
		return err
	}

	patch := h.sp.Current()
	patch.ProveRuns = 5
	patch.RepeatabilityTolerance = 0.0005
	patch.MeterKFactor = 100.0
	patch.ProveCertifiedBarrels = 500.0
	if err := h.sp.Apply(patch); err != nil {
		return err
	}

	rawFactors := []float64{1.0012, 1.0009, 1.0011, 1.0010, 1.0013}

	h.ctrl.Prove()
	h.runScans(1)

	for _, rf := range rawFactors {
		h.sim.SetDiscrete(tagstore.DIProverValveOpen, true)
		h.runScans(1)
		pulses := uint64(500.0 / rf * 100.0)
		h.sim.AddPulses(pulses)
		h.sim.SetDiscrete(tagstore.DIAirElimFloat, true)
		h.runScans(1)
		h.sim.SetDiscrete(tagstore.DIAirElimFloat, false)
	}
	h.runScans(2)

	if h.ctrl.State() != statemachine.Running {
		return fmt.Errorf("expected state Running after proving, got %s", h.ctrl.State())
	}
	mf := h.sp.Current().MeterFactor
	if !approxEqual(mf, 1.0011, 0.0003) {
		return fmt.Errorf("expected meter_factor near 1.0011, got %.5f", mf)
	}
	return nil
}

func scenarioPumpOverloadLockout(h *harness) error {
	if err := startAndRun(h); err != nil {
		return err
	}

	h.sim.SetDiscrete(tagstore.DIPumpOverload, true)
	h.runScans(1)

	if h.ctrl.State() != statemachine.Shutdown {
		return fmt.Errorf("expected state Shutdown after overload, got %s", h.ctrl.State())
	}
	if h.readBool(tagstore.DOPumpStart) {
		return fmt.Errorf("expected DO_PUMP_START=0 after overload")
	}

	h.ctrl.Start()
	h.runScans(1)
	if h.ctrl.State() == statemachine.Running {
		return fmt.Errorf("expected immediate START to be denied during lockout")
	}
	return nil
}

func main() {
	filter := flag.String("scenario", "", "Run only this scenario (e.g. S3); empty runs all")
	flag.Parse()

	failures := 0
	for _, s := range scenarios {
		if *filter != "" && s.name != *filter {
			continue
		}
		h := newHarness()
		if err := s.run(h); err != nil {
			fmt.Printf("FAIL %s: %v\n", s.name, err)
			failures++
			continue
		}
		fmt.Printf("PASS %s\n", s.name)
	}

	if failures > 0 {
		os.Exit(1)
	}
}
