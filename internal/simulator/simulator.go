// Package simulator implements an in-memory ioport.Port double standing
// in for the field side of a LACT skid. It drives the same deterministic,
// wall-clock-free stepping the teacher's scenario simulator uses: a scan
// counter advances state, never time.Now or math/rand, so the same
// command sequence against the same simulator always reproduces the same
// Tag Store snapshots (spec §8 invariant 8).
package simulator

import (
	"context"
	"sync"

	"github.com/lactplc/skidcore/internal/tagstore"
)

// travel/start delays are expressed in scans, not wall time, so the
// simulator never depends on the host clock.
const (
	defaultValveTravelScans = 10
	defaultPumpStartScans   = 3
)

// Port is a hand-driven field double. Tests and the scenario runner set
// field-side values with the exported setters; the Controller only ever
// sees it through ioport.Port.
type Port struct {
	mu sync.Mutex

	discrete map[string]bool
	analog   map[string]float64
	pulse    uint64

	valveTravelScans int
	pumpStartScans   int

	pumpStartCountdown  int
	pumpStartCommanded  bool
	divertCountdown     int
	divertCommandedDivert bool
	proverOpenCountdown int
}

// New returns a Port seeded with the field state of a cold, de-energized
// skid: inlet/outlet valves open, divert valve at SALES, everything else
// off.
func New() *Port {
	p := &Port{
		discrete: map[string]bool{
			tagstore.DIInletValveOpen:   true,
			tagstore.DIInletValveClosed: false,
			tagstore.DIStrainerHiDP:     false,
			tagstore.DIPumpRunning:      false,
			tagstore.DIPumpOverload:     false,
			tagstore.DIDivertSales:      true,
			tagstore.DIDivertDivert:     false,
			tagstore.DISamplePotHi:      false,
			tagstore.DISamplePotLo:      true,
			tagstore.DIProverValveOpen:  false,
			tagstore.DIAirElimFloat:     false,
			tagstore.DIOutletValveOpen:  true,
			tagstore.DIEStop:            true, // NC loop intact

		},
		analog: map[string]float64{
			tagstore.AIInletPress:  50,
			tagstore.AILoopHiPress: 100,
			tagstore.AIStrainerDP:  2,
			tagstore.AIBSWProbe:    0.3,
			tagstore.AIMeterTemp:   60,
			tagstore.AITestThermo:  60,
			tagstore.AIOutletPress: 80,
		},
		valveTravelScans: defaultValveTravelScans,
		pumpStartScans:   defaultPumpStartScans,
	}
	return p
}

// SetDiscrete overrides a DI field value, for scenario setup (e.g.
// asserting DI_ESTOP or DI_PUMP_OVERLOAD).
func (p *Port) SetDiscrete(name string, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discrete[name] = v
}

// SetAnalog overrides an AI field value, e.g. ramping AI_BSW_PROBE.
func (p *Port) SetAnalog(name string, v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analog[name] = v
}

// AddPulses advances the meter pulse counter by n, modelling flow through
// the meter. Wraps at 2^32 like the real 32-bit field counter.
func (p *Port) AddPulses(n uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pulse = uint32Wrap(p.pulse + n)
}

func uint32Wrap(v uint64) uint64 {
	return v & 0xFFFFFFFF
}

// ReadInputs copies the simulated field state into store, advancing the
// pump-start and divert-valve-travel countdowns armed by the previous
// WriteOutputs call.
func (p *Port) ReadInputs(_ context.Context, store *tagstore.Store) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pumpStartCountdown > 0 {
		p.pumpStartCountdown--
		if p.pumpStartCountdown == 0 {
			p.discrete[tagstore.DIPumpRunning] = p.pumpStartCommanded
		}
	}
	if p.divertCountdown > 0 {
		p.divertCountdown--
		if p.divertCountdown == 0 {
			p.discrete[tagstore.DIDivertSales] = !p.divertCommandedDivert
			p.discrete[tagstore.DIDivertDivert] = p.divertCommandedDivert
		}
	}
	if p.proverOpenCountdown > 0 {
		p.proverOpenCountdown--
		if p.proverOpenCountdown == 0 {
			p.discrete[tagstore.DIProverValveOpen] = true
		}
	}

	for name, v := range p.discrete {
		store.WriteBool(name, v, tagstore.Good)
	}
	for name, v := range p.analog {
		store.WriteFloat(name, v, tagstore.Good)
	}
	store.WritePulse(tagstore.PIMeterPulse, p.pulse, tagstore.Good)
	return nil
}

// WriteOutputs reads the Controller's commanded DO/AO tags and arms the
// feedback countdowns that the next ReadInputs calls will resolve,
// simulating valve travel time and pump spin-up.
func (p *Port) WriteOutputs(_ context.Context, store *tagstore.Store) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pumpStart, _, _, _ := store.ReadBool(tagstore.DOPumpStart)
	if pumpStart != p.pumpStartCommanded {
		p.pumpStartCommanded = pumpStart
		p.pumpStartCountdown = p.pumpStartScans
		if !pumpStart {
			p.discrete[tagstore.DIPumpRunning] = false
			p.pumpStartCountdown = 0
		}
	}

	divertCmd, _, _, _ := store.ReadBool(tagstore.DODivertCmd)
	if divertCmd != p.divertCommandedDivert {
		p.divertCommandedDivert = divertCmd
		p.divertCountdown = p.valveTravelScans
	}

	proverCmd, _, _, _ := store.ReadBool(tagstore.DOProverValveCmd)
	if proverCmd && !p.discrete[tagstore.DIProverValveOpen] && p.proverOpenCountdown == 0 {
		p.proverOpenCountdown = p.valveTravelScans
	}
	if !proverCmd {
		p.discrete[tagstore.DIProverValveOpen] = false
		p.proverOpenCountdown = 0
	}

	sampleSol, _, _, _ := store.ReadBool(tagstore.DOSampleSol)
	_ = sampleSol // sample solenoid pulses are observed by scenario assertions directly on the store

	return nil
}

// Close is a no-op; the simulator holds no transport resources.
func (p *Port) Close() error { return nil }
