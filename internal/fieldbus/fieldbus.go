// Package fieldbus implements the concrete ioport.Port that talks to a
// LACT skid's field I/O over Modbus TCP.
//
// Register map (spec §6), raw counts scaled linearly via
// ioport.ScaleAnalog/UnscaleAnalog to the declared engineering range:
//
//	Discrete inputs 0-12    DI_INLET_VLV_OPEN .. DI_ESTOP
//	Coils 100-107           DO_PUMP_START .. DO_STATUS_GREEN
//	Input registers 200-206 AI_INLET_PRESS .. AI_OUTLET_PRESS
//	Input registers 300-301 PI_METER_PULSE (32-bit, high word first)
//	Holding registers 400-401 AO_BP_SALES_SP, AO_BP_DIVERT_SP
package fieldbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"

	"github.com/lactplc/skidcore/internal/ioport"
	"github.com/lactplc/skidcore/internal/tagstore"
)

const (
	addrDiscreteBase = 0
	addrCoilBase     = 100
	addrInputRegBase = 200
	addrPulseReg     = 300
	addrHoldingBase  = 400
)

var discretePoints = []string{
	tagstore.DIInletValveOpen, tagstore.DIInletValveClosed, tagstore.DIStrainerHiDP,
	tagstore.DIPumpRunning, tagstore.DIPumpOverload, tagstore.DIDivertSales,
	tagstore.DIDivertDivert, tagstore.DISamplePotHi, tagstore.DISamplePotLo,
	tagstore.DIProverValveOpen, tagstore.DIAirElimFloat, tagstore.DIOutletValveOpen,
	tagstore.DIEStop,
}

var coilPoints = []string{
	tagstore.DOPumpStart, tagstore.DODivertCmd, tagstore.DOSampleSol,
	tagstore.DOSampleMixPump, tagstore.DOProverValveCmd, tagstore.DOAlarmBeacon,
	tagstore.DOAlarmHorn, tagstore.DOStatusGreen,
}

type analogPoint struct {
	name string
	rng  tagstore.Range
}

var inputRegPoints = []analogPoint{
	{tagstore.AIInletPress, tagstore.RangeInletPress},
	{tagstore.AILoopHiPress, tagstore.RangeLoopHiPress},
	{tagstore.AIStrainerDP, tagstore.RangeStrainerDP},
	{tagstore.AIBSWProbe, tagstore.RangeBSWProbe},
	{tagstore.AIMeterTemp, tagstore.RangeMeterTemp},
	{tagstore.AITestThermo, tagstore.RangeTestThermo},
	{tagstore.AIOutletPress, tagstore.RangeOutletPress},
}

var holdingRegPoints = []analogPoint{
	{tagstore.AOBPSalesSP, tagstore.RangeBPSetpoint},
	{tagstore.AOBPDivertSP, tagstore.RangeBPSetpoint},
}

// Port is a Modbus TCP ioport.Port. Not safe for concurrent ReadInputs and
// WriteOutputs calls; the Controller's scan loop never overlaps them.
type Port struct {
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// New dials a Modbus TCP connection to addr, addressing unit unitID.
// timeout bounds every subsequent request; ctx is honored only insofar as
// the initial connect respects its deadline.
func New(ctx context.Context, addr string, unitID byte, timeout time.Duration) (*Port, error) {
	handler := modbus.NewTCPClientHandler(addr)
	handler.SlaveId = unitID
	handler.Timeout = timeout

	if deadline, ok := ctx.Deadline(); ok {
		handler.Timeout = time.Until(deadline)
	}
	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("fieldbus: connect %q: %w", addr, err)
	}

	return &Port{handler: handler, client: modbus.NewClient(handler)}, nil
}

// ReadInputs reads every discrete input, input register and pulse counter
// and writes them into store with Good quality, or Bad quality for the
// points affected by a failed transaction (spec §7 IOError policy).
func (p *Port) ReadInputs(ctx context.Context, store *tagstore.Store) error {
	p.handler.Timeout = timeoutFromContext(ctx, p.handler.Timeout)

	var firstErr error

	if bits, err := p.client.ReadDiscreteInputs(addrDiscreteBase, uint16(len(discretePoints))); err != nil {
		firstErr = fmt.Errorf("fieldbus: read discrete inputs: %w", err)
		for _, name := range discretePoints {
			store.WriteBool(name, false, tagstore.Bad)
		}
	} else {
		for i, name := range discretePoints {
			store.WriteBool(name, bitAt(bits, i), tagstore.Good)
		}
	}

	if regs, err := p.client.ReadInputRegisters(addrInputRegBase, uint16(len(inputRegPoints))); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("fieldbus: read input registers: %w", err)
		}
		for _, pt := range inputRegPoints {
			store.WriteFloat(pt.name, 0, tagstore.Bad)
		}
	} else {
		for i, pt := range inputRegPoints {
			raw := binary.BigEndian.Uint16(regs[i*2 : i*2+2])
			store.WriteFloat(pt.name, ioport.ScaleAnalog(raw, pt.rng.Lo, pt.rng.Hi), tagstore.Good)
		}
	}

	if regs, err := p.client.ReadInputRegisters(addrPulseReg, 2); err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("fieldbus: read pulse counter: %w", err)
		}
		store.WritePulse(tagstore.PIMeterPulse, 0, tagstore.Bad)
	} else {
		hi := binary.BigEndian.Uint16(regs[0:2])
		lo := binary.BigEndian.Uint16(regs[2:4])
		store.WritePulse(tagstore.PIMeterPulse, uint64(hi)<<16|uint64(lo), tagstore.Good)
	}

	return firstErr
}

// WriteOutputs writes every discrete output coil and AO holding register
// from store to the field.
func (p *Port) WriteOutputs(ctx context.Context, store *tagstore.Store) error {
	p.handler.Timeout = timeoutFromContext(ctx, p.handler.Timeout)

	var firstErr error

	for i, name := range coilPoints {
		v, _, _, err := store.ReadBool(name)
		if err != nil {
			continue
		}
		coilVal := uint16(0x0000)
		if v {
			coilVal = 0xFF00
		}
		if _, err := p.client.WriteSingleCoil(addrCoilBase+uint16(i), coilVal); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("fieldbus: write coil %d: %w", i, err)
		}
	}

	for i, pt := range holdingRegPoints {
		v, _, _, err := store.ReadFloat(pt.name)
		if err != nil {
			continue
		}
		raw := ioport.UnscaleAnalog(v, pt.rng.Lo, pt.rng.Hi)
		if _, err := p.client.WriteSingleRegister(addrHoldingBase+uint16(i), raw); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("fieldbus: write holding register %d: %w", i, err)
		}
	}

	return firstErr
}

// Close releases the underlying TCP connection.
func (p *Port) Close() error {
	return p.handler.Close()
}

func bitAt(bits []byte, i int) bool {
	byteIdx := i / 8
	if byteIdx >= len(bits) {
		return false
	}
	return bits[byteIdx]&(1<<uint(i%8)) != 0
}

func timeoutFromContext(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			return remaining
		}
	}
	return fallback
}
