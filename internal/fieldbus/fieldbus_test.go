package fieldbus

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/goburrow/modbus"

	"github.com/lactplc/skidcore/internal/tagstore"
)

// newTestPort builds a Port around a fakeClient with a real (but unconnected)
// TCPClientHandler, so ReadInputs/WriteOutputs's handler.Timeout bookkeeping
// has a non-nil target to write through.
func newTestPort(fc *fakeClient) *Port {
	handler := modbus.NewTCPClientHandler("127.0.0.1:0")
	return &Port{handler: handler, client: fc}
}

// fakeClient implements modbus.Client against in-memory tables, so
// ReadInputs/WriteOutputs can be exercised without a real Modbus TCP
// endpoint.
type fakeClient struct {
	discreteInputs []byte // packed bits
	inputRegs      []byte // big-endian uint16s
	coils          map[uint16]uint16
	holdingRegs    map[uint16]uint16

	failDiscrete bool
	failInputReg bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{coils: make(map[uint16]uint16), holdingRegs: make(map[uint16]uint16)}
}

func (f *fakeClient) ReadCoils(address, quantity uint16) ([]byte, error) { return nil, nil }

func (f *fakeClient) ReadDiscreteInputs(address, quantity uint16) ([]byte, error) {
	if f.failDiscrete {
		return nil, errors.New("simulated discrete read failure")
	}
	return f.discreteInputs, nil
}

func (f *fakeClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	if address == addrPulseReg {
		return f.inputRegs[len(f.inputRegs)-4:], nil
	}
	if f.failInputReg {
		return nil, errors.New("simulated input register read failure")
	}
	n := int(quantity) * 2
	return f.inputRegs[:n], nil
}

func (f *fakeClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) { return nil, nil }

func (f *fakeClient) WriteSingleCoil(address, value uint16) ([]byte, error) {
	f.coils[address] = value
	return nil, nil
}

func (f *fakeClient) WriteSingleRegister(address, value uint16) ([]byte, error) {
	f.holdingRegs[address] = value
	return nil, nil
}

func (f *fakeClient) WriteMultipleCoils(address, quantity uint16, value []byte) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) ReadWriteMultipleRegisters(readAddress, readQuantity, writeAddress, writeQuantity uint16, value []byte) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) MaskWriteRegister(address, andMask, orMask uint16) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) ReadFIFOQueue(address uint16) ([]byte, error) { return nil, nil }

func newStore() *tagstore.Store {
	s := tagstore.New(nil)
	tagstore.DeclareLACT(s)
	return s
}

func TestBitAt(t *testing.T) {
	bits := []byte{0b00000101} // bit0=1, bit1=0, bit2=1
	if !bitAt(bits, 0) || bitAt(bits, 1) || !bitAt(bits, 2) {
		t.Fatalf("bitAt decoded incorrectly for %08b", bits[0])
	}
	if bitAt(bits, 100) {
		t.Fatalf("expected out-of-range bit index to report false, not panic")
	}
}

func TestTimeoutFromContextUsesDeadlineWhenPresent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	got := timeoutFromContext(ctx, 5*time.Second)
	if got <= 0 || got > 50*time.Millisecond {
		t.Fatalf("expected a remaining deadline close to 50ms, got %v", got)
	}
}

func TestTimeoutFromContextFallsBackWithoutDeadline(t *testing.T) {
	got := timeoutFromContext(context.Background(), 5*time.Second)
	if got != 5*time.Second {
		t.Fatalf("expected fallback timeout, got %v", got)
	}
}

func TestReadInputsPopulatesDiscreteAndAnalogTags(t *testing.T) {
	fc := newFakeClient()
	fc.discreteInputs = []byte{0b00000001, 0b00000000} // only DI at index 0 set (DI_INLET_VLV_OPEN)

	fc.inputRegs = make([]byte, len(inputRegPoints)*2+4)
	binary.BigEndian.PutUint16(fc.inputRegs[0:2], 2048) // AI_INLET_PRESS raw count
	binary.BigEndian.PutUint16(fc.inputRegs[len(fc.inputRegs)-4:len(fc.inputRegs)-2], 0x0001) // pulse hi
	binary.BigEndian.PutUint16(fc.inputRegs[len(fc.inputRegs)-2:], 0x0002)                    // pulse lo

	port := newTestPort(fc)
	store := newStore()

	if err := port.ReadInputs(context.Background(), store); err != nil {
		t.Fatalf("ReadInputs: %v", err)
	}

	open, q, _, _ := store.ReadBool(tagstore.DIInletValveOpen)
	if !open || q != tagstore.Good {
		t.Fatalf("expected DI_INLET_VLV_OPEN true/Good, got %v/%v", open, q)
	}
	closed, _, _, _ := store.ReadBool(tagstore.DIInletValveClosed)
	if closed {
		t.Fatalf("expected DI_INLET_VLV_CLOSED false")
	}

	pulse, pq, _, _ := store.ReadPulse(tagstore.PIMeterPulse)
	want := uint64(0x0001)<<16 | uint64(0x0002)
	if pulse != want || pq != tagstore.Good {
		t.Fatalf("expected 32-bit pulse counter %d/Good, got %d/%v", want, pulse, pq)
	}
}

func TestReadInputsMarksBadQualityOnDiscreteFailureWithoutAbortingAnalogRead(t *testing.T) {
	fc := newFakeClient()
	fc.failDiscrete = true
	fc.inputRegs = make([]byte, len(inputRegPoints)*2+4)

	port := newTestPort(fc)
	store := newStore()

	err := port.ReadInputs(context.Background(), store)
	if err == nil {
		t.Fatalf("expected an error surfaced from the failed discrete read")
	}
	_, q, _, _ := store.ReadBool(tagstore.DIInletValveOpen)
	if q != tagstore.Bad {
		t.Fatalf("expected discrete tags marked Bad after a failed transaction, got %v", q)
	}
	// The pulse counter read should still have been attempted despite the
	// discrete-input failure (partial failure does not short-circuit).
	_, pq, _, _ := store.ReadPulse(tagstore.PIMeterPulse)
	if pq != tagstore.Good {
		t.Fatalf("expected pulse counter still read successfully, got quality %v", pq)
	}
}

func TestWriteOutputsWritesCoilsAndHoldingRegisters(t *testing.T) {
	fc := newFakeClient()
	port := newTestPort(fc)
	store := newStore()

	store.WriteBool(tagstore.DOPumpStart, true, tagstore.Good)
	store.WriteBool(tagstore.DOAlarmHorn, false, tagstore.Good)
	store.WriteFloat(tagstore.AOBPSalesSP, 50, tagstore.Good)

	if err := port.WriteOutputs(context.Background(), store); err != nil {
		t.Fatalf("WriteOutputs: %v", err)
	}

	if fc.coils[addrCoilBase+0] != 0xFF00 {
		t.Errorf("expected DO_PUMP_START coil energized as 0xFF00, got %#x", fc.coils[addrCoilBase+0])
	}
	if fc.coils[addrCoilBase+6] != 0x0000 {
		t.Errorf("expected DO_ALARM_HORN coil de-energized as 0x0000, got %#x", fc.coils[addrCoilBase+6])
	}
	if _, ok := fc.holdingRegs[addrHoldingBase+0]; !ok {
		t.Errorf("expected AO_BP_SALES_SP holding register written")
	}
}
