package dpm

import (
	"context"
	"testing"
)

// fakeRegIO simulates the debug component's register file without going
// through dap.DAP/FakeTAP: EDSCR.ITE is always set (the core is always
// ready to accept the next instruction), and EDITR writes are recorded so
// tests can assert which opcode was issued.
type fakeRegIO struct {
	regs       map[uint32]uint32
	lastOpcode uint32
}

func newFakeRegIO() *fakeRegIO {
	return &fakeRegIO{regs: make(map[uint32]uint32)}
}

func (f *fakeRegIO) MemAPReadU32(ctx context.Context, apNum uint8, addr uint32) (uint32, error) {
	off := addr - 0x1000
	if off == offEDSCR {
		return edscrITE, nil
	}
	return f.regs[off], nil
}

func (f *fakeRegIO) MemAPWriteU32(ctx context.Context, apNum uint8, addr uint32, v uint32) error {
	off := addr - 0x1000
	f.regs[off] = v
	if off == offEDITR {
		f.lastOpcode = v
	}
	return nil
}

func TestExecOpcodeIssuesEDITR(t *testing.T) {
	io := newFakeRegIO()
	d := New(io, 0, 0x1000)
	if err := d.ExecOpcode(context.Background(), 0xD503201F); err != nil {
		t.Fatalf("ExecOpcode: %v", err)
	}
	if io.lastOpcode != 0xD503201F {
		t.Fatalf("got opcode 0x%x, want 0xD503201F", io.lastOpcode)
	}
}

func TestInstrWriteDataDCCStagesRX(t *testing.T) {
	io := newFakeRegIO()
	d := New(io, 0, 0x1000)
	if err := d.InstrWriteDataDCC(context.Background(), 0x11111111, 0xDEADBEEF); err != nil {
		t.Fatalf("InstrWriteDataDCC: %v", err)
	}
	if io.regs[offDBGDTRRX] != 0xDEADBEEF {
		t.Fatalf("DBGDTRRX got 0x%x, want 0xDEADBEEF", io.regs[offDBGDTRRX])
	}
	if io.lastOpcode != 0x11111111 {
		t.Fatalf("opcode not issued: got 0x%x", io.lastOpcode)
	}
}

func TestInstrReadDataDCC64CombinesHalves(t *testing.T) {
	io := newFakeRegIO()
	io.regs[offDBGDTRTX] = 0x11223344
	io.regs[offDBGDTRRX] = 0xAABBCCDD
	d := New(io, 0, 0x1000)
	v, err := d.InstrReadDataDCC64(context.Background(), 0x22222222)
	if err != nil {
		t.Fatalf("InstrReadDataDCC64: %v", err)
	}
	want := uint64(0xAABBCCDD)<<32 | 0x11223344
	if v != want {
		t.Fatalf("got 0x%x, want 0x%x", v, want)
	}
}

func TestInstrWriteDataX0MarksDirty(t *testing.T) {
	io := newFakeRegIO()
	d := New(io, 0, 0x1000)
	if err := d.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := d.InstrWriteDataX0(context.Background(), 0x33333333, 42); err != nil {
		t.Fatalf("InstrWriteDataX0: %v", err)
	}
	dirtyX0, dirtyX1 := d.Finish(context.Background())
	if !dirtyX0 {
		t.Fatal("expected X0 marked dirty")
	}
	if dirtyX1 {
		t.Fatal("expected X1 not dirtied")
	}
}

func TestBpwpEnableDisableRoundTrip(t *testing.T) {
	io := newFakeRegIO()
	d := New(io, 0, 0x1000)
	ctx := context.Background()

	if err := d.BpwpEnable(ctx, false, 0, 0x8000_0000, 0x1<<1); err != nil {
		t.Fatalf("BpwpEnable: %v", err)
	}
	ctrl := io.regs[bcrOffset(0)]
	if ctrl&1 == 0 {
		t.Fatal("expected BCR enable bit set")
	}
	lo := io.regs[bvrLowOffset(0)]
	if lo != 0x8000_0000 {
		t.Fatalf("BVR low got 0x%x, want 0x80000000", lo)
	}

	if err := d.BpwpDisable(ctx, false, 0); err != nil {
		t.Fatalf("BpwpDisable: %v", err)
	}
	if io.regs[bcrOffset(0)]&1 != 0 {
		t.Fatal("expected BCR enable bit cleared")
	}
}

func TestPrepareClearsStickyErrors(t *testing.T) {
	io := newFakeRegIO()
	d := New(io, 0, 0x1000)
	if err := d.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if io.regs[offEDRCR]&edrcrCSE == 0 {
		t.Fatal("expected EDRCR.CSE written during prepare")
	}
}

func TestStatusCodeExtractsField(t *testing.T) {
	if got := StatusCode(0x0000_0002); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}
