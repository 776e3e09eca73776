package cti

import (
	"context"
	"testing"
)

type fakeRegIO struct {
	regs map[uint32]uint32
}

func newFakeRegIO() *fakeRegIO { return &fakeRegIO{regs: make(map[uint32]uint32)} }

func (f *fakeRegIO) MemAPReadU32(ctx context.Context, apNum uint8, addr uint32) (uint32, error) {
	return f.regs[addr-0x2000], nil
}

func (f *fakeRegIO) MemAPWriteU32(ctx context.Context, apNum uint8, addr uint32, v uint32) error {
	off := addr - 0x2000
	f.regs[off] = v
	if off == offCTIAPPPULSE {
		// Pulsing ch0 clears CTITRIGOUTSTATUS.ch0 to simulate the PE
		// acknowledging the trigger immediately, as AckDebugTrigger expects.
		if v&(1<<ChDebug) != 0 {
			f.regs[offCTITRIGOUTSTATUS] &^= 1 << ChDebug
		}
	}
	if off == offCTIINTACK {
		f.regs[offCTITRIGOUTSTATUS] &^= v
	}
	return nil
}

func TestInitUnlocksEnablesClearsGate(t *testing.T) {
	io := newFakeRegIO()
	c := New(io, 0, 0x2000)
	if err := c.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if io.regs[offCTILAR] != ctiUnlockKey {
		t.Fatal("expected unlock key written")
	}
	if io.regs[offCTICONTROL]&1 == 0 {
		t.Fatal("expected CONTROL.GLBEN set")
	}
	if io.regs[offCTIGATE] != 0 {
		t.Fatal("expected GATE cleared")
	}
}

func TestHaltSingleProgramsChannel0(t *testing.T) {
	io := newFakeRegIO()
	io.regs[offCTIGATE] = 1 // ch0 initially gated on
	c := New(io, 0, 0x2000)
	if err := c.HaltSingle(context.Background()); err != nil {
		t.Fatalf("HaltSingle: %v", err)
	}
	if io.regs[offCTIGATE]&1 != 0 {
		t.Fatal("expected ch0 gate bit cleared")
	}
	if io.regs[c.outenOffset(ChDebug)]&1 == 0 {
		t.Fatal("expected CTIOUTEN(Debug).ch0 set")
	}
	if io.regs[offCTIAPPPULSE]&1 == 0 {
		t.Fatal("expected pulse issued on ch0")
	}
}

func TestAckDebugTriggerWaitsForStatusClear(t *testing.T) {
	io := newFakeRegIO()
	io.regs[offCTITRIGOUTSTATUS] = 1 << ChDebug
	c := New(io, 0, 0x2000)
	if err := c.AckDebugTrigger(context.Background()); err != nil {
		t.Fatalf("AckDebugTrigger: %v", err)
	}
	if io.regs[offCTITRIGOUTSTATUS]&(1<<ChDebug) != 0 {
		t.Fatal("expected trigger status cleared")
	}
}

func TestEnableSMPCrossHaltProgramsAllBits(t *testing.T) {
	io := newFakeRegIO()
	c := New(io, 0, 0x2000)
	if err := c.EnableSMPCrossHalt(context.Background()); err != nil {
		t.Fatalf("EnableSMPCrossHalt: %v", err)
	}
	if io.regs[offCTIGATE]&(1<<ChCrossHalt) == 0 {
		t.Fatal("expected GATE.ch2 set")
	}
	if io.regs[c.inenOffset(ChCrossHalt)]&(1<<ChCrossHalt) == 0 {
		t.Fatal("expected CTIINEN(cross-halt).ch2 set")
	}
	if io.regs[c.outenOffset(ChDebug)]&(1<<ChCrossHalt) == 0 {
		t.Fatal("expected CTIOUTEN(Debug).ch2 set")
	}
}
