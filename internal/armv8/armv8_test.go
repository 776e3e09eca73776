package armv8

import (
	"context"
	"testing"

	"github.com/chipdebug/core/internal/cti"
	"github.com/chipdebug/core/internal/dpm"
)

func newTestTarget(f *fakeCore) *Target {
	dp := dpm.New(f, 0, dpmBase)
	c := cti.New(f, 0, ctiBase)
	return New(nil, dp, c, Config{}, 4, 2, nil)
}

// TestHaltStepResumeRoundTrip covers spec.md §8 scenario S1: halt a target,
// observe it land on the debug-request (dbgrq) reason, resume it, and
// single-step it.
func TestHaltStepResumeRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFakeCore()
	var gotHalted, gotResumed int
	dp := dpm.New(f, 0, dpmBase)
	c := cti.New(f, 0, ctiBase)
	tgt := New(nil, dp, c, Config{}, 4, 2, func(k EventKind) {
		switch k {
		case EventHalted:
			gotHalted++
		case EventResumed:
			gotResumed++
		}
	})

	f.setStatus(0b000010) // running
	if err := tgt.Examine(ctx); err != nil {
		t.Fatalf("examine: %v", err)
	}
	if tgt.State() != StateRunning {
		t.Fatalf("state after examine = %v, want running", tgt.State())
	}

	// Halt: fake EDSCR is set to halted/dbgrq before Halt so the poll loop
	// inside haltOne observes it on the first iteration.
	f.setStatus(0b010011) // halted, dbgrq
	if err := tgt.Halt(ctx); err != nil {
		t.Fatalf("halt: %v", err)
	}
	if tgt.State() != StateHalted {
		t.Fatalf("state after halt = %v, want halted", tgt.State())
	}
	if tgt.DebugReason() != ReasonDbgrq {
		t.Fatalf("reason after halt = %v, want dbgrq", tgt.DebugReason())
	}
	if gotHalted != 1 {
		t.Fatalf("EventHalted fired %d times, want 1", gotHalted)
	}

	// Resume: EDPRSR.SDR must already read as set and EDSCR must already
	// show running, since this fake has no notion of asynchronous restart.
	f.regs[offEDPRSR] = edprsrSDR
	f.setStatus(0b000010) // running
	if err := tgt.Resume(ctx, true, 0, false, false); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if tgt.State() != StateRunning {
		t.Fatalf("state after resume = %v, want running", tgt.State())
	}
	if gotResumed != 1 {
		t.Fatalf("EventResumed fired %d times, want 1", gotResumed)
	}

	// Step: halt again first, then single-step; the fake reports the
	// step-nosyndrome code once stepOne's post-restart poll checks EDSCR.
	f.setStatus(0b010011)
	if err := tgt.Halt(ctx); err != nil {
		t.Fatalf("halt before step: %v", err)
	}
	gotHalted = 0
	f.regs[offEDPRSR] = edprsrSDR
	f.setStatus(0b111011) // halted, step-nosyndrome
	if err := tgt.Step(ctx, true, 0, false); err != nil {
		t.Fatalf("step: %v", err)
	}
	if tgt.State() != StateHalted {
		t.Fatalf("state after step = %v, want halted", tgt.State())
	}
	if tgt.DebugReason() != ReasonSingleStep {
		t.Fatalf("reason after step = %v, want single-step", tgt.DebugReason())
	}
	if gotHalted != 1 {
		t.Fatalf("EventHalted fired %d times after step, want 1", gotHalted)
	}
}

// TestSoftwareBreakpointRoundTrip covers spec.md §8 scenario S2: install a
// software breakpoint over a NOP, read back the BRK encoding, remove it, and
// confirm the original NOP is restored.
func TestSoftwareBreakpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	const addr = uint64(0x8000_0000)
	const nopEncoding = uint32(0xD503_201F)

	f := newFakeCore()
	tgt := newTestTarget(f)
	f.setStatus(0b000010)
	if err := tgt.Examine(ctx); err != nil {
		t.Fatalf("examine: %v", err)
	}
	f.setStatus(0b010011)
	if err := tgt.Halt(ctx); err != nil {
		t.Fatalf("halt: %v", err)
	}

	putWord(f, addr, nopEncoding)

	bp, err := tgt.AddBreakpoint(ctx, addr, 4, false)
	if err != nil {
		t.Fatalf("add breakpoint: %v", err)
	}

	got := wordAt(f, addr)
	want := encodeBRK(0x11)
	if got != want {
		t.Fatalf("memory at bp = %#x, want BRK encoding %#x", got, want)
	}

	if err := tgt.RemoveBreakpoint(ctx, bp); err != nil {
		t.Fatalf("remove breakpoint: %v", err)
	}
	got = wordAt(f, addr)
	if got != nopEncoding {
		t.Fatalf("memory after removing bp = %#x, want nop %#x", got, nopEncoding)
	}
}

// TestFlushDCacheAllIssuesExpectedOpcodeCounts covers spec.md §8 scenario
// S3: CLIDR describing a single data cache level of 64 sets x 4 ways must
// produce exactly 64*4 `dc cisw` opcodes and one `dsb sy`.
func TestFlushDCacheAllIssuesExpectedOpcodeCounts(t *testing.T) {
	ctx := context.Background()
	f := newFakeCore()
	tgt := newTestTarget(f)
	f.setStatus(0b000010)
	if err := tgt.Examine(ctx); err != nil {
		t.Fatalf("examine: %v", err)
	}

	// CLIDR: level 0 Ctype = 0b010 (data cache only), LoC = 1.
	f.sysregs[sysregCLIDR&0x7FFF] = uint64(0b010) | (1 << 24)
	// CCSIDR: LineSize field 0 -> 16<<0 = 16 bytes/line (not used by the
	// set/way math directly), associativity-1 = 3 (4 ways), numsets-1 = 63
	// (64 sets).
	ccsidr := uint64(0) | (uint64(3) << 3) | (uint64(63) << 13)
	f.sysregs[sysregCCSIDR&0x7FFF] = ccsidr

	if err := tgt.FlushDCacheAll(ctx); err != nil {
		t.Fatalf("flush dcache all: %v", err)
	}
	if f.dcciswCount != 64*4 {
		t.Fatalf("dc cisw count = %d, want %d", f.dcciswCount, 64*4)
	}
	if f.dsbCount != 1 {
		t.Fatalf("dsb sy count = %d, want 1", f.dsbCount)
	}
}

func putWord(f *fakeCore, addr uint64, v uint32) {
	f.mem[addr] = byte(v)
	f.mem[addr+1] = byte(v >> 8)
	f.mem[addr+2] = byte(v >> 16)
	f.mem[addr+3] = byte(v >> 24)
}

func wordAt(f *fakeCore, addr uint64) uint32 {
	return uint32(f.mem[addr]) | uint32(f.mem[addr+1])<<8 | uint32(f.mem[addr+2])<<16 | uint32(f.mem[addr+3])<<24
}
