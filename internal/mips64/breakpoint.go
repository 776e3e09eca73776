package mips64

import (
	"context"

	"github.com/chipdebug/core/internal/dbgerr"
)

// Breakpoint is the public handle spec.md §3 describes, generalized from
// mips64_5kc_set_breakpoint's two install paths: a hardware comparator slot,
// or a software SDBBP overwrite with the original word saved for restore.
type Breakpoint struct {
	Address    uint64
	Hardware   bool
	setIndex   int // index into bpSlots, -1 when not installed (software path)
	savedInstr uint32
}

// Watchpoint is the public handle for a hardware data comparator
// (mips64_5kc_set_watchpoint requires length==4 and a 4-byte-aligned
// address — there is no software watchpoint fallback).
type Watchpoint struct {
	Address  uint64
	Length   int
	RWKind   string // "read", "write", or "access"
	setIndex int
}

type bpSlot struct {
	used bool
	bp   *Breakpoint
}

type wpSlot struct {
	used bool
	wp   *Watchpoint
}

// Hardware comparator register offsets relative to Comparator.BaseAddr, per
// mips64_5kc_set_breakpoint/set_watchpoint: an address register, a mask/
// value register, and an enable/control register, with watchpoints adding
// two more (a second value register and a second control register for the
// load/store qualifier pair the original's data_break_list entries carry).
const (
	comparatorAddrOff = 0x00
	comparatorMaskOff = 0x08
	comparatorCtrlOff = 0x18
	comparatorVal2Off = 0x10
	comparatorCtrl2Off = 0x20
)

// Watchpoint enable-mask bits, matching EJTAG_DBCn_NOSB/NOLB/BE and the
// byte-lane-mask field mips64_5kc_set_watchpoint always sets to 0xff (full
// word) since this package only supports 4-byte watchpoints.
const (
	dbcNoStoreByte = 1 << 0
	dbcNoLoadByte  = 1 << 1
	dbcBigEndian   = 1 << 2
	dbcBLMAll      = 0xff << 4
)

func (t *Target) freeBRP() int {
	for i, s := range t.bpSlots {
		if !s.used {
			return i
		}
	}
	return -1
}

func (t *Target) freeWRP() int {
	for i, s := range t.wpSlots {
		if !s.used {
			return i
		}
	}
	return -1
}

// AddBreakpoint implements spec.md §4.4 "Breakpoints". length is accepted
// for parity with armv8's comparator sizing (internal/target dispatches both
// drivers through one signature) but is otherwise unused here: every MIPS64
// instruction is a fixed 4-byte word, so there is no byte-address-select
// shaping to do the way armv8's Thumb/A32 mix requires.
func (t *Target) AddBreakpoint(ctx context.Context, addr uint64, length int, hardware bool) (*Breakpoint, error) {
	bp := &Breakpoint{Address: addr, Hardware: hardware, setIndex: -1}
	if hardware {
		if err := t.installHardwareBP(ctx, bp); err != nil {
			return nil, err
		}
		return bp, nil
	}
	if err := t.installSoftwareBP(ctx, bp); err != nil {
		return nil, err
	}
	return bp, nil
}

func (t *Target) addSoftwareBP(ctx context.Context, addr uint64) (*bpSlot, error) {
	bp, err := t.AddBreakpoint(ctx, addr, 4, false)
	if err != nil {
		return nil, err
	}
	return &bpSlot{used: true, bp: bp}, nil
}

func (t *Target) installHardwareBP(ctx context.Context, bp *Breakpoint) error {
	idx := t.freeBRP()
	if idx < 0 {
		return dbgerr.New("mips64.add_breakpoint", dbgerr.KindResourceUnavailable, nil)
	}
	cmp := t.cfg.InstComparators[idx]
	if err := t.e.WriteU64(ctx, cmp.BaseAddr+comparatorAddrOff, bp.Address); err != nil {
		return dbgerr.WithAddr("mips64.add_breakpoint", dbgerr.KindOf(err), bp.Address, err)
	}
	if err := t.e.WriteU64(ctx, cmp.BaseAddr+comparatorMaskOff, 0); err != nil {
		return dbgerr.WithAddr("mips64.add_breakpoint", dbgerr.KindOf(err), bp.Address, err)
	}
	if err := t.e.WriteU32(ctx, cmp.BaseAddr+comparatorCtrlOff, 1); err != nil {
		return dbgerr.WithAddr("mips64.add_breakpoint", dbgerr.KindOf(err), bp.Address, err)
	}
	bp.setIndex = idx
	t.bpSlots[idx] = bpSlot{used: true, bp: bp}
	t.cfg.InstComparators[idx].used = true
	return nil
}

// installSoftwareBP overwrites the target instruction with MIPS64_SDBBP,
// saving the original word, then reads it back to confirm the write stuck
// (mips64_5kc_set_breakpoint's software path).
func (t *Target) installSoftwareBP(ctx context.Context, bp *Breakpoint) error {
	orig, err := t.e.ReadU32(ctx, bp.Address)
	if err != nil {
		return err
	}
	bp.savedInstr = orig
	if err := t.e.WriteU32(ctx, bp.Address, sdbbp); err != nil {
		return err
	}
	got, err := t.e.ReadU32(ctx, bp.Address)
	if err != nil {
		return err
	}
	if got != sdbbp {
		return dbgerr.WithAddr("mips64.add_breakpoint", dbgerr.KindDeviceError, bp.Address, nil)
	}
	bp.setIndex = -1
	return nil
}

// installBP re-programs a previously-removed BP, used by Resume/Step's
// single-step-past sequence.
func (t *Target) installBP(ctx context.Context, slot *bpSlot) error {
	bp := slot.bp
	if bp.Hardware {
		return t.installHardwareBP(ctx, bp)
	}
	return t.installSoftwareBP(ctx, bp)
}

// RemoveBreakpoint implements the "Unset" step of spec.md §4.4
// "Breakpoints". The software path only restores the original word if the
// current instruction still reads back as SDBBP (mips64_5kc_unset_breakpoint
// — guards against restoring over something else already written there).
func (t *Target) RemoveBreakpoint(ctx context.Context, bp *Breakpoint) error {
	if bp.Hardware {
		if bp.setIndex < 0 {
			return nil
		}
		cmp := t.cfg.InstComparators[bp.setIndex]
		if err := t.e.WriteU32(ctx, cmp.BaseAddr+comparatorCtrlOff, 0); err != nil {
			return dbgerr.WithAddr("mips64.remove_breakpoint", dbgerr.KindOf(err), bp.Address, err)
		}
		t.bpSlots[bp.setIndex] = bpSlot{}
		t.cfg.InstComparators[bp.setIndex].used = false
		bp.setIndex = -1
		return nil
	}
	cur, err := t.e.ReadU32(ctx, bp.Address)
	if err != nil {
		return err
	}
	if cur != sdbbp {
		return nil
	}
	return t.e.WriteU32(ctx, bp.Address, bp.savedInstr)
}

func (t *Target) removeBP(ctx context.Context, slot *bpSlot) error {
	return t.RemoveBreakpoint(ctx, slot.bp)
}

// bpAtAddress finds a hardware BP installed at addr, used by Resume's and
// Step's single-step-past logic. Software BPs are not held in bpSlots and
// are not found.
func (t *Target) bpAtAddress(addr uint64) *bpSlot {
	for i := range t.bpSlots {
		if t.bpSlots[i].used && t.bpSlots[i].bp.Address == addr {
			return &t.bpSlots[i]
		}
	}
	return nil
}

// AddWatchpoint implements spec.md §4.4 "Watchpoints": length must be 4 and
// address 4-byte aligned, matching mips64_5kc_set_watchpoint's invariant —
// this package carries no software watchpoint fallback.
func (t *Target) AddWatchpoint(ctx context.Context, addr uint64, length int, rwKind string) (*Watchpoint, error) {
	if length != 4 || addr&3 != 0 {
		return nil, dbgerr.WithAddr("mips64.add_watchpoint", dbgerr.KindInvalidParameter, addr, nil)
	}
	idx := t.freeWRP()
	if idx < 0 {
		return nil, dbgerr.New("mips64.add_watchpoint", dbgerr.KindResourceUnavailable, nil)
	}
	cmp := t.cfg.DataComparators[idx]
	mask := uint32(dbcBigEndian | dbcBLMAll)
	switch rwKind {
	case "read":
		mask |= dbcNoStoreByte
	case "write":
		mask |= dbcNoLoadByte
	}
	if err := t.e.WriteU64(ctx, cmp.BaseAddr+comparatorAddrOff, addr); err != nil {
		return nil, dbgerr.WithAddr("mips64.add_watchpoint", dbgerr.KindOf(err), addr, err)
	}
	if err := t.e.WriteU32(ctx, cmp.BaseAddr+comparatorMaskOff, mask); err != nil {
		return nil, dbgerr.WithAddr("mips64.add_watchpoint", dbgerr.KindOf(err), addr, err)
	}
	if err := t.e.WriteU32(ctx, cmp.BaseAddr+comparatorVal2Off, 0); err != nil {
		return nil, dbgerr.WithAddr("mips64.add_watchpoint", dbgerr.KindOf(err), addr, err)
	}
	if err := t.e.WriteU32(ctx, cmp.BaseAddr+comparatorCtrlOff, 1); err != nil {
		return nil, dbgerr.WithAddr("mips64.add_watchpoint", dbgerr.KindOf(err), addr, err)
	}
	if err := t.e.WriteU32(ctx, cmp.BaseAddr+comparatorCtrl2Off, 0); err != nil {
		return nil, dbgerr.WithAddr("mips64.add_watchpoint", dbgerr.KindOf(err), addr, err)
	}
	wp := &Watchpoint{Address: addr, Length: length, RWKind: rwKind, setIndex: idx}
	t.wpSlots[idx] = wpSlot{used: true, wp: wp}
	t.cfg.DataComparators[idx].used = true
	return wp, nil
}

// RemoveWatchpoint disables and frees the comparator.
func (t *Target) RemoveWatchpoint(ctx context.Context, wp *Watchpoint) error {
	if wp.setIndex < 0 {
		return nil
	}
	cmp := t.cfg.DataComparators[wp.setIndex]
	if err := t.e.WriteU32(ctx, cmp.BaseAddr+comparatorCtrlOff, 0); err != nil {
		return dbgerr.WithAddr("mips64.remove_watchpoint", dbgerr.KindOf(err), wp.Address, err)
	}
	t.wpSlots[wp.setIndex] = wpSlot{}
	t.cfg.DataComparators[wp.setIndex].used = false
	wp.setIndex = -1
	return nil
}
