// Package dpm implements the ARM Debug Programmer's Model (spec.md §4.3):
// the primitive that lets the host execute a single AArch64 instruction on
// a halted core by writing it to EDITR and exchanging register data through
// the DCC (DBGDTRRX/DBGDTRTX) or, faster, through a staged X0 opcode.
package dpm

import (
	"context"
	"time"

	"github.com/chipdebug/core/internal/dap"
	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/dbglog"
)

// RegIO is the register-window access the DPM needs from the AP layer.
// *dap.DAP satisfies it directly once bound to an AP number; tests can
// supply a lighter fake.
type RegIO interface {
	MemAPReadU32(ctx context.Context, apNum uint8, addr uint32) (uint32, error)
	MemAPWriteU32(ctx context.Context, apNum uint8, addr uint32, v uint32) error
}

// DPM is bound to one debug component's register window (its 4KiB base, as
// discovered by romtable.Walk) on one AP.
type DPM struct {
	io     RegIO
	apNum  uint8
	base   uint32

	// dirtyX0, dirtyX1 record whether InstrWriteDataX0/InstrReadDataX0
	// touched the corresponding staging register during the open session;
	// the target driver queries these after Finish to refresh its own
	// register cache (spec.md §3 "register cache" dirty-tracking).
	dirtyX0 bool
	dirtyX1 bool

	logger *dbglog.Logger
}

// New binds a DPM to the debug component at base on apNum.
func New(io RegIO, apNum uint8, base uint32) *DPM {
	return &DPM{io: io, apNum: apNum, base: base, logger: dbglog.Discard}
}

// SetLogger installs a logger for this session's sticky-error clears; the
// console wires a real one, tests leave it at dbglog.Discard.
func (d *DPM) SetLogger(l *dbglog.Logger) { d.logger = l }

func (d *DPM) readReg(ctx context.Context, off uint32) (uint32, error) {
	return d.io.MemAPReadU32(ctx, d.apNum, d.base+off)
}

func (d *DPM) writeReg(ctx context.Context, off uint32, v uint32) error {
	return d.io.MemAPWriteU32(ctx, d.apNum, d.base+off, v)
}

// ReadReg exposes the debug component's register window at an arbitrary
// offset, for registers (EDPRSR, EDECR, EDESR, ...) this package does not
// otherwise name.
func (d *DPM) ReadReg(ctx context.Context, off uint32) (uint32, error) {
	return d.readReg(ctx, off)
}

// WriteReg is the write counterpart of ReadReg.
func (d *DPM) WriteReg(ctx context.Context, off uint32, v uint32) error {
	return d.writeReg(ctx, off, v)
}

// Prepare begins a DPM session (spec.md §4.3 "prepare"): it clears sticky
// EDSCR errors via EDRCR.CSE. It does not wait for EDSCR.ITE and does not
// drain stale DCC-RX data left over from a previous session.
func (d *DPM) Prepare(ctx context.Context) error {
	d.dirtyX0, d.dirtyX1 = false, false
	if err := d.writeReg(ctx, offEDRCR, edrcrCSE); err != nil {
		return dbgerr.New("dpm.prepare", dbgerr.KindOf(err), err)
	}
	d.logger.StickyCleared("dpm.prepare")
	return nil
}

// Finish ends a DPM session and reports which staging registers were
// dirtied, so the caller's register cache can be marked stale accordingly.
func (d *DPM) Finish(ctx context.Context) (dirtyX0, dirtyX1 bool) {
	return d.dirtyX0, d.dirtyX1
}

// ExecOpcode executes a single instruction in debug state: wait until
// EDSCR.ITE==1, write EDITR with opcode, wait again for EDSCR.ITE==1 with a
// 1-second deadline (spec.md §4.3 "exec_opcode").
func (d *DPM) ExecOpcode(ctx context.Context, opcode uint32) error {
	if err := d.waitITE(ctx); err != nil {
		return dbgerr.New("dpm.exec_opcode", dbgerr.KindOf(err), err)
	}
	if err := d.writeReg(ctx, offEDITR, opcode); err != nil {
		return dbgerr.New("dpm.exec_opcode", dbgerr.KindOf(err), err)
	}
	if err := d.waitITE(ctx); err != nil {
		return dbgerr.New("dpm.exec_opcode", dbgerr.KindOf(err), err)
	}
	return nil
}

func (d *DPM) waitITE(ctx context.Context) error {
	deadline := time.Now().Add(dap.WaitDeadline())
	for {
		edscr, err := d.readReg(ctx, offEDSCR)
		if err != nil {
			return err
		}
		if edscr&edscrITE != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return dbgerr.New("dpm.wait_ite", dbgerr.KindTimeout, nil)
		}
		select {
		case <-ctx.Done():
			return dbgerr.New("dpm.wait_ite", dbgerr.KindTimeout, ctx.Err())
		default:
		}
	}
}

// InstrWriteDataDCC executes opcode (typically an MRS of DBGDTR_EL0 into a
// GPR) after staging data into DBGDTRRX_EL0 for the core to consume via the
// DCC (spec.md §4.3 "instr_write_data_dcc").
func (d *DPM) InstrWriteDataDCC(ctx context.Context, opcode uint32, data uint32) error {
	if err := d.writeReg(ctx, offDBGDTRRX, data); err != nil {
		return dbgerr.New("dpm.instr_write_data_dcc", dbgerr.KindOf(err), err)
	}
	return d.ExecOpcode(ctx, opcode)
}

// InstrWriteDataDCC64 is the 64-bit counterpart: the low word is staged
// first, then the high word, matching the core's expectation that reading
// DBGDTR_EL0 as a 64-bit register drains both halves in that order.
func (d *DPM) InstrWriteDataDCC64(ctx context.Context, opcode uint32, data uint64) error {
	if err := d.writeReg(ctx, offDBGDTRRX, uint32(data)); err != nil {
		return dbgerr.New("dpm.instr_write_data_dcc64", dbgerr.KindOf(err), err)
	}
	if err := d.writeReg(ctx, offDBGDTRTX, uint32(data>>32)); err != nil {
		return dbgerr.New("dpm.instr_write_data_dcc64", dbgerr.KindOf(err), err)
	}
	return d.ExecOpcode(ctx, opcode)
}

// InstrReadDataDCC64 executes opcode (typically an MSR of DBGDTR_EL0 from a
// GPR) and reads the resulting 64-bit value back out of the DCC.
func (d *DPM) InstrReadDataDCC64(ctx context.Context, opcode uint32) (uint64, error) {
	if err := d.ExecOpcode(ctx, opcode); err != nil {
		return 0, err
	}
	lo, err := d.readReg(ctx, offDBGDTRTX)
	if err != nil {
		return 0, dbgerr.New("dpm.instr_read_data_dcc64", dbgerr.KindOf(err), err)
	}
	hi, err := d.readReg(ctx, offDBGDTRRX)
	if err != nil {
		return 0, dbgerr.New("dpm.instr_read_data_dcc64", dbgerr.KindOf(err), err)
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// InstrWriteDataX0 stages data into X0 via the DCC and marks X0 dirty for
// the caller's register cache; used when a following opcode expects its
// operand already sitting in X0 rather than arriving through a fresh MRS
// (spec.md §4.3 "instr_write_data_x0").
func (d *DPM) InstrWriteDataX0(ctx context.Context, moveToX0Opcode uint32, data uint32) error {
	if err := d.InstrWriteDataDCC(ctx, moveToX0Opcode, data); err != nil {
		return err
	}
	d.dirtyX0 = true
	return nil
}

// InstrReadDataX0 executes moveFromX0Opcode (typically MSR DBGDTR_EL0, X0)
// and returns the value, marking X0 dirty since the opcode stream may have
// clobbered it as a side effect of staging (spec.md §4.3 "instr_read_data_x0").
func (d *DPM) InstrReadDataX0(ctx context.Context, moveFromX0Opcode uint32) (uint32, error) {
	if err := d.ExecOpcode(ctx, moveFromX0Opcode); err != nil {
		return 0, err
	}
	v, err := d.readReg(ctx, offDBGDTRTX)
	if err != nil {
		return 0, dbgerr.New("dpm.instr_read_data_x0", dbgerr.KindOf(err), err)
	}
	d.dirtyX0 = true
	return v, nil
}

// BpwpEnable programs hardware breakpoint/watchpoint slot n's value and
// control registers and enables it (BCR/WCR bit 0), per spec.md §4.3
// "bpwp_enable".
func (d *DPM) BpwpEnable(ctx context.Context, isWatchpoint bool, n int, addr uint64, ctrl uint32) error {
	if isWatchpoint {
		if err := d.writeReg(ctx, wvrOffset(n), uint32(addr)); err != nil {
			return err
		}
		if err := d.writeReg(ctx, wvrOffset(n)+4, uint32(addr>>32)); err != nil {
			return err
		}
		return d.writeReg(ctx, wcrOffset(n), ctrl|1)
	}
	if err := d.writeReg(ctx, bvrLowOffset(n), uint32(addr)); err != nil {
		return err
	}
	if err := d.writeReg(ctx, bvrHighOffset(n), uint32(addr>>32)); err != nil {
		return err
	}
	return d.writeReg(ctx, bcrOffset(n), ctrl|1)
}

// BpwpSnapshot reads back slot n's control and value registers for
// diagnostic display (`aarch64 debug info bpwp`), without disturbing
// anything — a plain read-modify-nothing counterpart to BpwpEnable.
func (d *DPM) BpwpSnapshot(ctx context.Context, isWatchpoint bool, n int) (ctrl uint32, addr uint64, err error) {
	if isWatchpoint {
		ctrl, err = d.readReg(ctx, wcrOffset(n))
		if err != nil {
			return 0, 0, err
		}
		lo, err := d.readReg(ctx, wvrOffset(n))
		if err != nil {
			return 0, 0, err
		}
		hi, err := d.readReg(ctx, wvrOffset(n)+4)
		if err != nil {
			return 0, 0, err
		}
		return ctrl, uint64(hi)<<32 | uint64(lo), nil
	}
	ctrl, err = d.readReg(ctx, bcrOffset(n))
	if err != nil {
		return 0, 0, err
	}
	lo, err := d.readReg(ctx, bvrLowOffset(n))
	if err != nil {
		return 0, 0, err
	}
	hi, err := d.readReg(ctx, bvrHighOffset(n))
	if err != nil {
		return 0, 0, err
	}
	return ctrl, uint64(hi)<<32 | uint64(lo), nil
}

// BpwpDisable clears slot n's enable bit without disturbing its programmed
// value, so a subsequent enable does not need to re-supply it.
func (d *DPM) BpwpDisable(ctx context.Context, isWatchpoint bool, n int) error {
	off := bcrOffset(n)
	if isWatchpoint {
		off = wcrOffset(n)
	}
	ctrl, err := d.readReg(ctx, off)
	if err != nil {
		return err
	}
	return d.writeReg(ctx, off, ctrl&^uint32(1))
}

// EDSCR returns the raw Execution/Debug Status and Control Register.
func (d *DPM) EDSCR(ctx context.Context) (uint32, error) {
	return d.readReg(ctx, offEDSCR)
}

// StatusCode extracts EDSCR.STATUS, the field armv8's poll() state machine
// decodes (spec.md §4.4).
func StatusCode(edscr uint32) uint8 {
	return uint8(edscr & edscrStatusMask)
}
