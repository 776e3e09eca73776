package armv8

import (
	"context"

	"github.com/chipdebug/core/internal/dbgerr"
)

const (
	sysregSCTLR_EL1 = 0b011_000_0001_0000_000
	sysregSCTLR_EL2 = 0b011_100_0001_0000_000
	sysregSCTLR_EL3 = 0b011_110_0001_0000_000
	sysregWFAR      = 0b010_000_0110_0000_000 // EDWAR, external view of the watchpoint fault address
)

const (
	offEDPRSR = 0x314
	offEDECR  = 0x024
	offEDESR  = 0x038
	offEDLAR  = 0xFB0
)

const edprsrSDR = 1 << 1

const edecrSS = 1 << 2 // EDECR.SS, halting step enable

const edlarUnlockKey = 0xC5ACCE55

// execOpcode is the single-instruction-execute primitive every higher-level
// sequence in this package builds on.
func (t *Target) execOpcode(ctx context.Context, opcode uint32) error {
	return t.dpm.ExecOpcode(ctx, opcode)
}

// readSysReg64 moves a system register into X0 (`mrs x0, <sysreg>`), pushes
// it to the DCC (`msr dbgdtr_el0, x0`), and reads it back (spec.md §4.3
// "instr_read_data_dcc_64" composed with an mrs).
func (t *Target) readSysReg64(ctx context.Context, sysreg uint32) (uint64, error) {
	if err := t.execOpcode(ctx, encodeMRSReg(0, sysreg)); err != nil {
		return 0, dbgerr.New("armv8.read_sys_reg", dbgerr.KindOf(err), err)
	}
	v, err := t.dpm.InstrReadDataDCC64(ctx, encodeMSRDBGDTR(0))
	if err != nil {
		return 0, dbgerr.New("armv8.read_sys_reg", dbgerr.KindOf(err), err)
	}
	return v, nil
}

// writeSysReg64 stages data into X0 via the DCC (`mrs x0, dbgdtr_el0`) then
// moves it into the system register (`msr <sysreg>, x0`).
func (t *Target) writeSysReg64(ctx context.Context, sysreg uint32, data uint64) error {
	if err := t.dpm.InstrWriteDataDCC64(ctx, encodeMRSDBGDTR(0), data); err != nil {
		return dbgerr.New("armv8.write_sys_reg", dbgerr.KindOf(err), err)
	}
	if err := t.execOpcode(ctx, encodeMSRReg(0, sysreg)); err != nil {
		return dbgerr.New("armv8.write_sys_reg", dbgerr.KindOf(err), err)
	}
	return nil
}

// currentSCTLR reads SCTLR of the EL indicated by EDSCR.EL (spec.md §4.4
// "Debug entry" step 3).
func (t *Target) currentSCTLR(ctx context.Context) (uint64, error) {
	el := (t.shadowEDSCR >> 8) & 0x3
	var sysreg uint32
	switch el {
	case 2:
		sysreg = sysregSCTLR_EL2
	case 3:
		sysreg = sysregSCTLR_EL3
	default:
		sysreg = sysregSCTLR_EL1
	}
	return t.readSysReg64(ctx, sysreg)
}

func (t *Target) readEDPRSR(ctx context.Context) (uint32, error) {
	return t.dpm.ReadReg(ctx, offEDPRSR)
}

func (t *Target) writeEDECR(ctx context.Context, v uint32) error {
	return t.dpm.WriteReg(ctx, offEDECR, v)
}

func (t *Target) writeEDESR(ctx context.Context, v uint32) error {
	return t.dpm.WriteReg(ctx, offEDESR, v)
}
