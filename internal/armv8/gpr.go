package armv8

import (
	"context"
	"fmt"

	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/regcache"
)

const (
	sysregDLR_EL0   = 0b011_011_0100_0101_001 // debug link register, EL0 view of PC
	sysregDSPSR_EL0 = 0b011_011_0100_0101_000 // debug saved PSTATE
)

// gprRegID tags each register so the accessor knows how to move it,
// avoiding a name-string switch on every access.
type gprRegID int

const (
	gprX gprRegID = iota
	gprSP
	gprPC
	gprPSTATE
)

// gprAccessor implements regcache.Accessor for the general-purpose
// register file via DPM opcode sequences (spec.md §4.4 "Debug entry" /
// "Resume" step 1).
type gprAccessor struct {
	t *Target
}

func defineGPRs(c *regcache.Cache) {
	for n := 0; n < 31; n++ {
		c.Add(&regcache.Register{
			ID:       n,
			Name:     fmt.Sprintf("x%d", n),
			BitWidth: 64,
			Group:    "general",
		})
	}
	c.Add(&regcache.Register{ID: 31, Name: "sp", BitWidth: 64, Group: "general"})
	c.Add(&regcache.Register{ID: 32, Name: "pc", BitWidth: 64, Group: "general"})
	c.Add(&regcache.Register{ID: 33, Name: "cpsr", BitWidth: 32, Group: "general"})
}

func classifyGPR(name string) (gprRegID, int) {
	switch name {
	case "sp":
		return gprSP, 0
	case "pc":
		return gprPC, 0
	case "cpsr":
		return gprPSTATE, 0
	default:
		var n int
		fmt.Sscanf(name, "x%d", &n)
		return gprX, n
	}
}

func (a *gprAccessor) Refresh(ctx context.Context, r *regcache.Register) error {
	kind, n := classifyGPR(r.Name)
	t := a.t
	switch kind {
	case gprX:
		v, err := t.dpm.InstrReadDataDCC64(ctx, encodeMSRDBGDTR(uint8(n)))
		if err != nil {
			return dbgerr.WithReg("armv8.gpr_refresh", dbgerr.KindOf(err), r.Name, err)
		}
		t.Regs.SetClean(r, v)
	case gprSP:
		if err := t.execOpcode(ctx, encodeAddSP(0)); err != nil {
			return dbgerr.WithReg("armv8.gpr_refresh", dbgerr.KindOf(err), r.Name, err)
		}
		v, err := t.dpm.InstrReadDataDCC64(ctx, encodeMSRDBGDTR(0))
		if err != nil {
			return dbgerr.WithReg("armv8.gpr_refresh", dbgerr.KindOf(err), r.Name, err)
		}
		t.Regs.SetClean(r, v)
	case gprPC:
		v, err := t.readSysReg64(ctx, sysregDLR_EL0)
		if err != nil {
			return dbgerr.WithReg("armv8.gpr_refresh", dbgerr.KindOf(err), r.Name, err)
		}
		t.Regs.SetClean(r, v)
	case gprPSTATE:
		v, err := t.readSysReg64(ctx, sysregDSPSR_EL0)
		if err != nil {
			return dbgerr.WithReg("armv8.gpr_refresh", dbgerr.KindOf(err), r.Name, err)
		}
		t.Regs.SetClean(r, v)
	}
	return nil
}

func (a *gprAccessor) Flush(ctx context.Context, r *regcache.Register) error {
	kind, n := classifyGPR(r.Name)
	t := a.t
	// r.Dirty implies r.Valid (regcache invariant (c)), so Get here returns
	// the cached value without triggering a Refresh round trip.
	v, err := t.Regs.Get(ctx, r)
	if err != nil {
		return err
	}
	switch kind {
	case gprX:
		if err := t.dpm.InstrWriteDataDCC64(ctx, encodeMRSDBGDTR(0), v); err != nil {
			return dbgerr.WithReg("armv8.gpr_flush", dbgerr.KindOf(err), r.Name, err)
		}
		if n != 0 {
			if err := t.execOpcode(ctx, encodeMOVReg(uint8(n), 0)); err != nil {
				return dbgerr.WithReg("armv8.gpr_flush", dbgerr.KindOf(err), r.Name, err)
			}
		}
	case gprSP:
		if err := t.dpm.InstrWriteDataDCC64(ctx, encodeMRSDBGDTR(0), v); err != nil {
			return dbgerr.WithReg("armv8.gpr_flush", dbgerr.KindOf(err), r.Name, err)
		}
		if err := t.execOpcode(ctx, encodeMovSP(0)); err != nil {
			return dbgerr.WithReg("armv8.gpr_flush", dbgerr.KindOf(err), r.Name, err)
		}
	case gprPC:
		if err := t.writeSysReg64(ctx, sysregDLR_EL0, v); err != nil {
			return dbgerr.WithReg("armv8.gpr_flush", dbgerr.KindOf(err), r.Name, err)
		}
	case gprPSTATE:
		if err := t.writeSysReg64(ctx, sysregDSPSR_EL0, v); err != nil {
			return dbgerr.WithReg("armv8.gpr_flush", dbgerr.KindOf(err), r.Name, err)
		}
	}
	return nil
}

// snapshotGPRs reads X0..X30, SP, PC, and PSTATE in that order — X0 first,
// because subsequent opcodes use it as scratch and would otherwise clobber
// an unsaved value (spec.md §4.4 "Debug entry" step 2).
func (t *Target) snapshotGPRs(ctx context.Context) error {
	for n := 0; n <= 30; n++ {
		r := t.Regs.ByName(fmt.Sprintf("x%d", n))
		if _, err := t.Regs.Get(ctx, r); err != nil {
			return err
		}
	}
	for _, name := range []string{"sp", "pc", "cpsr"} {
		r := t.Regs.ByName(name)
		if _, err := t.Regs.Get(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
