package mips64

import (
	"context"
	"fmt"

	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/regcache"
)

// mipsRegAccessor implements regcache.Accessor over the PrAcc ReadRegs/
// WriteRegs bulk calls. Unlike armv8's per-register DPM accessor, EJTAG PrAcc
// has no single-register read/write primitive — mips64_save_context and
// mips64_restore_context in the original are always whole-bank operations —
// so both Refresh and Flush ignore which register was actually asked for and
// move the entire bank in one PrAcc round trip.
type mipsRegAccessor struct {
	t *Target
}

func (a *mipsRegAccessor) Refresh(ctx context.Context, r *regcache.Register) error {
	return a.t.snapshotRegs(ctx)
}

func (a *mipsRegAccessor) Flush(ctx context.Context, r *regcache.Register) error {
	return a.t.flushAllRegs(ctx)
}

// defineRegs populates the 32 GPRs plus PC/EPC (one slot; the exception
// vector leaves the resume address in EPC, and that is what a debugger
// displays as "pc"), STATUS, CAUSE, and BADVADDR, in regs.go's numRegSlots
// order.
func defineRegs(c *regcache.Cache) {
	for n := 0; n < numGPR; n++ {
		c.Add(&regcache.Register{ID: n, Name: fmt.Sprintf("r%d", n), BitWidth: 64, Group: "general"})
	}
	c.Add(&regcache.Register{ID: regEPC, Name: "pc", BitWidth: 64, Group: "general"})
	c.Add(&regcache.Register{ID: regStatus, Name: "status", BitWidth: 64, Group: "system"})
	c.Add(&regcache.Register{ID: regCause, Name: "cause", BitWidth: 64, Group: "system"})
	c.Add(&regcache.Register{ID: regBadVAddr, Name: "badvaddr", BitWidth: 64, Group: "system"})
}

// regSlotIndex maps a register's cache name back to its slot in the
// ReadRegs/WriteRegs array.
func regSlotIndex(name string) int {
	switch name {
	case "pc":
		return regEPC
	case "status":
		return regStatus
	case "cause":
		return regCause
	case "badvaddr":
		return regBadVAddr
	default:
		var n int
		fmt.Sscanf(name, "r%d", &n)
		return n
	}
}

// snapshotRegs dumps the whole bank in one PrAcc round trip and marks every
// cached register clean (spec.md §4.4 "Debug entry" step 2, generalized from
// mips64_save_context being a single bulk call rather than a per-register
// refresh).
func (t *Target) snapshotRegs(ctx context.Context) error {
	regs, err := t.e.ReadRegs(ctx)
	if err != nil {
		return dbgerr.New("mips64.snapshot_regs", dbgerr.KindOf(err), err)
	}
	for _, r := range t.Regs.All() {
		t.Regs.SetClean(r, regs[regSlotIndex(r.Name)])
	}
	return nil
}

// flushAllRegs builds the full slot array from the cache's current values
// and writes the whole bank back in one PrAcc round trip
// (mips64_restore_context), bypassing regcache.Cache.FlushDirty's
// per-register Flush calls so a resume with several dirty registers doesn't
// issue several redundant bulk writes.
func (t *Target) flushAllRegs(ctx context.Context) error {
	slots := make([]uint64, numRegSlots)
	for _, r := range t.Regs.All() {
		v, err := t.Regs.Get(ctx, r)
		if err != nil {
			return err
		}
		slots[regSlotIndex(r.Name)] = v
	}
	if err := t.e.WriteRegs(ctx, slots); err != nil {
		return dbgerr.New("mips64.flush_all_regs", dbgerr.KindOf(err), err)
	}
	for _, r := range t.Regs.All() {
		r.Dirty = false
	}
	return nil
}
