package armv8

import (
	"context"
	"time"

	"github.com/chipdebug/core/internal/cti"
	"github.com/chipdebug/core/internal/dbgerr"
)

// DebugStatus is the register snapshot `aarch64 debug info status` prints,
// grounded on print_target_debug_info_status's EDSCR/EDESR/EDPRSR dump.
type DebugStatus struct {
	EDSCR  uint32
	EDESR  uint32
	EDPRSR uint32
}

// ReadDebugStatus reads the three registers print_target_debug_info_status
// dumps, leaving each unmodified.
func (t *Target) ReadDebugStatus(ctx context.Context) (DebugStatus, error) {
	edscr, err := t.dpm.EDSCR(ctx)
	if err != nil {
		return DebugStatus{}, dbgerr.New("armv8.read_debug_status", dbgerr.KindOf(err), err)
	}
	edesr, err := t.dpm.ReadReg(ctx, offEDESR)
	if err != nil {
		return DebugStatus{}, dbgerr.New("armv8.read_debug_status", dbgerr.KindOf(err), err)
	}
	edprsr, err := t.dpm.ReadReg(ctx, offEDPRSR)
	if err != nil {
		return DebugStatus{}, dbgerr.New("armv8.read_debug_status", dbgerr.KindOf(err), err)
	}
	return DebugStatus{EDSCR: edscr, EDESR: edesr, EDPRSR: edprsr}, nil
}

// CTIStatus returns this target's CTI register snapshot for `aarch64 debug
// info cti`.
func (t *Target) CTIStatus(ctx context.Context) (cti.Status, error) {
	return t.cti.ReadStatus(ctx)
}

// InitDebugAccess implements the `aarch64 dbginit` command: unlock the
// debug component's own registers by writing the unlock key to EDLAR,
// retrying for up to a second since the debug port may not be ready yet
// (grounded on aarch64_init_debug_access, whose PRSR-sticky-power-down and
// EDSCR.MA clearing steps were never enabled in the original and are not
// reproduced here).
func (t *Target) InitDebugAccess(ctx context.Context) error {
	deadline := time.Now().Add(time.Second)
	for attempt := 1; ; attempt++ {
		if err := t.dpm.WriteReg(ctx, offEDLAR, edlarUnlockKey); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return dbgerr.New("armv8.init_debug_access", dbgerr.KindTimeout, nil)
		}
		t.logger.Printf("armv8.init_debug_access: unlock attempt %d failed, retrying", attempt)
		select {
		case <-ctx.Done():
			return dbgerr.New("armv8.init_debug_access", dbgerr.KindTimeout, ctx.Err())
		default:
		}
	}
}

// BPWPSlotInfo is one comparator's diagnostic snapshot for `aarch64 debug
// info bpwp`, grounded on print_target_debug_info_bpwp's per-slot line
// (BCR/WCR fields plus the comparator value).
type BPWPSlotInfo struct {
	Index      int
	Watchpoint bool
	Used       bool
	Ctrl       uint32
	Address    uint64
}

// BPWPInfo snapshots every breakpoint and watchpoint comparator slot.
func (t *Target) BPWPInfo(ctx context.Context) ([]BPWPSlotInfo, error) {
	out := make([]BPWPSlotInfo, 0, len(t.bpSlots)+len(t.wpSlots))
	for i := range t.bpSlots {
		ctrl, addr, err := t.dpm.BpwpSnapshot(ctx, false, i)
		if err != nil {
			return nil, dbgerr.New("armv8.bpwp_info", dbgerr.KindOf(err), err)
		}
		out = append(out, BPWPSlotInfo{Index: i, Used: t.bpSlots[i].used, Ctrl: ctrl, Address: addr})
	}
	for i := range t.wpSlots {
		ctrl, addr, err := t.dpm.BpwpSnapshot(ctx, true, i)
		if err != nil {
			return nil, dbgerr.New("armv8.bpwp_info", dbgerr.KindOf(err), err)
		}
		out = append(out, BPWPSlotInfo{Index: i, Watchpoint: true, Used: t.wpSlots[i].used, Ctrl: ctrl, Address: addr})
	}
	return out, nil
}
