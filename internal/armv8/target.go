// Package armv8 implements the ARMv8-A target driver of spec.md §4.4: the
// poll/halt/resume/step state machine, register cache, breakpoints and
// watchpoints, memory access, and cache maintenance, all built on top of
// the dpm and cti packages.
package armv8

import (
	"context"
	"time"

	"github.com/chipdebug/core/internal/cti"
	"github.com/chipdebug/core/internal/dap"
	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/dbglog"
	"github.com/chipdebug/core/internal/dpm"
	"github.com/chipdebug/core/internal/regcache"
)

// EventKind is emitted by Poll on a state edge (spec.md §6 front-end
// contract: halted, resumed, debug-halted, debug-resumed, reset-assert).
type EventKind int

const (
	EventHalted EventKind = iota
	EventResumed
	EventDebugHalted
	EventDebugResumed
	EventResetAssert
)

// EventFunc receives target-event callbacks on state edges.
type EventFunc func(EventKind)

// Config carries the per-target flags the driver needs (spec.md §4.4).
type Config struct {
	DisableInterruptsDuringStep bool
	UnalignedAccessOK           bool
	MemoryAPAvailable           bool
	MemAPNum                    uint8
}

// Target implements the target façade of spec.md §4.8 for one ARMv8-A PE.
type Target struct {
	dpm *dpm.DPM
	cti *cti.CTI
	d   *dap.DAP

	cfg Config

	Regs  *regcache.Cache
	Cache CacheDescriptor
	MMU   MMUState

	state   State
	reason  DebugReason
	probed  bool

	smp      bool
	smpPeers []*Target

	hostedCtrlC bool
	onEvent     EventFunc

	shadowEDSCR uint32
	wfar        uint64

	bpSlots []bpSlot
	wpSlots []wpSlot

	logger *dbglog.Logger
}

// New constructs an armv8 Target bound to the given DPM/CTI session
// primitives and DAP (used for the AHB/AXI memory-access fast path).
func New(d *dap.DAP, dp *dpm.DPM, c *cti.CTI, cfg Config, numBRP, numWRP int, onEvent EventFunc) *Target {
	t := &Target{dpm: dp, cti: c, d: d, cfg: cfg, onEvent: onEvent, logger: dbglog.Discard}
	t.Regs = regcache.New(&gprAccessor{t: t})
	t.bpSlots = make([]bpSlot, numBRP)
	t.wpSlots = make([]wpSlot, numWRP)
	defineGPRs(t.Regs)
	return t
}

// SetLogger installs a logger for this target's console-facing operations
// (dbginit retries, cache/bpwp diagnostics); tests leave it at dbglog.Discard.
func (t *Target) SetLogger(l *dbglog.Logger) { t.logger = l }

func (t *Target) emit(k EventKind) {
	if t.onEvent != nil {
		t.onEvent(k)
	}
}

// SetEventFunc installs the target-event callback, mirroring mips64.Target's
// method of the same name.
func (t *Target) SetEventFunc(f EventFunc) { t.onEvent = f }

// Examine identifies the target once at configuration time (spec.md §3
// "Target" lifecycle: "examined once (identification)").
func (t *Target) Examine(ctx context.Context) error {
	if err := t.cti.Init(ctx); err != nil {
		return dbgerr.New("armv8.examine", dbgerr.KindOf(err), err)
	}
	t.probed = true
	return t.Poll(ctx)
}

// Poll refreshes target state by reading EDSCR and classifying
// EDSCR.STATUS (spec.md §4.4 "State machine").
func (t *Target) Poll(ctx context.Context) error {
	if !t.probed {
		return dbgerr.New("armv8.poll", dbgerr.KindNotProbed, nil)
	}
	edscr, err := t.dpm.EDSCR(ctx)
	if err != nil {
		return dbgerr.New("armv8.poll", dbgerr.KindOf(err), err)
	}
	t.shadowEDSCR = edscr

	status := dpm.StatusCode(edscr)
	state, reason, valid := classifyStatus(status)
	if !valid {
		t.state = StateUnknown
		return dbgerr.New("armv8.poll", dbgerr.KindDeviceError, nil)
	}

	prevState := t.state
	t.state = state
	t.reason = reason

	if prevState != StateHalted && state == StateHalted {
		if err := t.debugEntry(ctx); err != nil {
			return err
		}
		// spec.md §9 design note: the event fires once here; the state
		// field above is already set to halted, so the callback must not
		// set it again (that produces the infinite eval loop the source
		// author flagged).
		t.emit(EventHalted)
	} else if prevState == StateHalted && state != StateHalted {
		t.emit(EventResumed)
	}
	return nil
}

// State returns the last-polled execution state.
func (t *Target) State() State { return t.state }

// DebugReason returns the last-polled halt reason.
func (t *Target) DebugReason() DebugReason { return t.reason }

// Halt implements spec.md §4.4 "Halt": single-core asks the CTI to assert
// Debug-request, polls EDSCR.STATUS until halted, then acknowledges.
func (t *Target) Halt(ctx context.Context) error {
	if t.smp {
		return t.haltGroup(ctx)
	}
	return t.haltOne(ctx)
}

func (t *Target) haltOne(ctx context.Context) error {
	if t.state == StateHalted {
		return nil
	}
	if err := t.cti.HaltSingle(ctx); err != nil {
		return dbgerr.New("armv8.halt", dbgerr.KindOf(err), err)
	}
	deadline := time.Now().Add(dap.WaitDeadline())
	for {
		edscr, err := t.dpm.EDSCR(ctx)
		if err != nil {
			return dbgerr.New("armv8.halt", dbgerr.KindOf(err), err)
		}
		if state, _, ok := classifyStatus(dpm.StatusCode(edscr)); ok && state == StateHalted {
			break
		}
		if time.Now().After(deadline) {
			return dbgerr.New("armv8.halt", dbgerr.KindTimeout, nil)
		}
	}
	if err := t.cti.AckDebugTrigger(ctx); err != nil {
		return dbgerr.New("armv8.halt", dbgerr.KindOf(err), err)
	}
	return t.Poll(ctx)
}

// haltGroup implements "SMP group halt: iterate all SMP peers and halt
// each non-halted one, collecting the last non-OK error."
func (t *Target) haltGroup(ctx context.Context) error {
	var lastErr error
	for _, p := range t.smpPeers {
		if p.state == StateHalted {
			continue
		}
		if err := p.haltOne(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// debugEntry implements spec.md §4.4 "Debug entry (after a halt is
// observed)".
func (t *Target) debugEntry(ctx context.Context) error {
	if t.reason == ReasonWatchpoint {
		wfar, err := t.readSysReg64(ctx, sysregWFAR)
		if err != nil {
			return dbgerr.New("armv8.debug_entry", dbgerr.KindOf(err), err)
		}
		t.wfar = wfar
	}

	if err := t.snapshotGPRs(ctx); err != nil {
		return err
	}

	sctlr, err := t.currentSCTLR(ctx)
	if err != nil {
		return err
	}
	t.MMU.TranslationEnabled = sctlr&1 != 0
	t.MMU.ICacheEnabled = sctlr&(1<<12) != 0
	t.MMU.DCacheEnabled = sctlr&(1<<2) != 0

	if !t.Cache.Identified {
		if err := t.IdentifyCache(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Resume implements spec.md §4.4 "Resume" and §4.8's resume contract.
func (t *Target) Resume(ctx context.Context, currentPC bool, address uint64, handleBreakpoints, debugExec bool) error {
	if t.hostedCtrlC {
		t.hostedCtrlC = false
		return nil
	}
	if t.state != StateHalted {
		return dbgerr.New("armv8.resume", dbgerr.KindNotHalted, nil)
	}

	var tempBP *bpSlot
	if !currentPC {
		pc := t.Regs.ByName("pc")
		t.Regs.Set(pc, address)
	}
	if handleBreakpoints {
		pcReg := t.Regs.ByName("pc")
		pcVal, _ := t.Regs.Get(ctx, pcReg)
		if slot := t.bpAtAddress(pcVal); slot != nil {
			if err := t.removeHardwareOrSoftwareBP(ctx, slot); err != nil {
				return err
			}
			tempBP = slot
			if err := t.stepOne(ctx); err != nil {
				return err
			}
			if err := t.installBP(ctx, tempBP); err != nil {
				return err
			}
		}
	}

	t.Regs.MarkDirty(t.Regs.ByName("pc"))
	t.Regs.MarkDirty(t.Regs.ByName("x30"))

	if err := t.Regs.FlushDirty(ctx); err != nil {
		return dbgerr.New("armv8.resume", dbgerr.KindOf(err), err)
	}

	if t.smp {
		return t.resumeGroup(ctx)
	}
	if err := t.restartCore(ctx, false); err != nil {
		return err
	}
	t.emit(EventResumed)
	return nil
}

// resumeGroup implements spec.md §8 scenario S6's restart half: every peer's
// restart channel is armed (CTIGATE/CTIOUTEN on the Restart channel), then
// exactly one physical pulse is issued, on the last peer — it reaches every PE wired onto the
// same cross-trigger matrix — after which each peer's own EDPRSR.SDR is
// polled and its register cache invalidated (cti.PulseRestart's doc: "call
// this on exactly one peer of an SMP group once every peer's channel is
// prepared").
func (t *Target) resumeGroup(ctx context.Context) error {
	for _, p := range t.smpPeers {
		if err := p.dpm.Prepare(ctx); err != nil {
			return dbgerr.New("armv8.resume_group", dbgerr.KindOf(err), err)
		}
		if err := p.cti.AckDebugTrigger(ctx); err != nil {
			return dbgerr.New("armv8.resume_group", dbgerr.KindOf(err), err)
		}
		if err := p.cti.PrepareRestartChannel(ctx); err != nil {
			return dbgerr.New("armv8.resume_group", dbgerr.KindOf(err), err)
		}
	}
	last := t
	if n := len(t.smpPeers); n > 0 {
		last = t.smpPeers[n-1]
	}
	if err := last.cti.PulseRestart(ctx); err != nil {
		return dbgerr.New("armv8.resume_group", dbgerr.KindOf(err), err)
	}

	var lastErr error
	for _, p := range t.smpPeers {
		if err := p.pollEDPRSRRestart(ctx); err != nil {
			lastErr = err
			continue
		}
		p.Regs.InvalidateAll()
		p.state = StateRunning
		p.emit(EventResumed)
	}
	return lastErr
}

// restartCore implements steps 2-6 of "Resume": clear sticky errors,
// clear/ack the Debug trigger, pulse Restart, poll EDPRSR.SDR, invalidate
// the register cache. stepMode relaxes the post-restart status check to
// accept the step-nosyndrome code.
func (t *Target) restartCore(ctx context.Context, stepMode bool) error {
	if err := t.dpm.Prepare(ctx); err != nil {
		return dbgerr.New("armv8.restart_core", dbgerr.KindOf(err), err)
	}
	if err := t.cti.AckDebugTrigger(ctx); err != nil {
		return dbgerr.New("armv8.restart_core", dbgerr.KindOf(err), err)
	}
	if err := t.cti.PrepareRestartChannel(ctx); err != nil {
		return dbgerr.New("armv8.restart_core", dbgerr.KindOf(err), err)
	}
	if err := t.cti.PulseRestart(ctx); err != nil {
		return dbgerr.New("armv8.restart_core", dbgerr.KindOf(err), err)
	}

	if err := t.pollEDPRSRRestart(ctx); err != nil {
		return err
	}

	edscr, err := t.dpm.EDSCR(ctx)
	if err != nil {
		return dbgerr.New("armv8.restart_core", dbgerr.KindOf(err), err)
	}
	status := dpm.StatusCode(edscr)
	state, _, valid := classifyStatus(status)
	stillHalted := valid && state == StateHalted
	if stillHalted {
		if !(stepMode && isStepNoSyndrome(status)) {
			return dbgerr.New("armv8.restart_core", dbgerr.KindDeviceError, nil)
		}
	}

	t.Regs.InvalidateAll()
	t.state = StateRunning
	return nil
}

func (t *Target) pollEDPRSRRestart(ctx context.Context) error {
	deadline := time.Now().Add(dap.WaitDeadline())
	for {
		edprsr, err := t.readEDPRSR(ctx)
		if err != nil {
			return dbgerr.New("armv8.poll_edprsr_restart", dbgerr.KindOf(err), err)
		}
		if edprsr&edprsrSDR != 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return dbgerr.New("armv8.poll_edprsr_restart", dbgerr.KindTimeout, nil)
		}
	}
}

// Step implements spec.md §4.4 "Step".
func (t *Target) Step(ctx context.Context, currentPC bool, address uint64, handleBreakpoints bool) error {
	if t.state != StateHalted {
		return dbgerr.New("armv8.step", dbgerr.KindNotHalted, nil)
	}
	return t.stepOne(ctx)
}

func (t *Target) stepOne(ctx context.Context) error {
	if err := t.writeEDECR(ctx, edecrSS); err != nil {
		return dbgerr.New("armv8.step", dbgerr.KindOf(err), err)
	}
	if err := t.restartCore(ctx, true); err != nil {
		return err
	}
	deadline := time.Now().Add(dap.WaitDeadline())
	for {
		edscr, err := t.dpm.EDSCR(ctx)
		if err != nil {
			return dbgerr.New("armv8.step", dbgerr.KindOf(err), err)
		}
		status := dpm.StatusCode(edscr)
		if state, _, ok := classifyStatus(status); ok && state == StateHalted {
			break
		}
		if time.Now().After(deadline) {
			return dbgerr.New("armv8.step", dbgerr.KindTimeout, nil)
		}
	}
	if err := t.writeEDESR(ctx, 0); err != nil {
		return dbgerr.New("armv8.step", dbgerr.KindOf(err), err)
	}
	if err := t.writeEDECR(ctx, 0); err != nil {
		return dbgerr.New("armv8.step", dbgerr.KindOf(err), err)
	}
	return t.Poll(ctx)
}

// AssertReset implements spec.md §4.4 "Reset": re-initialise the DP,
// invalidate the register cache and mark the target reset. reqHalt is not
// used here; DeassertReset halts the target when its reqHalt is set.
func (t *Target) AssertReset(ctx context.Context, reqHalt bool) error {
	if err := t.d.DPInit(ctx); err != nil {
		return dbgerr.New("armv8.assert_reset", dbgerr.KindOf(err), err)
	}
	t.Regs.InvalidateAll()
	t.state = StateReset
	t.emit(EventResetAssert)
	return nil
}

// DeassertReset completes the reset sequence, optionally halting.
func (t *Target) DeassertReset(ctx context.Context, reqHalt bool) error {
	if reqHalt {
		return t.Halt(ctx)
	}
	return t.Poll(ctx)
}

// SetHostedCtrlC implements spec.md §5 "Cancellation": a flag checked at
// the head of resume; set, it causes resume to update GDB-visible state
// only, without re-entering the target.
func (t *Target) SetHostedCtrlC() { t.hostedCtrlC = true }

// JoinSMP adds peers as this target's SMP group and marks it SMP, wiring
// every peer's CTI for cross-halt (spec.md §4.5 "Enable SMP cross-halt").
func (t *Target) JoinSMP(ctx context.Context, peers []*Target) error {
	t.smp = true
	t.smpPeers = peers
	for _, p := range peers {
		if err := p.cti.EnableSMPCrossHalt(ctx); err != nil {
			return dbgerr.New("armv8.join_smp", dbgerr.KindOf(err), err)
		}
	}
	return nil
}
