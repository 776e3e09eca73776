package target

import (
	"context"

	"github.com/chipdebug/core/internal/armv8"
	"github.com/chipdebug/core/internal/dbgerr"
)

// armv8Adapter satisfies Target by forwarding to an *armv8.Target, converting
// its State/DebugReason/Breakpoint/Watchpoint types to the shared ones.
type armv8Adapter struct {
	t *armv8.Target
}

// NewARMv8 wraps an armv8 driver behind the shared target façade.
func NewARMv8(t *armv8.Target) Target { return &armv8Adapter{t: t} }

// Unwrap returns the concrete *armv8.Target, for callers (cache maintenance,
// CTI/bpwp introspection commands) that need the architecture-specific
// surface beyond the shared façade.
func (a *armv8Adapter) Unwrap() *armv8.Target { return a.t }

func (a *armv8Adapter) Arch() string { return "aarch64" }

func (a *armv8Adapter) Examine(ctx context.Context) error { return a.t.Examine(ctx) }
func (a *armv8Adapter) Poll(ctx context.Context) error    { return a.t.Poll(ctx) }

func (a *armv8Adapter) State() State { return armv8StateToTarget(a.t.State()) }

func (a *armv8Adapter) DebugReason() DebugReason {
	return armv8ReasonToTarget(a.t.DebugReason())
}

func (a *armv8Adapter) Halt(ctx context.Context) error { return a.t.Halt(ctx) }

func (a *armv8Adapter) Resume(ctx context.Context, currentPC bool, address uint64, handleBreakpoints, debugExec bool) error {
	return a.t.Resume(ctx, currentPC, address, handleBreakpoints, debugExec)
}

func (a *armv8Adapter) Step(ctx context.Context, currentPC bool, address uint64, handleBreakpoints bool) error {
	return a.t.Step(ctx, currentPC, address, handleBreakpoints)
}

func (a *armv8Adapter) ReadMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error {
	return a.t.ReadMemory(ctx, addr, size, count, buf)
}

func (a *armv8Adapter) WriteMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error {
	return a.t.WriteMemory(ctx, addr, size, count, buf)
}

func (a *armv8Adapter) ReadPhysMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error {
	return a.t.ReadPhysMemory(ctx, addr, size, count, buf)
}

func (a *armv8Adapter) WritePhysMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error {
	return a.t.WritePhysMemory(ctx, addr, size, count, buf)
}

func (a *armv8Adapter) AddBreakpoint(ctx context.Context, addr uint64, length int, hardware bool) (*Breakpoint, error) {
	bp, err := a.t.AddBreakpoint(ctx, addr, length, hardware)
	if err != nil {
		return nil, err
	}
	return &Breakpoint{Address: bp.Address, Length: bp.Length, Hardware: bp.Hardware, native: bp}, nil
}

func (a *armv8Adapter) RemoveBreakpoint(ctx context.Context, bp *Breakpoint) error {
	native, ok := bp.native.(*armv8.Breakpoint)
	if !ok {
		return dbgerr.New("target.remove_breakpoint", dbgerr.KindInvalidParameter, nil)
	}
	return a.t.RemoveBreakpoint(ctx, native)
}

func (a *armv8Adapter) AddWatchpoint(ctx context.Context, addr uint64, length int, rwKind string) (*Watchpoint, error) {
	wp, err := a.t.AddWatchpoint(ctx, addr, length, rwKind)
	if err != nil {
		return nil, err
	}
	return &Watchpoint{Address: wp.Address, Length: wp.Length, RWKind: wp.RWKind, native: wp}, nil
}

func (a *armv8Adapter) RemoveWatchpoint(ctx context.Context, wp *Watchpoint) error {
	native, ok := wp.native.(*armv8.Watchpoint)
	if !ok {
		return dbgerr.New("target.remove_watchpoint", dbgerr.KindInvalidParameter, nil)
	}
	return a.t.RemoveWatchpoint(ctx, native)
}

func (a *armv8Adapter) AssertReset(ctx context.Context, reqHalt bool) error {
	return a.t.AssertReset(ctx, reqHalt)
}

func (a *armv8Adapter) DeassertReset(ctx context.Context, reqHalt bool) error {
	return a.t.DeassertReset(ctx, reqHalt)
}

func (a *armv8Adapter) SetHostedCtrlC() { a.t.SetHostedCtrlC() }

func (a *armv8Adapter) SetEventFunc(f EventFunc) {
	a.t.SetEventFunc(func(k armv8.EventKind) { f(EventKind(k)) })
}

// JoinSMP unwraps every peer back to its concrete *armv8.Target — every
// member of an SMP group must be an armv8Adapter, mixed-architecture groups
// are rejected rather than silently dropping peers.
func (a *armv8Adapter) JoinSMP(ctx context.Context, peers []Target) error {
	native := make([]*armv8.Target, 0, len(peers))
	for _, p := range peers {
		pa, ok := p.(*armv8Adapter)
		if !ok {
			return dbgerr.New("target.join_smp", dbgerr.KindInvalidParameter, nil)
		}
		native = append(native, pa.t)
	}
	return a.t.JoinSMP(ctx, native)
}

func armv8StateToTarget(s armv8.State) State {
	switch s {
	case armv8.StateRunning:
		return StateRunning
	case armv8.StateHalted:
		return StateHalted
	case armv8.StateReset:
		return StateReset
	case armv8.StateDebugRunning:
		return StateDebugRunning
	default:
		return StateUnknown
	}
}

func armv8ReasonToTarget(r armv8.DebugReason) DebugReason {
	switch r {
	case armv8.ReasonDbgrq:
		return ReasonDebugRequest
	case armv8.ReasonBreakpoint:
		return ReasonBreakpoint
	case armv8.ReasonWatchpoint:
		return ReasonWatchpoint
	case armv8.ReasonSingleStep:
		return ReasonSingleStep
	case armv8.ReasonExit:
		return ReasonExit
	default:
		return ReasonNone
	}
}
