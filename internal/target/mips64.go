package target

import (
	"context"

	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/mips64"
)

// mips64Adapter satisfies Target by forwarding to an *mips64.Target.
type mips64Adapter struct {
	t *mips64.Target
}

// NewMIPS64 wraps a mips64 driver behind the shared target façade.
func NewMIPS64(t *mips64.Target) Target { return &mips64Adapter{t: t} }

// Unwrap returns the concrete *mips64.Target for architecture-specific
// callers that need more than the shared façade exposes.
func (a *mips64Adapter) Unwrap() *mips64.Target { return a.t }

func (a *mips64Adapter) Arch() string { return "mips64" }

func (a *mips64Adapter) Examine(ctx context.Context) error { return a.t.Examine(ctx) }
func (a *mips64Adapter) Poll(ctx context.Context) error    { return a.t.Poll(ctx) }

func (a *mips64Adapter) State() State { return mips64StateToTarget(a.t.State()) }

func (a *mips64Adapter) DebugReason() DebugReason {
	return mips64ReasonToTarget(a.t.DebugReason())
}

func (a *mips64Adapter) Halt(ctx context.Context) error { return a.t.Halt(ctx) }

func (a *mips64Adapter) Resume(ctx context.Context, currentPC bool, address uint64, handleBreakpoints, debugExec bool) error {
	return a.t.Resume(ctx, currentPC, address, handleBreakpoints, debugExec)
}

func (a *mips64Adapter) Step(ctx context.Context, currentPC bool, address uint64, handleBreakpoints bool) error {
	return a.t.Step(ctx, currentPC, address, handleBreakpoints)
}

func (a *mips64Adapter) ReadMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error {
	return a.t.ReadMemory(ctx, addr, size, count, buf)
}

func (a *mips64Adapter) WriteMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error {
	return a.t.WriteMemory(ctx, addr, size, count, buf)
}

func (a *mips64Adapter) ReadPhysMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error {
	return a.t.ReadPhysMemory(ctx, addr, size, count, buf)
}

func (a *mips64Adapter) WritePhysMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error {
	return a.t.WritePhysMemory(ctx, addr, size, count, buf)
}

func (a *mips64Adapter) AddBreakpoint(ctx context.Context, addr uint64, length int, hardware bool) (*Breakpoint, error) {
	bp, err := a.t.AddBreakpoint(ctx, addr, length, hardware)
	if err != nil {
		return nil, err
	}
	return &Breakpoint{Address: bp.Address, Length: length, Hardware: bp.Hardware, native: bp}, nil
}

func (a *mips64Adapter) RemoveBreakpoint(ctx context.Context, bp *Breakpoint) error {
	native, ok := bp.native.(*mips64.Breakpoint)
	if !ok {
		return dbgerr.New("target.remove_breakpoint", dbgerr.KindInvalidParameter, nil)
	}
	return a.t.RemoveBreakpoint(ctx, native)
}

func (a *mips64Adapter) AddWatchpoint(ctx context.Context, addr uint64, length int, rwKind string) (*Watchpoint, error) {
	wp, err := a.t.AddWatchpoint(ctx, addr, length, rwKind)
	if err != nil {
		return nil, err
	}
	return &Watchpoint{Address: wp.Address, Length: wp.Length, RWKind: wp.RWKind, native: wp}, nil
}

func (a *mips64Adapter) RemoveWatchpoint(ctx context.Context, wp *Watchpoint) error {
	native, ok := wp.native.(*mips64.Watchpoint)
	if !ok {
		return dbgerr.New("target.remove_watchpoint", dbgerr.KindInvalidParameter, nil)
	}
	return a.t.RemoveWatchpoint(ctx, native)
}

func (a *mips64Adapter) AssertReset(ctx context.Context, reqHalt bool) error {
	return a.t.AssertReset(ctx, reqHalt)
}

func (a *mips64Adapter) DeassertReset(ctx context.Context, reqHalt bool) error {
	return a.t.DeassertReset(ctx, reqHalt)
}

func (a *mips64Adapter) SetHostedCtrlC() { a.t.SetHostedCtrlC() }

func (a *mips64Adapter) SetEventFunc(f EventFunc) {
	a.t.SetEventFunc(func(k mips64.EventKind) { f(EventKind(k)) })
}

// JoinSMP unwraps every peer back to its concrete *mips64.Target — mixing
// architectures within one SMP group is rejected.
func (a *mips64Adapter) JoinSMP(ctx context.Context, peers []Target) error {
	native := make([]*mips64.Target, 0, len(peers))
	for _, p := range peers {
		pa, ok := p.(*mips64Adapter)
		if !ok {
			return dbgerr.New("target.join_smp", dbgerr.KindInvalidParameter, nil)
		}
		native = append(native, pa.t)
	}
	return a.t.JoinSMP(ctx, native)
}

func mips64StateToTarget(s mips64.State) State {
	switch s {
	case mips64.StateRunning:
		return StateRunning
	case mips64.StateHalted:
		return StateHalted
	case mips64.StateReset:
		return StateReset
	case mips64.StateDebugRunning:
		return StateDebugRunning
	default:
		return StateUnknown
	}
}

func mips64ReasonToTarget(r mips64.DebugReason) DebugReason {
	switch r {
	case mips64.ReasonDebugRequest:
		return ReasonDebugRequest
	case mips64.ReasonBreakpoint:
		return ReasonBreakpoint
	case mips64.ReasonWatchpoint:
		return ReasonWatchpoint
	case mips64.ReasonSingleStep:
		return ReasonSingleStep
	case mips64.ReasonNotHalted:
		return ReasonNotHalted
	default:
		return ReasonNone
	}
}
