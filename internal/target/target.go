// Package target defines the architecture-agnostic façade of spec.md §4.8:
// one interface covering poll/halt/resume/step, memory access, breakpoints
// and watchpoints, and reset, satisfied by both internal/armv8 and
// internal/mips64 so that a GDB front-end (or the command console) can drive
// either kind of core through a single contract point.
//
// armv8.Target and mips64.Target already implement every one of these
// operations; they just don't share one Go type, since their register
// widths, event-enum orderings, and breakpoint/watchpoint representations
// evolved independently (mips64 has no Thumb-vs-A32 byte-address-select
// concept; armv8 has no kseg0-style physical alias). The two adapter types in
// this package translate each driver's concrete state/reason/breakpoint
// types into the shared ones below and forward every call through.
package target

import "context"

// State is the target's coarse execution state (spec.md §3 "Target"),
// normalized across architectures.
type State int

const (
	StateUnknown State = iota
	StateRunning
	StateHalted
	StateReset
	StateDebugRunning
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	case StateReset:
		return "reset"
	case StateDebugRunning:
		return "debug-running"
	default:
		return "unknown"
	}
}

// DebugReason is why the target last halted (spec.md §3 "Target"), the
// union of armv8's and mips64's per-package reason enums.
type DebugReason int

const (
	ReasonNone DebugReason = iota
	ReasonDebugRequest
	ReasonBreakpoint
	ReasonWatchpoint
	ReasonSingleStep
	ReasonExit
	ReasonNotHalted
)

func (r DebugReason) String() string {
	switch r {
	case ReasonDebugRequest:
		return "debug-request"
	case ReasonBreakpoint:
		return "breakpoint"
	case ReasonWatchpoint:
		return "watchpoint"
	case ReasonSingleStep:
		return "single-step"
	case ReasonExit:
		return "exit"
	case ReasonNotHalted:
		return "not-halted"
	default:
		return "none"
	}
}

// EventKind is emitted by Poll/Resume on a state edge (spec.md §6 front-end
// contract: halted, resumed, debug-halted, debug-resumed, reset-assert).
// armv8 and mips64 define this enum with the same ordering, so the adapters
// convert by simple cast rather than a lookup table.
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

// Breakpoint is the architecture-neutral handle returned by AddBreakpoint.
// native holds the concrete *armv8.Breakpoint or *mips64.Breakpoint so the
// owning adapter's RemoveBreakpoint can hand it back to the real driver.
type Breakpoint struct {
	Address  uint64
	Length   int
	Hardware bool
	native   any
}

// Watchpoint is the architecture-neutral handle returned by AddWatchpoint.
type Watchpoint struct {
	Address uint64
	Length  int
	RWKind  string
	native  any
}

// Target is the façade of spec.md §4.8: every operation a GDB stub or
// command console needs, independent of whether the core underneath is an
// ARMv8-A PE behind a DAP/DPM/CTI stack or a MIPS64 EJTAG PrAcc core.
type Target interface {
	// Arch names the underlying driver ("aarch64" or "mips64"), for callers
	// that need to route to architecture-specific extras outside this
	// interface (cache maintenance, CTI/bpwp introspection).
	Arch() string

	Examine(ctx context.Context) error
	Poll(ctx context.Context) error
	State() State
	DebugReason() DebugReason

	Halt(ctx context.Context) error
	Resume(ctx context.Context, currentPC bool, address uint64, handleBreakpoints, debugExec bool) error
	Step(ctx context.Context, currentPC bool, address uint64, handleBreakpoints bool) error

	ReadMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error
	WriteMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error
	ReadPhysMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error
	WritePhysMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error

	AddBreakpoint(ctx context.Context, addr uint64, length int, hardware bool) (*Breakpoint, error)
	RemoveBreakpoint(ctx context.Context, bp *Breakpoint) error
	AddWatchpoint(ctx context.Context, addr uint64, length int, rwKind string) (*Watchpoint, error)
	RemoveWatchpoint(ctx context.Context, wp *Watchpoint) error

	AssertReset(ctx context.Context, reqHalt bool) error
	DeassertReset(ctx context.Context, reqHalt bool) error

	SetHostedCtrlC()
	SetEventFunc(f EventFunc)

	// JoinSMP links peers (which must all share this Target's concrete
	// adapter type) into one SMP group (spec.md §4.5, §8 scenario S6).
	JoinSMP(ctx context.Context, peers []Target) error
}
