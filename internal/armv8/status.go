package armv8

// State is the target's coarse execution state (spec.md §3 "Target").
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

// DebugReason is why the target last halted (spec.md §3 "Target").
type DebugReason int

const (
	ReasonNone DebugReason = iota
	ReasonDbgrq
	ReasonBreakpoint
	ReasonWatchpoint
	ReasonSingleStep
	ReasonExit
)

func (r DebugReason) String() string {
	switch r {
	case ReasonDbgrq:
		return "dbgrq"
	case ReasonBreakpoint:
		return "breakpoint"
	case ReasonWatchpoint:
		return "watchpoint"
	case ReasonSingleStep:
		return "single-step"
	case ReasonExit:
		return "exit"
	default:
		return "none"
	}
}

// statusEntry is one row of the EDSCR.STATUS classification table
// (spec.md §4.4 "State machine").
type statusEntry struct {
	code   uint8
	state  State
	reason DebugReason
}

var statusTable = []statusEntry{
	{0b000010, StateRunning, ReasonNone},
	{0b000001, StateDebugRunning, ReasonNone},
	{0b000111, StateHalted, ReasonBreakpoint},
	{0b010011, StateHalted, ReasonDbgrq},
	{0b011011, StateHalted, ReasonSingleStep},
	{0b011111, StateHalted, ReasonSingleStep},
	{0b101011, StateHalted, ReasonWatchpoint},
	{0b101111, StateHalted, ReasonExit},
	{0b110111, StateHalted, ReasonDbgrq},
	{0b111011, StateHalted, ReasonSingleStep},
}

// classifyStatus maps EDSCR.STATUS[5:0] to (state, reason), the third
// return value reporting whether the code is one the architecture defines;
// an invalid code yields (unknown, none, false) — spec.md §4.4: "Any other
// code bit-pattern that fails the validity predicate yields unknown and
// raises an 'invalid PE status' error."
func classifyStatus(status uint8) (State, DebugReason, bool) {
	for _, e := range statusTable {
		if e.code == status {
			return e.state, e.reason, true
		}
	}
	return StateUnknown, ReasonNone, false
}

// isStepNoSyndrome reports whether status is the step-nosyndrome code,
// the one halted code Step's resume path accepts in place of "running"
// (spec.md §4.4 "Resume": "Step-nosyndrome status is acceptable in step
// paths.").
func isStepNoSyndrome(status uint8) bool {
	return status == 0b111011
}
