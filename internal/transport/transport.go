// Package transport defines the JTAG/SWD wire contract the debug core
// consumes but never implements: scan primitives, reset lines, and queue
// execution. A real build wires this to a probe driver (FTDI, CMSIS-DAP,
// J-Link); tests and the fake in this package stand in for that driver the
// same way the teacher's MachineBus stands in for real hardware buses.
package transport

import "context"

// ScanKind selects whether a Scan targets the instruction or data register
// of the underlying TAP.
type ScanKind int

const (
	ScanIR ScanKind = iota
	ScanDR
)

// Transport is the external collaborator specified in spec.md §6: it is
// never implemented in this module, only consumed. All DAP and EJTAG
// traffic bottoms out in these five calls.
type Transport interface {
	// Scan shifts nbits through the IR or DR, writing tdi and reading the
	// captured bits into tdo. tdi/tdo are packed LSB-first, ceil(nbits/8)
	// bytes long.
	Scan(ctx context.Context, kind ScanKind, nbits int, tdi []byte, tdo []byte) error

	// AddReset schedules a reset-line pulse (TRST and/or SRST) into the
	// queue; it is not applied until ExecuteQueue runs.
	AddReset(trst, srst bool)

	// AddSleep schedules a delay of the given duration, expressed in
	// microseconds to match the wire-level primitive the teacher's probe
	// firmware exposes.
	AddSleep(microseconds int)

	// ExecuteQueue flushes everything queued by AddReset/AddSleep and any
	// buffered Scan calls, in FIFO order, stopping at the first error.
	ExecuteQueue(ctx context.Context) error

	// GetSpeedKHz reports the current adapter clock, used to convert
	// nanosecond scan delays (MIPS FASTDATA, §4.7) into tck counts.
	GetSpeedKHz() int
}
