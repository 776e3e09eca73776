// Package dbgerr defines the error taxonomy shared by every layer of the
// debug core, from the transport up through the target façade.
package dbgerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way the GDB front end and the operator
// console need to see it: coarse enough to map onto a GDB 'E' packet,
// specific enough to print a useful diagnostic line.
type Kind int

const (
	// KindNone is the zero value; never appears in a returned *Error.
	KindNone Kind = iota
	KindTransportFailure
	KindDeviceError
	KindTimeout
	KindNotHalted
	KindUnalignedAccess
	KindResourceUnavailable
	KindInvalidParameter
	KindTranslationFault
	KindNotProbed
	KindTargetInvalid
	KindNotSupported
)

func (k Kind) String() string {
	switch k {
	case KindTransportFailure:
		return "transport-failure"
	case KindDeviceError:
		return "device-error"
	case KindTimeout:
		return "timeout"
	case KindNotHalted:
		return "not-halted"
	case KindUnalignedAccess:
		return "unaligned-access"
	case KindResourceUnavailable:
		return "resource-unavailable"
	case KindInvalidParameter:
		return "invalid-parameter"
	case KindTranslationFault:
		return "translation-fault"
	case KindNotProbed:
		return "not-probed"
	case KindTargetInvalid:
		return "target-invalid"
	case KindNotSupported:
		return "not-supported"
	default:
		return "none"
	}
}

// Error is the concrete error value propagated by every core operation.
// Addr and Reg are optional context for the offending location; an empty
// Reg, or AddrValid==false for Addr, means "not applicable".
type Error struct {
	Kind      Kind
	Op        string // the operation that failed, e.g. "mem_ap_read_u32"
	Addr      uint64
	AddrValid bool
	Reg       string
	Cause     error
}

func (e *Error) Error() string {
	var loc string
	switch {
	case e.AddrValid && e.Reg != "":
		loc = fmt.Sprintf(" addr=0x%x reg=%s", e.Addr, e.Reg)
	case e.AddrValid:
		loc = fmt.Sprintf(" addr=0x%x", e.Addr)
	case e.Reg != "":
		loc = fmt.Sprintf(" reg=%s", e.Reg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s%s: %v", e.Op, e.Kind, loc, e.Cause)
	}
	return fmt.Sprintf("%s: %s%s", e.Op, e.Kind, loc)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, supporting
// errors.Is(err, dbgerr.New("", kind, nil)) style checks.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error for the given op/kind, with no location context.
func New(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Cause: cause}
}

// WithAddr attaches an address to an error for diagnostic purposes.
func WithAddr(op string, kind Kind, addr uint64, cause error) *Error {
	return &Error{Op: op, Kind: kind, Addr: addr, AddrValid: true, Cause: cause}
}

// WithReg attaches a register name to an error for diagnostic purposes.
func WithReg(op string, kind Kind, reg string, cause error) *Error {
	return &Error{Op: op, Kind: kind, Reg: reg, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, returning
// KindNone otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var x *Error
	if errors.As(err, &x) {
		return x.Kind
	}
	return KindNone
}
