package mips64

import (
	"context"
	"time"

	"github.com/chipdebug/core/internal/dap"
	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/transport"
)

// stackDepth is the size of the software FIFO the canned code sequences use
// to preserve $8/$9/$15 across a PrAcc routine (spec.md §3 "PrAcc context").
const stackDepth = 32

// Engine drives the MIPS64 EJTAG PrAcc handshake: poll CONTROL for a
// pending access, read ADDRESS, classify it against the fixed memory
// regions, and serve it from a code stream plus input/output parameter
// arrays (spec.md §4.7).
type Engine struct {
	ej *ejtag
}

// New returns an Engine bound to a raw JTAG transport.
func New(tp transport.Transport) *Engine {
	return &Engine{ej: newEJTAG(tp)}
}

// execState is the per-call context, mirroring mips64_pracc_context: it
// lives for exactly one Exec call.
type execState struct {
	code     []uint32
	paramIn  []uint64
	paramOut []uint64
	stack    [stackDepth]uint64
	stackOff int
}

// Exec runs code on the target via the PrAcc handshake, resolving the
// target's code/param-in/param-out/stack fetches and stores until it sees a
// second fetch at PRACC_TEXT, which marks the routine complete.
func (e *Engine) Exec(ctx context.Context, code []uint32, paramIn []uint64, numParamOut int) ([]uint64, error) {
	st := &execState{code: code, paramIn: paramIn}
	if numParamOut > 0 {
		st.paramOut = make([]uint64, numParamOut)
	}

	firstFetch := true
	sawText := false
	for {
		ctrl, err := e.waitForPRACC(ctx)
		if err != nil {
			return nil, err
		}

		addr32, err := e.ej.readAddress(ctx)
		if err != nil {
			return nil, err
		}
		addr := uint64(addr32)

		if err := checkPSZ(ctrl, addr); err != nil {
			return nil, err
		}
		if praccPSZ(ctrl) == 3 {
			addr &^= 7
		}

		if firstFetch && addr != praccText {
			return nil, dbgerr.WithAddr("mips64.pracc_exec", dbgerr.KindDeviceError, signExtendAddr(addr32), nil)
		}
		firstFetch = false

		if ctrl&ctrlPRNW != 0 {
			if err := e.servePRWrite(ctx, st, addr, ctrl); err != nil {
				return nil, err
			}
		} else {
			if addr == praccText {
				if sawText {
					if err := e.ackClear(ctx, ctrl); err != nil {
						return nil, err
					}
					break
				}
				sawText = true
			}
			if err := e.servePRRead(ctx, st, addr, ctrl); err != nil {
				return nil, err
			}
			continue
		}
	}

	if st.stackOff != 0 {
		return nil, dbgerr.New("mips64.pracc_exec", dbgerr.KindDeviceError, nil)
	}
	return st.paramOut, nil
}

func checkPSZ(ctrl uint32, addr uint64) error {
	psz := praccPSZ(ctrl)
	switch psz {
	case 3:
		if addr&7 != 7 {
			return dbgerr.New("mips64.pracc_psz", dbgerr.KindDeviceError, nil)
		}
	case 2:
		if addr&7 != 0 && addr&7 != 4 {
			return dbgerr.New("mips64.pracc_psz", dbgerr.KindDeviceError, nil)
		}
	default:
		return dbgerr.New("mips64.pracc_psz", dbgerr.KindDeviceError, nil)
	}
	return nil
}

// waitForPRACC polls CONTROL until PRACC is set, with the same 1-second
// deadline every other protocol-layer poll in this module uses.
func (e *Engine) waitForPRACC(ctx context.Context) (uint32, error) {
	deadline := time.Now().Add(dap.WaitDeadline())
	for {
		ctrl, err := e.ej.readControl(ctx)
		if err != nil {
			return 0, err
		}
		if ctrl&ctrlPRACC != 0 {
			return ctrl, nil
		}
		if time.Now().After(deadline) {
			return 0, dbgerr.New("mips64.wait_for_pracc", dbgerr.KindTimeout, nil)
		}
		select {
		case <-ctx.Done():
			return 0, dbgerr.New("mips64.wait_for_pracc", dbgerr.KindTimeout, ctx.Err())
		default:
		}
	}
}

// servePRRead answers a target fetch/load by classifying addr against the
// code, param-in, param-out, and stack regions and shipping the matching
// datum out over DATA, then acks.
func (e *Engine) servePRRead(ctx context.Context, st *execState, addr uint64, ctrl uint32) error {
	var data uint64
	switch {
	case addr >= praccParamIn && addr < praccParamIn+uint64(len(st.paramIn))*praccDataStep:
		idx := (addr - praccParamIn) / praccDataStep
		data = st.paramIn[idx]
	case addr >= praccParamOut && addr < praccParamOut+uint64(len(st.paramOut))*praccDataStep:
		idx := (addr - praccParamOut) / praccDataStep
		data = st.paramOut[idx]
	case addr >= praccText && addr < praccText+uint64(len(st.code))*praccAddrStep:
		idx := (addr - praccText) / praccAddrStep
		data = uint64(st.code[idx])
	case addr == praccStack:
		if st.stackOff == 0 {
			return dbgerr.New("mips64.pracc_stack_underflow", dbgerr.KindDeviceError, nil)
		}
		st.stackOff--
		data = st.stack[st.stackOff]
	default:
		return dbgerr.WithAddr("mips64.pracc_read", dbgerr.KindDeviceError, addr, nil)
	}
	if err := e.ej.writeData64(ctx, data); err != nil {
		return err
	}
	return e.ackClear(ctx, ctrl)
}

// servePRWrite is the write counterpart: pull the datum off DATA, then
// classify addr the same way (the stack region here is write-as-push).
func (e *Engine) servePRWrite(ctx context.Context, st *execState, addr uint64, ctrl uint32) error {
	data, err := e.ej.readData64(ctx)
	if err != nil {
		return err
	}
	if err := e.ackClear(ctx, ctrl); err != nil {
		return err
	}

	switch {
	case addr >= praccParamIn && addr < praccParamIn+uint64(len(st.paramIn))*praccDataStep:
		idx := (addr - praccParamIn) / praccDataStep
		st.paramIn[idx] = data
	case addr >= praccParamOut && addr < praccParamOut+uint64(len(st.paramOut))*praccDataStep:
		idx := (addr - praccParamOut) / praccDataStep
		st.paramOut[idx] = data
	case addr == praccStack:
		if st.stackOff >= stackDepth {
			return dbgerr.New("mips64.pracc_stack_overflow", dbgerr.KindDeviceError, nil)
		}
		st.stack[st.stackOff] = data
		st.stackOff++
	default:
		return dbgerr.WithAddr("mips64.pracc_write", dbgerr.KindDeviceError, addr, nil)
	}
	return nil
}

// ackClear clears the PRACC bit and adds the five tck idle cycles the
// target needs before it re-polls its debug exception vector.
func (e *Engine) ackClear(ctx context.Context, ctrl uint32) error {
	if err := e.ej.writeControl(ctx, ctrl&^ctrlPRACC); err != nil {
		return err
	}
	return e.ej.idleClocks(ctx, 5)
}
