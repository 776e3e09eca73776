package mips64

import "context"

// Register group indices into the param array ReadRegs/WriteRegs exchange:
// the 32 GPRs followed by a handful of COP0 registers a debugger actually
// needs to present and restore (PC, EPC, STATUS, CAUSE, BADVADDR). This is
// a deliberately smaller set than the teacher's full save/restore routine,
// which also threads HI/LO and the FPU bank through the same mechanism —
// floating point state isn't part of this module's register model.
const (
	numGPR      = 32
	regEPC      = numGPR // doubles as PC: the debug exception vector saves the
	                      // resume address here, and that's what a debugger
	                      // displays as the target's current PC.
	regStatus   = numGPR + 1
	regCause    = numGPR + 2
	regBadVAddr = numGPR + 3
	numRegSlots = numGPR + 4

	c0EPC      = 14
	c0Status   = 12
	c0Cause    = 13
	c0BadVAddr = 8
)

// readRegsCode builds a routine that dumps $1, $3-$31 (via $2 as the
// param-table pointer kept in COP0 DESAVE across the transfer, mirroring
// $15's role in the memory routines) plus EPC/STATUS/CAUSE/BADVADDR into
// param_out. $0 is always zero and isn't transferred.
func readRegsCode() []uint32 {
	code := []uint32{
		dmtc0(2, 31, 0),
		lui(2, upper16(praccParamOut)),
		ori(2, 2, lower16(praccParamOut)),
	}
	for r := uint32(1); r < numGPR; r++ {
		if r == 2 {
			continue
		}
		code = append(code, sd(r, 2, int16(r*8)))
	}
	code = append(code,
		dmfc0(1, c0EPC, 0),
		sd(1, 2, int16(regEPC*8)),
		mfc0(1, c0Status, 0),
		sd(1, 2, int16(regStatus*8)),
		mfc0(1, c0Cause, 0),
		sd(1, 2, int16(regCause*8)),
		dmfc0(1, c0BadVAddr, 0),
		sd(1, 2, int16(regBadVAddr*8)),
		dmfc0(2, 31, 0),
		sync,
	)
	branchIdx := len(code)
	code = append(code, b(neg16(int32(branchIdx+1))), nop)
	for i := 0; i < 8; i++ {
		code = append(code, nop)
	}
	return code
}

// writeRegsCode is the restore counterpart, loading the same slots back out
// of param_in.
func writeRegsCode() []uint32 {
	code := []uint32{
		dmtc0(2, 31, 0),
		lui(2, upper16(praccParamIn)),
		ori(2, 2, lower16(praccParamIn)),
	}
	for r := uint32(1); r < numGPR; r++ {
		if r == 2 {
			continue
		}
		code = append(code, ld(r, 2, int16(r*8)))
	}
	code = append(code,
		ld(1, 2, int16(regEPC*8)),
		dmtc0(1, c0EPC, 0),
		ld(1, 2, int16(regStatus*8)),
		mtc0(1, c0Status, 0),
		ld(1, 2, int16(regCause*8)),
		mtc0(1, c0Cause, 0),
		ld(2, 2, int16(2*8)),
		sync,
	)
	branchIdx := len(code)
	code = append(code, b(neg16(int32(branchIdx+1))), dmfc0(2, 31, 0))
	for i := 0; i < 8; i++ {
		code = append(code, nop)
	}
	return code
}

// ReadRegs dumps the GPR bank plus PC/EPC/STATUS/CAUSE/BADVADDR.
func (e *Engine) ReadRegs(ctx context.Context) ([]uint64, error) {
	return e.Exec(ctx, readRegsCode(), nil, numRegSlots)
}

// WriteRegs restores the GPR bank plus EPC/STATUS/CAUSE from regs, which
// must be numRegSlots long (as returned by ReadRegs).
func (e *Engine) WriteRegs(ctx context.Context, regs []uint64) error {
	_, err := e.Exec(ctx, writeRegsCode(), regs, 0)
	return err
}
