package armv8

// Opcode builders, one function per instruction class, replacing the macro
// generators the original driver used to assemble 32-bit words inline
// (spec.md §9 design note on opcode assembly).

// encodeMRSDBGDTR returns `mrs xN, dbgdtr_el0`.
func encodeMRSDBGDTR(n uint8) uint32 {
	return 0xD533_0400 | uint32(n&0x1F)
}

// encodeMSRDBGDTR returns `msr dbgdtr_el0, xN`.
func encodeMSRDBGDTR(n uint8) uint32 {
	return 0xD513_0400 | uint32(n&0x1F)
}

// encodeMRSReg returns `mrs xN, <sysreg>` for an arbitrary system register
// encoded as op0:op1:CRn:CRm:op2 packed the way the architecture defines.
func encodeMRSReg(n uint8, sysreg uint32) uint32 {
	return 0xD530_0000 | (sysreg&0x7FFF)<<5 | uint32(n&0x1F)
}

// encodeMSRReg returns `msr <sysreg>, xN`.
func encodeMSRReg(n uint8, sysreg uint32) uint32 {
	return 0xD510_0000 | (sysreg&0x7FFF)<<5 | uint32(n&0x1F)
}

// encodeLDRPostIndex64 returns `ldr xN, [xM], #imm` (post-indexed).
func encodeLDRPostIndex64(n, m uint8, imm int16) uint32 {
	return 0xF840_0400 | (uint32(imm)&0x1FF)<<12 | uint32(m&0x1F)<<5 | uint32(n&0x1F)
}

// encodeLDRPostIndex32 returns `ldr wN, [xM], #imm`.
func encodeLDRPostIndex32(n, m uint8, imm int16) uint32 {
	return 0xB840_0400 | (uint32(imm)&0x1FF)<<12 | uint32(m&0x1F)<<5 | uint32(n&0x1F)
}

// encodeSTRPostIndex64 returns `str xN, [xM], #imm`.
func encodeSTRPostIndex64(n, m uint8, imm int16) uint32 {
	return 0xF800_0400 | (uint32(imm)&0x1FF)<<12 | uint32(m&0x1F)<<5 | uint32(n&0x1F)
}

// encodeSTURWord returns `stur wN, [xM, #imm]` for an unscaled, possibly
// negative, byte offset (used for the misaligned write tail).
func encodeSTURWord(n, m uint8, imm int16) uint32 {
	return 0xB800_0000 | (uint32(imm)&0x1FF)<<12 | uint32(m&0x1F)<<5 | uint32(n&0x1F)
}

// encodeSTRPostIndex32 returns `str wN, [xM], #imm`, the 4-byte-aligned
// tail counterpart of encodeSTRPostIndex64.
func encodeSTRPostIndex32(n, m uint8, imm int16) uint32 {
	return 0xB800_0400 | (uint32(imm)&0x1FF)<<12 | uint32(m&0x1F)<<5 | uint32(n&0x1F)
}

// encodeMOVReg returns `mov xD, xM` (encoded as `orr xD, xzr, xM`).
func encodeMOVReg(d, m uint8) uint32 {
	return 0xAA00_03E0 | uint32(m&0x1F)<<16 | uint32(d&0x1F)
}

// encodeAddSP returns `add xD, sp, #0`, used to copy SP into a GPR so it
// can be pushed through the DCC like any other register.
func encodeAddSP(d uint8) uint32 {
	return 0x9100_03E0 | uint32(d&0x1F)
}

// encodeMovSP returns `mov sp, xN`, the write-back counterpart of
// encodeAddSP.
func encodeMovSP(n uint8) uint32 {
	return 0x9100_001F | uint32(n&0x1F)<<5
}

// encodeBRK returns `brk #imm16`.
func encodeBRK(imm16 uint16) uint32 {
	return 0xD420_0000 | uint32(imm16)<<5
}

// encodeBRK16 returns the T32 16-bit breakpoint encoding as a 32-bit word
// with the upper half zeroed, for software BP on a Thumb-width target.
func encodeBRK16(imm8 uint8) uint32 {
	return 0xBE00 | uint32(imm8)
}

// encodeDCCISW returns `dc cisw, xN` with the packed SetWay operand N.
func encodeDCCISW(n uint8) uint32 {
	return 0xD508_7E40 | uint32(n&0x1F)
}

// encodeDSBSY returns `dsb sy`.
func encodeDSBSY() uint32 { return 0xD503_3F9F }

// encodeICIALLUIS returns `ic ialluis`.
func encodeICIALLUIS() uint32 { return 0xD508_711F }

// encodeICIALLU returns `ic iallu`, the local (non-inner-shareable) variant.
func encodeICIALLU() uint32 { return 0xD508_751F }

// packSetWay builds the SetWay operand `dc cisw` expects: way << (32 -
// log2(ways)), set << (log2(linesize)+4), level << 1 (spec.md §4.6).
func packSetWay(way, set, level, ways, linesize int) uint32 {
	wayShift := 32 - log2Ceil(ways)
	setShift := log2Ceil(linesize) + 4
	return uint32(way)<<uint(wayShift) | uint32(set)<<uint(setShift) | uint32(level)<<1
}

func log2Ceil(n int) int {
	bits := 0
	for (1 << bits) < n {
		bits++
	}
	return bits
}
