// Package mips64 implements the MIPS64 EJTAG PrAcc (Processor Access)
// engine: the host-side half of a handshake where a target stalled in
// debug mode fetches and exchanges data with the debugger one word at a
// time, and the driver built on top of it (register/memory access,
// halt/resume over EJTAG CONTROL, fast-data bulk transfer).
package mips64

// Fixed PrAcc memory regions (virtual addresses the target's debug
// exception vector and the canned code streams this package builds all
// agree on).
const (
	praccFastdataArea = 0xFF200000
	praccText         = 0xFF200200
	praccStack        = 0xFF204000
	praccParamIn      = 0xFF201000
	praccParamInSize  = 0x1000
	praccParamOut     = praccParamIn + praccParamInSize
	praccParamOutSize = 0x1000

	// praccDataStep is the stride between param-in/param-out slots: every
	// exchange across this handshake moves a 64-bit dword (scan64), so
	// slots sit 8 bytes apart regardless of the logical value width.
	praccDataStep = 8
	// praccAddrStep is the stride between code words: each fetch pulls one
	// 32-bit MIPS instruction.
	praccAddrStep = 4

	fastdataHandlerSize = 0x80
)

// EJTAG TAP instruction codes (5-bit IR), per the MIPS EJTAG spec.
const (
	irAddress = 0x08
	irData    = 0x09
	irControl = 0x0A
	irAll     = 0x0B
	irFastData = 0x0E
	irBypass  = 0x1F
)

// EJTAG CONTROL register bit fields.
const (
	ctrlTOF     = 1 << 1
	ctrlTIF     = 1 << 2
	ctrlBRKST   = 1 << 3
	ctrlDLOCK   = 1 << 5
	ctrlDERR    = 1 << 10
	ctrlDSTRT   = 1 << 11
	ctrlJTAGBRK = 1 << 12
	ctrlProbTrap = 1 << 14
	ctrlProbEn  = 1 << 15
	ctrlSYNC    = 1 << 23
	ctrlPRACC   = 1 << 24
	ctrlPRNW    = 1 << 25
	ctrlPERRST  = 1 << 26
	ctrlPRRST   = 1 << 27
	ctrlSETDEV  = 1 << 30
)

// praccPSZ extracts the processor-access-size field (bits 30:29) a 64-bit
// capable implementation reports alongside PRACC: 3 selects a 64-bit access
// (address[2:0] must be 7), 2 selects 32-bit (address[2:0] is 0 or 4).
func praccPSZ(ctrl uint32) uint32 { return (ctrl >> 29) & 3 }

// signExtendAddr reconstructs the full 64-bit virtual address a 32-bit
// kseg1 address represents (bits 63:32 sign-extended), for use in
// diagnostics only: region classification works against the raw 32-bit
// value, since that's the width the fixed PrAcc regions are defined in.
func signExtendAddr(addr32 uint32) uint64 {
	return 0xFFFFFFFF00000000 | uint64(addr32)
}
