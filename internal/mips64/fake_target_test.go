package mips64

import (
	"context"
	"encoding/binary"

	"github.com/chipdebug/core/internal/transport"
)

// fakeMIPS is an in-memory stand-in for a MIPS64 core stalled in debug mode,
// used by this package's own tests. It decodes the subset of the instruction
// set the canned PrAcc code builders in this package emit (dmtc0/dmfc0/
// mtc0/mfc0/lui/ori/sd/ld/lw/lhu/lbu/sw/sh/sb/sync/b/bne/daddiu/jr/nop) and
// drives the ADDRESS/CONTROL/DATA handshake the Engine expects, the same
// way FakeTAP stands in for a real ARM JTAG-DP in the dap/armv8 tests.
//
// Only accesses that fall inside the fixed PrAcc regions (text/param-in/
// param-out/stack) are exposed as a handshake; everything else — the
// debuggee address a read/write routine actually touches — is served
// directly out of mem, mirroring how those accesses bypass the debug port
// entirely on real silicon.
type fakeMIPS struct {
	gpr [32]uint64
	cp0 map[uint32]uint64
	mem map[uint64]byte
	pc  uint64

	pendingBranch *uint64

	ir      uint8
	ctrl    uint32
	addrReg uint32
	dataIn  uint64
	dataOut uint64

	awaiting     int
	pendingDest  uint32
	nextPCAfterMem uint64
	dataScanned  bool
}

const (
	awaitNone = iota
	awaitFetch
	awaitLoad
	awaitStore
)

func newFakeMIPS() *fakeMIPS {
	f := &fakeMIPS{mem: make(map[uint64]byte), cp0: make(map[uint32]uint64)}
	f.pc = praccText
	f.setupFetch()
	return f
}

func (f *fakeMIPS) pokeWord(addr uint64, v uint32) {
	f.writeMem(addr, uint64(v), 4)
}

func inTextWindow(pc uint64) bool { return pc >= praccText && pc < praccParamIn }

func inPraccRegion(addr uint64) bool {
	if addr >= praccParamIn && addr < praccParamIn+praccParamInSize {
		return true
	}
	if addr >= praccParamOut && addr < praccParamOut+praccParamOutSize {
		return true
	}
	return addr == praccStack
}

func (f *fakeMIPS) readMem(addr uint64, size int) uint64 {
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(f.mem[addr+uint64(i)]) << (8 * i)
	}
	return v
}

func (f *fakeMIPS) writeMem(addr uint64, val uint64, size int) {
	for i := 0; i < size; i++ {
		f.mem[addr+uint64(i)] = byte(val >> (8 * i))
	}
}

func (f *fakeMIPS) setupFetch() {
	f.addrReg = uint32(f.pc)
	f.ctrl = ctrlPRACC | (2 << 29)
	f.awaiting = awaitFetch
	f.dataScanned = false
}

func (f *fakeMIPS) setupLoad(eff uint64, dest uint32) {
	f.addrReg = uint32(eff&^7) | 7
	f.ctrl = ctrlPRACC | (3 << 29)
	f.awaiting = awaitLoad
	f.pendingDest = dest
	f.dataScanned = false
}

func (f *fakeMIPS) setupStore(eff uint64, value uint64) {
	f.addrReg = uint32(eff&^7) | 7
	f.ctrl = ctrlPRACC | ctrlPRNW | (3 << 29)
	f.dataOut = value
	f.awaiting = awaitStore
	f.dataScanned = false
}

// run advances the simulated core until it needs the host to service a
// PrAcc transaction (an instruction fetch inside the text window, or a
// load/store touching one of the fixed param/stack regions).
func (f *fakeMIPS) run() {
	for {
		if f.awaiting != awaitNone {
			return
		}
		if inTextWindow(f.pc) {
			f.setupFetch()
			return
		}
		instr := uint32(f.readMem(f.pc, 4))
		f.execStep(instr)
	}
}

func (f *fakeMIPS) completeFetch(instr uint32) {
	f.execStep(instr)
	f.run()
}

func (f *fakeMIPS) completeLoad(v uint64) {
	f.gpr[f.pendingDest] = v
	f.pc = f.nextPCAfterMem
	f.run()
}

func (f *fakeMIPS) completeStore() {
	f.pc = f.nextPCAfterMem
	f.run()
}

// execStep decodes and executes a single instruction already fetched at
// f.pc. A memory op hitting a PrAcc region sets up a new pending transaction
// and returns without advancing the PC; the PC advance happens once that
// transaction completes (completeLoad/completeStore).
func (f *fakeMIPS) execStep(instr uint32) {
	resolvingDelay := f.pendingBranch != nil
	var delayTarget uint64
	if resolvingDelay {
		delayTarget = *f.pendingBranch
		f.pendingBranch = nil
	}

	opcode := instr >> 26
	rs := (instr >> 21) & 0x1F
	rt := (instr >> 16) & 0x1F
	rd := (instr >> 11) & 0x1F
	funct := instr & 0x3F
	sel := instr & 0x7
	imm := int16(uint16(instr))

	stalled := false
	switch {
	case instr == 0, instr == sync:
	case opcode == 0 && funct == funcJR:
		t := f.gpr[rs]
		f.pendingBranch = &t
	case opcode == opBEQ:
		if f.gpr[rs] == f.gpr[rt] {
			t := uint64(int64(f.pc) + 4 + int64(imm)*4)
			f.pendingBranch = &t
		}
	case opcode == opBNE:
		if f.gpr[rs] != f.gpr[rt] {
			t := uint64(int64(f.pc) + 4 + int64(imm)*4)
			f.pendingBranch = &t
		}
	case opcode == opLUI:
		f.gpr[rt] = uint64(instr&0xFFFF) << 16
	case opcode == opORI:
		f.gpr[rt] = f.gpr[rs] | uint64(uint16(instr))
	case opcode == opDADDIU:
		f.gpr[rt] = f.gpr[rs] + uint64(int64(imm))
	case opcode == opCOP0:
		k := rd*8 + sel
		switch rs {
		case copDMT:
			f.cp0[k] = f.gpr[rt]
		case copDMF:
			f.gpr[rt] = f.cp0[k]
		case copMT:
			f.cp0[k] = uint64(uint32(f.gpr[rt]))
		case copMF:
			f.gpr[rt] = uint64(int64(int32(f.cp0[k])))
		}
	case opcode == opLD || opcode == opLW || opcode == opLHU || opcode == opLBU ||
		opcode == opSD || opcode == opSW || opcode == opSH || opcode == opSB:
		eff := uint64(int64(f.gpr[rs]) + int64(imm))
		isStore := opcode == opSD || opcode == opSW || opcode == opSH || opcode == opSB
		if inPraccRegion(eff) {
			if resolvingDelay {
				f.nextPCAfterMem = delayTarget
			} else {
				f.nextPCAfterMem = f.pc + 4
			}
			if isStore {
				f.setupStore(eff, f.gpr[rt])
			} else {
				f.setupLoad(eff, rt)
			}
			stalled = true
		} else {
			switch opcode {
			case opLD:
				f.gpr[rt] = f.readMem(eff, 8)
			case opLW:
				f.gpr[rt] = uint64(int64(int32(f.readMem(eff, 4))))
			case opLHU:
				f.gpr[rt] = f.readMem(eff, 2)
			case opLBU:
				f.gpr[rt] = f.readMem(eff, 1)
			case opSD:
				f.writeMem(eff, f.gpr[rt], 8)
			case opSW:
				f.writeMem(eff, f.gpr[rt], 4)
			case opSH:
				f.writeMem(eff, f.gpr[rt], 2)
			case opSB:
				f.writeMem(eff, f.gpr[rt], 1)
			}
		}
	default:
		// synci and anything else this package never emits: no-op.
	}

	if stalled {
		return
	}
	if resolvingDelay {
		f.pc = delayTarget
	} else {
		f.pc = f.pc + 4
	}
}

// scanControl also models CONTROL.JTAGBRK/BRKST for Halt/Resume tests:
// asserting JTAGBRK (a plain write outside the PrAcc ack handshake) sets
// BRKST immediately, since this fake has no notion of asynchronous debug
// exception entry; clearing JTAGBRK clears BRKST the same way. A bare read
// (tdi==0, as readControl always sends) is side-effect free.
func (f *fakeMIPS) scanControl(tdi uint32) uint32 {
	out := f.ctrl
	if f.ctrl&ctrlPRACC != 0 && tdi == f.ctrl&^ctrlPRACC {
		f.ctrl &^= ctrlPRACC
		f.onAck()
		return out
	}
	if tdi == 0 {
		return out
	}
	if tdi&ctrlJTAGBRK != 0 {
		f.ctrl |= ctrlJTAGBRK | ctrlBRKST
	} else {
		f.ctrl &^= ctrlJTAGBRK | ctrlBRKST
	}
	return out
}

func (f *fakeMIPS) scanData(tdi uint64) uint64 {
	out := f.dataOut
	f.dataIn = tdi
	f.dataScanned = true
	return out
}

// onAck fires when the host clears PRACC. A fetch ack with no preceding
// DATA scan is the completion signal Exec sends for the second arrival at
// PRACC_TEXT (it never supplies data for that one) — the core just stays
// parked there, ready to serve the next routine's first fetch.
func (f *fakeMIPS) onAck() {
	switch f.awaiting {
	case awaitFetch:
		if !f.dataScanned {
			f.awaiting = awaitNone
			f.setupFetch()
			return
		}
		instr := uint32(f.dataIn)
		f.awaiting = awaitNone
		f.completeFetch(instr)
	case awaitLoad:
		v := f.dataIn
		f.awaiting = awaitNone
		f.completeLoad(v)
	case awaitStore:
		f.awaiting = awaitNone
		f.completeStore()
	}
}

func (f *fakeMIPS) Scan(ctx context.Context, kind transport.ScanKind, nbits int, tdi, tdo []byte) error {
	if kind == transport.ScanIR {
		f.ir = tdi[0] & 0x1F
		return nil
	}
	switch f.ir {
	case irControl:
		in := binary.LittleEndian.Uint32(tdi[:4])
		out := f.scanControl(in)
		if tdo != nil {
			binary.LittleEndian.PutUint32(tdo[:4], out)
		}
	case irAddress:
		if tdo != nil {
			binary.LittleEndian.PutUint32(tdo[:4], f.addrReg)
		}
	case irData:
		in := binary.LittleEndian.Uint64(tdi[:8])
		out := f.scanData(in)
		if tdo != nil {
			binary.LittleEndian.PutUint64(tdo[:8], out)
		}
	}
	return nil
}

func (f *fakeMIPS) AddReset(trst, srst bool)              {}
func (f *fakeMIPS) AddSleep(microseconds int)             {}
func (f *fakeMIPS) ExecuteQueue(ctx context.Context) error { return nil }
func (f *fakeMIPS) GetSpeedKHz() int                       { return 4000 }
