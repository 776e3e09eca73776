package armv8

import (
	"context"
	"encoding/binary"
)

// fakeCore is a minimal interpreter standing in for a real PE in debug
// state: it decodes exactly the opcode encodings this package emits and
// updates a register file and byte-addressable memory accordingly. It
// satisfies both dpm.RegIO and cti.RegIO (same two-method shape) so a
// single fake backs both the DPM and CTI register windows.
type fakeCore struct {
	x        [31]uint64
	sp       uint64
	sysregs  map[uint32]uint64
	mem      map[uint64]byte
	regs     map[uint32]uint32 // EDSCR/EDPRSR/EDECR/EDESR/EDITR/DBGDTRRX/TX/CTI bank, offset-keyed
	dcciswCount int
	icialluisCount int
	dsbCount int
}

const dpmBase = 0x1000
const ctiBase = 0x2000

// DPM register offsets and the EDSCR.ITE bit, with the values internal/dpm
// uses, so the fake's register map is keyed the way dpm reads and writes it.
const (
	offEDSCR    = 0x088
	offEDITR    = 0x084
	offDBGDTRRX = 0x08C
	offDBGDTRTX = 0x080
	edscrITE    = 1 << 24
)

func newFakeCore() *fakeCore {
	return &fakeCore{
		sysregs: make(map[uint32]uint64),
		mem:     make(map[uint64]byte),
		regs:    make(map[uint32]uint32),
	}
}

func (f *fakeCore) setStatus(status uint8) {
	f.regs[offEDSCR] = edscrITE | uint32(status)
}

func (f *fakeCore) MemAPReadU32(ctx context.Context, apNum uint8, addr uint32) (uint32, error) {
	if addr >= dpmBase && addr < dpmBase+0x1000 {
		off := addr - dpmBase
		return f.regs[off], nil
	}
	if addr >= ctiBase && addr < ctiBase+0x1000 {
		return f.regs[addr], nil
	}
	var b [4]byte
	for i := 0; i < 4; i++ {
		b[i] = f.mem[uint64(addr)+uint64(i)]
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (f *fakeCore) MemAPWriteU32(ctx context.Context, apNum uint8, addr uint32, v uint32) error {
	if addr >= dpmBase && addr < dpmBase+0x1000 {
		off := addr - dpmBase
		f.regs[off] = v
		if off == offEDITR {
			f.exec(v)
		}
		return nil
	}
	if addr >= ctiBase && addr < ctiBase+0x1000 {
		f.regs[addr] = v
		return nil
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	for i := 0; i < 4; i++ {
		f.mem[uint64(addr)+uint64(i)] = b[i]
	}
	return nil
}

// getX/setX treat index 0 specially only insofar as x[0] is a normal slot;
// SP is tracked separately since the encodings address it as register 31.
func (f *fakeCore) getX(n uint8) uint64 {
	if n == 31 {
		return f.sp
	}
	return f.x[n]
}

func (f *fakeCore) setX(n uint8, v uint64) {
	if n == 31 {
		f.sp = v
		return
	}
	f.x[n] = v
}

func (f *fakeCore) pushDCC64(v uint64) {
	f.regs[offDBGDTRTX] = uint32(v)
	f.regs[offDBGDTRRX] = uint32(v >> 32)
}

func (f *fakeCore) pullDCC64() uint64 {
	lo := f.regs[offDBGDTRRX]
	hi := f.regs[offDBGDTRTX]
	return uint64(hi)<<32 | uint64(lo)
}

// mask5 clears the low 5 bits (the Rd/Rn register field every one of
// these single-register opcode forms varies in).
const mask5 uint32 = 0xFFFFFFE0

// exec decodes just enough of the opcode space this package's encode.go
// produces; anything else is ignored (matches real silicon ignoring a
// reserved NOP in a test double, not a production concern). Specific
// fixed-field forms (DBGDTR move, sp move, reg move, cache/barrier ops)
// are checked before the generic mrs/msr-sysreg forms since both families
// share the same top-level D51/D53 encoding space.
func (f *fakeCore) exec(opcode uint32) {
	switch {
	case opcode&mask5 == 0xD5330400: // mrs xN, dbgdtr_el0
		n := uint8(opcode & 0x1F)
		f.setX(n, f.pullDCC64())
	case opcode&mask5 == 0xD5130400: // msr dbgdtr_el0, xN
		n := uint8(opcode & 0x1F)
		f.pushDCC64(f.getX(n))
	case opcode&mask5 == 0x910003E0: // add xD, sp, #0
		d := uint8(opcode & 0x1F)
		f.setX(d, f.sp)
	case opcode&0xFFFFFC1F == 0x9100001F: // mov sp, xN
		n := uint8((opcode >> 5) & 0x1F)
		f.sp = f.getX(n)
	case opcode&0xFFE0FFE0 == 0xAA0003E0: // mov xD, xM
		d := uint8(opcode & 0x1F)
		m := uint8((opcode >> 16) & 0x1F)
		f.setX(d, f.getX(m))
	case opcode&mask5 == 0xD5087E40: // dc cisw, xN
		f.dcciswCount++
	case opcode == 0xD5033F9F: // dsb sy
		f.dsbCount++
	case opcode == 0xD508711F: // ic ialluis
		f.icialluisCount++
	case opcode&mask5 == 0xD4200000: // brk #imm16 (imm16 not modeled)
		// no architectural side effect needed for these tests
	case opcode&0xFFE00000 == 0xD5200000: // mrs xN, <sysreg>
		n := uint8(opcode & 0x1F)
		sysreg := (opcode >> 5) & 0x7FFF
		f.setX(n, f.sysregs[sysreg])
	case opcode&0xFFE00000 == 0xD5000000: // msr <sysreg>, xN
		n := uint8(opcode & 0x1F)
		sysreg := (opcode >> 5) & 0x7FFF
		f.sysregs[sysreg] = f.getX(n)
	case opcode&0xFFE00C00 == 0xF8400400: // ldr xN,[xM],#imm
		n := uint8(opcode & 0x1F)
		m := uint8((opcode >> 5) & 0x1F)
		imm := int16(opcode>>12) & 0x1FF
		addr := f.getX(m)
		var b [8]byte
		for i := 0; i < 8; i++ {
			b[i] = f.mem[addr+uint64(i)]
		}
		f.setX(n, binary.LittleEndian.Uint64(b[:]))
		f.setX(m, addr+uint64(imm))
	case opcode&0xFFE00C00 == 0xB8400400: // ldr wN,[xM],#imm
		n := uint8(opcode & 0x1F)
		m := uint8((opcode >> 5) & 0x1F)
		imm := int16(opcode>>12) & 0x1FF
		addr := f.getX(m)
		var b [4]byte
		for i := 0; i < 4; i++ {
			b[i] = f.mem[addr+uint64(i)]
		}
		f.setX(n, uint64(binary.LittleEndian.Uint32(b[:])))
		f.setX(m, addr+uint64(imm))
	case opcode&0xFFE00C00 == 0xF8000400: // str xN,[xM],#imm
		n := uint8(opcode & 0x1F)
		m := uint8((opcode >> 5) & 0x1F)
		imm := int16(opcode>>12) & 0x1FF
		addr := f.getX(m)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], f.getX(n))
		for i := 0; i < 8; i++ {
			f.mem[addr+uint64(i)] = b[i]
		}
		f.setX(m, addr+uint64(imm))
	case opcode&0xFFE00C00 == 0xB8000400: // str wN,[xM],#imm (post-indexed)
		n := uint8(opcode & 0x1F)
		m := uint8((opcode >> 5) & 0x1F)
		imm := int16(opcode>>12) & 0x1FF
		addr := f.getX(m)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(f.getX(n)))
		for i := 0; i < 4; i++ {
			f.mem[addr+uint64(i)] = b[i]
		}
		f.setX(m, addr+uint64(imm))
	case opcode&0xFFE00000 == 0xB8000000: // stur wN,[xM,#imm] (unscaled, no writeback)
		n := uint8(opcode & 0x1F)
		m := uint8((opcode >> 5) & 0x1F)
		imm := int16(opcode>>12) & 0x1FF
		addr := uint64(int64(f.getX(m)) + int64(imm))
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(f.getX(n)))
		for i := 0; i < 4; i++ {
			f.mem[addr+uint64(i)] = b[i]
		}
	}
}
