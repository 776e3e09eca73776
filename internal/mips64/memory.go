package mips64

import "context"

// loadOp is the shape lw/ld/lhu/lbu share: destination register, base
// register, 16-bit offset.
type loadOp func(rt, base uint32, off int16) uint32

// storeOp is the shape sw/sd/sh/sb share.
type storeOp func(rt, base uint32, off int16) uint32

// readCode builds the canned sequence mips64_pracc_read_u8/16/32/64 use:
// stash $8 on the PrAcc stack via DESAVE-pinned $15, load the target
// address out of param_in[0], load the datum through ld, write it to
// param_out[0], restore $8 and branch back to PRACC_TEXT.
func readCode(loadValue loadOp) []uint32 {
	code := []uint32{
		dmtc0(15, 31, 0),
		lui(15, upper16(praccStack)),
		ori(15, 15, lower16(praccStack)),
		sd(8, 15, 0),
		ld(8, 15, neg16(praccStack-praccParamIn)),
		loadValue(8, 8, 0),
		sd(8, 15, neg16(praccStack-praccParamOut)),
		ld(8, 15, 0),
		sync,
	}
	branchIdx := len(code)
	code = append(code, b(neg16(int32(branchIdx+1))), dmfc0(15, 31, 0))
	for i := 0; i < 8; i++ {
		code = append(code, nop)
	}
	return code
}

// writeCode is the write counterpart: param_in[0] is the address,
// param_in[1] the datum. syncICache adds the SYNCI the original emits after
// a word/dword store (omitted for byte/halfword stores, matching the
// teacher's canned sequences).
func writeCode(st storeOp, syncICache bool) []uint32 {
	code := []uint32{
		dmtc0(15, 31, 0),
		lui(15, upper16(praccStack)),
		ori(15, 15, lower16(praccStack)),
		sd(8, 15, 0),
		sd(9, 15, 0),
		ld(8, 15, neg16((praccStack-praccParamIn)-8)),
		ld(9, 15, neg16(praccStack-praccParamIn)),
		st(8, 9, 0),
	}
	if syncICache {
		code = append(code, synci(9, 0))
	}
	code = append(code, ld(9, 15, 0), ld(8, 15, 0), sync)
	branchIdx := len(code)
	code = append(code, b(neg16(int32(branchIdx+1))), dmfc0(15, 31, 0))
	for i := 0; i < 8; i++ {
		code = append(code, nop)
	}
	return code
}

// ReadU8/ReadU16/ReadU32/ReadU64 each run a canned single-access routine
// through the PrAcc engine and unpack the 64-bit param_out[0] slot.

func (e *Engine) ReadU64(ctx context.Context, addr uint64) (uint64, error) {
	out, err := e.Exec(ctx, readCode(ld), []uint64{addr}, 1)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

func (e *Engine) ReadU32(ctx context.Context, addr uint64) (uint32, error) {
	out, err := e.Exec(ctx, readCode(lw), []uint64{addr}, 1)
	if err != nil {
		return 0, err
	}
	return uint32(out[0]), nil
}

func (e *Engine) ReadU16(ctx context.Context, addr uint64) (uint16, error) {
	out, err := e.Exec(ctx, readCode(lhu), []uint64{addr}, 1)
	if err != nil {
		return 0, err
	}
	return uint16(out[0]), nil
}

func (e *Engine) ReadU8(ctx context.Context, addr uint64) (uint8, error) {
	out, err := e.Exec(ctx, readCode(lbu), []uint64{addr}, 1)
	if err != nil {
		return 0, err
	}
	return uint8(out[0]), nil
}

func (e *Engine) WriteU64(ctx context.Context, addr uint64, v uint64) error {
	_, err := e.Exec(ctx, writeCode(sd, true), []uint64{addr, v}, 0)
	return err
}

func (e *Engine) WriteU32(ctx context.Context, addr uint64, v uint32) error {
	_, err := e.Exec(ctx, writeCode(sw, true), []uint64{addr, uint64(v)}, 0)
	return err
}

func (e *Engine) WriteU16(ctx context.Context, addr uint64, v uint16) error {
	_, err := e.Exec(ctx, writeCode(sh, false), []uint64{addr, uint64(v)}, 0)
	return err
}

func (e *Engine) WriteU8(ctx context.Context, addr uint64, v uint8) error {
	_, err := e.Exec(ctx, writeCode(sb, false), []uint64{addr, uint64(v)}, 0)
	return err
}

// ReadMem/WriteMem iterate the single-access routines per spec.md §4.8
// `read_memory`/`write_memory`; size must be one of 1/2/4/8.
func (e *Engine) ReadMem(ctx context.Context, addr uint64, size, count int, out []byte) error {
	for i := 0; i < count; i++ {
		a := addr + uint64(i*size)
		switch size {
		case 1:
			v, err := e.ReadU8(ctx, a)
			if err != nil {
				return err
			}
			out[i] = v
		case 2:
			v, err := e.ReadU16(ctx, a)
			if err != nil {
				return err
			}
			out[2*i], out[2*i+1] = byte(v), byte(v>>8)
		case 4:
			v, err := e.ReadU32(ctx, a)
			if err != nil {
				return err
			}
			for b := 0; b < 4; b++ {
				out[4*i+b] = byte(v >> (8 * b))
			}
		case 8:
			v, err := e.ReadU64(ctx, a)
			if err != nil {
				return err
			}
			for b := 0; b < 8; b++ {
				out[8*i+b] = byte(v >> (8 * b))
			}
		}
	}
	return nil
}

func (e *Engine) WriteMem(ctx context.Context, addr uint64, size, count int, in []byte) error {
	for i := 0; i < count; i++ {
		a := addr + uint64(i*size)
		switch size {
		case 1:
			if err := e.WriteU8(ctx, a, in[i]); err != nil {
				return err
			}
		case 2:
			v := uint16(in[2*i]) | uint16(in[2*i+1])<<8
			if err := e.WriteU16(ctx, a, v); err != nil {
				return err
			}
		case 4:
			var v uint32
			for b := 0; b < 4; b++ {
				v |= uint32(in[4*i+b]) << (8 * b)
			}
			if err := e.WriteU32(ctx, a, v); err != nil {
				return err
			}
		case 8:
			var v uint64
			for b := 0; b < 8; b++ {
				v |= uint64(in[8*i+b]) << (8 * b)
			}
			if err := e.WriteU64(ctx, a, v); err != nil {
				return err
			}
		}
	}
	return nil
}
