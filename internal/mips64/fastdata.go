package mips64

import (
	"context"

	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/workarea"
)

// fastdataHandlerWords is the handler program's length in 32-bit words; it
// must fit in the working area reserved for it (MIPS64_FASTDATA_HANDLER_SIZE
// bytes).
const fastdataHandlerWords = fastdataHandlerSize / 4

// handlerCode builds the RAM-resident copy loop the FASTDATA scan streams
// through: it copies one 64-bit word per iteration between the probe's
// fastdata window and the target buffer at r9, bumping r9 until it reaches
// the end address at r10, then jumps back to PRACC_TEXT.
func handlerCode(write bool) []uint32 {
	var ld0, ld1 uint32
	if write {
		ld0 = ld(11, 8, 0) // load from probe @ fastdata area
		ld1 = sd(11, 9, 0) // store to RAM @ r9
	} else {
		ld0 = ld(11, 9, 0) // load from RAM @ r9
		ld1 = sd(11, 8, 0) // store to probe @ fastdata area
	}
	code := []uint32{
		sd(8, 15, int16(fastdataHandlerSize-8)),
		sd(9, 15, int16(fastdataHandlerSize-16)),
		sd(10, 15, int16(fastdataHandlerSize-24)),
		sd(11, 15, int16(fastdataHandlerSize-32)),
		lui(8, upper16(praccFastdataArea)),
		ori(8, 8, lower16(praccFastdataArea)),
		ld(9, 8, 0),  // start addr
		ld(10, 8, 0), // end addr
		ld0,
		ld1,
		bne(10, 9, neg16(3)), // loop while r9 != r10
		daddiu(9, 9, 8),
		ld(8, 15, int16(fastdataHandlerSize-8)),
		ld(9, 15, int16(fastdataHandlerSize-16)),
		ld(10, 15, int16(fastdataHandlerSize-24)),
		ld(11, 15, int16(fastdataHandlerSize-32)),
		lui(15, upper16(praccText)),
		ori(15, 15, lower16(praccText)),
		jr(15),
		dmfc0(15, 31, 0),
	}
	for len(code) < fastdataHandlerWords {
		code = append(code, nop)
	}
	return code
}

func jmpCode(target uint64) []uint32 {
	return []uint32{
		lui(15, upper16(uint32(target))),
		ori(15, 15, lower16(uint32(target))),
		jr(15),
		nop,
	}
}

// FastdataXfer implements the bulk-transfer path of spec.md §4.7: upload
// the copy handler into work (on every call), point a jump at
// it, then stream count 64-bit words over the FASTDATA TAP instruction.
// scanDelayNS, if non-zero, is converted to tck cycles from the configured
// adapter speed and inserted before each word.
func (e *Engine) FastdataXfer(ctx context.Context, work *workarea.Handle, write bool, addr uint64, buf []uint64, scanDelayNS int) error {
	if work.Size() < fastdataHandlerSize {
		return dbgerr.New("mips64.fastdata_xfer", dbgerr.KindResourceUnavailable, nil)
	}

	code := handlerCode(write)
	if err := e.WriteMem(ctx, work.Address(), 4, len(code), wordsToBytes(code)); err != nil {
		return err
	}

	if _, err := e.Exec(ctx, jmpCode(work.Address()), nil, 0); err != nil {
		return err
	}

	if _, err := e.waitForPRACC(ctx); err != nil {
		return err
	}
	addr32, err := e.ej.readAddress(ctx)
	if err != nil {
		return err
	}
	faddr := uint64(addr32) &^ 7
	if faddr != praccFastdataArea {
		return dbgerr.WithAddr("mips64.fastdata_xfer", dbgerr.KindDeviceError, signExtendAddr(addr32), nil)
	}

	if _, err := e.ej.scan64(ctx, irFastData, addr); err != nil {
		return err
	}
	if _, err := e.waitForPRACC(ctx); err != nil {
		return err
	}

	end := addr + uint64(len(buf)-1)*8
	if _, err := e.ej.scan64(ctx, irFastData, end); err != nil {
		return err
	}

	khz := e.ej.tp.GetSpeedKHz()
	var tcks int
	if scanDelayNS > 0 && khz > 0 {
		tcks = (scanDelayNS*khz + 500_000) / 1_000_000
	}
	for i := range buf {
		if tcks > 0 {
			if err := e.ej.idleClocks(ctx, tcks); err != nil {
				return err
			}
		}
		if write {
			if _, err := e.ej.scan64(ctx, irFastData, buf[i]); err != nil {
				return err
			}
		} else {
			v, err := e.ej.scan64(ctx, irFastData, 0)
			if err != nil {
				return err
			}
			buf[i] = v
		}
	}

	_, err = e.waitForPRACC(ctx)
	return err
}

func wordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		out[4*i] = byte(w)
		out[4*i+1] = byte(w >> 8)
		out[4*i+2] = byte(w >> 16)
		out[4*i+3] = byte(w >> 24)
	}
	return out
}
