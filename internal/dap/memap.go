package dap

import (
	"context"
	"encoding/binary"

	"github.com/chipdebug/core/internal/dbgerr"
)

// MemAPRead performs a bulk buffered read of n bytes starting at addr
// (spec.md §4.1 "Bulk buffer transfer"). It chooses an access size of
// 1, 2, or 4 bytes and, when the AP record advertises both auto-increment
// and packed-transfer support, packs four 1-byte or two 2-byte transfers
// into a single DRW access while at least that many source bytes remain
// within the TAR auto-increment block.
func (d *DAP) MemAPRead(ctx context.Context, apNum uint8, addr uint32, size int, out []byte) error {
	r := d.recordFor(apNum)
	return d.memAPTransfer(ctx, apNum, r, addr, size, out, false)
}

// MemAPWrite is the write counterpart of MemAPRead.
func (d *DAP) MemAPWrite(ctx context.Context, apNum uint8, addr uint32, size int, in []byte) error {
	r := d.recordFor(apNum)
	return d.memAPTransfer(ctx, apNum, r, addr, size, in, true)
}

func (d *DAP) memAPTransfer(ctx context.Context, apNum uint8, r *APRecord, addr uint32, size int, buf []byte, write bool) error {
	if size != 1 && size != 2 && size != 4 {
		return dbgerr.WithAddr("mem_ap_transfer", dbgerr.KindInvalidParameter, uint64(addr), nil)
	}
	if addr%uint32(size) != 0 && r.UnalignedAccessBad {
		return dbgerr.WithAddr("mem_ap_transfer", dbgerr.KindUnalignedAccess, uint64(addr), nil)
	}

	blockSize := r.AutoIncBlockSize
	if blockSize == 0 {
		blockSize = 0x1000
	}

	n := len(buf)
	off := 0
	a := addr
	for off < n {
		remainInBlock := blockSize - (a % blockSize)
		cswSize := sizeToCSW(size)

		if r.PackedTransfers && size < 4 && remainInBlock >= 4 && (n-off) >= 4 {
			packCount := 4 / size
			if size == 2 {
				packCount = 2
			}
			word, consumed := packWord(buf[off:], size, packCount, write)
			d.setCSWTARPacked(apNum, r, a, cswSize)
			if write {
				d.QueueAPWrite(apNum, apDRW, word)
				if err := d.Run(ctx); err != nil {
					return dbgerr.WithAddr("mem_ap_write", dbgerr.KindOf(err), uint64(a), err)
				}
			} else {
				var v uint32
				d.QueueAPRead(apNum, apDRW, &v)
				if err := d.Run(ctx); err != nil {
					return dbgerr.WithAddr("mem_ap_read", dbgerr.KindOf(err), uint64(a), err)
				}
				unpackWord(v, buf[off:off+consumed], size)
			}
			off += consumed
			a += uint32(consumed)
			continue
		}

		d.setCSWTARPacked(apNum, r, a, cswSize)
		if write {
			v := elementToWord(buf[off:off+size], size)
			d.QueueAPWrite(apNum, apDRW, v)
			if err := d.Run(ctx); err != nil {
				return dbgerr.WithAddr("mem_ap_write", dbgerr.KindOf(err), uint64(a), err)
			}
		} else {
			var v uint32
			d.QueueAPRead(apNum, apDRW, &v)
			if err := d.Run(ctx); err != nil {
				return dbgerr.WithAddr("mem_ap_read", dbgerr.KindOf(err), uint64(a), err)
			}
			wordToElement(v, buf[off:off+size], size)
		}
		off += size
		a += uint32(size)
	}
	return nil
}

func sizeToCSW(size int) uint32 {
	switch size {
	case 1:
		return cswSize8
	case 2:
		return cswSize16
	default:
		return cswSize32
	}
}

// setCSWTARPacked mirrors setCSWTAR but additionally sets the packed
// auto-increment bit when the record supports it; used by memAPTransfer.
func (d *DAP) setCSWTARPacked(apNum uint8, r *APRecord, addr uint32, size uint32) {
	inc := uint32(cswAddrIncSingle)
	if r.PackedTransfers {
		inc = cswAddrIncPacked
	}
	csw := r.DefaultCSW | size | inc
	if !r.cswValid || r.cswCached != csw {
		d.QueueAPWrite(apNum, apCSW, csw)
		r.cswCached = csw
		r.cswValid = true
	}
	if !r.tarValid || r.tarCached != addr || inc != 0 {
		d.QueueAPWrite(apNum, apTAR, addr)
		r.tarCached = addr
		r.tarValid = true
	}
}

func elementToWord(b []byte, size int) uint32 {
	switch size {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.LittleEndian.Uint16(b))
	default:
		return binary.LittleEndian.Uint32(b)
	}
}

func wordToElement(v uint32, out []byte, size int) {
	switch size {
	case 1:
		out[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(out, uint16(v))
	default:
		binary.LittleEndian.PutUint32(out, v)
	}
}

func packWord(b []byte, size, count int, write bool) (word uint32, consumed int) {
	consumed = size * count
	if !write {
		return 0, consumed
	}
	for i := 0; i < count; i++ {
		switch size {
		case 1:
			word |= uint32(b[i]) << (8 * i)
		case 2:
			word |= uint32(binary.LittleEndian.Uint16(b[i*2:])) << (16 * i)
		}
	}
	return word, consumed
}

func unpackWord(word uint32, out []byte, size int) {
	count := len(out) / size
	for i := 0; i < count; i++ {
		switch size {
		case 1:
			out[i] = byte(word >> (8 * i))
		case 2:
			binary.LittleEndian.PutUint16(out[i*2:], uint16(word>>(16*i)))
		}
	}
}

// TIBE32Addr applies the TI BE-32 quirk of spec.md §4.1: "XOR the address
// with {3,2,0} for {1,2,4}-byte transfers when writing." Reading shifts
// from the high byte of DRW downward instead, handled by the caller.
func TIBE32Addr(addr uint32, size int) uint32 {
	switch size {
	case 1:
		return addr ^ 3
	case 2:
		return addr ^ 2
	default:
		return addr ^ 0
	}
}
