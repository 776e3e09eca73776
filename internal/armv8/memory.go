package armv8

import (
	"context"
	"encoding/binary"

	"github.com/chipdebug/core/internal/dbgerr"
)

// MMUState is the per-target MMU/memory descriptor of spec.md §3
// "MMU/memory descriptor".
type MMUState struct {
	TranslationEnabled bool
	ICacheEnabled      bool
	DCacheEnabled      bool
	TTBR1Used          bool
	TTBR0Mask          uint64
}

// ReadMemory implements spec.md §4.8 `read_memory`: addr must satisfy
// addr%size==0 unless the target advertises unaligned-access-ok. When the
// MMU is enabled, virtual addresses are translated before the physical
// access.
func (t *Target) ReadMemory(ctx context.Context, addr uint64, size, count int, out []byte) error {
	if err := t.checkAlignment(addr, size); err != nil {
		return err
	}
	if !t.MMU.TranslationEnabled {
		return t.readPhysMemoryRaw(ctx, addr, size, count, out)
	}
	return t.readWriteTranslated(ctx, addr, size, count, out, false)
}

// WriteMemory is the write counterpart of ReadMemory.
func (t *Target) WriteMemory(ctx context.Context, addr uint64, size, count int, in []byte) error {
	if err := t.checkAlignment(addr, size); err != nil {
		return err
	}
	if !t.MMU.TranslationEnabled {
		return t.writePhysMemoryRaw(ctx, addr, size, count, in)
	}
	return t.readWriteTranslated(ctx, addr, size, count, in, true)
}

// ReadPhysMemory bypasses the MMU (spec.md §4.8 `read_phys_memory`).
func (t *Target) ReadPhysMemory(ctx context.Context, addr uint64, size, count int, out []byte) error {
	return t.readPhysMemoryRaw(ctx, addr, size, count, out)
}

// WritePhysMemory bypasses the MMU.
func (t *Target) WritePhysMemory(ctx context.Context, addr uint64, size, count int, in []byte) error {
	return t.writePhysMemoryRaw(ctx, addr, size, count, in)
}

func (t *Target) checkAlignment(addr uint64, size int) error {
	if addr%uint64(size) != 0 && !t.cfg.UnalignedAccessOK {
		return dbgerr.WithAddr("armv8.memory_access", dbgerr.KindUnalignedAccess, addr, nil)
	}
	return nil
}

// readWriteTranslated translates addr page by page (a page may not cover
// the whole transfer) and delegates each contiguous physical run to the
// raw path.
func (t *Target) readWriteTranslated(ctx context.Context, addr uint64, size, count int, buf []byte, write bool) error {
	total := size * count
	off := 0
	for off < total {
		phys, err := t.virt2phys(ctx, addr+uint64(off))
		if err != nil {
			return err
		}
		runLen := 4096 - int(phys&0xFFF)
		if runLen > total-off {
			runLen = total - off
		}
		if write {
			if err := t.writePhysMemoryRaw(ctx, phys, 1, runLen, buf[off:off+runLen]); err != nil {
				return err
			}
		} else {
			if err := t.readPhysMemoryRaw(ctx, phys, 1, runLen, buf[off:off+runLen]); err != nil {
				return err
			}
		}
		off += runLen
	}
	return nil
}

// readPhysMemoryRaw chooses the AHB/AXI path (DAP buffered transfer) when
// the memory AP is available, else the APB/DPM path (spec.md §4.4
// "Memory access").
func (t *Target) readPhysMemoryRaw(ctx context.Context, addr uint64, size, count int, out []byte) error {
	if t.cfg.MemoryAPAvailable {
		return t.d.MemAPRead(ctx, t.cfg.MemAPNum, uint32(addr), size, out[:size*count])
	}
	return t.apbReadMemory(ctx, addr, size*count, out)
}

func (t *Target) writePhysMemoryRaw(ctx context.Context, addr uint64, size, count int, in []byte) error {
	if t.cfg.MemoryAPAvailable {
		return t.d.MemAPWrite(ctx, t.cfg.MemAPNum, uint32(addr), size, in[:size*count])
	}
	return t.apbWriteMemory(ctx, addr, in[:size*count])
}

// apbReadMemory implements the APB/DPM memory path of spec.md §4.4: write
// the address into X1, then loop reading 8-byte blocks via
// `ldr x0,[x1],#8 ; msr dbgdtr_el0,x0`, with a 4-byte tail via
// `ldr w0,[x1],#4`. X0 and X1 are marked dirty before the loop and
// dpm.Finish/EDRCR.CSE run afterward regardless of outcome.
func (t *Target) apbReadMemory(ctx context.Context, addr uint64, n int, out []byte) error {
	t.Regs.MarkDirty(t.Regs.ByName("x0"))
	t.Regs.MarkDirty(t.Regs.ByName("x1"))
	defer t.dpm.Finish(ctx)

	if err := t.dpm.InstrWriteDataDCC64(ctx, encodeMRSDBGDTR(1), addr); err != nil {
		return dbgerr.WithAddr("armv8.apb_read_memory", dbgerr.KindOf(err), addr, err)
	}

	off := 0
	for off+8 <= n {
		if err := t.execOpcode(ctx, encodeLDRPostIndex64(0, 1, 8)); err != nil {
			return dbgerr.WithAddr("armv8.apb_read_memory", dbgerr.KindOf(err), addr+uint64(off), err)
		}
		v, err := t.dpm.InstrReadDataDCC64(ctx, encodeMSRDBGDTR(0))
		if err != nil {
			return dbgerr.WithAddr("armv8.apb_read_memory", dbgerr.KindOf(err), addr+uint64(off), err)
		}
		binary.LittleEndian.PutUint64(out[off:], v)
		off += 8
	}
	if off+4 <= n {
		if err := t.execOpcode(ctx, encodeLDRPostIndex32(0, 1, 4)); err != nil {
			return dbgerr.WithAddr("armv8.apb_read_memory", dbgerr.KindOf(err), addr+uint64(off), err)
		}
		v, err := t.dpm.InstrReadDataDCC64(ctx, encodeMSRDBGDTR(0))
		if err != nil {
			return dbgerr.WithAddr("armv8.apb_read_memory", dbgerr.KindOf(err), addr+uint64(off), err)
		}
		binary.LittleEndian.PutUint32(out[off:], uint32(v))
		off += 4
	}
	if off < n {
		// Misaligned tail of a word: read-modify against the enclosing
		// 32-bit unit and keep only the bytes the caller asked for.
		if err := t.execOpcode(ctx, encodeLDRPostIndex32(0, 1, 4)); err != nil {
			return dbgerr.WithAddr("armv8.apb_read_memory", dbgerr.KindOf(err), addr+uint64(off), err)
		}
		v, err := t.dpm.InstrReadDataDCC64(ctx, encodeMSRDBGDTR(0))
		if err != nil {
			return dbgerr.WithAddr("armv8.apb_read_memory", dbgerr.KindOf(err), addr+uint64(off), err)
		}
		var word [4]byte
		binary.LittleEndian.PutUint32(word[:], uint32(v))
		copy(out[off:], word[:n-off])
	}
	return nil
}

// apbWriteMemory is the write counterpart of apbReadMemory: stage the
// datum into X0 via DCC (`mrs x0,dbgdtr_el0`), then `str x0,[x1],#8` for
// 8-byte blocks and a post-indexed `str w0,[x1],#4` for a 4-byte-aligned
// tail, mirroring apbReadMemory's post-indexed tail so X1 always points at
// the next unwritten byte rather than relying on a fixed back-offset.
func (t *Target) apbWriteMemory(ctx context.Context, addr uint64, in []byte) error {
	t.Regs.MarkDirty(t.Regs.ByName("x0"))
	t.Regs.MarkDirty(t.Regs.ByName("x1"))
	defer t.dpm.Finish(ctx)

	n := len(in)
	if err := t.dpm.InstrWriteDataDCC64(ctx, encodeMRSDBGDTR(1), addr); err != nil {
		return dbgerr.WithAddr("armv8.apb_write_memory", dbgerr.KindOf(err), addr, err)
	}

	off := 0
	for off+8 <= n {
		v := binary.LittleEndian.Uint64(in[off:])
		if err := t.dpm.InstrWriteDataDCC64(ctx, encodeMRSDBGDTR(0), v); err != nil {
			return dbgerr.WithAddr("armv8.apb_write_memory", dbgerr.KindOf(err), addr+uint64(off), err)
		}
		if err := t.execOpcode(ctx, encodeSTRPostIndex64(0, 1, 8)); err != nil {
			return dbgerr.WithAddr("armv8.apb_write_memory", dbgerr.KindOf(err), addr+uint64(off), err)
		}
		off += 8
	}
	if off+4 <= n {
		v := uint64(binary.LittleEndian.Uint32(in[off:]))
		if err := t.dpm.InstrWriteDataDCC64(ctx, encodeMRSDBGDTR(0), v); err != nil {
			return dbgerr.WithAddr("armv8.apb_write_memory", dbgerr.KindOf(err), addr+uint64(off), err)
		}
		if err := t.execOpcode(ctx, encodeSTRPostIndex32(0, 1, 4)); err != nil {
			return dbgerr.WithAddr("armv8.apb_write_memory", dbgerr.KindOf(err), addr+uint64(off), err)
		}
		off += 4
	}
	if off < n {
		// Misaligned tail of a word: X1 already points at its start, so
		// `stur` needs no offset adjustment here.
		var word [4]byte
		copy(word[:], in[off:])
		v := uint64(binary.LittleEndian.Uint32(word[:]))
		if err := t.dpm.InstrWriteDataDCC64(ctx, encodeMRSDBGDTR(0), v); err != nil {
			return dbgerr.WithAddr("armv8.apb_write_memory", dbgerr.KindOf(err), addr+uint64(off), err)
		}
		if err := t.execOpcode(ctx, encodeSTURWord(0, 1, 0)); err != nil {
			return dbgerr.WithAddr("armv8.apb_write_memory", dbgerr.KindOf(err), addr+uint64(off), err)
		}
	}
	return nil
}
