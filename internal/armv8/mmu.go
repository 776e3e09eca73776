package armv8

import (
	"context"
	"encoding/binary"

	"github.com/chipdebug/core/internal/dbgerr"
)

const (
	sysregTTBR0 = 0b011_000_0010_0000_000
	sysregTTBR1 = 0b011_000_0010_0000_001
	sysregTCR   = 0b011_000_0010_0000_010
)

// virt2phys walks the short-descriptor (ARMv7-style section/page) two-level
// translation table rooted at TTBR0 or TTBR1 (spec.md §4.4 "Address
// translation").
func (t *Target) virt2phys(ctx context.Context, vaddr uint64) (uint64, error) {
	ttbr, err := t.selectTTBR(ctx, vaddr)
	if err != nil {
		return 0, err
	}

	firstIdx := (vaddr >> 20) & 0xFFF
	firstDescAddr := (ttbr &^ 0x3FFF) | (firstIdx << 2)
	firstDesc, err := t.readPhysWord(ctx, firstDescAddr)
	if err != nil {
		return 0, err
	}

	switch firstDesc & 0x3 {
	case 0b00:
		return 0, dbgerr.WithAddr("armv8.virt2phys", dbgerr.KindTranslationFault, vaddr, nil)
	case 0b01:
		return t.walkSecondLevel(ctx, vaddr, firstDesc)
	default: // 0b10, 0b11: section
		return uint64(firstDesc&^0xFFFFF) | (vaddr & 0xFFFFF), nil
	}
}

func (t *Target) walkSecondLevel(ctx context.Context, vaddr uint64, firstDesc uint32) (uint64, error) {
	ptBase := uint64(firstDesc &^ 0x3FF)
	secondIdx := (vaddr >> 12) & 0xFF
	secondDescAddr := ptBase | (secondIdx << 2)
	secondDesc, err := t.readPhysWord(ctx, secondDescAddr)
	if err != nil {
		return 0, err
	}

	switch secondDesc & 0x3 {
	case 0b00:
		return 0, dbgerr.WithAddr("armv8.virt2phys", dbgerr.KindTranslationFault, vaddr, nil)
	case 0b01: // large page, 64KiB
		return uint64(secondDesc&^0xFFFF) | (vaddr & 0xFFFF), nil
	default: // small page, 4KiB (0b10 or 0b11)
		return uint64(secondDesc&^0xFFF) | (vaddr & 0xFFF), nil
	}
}

// selectTTBR reads TTBR1 when MMU.TTBR1Used is set and vaddr is at or above
// MMU.TTBR0Mask, and TTBR0 otherwise; TCR itself is not read.
func (t *Target) selectTTBR(ctx context.Context, vaddr uint64) (uint64, error) {
	if t.MMU.TTBR1Used && vaddr >= t.MMU.TTBR0Mask {
		return t.readSysReg64(ctx, sysregTTBR1)
	}
	return t.readSysReg64(ctx, sysregTTBR0)
}

// readPhysWord reads one little-endian uint32 straight from physical
// target memory, bypassing any further translation (descriptor fetches
// are themselves physical accesses).
func (t *Target) readPhysWord(ctx context.Context, addr uint64) (uint32, error) {
	var buf [4]byte
	if err := t.readPhysMemoryRaw(ctx, addr, 1, 4, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
