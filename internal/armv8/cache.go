package armv8

import (
	"context"

	"github.com/chipdebug/core/internal/dbgerr"
)

// CacheLevel describes one level's geometry (spec.md §3 "Cache descriptor").
type CacheLevel struct {
	Ctype         uint8
	LineSize      int
	Ways          int
	Sets          int
	AssociativityLog2 int
}

// CacheDescriptor is the per-architecture cache identification state.
type CacheDescriptor struct {
	Identified bool
	CLIDR      uint32
	LoC        uint8
	LoUU       uint8
	LoUIS      uint8
	Levels     [7]CacheLevel
}

const (
	sysregCLIDR  = 0b011_001_0000_0000_001 // op1=1 CRn=0 CRm=0 op2=1, EL1
	sysregCSSELR = 0b011_010_0000_0000_000
	sysregCCSIDR = 0b011_001_0000_0000_000
)

// IdentifyCache reads CLIDR_EL1 and, for each level with Ctype >= 2,
// selects it via CSSELR_EL1 and decodes CCSIDR_EL1 (spec.md §4.6
// "Identification").
func (t *Target) IdentifyCache(ctx context.Context) error {
	clidr, err := t.readSysReg64(ctx, sysregCLIDR)
	if err != nil {
		return dbgerr.New("armv8.identify_cache", dbgerr.KindOf(err), err)
	}
	cd := &t.Cache
	cd.CLIDR = uint32(clidr)
	cd.LoC = uint8((clidr >> 24) & 0x7)
	cd.LoUU = uint8((clidr >> 27) & 0x7)
	cd.LoUIS = uint8((clidr >> 21) & 0x7)

	for level := 0; level < int(cd.LoC) && level < 7; level++ {
		ctype := uint8((clidr >> uint(level*3)) & 0x7)
		if ctype < 2 {
			continue
		}
		if err := t.writeSysReg64(ctx, sysregCSSELR, uint64(level)<<1); err != nil {
			return dbgerr.New("armv8.identify_cache", dbgerr.KindOf(err), err)
		}
		ccsidr, err := t.readSysReg64(ctx, sysregCCSIDR)
		if err != nil {
			return dbgerr.New("armv8.identify_cache", dbgerr.KindOf(err), err)
		}
		lineSizeField := ccsidr & 0x7
		assoc := (ccsidr >> 3) & 0x3FF
		numSets := (ccsidr >> 13) & 0x7FFF

		cd.Levels[level] = CacheLevel{
			Ctype:    ctype,
			LineSize: 16 << lineSizeField,
			Ways:     int(assoc) + 1,
			Sets:     int(numSets) + 1,
		}
	}
	cd.Identified = true
	return nil
}

// FlushDCacheAll implements spec.md §4.6 "Flush D-cache all": iterate
// level 0..LoC-1, for every (way, set) of that level issue `dc cisw` with
// the packed SetWay operand, then `dsb sy` once per level, restoring the
// original CSSELR at the end.
func (t *Target) FlushDCacheAll(ctx context.Context) error {
	if !t.Cache.Identified {
		if err := t.IdentifyCache(ctx); err != nil {
			return err
		}
	}
	savedCsselr, err := t.readSysReg64(ctx, sysregCSSELR)
	if err != nil {
		return dbgerr.New("armv8.flush_dcache_all", dbgerr.KindOf(err), err)
	}

	for level := 0; level < int(t.Cache.LoC); level++ {
		lv := t.Cache.Levels[level]
		if lv.Ctype < 2 {
			continue
		}
		for way := 0; way < lv.Ways; way++ {
			for set := 0; set < lv.Sets; set++ {
				setWay := packSetWay(way, set, level, lv.Ways, lv.LineSize)
				if err := t.execOpcodeWithOperand(ctx, encodeDCCISW, setWay); err != nil {
					return dbgerr.New("armv8.flush_dcache_all", dbgerr.KindOf(err), err)
				}
			}
		}
		if err := t.execOpcode(ctx, encodeDSBSY()); err != nil {
			return dbgerr.New("armv8.flush_dcache_all", dbgerr.KindOf(err), err)
		}
	}

	if err := t.writeSysReg64(ctx, sysregCSSELR, savedCsselr); err != nil {
		return dbgerr.New("armv8.flush_dcache_all", dbgerr.KindOf(err), err)
	}
	return nil
}

// FlushICacheAllIS implements spec.md §4.6 "Flush I-cache: emit
// `ic ialluis`."
func (t *Target) FlushICacheAllIS(ctx context.Context) error {
	if err := t.execOpcode(ctx, encodeICIALLUIS()); err != nil {
		return dbgerr.New("armv8.flush_icache_all_is", dbgerr.KindOf(err), err)
	}
	return nil
}

// FlushICacheAllLocal implements the `aarch64 debug cache iallu` command:
// emit `ic iallu`, the PE-local (not inner-shareable) invalidate.
func (t *Target) FlushICacheAllLocal(ctx context.Context) error {
	if err := t.execOpcode(ctx, encodeICIALLU()); err != nil {
		return dbgerr.New("armv8.flush_icache_all_local", dbgerr.KindOf(err), err)
	}
	return nil
}

// execOpcodeWithOperand stages operand into X0 (via DCC) and executes an
// opcode-builder that consumes it from X0 (e.g. `dc cisw, x0`).
func (t *Target) execOpcodeWithOperand(ctx context.Context, encode func(n uint8) uint32, operand uint32) error {
	if err := t.dpm.InstrWriteDataX0(ctx, encodeMRSDBGDTR(0), operand); err != nil {
		return err
	}
	return t.dpm.ExecOpcode(ctx, encode(0))
}
