// Package romtable implements the CoreSight ROM-table walker of spec.md
// §4.2: given a MEM-AP and a base address, it enumerates debug components
// by reading their Peripheral/Component ID registers and classifying them.
package romtable

import (
	"context"

	"github.com/chipdebug/core/internal/dbgerr"
)

// Reader is the minimal MEM-AP surface the walker needs; dap.DAP satisfies
// it, and tests can supply a lighter fake without dragging in the full JTAG
// pipeline.
type Reader interface {
	MemAPReadU32(ctx context.Context, apNum uint8, addr uint32) (uint32, error)
}

const maxDepth = 16

// Component offsets within the last 4KiB of any CoreSight component,
// relative to the component's 4KiB-aligned base (ARM IHI 0029).
const (
	offPIDR4 = 0xFD0
	offPIDR0 = 0xFE0
	offCIDR0 = 0xFF0
)

// Class is the CID[15:12] component classification.
type Class int

const (
	ClassGenericVerification Class = 0x0
	ClassROMTable            Class = 0x1
	ClassDebugComponent      Class = 0x9
	ClassPeripheralTestBlock Class = 0xB
	ClassGenericIP           Class = 0xE
	ClassPrimeCell           Class = 0xF
)

// Entry describes one discovered debug component (spec.md §3 "CoreSight
// ROM entry").
type Entry struct {
	Base       uint32
	PID        uint64 // 40 significant bits
	CID        uint32
	Class      Class
	DevType    uint32 // valid only when Class == ClassDebugComponent
	DevID      uint32
	PowerDomain      uint8
	PowerDomainValid bool
}

// OnComponent is invoked for each class-9 (debug component) entry found.
type OnComponent func(Entry)

// Walk traverses the ROM table at base on the given AP, recursing into
// nested ROM tables (class 1) up to maxDepth, and reporting every debug
// component (class 9) it finds via onFound. It mirrors spec.md §4.2
// exactly: zero entry, low-12-bit offset field == 0xF00, or depth 16 all
// terminate the walk (depth termination simply stops recursing further,
// it is not an error).
func Walk(ctx context.Context, r Reader, apNum uint8, base uint32, onFound OnComponent) error {
	return walk(ctx, r, apNum, base, 0, onFound)
}

func walk(ctx context.Context, r Reader, apNum uint8, base uint32, depth int, onFound OnComponent) error {
	if depth >= maxDepth {
		return nil
	}
	for i := 0; ; i++ {
		entryAddr := base + uint32(i*4)
		entry, err := r.MemAPReadU32(ctx, apNum, entryAddr)
		if err != nil {
			return dbgerr.WithAddr("romtable.walk", dbgerr.KindOf(err), uint64(entryAddr), err)
		}
		if entry == 0 {
			return nil
		}
		offsetField := entry & 0xFFF
		if offsetField == 0xF00 {
			return nil
		}
		present := entry&0x1 != 0
		if !present {
			continue
		}
		format32 := entry&0x2 != 0
		if !format32 {
			continue
		}

		offset := int32(entry&0xFFFFF000) // sign-extends via int32 of the full word
		compBase := uint32(int64(base) + int64(offset))

		e, err := identify(ctx, r, apNum, compBase)
		if err != nil {
			return err
		}
		e.PowerDomainValid = entry&0x4 != 0
		e.PowerDomain = uint8((entry >> 5) & 0xF)

		switch e.Class {
		case ClassROMTable:
			if err := walk(ctx, r, apNum, e.Base, depth+1, onFound); err != nil {
				return err
			}
		case ClassDebugComponent:
			if onFound != nil {
				onFound(e)
			}
		}
	}
}

// identify reads CID/PID at the last 4KiB of the component at compBase and
// validates them per spec.md §4.2.
func identify(ctx context.Context, r Reader, apNum uint8, compBase uint32) (Entry, error) {
	var cidr [4]uint32
	for i := range cidr {
		v, err := r.MemAPReadU32(ctx, apNum, compBase+offCIDR0+uint32(i*4))
		if err != nil {
			return Entry{}, err
		}
		cidr[i] = v & 0xFF
	}
	cid := cidr[0] | cidr[1]<<8 | cidr[2]<<16 | cidr[3]<<24
	if cid&0xFFFF0FFF != 0xB105000D {
		return Entry{}, dbgerr.WithAddr("romtable.identify", dbgerr.KindDeviceError, uint64(compBase), nil)
	}
	class := Class((cid >> 12) & 0xF)

	var pidr [8]uint32
	for i := range pidr {
		off := offPIDR0 + uint32(i*4)
		if i >= 4 {
			off = offPIDR4 + uint32((i-4)*4)
		}
		v, err := r.MemAPReadU32(ctx, apNum, compBase+off)
		if err != nil {
			return Entry{}, err
		}
		pidr[i] = v & 0xFF
	}
	pid := uint64(pidr[0]) | uint64(pidr[1])<<8 | uint64(pidr[2])<<16 | uint64(pidr[3])<<24 | uint64(pidr[4])<<32

	size4k := uint32(1) << ((pidr[4] >> 4) & 0xF)
	physBase := compBase - 0x1000*(size4k-1)

	e := Entry{Base: physBase, PID: pid, CID: cid, Class: class}

	if class == ClassDebugComponent {
		devType, err := r.MemAPReadU32(ctx, apNum, physBase+0xFCC)
		if err != nil {
			return Entry{}, err
		}
		e.DevType = devType & 0xFF
		devID, err := r.MemAPReadU32(ctx, apNum, physBase+0xFC8)
		if err != nil {
			return Entry{}, err
		}
		e.DevID = devID
	}
	return e, nil
}

// DevTypeMajorMinor splits DEVTYPE into (major, sub) for classification, as
// spec.md §4.2 "classify by (major, sub)" describes.
func DevTypeMajorMinor(devType uint32) (major, sub uint8) {
	return uint8(devType & 0xF), uint8((devType >> 4) & 0xF)
}
