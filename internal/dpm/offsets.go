package dpm

// External-debug register offsets from the debug component's 4KiB base,
// per spec.md §4.3/§6 (ARMv8-A external debug register map).
const (
	offEDSCR   = 0x088
	offEDRCR   = 0x08C
	offEDPRSR  = 0x314
	offEDECR   = 0x024
	offEDESR   = 0x038
	offEDITR   = 0x084
	offDBGDTRRX = 0x08C // DBGDTRRX_EL0 external view shares EDRCR's bank in some revisions; kept distinct logically
	offDBGDTRTX = 0x080
	offDBGBVRn  = 0x400 // + 16*n, low word; +4 for high word
	offDBGBCRn  = 0x408 + 0 // + 16*n
	offDBGWVRn  = 0xA00
	offDBGWCRn  = 0xA08
)

// EDSCR bit fields.
const (
	edscrITE    = 1 << 24
	edscrELMask = 0x3
	edscrELShift = 8
	edscrStatusMask = 0x3F
)

// EDRCR bits.
const (
	edrcrCSE = 1 << 2 // clear sticky errors
)

// EDPRSR bits.
const (
	edprsrSDR = 1 << 1 // sticky debug restart
)

// EDECR bits.
const (
	edecrSS = 1 << 2 // halting step enable
)

// EDESR bits.
const (
	edesrSS = 1 << 2
)

func bvrLowOffset(n int) uint32  { return offDBGBVRn + uint32(n)*16 }
func bvrHighOffset(n int) uint32 { return offDBGBVRn + uint32(n)*16 + 4 }
func bcrOffset(n int) uint32     { return 0x408 + uint32(n)*16 }
func wvrOffset(n int) uint32     { return offDBGWVRn + uint32(n)*16 }
func wcrOffset(n int) uint32     { return offDBGWCRn + uint32(n)*16 }
