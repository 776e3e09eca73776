package dap

// JTAG-DP instruction register codes (ARM IHI 0031, table B3-3). Only the
// codes this module drives are named; BYPASS/IDCODE are reached through the
// same Scan primitive but never queued by the DAP engine itself.
const (
	irAbort  = 0x8
	irDPACC  = 0xA
	irAPACC  = 0xB
	irIDCODE = 0xE
	irBypass = 0xF
)

// DP register A[3:2] field values (valid only when RnW/A encodes a DPACC
// access; SELECT picks which AP bank APACC then addresses).
const (
	dpIDCODE  = 0x0 // read-only
	dpABORT   = 0x0 // write-only (aliases IDCODE's address, disambiguated by RnW)
	dpCTRLSTAT = 0x1
	dpSELECT  = 0x2 // write-only
	dpRDBUFF  = 0x3 // read-only
)

// CTRL/STAT bits (ARM IHI 0031 §2.3.1).
const (
	ctrlCSYSPWRUPACK = 1 << 31
	ctrlCSYSPWRUPREQ = 1 << 30
	ctrlCDBGPWRUPACK = 1 << 29
	ctrlCDBGPWRUPREQ = 1 << 28
	ctrlSTICKYERR    = 1 << 5
	ctrlSTICKYCMP    = 1 << 4
	ctrlSTICKYORUN   = 1 << 1
	ctrlORUNDETECT   = 1 << 0
)

// Abort register bits.
const (
	abortDAPABORT  = 1 << 0
	abortSTKCMPCLR = 1 << 1
	abortSTKERRCLR = 1 << 2
	abortWDERRCLR  = 1 << 3
	abortORUNERRCLR = 1 << 4
)

// MEM-AP register offsets within a 4-register bank (A[3:2], bank 0 unless
// noted). BD0-3 fill bank 1 (0x10-0x1C); ROM/IDR/CFG/BASE live at the
// top of the AP's address space (bank 0xF).
const (
	apCSW  = 0x00
	apTAR  = 0x04
	apDRW  = 0x0C
	apBD0  = 0x10
	apBD1  = 0x14
	apBD2  = 0x18
	apBD3  = 0x1C
	apCFG  = 0xF4
	apBASE = 0xF8
	apIDR  = 0xFC
)

// CSW bit fields (ADIv5 MEM-AP CSW).
const (
	cswSize8   = 0
	cswSize16  = 1
	cswSize32  = 2
	cswAddrIncSingle = 1 << 4
	cswAddrIncPacked = 2 << 4
	cswDeviceEn      = 1 << 6
	cswHProt1        = 1 << 25 // privileged
	cswMasterDebug   = 1 << 29
)

// ACK codes returned by a DPACC/APACC scan.
const (
	ackOK    = 0b010
	ackWAIT  = 0b001
	ackFAULT = 0b100
)

// dpAddr packs an A[3:2] field plus a RnW bit the way the JTAG-DP shift
// register expects it.
func dpAddr(a uint8, rnw bool) uint8 {
	v := (a & 0x3) << 1
	if rnw {
		v |= 1
	}
	return v
}
