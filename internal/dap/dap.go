// Package dap implements the ADIv5 Debug Access Port transaction engine:
// queued DP/AP register access, MEM-AP buffered memory transfer, and DP
// power-up initialization (spec.md §3 "DAP", §4.1).
package dap

import (
	"context"
	"time"

	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/dbglog"
	"github.com/chipdebug/core/internal/transport"
)

// APRecord is the per-index configuration and cache state spec.md §3
// describes ("AP record"). Index is the AP's own apsel number, not a slice
// position — up to 256 are addressable, almost all left zero-valued.
type APRecord struct {
	APNum             uint8
	DefaultCSW        uint32
	PackedTransfers    bool
	UnalignedAccessBad bool
	AutoIncBlockSize   uint32 // TAR wraps within this many bytes; 0 = 4KiB default
	MemAccessWaitCycles int

	cswCached   uint32
	cswValid    bool
	tarCached   uint32
	tarValid    bool
}

// command is one entry in the DAP's queued-operation journal.
type command struct {
	isAPWrite bool
	isDPWrite bool
	isAPRead  bool
	isDPRead  bool
	apNum     uint8
	addr      uint8 // A[3:2], pre-shifted into bits[3:2]
	value     uint32
	outSlot   *uint32
}

// DAP owns the selected-AP/SELECT cache and per-AP records described by
// spec.md §3's DAP and AP-record data model.
type DAP struct {
	tp  transport.Transport
	jd  *jtagDP

	apsel      uint8
	selectValid bool
	selectCached uint32

	aps [256]APRecord

	queue []command

	OverrunDetect bool

	logger *dbglog.Logger
}

// New constructs a DAP bound to the given transport. No transport traffic
// occurs until Run or DPInit is called.
func New(tp transport.Transport) *DAP {
	return &DAP{tp: tp, jd: newJTAGDP(tp), logger: dbglog.Discard}
}

// SetLogger installs a logger for DPInit's retry loop; the console wires a
// real one, tests leave it at dbglog.Discard.
func (d *DAP) SetLogger(l *dbglog.Logger) { d.logger = l }

func apBankAddr(regOff uint32) (bank uint8, a uint8) {
	return uint8(regOff >> 4), uint8((regOff >> 2) & 0x3)
}

// QueueDPRead enqueues a DP register read; the result lands in *out once Run
// executes the queue (spec.md §4.1).
func (d *DAP) QueueDPRead(regA uint8, out *uint32) {
	d.queue = append(d.queue, command{isDPRead: true, addr: regA, outSlot: out})
}

// QueueDPWrite enqueues a DP register write.
func (d *DAP) QueueDPWrite(regA uint8, value uint32) {
	d.queue = append(d.queue, command{isDPWrite: true, addr: regA, value: value})
}

// QueueAPRead enqueues an AP register read at the given full register
// offset (bank<<4 | A[3:2]<<2, e.g. apCSW/apTAR/apDRW).
func (d *DAP) QueueAPRead(apNum uint8, regOff uint32, out *uint32) {
	d.queueSelect(apNum, regOff)
	bank, a := apBankAddr(regOff)
	_ = bank
	d.queue = append(d.queue, command{isAPRead: true, apNum: apNum, addr: a, outSlot: out})
}

// QueueAPWrite enqueues an AP register write.
func (d *DAP) QueueAPWrite(apNum uint8, regOff uint32, value uint32) {
	d.queueSelect(apNum, regOff)
	bank, a := apBankAddr(regOff)
	_ = bank
	d.queue = append(d.queue, command{isAPWrite: true, apNum: apNum, addr: a, value: value})
}

// queueSelect re-issues DP.SELECT whenever the target apNum/bank differs
// from the cached value — spec.md §4.1: "Any observed AP switch re-issues
// DP.SELECT."
func (d *DAP) queueSelect(apNum uint8, regOff uint32) {
	bank, _ := apBankAddr(regOff)
	sel := uint32(apNum)<<24 | uint32(bank)<<4
	if d.selectValid && d.selectCached == sel {
		return
	}
	d.queue = append(d.queue, command{isDPWrite: true, addr: dpSELECT, value: sel})
	d.selectValid = true
	d.selectCached = sel
}

// Run flushes the queue in enqueue order, stopping and discarding the rest
// of the queue at the first transport error (spec.md §4.1, §5 ordering
// guarantee: "on the first transaction error the queue is aborted").
func (d *DAP) Run(ctx context.Context) error {
	defer func() { d.queue = d.queue[:0] }()

	// pending holds the out-slot of the most recently issued read whose
	// result has not yet come back through the JTAG-DP pipeline: each scan
	// returns the previous request's ack/data, so a read's result only
	// surfaces on the *following* transact call (or on flushRead at the end).
	var pending *uint32
	for _, c := range d.queue {
		var ack uint8
		var data uint32
		var err error
		switch {
		case c.isDPWrite:
			ack, data, err = d.jd.transact(ctx, false, c.addr, false, c.value)
		case c.isAPWrite:
			ack, data, err = d.jd.transact(ctx, true, c.addr, false, c.value)
		case c.isDPRead:
			ack, data, err = d.jd.transact(ctx, false, c.addr, true, 0)
		case c.isAPRead:
			ack, data, err = d.jd.transact(ctx, true, c.addr, true, 0)
		}
		if err != nil {
			return err
		}
		if err := d.checkAck(ack); err != nil {
			return err
		}
		if pending != nil {
			*pending = data
		}
		pending = c.outSlot
	}
	if len(d.queue) > 0 {
		ack, data, err := d.jd.flushRead(ctx)
		if err != nil {
			return err
		}
		if err := d.checkAck(ack); err != nil {
			return err
		}
		if pending != nil {
			*pending = data
		}
	}
	return nil
}

func (d *DAP) checkAck(ack uint8) error {
	switch ack {
	case ackOK:
		return nil
	case ackWAIT:
		return dbgerr.New("dap.run", dbgerr.KindTimeout, nil)
	default:
		return dbgerr.New("dap.run", dbgerr.KindDeviceError, nil)
	}
}

// DPInit performs the power-up handshake of spec.md §4.1: up to 10 attempts
// of {clear SSTICKYERR; request CDBGPWRUP+CSYSPWRUP; poll ACK with a 10-tick
// timeout; enable overrun-detect}.
func (d *DAP) DPInit(ctx context.Context) error {
	const attempts = 10
	for i := 0; i < attempts; i++ {
		d.logger.StickyCleared("dap.dp_init")
		d.QueueDPWrite(dpABORT, abortSTKERRCLR|abortWDERRCLR|abortORUNERRCLR)
		d.QueueDPWrite(dpCTRLSTAT, ctrlCDBGPWRUPREQ|ctrlCSYSPWRUPREQ)
		if err := d.Run(ctx); err != nil {
			d.logger.Retry("dap.dp_init", i+1, attempts)
			continue
		}

		ok, err := d.pollPowerAck(ctx)
		if err != nil {
			d.logger.Retry("dap.dp_init", i+1, attempts)
			continue
		}
		if ok {
			d.QueueDPWrite(dpCTRLSTAT, ctrlCDBGPWRUPREQ|ctrlCSYSPWRUPREQ|ctrlORUNDETECT)
			if err := d.Run(ctx); err != nil {
				d.logger.Retry("dap.dp_init", i+1, attempts)
				continue
			}
			d.OverrunDetect = true
			return nil
		}
		d.logger.Retry("dap.dp_init", i+1, attempts)
	}
	return dbgerr.New("dap.dp_init", dbgerr.KindTimeout, nil)
}

func (d *DAP) pollPowerAck(ctx context.Context) (bool, error) {
	const ticks = 10
	for t := 0; t < ticks; t++ {
		var ctrl uint32
		d.QueueDPRead(dpCTRLSTAT, &ctrl)
		if err := d.Run(ctx); err != nil {
			return false, err
		}
		if ctrl&(ctrlCDBGPWRUPACK|ctrlCSYSPWRUPACK) == (ctrlCDBGPWRUPACK | ctrlCSYSPWRUPACK) {
			return true, nil
		}
	}
	return false, nil
}

// recordFor lazily returns the APRecord for apNum, zero-valued on first use.
func (d *DAP) recordFor(apNum uint8) *APRecord {
	r := &d.aps[apNum]
	if r.APNum == 0 && apNum != 0 {
		r.APNum = apNum
	}
	return r
}

// MemAPReadU32 is the synchronous helper of spec.md §4.1: sets CSW/TAR
// (caching-aware), reads DRW, and calls Run.
func (d *DAP) MemAPReadU32(ctx context.Context, apNum uint8, addr uint32) (uint32, error) {
	r := d.recordFor(apNum)
	d.setCSWTAR(apNum, r, addr, cswSize32)
	var v uint32
	d.QueueAPRead(apNum, apDRW, &v)
	if err := d.Run(ctx); err != nil {
		return 0, dbgerr.WithAddr("mem_ap_read_u32", dbgerr.KindOf(err), uint64(addr), err)
	}
	return v, nil
}

// MemAPWriteU32 is the write counterpart of MemAPReadU32.
func (d *DAP) MemAPWriteU32(ctx context.Context, apNum uint8, addr uint32, v uint32) error {
	r := d.recordFor(apNum)
	d.setCSWTAR(apNum, r, addr, cswSize32)
	d.QueueAPWrite(apNum, apDRW, v)
	if err := d.Run(ctx); err != nil {
		return dbgerr.WithAddr("mem_ap_write_u32", dbgerr.KindOf(err), uint64(addr), err)
	}
	return nil
}

// setCSWTAR applies the caching rule of spec.md §4.1: "a queued TAR write is
// suppressed when the new TAR equals the cached TAR AND CSW auto-increment
// is off... A queued CSW write is suppressed when the new CSW equals the
// cached CSW."
func (d *DAP) setCSWTAR(apNum uint8, r *APRecord, addr uint32, size uint32) {
	csw := r.DefaultCSW | size
	if !r.cswValid || r.cswCached != csw {
		d.QueueAPWrite(apNum, apCSW, csw)
		r.cswCached = csw
		r.cswValid = true
	}

	autoInc := csw&0x30 != 0
	if autoInc || !r.tarValid || r.tarCached != addr {
		d.QueueAPWrite(apNum, apTAR, addr)
		r.tarCached = addr
		r.tarValid = true
	}
}

// InvalidateCache marks the TAR/CSW cache stale, used after any out-of-band
// write to an AP register (spec.md §3 DAP invariant).
func (d *DAP) InvalidateCache(apNum uint8) {
	r := d.recordFor(apNum)
	r.cswValid = false
	r.tarValid = false
}

// SelectAP implements the `dap apsel` command surface (spec.md §6).
func (d *DAP) SelectAP(apNum uint8) { d.apsel = apNum }

// SelectedAP returns the currently selected AP for commands that omit
// [ap_num] (spec.md §6).
func (d *DAP) SelectedAP() uint8 { return d.apsel }

// APIDR reads the AP's IDR register (`dap apid`).
func (d *DAP) APIDR(ctx context.Context, apNum uint8) (uint32, error) {
	var v uint32
	d.QueueAPRead(apNum, apIDR, &v)
	if err := d.Run(ctx); err != nil {
		return 0, err
	}
	return v, nil
}

// BaseAddr reads the MEM-AP BASE register (`dap baseaddr`).
func (d *DAP) BaseAddr(ctx context.Context, apNum uint8) (uint32, error) {
	var v uint32
	d.QueueAPRead(apNum, apBASE, &v)
	if err := d.Run(ctx); err != nil {
		return 0, err
	}
	return v, nil
}

// SetMemAccess sets the per-AP wait-cycle count (`dap memaccess [cycles]`).
func (d *DAP) SetMemAccess(apNum uint8, cycles int) {
	d.recordFor(apNum).MemAccessWaitCycles = cycles
}

// waitDeadline is the 1-second poll deadline used throughout the DAP and
// DPM layers (spec.md §5).
const waitDeadline = time.Second

// WaitDeadline exposes waitDeadline to other protocol-layer packages (dpm,
// armv8, mips64) so every poll loop in the host shares one deadline constant.
func WaitDeadline() time.Duration { return waitDeadline }
