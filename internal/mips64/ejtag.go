package mips64

import (
	"context"
	"encoding/binary"

	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/transport"
)

// ejtag drives the EJTAG TAP's ADDRESS/DATA/CONTROL registers over a raw
// JTAG transport. Unlike jtagDP's pipelined DPACC/APACC shift register,
// each EJTAG DR scan directly reads and/or writes the addressed register in
// the same scan — no result-on-next-scan pipelining.
type ejtag struct {
	tp transport.Transport
}

func newEJTAG(tp transport.Transport) *ejtag {
	return &ejtag{tp: tp}
}

func (e *ejtag) setInstr(ctx context.Context, ir uint8) error {
	buf := []byte{ir}
	if err := e.tp.Scan(ctx, transport.ScanIR, 5, buf, nil); err != nil {
		return dbgerr.New("mips64.ejtag_set_instr", dbgerr.KindTransportFailure, err)
	}
	return nil
}

func (e *ejtag) scan32(ctx context.Context, ir uint8, tdi uint32) (uint32, error) {
	if err := e.setInstr(ctx, ir); err != nil {
		return 0, err
	}
	in := make([]byte, 4)
	binary.LittleEndian.PutUint32(in, tdi)
	out := make([]byte, 4)
	if err := e.tp.Scan(ctx, transport.ScanDR, 32, in, out); err != nil {
		return 0, dbgerr.New("mips64.ejtag_scan32", dbgerr.KindTransportFailure, err)
	}
	return binary.LittleEndian.Uint32(out), nil
}

func (e *ejtag) scan64(ctx context.Context, ir uint8, tdi uint64) (uint64, error) {
	if err := e.setInstr(ctx, ir); err != nil {
		return 0, err
	}
	in := make([]byte, 8)
	binary.LittleEndian.PutUint64(in, tdi)
	out := make([]byte, 8)
	if err := e.tp.Scan(ctx, transport.ScanDR, 64, in, out); err != nil {
		return 0, dbgerr.New("mips64.ejtag_scan64", dbgerr.KindTransportFailure, err)
	}
	return binary.LittleEndian.Uint64(out), nil
}

func (e *ejtag) readControl(ctx context.Context) (uint32, error) {
	return e.scan32(ctx, irControl, 0)
}

func (e *ejtag) writeControl(ctx context.Context, v uint32) error {
	_, err := e.scan32(ctx, irControl, v)
	return err
}

func (e *ejtag) readAddress(ctx context.Context) (uint32, error) {
	return e.scan32(ctx, irAddress, 0)
}

func (e *ejtag) readData64(ctx context.Context) (uint64, error) {
	return e.scan64(ctx, irData, 0)
}

func (e *ejtag) writeData64(ctx context.Context, v uint64) error {
	_, err := e.scan64(ctx, irData, v)
	return err
}

// idleClocks adds n tck idle cycles the way wait_for_pracc_rw's caller does
// after clearing PRACC, expressed as an adapter sleep converted from the
// configured JTAG clock rather than a raw clock-pulse primitive (this
// transport has no clock-only primitive; a short sleep is the closest
// equivalent a real probe driver exposes).
func (e *ejtag) idleClocks(ctx context.Context, n int) error {
	khz := e.tp.GetSpeedKHz()
	if khz <= 0 {
		khz = 1000
	}
	us := (n * 1000) / khz
	if us < 1 {
		us = 1
	}
	e.tp.AddSleep(us)
	return e.tp.ExecuteQueue(ctx)
}
