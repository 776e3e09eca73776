package dap

import (
	"context"
	"encoding/binary"

	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/transport"
)

// jtagDP drives DPACC/APACC register access over a raw JTAG transport. The
// ADIv5 JTAG-DP shift register is pipelined: the 35-bit DR scan that issues
// request N simultaneously returns the ACK and (for a read) the data of
// request N-1, so a read's result is not known until the *following* scan.
// That's exactly the "queued read, out-slot filled on flush" shape spec.md
// §4.1 describes — this type is the thing underneath it.
type jtagDP struct {
	tp         transport.Transport
	lastWasRead bool
	pendingSlot *uint32
	scanned     bool
}

func newJTAGDP(tp transport.Transport) *jtagDP {
	return &jtagDP{tp: tp}
}

// transact issues one 35-bit DPACC/APACC request and returns the ACK/data
// belonging to the *previous* request (or ackOK/0 if this is the first).
func (j *jtagDP) transact(ctx context.Context, isAP bool, a uint8, rnw bool, data uint32) (ack uint8, prevData uint32, err error) {
	ir := irDPACC
	if isAP {
		ir = irAPACC
	}
	irBuf := []byte{byte(ir)}
	if err := j.tp.Scan(ctx, transport.ScanIR, 4, irBuf, nil); err != nil {
		return 0, 0, dbgerr.New("jtagdp.transact", dbgerr.KindTransportFailure, err)
	}

	req := make([]byte, 5)
	binary.LittleEndian.PutUint32(req, data)
	req[4] = dpAddr(a, rnw)

	resp := make([]byte, 5)
	if err := j.tp.Scan(ctx, transport.ScanDR, 35, req, resp); err != nil {
		return 0, 0, dbgerr.New("jtagdp.transact", dbgerr.KindTransportFailure, err)
	}

	if !j.scanned {
		j.scanned = true
		return ackOK, 0, nil
	}
	ack = resp[4] & 0x7
	prevData = binary.LittleEndian.Uint32(resp[:4])
	return ack, prevData, nil
}

// flushRead issues a dummy RDBUFF read to pull the final pending read's
// result out of the pipeline. Call once at the end of a Run that queued any
// reads.
func (j *jtagDP) flushRead(ctx context.Context) (ack uint8, data uint32, err error) {
	return j.transact(ctx, false, dpRDBUFF, true, 0)
}
