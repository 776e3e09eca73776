// Package cti programs a Cross Trigger Interface channel/trigger matrix for
// single-core and SMP halt/restart coordination (spec.md §4.5).
package cti

import (
	"context"
	"time"

	"github.com/chipdebug/core/internal/dap"
	"github.com/chipdebug/core/internal/dbgerr"
)

// Channel assignment by convention (spec.md §4.5): Debug, Restart, and
// Cross-halt each get their own channel.
const (
	ChDebug     = 0
	ChRestart   = 1
	ChCrossHalt = 2
)

const (
	offCTICONTROL       = 0x000
	offCTIINTACK        = 0x010
	offCTIAPPSET        = 0x014
	offCTIAPPCLEAR      = 0x018
	offCTIAPPPULSE      = 0x01C
	offCTIINENBase      = 0x020
	offCTIOUTENBase     = 0x0A0
	offCTITRIGOUTSTATUS = 0x134
	offCTIGATE          = 0x140
	offCTILAR           = 0xFB0
)

const ctiUnlockKey = 0xC5ACCE55

// RegIO is the register-window access the CTI needs from the AP layer.
type RegIO interface {
	MemAPReadU32(ctx context.Context, apNum uint8, addr uint32) (uint32, error)
	MemAPWriteU32(ctx context.Context, apNum uint8, addr uint32, v uint32) error
}

// CTI is bound to one CTI component's register window.
type CTI struct {
	io    RegIO
	apNum uint8
	base  uint32
}

// New binds a CTI to the component at base on apNum.
func New(io RegIO, apNum uint8, base uint32) *CTI {
	return &CTI{io: io, apNum: apNum, base: base}
}

func (c *CTI) read(ctx context.Context, off uint32) (uint32, error) {
	return c.io.MemAPReadU32(ctx, c.apNum, c.base+off)
}

func (c *CTI) write(ctx context.Context, off uint32, v uint32) error {
	return c.io.MemAPWriteU32(ctx, c.apNum, c.base+off, v)
}

func (c *CTI) inenOffset(ch int) uint32  { return offCTIINENBase + uint32(ch)*4 }
func (c *CTI) outenOffset(ch int) uint32 { return offCTIOUTENBase + uint32(ch)*4 }

// Init unlocks the component, enables it, and clears the gate, per
// spec.md §4.5 "Init: unlock (write 0xC5ACCE55 to LAR), enable
// (CONTROL.GLBEN=1), clear GATE."
func (c *CTI) Init(ctx context.Context) error {
	if err := c.write(ctx, offCTILAR, ctiUnlockKey); err != nil {
		return dbgerr.New("cti.init", dbgerr.KindOf(err), err)
	}
	if err := c.write(ctx, offCTICONTROL, 1); err != nil {
		return dbgerr.New("cti.init", dbgerr.KindOf(err), err)
	}
	if err := c.write(ctx, offCTIGATE, 0); err != nil {
		return dbgerr.New("cti.init", dbgerr.KindOf(err), err)
	}
	return nil
}

func (c *CTI) setGateBit(ctx context.Context, ch int) error {
	gate, err := c.read(ctx, offCTIGATE)
	if err != nil {
		return err
	}
	return c.write(ctx, offCTIGATE, gate|1<<uint(ch))
}

func (c *CTI) clearGateBit(ctx context.Context, ch int) error {
	gate, err := c.read(ctx, offCTIGATE)
	if err != nil {
		return err
	}
	return c.write(ctx, offCTIGATE, gate&^(1<<uint(ch)))
}

func (c *CTI) setOutenBit(ctx context.Context, triggerEvent, ch int) error {
	off := c.outenOffset(triggerEvent)
	v, err := c.read(ctx, off)
	if err != nil {
		return err
	}
	return c.write(ctx, off, v|1<<uint(ch))
}

func (c *CTI) setInenBit(ctx context.Context, triggerEvent, ch int) error {
	off := c.inenOffset(triggerEvent)
	v, err := c.read(ctx, off)
	if err != nil {
		return err
	}
	return c.write(ctx, off, v|1<<uint(ch))
}

// Pulse issues CTIAPPPULSE on ch, generating one edge of its trigger event.
func (c *CTI) Pulse(ctx context.Context, ch int) error {
	return c.write(ctx, offCTIAPPPULSE, 1<<uint(ch))
}

// HaltSingle halts this PE alone: clear CTIGATE.ch0 (so it does not
// propagate to the CTM), set CTIOUTEN(Debug).ch0, then pulse ch0
// (spec.md §4.5 "Halt-single").
func (c *CTI) HaltSingle(ctx context.Context) error {
	if err := c.clearGateBit(ctx, ChDebug); err != nil {
		return dbgerr.New("cti.halt_single", dbgerr.KindOf(err), err)
	}
	if err := c.setOutenBit(ctx, ChDebug, ChDebug); err != nil {
		return dbgerr.New("cti.halt_single", dbgerr.KindOf(err), err)
	}
	if err := c.Pulse(ctx, ChDebug); err != nil {
		return dbgerr.New("cti.halt_single", dbgerr.KindOf(err), err)
	}
	return nil
}

// EnableSMPCrossHalt wires this PE so that a cross-halt event anywhere in
// the group asserts Debug on it: set CTIGATE.ch2, CTIINEN(cross-halt).ch2,
// CTIOUTEN(Debug).ch2 (spec.md §4.5 "Enable SMP cross-halt").
func (c *CTI) EnableSMPCrossHalt(ctx context.Context) error {
	if err := c.setGateBit(ctx, ChCrossHalt); err != nil {
		return dbgerr.New("cti.enable_smp_cross_halt", dbgerr.KindOf(err), err)
	}
	if err := c.setInenBit(ctx, ChCrossHalt, ChCrossHalt); err != nil {
		return dbgerr.New("cti.enable_smp_cross_halt", dbgerr.KindOf(err), err)
	}
	if err := c.setOutenBit(ctx, ChDebug, ChCrossHalt); err != nil {
		return dbgerr.New("cti.enable_smp_cross_halt", dbgerr.KindOf(err), err)
	}
	return nil
}

// AckDebugTrigger clears this PE's pending Debug trigger (CTIINTACK) and
// waits for CTITRIGOUTSTATUS.ch0 to clear, used both after a halt
// (acknowledge) and before a restart (spec.md §4.4/§4.5).
func (c *CTI) AckDebugTrigger(ctx context.Context) error {
	if err := c.write(ctx, offCTIINTACK, 1<<ChDebug); err != nil {
		return dbgerr.New("cti.ack_debug_trigger", dbgerr.KindOf(err), err)
	}
	deadline := time.Now().Add(dap.WaitDeadline())
	for {
		status, err := c.read(ctx, offCTITRIGOUTSTATUS)
		if err != nil {
			return dbgerr.New("cti.ack_debug_trigger", dbgerr.KindOf(err), err)
		}
		if status&(1<<ChDebug) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return dbgerr.New("cti.ack_debug_trigger", dbgerr.KindTimeout, nil)
		}
		select {
		case <-ctx.Done():
			return dbgerr.New("cti.ack_debug_trigger", dbgerr.KindTimeout, ctx.Err())
		default:
		}
	}
}

// PrepareRestartChannel sets CTIGATE.ch1 and CTIOUTEN(Restart).ch1 on this
// peer, without pulsing — the caller pulses once, on the last peer of an
// SMP group (spec.md §4.5 "Restart SMP").
func (c *CTI) PrepareRestartChannel(ctx context.Context) error {
	if err := c.setGateBit(ctx, ChRestart); err != nil {
		return dbgerr.New("cti.prepare_restart_channel", dbgerr.KindOf(err), err)
	}
	if err := c.setOutenBit(ctx, ChRestart, ChRestart); err != nil {
		return dbgerr.New("cti.prepare_restart_channel", dbgerr.KindOf(err), err)
	}
	return nil
}

// PulseRestart issues CTIAPPPULSE on the Restart channel; call this on
// exactly one peer of an SMP group once every peer's channel is prepared.
func (c *CTI) PulseRestart(ctx context.Context) error {
	return c.Pulse(ctx, ChRestart)
}

// Status is the register snapshot `aarch64 debug info cti` prints,
// grounded on print_target_debug_info_cti's field list.
type Status struct {
	Control        uint32
	Gate           uint32
	TrigOutStatus  uint32
	InEn, OutEn    [8]uint32
}

// ReadStatus reads every register print_target_debug_info_cti dumps.
func (c *CTI) ReadStatus(ctx context.Context) (Status, error) {
	var s Status
	var err error
	if s.Control, err = c.read(ctx, offCTICONTROL); err != nil {
		return Status{}, dbgerr.New("cti.read_status", dbgerr.KindOf(err), err)
	}
	if s.Gate, err = c.read(ctx, offCTIGATE); err != nil {
		return Status{}, dbgerr.New("cti.read_status", dbgerr.KindOf(err), err)
	}
	if s.TrigOutStatus, err = c.read(ctx, offCTITRIGOUTSTATUS); err != nil {
		return Status{}, dbgerr.New("cti.read_status", dbgerr.KindOf(err), err)
	}
	for i := 0; i < 8; i++ {
		if s.InEn[i], err = c.read(ctx, c.inenOffset(i)); err != nil {
			return Status{}, dbgerr.New("cti.read_status", dbgerr.KindOf(err), err)
		}
		if s.OutEn[i], err = c.read(ctx, c.outenOffset(i)); err != nil {
			return Status{}, dbgerr.New("cti.read_status", dbgerr.KindOf(err), err)
		}
	}
	return s, nil
}
