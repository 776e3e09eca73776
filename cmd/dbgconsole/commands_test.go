package main

import (
	"context"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/chipdebug/core/internal/armv8"
	"github.com/chipdebug/core/internal/cti"
	"github.com/chipdebug/core/internal/dap"
	"github.com/chipdebug/core/internal/dpm"
	"github.com/chipdebug/core/internal/target"
	"github.com/chipdebug/core/internal/targetmgr"
	"github.com/chipdebug/core/internal/transport"
)

// newTestConsole wires one armv8 target over a FakeTAP the same way main()
// does, pre-seeding EDSCR so Examine's first Poll classifies as a valid,
// halted state (ITE set, status = dbgrq-halted) instead of failing on the
// fake's zero-initialized register window.
func newTestConsole(t *testing.T) (*Console, context.Context) {
	t.Helper()
	ctx := context.Background()

	tap := transport.NewFakeTAP()
	const dpmBase, ctiBase = 0x80090000, 0x80020000
	const edscrITE = 1 << 24
	const statusDbgrqHalted = 0b010011
	edscr := make([]byte, 4)
	binary.LittleEndian.PutUint32(edscr, edscrITE|statusDbgrqHalted)
	tap.WriteMem(dpmBase+0x088, edscr)

	d := dap.New(tap)
	if err := d.DPInit(ctx); err != nil {
		t.Fatalf("dp_init: %v", err)
	}

	dp := dpm.New(d, 0, dpmBase)
	c := cti.New(d, 0, ctiBase)
	armTgt := armv8.New(d, dp, c, armv8.Config{}, 4, 2, nil)
	if err := armTgt.Examine(ctx); err != nil {
		t.Fatalf("examine: %v", err)
	}

	reg := targetmgr.New()
	reg.Register("arm0", target.NewARMv8(armTgt))
	return NewConsole(d, reg, "arm0"), ctx
}

func TestTargetsAndTargetSelect(t *testing.T) {
	c, ctx := newTestConsole(t)
	if got := c.Dispatch(ctx, "targets"); got != "arm0" {
		t.Fatalf("targets = %q, want %q", got, "arm0")
	}
	if got := c.Dispatch(ctx, "target ghost"); !strings.Contains(got, "target-invalid") {
		t.Fatalf("target ghost = %q, want a target-invalid error", got)
	}
	if got := c.Dispatch(ctx, "target arm0"); got != "current target: arm0" {
		t.Fatalf("target arm0 = %q", got)
	}
}

func TestDAPApselBaseaddrApid(t *testing.T) {
	c, ctx := newTestConsole(t)
	if got := c.Dispatch(ctx, "dap apsel 3"); got != "ap 3 selected" {
		t.Fatalf("dap apsel 3 = %q", got)
	}
	if got := c.Dispatch(ctx, "dap baseaddr 3"); !strings.Contains(got, "0xe00ff002") {
		t.Fatalf("dap baseaddr 3 = %q, want BASE 0xe00ff002 (FakeTAP's fixed value)", got)
	}
	if got := c.Dispatch(ctx, "dap apid 3"); !strings.Contains(got, "0x24770011") {
		t.Fatalf("dap apid 3 = %q, want IDR 0x24770011", got)
	}
}

func TestDAPMemaccess(t *testing.T) {
	c, ctx := newTestConsole(t)
	if got := c.Dispatch(ctx, "dap memaccess 8"); !strings.Contains(got, "8 cycles") {
		t.Fatalf("dap memaccess 8 = %q", got)
	}
}

func TestAArch64DebugInfoStatus(t *testing.T) {
	c, ctx := newTestConsole(t)
	got := c.Dispatch(ctx, "aarch64 debug info status")
	if !strings.Contains(got, "EDSCR") {
		t.Fatalf("debug info status = %q, want EDSCR dump", got)
	}
}

func TestAArch64DebugCacheIALLU(t *testing.T) {
	c, ctx := newTestConsole(t)
	if got := c.Dispatch(ctx, "aarch64 debug cache iallu"); got != "iallu done" {
		t.Fatalf("debug cache iallu = %q", got)
	}
}

func TestUnknownCommand(t *testing.T) {
	c, ctx := newTestConsole(t)
	if got := c.Dispatch(ctx, "bogus"); !strings.Contains(got, "unknown command") {
		t.Fatalf("bogus = %q", got)
	}
}
