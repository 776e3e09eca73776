// Command dbgconsole is the operator-facing command-line front end of
// spec.md §6: a line-oriented shell over one DAP session and the targets
// registered against it, replacing the teacher's embedded Jim/Tcl command
// table (aarch64_handle_*_command) with a small Go dispatcher.
//
// No real probe backend exists in this module (internal/transport documents
// that a real build wires FTDI/CMSIS-DAP/J-Link in; this module only ever
// consumes the Transport interface), so dbgconsole drives the in-memory
// FakeTAP the same way the test suites do, giving an operator something to
// poke at interactively without any hardware attached.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/chipdebug/core/internal/armv8"
	"github.com/chipdebug/core/internal/cti"
	"github.com/chipdebug/core/internal/dap"
	"github.com/chipdebug/core/internal/dbglog"
	"github.com/chipdebug/core/internal/dpm"
	"github.com/chipdebug/core/internal/mips64"
	"github.com/chipdebug/core/internal/target"
	"github.com/chipdebug/core/internal/targetmgr"
	"github.com/chipdebug/core/internal/transport"
)

const (
	dpmBase = 0x80090000
	ctiBase = 0x80020000
)

func main() {
	logger := dbglog.New(os.Stderr, "dbgconsole: ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	tap := transport.NewFakeTAP()
	d := dap.New(tap)
	d.SetLogger(logger)
	if err := d.DPInit(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "dap_init: %v\n", err)
		os.Exit(1)
	}

	reg := targetmgr.New()

	dp := dpm.New(d, 0, dpmBase)
	dp.SetLogger(logger)
	c := cti.New(d, 0, ctiBase)
	armTgt := armv8.New(d, dp, c, armv8.Config{MemoryAPAvailable: true}, 4, 2, func(k armv8.EventKind) {
		logger.Printf("arm0: event %d", k)
	})
	armTgt.SetLogger(logger)

	mipsTgt := mips64.NewTarget(transport.NewFakeTAP(), mips64.Config{})
	mipsTgt.SetEventFunc(func(k mips64.EventKind) {
		logger.Printf("mips0: event %d", k)
	})

	// arm0 and mips0 sit behind independent transports (separate FakeTAP
	// instances), so their startup examination runs concurrently instead of
	// stalling one on the other.
	var eg errgroup.Group
	eg.Go(func() error { return armTgt.Examine(ctx) })
	eg.Go(func() error { return mipsTgt.Examine(ctx) })
	if err := eg.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "examine: %v\n", err)
	}

	reg.Register("arm0", target.NewARMv8(armTgt))
	reg.Register("mips0", target.NewMIPS64(mipsTgt))

	console := NewConsole(d, reg, "arm0")
	fmt.Println("dbgconsole ready. type `help` for commands, Ctrl-C to exit.")
	fmt.Print("> ")

	host := NewTerminalHost(func(line string) {
		out := console.Dispatch(ctx, line)
		if out != "" {
			fmt.Print(out)
			fmt.Print("\r\n")
		}
		fmt.Print("> ")
	})
	host.Start()
	<-ctx.Done()
	host.Stop()
	fmt.Println("\ndbgconsole exiting.")
}
