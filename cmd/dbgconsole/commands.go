package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chipdebug/core/internal/armv8"
	"github.com/chipdebug/core/internal/dap"
	"github.com/chipdebug/core/internal/dbgerr"
	"github.com/chipdebug/core/internal/romtable"
	"github.com/chipdebug/core/internal/script"
	"github.com/chipdebug/core/internal/targetmgr"
)

// romWalk runs romtable.Walk over the MEM-AP at base and renders each
// discovered debug component as one line, for `dap info`.
func romWalk(ctx context.Context, d *dap.DAP, ap uint8, base uint32, onLine func(string)) error {
	return romtable.Walk(ctx, d, ap, base, func(e romtable.Entry) {
		onLine(fmt.Sprintf("component @0x%08x pid=0x%010x cid=0x%08x devtype=0x%02x devid=0x%08x",
			e.Base, e.PID, e.CID, e.DevType, e.DevID))
	})
}

// Console dispatches spec.md §6's operator command surface against a DAP
// session and the registered targets, the console-facing counterpart of the
// teacher's Jim/Tcl command handlers (aarch64_handle_*_command,
// handle_dap_info_command) — one Go method per leaf command instead of a
// registered Tcl proc table.
type Console struct {
	d    *dap.DAP
	reg  *targetmgr.Registry
	cur  string // name of the currently selected target in reg
}

// NewConsole binds a console to one DAP session and the target registry it
// drives.
func NewConsole(d *dap.DAP, reg *targetmgr.Registry, cur string) *Console {
	return &Console{d: d, reg: reg, cur: cur}
}

// Dispatch parses and executes one command line, returning the text to
// print (without a trailing newline); an error the command itself raised
// is returned as its message text. A blank line or unrecognized command both just print a message,
// mirroring the teacher's "unknown command" Tcl error text.
func (c *Console) Dispatch(ctx context.Context, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "dap":
		return c.dispatchDAP(ctx, fields[1:])
	case "aarch64":
		return c.dispatchAArch64(ctx, fields[1:])
	case "targets":
		return strings.Join(c.reg.Names(), " ")
	case "target":
		if len(fields) < 2 {
			return "usage: target <name>"
		}
		if _, err := c.reg.Lookup(fields[1]); err != nil {
			return err.Error()
		}
		c.cur = fields[1]
		return "current target: " + c.cur
	case "script":
		if len(fields) < 2 {
			return "usage: script <filename>"
		}
		return c.runScript(ctx, fields[1])
	case "help":
		return consoleHelp
	default:
		return fmt.Sprintf("unknown command: %s", fields[0])
	}
}

// runScript implements the `script <filename>` command: a gopher-lua
// interpreter bound to this console's registry, replacing the teacher's
// flat line-replay cmdScript with a real expression language while keeping
// its bounded-recursion discipline (script.maxDepth).
func (c *Console) runScript(ctx context.Context, path string) string {
	eng := script.New(ctx, c.reg)
	defer eng.Close()
	if err := eng.RunFile(path); err != nil {
		return err.Error()
	}
	return "script finished: " + path
}

const consoleHelp = `dap info|apsel|baseaddr|apid|memaccess [arg]
aarch64 cache_info|dbginit|smp_on|smp_off
aarch64 debug info status|cti|bpwp [smp]
aarch64 debug cache iallu|ialluis|flushall
script <filename>
targets
target <name>`

func (c *Console) currentARMv8(ctx context.Context) (*armv8.Target, error) {
	t, err := c.reg.Lookup(c.cur)
	if err != nil {
		return nil, err
	}
	a, ok := t.(interface{ Unwrap() *armv8.Target })
	if !ok {
		return nil, dbgerr.New("dbgconsole.current_armv8", dbgerr.KindInvalidParameter, nil)
	}
	return a.Unwrap(), nil
}

func parseAPNum(args []string, def uint8) uint8 {
	if len(args) == 0 {
		return def
	}
	n, err := strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return def
	}
	return uint8(n)
}

// dispatchDAP implements `dap info/apsel/baseaddr/apid/memaccess`, the ADIv5
// layer commands of spec.md §6 — grounded on handle_dap_info_command and
// the sibling apsel/baseaddr/apid/memaccess handlers in dap.c, which all
// take an optional AP number and default to the currently selected one.
func (c *Console) dispatchDAP(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "usage: dap info|apsel|baseaddr|apid|memaccess [arg]"
	}
	switch args[0] {
	case "apsel":
		ap := parseAPNum(args[1:], c.d.SelectedAP())
		c.d.SelectAP(ap)
		return fmt.Sprintf("ap %d selected", ap)
	case "baseaddr":
		ap := parseAPNum(args[1:], c.d.SelectedAP())
		base, err := c.d.BaseAddr(ctx, ap)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("ap %d base 0x%08x", ap, base)
	case "apid":
		ap := parseAPNum(args[1:], c.d.SelectedAP())
		id, err := c.d.APIDR(ctx, ap)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("ap %d idr 0x%08x", ap, id)
	case "memaccess":
		if len(args) < 2 {
			return "usage: dap memaccess <cycles>"
		}
		cycles, err := strconv.Atoi(args[1])
		if err != nil {
			return "invalid cycle count: " + args[1]
		}
		c.d.SetMemAccess(c.d.SelectedAP(), cycles)
		return fmt.Sprintf("memaccess wait set to %d cycles on ap %d", cycles, c.d.SelectedAP())
	case "info":
		return c.dapInfo(ctx, parseAPNum(args[1:], c.d.SelectedAP()))
	default:
		return "unknown dap subcommand: " + args[0]
	}
}

func (c *Console) dapInfo(ctx context.Context, ap uint8) string {
	base, err := c.d.BaseAddr(ctx, ap)
	if err != nil {
		return err.Error()
	}
	var lines []string
	err = romWalk(ctx, c.d, ap, base, func(e string) { lines = append(lines, e) })
	if err != nil {
		return err.Error()
	}
	if len(lines) == 0 {
		return fmt.Sprintf("ap %d base 0x%08x: no debug components found", ap, base)
	}
	return strings.Join(lines, "\n")
}

// dispatchAArch64 implements `aarch64 cache_info/dbginit/smp_on/smp_off` and
// the `debug info`/`debug cache` subtrees of spec.md §6, grounded on
// aarch64_handle_cache_info_command, aarch64_handle_dbginit_command,
// aarch64_handle_smp_{on,off}_command, and the three
// aarch64_handle_debug_info_{status,cti,bpwp}_command handlers, each of
// which accepts an optional `smp` argument to iterate the whole group
// instead of just the current target.
func (c *Console) dispatchAArch64(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "usage: aarch64 cache_info|dbginit|smp_on|smp_off|debug"
	}
	switch args[0] {
	case "cache_info":
		return c.cacheInfo(ctx)
	case "dbginit":
		return c.dbginit(ctx)
	case "smp_on":
		return c.smpToggle(ctx, true)
	case "smp_off":
		return c.smpToggle(ctx, false)
	case "debug":
		return c.dispatchDebug(ctx, args[1:])
	default:
		return "unknown aarch64 subcommand: " + args[0]
	}
}

func (c *Console) cacheInfo(ctx context.Context) string {
	t, err := c.currentARMv8(ctx)
	if err != nil {
		return err.Error()
	}
	if err := t.IdentifyCache(ctx); err != nil {
		return err.Error()
	}
	cd := t.Cache
	var b strings.Builder
	fmt.Fprintf(&b, "CLIDR 0x%08x LoC %d LoUU %d LoUIS %d\n", cd.CLIDR, cd.LoC, cd.LoUU, cd.LoUIS)
	for i := 0; i < int(cd.LoC) && i < 7; i++ {
		lv := cd.Levels[i]
		if lv.Ctype == 0 {
			continue
		}
		fmt.Fprintf(&b, "L%d: ctype=%d line=%d ways=%d sets=%d\n", i+1, lv.Ctype, lv.LineSize, lv.Ways, lv.Sets)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Console) dbginit(ctx context.Context) string {
	t, err := c.currentARMv8(ctx)
	if err != nil {
		return err.Error()
	}
	if err := t.InitDebugAccess(ctx); err != nil {
		return err.Error()
	}
	return "debug access unlocked"
}

// smpToggle with on joins every registered target into one SMP group by
// driving targetmgr.Registry.JoinSMP — the registry-based replacement for
// the teacher's walk over target->head toggling target->smp. With on false
// it only prints a message; an existing group is left as it is.
func (c *Console) smpToggle(ctx context.Context, on bool) string {
	if !on {
		return "smp_off: use `target <name>` to operate on cores independently"
	}
	names := c.reg.Names()
	if err := c.reg.JoinSMP(ctx, "smp0", names); err != nil {
		return err.Error()
	}
	return fmt.Sprintf("smp group formed: %s", strings.Join(names, ", "))
}

func (c *Console) dispatchDebug(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "usage: aarch64 debug info|cache ..."
	}
	switch args[0] {
	case "info":
		return c.debugInfo(ctx, args[1:])
	case "cache":
		return c.debugCache(ctx, args[1:])
	default:
		return "unknown debug subcommand: " + args[0]
	}
}

func (c *Console) debugInfo(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "usage: aarch64 debug info status|cti|bpwp [smp]"
	}
	smp := len(args) > 1 && args[1] == "smp"
	names := []string{c.cur}
	if smp {
		names = c.reg.GroupMembers(c.cur)
	}
	var out []string
	for _, name := range names {
		t, err := c.reg.Lookup(name)
		if err != nil {
			out = append(out, err.Error())
			continue
		}
		a, ok := t.(interface{ Unwrap() *armv8.Target })
		if !ok {
			out = append(out, name+": not an aarch64 target")
			continue
		}
		out = append(out, name+": "+c.debugInfoOne(ctx, args[0], a.Unwrap()))
	}
	return strings.Join(out, "\n")
}

func (c *Console) debugInfoOne(ctx context.Context, kind string, t *armv8.Target) string {
	switch kind {
	case "status":
		s, err := t.ReadDebugStatus(ctx)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("EDSCR 0x%08x EDESR 0x%08x EDPRSR 0x%08x", s.EDSCR, s.EDESR, s.EDPRSR)
	case "cti":
		s, err := t.CTIStatus(ctx)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("CONTROL 0x%08x GATE 0x%08x TRIGOUTSTATUS 0x%08x INEN %v OUTEN %v",
			s.Control, s.Gate, s.TrigOutStatus, s.InEn, s.OutEn)
	case "bpwp":
		slots, err := t.BPWPInfo(ctx)
		if err != nil {
			return err.Error()
		}
		var b strings.Builder
		for _, s := range slots {
			kind := "bp"
			if s.Watchpoint {
				kind = "wp"
			}
			fmt.Fprintf(&b, "%s[%d] used=%v ctrl=0x%08x addr=0x%016x\n", kind, s.Index, s.Used, s.Ctrl, s.Address)
		}
		return strings.TrimRight(b.String(), "\n")
	default:
		return "unknown debug info kind: " + kind
	}
}

func (c *Console) debugCache(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "usage: aarch64 debug cache iallu|ialluis|flushall"
	}
	t, err := c.currentARMv8(ctx)
	if err != nil {
		return err.Error()
	}
	var opErr error
	switch args[0] {
	case "iallu":
		opErr = t.FlushICacheAllLocal(ctx)
	case "ialluis":
		opErr = t.FlushICacheAllIS(ctx)
	case "flushall":
		opErr = t.FlushDCacheAll(ctx)
	default:
		return "unknown debug cache op: " + args[0]
	}
	if opErr != nil {
		return opErr.Error()
	}
	return args[0] + " done"
}
