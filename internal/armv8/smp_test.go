package armv8

import (
	"context"
	"testing"

	"github.com/chipdebug/core/internal/cti"
	"github.com/chipdebug/core/internal/dpm"
)

// TestSMPHaltRestartsWholeGroup covers spec.md §8 scenario S6: four targets
// joined into one SMP group, halt issued on target 0 halts every peer, and
// resume issued on target 0 restarts all four.
func TestSMPHaltRestartsWholeGroup(t *testing.T) {
	ctx := context.Background()

	const n = 4
	fakes := make([]*fakeCore, n)
	tgts := make([]*Target, n)
	events := make([][]EventKind, n)
	for i := 0; i < n; i++ {
		i := i
		fakes[i] = newFakeCore()
		fakes[i].setStatus(0b000010) // running
		dp := dpm.New(fakes[i], 0, dpmBase)
		c := cti.New(fakes[i], 0, ctiBase)
		tgts[i] = New(nil, dp, c, Config{}, 4, 2, func(k EventKind) {
			events[i] = append(events[i], k)
		})
		if err := tgts[i].Examine(ctx); err != nil {
			t.Fatalf("target %d examine: %v", i, err)
		}
	}

	peers := append([]*Target{}, tgts...)
	if err := tgts[0].JoinSMP(ctx, peers); err != nil {
		t.Fatalf("join_smp: %v", err)
	}
	for i := 1; i < n; i++ {
		if err := tgts[i].JoinSMP(ctx, peers); err != nil {
			t.Fatalf("join_smp peer %d: %v", i, err)
		}
	}

	for i := 0; i < n; i++ {
		fakes[i].setStatus(0b010011) // halted, dbgrq
	}
	if err := tgts[0].Halt(ctx); err != nil {
		t.Fatalf("group halt: %v", err)
	}
	for i := 0; i < n; i++ {
		if tgts[i].State() != StateHalted {
			t.Fatalf("target %d state = %v, want halted", i, tgts[i].State())
		}
		if tgts[i].DebugReason() != ReasonDbgrq {
			t.Fatalf("target %d reason = %v, want dbgrq", i, tgts[i].DebugReason())
		}
	}

	for i := 0; i < n; i++ {
		fakes[i].regs[offEDPRSR] = edprsrSDR
		fakes[i].setStatus(0b000010) // running
	}
	if err := tgts[0].Resume(ctx, true, 0, false, false); err != nil {
		t.Fatalf("group resume: %v", err)
	}
	for i := 0; i < n; i++ {
		if tgts[i].State() != StateRunning {
			t.Fatalf("target %d state after resume = %v, want running", i, tgts[i].State())
		}
		last := events[i][len(events[i])-1]
		if last != EventResumed {
			t.Fatalf("target %d last event = %v, want EventResumed", i, last)
		}
	}
}
