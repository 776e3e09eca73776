package mips64

import (
	"context"
	"testing"
)

// TestSMPHaltRestartsWholeGroup covers spec.md §8 scenario S6 for the
// MIPS64 PrAcc path: four targets joined into one SMP group, halt issued on
// target 0 halts every peer, and resume issued on target 0 restarts all
// four (each clearing its own CONTROL.JTAGBRK, mirroring
// mips64_5kc_internal_restore's SMP loop).
func TestSMPHaltRestartsWholeGroup(t *testing.T) {
	ctx := context.Background()

	const n = 4
	fakes := make([]*fakeMIPS, n)
	tgts := make([]*Target, n)
	events := make([][]EventKind, n)
	for i := 0; i < n; i++ {
		i := i
		fakes[i] = newFakeMIPS()
		tgts[i] = NewTarget(fakes[i], Config{})
		tgts[i].SetEventFunc(func(k EventKind) {
			events[i] = append(events[i], k)
		})
		if err := tgts[i].Examine(ctx); err != nil {
			t.Fatalf("target %d examine: %v", i, err)
		}
		if tgts[i].State() != StateRunning {
			t.Fatalf("target %d initial state = %v, want running", i, tgts[i].State())
		}
	}

	peers := append([]*Target{}, tgts...)
	for i := 0; i < n; i++ {
		if err := tgts[i].JoinSMP(ctx, peers); err != nil {
			t.Fatalf("join_smp peer %d: %v", i, err)
		}
	}

	if err := tgts[0].Halt(ctx); err != nil {
		t.Fatalf("group halt: %v", err)
	}
	for i := 0; i < n; i++ {
		if tgts[i].State() != StateHalted {
			t.Fatalf("target %d state = %v, want halted", i, tgts[i].State())
		}
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
