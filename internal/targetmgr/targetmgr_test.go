package targetmgr

import (
	"context"
	"testing"

	"github.com/chipdebug/core/internal/target"
)

// fakeTarget is a minimal target.Target double that records the peers
// JoinSMP handed it, enough to exercise Registry without dragging in a real
// armv8/mips64 driver.
type fakeTarget struct {
	name  string
	peers []target.Target
}

func (f *fakeTarget) Arch() string                      { return "fake" }
func (f *fakeTarget) Examine(ctx context.Context) error  { return nil }
func (f *fakeTarget) Poll(ctx context.Context) error     { return nil }
func (f *fakeTarget) State() target.State                { return target.StateRunning }
func (f *fakeTarget) DebugReason() target.DebugReason    { return target.ReasonNone }
func (f *fakeTarget) Halt(ctx context.Context) error     { return nil }
func (f *fakeTarget) Resume(ctx context.Context, currentPC bool, address uint64, handleBreakpoints, debugExec bool) error {
	return nil
}
func (f *fakeTarget) Step(ctx context.Context, currentPC bool, address uint64, handleBreakpoints bool) error {
	return nil
}
func (f *fakeTarget) ReadMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error {
	return nil
}
func (f *fakeTarget) WriteMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error {
	return nil
}
func (f *fakeTarget) ReadPhysMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error {
	return nil
}
func (f *fakeTarget) WritePhysMemory(ctx context.Context, addr uint64, size, count int, buf []byte) error {
	return nil
}
func (f *fakeTarget) AddBreakpoint(ctx context.Context, addr uint64, length int, hardware bool) (*target.Breakpoint, error) {
	return nil, nil
}
func (f *fakeTarget) RemoveBreakpoint(ctx context.Context, bp *target.Breakpoint) error { return nil }
func (f *fakeTarget) AddWatchpoint(ctx context.Context, addr uint64, length int, rwKind string) (*target.Watchpoint, error) {
	return nil, nil
}
func (f *fakeTarget) RemoveWatchpoint(ctx context.Context, wp *target.Watchpoint) error { return nil }
func (f *fakeTarget) AssertReset(ctx context.Context, reqHalt bool) error               { return nil }
func (f *fakeTarget) DeassertReset(ctx context.Context, reqHalt bool) error             { return nil }
func (f *fakeTarget) SetHostedCtrlC()                                                  {}
func (f *fakeTarget) SetEventFunc(fn target.EventFunc)                                 {}
func (f *fakeTarget) JoinSMP(ctx context.Context, peers []target.Target) error {
	f.peers = peers
	return nil
}

func TestRegisterLookupNamesRemove(t *testing.T) {
	r := New()
	a := &fakeTarget{name: "a"}
	b := &fakeTarget{name: "b"}
	r.Register("a", a)
	r.Register("b", b)

	if got, err := r.Lookup("a"); err != nil || got != target.Target(a) {
		t.Fatalf("lookup a: got %v, %v", got, err)
	}
	if got := r.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("names = %v, want [a b] in insertion order", got)
	}

	r.Remove("a")
	if _, err := r.Lookup("a"); err == nil {
		t.Fatal("lookup a after remove: want error")
	}
	if got := r.Names(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("names after remove = %v, want [b]", got)
	}
}

func TestJoinSMPGroupMembersAndNext(t *testing.T) {
	ctx := context.Background()
	r := New()
	names := []string{"c0", "c1", "c2", "c3"}
	fakes := make(map[string]*fakeTarget, len(names))
	for _, n := range names {
		f := &fakeTarget{name: n}
		fakes[n] = f
		r.Register(n, f)
	}

	if err := r.JoinSMP(ctx, "cluster0", names); err != nil {
		t.Fatalf("join_smp: %v", err)
	}
	for _, n := range names {
		if len(fakes[n].peers) != 4 {
			t.Fatalf("target %s got %d peers, want 4", n, len(fakes[n].peers))
		}
	}

	members := r.GroupMembers("c1")
	if len(members) != 4 {
		t.Fatalf("GroupMembers(c1) = %v, want 4 members", members)
	}

	for i, n := range []string{"c0", "c1", "c2", "c3"} {
		next := r.NextInGroup(n)
		want := []string{"c1", "c2", "c3", "c0"}[i]
		if next != want {
			t.Fatalf("NextInGroup(%s) = %s, want %s", n, next, want)
		}
	}

	solo := &fakeTarget{name: "solo"}
	r.Register("solo", solo)
	if got := r.GroupMembers("solo"); len(got) != 1 || got[0] != "solo" {
		t.Fatalf("GroupMembers(solo) = %v, want [solo]", got)
	}
	if got := r.NextInGroup("solo"); got != "solo" {
		t.Fatalf("NextInGroup(solo) = %s, want solo", got)
	}
}

func TestJoinSMPUnknownNameFails(t *testing.T) {
	ctx := context.Background()
	r := New()
	r.Register("a", &fakeTarget{name: "a"})
	if err := r.JoinSMP(ctx, "g", []string{"a", "ghost"}); err == nil {
		t.Fatal("join_smp with unknown peer: want error")
	}
}
