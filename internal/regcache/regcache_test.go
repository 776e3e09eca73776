package regcache

import (
	"context"
	"testing"
)

type fakeAccessor struct {
	target        map[string]uint64
	refreshCalls  int
	flushCalls    int
}

func (f *fakeAccessor) Refresh(ctx context.Context, r *Register) error {
	f.refreshCalls++
	r.Valid = true
	r.value = f.target[r.Name]
	return nil
}

func (f *fakeAccessor) Flush(ctx context.Context, r *Register) error {
	f.flushCalls++
	f.target[r.Name] = r.value
	return nil
}

func TestGetRefreshesOnlyWhenInvalid(t *testing.T) {
	acc := &fakeAccessor{target: map[string]uint64{"x0": 42}}
	c := New(acc)
	r := &Register{Name: "x0", BitWidth: 64, Group: "general"}
	c.Add(r)

	v, err := c.Get(context.Background(), r)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
	if _, err := c.Get(context.Background(), r); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if acc.refreshCalls != 1 {
		t.Fatalf("expected 1 refresh, got %d", acc.refreshCalls)
	}
}

func TestFlushDirtyWritesBackAndClears(t *testing.T) {
	acc := &fakeAccessor{target: map[string]uint64{"pc": 0}}
	c := New(acc)
	r := &Register{Name: "pc", BitWidth: 64}
	c.Add(r)

	c.Set(r, 0x8000_0000)
	if err := c.FlushDirty(context.Background()); err != nil {
		t.Fatalf("FlushDirty: %v", err)
	}
	if r.Dirty {
		t.Fatal("expected dirty cleared after flush")
	}
	if acc.target["pc"] != 0x8000_0000 {
		t.Fatalf("target not updated: %x", acc.target["pc"])
	}
}

func TestInvalidateAllClearsValidAndDirty(t *testing.T) {
	acc := &fakeAccessor{target: map[string]uint64{}}
	c := New(acc)
	r := &Register{Name: "x1"}
	c.Add(r)
	c.Set(r, 7)

	c.InvalidateAll()
	if r.Valid || r.Dirty {
		t.Fatal("expected register invalidated")
	}
}

func TestByGroupFiltersGeneral(t *testing.T) {
	acc := &fakeAccessor{target: map[string]uint64{}}
	c := New(acc)
	c.Add(&Register{Name: "x0", Group: "general"})
	c.Add(&Register{Name: "cpsr", Group: "system"})

	general := c.ByGroup("general")
	if len(general) != 1 || general[0].Name != "x0" {
		t.Fatalf("unexpected general group: %+v", general)
	}
	all := c.ByGroup("all")
	if len(all) != 2 {
		t.Fatalf("expected 2 registers in 'all', got %d", len(all))
	}
}
