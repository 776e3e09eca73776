// Package regcache implements the target-agnostic register cache of
// spec.md §3 "Register cache": an ordered list of registers shared by the
// armv8 and mips64 drivers, each with a value, a valid flag, and a dirty
// flag, refreshed and flushed through a driver-supplied Accessor.
package regcache

import (
	"context"

	"github.com/chipdebug/core/internal/dbgerr"
)

// Accessor performs the actual target read/write behind a Register; armv8
// implements it with DPM opcodes, mips64 with PrAcc register sequences.
type Accessor interface {
	Refresh(ctx context.Context, r *Register) error
	Flush(ctx context.Context, r *Register) error
}

// Register is one entry in the cache (spec.md §3): {id, name, bit-width,
// group, feature, value, valid, dirty}.
type Register struct {
	ID       int
	Name     string
	BitWidth int // 32 or 64
	Group    string
	Feature  string

	value uint64
	Valid bool
	Dirty bool
}

// Cache is the per-target ordered register list plus its accessor.
type Cache struct {
	accessor Accessor
	regs     []*Register
	byName   map[string]*Register
}

// New creates an empty cache bound to accessor.
func New(accessor Accessor) *Cache {
	return &Cache{accessor: accessor, byName: make(map[string]*Register)}
}

// Add appends r to the cache in definition order, the order
// get_gdb_reg_list reports registers in.
func (c *Cache) Add(r *Register) {
	c.regs = append(c.regs, r)
	c.byName[r.Name] = r
}

// ByName looks up a register by name; nil if absent.
func (c *Cache) ByName(name string) *Register {
	return c.byName[name]
}

// All returns every register in definition order.
func (c *Cache) All() []*Register { return c.regs }

// ByGroup implements get_gdb_reg_list(class={general,all}): "all" is
// modeled as the empty group filter.
func (c *Cache) ByGroup(group string) []*Register {
	if group == "" || group == "all" {
		return c.regs
	}
	var out []*Register
	for _, r := range c.regs {
		if r.Group == group {
			out = append(out, r)
		}
	}
	return out
}

// Get returns r's value, refreshing it first if stale (invariant (a):
// valid==false implies the cached value is stale; a get must refresh).
func (c *Cache) Get(ctx context.Context, r *Register) (uint64, error) {
	if !r.Valid {
		if err := c.accessor.Refresh(ctx, r); err != nil {
			return 0, dbgerr.WithReg("regcache.get", dbgerr.KindOf(err), r.Name, err)
		}
	}
	return r.value, nil
}

// Set stores v into r and marks it dirty and valid, without touching the
// target; a later FlushDirty or resume writes it back (invariant (c):
// dirty implies valid).
func (c *Cache) Set(r *Register, v uint64) {
	r.value = v
	r.Valid = true
	r.Dirty = true
}

// SetClean stores v as having come from the target itself (a Refresh
// implementation's own writer), marking it valid but not dirty.
func (c *Cache) SetClean(r *Register, v uint64) {
	r.value = v
	r.Valid = true
	r.Dirty = false
}

// FlushDirty writes back every dirty register (invariant (b): dirty==true
// implies the cached value differs from the target; a resume/step must
// flush dirty registers first), stopping at the first error.
func (c *Cache) FlushDirty(ctx context.Context) error {
	for _, r := range c.regs {
		if !r.Dirty {
			continue
		}
		if err := c.accessor.Flush(ctx, r); err != nil {
			return dbgerr.WithReg("regcache.flush_dirty", dbgerr.KindOf(err), r.Name, err)
		}
		r.Dirty = false
	}
	return nil
}

// InvalidateAll marks every register stale, used on reset, resume
// completion, and after any failed DPM session (spec.md §5).
func (c *Cache) InvalidateAll() {
	for _, r := range c.regs {
		r.Valid = false
		r.Dirty = false
	}
}

// MarkDirty forces r dirty and valid without assigning a new value; used
// when the driver knows a register must be restored on resume regardless
// of whether the cached value changed (PC and X30/LR are always treated as
// dirty per spec.md §4.4 "Resume").
func (c *Cache) MarkDirty(r *Register) {
	r.Valid = true
	r.Dirty = true
}
