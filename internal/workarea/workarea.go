// Package workarea implements the scoped working-area allocator SPEC_FULL.md
// calls for: a first-fit free-list over a configured target-RAM window,
// handed out via Alloc and returned via Handle.Free, mirroring the scoped
// acquire/release pairing the teacher uses for worker lifetimes elsewhere in
// its codebase.
package workarea

import (
	"sync"

	"github.com/chipdebug/core/internal/dbgerr"
)

type block struct {
	addr uint64
	size uint64
	free bool
}

// Pool manages one contiguous RAM window, split into blocks on demand.
type Pool struct {
	mu     sync.Mutex
	blocks []*block
}

// NewPool reserves [base, base+size) as the pool's backing window.
func NewPool(base, size uint64) *Pool {
	return &Pool{blocks: []*block{{addr: base, size: size, free: true}}}
}

// Handle is a live allocation; callers must Free it exactly once.
type Handle struct {
	pool *Pool
	b    *block
}

func (h *Handle) Address() uint64 { return h.b.addr }
func (h *Handle) Size() uint64    { return h.b.size }

// Alloc finds the first free block of at least size bytes and splits off
// the remainder as a new free block.
func (p *Pool) Alloc(size uint64) (*Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, b := range p.blocks {
		if !b.free || b.size < size {
			continue
		}
		if b.size > size {
			rest := &block{addr: b.addr + size, size: b.size - size, free: true}
			p.blocks = append(p.blocks, nil)
			copy(p.blocks[i+2:], p.blocks[i+1:])
			p.blocks[i+1] = rest
		}
		b.size = size
		b.free = false
		return &Handle{pool: p, b: b}, nil
	}
	return nil, dbgerr.New("workarea.alloc", dbgerr.KindResourceUnavailable, nil)
}

// Free releases h back to the pool and coalesces it with any adjacent free
// neighbors.
func (h *Handle) Free() {
	p := h.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	h.b.free = true
	p.coalesce()
}

func (p *Pool) coalesce() {
	for i := 0; i < len(p.blocks)-1; i++ {
		a, bk := p.blocks[i], p.blocks[i+1]
		if a.free && bk.free && a.addr+a.size == bk.addr {
			a.size += bk.size
			p.blocks = append(p.blocks[:i+1], p.blocks[i+2:]...)
			i--
		}
	}
}
