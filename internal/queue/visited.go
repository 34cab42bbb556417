package queue

import (
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// Visited tracks which node ids a single traversal has already seen.
// Only the bits that were set are cleared on Reset.
type Visited struct {
	bits  *bitset.BitSet
	dirty []uint32
}

// NewVisited returns a visited set sized for capacity nodes.
func NewVisited(capacity int) *Visited {
	return &Visited{
		bits:  bitset.New(uint(capacity)),
		dirty: make([]uint32, 0, 128),
	}
}

// Visit marks id as visited and reports whether it was unseen before.
func (v *Visited) Visit(id uint32) bool {
	if v.bits.Test(uint(id)) {
		return false
	}
	v.bits.Set(uint(id))
	v.dirty = append(v.dirty, id)
	return true
}

// Seen reports whether id has been visited.
func (v *Visited) Seen(id uint32) bool {
	return v.bits.Test(uint(id))
}

// Reset clears every id visited since the last reset.
func (v *Visited) Reset() {
	if len(v.dirty) > int(v.bits.Len()/64) {
		v.bits.ClearAll()
	} else {
		for _, id := range v.dirty {
			v.bits.Clear(uint(id))
		}
	}
	v.dirty = v.dirty[:0]
}

// VisitedPool hands out reusable visited sets to concurrent traversals.
type VisitedPool struct {
	pool sync.Pool
}

// NewVisitedPool creates a pool whose sets are pre-sized for capacity nodes.
func NewVisitedPool(capacity int) *VisitedPool {
	p := &VisitedPool{}
	p.pool.New = func() any {
		return NewVisited(capacity)
	}
	return p
}

// Get returns a cleared visited set.
func (p *VisitedPool) Get() *Visited {
	return p.pool.Get().(*Visited)
}

// Put resets v and returns it to the pool.
func (p *VisitedPool) Put(v *Visited) {
	v.Reset()
	p.pool.Put(v)
}
