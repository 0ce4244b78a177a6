package value

import (
	"errors"
	"fmt"
	"sync"
)

// NodeID identifies a document node. Index is recycled after retirement;
// Gen is bumped on every reuse so cache slots keyed by a retired identity
// can never be hit by its successor.
//
// The zero NodeID is "no node" and is never allocated.
type NodeID struct {
	Index uint32
	Gen   uint32
}

// IsZero reports whether id is the "no node" identity.
func (id NodeID) IsZero() bool {
	return id.Index == 0
}

// String renders id as "n<index>" or "n<index>.<gen>" once recycled.
func (id NodeID) String() string {
	if id.IsZero() {
		return "none"
	}
	if id.Gen == 0 {
		return fmt.Sprintf("n%d", id.Index)
	}
	return fmt.Sprintf("n%d.%d", id.Index, id.Gen)
}

// ErrNotLive is returned when retiring an identity that is not currently allocated.
var ErrNotLive = errors.New("node is not live")

// Allocator hands out NodeIDs and recycles retired indices with a bumped
// generation. Safe for concurrent use.
type Allocator struct {
	mu   sync.RWMutex
	gens []uint32 // gens[i] is the current generation of index i
	live []bool
	free []uint32
	n    int
}

// NewAllocator creates an empty allocator. Index 0 is reserved.
func NewAllocator() *Allocator {
	return &Allocator{
		gens: []uint32{0},
		live: []bool{false},
	}
}

// Allocate returns a fresh identity, reusing the most recently retired index first.
func (a *Allocator) Allocate() NodeID {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.n++
	if k := len(a.free); k > 0 {
		idx := a.free[k-1]
		a.free = a.free[:k-1]
		a.gens[idx]++
		a.live[idx] = true
		return NodeID{Index: idx, Gen: a.gens[idx]}
	}

	idx := uint32(len(a.gens))
	a.gens = append(a.gens, 0)
	a.live = append(a.live, true)
	return NodeID{Index: idx, Gen: 0}
}

// Retire marks id dead and makes its index available for reuse.
func (a *Allocator) Retire(id NodeID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.liveLocked(id) {
		return fmt.Errorf("retire %s: %w", id, ErrNotLive)
	}
	a.live[id.Index] = false
	a.free = append(a.free, id.Index)
	a.n--
	return nil
}

// Live reports whether id is the current, allocated generation of its index.
func (a *Allocator) Live(id NodeID) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.liveLocked(id)
}

func (a *Allocator) liveLocked(id NodeID) bool {
	if id.IsZero() || int(id.Index) >= len(a.gens) {
		return false
	}
	return a.live[id.Index] && a.gens[id.Index] == id.Gen
}

// Retired reports whether id names an index that has been allocated and
// then retired, or recycled under a newer generation. Identities the
// allocator never handed out are not retired.
func (a *Allocator) Retired(id NodeID) bool {
	if id.IsZero() {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if int(id.Index) >= len(a.gens) {
		return false
	}
	cur := a.gens[id.Index]
	return id.Gen < cur || (id.Gen == cur && !a.live[id.Index])
}

// Len returns the number of live identities.
func (a *Allocator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.n
}
