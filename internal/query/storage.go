package query

import (
	"sync/atomic"

	"github.com/roach88/layoutdb/internal/value"
)

// InputRecord is the last externally written value of an input slot.
type InputRecord struct {
	Value value.Value
	Stamp Revision
}

// inputStorage holds every input slot ever written. Records are created on
// first write and updated in place under their shard lock afterwards.
type inputStorage struct {
	slots *shardedMap[Slot, *InputRecord]
}

func newInputStorage(shards int) inputStorage {
	return inputStorage{slots: newShardedMap[Slot, *InputRecord](shards, slotHash)}
}

func (s inputStorage) get(slot Slot) (InputRecord, bool) {
	var rec InputRecord
	ok := s.slots.view(slot, func(r *InputRecord) { rec = *r })
	return rec, ok
}

func (s inputStorage) remove(slot Slot) {
	s.slots.remove(slot)
}

func (s inputStorage) set(slot Slot, v value.Value, stamp Revision) {
	s.slots.update(slot, func() *InputRecord { return &InputRecord{} }, func(r *InputRecord) {
		r.Value = v
		r.Stamp = stamp
	})
}

// CacheEntry is a memoized result. Entries are immutable except for the
// revision at which they were last verified.
type CacheEntry struct {
	Value   value.Value
	Pattern *Pattern
	Stamp   Revision
	// Provisional entries were computed while a cycle was broken. They are
	// kept for diagnostics and recomputed on every read.
	Provisional bool

	verifiedAt atomic.Int64
}

func newCacheEntry(v value.Value, p *Pattern, stamp, now Revision, provisional bool) *CacheEntry {
	e := &CacheEntry{Value: v, Pattern: p, Stamp: stamp, Provisional: provisional}
	if !provisional {
		e.verifiedAt.Store(int64(now))
	}
	return e
}

// memoSlot publishes the current entry of one (kind, key) slot. Racing
// computes each store a complete entry; readers never see a partial one.
type memoSlot struct {
	entry atomic.Pointer[CacheEntry]
}

type memoStorage struct {
	slots *shardedMap[Slot, *memoSlot]
	live  atomic.Int64
}

func newMemoStorage(shards int) *memoStorage {
	return &memoStorage{slots: newShardedMap[Slot, *memoSlot](shards, slotHash)}
}

func (m *memoStorage) slot(s Slot) *memoSlot {
	return m.slots.getOrCreate(s, func() *memoSlot { return &memoSlot{} })
}

func (m *memoStorage) lookup(s Slot) *CacheEntry {
	ms, ok := m.slots.get(s)
	if !ok {
		return nil
	}
	return ms.entry.Load()
}

func (m *memoStorage) store(ms *memoSlot, e *CacheEntry) {
	if prev := ms.entry.Swap(e); prev == nil {
		m.live.Add(1)
	}
}

func (m *memoStorage) evict(s Slot) bool {
	ms, ok := m.slots.remove(s)
	if !ok {
		return false
	}
	if prev := ms.entry.Swap(nil); prev != nil {
		m.live.Add(-1)
		return true
	}
	return false
}

func (m *memoStorage) reset() {
	m.slots.clear()
	m.live.Store(0)
}
