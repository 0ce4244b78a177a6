package query

import (
	"cmp"
	"encoding/binary"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/layoutdb/internal/value"
)

// Dependency is one producer read recorded during an evaluation.
type Dependency struct {
	Kind Kind
	Key  value.NodeID
}

// Slot returns the slot the dependency reads.
func (d Dependency) Slot() Slot {
	return Slot{Kind: d.Kind, Key: d.Key}
}

// KeyHash is the 64-bit hash of the dependency's key.
func (d Dependency) KeyHash() uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], d.Key.Index)
	binary.LittleEndian.PutUint32(buf[4:8], d.Key.Gen)
	return xxhash.Sum64(buf[:])
}

// compareDependencies orders by (kind, key hash), breaking hash ties on the
// key itself so the order is total.
func compareDependencies(a, b Dependency) int {
	if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.KeyHash(), b.KeyHash()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Key.Index, b.Key.Index); c != 0 {
		return c
	}
	return cmp.Compare(a.Key.Gen, b.Key.Gen)
}

// Pattern is a canonical, immutable dependency set. Patterns are only
// created by a PatternCache, so two equal sets share one *Pattern.
type Pattern struct {
	deps []Dependency
	hash uint64
}

// Deps returns the dependencies in canonical order. The slice must not be modified.
func (p *Pattern) Deps() []Dependency {
	return p.deps
}

// Len returns the number of dependencies.
func (p *Pattern) Len() int {
	return len(p.deps)
}

// Hash returns the content hash of the pattern.
func (p *Pattern) Hash() uint64 {
	return p.hash
}

// PatternCache interns dependency sets. Patterns are content-addressed and
// revision-independent, so one cache may serve several databases.
// Safe for concurrent use.
type PatternCache struct {
	shards []patternShard
	count  atomic.Int64
}

type patternShard struct {
	mu      sync.RWMutex
	buckets map[uint64][]*Pattern // hash -> patterns sharing it
}

// NewPatternCache creates an empty cache with n shards.
func NewPatternCache(n int) *PatternCache {
	if n < 1 {
		n = 1
	}
	c := &PatternCache{shards: make([]patternShard, n)}
	for i := range c.shards {
		c.shards[i].buckets = make(map[uint64][]*Pattern)
	}
	return c
}

// Intern returns the shared pattern for the set of deps. Order and
// duplicates in deps do not matter; deps is not retained.
func (c *PatternCache) Intern(deps []Dependency) *Pattern {
	canonical := canonicalize(deps)
	h := hashDependencies(canonical)
	sh := &c.shards[h%uint64(len(c.shards))]

	sh.mu.RLock()
	p := findPattern(sh.buckets[h], canonical)
	sh.mu.RUnlock()
	if p != nil {
		return p
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if p := findPattern(sh.buckets[h], canonical); p != nil {
		return p
	}
	p = &Pattern{deps: canonical, hash: h}
	sh.buckets[h] = append(sh.buckets[h], p)
	c.count.Add(1)
	return p
}

// Len returns the number of unique patterns interned.
func (c *PatternCache) Len() int {
	return int(c.count.Load())
}

func findPattern(bucket []*Pattern, deps []Dependency) *Pattern {
	for _, p := range bucket {
		if slices.Equal(p.deps, deps) {
			return p
		}
	}
	return nil
}

func canonicalize(deps []Dependency) []Dependency {
	out := make([]Dependency, len(deps))
	copy(out, deps)
	slices.SortFunc(out, compareDependencies)
	return slices.Compact(out)
}

func hashDependencies(deps []Dependency) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(value.DomainPattern)
	_, _ = d.Write([]byte{0x00})
	var buf [10]byte
	for _, dep := range deps {
		binary.LittleEndian.PutUint16(buf[0:2], uint16(dep.Kind))
		binary.LittleEndian.PutUint32(buf[2:6], dep.Key.Index)
		binary.LittleEndian.PutUint32(buf[6:10], dep.Key.Gen)
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}
