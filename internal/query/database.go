package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/layoutdb/internal/value"
)

// Defaults for Database options.
const (
	DefaultShards   = 64
	DefaultMaxDepth = 10_000
)

// Database is the incremental query store of one document.
//
// Writes go through Mutate or SetInput and are exclusive; Evaluate,
// GetInput and the other readers may run concurrently with each other.
type Database struct {
	reg      *Registry
	inputs   inputStorage
	memo     *memoStorage
	patterns *PatternCache
	nodes    *value.Allocator
	clock    Clock

	// phase orders mutation batches (exclusive) before evaluation (shared).
	phase sync.RWMutex

	maxDepth int
	logger   *slog.Logger

	// tombstones are the input records written by node retirement.
	tombstones []Slot

	hits       atomic.Int64
	misses     atomic.Int64
	recomputes atomic.Int64
	cycles     atomic.Int64
}

// Option configures a Database.
type Option func(*dbConfig)

type dbConfig struct {
	shards   int
	maxDepth int
	patterns *PatternCache
	nodes    *value.Allocator
	logger   *slog.Logger
}

// WithShards sets the number of shards of the input and memo maps.
func WithShards(n int) Option {
	return func(c *dbConfig) {
		if n > 0 {
			c.shards = n
		}
	}
}

// WithMaxDepth sets the maximum nesting of evaluations in one call chain.
func WithMaxDepth(n int) Option {
	return func(c *dbConfig) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithPatternCache shares an existing PatternCache between databases.
func WithPatternCache(p *PatternCache) Option {
	return func(c *dbConfig) {
		c.patterns = p
	}
}

// WithAllocator uses a if the topology layer owns node allocation.
func WithAllocator(a *value.Allocator) Option {
	return func(c *dbConfig) {
		c.nodes = a
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *dbConfig) {
		c.logger = l
	}
}

// NewDatabase creates an empty database dispatching over reg.
func NewDatabase(reg *Registry, opts ...Option) *Database {
	cfg := dbConfig{
		shards:   DefaultShards,
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.patterns == nil {
		cfg.patterns = NewPatternCache(cfg.shards)
	}
	if cfg.nodes == nil {
		cfg.nodes = value.NewAllocator()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	return &Database{
		reg:      reg,
		inputs:   newInputStorage(cfg.shards),
		memo:     newMemoStorage(cfg.shards),
		patterns: cfg.patterns,
		nodes:    cfg.nodes,
		maxDepth: cfg.maxDepth,
		logger:   cfg.logger,
	}
}

// Registry returns the registry the database dispatches over.
func (db *Database) Registry() *Registry {
	return db.reg
}

// Patterns returns the pattern cache, for sharing with another database.
func (db *Database) Patterns() *PatternCache {
	return db.patterns
}

// Revision returns the latest committed revision.
func (db *Database) Revision() Revision {
	return db.clock.Current()
}

// CreateNode allocates a fresh node identity.
func (db *Database) CreateNode() value.NodeID {
	return db.nodes.Allocate()
}

// Live reports whether id is currently allocated.
func (db *Database) Live(id value.NodeID) bool {
	return db.nodes.Live(id)
}

// SetInput writes one input as a batch of its own, advancing the revision.
func (db *Database) SetInput(kind Kind, key value.NodeID, v value.Value) error {
	_, err := db.Mutate(func(b *Batch) error {
		return b.SetInput(kind, key, v)
	})
	return err
}

// Mutate runs fn as one mutation batch. Writes staged by fn are applied
// together at a single new revision when fn returns nil. If fn fails, or
// stages nothing, no write is applied and the revision does not move.
func (db *Database) Mutate(fn func(b *Batch) error) (Revision, error) {
	db.phase.Lock()
	defer db.phase.Unlock()

	b := &Batch{db: db}
	if err := fn(b); err != nil {
		return db.clock.Current(), err
	}
	if len(b.writes) == 0 && len(b.retire) == 0 {
		return db.clock.Current(), nil
	}

	rev := db.clock.Advance()
	for _, w := range b.writes {
		db.inputs.set(w.slot, w.value, rev)
	}
	for _, id := range b.retire {
		db.retireLocked(id, rev)
	}

	db.logger.Debug("mutation batch committed",
		"revision", int64(rev),
		"writes", len(b.writes),
		"retired", len(b.retire))
	return rev, nil
}

// retireLocked tombstones every input record of id at rev, so entries that
// read them go stale, and evicts every memo entry keyed by id.
func (db *Database) retireLocked(id value.NodeID, rev Revision) {
	evicted := 0
	for _, k := range db.reg.kinds {
		s := Slot{Kind: k, Key: id}
		d := &db.reg.table[k]
		if d.Class == ClassInput {
			if _, ok := db.inputs.get(s); ok {
				db.inputs.set(s, d.defaultValue(), rev)
				db.tombstones = append(db.tombstones, s)
			}
			continue
		}
		if db.memo.evict(s) {
			evicted++
		}
	}
	// Retire only fails for identities that are not live; Batch.RetireNode
	// has already checked liveness under the same phase lock.
	_ = db.nodes.Retire(id)
	db.logger.Debug("node retired", "node", id.String(), "evicted", evicted)
}

// Batch stages the writes of one mutation batch.
type Batch struct {
	db     *Database
	writes []stagedWrite
	retire []value.NodeID
}

type stagedWrite struct {
	slot  Slot
	value value.Value
}

// SetInput stages a write. The last write to a slot within a batch wins.
func (b *Batch) SetInput(kind Kind, key value.NodeID, v value.Value) error {
	d, ok := b.db.reg.Lookup(kind)
	if !ok {
		return unknownKind(kind)
	}
	if d.Class != ClassInput {
		return &Error{
			Code:    ErrCodeKindMismatch,
			Message: fmt.Sprintf("cannot write %s kind %s", d.Class, d.Name),
			Slot:    b.db.reg.SlotName(Slot{Kind: kind, Key: key}),
		}
	}
	if v == nil {
		v = value.Null{}
	}
	b.writes = append(b.writes, stagedWrite{slot: Slot{Kind: kind, Key: key}, value: v})
	return nil
}

// RetireNode stages the retirement of id. On commit its inputs are
// tombstoned, its memo entries evicted and its identity released for reuse
// under a new generation.
func (b *Batch) RetireNode(id value.NodeID) error {
	if !b.db.nodes.Live(id) {
		return fmt.Errorf("retire %s: %w", id, value.ErrNotLive)
	}
	for _, staged := range b.retire {
		if staged == id {
			return nil
		}
	}
	b.retire = append(b.retire, id)
	return nil
}

// Len returns the number of staged writes.
func (b *Batch) Len() int {
	return len(b.writes)
}

// GetInput returns the value of an input slot, or the kind default when the
// slot was never written.
func (db *Database) GetInput(kind Kind, key value.NodeID) (value.Value, error) {
	d, ok := db.reg.Lookup(kind)
	if !ok {
		return nil, unknownKind(kind)
	}
	if d.Class != ClassInput {
		return nil, &Error{
			Code:    ErrCodeKindMismatch,
			Message: fmt.Sprintf("%s is not an input kind", d.Name),
			Slot:    db.reg.SlotName(Slot{Kind: kind, Key: key}),
		}
	}

	db.phase.RLock()
	defer db.phase.RUnlock()
	if rec, ok := db.inputs.get(Slot{Kind: kind, Key: key}); ok {
		return rec.Value, nil
	}
	return d.defaultValue(), nil
}

// Evaluate returns the current value of (kind, key), reusing the memoized
// entry when it is still valid. Input kinds are read like GetInput, except
// that a retired key fails with RETIRED_NODE for every kind.
func (db *Database) Evaluate(ctx context.Context, kind Kind, key value.NodeID) (value.Value, error) {
	return db.EvaluateWith(ctx, kind, key, nil)
}

// EvaluateWith is Evaluate with a Recorder observing every slot the
// evaluation computes.
func (db *Database) EvaluateWith(ctx context.Context, kind Kind, key value.NodeID, rec Recorder) (value.Value, error) {
	d, ok := db.reg.Lookup(kind)
	if !ok {
		return nil, unknownKind(kind)
	}

	db.phase.RLock()
	defer db.phase.RUnlock()

	s := Slot{Kind: kind, Key: key}
	if d.Class == ClassInput && db.nodes.Retired(key) {
		return nil, retiredNode(db.reg.SlotName(s))
	}

	e := &execution{
		ctx:     ctx,
		db:      db,
		rec:     rec,
		onStack: make(map[Slot]struct{}),
	}
	f, err := e.fetch(d, s)
	if err != nil {
		return nil, err
	}
	return f.value, nil
}

// Dependencies returns the recorded pattern of the live entry of
// (kind, key), if any. Intended for diagnostics.
func (db *Database) Dependencies(kind Kind, key value.NodeID) ([]Dependency, bool) {
	db.phase.RLock()
	defer db.phase.RUnlock()
	entry := db.memo.lookup(Slot{Kind: kind, Key: key})
	if entry == nil {
		return nil, false
	}
	deps := entry.Pattern.Deps()
	out := make([]Dependency, len(deps))
	copy(out, deps)
	return out, true
}

// Entry returns the live cache entry of (kind, key), if any.
func (db *Database) Entry(kind Kind, key value.NodeID) (*CacheEntry, bool) {
	db.phase.RLock()
	defer db.phase.RUnlock()
	entry := db.memo.lookup(Slot{Kind: kind, Key: key})
	return entry, entry != nil
}

// Reset discards every memoized entry and zeroes the counters. Inputs and
// interned patterns are kept, except the tombstones of retired nodes: with
// no entry left to invalidate they are dropped.
func (db *Database) Reset() {
	db.phase.Lock()
	defer db.phase.Unlock()
	db.memo.reset()
	for _, s := range db.tombstones {
		if db.nodes.Retired(s.Key) {
			db.inputs.remove(s)
		}
	}
	db.tombstones = nil
	db.hits.Store(0)
	db.misses.Store(0)
	db.recomputes.Store(0)
	db.cycles.Store(0)
}

// Stats is a point-in-time summary for instrumentation.
type Stats struct {
	Revision   Revision
	Entries    int   // live cache entries
	Patterns   int   // unique interned patterns
	Inputs     int   // input records, including tombstones of retired nodes until Reset
	Hits       int64 // evaluations answered from a valid entry
	Misses     int64 // evaluations that ran a body
	Recomputes int64 // bodies that completed and stored an entry
	Cycles     int64 // cycles detected, including those broken by a fallback
}

// Stats returns the current counters.
func (db *Database) Stats() Stats {
	return Stats{
		Revision:   db.clock.Current(),
		Entries:    int(db.memo.live.Load()),
		Patterns:   db.patterns.Len(),
		Inputs:     db.inputs.slots.len(),
		Hits:       db.hits.Load(),
		Misses:     db.misses.Load(),
		Recomputes: db.recomputes.Load(),
		Cycles:     db.cycles.Load(),
	}
}

func retiredNode(slot string) *Error {
	return &Error{
		Code:    ErrCodeRetiredNode,
		Message: "node identity has been retired",
		Slot:    slot,
	}
}

func unknownKind(kind Kind) *Error {
	return &Error{
		Code:    ErrCodeUnknownKind,
		Message: fmt.Sprintf("kind %d is not registered", kind),
	}
}
