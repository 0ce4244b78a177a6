package query

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/layoutdb/internal/value"
)

// Recorder observes every slot an execution computes and stores.
// The scheduler uses it to compare the slots touched by concurrent units.
type Recorder interface {
	Computed(slot Slot)
}

// execution is one top-level evaluation call chain. It owns the stack of
// in-flight slots used for cycle detection and is never shared between
// goroutines.
type execution struct {
	ctx     context.Context
	db      *Database
	rec     Recorder
	stack   []Slot
	onStack map[Slot]struct{}
}

func (e *execution) inFlight(s Slot) bool {
	_, ok := e.onStack[s]
	return ok
}

func (e *execution) push(s Slot) {
	e.stack = append(e.stack, s)
	e.onStack[s] = struct{}{}
}

func (e *execution) pop() {
	top := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	delete(e.onStack, top)
}

// cyclePath renders the in-flight path from the first occurrence of s back to s.
func (e *execution) cyclePath(s Slot) []string {
	start := 0
	for i, f := range e.stack {
		if f == s {
			start = i
			break
		}
	}
	path := make([]string, 0, len(e.stack)-start+1)
	for _, f := range e.stack[start:] {
		path = append(path, e.db.reg.SlotName(f))
	}
	return append(path, e.db.reg.SlotName(s))
}

// fetched is a resolved slot. A provisional result was computed while a
// cycle was broken and only holds for the call chain that produced it.
type fetched struct {
	value       value.Value
	stamp       Revision
	provisional bool
}

// fetch resolves a slot to its current value and stamp. Inputs read their
// record (or the kind default at stamp 0); derived kinds are revalidated
// or recomputed.
func (e *execution) fetch(d *Descriptor, s Slot) (fetched, error) {
	if d.Class == ClassInput {
		if rec, ok := e.db.inputs.get(s); ok {
			return fetched{value: rec.Value, stamp: rec.Stamp}, nil
		}
		return fetched{value: d.defaultValue()}, nil
	}
	return e.evaluate(d, s)
}

func (e *execution) evaluate(d *Descriptor, s Slot) (fetched, error) {
	db := e.db

	if e.inFlight(s) {
		db.cycles.Add(1)
		err := NewCycleError(e.cyclePath(s))
		db.logger.Debug("cycle detected", "path", err.Path)
		return fetched{}, err
	}
	if len(e.stack) >= db.maxDepth {
		return fetched{}, NewDepthError(db.reg.SlotName(s), db.maxDepth)
	}
	if db.nodes.Retired(s.Key) {
		return fetched{}, retiredNode(db.reg.SlotName(s))
	}

	ms := db.memo.slot(s)

	e.push(s)
	defer e.pop()

	if entry := ms.entry.Load(); entry != nil && e.validate(entry) {
		db.hits.Add(1)
		return fetched{value: entry.Value, stamp: entry.Stamp}, nil
	}

	db.misses.Add(1)
	if err := e.ctx.Err(); err != nil {
		return fetched{}, err
	}

	c := &Ctx{exec: e, slot: s}
	v, err := d.Compute(c, s.Key)
	if err != nil {
		var qErr *Error
		var bErr *BodyError
		if errors.As(err, &qErr) || errors.As(err, &bErr) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fetched{}, err
		}
		return fetched{}, &BodyError{Slot: db.reg.SlotName(s), Err: err}
	}
	if v == nil {
		v = value.Null{}
	}

	now := db.clock.Current()
	entry := newCacheEntry(v, db.patterns.Intern(c.deps), c.maxStamp, now, c.provisional)
	db.memo.store(ms, entry)
	db.recomputes.Add(1)
	if e.rec != nil {
		e.rec.Computed(s)
	}

	if db.logger.Enabled(e.ctx, slog.LevelDebug) {
		db.logger.Debug("query recomputed",
			"slot", db.reg.SlotName(s),
			"deps", entry.Pattern.Len(),
			"stamp", int64(entry.Stamp),
			"provisional", c.provisional,
			"revision", int64(now))
	}

	return fetched{value: v, stamp: entry.Stamp, provisional: c.provisional}, nil
}

// validate reports whether every dependency of entry is stamped no later
// than the entry. Dependencies are pulled through fetch, so derived
// dependencies are themselves revalidated (or recomputed) first. A
// dependency that cannot be resolved makes the entry stale. Provisional
// entries are never reused.
func (e *execution) validate(entry *CacheEntry) bool {
	if entry.Provisional {
		return false
	}
	now := e.db.clock.Current()
	if Revision(entry.verifiedAt.Load()) == now {
		return true
	}
	for _, dep := range entry.Pattern.Deps() {
		d, ok := e.db.reg.Lookup(dep.Kind)
		if !ok {
			return false
		}
		f, err := e.fetch(d, dep.Slot())
		if err != nil || f.provisional || f.stamp > entry.Stamp {
			return false
		}
	}
	entry.verifiedAt.Store(int64(now))
	return true
}

// Ctx is the dependency context of one query body invocation. Every read a
// body performs must go through its Ctx so it is recorded.
type Ctx struct {
	exec        *execution
	slot        Slot
	deps        []Dependency
	maxStamp    Revision
	provisional bool
}

// Context returns the context.Context of the enclosing evaluation.
func (c *Ctx) Context() context.Context {
	return c.exec.ctx
}

// Slot returns the slot being computed.
func (c *Ctx) Slot() Slot {
	return c.slot
}

// Get reads (kind, key) and records it as a dependency. Inputs resolve to
// their stored value or kind default; derived kinds are evaluated.
//
// A read is recorded even when it fails, so a body that recovers from the
// error is recomputed once the dependency resolves differently. A read
// answered by a fallback, or failing only because of the current call chain
// (cycle, depth, cancellation), makes the computed entry provisional.
func (c *Ctx) Get(kind Kind, key value.NodeID) (value.Value, error) {
	e := c.exec
	d, ok := e.db.reg.Lookup(kind)
	if !ok {
		return nil, unknownKind(kind)
	}

	s := Slot{Kind: kind, Key: key}
	c.deps = append(c.deps, Dependency{Kind: kind, Key: key})

	if d.Fallback != nil && e.inFlight(s) {
		e.db.cycles.Add(1)
		e.db.logger.Debug("cycle broken by fallback", "slot", e.db.reg.SlotName(s))
		c.provisional = true
		return d.Fallback(key), nil
	}

	f, err := e.fetch(d, s)
	if err != nil {
		if chainDependent(err) {
			c.provisional = true
		}
		return nil, err
	}
	if f.provisional {
		c.provisional = true
	}
	if f.stamp > c.maxStamp {
		c.maxStamp = f.stamp
	}
	return f.value, nil
}

// chainDependent reports whether err depends on the call chain that observed
// it rather than on the values read.
func chainDependent(err error) bool {
	return IsCycleError(err) || IsDepthError(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// GetInt reads (kind, key) as an integer. Non-integer values read as (0, false).
func (c *Ctx) GetInt(kind Kind, key value.NodeID) (int64, bool, error) {
	v, err := c.Get(kind, key)
	if err != nil {
		return 0, false, err
	}
	n, ok := value.AsInt(v)
	return n, ok, nil
}

// Scope returns a relationship façade bound to node.
func (c *Ctx) Scope(node value.NodeID) Scope {
	return Scope{c: c, node: node}
}

// Self returns a Scope bound to the key being computed.
func (c *Ctx) Self() Scope {
	return c.Scope(c.slot.Key)
}
