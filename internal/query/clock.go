package query

import "sync/atomic"

// Revision is the global logical tick, advanced once per mutation batch.
// Revision 0 is the state before any write.
type Revision int64

// Clock is the revision counter of one Database.
// Safe for concurrent use; only the mutation phase advances it.
type Clock struct {
	current atomic.Int64
}

// Current returns the latest committed revision.
func (c *Clock) Current() Revision {
	return Revision(c.current.Load())
}

// Advance commits a new revision and returns it.
func (c *Clock) Advance() Revision {
	return Revision(c.current.Add(1))
}
