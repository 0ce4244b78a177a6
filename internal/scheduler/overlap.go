package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/layoutdb/internal/query"
)

// ErrCodeOverlapViolation is the code of an OverlapError.
const ErrCodeOverlapViolation = "OVERLAP_VIOLATION"

// OverlapError reports two units of one wave computing the same slot,
// which means the boundary predicate let their subtrees share work.
type OverlapError struct {
	Code   string
	Slot   string
	First  string // unit ID
	Second string // unit ID
	Wave   int
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s: units %s and %s both computed %s (wave %d)",
		e.Code, e.First, e.Second, e.Slot, e.Wave)
}

// IsOverlapError reports whether err is an OverlapError.
func IsOverlapError(err error) bool {
	var oErr *OverlapError
	return errors.As(err, &oErr)
}

// unitRecorder counts the slots one unit computes and, when tracking,
// remembers them for the overlap check.
type unitRecorder struct {
	track    bool
	computed atomic.Int64

	mu    sync.Mutex
	slots []query.Slot
}

func (r *unitRecorder) Computed(s query.Slot) {
	r.computed.Add(1)
	if !r.track {
		return
	}
	r.mu.Lock()
	r.slots = append(r.slots, s)
	r.mu.Unlock()
}

// checkOverlap compares the slots computed by the units of one wave.
func checkOverlap(reg *query.Registry, wave int, units []WorkUnit, recs []*unitRecorder) error {
	owner := make(map[query.Slot]int)
	for i, rec := range recs {
		for _, s := range rec.slots {
			if prev, seen := owner[s]; seen && prev != i {
				return &OverlapError{
					Code:   ErrCodeOverlapViolation,
					Slot:   reg.SlotName(s),
					First:  units[prev].ID,
					Second: units[i].ID,
					Wave:   wave,
				}
			}
			owner[s] = i
		}
	}
	return nil
}
