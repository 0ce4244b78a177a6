package harness

import (
	"maps"
	"slices"

	"github.com/roach88/layoutdb/internal/value"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step   int
	Op     string
	Node   string
	Parent string
	Kind   string
	Value  value.Value // eval result, nil when the eval failed
	Error  string      // error code of a failed eval
	Counts map[string]int64
}

// Record renders the event as a canonical record. Empty fields are omitted.
func (e TraceEvent) Record() value.Record {
	rec := value.Record{
		"step": value.Int(e.Step),
		"op":   value.Str(e.Op),
	}
	for k, v := range map[string]string{
		"node":   e.Node,
		"parent": e.Parent,
		"kind":   e.Kind,
		"error":  e.Error,
	} {
		if v != "" {
			rec[k] = value.Str(v)
		}
	}
	if e.Value != nil {
		rec["value"] = e.Value
	}
	for _, k := range slices.Sorted(maps.Keys(e.Counts)) {
		rec[k] = value.Int(e.Counts[k])
	}
	return rec
}

// Result is the outcome of running a scenario.
type Result struct {
	// Pass is true when every expectation held.
	Pass   bool
	Trace  []TraceEvent
	Errors []string
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
