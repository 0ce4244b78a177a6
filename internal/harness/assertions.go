package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/layoutdb/internal/query"
	"github.com/roach88/layoutdb/internal/value"
)

// errorCode names an evaluation error for traces and expectations.
func errorCode(err error) string {
	if code, ok := query.ErrorCodeOf(err); ok {
		return string(code)
	}
	var bErr *query.BodyError
	switch {
	case errors.As(err, &bErr):
		return "BODY_ERROR"
	case errors.Is(err, context.Canceled):
		return "CANCELLED"
	case errors.Is(err, context.DeadlineExceeded):
		return "DEADLINE_EXCEEDED"
	}
	return err.Error()
}

func checkEval(i int, e *EvalStep, ev *TraceEvent, evalErr error, hits, misses int64) []string {
	var failures []string
	fail := func(format string, args ...any) {
		prefix := fmt.Sprintf("steps[%d]: %s(%s): ", i, e.Kind, e.Node)
		failures = append(failures, prefix+fmt.Sprintf(format, args...))
	}

	switch {
	case e.Error != "":
		if evalErr == nil {
			fail("expected error %s, got %s", e.Error, value.Format(ev.Value))
		} else if ev.Error != e.Error {
			fail("expected error %s, got %s", e.Error, ev.Error)
		}
	case evalErr != nil:
		fail("unexpected error: %v", evalErr)
	case e.Expect != nil:
		want, err := value.FromAny(e.Expect)
		if err != nil {
			fail("invalid expectation: %v", err)
		} else if !value.Equal(want, ev.Value) {
			fail("expected %s, got %s", value.Format(want), value.Format(ev.Value))
		}
	}

	if e.Hits != nil && *e.Hits != hits {
		fail("expected %d hits, got %d", *e.Hits, hits)
	}
	if e.Misses != nil && *e.Misses != misses {
		fail("expected %d misses, got %d", *e.Misses, misses)
	}
	return failures
}

func checkStats(i int, s *StatsStep, st query.Stats) []string {
	var failures []string
	if s.Entries != nil && *s.Entries != st.Entries {
		failures = append(failures, fmt.Sprintf("steps[%d]: expected %d entries, got %d", i, *s.Entries, st.Entries))
	}
	if s.Patterns != nil && *s.Patterns != st.Patterns {
		failures = append(failures, fmt.Sprintf("steps[%d]: expected %d patterns, got %d", i, *s.Patterns, st.Patterns))
	}
	if s.Revision != nil && *s.Revision != int64(st.Revision) {
		failures = append(failures, fmt.Sprintf("steps[%d]: expected revision %d, got %d", i, *s.Revision, st.Revision))
	}
	return failures
}
