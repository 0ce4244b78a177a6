package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes conditions raised by the evaluation core itself.
// Failures of individual query bodies are reported as *BodyError instead.
type ErrorCode string

const (
	// ErrCodeCycleDetected indicates a query transitively read itself.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"

	// ErrCodeDepthExceeded indicates nested evaluation exceeded the depth quota.
	ErrCodeDepthExceeded ErrorCode = "DEPTH_EXCEEDED"

	// ErrCodeUnknownKind indicates a kind absent from the registry.
	ErrCodeUnknownKind ErrorCode = "UNKNOWN_KIND"

	// ErrCodeKindMismatch indicates a write to a derived kind.
	ErrCodeKindMismatch ErrorCode = "KIND_MISMATCH"

	// ErrCodeRetiredNode indicates a read keyed by a retired node identity.
	ErrCodeRetiredNode ErrorCode = "RETIRED_NODE"
)

// Error is a condition raised by the evaluation core.
type Error struct {
	Code    ErrorCode
	Message string
	Slot    string   // registered name of the slot being evaluated
	Path    []string // evaluation path for cycle errors, first entry repeated last
	Details map[string]string
}

func (e *Error) Error() string {
	if e.Slot == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (slot=%s)", e.Code, e.Message, e.Slot)
}

// NewCycleError builds a CYCLE_DETECTED error for the given evaluation path.
func NewCycleError(path []string) *Error {
	slot := ""
	if len(path) > 0 {
		slot = path[len(path)-1]
	}
	return &Error{
		Code:    ErrCodeCycleDetected,
		Message: "dependency cycle: " + strings.Join(path, " -> "),
		Slot:    slot,
		Path:    path,
	}
}

// NewDepthError builds a DEPTH_EXCEEDED error.
func NewDepthError(slot string, limit int) *Error {
	return &Error{
		Code:    ErrCodeDepthExceeded,
		Message: fmt.Sprintf("evaluation depth exceeded limit of %d", limit),
		Slot:    slot,
		Details: map[string]string{"limit": fmt.Sprintf("%d", limit)},
	}
}

// ErrorCodeOf returns the code of the first *Error in err's chain.
func ErrorCodeOf(err error) (ErrorCode, bool) {
	var qErr *Error
	if errors.As(err, &qErr) {
		return qErr.Code, true
	}
	return "", false
}

// IsCycleError reports whether err is a CYCLE_DETECTED error.
func IsCycleError(err error) bool {
	code, ok := ErrorCodeOf(err)
	return ok && code == ErrCodeCycleDetected
}

// IsDepthError reports whether err is a DEPTH_EXCEEDED error.
func IsDepthError(err error) bool {
	code, ok := ErrorCodeOf(err)
	return ok && code == ErrCodeDepthExceeded
}

// IsRetiredNodeError reports whether err is a RETIRED_NODE error.
func IsRetiredNodeError(err error) bool {
	code, ok := ErrorCodeOf(err)
	return ok && code == ErrCodeRetiredNode
}

// BodyError wraps a failure returned by a query body. It is returned to the
// caller unchanged by every enclosing evaluation and is never cached.
type BodyError struct {
	Slot string
	Err  error
}

func (e *BodyError) Error() string {
	return fmt.Sprintf("evaluate %s: %v", e.Slot, e.Err)
}

func (e *BodyError) Unwrap() error {
	return e.Err
}
