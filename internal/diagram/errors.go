package diagram

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when the diagram does not exist or is hidden
	// from the caller. Reads of private diagrams by unauthorized principals
	// return this rather than ErrForbidden so existence is not revealed.
	ErrNotFound = errors.New("diagram not found")

	// ErrForbidden is returned when the caller is identified but lacks the
	// capability for a write or delete.
	ErrForbidden = errors.New("forbidden")

	// ErrRevisionNotFound is returned for a missing (diagramId, revision) pair.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrTransient marks store-level timeouts and unavailability. Callers
	// may retry with backoff; the write is atomic so no cleanup is needed.
	ErrTransient = errors.New("transient storage error")
)

// ConflictError is returned when a save's expected version does not match
// the current version. It carries the current state so the caller can
// reconcile without a second round trip.
type ConflictError struct {
	CurrentVersion int64
	CurrentPayload string
	CurrentTitle   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: current version is %d", e.CurrentVersion)
}

// FieldViolation is one failed validation rule on one input field.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports every violated field, not just the first.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a violation and returns the error for chaining.
func (e *ValidationError) Add(field, reason string) *ValidationError {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Reason: reason})
	return e
}

// Empty reports whether no violations were recorded.
func (e *ValidationError) Empty() bool { return len(e.Violations) == 0 }
