package dendrite

import (
	"errors"
	"fmt"
)

// ErrConcurrencyViolation is the sentinel errors.Is target for
// ConcurrencyViolation, so callers can test for it without a type
// assertion.
var ErrConcurrencyViolation = errors.New("dendrite: concurrency violation")

// ConcurrencyViolation is raised when a store's conditional write fails:
// the log has advanced past what the writer believed was current. It
// carries the expected_last_event_id the writer offered and the store's
// explanation, mirroring the (message, code, reason) shape spec.md §6
// requires of the error surface.
type ConcurrencyViolation struct {
	// LogID is the log the writer was trying to append to.
	LogID string

	// Expected is the expected_last_event_id the writer offered ("" for
	// "log must not yet exist").
	Expected string

	// Code mirrors the store-provided error code, when the underlying
	// store surfaces one (e.g. "FailedPrecondition", "AlreadyExists").
	Code string

	// Reason is the store-provided explanation.
	Reason string
}

func (e *ConcurrencyViolation) Error() string {
	return fmt.Sprintf("dendrite: concurrency violation on log %s: expected last_event %q (%s: %s)",
		e.LogID, e.Expected, e.Code, e.Reason)
}

// Is reports whether target is ErrConcurrencyViolation, so
// errors.Is(err, ErrConcurrencyViolation) works without a type switch.
func (e *ConcurrencyViolation) Is(target error) bool {
	return target == ErrConcurrencyViolation
}

// NotFoundError is returned when a type_fqn/tag cannot be resolved to a
// constructor, or a log is expected to exist but doesn't.
type NotFoundError struct {
	Kind string // e.g. "event type", "log"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dendrite: %s not found: %s", e.Kind, e.Key)
}

// ErrInvariantViolation is returned for programmer errors the runtime
// detects rather than recovers from, such as applying an event whose
// event_id is not strictly greater than the aggregate's last_event_id.
var ErrInvariantViolation = errors.New("dendrite: invariant violation")
