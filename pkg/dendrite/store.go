package dendrite

import (
	"context"
	"errors"
	"time"
)

// ErrNotSupported is returned by a store's GetLogFrom when it cannot
// serve a "since" query. spec.md §4.2 leaves get_log_from optional; a
// store that cannot support it should return this rather than silently
// returning the full log.
var ErrNotSupported = errors.New("dendrite: operation not supported by this store")

// StartingPoint selects where GetLogFrom should resume: either a wall
// clock instant (AppliedTime >= it) or a specific event (event_id
// strictly greater than it). Exactly one of the two should be set.
type StartingPoint struct {
	// Time, if non-zero, selects events whose AppliedTime is >= Time.
	Time time.Time

	// AfterEventID, if non-empty, selects events whose ID is strictly
	// greater than AfterEventID. Takes precedence over Time when both
	// are set.
	AfterEventID string
}

// FromTime builds a StartingPoint selecting events applied at or after t.
func FromTime(t time.Time) StartingPoint { return StartingPoint{Time: t} }

// AfterEvent builds a StartingPoint selecting events after a given
// event_id.
func AfterEvent(eventID string) StartingPoint { return StartingPoint{AfterEventID: eventID} }

// EventStore is the abstract contract every concrete store (in-memory or
// durable) implements. All three operations may suspend on I/O.
type EventStore interface {
	// Apply appends event to logID atomically with a conditional update
	// to the log's last_event metadata.
	//
	// Preconditions:
	//   - event.ID, if already set, must be strictly greater
	//     (lexicographically) than the log's current last_event.
	//   - If expected is nil, the log's metadata must not yet exist; this
	//     call creates it.
	//   - If expected is non-nil, the stored last_event must equal
	//     *expected.
	//
	// On success, event.AppliedTime is set before the write and both the
	// event and the metadata update are durable. On a metadata mismatch
	// or "expected nil but already exists", returns *ConcurrencyViolation.
	// Other I/O failures propagate unchanged.
	Apply(ctx context.Context, logID string, event *Event, expected *string) error

	// GetLog returns the full sequence of events for logID in ascending
	// event_id order, with the metadata item filtered out. An empty log
	// returns an empty, non-nil slice and a nil error.
	GetLog(ctx context.Context, logID string) ([]*Event, error)

	// GetLogFrom returns the events from selects: those applied at or
	// after from.Time, or those strictly after from.AfterEventID (see
	// StartingPoint), in ascending event_id order. Stores that cannot
	// support this return ErrNotSupported.
	GetLogFrom(ctx context.Context, logID string, from StartingPoint) ([]*Event, error)
}
