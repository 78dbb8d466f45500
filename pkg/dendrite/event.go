// Package dendrite is the event-sourcing runtime: aggregate lifecycle,
// the EventStore contract, and the optimistic-concurrency protocol that
// guarantees at-most-one successful writer per log per round.
package dendrite

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// EventPayload is the marker interface implemented by concrete domain
// event types (e.g. LedgerCredited). It carries no methods: the registry
// is what ties a payload type to its tag, short name, and constructor.
type EventPayload interface{}

// Event is an immutable domain fact: identity, timestamps, and a payload.
type Event struct {
	// ID is the event_id: unique within a log, assigned at apply time if
	// unset. Format: see FormatEventID. Sort-lexicographic order of this
	// field defines causal order within a log.
	ID string

	// ShortName is the class-style tag of the concrete event type, with
	// any trailing "Event" stripped. Used to build ID and as a
	// human-readable discriminator.
	ShortName string

	// TypeTag is the explicit registry tag used to re-hydrate the
	// concrete payload type on read. Stands in for a fully-qualified
	// type name so the store never needs reflection-based lookup.
	TypeTag string

	// CreatedTime is set when the event value is constructed.
	CreatedTime time.Time

	// AppliedTime is set the moment the store accepts the write; the
	// zero value means "not yet applied".
	AppliedTime time.Time

	// Payload carries the domain fields.
	Payload EventPayload
}

// Applied reports whether the store has accepted this event.
func (e *Event) Applied() bool {
	return !e.AppliedTime.IsZero()
}

// ShortNameOf derives the class-style tag for a payload's concrete type:
// the type's bare name with a trailing "Event" token stripped. It is a
// pure function of the type. Registry.Wrap calls it on every wrap; the
// result is not cached per registered type.
func ShortNameOf(payload EventPayload) string {
	t := reflect.TypeOf(payload)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	return strings.TrimSuffix(name, "Event")
}

// FormatEventID builds an event_id from a UTC instant and a short name:
// YYYYMMDDHHMMSSffffff_<short_name>. Width is fixed (14 digits of
// second-precision timestamp plus 6 digits of microseconds) so that
// lexicographic sort order equals chronological order.
func FormatEventID(at time.Time, shortName string) string {
	at = at.UTC()
	return fmt.Sprintf("%s%06d_%s", at.Format("20060102150405"), at.Nanosecond()/1000, shortName)
}
