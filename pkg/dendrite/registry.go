package dendrite

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry is the explicit, startup-populated event-type registry called
// for in the design notes in place of dynamic type_fqn resolution: an
// application registers a constructor for every event type it emits, and
// the store only ever reads and writes the tag string. This removes
// reflection from the read path and gives a refactor that renames or
// removes an event type a compile error instead of a silent runtime
// resolution failure.
type Registry struct {
	mu        sync.RWMutex
	ctors     map[string]func() EventPayload
	tagByType map[reflect.Type]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ctors:     make(map[string]func() EventPayload),
		tagByType: make(map[reflect.Type]string),
	}
}

// Register associates a tag with a constructor for one event payload type.
// Call this once per event type at startup, before any Wrap or Resolve
// call. tag is typically ShortNameOf(ctor()), but callers may pick a
// different stable identifier (e.g. to rename a Go type without breaking
// already-persisted events).
func (r *Registry) Register(tag string, ctor func() EventPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[tag]; exists {
		panic(fmt.Sprintf("dendrite: event tag already registered: %s", tag))
	}

	sample := ctor()
	t := reflect.TypeOf(sample)

	r.ctors[tag] = ctor
	r.tagByType[t] = tag
}

// Resolve looks up the constructor for a tag (class_from in spec terms).
// Returns a NotFoundError if the tag was never registered.
func (r *Registry) Resolve(tag string) (func() EventPayload, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctor, ok := r.ctors[tag]
	if !ok {
		return nil, &NotFoundError{Kind: "event type", Key: tag}
	}
	return ctor, nil
}

// TagOf returns the tag a payload's concrete type was registered under.
func (r *Registry) TagOf(payload EventPayload) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t := reflect.TypeOf(payload)
	tag, ok := r.tagByType[t]
	if !ok {
		return "", &NotFoundError{Kind: "event type", Key: t.String()}
	}
	return tag, nil
}

// Wrap constructs an Event around payload: resolves its tag and short
// name, stamps CreatedTime, and leaves ID and AppliedTime unset for the
// store/aggregate to fill in at apply time.
func (r *Registry) Wrap(payload EventPayload) (*Event, error) {
	tag, err := r.TagOf(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ShortName:   ShortNameOf(payload),
		TypeTag:     tag,
		CreatedTime: Now(),
		Payload:     payload,
	}, nil
}

// New constructs a zero-value payload for tag via its registered
// constructor (class_from(fqn) in spec terms), for use when rehydrating a
// stored event.
func (r *Registry) New(tag string) (EventPayload, error) {
	ctor, err := r.Resolve(tag)
	if err != nil {
		return nil, err
	}
	return ctor(), nil
}

