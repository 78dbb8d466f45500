package dendrite

import "reflect"

// EventHandler is a side-effect sink invoked after an event is durable.
// The signature is batch-shaped (a slice, not a single event) to permit a
// future batched dispatcher, even though the runtime today always calls
// it with a one-element slice.
type EventHandler interface {
	HandleEvent(events []*Event) error
}

// EventHandlerFunc adapts a plain function to EventHandler.
type EventHandlerFunc func(events []*Event) error

// HandleEvent implements EventHandler.
func (f EventHandlerFunc) HandleEvent(events []*Event) error { return f(events) }

// HandlerRegistry maps a payload type to its ordered list of handlers.
// Built once at AggregateFactory construction and read-only thereafter:
// insertion order is preserved, and handlers for a given type run in
// registration order.
type HandlerRegistry struct {
	byType map[reflect.Type][]EventHandler
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{byType: make(map[reflect.Type][]EventHandler)}
}

// On registers handler to run, in order, whenever an event carrying a
// payload of the same concrete type as sample is applied.
func (r *HandlerRegistry) On(sample EventPayload, handler EventHandler) *HandlerRegistry {
	t := reflect.TypeOf(sample)
	r.byType[t] = append(r.byType[t], handler)
	return r
}

// handlersFor returns the handlers registered for payload's concrete
// type, or nil if none are registered.
func (r *HandlerRegistry) handlersFor(payload EventPayload) []EventHandler {
	if r == nil {
		return nil
	}
	return r.byType[reflect.TypeOf(payload)]
}
