package dendrite

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Reducer is implemented by the per-domain state of an aggregate: the
// single method that folds one event into in-memory state. It must be
// pure with respect to persistence — On only ever mutates the receiver —
// and deterministic over the event payload and prior state, since it
// runs identically during replay and after a live apply.
type Reducer interface {
	On(event *Event) error
}

// Aggregate is the capability shared by every aggregate instance:
// identity, the last-applied event_id used as the concurrency tag, and
// the one persisting mutator. Domain state lives alongside it in an
// Instance[T]; Aggregate itself holds no domain fields.
type Aggregate struct {
	logID       string
	lastEventID *string
	store       EventStore
	handlers    *HandlerRegistry
	tracer      trace.Tracer
	metrics     *Metrics
	logger      Logger
}

// LogID returns the log this instance is bound to.
func (a *Aggregate) LogID() string { return a.logID }

// LastEventID returns the event_id of the last event applied or
// replayed, or "" for a fresh aggregate that has never been written to.
func (a *Aggregate) LastEventID() string {
	if a.lastEventID == nil {
		return ""
	}
	return *a.lastEventID
}

// apply persists event via the store, using lastEventID as the
// concurrency tag, and advances lastEventID on success. It does not
// touch domain state or handlers — that's Instance.Apply's job, since
// only the concrete Instance[T] knows the Reducer to call.
func (a *Aggregate) apply(ctx context.Context, event *Event) error {
	err := a.store.Apply(ctx, a.logID, event, a.lastEventID)
	if err != nil {
		if conflict, ok := err.(*ConcurrencyViolation); ok {
			if a.metrics != nil {
				a.metrics.ConcurrencyViolations.Add(ctx, 1)
			}
			a.logger.Error("concurrency violation", "log_id", a.logID,
				"expected", conflict.Expected, "reason", conflict.Reason)
		}
		return err
	}

	id := event.ID
	a.lastEventID = &id

	if a.metrics != nil {
		a.metrics.AggregateApplies.Add(ctx, 1)
	}
	a.logger.Debug("event applied", "log_id", a.logID, "event_id", event.ID, "event_type", event.TypeTag)
	return nil
}

// replay advances lastEventID for a historical event, without persisting
// or notifying handlers. Used by AggregateFactory.Load.
func (a *Aggregate) replay(event *Event) {
	id := event.ID
	a.lastEventID = &id
}

// fanout invokes the handlers registered for event's payload type, in
// registration order, with a single-element slice.
func (a *Aggregate) fanout(event *Event) error {
	for _, h := range a.handlers.handlersFor(event.Payload) {
		if err := h.HandleEvent([]*Event{event}); err != nil {
			return err
		}
	}
	return nil
}

// Instance is a live aggregate: the identity/concurrency capability plus
// the concrete domain state that implements Reducer.
type Instance[T Reducer] struct {
	*Aggregate
	State T
}

// Apply is the one-and-only persisting mutator: it stamps and persists
// event (via the store, conditional on LastEventID), mutates State by
// calling State.On, and fans out to registered handlers for event's
// payload type, all on success. On a *ConcurrencyViolation, in-memory
// state is left untouched and the error is returned as-is — the runtime
// never retries here; see RetryPolicy for the reload-and-reapply
// decorator.
func (i *Instance[T]) Apply(ctx context.Context, event *Event) error {
	ctx, span := startSpan(ctx, i.tracer, "aggregate.apply",
		attrLogID.String(i.logID), attrEventType.String(event.TypeTag))

	if err := i.Aggregate.apply(ctx, event); err != nil {
		endSpan(span, err)
		return err
	}
	span.SetAttributes(attrEventID.String(event.ID))

	if err := i.State.On(event); err != nil {
		endSpan(span, err)
		return err
	}

	if err := i.Aggregate.fanout(event); err != nil {
		endSpan(span, err)
		return err
	}

	endSpan(span, nil)
	return nil
}
