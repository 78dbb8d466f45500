package dendrite

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// AggregateFactory constructs and loads aggregates of a single type T.
// T's zero-ish value is produced by newState; the factory wires it
// together with the store and handler registry shared by every instance
// it creates.
type AggregateFactory[T Reducer] struct {
	store    EventStore
	handlers *HandlerRegistry
	newState func() T
	idGen    func() string
	tracer   trace.Tracer
	metrics  *Metrics
	logger   Logger
}

// FactoryOption configures an AggregateFactory.
type FactoryOption[T Reducer] func(*AggregateFactory[T])

// WithLogIDGenerator overrides the default log_id generator (UUIDv4
// dashed hex, via github.com/google/uuid).
func WithLogIDGenerator[T Reducer](gen func() string) FactoryOption[T] {
	return func(f *AggregateFactory[T]) { f.idGen = gen }
}

// WithTracer overrides the tracer used for aggregate_load/fetch_events/
// replay_events/aggregate.apply spans.
func WithTracer[T Reducer](tracer trace.Tracer) FactoryOption[T] {
	return func(f *AggregateFactory[T]) { f.tracer = tracer }
}

// WithMetrics attaches a Metrics instance the factory and the instances
// it produces report to.
func WithMetrics[T Reducer](m *Metrics) FactoryOption[T] {
	return func(f *AggregateFactory[T]) { f.metrics = m }
}

// WithLogger attaches a Logger the factory and the instances it produces
// log to: a Debug line on every successful apply, an Error line on every
// ConcurrencyViolation. Defaults to NewNoopLogger() when not set.
func WithLogger[T Reducer](logger Logger) FactoryOption[T] {
	return func(f *AggregateFactory[T]) { f.logger = logger }
}

// NewAggregateFactory builds a factory for aggregate type T. handlers may
// be nil, meaning no handlers fire on apply.
func NewAggregateFactory[T Reducer](store EventStore, handlers *HandlerRegistry, newState func() T, opts ...FactoryOption[T]) *AggregateFactory[T] {
	if handlers == nil {
		handlers = NewHandlerRegistry()
	}
	f := &AggregateFactory[T]{
		store:    store,
		handlers: handlers,
		newState: newState,
		idGen:    uuid.NewString,
		logger:   NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *AggregateFactory[T]) newInstance(logID string) *Instance[T] {
	return &Instance[T]{
		Aggregate: &Aggregate{
			logID:    logID,
			store:    f.store,
			handlers: f.handlers,
			tracer:   f.tracer,
			metrics:  f.metrics,
			logger:   f.logger,
		},
		State: f.newState(),
	}
}

// New generates a fresh log_id and returns an empty instance bound to it.
// LastEventID starts "" (unset); the first successful Apply creates the
// log's metadata row.
func (f *AggregateFactory[T]) New(ctx context.Context) *Instance[T] {
	return f.newInstance(f.idGen())
}

// Load fetches the full log for logID and replays it into a fresh
// instance. Observable side effects: "aggregate_load", "fetch_events"
// (with event_count) and "replay_events" (with event_count) spans. Any
// store error propagates; replay is never partially exposed to the
// caller — either the instance is fully replayed or Load returns an
// error.
func (f *AggregateFactory[T]) Load(ctx context.Context, logID string) (*Instance[T], error) {
	ctx, loadSpan := startSpan(ctx, f.tracer, "aggregate_load", attrLogID.String(logID))

	inst := f.newInstance(logID)

	fetchCtx, fetchSpan := startSpan(ctx, f.tracer, "fetch_events", attrLogID.String(logID))
	events, err := f.store.GetLog(fetchCtx, logID)
	if err != nil {
		endSpan(fetchSpan, err)
		endSpan(loadSpan, err)
		return nil, err
	}
	fetchSpan.SetAttributes(attrEventCount.Int(len(events)))
	endSpan(fetchSpan, nil)

	_, replaySpan := startSpan(ctx, f.tracer, "replay_events", attrLogID.String(logID), attrEventCount.Int(len(events)))
	for _, event := range events {
		inst.Aggregate.replay(event)
		if err := inst.State.On(event); err != nil {
			endSpan(replaySpan, err)
			endSpan(loadSpan, err)
			return nil, err
		}
	}
	endSpan(replaySpan, nil)

	if f.metrics != nil {
		f.metrics.AggregateLoads.Add(ctx, 1)
		f.metrics.EventsReplayed.Add(ctx, int64(len(events)))
	}
	f.logger.Debug("aggregate loaded", "log_id", logID, "event_count", len(events))

	endSpan(loadSpan, nil)
	return inst, nil
}
