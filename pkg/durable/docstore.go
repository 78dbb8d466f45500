// Package durable realizes dendrite.EventStore against a partitioned
// key-value store via gocloud.dev/docstore: a table partitioned by
// log_id and sorted by sort_key, with a metadata row per log whose
// sort_key sentinel sorts below every timestamped event_id.
package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/plaenen/dendrite/pkg/dendrite"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gocloud.dev/docstore"
	"gocloud.dev/gcerrors"
)

// metadataSortKey is the sentinel sort_key for a log's metadata row. '#'
// (0x23) sorts below every digit (0x30-0x39), so it always sorts below
// any timestamped event_id under plain byte-lexicographic order. If a
// backing store sorts differently, pick a sentinel that still sorts
// outside the event_id range for that store and update this constant.
const metadataSortKey = "#LOG_METADATA"

// eventDoc is the docstore representation of one event row. Key is the
// document's store-wide unique key (log_id + sort_key); drivers with a
// native partition+sort key (DynamoDB) configure that pairing through
// the collection URL instead and ignore this field, but memdocstore has
// only a single key field, so Key is what makes rows addressable there.
type eventDoc struct {
	Key              string                 `docstore:"key"`
	LogID            string                 `docstore:"log_id"`
	SortKey          string                 `docstore:"sort_key"`
	TypeTag          string                 `docstore:"type_tag"`
	ShortName        string                 `docstore:"short_name"`
	CreatedTime      string                 `docstore:"created_time"`
	AppliedTime      string                 `docstore:"applied_time"`
	Payload          map[string]interface{} `docstore:"payload"`
	DocstoreRevision interface{}
}

// metadataDoc is the docstore representation of a log's metadata row.
type metadataDoc struct {
	Key              string `docstore:"key"`
	LogID            string `docstore:"log_id"`
	SortKey          string `docstore:"sort_key"`
	LastEvent        string `docstore:"last_event"`
	DocstoreRevision interface{}
}

func docKey(logID, sortKey string) string { return logID + "|" + sortKey }

// Store is a dendrite.EventStore backed by a docstore.Collection. The
// collection is opened by URL against whichever driver provides the
// partitioned-KV semantics the deployment needs (awsdynamodb for a real
// partition+sort table, memdocstore for tests); Store itself only
// depends on the portable docstore.Collection interface.
type Store struct {
	coll      *docstore.Collection
	registry  *dendrite.Registry
	tracer    trace.Tracer
	clock     func() time.Time
	monotonic *dendrite.Monotonic
	logger    dendrite.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTracer overrides the tracer used for store.apply/store.get_log
// spans. Default: otel.Tracer("github.com/plaenen/dendrite/durable").
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) { s.tracer = tracer }
}

// WithClock overrides the clock used to stamp both event_id and
// applied_time. Tests use this for deterministic timestamps; both fields
// are always derived from the same instant so they never disagree.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithLogger attaches a Logger the store logs to: a Debug line on every
// successful Apply, an Error line on every ConcurrencyViolation.
// Defaults to dendrite.NewNoopLogger() when not set.
func WithLogger(logger dendrite.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open opens a docstore collection at collectionURL and wraps it as a
// dendrite.EventStore.
//
// Example URLs:
//
//	mem://events/key                           (memdocstore, tests)
//	dynamodb://events-table?partition_key=log_id&sort_key=sort_key
func Open(ctx context.Context, collectionURL string, registry *dendrite.Registry, opts ...Option) (*Store, error) {
	coll, err := docstore.OpenCollection(ctx, collectionURL)
	if err != nil {
		return nil, fmt.Errorf("dendrite/durable: opening collection %q: %w", collectionURL, err)
	}
	return NewStore(coll, registry, opts...), nil
}

// NewStore wraps an already-open docstore.Collection.
func NewStore(coll *docstore.Collection, registry *dendrite.Registry, opts ...Option) *Store {
	s := &Store{
		coll:     coll,
		registry: registry,
		tracer:   otel.Tracer("github.com/plaenen/dendrite/durable"),
		clock:    time.Now,
		logger:   dendrite.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Built after options so a WithClock override feeds the monotonic
	// seam too; keeps event_id strictly increasing even under a clock a
	// test has pinned to a fixed instant.
	s.monotonic = dendrite.NewMonotonic(s.clock)
	return s
}

// Close releases the underlying collection.
func (s *Store) Close() error {
	return s.coll.Close()
}

// Apply implements dendrite.EventStore. It commits the metadata row's
// conditional create-or-update first, in its own docstore ActionList, and
// only writes the event row once that commit wins — see the
// "no orphan rows on a lost race" note below — relying on docstore's
// revision-based optimistic concurrency to realize the "expected
// last_event matches" condition: Replace fails with
// gcerrors.FailedPrecondition if the metadata document's revision
// changed since it was fetched, and Create fails with
// gcerrors.AlreadyExists if the metadata row already exists.
//
// No orphan rows on a lost race. docstore's ActionList.Do is not a
// cross-document transaction the way a real DynamoDB TransactWriteItems
// call is: nothing stops two concurrent Apply calls from both passing
// their own pre-commit checks and both writing an event row, with only
// one of them then winning the metadata compare-and-swap. Committing the
// metadata CAS first and the event row second closes that hole: a
// losing writer's metadata action fails before it ever reaches the event
// row Put, so a lost race leaves nothing in the log to replay. The
// remaining failure mode — the metadata CAS succeeds but the subsequent
// event row Put then fails on a genuine I/O error — is the ordinary
// partial-commit risk any non-transactional two-step write carries, and
// is accepted as such; see DESIGN.md.
func (s *Store) Apply(ctx context.Context, logID string, event *dendrite.Event, expected *string) error {
	ctx, span := s.tracer.Start(ctx, "store.apply", trace.WithAttributes(
		attribute.String("dendrite.log_id", logID),
	))
	defer span.End()

	now := s.monotonic.Now()
	if event.ID == "" {
		event.ID = dendrite.FormatEventID(now, event.ShortName)
	}
	event.AppliedTime = now

	metaActions := s.coll.Actions()
	if expected == nil {
		metaActions.Create(&metadataDoc{
			Key: docKey(logID, metadataSortKey), LogID: logID,
			SortKey: metadataSortKey, LastEvent: event.ID,
		})
	} else {
		current := &metadataDoc{Key: docKey(logID, metadataSortKey), LogID: logID, SortKey: metadataSortKey}
		if err := s.coll.Get(ctx, current); err != nil {
			return s.fail(span, fmt.Errorf("dendrite/durable: fetching log metadata: %w", err))
		}
		if current.LastEvent != *expected {
			conflict := &dendrite.ConcurrencyViolation{
				LogID: logID, Expected: *expected,
				Code: "FailedPrecondition", Reason: "last_event does not match expected value",
			}
			s.logger.Error("concurrency violation", "log_id", logID, "expected", *expected, "reason", conflict.Reason)
			return s.fail(span, conflict)
		}
		current.LastEvent = event.ID
		metaActions.Replace(current)
	}

	if err := metaActions.Do(ctx); err != nil {
		code := gcerrors.Code(err)
		if code == gcerrors.FailedPrecondition || code == gcerrors.AlreadyExists {
			conflict := &dendrite.ConcurrencyViolation{
				LogID: logID, Expected: expectedString(expected),
				Code: code.String(), Reason: err.Error(),
			}
			s.logger.Error("concurrency violation", "log_id", logID, "expected", conflict.Expected, "reason", conflict.Reason)
			return s.fail(span, conflict)
		}
		return s.fail(span, fmt.Errorf("dendrite/durable: committing metadata update: %w", err))
	}

	payload, err := encodePayload(event.Payload)
	if err != nil {
		return s.fail(span, fmt.Errorf("dendrite/durable: encoding payload: %w", err))
	}

	row := &eventDoc{
		Key:         docKey(logID, event.ID),
		LogID:       logID,
		SortKey:     event.ID,
		TypeTag:     event.TypeTag,
		ShortName:   event.ShortName,
		CreatedTime: event.CreatedTime.Format(time.RFC3339Nano),
		AppliedTime: now.Format(time.RFC3339Nano),
		Payload:     payload,
	}

	eventActions := s.coll.Actions()
	eventActions.Put(row)
	if err := eventActions.Do(ctx); err != nil {
		return s.fail(span, fmt.Errorf("dendrite/durable: committing event row: %w", err))
	}

	s.logger.Debug("event applied", "log_id", logID, "event_id", event.ID, "event_type", event.TypeTag)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Store) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// GetLog implements dendrite.EventStore.
func (s *Store) GetLog(ctx context.Context, logID string) ([]*dendrite.Event, error) {
	ctx, span := s.tracer.Start(ctx, "store.get_log", trace.WithAttributes(
		attribute.String("dendrite.log_id", logID),
	))
	defer span.End()

	events, err := s.queryLog(ctx, logID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	span.SetAttributes(attribute.Int("dendrite.event_count", len(events)))
	span.SetStatus(codes.Ok, "")
	return events, nil
}

// GetLogFrom implements dendrite.EventStore.
func (s *Store) GetLogFrom(ctx context.Context, logID string, from dendrite.StartingPoint) ([]*dendrite.Event, error) {
	ctx, span := s.tracer.Start(ctx, "store.get_log_from", trace.WithAttributes(
		attribute.String("dendrite.log_id", logID),
	))
	defer span.End()

	events, err := s.queryLog(ctx, logID)
	if err != nil {
		return nil, s.fail(span, err)
	}

	out := make([]*dendrite.Event, 0, len(events))
	for _, e := range events {
		switch {
		case from.AfterEventID != "":
			if e.ID > from.AfterEventID {
				out = append(out, e)
			}
		case !from.Time.IsZero():
			if !e.AppliedTime.Before(from.Time) {
				out = append(out, e)
			}
		}
	}

	span.SetAttributes(attribute.Int("dendrite.event_count", len(out)))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

// queryLog pages through every row for logID, skips the metadata
// sentinel, decodes each event row, and returns events sorted by
// event_id — docstore does not itself guarantee query order.
func (s *Store) queryLog(ctx context.Context, logID string) ([]*dendrite.Event, error) {
	iter := s.coll.Query().Where("log_id", "=", logID).Get(ctx)
	defer iter.Stop()

	events := []*dendrite.Event{}
	for {
		var row eventDoc
		err := iter.Next(ctx, &row)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dendrite/durable: querying log %q: %w", logID, err)
		}
		if row.SortKey == metadataSortKey {
			continue
		}
		event, err := s.decodeEvent(&row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

func (s *Store) decodeEvent(row *eventDoc) (*dendrite.Event, error) {
	payload, err := s.registry.New(row.TypeTag)
	if err != nil {
		return nil, err
	}
	if err := decodePayload(row.Payload, payload); err != nil {
		return nil, fmt.Errorf("dendrite/durable: decoding payload for %s: %w", row.TypeTag, err)
	}

	created, err := time.Parse(time.RFC3339Nano, row.CreatedTime)
	if err != nil {
		return nil, fmt.Errorf("dendrite/durable: parsing created_time: %w", err)
	}
	applied, err := time.Parse(time.RFC3339Nano, row.AppliedTime)
	if err != nil {
		return nil, fmt.Errorf("dendrite/durable: parsing applied_time: %w", err)
	}

	return &dendrite.Event{
		ID:          row.SortKey,
		ShortName:   row.ShortName,
		TypeTag:     row.TypeTag,
		CreatedTime: created,
		AppliedTime: applied,
		Payload:     payload,
	}, nil
}

func expectedString(expected *string) string {
	if expected == nil {
		return ""
	}
	return *expected
}

// encodePayload flattens a payload to the store's native map
// representation via a JSON round trip. Decimal fields (shopspring's
// decimal.Decimal) marshal to quoted strings, preserving precision the
// way spec requires for numeric values the store's native numeric type
// would lose.
func encodePayload(payload dendrite.EventPayload) (map[string]interface{}, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodePayload(m map[string]interface{}, target dendrite.EventPayload) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
