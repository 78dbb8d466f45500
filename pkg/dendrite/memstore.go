package dendrite

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is a test double implementing EventStore entirely in
// process memory, with no suspension points. It keeps the same two-row
// shape the durable store uses internally (an ordered event list plus a
// per-log last_event marker) so that behavior observed against it
// generalizes to the durable realization.
type InMemoryStore struct {
	mu      sync.Mutex
	logs    map[string][]*Event
	lastEvt map[string]string
	hasMeta map[string]bool
}

// NewInMemoryStore returns an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		logs:    make(map[string][]*Event),
		lastEvt: make(map[string]string),
		hasMeta: make(map[string]bool),
	}
}

// Apply implements EventStore.
func (s *InMemoryStore) Apply(ctx context.Context, logID string, event *Event, expected *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.lastEvt[logID]

	if expected == nil {
		if s.hasMeta[logID] {
			return &ConcurrencyViolation{
				LogID: logID, Expected: "", Code: "AlreadyExists",
				Reason: "log metadata already exists",
			}
		}
	} else {
		if !exists || current != *expected {
			return &ConcurrencyViolation{
				LogID: logID, Expected: *expected, Code: "FailedPrecondition",
				Reason: "last_event does not match expected value",
			}
		}
	}

	stamp := defaultMonotonic.Now()
	if event.ID == "" {
		event.ID = FormatEventID(stamp, event.ShortName)
	}
	if exists && event.ID <= current {
		return ErrInvariantViolation
	}

	event.AppliedTime = stamp

	s.logs[logID] = append(s.logs[logID], event)
	s.lastEvt[logID] = event.ID
	s.hasMeta[logID] = true

	return nil
}

// GetLog implements EventStore.
func (s *InMemoryStore) GetLog(ctx context.Context, logID string) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.logs[logID]
	out := make([]*Event, len(events))
	copy(out, events)
	return out, nil
}

// GetLogFrom implements EventStore.
func (s *InMemoryStore) GetLogFrom(ctx context.Context, logID string, from StartingPoint) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.logs[logID]
	out := make([]*Event, 0, len(events))
	for _, e := range events {
		if from.AfterEventID != "" {
			if e.ID > from.AfterEventID {
				out = append(out, e)
			}
			continue
		}
		if !from.Time.IsZero() && !e.AppliedTime.Before(from.Time) {
			out = append(out, e)
		}
	}
	// Already insertion-ordered by ID since Apply enforces monotonicity,
	// but sort defensively so callers never depend on insertion order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
