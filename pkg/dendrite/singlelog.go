package dendrite

import (
	"context"
	"fmt"
)

// SingleLogStore is a minimal test double scoped to exactly one log_id,
// useful for aggregate unit tests that don't care about multi-log
// behavior and want a smaller failure surface than InMemoryStore. Any
// call naming a different logID returns an error rather than silently
// creating a second log.
type SingleLogStore struct {
	logID string
	inner *InMemoryStore
}

// NewSingleLogStore returns a store that only ever serves logID.
func NewSingleLogStore(logID string) *SingleLogStore {
	return &SingleLogStore{logID: logID, inner: NewInMemoryStore()}
}

func (s *SingleLogStore) checkLog(logID string) error {
	if logID != s.logID {
		return fmt.Errorf("dendrite: SingleLogStore bound to %q, got %q", s.logID, logID)
	}
	return nil
}

// Apply implements EventStore.
func (s *SingleLogStore) Apply(ctx context.Context, logID string, event *Event, expected *string) error {
	if err := s.checkLog(logID); err != nil {
		return err
	}
	return s.inner.Apply(ctx, logID, event, expected)
}

// GetLog implements EventStore.
func (s *SingleLogStore) GetLog(ctx context.Context, logID string) ([]*Event, error) {
	if err := s.checkLog(logID); err != nil {
		return nil, err
	}
	return s.inner.GetLog(ctx, logID)
}

// GetLogFrom implements EventStore.
func (s *SingleLogStore) GetLogFrom(ctx context.Context, logID string, from StartingPoint) ([]*Event, error) {
	if err := s.checkLog(logID); err != nil {
		return nil, err
	}
	return s.inner.GetLogFrom(ctx, logID, from)
}
