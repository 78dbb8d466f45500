package dendrite

import (
	"sync"
	"time"
)

// TimeFunc is the package clock: Registry.Wrap stamps CreatedTime from it,
// and InMemoryStore stamps AppliedTime and event_id from it. durable.Store
// does not read it; it takes its own clock via durable.WithClock. Tests
// override it to get deterministic, monotonic timestamps.
var TimeFunc = time.Now

// Now returns the current time via TimeFunc, always normalized to UTC.
func Now() time.Time {
	return TimeFunc().UTC()
}

// Monotonic wraps a clock so repeated calls never return an instant equal
// to or earlier than the one before it, bumping forward by a single
// microsecond when the underlying clock would otherwise repeat. This
// keeps FormatEventID's microsecond-granularity ids strictly increasing
// even when two events for the same log are stamped back-to-back faster
// than the clock's resolution.
type Monotonic struct {
	mu    sync.Mutex
	clock func() time.Time
	last  int64
}

// NewMonotonic wraps clock. Pass Now for the package clock, or a store's
// own configurable clock so ids and timestamps agree.
func NewMonotonic(clock func() time.Time) *Monotonic {
	return &Monotonic{clock: clock}
}

// Now returns the next strictly-increasing instant, UTC-normalized.
func (m *Monotonic) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Compare at microsecond granularity, FormatEventID's, so that two
	// instants inside the same microsecond also count as a repeat.
	nanos := m.clock().UTC().UnixNano()
	if nanos/1000 <= m.last/1000 {
		nanos = (m.last/1000 + 1) * 1000
	}
	m.last = nanos
	return time.Unix(0, nanos).UTC()
}

// defaultMonotonic is the seam memstore.go uses for event_id generation,
// built over the package clock so TimeFunc overrides in tests still take
// effect.
var defaultMonotonic = NewMonotonic(func() time.Time { return TimeFunc() })
