package dendrite

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments the runtime emits on its own operations.
// Trimmed from the teacher's observability.Metrics to the counters this
// runtime actually produces: aggregate loads, applies, concurrency
// conflicts, and events replayed during loads.
type Metrics struct {
	AggregateLoads        metric.Int64Counter
	AggregateApplies      metric.Int64Counter
	ConcurrencyViolations metric.Int64Counter
	EventsReplayed        metric.Int64Counter
}

// NewMetrics builds all instruments from meter. Pass
// noop.NewMeterProvider().Meter("") in tests that don't care about
// metrics.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.AggregateLoads, err = meter.Int64Counter(
		"dendrite.aggregate.loads",
		metric.WithDescription("Number of aggregate loads (factory.Load calls)"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating aggregate.loads: %w", err)
	}

	m.AggregateApplies, err = meter.Int64Counter(
		"dendrite.aggregate.applies",
		metric.WithDescription("Number of successful Aggregate.Apply calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating aggregate.applies: %w", err)
	}

	m.ConcurrencyViolations, err = meter.Int64Counter(
		"dendrite.concurrency_violations",
		metric.WithDescription("Number of ConcurrencyViolation errors raised by Apply"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating concurrency_violations: %w", err)
	}

	m.EventsReplayed, err = meter.Int64Counter(
		"dendrite.events.replayed",
		metric.WithDescription("Number of historical events replayed during Load"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events.replayed: %w", err)
	}

	return m, nil
}
