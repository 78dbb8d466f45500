// Package outbox is an optional, additive asynchronous dispatcher: it
// republishes applied events onto NATS JetStream for subscribers
// outside the process, without replacing the synchronous
// dendrite.HandlerRegistry fan-out that runs inside Instance.Apply.
// Because Redrive re-derives its publish set from EventStore.GetLogFrom,
// the outbox can always be rebuilt from the log rather than trusting an
// at-most-once in-memory publish.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/plaenen/dendrite/pkg/dendrite"
)

// Config configures the JetStream stream the dispatcher publishes to.
type Config struct {
	URL            string
	StreamName     string
	StreamSubjects []string
	MaxAge         time.Duration
	MaxBytes       int64
}

// DefaultConfig returns sensible defaults for a dendrite event stream.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		StreamName:     "DENDRITE_EVENTS",
		StreamSubjects: []string{"dendrite.>"},
		MaxAge:         7 * 24 * time.Hour,
		MaxBytes:       1024 * 1024 * 1024,
	}
}

// Dispatcher publishes dendrite events to JetStream subjects shaped
// "dendrite.<log_id>.<type_tag>".
type Dispatcher struct {
	nc         *nats.Conn
	js         nats.JetStreamContext
	streamName string
}

// message is the wire envelope published for one event. Payload stays
// as a json.RawMessage so dispatch never depends on the subscriber's
// registry having every type registered; decoding is the subscriber's
// job, via Decode.
type message struct {
	LogID       string          `json:"log_id"`
	EventID     string          `json:"event_id"`
	TypeTag     string          `json:"type_tag"`
	ShortName   string          `json:"short_name"`
	CreatedTime time.Time       `json:"created_time"`
	AppliedTime time.Time       `json:"applied_time"`
	Payload     json.RawMessage `json:"payload"`
}

// NewDispatcher connects to NATS and ensures the configured JetStream
// stream exists.
func NewDispatcher(config Config) (*Dispatcher, error) {
	nc, err := nats.Connect(config.URL)
	if err != nil {
		return nil, fmt.Errorf("outbox: connecting to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("outbox: creating jetstream context: %w", err)
	}

	d := &Dispatcher{nc: nc, js: js, streamName: config.StreamName}
	if err := d.ensureStream(config); err != nil {
		nc.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) ensureStream(config Config) error {
	streamConfig := &nats.StreamConfig{
		Name:      config.StreamName,
		Subjects:  config.StreamSubjects,
		Retention: nats.InterestPolicy,
		MaxAge:    config.MaxAge,
		MaxBytes:  config.MaxBytes,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}

	if _, err := d.js.StreamInfo(config.StreamName); err != nil {
		if _, err := d.js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("outbox: creating stream: %w", err)
		}
		return nil
	}

	if _, err := d.js.UpdateStream(streamConfig); err != nil {
		return fmt.Errorf("outbox: updating stream: %w", err)
	}
	return nil
}

// subject returns the JetStream subject for one event.
func subject(logID string, event *dendrite.Event) string {
	return fmt.Sprintf("dendrite.%s.%s", logID, event.TypeTag)
}

// Publish publishes events for logID. Publishing uses the event_id as
// the JetStream message ID, so redelivering the same event (e.g. via
// Redrive after a crash) deduplicates instead of double-publishing.
func (d *Dispatcher) Publish(ctx context.Context, logID string, events []*dendrite.Event) error {
	for _, event := range events {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return fmt.Errorf("outbox: marshaling payload for %s: %w", event.ID, err)
		}

		msg := message{
			LogID:       logID,
			EventID:     event.ID,
			TypeTag:     event.TypeTag,
			ShortName:   event.ShortName,
			CreatedTime: event.CreatedTime,
			AppliedTime: event.AppliedTime,
			Payload:     payload,
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("outbox: marshaling envelope for %s: %w", event.ID, err)
		}

		if _, err := d.js.Publish(subject(logID, event), data, nats.MsgId(event.ID)); err != nil {
			return fmt.Errorf("outbox: publishing %s: %w", event.ID, err)
		}
	}
	return nil
}

// Redrive re-reads logID's events from store starting at from and
// republishes them. Because publishing is deduplicated on event_id,
// calling Redrive over an already-published range is safe.
func Redrive(ctx context.Context, d *Dispatcher, store dendrite.EventStore, logID string, from dendrite.StartingPoint) error {
	events, err := store.GetLogFrom(ctx, logID, from)
	if err != nil {
		return fmt.Errorf("outbox: redrive fetching log: %w", err)
	}
	return d.Publish(ctx, logID, events)
}

// Close closes the underlying NATS connection.
func (d *Dispatcher) Close() {
	d.nc.Close()
}

// Handler processes one decoded event for a log.
type Handler func(logID string, event *dendrite.Event, raw json.RawMessage) error

// Subscribe creates a durable queue subscription over the subjects
// matching subjectFilter, decoding the envelope and invoking handler for
// each message. The reconstructed *dendrite.Event carries the envelope's
// ID, ShortName, TypeTag and timestamps but no Payload; handler is
// responsible for decoding raw into a concrete payload type (e.g. via
// Decode) if it needs the typed payload.
func (d *Dispatcher) Subscribe(consumerName, subjectFilter string, handler Handler) (*nats.Subscription, error) {
	sub, err := d.js.QueueSubscribe(
		subjectFilter,
		consumerName,
		func(msg *nats.Msg) {
			var env message
			if err := json.Unmarshal(msg.Data, &env); err != nil {
				msg.Nak()
				return
			}

			event := &dendrite.Event{
				ID:          env.EventID,
				ShortName:   env.ShortName,
				TypeTag:     env.TypeTag,
				CreatedTime: env.CreatedTime,
				AppliedTime: env.AppliedTime,
			}

			if err := handler(env.LogID, event, env.Payload); err != nil {
				msg.Nak()
				return
			}
			msg.Ack()
		},
		nats.Durable(consumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
	)
	if err != nil {
		return nil, fmt.Errorf("outbox: subscribing: %w", err)
	}
	return sub, nil
}

// Decode constructs a payload for tag via reg and unmarshals raw into
// it.
func Decode(reg *dendrite.Registry, tag string, raw json.RawMessage) (dendrite.EventPayload, error) {
	payload, err := reg.New(tag)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("outbox: decoding payload for %s: %w", tag, err)
	}
	return payload, nil
}
