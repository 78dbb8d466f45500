package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/plaenen/dendrite/pkg/dendrite"
	embeddednats "github.com/plaenen/dendrite/pkg/infrastructure/nats"
	"github.com/plaenen/dendrite/pkg/ledger"
	"github.com/plaenen/dendrite/pkg/outbox"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDispatcher(t *testing.T) (*embeddednats.EmbeddedServer, *outbox.Dispatcher) {
	t.Helper()
	srv, err := embeddednats.StartEmbeddedServer()
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	config := outbox.DefaultConfig()
	config.URL = srv.URL()
	d, err := outbox.NewDispatcher(config)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	return srv, d
}

func TestPublishAndRedriveDeduplicate(t *testing.T) {
	ctx := context.Background()
	_, d := startDispatcher(t)

	store := dendrite.NewInMemoryStore()
	reg := ledger.NewRegistry()
	factory := dendrite.NewAggregateFactory(store, nil, func() *ledger.Ledger { return &ledger.Ledger{} })

	inst := factory.New(ctx)
	require.NoError(t, ledger.Open(ctx, reg, inst, "Ada Lovelace", decimal.NewFromInt(100)))
	require.NoError(t, ledger.Credit(ctx, reg, inst, decimal.NewFromInt(25)))

	events, err := store.GetLog(ctx, inst.LogID())
	require.NoError(t, err)
	require.NoError(t, d.Publish(ctx, inst.LogID(), events))

	// Redriving the same range republishes, but JetStream dedupes by
	// event_id, so subscribers see each event exactly once.
	require.NoError(t, outbox.Redrive(ctx, d, store, inst.LogID(), dendrite.FromTime(time.Unix(0, 0))))

	received := make(chan string, len(events)*2)
	sub, err := d.Subscribe("ledger-view", "dendrite."+inst.LogID()+".>", func(logID string, event *dendrite.Event, raw json.RawMessage) error {
		received <- event.ID
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	seen := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(seen) < len(events) {
		select {
		case id := <-received:
			assert.False(t, seen[id], "event %s delivered more than once", id)
			seen[id] = true
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d of %d", len(seen), len(events))
		}
	}
	assert.Len(t, seen, len(events))
}

func TestDecodeReconstructsTypedPayload(t *testing.T) {
	reg := ledger.NewRegistry()
	event, err := reg.Wrap(&ledger.LedgerCredited{Amount: decimal.NewFromInt(42)})
	require.NoError(t, err)

	raw, err := json.Marshal(event.Payload)
	require.NoError(t, err)

	payload, err := outbox.Decode(reg, "LedgerCredited", raw)
	require.NoError(t, err)

	credited, ok := payload.(*ledger.LedgerCredited)
	require.True(t, ok)
	assert.True(t, credited.Amount.Equal(decimal.NewFromInt(42)))
}
