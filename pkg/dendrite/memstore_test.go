package dendrite_test

import (
	"context"
	"testing"
	"time"

	"github.com/plaenen/dendrite/pkg/dendrite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreEmptyLog(t *testing.T) {
	store := dendrite.NewInMemoryStore()
	events, err := store.GetLog(context.Background(), "missing-log")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestInMemoryStoreFirstWriteCreatesMetadata(t *testing.T) {
	ctx := context.Background()
	store := dendrite.NewInMemoryStore()

	event := &dendrite.Event{ShortName: "Created"}
	require.NoError(t, store.Apply(ctx, "log-1", event, nil))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.AppliedTime.IsZero())

	// A second "expected nil" write must fail: metadata already exists.
	second := &dendrite.Event{ShortName: "Created"}
	err := store.Apply(ctx, "log-1", second, nil)
	require.Error(t, err)
	var cv *dendrite.ConcurrencyViolation
	assert.ErrorAs(t, err, &cv)
}

func TestInMemoryStoreConditionalWrite(t *testing.T) {
	ctx := context.Background()
	store := dendrite.NewInMemoryStore()

	first := &dendrite.Event{ShortName: "Created"}
	require.NoError(t, store.Apply(ctx, "log-1", first, nil))

	// Wrong expected value: fails with ConcurrencyViolation.
	wrong := "not-the-real-id"
	second := &dendrite.Event{ShortName: "Credited"}
	err := store.Apply(ctx, "log-1", second, &wrong)
	require.Error(t, err)
	assert.ErrorIs(t, err, dendrite.ErrConcurrencyViolation)

	// Correct expected value: succeeds.
	third := &dendrite.Event{ShortName: "Credited"}
	require.NoError(t, store.Apply(ctx, "log-1", third, &first.ID))

	events, err := store.GetLog(ctx, "log-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Less(t, events[0].ID, events[1].ID)
}

func TestInMemoryStoreGetLogFrom(t *testing.T) {
	ctx := context.Background()
	store := dendrite.NewInMemoryStore()

	first := &dendrite.Event{ShortName: "Created"}
	require.NoError(t, store.Apply(ctx, "log-1", first, nil))
	second := &dendrite.Event{ShortName: "Credited"}
	require.NoError(t, store.Apply(ctx, "log-1", second, &first.ID))

	afterFirst, err := store.GetLogFrom(ctx, "log-1", dendrite.AfterEvent(first.ID))
	require.NoError(t, err)
	require.Len(t, afterFirst, 1)
	assert.Equal(t, second.ID, afterFirst[0].ID)

	future := second.AppliedTime.Add(time.Hour)
	empty, err := store.GetLogFrom(ctx, "log-1", dendrite.FromTime(future))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSingleLogStoreRejectsOtherLogs(t *testing.T) {
	ctx := context.Background()
	store := dendrite.NewSingleLogStore("log-1")

	event := &dendrite.Event{ShortName: "Created"}
	require.NoError(t, store.Apply(ctx, "log-1", event, nil))

	_, err := store.GetLog(ctx, "log-2")
	assert.Error(t, err)
}
