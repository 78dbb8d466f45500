package familyaccount_test

import (
	"context"
	"testing"

	"github.com/plaenen/dendrite/pkg/dendrite"
	"github.com/plaenen/dendrite/pkg/familyaccount"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFactory(handlers *dendrite.HandlerRegistry) *dendrite.AggregateFactory[*familyaccount.FamilyAccount] {
	store := dendrite.NewInMemoryStore()
	return dendrite.NewAggregateFactory(store, handlers, func() *familyaccount.FamilyAccount { return &familyaccount.FamilyAccount{} })
}

func TestOpenRejectsInvalidEmail(t *testing.T) {
	ctx := context.Background()
	reg := familyaccount.NewRegistry()
	factory := newFactory(nil)

	inst := factory.New(ctx)
	err := familyaccount.Open(ctx, reg, inst, "not-an-email")
	require.Error(t, err)
	assert.Equal(t, "", inst.LastEventID())
}

func TestOpenAddMemberPayAllowance(t *testing.T) {
	ctx := context.Background()
	reg := familyaccount.NewRegistry()
	factory := newFactory(nil)

	inst := factory.New(ctx)
	require.NoError(t, familyaccount.Open(ctx, reg, inst, "guardian@example.com"))
	require.NoError(t, familyaccount.AddMember(ctx, reg, inst, "m1", "Riley"))
	require.NoError(t, familyaccount.PayAllowance(ctx, reg, inst, "m1", decimal.NewFromInt(20)))
	require.NoError(t, familyaccount.PayAllowance(ctx, reg, inst, "m1", decimal.NewFromInt(10)))

	member, ok := inst.State.Members["m1"]
	require.True(t, ok)
	assert.True(t, member.AllowancePaid.Equal(decimal.NewFromInt(30)))

	reloaded, err := factory.Load(ctx, inst.LogID())
	require.NoError(t, err)
	reloadedMember, ok := reloaded.State.Members["m1"]
	require.True(t, ok)
	assert.True(t, reloadedMember.AllowancePaid.Equal(decimal.NewFromInt(30)))
}

func TestPayAllowanceRejectsUnknownMember(t *testing.T) {
	ctx := context.Background()
	reg := familyaccount.NewRegistry()
	factory := newFactory(nil)

	inst := factory.New(ctx)
	require.NoError(t, familyaccount.Open(ctx, reg, inst, "guardian@example.com"))

	err := familyaccount.PayAllowance(ctx, reg, inst, "ghost", decimal.NewFromInt(5))
	require.Error(t, err)
}

func TestRemoveMemberDropsFromState(t *testing.T) {
	ctx := context.Background()
	reg := familyaccount.NewRegistry()
	factory := newFactory(nil)

	inst := factory.New(ctx)
	require.NoError(t, familyaccount.Open(ctx, reg, inst, "guardian@example.com"))
	require.NoError(t, familyaccount.AddMember(ctx, reg, inst, "m1", "Riley"))
	require.NoError(t, familyaccount.RemoveMember(ctx, reg, inst, "m1"))

	_, ok := inst.State.Members["m1"]
	assert.False(t, ok)
}

// Handlers registered for different event types must each see only
// their own type, and run in the order multiple handlers were
// registered for the same type.
func TestHandlerFanoutAcrossEventTypes(t *testing.T) {
	ctx := context.Background()
	reg := familyaccount.NewRegistry()

	var opened, added, paid, removed int
	var order []string

	handlers := dendrite.NewHandlerRegistry()
	handlers.On(&familyaccount.FamilyAccountOpened{}, dendrite.EventHandlerFunc(func(events []*dendrite.Event) error {
		opened++
		order = append(order, "opened")
		return nil
	}))
	handlers.On(&familyaccount.MemberAdded{}, dendrite.EventHandlerFunc(func(events []*dendrite.Event) error {
		added++
		order = append(order, "added-1")
		return nil
	}))
	handlers.On(&familyaccount.MemberAdded{}, dendrite.EventHandlerFunc(func(events []*dendrite.Event) error {
		order = append(order, "added-2")
		return nil
	}))
	handlers.On(&familyaccount.AllowancePaid{}, dendrite.EventHandlerFunc(func(events []*dendrite.Event) error {
		paid++
		order = append(order, "paid")
		return nil
	}))
	handlers.On(&familyaccount.MemberRemoved{}, dendrite.EventHandlerFunc(func(events []*dendrite.Event) error {
		removed++
		order = append(order, "removed")
		return nil
	}))

	factory := newFactory(handlers)
	inst := factory.New(ctx)
	require.NoError(t, familyaccount.Open(ctx, reg, inst, "guardian@example.com"))
	require.NoError(t, familyaccount.AddMember(ctx, reg, inst, "m1", "Riley"))
	require.NoError(t, familyaccount.PayAllowance(ctx, reg, inst, "m1", decimal.NewFromInt(20)))
	require.NoError(t, familyaccount.RemoveMember(ctx, reg, inst, "m1"))

	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, paid)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"opened", "added-1", "added-2", "paid", "removed"}, order)

	// Replaying the log must not re-invoke any handler.
	_, err := factory.Load(ctx, inst.LogID())
	require.NoError(t, err)
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, removed)
}
