// Package ledger is a worked aggregate built on pkg/dendrite: a money
// ledger whose balance is a decimal.Decimal, replayed from
// LedgerOpened/LedgerCredited/LedgerDebited events.
package ledger

import (
	"context"
	"fmt"

	"github.com/plaenen/dendrite/pkg/dendrite"
	"github.com/shopspring/decimal"
)

// LedgerOpened is the first event in every ledger's log.
type LedgerOpened struct {
	OwnerName string
	Opening   decimal.Decimal
}

// LedgerCredited records money added to the ledger.
type LedgerCredited struct {
	Amount decimal.Decimal
}

// LedgerDebited records money removed from the ledger.
type LedgerDebited struct {
	Amount decimal.Decimal
}

// LedgerClosed marks a ledger as closed; closed ledgers reject further
// credits and debits.
type LedgerClosed struct{}

// Ledger is the reduced state of a ledger's event log.
type Ledger struct {
	OwnerName string
	Balance   decimal.Decimal
	Closed    bool
}

// On implements dendrite.Reducer.
func (l *Ledger) On(event *dendrite.Event) error {
	switch p := event.Payload.(type) {
	case *LedgerOpened:
		l.OwnerName = p.OwnerName
		l.Balance = p.Opening
	case *LedgerCredited:
		l.Balance = l.Balance.Add(p.Amount)
	case *LedgerDebited:
		l.Balance = l.Balance.Sub(p.Amount)
	case *LedgerClosed:
		l.Closed = true
	}
	return nil
}

// NewRegistry returns a dendrite.Registry with every ledger event type
// registered. Callers wanting a registry shared across aggregates can
// register these tags into a larger registry instead.
func NewRegistry() *dendrite.Registry {
	reg := dendrite.NewRegistry()
	Register(reg)
	return reg
}

// Register adds the ledger event types to an existing registry.
func Register(reg *dendrite.Registry) {
	reg.Register("LedgerOpened", func() dendrite.EventPayload { return &LedgerOpened{} })
	reg.Register("LedgerCredited", func() dendrite.EventPayload { return &LedgerCredited{} })
	reg.Register("LedgerDebited", func() dendrite.EventPayload { return &LedgerDebited{} })
	reg.Register("LedgerClosed", func() dendrite.EventPayload { return &LedgerClosed{} })
}

// Open validates and emits LedgerOpened against a freshly constructed
// instance. The caller is responsible for picking the factory's
// generated log_id as the ledger's identity.
func Open(ctx context.Context, reg *dendrite.Registry, inst *dendrite.Instance[*Ledger], ownerName string, opening decimal.Decimal) error {
	if ownerName == "" {
		return fmt.Errorf("ledger: owner name is required")
	}
	if opening.IsNegative() {
		return fmt.Errorf("ledger: opening balance cannot be negative: %s", opening)
	}

	event, err := reg.Wrap(&LedgerOpened{OwnerName: ownerName, Opening: opening})
	if err != nil {
		return err
	}
	return inst.Apply(ctx, event)
}

// Credit validates and emits LedgerCredited against a loaded instance.
func Credit(ctx context.Context, reg *dendrite.Registry, inst *dendrite.Instance[*Ledger], amount decimal.Decimal) error {
	if inst.State.Closed {
		return fmt.Errorf("ledger: cannot credit a closed ledger")
	}
	if !amount.IsPositive() {
		return fmt.Errorf("ledger: credit amount must be positive: %s", amount)
	}

	event, err := reg.Wrap(&LedgerCredited{Amount: amount})
	if err != nil {
		return err
	}
	return inst.Apply(ctx, event)
}

// Debit validates and emits LedgerDebited against a loaded instance. It
// rejects a debit that would take the balance negative.
func Debit(ctx context.Context, reg *dendrite.Registry, inst *dendrite.Instance[*Ledger], amount decimal.Decimal) error {
	if inst.State.Closed {
		return fmt.Errorf("ledger: cannot debit a closed ledger")
	}
	if !amount.IsPositive() {
		return fmt.Errorf("ledger: debit amount must be positive: %s", amount)
	}
	if inst.State.Balance.LessThan(amount) {
		return fmt.Errorf("ledger: insufficient balance: have %s, need %s", inst.State.Balance, amount)
	}

	event, err := reg.Wrap(&LedgerDebited{Amount: amount})
	if err != nil {
		return err
	}
	return inst.Apply(ctx, event)
}

// Close validates and emits LedgerClosed. A ledger can only be closed
// with a zero balance.
func Close(ctx context.Context, reg *dendrite.Registry, inst *dendrite.Instance[*Ledger]) error {
	if inst.State.Closed {
		return fmt.Errorf("ledger: already closed")
	}
	if !inst.State.Balance.IsZero() {
		return fmt.Errorf("ledger: cannot close with non-zero balance: %s", inst.State.Balance)
	}

	event, err := reg.Wrap(&LedgerClosed{})
	if err != nil {
		return err
	}
	return inst.Apply(ctx, event)
}
