package ledger

import (
	"sync"

	"github.com/plaenen/dendrite/pkg/dendrite"
	"github.com/shopspring/decimal"
)

// BalanceView is a denormalized read model for one ledger's current
// balance, kept up to date via synchronous handler fan-out instead of a
// relational projection table. Register it against the events it cares
// about with a *dendrite.HandlerRegistry shared by the ledger's
// AggregateFactory.
type BalanceView struct {
	mu      sync.RWMutex
	balance decimal.Decimal
	closed  bool
}

// NewBalanceView returns an empty view; call Register to wire it to a
// HandlerRegistry before applying events through the owning factory.
func NewBalanceView() *BalanceView {
	return &BalanceView{}
}

// Register subscribes the view to every ledger event type it cares
// about.
func (v *BalanceView) Register(handlers *dendrite.HandlerRegistry) {
	handlers.On(&LedgerOpened{}, dendrite.EventHandlerFunc(v.handle))
	handlers.On(&LedgerCredited{}, dendrite.EventHandlerFunc(v.handle))
	handlers.On(&LedgerDebited{}, dendrite.EventHandlerFunc(v.handle))
	handlers.On(&LedgerClosed{}, dendrite.EventHandlerFunc(v.handle))
}

func (v *BalanceView) handle(events []*dendrite.Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, event := range events {
		switch p := event.Payload.(type) {
		case *LedgerOpened:
			v.balance = p.Opening
		case *LedgerCredited:
			v.balance = v.balance.Add(p.Amount)
		case *LedgerDebited:
			v.balance = v.balance.Sub(p.Amount)
		case *LedgerClosed:
			v.closed = true
		}
	}
	return nil
}

// Balance returns the current balance snapshot.
func (v *BalanceView) Balance() decimal.Decimal {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.balance
}

// Closed reports whether the ledger has been closed.
func (v *BalanceView) Closed() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.closed
}
