// Package familyaccount is a second worked aggregate built on
// pkg/dendrite: a shared family account with a guardian and zero or
// more members who can receive allowance payments.
package familyaccount

import (
	"context"
	"fmt"

	"github.com/asaskevich/govalidator"
	"github.com/plaenen/dendrite/pkg/dendrite"
	"github.com/shopspring/decimal"
)

// FamilyAccountOpened is the first event in every family account's log.
type FamilyAccountOpened struct {
	GuardianEmail string
}

// MemberAdded records a member joining the family account.
type MemberAdded struct {
	MemberID string
	Name     string
}

// AllowancePaid records an allowance payment to a member.
type AllowancePaid struct {
	MemberID string
	Amount   decimal.Decimal
}

// MemberRemoved records a member leaving the family account.
type MemberRemoved struct {
	MemberID string
}

// Member is a family account member as reduced from the event log.
type Member struct {
	Name          string
	AllowancePaid decimal.Decimal
}

// FamilyAccount is the reduced state of a family account's event log.
type FamilyAccount struct {
	GuardianEmail string
	Members       map[string]*Member
}

// On implements dendrite.Reducer.
func (f *FamilyAccount) On(event *dendrite.Event) error {
	if f.Members == nil {
		f.Members = make(map[string]*Member)
	}

	switch p := event.Payload.(type) {
	case *FamilyAccountOpened:
		f.GuardianEmail = p.GuardianEmail
	case *MemberAdded:
		f.Members[p.MemberID] = &Member{Name: p.Name}
	case *AllowancePaid:
		if m, ok := f.Members[p.MemberID]; ok {
			m.AllowancePaid = m.AllowancePaid.Add(p.Amount)
		}
	case *MemberRemoved:
		delete(f.Members, p.MemberID)
	}
	return nil
}

// NewRegistry returns a dendrite.Registry with every family account
// event type registered.
func NewRegistry() *dendrite.Registry {
	reg := dendrite.NewRegistry()
	Register(reg)
	return reg
}

// Register adds the family account event types to an existing
// registry.
func Register(reg *dendrite.Registry) {
	reg.Register("FamilyAccountOpened", func() dendrite.EventPayload { return &FamilyAccountOpened{} })
	reg.Register("MemberAdded", func() dendrite.EventPayload { return &MemberAdded{} })
	reg.Register("AllowancePaid", func() dendrite.EventPayload { return &AllowancePaid{} })
	reg.Register("MemberRemoved", func() dendrite.EventPayload { return &MemberRemoved{} })
}

// Open validates the guardian's email and emits FamilyAccountOpened.
func Open(ctx context.Context, reg *dendrite.Registry, inst *dendrite.Instance[*FamilyAccount], guardianEmail string) error {
	if guardianEmail == "" {
		return fmt.Errorf("familyaccount: guardian email is required")
	}
	if !govalidator.IsEmail(guardianEmail) {
		return fmt.Errorf("familyaccount: %q is not a valid email address", guardianEmail)
	}

	event, err := reg.Wrap(&FamilyAccountOpened{GuardianEmail: guardianEmail})
	if err != nil {
		return err
	}
	return inst.Apply(ctx, event)
}

// AddMember validates and emits MemberAdded.
func AddMember(ctx context.Context, reg *dendrite.Registry, inst *dendrite.Instance[*FamilyAccount], memberID, name string) error {
	if memberID == "" {
		return fmt.Errorf("familyaccount: member id is required")
	}
	if name == "" {
		return fmt.Errorf("familyaccount: member name is required")
	}
	if _, exists := inst.State.Members[memberID]; exists {
		return fmt.Errorf("familyaccount: member %q already exists", memberID)
	}

	event, err := reg.Wrap(&MemberAdded{MemberID: memberID, Name: name})
	if err != nil {
		return err
	}
	return inst.Apply(ctx, event)
}

// PayAllowance validates and emits AllowancePaid for an existing member.
func PayAllowance(ctx context.Context, reg *dendrite.Registry, inst *dendrite.Instance[*FamilyAccount], memberID string, amount decimal.Decimal) error {
	if _, exists := inst.State.Members[memberID]; !exists {
		return fmt.Errorf("familyaccount: member %q does not exist", memberID)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("familyaccount: allowance amount must be positive: %s", amount)
	}

	event, err := reg.Wrap(&AllowancePaid{MemberID: memberID, Amount: amount})
	if err != nil {
		return err
	}
	return inst.Apply(ctx, event)
}

// RemoveMember validates and emits MemberRemoved.
func RemoveMember(ctx context.Context, reg *dendrite.Registry, inst *dendrite.Instance[*FamilyAccount], memberID string) error {
	if _, exists := inst.State.Members[memberID]; !exists {
		return fmt.Errorf("familyaccount: member %q does not exist", memberID)
	}

	event, err := reg.Wrap(&MemberRemoved{MemberID: memberID})
	if err != nil {
		return err
	}
	return inst.Apply(ctx, event)
}
