package account

import (
	"fmt"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
)

// Binding maps a role to the account name that fills it. When no account has
// that name, the first account of Fallback category is used, if set.
type Binding struct {
	Role     ledger.Role     `yaml:"role" json:"role"`
	Name     string          `yaml:"name" json:"name"`
	Fallback ledger.Category `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// DefaultBindings is the kiosk chart's role layout.
func DefaultBindings() []Binding {
	return []Binding{
		{Role: ledger.RoleCash, Name: "Cash", Fallback: ledger.CategoryAsset},
		{Role: ledger.RoleSettlement, Name: "OD Account"},
		{Role: ledger.RoleBank, Name: "Bank Account"},
		{Role: ledger.RoleRevenue, Name: "Revenue", Fallback: ledger.CategoryRevenue},
		{Role: ledger.RoleExpense, Name: "Expenses", Fallback: ledger.CategoryExpense},
	}
}

// Directory is a point-in-time view of the chart that resolves roles.
// It satisfies scenario.Resolver.
type Directory struct {
	accounts []ledger.Account
	bindings map[ledger.Role]Binding
}

// NewDirectory indexes accounts, in the order given, under bindings.
func NewDirectory(accounts []ledger.Account, bindings []Binding) *Directory {
	d := &Directory{accounts: accounts, bindings: make(map[ledger.Role]Binding, len(bindings))}
	for _, b := range bindings {
		d.bindings[b.Role] = b
	}
	return d
}

// Resolve returns the account bound to role: exact name first, then category.
// A role without a binding is looked up by its own name, and by category when
// the role itself names one.
func (d *Directory) Resolve(role ledger.Role) (ledger.Account, error) {
	b, ok := d.bindings[role]
	if !ok {
		b = Binding{Role: role, Name: string(role)}
		if c, err := ledger.ParseCategory(string(role)); err == nil {
			b.Fallback = c
		}
	}
	if a, ok := d.ByName(b.Name); ok {
		return a, nil
	}
	if b.Fallback != "" {
		for _, a := range d.accounts {
			if a.Category == b.Fallback {
				return a, nil
			}
		}
	}
	return ledger.Account{}, fmt.Errorf("%w: no account for role %q", errs.ErrAccountNotFound, role)
}

// ByName finds an account by exact name.
func (d *Directory) ByName(name string) (ledger.Account, bool) {
	for _, a := range d.accounts {
		if a.Name == name {
			return a, true
		}
	}
	return ledger.Account{}, false
}

// Accounts returns the accounts the directory was built with.
func (d *Directory) Accounts() []ledger.Account { return d.accounts }
