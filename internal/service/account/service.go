// Package account implements the chart of accounts: creation with an opening
// balance, renames, balance reads and role resolution.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
)

type Repo interface {
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	AccountByName(ctx context.Context, name string) (ledger.Account, error)
}

type Writer interface {
	CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	RenameAccount(ctx context.Context, id uuid.UUID, name string) (ledger.Account, error)
}

// ChartAccount describes an account to seed.
type ChartAccount struct {
	Name         string          `yaml:"name"`
	Category     ledger.Category `yaml:"category"`
	OpeningMinor int64           `yaml:"opening_minor"`
}

// DefaultChart is the kiosk's standard chart of accounts.
func DefaultChart() []ChartAccount {
	return []ChartAccount{
		{Name: "Cash", Category: ledger.CategoryAsset},
		{Name: "OD Account", Category: ledger.CategoryAsset},
		{Name: "Bank Account", Category: ledger.CategoryAsset},
		{Name: "Revenue", Category: ledger.CategoryRevenue},
		{Name: "Expenses", Category: ledger.CategoryExpense},
	}
}

type Service interface {
	List(ctx context.Context) ([]ledger.Account, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	Create(ctx context.Context, name string, category ledger.Category, opening money.Amount) (ledger.Account, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (ledger.Account, error)
	CurrentBalance(ctx context.Context, id uuid.UUID) (money.Amount, error)
	Directory(ctx context.Context) (*Directory, error)
	Resolve(ctx context.Context, role ledger.Role) (ledger.Account, error)
	EnsureChart(ctx context.Context, chart []ChartAccount) ([]ledger.Account, error)
	Currency() string
}

type service struct {
	repo     Repo
	writer   Writer
	currency string
	bindings []Binding
	now      func() time.Time
}

// New builds the account service. A nil bindings slice uses DefaultBindings.
func New(repo Repo, writer Writer, currency string, bindings []Binding) Service {
	if bindings == nil {
		bindings = DefaultBindings()
	}
	return &service{repo: repo, writer: writer, currency: currency, bindings: bindings, now: time.Now}
}

func (s *service) Currency() string { return s.currency }

func (s *service) List(ctx context.Context) ([]ledger.Account, error) {
	return s.repo.ListAccounts(ctx)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	a, err := s.repo.GetAccount(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, fmt.Errorf("%w: %s", errs.ErrAccountNotFound, id)
	}
	return a, err
}

func (s *service) Create(ctx context.Context, name string, category ledger.Category, opening money.Amount) (ledger.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.Account{}, fmt.Errorf("%w: name is required", errs.ErrInvalid)
	}
	cat, err := ledger.ParseCategory(string(category))
	if err != nil {
		return ledger.Account{}, err
	}
	if opening.Curr().Code() != s.currency {
		return ledger.Account{}, fmt.Errorf("%w: opening balance must be in %s", errs.ErrInvalid, s.currency)
	}
	if _, err := ledger.Minor(opening); err != nil {
		return ledger.Account{}, err
	}
	if err := s.ensureNameFree(ctx, name, uuid.Nil); err != nil {
		return ledger.Account{}, err
	}
	a := ledger.Account{
		ID:        uuid.New(),
		Name:      name,
		Category:  cat,
		Opening:   opening,
		Balance:   opening,
		CreatedAt: s.now().UTC().Truncate(time.Second),
	}
	return s.writer.CreateAccount(ctx, a)
}

func (s *service) Rename(ctx context.Context, id uuid.UUID, name string) (ledger.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.Account{}, fmt.Errorf("%w: name is required", errs.ErrInvalid)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return ledger.Account{}, err
	}
	if current.Name == name {
		return current, nil
	}
	if err := s.ensureNameFree(ctx, name, id); err != nil {
		return ledger.Account{}, err
	}
	a, err := s.writer.RenameAccount(ctx, id, name)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, fmt.Errorf("%w: %s", errs.ErrAccountNotFound, id)
	}
	return a, err
}

// CurrentBalance reads the balance straight from the store.
func (s *service) CurrentBalance(ctx context.Context, id uuid.UUID) (money.Amount, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return money.Amount{}, err
	}
	return a.Balance, nil
}

func (s *service) Directory(ctx context.Context) (*Directory, error) {
	accs, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return NewDirectory(accs, s.bindings), nil
}

func (s *service) Resolve(ctx context.Context, role ledger.Role) (ledger.Account, error) {
	d, err := s.Directory(ctx)
	if err != nil {
		return ledger.Account{}, err
	}
	return d.Resolve(role)
}

// EnsureChart creates every chart account whose name is not yet taken and
// returns the full chart. Existing accounts are left untouched.
func (s *service) EnsureChart(ctx context.Context, chart []ChartAccount) ([]ledger.Account, error) {
	out := make([]ledger.Account, 0, len(chart))
	for _, c := range chart {
		existing, err := s.repo.AccountByName(ctx, strings.TrimSpace(c.Name))
		if err == nil {
			out = append(out, existing)
			continue
		}
		if !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		opening, err := ledger.FromMinor(s.currency, c.OpeningMinor)
		if err != nil {
			return nil, err
		}
		a, err := s.Create(ctx, c.Name, c.Category, opening)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", c.Name, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *service) ensureNameFree(ctx context.Context, name string, self uuid.UUID) error {
	other, err := s.repo.AccountByName(ctx, name)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID != self:
		return fmt.Errorf("%w: %q", errs.ErrDuplicateAccountName, name)
	}
	return nil
}
