// Package report builds the kiosk dashboard from committed entries.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/service/account"
)

// TrendDays is the length of the profit trend, ending on the dashboard day.
const TrendDays = 7

type Repo interface {
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	EntriesBetween(ctx context.Context, from, to time.Time) ([]ledger.PostedEntry, error)
}

// RoleBalance is the balance of the account filling a role.
type RoleBalance struct {
	Role      ledger.Role
	AccountID uuid.UUID
	Name      string
	Balance   money.Amount
}

// ScenarioStat counts the groups of one scenario kind and their debit volume.
type ScenarioStat struct {
	Scenario ledger.ScenarioKind
	Groups   int
	Volume   money.Amount
}

type DayProfit struct {
	Date   time.Time
	Profit money.Amount
}

// Alert flags an account with a negative balance.
type Alert struct {
	AccountID uuid.UUID
	Name      string
	Balance   money.Amount
	Message   string
}

type Dashboard struct {
	Date      time.Time
	Profit    money.Amount
	Balances  []RoleBalance
	Scenarios []ScenarioStat
	Trend     []DayProfit
	Alerts    []Alert
}

type Service interface {
	Dashboard(ctx context.Context, day time.Time) (Dashboard, error)
}

type service struct {
	repo     Repo
	bindings []account.Binding
	currency string
	loc      *time.Location
}

func New(repo Repo, bindings []account.Binding, currency string, loc *time.Location) Service {
	if bindings == nil {
		bindings = account.DefaultBindings()
	}
	if loc == nil {
		loc = time.Local
	}
	return &service{repo: repo, bindings: bindings, currency: currency, loc: loc}
}

// Dashboard summarizes day. Profit is the net effect on revenue accounts
// less the net effect on expense accounts.
func (s *service) Dashboard(ctx context.Context, day time.Time) (Dashboard, error) {
	accs, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	byID := make(map[uuid.UUID]ledger.Account, len(accs))
	for _, a := range accs {
		byID[a.ID] = a
	}

	first := day.AddDate(0, 0, -(TrendDays - 1))
	from, _ := ledger.DayBounds(first, s.loc)
	_, to := ledger.DayBounds(day, s.loc)
	entries, err := s.repo.EntriesBetween(ctx, from, to)
	if err != nil {
		return Dashboard{}, err
	}

	profits := map[string]money.Amount{}
	stats := map[ledger.ScenarioKind]*scenarioAcc{}
	today := ledger.FormatDay(day)
	for _, e := range entries {
		key := ledger.FormatDay(ledger.Day(e.Timestamp, s.loc))
		acc, ok := byID[e.AccountID]
		if !ok {
			continue
		}
		if err := s.addProfit(profits, key, acc, e); err != nil {
			return Dashboard{}, err
		}
		if key == today && e.Direction == ledger.DirectionDebit {
			st := stats[e.Scenario]
			if st == nil {
				st = &scenarioAcc{groups: map[uuid.UUID]struct{}{}, volume: ledger.Zero(s.currency)}
				stats[e.Scenario] = st
			}
			st.groups[e.GroupID] = struct{}{}
			if st.volume, err = st.volume.Add(e.Amount); err != nil {
				return Dashboard{}, fmt.Errorf("%w: %w", errs.ErrInvalid, err)
			}
		}
	}

	out := Dashboard{Date: day, Profit: s.profitOn(profits, today)}
	for i := 0; i < TrendDays; i++ {
		d := first.AddDate(0, 0, i)
		out.Trend = append(out.Trend, DayProfit{Date: d, Profit: s.profitOn(profits, ledger.FormatDay(d))})
	}
	for kind, st := range stats {
		out.Scenarios = append(out.Scenarios, ScenarioStat{Scenario: kind, Groups: len(st.groups), Volume: st.volume})
	}
	sort.Slice(out.Scenarios, func(i, j int) bool { return out.Scenarios[i].Scenario < out.Scenarios[j].Scenario })

	dir := account.NewDirectory(accs, s.bindings)
	for _, role := range []ledger.Role{ledger.RoleCash, ledger.RoleSettlement, ledger.RoleBank} {
		a, err := dir.Resolve(role)
		if errors.Is(err, errs.ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return Dashboard{}, err
		}
		out.Balances = append(out.Balances, RoleBalance{Role: role, AccountID: a.ID, Name: a.Name, Balance: a.Balance})
	}
	for _, a := range accs {
		if a.Balance.IsNeg() {
			out.Alerts = append(out.Alerts, Alert{
				AccountID: a.ID,
				Name:      a.Name,
				Balance:   a.Balance,
				Message:   fmt.Sprintf("%s balance is negative (%s)", a.Name, a.Balance),
			})
		}
	}
	return out, nil
}

type scenarioAcc struct {
	groups map[uuid.UUID]struct{}
	volume money.Amount
}

func (s *service) addProfit(profits map[string]money.Amount, key string, acc ledger.Account, e ledger.PostedEntry) error {
	var sign int
	switch acc.Category {
	case ledger.CategoryRevenue:
		sign = 1
	case ledger.CategoryExpense:
		sign = -1
	default:
		return nil
	}
	eff, err := ledger.Effect(acc.Category, e.Direction, e.Amount)
	if err != nil {
		return err
	}
	if sign < 0 {
		eff = eff.Neg()
	}
	cur, ok := profits[key]
	if !ok {
		cur = ledger.Zero(s.currency)
	}
	next, err := cur.Add(eff)
	if err != nil {
		return fmt.Errorf("%w: %w", errs.ErrInvalid, err)
	}
	profits[key] = next
	return nil
}

func (s *service) profitOn(profits map[string]money.Amount, key string) money.Amount {
	if p, ok := profits[key]; ok {
		return p
	}
	return ledger.Zero(s.currency)
}
