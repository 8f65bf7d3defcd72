// Package reconcile back-calculates historical balances from the current
// balance and the entries committed since, and manages end-of-day records.
//
//	opening(day) = current - effect(entries stamped >= start of day)
//	closing(day) = current - effect(entries stamped >  23:59:59 of day)
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
)

var daysSaved = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "daily_records_saved_total",
		Help:      "Daily records saved, by status",
	},
	[]string{"status"},
)

// Repo reads accounts and history. AccountHistory must return the account and
// its entries from one consistent state: a concurrent commit is either wholly
// reflected in both or in neither.
type Repo interface {
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	AccountHistory(ctx context.Context, accountID uuid.UUID, since time.Time, inclusive bool) (ledger.Account, []ledger.PostedEntry, error)
	GetDailyRecord(ctx context.Context, day time.Time) (ledger.DailyRecord, error)
}

type Writer interface {
	SaveDailyRecord(ctx context.Context, r ledger.DailyRecord) (ledger.DailyRecord, error)
}

// Roles resolves the default account, the one bound to the cash role.
type Roles interface {
	Resolve(ctx context.Context, role ledger.Role) (ledger.Account, error)
}

// Balances are the calculated balances of an account for one day.
type Balances struct {
	AccountID uuid.UUID
	Date      time.Time
	Opening   money.Amount
	Closing   money.Amount
	Current   money.Amount
}

// Result is a reconciliation of a day against a physical count. It is not saved.
type Result struct {
	Balances
	PhysicalCount money.Amount
	Difference    money.Amount
	Status        ledger.RecordStatus
}

// DayView is the stored record of a day, if any, next to freshly calculated balances.
type DayView struct {
	Balances
	Stored *ledger.DailyRecord
	// Status is the stored status, or PENDING when nothing was saved.
	Status ledger.RecordStatus
}

type SaveInput struct {
	Date          time.Time
	AccountID     uuid.UUID
	Opening       money.Amount
	Closing       money.Amount
	PhysicalCount money.Amount
	Difference    money.Amount
	Status        ledger.RecordStatus
	Notes         string
}

type Service interface {
	NetEffectAfter(ctx context.Context, accountID uuid.UUID, cutoff time.Time, inclusive bool) (money.Amount, error)
	Balances(ctx context.Context, day time.Time, accountID uuid.UUID) (Balances, error)
	Reconcile(ctx context.Context, day time.Time, accountID uuid.UUID, physical money.Amount) (Result, error)
	GetDailyRecord(ctx context.Context, day time.Time, accountID uuid.UUID) (DayView, error)
	SaveDailyRecord(ctx context.Context, in SaveInput) (ledger.DailyRecord, error)
	CloseDay(ctx context.Context, day time.Time, accountID uuid.UUID, physical money.Amount, notes string) (ledger.DailyRecord, error)
}

type service struct {
	repo   Repo
	writer Writer
	roles  Roles
	loc    *time.Location
	log    *slog.Logger
	now    func() time.Time
}

// New builds the service. Days are cut at midnight in loc.
func New(repo Repo, writer Writer, roles Roles, loc *time.Location, logger *slog.Logger) Service {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &service{repo: repo, writer: writer, roles: roles, loc: loc, log: logger, now: time.Now}
}

func (s *service) NetEffectAfter(ctx context.Context, accountID uuid.UUID, cutoff time.Time, inclusive bool) (money.Amount, error) {
	acc, entries, err := s.history(ctx, accountID, cutoff, inclusive)
	if err != nil {
		return money.Amount{}, err
	}
	return netEffect(acc, entries, func(time.Time) bool { return true })
}

func (s *service) Balances(ctx context.Context, day time.Time, accountID uuid.UUID) (Balances, error) {
	start, end := ledger.DayBounds(day, s.loc)
	acc, since, err := s.history(ctx, accountID, start, true)
	if err != nil {
		return Balances{}, err
	}
	fromStart, err := netEffect(acc, since, func(time.Time) bool { return true })
	if err != nil {
		return Balances{}, err
	}
	afterEnd, err := netEffect(acc, since, func(ts time.Time) bool { return ts.After(end) })
	if err != nil {
		return Balances{}, err
	}
	opening, err := acc.Balance.Sub(fromStart)
	if err != nil {
		return Balances{}, fmt.Errorf("%w: %w", errs.ErrInvalid, err)
	}
	closing, err := acc.Balance.Sub(afterEnd)
	if err != nil {
		return Balances{}, fmt.Errorf("%w: %w", errs.ErrInvalid, err)
	}
	return Balances{AccountID: acc.ID, Date: ledger.Day(start, s.loc), Opening: opening, Closing: closing, Current: acc.Balance}, nil
}

func (s *service) Reconcile(ctx context.Context, day time.Time, accountID uuid.UUID, physical money.Amount) (Result, error) {
	b, err := s.Balances(ctx, day, accountID)
	if err != nil {
		return Result{}, err
	}
	if physical.Curr() != b.Closing.Curr() {
		return Result{}, fmt.Errorf("%w: physical count must be in %s", errs.ErrInvalid, b.Closing.Curr().Code())
	}
	diff, err := physical.Sub(b.Closing)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", errs.ErrInvalid, err)
	}
	status := ledger.StatusOpen
	if diff.IsZero() {
		status = ledger.StatusClosed
	}
	return Result{Balances: b, PhysicalCount: physical, Difference: diff, Status: status}, nil
}

func (s *service) GetDailyRecord(ctx context.Context, day time.Time, accountID uuid.UUID) (DayView, error) {
	var stored *ledger.DailyRecord
	rec, err := s.repo.GetDailyRecord(ctx, day)
	switch {
	case err == nil:
		stored = &rec
		if accountID == uuid.Nil {
			accountID = rec.AccountID
		}
	case !errors.Is(err, errs.ErrNotFound):
		return DayView{}, err
	}
	b, err := s.Balances(ctx, day, accountID)
	if err != nil {
		return DayView{}, err
	}
	view := DayView{Balances: b, Stored: stored, Status: ledger.StatusPending}
	if stored != nil {
		view.Status = stored.Status
	}
	return view, nil
}

// SaveDailyRecord upserts the snapshot for in.Date. The difference must equal
// physical count minus closing balance.
func (s *service) SaveDailyRecord(ctx context.Context, in SaveInput) (ledger.DailyRecord, error) {
	status, err := ledger.ParseRecordStatus(string(in.Status))
	if err != nil {
		return ledger.DailyRecord{}, err
	}
	acc, err := s.account(ctx, in.AccountID)
	if err != nil {
		return ledger.DailyRecord{}, err
	}
	curr := acc.Balance.Curr()
	for name, a := range map[string]money.Amount{"opening": in.Opening, "closing": in.Closing, "physical_count": in.PhysicalCount, "difference": in.Difference} {
		if a.Curr() != curr {
			return ledger.DailyRecord{}, fmt.Errorf("%w: %s must be in %s", errs.ErrInvalid, name, curr.Code())
		}
	}
	want, err := in.PhysicalCount.Sub(in.Closing)
	if err != nil {
		return ledger.DailyRecord{}, fmt.Errorf("%w: %w", errs.ErrInvalid, err)
	}
	if ledger.MustMinor(want) != ledger.MustMinor(in.Difference) {
		return ledger.DailyRecord{}, fmt.Errorf("%w: difference %s does not equal physical count minus closing (%s)", errs.ErrInvalid, in.Difference, want)
	}
	rec := ledger.DailyRecord{
		Date:          ledger.Day(in.Date, time.UTC),
		AccountID:     acc.ID,
		Opening:       in.Opening,
		Closing:       in.Closing,
		PhysicalCount: in.PhysicalCount,
		Difference:    in.Difference,
		Status:        status,
		Notes:         strings.TrimSpace(in.Notes),
		UpdatedAt:     s.now().UTC().Truncate(time.Second),
	}
	saved, err := s.writer.SaveDailyRecord(ctx, rec)
	if err != nil {
		return ledger.DailyRecord{}, err
	}
	daysSaved.WithLabelValues(string(saved.Status)).Inc()
	s.log.Info("daily record saved", "date", ledger.FormatDay(saved.Date), "account_id", saved.AccountID, "status", saved.Status, "difference", saved.Difference.String())
	return saved, nil
}

// CloseDay reconciles the day and saves the result.
func (s *service) CloseDay(ctx context.Context, day time.Time, accountID uuid.UUID, physical money.Amount, notes string) (ledger.DailyRecord, error) {
	r, err := s.Reconcile(ctx, day, accountID, physical)
	if err != nil {
		return ledger.DailyRecord{}, err
	}
	return s.SaveDailyRecord(ctx, SaveInput{
		Date:          r.Date,
		AccountID:     r.AccountID,
		Opening:       r.Opening,
		Closing:       r.Closing,
		PhysicalCount: r.PhysicalCount,
		Difference:    r.Difference,
		Status:        r.Status,
		Notes:         notes,
	})
}

// history reads the account (the cash-role account when accountID is Nil)
// together with its entries since cutoff.
func (s *service) history(ctx context.Context, accountID uuid.UUID, cutoff time.Time, inclusive bool) (ledger.Account, []ledger.PostedEntry, error) {
	if accountID == uuid.Nil {
		acc, err := s.roles.Resolve(ctx, ledger.RoleCash)
		if err != nil {
			return ledger.Account{}, nil, err
		}
		accountID = acc.ID
	}
	acc, entries, err := s.repo.AccountHistory(ctx, accountID, cutoff, inclusive)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, nil, fmt.Errorf("%w: %s", errs.ErrAccountNotFound, accountID)
	}
	return acc, entries, err
}

// account loads accountID, or the cash-role account when it is Nil.
func (s *service) account(ctx context.Context, accountID uuid.UUID) (ledger.Account, error) {
	if accountID == uuid.Nil {
		return s.roles.Resolve(ctx, ledger.RoleCash)
	}
	acc, err := s.repo.GetAccount(ctx, accountID)
	if errors.Is(err, errs.ErrNotFound) {
		return ledger.Account{}, fmt.Errorf("%w: %s", errs.ErrAccountNotFound, accountID)
	}
	return acc, err
}

func netEffect(acc ledger.Account, entries []ledger.PostedEntry, include func(time.Time) bool) (money.Amount, error) {
	total := ledger.Zero(acc.Balance.Curr().Code())
	for _, e := range entries {
		if e.AccountID != acc.ID || !include(e.Timestamp) {
			continue
		}
		next, err := ledger.Apply(total, acc.Category, e.Direction, e.Amount)
		if err != nil {
			return money.Amount{}, err
		}
		total = next
	}
	return total, nil
}
