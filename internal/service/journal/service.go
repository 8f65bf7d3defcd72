// Package journal validates and commits transaction groups, compiles scenarios
// into groups and serves the group history.
package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/events"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/meta"
	"github.com/tinoosan/kiosk-ledger/internal/scenario"
	"github.com/tinoosan/kiosk-ledger/internal/service/account"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Repo defines read operations needed by the service.
type Repo interface {
	AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
	ListGroups(ctx context.Context, f ledger.GroupFilter) ([]ledger.TransactionGroup, int, error)
	GetGroup(ctx context.Context, id uuid.UUID) (ledger.TransactionGroup, error)
}

// Writer commits a group and its balance effects as one unit. It reports
// true when an idempotency key matched an earlier commit.
type Writer interface {
	CommitGroup(ctx context.Context, g ledger.TransactionGroup) (ledger.TransactionGroup, bool, error)
}

// Directories supplies the current role directory.
type Directories interface {
	Directory(ctx context.Context) (*account.Directory, error)
}

// GroupInput is a caller-built group. Zero Timestamp means now; zero Date
// means the day of Timestamp.
type GroupInput struct {
	Scenario       ledger.ScenarioKind
	Date           time.Time
	Timestamp      time.Time
	CustomerName   string
	Description    string
	IdempotencyKey string
	Metadata       meta.Metadata
	Entries        []ledger.Entry
}

// ScenarioInput asks for a scenario to be compiled and committed.
type ScenarioInput struct {
	Kind           ledger.ScenarioKind
	Params         scenario.Params
	Date           time.Time
	Timestamp      time.Time
	CustomerName   string
	Description    string
	IdempotencyKey string
}

// CommitResult is returned by commits.
type CommitResult struct {
	Group ledger.TransactionGroup
	// Replayed is set when the idempotency key matched an earlier commit.
	Replayed bool
}

// GroupPage is one page of groups with the unpaged total.
type GroupPage struct {
	Groups []ledger.TransactionGroup
	Total  int
	Limit  int
	Offset int
}

type Service interface {
	ValidateGroup(ctx context.Context, in GroupInput) error
	CommitGroup(ctx context.Context, in GroupInput) (CommitResult, error)
	CompileScenario(ctx context.Context, kind ledger.ScenarioKind, params scenario.Params) (scenario.Compiled, error)
	RecordScenario(ctx context.Context, in ScenarioInput) (CommitResult, error)
	ListGroups(ctx context.Context, f ledger.GroupFilter) (GroupPage, error)
	GetGroup(ctx context.Context, id uuid.UUID) (ledger.TransactionGroup, error)
	GroupEntries(ctx context.Context, id uuid.UUID) ([]ledger.Entry, error)
}

// Options carries the collaborators of the service. Publisher, Logger,
// Location and Clock fall back to no-op, discard, Local and time.Now.
type Options struct {
	Accounts  Directories
	Compiler  *scenario.Compiler
	Publisher events.Publisher
	Logger    *slog.Logger
	Location  *time.Location
	Clock     func() time.Time
}

type service struct {
	repo     Repo
	writer   Writer
	accounts Directories
	compiler *scenario.Compiler
	pub      events.Publisher
	log      *slog.Logger
	loc      *time.Location
	now      func() time.Time
}

func New(repo Repo, writer Writer, opts Options) Service {
	s := &service{
		repo:     repo,
		writer:   writer,
		accounts: opts.Accounts,
		compiler: opts.Compiler,
		pub:      opts.Publisher,
		log:      opts.Logger,
		loc:      opts.Location,
		now:      opts.Clock,
	}
	if s.pub == nil {
		s.pub = events.Nop{}
	}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ValidateGroup runs every check a commit performs before touching storage.
func (s *service) ValidateGroup(ctx context.Context, in GroupInput) error {
	if len(in.Entries) == 0 {
		return errs.ErrNoEntries
	}
	currency := s.compiler.Currency()
	ids := make([]uuid.UUID, 0, len(in.Entries))
	var debits, credits int64
	for i, e := range in.Entries {
		if e.AccountID == uuid.Nil {
			return fieldErr(i, "account_id required")
		}
		if e.Amount.Curr().Code() != currency {
			return fieldErr(i, "amount must be in "+currency)
		}
		units, err := ledger.Minor(e.Amount)
		if err != nil {
			return fieldErr(i, err.Error())
		}
		if units <= 0 {
			return fieldErr(i, "amount must be > 0")
		}
		switch e.Direction {
		case ledger.DirectionDebit:
			if debits, err = addUnits(debits, units); err != nil {
				return fieldErr(i, err.Error())
			}
		case ledger.DirectionCredit:
			if credits, err = addUnits(credits, units); err != nil {
				return fieldErr(i, err.Error())
			}
		default:
			return fieldErr(i, "direction must be DEBIT or CREDIT")
		}
		ids = append(ids, e.AccountID)
	}
	if debits != credits {
		return fmt.Errorf("%w: debits %d != credits %d", errs.ErrUnbalancedGroup, debits, credits)
	}
	if err := in.Metadata.Validate(); err != nil {
		return err
	}
	found, err := s.repo.AccountsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return fmt.Errorf("%w: %s", errs.ErrAccountNotFound, id)
		}
	}
	return nil
}

func (s *service) CommitGroup(ctx context.Context, in GroupInput) (CommitResult, error) {
	if in.Scenario == "" {
		in.Scenario = ledger.KindManual
	}
	if err := s.ValidateGroup(ctx, in); err != nil {
		commitFailures.WithLabelValues(failureReason(err)).Inc()
		return CommitResult{}, err
	}
	g := s.buildGroup(in)
	stored, replayed, err := s.writer.CommitGroup(ctx, g)
	if err != nil {
		commitFailures.WithLabelValues(failureReason(err)).Inc()
		s.log.Error("commit group failed", "scenario", g.Scenario, "group_id", g.ID, "err", err)
		return CommitResult{}, err
	}
	if replayed {
		s.log.Info("idempotent replay", "group_id", stored.ID, "idempotency_key", g.IdempotencyKey)
		return CommitResult{Group: stored, Replayed: true}, nil
	}
	groupsCommitted.WithLabelValues(string(stored.Scenario)).Inc()
	s.log.Info("group committed", "group_id", stored.ID, "scenario", stored.Scenario, "entries", len(stored.Entries))
	if err := s.pub.Publish(ctx, events.NewGroupCommitted(stored)); err != nil {
		s.log.Warn("publish group committed failed", "group_id", stored.ID, "err", err)
	}
	return CommitResult{Group: stored}, nil
}

func (s *service) CompileScenario(ctx context.Context, kind ledger.ScenarioKind, params scenario.Params) (scenario.Compiled, error) {
	dir, err := s.accounts.Directory(ctx)
	if err != nil {
		return scenario.Compiled{}, err
	}
	out, err := s.compiler.Compile(kind, params, dir)
	if errors.Is(err, errs.ErrUnknownScenarioKind) {
		s.log.Error("unknown scenario kind", "kind", kind, "err", err)
	}
	return out, err
}

// RecordScenario compiles the scenario and commits the result, recording the
// inputs in the group metadata.
func (s *service) RecordScenario(ctx context.Context, in ScenarioInput) (CommitResult, error) {
	compiled, err := s.CompileScenario(ctx, in.Kind, in.Params)
	if err != nil {
		return CommitResult{}, err
	}
	md := meta.New(nil)
	if err := md.Set(meta.KeyScenarioLabel, compiled.Label); err != nil {
		return CommitResult{}, err
	}
	scale, _ := ledger.Scale(s.compiler.Currency())
	for name, units := range compiled.Inputs {
		v := decimal.New(units, -int32(scale)).StringFixed(int32(scale))
		if err := md.Set(meta.ParamPrefix+name, v); err != nil {
			return CommitResult{}, err
		}
	}
	desc := in.Description
	if desc == "" {
		desc = compiled.Label
	}
	return s.CommitGroup(ctx, GroupInput{
		Scenario:       compiled.Kind,
		Date:           in.Date,
		Timestamp:      in.Timestamp,
		CustomerName:   in.CustomerName,
		Description:    desc,
		IdempotencyKey: in.IdempotencyKey,
		Metadata:       md,
		Entries:        compiled.Entries,
	})
}

func (s *service) ListGroups(ctx context.Context, f ledger.GroupFilter) (GroupPage, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		return GroupPage{}, fmt.Errorf("%w: offset must be >= 0", errs.ErrInvalid)
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return GroupPage{}, fmt.Errorf("%w: from is after to", errs.ErrInvalid)
	}
	groups, total, err := s.repo.ListGroups(ctx, f)
	if err != nil {
		return GroupPage{}, err
	}
	return GroupPage{Groups: groups, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (s *service) GetGroup(ctx context.Context, id uuid.UUID) (ledger.TransactionGroup, error) {
	return s.repo.GetGroup(ctx, id)
}

func (s *service) GroupEntries(ctx context.Context, id uuid.UUID) ([]ledger.Entry, error) {
	g, err := s.repo.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	return g.Entries, nil
}

func (s *service) buildGroup(in GroupInput) ledger.TransactionGroup {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	ts = ts.Truncate(time.Second)
	date := in.Date
	if date.IsZero() {
		date = ledger.Day(ts, s.loc)
	} else {
		date = ledger.Day(date, time.UTC)
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	entries := make([]ledger.Entry, len(in.Entries))
	for i, e := range in.Entries {
		e.ID = uuid.New()
		e.GroupID = id
		entries[i] = e
	}
	g := ledger.TransactionGroup{
		ID:             id,
		Scenario:       in.Scenario,
		Date:           date,
		Timestamp:      ts,
		CustomerName:   strings.TrimSpace(in.CustomerName),
		Description:    in.Description,
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
		Metadata:       in.Metadata.Clone(),
		Entries:        entries,
	}
	if g.IdempotencyKey != "" {
		g.Fingerprint = fingerprint(in)
	}
	return g
}

// fingerprint hashes the caller-supplied payload of a group, including an
// explicit timestamp at second precision. Generated ids and defaulted times
// are excluded.
func fingerprint(in GroupInput) string {
	var b strings.Builder
	day := ""
	if !in.Date.IsZero() {
		day = ledger.FormatDay(ledger.Day(in.Date, time.UTC))
	}
	ts := ""
	if !in.Timestamp.IsZero() {
		ts = fmt.Sprint(in.Timestamp.Truncate(time.Second).Unix())
	}
	md, _ := in.Metadata.MarshalStableJSON()
	fmt.Fprintf(&b, "%s|%s|%s|%s|%s|%s\n", in.Scenario, day, ts, strings.TrimSpace(in.CustomerName), in.Description, md)
	lines := make([]string, 0, len(in.Entries))
	for _, e := range in.Entries {
		lines = append(lines, fmt.Sprintf("%s|%s|%d|%s", e.AccountID, e.Direction, ledger.MustMinor(e.Amount), e.Description))
	}
	sort.Strings(lines)
	b.WriteString(strings.Join(lines, "\n"))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// addUnits sums positive minor units, failing instead of wrapping.
func addUnits(total, units int64) (int64, error) {
	if units > math.MaxInt64-total {
		return 0, errors.New("amounts total out of range")
	}
	return total + units, nil
}

func fieldErr(i int, msg string) error {
	return fmt.Errorf("%w: entries[%d]: %s", errs.ErrInvalid, i, msg)
}

func failureReason(err error) string {
	for _, e := range []error{
		errs.ErrNoEntries, errs.ErrUnbalancedGroup, errs.ErrAccountNotFound,
		errs.ErrConflict, errs.ErrStorage, errs.ErrInvalid,
	} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return "other"
}
