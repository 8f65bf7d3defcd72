package journal_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/events"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/meta"
	"github.com/tinoosan/kiosk-ledger/internal/scenario"
	"github.com/tinoosan/kiosk-ledger/internal/service/account"
	"github.com/tinoosan/kiosk-ledger/internal/service/journal"
	"github.com/tinoosan/kiosk-ledger/internal/storage/memory"
)

type fixture struct {
	svc      journal.Service
	accounts account.Service
	store    *memory.Store
	events   *events.Recorder
	chart    map[string]ledger.Account
	now      time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	accts := account.New(store, store, "INR", nil)
	chart, err := accts.EnsureChart(context.Background(), account.DefaultChart())
	require.NoError(t, err)
	compiler, err := scenario.NewCompiler("INR")
	require.NoError(t, err)
	f := &fixture{
		accounts: accts,
		store:    store,
		events:   &events.Recorder{},
		chart:    map[string]ledger.Account{},
		now:      time.Date(2024, 3, 1, 10, 15, 30, 0, time.UTC),
	}
	for _, a := range chart {
		f.chart[a.Name] = a
	}
	f.svc = journal.New(store, store, journal.Options{
		Accounts:  accts,
		Compiler:  compiler,
		Publisher: f.events,
		Location:  time.UTC,
		Clock:     func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) balance(t *testing.T, name string) int64 {
	t.Helper()
	bal, err := f.accounts.CurrentBalance(context.Background(), f.chart[name].ID)
	require.NoError(t, err)
	return ledger.MustMinor(bal)
}

func inr(t *testing.T, units int64) money.Amount {
	t.Helper()
	a, err := ledger.FromMinor("INR", units)
	require.NoError(t, err)
	return a
}

func (f *fixture) entry(t *testing.T, name string, d ledger.Direction, units int64) ledger.Entry {
	return ledger.Entry{AccountID: f.chart[name].ID, Direction: d, Amount: inr(t, units)}
}

func params(kv ...string) scenario.Params {
	p := scenario.Params{}
	for i := 0; i+1 < len(kv); i += 2 {
		p[kv[i]] = decimal.RequireFromString(kv[i+1])
	}
	return p
}

func TestCommitGroup_Manual(t *testing.T) {
	f := setup(t)
	res, err := f.svc.CommitGroup(context.Background(), journal.GroupInput{
		Description: "float top-up",
		Entries: []ledger.Entry{
			f.entry(t, "Cash", ledger.DirectionDebit, 20000),
			f.entry(t, "Bank Account", ledger.DirectionCredit, 20000),
		},
	})
	require.NoError(t, err)
	g := res.Group
	assert.False(t, res.Replayed)
	assert.Equal(t, ledger.KindManual, g.Scenario)
	assert.Equal(t, uuid.Version(7), g.ID.Version())
	assert.Equal(t, "2024-03-01", ledger.FormatDay(g.Date))
	assert.True(t, g.Timestamp.Equal(f.now))
	for _, e := range g.Entries {
		assert.Equal(t, g.ID, e.GroupID)
		assert.NotEqual(t, uuid.Nil, e.ID)
	}
	assert.Equal(t, int64(20000), f.balance(t, "Cash"))
	assert.Equal(t, int64(-20000), f.balance(t, "Bank Account"))

	evs := f.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, g.ID, evs[0].GroupID)
	assert.Len(t, evs[0].Entries, 2)
}

func TestCommitGroup_Rejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cases := []struct {
		name    string
		entries []ledger.Entry
		md      meta.Metadata
		want    error
	}{
		{"no entries", nil, nil, errs.ErrNoEntries},
		{"unbalanced", []ledger.Entry{
			f.entry(t, "Cash", ledger.DirectionDebit, 100),
			f.entry(t, "Revenue", ledger.DirectionCredit, 90),
		}, nil, errs.ErrUnbalancedGroup},
		{"zero amount", []ledger.Entry{
			f.entry(t, "Cash", ledger.DirectionDebit, 0),
			f.entry(t, "Revenue", ledger.DirectionCredit, 0),
		}, nil, errs.ErrInvalid},
		{"negative amount", []ledger.Entry{
			f.entry(t, "Cash", ledger.DirectionDebit, -100),
			f.entry(t, "Revenue", ledger.DirectionCredit, -100),
		}, nil, errs.ErrInvalid},
		{"bad direction", []ledger.Entry{
			{AccountID: f.chart["Cash"].ID, Direction: "SIDEWAYS", Amount: inr(t, 100)},
		}, nil, errs.ErrInvalid},
		{"unknown account", []ledger.Entry{
			f.entry(t, "Cash", ledger.DirectionDebit, 100),
			{AccountID: uuid.New(), Direction: ledger.DirectionCredit, Amount: inr(t, 100)},
		}, nil, errs.ErrAccountNotFound},
		{"missing account id", []ledger.Entry{
			{Direction: ledger.DirectionDebit, Amount: inr(t, 100)},
		}, nil, errs.ErrInvalid},
		{"wrapping totals", []ledger.Entry{
			f.entry(t, "Cash", ledger.DirectionDebit, math.MaxInt64),
			f.entry(t, "Cash", ledger.DirectionDebit, math.MaxInt64),
			f.entry(t, "Cash", ledger.DirectionDebit, 3),
			f.entry(t, "Revenue", ledger.DirectionCredit, 1),
		}, nil, errs.ErrInvalid},
		{"bad metadata", []ledger.Entry{
			f.entry(t, "Cash", ledger.DirectionDebit, 100),
			f.entry(t, "Revenue", ledger.DirectionCredit, 100),
		}, meta.Metadata{"": "x"}, errs.ErrInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CommitGroup(ctx, journal.GroupInput{Entries: tc.entries, Metadata: tc.md})
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, int64(0), f.balance(t, "Cash"))
	assert.Empty(t, f.events.Events())
}

func TestCommitGroup_WrongCurrency(t *testing.T) {
	f := setup(t)
	usd, err := ledger.FromMinor("USD", 100)
	require.NoError(t, err)
	_, err = f.svc.CommitGroup(context.Background(), journal.GroupInput{Entries: []ledger.Entry{
		{AccountID: f.chart["Cash"].ID, Direction: ledger.DirectionDebit, Amount: usd},
		{AccountID: f.chart["Revenue"].ID, Direction: ledger.DirectionCredit, Amount: usd},
	}})
	assert.ErrorIs(t, err, errs.ErrInvalid)
}

func TestCommitGroup_Idempotency(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	in := journal.GroupInput{
		IdempotencyKey: "till-42",
		Entries: []ledger.Entry{
			f.entry(t, "Cash", ledger.DirectionDebit, 500),
			f.entry(t, "Revenue", ledger.DirectionCredit, 500),
		},
	}
	first, err := f.svc.CommitGroup(ctx, in)
	require.NoError(t, err)

	// Replay on a later clock still matches: the defaulted timestamp is not part of the payload.
	f.now = f.now.Add(time.Hour)
	again, err := f.svc.CommitGroup(ctx, in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Group.ID, again.Group.ID)
	assert.Equal(t, int64(500), f.balance(t, "Cash"))
	assert.Len(t, f.events.Events(), 1)

	in.Entries = []ledger.Entry{
		f.entry(t, "Cash", ledger.DirectionDebit, 800),
		f.entry(t, "Revenue", ledger.DirectionCredit, 800),
	}
	_, err = f.svc.CommitGroup(ctx, in)
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestCommitGroup_IdempotencyCoversExplicitTimestamp(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	in := journal.GroupInput{
		IdempotencyKey: "till-43",
		Timestamp:      time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Entries: []ledger.Entry{
			f.entry(t, "Cash", ledger.DirectionDebit, 500),
			f.entry(t, "Revenue", ledger.DirectionCredit, 500),
		},
	}
	first, err := f.svc.CommitGroup(ctx, in)
	require.NoError(t, err)

	// Sub-second differences are dropped like the stored timestamp.
	in.Timestamp = in.Timestamp.Add(200 * time.Millisecond)
	again, err := f.svc.CommitGroup(ctx, in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Group.ID, again.Group.ID)

	in.Timestamp = in.Timestamp.Add(time.Minute)
	_, err = f.svc.CommitGroup(ctx, in)
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.Equal(t, int64(500), f.balance(t, "Cash"))
}

func TestRecordScenario_WithdrawalWithFee(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.CommitGroup(ctx, journal.GroupInput{Entries: []ledger.Entry{
		f.entry(t, "Cash", ledger.DirectionDebit, 50000),
		f.entry(t, "Bank Account", ledger.DirectionCredit, 50000),
	}})
	require.NoError(t, err)

	res, err := f.svc.RecordScenario(ctx, journal.ScenarioInput{
		Kind:         ledger.KindWithdrawalWithFee,
		Params:       params("cashGiven", "1000", "amountSettled", "1010"),
		CustomerName: " Ravi ",
	})
	require.NoError(t, err)
	g := res.Group
	assert.Equal(t, ledger.KindWithdrawalWithFee, g.Scenario)
	assert.Equal(t, "Ravi", g.CustomerName)
	assert.Equal(t, "Kiosk Withdrawal (with fee)", g.Description)
	assert.Equal(t, "Kiosk Withdrawal (with fee)", g.Metadata[meta.KeyScenarioLabel])
	assert.Equal(t, "1010.00", g.Metadata[meta.ParamPrefix+"amountSettled"])
	assert.Len(t, g.Entries, 4)

	assert.Equal(t, int64(-50000), f.balance(t, "Cash"))
	assert.Equal(t, int64(1000), f.balance(t, "Revenue"))
	assert.Equal(t, int64(101000), f.balance(t, "OD Account"))
}

func TestRecordScenario_Deposit(t *testing.T) {
	f := setup(t)
	_, err := f.svc.RecordScenario(context.Background(), journal.ScenarioInput{
		Kind:   ledger.KindDeposit,
		Params: params("cashTaken", "1000", "amountDeducted", "990"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), f.balance(t, "Cash"))
	assert.Equal(t, int64(1000), f.balance(t, "Revenue"))
	assert.Equal(t, int64(-99000), f.balance(t, "OD Account"))
}

func TestCompileScenario_DoesNotCommit(t *testing.T) {
	f := setup(t)
	out, err := f.svc.CompileScenario(context.Background(), ledger.KindWithdrawalMatched, params("amount", "250"))
	require.NoError(t, err)
	assert.Len(t, out.Entries, 2)
	assert.Equal(t, int64(0), f.balance(t, "Cash"))

	_, err = f.svc.CompileScenario(context.Background(), "BOGUS", params())
	assert.ErrorIs(t, err, errs.ErrUnknownScenarioKind)
}

func TestRecordScenario_InvalidParamsLeaveLedgerUntouched(t *testing.T) {
	f := setup(t)
	_, err := f.svc.RecordScenario(context.Background(), journal.ScenarioInput{
		Kind:   ledger.KindGeneralSale,
		Params: params("cashIn", "0"),
	})
	assert.ErrorIs(t, err, errs.ErrInvalidScenarioParams)
	page, err := f.svc.ListGroups(context.Background(), ledger.GroupFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestListGroups(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		f.now = f.now.Add(time.Minute)
		res, err := f.svc.RecordScenario(ctx, journal.ScenarioInput{Kind: ledger.KindWithdrawalMatched, Params: params("amount", "10")})
		require.NoError(t, err)
		ids = append(ids, res.Group.ID)
	}

	page, err := f.svc.ListGroups(ctx, ledger.GroupFilter{})
	require.NoError(t, err)
	assert.Equal(t, journal.DefaultPageSize, page.Limit)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Groups, 5)
	assert.Equal(t, ids[4], page.Groups[0].ID)

	page, err = f.svc.ListGroups(ctx, ledger.GroupFilter{Limit: 20, Offset: 1000})
	require.NoError(t, err)
	assert.Empty(t, page.Groups)
	assert.Equal(t, 5, page.Total)

	page, err = f.svc.ListGroups(ctx, ledger.GroupFilter{Limit: 10000})
	require.NoError(t, err)
	assert.Equal(t, journal.MaxPageSize, page.Limit)

	_, err = f.svc.ListGroups(ctx, ledger.GroupFilter{Offset: -1})
	assert.ErrorIs(t, err, errs.ErrInvalid)

	from, to := f.now, f.now.AddDate(0, 0, -1)
	_, err = f.svc.ListGroups(ctx, ledger.GroupFilter{From: &from, To: &to})
	assert.ErrorIs(t, err, errs.ErrInvalid)

	entries, err := f.svc.GroupEntries(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = f.svc.GetGroup(ctx, uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
