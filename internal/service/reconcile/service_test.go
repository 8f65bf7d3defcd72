package reconcile_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/scenario"
	"github.com/tinoosan/kiosk-ledger/internal/service/account"
	"github.com/tinoosan/kiosk-ledger/internal/service/journal"
	"github.com/tinoosan/kiosk-ledger/internal/service/reconcile"
	"github.com/tinoosan/kiosk-ledger/internal/storage/memory"
)

var ist = time.FixedZone("IST", 5*3600+1800)

type fixture struct {
	store   *memory.Store
	accts   account.Service
	recon   reconcile.Service
	journal journal.Service
	cash    ledger.Account
	revenue ledger.Account
	bank    ledger.Account
}

func setup(t *testing.T, openingCash int64) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	accts := account.New(store, store, "INR", nil)
	chart := account.DefaultChart()
	chart[0].OpeningMinor = openingCash
	created, err := accts.EnsureChart(ctx, chart)
	require.NoError(t, err)
	compiler, err := scenario.NewCompiler("INR")
	require.NoError(t, err)
	f := &fixture{
		store:   store,
		accts:   accts,
		recon:   reconcile.New(store, store, accts, ist, nil),
		journal: journal.New(store, store, journal.Options{Accounts: accts, Compiler: compiler, Location: ist}),
	}
	for _, a := range created {
		switch a.Name {
		case "Cash":
			f.cash = a
		case "Revenue":
			f.revenue = a
		case "Bank Account":
			f.bank = a
		}
	}
	return f
}

func inr(t *testing.T, units int64) money.Amount {
	t.Helper()
	a, err := ledger.FromMinor("INR", units)
	require.NoError(t, err)
	return a
}

type move struct {
	at    time.Time
	dir   ledger.Direction // direction on cash
	units int64
}

// post commits cash against bank at the given instant.
func (f *fixture) post(t *testing.T, m move) {
	t.Helper()
	other := ledger.DirectionCredit
	if m.dir == ledger.DirectionCredit {
		other = ledger.DirectionDebit
	}
	_, err := f.journal.CommitGroup(context.Background(), journal.GroupInput{
		Timestamp: m.at,
		Entries: []ledger.Entry{
			{AccountID: f.cash.ID, Direction: m.dir, Amount: inr(t, m.units)},
			{AccountID: f.bank.ID, Direction: other, Amount: inr(t, m.units)},
		},
	})
	require.NoError(t, err)
}

func at(day, h, m, s int) time.Time { return time.Date(2024, 3, day, h, m, s, 0, ist) }

func TestBalances_MatchForwardReplay(t *testing.T) {
	f := setup(t, 100000)
	moves := []move{
		{at(9, 18, 0, 0), ledger.DirectionDebit, 5000},
		{at(10, 0, 0, 0), ledger.DirectionCredit, 2000},
		{at(10, 12, 30, 0), ledger.DirectionDebit, 7000},
		{at(10, 23, 59, 59), ledger.DirectionCredit, 1000},
		{at(11, 0, 0, 0), ledger.DirectionDebit, 300},
		{at(12, 8, 0, 0), ledger.DirectionCredit, 400},
	}
	for _, m := range moves {
		f.post(t, m)
	}

	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	start, end := ledger.DayBounds(day, ist)
	opening, closing := int64(100000), int64(100000)
	for _, m := range moves {
		delta := m.units
		if m.dir == ledger.DirectionCredit {
			delta = -delta
		}
		if m.at.Before(start) {
			opening += delta
		}
		if !m.at.After(end) {
			closing += delta
		}
	}

	b, err := f.recon.Balances(context.Background(), day, f.cash.ID)
	require.NoError(t, err)
	assert.Equal(t, opening, ledger.MustMinor(b.Opening))
	assert.Equal(t, closing, ledger.MustMinor(b.Closing))
	assert.Equal(t, int64(100000+5000-2000+7000-1000+300-400), ledger.MustMinor(b.Current))
	assert.Equal(t, "2024-03-10", ledger.FormatDay(b.Date))
}

func TestBalances_QuietDayCarriesForward(t *testing.T) {
	f := setup(t, 2500)
	f.post(t, move{at(5, 10, 0, 0), ledger.DirectionDebit, 500})
	b, err := f.recon.Balances(context.Background(), time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, f.cash.ID, b.AccountID)
	assert.Equal(t, int64(3000), ledger.MustMinor(b.Opening))
	assert.Equal(t, int64(3000), ledger.MustMinor(b.Closing))
}

func TestNetEffectAfter(t *testing.T) {
	f := setup(t, 0)
	f.post(t, move{at(10, 23, 59, 59), ledger.DirectionDebit, 100})
	f.post(t, move{at(11, 0, 0, 0), ledger.DirectionCredit, 40})

	cut := at(10, 23, 59, 59)
	incl, err := f.recon.NetEffectAfter(context.Background(), f.cash.ID, cut, true)
	require.NoError(t, err)
	assert.Equal(t, int64(60), ledger.MustMinor(incl))

	excl, err := f.recon.NetEffectAfter(context.Background(), f.cash.ID, cut, false)
	require.NoError(t, err)
	assert.Equal(t, int64(-40), ledger.MustMinor(excl))

	// Revenue is credit-normal: a debit lowers it.
	rev, err := f.recon.NetEffectAfter(context.Background(), f.revenue.ID, cut, true)
	require.NoError(t, err)
	assert.True(t, rev.IsZero())
}

func TestReconcile_DifferenceAndStatus(t *testing.T) {
	f := setup(t, 10000)
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	f.post(t, move{at(10, 11, 0, 0), ledger.DirectionDebit, 1500})

	short, err := f.recon.Reconcile(context.Background(), day, f.cash.ID, inr(t, 11000))
	require.NoError(t, err)
	assert.Equal(t, int64(-500), ledger.MustMinor(short.Difference))
	assert.Equal(t, ledger.StatusOpen, short.Status)

	exact, err := f.recon.Reconcile(context.Background(), day, f.cash.ID, inr(t, 11500))
	require.NoError(t, err)
	assert.True(t, exact.Difference.IsZero())
	assert.Equal(t, ledger.StatusClosed, exact.Status)
}

func TestDailyRecord_LifeCycle(t *testing.T) {
	f := setup(t, 10000)
	ctx := context.Background()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	view, err := f.recon.GetDailyRecord(ctx, day, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, view.Status)
	assert.Nil(t, view.Stored)
	assert.Equal(t, int64(10000), ledger.MustMinor(view.Closing))

	rec, err := f.recon.CloseDay(ctx, day, uuid.Nil, inr(t, 9900), " till short ")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusOpen, rec.Status)
	assert.Equal(t, int64(-100), ledger.MustMinor(rec.Difference))
	assert.Equal(t, "till short", rec.Notes)

	view, err = f.recon.GetDailyRecord(ctx, day, uuid.Nil)
	require.NoError(t, err)
	require.NotNil(t, view.Stored)
	assert.Equal(t, ledger.StatusOpen, view.Status)
	assert.Equal(t, f.cash.ID, view.Stored.AccountID)

	rec, err = f.recon.CloseDay(ctx, day, f.cash.ID, inr(t, 10000), "")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusClosed, rec.Status)
}

func TestSaveDailyRecord_Validation(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	base := reconcile.SaveInput{
		Date: day, AccountID: f.cash.ID,
		Opening: inr(t, 0), Closing: inr(t, 1000), PhysicalCount: inr(t, 900), Difference: inr(t, -100),
		Status: ledger.StatusOpen,
	}

	_, err := f.recon.SaveDailyRecord(ctx, base)
	require.NoError(t, err)

	wrongDiff := base
	wrongDiff.Difference = inr(t, 100)
	_, err = f.recon.SaveDailyRecord(ctx, wrongDiff)
	assert.ErrorIs(t, err, errs.ErrInvalid)

	pending := base
	pending.Status = ledger.StatusPending
	_, err = f.recon.SaveDailyRecord(ctx, pending)
	assert.ErrorIs(t, err, errs.ErrInvalid)

	ghost := base
	ghost.AccountID = uuid.New()
	_, err = f.recon.SaveDailyRecord(ctx, ghost)
	assert.ErrorIs(t, err, errs.ErrAccountNotFound)
}

// TestBalances_ConsistentWithConcurrentCommits reads while groups stamped in
// the middle of the day keep landing. Every read must match one committed
// state: opening never moves and closing equals current.
func TestBalances_ConsistentWithConcurrentCommits(t *testing.T) {
	f := setup(t, 100000)
	ctx := context.Background()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	const commits = 50
	amt := inr(t, 1000)
	var wg sync.WaitGroup
	errCh := make(chan error, commits)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < commits; i++ {
			_, err := f.journal.CommitGroup(ctx, journal.GroupInput{
				Timestamp: at(10, 10, 0, 0),
				Entries: []ledger.Entry{
					{AccountID: f.cash.ID, Direction: ledger.DirectionDebit, Amount: amt},
					{AccountID: f.bank.ID, Direction: ledger.DirectionCredit, Amount: amt},
				},
			})
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		b, err := f.recon.Balances(ctx, day, f.cash.ID)
		require.NoError(t, err)
		require.Equal(t, int64(100000), ledger.MustMinor(b.Opening), "read %d", i)
		require.Equal(t, ledger.MustMinor(b.Current), ledger.MustMinor(b.Closing), "read %d", i)
		require.Zero(t, (ledger.MustMinor(b.Current)-100000)%1000, "read %d", i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	b, err := f.recon.Balances(ctx, day, f.cash.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), ledger.MustMinor(b.Opening))
	assert.Equal(t, int64(100000+commits*1000), ledger.MustMinor(b.Closing))
}

// committingRoles commits a group right after resolving the cash role, so the
// commit falls between resolution and the balance read.
type committingRoles struct {
	account.Service
	commit func()
}

func (r committingRoles) Resolve(ctx context.Context, role ledger.Role) (ledger.Account, error) {
	acc, err := r.Service.Resolve(ctx, role)
	r.commit()
	return acc, err
}

func TestCloseDay_CommitAfterResolveIsSeenWhole(t *testing.T) {
	f := setup(t, 0)
	ctx := context.Background()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	roles := committingRoles{Service: f.accts, commit: func() { f.post(t, move{at(10, 10, 0, 0), ledger.DirectionDebit, 1000}) }}
	recon := reconcile.New(f.store, f.store, roles, ist, nil)

	rec, err := recon.CloseDay(ctx, day, uuid.Nil, inr(t, 1000), "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), ledger.MustMinor(rec.Opening))
	assert.Equal(t, int64(1000), ledger.MustMinor(rec.Closing))
	assert.True(t, rec.Difference.IsZero())
	assert.Equal(t, ledger.StatusClosed, rec.Status)
}
