package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/meta"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "kiosk.db"), "INR")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createAccount(t *testing.T, s *Store, name string, cat ledger.Category, units int64) ledger.Account {
	t.Helper()
	bal, err := ledger.FromMinor("INR", units)
	require.NoError(t, err)
	a, err := s.CreateAccount(context.Background(), ledger.Account{
		ID: uuid.New(), Name: name, Category: cat, Opening: bal, Balance: bal,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	})
	require.NoError(t, err)
	return a
}

func newGroup(t *testing.T, ts time.Time, legs ...ledger.Entry) ledger.TransactionGroup {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	for i := range legs {
		legs[i].ID = uuid.New()
		legs[i].GroupID = id
	}
	return ledger.TransactionGroup{
		ID: id, Scenario: ledger.KindDeposit, Date: ledger.Day(ts, time.UTC), Timestamp: ts,
		Metadata: meta.Metadata{meta.KeyScenarioLabel: "Deposit"}, Entries: legs,
	}
}

func debit(t *testing.T, a ledger.Account, units int64) ledger.Entry {
	return entry(t, a, ledger.DirectionDebit, units)
}

func credit(t *testing.T, a ledger.Account, units int64) ledger.Entry {
	return entry(t, a, ledger.DirectionCredit, units)
}

func entry(t *testing.T, a ledger.Account, d ledger.Direction, units int64) ledger.Entry {
	t.Helper()
	amt, err := ledger.FromMinor("INR", units)
	require.NoError(t, err)
	return ledger.Entry{AccountID: a.ID, Direction: d, Amount: amt}
}

func balanceOf(t *testing.T, s *Store, id uuid.UUID) int64 {
	t.Helper()
	a, err := s.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return ledger.MustMinor(a.Balance)
}

func TestOpen_IsReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kiosk.db")
	s, err := Open(path, "INR")
	require.NoError(t, err)
	createAccount(t, s, "Cash", ledger.CategoryAsset, 100)
	require.NoError(t, s.Close())

	s, err = Open(path, "INR")
	require.NoError(t, err)
	defer s.Close()
	accs, err := s.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accs, 1)
	assert.Equal(t, int64(100), ledger.MustMinor(accs[0].Balance))
	assert.NoError(t, s.Ready(context.Background()))
}

func TestAccounts_UniqueName(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	cash := createAccount(t, s, "Cash", ledger.CategoryAsset, 0)
	zero := ledger.Zero("INR")

	_, err := s.CreateAccount(ctx, ledger.Account{ID: uuid.New(), Name: "Cash", Category: ledger.CategoryAsset, Opening: zero, Balance: zero})
	assert.ErrorIs(t, err, errs.ErrDuplicateAccountName)

	bank := createAccount(t, s, "Bank Account", ledger.CategoryAsset, 0)
	_, err = s.RenameAccount(ctx, bank.ID, "Cash")
	assert.ErrorIs(t, err, errs.ErrDuplicateAccountName)

	got, err := s.RenameAccount(ctx, cash.ID, "Drawer")
	require.NoError(t, err)
	assert.Equal(t, "Drawer", got.Name)

	byName, err := s.AccountByName(ctx, "Drawer")
	require.NoError(t, err)
	assert.Equal(t, cash.ID, byName.ID)

	_, err = s.GetAccount(ctx, uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	m, err := s.AccountsByIDs(ctx, []uuid.UUID{cash.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, m, 1)
}

func TestCommitGroup_RoundTrip(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	cash := createAccount(t, s, "Cash", ledger.CategoryAsset, 100000)
	od := createAccount(t, s, "OD Account", ledger.CategoryAsset, 50000)
	rev := createAccount(t, s, "Revenue", ledger.CategoryRevenue, 0)
	ts := time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC)

	g := newGroup(t, ts, debit(t, cash, 100000), credit(t, rev, 1000), credit(t, od, 99000))
	g.CustomerName = "Asha"
	_, replayed, err := s.CommitGroup(ctx, g)
	require.NoError(t, err)
	assert.False(t, replayed)

	assert.Equal(t, int64(200000), balanceOf(t, s, cash.ID))
	assert.Equal(t, int64(1000), balanceOf(t, s, rev.ID))
	assert.Equal(t, int64(-49000), balanceOf(t, s, od.ID))

	got, err := s.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.CustomerName)
	assert.True(t, got.Timestamp.Equal(ts))
	assert.Equal(t, "2024-03-01", ledger.FormatDay(got.Date))
	assert.Equal(t, "Deposit", got.Metadata[meta.KeyScenarioLabel])
	require.Len(t, got.Entries, 3)
	assert.Equal(t, cash.ID, got.Entries[0].AccountID)
	assert.Equal(t, od.ID, got.Entries[2].AccountID)
}

func TestCommitGroup_AbortRollsBack(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	cash := createAccount(t, s, "Cash", ledger.CategoryAsset, 100000)
	rev := createAccount(t, s, "Revenue", ledger.CategoryRevenue, 0)
	_, err := s.db.Exec(`
		CREATE TRIGGER fail_second_leg BEFORE INSERT ON transactions
		WHEN NEW.seq = 1
		BEGIN SELECT RAISE(ABORT, 'simulated failure'); END;
	`)
	require.NoError(t, err)

	g := newGroup(t, time.Now().UTC().Truncate(time.Second), debit(t, cash, 500), credit(t, rev, 500))
	_, _, err = s.CommitGroup(ctx, g)
	require.ErrorIs(t, err, errs.ErrStorage)

	assert.Equal(t, int64(100000), balanceOf(t, s, cash.ID))
	assert.Equal(t, int64(0), balanceOf(t, s, rev.ID))
	_, err = s.GetGroup(ctx, g.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCommitGroup_UnknownAccount(t *testing.T) {
	s := openTest(t)
	cash := createAccount(t, s, "Cash", ledger.CategoryAsset, 0)
	ghost := ledger.Account{ID: uuid.New()}

	_, _, err := s.CommitGroup(context.Background(), newGroup(t, time.Now().UTC(), debit(t, cash, 10), credit(t, ghost, 10)))
	require.ErrorIs(t, err, errs.ErrAccountNotFound)
	assert.Equal(t, int64(0), balanceOf(t, s, cash.ID))
}

func TestCommitGroup_Idempotency(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	cash := createAccount(t, s, "Cash", ledger.CategoryAsset, 0)
	rev := createAccount(t, s, "Revenue", ledger.CategoryRevenue, 0)
	ts := time.Now().UTC().Truncate(time.Second)

	g := newGroup(t, ts, debit(t, cash, 300), credit(t, rev, 300))
	g.IdempotencyKey, g.Fingerprint = "sale-1", "fp"
	first, _, err := s.CommitGroup(ctx, g)
	require.NoError(t, err)

	dup := newGroup(t, ts, debit(t, cash, 300), credit(t, rev, 300))
	dup.IdempotencyKey, dup.Fingerprint = "sale-1", "fp"
	got, replayed, err := s.CommitGroup(ctx, dup)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, got.ID)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, int64(300), balanceOf(t, s, cash.ID))

	clash := newGroup(t, ts, debit(t, cash, 999), credit(t, rev, 999))
	clash.IdempotencyKey, clash.Fingerprint = "sale-1", "other"
	_, _, err = s.CommitGroup(ctx, clash)
	assert.ErrorIs(t, err, errs.ErrConflict)

	// Groups without a key never collide.
	for i := 0; i < 2; i++ {
		_, _, err := s.CommitGroup(ctx, newGroup(t, ts, debit(t, cash, 1), credit(t, rev, 1)))
		require.NoError(t, err)
	}
}

func TestListGroups_PagingAndDates(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	cash := createAccount(t, s, "Cash", ledger.CategoryAsset, 0)
	rev := createAccount(t, s, "Revenue", ledger.CategoryRevenue, 0)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		g := newGroup(t, base.AddDate(0, 0, i), debit(t, cash, 100), credit(t, rev, 100))
		_, _, err := s.CommitGroup(ctx, g)
		require.NoError(t, err)
		ids = append(ids, g.ID)
	}

	page, total, err := s.ListGroups(ctx, ledger.GroupFilter{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 5)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Len(t, page[0].Entries, 2)

	page, total, err = s.ListGroups(ctx, ledger.GroupFilter{Limit: 20, Offset: 1000})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, page)

	from := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	page, total, err = s.ListGroups(ctx, ledger.GroupFilter{From: &from, To: &to, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)
}

func TestPostedEntries(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	cash := createAccount(t, s, "Cash", ledger.CategoryAsset, 0)
	rev := createAccount(t, s, "Revenue", ledger.CategoryRevenue, 0)
	cut := time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC)
	for _, ts := range []time.Time{cut.Add(-time.Hour), cut, cut.Add(time.Second)} {
		_, _, err := s.CommitGroup(ctx, newGroup(t, ts, debit(t, cash, 100), credit(t, rev, 100)))
		require.NoError(t, err)
	}

	got, err := s.EntriesForAccount(ctx, cash.ID, cut, true)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.EntriesForAccount(ctx, cash.ID, cut, false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ledger.KindDeposit, got[0].Scenario)
	assert.Equal(t, ledger.DirectionDebit, got[0].Direction)

	got, err = s.EntriesBetween(ctx, cut.Add(-2*time.Hour), cut)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	acc, hist, err := s.AccountHistory(ctx, cash.ID, cut, false)
	require.NoError(t, err)
	assert.Equal(t, int64(300), ledger.MustMinor(acc.Balance))
	assert.Len(t, hist, 1)

	_, _, err = s.AccountHistory(ctx, uuid.New(), cut, true)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDailyRecords(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	cash := createAccount(t, s, "Cash", ledger.CategoryAsset, 0)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.GetDailyRecord(ctx, day)
	require.ErrorIs(t, err, errs.ErrNotFound)

	amt := func(u int64) money.Amount { a, _ := ledger.FromMinor("INR", u); return a }
	rec := ledger.DailyRecord{
		Date: day, AccountID: cash.ID,
		Opening: amt(1000), Closing: amt(2000), PhysicalCount: amt(1900), Difference: amt(-100),
		Status: ledger.StatusOpen, Notes: "short", UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err = s.SaveDailyRecord(ctx, rec)
	require.NoError(t, err)

	rec.PhysicalCount, rec.Difference, rec.Status = amt(2000), amt(0), ledger.StatusClosed
	_, err = s.SaveDailyRecord(ctx, rec)
	require.NoError(t, err)

	got, err := s.GetDailyRecord(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusClosed, got.Status)
	assert.Equal(t, int64(2000), ledger.MustMinor(got.PhysicalCount))
	assert.Equal(t, int64(0), ledger.MustMinor(got.Difference))
	assert.Equal(t, "short", got.Notes)
	assert.Equal(t, cash.ID, got.AccountID)
}
