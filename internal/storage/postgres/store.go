package postgres

// Package postgres provides a pgx-backed store for multi-terminal deployments.
// Migrations that create the expected schema live under db/migrations. Commits
// lock the touched account rows, so concurrent groups on the same account
// serialize.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/meta"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	currency string
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn, currency string) (*Store, error) {
	if err := ledger.CheckCurrency(currency); err != nil { return nil, err }
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil { return nil, err }
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil { return nil, err }
	// Verify connection
	if err := pool.Ping(ctx); err != nil { pool.Close(); return nil, err }
	return &Store{pool: pool, currency: currency}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() { if s.pool != nil { s.pool.Close() } }

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Accounts ---

const accountColumns = `id, name, category, opening_minor, balance_minor, created_at`

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `select `+accountColumns+` from accounts order by created_at, id`)
	if err != nil { return nil, storageErr("list accounts", err) }
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := s.scanAccount(rows)
		if err != nil { return nil, err }
		out = append(out, a)
	}
	if err := rows.Err(); err != nil { return nil, storageErr("list accounts", err) }
	return out, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return s.accountRow(s.pool.QueryRow(ctx, `select `+accountColumns+` from accounts where id = $1`, id))
}

func (s *Store) AccountByName(ctx context.Context, name string) (ledger.Account, error) {
	return s.accountRow(s.pool.QueryRow(ctx, `select `+accountColumns+` from accounts where name = $1`, name))
}

// AccountsByIDs returns the accounts found among ids.
func (s *Store) AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	if len(ids) == 0 { return map[uuid.UUID]ledger.Account{}, nil }
	rows, err := s.pool.Query(ctx, `select `+accountColumns+` from accounts where id = any($1)`, ids)
	if err != nil { return nil, storageErr("accounts by ids", err) }
	defer rows.Close()
	return s.collectAccounts(rows)
}

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	opening, err := ledger.Minor(a.Opening)
	if err != nil { return ledger.Account{}, err }
	balance, err := ledger.Minor(a.Balance)
	if err != nil { return ledger.Account{}, err }
	_, err = s.pool.Exec(ctx, `
		insert into accounts (id, name, category, opening_minor, balance_minor, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, a.ID, a.Name, string(a.Category), opening, balance, a.CreatedAt)
	if isUniqueViolation(err) { return ledger.Account{}, fmt.Errorf("%w: %q", errs.ErrDuplicateAccountName, a.Name) }
	if err != nil { return ledger.Account{}, storageErr("create account", err) }
	return a, nil
}

func (s *Store) RenameAccount(ctx context.Context, id uuid.UUID, name string) (ledger.Account, error) {
	ct, err := s.pool.Exec(ctx, `update accounts set name = $1 where id = $2`, name, id)
	if isUniqueViolation(err) { return ledger.Account{}, fmt.Errorf("%w: %q", errs.ErrDuplicateAccountName, name) }
	if err != nil { return ledger.Account{}, storageErr("rename account", err) }
	if ct.RowsAffected() == 0 { return ledger.Account{}, errs.ErrNotFound }
	return s.GetAccount(ctx, id)
}

func (s *Store) accountRow(row pgx.Row) (ledger.Account, error) {
	a, err := s.scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) { return ledger.Account{}, errs.ErrNotFound }
	return a, err
}

func (s *Store) collectAccounts(rows pgx.Rows) (map[uuid.UUID]ledger.Account, error) {
	out := make(map[uuid.UUID]ledger.Account)
	for rows.Next() {
		a, err := s.scanAccount(rows)
		if err != nil { return nil, err }
		out[a.ID] = a
	}
	if err := rows.Err(); err != nil { return nil, storageErr("scan accounts", err) }
	return out, nil
}

func (s *Store) scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	var category string
	var opening, balance int64
	if err := row.Scan(&a.ID, &a.Name, &category, &opening, &balance, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) { return ledger.Account{}, err }
		return ledger.Account{}, storageErr("scan account", err)
	}
	a.Category = ledger.Category(category)
	a.CreatedAt = a.CreatedAt.UTC()
	var err error
	if a.Opening, err = s.amount(opening); err != nil { return ledger.Account{}, err }
	if a.Balance, err = s.amount(balance); err != nil { return ledger.Account{}, err }
	return a, nil
}

// --- Transaction groups ---

// CommitGroup writes the group, its entries and the balance updates in one
// transaction. The idempotency key is serialized with an advisory lock so two
// concurrent requests with the same key cannot both insert.
func (s *Store) CommitGroup(ctx context.Context, g ledger.TransactionGroup) (ledger.TransactionGroup, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil { return ledger.TransactionGroup{}, false, storageErr("begin", err) }
	defer func() { _ = tx.Rollback(ctx) }()

	if g.IdempotencyKey != "" {
		if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock(hashtext($1))`, g.IdempotencyKey); err != nil {
			return ledger.TransactionGroup{}, false, storageErr("idempotency lock", err)
		}
		var priorID uuid.UUID
		var priorFP string
		err := tx.QueryRow(ctx, `select id, fingerprint from transaction_groups where idempotency_key = $1`, g.IdempotencyKey).Scan(&priorID, &priorFP)
		switch {
		case err == nil:
			if priorFP != g.Fingerprint {
				return ledger.TransactionGroup{}, false, fmt.Errorf("%w: idempotency key %q reused with a different payload", errs.ErrConflict, g.IdempotencyKey)
			}
			prior, err := s.getGroup(ctx, tx, priorID)
			if err != nil { return ledger.TransactionGroup{}, false, err }
			return prior, true, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return ledger.TransactionGroup{}, false, storageErr("idempotency lookup", err)
		}
	}

	ids := make([]uuid.UUID, 0, len(g.Entries))
	for _, e := range g.Entries { ids = append(ids, e.AccountID) }
	rows, err := tx.Query(ctx, `select `+accountColumns+` from accounts where id = any($1) order by id for update`, ids)
	if err != nil { return ledger.TransactionGroup{}, false, storageErr("lock accounts", err) }
	accounts, err := s.collectAccounts(rows)
	rows.Close()
	if err != nil { return ledger.TransactionGroup{}, false, err }
	for _, id := range ids {
		if _, ok := accounts[id]; !ok {
			return ledger.TransactionGroup{}, false, fmt.Errorf("%w: %s", errs.ErrAccountNotFound, id)
		}
	}

	md, _ := g.Metadata.MarshalStableJSON()
	var key *string
	if g.IdempotencyKey != "" { key = &g.IdempotencyKey }
	if _, err := tx.Exec(ctx, `
		insert into transaction_groups (id, scenario, date, timestamp, customer_name, description, idempotency_key, fingerprint, metadata)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, g.ID, string(g.Scenario), g.Date, g.Timestamp, g.CustomerName, g.Description, key, g.Fingerprint, md); err != nil {
		return ledger.TransactionGroup{}, false, storageErr("insert group", err)
	}
	for i, e := range g.Entries {
		units, err := ledger.Minor(e.Amount)
		if err != nil { return ledger.TransactionGroup{}, false, err }
		if _, err := tx.Exec(ctx, `
			insert into transactions (id, group_id, seq, account_id, direction, amount_minor, description)
			values ($1,$2,$3,$4,$5,$6,$7)
		`, e.ID, g.ID, i, e.AccountID, string(e.Direction), units, e.Description); err != nil {
			return ledger.TransactionGroup{}, false, storageErr(fmt.Sprintf("insert entry %d", i), err)
		}
		acc := accounts[e.AccountID]
		if acc.Balance, err = ledger.Apply(acc.Balance, acc.Category, e.Direction, e.Amount); err != nil {
			return ledger.TransactionGroup{}, false, err
		}
		accounts[e.AccountID] = acc
	}
	for id, acc := range accounts {
		if _, err := tx.Exec(ctx, `update accounts set balance_minor = $1 where id = $2`, ledger.MustMinor(acc.Balance), id); err != nil {
			return ledger.TransactionGroup{}, false, storageErr("update balance", err)
		}
	}
	if err := tx.Commit(ctx); err != nil { return ledger.TransactionGroup{}, false, storageErr("commit", err) }
	return g, false, nil
}

// queryer is satisfied by *pgxpool.Pool and pgx.Tx.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const groupColumns = `id, scenario, date, timestamp, customer_name, description, coalesce(idempotency_key, ''), fingerprint, metadata`

func (s *Store) GetGroup(ctx context.Context, id uuid.UUID) (ledger.TransactionGroup, error) {
	return s.getGroup(ctx, s.pool, id)
}

func (s *Store) getGroup(ctx context.Context, q queryer, id uuid.UUID) (ledger.TransactionGroup, error) {
	g, err := scanGroup(q.QueryRow(ctx, `select `+groupColumns+` from transaction_groups where id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) { return ledger.TransactionGroup{}, errs.ErrNotFound }
	if err != nil { return ledger.TransactionGroup{}, err }
	lines, err := s.loadEntries(ctx, q, []uuid.UUID{g.ID})
	if err != nil { return ledger.TransactionGroup{}, err }
	g.Entries = lines[g.ID]
	return g, nil
}

// ListGroups pages groups by timestamp desc, id desc, with the unpaged total.
func (s *Store) ListGroups(ctx context.Context, f ledger.GroupFilter) ([]ledger.TransactionGroup, int, error) {
	where := ` where ($1::date is null or date >= $1) and ($2::date is null or date <= $2)`
	var from, to *time.Time
	if f.From != nil { d := ledger.Day(*f.From, time.UTC); from = &d }
	if f.To != nil { d := ledger.Day(*f.To, time.UTC); to = &d }

	var total int
	if err := s.pool.QueryRow(ctx, `select count(*) from transaction_groups`+where, from, to).Scan(&total); err != nil {
		return nil, 0, storageErr("count groups", err)
	}
	out := make([]ledger.TransactionGroup, 0)
	if f.Offset >= total { return out, total, nil }
	rows, err := s.pool.Query(ctx, `select `+groupColumns+` from transaction_groups`+where+`
		order by timestamp desc, id desc limit $3 offset $4`, from, to, f.Limit, f.Offset)
	if err != nil { return nil, 0, storageErr("list groups", err) }
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil { rows.Close(); return nil, 0, err }
		out = append(out, g)
		ids = append(ids, g.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil { return nil, 0, storageErr("list groups", err) }
	lines, err := s.loadEntries(ctx, s.pool, ids)
	if err != nil { return nil, 0, err }
	for i := range out { out[i].Entries = lines[out[i].ID] }
	return out, total, nil
}

func scanGroup(row pgx.Row) (ledger.TransactionGroup, error) {
	var g ledger.TransactionGroup
	var scenario string
	var mdBytes []byte
	if err := row.Scan(&g.ID, &scenario, &g.Date, &g.Timestamp, &g.CustomerName, &g.Description, &g.IdempotencyKey, &g.Fingerprint, &mdBytes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) { return ledger.TransactionGroup{}, err }
		return ledger.TransactionGroup{}, storageErr("scan group", err)
	}
	g.Scenario = ledger.ScenarioKind(scenario)
	g.Date = ledger.Day(g.Date, time.UTC)
	g.Timestamp = g.Timestamp.UTC()
	if len(mdBytes) > 0 {
		var m meta.Metadata
		if err := m.UnmarshalJSON(mdBytes); err == nil { g.Metadata = m }
	}
	return g, nil
}

func (s *Store) loadEntries(ctx context.Context, q queryer, groupIDs []uuid.UUID) (map[uuid.UUID][]ledger.Entry, error) {
	out := make(map[uuid.UUID][]ledger.Entry, len(groupIDs))
	if len(groupIDs) == 0 { return out, nil }
	rows, err := q.Query(ctx, `
		select id, group_id, account_id, direction, amount_minor, description
		from transactions
		where group_id = any($1)
		order by group_id, seq
	`, groupIDs)
	if err != nil { return nil, storageErr("load entries", err) }
	defer rows.Close()
	for rows.Next() {
		e, err := s.scanEntry(rows)
		if err != nil { return nil, err }
		out[e.GroupID] = append(out[e.GroupID], e)
	}
	if err := rows.Err(); err != nil { return nil, storageErr("load entries", err) }
	return out, nil
}

func (s *Store) scanEntry(row pgx.Row, extra ...any) (ledger.Entry, error) {
	var e ledger.Entry
	var dir string
	var units int64
	dest := append([]any{&e.ID, &e.GroupID, &e.AccountID, &dir, &units, &e.Description}, extra...)
	if err := row.Scan(dest...); err != nil { return ledger.Entry{}, storageErr("scan entry", err) }
	e.Direction = ledger.Direction(dir)
	amt, err := s.amount(units)
	if err != nil { return ledger.Entry{}, err }
	e.Amount = amt
	return e, nil
}

const postedQuery = `
	select t.id, t.group_id, t.account_id, t.direction, t.amount_minor, t.description, g.scenario, g.timestamp
	from transactions t
	join transaction_groups g on g.id = t.group_id
`

// EntriesForAccount returns the account's entries stamped at or after since
// (strictly after when inclusive is false), oldest first.
func (s *Store) EntriesForAccount(ctx context.Context, accountID uuid.UUID, since time.Time, inclusive bool) ([]ledger.PostedEntry, error) {
	return s.entriesForAccount(ctx, s.pool, accountID, since, inclusive)
}

// AccountHistory reads the account and its entries since the cutoff in one
// repeatable-read transaction, so a concurrent commit is seen whole or not at all.
func (s *Store) AccountHistory(ctx context.Context, accountID uuid.UUID, since time.Time, inclusive bool) (ledger.Account, []ledger.PostedEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil { return ledger.Account{}, nil, storageErr("begin", err) }
	defer func() { _ = tx.Rollback(ctx) }()

	acc, err := s.accountRow(tx.QueryRow(ctx, `select `+accountColumns+` from accounts where id = $1`, accountID))
	if err != nil { return ledger.Account{}, nil, err }
	entries, err := s.entriesForAccount(ctx, tx, accountID, since, inclusive)
	if err != nil { return ledger.Account{}, nil, err }
	if err := tx.Commit(ctx); err != nil { return ledger.Account{}, nil, storageErr("commit", err) }
	return acc, entries, nil
}

func (s *Store) entriesForAccount(ctx context.Context, q queryer, accountID uuid.UUID, since time.Time, inclusive bool) ([]ledger.PostedEntry, error) {
	op := ">"
	if inclusive { op = ">=" }
	return s.posted(ctx, q, postedQuery+`where t.account_id = $1 and g.timestamp `+op+` $2
		order by g.timestamp, g.id, t.seq`, accountID, since)
}

// EntriesBetween returns every entry stamped within [from, to], oldest first.
func (s *Store) EntriesBetween(ctx context.Context, from, to time.Time) ([]ledger.PostedEntry, error) {
	return s.posted(ctx, s.pool, postedQuery+`where g.timestamp between $1 and $2
		order by g.timestamp, g.id, t.seq`, from, to)
}

func (s *Store) posted(ctx context.Context, q queryer, sql string, args ...any) ([]ledger.PostedEntry, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil { return nil, storageErr("posted entries", err) }
	defer rows.Close()
	out := make([]ledger.PostedEntry, 0)
	for rows.Next() {
		var scenario string
		var ts time.Time
		e, err := s.scanEntry(rows, &scenario, &ts)
		if err != nil { return nil, err }
		out = append(out, ledger.PostedEntry{Entry: e, Scenario: ledger.ScenarioKind(scenario), Timestamp: ts.UTC()})
	}
	if err := rows.Err(); err != nil { return nil, storageErr("posted entries", err) }
	return out, nil
}

// --- Daily records ---

func (s *Store) GetDailyRecord(ctx context.Context, day time.Time) (ledger.DailyRecord, error) {
	var r ledger.DailyRecord
	var status string
	var opening, closing, physical, diff int64
	err := s.pool.QueryRow(ctx, `
		select date, account_id, opening_minor, closing_minor, physical_minor, difference_minor, status, notes, updated_at
		from daily_records where date = $1
	`, ledger.Day(day, time.UTC)).Scan(&r.Date, &r.AccountID, &opening, &closing, &physical, &diff, &status, &r.Notes, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) { return ledger.DailyRecord{}, errs.ErrNotFound }
	if err != nil { return ledger.DailyRecord{}, storageErr("get daily record", err) }
	r.Date = ledger.Day(r.Date, time.UTC)
	r.UpdatedAt = r.UpdatedAt.UTC()
	r.Status = ledger.RecordStatus(status)
	for _, f := range []struct {
		dst   *money.Amount
		units int64
	}{{&r.Opening, opening}, {&r.Closing, closing}, {&r.PhysicalCount, physical}, {&r.Difference, diff}} {
		if *f.dst, err = s.amount(f.units); err != nil { return ledger.DailyRecord{}, err }
	}
	return r, nil
}

// SaveDailyRecord upserts the record for its date.
func (s *Store) SaveDailyRecord(ctx context.Context, r ledger.DailyRecord) (ledger.DailyRecord, error) {
	_, err := s.pool.Exec(ctx, `
		insert into daily_records (date, account_id, opening_minor, closing_minor, physical_minor, difference_minor, status, notes, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		on conflict (date) do update set
			account_id = excluded.account_id,
			opening_minor = excluded.opening_minor,
			closing_minor = excluded.closing_minor,
			physical_minor = excluded.physical_minor,
			difference_minor = excluded.difference_minor,
			status = excluded.status,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`, ledger.Day(r.Date, time.UTC), r.AccountID, ledger.MustMinor(r.Opening), ledger.MustMinor(r.Closing),
		ledger.MustMinor(r.PhysicalCount), ledger.MustMinor(r.Difference), string(r.Status), r.Notes, r.UpdatedAt)
	if err != nil { return ledger.DailyRecord{}, storageErr("save daily record", err) }
	return r, nil
}

// --- helpers ---

func (s *Store) amount(units int64) (money.Amount, error) {
	a, err := ledger.FromMinor(s.currency, units)
	if err != nil { return money.Amount{}, storageErr("decode amount", err) }
	return a, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: postgres %s: %w", errs.ErrStorage, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
