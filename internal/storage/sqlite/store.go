// Package sqlite provides a single-file store for running the ledger on the
// kiosk machine itself. Amounts are kept as integer minor units and event
// timestamps as unix seconds.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/mattn/go-sqlite3"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
	"github.com/tinoosan/kiosk-ledger/internal/meta"
)

// Store manages a SQLite database connection.
type Store struct {
	db       *sql.DB
	dbPath   string
	currency string
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens the database at dbPath, enabling WAL mode and foreign keys, and
// applies the schema.
func Open(dbPath, currency string) (*Store, error) {
	if err := ledger.CheckCurrency(currency); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	connStr := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes commits; readers never hold rows across queries.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath, currency: currency}
	if err := InitializeSchema(s); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Ready pings the database.
func (s *Store) Ready(ctx context.Context) error { return s.db.PingContext(ctx) }

// transaction runs fn in a transaction, rolling back when fn fails.
func (s *Store) transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

// --- Accounts ---

const accountColumns = `id, name, category, opening_minor, balance_minor, created_at`

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, rowid`)
	if err != nil {
		return nil, storageErr("list accounts", err)
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := s.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list accounts", err)
	}
	return out, nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return s.accountWhere(ctx, s.db, `id = ?`, id)
}

func (s *Store) AccountByName(ctx context.Context, name string) (ledger.Account, error) {
	return s.accountWhere(ctx, s.db, `name = ?`, name)
}

func (s *Store) AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, storageErr("accounts by ids", err)
	}
	defer rows.Close()
	for rows.Next() {
		a, err := s.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("accounts by ids", err)
	}
	return out, nil
}

func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	opening, err := ledger.Minor(a.Opening)
	if err != nil {
		return ledger.Account{}, err
	}
	balance, err := ledger.Minor(a.Balance)
	if err != nil {
		return ledger.Account{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, category, opening_minor, balance_minor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.Name, string(a.Category), opening, balance, a.CreatedAt.Unix())
	if isUniqueViolation(err) {
		return ledger.Account{}, fmt.Errorf("%w: %q", errs.ErrDuplicateAccountName, a.Name)
	}
	if err != nil {
		return ledger.Account{}, storageErr("create account", err)
	}
	return a, nil
}

func (s *Store) RenameAccount(ctx context.Context, id uuid.UUID, name string) (ledger.Account, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET name = ? WHERE id = ?`, name, id)
	if isUniqueViolation(err) {
		return ledger.Account{}, fmt.Errorf("%w: %q", errs.ErrDuplicateAccountName, name)
	}
	if err != nil {
		return ledger.Account{}, storageErr("rename account", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.Account{}, errs.ErrNotFound
	}
	return s.GetAccount(ctx, id)
}

func (s *Store) accountWhere(ctx context.Context, q querier, where string, arg any) (ledger.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE `+where, arg)
	a, err := s.scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

type scanner interface{ Scan(dest ...any) error }

func (s *Store) scanAccount(r scanner) (ledger.Account, error) {
	var (
		a                ledger.Account
		category         string
		opening, balance int64
		created          int64
	)
	if err := r.Scan(&a.ID, &a.Name, &category, &opening, &balance, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Account{}, err
		}
		return ledger.Account{}, storageErr("scan account", err)
	}
	a.Category = ledger.Category(category)
	a.CreatedAt = time.Unix(created, 0).UTC()
	var err error
	if a.Opening, err = s.amount(opening); err != nil {
		return ledger.Account{}, err
	}
	if a.Balance, err = s.amount(balance); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

// --- Transaction groups ---

// CommitGroup writes the header, entries and balance updates in one
// transaction. Unknown accounts are reported before anything is written.
func (s *Store) CommitGroup(ctx context.Context, g ledger.TransactionGroup) (ledger.TransactionGroup, bool, error) {
	var (
		stored   ledger.TransactionGroup
		replayed bool
	)
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		if g.IdempotencyKey != "" {
			var priorID uuid.UUID
			var priorFP string
			err := tx.QueryRowContext(ctx, `SELECT id, fingerprint FROM transaction_groups WHERE idempotency_key = ?`, g.IdempotencyKey).Scan(&priorID, &priorFP)
			switch {
			case err == nil:
				if priorFP != g.Fingerprint {
					return fmt.Errorf("%w: idempotency key %q reused with a different payload", errs.ErrConflict, g.IdempotencyKey)
				}
				prior, err := s.getGroup(ctx, tx, priorID)
				if err != nil {
					return err
				}
				stored, replayed = prior, true
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return storageErr("idempotency lookup", err)
			}
		}

		accounts := map[uuid.UUID]ledger.Account{}
		for _, e := range g.Entries {
			if _, ok := accounts[e.AccountID]; ok {
				continue
			}
			a, err := s.accountWhere(ctx, tx, `id = ?`, e.AccountID)
			if errors.Is(err, errs.ErrNotFound) {
				return fmt.Errorf("%w: %s", errs.ErrAccountNotFound, e.AccountID)
			}
			if err != nil {
				return err
			}
			accounts[a.ID] = a
		}

		md, _ := g.Metadata.MarshalStableJSON()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transaction_groups (id, scenario, date, timestamp, customer_name, description, idempotency_key, fingerprint, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, g.ID, string(g.Scenario), ledger.FormatDay(g.Date), g.Timestamp.Unix(), g.CustomerName, g.Description,
			nullString(g.IdempotencyKey), g.Fingerprint, string(md)); err != nil {
			return storageErr("insert group", err)
		}
		for i, e := range g.Entries {
			units, err := ledger.Minor(e.Amount)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transactions (id, group_id, seq, account_id, direction, amount_minor, description)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, e.ID, g.ID, i, e.AccountID, string(e.Direction), units, e.Description); err != nil {
				return storageErr(fmt.Sprintf("insert entry %d", i), err)
			}
			acc := accounts[e.AccountID]
			if acc.Balance, err = ledger.Apply(acc.Balance, acc.Category, e.Direction, e.Amount); err != nil {
				return err
			}
			accounts[e.AccountID] = acc
		}
		for id, acc := range accounts {
			if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance_minor = ? WHERE id = ?`, ledger.MustMinor(acc.Balance), id); err != nil {
				return storageErr("update balance", err)
			}
		}
		stored = g
		return nil
	})
	if err != nil {
		return ledger.TransactionGroup{}, false, err
	}
	return stored, replayed, nil
}

func (s *Store) GetGroup(ctx context.Context, id uuid.UUID) (ledger.TransactionGroup, error) {
	return s.getGroup(ctx, s.db, id)
}

const groupColumns = `id, scenario, date, timestamp, customer_name, description, idempotency_key, fingerprint, metadata`

func (s *Store) getGroup(ctx context.Context, q querier, id uuid.UUID) (ledger.TransactionGroup, error) {
	g, err := scanGroup(q.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM transaction_groups WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.TransactionGroup{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.TransactionGroup{}, err
	}
	entries, err := s.loadEntries(ctx, q, []uuid.UUID{g.ID})
	if err != nil {
		return ledger.TransactionGroup{}, err
	}
	g.Entries = entries[g.ID]
	return g, nil
}

// ListGroups pages groups by timestamp desc, id desc, with the unpaged total.
func (s *Store) ListGroups(ctx context.Context, f ledger.GroupFilter) ([]ledger.TransactionGroup, int, error) {
	where, args := groupWhere(f)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transaction_groups`+where, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("count groups", err)
	}
	out := make([]ledger.TransactionGroup, 0)
	if f.Offset >= total {
		return out, total, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM transaction_groups`+where+`
		ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, storageErr("list groups", err)
	}
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		out = append(out, g)
		ids = append(ids, g.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("list groups", err)
	}
	entries, err := s.loadEntries(ctx, s.db, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Entries = entries[out[i].ID]
	}
	return out, total, nil
}

func groupWhere(f ledger.GroupFilter) (string, []any) {
	var conds []string
	var args []any
	if f.From != nil {
		conds = append(conds, `date >= ?`)
		args = append(args, ledger.FormatDay(*f.From))
	}
	if f.To != nil {
		conds = append(conds, `date <= ?`)
		args = append(args, ledger.FormatDay(*f.To))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanGroup(r scanner) (ledger.TransactionGroup, error) {
	var (
		g        ledger.TransactionGroup
		scenario string
		date     string
		ts       int64
		key      sql.NullString
		md       meta.Metadata
	)
	if err := r.Scan(&g.ID, &scenario, &date, &ts, &g.CustomerName, &g.Description, &key, &g.Fingerprint, &md); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.TransactionGroup{}, err
		}
		return ledger.TransactionGroup{}, storageErr("scan group", err)
	}
	day, err := ledger.ParseDay(date)
	if err != nil {
		return ledger.TransactionGroup{}, storageErr("scan group date", err)
	}
	g.Scenario = ledger.ScenarioKind(scenario)
	g.Date = day
	g.Timestamp = time.Unix(ts, 0).UTC()
	g.IdempotencyKey = key.String
	g.Metadata = md
	return g, nil
}

func (s *Store) loadEntries(ctx context.Context, q querier, groupIDs []uuid.UUID) (map[uuid.UUID][]ledger.Entry, error) {
	out := make(map[uuid.UUID][]ledger.Entry, len(groupIDs))
	if len(groupIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(groupIDs))
	for _, id := range groupIDs {
		args = append(args, id)
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, group_id, account_id, direction, amount_minor, description
		FROM transactions
		WHERE group_id IN (`+placeholders(len(groupIDs))+`)
		ORDER BY group_id, seq
	`, args...)
	if err != nil {
		return nil, storageErr("load entries", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := s.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out[e.GroupID] = append(out[e.GroupID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load entries", err)
	}
	return out, nil
}

func (s *Store) scanEntry(r scanner, extra ...any) (ledger.Entry, error) {
	var (
		e     ledger.Entry
		dir   string
		units int64
	)
	dest := append([]any{&e.ID, &e.GroupID, &e.AccountID, &dir, &units, &e.Description}, extra...)
	if err := r.Scan(dest...); err != nil {
		return ledger.Entry{}, storageErr("scan entry", err)
	}
	e.Direction = ledger.Direction(dir)
	amt, err := s.amount(units)
	if err != nil {
		return ledger.Entry{}, err
	}
	e.Amount = amt
	return e, nil
}

const postedQuery = `
	SELECT t.id, t.group_id, t.account_id, t.direction, t.amount_minor, t.description, g.scenario, g.timestamp
	FROM transactions t
	JOIN transaction_groups g ON g.id = t.group_id
`

// EntriesForAccount returns the account's entries stamped at or after since
// (strictly after when inclusive is false), oldest first.
func (s *Store) EntriesForAccount(ctx context.Context, accountID uuid.UUID, since time.Time, inclusive bool) ([]ledger.PostedEntry, error) {
	return s.entriesForAccount(ctx, s.db, accountID, since, inclusive)
}

// AccountHistory reads the account and its entries since the cutoff in one
// transaction, so both come from the same snapshot.
func (s *Store) AccountHistory(ctx context.Context, accountID uuid.UUID, since time.Time, inclusive bool) (ledger.Account, []ledger.PostedEntry, error) {
	var (
		acc     ledger.Account
		entries []ledger.PostedEntry
	)
	err := s.transaction(ctx, func(tx *sql.Tx) error {
		var err error
		if acc, err = s.accountWhere(ctx, tx, `id = ?`, accountID); err != nil {
			return err
		}
		entries, err = s.entriesForAccount(ctx, tx, accountID, since, inclusive)
		return err
	})
	if err != nil {
		return ledger.Account{}, nil, err
	}
	return acc, entries, nil
}

func (s *Store) entriesForAccount(ctx context.Context, q querier, accountID uuid.UUID, since time.Time, inclusive bool) ([]ledger.PostedEntry, error) {
	op := ">"
	if inclusive {
		op = ">="
	}
	return s.posted(ctx, q, postedQuery+`WHERE t.account_id = ? AND g.timestamp `+op+` ?
		ORDER BY g.timestamp, g.id, t.seq`, accountID, since.Unix())
}

// EntriesBetween returns every entry stamped within [from, to], oldest first.
func (s *Store) EntriesBetween(ctx context.Context, from, to time.Time) ([]ledger.PostedEntry, error) {
	return s.posted(ctx, s.db, postedQuery+`WHERE g.timestamp BETWEEN ? AND ?
		ORDER BY g.timestamp, g.id, t.seq`, from.Unix(), to.Unix())
}

func (s *Store) posted(ctx context.Context, q querier, query string, args ...any) ([]ledger.PostedEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("posted entries", err)
	}
	defer rows.Close()
	out := make([]ledger.PostedEntry, 0)
	for rows.Next() {
		var scenario string
		var ts int64
		e, err := s.scanEntry(rows, &scenario, &ts)
		if err != nil {
			return nil, err
		}
		out = append(out, ledger.PostedEntry{Entry: e, Scenario: ledger.ScenarioKind(scenario), Timestamp: time.Unix(ts, 0).UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("posted entries", err)
	}
	return out, nil
}

// --- Daily records ---

func (s *Store) GetDailyRecord(ctx context.Context, day time.Time) (ledger.DailyRecord, error) {
	var (
		r                                     ledger.DailyRecord
		date, status                          string
		opening, closing, physical, diff, upd int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT date, account_id, opening_minor, closing_minor, physical_minor, difference_minor, status, notes, updated_at
		FROM daily_records WHERE date = ?
	`, ledger.FormatDay(day)).Scan(&date, &r.AccountID, &opening, &closing, &physical, &diff, &status, &r.Notes, &upd)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.DailyRecord{}, errs.ErrNotFound
	}
	if err != nil {
		return ledger.DailyRecord{}, storageErr("get daily record", err)
	}
	if r.Date, err = ledger.ParseDay(date); err != nil {
		return ledger.DailyRecord{}, storageErr("daily record date", err)
	}
	r.Status = ledger.RecordStatus(status)
	r.UpdatedAt = time.Unix(upd, 0).UTC()
	for _, f := range []struct {
		dst   *money.Amount
		units int64
	}{{&r.Opening, opening}, {&r.Closing, closing}, {&r.PhysicalCount, physical}, {&r.Difference, diff}} {
		if *f.dst, err = s.amount(f.units); err != nil {
			return ledger.DailyRecord{}, err
		}
	}
	return r, nil
}

// SaveDailyRecord upserts the record for its date.
func (s *Store) SaveDailyRecord(ctx context.Context, r ledger.DailyRecord) (ledger.DailyRecord, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_records (date, account_id, opening_minor, closing_minor, physical_minor, difference_minor, status, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			account_id = excluded.account_id,
			opening_minor = excluded.opening_minor,
			closing_minor = excluded.closing_minor,
			physical_minor = excluded.physical_minor,
			difference_minor = excluded.difference_minor,
			status = excluded.status,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`, ledger.FormatDay(r.Date), r.AccountID, ledger.MustMinor(r.Opening), ledger.MustMinor(r.Closing),
		ledger.MustMinor(r.PhysicalCount), ledger.MustMinor(r.Difference), string(r.Status), r.Notes, r.UpdatedAt.Unix())
	if err != nil {
		return ledger.DailyRecord{}, storageErr("save daily record", err)
	}
	return r, nil
}

// --- helpers ---

func (s *Store) amount(units int64) (money.Amount, error) {
	a, err := ledger.FromMinor(s.currency, units)
	if err != nil {
		return money.Amount{}, storageErr("decode amount", err)
	}
	return a, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: sqlite %s: %w", errs.ErrStorage, op, err)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
