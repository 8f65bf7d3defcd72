package sqlite

import "fmt"

// Schema is applied on every Open; all statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	category      TEXT NOT NULL CHECK (category IN ('ASSET','LIABILITY','EQUITY','REVENUE','EXPENSE')),
	opening_minor INTEGER NOT NULL DEFAULT 0,
	balance_minor INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transaction_groups (
	id              TEXT PRIMARY KEY,
	scenario        TEXT NOT NULL,
	date            TEXT NOT NULL,
	timestamp       INTEGER NOT NULL,
	customer_name   TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	idempotency_key TEXT UNIQUE,
	fingerprint     TEXT NOT NULL DEFAULT '',
	metadata        TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_groups_timestamp ON transaction_groups(timestamp, id);
CREATE INDEX IF NOT EXISTS idx_groups_date ON transaction_groups(date);

CREATE TABLE IF NOT EXISTS transactions (
	id           TEXT PRIMARY KEY,
	group_id     TEXT NOT NULL REFERENCES transaction_groups(id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	account_id   TEXT NOT NULL REFERENCES accounts(id),
	direction    TEXT NOT NULL CHECK (direction IN ('DEBIT','CREDIT')),
	amount_minor INTEGER NOT NULL CHECK (amount_minor > 0),
	description  TEXT NOT NULL DEFAULT '',
	UNIQUE (group_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id);

CREATE TABLE IF NOT EXISTS daily_records (
	date             TEXT PRIMARY KEY,
	account_id       TEXT NOT NULL REFERENCES accounts(id),
	opening_minor    INTEGER NOT NULL,
	closing_minor    INTEGER NOT NULL,
	physical_minor   INTEGER NOT NULL,
	difference_minor INTEGER NOT NULL,
	status           TEXT NOT NULL CHECK (status IN ('OPEN','CLOSED')),
	notes            TEXT NOT NULL DEFAULT '',
	updated_at       INTEGER NOT NULL
);
`

// InitializeSchema creates the tables if they do not exist.
func InitializeSchema(s *Store) error {
	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
