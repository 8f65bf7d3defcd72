// Package memory provides an in-memory store used for development and tests.
// A commit stages every balance change before applying any of them, so a
// failed commit leaves the store exactly as it was.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
	"github.com/tinoosan/kiosk-ledger/internal/ledger"
)

// groupKey orders groups asc by (Timestamp, ID).
type groupKey struct {
	Timestamp time.Time
	ID        uuid.UUID
}

func (k groupKey) after(o groupKey) bool {
	if !k.Timestamp.Equal(o.Timestamp) {
		return k.Timestamp.After(o.Timestamp)
	}
	return k.ID.String() > o.ID.String()
}

// Store is guarded by an RWMutex; commits take the write lock for their whole duration.
type Store struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]ledger.Account
	accountOrder []uuid.UUID
	groups       map[uuid.UUID]ledger.TransactionGroup
	groupKeys    []groupKey
	idem         map[string]uuid.UUID
	records      map[string]ledger.DailyRecord

	// failAfter makes the next commits fail once this many entries are staged. Zero disables it.
	failAfter int
}

// New constructs an empty in-memory store.
func New() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops all data.
func (s *Store) Reset() {
	s.mu.Lock()
	s.accounts = map[uuid.UUID]ledger.Account{}
	s.accountOrder = nil
	s.groups = map[uuid.UUID]ledger.TransactionGroup{}
	s.groupKeys = nil
	s.idem = map[string]uuid.UUID{}
	s.records = map[string]ledger.DailyRecord{}
	s.mu.Unlock()
}

// Ready always succeeds for the in-memory store.
func (s *Store) Ready(context.Context) error { return nil }

// --- Accounts ---

func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0, len(s.accountOrder))
	for _, id := range s.accountOrder {
		out = append(out, s.accounts[id])
	}
	return out, nil
}

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

func (s *Store) AccountByName(_ context.Context, name string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.byNameLocked(name); ok {
		return a, nil
	}
	return ledger.Account{}, errs.ErrNotFound
}

func (s *Store) AccountsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (s *Store) CreateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byNameLocked(a.Name); ok {
		return ledger.Account{}, fmt.Errorf("%w: %q", errs.ErrDuplicateAccountName, a.Name)
	}
	if _, ok := s.accounts[a.ID]; ok {
		return ledger.Account{}, fmt.Errorf("%w: account %s exists", errs.ErrConflict, a.ID)
	}
	s.accounts[a.ID] = a
	s.accountOrder = append(s.accountOrder, a.ID)
	return a, nil
}

func (s *Store) RenameAccount(_ context.Context, id uuid.UUID, name string) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	if other, ok := s.byNameLocked(name); ok && other.ID != id {
		return ledger.Account{}, fmt.Errorf("%w: %q", errs.ErrDuplicateAccountName, name)
	}
	a.Name = name
	s.accounts[id] = a
	return a, nil
}

// SeedAccount inserts a without any checks, for tests.
func (s *Store) SeedAccount(a ledger.Account) {
	s.mu.Lock()
	if _, ok := s.accounts[a.ID]; !ok {
		s.accountOrder = append(s.accountOrder, a.ID)
	}
	s.accounts[a.ID] = a
	s.mu.Unlock()
}

func (s *Store) byNameLocked(name string) (ledger.Account, bool) {
	for _, id := range s.accountOrder {
		if a := s.accounts[id]; a.Name == name {
			return a, true
		}
	}
	return ledger.Account{}, false
}

// --- Transaction groups ---

// CommitGroup stores g and applies its balance effects atomically. A reused
// idempotency key with the same fingerprint returns the stored group and true.
func (s *Store) CommitGroup(_ context.Context, g ledger.TransactionGroup) (ledger.TransactionGroup, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.IdempotencyKey != "" {
		if id, ok := s.idem[g.IdempotencyKey]; ok {
			prior := s.groups[id]
			if prior.Fingerprint != g.Fingerprint {
				return ledger.TransactionGroup{}, false, fmt.Errorf("%w: idempotency key %q reused with a different payload", errs.ErrConflict, g.IdempotencyKey)
			}
			return cloneGroup(prior), true, nil
		}
	}
	if _, ok := s.groups[g.ID]; ok {
		return ledger.TransactionGroup{}, false, fmt.Errorf("%w: group %s exists", errs.ErrConflict, g.ID)
	}
	for _, e := range g.Entries {
		if _, ok := s.accounts[e.AccountID]; !ok {
			return ledger.TransactionGroup{}, false, fmt.Errorf("%w: %s", errs.ErrAccountNotFound, e.AccountID)
		}
	}

	staged := make(map[uuid.UUID]money.Amount, len(g.Entries))
	for i, e := range g.Entries {
		if s.failAfter > 0 && i == s.failAfter {
			return ledger.TransactionGroup{}, false, fmt.Errorf("%w: simulated failure after entry %d", errs.ErrStorage, i)
		}
		acc := s.accounts[e.AccountID]
		bal, ok := staged[e.AccountID]
		if !ok {
			bal = acc.Balance
		}
		next, err := ledger.Apply(bal, acc.Category, e.Direction, e.Amount)
		if err != nil {
			return ledger.TransactionGroup{}, false, err
		}
		staged[e.AccountID] = next
	}

	for id, bal := range staged {
		acc := s.accounts[id]
		acc.Balance = bal
		s.accounts[id] = acc
	}
	stored := cloneGroup(g)
	s.groups[g.ID] = stored
	s.insertGroupKeyLocked(groupKey{Timestamp: g.Timestamp, ID: g.ID})
	if g.IdempotencyKey != "" {
		s.idem[g.IdempotencyKey] = g.ID
	}
	return cloneGroup(stored), false, nil
}

func (s *Store) GetGroup(_ context.Context, id uuid.UUID) (ledger.TransactionGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return ledger.TransactionGroup{}, errs.ErrNotFound
	}
	return cloneGroup(g), nil
}

// ListGroups pages groups newest first, by timestamp then id.
func (s *Store) ListGroups(_ context.Context, f ledger.GroupFilter) ([]ledger.TransactionGroup, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.TransactionGroup, 0)
	total := 0
	for i := len(s.groupKeys) - 1; i >= 0; i-- {
		g := s.groups[s.groupKeys[i].ID]
		if f.From != nil && g.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && g.Date.After(*f.To) {
			continue
		}
		if total >= f.Offset && len(out) < f.Limit {
			out = append(out, cloneGroup(g))
		}
		total++
	}
	return out, total, nil
}

// EntriesForAccount returns the account's entries from groups stamped at or
// after since (after, when inclusive is false), oldest first.
func (s *Store) EntriesForAccount(_ context.Context, accountID uuid.UUID, since time.Time, inclusive bool) ([]ledger.PostedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entriesForAccountLocked(accountID, since, inclusive), nil
}

// AccountHistory returns the account and its entries since the cutoff from
// one consistent state.
func (s *Store) AccountHistory(_ context.Context, accountID uuid.UUID, since time.Time, inclusive bool) (ledger.Account, []ledger.PostedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return ledger.Account{}, nil, errs.ErrNotFound
	}
	return a, s.entriesForAccountLocked(accountID, since, inclusive), nil
}

// entriesForAccountLocked requires the read lock.
func (s *Store) entriesForAccountLocked(accountID uuid.UUID, since time.Time, inclusive bool) []ledger.PostedEntry {
	start := sort.Search(len(s.groupKeys), func(i int) bool {
		ts := s.groupKeys[i].Timestamp
		if inclusive {
			return !ts.Before(since)
		}
		return ts.After(since)
	})
	out := make([]ledger.PostedEntry, 0)
	for _, k := range s.groupKeys[start:] {
		g := s.groups[k.ID]
		for _, e := range g.Entries {
			if e.AccountID == accountID {
				out = append(out, ledger.PostedEntry{Entry: e, Scenario: g.Scenario, Timestamp: g.Timestamp})
			}
		}
	}
	return out
}

// EntriesBetween returns all entries from groups stamped within [from, to], oldest first.
func (s *Store) EntriesBetween(_ context.Context, from, to time.Time) ([]ledger.PostedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := sort.Search(len(s.groupKeys), func(i int) bool { return !s.groupKeys[i].Timestamp.Before(from) })
	out := make([]ledger.PostedEntry, 0)
	for _, k := range s.groupKeys[start:] {
		if k.Timestamp.After(to) {
			break
		}
		g := s.groups[k.ID]
		for _, e := range g.Entries {
			out = append(out, ledger.PostedEntry{Entry: e, Scenario: g.Scenario, Timestamp: g.Timestamp})
		}
	}
	return out, nil
}

// insertGroupKeyLocked keeps groupKeys sorted. Caller must hold the write lock.
func (s *Store) insertGroupKeyLocked(k groupKey) {
	keys := s.groupKeys
	i := sort.Search(len(keys), func(i int) bool { return keys[i].after(k) })
	keys = append(keys, groupKey{})
	copy(keys[i+1:], keys[i:])
	keys[i] = k
	s.groupKeys = keys
}

func cloneGroup(g ledger.TransactionGroup) ledger.TransactionGroup {
	out := g
	out.Entries = append([]ledger.Entry(nil), g.Entries...)
	out.Metadata = g.Metadata.Clone()
	return out
}

// --- Daily records ---

func (s *Store) GetDailyRecord(_ context.Context, day time.Time) (ledger.DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[ledger.FormatDay(day)]
	if !ok {
		return ledger.DailyRecord{}, errs.ErrNotFound
	}
	return r, nil
}

// SaveDailyRecord upserts the record for its date.
func (s *Store) SaveDailyRecord(_ context.Context, r ledger.DailyRecord) (ledger.DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[ledger.FormatDay(r.Date)] = r
	return r, nil
}
