// Package events defines the notifications emitted after ledger commits.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/kiosk-ledger/internal/ledger"
)

// TopicGroupCommitted is the default topic for GroupCommitted events.
const TopicGroupCommitted = "kiosk.group_committed"

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev GroupCommitted) error
	Close() error
}

// GroupCommitted is emitted once per newly committed transaction group.
type GroupCommitted struct {
	GroupID   uuid.UUID           `json:"group_id"`
	Scenario  ledger.ScenarioKind `json:"scenario"`
	Date      string              `json:"date"`
	Timestamp int64               `json:"timestamp"`
	Entries   []EntryPayload      `json:"entries"`
}

type EntryPayload struct {
	AccountID   uuid.UUID        `json:"account_id"`
	Direction   ledger.Direction `json:"direction"`
	AmountMinor int64            `json:"amount_minor"`
	Currency    string           `json:"currency"`
}

func NewGroupCommitted(g ledger.TransactionGroup) GroupCommitted {
	ev := GroupCommitted{
		GroupID:   g.ID,
		Scenario:  g.Scenario,
		Date:      ledger.FormatDay(g.Date),
		Timestamp: g.Timestamp.Unix(),
		Entries:   make([]EntryPayload, 0, len(g.Entries)),
	}
	for _, e := range g.Entries {
		ev.Entries = append(ev.Entries, EntryPayload{
			AccountID:   e.AccountID,
			Direction:   e.Direction,
			AmountMinor: ledger.MustMinor(e.Amount),
			Currency:    e.Amount.Curr().Code(),
		})
	}
	return ev
}

// OccurredAt returns the commit time of the group.
func (e GroupCommitted) OccurredAt() time.Time { return time.Unix(e.Timestamp, 0).UTC() }

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, GroupCommitted) error { return nil }
func (Nop) Close() error                                  { return nil }

// Recorder keeps published events in memory, for tests and local runs.
type Recorder struct {
	mu     sync.Mutex
	events []GroupCommitted
}

func (r *Recorder) Publish(_ context.Context, ev GroupCommitted) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []GroupCommitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]GroupCommitted(nil), r.events...)
}

func (r *Recorder) Close() error { return nil }
