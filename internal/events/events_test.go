package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/kiosk-ledger/internal/ledger"
)

func TestNewGroupCommitted(t *testing.T) {
	amt, _ := ledger.FromMinor("INR", 101000)
	cash, od := uuid.New(), uuid.New()
	ts := time.Date(2024, 3, 10, 11, 0, 0, 0, time.UTC)
	g := ledger.TransactionGroup{
		ID:        uuid.New(),
		Scenario:  ledger.KindWithdrawalMatched,
		Date:      time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Timestamp: ts,
		Entries: []ledger.Entry{
			{AccountID: od, Direction: ledger.DirectionDebit, Amount: amt},
			{AccountID: cash, Direction: ledger.DirectionCredit, Amount: amt},
		},
	}
	ev := NewGroupCommitted(g)
	if ev.GroupID != g.ID || ev.Date != "2024-03-10" || !ev.OccurredAt().Equal(ts) {
		t.Fatalf("unexpected header: %+v", ev)
	}
	if len(ev.Entries) != 2 || ev.Entries[0].AccountID != od || ev.Entries[1].AmountMinor != 101000 || ev.Entries[1].Currency != "INR" {
		t.Fatalf("unexpected entries: %+v", ev.Entries)
	}
}

func TestRecorder_Concurrent(t *testing.T) {
	var r Recorder
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Publish(context.Background(), GroupCommitted{GroupID: uuid.New()})
		}()
	}
	wg.Wait()
	got := r.Events()
	if len(got) != 20 {
		t.Fatalf("want 20 events, got %d", len(got))
	}
	got[0] = GroupCommitted{}
	if r.Events()[0].GroupID == uuid.Nil {
		t.Fatalf("Events must return a copy")
	}
}
