package kafka

import (
	"testing"

	"github.com/tinoosan/kiosk-ledger/internal/events"
)

func TestNewPublisher_Topic(t *testing.T) {
	p := NewPublisher([]string{"localhost:9092"}, "")
	defer p.Close()
	if p.writer.Topic != events.TopicGroupCommitted {
		t.Fatalf("default topic: got %q", p.writer.Topic)
	}
	q := NewPublisher([]string{"a:9092", "b:9092"}, "kiosk.audit")
	defer q.Close()
	if q.writer.Topic != "kiosk.audit" {
		t.Fatalf("topic: got %q", q.writer.Topic)
	}
}

var _ events.Publisher = (*Publisher)(nil)
