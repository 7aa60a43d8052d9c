package conversation

import (
	"context"
	"testing"

	"github.com/caviaarmode/shopping-assistant/internal/api/middleware"
	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

func TestRecordPersistsWithCancelledContext(t *testing.T) {
	store := NewMemoryStore()

	ctx, cancel := context.WithCancel(middleware.WithRequestID(context.Background(), "req-1"))
	cancel() // simulate client disconnect

	err := Record(ctx, store, "s1",
		domain.Message{Role: domain.RoleUser, Content: "hi"},
		domain.Message{Role: domain.RoleAssistant, Content: "hello"},
	)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	msgs, err := store.Recent(context.Background(), "s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages to be stored, got %d", len(msgs))
	}
	if got := msgs[0].Metadata["request_id"]; got != "req-1" {
		t.Errorf("request_id metadata = %v, want req-1", got)
	}
}

func TestRecordNilStore(t *testing.T) {
	if err := Record(context.Background(), nil, "s1", domain.Message{Content: "x"}); err != nil {
		t.Errorf("Record(nil store) error = %v", err)
	}
}
