package quota

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestJanitor_Run(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLedger(WithClock(clock.Now))
	ctx := context.Background()

	l.CheckAndCharge(ctx, "a", 1)
	l.CheckAndCharge(ctx, "b", 1)
	clock.Advance(48 * time.Hour)
	l.CheckAndCharge(ctx, "c", 1)

	j, err := NewJanitor(l, "@daily", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewJanitor() error = %v", err)
	}
	j.clock = clock.Now

	if removed := j.Run(ctx); removed != 2 {
		t.Errorf("Run() removed = %d, want 2", removed)
	}
	if removed := j.Run(ctx); removed != 0 {
		t.Errorf("second Run() removed = %d, want 0", removed)
	}
}

func TestJanitor_InvalidSchedule(t *testing.T) {
	if _, err := NewJanitor(NewMemoryLedger(), "not a schedule", nil); err == nil {
		t.Error("NewJanitor() expected error for invalid schedule")
	}
}

func TestJanitor_StartStop(t *testing.T) {
	j, err := NewJanitor(NewMemoryLedger(), "@every 1h", nil)
	if err != nil {
		t.Fatal(err)
	}
	j.Start()
	j.Stop()
}
