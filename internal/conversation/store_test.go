package conversation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
	"github.com/caviaarmode/shopping-assistant/internal/storage/sqldb"
)

type storeFactory func(t *testing.T, opts ...Option) Store

var dbCounter atomic.Int64

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, opts ...Option) Store {
			return NewMemoryStore(opts...)
		},
		"sqlite": func(t *testing.T, opts ...Option) Store {
			dsn := fmt.Sprintf("file:conversation_%d?mode=memory&cache=shared", dbCounter.Add(1))
			db, err := sqldb.OpenSQLite(dsn)
			if err != nil {
				t.Fatalf("OpenSQLite() error = %v", err)
			}
			t.Cleanup(func() { db.Close() })

			s, err := NewSQLStore(db, opts...)
			if err != nil {
				t.Fatalf("NewSQLStore() error = %v", err)
			}
			return s
		},
		"redis": func(t *testing.T, opts ...Option) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			s := NewRedisStore(client, opts...)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func userMsg(content string) domain.Message {
	return domain.Message{Role: domain.RoleUser, Content: content}
}

func TestStore_GetOrCreateIdempotent(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			first, err := s.GetOrCreate(ctx, "abc")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			if first.ID != "abc" || len(first.Messages) != 0 {
				t.Fatalf("new session = %+v, want empty session abc", first)
			}

			if err := s.Append(ctx, "abc", userMsg("hello")); err != nil {
				t.Fatal(err)
			}

			second, err := s.GetOrCreate(ctx, "abc")
			if err != nil {
				t.Fatal(err)
			}
			if second.ID != first.ID {
				t.Errorf("session id changed: %q -> %q", first.ID, second.ID)
			}
			if !second.CreatedAt.Equal(first.CreatedAt) {
				t.Errorf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
			}
			if len(second.Messages) != 1 {
				t.Errorf("messages = %d, want 1", len(second.Messages))
			}

			other, err := s.GetOrCreate(ctx, "xyz")
			if err != nil {
				t.Fatal(err)
			}
			if len(other.Messages) != 0 {
				t.Errorf("session xyz shares history: %d messages", len(other.Messages))
			}
		})
	}
}

func TestStore_RecentWindow(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			for i := 0; i < 15; i++ {
				if err := s.Append(ctx, "s", userMsg(fmt.Sprintf("m%d", i))); err != nil {
					t.Fatal(err)
				}
			}

			tests := []struct {
				limit     int
				wantLen   int
				wantFirst string
			}{
				{limit: 10, wantLen: 10, wantFirst: "m5"},
				{limit: 3, wantLen: 3, wantFirst: "m12"},
				{limit: 50, wantLen: 15, wantFirst: "m0"},
				{limit: 0, wantLen: 0},
			}
			for _, tt := range tests {
				got, err := s.Recent(ctx, "s", tt.limit)
				if err != nil {
					t.Fatalf("Recent(%d) error = %v", tt.limit, err)
				}
				if len(got) != tt.wantLen {
					t.Errorf("Recent(%d) len = %d, want %d", tt.limit, len(got), tt.wantLen)
					continue
				}
				if tt.wantLen > 0 {
					if got[0].Content != tt.wantFirst {
						t.Errorf("Recent(%d)[0] = %q, want %q", tt.limit, got[0].Content, tt.wantFirst)
					}
					if got[len(got)-1].Content != "m14" {
						t.Errorf("Recent(%d) last = %q, want m14", tt.limit, got[len(got)-1].Content)
					}
				}
			}

			empty, err := s.Recent(ctx, "unknown", 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(empty) != 0 {
				t.Errorf("Recent(unknown) = %d messages, want 0", len(empty))
			}
		})
	}
}

func TestStore_AppendPreservesFields(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
			s := newStore(t, WithClock(func() time.Time { return ts }))

			err := s.Append(ctx, "s",
				userMsg("what sizes do you have"),
				domain.Message{
					Role:     domain.RoleAssistant,
					Content:  "S to XXL",
					Metadata: map[string]any{"intent": "size_guide"},
				},
			)
			if err != nil {
				t.Fatal(err)
			}

			got, err := s.Recent(ctx, "s", 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d messages, want 2", len(got))
			}
			if got[0].Role != domain.RoleUser || got[1].Role != domain.RoleAssistant {
				t.Errorf("roles = %s, %s", got[0].Role, got[1].Role)
			}
			if !got[0].Timestamp.Equal(ts) {
				t.Errorf("timestamp = %v, want %v", got[0].Timestamp, ts)
			}
			if got[1].Metadata["intent"] != "size_guide" {
				t.Errorf("metadata = %v", got[1].Metadata)
			}
		})
	}
}

func TestStore_ConcurrentAppendsKeepEveryMessage(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			const writers = 20
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := s.Append(ctx, "shared",
						userMsg(fmt.Sprintf("q%d", i)),
						domain.Message{Role: domain.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
					)
					if err != nil {
						t.Errorf("Append() error = %v", err)
					}
				}(i)
			}
			wg.Wait()

			got, err := s.Recent(ctx, "shared", 1000)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != writers*2 {
				t.Fatalf("stored %d messages, want %d", len(got), writers*2)
			}
			// Each exchange's pair stays adjacent.
			for i := 0; i < len(got); i += 2 {
				q, a := got[i].Content, got[i+1].Content
				if q[1:] != a[1:] || q[0] != 'q' || a[0] != 'a' {
					t.Errorf("interleaved pair at %d: %q, %q", i, q, a)
				}
			}
		})
	}
}

func TestStore_SetContext(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			if err := s.SetContext(ctx, "s", "last_intent", "payments"); err != nil {
				t.Fatalf("SetContext() error = %v", err)
			}
			if err := s.SetContext(ctx, "s", "locale", "en"); err != nil {
				t.Fatal(err)
			}
			if err := s.SetContext(ctx, "s", "last_intent", "returns"); err != nil {
				t.Fatal(err)
			}

			sess, err := s.GetOrCreate(ctx, "s")
			if err != nil {
				t.Fatal(err)
			}
			if sess.Context["last_intent"] != "returns" || sess.Context["locale"] != "en" {
				t.Errorf("context = %v", sess.Context)
			}
		})
	}
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Append(ctx, "s", userMsg("one"))

	sess, _ := s.GetOrCreate(ctx, "s")
	sess.Messages[0].Content = "mutated"
	sess.Context["k"] = "v"

	again, _ := s.GetOrCreate(ctx, "s")
	if again.Messages[0].Content != "one" {
		t.Error("caller mutation leaked into stored messages")
	}
	if _, ok := again.Context["k"]; ok {
		t.Error("caller mutation leaked into stored context")
	}
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, WithTTL(time.Hour))
	defer s.Close()

	if err := s.Append(context.Background(), "s", userMsg("hi")); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("session:s:messages"); ttl != time.Hour {
		t.Errorf("messages TTL = %v, want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if mr.Exists("session:s:messages") {
		t.Error("messages should have expired")
	}
}
