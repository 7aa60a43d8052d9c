// Package conversation keeps per-session message history and a small context map.
//
// Appends to one session are serialized by every backend so concurrent
// exchanges never lose a message. Recent returns a bounded, chronological
// window used to compose the next model request.
package conversation

import (
	"context"
	"time"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

// DefaultHistoryLimit bounds the replay window when no limit is configured.
const DefaultHistoryLimit = 10

// Store is the session persistence abstraction.
type Store interface {
	// GetOrCreate returns the session, creating an empty one on first reference.
	GetOrCreate(ctx context.Context, sessionID string) (*domain.Session, error)

	// Append adds messages in order, creating the session if needed.
	Append(ctx context.Context, sessionID string, msgs ...domain.Message) error

	// Recent returns at most limit of the newest messages, oldest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)

	// SetContext stores one key in the session's context map.
	SetContext(ctx context.Context, sessionID, key, value string) error

	Close() error
}

// Clock supplies the current time.
type Clock func() time.Time

// Option configures a store.
type Option func(*options)

type options struct {
	clock Clock
	ttl   time.Duration
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithTTL sets the idle expiry for backends that support it (Redis).
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		o.ttl = d
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// stamp fills a zero message timestamp.
func stamp(msgs []domain.Message, now time.Time) []domain.Message {
	out := make([]domain.Message, len(msgs))
	for i, m := range msgs {
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		out[i] = m
	}
	return out
}
