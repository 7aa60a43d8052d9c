package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

// Redis key prefix for sessions
const sessionKeyPrefix = "session:"

// DefaultSessionTTL is the idle expiry applied when none is configured.
const DefaultSessionTTL = 24 * time.Hour

// RedisStore keeps each session in three keys: a hash of timestamps,
// a list of JSON-encoded messages, and a hash for the context map.
type RedisStore struct {
	client *redis.Client
	opts   options
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store. The client is closed by Close.
func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	o := buildOptions(opts)
	if o.ttl <= 0 {
		o.ttl = DefaultSessionTTL
	}
	return &RedisStore{client: client, opts: o}
}

func (s *RedisStore) metaKey(id string) string     { return sessionKeyPrefix + id }
func (s *RedisStore) messagesKey(id string) string { return sessionKeyPrefix + id + ":messages" }
func (s *RedisStore) contextKey(id string) string  { return sessionKeyPrefix + id + ":context" }

// touch queues creation (if new), activity timestamps and expiry refresh on pipe.
func (s *RedisStore) touch(ctx context.Context, pipe redis.Pipeliner, id string, now time.Time, activity bool) {
	ts := now.UTC().Format(time.RFC3339Nano)
	meta := s.metaKey(id)
	pipe.HSetNX(ctx, meta, "created_at", ts)
	pipe.HSetNX(ctx, meta, "last_activity", ts)
	pipe.HSet(ctx, meta, "updated_at", ts)
	if activity {
		pipe.HSet(ctx, meta, "last_activity", ts)
	}
	pipe.Expire(ctx, meta, s.opts.ttl)
	pipe.Expire(ctx, s.messagesKey(id), s.opts.ttl)
	pipe.Expire(ctx, s.contextKey(id), s.opts.ttl)
}

func (s *RedisStore) GetOrCreate(ctx context.Context, sessionID string) (*domain.Session, error) {
	now := s.opts.clock()

	var (
		metaCmd *redis.MapStringStringCmd
		msgsCmd *redis.StringSliceCmd
		ctxCmd  *redis.MapStringStringCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		ts := now.UTC().Format(time.RFC3339Nano)
		meta := s.metaKey(sessionID)
		pipe.HSetNX(ctx, meta, "created_at", ts)
		pipe.HSetNX(ctx, meta, "updated_at", ts)
		pipe.HSetNX(ctx, meta, "last_activity", ts)
		pipe.Expire(ctx, meta, s.opts.ttl)
		metaCmd = pipe.HGetAll(ctx, meta)
		msgsCmd = pipe.LRange(ctx, s.messagesKey(sessionID), 0, -1)
		ctxCmd = pipe.HGetAll(ctx, s.contextKey(sessionID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	meta := metaCmd.Val()
	sess := &domain.Session{
		ID:           sessionID,
		Context:      ctxCmd.Val(),
		CreatedAt:    parseTime(meta["created_at"]),
		UpdatedAt:    parseTime(meta["updated_at"]),
		LastActivity: parseTime(meta["last_activity"]),
	}
	if sess.Context == nil {
		sess.Context = map[string]string{}
	}
	sess.Messages, err = decodeMessages(msgsCmd.Val())
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Append runs in a MULTI block; RPUSH keeps order and never drops a concurrent append.
func (s *RedisStore) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	now := s.opts.clock()

	values := make([]any, 0, len(msgs))
	for _, m := range stamp(msgs, now) {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
		values = append(values, b)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.messagesKey(sessionID), values...)
		s.touch(ctx, pipe, sessionID, now, true)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	return nil
}

func (s *RedisStore) Recent(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	raw, err := s.client.LRange(ctx, s.messagesKey(sessionID), int64(-limit), -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}
	return decodeMessages(raw)
}

func (s *RedisStore) SetContext(ctx context.Context, sessionID, key, value string) error {
	now := s.opts.clock()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.contextKey(sessionID), key, value)
		s.touch(ctx, pipe, sessionID, now, false)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set context: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeMessages(raw []string) ([]domain.Message, error) {
	out := make([]domain.Message, 0, len(raw))
	for _, r := range raw {
		var m domain.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
