package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefix for quota counters
	quotaKeyPrefix = "quota:"
	// Counters outlive their day so late reads still see them; expiry does the pruning.
	quotaKeyTTL = 48 * time.Hour
	// Optimistic transactions retried before giving up.
	maxTxRetries = 16
)

// ErrContention is returned when a charge loses the optimistic race too many times.
var ErrContention = errors.New("quota: too much contention on counter")

// RedisLedger keeps one integer key per identity and day.
type RedisLedger struct {
	client *redis.Client
	opts   options
}

var _ Ledger = (*RedisLedger)(nil)

// NewRedisLedger creates a Redis-backed ledger. The client is closed by Close.
func NewRedisLedger(client *redis.Client, opts ...Option) *RedisLedger {
	return &RedisLedger{client: client, opts: buildOptions(opts)}
}

// CheckAndCharge uses WATCH/MULTI/EXEC so concurrent charges for one identity
// cannot both pass the ceiling check.
func (l *RedisLedger) CheckAndCharge(ctx context.Context, identity string, tokens int) (Decision, error) {
	if tokens < 0 {
		return Decision{}, ErrNegativeCharge
	}

	key := l.key(identity, l.opts.today())
	var decision Decision

	txf := func(tx *redis.Tx) error {
		current, err := getInt(ctx, tx, key)
		if err != nil {
			return err
		}

		if current+tokens > l.opts.ceiling {
			decision = Decision{Allowed: false, Total: current}
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.IncrBy(ctx, key, int64(tokens))
			pipe.Expire(ctx, key, quotaKeyTTL)
			return nil
		})
		if err != nil {
			return err
		}
		decision = Decision{Allowed: true, Total: current + tokens}
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := l.client.Watch(ctx, txf, key)
		if err == nil {
			return decision, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Decision{}, fmt.Errorf("charge tokens: %w", err)
	}
	return Decision{}, ErrContention
}

func (l *RedisLedger) Absorb(ctx context.Context, identity string, tokens int) error {
	if tokens < 0 {
		return ErrNegativeCharge
	}

	key := l.key(identity, l.opts.today())
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.IncrBy(ctx, key, int64(tokens))
		pipe.Expire(ctx, key, quotaKeyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("absorb tokens: %w", err)
	}
	return nil
}

func (l *RedisLedger) Usage(ctx context.Context, identity string) (Usage, error) {
	day := l.opts.today()
	used, err := getInt(ctx, l.client, l.key(identity, day))
	if err != nil {
		return Usage{}, fmt.Errorf("read usage: %w", err)
	}
	return usageOf(identity, day, used, l.opts.ceiling), nil
}

// Prune is a no-op: counters expire on their own.
func (l *RedisLedger) Prune(ctx context.Context, day string) (int, error) {
	return 0, nil
}

func (l *RedisLedger) Ceiling() int {
	return l.opts.ceiling
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}

func (l *RedisLedger) key(identity, day string) string {
	return quotaKeyPrefix + identity + ":" + day
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getInt(ctx context.Context, c stringGetter, key string) (int, error) {
	val, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter %s: %w", key, err)
	}
	return n, nil
}
