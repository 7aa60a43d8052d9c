package quota

import (
	"context"
	"sync"
)

// MemoryLedger keeps counters in process memory. Counters reset on restart.
type MemoryLedger struct {
	opts    options
	entries sync.Map // identity -> *counter
}

type counter struct {
	mu     sync.Mutex
	day    string
	tokens int
	// pruned entries have been removed from the map; callers must reload.
	pruned bool
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an in-memory ledger.
func NewMemoryLedger(opts ...Option) *MemoryLedger {
	return &MemoryLedger{opts: buildOptions(opts)}
}

// lock returns the identity's live counter, locked and rolled over to today.
func (l *MemoryLedger) lock(identity, today string) *counter {
	for {
		v, _ := l.entries.LoadOrStore(identity, &counter{day: today})
		c := v.(*counter)
		c.mu.Lock()
		if c.pruned {
			c.mu.Unlock()
			continue
		}
		if c.day != today {
			c.day = today
			c.tokens = 0
		}
		return c
	}
}

func (l *MemoryLedger) CheckAndCharge(ctx context.Context, identity string, tokens int) (Decision, error) {
	if tokens < 0 {
		return Decision{}, ErrNegativeCharge
	}

	c := l.lock(identity, l.opts.today())
	defer c.mu.Unlock()

	if c.tokens+tokens > l.opts.ceiling {
		return Decision{Allowed: false, Total: c.tokens}, nil
	}
	c.tokens += tokens
	return Decision{Allowed: true, Total: c.tokens}, nil
}

func (l *MemoryLedger) Absorb(ctx context.Context, identity string, tokens int) error {
	if tokens < 0 {
		return ErrNegativeCharge
	}

	c := l.lock(identity, l.opts.today())
	c.tokens += tokens
	c.mu.Unlock()
	return nil
}

func (l *MemoryLedger) Usage(ctx context.Context, identity string) (Usage, error) {
	today := l.opts.today()

	v, ok := l.entries.Load(identity)
	if !ok {
		return usageOf(identity, today, 0, l.opts.ceiling), nil
	}
	c := v.(*counter)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pruned || c.day != today {
		return usageOf(identity, today, 0, l.opts.ceiling), nil
	}
	return usageOf(identity, today, c.tokens, l.opts.ceiling), nil
}

func (l *MemoryLedger) Prune(ctx context.Context, day string) (int, error) {
	removed := 0
	l.entries.Range(func(key, value any) bool {
		c := value.(*counter)
		c.mu.Lock()
		if !c.pruned && c.day < day && l.entries.CompareAndDelete(key, c) {
			c.pruned = true
			removed++
		}
		c.mu.Unlock()
		return ctx.Err() == nil
	})
	return removed, ctx.Err()
}

func (l *MemoryLedger) Ceiling() int {
	return l.opts.ceiling
}

func (l *MemoryLedger) Close() error {
	return nil
}
