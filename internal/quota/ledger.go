// Package quota tracks per-identity daily token consumption against a ceiling.
//
// A Ledger keeps one counter per (identity, calendar day). CheckAndCharge is
// atomic per identity: the charge is applied only if the running total plus
// the new amount stays within the ceiling. Absorb records tokens that were
// already spent (a completed model call whose reply was withheld) and may push
// the total past the ceiling, so Usage.Remaining can be negative.
package quota

import (
	"context"
	"errors"
	"time"
)

// DayLayout is the calendar-day key format.
const DayLayout = "2006-01-02"

// DefaultCeiling is the daily token allowance per identity.
const DefaultCeiling = 500

// ErrNegativeCharge rejects charges below zero.
var ErrNegativeCharge = errors.New("quota: negative token amount")

// Decision is the outcome of CheckAndCharge.
type Decision struct {
	Allowed bool
	// Total is the running total after the charge, or before it when denied.
	Total int
}

// Usage is the read-only view of an identity's counter for today.
type Usage struct {
	Identity  string `json:"-"`
	Used      int    `json:"tokens_used"`
	Remaining int    `json:"tokens_remaining"`
	Day       string `json:"date"`
}

// Ledger is the quota accounting abstraction handed to the orchestrator.
type Ledger interface {
	CheckAndCharge(ctx context.Context, identity string, tokens int) (Decision, error)
	Absorb(ctx context.Context, identity string, tokens int) error
	Usage(ctx context.Context, identity string) (Usage, error)

	// Prune drops counters for days strictly before day and reports how many went.
	Prune(ctx context.Context, day string) (int, error)

	Ceiling() int
	Close() error
}

// Clock supplies the current time.
type Clock func() time.Time

// Option configures a ledger.
type Option func(*options)

type options struct {
	ceiling int
	clock   Clock
}

// WithCeiling sets the daily token ceiling.
func WithCeiling(n int) Option {
	return func(o *options) {
		o.ceiling = n
	}
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

func buildOptions(opts []Option) options {
	o := options{ceiling: DefaultCeiling, clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ceiling < 0 {
		o.ceiling = 0
	}
	return o
}

func (o options) today() string {
	return o.clock().Format(DayLayout)
}

func usageOf(identity, day string, used, ceiling int) Usage {
	return Usage{
		Identity:  identity,
		Used:      used,
		Remaining: ceiling - used,
		Day:       day,
	}
}
