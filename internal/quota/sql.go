package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/caviaarmode/shopping-assistant/internal/storage/sqldb"
)

// SQLLedger persists counters in a quota_usage table, one row per identity and day.
type SQLLedger struct {
	db   *sqldb.DB
	opts options
}

var _ Ledger = (*SQLLedger)(nil)

// NewSQLLedger creates the schema if needed and returns a ledger on db.
// The ledger does not own db; Close is a no-op.
func NewSQLLedger(db *sqldb.DB, opts ...Option) (*SQLLedger, error) {
	l := &SQLLedger{db: db, opts: buildOptions(opts)}

	err := db.Migrate([]string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS quota_usage (
			identity TEXT NOT NULL,
			day TEXT NOT NULL,
			tokens INTEGER NOT NULL DEFAULT 0,
			updated_at %s NOT NULL,
			PRIMARY KEY (identity, day)
		)`, db.Dialect.TimestampType()),
		`CREATE INDEX IF NOT EXISTS idx_quota_usage_day ON quota_usage(day)`,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize quota schema: %w", err)
	}
	return l, nil
}

func (l *SQLLedger) CheckAndCharge(ctx context.Context, identity string, tokens int) (Decision, error) {
	if tokens < 0 {
		return Decision{}, ErrNegativeCharge
	}

	day := l.opts.today()
	now := l.opts.clock()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return Decision{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := l.ensureRow(ctx, tx, identity, day); err != nil {
		return Decision{}, err
	}

	// The conditional update is the atomic check-and-charge.
	res, err := tx.ExecContext(ctx, l.db.Q(`
		UPDATE quota_usage SET tokens = tokens + ?, updated_at = ?
		WHERE identity = ? AND day = ? AND tokens + ? <= ?`),
		tokens, now, identity, day, tokens, l.opts.ceiling)
	if err != nil {
		return Decision{}, fmt.Errorf("charge tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Decision{}, fmt.Errorf("charge tokens: %w", err)
	}

	var total int
	if err := tx.GetContext(ctx, &total, l.db.Q(`SELECT tokens FROM quota_usage WHERE identity = ? AND day = ?`), identity, day); err != nil {
		return Decision{}, fmt.Errorf("read total: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Decision{}, fmt.Errorf("commit: %w", err)
	}
	return Decision{Allowed: affected == 1, Total: total}, nil
}

func (l *SQLLedger) Absorb(ctx context.Context, identity string, tokens int) error {
	if tokens < 0 {
		return ErrNegativeCharge
	}

	day := l.opts.today()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := l.ensureRow(ctx, tx, identity, day); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, l.db.Q(`
		UPDATE quota_usage SET tokens = tokens + ?, updated_at = ?
		WHERE identity = ? AND day = ?`),
		tokens, l.opts.clock(), identity, day); err != nil {
		return fmt.Errorf("absorb tokens: %w", err)
	}
	return tx.Commit()
}

func (l *SQLLedger) Usage(ctx context.Context, identity string) (Usage, error) {
	day := l.opts.today()

	var used int
	err := l.db.GetContext(ctx, &used, l.db.Q(`SELECT tokens FROM quota_usage WHERE identity = ? AND day = ?`), identity, day)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Usage{}, fmt.Errorf("read usage: %w", err)
	}
	return usageOf(identity, day, used, l.opts.ceiling), nil
}

func (l *SQLLedger) Prune(ctx context.Context, day string) (int, error) {
	res, err := l.db.ExecContext(ctx, l.db.Q(`DELETE FROM quota_usage WHERE day < ?`), day)
	if err != nil {
		return 0, fmt.Errorf("prune usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (l *SQLLedger) Ceiling() int {
	return l.opts.ceiling
}

func (l *SQLLedger) Close() error {
	return nil
}

func (l *SQLLedger) ensureRow(ctx context.Context, tx sqlx.ExecerContext, identity, day string) error {
	_, err := tx.ExecContext(ctx, l.db.Q(`
		INSERT INTO quota_usage (identity, day, tokens, updated_at) VALUES (?, ?, 0, ?) `+
		l.db.Dialect.InsertIgnoreClause("identity, day")),
		identity, day, l.opts.clock())
	if err != nil {
		return fmt.Errorf("create usage row: %w", err)
	}
	return nil
}
