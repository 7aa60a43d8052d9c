// Package dialect describes the SQL differences between the sqlite and
// postgres backends used for quota and session storage.
package dialect

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Dialect is the per-database vocabulary the stores need: placeholder
// style, column types, conflict handling and pool setup.
type Dialect struct {
	name      string
	driver    string
	bindType  int
	timestamp string
	conflict  string
	pragmas   []string
	maxConns  int
}

var (
	// SQLite uses the pure-Go modernc driver with WAL enabled. Writes are
	// serialised through a single connection so CheckAndCharge stays atomic.
	SQLite = &Dialect{
		name:      "sqlite",
		driver:    "sqlite",
		bindType:  sqlx.QUESTION,
		timestamp: "TIMESTAMP",
		conflict:  "ON CONFLICT(%s) DO NOTHING",
		pragmas: []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA foreign_keys=ON",
			"PRAGMA busy_timeout=5000",
		},
		maxConns: 1,
	}

	// Postgres goes through the pgx database/sql adapter.
	Postgres = &Dialect{
		name:      "postgres",
		driver:    "pgx",
		bindType:  sqlx.DOLLAR,
		timestamp: "TIMESTAMPTZ",
		conflict:  "ON CONFLICT (%s) DO NOTHING",
	}
)

// FromDriverName maps a configured driver name onto its dialect. An empty
// name selects sqlite.
func FromDriverName(driver string) (*Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

func (d *Dialect) Name() string       { return d.name }
func (d *Dialect) DriverName() string { return d.driver }

// Rebind rewrites ? placeholders into the dialect's bindvar style.
func (d *Dialect) Rebind(query string) string {
	return sqlx.Rebind(d.bindType, query)
}

// TimestampType is the column type used for created/updated columns.
func (d *Dialect) TimestampType() string { return d.timestamp }

// InsertIgnoreClause returns the suffix that turns an INSERT into a no-op
// when a row with the same conflictColumns already exists.
func (d *Dialect) InsertIgnoreClause(conflictColumns string) string {
	return fmt.Sprintf(d.conflict, conflictColumns)
}

// PragmaStatements run once after the pool is opened.
func (d *Dialect) PragmaStatements() []string {
	return append([]string(nil), d.pragmas...)
}

// MaxOpenConns caps the pool; zero leaves the driver default.
func (d *Dialect) MaxOpenConns() int { return d.maxConns }
