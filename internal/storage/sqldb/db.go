// Package sqldb opens the SQL database shared by the quota and conversation backends.
package sqldb

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/caviaarmode/shopping-assistant/internal/storage/dialect"
)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// DB is a connection pool paired with its dialect.
type DB struct {
	*sqlx.DB
	Dialect *dialect.Dialect
}

// Open connects and runs dialect initialisation statements.
func Open(cfg Config) (*DB, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if n := d.MaxOpenConns(); n > 0 {
		db.SetMaxOpenConns(n)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	return &DB{DB: db, Dialect: d}, nil
}

// OpenSQLite is shorthand for Open with the sqlite driver.
func OpenSQLite(dsn string) (*DB, error) {
	return Open(Config{Driver: "sqlite", DSN: dsn})
}

// Q rebinds a ?-placeholder query for the dialect.
func (db *DB) Q(query string) string {
	return db.Dialect.Rebind(query)
}

// Migrate executes schema statements in order.
func (db *DB) Migrate(statements []string) error {
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
