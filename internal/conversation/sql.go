package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
	"github.com/caviaarmode/shopping-assistant/internal/storage/sqldb"
)

// SQLStore persists sessions in two tables: sessions and session_messages.
type SQLStore struct {
	db   *sqldb.DB
	opts options
}

var _ Store = (*SQLStore)(nil)

type sessionRow struct {
	ID           string    `db:"id"`
	Context      string    `db:"context"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastActivity time.Time `db:"last_activity"`
}

type messageRow struct {
	ID        string    `db:"id"`
	Seq       int64     `db:"seq"`
	Role      string    `db:"role"`
	Content   string    `db:"content"`
	Metadata  string    `db:"metadata"`
	CreatedAt time.Time `db:"created_at"`
}

// NewSQLStore creates the schema if needed. The store does not own db.
func NewSQLStore(db *sqldb.DB, opts ...Option) (*SQLStore, error) {
	ts := db.Dialect.TimestampType()
	err := db.Migrate([]string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			context TEXT NOT NULL DEFAULT '{}',
			created_at %[1]s NOT NULL,
			updated_at %[1]s NOT NULL,
			last_activity %[1]s NOT NULL
		)`, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS session_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at %s NOT NULL,
			UNIQUE (session_id, seq)
		)`, ts),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize conversation schema: %w", err)
	}
	return &SQLStore{db: db, opts: buildOptions(opts)}, nil
}

func (s *SQLStore) GetOrCreate(ctx context.Context, sessionID string) (*domain.Session, error) {
	if err := s.ensureSession(ctx, s.db, sessionID); err != nil {
		return nil, err
	}

	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.db.Q(`SELECT id, context, created_at, updated_at, last_activity FROM sessions WHERE id = ?`), sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Q(`SELECT id, seq, role, content, metadata, created_at
		FROM session_messages WHERE session_id = ? ORDER BY seq ASC`), sessionID); err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	sess := &domain.Session{
		ID:           row.ID,
		Messages:     make([]domain.Message, 0, len(rows)),
		Context:      map[string]string{},
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastActivity: row.LastActivity,
	}
	if err := json.Unmarshal([]byte(row.Context), &sess.Context); err != nil {
		return nil, fmt.Errorf("decode session context: %w", err)
	}
	for _, r := range rows {
		m, err := r.toMessage()
		if err != nil {
			return nil, err
		}
		sess.Messages = append(sess.Messages, m)
	}
	return sess, nil
}

// Append touches the session row first so that concurrent appenders queue on its row lock
// before reading the next sequence number.
func (s *SQLStore) Append(ctx context.Context, sessionID string, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	now := s.opts.clock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureSession(ctx, tx, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.db.Q(`UPDATE sessions SET updated_at = ?, last_activity = ? WHERE id = ?`), now, now, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	var next int64
	if err := tx.GetContext(ctx, &next, s.db.Q(`SELECT COALESCE(MAX(seq), 0) FROM session_messages WHERE session_id = ?`), sessionID); err != nil {
		return fmt.Errorf("read sequence: %w", err)
	}

	insert := s.db.Q(`INSERT INTO session_messages (id, session_id, seq, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for _, m := range stamp(msgs, now) {
		next++
		meta, err := encodeMetadata(m.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insert,
			"msg_"+uuid.New().String(), sessionID, next, string(m.Role), m.Content, meta, m.Timestamp); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLStore) Recent(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Q(`SELECT id, seq, role, content, metadata, created_at
		FROM session_messages WHERE session_id = ? ORDER BY seq DESC LIMIT ?`), sessionID, limit); err != nil {
		return nil, fmt.Errorf("load recent messages: %w", err)
	}

	out := make([]domain.Message, len(rows))
	for i, r := range rows {
		m, err := r.toMessage()
		if err != nil {
			return nil, err
		}
		out[len(rows)-1-i] = m
	}
	return out, nil
}

func (s *SQLStore) SetContext(ctx context.Context, sessionID, key, value string) error {
	now := s.opts.clock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensureSession(ctx, tx, sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.db.Q(`UPDATE sessions SET updated_at = ? WHERE id = ?`), now, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	var raw string
	if err := tx.GetContext(ctx, &raw, s.db.Q(`SELECT context FROM sessions WHERE id = ?`), sessionID); err != nil {
		return fmt.Errorf("read context: %w", err)
	}
	values := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return fmt.Errorf("decode session context: %w", err)
	}
	values[key] = value

	encoded, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode session context: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.db.Q(`UPDATE sessions SET context = ? WHERE id = ?`), string(encoded), sessionID); err != nil {
		return fmt.Errorf("write context: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) Close() error {
	return nil
}

func (s *SQLStore) ensureSession(ctx context.Context, ex sqlx.ExecerContext, sessionID string) error {
	now := s.opts.clock()
	_, err := ex.ExecContext(ctx, s.db.Q(`INSERT INTO sessions (id, context, created_at, updated_at, last_activity) VALUES (?, '{}', ?, ?, ?) `+
		s.db.Dialect.InsertIgnoreClause("id")), sessionID, now, now, now)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r messageRow) toMessage() (domain.Message, error) {
	m := domain.Message{
		Role:      domain.Role(r.Role),
		Content:   r.Content,
		Timestamp: r.CreatedAt,
	}
	if r.Metadata != "" && r.Metadata != "{}" {
		if err := json.Unmarshal([]byte(r.Metadata), &m.Metadata); err != nil {
			return domain.Message{}, fmt.Errorf("decode message metadata: %w", err)
		}
	}
	return m, nil
}

func encodeMetadata(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode message metadata: %w", err)
	}
	return string(b), nil
}
