package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kubesage/kubesage/internal/llm"
)

// PostgresStore persists sessions and their message history in Postgres,
// for deployments where sessions must outlive the process. It implements
// both the session Store and the memory Store interfaces. Single-owner
// semantics still apply: one process serves a given session at a time.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the given DSN and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL,
	last_active TIMESTAMPTZ NOT NULL,
	metadata    JSONB
);
CREATE TABLE IF NOT EXISTS session_messages (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	seq        BIGSERIAL,
	message    JSONB NOT NULL,
	PRIMARY KEY (session_id, seq)
);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure session schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Create creates a session, or returns the existing one for a known id.
func (s *PostgresStore) Create(ctx context.Context, id string, metadata map[string]string) (*Session, error) {
	if id == "" {
		id = generateSecureID()
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal session metadata: %w", err)
	}

	now := time.Now()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, created_at, last_active, metadata)
		 VALUES ($1, $2, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		id, now, meta)
	if err != nil {
		return nil, fmt.Errorf("create session %q: %w", id, err)
	}

	return s.Get(ctx, id)
}

// Get retrieves a session by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		sess Session
		meta []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, last_active, metadata FROM sessions WHERE id = $1`,
		id).Scan(&sess.ID, &sess.CreatedAt, &sess.LastActive, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %q: %w", id, err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("decode session metadata: %w", err)
		}
	}
	return &sess, nil
}

// Delete removes a session and its messages.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session %q: %w", id, err)
	}
	return nil
}

// List returns all sessions.
func (s *PostgresStore) List(ctx context.Context) ([]*Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at, last_active, metadata FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var result []*Session
	for rows.Next() {
		var (
			sess Session
			meta []byte
		)
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.LastActive, &meta); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &sess.Metadata); err != nil {
				return nil, fmt.Errorf("decode session metadata: %w", err)
			}
		}
		result = append(result, &sess)
	}
	return result, rows.Err()
}

// Touch updates the last active timestamp.
func (s *PostgresStore) Touch(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET last_active = $2 WHERE id = $1`, id, time.Now())
	if err != nil {
		return fmt.Errorf("touch session %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %q not found", id)
	}
	return nil
}

// Load retrieves the message history for a session in insertion order.
func (s *PostgresStore) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT message FROM session_messages WHERE session_id = $1 ORDER BY seq`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("load messages for %q: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []llm.Message
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg llm.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Save appends messages to the session history.
func (s *PostgresStore) Save(ctx context.Context, sessionID string, messages []llm.Message) error {
	for _, msg := range messages {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO session_messages (session_id, message) VALUES ($1, $2)`,
			sessionID, raw); err != nil {
			return fmt.Errorf("save message for %q: %w", sessionID, err)
		}
	}
	return nil
}

// Clear removes all messages for a session.
func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM session_messages WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear messages for %q: %w", sessionID, err)
	}
	return nil
}

// Expire deletes sessions idle longer than olderThan and returns their
// ids. Message history goes with them via the cascade.
func (s *PostgresStore) Expire(ctx context.Context, olderThan time.Duration) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`DELETE FROM sessions WHERE last_active < $1 RETURNING id`,
		time.Now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("expire sessions: %w", err)
	}
	defer rows.Close()

	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return expired, err
		}
		expired = append(expired, id)
	}
	return expired, rows.Err()
}
