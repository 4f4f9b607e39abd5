// Package postgres implements the remote session store on PostgreSQL
// (including Supabase), one row per session with the messages in JSONB.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

type Store struct {
	db *sql.DB
}

// NewStore opens a connection pool for dsn. It does not create the table;
// call EnsureTable for that.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required for postgres store")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// EnsureTable creates the chat_sessions table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id         TEXT        PRIMARY KEY,
			title      TEXT        NOT NULL,
			messages   JSONB       NOT NULL DEFAULT '[]'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_created_at ON chat_sessions(created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres ensure table: %w", err)
		}
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, messages, created_at FROM chat_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrap("list sessions", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var (
			sess domain.Session
			id   string
			raw  []byte
		)
		if err := rows.Scan(&id, &sess.Title, &raw, &sess.CreatedAt); err != nil {
			return nil, wrap("scan session", err)
		}
		sess.ID = domain.SessionID(id)
		if sess.Messages, err = decodeMessages(raw); err != nil {
			return nil, fmt.Errorf("postgres decode session %s: %w", id, err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list sessions", err)
	}
	return out, nil
}

func (s *Store) InsertSession(ctx context.Context, session domain.Session) error {
	raw, err := json.Marshal(nonNil(session.Messages))
	if err != nil {
		return fmt.Errorf("postgres encode messages: %w", err)
	}
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, title, messages, created_at) VALUES ($1, $2, $3, $4)`,
		string(session.ID), session.Title, string(raw), createdAt,
	)
	if err != nil {
		return wrap("insert session", err)
	}
	return nil
}

func (s *Store) UpdateMessages(ctx context.Context, id domain.SessionID, messages []domain.Message) error {
	raw, err := json.Marshal(nonNil(messages))
	if err != nil {
		return fmt.Errorf("postgres encode messages: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET messages = $1 WHERE id = $2`, string(raw), string(id)); err != nil {
		return wrap("update messages", err)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id domain.SessionID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, string(id)); err != nil {
		return wrap("delete session", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// wrap tags undefined_table errors with domain.ErrSchemaMissing.
func wrap(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("postgres %s: %w: %v", op, domain.ErrSchemaMissing, err)
	}
	return fmt.Errorf("postgres %s: %w", op, err)
}

func decodeMessages(raw []byte) ([]domain.Message, error) {
	msgs := []domain.Message{}
	if len(raw) == 0 {
		return msgs, nil
	}
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func nonNil(msgs []domain.Message) []domain.Message {
	if msgs == nil {
		return []domain.Message{}
	}
	return msgs
}
