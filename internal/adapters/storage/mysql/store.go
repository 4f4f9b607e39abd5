// Package mysql implements the remote session store on MySQL, one row per
// session with the messages in a JSON column.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

// erNoSuchTable is MySQL's ER_NO_SUCH_TABLE.
const erNoSuchTable = 1146

type Store struct {
	db *sql.DB
}

// NewStore opens a connection pool for dsn. parseTime is forced on so
// created_at scans into time.Time.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening mysql: %w", err)
	}
	return &Store{db: sql.OpenDB(connector)}, nil
}

// EnsureTable creates the chat_sessions table if it does not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS chat_sessions (
		id         VARCHAR(64)  NOT NULL PRIMARY KEY,
		title      VARCHAR(256) NOT NULL,
		messages   JSON         NOT NULL,
		created_at DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		INDEX idx_chat_sessions_created_at (created_at)
	)`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("mysql ensure table: %w", err)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, messages, created_at FROM chat_sessions ORDER BY created_at DESC")
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
		sess.Messages = []domain.Message{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &sess.Messages); err != nil {
				return nil, fmt.Errorf("mysql decode session %s: %w", id, err)
			}
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list sessions", err)
	}
	return out, nil
}

func (s *Store) InsertSession(ctx context.Context, session domain.Session) error {
	raw, err := encode(session.Messages)
	if err != nil {
		return err
	}
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_sessions (id, title, messages, created_at) VALUES (?, ?, ?, ?)",
		string(session.ID), session.Title, raw, createdAt.UTC(),
	); err != nil {
		return wrap("insert session", err)
	}
	return nil
}

func (s *Store) UpdateMessages(ctx context.Context, id domain.SessionID, messages []domain.Message) error {
	raw, err := encode(messages)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		"UPDATE chat_sessions SET messages = ? WHERE id = ?", raw, string(id)); err != nil {
		return wrap("update messages", err)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, id domain.SessionID) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chat_sessions WHERE id = ?", string(id)); err != nil {
		return wrap("delete session", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func wrap(op string, err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == erNoSuchTable {
		return fmt.Errorf("mysql %s: %w: %v", op, domain.ErrSchemaMissing, err)
	}
	return fmt.Errorf("mysql %s: %w", op, err)
}

func encode(msgs []domain.Message) (string, error) {
	if msgs == nil {
		msgs = []domain.Message{}
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("mysql encode messages: %w", err)
	}
	return string(raw), nil
}
