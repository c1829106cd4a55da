package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/soyeahso/iris/internal/domain"
)

// Log is the conversation log shared by the orchestrator, the CLI and the
// overlay feed.
type Log interface {
	BeginSession(ctx context.Context, s domain.Session) error
	EndSession(ctx context.Context, id string) error
	Append(ctx context.Context, msg domain.Message) error
	Recent(ctx context.Context, n int) ([]domain.Message, error)
	LastAssistant(ctx context.Context) (string, error)
	Sessions(ctx context.Context, n int) ([]domain.Session, error)
	Search(ctx context.Context, query string, n int) ([]domain.Message, error)
}

// SQLiteLog implements Log on a SQLite database.
type SQLiteLog struct {
	db  *DB
	now func() time.Time
}

// NewSQLiteLog creates a conversation log using the given database.
func NewSQLiteLog(db *DB) *SQLiteLog {
	return &SQLiteLog{db: db, now: time.Now}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.DateTime) }

func parseTime(s string) time.Time {
	t, _ := time.ParseInLocation(time.DateTime, s, time.UTC)
	return t
}

// BeginSession records the start of a live session.
func (l *SQLiteLog) BeginSession(ctx context.Context, s domain.Session) error {
	started := s.StartedAt
	if started.IsZero() {
		started = l.now()
	}
	_, err := l.db.sql.ExecContext(ctx,
		`INSERT INTO live_sessions (id, model, started_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET model = excluded.model`,
		s.ID, s.Model, formatTime(started),
	)
	if err != nil {
		return fmt.Errorf("recording session %s: %w", s.ID, err)
	}
	return nil
}

// EndSession stamps the session's end time.
func (l *SQLiteLog) EndSession(ctx context.Context, id string) error {
	_, err := l.db.sql.ExecContext(ctx,
		`UPDATE live_sessions SET ended_at = ? WHERE id = ?`, formatTime(l.now()), id,
	)
	if err != nil {
		return fmt.Errorf("ending session %s: %w", id, err)
	}
	return nil
}

// Append adds a message. A session row is created if the message refers to
// a session that was never begun.
func (l *SQLiteLog) Append(ctx context.Context, msg domain.Message) error {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = l.now()
	}

	tx, err := l.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO live_sessions (id, started_at) VALUES (?, ?)`,
		msg.SessionID, formatTime(ts),
	); err != nil {
		return fmt.Errorf("ensuring session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content, formatTime(ts),
	); err != nil {
		return fmt.Errorf("appending message: %w", err)
	}
	return tx.Commit()
}

// Recent returns the last n messages across all sessions, oldest first.
func (l *SQLiteLog) Recent(ctx context.Context, n int) ([]domain.Message, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := l.db.sql.QueryContext(ctx,
		`SELECT session_id, role, content, timestamp FROM messages ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// LastAssistant returns the content of the newest assistant message, or ""
// if there is none.
func (l *SQLiteLog) LastAssistant(ctx context.Context) (string, error) {
	var content string
	err := l.db.sql.QueryRowContext(ctx,
		`SELECT content FROM messages WHERE role = ? ORDER BY id DESC LIMIT 1`, domain.RoleAssistant,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return content, err
}

// Sessions returns the newest n sessions, newest first.
func (l *SQLiteLog) Sessions(ctx context.Context, n int) ([]domain.Session, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := l.db.sql.QueryContext(ctx,
		`SELECT id, model, started_at, ended_at FROM live_sessions
		 ORDER BY started_at DESC, rowid DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var s domain.Session
		var started string
		var ended sql.NullString
		if err := rows.Scan(&s.ID, &s.Model, &started, &ended); err != nil {
			return nil, err
		}
		s.StartedAt = parseTime(started)
		if ended.Valid {
			s.EndedAt = parseTime(ended.String)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var ts string
		if err := rows.Scan(&m.SessionID, &m.Role, &m.Content, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = parseTime(ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
