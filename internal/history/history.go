// Package history persists the message log to an append-only SQLite
// database so the board can show recent messages after a restart.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"octodeck/internal/msglog"
)

type Store struct {
	db      *sql.DB
	timeout time.Duration
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("chmod history: %w", err)
	}
	s := &Store{db: db, timeout: 2 * time.Second}
	if err := applyMigrations(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Write implements msglog.Sink.
func (s *Store) Write(e msglog.Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.Append(ctx, e)
}

func (s *Store) Append(ctx context.Context, e msglog.Entry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO messages(message_id, created_at, level, source, text)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(message_id) DO NOTHING
`, e.ID, ts(e.Time), string(e.Level), e.Source, e.Text)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Recent returns the newest n messages, oldest first.
func (s *Store) Recent(ctx context.Context, n int) ([]msglog.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT message_id, created_at, level, source, text FROM (
	SELECT seq, message_id, created_at, level, source, text
	FROM messages ORDER BY seq DESC LIMIT ?
) ORDER BY seq ASC
`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var out []msglog.Entry
	for rows.Next() {
		var (
			e       msglog.Entry
			created string
			level   string
		)
		if err := rows.Scan(&e.ID, &created, &level, &e.Source, &e.Text); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		e.Level = msglog.Level(level)
		e.Time, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// Count returns the total number of persisted messages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
