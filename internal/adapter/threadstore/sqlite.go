package threadstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"coral-agents/internal/domain"
)

// SQLite is a durable ThreadStore. Messages are kept as JSON rows and
// ordered by their autoincrement id, which SQLite assigns in commit order.
type SQLite struct {
	db *sql.DB
}

var _ domain.ThreadStore = (*SQLite)(nil)

// NewSQLite opens (or creates) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func NewSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create thread db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open thread db: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate thread db: %w", err)
	}
	return &SQLite{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS thread_messages (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id  TEXT NOT NULL,
			message_id TEXT NOT NULL,
			capability TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_thread_messages_thread ON thread_messages(thread_id, seq);
	`)
	return err
}

func (s *SQLite) Name() string { return "sqlite" }

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Append(ctx context.Context, threadID string, msg domain.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return domain.NewSubSystemError("threadstore", "SQLite.Append", domain.ErrThreadStore, "encode message: "+err.Error())
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO thread_messages (thread_id, message_id, capability, body, created_at) VALUES (?, ?, ?, ?, ?)",
		threadID, msg.ID, string(msg.Capability), string(body), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append to thread %s: %w: %w", threadID, domain.ErrThreadStore, err)
	}
	return nil
}

func (s *SQLite) Thread(ctx context.Context, threadID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT body FROM thread_messages WHERE thread_id = ? ORDER BY seq", threadID)
	if err != nil {
		return nil, fmt.Errorf("query thread %s: %w: %w", threadID, domain.ErrThreadStore, err)
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan thread %s: %w", threadID, err)
		}
		var m domain.Message
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			return nil, fmt.Errorf("decode message in thread %s: %w", threadID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *SQLite) Threads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT thread_id FROM thread_messages ORDER BY thread_id")
	if err != nil {
		return nil, fmt.Errorf("list threads: %w: %w", domain.ErrThreadStore, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) Stats(ctx context.Context) (domain.ThreadStats, error) {
	var st domain.ThreadStats
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT thread_id), COUNT(*) FROM thread_messages",
	).Scan(&st.Threads, &st.Messages)
	if err != nil {
		return st, fmt.Errorf("thread stats: %w: %w", domain.ErrThreadStore, err)
	}
	return st, nil
}

// Open returns the store selected by backend ("memory" or "sqlite") and a
// closer for it.
func Open(backend, path string) (domain.ThreadStore, func() error, error) {
	switch backend {
	case "", "memory":
		return NewMemory(), func() error { return nil }, nil
	case "sqlite":
		s, err := NewSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("thread store backend %q: %w", backend, domain.ErrInvalidInput)
}
