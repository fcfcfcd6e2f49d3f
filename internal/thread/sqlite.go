package thread

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/waggle-io/waggle/pkg/protocol"
)

// SQLiteService implements Service using SQLite.
type SQLiteService struct {
	db *sql.DB
}

// NewSQLiteService opens (or creates) a SQLite database and runs migrations.
func NewSQLiteService(path string) (*SQLiteService, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("thread store: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("thread store: wal: %w", err)
	}

	s := &SQLiteService{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteService) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS threads (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS thread_messages (
			id        TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL REFERENCES threads(id),
			sender    TEXT NOT NULL,
			content   TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_thread_messages_thread ON thread_messages(thread_id);
	`)
	if err != nil {
		return fmt.Errorf("thread store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteService) Create(seed protocol.Message) (*protocol.Thread, error) {
	th := &protocol.Thread{
		ID:        uuid.NewString(),
		Title:     seed.Content,
		CreatedAt: seed.Timestamp,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("thread store: create: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO threads (id, title, created_at) VALUES (?, ?, ?)`,
		th.ID, th.Title, th.CreatedAt.Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("thread store: create: %w", err)
	}
	seed.ThreadID = th.ID
	if err := insertMessage(tx, seed); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("thread store: create: %w", err)
	}

	th.Messages = []protocol.Message{seed}
	return th, nil
}

func (s *SQLiteService) Post(threadID string, msg protocol.Message) error {
	var one int
	if err := s.db.QueryRow(`SELECT 1 FROM threads WHERE id = ?`, threadID).Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("thread %q: %w", threadID, ErrNotFound)
		}
		return fmt.Errorf("thread store: post: %w", err)
	}
	msg.ThreadID = threadID
	return insertMessage(s.db, msg)
}

func (s *SQLiteService) Get(threadID string) (*protocol.Thread, error) {
	var th protocol.Thread
	var createdAt string
	err := s.db.QueryRow(`SELECT id, title, created_at FROM threads WHERE id = ?`, threadID).
		Scan(&th.ID, &th.Title, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("thread %q: %w", threadID, ErrNotFound)
		}
		return nil, fmt.Errorf("thread store: get: %w", err)
	}
	th.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	rows, err := s.db.Query(`SELECT id, sender, content, timestamp FROM thread_messages WHERE thread_id = ? ORDER BY timestamp, id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("thread store: load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m protocol.Message
		var ts string
		if err := rows.Scan(&m.ID, &m.From, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("thread store: scan message: %w", err)
		}
		m.Timestamp, _ = time.Parse(time.RFC3339, ts)
		m.ThreadID = threadID
		th.Messages = append(th.Messages, m)
	}
	return &th, rows.Err()
}

func (s *SQLiteService) Delete(threadID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("thread store: delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM thread_messages WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("thread store: delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM threads WHERE id = ?`, threadID); err != nil {
		return fmt.Errorf("thread store: delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("thread store: delete: %w", err)
	}
	return nil
}

// DB returns the underlying database connection (for testing).
func (s *SQLiteService) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *SQLiteService) Close() error {
	return s.db.Close()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertMessage(e execer, msg protocol.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	_, err := e.Exec(`INSERT INTO thread_messages (id, thread_id, sender, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ThreadID, msg.From, msg.Content, msg.Timestamp.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("thread store: append message: %w", err)
	}
	return nil
}
