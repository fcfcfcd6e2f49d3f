package ticket

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/waggle-io/waggle/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ticket store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ticket store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tickets (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			type        TEXT NOT NULL,
			priority    TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'backlog',
			assigned_to TEXT NOT NULL DEFAULT '',
			created_by  TEXT NOT NULL,
			thread_id   TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			due_date    TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_tickets_assigned_to ON tickets(assigned_to);
		CREATE INDEX IF NOT EXISTS idx_tickets_created_by ON tickets(created_by);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(t *protocol.Ticket) error {
	var dueDate *string
	if t.DueDate != nil {
		v := t.DueDate.Format(time.RFC3339)
		dueDate = &v
	}

	_, err := s.db.Exec(`
		INSERT INTO tickets (id, title, description, type, priority, status, assigned_to, created_by, thread_id, created_at, updated_at, due_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, string(t.Type), string(t.Priority), string(t.Status),
		t.AssignedTo, t.CreatedBy, t.ThreadID,
		t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339), dueDate)
	if err != nil {
		return fmt.Errorf("ticket store: create: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(id string) (*protocol.Ticket, error) {
	row := s.db.QueryRow(`SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)

	t, err := scanTicket(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("ticket %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) List(filter Filter) ([]*protocol.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	var args []any

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.Type != nil {
		query += " AND type = ?"
		args = append(args, string(*filter.Type))
	}
	if filter.Priority != nil {
		query += " AND priority = ?"
		args = append(args, string(*filter.Priority))
	}
	if filter.AssignedTo != "" {
		query += " AND assigned_to = ?"
		args = append(args, filter.AssignedTo)
	}
	if filter.CreatedBy != "" {
		query += " AND created_by = ?"
		args = append(args, filter.CreatedBy)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	var tickets []*protocol.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) All() ([]*protocol.Ticket, error) {
	return s.List(Filter{})
}

// UpdateStatus is conditioned on the expected prior status: the UPDATE only
// touches the row if it is still in that status, so a concurrent transition
// that won the race surfaces as ErrConflict here.
func (s *SQLiteStore) UpdateStatus(id string, expected, next protocol.TicketStatus, now time.Time) error {
	result, err := s.db.Exec(`UPDATE tickets SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(next), now.Format(time.RFC3339), id, string(expected))
	if err != nil {
		return fmt.Errorf("ticket store: update status: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		if !s.exists(id) {
			return fmt.Errorf("ticket %q: %w", id, ErrNotFound)
		}
		return fmt.Errorf("ticket %q: expected status %s: %w", id, expected, ErrConflict)
	}
	return nil
}

func (s *SQLiteStore) UpdateAssignee(id, assignee string, now time.Time) error {
	result, err := s.db.Exec(`UPDATE tickets SET assigned_to = ?, updated_at = ? WHERE id = ?`,
		assignee, now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("ticket store: update assignee: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ticket %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) UpdateDueDate(id string, due *time.Time, now time.Time) error {
	var dueDate *string
	if due != nil {
		v := due.Format(time.RFC3339)
		dueDate = &v
	}
	result, err := s.db.Exec(`UPDATE tickets SET due_date = ?, updated_at = ? WHERE id = ?`,
		dueDate, now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("ticket store: update due date: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("ticket %q: %w", id, ErrNotFound)
	}
	return nil
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers ---

const ticketColumns = `id, title, description, type, priority, status, assigned_to, created_by, thread_id, created_at, updated_at, due_date`

func (s *SQLiteStore) exists(id string) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM tickets WHERE id = ?`, id).Scan(&one)
	return err == nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicket(row scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var typ, priority, status, createdAt, updatedAt string
	var dueDate *string

	err := row.Scan(&t.ID, &t.Title, &t.Description, &typ, &priority, &status,
		&t.AssignedTo, &t.CreatedBy, &t.ThreadID, &createdAt, &updatedAt, &dueDate)
	if err != nil {
		return nil, err
	}

	t.Type = protocol.TicketType(typ)
	t.Priority = protocol.TicketPriority(priority)
	t.Status = protocol.TicketStatus(status)
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if dueDate != nil {
		d, _ := time.Parse(time.RFC3339, *dueDate)
		t.DueDate = &d
	}
	return &t, nil
}
