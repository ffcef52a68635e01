package ticket

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const ticketColumns = "id, name, email, phone, category, priority, subject, description, status, source, summary, ai_processed, extra, created_at, updated_at"

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
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

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
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			email        TEXT NOT NULL DEFAULT '',
			phone        TEXT NOT NULL DEFAULT '',
			category     TEXT NOT NULL DEFAULT '',
			priority     TEXT NOT NULL DEFAULT 'medium',
			subject      TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT 'new',
			source       TEXT NOT NULL DEFAULT '',
			summary      TEXT,
			ai_processed INTEGER NOT NULL DEFAULT 0,
			extra        TEXT NOT NULL DEFAULT '{}',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS counters (
			name  TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
		CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(created_at);
	`)
	if err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, t *protocol.Ticket) error {
	args, err := rowArgs(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tickets (`+ticketColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("ticket store: create %s: %w", t.ID, ErrDuplicate)
		}
		return fmt.Errorf("ticket store: create: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*protocol.Ticket, error) {
	return getTicket(ctx, s.db, id)
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*protocol.Ticket, error) {
	where, args := filterClause(filter)
	query := "SELECT " + ticketColumns + " FROM tickets" + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	defer rows.Close()

	tickets := []*protocol.Ticket{}
	for rows.Next() {
		t, err := scanTicketFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("ticket store: list scan: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch Patch) (*protocol.Ticket, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ticket store: update: %w", err)
	}
	defer tx.Rollback()

	t, err := getTicket(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(t)
	t.UpdatedAt = time.Now().UTC()

	args, err := rowArgs(t)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `UPDATE tickets SET
		name = ?, email = ?, phone = ?, category = ?, priority = ?, subject = ?, description = ?,
		status = ?, source = ?, summary = ?, ai_processed = ?, extra = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, append(args[1:len(args):len(args)], t.ID)...)
	if err != nil {
		return nil, fmt.Errorf("ticket store: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ticket store: update commit: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	st := newStats()

	groups := []struct {
		column string
		into   map[string]int
	}{
		{"status", st.ByStatus},
		{"category", st.ByCategory},
		{"priority", st.ByPriority},
		{"source", st.BySource},
	}
	for _, g := range groups {
		rows, err := s.db.QueryContext(ctx, "SELECT "+g.column+", COUNT(*) FROM tickets GROUP BY "+g.column)
		if err != nil {
			return nil, fmt.Errorf("ticket store: stats %s: %w", g.column, err)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("ticket store: stats scan: %w", err)
			}
			g.into[key] = n
		}
		rows.Close()
	}

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(ai_processed), 0) FROM tickets`, since.UTC().Format(timeLayout)).
		Scan(&st.Total, &st.Today, &st.AIProcessed)
	if err != nil {
		return nil, fmt.Errorf("ticket store: stats totals: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) NextSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value`, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("ticket store: next sequence %s: %w", name, err)
	}
	return value, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// --- helpers ---

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTicket(ctx context.Context, q queryer, id string) (*protocol.Ticket, error) {
	row := q.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE id = ?", id)
	t, err := scanTicketFromRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return t, nil
}

func filterClause(f Filter) (string, []any) {
	var conds []string
	var args []any
	eq := func(column, value string) {
		if value != "" {
			conds = append(conds, column+" = ?")
			args = append(args, value)
		}
	}
	eq("status", f.Status)
	eq("category", f.Category)
	eq("priority", f.Priority)
	eq("source", f.Source)
	if f.Query != "" {
		conds = append(conds, "(name LIKE ? OR subject LIKE ? OR description LIKE ?)")
		pattern := "%" + f.Query + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(timeLayout))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func rowArgs(t *protocol.Ticket) ([]any, error) {
	extra := "{}"
	if len(t.Extra) > 0 {
		b, err := json.Marshal(t.Extra)
		if err != nil {
			return nil, fmt.Errorf("ticket store: encode extra: %w", err)
		}
		extra = string(b)
	}
	var summary *string
	if t.Summary != nil {
		summary = t.Summary
	}
	ai := 0
	if t.AIProcessed {
		ai = 1
	}
	return []any{t.ID, t.Name, t.Email, t.Phone, t.Category, t.Priority, t.Subject, t.Description,
		string(t.Status), t.Source, summary, ai, extra,
		t.CreatedAt.UTC().Format(timeLayout), t.UpdatedAt.UTC().Format(timeLayout)}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTicketFromRow(s scannable) (*protocol.Ticket, error) {
	var t protocol.Ticket
	var status, extraJSON, createdAt, updatedAt string
	var summary sql.NullString
	var ai int

	err := s.Scan(&t.ID, &t.Name, &t.Email, &t.Phone, &t.Category, &t.Priority, &t.Subject,
		&t.Description, &status, &t.Source, &summary, &ai, &extraJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = protocol.TicketStatus(status)
	if summary.Valid {
		v := summary.String
		t.Summary = &v
	}
	t.AIProcessed = ai != 0
	if extraJSON != "" && extraJSON != "{}" {
		json.Unmarshal([]byte(extraJSON), &t.Extra)
	}
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	t.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &t, nil
}
