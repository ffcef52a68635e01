package ticket

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ticketRow is the gorm model for the tickets table.
type ticketRow struct {
	ID          string         `gorm:"primaryKey;type:varchar(64)"`
	Name        string         `gorm:"not null"`
	Email       string         `gorm:"not null;default:''"`
	Phone       string         `gorm:"not null;default:''"`
	Category    string         `gorm:"not null;default:''"`
	Priority    string         `gorm:"type:varchar(32);not null"`
	Subject     string         `gorm:"not null;default:''"`
	Description string         `gorm:"not null;default:''"`
	Status      string         `gorm:"type:varchar(32);index;not null"`
	Source      string         `gorm:"type:varchar(32);not null"`
	Summary     *string        `gorm:"type:text"`
	AIProcessed bool           `gorm:"column:ai_processed;not null"`
	Extra       map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt   time.Time      `gorm:"index"`
	UpdatedAt   time.Time
}

func (ticketRow) TableName() string { return "tickets" }

// PostgresStore implements Store on PostgreSQL through gorm.
type PostgresStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewPostgresStore creates the database if needed, applies migrations and connects.
func NewPostgresStore(databaseURL string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := EnsureDatabase(databaseURL, logger); err != nil {
		return nil, err
	}
	if err := MigratePostgres(databaseURL); err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ticket store: connect postgres: %w", err)
	}
	return &PostgresStore{db: db, logger: logger}, nil
}

// EnsureDatabase creates the database named in databaseURL when it does not exist.
func EnsureDatabase(databaseURL string, logger *slog.Logger) error {
	adminURL, dbName, err := adminDatabaseURL(databaseURL)
	if err != nil {
		return err
	}
	db, err := sql.Open("postgres", adminURL)
	if err != nil {
		return fmt.Errorf("ticket store: open admin connection: %w", err)
	}
	defer db.Close()

	var exists bool
	err = db.QueryRow("SELECT true FROM pg_database WHERE datname = $1", dbName).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("ticket store: check database: %w", err)
	}
	if exists {
		return nil
	}
	if _, err := db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("ticket store: create database %q: %w", dbName, err)
	}
	if logger != nil {
		logger.Info("database created", "name", dbName)
	}
	return nil
}

// MigratePostgres applies the embedded goose migrations.
func MigratePostgres(databaseURL string) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("ticket store: open for migrate: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("ticket store: goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("ticket store: migrate: %w", err)
	}
	return nil
}

// adminDatabaseURL points databaseURL at the maintenance database and returns the target name.
func adminDatabaseURL(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", fmt.Errorf("ticket store: parse database url: %w", err)
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "", "", fmt.Errorf("ticket store: database name is empty in url")
	}
	u.Path = "/postgres"
	return u.String(), name, nil
}

func (s *PostgresStore) Create(ctx context.Context, t *protocol.Ticket) error {
	row := toRow(t)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("ticket store: create %s: %w", t.ID, ErrDuplicate)
		}
		return fmt.Errorf("ticket store: create: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*protocol.Ticket, error) {
	return s.get(s.db.WithContext(ctx), id)
}

func (s *PostgresStore) get(db *gorm.DB, id string) (*protocol.Ticket, error) {
	var row ticketRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ticket %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("ticket store: get: %w", err)
	}
	return fromRow(&row), nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*protocol.Ticket, error) {
	q := s.db.WithContext(ctx).Model(&ticketRow{})
	for column, value := range map[string]string{
		"status":   filter.Status,
		"category": filter.Category,
		"priority": filter.Priority,
		"source":   filter.Source,
	} {
		if value != "" {
			q = q.Where(column+" = ?", value)
		}
	}
	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		q = q.Where("name ILIKE ? OR subject ILIKE ? OR description ILIKE ?", pattern, pattern, pattern)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	}

	var rows []ticketRow
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ticket store: list: %w", err)
	}
	tickets := make([]*protocol.Ticket, 0, len(rows))
	for i := range rows {
		tickets = append(tickets, fromRow(&rows[i]))
	}
	return tickets, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, patch Patch) (*protocol.Ticket, error) {
	var out *protocol.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row ticketRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("ticket %q: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("ticket store: update: %w", err)
		}
		t := fromRow(&row)
		patch.Apply(t)
		t.UpdatedAt = time.Now().UTC()
		if err := tx.Save(toRow(t)).Error; err != nil {
			return fmt.Errorf("ticket store: update: %w", err)
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type groupCount struct {
	K string
	N int
}

func (s *PostgresStore) Stats(ctx context.Context, since time.Time) (*Stats, error) {
	st := newStats()
	db := s.db.WithContext(ctx)

	for column, into := range map[string]map[string]int{
		"status":   st.ByStatus,
		"category": st.ByCategory,
		"priority": st.ByPriority,
		"source":   st.BySource,
	} {
		var counts []groupCount
		err := db.Model(&ticketRow{}).Select(column + " AS k, COUNT(*) AS n").Group(column).Scan(&counts).Error
		if err != nil {
			return nil, fmt.Errorf("ticket store: stats %s: %w", column, err)
		}
		for _, c := range counts {
			into[c.K] = c.N
		}
	}

	var totals struct {
		Total       int
		Today       int
		AIProcessed int
	}
	err := db.Raw(`SELECT COUNT(*) AS total,
		COUNT(*) FILTER (WHERE created_at >= ?) AS today,
		COUNT(*) FILTER (WHERE ai_processed) AS ai_processed
		FROM tickets`, since).Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("ticket store: stats totals: %w", err)
	}
	st.Total, st.Today, st.AIProcessed = totals.Total, totals.Today, totals.AIProcessed
	return st, nil
}

func (s *PostgresStore) NextSequence(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.WithContext(ctx).Raw(`INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value`, name).Scan(&value).Error
	if err != nil {
		return 0, fmt.Errorf("ticket store: next sequence %s: %w", name, err)
	}
	return value, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(t *protocol.Ticket) *ticketRow {
	extra := t.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	return &ticketRow{
		ID:          t.ID,
		Name:        t.Name,
		Email:       t.Email,
		Phone:       t.Phone,
		Category:    t.Category,
		Priority:    t.Priority,
		Subject:     t.Subject,
		Description: t.Description,
		Status:      string(t.Status),
		Source:      t.Source,
		Summary:     t.Summary,
		AIProcessed: t.AIProcessed,
		Extra:       extra,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func fromRow(r *ticketRow) *protocol.Ticket {
	t := &protocol.Ticket{
		ID:          r.ID,
		Name:        r.Name,
		Email:       r.Email,
		Phone:       r.Phone,
		Category:    r.Category,
		Priority:    r.Priority,
		Subject:     r.Subject,
		Description: r.Description,
		Status:      protocol.TicketStatus(r.Status),
		Source:      r.Source,
		Summary:     r.Summary,
		AIProcessed: r.AIProcessed,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.Extra) > 0 {
		t.Extra = r.Extra
	}
	return t
}
