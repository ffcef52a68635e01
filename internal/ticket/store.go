package ticket

import (
	"context"
	"errors"
	"time"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

var (
	// ErrNotFound is returned when no ticket has the requested ID.
	ErrNotFound = errors.New("ticket not found")
	// ErrDuplicate is returned when a ticket ID is already taken.
	ErrDuplicate = errors.New("ticket id already exists")
)

// Store is the persistence interface for tickets.
type Store interface {
	// Create inserts a new ticket. IDs are never overwritten.
	Create(ctx context.Context, t *protocol.Ticket) error
	// Get retrieves a ticket by ID.
	Get(ctx context.Context, id string) (*protocol.Ticket, error)
	// List returns tickets matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*protocol.Ticket, error)
	// Update merges patch into the stored ticket and returns the result.
	Update(ctx context.Context, id string, patch Patch) (*protocol.Ticket, error)
	// Stats aggregates counts; Today counts tickets created at or after since.
	Stats(ctx context.Context, since time.Time) (*Stats, error)
	// NextSequence atomically increments the named counter and returns the new value.
	NextSequence(ctx context.Context, name string) (int64, error)
	Close() error
}

// Filter constrains ticket list queries.
type Filter struct {
	Status   string
	Category string
	Priority string
	Source   string
	Query    string    // text search on name, subject and description
	Since    time.Time // created_at >= Since when non-zero
	Limit    int       // 0 = no limit
	Offset   int
}

// Stats is the reporting view over all stored tickets.
type Stats struct {
	Total       int            `json:"total"`
	Today       int            `json:"today"`
	AIProcessed int            `json:"ai_processed"`
	ByStatus    map[string]int `json:"by_status"`
	ByCategory  map[string]int `json:"by_category"`
	ByPriority  map[string]int `json:"by_priority"`
	BySource    map[string]int `json:"by_source"`
}

func newStats() *Stats {
	return &Stats{
		ByStatus:   make(map[string]int),
		ByCategory: make(map[string]int),
		ByPriority: make(map[string]int),
		BySource:   make(map[string]int),
	}
}

// StartOfDay returns midnight of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
