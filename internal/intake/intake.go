// Package intake is the single pathway that turns a submission into a
// persisted, summarized and announced ticket.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Meshal1212222/ticket-ticket/internal/notify"
	"github.com/Meshal1212222/ticket-ticket/internal/summarizer"
	"github.com/Meshal1212222/ticket-ticket/internal/ticket"
	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

// maxIDAttempts bounds retries when a generated id collides.
const maxIDAttempts = 3

// Submission is the input of Create, from the web form or the chatbot.
type Submission struct {
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone"`
	Category    string         `json:"category"`
	Priority    string         `json:"priority"`
	Subject     string         `json:"subject"`
	Description string         `json:"description"`
	Source      string         `json:"-"`
	Extra       map[string]any `json:"-"`
}

// ValidationError lists the missing or invalid fields of a submission.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "intake: missing required fields: " + strings.Join(e.Fields, ", ")
}

// Store is the part of ticket.Store the pathway writes through.
type Store interface {
	Create(ctx context.Context, t *protocol.Ticket) error
}

// Summarizer is satisfied by *summarizer.Summarizer.
type Summarizer interface {
	Summarize(ctx context.Context, t *protocol.Ticket) (*protocol.Ticket, summarizer.Outcome)
}

// Dispatcher is satisfied by *notify.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, t *protocol.Ticket) []notify.Result
}

// Config switches validation and enrichment behavior.
type Config struct {
	// RequireCategory makes category mandatory instead of description.
	RequireCategory bool
	// ApplyPriority lets the summarizer's suggestion replace a defaulted priority.
	ApplyPriority bool
}

// Service creates tickets.
type Service struct {
	store      Store
	ids        ticket.IDGenerator
	summarizer Summarizer
	dispatcher Dispatcher
	cfg        Config
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSummarizer enables AI enrichment.
func WithSummarizer(s Summarizer) Option {
	return func(svc *Service) { svc.summarizer = s }
}

// WithDispatcher enables notifications.
func WithDispatcher(d Dispatcher) Option {
	return func(svc *Service) { svc.dispatcher = d }
}

// WithConfig sets validation and enrichment switches.
func WithConfig(cfg Config) Option {
	return func(svc *Service) { svc.cfg = cfg }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// NewService creates the creation pathway over store and ids.
func NewService(store Store, ids ticket.IDGenerator, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ids:    ids,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "intake")
	return s
}

// Validate checks required fields without side effects.
func (s *Service) Validate(sub Submission) error {
	var missing []string
	if strings.TrimSpace(sub.Name) == "" {
		missing = append(missing, "name")
	}
	if s.cfg.RequireCategory {
		if strings.TrimSpace(sub.Category) == "" {
			missing = append(missing, "category")
		}
	} else if strings.TrimSpace(sub.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Create validates, identifies, enriches, persists and announces a ticket.
// Summarizer and notification failures never fail the call.
func (s *Service) Create(ctx context.Context, sub Submission) (*protocol.Ticket, error) {
	if err := s.Validate(sub); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &protocol.Ticket{
		Name:        strings.TrimSpace(sub.Name),
		Email:       strings.TrimSpace(sub.Email),
		Phone:       strings.TrimSpace(sub.Phone),
		Category:    strings.TrimSpace(sub.Category),
		Priority:    strings.TrimSpace(sub.Priority),
		Subject:     strings.TrimSpace(sub.Subject),
		Description: strings.TrimSpace(sub.Description),
		Status:      protocol.TicketNew,
		Source:      sub.Source,
		Extra:       sub.Extra,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	defaulted := t.Priority == ""
	if defaulted {
		t.Priority = protocol.DefaultPriority
	}
	if t.Source == "" {
		t.Source = protocol.SourceWeb
	}

	id, err := s.ids.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}
	t.ID = id

	if s.summarizer != nil {
		enriched, outcome := s.summarizer.Summarize(ctx, t)
		if outcome.OK() {
			t = enriched
			if s.cfg.ApplyPriority && defaulted && outcome.SuggestedPriority != "" {
				t.Priority = outcome.SuggestedPriority
			}
		}
	}

	if err := s.persist(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("ticket created",
		"ticket_id", t.ID,
		"source", t.Source,
		"category", t.Category,
		"ai_processed", t.AIProcessed,
	)

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, t)
	}
	return t, nil
}

// persist stores t, regenerating the id on collision.
func (s *Service) persist(ctx context.Context, t *protocol.Ticket) error {
	for attempt := 1; ; attempt++ {
		err := s.store.Create(ctx, t)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ticket.ErrDuplicate) || attempt == maxIDAttempts {
			return fmt.Errorf("intake: persist: %w", err)
		}
		s.logger.Warn("ticket id collision, retrying", "ticket_id", t.ID)
		if t.ID, err = s.ids.NextID(ctx); err != nil {
			return fmt.Errorf("intake: %w", err)
		}
	}
}
