// Package summarizer asks a language model for a one-line ticket summary.
package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Meshal1212222/ticket-ticket/internal/provider"
	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

const systemPrompt = `You triage customer support tickets for an event ticketing service.
Reply with a single JSON object and nothing else:
{"summary": "<one line, in the language of the ticket>", "priority": "low|medium|high|urgent"}`

// ErrNoJSON is reported when the model reply has no brace-delimited object.
var ErrNoJSON = errors.New("summarizer: no JSON object in reply")

// Outcome reports what a summarization attempt did. A non-nil Err means the
// ticket was returned unchanged.
type Outcome struct {
	Err               error
	SuggestedPriority string
	Tokens            int
	Duration          time.Duration
}

// OK reports whether a summary was applied.
func (o Outcome) OK() bool { return o.Err == nil }

// Summarizer enriches tickets with an AI-generated summary.
type Summarizer struct {
	prov    provider.Provider
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithTimeout bounds a single summarization call.
func WithTimeout(d time.Duration) Option {
	return func(s *Summarizer) { s.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Summarizer) { s.logger = l }
}

// New creates a Summarizer backed by prov.
func New(prov provider.Provider, opts ...Option) *Summarizer {
	s := &Summarizer{
		prov:    prov,
		timeout: 20 * time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "summarizer")
	return s
}

// Summarize makes one attempt at summarizing t. On success it returns a copy
// with Summary and AIProcessed set; on any failure it returns t itself.
func (s *Summarizer) Summarize(ctx context.Context, t *protocol.Ticket) (*protocol.Ticket, Outcome) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.prov.Chat(ctx, protocol.ChatRequest{
		Messages: []protocol.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: ticketPrompt(t)},
		},
		MaxTokens: 300,
		JSON:      true,
	})
	if err != nil {
		if provider.IsRetryable(err) {
			s.logger.Info("provider busy, ticket kept without summary", "ticket_id", t.ID)
		}
		return s.fail(t, start, fmt.Errorf("summarizer: %s: %w", s.prov.Name(), err))
	}

	var reply struct {
		Summary  string `json:"summary"`
		Priority string `json:"priority"`
	}
	raw, err := extractJSON(resp.Content)
	if err != nil {
		return s.fail(t, start, err)
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return s.fail(t, start, fmt.Errorf("summarizer: parse reply: %w", err))
	}
	summary := strings.TrimSpace(reply.Summary)
	if summary == "" {
		return s.fail(t, start, fmt.Errorf("summarizer: empty summary"))
	}

	out := t.Clone()
	out.Summary = &summary
	out.AIProcessed = true

	o := Outcome{
		SuggestedPriority: normalizePriority(reply.Priority),
		Tokens:            resp.Usage.TotalTokens(),
		Duration:          time.Since(start),
	}
	s.logger.Debug("ticket summarized", "ticket_id", t.ID, "tokens", o.Tokens, "duration", o.Duration)
	return out, o
}

func (s *Summarizer) fail(t *protocol.Ticket, start time.Time, err error) (*protocol.Ticket, Outcome) {
	s.logger.Warn("summarization failed", "ticket_id", t.ID, "error", err)
	return t, Outcome{Err: err, Duration: time.Since(start)}
}

func ticketPrompt(t *protocol.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", t.Name)
	if t.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", t.Category)
	}
	if t.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", t.Subject)
	}
	fmt.Fprintf(&b, "Details:\n%s\n", t.Description)
	return b.String()
}

// extractJSON returns the span from the first '{' to the last '}'.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

func normalizePriority(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "low", "medium", "high", "urgent":
		return p
	default:
		return ""
	}
}
