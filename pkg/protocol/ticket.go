package protocol

import "time"

// TicketStatus represents the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketNew        TicketStatus = "new"
	TicketInProgress TicketStatus = "in-progress"
	TicketResolved   TicketStatus = "resolved"
)

// DefaultPriority is applied when a submission leaves priority empty.
const DefaultPriority = "medium"

// Ticket sources.
const (
	SourceWeb      = "web"
	SourceWhatsApp = "whatsapp"
	SourceX        = "x"
	SourceTelegram = "telegram"
)

// Ticket is a persisted support request.
type Ticket struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Email       string         `json:"email,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Category    string         `json:"category,omitempty"`
	Priority    string         `json:"priority"`
	Subject     string         `json:"subject,omitempty"`
	Description string         `json:"description,omitempty"`
	Status      TicketStatus   `json:"status"`
	Source      string         `json:"source"`
	Summary     *string        `json:"ai_summary,omitempty"`
	AIProcessed bool           `json:"ai_processed"`
	Extra       map[string]any `json:"extra,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// SummaryText returns the AI summary or "" when none was produced.
func (t *Ticket) SummaryText() string {
	if t.Summary == nil {
		return ""
	}
	return *t.Summary
}

// Clone returns a deep copy of the ticket.
func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.Summary != nil {
		s := *t.Summary
		c.Summary = &s
	}
	if t.Extra != nil {
		c.Extra = make(map[string]any, len(t.Extra))
		for k, v := range t.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}
