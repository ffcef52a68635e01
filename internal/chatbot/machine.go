package chatbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Meshal1212222/ticket-ticket/internal/connector"
	"github.com/Meshal1212222/ticket-ticket/internal/intake"
	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

// Creator is the ticket creation pathway. *intake.Service satisfies it.
type Creator interface {
	Create(ctx context.Context, sub intake.Submission) (*protocol.Ticket, error)
}

// Result describes one handled message.
type Result struct {
	Reply string
	From  Step
	To    Step
	// Matched is false when the input was not understood and the prompt repeated.
	Matched bool
	// TicketID is set when this message created a ticket.
	TicketID string
	// Err is the creation error when a terminal step failed to persist.
	Err error
}

// Machine advances conversations one message at a time.
type Machine struct {
	sessions *Sessions
	creator  Creator
	enabled  atomic.Bool
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides time.Now for conversation timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// NewMachine creates an enabled machine over sessions.
func NewMachine(sessions *Sessions, creator Creator, opts ...Option) *Machine {
	m := &Machine{
		sessions: sessions,
		creator:  creator,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "chatbot")
	m.enabled.Store(true)
	return m
}

// Sessions returns the machine's session table.
func (m *Machine) Sessions() *Sessions { return m.sessions }

// Enabled reports whether inbound messages are answered.
func (m *Machine) Enabled() bool { return m.enabled.Load() }

// SetEnabled toggles the machine. Disabled machines leave state untouched.
func (m *Machine) SetEnabled(v bool) {
	m.enabled.Store(v)
	m.logger.Info("chatbot toggled", "enabled", v)
}

// Reply implements connector.Replier.
func (m *Machine) Reply(ctx context.Context, msg connector.InboundMessage) string {
	return m.Handle(ctx, msg).Reply
}

// ResetSender drops the sender's conversation so the next message starts over.
func (m *Machine) ResetSender(_ context.Context, msg connector.InboundMessage) {
	m.sessions.Reset(Key(msg.Channel, msg.SenderID))
}

// Handle advances the sender's conversation by one message. The sender's
// entry stays locked for the whole transition, ticket creation included.
func (m *Machine) Handle(ctx context.Context, msg connector.InboundMessage) Result {
	if !m.Enabled() {
		return Result{}
	}

	e := m.sessions.acquire(msg.Channel, msg.SenderID)
	defer e.mu.Unlock()

	conv := &e.conv
	if msg.DisplayName != "" {
		conv.DisplayName = msg.DisplayName
	}
	res := m.advance(ctx, conv, msg.Content)
	conv.UpdatedAt = m.now()

	m.logger.Debug("transition",
		"sender", conv.Key(),
		"from", res.From.String(),
		"to", res.To.String(),
		"matched", res.Matched,
	)
	return res
}

func (m *Machine) advance(ctx context.Context, conv *Conversation, input string) Result {
	res := Result{From: conv.Step, Matched: true}
	main := flow[StepMainChoice]

	switch conv.Step {
	case StepWelcome:
		// A first message that already answers the main menu is taken as
		// the answer, so "1" from a new sender starts the buy path.
		if opt, ok := main.match(input); ok {
			main.record(&conv.Answers, opt.label)
			conv.Step = opt.next
			res.Reply = welcomeText + "\n\n" + flow[opt.next].prompt()
		} else {
			conv.Step = StepMainChoice
			res.Reply = welcomeText + "\n\n" + main.prompt()
		}
		res.To = conv.Step
		return res
	case StepCompleted:
		conv.Answers = Answers{}
		conv.Step = StepMainChoice
		res.Reply = main.prompt()
		res.To = conv.Step
		return res
	}

	spec, ok := flow[conv.Step]
	if !ok {
		// Unknown step, restart the dialogue.
		conv.Answers = Answers{}
		conv.Step = StepMainChoice
		res.Reply, res.To = main.prompt(), conv.Step
		return res
	}

	var next Step
	if len(spec.options) == 0 {
		text := strings.TrimSpace(input)
		if text == "" {
			res.Matched = false
			res.Reply, res.To = spec.prompt(), conv.Step
			return res
		}
		spec.record(&conv.Answers, text)
		next = spec.next
	} else {
		opt, ok := spec.match(input)
		if !ok {
			res.Matched = false
			res.Reply, res.To = spec.prompt(), conv.Step
			return res
		}
		spec.record(&conv.Answers, opt.label)
		next = opt.next
	}

	conv.Step = next
	res.To = next
	if next != StepCompleted {
		res.Reply = flow[next].prompt()
		return res
	}

	t, err := m.creator.Create(ctx, submission(conv))
	if err != nil {
		m.logger.Error("ticket creation failed", "sender", conv.Key(), "error", err)
		res.Err = err
		res.Reply = doneText + "\n" + restartText
		return res
	}
	conv.TicketID = t.ID
	res.TicketID = t.ID
	res.Reply = fmt.Sprintf("%s\nرقم التذكرة: %s\n%s", doneText, t.ID, restartText)
	return res
}

// Subject joins the collected answers, email excluded.
func (a Answers) Subject() string {
	var parts []string
	for _, v := range []string{a.Choice, a.Timing, a.EventName, a.EventType, a.Option} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " - ")
}

// Description renders one line per collected answer.
func (a Answers) Description() string {
	var b strings.Builder
	line := func(label, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, v)
		}
	}
	line("الطلب", a.Choice)
	line("التوقيت", a.Timing)
	line("اسم الفعالية", a.EventName)
	line("نوع الفعالية", a.EventType)
	line("الموضوع", a.Option)
	line("البريد", a.Email)
	return strings.TrimSuffix(b.String(), "\n")
}

func submission(conv *Conversation) intake.Submission {
	name := conv.DisplayName
	if name == "" {
		name = conv.SenderID
	}
	sub := intake.Submission{
		Name:        name,
		Email:       conv.Answers.Email,
		Category:    conv.Answers.Choice,
		Subject:     conv.Answers.Subject(),
		Description: conv.Answers.Description(),
		Source:      conv.Channel,
		Extra:       map[string]any{"sender_id": conv.SenderID},
	}
	if conv.Channel == protocol.SourceWhatsApp {
		sub.Phone = conv.SenderID
	}
	return sub
}
