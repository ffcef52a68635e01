package xdm

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Meshal1212222/ticket-ticket/internal/connector"
	"github.com/Meshal1212222/ticket-ticket/internal/dedupe"
)

// Poller fetches new DMs on each Poll and hands them to an InboundHandler.
// It implements connector.Sender for replies.
type Poller struct {
	client  *Client
	selfID  string
	seen    *dedupe.Seen
	handler connector.InboundHandler
	logger  *slog.Logger

	mu      sync.Mutex
	primed  bool
	lastID  string
	running bool
}

// NewPoller creates a poller. selfID is the account's own user id; its
// outgoing messages are skipped.
func NewPoller(client *Client, selfID string, seen *dedupe.Seen, handler connector.InboundHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:  client,
		selfID:  selfID,
		seen:    seen,
		handler: handler,
		logger:  logger.With("component", "xdm"),
	}
}

func (p *Poller) Name() string { return "x" }

// Send implements connector.Sender. ChatID is the participant's user id.
func (p *Poller) Send(ctx context.Context, msg connector.OutboundMessage) error {
	return p.client.SendDM(ctx, msg.ChatID, msg.Content)
}

// Poll runs one fetch cycle. Overlapping calls return immediately.
// The first successful poll only records the newest event.
func (p *Poller) Poll(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	events, err := p.client.ListEvents(ctx)
	if err != nil {
		p.logger.Error("poll failed", "error", err)
		return err
	}
	fresh, newest := p.pending(events)

	// Handling outlives the poll deadline so a started conversation step
	// always finishes and replies. The deadline only stops new events from
	// starting; the cursor stays on the last handled one.
	work := context.WithoutCancel(ctx)
	for i, ev := range fresh {
		if ctx.Err() != nil {
			p.logger.Warn("poll deadline reached, deferring events", "remaining", len(fresh)-i)
			return nil
		}
		p.handle(work, ev)
		p.commit(ev.ID)
	}
	p.commit(newest)
	return nil
}

func (p *Poller) handle(ctx context.Context, ev Event) {
	if p.seen != nil && !p.seen.First(ev.ID) {
		return
	}
	msg := connector.InboundMessage{
		Channel:     "x",
		SenderID:    ev.SenderID,
		ChatID:      ev.SenderID,
		DisplayName: ev.SenderName,
		Content:     strings.TrimSpace(ev.Text),
		MessageID:   ev.ID,
	}
	if msg.Content == "" {
		return
	}
	if err := p.handler(ctx, msg); err != nil {
		p.logger.Error("inbound handler error", "sender", ev.SenderID, "error", err)
	}
}

// pending returns inbound events past the cursor, oldest first, and the
// newest id in the batch. The very first batch only primes the cursor.
func (p *Poller) pending(events []Event) ([]Event, string) {
	sorted := append([]Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return idLess(sorted[i].ID, sorted[j].ID) })

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(sorted) == 0 {
		p.primed = true
		return nil, ""
	}
	newest := sorted[len(sorted)-1].ID
	if !p.primed {
		p.primed = true
		p.lastID = newest
		p.logger.Info("cursor primed", "last_id", newest)
		return nil, newest
	}

	var fresh []Event
	for _, ev := range sorted {
		if !idLess(p.lastID, ev.ID) {
			continue
		}
		if ev.EventType != "" && ev.EventType != "MessageCreate" {
			continue
		}
		if ev.SenderID == p.selfID {
			continue
		}
		fresh = append(fresh, ev)
	}
	return fresh, newest
}

// commit moves the cursor forward to id.
func (p *Poller) commit(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id != "" && idLess(p.lastID, id) {
		p.lastID = id
	}
}

// idLess compares snowflake ids numerically without parsing.
func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
