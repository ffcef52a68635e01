// Package logbuf keeps recent log entries in memory for the admin log endpoint.
package logbuf

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// TicketKey is the attribute that ties a log line to a ticket.
const TicketKey = "ticket_id"

// Entry is one captured log record.
type Entry struct {
	Seq       uint64         `json:"seq"`
	Time      time.Time      `json:"time"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Query selects entries. Zero fields match everything.
type Query struct {
	After     uint64 // only entries with Seq > After, for tailing
	Since     time.Time
	MinLevel  slog.Level
	Component string
	Ticket    string // entries whose ticket_id attribute equals Ticket
	Contains  string // case-insensitive, matched against the message
	Limit     int    // keep the newest Limit matches
}

func (q Query) match(e *Entry) bool {
	switch {
	case e.Seq <= q.After:
		return false
	case !q.Since.IsZero() && e.Time.Before(q.Since):
		return false
	case ParseLevel(e.Level) < q.MinLevel:
		return false
	case q.Component != "" && e.Component != q.Component:
		return false
	case q.Ticket != "" && e.Attrs[TicketKey] != q.Ticket:
		return false
	}
	return q.Contains == "" || strings.Contains(strings.ToLower(e.Message), strings.ToLower(q.Contains))
}

// Buffer holds the last N entries. Safe for concurrent use.
type Buffer struct {
	mu   sync.Mutex
	ring []Entry
	next uint64 // sequence number of the next write, starting at 1
}

// New returns a buffer holding up to capacity entries (1000 when <= 0).
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Buffer{ring: make([]Entry, capacity), next: 1}
}

// Write stores e, assigning its sequence number and evicting the oldest entry when full.
func (b *Buffer) Write(e Entry) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	e.Seq = b.next
	b.ring[int((b.next-1)%uint64(len(b.ring)))] = e
	b.next++
	return e.Seq
}

// Len reports how many entries are held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.held()
}

// LastSeq is the sequence number of the newest entry, 0 when empty.
func (b *Buffer) LastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next - 1
}

func (b *Buffer) held() int {
	if n := int(b.next - 1); n < len(b.ring) {
		return n
	}
	return len(b.ring)
}

// Query returns matching entries, oldest first.
func (b *Buffer) Query(q Query) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.held()
	first := b.next - uint64(n)
	var out []Entry
	for seq := first; seq < b.next; seq++ {
		e := &b.ring[int((seq-1)%uint64(len(b.ring)))]
		if q.match(e) {
			out = append(out, *e)
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// ParseLevel maps a level name back to slog.Level. Unknown names are INFO.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		if strings.EqualFold(s, "warning") {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
	return l
}
