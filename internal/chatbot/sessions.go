package chatbot

import (
	"sort"
	"sync"
	"time"
)

// DefaultIdleTimeout is how long a conversation survives without messages.
const DefaultIdleTimeout = time.Hour

type entry struct {
	mu      sync.Mutex
	conv    Conversation
	removed bool // set under mu once the entry left the map
}

// Sessions holds conversation state keyed by channel-qualified sender id.
// Each conversation has its own lock so transitions for one sender are
// serialized while different senders proceed in parallel.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]*entry
	idle    time.Duration
	now     func() time.Time
}

// NewSessions creates an empty session table.
func NewSessions(idle time.Duration) *Sessions {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Sessions{
		entries: make(map[string]*entry),
		idle:    idle,
		now:     time.Now,
	}
}

// IdleTimeout returns the configured idle window.
func (s *Sessions) IdleTimeout() time.Duration { return s.idle }

// acquire returns the locked entry for channel/sender, creating it at
// StepWelcome on first contact. The caller must unlock e.mu.
func (s *Sessions) acquire(channel, senderID string) *entry {
	key := Key(channel, senderID)
	for {
		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			e = &entry{conv: Conversation{
				SenderID:  senderID,
				Channel:   channel,
				Step:      StepWelcome,
				UpdatedAt: s.now(),
			}}
			s.entries[key] = e
		}
		s.mu.Unlock()

		e.mu.Lock()
		if !e.removed {
			return e
		}
		e.mu.Unlock()
	}
}

// Get returns a snapshot of one conversation.
func (s *Sessions) Get(key string) (Conversation, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return Conversation{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Conversation{}, false
	}
	return e.conv, true
}

// Len returns the number of live conversations.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// List returns snapshots of all conversations, most recently active first.
func (s *Sessions) List() []Conversation {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]Conversation, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			out = append(out, e.conv)
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Reset drops one conversation. It reports whether it existed.
func (s *Sessions) Reset(key string) bool {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	return true
}

// ResetAll drops every conversation and returns how many there were.
func (s *Sessions) ResetAll() int {
	s.mu.Lock()
	old := s.entries
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range old {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
	return len(old)
}

// Sweep removes conversations idle since before now minus the idle timeout.
// Entries in the middle of a transition are skipped.
func (s *Sessions) Sweep(now time.Time) int {
	cutoff := now.Add(-s.idle)
	removed := 0

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if !e.mu.TryLock() {
			continue
		}
		if e.conv.UpdatedAt.Before(cutoff) {
			e.removed = true
			delete(s.entries, key)
			removed++
		}
		e.mu.Unlock()
	}
	return removed
}
