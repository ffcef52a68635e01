// Package dedupe remembers recently seen message ids so redelivered
// webhooks and re-polled DMs are processed once.
package dedupe

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
)

// DefaultWindow is how long an id is remembered.
const DefaultWindow = 10 * time.Minute

// Seen is a time-windowed set of message ids backed by bigcache.
type Seen struct {
	mu    sync.Mutex
	cache *bigcache.BigCache
}

// New creates a Seen set. Entries expire after window.
func New(window time.Duration) (*Seen, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	cfg := bigcache.DefaultConfig(window)
	cfg.CleanWindow = window / 2
	cfg.Verbose = false
	cache, err := bigcache.NewBigCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("dedupe: init cache: %w", err)
	}
	return &Seen{cache: cache}, nil
}

// First records id and reports whether this is its first sighting.
// Empty ids are always treated as new.
func (s *Seen) First(id string) bool {
	if id == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cache.Get(id); err == nil {
		return false
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		return true
	}
	_ = s.cache.Set(id, []byte{1})
	return true
}

// Len returns the number of remembered ids.
func (s *Seen) Len() int {
	return s.cache.Len()
}

// Close releases the cache.
func (s *Seen) Close() error {
	return s.cache.Close()
}
