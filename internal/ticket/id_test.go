package ticket

import (
	"context"
	"regexp"
	"testing"
	"time"
)

func TestRandomIDs_Format(t *testing.T) {
	g := RandomIDs{Now: func() time.Time { return time.UnixMilli(1700000000000) }}
	id, err := g.NextID(context.Background())
	if err != nil {
		t.Fatalf("next id: %v", err)
	}
	if !regexp.MustCompile(`^TKT-LOYW3V28-[0-9A-F]{4}$`).MatchString(id) {
		t.Errorf("unexpected id %q", id)
	}
}

func TestRandomIDs_Unique(t *testing.T) {
	g := RandomIDs{}
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, _ := g.NextID(context.Background())
		seen[id] = true
	}
	if len(seen) < 190 {
		t.Errorf("too many collisions: %d unique of 200", len(seen))
	}
}

func TestSequentialIDs(t *testing.T) {
	s := newTestStore(t)
	g, err := NewIDGenerator(SchemeSequential, "", s)
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	first, _ := g.NextID(context.Background())
	second, _ := g.NextID(context.Background())
	if first != "TKT-000001" || second != "TKT-000002" {
		t.Errorf("got %q, %q", first, second)
	}
}

func TestSequentialIDs_Prefix(t *testing.T) {
	s := newTestStore(t)
	g := SequentialIDs{Seq: s, Prefix: "WA", Width: 4}
	id, _ := g.NextID(context.Background())
	if id != "TKT-WA0001" {
		t.Errorf("got %q", id)
	}
}

func TestNewIDGenerator_Unknown(t *testing.T) {
	if _, err := NewIDGenerator("uuid", "", nil); err == nil {
		t.Error("expected error for unknown scheme")
	}
	if _, err := NewIDGenerator(SchemeSequential, "", nil); err == nil {
		t.Error("expected error for missing sequencer")
	}
}
