package chatbot

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSweepRemovesIdle(t *testing.T) {
	s := NewSessions(time.Hour)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	e := s.acquire("whatsapp", "old")
	e.mu.Unlock()

	s.now = func() time.Time { return base.Add(50 * time.Minute) }
	e = s.acquire("whatsapp", "recent")
	e.mu.Unlock()

	if n := s.Sweep(base.Add(61 * time.Minute)); n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	if _, ok := s.Get(Key("whatsapp", "old")); ok {
		t.Error("idle conversation survived the sweep")
	}
	if _, ok := s.Get(Key("whatsapp", "recent")); !ok {
		t.Error("active conversation was swept")
	}
}

func TestSweepSkipsBusyEntries(t *testing.T) {
	s := NewSessions(time.Minute)
	e := s.acquire("x", "busy")

	if n := s.Sweep(time.Now().Add(time.Hour)); n != 0 {
		t.Errorf("swept %d locked entries", n)
	}
	e.mu.Unlock()

	if n := s.Sweep(time.Now().Add(time.Hour)); n != 1 {
		t.Errorf("removed %d after unlock, want 1", n)
	}
}

func TestResetAndList(t *testing.T) {
	s := NewSessions(time.Hour)
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		e := s.acquire("telegram", id)
		e.mu.Unlock()
	}

	list := s.List()
	if len(list) != 3 || list[0].SenderID != "c" {
		t.Fatalf("list = %+v", list)
	}

	if !s.Reset(Key("telegram", "b")) {
		t.Error("reset existing returned false")
	}
	if s.Reset(Key("telegram", "b")) {
		t.Error("reset missing returned true")
	}
	if n := s.ResetAll(); n != 2 {
		t.Errorf("ResetAll = %d", n)
	}
	if s.Len() != 0 {
		t.Errorf("len = %d", s.Len())
	}
}

func TestAcquireAfterResetStartsFresh(t *testing.T) {
	s := NewSessions(time.Hour)
	e := s.acquire("whatsapp", "1")
	e.conv.Step = StepSellTiming
	e.mu.Unlock()

	s.Reset(Key("whatsapp", "1"))

	e = s.acquire("whatsapp", "1")
	defer e.mu.Unlock()
	if e.conv.Step != StepWelcome {
		t.Errorf("step = %s", e.conv.Step)
	}
}

func TestStepJSON(t *testing.T) {
	b, err := json.Marshal(Conversation{Step: StepSellAfterOptions})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back struct {
		Step Step `json:"step"`
	}
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Step != StepSellAfterOptions {
		t.Errorf("step = %s", back.Step)
	}
}

func TestMatchFirstWins(t *testing.T) {
	spec := flow[StepSellBeforeOptions]
	opt, ok := spec.match("إلغاء العرض")
	if !ok || opt.numeral != "5" {
		t.Errorf("matched %+v", opt)
	}
	opt, _ = spec.match("  ٦ ")
	if opt.next != StepGetEmail {
		t.Errorf("numeral 6 should route to email, got %+v", opt)
	}
}
