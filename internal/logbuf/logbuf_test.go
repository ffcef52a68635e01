package logbuf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger(buf *Buffer, opts *slog.HandlerOptions) *slog.Logger {
	return slog.New(NewHandler(slog.NewTextHandler(io.Discard, opts), buf))
}

func TestBuffer_EvictsOldest(t *testing.T) {
	buf := New(3)
	for i := 0; i < 5; i++ {
		buf.Write(Entry{Level: "INFO", Message: "msg", Attrs: map[string]any{"i": i}})
	}

	got := buf.Query(Query{MinLevel: slog.LevelDebug})
	if len(got) != 3 || buf.Len() != 3 {
		t.Fatalf("held %d entries, Len %d", len(got), buf.Len())
	}
	if got[0].Attrs["i"] != 2 || got[2].Attrs["i"] != 4 {
		t.Errorf("want i=2..4 oldest first, got %v..%v", got[0].Attrs["i"], got[2].Attrs["i"])
	}
	if got[0].Seq != 3 || got[2].Seq != 5 || buf.LastSeq() != 5 {
		t.Errorf("seq = %d..%d, last %d", got[0].Seq, got[2].Seq, buf.LastSeq())
	}
}

func TestBuffer_Empty(t *testing.T) {
	buf := New(0)
	if buf.Len() != 0 || buf.LastSeq() != 0 {
		t.Errorf("Len %d LastSeq %d", buf.Len(), buf.LastSeq())
	}
	if got := buf.Query(Query{}); got != nil {
		t.Errorf("query on empty buffer = %v", got)
	}
}

func TestBuffer_Query(t *testing.T) {
	buf := New(10)
	now := time.Now()
	buf.Write(Entry{Time: now.Add(-time.Hour), Level: "ERROR", Component: "notify", Message: "telegram failed",
		Attrs: map[string]any{TicketKey: "TKT-1"}})
	buf.Write(Entry{Time: now, Level: "DEBUG", Component: "chatbot", Message: "transition"})
	buf.Write(Entry{Time: now, Level: "WARN", Component: "notify", Message: "slack send failed",
		Attrs: map[string]any{TicketKey: "TKT-2"}})
	buf.Write(Entry{Time: now, Level: "INFO", Component: "intake", Message: "ticket created",
		Attrs: map[string]any{TicketKey: "TKT-2"}})

	cases := []struct {
		name string
		q    Query
		want int
	}{
		{"all", Query{MinLevel: slog.LevelDebug}, 4},
		{"default level skips debug", Query{}, 3},
		{"after", Query{After: 2, MinLevel: slog.LevelDebug}, 2},
		{"since", Query{Since: now.Add(-time.Minute), MinLevel: slog.LevelDebug}, 3},
		{"level", Query{MinLevel: slog.LevelWarn}, 2},
		{"component", Query{Component: "notify"}, 2},
		{"ticket", Query{Ticket: "TKT-2"}, 2},
		{"contains", Query{Contains: "FAILED"}, 2},
		{"limit", Query{Limit: 1}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(buf.Query(tc.q)); got != tc.want {
				t.Errorf("got %d entries, want %d", got, tc.want)
			}
		})
	}

	if last := buf.Query(Query{Limit: 1}); last[0].Message != "ticket created" {
		t.Errorf("limit should keep newest, got %q", last[0].Message)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"WARN+2":  slog.LevelWarn + 2,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestHandler_Captures(t *testing.T) {
	buf := New(10)
	logger := discardLogger(buf, nil)

	logger.Info("ticket created", TicketKey, "TKT-9", "error", errors.New("boom"))
	logger.Warn("warning")

	got := buf.Query(Query{})
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Attrs[TicketKey] != "TKT-9" || got[0].Attrs["error"] != "boom" {
		t.Errorf("attrs = %v", got[0].Attrs)
	}
	if got[1].Level != "WARN" || got[1].Attrs != nil {
		t.Errorf("entry = %+v", got[1])
	}
	if len(buf.Query(Query{Ticket: "TKT-9"})) != 1 {
		t.Error("ticket filter missed handler-written entry")
	}
}

func TestHandler_ComponentAndGroups(t *testing.T) {
	buf := New(10)
	logger := discardLogger(buf, nil).With("component", "greenapi").WithGroup("req")

	logger.Info("msg", "id", "A1", slog.Group("sender", "chat", "966500000000@c.us"))

	e := buf.Query(Query{})[0]
	if e.Component != "greenapi" {
		t.Errorf("component = %q", e.Component)
	}
	if _, ok := e.Attrs["component"]; ok {
		t.Error("component should be lifted out of attrs")
	}
	if e.Attrs["req.id"] != "A1" || e.Attrs["req.sender.chat"] != "966500000000@c.us" {
		t.Errorf("attrs = %v", e.Attrs)
	}
}

func TestHandler_RedactsSecrets(t *testing.T) {
	buf := New(10)
	discardLogger(buf, nil).Info("configured", "bot_token", "123:abc", "API_KEY", "sk-1", "chat_id", "-100")

	e := buf.Query(Query{})[0]
	if e.Attrs["bot_token"] != redacted || e.Attrs["API_KEY"] != redacted {
		t.Errorf("secrets leaked: %v", e.Attrs)
	}
	if e.Attrs["chat_id"] != "-100" {
		t.Errorf("chat_id = %v", e.Attrs["chat_id"])
	}
}

func TestHandler_BufferIgnoresInnerLevel(t *testing.T) {
	buf := New(10)
	inner := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn})
	h := NewHandler(inner, buf)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("buffer must see DEBUG")
	}

	logger := slog.New(h)
	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")

	if got := len(buf.Query(Query{MinLevel: slog.LevelDebug})); got != 3 {
		t.Errorf("buffered %d entries, want 3", got)
	}
}
