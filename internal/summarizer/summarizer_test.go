package summarizer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/Meshal1212222/ticket-ticket/internal/logbuf"
	"github.com/Meshal1212222/ticket-ticket/internal/provider"
	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

type fakeProvider struct {
	reply string
	err   error
	calls int
	last  protocol.ChatRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(_ context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &protocol.ChatResponse{Content: f.reply, Usage: protocol.Usage{PromptTokens: 3, CompletionTokens: 4}}, nil
}

func newTicket() *protocol.Ticket {
	return &protocol.Ticket{ID: "TKT-1", Name: "Sara", Priority: "medium", Description: "app crashes on login"}
}

func TestSummarize_NoisyReply(t *testing.T) {
	prov := &fakeProvider{reply: "Sure! Here you go:\n```json\n{\"summary\": \"Login crash\", \"priority\": \"HIGH\"}\n```"}
	in := newTicket()

	out, o := New(prov).Summarize(context.Background(), in)
	if !o.OK() {
		t.Fatalf("unexpected failure: %v", o.Err)
	}
	if out.SummaryText() != "Login crash" || !out.AIProcessed {
		t.Errorf("out = %+v", out)
	}
	if o.SuggestedPriority != "high" {
		t.Errorf("priority = %q", o.SuggestedPriority)
	}
	if o.Tokens != 7 {
		t.Errorf("tokens = %d", o.Tokens)
	}
	if !prov.last.JSON {
		t.Error("expected JSON mode request")
	}
	if in.Summary != nil || in.AIProcessed {
		t.Error("input ticket must not be mutated")
	}
}

func TestSummarize_FailuresReturnOriginal(t *testing.T) {
	cases := []struct {
		name string
		prov *fakeProvider
	}{
		{"provider error", &fakeProvider{err: errors.New("timeout")}},
		{"rate limited", &fakeProvider{err: &provider.APIError{Provider: "fake", StatusCode: 429}}},
		{"no json", &fakeProvider{reply: "I cannot help with that."}},
		{"malformed json", &fakeProvider{reply: "{summary: oops"}},
		{"broken object", &fakeProvider{reply: `{"summary": "x",}`}},
		{"empty summary", &fakeProvider{reply: `{"summary": "  "}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := newTicket()
			before := *in
			out, o := New(tc.prov).Summarize(context.Background(), in)
			if o.OK() {
				t.Fatal("expected failure outcome")
			}
			if out != in {
				t.Error("expected the original ticket back")
			}
			if !reflect.DeepEqual(*out, before) {
				t.Errorf("ticket changed: %+v", out)
			}
			if tc.prov.calls != 1 {
				t.Errorf("calls = %d, want a single attempt", tc.prov.calls)
			}
		})
	}
}

func TestSummarize_LogsUnderComponent(t *testing.T) {
	buf := logbuf.New(10)
	logger := slog.New(logbuf.NewHandler(slog.NewTextHandler(io.Discard, nil), buf))
	prov := &fakeProvider{err: errors.New("boom")}

	New(prov, WithLogger(logger)).Summarize(context.Background(), newTicket())

	got := buf.Query(logbuf.Query{Component: "summarizer", Ticket: "TKT-1"})
	if len(got) != 1 || got[0].Message != "summarization failed" {
		t.Errorf("entries = %+v", got)
	}
}

func TestExtractJSON(t *testing.T) {
	got, err := extractJSON(`noise {"a": {"b": 1}} trailing`)
	if err != nil || got != `{"a": {"b": 1}}` {
		t.Errorf("got %q, %v", got, err)
	}
	if _, err := extractJSON("} backwards {"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("expected ErrNoJSON, got %v", err)
	}
}
