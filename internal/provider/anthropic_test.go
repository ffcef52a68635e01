package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

func fakeAnthropic(t *testing.T, reply string, captured *messagesRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Error("missing anthropic-version header")
		}
		if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":       "claude-3-5-haiku-20241022",
			"stop_reason": "end_turn",
			"content":     []contentBlock{{Type: "text", Text: reply[:len(reply)/2]}, {Type: "text", Text: reply[len(reply)/2:]}},
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnthropicChat(t *testing.T) {
	var captured messagesRequest
	srv := fakeAnthropic(t, "Hello!", &captured)

	p := NewAnthropic("test-key", WithBaseURL(srv.URL))
	got, err := p.Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{
			{Role: "system", Content: "You summarize tickets."},
			{Role: "system", Content: "Answer briefly."},
			{Role: "user", Content: "Ticket text"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.MaxTokens != anthropicMaxTokens {
		t.Errorf("max_tokens = %d", captured.MaxTokens)
	}
	if captured.System != "You summarize tickets.\n\nAnswer briefly." {
		t.Errorf("system = %q", captured.System)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Role != "user" {
		t.Errorf("messages = %+v", captured.Messages)
	}

	if got.Content != "Hello!" || got.StopReason != "end_turn" {
		t.Errorf("response = %+v", got)
	}
	if got.Usage.PromptTokens != 10 || got.Usage.CompletionTokens != 5 {
		t.Errorf("usage = %+v", got.Usage)
	}
}

func TestAnthropicChat_JSONPrefill(t *testing.T) {
	var captured messagesRequest
	srv := fakeAnthropic(t, `"summary":"ok"}`, &captured)

	p := NewAnthropic("test-key", WithBaseURL(srv.URL), WithModel("claude-3-haiku"))
	got, err := p.Chat(context.Background(), protocol.ChatRequest{
		Messages: []protocol.ChatMessage{{Role: "user", Content: "Ticket text"}},
		JSON:     true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := captured.Messages[len(captured.Messages)-1]
	if last.Role != "assistant" || last.Content != "{" {
		t.Errorf("prefill = %+v", last)
	}
	if captured.Model != "claude-3-haiku" {
		t.Errorf("model = %q", captured.Model)
	}
	if got.Content != `{"summary":"ok"}` {
		t.Errorf("content = %q", got.Content)
	}
}

func TestAnthropicChat_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error"}`))
	}))
	defer srv.Close()

	p := NewAnthropic("bad", WithBaseURL(srv.URL))
	_, err := p.Chat(context.Background(), protocol.ChatRequest{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if apiErr.Retryable() {
		t.Error("401 should not be retryable")
	}
}
