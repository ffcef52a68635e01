package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

const (
	anthropicAPIVersion = "2023-06-01"
	anthropicMaxTokens  = 1024
)

// AnthropicProvider speaks the Anthropic Messages API.
type AnthropicProvider struct {
	endpoint
}

// NewAnthropic defaults to api.anthropic.com and claude-3-5-haiku-latest.
func NewAnthropic(apiKey string, opts ...Option) *AnthropicProvider {
	return &AnthropicProvider{newEndpoint(apiKey, "https://api.anthropic.com", "claude-3-5-haiku-latest", opts)}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// Chat folds system messages into the system prompt. In JSON mode the reply
// is prefilled with "{" and the brace is restored on the returned content.
func (p *AnthropicProvider) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	in := messagesRequest{Model: p.modelFor(req), MaxTokens: anthropicMaxTokens}
	if req.MaxTokens > 0 {
		in.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		in.Temperature = &req.Temperature
	}

	var system []string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		default:
			in.Messages = append(in.Messages, turn{Role: m.Role, Content: m.Content})
		}
	}
	in.System = strings.Join(system, "\n\n")
	prefix := ""
	if req.JSON {
		prefix = "{"
		in.Messages = append(in.Messages, turn{Role: "assistant", Content: prefix})
	}

	header := http.Header{
		"X-Api-Key":         {p.apiKey},
		"Anthropic-Version": {anthropicAPIVersion},
	}
	var out messagesResponse
	if err := postJSON(ctx, p.http, p.Name(), p.baseURL+"/v1/messages", header, in, &out); err != nil {
		return nil, err
	}

	text := prefix
	for _, b := range out.Content {
		if b.Type == "text" {
			text += b.Text
		}
	}
	return &protocol.ChatResponse{
		Content:    text,
		Model:      out.Model,
		StopReason: out.StopReason,
		Usage:      protocol.Usage{PromptTokens: out.Usage.Input, CompletionTokens: out.Usage.Output},
	}, nil
}

type messagesRequest struct {
	Model       string   `json:"model"`
	System      string   `json:"system,omitempty"`
	Messages    []turn   `json:"messages"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type messagesResponse struct {
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Content    []contentBlock `json:"content"`
	Usage      struct {
		Input  int `json:"input_tokens"`
		Output int `json:"output_tokens"`
	} `json:"usage"`
}
