package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

// OpenAIProvider speaks the chat completions API shared by OpenAI, OpenRouter,
// Groq and Gemini's compatibility endpoint.
type OpenAIProvider struct {
	endpoint
}

// NewOpenAI defaults to api.openai.com and gpt-4o-mini.
func NewOpenAI(apiKey string, opts ...Option) *OpenAIProvider {
	return &OpenAIProvider{newEndpoint(apiKey, "https://api.openai.com/v1", "gpt-4o-mini", opts)}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Chat sends one completion request. JSON mode asks for a json_object reply.
func (p *OpenAIProvider) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	in := completionRequest{Model: p.modelFor(req), Messages: req.Messages}
	if req.MaxTokens > 0 {
		in.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		in.Temperature = &req.Temperature
	}
	if req.JSON {
		in.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	header := http.Header{"Authorization": {"Bearer " + p.apiKey}}
	var out completionResponse
	if err := postJSON(ctx, p.http, p.Name(), p.baseURL+"/chat/completions", header, in, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}

	first := out.Choices[0]
	return &protocol.ChatResponse{
		Content:    first.Message.Content,
		Model:      out.Model,
		StopReason: first.FinishReason,
		Usage:      protocol.Usage{PromptTokens: out.Usage.Prompt, CompletionTokens: out.Usage.Completion},
	}, nil
}

type completionRequest struct {
	Model          string                 `json:"model"`
	Messages       []protocol.ChatMessage `json:"messages"`
	MaxTokens      *int                   `json:"max_tokens,omitempty"`
	Temperature    *float64               `json:"temperature,omitempty"`
	ResponseFormat *responseFormat        `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      protocol.ChatMessage `json:"message"`
		FinishReason string               `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		Prompt     int `json:"prompt_tokens"`
		Completion int `json:"completion_tokens"`
	} `json:"usage"`
}
