// Package provider calls hosted LLM chat APIs for ticket summaries.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

// maxErrorBody bounds how much of a failed response is kept in APIError.
const maxErrorBody = 2048

// Provider is the abstraction over LLM APIs.
type Provider interface {
	Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error)
	Name() string
}

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: api error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable reports whether err wraps a retryable APIError.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// Settings selects and configures a provider.
type Settings struct {
	Type       string // "openai" (default) or "anthropic"
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// New builds the provider described by s.
func New(s Settings) (Provider, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("provider: api key is required")
	}
	var opts []Option
	if s.BaseURL != "" {
		opts = append(opts, WithBaseURL(s.BaseURL))
	}
	if s.Model != "" {
		opts = append(opts, WithModel(s.Model))
	}
	if s.HTTPClient != nil {
		opts = append(opts, WithHTTPClient(s.HTTPClient))
	}
	switch s.Type {
	case "anthropic":
		return NewAnthropic(s.APIKey, opts...), nil
	case "", "openai":
		return NewOpenAI(s.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("provider: unknown type %q", s.Type)
	}
}

// endpoint is what every provider needs to reach its API.
type endpoint struct {
	http    *http.Client
	baseURL string
	apiKey  string
	model   string // used when the request names none
}

// Option overrides an endpoint default.
type Option func(*endpoint)

// WithBaseURL sets the API root, e.g. "https://openrouter.ai/api/v1".
func WithBaseURL(url string) Option {
	return func(e *endpoint) { e.baseURL = strings.TrimRight(url, "/") }
}

func WithModel(model string) Option {
	return func(e *endpoint) { e.model = model }
}

func WithHTTPClient(c *http.Client) Option {
	return func(e *endpoint) { e.http = c }
}

func newEndpoint(apiKey, baseURL, model string, opts []Option) endpoint {
	e := endpoint{
		http:    &http.Client{Timeout: 60 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e endpoint) modelFor(req protocol.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return e.model
}

// postJSON sends in as JSON and decodes a 2xx answer into out.
func postJSON(ctx context.Context, client *http.Client, name, url string, header http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Provider: name, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w", name, err)
	}
	return nil
}
