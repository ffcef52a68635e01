// Package greenapi talks to a Green-API style WhatsApp gateway: outbound
// sendMessage calls and inbound webhook notifications.
package greenapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Meshal1212222/ticket-ticket/internal/connector"
)

// DefaultAPIURL is the public gateway host.
const DefaultAPIURL = "https://api.green-api.com"

// Config identifies a gateway instance.
type Config struct {
	APIURL     string
	InstanceID string
	Token      string
}

// Client sends WhatsApp messages through the gateway.
type Client struct {
	cfg  Config
	http *http.Client
}

// HTTPError is returned when the gateway answers with a non-2xx status.
type HTTPError struct {
	URL     string
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("greenapi: %s returned %d: %s", e.URL, e.Code, e.Message)
}

// NewClient creates a gateway client.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimSuffix(cfg.APIURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg, http: httpClient}
}

func (c *Client) Name() string { return "whatsapp" }

// SendMessage posts text to chatID and returns the gateway message id.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"chatId": chatID, "message": text})
	if err != nil {
		return "", fmt.Errorf("greenapi: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/waInstance%s/sendMessage/%s", c.cfg.APIURL, c.cfg.InstanceID, c.cfg.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("greenapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("greenapi: send: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("greenapi: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Keep the token out of error messages.
		safeURL := strings.Replace(url, c.cfg.Token, "***", 1)
		return "", &HTTPError{URL: safeURL, Code: resp.StatusCode, Message: string(body)}
	}

	var out struct {
		IDMessage string `json:"idMessage"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("greenapi: decode response: %w", err)
	}
	if out.IDMessage == "" {
		return "", fmt.Errorf("greenapi: gateway rejected message: %s", out.Message)
	}
	return out.IDMessage, nil
}

// Send implements connector.Sender. Bare phone numbers get the personal chat suffix.
func (c *Client) Send(ctx context.Context, msg connector.OutboundMessage) error {
	_, err := c.SendMessage(ctx, ChatID(msg.ChatID), msg.Content)
	return err
}

// ChatID turns a phone number into a personal chat id; full ids pass through.
func ChatID(phone string) string {
	if strings.Contains(phone, "@") {
		return phone
	}
	return strings.TrimPrefix(phone, "+") + "@c.us"
}

// Phone strips the chat suffix from a personal chat id.
func Phone(chatID string) string {
	return strings.TrimSuffix(chatID, "@c.us")
}
