// Package xdm polls X (Twitter) direct messages and replies to them.
package xdm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultAPIURL is the X API v2 host.
const DefaultAPIURL = "https://api.twitter.com"

// Event is one DM event from /2/dm_events.
type Event struct {
	ID               string    `json:"id"`
	EventType        string    `json:"event_type"`
	Text             string    `json:"text"`
	SenderID         string    `json:"sender_id"`
	DMConversationID string    `json:"dm_conversation_id"`
	CreatedAt        time.Time `json:"created_at"`

	// SenderName is filled from the users expansion.
	SenderName string `json:"-"`
}

type eventsResponse struct {
	Data     []Event `json:"data"`
	Includes struct {
		Users []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Client is a minimal X API v2 DM client using app bearer auth.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a DM client.
func NewClient(baseURL, bearerToken string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   bearerToken,
		http:    httpClient,
	}
}

// ListEvents returns recent MessageCreate events, newest first.
func (c *Client) ListEvents(ctx context.Context) ([]Event, error) {
	q := url.Values{}
	q.Set("event_types", "MessageCreate")
	q.Set("dm_event.fields", "id,text,event_type,created_at,sender_id,dm_conversation_id")
	q.Set("expansions", "sender_id")
	q.Set("user.fields", "name,username")

	body, err := c.do(ctx, http.MethodGet, "/2/dm_events?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp eventsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("xdm: decode events: %w", err)
	}
	if len(resp.Data) == 0 && len(resp.Errors) > 0 {
		return nil, fmt.Errorf("xdm: list events: %s: %s", resp.Errors[0].Title, resp.Errors[0].Detail)
	}

	names := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		names[u.ID] = u.Name
	}
	for i := range resp.Data {
		resp.Data[i].SenderName = names[resp.Data[i].SenderID]
	}
	return resp.Data, nil
}

// SendDM sends text to the one-to-one conversation with participantID.
func (c *Client) SendDM(ctx context.Context, participantID, text string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("xdm: marshal: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, "/2/dm_conversations/with/"+url.PathEscape(participantID)+"/messages", payload)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("xdm: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xdm: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("xdm: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("xdm: %s %s returned %d: %s", method, strings.SplitN(path, "?", 2)[0], resp.StatusCode, string(data))
	}
	return data, nil
}
