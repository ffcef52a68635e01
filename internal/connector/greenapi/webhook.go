package greenapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/Meshal1212222/ticket-ticket/internal/connector"
	"github.com/Meshal1212222/ticket-ticket/internal/connector/webhook"
	"github.com/Meshal1212222/ticket-ticket/internal/dedupe"
)

// TypeIncomingMessage is the only notification type the handler acts on.
const TypeIncomingMessage = "incomingMessageReceived"

// Notification is the subset of the gateway webhook body we read.
type Notification struct {
	TypeWebhook string `json:"typeWebhook"`
	IDMessage   string `json:"idMessage"`
	Timestamp   int64  `json:"timestamp"`
	SenderData  struct {
		ChatID     string `json:"chatId"`
		Sender     string `json:"sender"`
		SenderName string `json:"senderName"`
	} `json:"senderData"`
	MessageData struct {
		TypeMessage     string `json:"typeMessage"`
		TextMessageData *struct {
			TextMessage string `json:"textMessage"`
		} `json:"textMessageData,omitempty"`
		ExtendedTextMessageData *struct {
			Text string `json:"text"`
		} `json:"extendedTextMessageData,omitempty"`
	} `json:"messageData"`
}

// Text returns the message text, or "" for non-text messages.
func (n *Notification) Text() string {
	if d := n.MessageData.TextMessageData; d != nil && d.TextMessage != "" {
		return d.TextMessage
	}
	if d := n.MessageData.ExtendedTextMessageData; d != nil {
		return d.Text
	}
	return ""
}

// WebhookHandler receives gateway notifications and forwards private text
// messages to an InboundHandler.
type WebhookHandler struct {
	auth    webhook.Authenticator
	seen    *dedupe.Seen
	handler connector.InboundHandler
	logger  *slog.Logger

	// base outlives the request; processing continues after the 200.
	base context.Context
	wg   sync.WaitGroup

	mu sync.Mutex
	// pending holds each chat's unprocessed messages in arrival order. A key
	// is present while that chat's worker is running.
	pending map[string][]connector.InboundMessage
}

// NewWebhookHandler creates a webhook handler. seen may be nil to disable dedup.
func NewWebhookHandler(ctx context.Context, auth webhook.Authenticator, seen *dedupe.Seen, handler connector.InboundHandler, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		auth:    auth,
		seen:    seen,
		handler: handler,
		logger:  logger.With("component", "greenapi"),
		base:    ctx,
		pending: make(map[string][]connector.InboundMessage),
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := h.auth.ReadAndVerify(r)
	if errors.Is(err, webhook.ErrUnauthorized) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	if msg, ok := h.inbound(&n); ok {
		h.enqueue(msg)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// inbound filters a notification down to a chatbot message.
func (h *WebhookHandler) inbound(n *Notification) (connector.InboundMessage, bool) {
	if n.TypeWebhook != TypeIncomingMessage {
		h.logger.Debug("ignoring notification", "type", n.TypeWebhook)
		return connector.InboundMessage{}, false
	}
	chatID := n.SenderData.ChatID
	if chatID == "" || strings.HasSuffix(chatID, "@g.us") {
		return connector.InboundMessage{}, false
	}
	text := strings.TrimSpace(n.Text())
	if text == "" {
		return connector.InboundMessage{}, false
	}
	if h.seen != nil && !h.seen.First(n.IDMessage) {
		h.logger.Debug("duplicate message", "id", n.IDMessage)
		return connector.InboundMessage{}, false
	}
	return connector.InboundMessage{
		Channel:     "whatsapp",
		SenderID:    Phone(chatID),
		ChatID:      chatID,
		DisplayName: n.SenderData.SenderName,
		Content:     text,
		MessageID:   n.IDMessage,
	}, true
}

// enqueue appends msg to its chat's queue, starting a worker when the chat
// has none. Messages from one chat are handled one at a time, in order.
func (h *WebhookHandler) enqueue(msg connector.InboundMessage) {
	h.wg.Add(1)
	h.mu.Lock()
	q, running := h.pending[msg.ChatID]
	h.pending[msg.ChatID] = append(q, msg)
	h.mu.Unlock()
	if !running {
		go h.drain(msg.ChatID)
	}
}

func (h *WebhookHandler) drain(chatID string) {
	for {
		h.mu.Lock()
		q := h.pending[chatID]
		if len(q) == 0 {
			delete(h.pending, chatID)
			h.mu.Unlock()
			return
		}
		msg := q[0]
		h.pending[chatID] = q[1:]
		h.mu.Unlock()

		h.process(msg)
	}
}

func (h *WebhookHandler) process(msg connector.InboundMessage) {
	defer h.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic processing webhook", "panic", r, "id", msg.MessageID)
		}
	}()
	if err := h.handler(h.base, msg); err != nil {
		h.logger.Error("inbound handler error", "sender", msg.SenderID, "error", err)
	}
}

// Wait blocks until in-flight messages are processed.
func (h *WebhookHandler) Wait() {
	h.wg.Wait()
}
