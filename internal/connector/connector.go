package connector

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Sender delivers outbound messages on one channel.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg OutboundMessage) error

func (f SenderFunc) Send(ctx context.Context, msg OutboundMessage) error { return f(ctx, msg) }

// Connector is a long-running transport (Telegram polling, etc.).
type Connector interface {
	Sender
	// Name returns the connector type (e.g., "telegram").
	Name() string
	// Start begins listening for inbound messages. Blocks until context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
}

// OutboundMessage is a message sent to an external platform.
type OutboundMessage struct {
	ChatID  string // Platform-specific chat identifier
	Content string // Message text
}

// InboundMessage is a message received from an external platform.
type InboundMessage struct {
	Channel     string // Connector name (e.g., "whatsapp")
	SenderID    string // Platform-specific sender identifier
	ChatID      string // Where replies go
	DisplayName string
	Content     string
	MessageID   string // Platform message id, used for dedup
}

// InboundHandler processes messages received from external platforms.
type InboundHandler func(ctx context.Context, msg InboundMessage) error

// Replier produces the reply for an inbound message. An empty reply sends nothing.
type Replier interface {
	Reply(ctx context.Context, msg InboundMessage) string
}

// Respond builds an InboundHandler that asks r for a reply, waits delay and
// sends the reply back through s.
func Respond(r Replier, s Sender, delay time.Duration, logger *slog.Logger) InboundHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, msg InboundMessage) error {
		reply := r.Reply(ctx, msg)
		if strings.TrimSpace(reply) == "" {
			return nil
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := s.Send(ctx, OutboundMessage{ChatID: msg.ChatID, Content: reply}); err != nil {
			logger.Error("reply failed", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
			return err
		}
		return nil
	}
}
