package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

// TelegramNotifier posts tickets to a Telegram group as HTML.
type TelegramNotifier struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	renderer Renderer
	logger   *slog.Logger
}

// NewTelegramNotifier creates a notifier for chatID. The renderer format is forced to HTML.
func NewTelegramNotifier(bot *tgbotapi.BotAPI, chatID int64, r Renderer, logger *slog.Logger) *TelegramNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	r.Format = FormatHTML
	return &TelegramNotifier{bot: bot, chatID: chatID, renderer: r, logger: logger}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Notify(_ context.Context, t *protocol.Ticket) error {
	msg := tgbotapi.NewMessage(n.chatID, n.renderer.Render(t))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	if _, err := n.bot.Send(msg); err != nil {
		// Fallback to plain text if HTML fails
		n.logger.Warn("HTML send failed, falling back to plain text",
			"chat_id", n.chatID,
			"error", err,
		)
		plain := n.renderer
		plain.Format = FormatPlain
		msg.Text = plain.Render(t)
		msg.ParseMode = ""
		if _, err := n.bot.Send(msg); err != nil {
			return fmt.Errorf("notify telegram: %w", err)
		}
	}
	return nil
}
