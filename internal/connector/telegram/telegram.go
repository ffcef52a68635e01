// Package telegram runs the intake dialogue over a Telegram bot in private chats.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Meshal1212222/ticket-ticket/internal/connector"
)

// maxMessageLen is the Bot API limit for one sendMessage text, in runes.
const maxMessageLen = 4096

const helpText = "/start - بدء محادثة جديدة\n/help - عرض هذه الرسالة"

// Config holds Telegram connector configuration.
type Config struct {
	Token       string
	APIEndpoint string  // format string as in tgbotapi.APIEndpoint
	AllowFrom   []int64 // empty allows every user

	// Bot is reused when set, so the notifier and connector share one session.
	Bot *tgbotapi.BotAPI

	// OnStart runs before /start (or /new) is forwarded to the handler.
	OnStart func(ctx context.Context, msg connector.InboundMessage)
}

// Connector long-polls the Bot API and forwards private text messages.
type Connector struct {
	bot     *tgbotapi.BotAPI
	cfg     Config
	handler connector.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// NewBot authorizes token against endpoint (tgbotapi.APIEndpoint when empty).
func NewBot(token, endpoint string) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: authorize bot: %w", err)
	}
	return bot, nil
}

// New creates a connector, authorizing cfg.Token unless cfg.Bot is set.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	bot := cfg.Bot
	if bot == nil {
		var err error
		if bot, err = NewBot(cfg.Token, cfg.APIEndpoint); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connector{
		bot:     bot,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "telegram", "bot", bot.Self.UserName),
	}
	return c, nil
}

func (c *Connector) Name() string { return "telegram" }

// Start consumes updates until ctx is cancelled or Stop is called.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := c.bot.GetUpdatesChan(cfg)
	defer c.bot.StopReceivingUpdates()

	c.logger.Info("polling for updates")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("polling stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("telegram: update channel closed")
			}
			if update.Message != nil {
				c.handleUpdate(ctx, update)
			}
		}
	}
}

func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send delivers msg as plain text, split into Bot API sized parts.
func (c *Connector) Send(_ context.Context, msg connector.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: chat id %q: %w", msg.ChatID, err)
	}
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return nil
	}
	for i, part := range splitText(text, maxMessageLen) {
		out := tgbotapi.NewMessage(chatID, part)
		out.DisableWebPagePreview = true
		if _, err := c.bot.Send(out); err != nil {
			return fmt.Errorf("telegram: send part %d: %w", i+1, err)
		}
	}
	return nil
}

func (c *Connector) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	in, ok := toInbound(update.Message)
	if !ok {
		return
	}
	userID := update.Message.From.ID
	if len(c.cfg.AllowFrom) > 0 && !slices.Contains(c.cfg.AllowFrom, userID) {
		c.logger.Warn("message from user outside allow list", "user_id", userID)
		return
	}

	if update.Message.IsCommand() {
		switch update.Message.Command() {
		case "help":
			c.Send(ctx, connector.OutboundMessage{ChatID: in.ChatID, Content: helpText})
			return
		case "start", "new":
			if c.cfg.OnStart != nil {
				c.cfg.OnStart(ctx, in)
			}
		}
	}

	c.bot.Request(tgbotapi.NewChatAction(update.Message.Chat.ID, tgbotapi.ChatTyping))
	if err := c.handler(ctx, in); err != nil {
		c.logger.Error("handle message", "chat_id", in.ChatID, "error", err)
	}
}

// toInbound maps a private text (or captioned) message; anything else is dropped.
func toInbound(m *tgbotapi.Message) (connector.InboundMessage, bool) {
	if m == nil || m.From == nil || m.Chat == nil || !m.Chat.IsPrivate() {
		return connector.InboundMessage{}, false
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if strings.TrimSpace(text) == "" {
		return connector.InboundMessage{}, false
	}
	name := strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
	if name == "" {
		name = m.From.UserName
	}
	return connector.InboundMessage{
		Channel:     "telegram",
		SenderID:    strconv.FormatInt(m.From.ID, 10),
		ChatID:      strconv.FormatInt(m.Chat.ID, 10),
		DisplayName: name,
		Content:     text,
		MessageID:   strconv.Itoa(m.MessageID),
	}, true
}

// splitText cuts s into chunks of at most limit runes, preferring line breaks.
func splitText(s string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(s) > limit {
		cut := len(string([]rune(s)[:limit]))
		if nl := strings.LastIndexByte(s[:cut], '\n'); nl > 0 {
			cut = nl
		}
		parts = append(parts, strings.TrimRight(s[:cut], "\n"))
		s = strings.TrimLeft(s[cut:], "\n")
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}
