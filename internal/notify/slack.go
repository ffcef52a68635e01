package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

// SlackConfig selects either an incoming webhook or a bot token plus channel.
type SlackConfig struct {
	WebhookURL string
	BotToken   string
	Channel    string
	APIURL     string // override for the Web API base, mostly for tests
}

// SlackNotifier posts tickets to Slack.
type SlackNotifier struct {
	cfg      SlackConfig
	client   *slack.Client
	renderer Renderer
}

// NewSlackNotifier creates a Slack notifier. The webhook wins when both are set.
func NewSlackNotifier(cfg SlackConfig, r Renderer) (*SlackNotifier, error) {
	r.Format = FormatMrkdwn
	n := &SlackNotifier{cfg: cfg, renderer: r}
	if cfg.WebhookURL != "" {
		return n, nil
	}
	if cfg.BotToken == "" || cfg.Channel == "" {
		return nil, errors.New("notify slack: webhook_url or bot_token with channel is required")
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	n.client = slack.New(cfg.BotToken, opts...)
	return n, nil
}

func (n *SlackNotifier) Name() string { return "slack" }

func (n *SlackNotifier) Notify(ctx context.Context, t *protocol.Ticket) error {
	text := n.renderer.Render(t)

	if n.client == nil {
		if err := slack.PostWebhookContext(ctx, n.cfg.WebhookURL, &slack.WebhookMessage{Text: text}); err != nil {
			return fmt.Errorf("notify slack: webhook: %w", err)
		}
		return nil
	}

	_, _, err := n.client.PostMessageContext(ctx, n.cfg.Channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("notify slack: post message: %w", err)
	}
	return nil
}
