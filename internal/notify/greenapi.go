package notify

import (
	"context"
	"fmt"

	"github.com/Meshal1212222/ticket-ticket/pkg/protocol"
)

// MessageSender is the subset of the WhatsApp gateway client used here.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) (string, error)
}

// GreenAPINotifier posts tickets to a WhatsApp group through the gateway.
type GreenAPINotifier struct {
	client   MessageSender
	groupID  string
	renderer Renderer
}

// NewGreenAPINotifier creates a notifier for groupID (e.g. "120363...@g.us").
func NewGreenAPINotifier(client MessageSender, groupID string, r Renderer) *GreenAPINotifier {
	r.Format = FormatWhatsApp
	return &GreenAPINotifier{client: client, groupID: groupID, renderer: r}
}

func (n *GreenAPINotifier) Name() string { return "whatsapp" }

func (n *GreenAPINotifier) Notify(ctx context.Context, t *protocol.Ticket) error {
	if _, err := n.client.SendMessage(ctx, n.groupID, n.renderer.Render(t)); err != nil {
		return fmt.Errorf("notify whatsapp: %w", err)
	}
	return nil
}
