// Package chatbot runs the scripted support dialogue that collects ticket
// fields over messaging channels.
package chatbot

import (
	"fmt"
	"time"
)

// Step is a position in the dialogue.
type Step int

const (
	StepWelcome Step = iota
	StepMainChoice
	StepBuyTiming
	StepBuyEventName
	StepBuyEventType
	StepGetEmail
	StepSellTiming
	StepSellBeforeOptions
	StepSellAfterOptions
	StepCompleted
)

var stepNames = [...]string{
	StepWelcome:           "welcome",
	StepMainChoice:        "main_choice",
	StepBuyTiming:         "buy_timing",
	StepBuyEventName:      "buy_event_name",
	StepBuyEventType:      "buy_event_type",
	StepGetEmail:          "get_email",
	StepSellTiming:        "sell_timing",
	StepSellBeforeOptions: "sell_before_options",
	StepSellAfterOptions:  "sell_after_options",
	StepCompleted:         "completed",
}

func (s Step) String() string {
	if s >= 0 && int(s) < len(stepNames) {
		return stepNames[s]
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// MarshalText encodes the step by name.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a step name.
func (s *Step) UnmarshalText(b []byte) error {
	for i, name := range stepNames {
		if name == string(b) {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("chatbot: unknown step %q", b)
}

// Answers are the fields collected so far.
type Answers struct {
	Choice    string `json:"choice,omitempty"`
	Timing    string `json:"timing,omitempty"`
	EventName string `json:"event_name,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Option    string `json:"option,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Conversation is one sender's dialogue state.
type Conversation struct {
	SenderID    string    `json:"sender_id"`
	Channel     string    `json:"channel"`
	DisplayName string    `json:"display_name,omitempty"`
	Step        Step      `json:"step"`
	Answers     Answers   `json:"answers"`
	TicketID    string    `json:"ticket_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key identifies a conversation across channels.
func (c Conversation) Key() string {
	return Key(c.Channel, c.SenderID)
}

// Key namespaces a sender id by channel, e.g. "whatsapp:966500000000".
func Key(channel, senderID string) string {
	return channel + ":" + senderID
}
