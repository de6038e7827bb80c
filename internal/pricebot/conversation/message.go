package conversation

import (
	"context"
	"strings"

	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// Inbound is a normalized user message.
type Inbound struct {
	ConversationID string
	Text           string
	Platform       domain.Platform
	DisplayName    string
}

// Action is a quick-action button. Token has the shape <action>_<param...>.
type Action struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// Outbound is a markdown-flavoured reply with optional rows of actions.
type Outbound struct {
	Text    string     `json:"text"`
	Actions [][]Action `json:"actions,omitempty"`
}

// Text builds an Outbound without actions.
func Text(s string) Outbound { return Outbound{Text: s} }

// WithActions builds an Outbound carrying action rows.
func WithActions(s string, rows ...[]Action) Outbound {
	return Outbound{Text: s, Actions: rows}
}

// Join concatenates the texts of msgs; actions of the last message win.
func Join(msgs ...Outbound) Outbound {
	var (
		parts []string
		out   Outbound
	)
	for _, m := range msgs {
		if m.Text != "" {
			parts = append(parts, m.Text)
		}
		if len(m.Actions) > 0 {
			out.Actions = m.Actions
		}
	}
	out.Text = strings.Join(parts, "\n\n")
	return out
}

// Sender delivers a message to a conversation on its own channel.
type Sender interface {
	Send(ctx context.Context, conversationID string, msg Outbound) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, conversationID string, msg Outbound) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, conversationID string, msg Outbound) error {
	return f(ctx, conversationID, msg)
}
