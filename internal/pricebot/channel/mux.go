// Package channel connects input surfaces to the dialogue engine. Adapters
// live in subpackages; Mux picks the adapter that owns a conversation when a
// message has to be pushed outside the request that produced it.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// ErrNoRoute is returned when no adapter is registered for a conversation's platform.
var ErrNoRoute = errors.New("channel: no route")

// Handler is the part of the dialogue engine adapters talk to.
type Handler interface {
	Handle(ctx context.Context, in conversation.Inbound) conversation.Outbound
	HandleAction(ctx context.Context, conversationID, token string) conversation.Outbound
}

// Mux routes outbound messages by the platform prefix of the conversation id.
type Mux struct {
	mu     sync.RWMutex
	routes map[domain.Platform]conversation.Sender
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{routes: make(map[domain.Platform]conversation.Sender)}
}

// Register binds s to platform, replacing any earlier adapter.
func (m *Mux) Register(platform domain.Platform, s conversation.Sender) {
	if s == nil {
		return
	}
	m.mu.Lock()
	m.routes[platform] = s
	m.mu.Unlock()
}

// Platforms lists the platforms that currently have an adapter, sorted.
func (m *Mux) Platforms() []domain.Platform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Platform, 0, len(m.routes))
	for p := range m.routes {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Send implements conversation.Sender.
func (m *Mux) Send(ctx context.Context, conversationID string, msg conversation.Outbound) error {
	platform := conversation.PlatformOf(conversationID)
	m.mu.RLock()
	s, ok := m.routes[platform]
	m.mu.RUnlock()
	if !ok {
		logger.Warn(ctx, "channel", "send.no_route",
			slog.String("conversation_id", conversationID),
			slog.String("platform", string(platform)),
		)
		return fmt.Errorf("%w: %s", ErrNoRoute, conversationID)
	}
	return s.Send(ctx, conversationID, msg)
}
