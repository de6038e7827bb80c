package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

func TestMuxRoutesByPrefix(t *testing.T) {
	m := NewMux()
	got := map[string]string{}
	record := func(name string) conversation.Sender {
		return conversation.SenderFunc(func(_ context.Context, id string, msg conversation.Outbound) error {
			got[name] = id + "|" + msg.Text
			return nil
		})
	}
	m.Register(domain.PlatformTelegram, record("tg"))
	m.Register(domain.PlatformWeb, record("web"))

	if err := m.Send(context.Background(), "tg:42", conversation.Text("hello")); err != nil {
		t.Fatalf("send tg: %v", err)
	}
	if err := m.Send(context.Background(), "web:abc", conversation.Text("hi")); err != nil {
		t.Fatalf("send web: %v", err)
	}
	if got["tg"] != "tg:42|hello" || got["web"] != "web:abc|hi" {
		t.Fatalf("routed = %v", got)
	}
	if len(m.Platforms()) != 2 {
		t.Fatalf("platforms = %v", m.Platforms())
	}
}

func TestMuxNoRoute(t *testing.T) {
	m := NewMux()
	m.Register(domain.PlatformTelegram, nil)
	err := m.Send(context.Background(), "api:1", conversation.Text("x"))
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
	if err := m.Send(context.Background(), "tg:1", conversation.Text("x")); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("nil sender registered: %v", err)
	}
}
