// Package telegram adapts the chat bot runtime in core/telegram to the
// dialogue engine: commands, inline buttons and free text all end up in the
// same Handler, and pushes to other chats go through the shared sender.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pricebot/core/logger"
	tg "github.com/m3rciful/pricebot/core/telegram"
	"github.com/m3rciful/pricebot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/pricebot/core/telegram/helpers"
	"github.com/m3rciful/pricebot/core/telegram/keyboard"
	tgsender "github.com/m3rciful/pricebot/core/telegram/sender"
	"github.com/m3rciful/pricebot/internal/pricebot/channel"
	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// ActionUnique is the callback key shared by every quick-action button; the
// action token travels as the callback payload.
const ActionUnique = "act"

// ErrNotBound is returned by Send before the bot runtime has started.
var ErrNotBound = errors.New("telegram: adapter not bound")

// StatusFunc renders the admin /status report.
type StatusFunc func(ctx context.Context) string

type binding struct {
	api  tele.API
	disp *tgsender.Dispatcher
}

// Adapter is the Telegram channel.
type Adapter struct {
	handler channel.Handler
	status  StatusFunc
	bound   atomic.Pointer[binding]
}

// New returns an Adapter feeding h. status may be nil.
func New(h channel.Handler, status StatusFunc) *Adapter {
	return &Adapter{handler: h, status: status}
}

// Register wires commands, the quick-action callback and the text fallback.
func (a *Adapter) Register(reg *tg.Registry) error {
	reg.RegisterCommand("/start", tg.Command{
		Handler:     a.onText,
		Description: "Start a new price inquiry",
		Aliases:     []string{"/restart", "/reset"},
	})
	reg.RegisterCommand("/help", tg.Command{
		Handler:     a.onText,
		Description: "How to use the bot",
	})
	reg.RegisterCommand("/sale", tg.Command{
		Handler:     a.onText,
		Description: "Record a completed sale",
	})
	reg.RegisterCommand("/status", tg.Command{
		Handler:     a.onStatus,
		Description: "Bot status",
		AdminOnly:   true,
	})
	reg.SetTextFallback(a.onText)
	reg.SetDocumentFallback(a.onMedia)
	return reg.RegisterCallback(ActionUnique, a.onAction)
}

// Bind attaches the live bot client. Call it from the runtime's OnStart hook.
func (a *Adapter) Bind(api tele.API, disp *tgsender.Dispatcher) {
	if api == nil {
		a.bound.Store(nil)
		return
	}
	a.bound.Store(&binding{api: api, disp: disp})
}

// Outbound reports the send queue counters of the bound runtime.
func (a *Adapter) Outbound() tgsender.Stats {
	if b := a.bound.Load(); b != nil && b.disp != nil {
		return b.disp.Stats()
	}
	return tgsender.Stats{}
}

// Send implements conversation.Sender for tg: conversations.
func (a *Adapter) Send(ctx context.Context, conversationID string, msg conversation.Outbound) error {
	chatID, err := ChatID(conversationID)
	if err != nil {
		return err
	}
	b := a.bound.Load()
	if b == nil {
		return ErrNotBound
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	if err := tghelpers.SendToChat(ctx, b.api, b.disp, chatID, msg.Text, Markup(msg.Actions)); err != nil {
		return fmt.Errorf("telegram: send %s: %w", conversationID, err)
	}
	return nil
}

// ConversationID returns the conversation id of a chat.
func ConversationID(chatID int64) string {
	return conversation.ID(domain.PlatformTelegram, strconv.FormatInt(chatID, 10))
}

// ChatID parses the chat id out of a tg: conversation id.
func ChatID(conversationID string) (int64, error) {
	p, raw, ok := conversation.Split(conversationID)
	if !ok || p != domain.PlatformTelegram {
		return 0, fmt.Errorf("telegram: not a telegram conversation: %q", conversationID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: bad chat id %q: %w", raw, err)
	}
	return id, nil
}

// Markup turns action rows into an inline keyboard; nil when there are none.
func Markup(rows [][]conversation.Action) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	btnRows := make([][]keyboard.Button, 0, len(rows))
	for _, row := range rows {
		btns := make([]keyboard.Button, 0, len(row))
		for _, act := range row {
			btns = append(btns, keyboard.Button{Text: act.Label, Unique: ActionUnique, Data: act.Token})
		}
		btnRows = append(btnRows, btns)
	}
	return keyboard.Rows(btnRows...)
}

func (a *Adapter) onText(c tele.Context) error {
	chatID := tghelpers.ChatIDFrom(c)
	if chatID == 0 {
		return nil
	}
	conv := ConversationID(chatID)
	ctx := logger.WithConversation(tghelpers.WithHandler(c, "dialogue.text"), conv)
	out := a.handler.Handle(ctx, conversation.Inbound{
		ConversationID: conv,
		Text:           c.Text(),
		Platform:       domain.PlatformTelegram,
		DisplayName:    displayName(c.Sender()),
	})
	return a.reply(ctx, c, out)
}

func (a *Adapter) onAction(c tele.Context) error {
	chatID := tghelpers.ChatIDFrom(c)
	if chatID == 0 {
		return nil
	}
	conv := ConversationID(chatID)
	ctx := logger.WithConversation(tghelpers.WithHandler(c, "dialogue.action"), conv)
	out := a.handler.HandleAction(ctx, conv, callbacks.CallbackPayload(c))
	return a.reply(ctx, c, out)
}

// MediaReply answers files and photos, which the engine cannot read.
const MediaReply = "I can only read text messages. Please type your request or price."

func (a *Adapter) onMedia(c tele.Context) error {
	return tghelpers.SendText(c, MediaReply)
}

func (a *Adapter) onStatus(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "status")
	text := "Bot is running."
	if a.status != nil {
		text = a.status(ctx)
	}
	return tghelpers.SendMD(c, text)
}

func (a *Adapter) reply(ctx context.Context, c tele.Context, out conversation.Outbound) error {
	if strings.TrimSpace(out.Text) == "" {
		return nil
	}
	if err := tghelpers.SendMD(c, out.Text, Markup(out.Actions)); err != nil {
		logger.Error(ctx, "tg", "reply.failed", slog.String("err", err.Error()))
		return err
	}
	return nil
}

func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}
