package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/core/telegram/sender"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

// enqueue hands j to disp, or runs it inline when there is no dispatcher
// or its queue is full or closed.
func enqueue(ctx context.Context, disp *sender.Dispatcher, j sender.Job) error {
	if disp == nil {
		return j.Run()
	}
	err := disp.Enqueue(ctx, j)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", j.Action),
			slog.Int64("chat_id", j.ChatID),
			slog.String("err", err.Error()),
		)
		return j.Run()
	}
	return err
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var (
		sendOpts *tele.SendOptions
		markup   *tele.ReplyMarkup
	)
	if len(opts) > 0 && opts[0] != nil {
		sendOpts = opts[0]
		markup = sendOpts.ReplyMarkup
	}
	noteReply(c, markup)
	return enqueue(BuildContext(c), currentDispatcher(), sender.Job{
		Action: "send.text",
		ChatID: ChatIDFrom(c),
		Run: func() error {
			if sendOpts != nil {
				return c.Send(text, sendOpts)
			}
			return c.Send(text)
		},
	})
}

// SendMD sends a message with Markdown parse mode and optional reply markup.
func SendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: rm}
	return SendText(c, text, opts)
}

// SendToChat pushes a Markdown message to a chat outside the current update,
// e.g. a rate request to a vendor. It goes through disp when one is given.
func SendToChat(ctx context.Context, api tele.API, disp *sender.Dispatcher, chatID int64, text string, markup *tele.ReplyMarkup) error {
	if api == nil {
		return errors.New("telegram helpers: bot not bound")
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup}
	return enqueue(ctx, disp, sender.Job{
		Action: "send.push",
		ChatID: chatID,
		Run: func() error {
			_, err := api.Send(tele.ChatID(chatID), text, opts)
			return err
		},
	})
}
