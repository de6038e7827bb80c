package middleware

import (
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pricebot/core/logger"
	tghelpers "github.com/m3rciful/pricebot/core/telegram/helpers"
)

// PanicReply is sent to the chat when a handler panics.
const PanicReply = "Sorry, I encountered an error, please try again"

// RecoverMiddleware catches panics in handlers, logs the stack and answers the
// chat with a plain apology instead of leaving the user without a reply.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				ctx := tghelpers.BuildContext(c)
				logger.Error(ctx, "tg", "tg.panic",
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				if c.Chat() != nil {
					_ = c.Send(PanicReply)
				}
				err = nil
			}
		}()
		return next(c)
	}
}
