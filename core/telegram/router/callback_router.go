package router

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/pricebot/core/telegram"
	"github.com/m3rciful/pricebot/core/telegram/callbacks"
	"github.com/m3rciful/pricebot/core/telegram/middleware"
)

// CallbackOptions customises callback routing.
type CallbackOptions struct {
	// NotFound runs when neither the key nor the registry fallback has a handler.
	NotFound tele.HandlerFunc
}

// CallbackRoute dispatches inline button presses by their unique key. The
// spinner is cleared before the handler runs, since handlers answer with
// fresh messages rather than callback toasts.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		key, _ := callbacks.ParseCallbackData(cb)
		sum := newSummary("callback."+key, slog.String("cb_key", key))

		h, ok := reg.GetCallback(key)
		if !ok || h == nil {
			sum.extras = append(sum.extras, slog.String("reason", "not_found"))
			h = reg.CallbackNotFound()
			if h == nil {
				h = opts.NotFound
			}
			if h == nil {
				_ = c.Respond()
				sum.skip(c)
				return nil
			}
			// The fallback answers the callback itself, usually with a toast.
			return sum.run(c, func() error { return h(c) })
		}

		_ = c.Respond()
		return sum.run(c, func() error { return h(c) })
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
