package router

import (
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/pricebot/core/telegram"
	"github.com/m3rciful/pricebot/core/telegram/middleware"
)

// MediaEndpoints are the non-text message kinds routed to the registry's
// document fallback.
var MediaEndpoints = []string{tele.OnDocument, tele.OnPhoto, tele.OnVoice, tele.OnVideo, tele.OnSticker}

// TextOptions controls what happens when the registry has no fallback.
type TextOptions struct {
	UnknownText  tele.HandlerFunc
	UnknownMedia tele.HandlerFunc
}

// TextRoutes builds handlers for free text and media. Text naming a
// registered command or alias runs that command, so "start" and "/start"
// behave alike; admin-only commands are left out. Other text goes to the registry's text fallback, which is
// where conversational flows plug in.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	text := func(c tele.Context) error {
		// Admin commands are only reachable through their command route.
		if key, cmd, ok := reg.LookupCommand(c.Text()); ok && !cmd.AdminOnly {
			return newSummary(key).run(c, func() error { return cmd.Handler(c) })
		}
		return dispatch(c, "text", reg.TextFallback(), opts.UnknownText)
	}
	media := func(c tele.Context) error {
		return dispatch(c, "media", reg.DocumentFallback(), opts.UnknownMedia)
	}

	wrap := func(h tele.HandlerFunc) tele.HandlerFunc {
		return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
	}
	routes := []tg.Route{{Endpoint: tele.OnText, Handler: wrap(text)}}
	for _, ep := range MediaEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: wrap(media)})
	}
	return routes
}

func dispatch(c tele.Context, name string, handlers ...tele.HandlerFunc) error {
	sum := newSummary(name)
	for _, h := range handlers {
		if h != nil {
			return sum.run(c, func() error { return h(c) })
		}
	}
	sum.skip(c)
	return nil
}
