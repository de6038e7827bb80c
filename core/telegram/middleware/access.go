package middleware

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pricebot/core/logger"
	tghelpers "github.com/m3rciful/pricebot/core/telegram/helpers"
)

// AdminOptions configures AdminOnlyMiddleware. An unset AdminID grants
// nobody access.
type AdminOptions struct {
	AdminID int64
	// OnReject answers non-admins; nil drops the update silently.
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware lets only the configured admin reach next.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if IsAdmin(opts, c.Sender()) {
				return next(c)
			}
			var userID int64
			if u := c.Sender(); u != nil {
				userID = u.ID
			}
			logger.Info(tghelpers.BuildContext(c), "tg", "tg.admin_denied",
				slog.Int64("user_id", userID),
				slog.String("payload", logger.SanitizeLimit(c.Text(), 64)),
			)
			if opts.OnReject == nil {
				return nil
			}
			return opts.OnReject(c)
		}
	}
}

// IsAdmin reports whether u is the configured admin.
func IsAdmin(opts AdminOptions, u *tele.User) bool {
	return u != nil && opts.AdminID != 0 && u.ID == opts.AdminID
}
