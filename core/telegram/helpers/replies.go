package helpers

import (
	tele "gopkg.in/telebot.v4"
)

const repliesKey = "reply_stats"

// ReplyStats counts what a handler queued for the current update.
type ReplyStats struct {
	Replies int
	// Buttons is the number of inline buttons offered across all replies.
	Buttons int
}

// Replies returns the stats recorded for c so far.
func Replies(c tele.Context) ReplyStats {
	if c == nil {
		return ReplyStats{}
	}
	if st, ok := c.Get(repliesKey).(*ReplyStats); ok && st != nil {
		return *st
	}
	return ReplyStats{}
}

// noteReply is called when a reply is queued, not when the dispatcher
// delivers it, so handler summaries see it.
func noteReply(c tele.Context, markup *tele.ReplyMarkup) {
	if c == nil {
		return
	}
	st, _ := c.Get(repliesKey).(*ReplyStats)
	if st == nil {
		st = &ReplyStats{}
		c.Set(repliesKey, st)
	}
	st.Replies++
	if markup != nil {
		for _, row := range markup.InlineKeyboard {
			st.Buttons += len(row)
		}
	}
}
