// Package keyboard lays out inline keyboards.
package keyboard

import tele "gopkg.in/telebot.v4"

// maxCallbackData is Telegram's limit on callback_data, in bytes.
const maxCallbackData = 64

// Button is one inline button. Unique selects the callback handler and Data
// travels back as its payload.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Fits reports whether the encoded callback data stays within Telegram's limit.
func (b Button) Fits() bool {
	// telebot encodes data as "\f<unique>|<data>".
	return 1+len(b.Unique)+1+len(b.Data) <= maxCallbackData
}

// Rows builds an inline keyboard with one row per slice. Buttons that would
// be rejected by Telegram and rows left empty are dropped; nil means there
// is nothing to show.
func Rows(rows ...[]Button) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	for _, row := range rows {
		var line []tele.InlineButton
		for _, b := range row {
			if b.Text == "" || !b.Fits() {
				continue
			}
			line = append(line, *markup.Data(b.Text, b.Unique, b.Data).Inline())
		}
		if len(line) > 0 {
			markup.InlineKeyboard = append(markup.InlineKeyboard, line)
		}
	}
	if len(markup.InlineKeyboard) == 0 {
		return nil
	}
	return markup
}
