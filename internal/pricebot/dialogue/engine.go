// Package dialogue is the conversation state machine shared by every channel.
// Each inbound text or action runs under its conversation's lock, so one
// session is never mutated by two channels at once.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/core/state"
	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
	"github.com/m3rciful/pricebot/internal/pricebot/extraction"
	"github.com/m3rciful/pricebot/internal/pricebot/quotes"
)

// Repository is the persistence the engine needs for flow completion.
type Repository interface {
	RegisterVendor(ctx context.Context, v domain.Vendor) (domain.Vendor, error)
	FindVendorByChannel(ctx context.Context, channelIdentity string) (domain.Vendor, error)
	RecordSale(ctx context.Context, s domain.Sale) error
	AddNotification(ctx context.Context, n domain.Notification) error
}

// Dispatcher fans a confirmed buyer session out to vendors.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess domain.Session) (domain.Inquiry, error)
}

// Deps are the collaborators of an Engine. Gateway defaults to the keyword
// extractor.
type Deps struct {
	Repo     Repository
	Gateway  extraction.Gateway
	Fanout   Dispatcher
	Intake   *quotes.Intake
	Wizard   *quotes.Wizard
	Standing *quotes.Standing
}

// Stats is a snapshot of the in-memory state.
type Stats struct {
	Sessions       int `json:"sessions"`
	Wizards        int `json:"wizards"`
	StandingDrafts int `json:"standing_drafts"`
	Busy           int `json:"busy"`
}

// Engine runs the dialogue for every conversation.
type Engine struct {
	Deps
	sessions *state.Store[domain.Session]
	locks    *conversation.Locker
	now      func() time.Time
}

// New builds an Engine. opts configure the session store.
func New(d Deps, opts ...state.Option) *Engine {
	if d.Gateway == nil {
		d.Gateway = extraction.Keyword{}
	}
	return &Engine{
		Deps:     d,
		sessions: state.New[domain.Session](opts...),
		locks:    conversation.NewLocker(),
		now:      time.Now,
	}
}

// Session returns a copy of the session of conv.
func (e *Engine) Session(conv string) (domain.Session, bool) {
	s, ok := e.sessions.Get(conv)
	return s.Clone(), ok
}

// Stats reports the size of the in-memory state.
func (e *Engine) Stats() Stats {
	return Stats{
		Sessions:       e.sessions.Len(),
		Wizards:        e.Wizard.Len(),
		StandingDrafts: e.Standing.Drafts(),
		Busy:           e.locks.Len(),
	}
}

// EvictIdle drops sessions, wizard sessions and standing drafts idle for
// longer than maxIdle and returns how many were dropped. maxIdle <= 0 keeps
// everything.
func (e *Engine) EvictIdle(maxIdle time.Duration) int {
	return e.sessions.EvictIdle(maxIdle) + e.Wizard.EvictIdle(maxIdle) + e.Standing.EvictIdle(maxIdle)
}

// Handle processes one inbound text and returns the reply. A reply with empty
// text means nothing should be sent.
func (e *Engine) Handle(ctx context.Context, in conversation.Inbound) conversation.Outbound {
	unlock := e.locks.Lock(in.ConversationID)
	defer unlock()

	start := time.Now()
	ctx = logger.WithConversation(ctx, in.ConversationID)
	out := e.handleText(ctx, in.ConversationID, strings.TrimSpace(in.Text))
	logger.Debug(ctx, "dialogue", "dialogue.handled",
		slog.String("platform", string(in.Platform)),
		slog.Int("reply_len", len(out.Text)),
		slog.Duration("took", logger.Took(start)),
	)
	return out
}

// HandleAction processes a quick-action token pressed in conv.
func (e *Engine) HandleAction(ctx context.Context, conv, token string) conversation.Outbound {
	unlock := e.locks.Lock(conv)
	defer unlock()

	ctx = logger.WithConversation(ctx, conv)
	logger.Debug(ctx, "dialogue", "dialogue.action", slog.String("token", logger.SanitizeLimit(token, 64)))

	switch {
	case strings.HasPrefix(token, TokenSay):
		return e.handleText(ctx, conv, strings.TrimSpace(strings.TrimPrefix(token, TokenSay)))
	case strings.HasPrefix(token, quotes.TokenStandingConfirm):
		return e.confirmStanding(ctx, conv)
	case strings.HasPrefix(token, quotes.TokenStandingEdit):
		return e.Standing.Edit(ctx, conv)
	case quotes.IsWizardToken(token):
		return e.Wizard.HandleAction(ctx, conv, token)
	}
	logger.Warn(ctx, "dialogue", "dialogue.action.unknown", slog.String("token", logger.SanitizeLimit(token, 64)))
	return conversation.Text(msgStale)
}

func (e *Engine) handleText(ctx context.Context, conv, text string) conversation.Outbound {
	cmd := strings.ToLower(firstWord(text))
	switch cmd {
	case "/start", "/reset", "/restart":
		return e.reset(ctx, conv, welcomeText)
	case "/help":
		return conversation.Text(msgHelp)
	}

	if sub, ok := quotes.ParseStructured(text); ok {
		return e.submitStructured(ctx, conv, sub)
	}
	if e.Standing.HasDraft(conv) && strings.EqualFold(text, "confirm") {
		return e.confirmStanding(ctx, conv)
	}

	intent := e.Gateway.ClassifyIntent(ctx, text)
	if intent.Intent == extraction.IntentVendorRateUpdate && extraction.Accepted(intent.Confidence, extraction.IntentOverrideThreshold) {
		return e.proposeStanding(ctx, conv, text)
	}

	if e.Wizard.AwaitingCustom(conv) {
		return e.Wizard.HandleCustom(ctx, conv, text)
	}

	if cmd == "/sale" {
		return e.startSale(ctx, conv, strings.TrimSpace(strings.TrimPrefix(text, firstWord(text))), true)
	}
	if extraction.HasSaleKeyword(text) {
		return e.startSale(ctx, conv, text, false)
	}

	sess := e.load(ctx, conv)
	if next, applied := e.applyExtraction(ctx, sess, text, intent); applied {
		e.save(next)
		return prompt(next)
	}
	return e.step(ctx, sess, text)
}

// reset starts conv over at the user type question.
func (e *Engine) reset(ctx context.Context, conv, text string) conversation.Outbound {
	_, existed := e.sessions.Get(conv)
	sess := domain.NewSession(conv, e.now())
	sess.Step = domain.StepUserType
	e.save(sess)
	logger.Info(ctx, "dialogue", "dialogue.reset", slog.Bool("existed", existed))
	if !existed {
		e.notifyStarted(ctx, conv)
	}
	return conversation.WithActions(text, stepActions(domain.StepUserType)...)
}

// load returns the session of conv, creating it at StepStart when absent.
func (e *Engine) load(ctx context.Context, conv string) domain.Session {
	if s, ok := e.sessions.Get(conv); ok {
		return s.Clone()
	}
	e.notifyStarted(ctx, conv)
	return domain.NewSession(conv, e.now())
}

func (e *Engine) save(s domain.Session) {
	s.UpdatedAt = e.now()
	e.sessions.Set(s.ConversationID, s)
}

// finish deletes the session before a terminal side effect so a failure
// never leaves it stuck.
func (e *Engine) finish(conv string) { e.sessions.Delete(conv) }

func (e *Engine) submitStructured(ctx context.Context, conv string, sub quotes.Submission) conversation.Outbound {
	rec, err := e.Intake.Submit(ctx, conv, sub)
	switch {
	case errors.Is(err, quotes.ErrUnknownVendor), errors.Is(err, quotes.ErrUnknownInquiry):
		return conversation.Outbound{}
	case err != nil:
		logger.Error(ctx, "dialogue", "dialogue.quote.fail", slog.String("inquiry_id", sub.InquiryID), slog.String("err", err.Error()))
		return conversation.Text(msgFailure)
	}
	return quotes.ReceiptMessage(rec)
}

func (e *Engine) proposeStanding(ctx context.Context, conv, text string) conversation.Outbound {
	res := e.Gateway.ExtractStandardQuote(ctx, text)
	if !extraction.Accepted(res.Confidence, extraction.StandardQuoteThreshold) || res.Empty() {
		logger.Info(ctx, "dialogue", "dialogue.standing.unclear", slog.Float64("confidence", res.Confidence))
		return conversation.Text(quotes.StandingHint)
	}
	out, err := e.Standing.Propose(ctx, conv, res)
	if err != nil {
		logger.Error(ctx, "dialogue", "dialogue.standing.fail", slog.String("err", err.Error()))
		return conversation.Text(msgFailure)
	}
	return out
}

func (e *Engine) confirmStanding(ctx context.Context, conv string) conversation.Outbound {
	out, err := e.Standing.Confirm(ctx, conv)
	if err != nil {
		logger.Error(ctx, "dialogue", "dialogue.standing.fail", slog.String("err", err.Error()))
		return conversation.Text(msgFailure)
	}
	return out
}

func (e *Engine) notifyStarted(ctx context.Context, conv string) {
	platform := conversation.PlatformOf(conv)
	e.notify(ctx, domain.NotifyConversationStarted, fmt.Sprintf("💬 New conversation started on %s", platform))
}

func (e *Engine) notify(ctx context.Context, typ domain.NotificationType, msg string) {
	n := domain.Notification{Message: msg, Type: typ, CreatedAt: e.now()}
	if err := e.Repo.AddNotification(ctx, n); err != nil {
		logger.Warn(ctx, "dialogue", "notification.fail", slog.String("type", string(typ)), slog.String("err", err.Error()))
	}
}

func firstWord(text string) string {
	if i := strings.IndexAny(text, " \n\t"); i >= 0 {
		return text[:i]
	}
	return text
}

func isGreeting(text string) bool {
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		switch w {
		case "hi", "hello", "hey", "start", "namaste":
			return true
		}
	}
	return false
}
