package helpers

import (
	"context"
	"testing"

	tele "gopkg.in/telebot.v4"
)

type fakeContext struct {
	tele.Context
	store map[string]any
	sent  []any
}

func newFakeContext() *fakeContext {
	return &fakeContext{store: map[string]any{}}
}

func (f *fakeContext) Update() tele.Update   { return tele.Update{ID: 1} }
func (f *fakeContext) Chat() *tele.Chat      { return &tele.Chat{ID: 42} }
func (f *fakeContext) Sender() *tele.User    { return &tele.User{ID: 42} }
func (f *fakeContext) Get(key string) any    { return f.store[key] }
func (f *fakeContext) Set(key string, v any) { f.store[key] = v }
func (f *fakeContext) Send(what any, _ ...any) error {
	f.sent = append(f.sent, what)
	return nil
}

type fakeAPI struct {
	tele.API
	to []string
}

func (f *fakeAPI) Send(to tele.Recipient, what any, _ ...any) (*tele.Message, error) {
	f.to = append(f.to, to.Recipient())
	return &tele.Message{}, nil
}

func TestSendCountsRepliesAndButtons(t *testing.T) {
	c := newFakeContext()
	markup := &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{{{Text: "a"}, {Text: "b"}}, {{Text: "c"}}}}

	if err := SendMD(c, "pick one", markup); err != nil {
		t.Fatalf("SendMD: %v", err)
	}
	if err := SendText(c, "plain"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	st := Replies(c)
	if st.Replies != 2 || st.Buttons != 3 || len(c.sent) != 2 {
		t.Fatalf("stats = %+v, sent = %v", st, c.sent)
	}
	if Replies(newFakeContext()) != (ReplyStats{}) {
		t.Fatal("fresh context should have no replies")
	}
}

func TestSendToChatRequiresAPI(t *testing.T) {
	if err := SendToChat(context.Background(), nil, nil, 1, "hi", nil); err == nil {
		t.Fatal("expected error without api")
	}
	api := &fakeAPI{}
	if err := SendToChat(context.Background(), api, nil, 77, "hi", nil); err != nil {
		t.Fatalf("SendToChat: %v", err)
	}
	if len(api.to) != 1 || api.to[0] != "77" {
		t.Fatalf("to = %v", api.to)
	}
}

func TestWithHandlerCachesContext(t *testing.T) {
	c := newFakeContext()
	ctx := WithHandler(c, "dialogue.text")
	got, ok := ContextFrom(c)
	if !ok || got != ctx {
		t.Fatal("context not stored")
	}
	if ChatIDFrom(c) != 42 || ChatIDFrom(nil) != 0 {
		t.Fatal("ChatIDFrom mismatch")
	}
}
