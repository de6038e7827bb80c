package router

import (
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/pricebot/core/telegram"
)

type fakeContext struct {
	tele.Context
	text      string
	cb        *tele.Callback
	userID    int64
	store     map[string]any
	responded int
}

func newFakeContext(text string) *fakeContext {
	return &fakeContext{text: text, userID: 1, store: map[string]any{}}
}

func (f *fakeContext) Update() tele.Update      { return tele.Update{ID: 3} }
func (f *fakeContext) Sender() *tele.User       { return &tele.User{ID: f.userID} }
func (f *fakeContext) Chat() *tele.Chat         { return &tele.Chat{ID: f.userID} }
func (f *fakeContext) Text() string             { return f.text }
func (f *fakeContext) Callback() *tele.Callback { return f.cb }
func (f *fakeContext) Get(key string) any       { return f.store[key] }
func (f *fakeContext) Set(key string, v any)    { f.store[key] = v }
func (f *fakeContext) Respond(...*tele.CallbackResponse) error {
	f.responded++
	return nil
}

type calls map[string]int

func (c calls) handler(name string) tele.HandlerFunc {
	return func(tele.Context) error { c[name]++; return nil }
}

func route(routes []tg.Route, endpoint string) tele.HandlerFunc {
	for _, r := range routes {
		if r.Endpoint == endpoint {
			return r.Handler
		}
	}
	return nil
}

func TestTextRoutesResolveCommandsAndFallbacks(t *testing.T) {
	got := calls{}
	reg := tg.NewRegistry()
	reg.RegisterCommand("/start", tg.Command{Handler: got.handler("start"), Description: "Start", Aliases: []string{"restart"}})
	reg.RegisterCommand("/status", tg.Command{Handler: got.handler("status"), Description: "Status", AdminOnly: true})
	reg.SetTextFallback(got.handler("text"))
	reg.SetDocumentFallback(got.handler("media"))

	routes := TextRoutes(reg, TextOptions{})
	text := route(routes, tele.OnText)
	for _, in := range []string{"restart", "start", "status", "50 bags"} {
		if err := text(newFakeContext(in)); err != nil {
			t.Fatalf("text %q: %v", in, err)
		}
	}
	if got["start"] != 2 || got["text"] != 2 || got["status"] != 0 {
		t.Fatalf("calls = %v", got)
	}

	if err := route(routes, tele.OnPhoto)(newFakeContext("")); err != nil {
		t.Fatalf("photo: %v", err)
	}
	if got["media"] != 1 || len(routes) != 1+len(MediaEndpoints) {
		t.Fatalf("calls = %v, routes = %d", got, len(routes))
	}
}

func TestTextRoutesWithoutFallbackSkip(t *testing.T) {
	routes := TextRoutes(tg.NewRegistry(), TextOptions{})
	if err := route(routes, tele.OnText)(newFakeContext("hello")); err != nil {
		t.Fatalf("skip: %v", err)
	}
}

func TestCallbackRouteDispatchesByKey(t *testing.T) {
	got := calls{}
	reg := tg.NewRegistry()
	if err := reg.RegisterCallback("act", got.handler("act")); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.SetCallbackNotFound(got.handler("expired"))
	h := CallbackRoute(reg, CallbackOptions{}).Handler

	c := newFakeContext("")
	c.cb = &tele.Callback{Data: "\fact|say_1"}
	if err := h(c); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if got["act"] != 1 || c.responded != 1 {
		t.Fatalf("calls = %v, responded = %d", got, c.responded)
	}

	stale := newFakeContext("")
	stale.cb = &tele.Callback{Data: "\fold|x"}
	_ = h(stale)
	if got["expired"] != 1 || stale.responded != 0 {
		t.Fatalf("calls = %v, responded = %d", got, stale.responded)
	}
}

func TestCommandRoutesGateAdminCommands(t *testing.T) {
	got := calls{}
	reg := tg.NewRegistry()
	reg.RegisterCommand("/help", tg.Command{Handler: got.handler("help"), Description: "Help"})
	reg.RegisterCommand("/status", tg.Command{Handler: got.handler("status"), Description: "Status", AdminOnly: true})
	routes := CommandRoutes(reg, CommandRouteOptions{AdminID: 7})
	if len(routes) != 2 {
		t.Fatalf("routes = %d", len(routes))
	}

	_ = route(routes, "/help")(newFakeContext("/help"))
	_ = route(routes, "/status")(newFakeContext("/status"))
	admin := newFakeContext("/status")
	admin.userID = 7
	_ = route(routes, "/status")(admin)
	if got["help"] != 1 || got["status"] != 1 {
		t.Fatalf("calls = %v", got)
	}
}

type codedErr struct{}

func (codedErr) Error() string { return "vendor offline" }
func (codedErr) Code() string  { return "vendor offline" }

type plainErr struct{}

func (*plainErr) Error() string { return "x" }

func TestErrorCode(t *testing.T) {
	if got := errorCode(codedErr{}); got != "VENDOR_OFFLINE" {
		t.Fatalf("coded = %q", got)
	}
	if got := errorCode(&plainErr{}); got != "PLAINERR" {
		t.Fatalf("typed = %q", got)
	}
	if got := errorCode(errors.New("x")); got != "ERRORSTRING" {
		t.Fatalf("errors.New = %q", got)
	}
	if handlerName(" /Start ") != "start" || handlerName("") != "unknown" {
		t.Fatal("handlerName")
	}
}
