// Package web is the browser chat channel: one websocket per guest session.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/core/state"
	"github.com/m3rciful/pricebot/internal/pricebot/channel"
	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

// ErrOffline is returned when a guest has no open socket.
var ErrOffline = errors.New("web: guest offline")

const writeTimeout = 10 * time.Second

// Frame is the JSON envelope exchanged over the socket.
// Inbound types: "message" (Text) and "action" (Token).
// Outbound types: "session" (SessionID), "reply" and "push" (Text, Actions).
type Frame struct {
	Type      string                  `json:"type"`
	SessionID string                  `json:"sessionId,omitempty"`
	Text      string                  `json:"text,omitempty"`
	Token     string                  `json:"token,omitempty"`
	Actions   [][]conversation.Action `json:"actions,omitempty"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(f)
}

// Server upgrades /ws requests and relays frames to the dialogue engine.
type Server struct {
	handler  channel.Handler
	upgrader websocket.Upgrader
	clients  *state.Store[*client]
}

// New returns a Server. An empty origins list, or "*", accepts any origin.
func New(h channel.Handler, origins []string) *Server {
	s := &Server{handler: h, clients: state.New[*client]()}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(origins),
	}
	return s
}

// Register mounts GET /ws on r.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/ws", func(c *gin.Context) { s.ServeHTTP(c.Writer, c.Request) })
}

// Online reports how many guests have an open socket.
func (s *Server) Online() int { return s.clients.Len() }

// Send implements conversation.Sender for web: conversations.
func (s *Server) Send(_ context.Context, conversationID string, msg conversation.Outbound) error {
	if conversation.PlatformOf(conversationID) != domain.PlatformWeb {
		return fmt.Errorf("web: not a web conversation: %q", conversationID)
	}
	cl, ok := s.clients.Get(conversationID)
	if !ok {
		return ErrOffline
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	return cl.write(Frame{Type: "push", Text: msg.Text, Actions: msg.Actions})
}

// ServeHTTP handles one guest connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("session")
	if _, err := uuid.Parse(sid); err != nil {
		sid = uuid.NewString()
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(r.Context(), "web", "ws.upgrade_failed", slog.String("err", err.Error()))
		return
	}
	conv := conversation.ID(domain.PlatformWeb, sid)
	ctx := logger.WithConversation(context.Background(), conv)
	cl := &client{conn: conn}

	var prev *client
	s.clients.Update(conv, func(cur *client, ok bool) (*client, bool) {
		if ok {
			prev = cur
		}
		return cl, true
	})
	if prev != nil {
		_ = prev.conn.Close()
	}
	defer func() {
		s.clients.DeleteIf(conv, func(c *client) bool { return c == cl })
		_ = conn.Close()
		logger.Debug(ctx, "web", "ws.closed")
	}()

	logger.Debug(ctx, "web", "ws.open")
	if err := cl.write(Frame{Type: "session", SessionID: sid}); err != nil {
		return
	}

	for {
		var in Frame
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn(ctx, "web", "ws.read_failed", slog.String("err", err.Error()))
			}
			return
		}
		var out conversation.Outbound
		switch in.Type {
		case "action":
			out = s.handler.HandleAction(ctx, conv, in.Token)
		case "message", "":
			out = s.handler.Handle(ctx, conversation.Inbound{
				ConversationID: conv,
				Text:           in.Text,
				Platform:       domain.PlatformWeb,
			})
		default:
			continue
		}
		if strings.TrimSpace(out.Text) == "" {
			continue
		}
		if err := cl.write(Frame{Type: "reply", Text: out.Text, Actions: out.Actions}); err != nil {
			logger.Warn(ctx, "web", "ws.write_failed", slog.String("err", err.Error()))
			return
		}
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, origin)
	}
}
