// Package api exposes the dialogue engine over plain HTTP and hosts the shared
// gin router the web chat mounts onto.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/m3rciful/pricebot/core/logger"
	"github.com/m3rciful/pricebot/core/state"
	"github.com/m3rciful/pricebot/internal/pricebot/channel"
	"github.com/m3rciful/pricebot/internal/pricebot/conversation"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
)

const (
	defaultRequestsPerMinute = 60
	defaultBurst             = 10
	// maxPending bounds the messages kept per session until history is polled.
	maxPending = 50
)

// StatusFunc reports runtime counters for GET /api/bot/status.
type StatusFunc func(ctx context.Context) any

// Options configures Server.
type Options struct {
	Handler           channel.Handler
	Status            StatusFunc
	RequestsPerMinute int
	Burst             int
}

// Server is the HTTP API channel. Replies to a request are returned inline;
// messages pushed later (relayed quotes, fallback broadcasts) wait in a
// per-session outbox until the client polls history.
type Server struct {
	handler  channel.Handler
	status   StatusFunc
	perMin   int
	burst    int
	outbox   *state.Store[[]conversation.Outbound]
	limiters *state.Store[*rate.Limiter]
}

// New builds a Server.
func New(opts Options, storeOpts ...state.Option) *Server {
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = defaultRequestsPerMinute
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	return &Server{
		handler:  opts.Handler,
		status:   opts.Status,
		perMin:   opts.RequestsPerMinute,
		burst:    opts.Burst,
		outbox:   state.New[[]conversation.Outbound](storeOpts...),
		limiters: state.New[*rate.Limiter](storeOpts...),
	}
}

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message" binding:"required"`
}

type actionRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Token     string `json:"token" binding:"required"`
}

type chatResponse struct {
	SessionID string                 `json:"sessionId"`
	Reply     *conversation.Outbound `json:"reply,omitempty"`
}

type historyResponse struct {
	SessionID string                  `json:"sessionId"`
	Messages  []conversation.Outbound `json:"messages"`
}

// Register mounts the API routes on r.
func (s *Server) Register(r gin.IRouter) {
	g := r.Group("/api")
	g.Use(s.rateLimit())
	g.POST("/chat", s.handleChat)
	g.POST("/chat/action", s.handleAction)
	g.GET("/chat/history/:sessionId", s.handleHistory)
	g.GET("/bot/status", s.handleStatus)
}

// Send implements conversation.Sender for api: conversations.
func (s *Server) Send(_ context.Context, conversationID string, msg conversation.Outbound) error {
	if conversation.PlatformOf(conversationID) != domain.PlatformAPI {
		return fmt.Errorf("api: not an api conversation: %q", conversationID)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	s.outbox.Update(conversationID, func(cur []conversation.Outbound, _ bool) ([]conversation.Outbound, bool) {
		cur = append(cur, msg)
		if len(cur) > maxPending {
			cur = cur[len(cur)-maxPending:]
		}
		return cur, true
	})
	return nil
}

// EvictIdle drops outboxes and per-client limiters untouched for maxIdle.
func (s *Server) EvictIdle(maxIdle time.Duration) int {
	return s.outbox.EvictIdle(maxIdle) + s.limiters.EvictIdle(maxIdle)
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	sid := strings.TrimSpace(req.SessionID)
	if sid == "" {
		sid = uuid.NewString()
	}
	conv := conversation.ID(domain.PlatformAPI, sid)
	ctx := logger.WithConversation(c.Request.Context(), conv)
	out := s.handler.Handle(ctx, conversation.Inbound{
		ConversationID: conv,
		Text:           req.Message,
		Platform:       domain.PlatformAPI,
	})
	c.JSON(http.StatusOK, chatResponse{SessionID: sid, Reply: replyOrNil(out)})
}

func (s *Server) handleAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and token are required"})
		return
	}
	conv := conversation.ID(domain.PlatformAPI, req.SessionID)
	ctx := logger.WithConversation(c.Request.Context(), conv)
	out := s.handler.HandleAction(ctx, conv, req.Token)
	c.JSON(http.StatusOK, chatResponse{SessionID: req.SessionID, Reply: replyOrNil(out)})
}

func (s *Server) handleHistory(c *gin.Context) {
	sid := c.Param("sessionId")
	msgs, _ := s.outbox.LoadAndDelete(conversation.ID(domain.PlatformAPI, sid))
	if msgs == nil {
		msgs = []conversation.Outbound{}
	}
	c.JSON(http.StatusOK, historyResponse{SessionID: sid, Messages: msgs})
}

func (s *Server) handleStatus(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.status != nil {
		body["stats"] = s.status(c.Request.Context())
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		var lim *rate.Limiter
		s.limiters.Update(ip, func(cur *rate.Limiter, ok bool) (*rate.Limiter, bool) {
			if !ok {
				cur = rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMin)), s.burst)
			}
			lim = cur
			return cur, true
		})
		if !lim.Allow() {
			logger.Warn(c.Request.Context(), "api", "http.rate_limited", slog.String("ip", ip))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Try again later."})
			return
		}
		c.Next()
	}
}

func replyOrNil(out conversation.Outbound) *conversation.Outbound {
	if strings.TrimSpace(out.Text) == "" {
		return nil
	}
	return &out
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	Mode           string
}

// NewRouter returns a gin engine with recovery, request logging and CORS.
func NewRouter(opts RouterOptions) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(opts.AllowedOrigins) == 0 || (len(opts.AllowedOrigins) == 1 && opts.AllowedOrigins[0] == "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = opts.AllowedOrigins
	}
	r.Use(cors.New(cc))
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.Debug(c.Request.Context(), "api", "http.request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", logger.Took(start)),
		)
	}
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down.
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.Info(ctx, "http", "listen", slog.String("addr", addr))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api: listen %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}
