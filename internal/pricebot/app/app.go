// Package app assembles pricebot from its configuration and owns the
// lifecycle of everything that runs beside the Telegram runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/m3rciful/pricebot/core/bootstrap"
	corecmd "github.com/m3rciful/pricebot/core/cmd"
	"github.com/m3rciful/pricebot/core/logger"
	coretelegram "github.com/m3rciful/pricebot/core/telegram"
	"github.com/m3rciful/pricebot/core/telegram/router"
	tgsender "github.com/m3rciful/pricebot/core/telegram/sender"
	"github.com/m3rciful/pricebot/internal/pricebot/channel"
	"github.com/m3rciful/pricebot/internal/pricebot/channel/api"
	tgchannel "github.com/m3rciful/pricebot/internal/pricebot/channel/telegram"
	"github.com/m3rciful/pricebot/internal/pricebot/channel/web"
	"github.com/m3rciful/pricebot/internal/pricebot/config"
	"github.com/m3rciful/pricebot/internal/pricebot/dialogue"
	"github.com/m3rciful/pricebot/internal/pricebot/domain"
	"github.com/m3rciful/pricebot/internal/pricebot/extraction"
	"github.com/m3rciful/pricebot/internal/pricebot/fanout"
	"github.com/m3rciful/pricebot/internal/pricebot/quotes"
	"github.com/m3rciful/pricebot/internal/pricebot/storage"
)

// App is the assembled bot.
type App struct {
	cfg      *config.Config
	repo     storage.Repository
	mux      *channel.Mux
	timers   *fanout.Timers
	engine   *dialogue.Engine
	telegram *tgchannel.Adapter
	web      *web.Server
	api      *api.Server
	sweeper  *cron.Cron
	started  time.Time

	closers []func() error

	httpMu     sync.Mutex
	httpCancel context.CancelFunc
	httpDone   chan error
}

// Status is the runtime report behind /status and GET /api/bot/status.
type Status struct {
	Uptime      string            `json:"uptime"`
	Storage     string            `json:"storage"`
	Extraction  string            `json:"extraction"`
	BotActive   bool              `json:"bot_active"`
	Dialogue    dialogue.Stats    `json:"dialogue"`
	ArmedTimers int               `json:"armed_timers"`
	WebOnline   int               `json:"web_online"`
	Platforms   []domain.Platform `json:"platforms"`
	// Telegram counts pushes through the bot's send queue; zero before the bot starts.
	Telegram tgsender.Stats `json:"telegram"`
}

// Bootstrap is the core/cmd hook: it initializes logging and the database,
// then assembles the App.
func Bootstrap(carrier corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
	cfg, ok := carrier.(*config.Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	res, err := bootstrap.Run(bootstrap.Options{
		Config:       cfg.CoreConfig(),
		Database:     cfg.Database,
		SkipDatabase: cfg.Storage.Driver == config.StorageMemory,
		Seeders: []bootstrap.NamedSeeder{
			{Name: "bot_config", Seeder: bootstrap.SeederFunc(storage.SeedBotConfig)},
		},
	})
	if err != nil {
		return nil, err
	}
	a, err := New(context.Background(), cfg, res.DB)
	if err != nil {
		if res.DB != nil {
			_ = res.DB.Close()
		}
		return nil, err
	}
	return a, nil
}

// New wires every component. db may be nil for the memory storage driver.
func New(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{cfg: cfg, started: time.Now()}

	defaults := domain.BotConfig{
		MaxVendorsPerInquiry: cfg.Fanout.MaxVendorsPerInquiry,
		MessagesPerMinute:    cfg.Fanout.MessagesPerMinute,
		BotActive:            true,
	}.Normalized()

	if db != nil {
		a.repo = storage.NewPostgres(db)
		a.closers = append(a.closers, db.Close)
	} else {
		mem := storage.NewMemory()
		mem.SetBotConfig(defaults)
		a.repo = mem
	}

	gateway, err := a.buildGateway(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	standingStore, err := a.buildStandingStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.mux = channel.NewMux()
	a.timers = fanout.NewTimers()
	a.closers = append(a.closers, func() error { a.timers.Close(); return nil })

	coord := fanout.NewCoordinator(a.repo, standingStore, a.mux, a.timers, fanout.Options{
		FallbackDelay: cfg.Fanout.FallbackDelay,
		Defaults:      defaults,
	})
	intake := quotes.NewIntake(a.repo, a.timers, a.mux)
	a.engine = dialogue.New(dialogue.Deps{
		Repo:     a.repo,
		Gateway:  gateway,
		Fanout:   coord,
		Intake:   intake,
		Wizard:   quotes.NewWizard(a.repo, intake),
		Standing: quotes.NewStanding(standingStore),
	})

	a.telegram = tgchannel.New(a.engine, a.statusText)
	a.mux.Register(domain.PlatformTelegram, a.telegram)

	if cfg.HTTP.Listen != "" {
		a.web = web.New(a.engine, cfg.HTTP.AllowedOrigins)
		a.api = api.New(api.Options{
			Handler:           a.engine,
			Status:            func(ctx context.Context) any { return a.Status(ctx) },
			RequestsPerMinute: cfg.HTTP.RequestsPerMinute,
			Burst:             cfg.HTTP.Burst,
		})
		a.mux.Register(domain.PlatformWeb, a.web)
		a.mux.Register(domain.PlatformAPI, a.api)
	}

	if cfg.Sessions.IdleTTL > 0 {
		a.sweeper = cron.New()
		if _, err := a.sweeper.AddFunc(cfg.Sessions.SweepSchedule, a.Sweep); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: sweep schedule: %w", err)
		}
	}

	logger.Info(ctx, "app", "wired",
		slog.String("storage", cfg.Storage.Driver),
		slog.String("extraction", cfg.Extraction.Provider),
		slog.Bool("redis", cfg.Redis.Addr != ""),
		slog.Bool("http", cfg.HTTP.Listen != ""),
	)
	return a, nil
}

func (a *App) buildGateway(ctx context.Context) (extraction.Gateway, error) {
	ec := a.cfg.Extraction
	if ec.Provider != config.ProviderGemini {
		return extraction.Keyword{}, nil
	}
	g, err := extraction.NewGemini(ctx, ec.APIKey, ec.Model)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.closers = append(a.closers, g.Close)
	return extraction.NewLLMGateway(g, extraction.Options{
		Timeout:      ec.Timeout,
		MaxRetries:   ec.MaxRetries,
		RetryBackoff: ec.RetryBackoff,
	}), nil
}

func (a *App) buildStandingStore(ctx context.Context) (quotes.StandingStore, error) {
	rc := a.cfg.Redis
	if rc.Addr == "" {
		return quotes.NewMemoryStandingStore(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("app: redis ping %s: %w", rc.Addr, err)
	}
	store := quotes.NewRedisStandingStore(client, quotes.WithKeyPrefix(rc.KeyPrefix), quotes.WithRedisTTL(rc.TTL))
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// TelegramRunOptions implements core/cmd.TelegramApp.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()
	reg := coretelegram.NewRegistry()
	if err := a.telegram.Register(reg); err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("app: telegram wiring: %w", err)
	}

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: core.Telegram.AdminID})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{})...)

	return coretelegram.RunOptions{
		Config:      core,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(core, nil),
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt coretelegram.Runtime) error {
	a.telegram.Bind(rt.Bot, rt.Dispatcher)
	if a.sweeper != nil {
		a.sweeper.Start()
	}
	if a.cfg.HTTP.Listen != "" {
		a.startHTTP(ctx)
	}
	return nil
}

func (a *App) onStop(ctx context.Context, _ coretelegram.Runtime) error {
	if a.sweeper != nil {
		<-a.sweeper.Stop().Done()
	}
	httpErr := a.stopHTTP()
	a.telegram.Bind(nil, nil)
	closeErr := a.Close()
	if httpErr != nil {
		logger.Error(ctx, "http", "shutdown.failed", slog.String("err", httpErr.Error()))
	}
	return closeErr
}

// HTTPHandler returns the router serving the web chat and the API, or nil
// when HTTP is disabled.
func (a *App) HTTPHandler() http.Handler {
	if a.api == nil {
		return nil
	}
	r := api.NewRouter(api.RouterOptions{AllowedOrigins: a.cfg.HTTP.AllowedOrigins, Mode: gin.ReleaseMode})
	a.api.Register(r)
	a.web.Register(r)
	return r
}

func (a *App) startHTTP(ctx context.Context) {
	a.httpMu.Lock()
	defer a.httpMu.Unlock()
	if a.httpCancel != nil {
		return
	}
	httpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan error, 1)
	h := a.HTTPHandler()
	go func() {
		err := api.ListenAndServe(httpCtx, a.cfg.HTTP.Listen, h)
		if err != nil {
			logger.Error(httpCtx, "http", "serve.failed", slog.String("err", err.Error()))
		}
		done <- err
	}()
	a.httpCancel, a.httpDone = cancel, done
}

func (a *App) stopHTTP() error {
	a.httpMu.Lock()
	cancel, done := a.httpCancel, a.httpDone
	a.httpCancel, a.httpDone = nil, nil
	a.httpMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return <-done
}

// Sweep evicts idle dialogue, wizard, draft and API state.
func (a *App) Sweep() {
	ttl := a.cfg.Sessions.IdleTTL
	if ttl <= 0 {
		return
	}
	n := a.engine.EvictIdle(ttl)
	if a.api != nil {
		n += a.api.EvictIdle(ttl)
	}
	if n > 0 {
		logger.Info(logger.Background(), "app", "sweep.evicted",
			slog.Int("count", n),
			slog.Duration("idle_ttl", ttl),
		)
	}
}

// Status reports runtime counters.
func (a *App) Status(ctx context.Context) Status {
	st := Status{
		Uptime:      time.Since(a.started).Round(time.Second).String(),
		Storage:     a.cfg.Storage.Driver,
		Extraction:  a.cfg.Extraction.Provider,
		Dialogue:    a.engine.Stats(),
		ArmedTimers: a.timers.Len(),
		Platforms:   a.mux.Platforms(),
		BotActive:   true,
	}
	if bc, err := a.repo.BotConfig(ctx); err == nil {
		st.BotActive = bc.BotActive
	}
	if a.web != nil {
		st.WebOnline = a.web.Online()
	}
	st.Telegram = a.telegram.Outbound()
	return st
}

func (a *App) statusText(ctx context.Context) string {
	st := a.Status(ctx)
	var b strings.Builder
	b.WriteString("📊 *PriceBot status*\n\n")
	fmt.Fprintf(&b, "Uptime: %s\n", st.Uptime)
	fmt.Fprintf(&b, "Storage: %s, extraction: %s\n", st.Storage, st.Extraction)
	fmt.Fprintf(&b, "Bot active: %t\n", st.BotActive)
	fmt.Fprintf(&b, "Sessions: %d (busy %d)\n", st.Dialogue.Sessions, st.Dialogue.Busy)
	fmt.Fprintf(&b, "Quote wizards: %d, rate drafts: %d\n", st.Dialogue.Wizards, st.Dialogue.StandingDrafts)
	fmt.Fprintf(&b, "Armed fallback timers: %d\n", st.ArmedTimers)
	fmt.Fprintf(&b, "Telegram sends: %d ok, %d failed, %d queued\n", st.Telegram.Sent, st.Telegram.Failed, st.Telegram.Pending)
	if a.web != nil {
		fmt.Fprintf(&b, "Web guests online: %d\n", st.WebOnline)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Close releases timers, clients and the database in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
