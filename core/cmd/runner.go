// Package cmd holds the process lifecycle shared by the bot's entry points:
// resolve and load the config, bootstrap the app, serve Telegram until a
// signal arrives and flush the logs on the way out.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/pricebot/core/config"
	"github.com/m3rciful/pricebot/core/logger"
	coretelegram "github.com/m3rciful/pricebot/core/telegram"
)

const defaultConfigEnv = "CONFIG_PATH"

// ConfigCarrier is an application config that embeds the core one.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp is a bootstrapped application ready to serve Telegram.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options wires Run. LoadConfig and Bootstrap are required; the rest
// default to the real implementations and exist for tests.
type Options struct {
	// ConfigPath, usually from a flag, wins over ConfigEnvVar and DefaultConfigPath.
	ConfigPath        string
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	// Context replaces the signal-bound root context.
	Context context.Context
}

// Run executes the whole lifecycle and returns when the bot stops.
func Run(opts Options) error {
	switch {
	case opts.LoadConfig == nil:
		return errors.New("cmd: LoadConfig is required")
	case opts.Bootstrap == nil:
		return errors.New("cmd: Bootstrap is required")
	}

	path, err := ResolveConfigPath(opts)
	if err != nil {
		return err
	}
	// The logger is configured by Bootstrap; until then only the std logger is available.
	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}
	if cfg == nil || cfg.CoreConfig() == nil {
		return errors.New("cmd: loaded config is missing core configuration")
	}

	started := time.Now()
	app, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	shutdown := opts.ShutdownLogger
	if shutdown == nil {
		shutdown = logger.Shutdown
	}
	defer func() {
		if serr := shutdown(); serr != nil {
			log.Printf("logger shutdown: %v", serr)
		}
	}()

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	runOpts.OnStart = announceStart(runOpts.OnStart, started)
	runOpts.OnStop = announceStop(runOpts.OnStop)

	ctx := opts.Context
	if ctx == nil {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
	}
	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

type lifecycleHook = func(context.Context, coretelegram.Runtime) error

// announceStart logs "ready" once the app's own start hook succeeded.
func announceStart(next lifecycleHook, started time.Time) lifecycleHook {
	return func(ctx context.Context, rt coretelegram.Runtime) error {
		if next != nil {
			if err := next(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "ready", slog.Duration("startup", logger.Took(started)))
		return nil
	}
}

func announceStop(next lifecycleHook) lifecycleHook {
	return func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, "app", "shutdown")
		if next == nil {
			return nil
		}
		return next(ctx, rt)
	}
}

// ResolveConfigPath returns opts.ConfigPath, else the path in the config
// environment variable (CONFIG_PATH unless ConfigEnvVar says otherwise),
// else DefaultConfigPath.
func ResolveConfigPath(opts Options) (string, error) {
	env := opts.ConfigEnvVar
	if env == "" {
		env = defaultConfigEnv
	}
	for _, p := range []string{opts.ConfigPath, os.Getenv(env), opts.DefaultConfigPath} {
		if p != "" {
			return p, nil
		}
	}
	return "", fmt.Errorf("cmd: no config path in flag, %s or default", env)
}
