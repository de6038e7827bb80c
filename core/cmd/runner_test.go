package cmd

import (
	"context"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/pricebot/core/config"
	coretelegram "github.com/m3rciful/pricebot/core/telegram"
)

func TestResolveConfigPathPrecedence(t *testing.T) {
	t.Setenv("PRICEBOT_CONFIG", "/etc/pricebot/env.yaml")

	got, err := ResolveConfigPath(Options{ConfigPath: "flag.yaml", ConfigEnvVar: "PRICEBOT_CONFIG", DefaultConfigPath: "config.yaml"})
	if err != nil || got != "flag.yaml" {
		t.Fatalf("flag path = %q, %v", got, err)
	}

	got, err = ResolveConfigPath(Options{ConfigEnvVar: "PRICEBOT_CONFIG", DefaultConfigPath: "config.yaml"})
	if err != nil || got != "/etc/pricebot/env.yaml" {
		t.Fatalf("env path = %q, %v", got, err)
	}

	got, err = ResolveConfigPath(Options{ConfigEnvVar: "PRICEBOT_UNSET", DefaultConfigPath: "config.yaml"})
	if err != nil || got != "config.yaml" {
		t.Fatalf("default path = %q, %v", got, err)
	}

	if _, err := ResolveConfigPath(Options{ConfigEnvVar: "PRICEBOT_UNSET"}); err == nil {
		t.Fatal("expected error without any path")
	}
}

func TestRunRequiresLoaders(t *testing.T) {
	if err := Run(Options{}); err == nil {
		t.Fatal("expected error for missing LoadConfig")
	}
	if err := Run(Options{LoadConfig: func(string) (ConfigCarrier, error) { return nil, nil }}); err == nil {
		t.Fatal("expected error for missing Bootstrap")
	}
}

type stubConfig struct{ core *coreconfig.Config }

func (s stubConfig) CoreConfig() *coreconfig.Config { return s.core }

type stubApp struct{ opts coretelegram.RunOptions }

func (s stubApp) TelegramRunOptions() (coretelegram.RunOptions, error) { return s.opts, nil }

func TestRunWrapsLifecycleHooks(t *testing.T) {
	var order []string
	app := stubApp{opts: coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { order = append(order, "start"); return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { order = append(order, "stop"); return nil },
	}}
	var loadedFrom string
	err := Run(Options{
		ConfigPath: "pricebot.yaml",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loadedFrom = path
			return stubConfig{core: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { order = append(order, "flush"); return nil },
		Context:        context.Background(),
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if loadedFrom != "pricebot.yaml" {
		t.Fatalf("loaded %q", loadedFrom)
	}
	if got := strings.Join(order, ","); got != "start,stop,flush" {
		t.Fatalf("order = %s", got)
	}
}

func TestRunRejectsConfigWithoutCore(t *testing.T) {
	err := Run(Options{
		ConfigPath: "x.yaml",
		LoadConfig: func(string) (ConfigCarrier, error) { return stubConfig{}, nil },
		Bootstrap: func(ConfigCarrier) (TelegramApp, error) {
			t.Fatal("bootstrap must not run")
			return nil, nil
		},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}
