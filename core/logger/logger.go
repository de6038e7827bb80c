// Package logger is the structured logging layer for every component of the
// bot. Calls take the component and event name first and the attributes
// after, and pick up request metadata (rid, update, conversation) from ctx:
//
//	logger.Info(ctx, "fanout", "fanout.sent", slog.Int("vendors", n))
//
// All helpers are safe to call before InitLogger; they drop the record.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/pricebot/core/buildinfo"
	coreconfig "github.com/m3rciful/pricebot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	out      *outputs

	levelVar     slog.LevelVar
	debugSampler = newSampler(defaultSampleEvery)

	// L is the root logger. Nil until InitLogger.
	L *slog.Logger
)

// settings is the logging section of the config after defaults.
type settings struct {
	level   slog.Level
	format  logFormat
	order   []string
	sample  int
	profile string

	dir        string
	botFile    string
	errorsFile string
}

func resolve(cfg *coreconfig.Config) settings {
	s := settings{
		level:   slog.LevelInfo,
		format:  formatJSON,
		order:   slices.Clone(defaultKeyOrder),
		sample:  defaultSampleEvery,
		profile: "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	s.profile = lowerOr(lc.Profile, "prod")
	s.level = parseLevel(lc.Level)
	s.format = parseFormat(lc.Format, s.profile)
	if order := splitKeys(lc.KeysOrder); len(order) > 0 {
		s.order = order
	}
	s.sample = parseSampleSpec(lc.DebugSample)
	if traceRequested() {
		s.sample = 1
	}
	s.dir = strings.TrimSpace(lc.Dir)
	s.botFile = strings.TrimSpace(lc.BotFile)
	s.errorsFile = strings.TrimSpace(lc.ErrorsFile)
	return s
}

// InitLogger installs the root logger and slog's default. Later calls are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	var err error
	initOnce.Do(func() {
		s := resolve(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.sample)

		var o *outputs
		o, err = openOutputs(s)
		if err != nil {
			return
		}
		out = o

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   o.main,
			errors:   o.errors,
			format:   s.format,
			keyOrder: s.order,
		}))
		slog.SetDefault(L)

		mode := ""
		if cfg != nil {
			mode = cfg.Telegram.RunMode
		}
		Info(context.Background(), "app", "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
			slog.String("mode", mode),
			slog.Int("debug_sample", s.sample),
		)
	})
	return err
}

// outputs are the sinks opened by InitLogger: stdout plus the optional
// bot file on main, and the optional errors file taking WARN and above.
type outputs struct {
	main   *asyncWriter
	errors *asyncWriter
	files  []*os.File
}

func openOutputs(s settings) (*outputs, error) {
	o := &outputs{}
	main := []io.Writer{os.Stdout}
	if s.dir != "" && (s.botFile != "" || s.errorsFile != "") {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return nil, fmt.Errorf("logger: log dir %s: %w", s.dir, err)
		}
	}
	f, err := o.open(s.dir, s.botFile)
	if err != nil {
		return nil, err
	}
	if f != nil {
		main = append(main, f)
	}
	o.main = newAsyncWriter(main, 64*1024)

	f, err = o.open(s.dir, s.errorsFile)
	if err != nil {
		o.close()
		return nil, err
	}
	if f != nil {
		o.errors = newAsyncWriter([]io.Writer{f}, 16*1024)
	}
	return o, nil
}

// open returns nil without error when no file is configured.
func (o *outputs) open(dir, name string) (*os.File, error) {
	if dir == "" || name == "" {
		return nil, nil
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", path, err)
	}
	o.files = append(o.files, f)
	return f, nil
}

func (o *outputs) close() error {
	var errs []error
	for _, w := range []*asyncWriter{o.main, o.errors} {
		if w != nil {
			errs = append(errs, w.Close())
		}
	}
	for _, f := range o.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// Shutdown drains queued lines and closes the log files. Safe to call twice.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if out == nil {
		return nil
	}
	err := out.close()
	out = nil
	return err
}

// Background is the root context for work not tied to an update.
func Background() context.Context {
	return context.Background()
}

// LogEvent writes one event through logg, falling back to the context
// logger and then L.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		logg = L
	}
	if logg == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to name, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs under component, using the context logger when L is unset.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := Component(component)
	if logg == nil {
		if logg = FromContext(ctx); logg != nil && component != "" {
			logg = logg.With("component", component)
		}
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

// Debug, Info, Warn and Error log one event at their level.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether this occurrence of a high-volume debug
// event should be logged. LOG_TRACE=1 lets all of them through.
func ShouldSampleDebug() bool {
	return debugSampler.Allow()
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// parseFormat defaults to kv for the debug and dev profiles, json otherwise.
func parseFormat(raw, profile string) logFormat {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	if profile == "debug" || profile == "dev" {
		return formatKV
	}
	return formatJSON
}

// splitKeys parses keys_order; "" and "default" yield nil.
func splitKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func traceRequested() bool {
	for _, name := range []string{"LOG_TRACE", "TRACE"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
		case "1", "true", "on", "yes":
			return true
		}
	}
	return false
}

func lowerOr(s, fallback string) string {
	if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
		return s
	}
	return fallback
}
