// Package config loads the pricebot configuration: the shared core settings
// plus storage, extraction, fanout, session and HTTP sections.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	coreconfig "github.com/m3rciful/pricebot/core/config"
	coredatabase "github.com/m3rciful/pricebot/core/database"
)

const (
	// StorageMemory keeps everything in process memory.
	StorageMemory = "memory"
	// StoragePostgres persists through the database section.
	StoragePostgres = "postgres"

	// ProviderGemini selects the Gemini-backed extractor.
	ProviderGemini = "gemini"
	// ProviderKeyword selects the offline keyword matcher.
	ProviderKeyword = "keyword"
)

// StorageConfig selects the repository backend.
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
}

// ExtractionConfig configures the free-text extractor.
type ExtractionConfig struct {
	Provider     string        `yaml:"provider" envconfig:"EXTRACTION_PROVIDER"`
	APIKey       string        `yaml:"api_key" envconfig:"GEMINI_API_KEY"`
	Model        string        `yaml:"model" envconfig:"GEMINI_MODEL"`
	Timeout      time.Duration `yaml:"timeout" envconfig:"EXTRACTION_TIMEOUT"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"EXTRACTION_MAX_RETRIES"`
	RetryBackoff time.Duration `yaml:"retry_backoff" envconfig:"EXTRACTION_RETRY_BACKOFF"`
}

// FanoutConfig holds the inquiry fanout defaults used when the bot_config row
// cannot be read.
type FanoutConfig struct {
	FallbackDelay        time.Duration `yaml:"fallback_delay" envconfig:"FANOUT_FALLBACK_DELAY"`
	MaxVendorsPerInquiry int           `yaml:"max_vendors_per_inquiry" envconfig:"FANOUT_MAX_VENDORS"`
	MessagesPerMinute    int           `yaml:"messages_per_minute" envconfig:"FANOUT_MESSAGES_PER_MINUTE"`
}

// SessionsConfig controls idle eviction of dialogue, wizard and draft state.
type SessionsConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl" envconfig:"SESSIONS_IDLE_TTL"`
	SweepSchedule string        `yaml:"sweep_schedule" envconfig:"SESSIONS_SWEEP_SCHEDULE"`
	// KeepForever turns eviction off; abandoned conversations then live until restart.
	KeepForever bool `yaml:"keep_forever" envconfig:"SESSIONS_KEEP_FOREVER"`
}

// HTTPConfig configures the web chat and API listener. An empty Listen
// disables both.
type HTTPConfig struct {
	Listen            string   `yaml:"listen" envconfig:"HTTP_LISTEN"`
	AllowedOrigins    []string `yaml:"allowed_origins" envconfig:"HTTP_ALLOWED_ORIGINS"`
	RequestsPerMinute int      `yaml:"requests_per_minute" envconfig:"HTTP_REQUESTS_PER_MINUTE"`
	Burst             int      `yaml:"burst" envconfig:"HTTP_BURST"`
}

// RedisConfig enables the Redis standing-quote store when Addr is set.
type RedisConfig struct {
	Addr      string        `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password  string        `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB        int           `yaml:"db" envconfig:"REDIS_DB"`
	KeyPrefix string        `yaml:"key_prefix" envconfig:"REDIS_KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" envconfig:"REDIS_TTL"`
}

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Storage    StorageConfig       `yaml:"storage"`
	Database   coredatabase.Config `yaml:"database"`
	Extraction ExtractionConfig    `yaml:"extraction"`
	Fanout     FanoutConfig        `yaml:"fanout"`
	Sessions   SessionsConfig      `yaml:"sessions"`
	HTTP       HTTPConfig          `yaml:"http"`
	Redis      RedisConfig         `yaml:"redis"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// Load reads path, overlays the environment and normalizes the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch driver {
	case "":
		driver = StoragePostgres
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: postgres, memory", cfg.Storage.Driver)
	}
	cfg.Storage.Driver = driver
	if driver == StoragePostgres {
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required for the postgres driver")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Extraction.Provider))
	switch provider {
	case "":
		provider = ProviderKeyword
		if cfg.Extraction.APIKey != "" {
			provider = ProviderGemini
		}
	case ProviderGemini:
		if strings.TrimSpace(cfg.Extraction.APIKey) == "" {
			return fmt.Errorf("extraction.api_key is required for the gemini provider")
		}
	case ProviderKeyword:
	default:
		return fmt.Errorf("invalid extraction.provider %q; allowed: gemini, keyword", cfg.Extraction.Provider)
	}
	cfg.Extraction.Provider = provider
	if cfg.Extraction.Timeout <= 0 {
		cfg.Extraction.Timeout = 10 * time.Second
	}
	if cfg.Extraction.MaxRetries < 0 {
		return fmt.Errorf("extraction.max_retries must be >= 0")
	}

	if cfg.Fanout.FallbackDelay <= 0 {
		cfg.Fanout.FallbackDelay = 30 * time.Second
	}
	if cfg.Fanout.MaxVendorsPerInquiry < 0 || cfg.Fanout.MessagesPerMinute < 0 {
		return fmt.Errorf("fanout limits must be >= 0")
	}

	if cfg.Sessions.IdleTTL < 0 {
		return fmt.Errorf("sessions.idle_ttl must be >= 0")
	}
	switch {
	case cfg.Sessions.KeepForever:
		cfg.Sessions.IdleTTL = 0
	case cfg.Sessions.IdleTTL == 0:
		cfg.Sessions.IdleTTL = 30 * time.Minute
	}
	if strings.TrimSpace(cfg.Sessions.SweepSchedule) == "" {
		cfg.Sessions.SweepSchedule = "@every 1m"
	}
	if _, err := cron.ParseStandard(cfg.Sessions.SweepSchedule); err != nil {
		return fmt.Errorf("invalid sessions.sweep_schedule %q: %w", cfg.Sessions.SweepSchedule, err)
	}

	if cfg.HTTP.RequestsPerMinute < 0 || cfg.HTTP.Burst < 0 {
		return fmt.Errorf("http rate limits must be >= 0")
	}
	return nil
}
