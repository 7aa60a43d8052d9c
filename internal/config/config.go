// Package config loads the assistant configuration from an optional YAML file
// and SHOP_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides; "__" separates key segments.
const EnvPrefix = "SHOP_"

// DefaultFile is read when no path is given; a missing file is not an error.
const DefaultFile = "config.yaml"

// Backend names accepted for quota and conversation storage.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
	BackendRedis  = "redis"
)

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	OpenAI       OpenAIConfig       `koanf:"openai"`
	Quota        QuotaConfig        `koanf:"quota"`
	Conversation ConversationConfig `koanf:"conversation"`
	Storage      StorageConfig      `koanf:"storage"`
	Redis        RedisConfig        `koanf:"redis"`
	Knowledge    KnowledgeConfig    `koanf:"knowledge"`
	Site         SiteConfig         `koanf:"site"`
	Chat         ChatConfig         `koanf:"chat"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
	Scraper      ScraperConfig      `koanf:"scraper"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

type OpenAIConfig struct {
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Model       string        `koanf:"model"`
	MaxTokens   int           `koanf:"max_tokens"`
	Temperature float32       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
}

type QuotaConfig struct {
	MaxTokensPerDay int    `koanf:"max_tokens_per_day"`
	Backend         string `koanf:"backend"`
	PruneSchedule   string `koanf:"prune_schedule"`
}

type ConversationConfig struct {
	Backend      string `koanf:"backend"`
	HistoryLimit int    `koanf:"history_limit"`
}

type StorageConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres
	DSN    string `koanf:"dsn"`    // Data source name / connection string
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	TTL      time.Duration `koanf:"ttl"`
}

type KnowledgeConfig struct {
	ProductsFile string `koanf:"products_file"`
	Watch        bool   `koanf:"watch"`
}

type SiteConfig struct {
	URL string `koanf:"url"`
}

type ChatConfig struct {
	IncludeMetadata bool `koanf:"include_metadata"`
}

type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
}

type ScraperConfig struct {
	URL         string `koanf:"url"`
	Output      string `koanf:"output"`
	MaxProducts int    `koanf:"max_products"`
}

var defaults = map[string]any{
	"server.port":                8000,
	"server.request_timeout":     30 * time.Second,
	"server.allowed_origins":     []string{"http://localhost:3000", "http://localhost:3001", "https://caviaarmode.com"},
	"openai.model":               "gpt-4o-mini",
	"openai.max_tokens":          150,
	"openai.temperature":         0.3,
	"openai.timeout":             30 * time.Second,
	"quota.max_tokens_per_day":   500,
	"quota.backend":              BackendMemory,
	"quota.prune_schedule":       "@daily",
	"conversation.backend":       BackendMemory,
	"conversation.history_limit": 10,
	"storage.driver":             "sqlite",
	"storage.dsn":                "./data/assistant.db",
	"redis.addr":                 "localhost:6379",
	"redis.ttl":                  24 * time.Hour,
	"site.url":                   "https://caviaarmode.com",
	"chat.include_metadata":      true,
	"scraper.url":                "https://caviaarmode.com/collections/all",
	"scraper.output":             "products.json",
	"scraper.max_products":       100,
}

// Environment variable reference pattern: ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (or DefaultFile when empty), applies SHOP_ overrides and fills defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// SHOP_SERVER__PORT -> server.port
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.OpenAI.APIKey = substituteEnvVars(cfg.OpenAI.APIKey)
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Storage.DSN = substituteEnvVars(cfg.Storage.DSN)
	cfg.Redis.Password = substituteEnvVars(cfg.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Quota.MaxTokensPerDay < 0 {
		errs = append(errs, fmt.Errorf("quota.max_tokens_per_day must not be negative"))
	}
	if c.Conversation.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("conversation.history_limit must not be negative"))
	}
	for name, backend := range map[string]string{"quota.backend": c.Quota.Backend, "conversation.backend": c.Conversation.Backend} {
		switch backend {
		case BackendMemory, BackendSQL, BackendRedis:
		default:
			errs = append(errs, fmt.Errorf("%s: unknown backend %q", name, backend))
		}
	}
	return errors.Join(errs...)
}

// UsesSQL reports whether any backend needs the SQL database.
func (c *Config) UsesSQL() bool {
	return c.Quota.Backend == BackendSQL || c.Conversation.Backend == BackendSQL
}

// UsesRedis reports whether any backend needs Redis.
func (c *Config) UsesRedis() bool {
	return c.Quota.Backend == BackendRedis || c.Conversation.Backend == BackendRedis
}

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values
func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
