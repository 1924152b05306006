// Package config loads the loyalty service configuration.
//
// Values are layered: DefaultConfig, then the YAML file, then environment
// variables (a .env file fills in variables the process does not set),
// then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvDBPath        = "LOYALTY_DB_PATH"
	EnvHTTPAddr      = "LOYALTY_HTTP_ADDR"
	EnvWebhookURL    = "LOYALTY_WEBHOOK_URL"
	EnvWebhookSecret = "LOYALTY_WEBHOOK_SECRET"
	EnvLogLevel      = "LOYALTY_LOG_LEVEL"
)

// DefaultDotEnv is the .env file read by Load.
const DefaultDotEnv = ".env"

// Config is the full service configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Award    AwardConfig    `yaml:"award"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Cards    CardsConfig    `yaml:"cards"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig locates the SQLite ledger.
type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AwardConfig is the award retry policy.
type AwardConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
	Timeout     time.Duration `yaml:"timeout"`
}

// WebhookConfig configures change event delivery. An empty URL disables
// the webhook sink.
type WebhookConfig struct {
	URL        string        `yaml:"url"`
	Secret     string        `yaml:"secret"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	MaxHistory int           `yaml:"max_history"`
}

// CardsConfig configures card number generation.
type CardsConfig struct {
	// Node distinguishes processes sharing one database (0-1023).
	Node int64 `yaml:"node"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "loyalty.db",
			BusyTimeout: 5 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Award: AwardConfig{
			MaxAttempts: 3,
			Backoff:     25 * time.Millisecond,
			Timeout:     5 * time.Second,
		},
		Webhook: WebhookConfig{
			MaxRetries: 3,
			RetryDelay: time.Second,
			MaxHistory: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from path (optional; "" skips the file),
// the process environment and ./.env.
func Load(path string) (*Config, error) {
	return load(path, DefaultDotEnv, os.Getenv)
}

func load(path, dotenvPath string, getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	dotenv, err := readDotEnv(dotenvPath)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}
	cfg.applyEnv(lookup)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readDotEnv parses a .env file. A missing file yields no variables.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	vars, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return vars, nil
}

func (c *Config) applyEnv(lookup func(string) string) {
	if v := lookup(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := lookup(EnvHTTPAddr); v != "" {
		c.HTTP.Addr = v
	}
	if v := lookup(EnvWebhookURL); v != "" {
		c.Webhook.URL = v
	}
	if v := lookup(EnvWebhookSecret); v != "" {
		c.Webhook.Secret = v
	}
	if v := lookup(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, errors.New("database.busy_timeout must not be negative"))
	}
	if c.Award.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("award.max_attempts must be at least 1, got %d", c.Award.MaxAttempts))
	}
	if c.Award.Backoff < 0 {
		errs = append(errs, errors.New("award.backoff must not be negative"))
	}
	if c.Award.Timeout <= 0 {
		errs = append(errs, errors.New("award.timeout must be positive"))
	}
	if c.Webhook.URL != "" && c.Webhook.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("webhook.max_retries must be at least 1, got %d", c.Webhook.MaxRetries))
	}
	if c.Cards.Node < 0 || c.Cards.Node > 1023 {
		errs = append(errs, fmt.Errorf("cards.node must be between 0 and 1023, got %d", c.Cards.Node))
	}
	if !validLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level %q: must be one of %v", c.Log.Level, validLogLevels))
	}
	return errors.Join(errs...)
}

func validLevel(level string) bool {
	for _, l := range validLogLevels {
		if strings.EqualFold(l, level) {
			return true
		}
	}
	return false
}

// SlogLevel maps Level onto a slog level. Unknown values yield Info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
