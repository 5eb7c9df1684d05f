package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	appDir       = "taskqueue"
	dataFileName = "tasks.json"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	FilePath    string `envconfig:"TASK_MANAGER_FILE_PATH"`
	StatusDir   string `envconfig:"TASK_MANAGER_STATUS_DIR"`   // enables the status document when set
	JournalPath string `envconfig:"TASK_MANAGER_JOURNAL_PATH"` // enables the SQLite journal when set

	// JournalRetention bounds the age of journal events kept by serve; 0 keeps everything.
	JournalRetention time.Duration `envconfig:"TASK_MANAGER_JOURNAL_RETENTION" default:"0s"`

	// HTTP API
	ListenAddr     string `envconfig:"TASK_MANAGER_LISTEN_ADDR" default:":8090"`
	AuthMode       string `envconfig:"TASK_MANAGER_AUTH_MODE" default:"none"` // "api-key", "jwt" or "none"
	APIKey         string `envconfig:"TASK_MANAGER_API_KEY"`
	ReadOnlyAPIKey string `envconfig:"TASK_MANAGER_READONLY_API_KEY"`
	JWTSecret      string `envconfig:"TASK_MANAGER_JWT_SECRET"`
	CORSOrigins    string `envconfig:"TASK_MANAGER_CORS_ORIGINS"`
	RateLimitRPS   int    `envconfig:"TASK_MANAGER_RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst int    `envconfig:"TASK_MANAGER_RATE_LIMIT_BURST" default:"100"`

	// Plan generation
	LLMProvider     string        `envconfig:"TASK_MANAGER_LLM_PROVIDER" default:"anthropic"`
	LLMModel        string        `envconfig:"TASK_MANAGER_LLM_MODEL"`
	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY"`
	LLMTimeout      time.Duration `envconfig:"TASK_MANAGER_LLM_TIMEOUT" default:"120s"`
}

// DataFilePath returns the configured data file, or the platform default.
func (c *Config) DataFilePath() string {
	if c.FilePath != "" {
		return c.FilePath
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(defaultDataDir(runtime.GOOS, home, os.Getenv), dataFileName)
}

// StatusEnabled returns true if the status document directory is configured.
func (c *Config) StatusEnabled() bool {
	return c.StatusDir != ""
}

// JournalEnabled returns true if the journal database path is configured.
func (c *Config) JournalEnabled() bool {
	return c.JournalPath != ""
}

// PlannerEnabled returns true if a provider is selected. Missing credentials
// surface as configuration errors at generation time.
func (c *Config) PlannerEnabled() bool {
	return c.LLMProvider != ""
}

// IsDevelopment reports whether console logging should be used.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Validate checks combinations envconfig cannot express.
func (c *Config) Validate() error {
	if c.JournalRetention < 0 {
		return fmt.Errorf("TASK_MANAGER_JOURNAL_RETENTION must not be negative")
	}
	switch c.AuthMode {
	case "none":
	case "api-key":
		if c.APIKey == "" {
			return fmt.Errorf("TASK_MANAGER_API_KEY is required when auth mode is api-key")
		}
	case "jwt":
		if c.JWTSecret == "" {
			return fmt.Errorf("TASK_MANAGER_JWT_SECRET is required when auth mode is jwt")
		}
	default:
		return fmt.Errorf("invalid auth mode %q: must be api-key, jwt or none", c.AuthMode)
	}
	return nil
}

// defaultDataDir follows platform conventions for per-user application data.
func defaultDataDir(goos, home string, getenv func(string) string) string {
	switch goos {
	case "windows":
		if appData := getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appDir)
		}
		return filepath.Join(home, "AppData", "Roaming", appDir)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDir)
	default:
		if xdg := getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appDir)
		}
		return filepath.Join(home, ".local", "share", appDir)
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}
