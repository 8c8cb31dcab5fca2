// ABOUTME: Configuration loading and parsing for the hearth server
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete hearth configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Document DocumentConfig `yaml:"document" toml:"document"`
	Bots     []BotConfig    `yaml:"bots" toml:"bots"`
	Queue    QueueConfig    `yaml:"queue" toml:"queue"`
	Workers  WorkersConfig  `yaml:"workers" toml:"workers"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
	MCP      MCPConfig      `yaml:"mcp" toml:"mcp"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`

	// CompactOnStart rewrites the document log as one snapshot when the server starts
	CompactOnStart bool `yaml:"compact_on_start" toml:"compact_on_start"`
}

// DocumentConfig names the shared document the server hosts
type DocumentConfig struct {
	Name string `yaml:"name" toml:"name"`
}

// BotConfig declares a bot that can be mentioned as @name
type BotConfig struct {
	Name        string `yaml:"name" toml:"name"`
	DisplayName string `yaml:"display_name" toml:"display_name"`

	// Remote bots are answered by an external process (see cmd/echo-bot), not by the server's workers
	Remote bool `yaml:"remote" toml:"remote"`
}

// QueueConfig holds bot invocation queue housekeeping configuration
type QueueConfig struct {
	CleanupInterval time.Duration `yaml:"-" toml:"-"`
	MaxAge          time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	CleanupIntervalRaw string `yaml:"cleanup_interval" toml:"cleanup_interval"`
	MaxAgeRaw          string `yaml:"max_age" toml:"max_age"`
}

// WorkersConfig holds bot worker configuration
type WorkersConfig struct {
	Concurrency     int     `yaml:"concurrency" toml:"concurrency"`
	RatePerSecond   float64 `yaml:"rate_per_second" toml:"rate_per_second"`
	Burst           int     `yaml:"burst" toml:"burst"`
	ContextMessages int     `yaml:"context_messages" toml:"context_messages"`

	ReplyTimeout    time.Duration `yaml:"-" toml:"-"`
	ReplyTimeoutRaw string        `yaml:"reply_timeout" toml:"reply_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// MCPConfig holds the MCP tool endpoint configuration
type MCPConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`

	// Tokens, when present, are required on every MCP session and fix the author of
	// messages sent through it
	Tokens []MCPToken `yaml:"tokens" toml:"tokens"`
}

// MCPToken binds an access token to the username its sessions act as
type MCPToken struct {
	Token    string `yaml:"token" toml:"token"`
	Username string `yaml:"username" toml:"username"`
}

// Defaults applied to fields left empty
const (
	DefaultHTTPAddr        = "localhost:8080"
	DefaultDocument        = "general"
	DefaultCleanupInterval = time.Minute
	DefaultMaxAge          = time.Hour
	DefaultConcurrency     = 4
	DefaultRatePerSecond   = 2
	DefaultBurst           = 4
	DefaultContextMessages = 20
	DefaultReplyTimeout    = 2 * time.Minute
	DefaultMetricsPath     = "/metrics"
)

var botNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// DefaultPath returns the path to the hearth config file.
// Priority: HEARTH_CONFIG env var > XDG_CONFIG_HOME/hearth/hearth.yaml > ~/.config/hearth/hearth.yaml
func DefaultPath() string {
	if envPath := os.Getenv("HEARTH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "hearth.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "hearth", "hearth.yaml")
}

// DefaultDataPath returns the directory for the hearth database.
// Priority: XDG_DATA_HOME/hearth > ~/.local/share/hearth
func DefaultDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "hearth")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes config bytes, applies defaults and validates the result.
func Parse(data []byte, isTOML bool) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a valid configuration using dbPath for the database.
func Default(dbPath string) *Config {
	cfg := &Config{Database: DatabaseConfig{Path: dbPath}}
	cfg.applyDefaults()
	return cfg
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Document.Name == "" {
		c.Document.Name = DefaultDocument
	}
	if c.Bots == nil {
		c.Bots = []BotConfig{{Name: "ai", DisplayName: "AI"}}
	}
	for i := range c.Bots {
		if c.Bots[i].DisplayName == "" {
			c.Bots[i].DisplayName = c.Bots[i].Name
		}
	}
	if c.Queue.CleanupInterval == 0 {
		c.Queue.CleanupInterval = DefaultCleanupInterval
	}
	if c.Queue.MaxAge == 0 {
		c.Queue.MaxAge = DefaultMaxAge
	}
	if c.Workers.Concurrency == 0 {
		c.Workers.Concurrency = DefaultConcurrency
	}
	if c.Workers.RatePerSecond == 0 {
		c.Workers.RatePerSecond = DefaultRatePerSecond
	}
	if c.Workers.Burst == 0 {
		c.Workers.Burst = DefaultBurst
	}
	if c.Workers.ContextMessages == 0 {
		c.Workers.ContextMessages = DefaultContextMessages
	}
	if c.Workers.ReplyTimeout == 0 {
		c.Workers.ReplyTimeout = DefaultReplyTimeout
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Document.Name == "" || strings.Contains(c.Document.Name, "/") {
		return fmt.Errorf("document.name %q must be non-empty and must not contain '/'", c.Document.Name)
	}

	seen := make(map[string]bool, len(c.Bots))
	for i, bot := range c.Bots {
		if !botNamePattern.MatchString(bot.Name) {
			return fmt.Errorf("bots[%d].name %q must be letters, digits, '_' or '-'", i, bot.Name)
		}
		key := strings.ToLower(bot.Name)
		if seen[key] {
			return fmt.Errorf("bots[%d].name %q is declared twice", i, bot.Name)
		}
		seen[key] = true
	}

	if c.Queue.CleanupInterval < 0 || c.Queue.MaxAge < 0 {
		return fmt.Errorf("queue durations must not be negative")
	}

	if c.Workers.Concurrency < 1 {
		return fmt.Errorf("workers.concurrency must be at least 1")
	}
	if c.Workers.RatePerSecond < 0 {
		return fmt.Errorf("workers.rate_per_second must not be negative")
	}
	if c.Workers.Burst < 1 {
		return fmt.Errorf("workers.burst must be at least 1")
	}
	if c.Workers.ContextMessages < 0 {
		return fmt.Errorf("workers.context_messages must not be negative")
	}
	if c.Workers.ReplyTimeout > 0 && c.Queue.MaxAge <= c.Workers.ReplyTimeout {
		return fmt.Errorf("queue.max_age (%s) must be longer than workers.reply_timeout (%s)",
			c.Queue.MaxAge, c.Workers.ReplyTimeout)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with '/'", c.Metrics.Path)
	}

	for i, tok := range c.MCP.Tokens {
		if tok.Token == "" || strings.TrimSpace(tok.Username) == "" {
			return fmt.Errorf("mcp.tokens[%d] needs both token and username", i)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Queue.CleanupIntervalRaw != "" {
		cfg.Queue.CleanupInterval, err = time.ParseDuration(cfg.Queue.CleanupIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing cleanup_interval %q: %w", cfg.Queue.CleanupIntervalRaw, err)
		}
	}

	if cfg.Queue.MaxAgeRaw != "" {
		cfg.Queue.MaxAge, err = time.ParseDuration(cfg.Queue.MaxAgeRaw)
		if err != nil {
			return fmt.Errorf("parsing max_age %q: %w", cfg.Queue.MaxAgeRaw, err)
		}
	}

	if cfg.Workers.ReplyTimeoutRaw != "" {
		cfg.Workers.ReplyTimeout, err = time.ParseDuration(cfg.Workers.ReplyTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing reply_timeout %q: %w", cfg.Workers.ReplyTimeoutRaw, err)
		}
	}

	return nil
}
