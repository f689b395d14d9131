package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	return NewFromFile("")
}

// NewFromFile creates a configuration instance, reading path when it is not empty
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/applytrack/")
		v.AddConfigPath("$HOME/.applytrack")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("APPLYTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Completion provider
	v.SetDefault("llm.provider", "openai")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1024)
	v.SetDefault("openai.temperature", 0.3)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 1024)
	v.SetDefault("gemini.temperature", 0.3)

	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.max_tokens", 1024)
	v.SetDefault("bedrock.temperature", 0.3)

	v.SetDefault("completion.timeout", "30s")
	v.SetDefault("completion.max_attempts", 2)
	v.SetDefault("completion.backoff", "1s")

	// Classification policy
	v.SetDefault("classifier.confidence_threshold", 0.7)
	v.SetDefault("classifier.max_body_chars", 3000)
	v.SetDefault("classifier.redact_pii", true)
	v.SetDefault("classifier.batch_size", 20)

	// Pre-filter policy
	v.SetDefault("prefilter.content_signal_threshold", 2)
	v.SetDefault("prefilter.extra_blocked_domains", []string{})
	v.SetDefault("prefilter.extra_sender_prefixes", []string{})
	v.SetDefault("prefilter.extra_subject_phrases", []string{})
	v.SetDefault("prefilter.extra_content_signals", []string{})

	v.SetDefault("dedup.generic_domains", []string{})

	// Ingestion
	v.SetDefault("ingest.query", "subject:(application OR interview OR offer OR position OR candidate OR recruiter OR applied) newer_than:90d")
	v.SetDefault("ingest.max_results", 100)

	// Rate limiting
	v.SetDefault("ratelimit.store", "memory")
	v.SetDefault("ratelimit.window", "60s")
	v.SetDefault("ratelimit.sync_limit", 5)
	v.SetDefault("ratelimit.classify_limit", 30)
	v.SetDefault("ratelimit.review_limit", 60)
	v.SetDefault("ratelimit.cleanup_frequency", "5m")
	v.SetDefault("ratelimit.sqlite_path", "/data/applytrack_ratelimit.db")
	v.SetDefault("ratelimit.mysql_dsn", "user:password@tcp(localhost:3306)/applytrack")
	v.SetDefault("ratelimit.redis_addr", "localhost:6379")
	v.SetDefault("ratelimit.redis_password", "")
	v.SetDefault("ratelimit.redis_db", 0)

	// Persistence
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "/data/applytrack.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.mysql_dsn", "")

	// Mailbox
	v.SetDefault("mailbox.provider", "gmail")
	v.SetDefault("mailbox.gmail_user", "me")
	v.SetDefault("mailbox.gmail_access_token", "")
	v.SetDefault("mailbox.smtp_listen_address", "0.0.0.0:2525")
	v.SetDefault("mailbox.smtp_domain", "localhost")
	v.SetDefault("mailbox.smtp_accounts", map[string]string{})

	// Server and scheduler
	v.SetDefault("server.listen_address", "0.0.0.0:8080")
	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.users", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetStringMapString gets a string map from the configuration
func (c *Config) GetStringMapString(key string) map[string]string {
	return c.v.GetStringMapString(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
