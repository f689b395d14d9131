package config

import (
	"fmt"
	"time"
)

// LLMConfig represents the configuration for the completion provider
type LLMConfig struct {
	Provider string
}

// OpenAIConfig represents the configuration for an OpenAI-compatible endpoint
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
}

// CompletionConfig controls the retrying completion client
type CompletionConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// ClassifierConfig holds the classification policy
type ClassifierConfig struct {
	ConfidenceThreshold float64
	MaxBodyChars        int
	RedactPII           bool
	BatchSize           int
}

// PrefilterConfig extends the built-in pre-filter rules
type PrefilterConfig struct {
	ContentSignalThreshold int
	ExtraBlockedDomains    []string
	ExtraSenderPrefixes    []string
	ExtraSubjectPhrases    []string
	ExtraContentSignals    []string
}

// IngestConfig controls the fetch step
type IngestConfig struct {
	Query      string
	MaxResults int
}

// RateLimitConfig controls per-user quotas and the counter store
type RateLimitConfig struct {
	Store            string
	Window           time.Duration
	SyncLimit        int
	ClassifyLimit    int
	ReviewLimit      int
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
}

// StoreConfig selects the relational store
type StoreConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	MySQLDSN    string
}

// MailboxConfig selects and configures the mail provider
type MailboxConfig struct {
	Provider          string
	GmailUser         string
	GmailAccessToken  string
	SMTPListenAddress string
	SMTPDomain        string
	SMTPAccounts      map[string]string
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
	}
}

// GetCompletion returns the completion client configuration
func (c *Config) GetCompletion() (CompletionConfig, error) {
	timeout, err := c.GetDuration("completion.timeout")
	if err != nil {
		return CompletionConfig{}, fmt.Errorf("invalid completion timeout: %w", err)
	}
	backoff, err := c.GetDuration("completion.backoff")
	if err != nil {
		return CompletionConfig{}, fmt.Errorf("invalid completion backoff: %w", err)
	}
	return CompletionConfig{
		Timeout:     timeout,
		MaxAttempts: c.GetInt("completion.max_attempts"),
		Backoff:     backoff,
	}, nil
}

// GetClassifier returns the classification policy
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		ConfidenceThreshold: c.GetFloat64("classifier.confidence_threshold"),
		MaxBodyChars:        c.GetInt("classifier.max_body_chars"),
		RedactPII:           c.GetBool("classifier.redact_pii"),
		BatchSize:           c.GetInt("classifier.batch_size"),
	}
}

// GetPrefilter returns the pre-filter extensions
func (c *Config) GetPrefilter() PrefilterConfig {
	return PrefilterConfig{
		ContentSignalThreshold: c.GetInt("prefilter.content_signal_threshold"),
		ExtraBlockedDomains:    c.GetStringSlice("prefilter.extra_blocked_domains"),
		ExtraSenderPrefixes:    c.GetStringSlice("prefilter.extra_sender_prefixes"),
		ExtraSubjectPhrases:    c.GetStringSlice("prefilter.extra_subject_phrases"),
		ExtraContentSignals:    c.GetStringSlice("prefilter.extra_content_signals"),
	}
}

// GetIngest returns the fetch configuration
func (c *Config) GetIngest() IngestConfig {
	return IngestConfig{
		Query:      c.GetString("ingest.query"),
		MaxResults: c.GetInt("ingest.max_results"),
	}
}

// GetRateLimit returns the rate limit configuration
func (c *Config) GetRateLimit() (RateLimitConfig, error) {
	window, err := c.GetDuration("ratelimit.window")
	if err != nil {
		return RateLimitConfig{}, fmt.Errorf("invalid rate limit window: %w", err)
	}
	cleanup, err := c.GetDuration("ratelimit.cleanup_frequency")
	if err != nil {
		return RateLimitConfig{}, fmt.Errorf("invalid rate limit cleanup frequency: %w", err)
	}
	return RateLimitConfig{
		Store:            c.GetString("ratelimit.store"),
		Window:           window,
		SyncLimit:        c.GetInt("ratelimit.sync_limit"),
		ClassifyLimit:    c.GetInt("ratelimit.classify_limit"),
		ReviewLimit:      c.GetInt("ratelimit.review_limit"),
		CleanupFrequency: cleanup,
		SQLitePath:       c.GetString("ratelimit.sqlite_path"),
		MySQLDSN:         c.GetString("ratelimit.mysql_dsn"),
		RedisAddr:        c.GetString("ratelimit.redis_addr"),
		RedisPassword:    c.GetString("ratelimit.redis_password"),
		RedisDB:          c.GetInt("ratelimit.redis_db"),
	}, nil
}

// GetStore returns the relational store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Driver:      c.GetString("store.driver"),
		SQLitePath:  c.GetString("store.sqlite_path"),
		PostgresDSN: c.GetString("store.postgres_dsn"),
		MySQLDSN:    c.GetString("store.mysql_dsn"),
	}
}

// GetMailbox returns the mail provider configuration
func (c *Config) GetMailbox() MailboxConfig {
	return MailboxConfig{
		Provider:          c.GetString("mailbox.provider"),
		GmailUser:         c.GetString("mailbox.gmail_user"),
		GmailAccessToken:  c.GetString("mailbox.gmail_access_token"),
		SMTPListenAddress: c.GetString("mailbox.smtp_listen_address"),
		SMTPDomain:        c.GetString("mailbox.smtp_domain"),
		SMTPAccounts:      c.GetStringMapString("mailbox.smtp_accounts"),
	}
}

// ServerConfig controls the HTTP transport
type ServerConfig struct {
	ListenAddress string
}

// SchedulerConfig controls the periodic sync trigger
type SchedulerConfig struct {
	Interval time.Duration
	Users    []string
}

// GetServer returns the HTTP server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress: c.GetString("server.listen_address"),
	}
}

// GetScheduler returns the scheduler configuration
func (c *Config) GetScheduler() (SchedulerConfig, error) {
	interval, err := c.GetDuration("scheduler.interval")
	if err != nil {
		return SchedulerConfig{}, fmt.Errorf("invalid scheduler interval: %w", err)
	}
	return SchedulerConfig{
		Interval: interval,
		Users:    c.GetStringSlice("scheduler.users"),
	}, nil
}

// GetGenericDomains returns the extra consumer mail domains skipped by domain matching
func (c *Config) GetGenericDomains() []string {
	return c.GetStringSlice("dedup.generic_domains")
}
