// Package config loads SentryCore's configuration from a YAML file with
// environment variable overrides, following the same two-phase load
// (Load then LoadFromEnv) used across the codebase's sibling projects.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the SentryCore pipeline.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	LLM        LLMConfig        `yaml:"llm"`
	Match      MatchConfig      `yaml:"match"`
	Decision   DecisionConfig   `yaml:"decision"`
	Coalescer  CoalescerConfig  `yaml:"coalescer"`
	Budget     BudgetConfig     `yaml:"budget"`
	SMTP       SMTPConfig       `yaml:"smtp"`
	SES        SESConfig        `yaml:"ses"`
	Storage    StorageConfig    `yaml:"storage"`
	Snowflake  SnowflakeConfig  `yaml:"snowflake"`
}

// ServerConfig holds the thin ops HTTP surface settings (health/status,
// not the excluded CRUD API).
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c ServerConfig) Addr() string {
	if c.Host == "" {
		return ":8080"
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// DatabaseConfig holds the Postgres connection.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the KV store connection backing the immediate
// buffer and the tick scheduler's job locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SchedulerConfig tunes the fetch scheduler (C2).
type SchedulerConfig struct {
	TickIntervalSeconds  int `yaml:"tick_interval_seconds"`  // default 60
	MaxSourcesPerTick    int `yaml:"max_sources_per_tick"`   // K, default 10
	EmptyStreakThreshold int `yaml:"empty_streak_threshold"` // default 5
	EmptyStreakCooldownFactor float64 `yaml:"empty_streak_cooldown_factor"` // default 2.0
	FetchTimeoutSeconds  int `yaml:"fetch_timeout_seconds"`  // default 15
	FetchMaxRetries      int `yaml:"fetch_max_retries"`      // default 2
}

// EmbeddingConfig tunes the embedding worker (C5).
type EmbeddingConfig struct {
	TickIntervalSeconds int    `yaml:"tick_interval_seconds"` // default 60
	BatchSize           int    `yaml:"batch_size"`            // B, default 50
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"` // 1024 or 1536
	TimeoutSeconds      int    `yaml:"timeout_seconds"` // default 30
	BedrockModelID      string `yaml:"bedrock_model_id"`
	AWSRegion           string `yaml:"aws_region"`
}

// LLMConfig tunes the boundary-judge / push-worthiness LLM calls.
type LLMConfig struct {
	BedrockModelID string `yaml:"bedrock_model_id"`
	AWSRegion      string `yaml:"aws_region"`
	TimeoutSeconds int    `yaml:"timeout_seconds"` // default 20
}

// MatchConfig holds the match scorer's configurable weights (spec.md §4.5,
// Open Question (b): weighting should be configurable).
type MatchConfig struct {
	WeightCosSim   float64 `yaml:"weight_cos_sim"`   // default 0.55
	WeightFreshness float64 `yaml:"weight_freshness"` // default 0.15
	WeightPriority float64 `yaml:"weight_priority"`  // default 0.15
	WeightMustHit  float64 `yaml:"weight_must_hit"`  // default 0.15
	FreshnessTauHours float64 `yaml:"freshness_tau_hours"` // default 24
	MaxPriorityHits int    `yaml:"max_priority_hits"` // default 3
	StrictSubscriptionVisibility bool `yaml:"strict_subscription_visibility"`
}

// DecisionConfig holds the decision pipeline's bucket thresholds.
type DecisionConfig struct {
	ImmediateThreshold float64 `yaml:"immediate_threshold"` // default 0.93
	BoundaryThreshold  float64 `yaml:"boundary_threshold"`  // default 0.88
	BatchThreshold     float64 `yaml:"batch_threshold"`     // default 0.75
}

// CoalescerConfig tunes the delivery coalescer (C8).
type CoalescerConfig struct {
	ImmediateBucketMinutes int `yaml:"immediate_bucket_minutes"` // default 5
	ImmediateMaxPerBucket  int `yaml:"immediate_max_per_bucket"` // default 3
	DigestTopN             int `yaml:"digest_top_n"`
	OutboxMaxAttempts       int `yaml:"outbox_max_attempts"` // default 5
	OutboxMaxBackoffSeconds int `yaml:"outbox_max_backoff_seconds"` // default 3600
	RedirectorBaseURL       string `yaml:"redirector_base_url"`
}

// BudgetConfig tunes the budget governor (C9).
type BudgetConfig struct {
	DailyCapUSD      float64            `yaml:"daily_cap_usd"`
	SoftCutoffFactor float64            `yaml:"soft_cutoff_factor"` // default 0.8
	PerUserCapsUSD   map[string]float64 `yaml:"per_user_caps_usd"`
	FlagCacheTTLSeconds int             `yaml:"flag_cache_ttl_seconds"` // default 10
	EmbeddingUSDPerToken float64        `yaml:"embedding_usd_per_token"`
	JudgeUSDPerToken     float64        `yaml:"judge_usd_per_token"`
}

// SMTPConfig is the standard SMTP+TLS transport spec.md §6 requires.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	FromAddr string `yaml:"from_addr"`
}

func (c SMTPConfig) Timeout() time.Duration { return 30 * time.Second }

// SESConfig is an alternate mail.Sender backend (see internal/coalescer/mail).
type SESConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Region   string `yaml:"region"`
	FromAddr string `yaml:"from_addr"`
}

// StorageConfig holds the optional S3-backed raw item archival.
type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
}

// SnowflakeConfig holds the optional analytics export.
type SnowflakeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Account  string `yaml:"account"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
}

// Load reads a YAML config file and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Scheduler.TickIntervalSeconds == 0 {
		cfg.Scheduler.TickIntervalSeconds = 60
	}
	if cfg.Scheduler.MaxSourcesPerTick == 0 {
		cfg.Scheduler.MaxSourcesPerTick = 10
	}
	if cfg.Scheduler.EmptyStreakThreshold == 0 {
		cfg.Scheduler.EmptyStreakThreshold = 5
	}
	if cfg.Scheduler.EmptyStreakCooldownFactor == 0 {
		cfg.Scheduler.EmptyStreakCooldownFactor = 2.0
	}
	if cfg.Scheduler.FetchTimeoutSeconds == 0 {
		cfg.Scheduler.FetchTimeoutSeconds = 15
	}
	if cfg.Scheduler.FetchMaxRetries == 0 {
		cfg.Scheduler.FetchMaxRetries = 2
	}
	if cfg.Embedding.TickIntervalSeconds == 0 {
		cfg.Embedding.TickIntervalSeconds = 60
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 50
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1024
	}
	if cfg.Embedding.BedrockModelID == "" {
		cfg.Embedding.BedrockModelID = "amazon.titan-embed-text-v2:0"
	}
	if cfg.Embedding.AWSRegion == "" {
		cfg.Embedding.AWSRegion = "us-east-1"
	}
	if cfg.LLM.BedrockModelID == "" {
		cfg.LLM.BedrockModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	}
	if cfg.LLM.AWSRegion == "" {
		cfg.LLM.AWSRegion = cfg.Embedding.AWSRegion
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 20
	}
	if cfg.Match.WeightCosSim == 0 {
		cfg.Match.WeightCosSim = 0.55
	}
	if cfg.Match.WeightFreshness == 0 {
		cfg.Match.WeightFreshness = 0.15
	}
	if cfg.Match.WeightPriority == 0 {
		cfg.Match.WeightPriority = 0.15
	}
	if cfg.Match.WeightMustHit == 0 {
		cfg.Match.WeightMustHit = 0.15
	}
	if cfg.Match.FreshnessTauHours == 0 {
		cfg.Match.FreshnessTauHours = 24
	}
	if cfg.Match.MaxPriorityHits == 0 {
		cfg.Match.MaxPriorityHits = 3
	}
	if cfg.Decision.ImmediateThreshold == 0 {
		cfg.Decision.ImmediateThreshold = 0.93
	}
	if cfg.Decision.BoundaryThreshold == 0 {
		cfg.Decision.BoundaryThreshold = 0.88
	}
	if cfg.Decision.BatchThreshold == 0 {
		cfg.Decision.BatchThreshold = 0.75
	}
	if cfg.Coalescer.ImmediateBucketMinutes == 0 {
		cfg.Coalescer.ImmediateBucketMinutes = 5
	}
	if cfg.Coalescer.ImmediateMaxPerBucket == 0 {
		cfg.Coalescer.ImmediateMaxPerBucket = 3
	}
	if cfg.Coalescer.DigestTopN == 0 {
		cfg.Coalescer.DigestTopN = 20
	}
	if cfg.Coalescer.OutboxMaxAttempts == 0 {
		cfg.Coalescer.OutboxMaxAttempts = 5
	}
	if cfg.Coalescer.OutboxMaxBackoffSeconds == 0 {
		cfg.Coalescer.OutboxMaxBackoffSeconds = 3600
	}
	if cfg.Budget.SoftCutoffFactor == 0 {
		cfg.Budget.SoftCutoffFactor = 0.8
	}
	if cfg.Budget.FlagCacheTTLSeconds == 0 {
		cfg.Budget.FlagCacheTTLSeconds = 10
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
}

// LoadFromEnv loads the YAML config then applies environment overrides,
// loading a .env file first if present (secrets locally in .env, real
// env vars in deployment).
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Embedding.AWSRegion = v
		cfg.LLM.AWSRegion = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Snowflake.Password = v
	}

	return cfg, nil
}
