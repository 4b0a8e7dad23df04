// Package config loads the gateway's configuration from an optional YAML
// file plus environment variable overrides, the same layered pattern the
// teacher's config package uses for its own services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the gateway process.
type Config struct {
	Queue    QueueConfig    `yaml:"queue"`
	Database DatabaseConfig `yaml:"database"`
	Provider ProviderConfig `yaml:"provider"`
	Worker   WorkerConfig   `yaml:"worker"`
	Retry    RetryConfig    `yaml:"retry"`
	SLO      SLOConfig      `yaml:"slo"`
	Chaos    ChaosConfig    `yaml:"chaos"`
}

// QueueConfig is the Redis connection backing the MX rate limiter (the send
// queue itself lives in Postgres; see DatabaseConfig).
type QueueConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c QueueConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// DatabaseConfig is the Postgres connection backing every repository in
// internal/repository/postgres.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ProviderConfig selects and configures the primary and optional fallback
// provider driver.
type ProviderConfig struct {
	Primary  string     `yaml:"primary"` // "api" or "smtp"
	Fallback bool       `yaml:"fallback"`
	API      APIConfig  `yaml:"api"`
	SMTP     SMTPConfig `yaml:"smtp"`
}

// APIConfig configures the SES-shaped API driver.
type APIConfig struct {
	Region           string `yaml:"region"`
	FromAddress      string `yaml:"from_address"`
	ReplyTo          string `yaml:"reply_to"`
	ConfigurationSet string `yaml:"configuration_set"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
}

// SMTPConfig configures the SMTP driver.
type SMTPConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Secure           bool   `yaml:"secure"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	FromAddress      string `yaml:"from_address"`
	FromName         string `yaml:"from_name"`
	ReturnPathDomain string `yaml:"return_path_domain"`
}

// WorkerConfig sizes the send pipeline and webhook delivery worker pools.
type WorkerConfig struct {
	SendConcurrency     int `yaml:"send_concurrency"`
	WebhookConcurrency  int `yaml:"webhook_concurrency"`
	ClaimBatchSize      int `yaml:"claim_batch_size"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
}

func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// RetryConfig overrides the default backoff schedule.
type RetryConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	BaseDelaysSec   []int   `yaml:"base_delays_seconds"`
	JitterFraction  float64 `yaml:"jitter_fraction"`
}

// SLOConfig overrides the SLO controller's violation thresholds.
type SLOConfig struct {
	ErrorRateThreshold    float64 `yaml:"error_rate_threshold"`
	QueueAgeP95SecondsMax int     `yaml:"queue_age_p95_seconds_max"`
	ProbeIntervalSeconds  int     `yaml:"probe_interval_seconds"`
}

func (c SLOConfig) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

// ChaosConfig gates synthetic failure injection for testing provider
// fallback and retry behavior against a real deployment.
type ChaosConfig struct {
	SES429 bool `yaml:"ses_429"`
}

// Load reads and parses a YAML configuration file, applying defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Queue.Host == "" {
		cfg.Queue.Host = "localhost"
	}
	if cfg.Queue.Port == 0 {
		cfg.Queue.Port = 6379
	}
	if cfg.Provider.Primary == "" {
		cfg.Provider.Primary = "api"
	}
	if cfg.Provider.API.Region == "" {
		cfg.Provider.API.Region = "us-east-1"
	}
	if cfg.Worker.SendConcurrency == 0 {
		cfg.Worker.SendConcurrency = 16
	}
	if cfg.Worker.WebhookConcurrency == 0 {
		cfg.Worker.WebhookConcurrency = 10
	}
	if cfg.Worker.ClaimBatchSize == 0 {
		cfg.Worker.ClaimBatchSize = 50
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 2
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 6
	}
	if len(cfg.Retry.BaseDelaysSec) == 0 {
		cfg.Retry.BaseDelaysSec = []int{5, 15, 60, 300, 900, 3600}
	}
	if cfg.Retry.JitterFraction == 0 {
		cfg.Retry.JitterFraction = 0.25
	}
	if cfg.SLO.ErrorRateThreshold == 0 {
		cfg.SLO.ErrorRateThreshold = 0.05
	}
	if cfg.SLO.QueueAgeP95SecondsMax == 0 {
		cfg.SLO.QueueAgeP95SecondsMax = 120
	}
	if cfg.SLO.ProbeIntervalSeconds == 0 {
		cfg.SLO.ProbeIntervalSeconds = 300
	}
}

// LoadFromEnv loads path (if non-empty) and layers environment variable
// overrides on top, loading a .env file first so local development can
// keep secrets out of the shell.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("QUEUE_HOST"); v != "" {
		cfg.Queue.Host = v
	}
	if v := os.Getenv("QUEUE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.Port = n
		}
	}
	if v := os.Getenv("QUEUE_PASSWORD"); v != "" {
		cfg.Queue.Password = v
	}
	if v := os.Getenv("QUEUE_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.DB = n
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("EMAIL_PROVIDER"); v != "" {
		cfg.Provider.Primary = v
	}
	if v := os.Getenv("EMAIL_PROVIDER_FALLBACK"); v != "" {
		cfg.Provider.Fallback = v == "true" || v == "1"
	}
	if v := os.Getenv("API_PROVIDER_REGION"); v != "" {
		cfg.Provider.API.Region = v
	}
	if v := os.Getenv("API_PROVIDER_FROM_ADDRESS"); v != "" {
		cfg.Provider.API.FromAddress = v
	}
	if v := os.Getenv("API_PROVIDER_REPLY_TO"); v != "" {
		cfg.Provider.API.ReplyTo = v
	}
	if v := os.Getenv("API_PROVIDER_CONFIGURATION_SET"); v != "" {
		cfg.Provider.API.ConfigurationSet = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Provider.API.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Provider.API.SecretKey = v
	}
	if v := os.Getenv("SMTP_PROVIDER_HOST"); v != "" {
		cfg.Provider.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PROVIDER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Provider.SMTP.Port = n
		}
	}
	if v := os.Getenv("SMTP_PROVIDER_SECURE"); v != "" {
		cfg.Provider.SMTP.Secure = v == "true" || v == "1"
	}
	if v := os.Getenv("SMTP_PROVIDER_USER"); v != "" {
		cfg.Provider.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PROVIDER_PASS"); v != "" {
		cfg.Provider.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_PROVIDER_FROM_ADDRESS"); v != "" {
		cfg.Provider.SMTP.FromAddress = v
	}
	if v := os.Getenv("SMTP_PROVIDER_RETURN_PATH_DOMAIN"); v != "" {
		cfg.Provider.SMTP.ReturnPathDomain = v
	}
	if v := os.Getenv("WORKER_SEND_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.SendConcurrency = n
		}
	}
	if v := os.Getenv("WORKER_WEBHOOK_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.WebhookConcurrency = n
		}
	}
	if v := os.Getenv("SLO_ERROR_RATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SLO.ErrorRateThreshold = f
		}
	}
	if v := os.Getenv("SLO_QUEUE_AGE_P95_SECONDS_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SLO.QueueAgeP95SecondsMax = n
		}
	}
	if v := os.Getenv("CHAOS_SES_429"); v != "" {
		cfg.Chaos.SES429 = v == "true" || v == "1"
	}

	return cfg, nil
}
