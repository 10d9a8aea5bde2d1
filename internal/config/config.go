package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Gateway GatewayConfig `yaml:"gateway"`
	Warmup  WarmupConfig  `yaml:"warmup"`
	Redis   RedisConfig   `yaml:"redis"`
	Storage StorageConfig `yaml:"storage"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// GatewayConfig holds the Evolution API (WhatsApp gateway) settings.
type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"` // retries for read calls only; sends are never retried here
}

// Timeout returns the configured timeout as a duration
func (c GatewayConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WarmupConfig holds the warm-up engine settings.
type WarmupConfig struct {
	Timezone                string      `yaml:"timezone"`
	DailyLimits             map[int]int `yaml:"daily_limits"` // stage id -> messages per day
	DispatchIntervalSeconds int         `yaml:"dispatch_interval_seconds"`
	AutoPlan                bool        `yaml:"auto_plan"`
	SendDelayMs             int         `yaml:"send_delay_ms"`
	CleanupDays             int         `yaml:"cleanup_days"`
}

// DispatchInterval returns the scheduler polling interval as a duration
func (c WarmupConfig) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalSeconds) * time.Second
}

// Location resolves the configured timezone. Day boundaries and time-of-day
// anchors are interpreted in this location.
func (c WarmupConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid warmup.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// RedisConfig holds the optional Redis connection used for dispatch leases
// and the redis snapshot store.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig holds snapshot storage configuration
type StorageConfig struct {
	Type                    string `yaml:"type"` // "none", "redis" or "dynamodb"
	DynamoDBTable           string `yaml:"dynamodb_table"`
	AWSRegion               string `yaml:"aws_region"`
	AWSProfile              string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	SnapshotIntervalSeconds int    `yaml:"snapshot_interval_seconds"`
	ExportBucket            string `yaml:"export_bucket"`
}

// SnapshotInterval returns the snapshot flush interval as a duration
func (c StorageConfig) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalSeconds) * time.Second
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// defaultDailyLimits mirrors the stage catalog caps.
var defaultDailyLimits = map[int]int{1: 5, 2: 15, 3: 30, 4: 50, 5: 100, 6: 200}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "http://localhost:8081"
	}
	if cfg.Gateway.TimeoutSeconds == 0 {
		cfg.Gateway.TimeoutSeconds = 30
	}
	if cfg.Gateway.MaxRetries == 0 {
		cfg.Gateway.MaxRetries = 3
	}
	if cfg.Warmup.DailyLimits == nil {
		cfg.Warmup.DailyLimits = make(map[int]int, len(defaultDailyLimits))
	}
	for stage, limit := range defaultDailyLimits {
		if _, ok := cfg.Warmup.DailyLimits[stage]; !ok {
			cfg.Warmup.DailyLimits[stage] = limit
		}
	}
	if cfg.Warmup.DispatchIntervalSeconds == 0 {
		cfg.Warmup.DispatchIntervalSeconds = 60
	}
	if cfg.Warmup.SendDelayMs == 0 {
		cfg.Warmup.SendDelayMs = 1000
	}
	if cfg.Warmup.CleanupDays == 0 {
		cfg.Warmup.CleanupDays = 7
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "none"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
	if cfg.Storage.SnapshotIntervalSeconds == 0 {
		cfg.Storage.SnapshotIntervalSeconds = 30
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("EVOLUTION_API_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("EVOLUTION_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("WARMUP_TIMEZONE"); v != "" {
		cfg.Warmup.Timezone = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("EXPORT_S3_BUCKET"); v != "" {
		cfg.Storage.ExportBucket = v
	}

	// Per-stage quota overrides: MAX_DAILY_MESSAGES_STAGE_1 .. _6
	for stage := range defaultDailyLimits {
		key := fmt.Sprintf("MAX_DAILY_MESSAGES_STAGE_%d", stage)
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %s=%q", key, v)
		}
		cfg.Warmup.DailyLimits[stage] = n
	}

	return cfg, nil
}
