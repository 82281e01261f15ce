package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Provider selects the inventory source for a run.
	Provider string `validate:"required,oneof=azure aws gcp"`
	// PolicyPath points at the YAML tagging policy.
	PolicyPath string `validate:"required"`

	Scan    ScanConfig
	Retry   RetryConfig
	Output  OutputConfig
	Logging LoggingConfig
	Server  ServerConfig

	Azure AzureConfig
	AWS   AWSConfig
	GCP   GCPConfig
}

// ScanConfig contains orchestration settings
type ScanConfig struct {
	Concurrency   int `validate:"min=1"`
	ProgressEvery int `validate:"min=0"`
	// RateLimit caps inventory API calls per second. Zero disables.
	RateLimit     float64
	RateBurst     int
	Remediate     bool
	EstimateCosts bool
	TopViolators  int `validate:"min=1"`
}

// RetryConfig contains the remediation retry policy
type RetryConfig struct {
	MaxAttempts       int `validate:"min=1"`
	BackoffBase       time.Duration
	BackoffMultiplier float64
	BackoffCap        time.Duration
}

// OutputConfig contains report artifact settings
type OutputConfig struct {
	Dir       string `validate:"required"`
	StorePath string `validate:"required"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// ServerConfig contains the status server configuration
type ServerConfig struct {
	Addr string
}

// AzureConfig contains Azure credentials and subscriptions
type AzureConfig struct {
	TenantID      string
	ClientID      string
	ClientSecret  string
	Subscriptions []string
}

// AWSConfig contains AWS credentials and regions
type AWSConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Regions         []string
}

// GCPConfig contains GCP projects and credentials
type GCPConfig struct {
	Projects           []string
	ServiceAccountJSON string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors as it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Provider:   getEnv("TAGAUDIT_PROVIDER", "azure"),
		PolicyPath: getEnv("TAGAUDIT_POLICY", "policy.yaml"),
		Scan: ScanConfig{
			Concurrency:   getEnvAsInt("TAGAUDIT_CONCURRENCY", 4),
			ProgressEvery: getEnvAsInt("TAGAUDIT_PROGRESS_EVERY", 100),
			RateLimit:     getEnvAsFloat("TAGAUDIT_RATE_LIMIT", 10),
			RateBurst:     getEnvAsInt("TAGAUDIT_RATE_BURST", 5),
			Remediate:     getEnvAsBool("TAGAUDIT_REMEDIATE", false),
			EstimateCosts: getEnvAsBool("TAGAUDIT_ESTIMATE_COSTS", false),
			TopViolators:  getEnvAsInt("TAGAUDIT_TOP_VIOLATORS", 10),
		},
		Retry: RetryConfig{
			MaxAttempts:       getEnvAsInt("TAGAUDIT_RETRY_ATTEMPTS", 4),
			BackoffBase:       getEnvAsDuration("TAGAUDIT_RETRY_BASE", 500*time.Millisecond),
			BackoffMultiplier: getEnvAsFloat("TAGAUDIT_RETRY_MULTIPLIER", 2),
			BackoffCap:        getEnvAsDuration("TAGAUDIT_RETRY_CAP", 30*time.Second),
		},
		Output: OutputConfig{
			Dir:       getEnv("TAGAUDIT_OUTPUT_DIR", "./reports"),
			StorePath: getEnv("TAGAUDIT_STORE_PATH", "./tagaudit.db"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Server: ServerConfig{
			Addr: getEnv("TAGAUDIT_SERVER_ADDR", ":8080"),
		},
		Azure: AzureConfig{
			TenantID:      getEnv("AZURE_TENANT_ID", ""),
			ClientID:      getEnv("AZURE_CLIENT_ID", ""),
			ClientSecret:  getEnv("AZURE_CLIENT_SECRET", ""),
			Subscriptions: getEnvAsList("AZURE_SUBSCRIPTION_IDS"),
		},
		AWS: AWSConfig{
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Regions:         getEnvAsList("AWS_REGIONS"),
		},
		GCP: GCPConfig{
			Projects:           getEnvAsList("GCP_PROJECT_IDS"),
			ServiceAccountJSON: getEnv("GCP_SERVICE_ACCOUNT_JSON", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry backoff multiplier must be >= 1, got %v", c.Retry.BackoffMultiplier)
	}
	if c.Scan.Remediate && c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("remediation requires at least one attempt")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
