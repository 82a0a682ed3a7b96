package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/elevenpay/axis-payout-service/internal/domain"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Gateway   GatewayConfig
	Secrets   SecretsConfig
	Scheduler SchedulerConfig
	Logger    LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int

	// Per-IP rate limit for the merchant API
	RateLimitPerSecond float64
	RateLimitBurst     int

	// TTL for the cached API key table
	APIKeyCacheTTL time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// GatewayConfig holds counterparty gateway configuration
type GatewayConfig struct {
	BaseURL        string
	ChannelID      string
	CorpCode       string
	CorpAccNum     string
	ClientID       string
	ClientSecret   string
	ServiceID      string
	ServiceVersion string
	Timeout        time.Duration

	// Custom status code to lifecycle mapping, format "1:processing,2:rejected".
	// Empty uses the built-in mapping.
	StatusCodeMap string
}

// SecretsConfig selects the secret backend and names the key material paths
type SecretsConfig struct {
	Backend string // "local", "aws", "vault"

	// Local backend
	LocalBasePath string

	// AWS backend
	AWSRegion   string
	AWSProfile  string
	AWSEndpoint string

	// Vault backend
	VaultAddress string
	VaultToken   string
	VaultMount   string

	// Secret paths
	ClientPrivateKeyPath    string
	CounterpartyCertPath    string
	CallbackSecretPath      string
	APIKeyTablePath         string
	ClientP12Path           string // alternative to the PEM pair
	ClientP12PassphrasePath string
}

// SchedulerConfig holds the reconciliation sweep configuration
type SchedulerConfig struct {
	// Cron expression for the status poll sweep
	StatusPollSpec string
	// Cron expression for balance snapshots; empty disables
	BalanceSnapshotSpec string
	// Max correlation references per get-status call
	PollBatchSize int
	// How long a payout may sit pending/processing before the sweep picks it up
	PollMinAge time.Duration
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort:        getEnvAsInt("METRICS_PORT", 9090),
			RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 50),
			RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 100),
			APIKeyCacheTTL:     getEnvAsDuration("API_KEY_CACHE_TTL", 5*time.Minute),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "axis_payout"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Gateway: GatewayConfig{
			BaseURL:        getEnv("AXIS_BASE_URL", ""),
			ChannelID:      getEnv("AXIS_CHANNEL_ID", ""),
			CorpCode:       getEnv("AXIS_CORP_CODE", ""),
			CorpAccNum:     getEnv("AXIS_CORP_ACC_NUM", ""),
			ClientID:       getEnv("AXIS_CLIENT_ID", ""),
			ClientSecret:   getEnv("AXIS_CLIENT_SECRET", ""),
			ServiceID:      getEnv("AXIS_SERVICE_ID", "OpenApi"),
			ServiceVersion: getEnv("AXIS_SERVICE_VERSION", "1.0"),
			Timeout:        getEnvAsDuration("AXIS_TIMEOUT", 30*time.Second),
			StatusCodeMap:  getEnv("AXIS_STATUS_CODE_MAP", ""),
		},
		Secrets: SecretsConfig{
			Backend:                 getEnv("SECRETS_BACKEND", "local"),
			LocalBasePath:           getEnv("SECRETS_LOCAL_PATH", "./secrets"),
			AWSRegion:               getEnv("SECRETS_AWS_REGION", "ap-south-1"),
			AWSProfile:              getEnv("SECRETS_AWS_PROFILE", ""),
			AWSEndpoint:             getEnv("SECRETS_AWS_ENDPOINT", ""),
			VaultAddress:            getEnv("SECRETS_VAULT_ADDR", ""),
			VaultToken:              getEnv("SECRETS_VAULT_TOKEN", ""),
			VaultMount:              getEnv("SECRETS_VAULT_MOUNT", "secret"),
			ClientPrivateKeyPath:    getEnv("SECRET_CLIENT_PRIVATE_KEY", "axis-payout/client-private-key"),
			CounterpartyCertPath:    getEnv("SECRET_COUNTERPARTY_CERT", "axis-payout/counterparty-cert"),
			CallbackSecretPath:      getEnv("SECRET_CALLBACK_SECRET", "axis-payout/callback-secret"),
			APIKeyTablePath:         getEnv("SECRET_API_KEY_TABLE", "axis-payout/api-keys"),
			ClientP12Path:           getEnv("SECRET_CLIENT_P12", ""),
			ClientP12PassphrasePath: getEnv("SECRET_CLIENT_P12_PASSPHRASE", ""),
		},
		Scheduler: SchedulerConfig{
			StatusPollSpec:      getEnv("POLL_CRON_SPEC", "@every 2m"),
			BalanceSnapshotSpec: getEnv("BALANCE_CRON_SPEC", "@every 1h"),
			PollBatchSize:       getEnvAsInt("POLL_BATCH_SIZE", 25),
			PollMinAge:          getEnvAsDuration("POLL_MIN_AGE", 1*time.Minute),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Gateway.BaseURL == "" {
		return nil, fmt.Errorf("AXIS_BASE_URL is required")
	}
	if cfg.Gateway.CorpCode == "" {
		return nil, fmt.Errorf("AXIS_CORP_CODE is required")
	}
	if cfg.Gateway.ClientID == "" || cfg.Gateway.ClientSecret == "" {
		return nil, fmt.Errorf("AXIS_CLIENT_ID and AXIS_CLIENT_SECRET are required")
	}

	return cfg, nil
}

// ConnectionString returns the PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode, c.MaxConns, c.MinConns,
	)
}

// ParseStatusCodeMap builds the status code mapping from the configured
// override, falling back to the built-in table. Format:
// "1:processing,2:rejected,3:processed,4:returned".
func (c *GatewayConfig) ParseStatusCodeMap() (domain.StatusCodeMap, error) {
	if c.StatusCodeMap == "" {
		return domain.DefaultStatusCodeMap(), nil
	}

	valid := map[domain.PayoutStatus]bool{
		domain.PayoutStatusPending:    true,
		domain.PayoutStatusProcessing: true,
		domain.PayoutStatusProcessed:  true,
		domain.PayoutStatusRejected:   true,
		domain.PayoutStatusReturned:   true,
	}

	table := make(domain.StatusCodeMap)
	for _, pair := range strings.Split(c.StatusCodeMap, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("malformed status code mapping %q", pair)
		}
		status := domain.PayoutStatus(parts[1])
		if !valid[status] {
			return nil, fmt.Errorf("unknown lifecycle status %q in mapping", parts[1])
		}
		table[parts[0]] = status
	}
	return table, nil
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
