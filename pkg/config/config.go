package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/campuskit/rollcall/pkg/database"
	"github.com/campuskit/rollcall/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database database.Config

	// Identity provider configuration
	Provider ProviderConfig

	// Redis configuration (optional, webhook replay guard)
	Redis RedisConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// ProviderConfig holds identity provider configuration
type ProviderConfig struct {
	// APIURL is the base URL of the provider's management API
	APIURL string
	// SecretKey authenticates outbound API calls (invitations, profile reads)
	SecretKey string
	// WebhookSecret verifies inbound webhook signatures (whsec_ format)
	WebhookSecret string
	// WebhookSkew bounds acceptable webhook timestamp drift
	WebhookSkew time.Duration
	// IssuerURL is the OIDC issuer used to verify session tokens
	IssuerURL string
	// SignInURL is the post-signup redirect passed with invitations
	SignInURL string
	// Timeout bounds outbound provider calls
	Timeout time.Duration
}

// RedisConfig holds optional Redis configuration
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Provider:      loadProviderConfig(),
		Redis:         loadRedisConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("ROLLCALL_HOST", "0.0.0.0"),
		Port:            getEnv("ROLLCALL_PORT", "8080"),
		ReadTimeout:     getEnvDuration("ROLLCALL_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("ROLLCALL_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("ROLLCALL_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("ROLLCALL_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("ROLLCALL_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() database.Config {
	cfg := database.DefaultConfig()
	cfg.URL = getEnv("ROLLCALL_POSTGRES_URL", "")

	if maxConns := getEnvInt("ROLLCALL_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("ROLLCALL_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("ROLLCALL_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}

	return cfg
}

// loadProviderConfig loads identity provider configuration from environment
func loadProviderConfig() ProviderConfig {
	return ProviderConfig{
		APIURL:        getEnv("ROLLCALL_PROVIDER_API_URL", "https://api.clerk.com"),
		SecretKey:     getEnv("ROLLCALL_PROVIDER_SECRET_KEY", ""),
		WebhookSecret: getEnv("ROLLCALL_PROVIDER_WEBHOOK_SECRET", ""),
		WebhookSkew:   getEnvDuration("ROLLCALL_PROVIDER_WEBHOOK_SKEW", 5*time.Minute),
		IssuerURL:     getEnv("ROLLCALL_PROVIDER_ISSUER_URL", ""),
		SignInURL:     getEnv("ROLLCALL_PROVIDER_SIGN_IN_URL", "http://localhost:3000/sign-in"),
		Timeout:       getEnvDuration("ROLLCALL_PROVIDER_TIMEOUT", 10*time.Second),
	}
}

// loadRedisConfig loads optional Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("ROLLCALL_REDIS_URL", ""),
		Password: getEnv("ROLLCALL_REDIS_PASSWORD", ""),
		DB:       getEnvInt("ROLLCALL_REDIS_DB", 0),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("ROLLCALL_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("ROLLCALL_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("ROLLCALL_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("ROLLCALL_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("ROLLCALL_OTEL_SERVICE_NAME", "rollcall"),
		OTelServiceVersion: getEnv("ROLLCALL_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("ROLLCALL_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid. A missing webhook secret
// or provider credentials are startup errors: the service must never run
// with webhook verification silently disabled.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Provider.SecretKey == "" {
		return fmt.Errorf("identity provider secret key is required")
	}
	if c.Provider.WebhookSecret == "" {
		return fmt.Errorf("identity provider webhook secret is required")
	}
	if c.Provider.IssuerURL == "" {
		return fmt.Errorf("identity provider issuer URL is required")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
