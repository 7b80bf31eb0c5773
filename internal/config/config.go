// Package config provides configuration management for the whale scanner application.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	DataSource DataSourceConfig
	Explorer   ExplorerConfig
	Scan       ScanConfig
	Chains     ChainsConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Insight    InsightConfig
	Logging    LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DataSourceConfig holds data source selection configuration
type DataSourceConfig struct {
	Mode           string // "auto", "protocol" or "rest"
	DeployEnv      string // "serverless" forces the REST backend in auto mode
	EnableFallback bool   // wrap protocol with REST fallback in auto mode
	ProtocolURL    string // websocket URL of the local tool bridge
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
}

// ExplorerConfig holds explorer API client configuration
type ExplorerConfig struct {
	APIKey            string // optional; sent when the explorer supports keyed quotas
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
}

// ScanConfig holds whale scan configuration
type ScanConfig struct {
	MonitoredAddresses   []string // "addr=Label" entries; empty means the built-in roster
	MinValueUSD          float64  // default threshold when the request omits one
	MaxPagesPerAddress   int
	MaxTransfersPerChain int
	MaxConcurrentChains  int
	ResponsePageSize     int
	TopWhales            int
	DefaultTimeRange     string
}

// ChainsConfig holds chain configuration
type ChainsConfig struct {
	Enabled      []string
	ExplorerURLs map[string]string // per-chain explorer base URL overrides
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns the host:port address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// InsightConfig holds LLM summarizer configuration
type InsightConfig struct {
	OpenAIAPIKey       string // empty disables the OpenAI summarizer
	Model              string
	MaxPromptTransfers int
	RequestTimeout     time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		DataSource: DataSourceConfig{
			Mode:           getEnv("DATA_SOURCE_MODE", "auto"),
			DeployEnv:      getEnv("DEPLOY_ENV", ""),
			EnableFallback: getEnvAsBool("DATA_SOURCE_ENABLE_FALLBACK", true),
			ProtocolURL:    getEnv("PROTOCOL_BRIDGE_URL", "ws://127.0.0.1:8400/ws"),
			ConnectTimeout: getEnvAsDuration("PROTOCOL_CONNECT_TIMEOUT", 10*time.Second),
			CallTimeout:    getEnvAsDuration("PROTOCOL_CALL_TIMEOUT", 30*time.Second),
		},
		Explorer: ExplorerConfig{
			APIKey:            getEnv("EXPLORER_API_KEY", ""),
			RequestTimeout:    getEnvAsDuration("EXPLORER_REQUEST_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvAsFloat("EXPLORER_REQUESTS_PER_SECOND", 5),
			Burst:             getEnvAsInt("EXPLORER_BURST", 5),
			MaxRetries:        getEnvAsInt("EXPLORER_MAX_RETRIES", 5),
		},
		Scan: ScanConfig{
			MonitoredAddresses:   getEnvAsSlice("MONITORED_ADDRESSES", nil),
			MinValueUSD:          getEnvAsFloat("SCAN_MIN_VALUE_USD", 1_000_000),
			MaxPagesPerAddress:   getEnvAsInt("SCAN_MAX_PAGES_PER_ADDRESS", 3),
			MaxTransfersPerChain: getEnvAsInt("SCAN_MAX_TRANSFERS_PER_CHAIN", 200),
			MaxConcurrentChains:  getEnvAsInt("SCAN_MAX_CONCURRENT_CHAINS", 5),
			ResponsePageSize:     getEnvAsInt("SCAN_RESPONSE_PAGE_SIZE", 100),
			TopWhales:            getEnvAsInt("SCAN_TOP_WHALES", 10),
			DefaultTimeRange:     getEnv("SCAN_DEFAULT_TIME_RANGE", "24h"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 60),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Insight: InsightConfig{
			OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
			Model:              getEnv("INSIGHT_MODEL", "gpt-4o-mini"),
			MaxPromptTransfers: getEnvAsInt("INSIGHT_MAX_PROMPT_TRANSFERS", 20),
			RequestTimeout:     getEnvAsDuration("INSIGHT_REQUEST_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Load chain configurations
	config.Chains = loadChainsConfig()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	switch c.DataSource.Mode {
	case "auto", "protocol", "rest":
	default:
		return fmt.Errorf("invalid DATA_SOURCE_MODE %q: expected auto, protocol or rest", c.DataSource.Mode)
	}
	if c.Scan.MinValueUSD < 0 {
		return fmt.Errorf("SCAN_MIN_VALUE_USD must not be negative")
	}
	if c.Scan.MaxPagesPerAddress < 1 {
		return fmt.Errorf("SCAN_MAX_PAGES_PER_ADDRESS must be at least 1")
	}
	if c.Scan.MaxConcurrentChains < 1 {
		return fmt.Errorf("SCAN_MAX_CONCURRENT_CHAINS must be at least 1")
	}
	if c.Scan.ResponsePageSize < 1 {
		return fmt.Errorf("SCAN_RESPONSE_PAGE_SIZE must be at least 1")
	}
	if c.Explorer.RequestsPerSecond <= 0 {
		return fmt.Errorf("EXPLORER_REQUESTS_PER_SECOND must be positive")
	}
	if len(c.Chains.Enabled) == 0 {
		return fmt.Errorf("ENABLED_CHAINS must not be empty")
	}
	return nil
}

// loadChainsConfig loads per-chain configuration
func loadChainsConfig() ChainsConfig {
	enabled := getEnvAsSlice("ENABLED_CHAINS", []string{"ethereum", "polygon", "arbitrum", "optimism", "base", "bnb"})

	urls := make(map[string]string)
	for _, chain := range enabled {
		key := fmt.Sprintf("CHAIN_%s_EXPLORER_URL", strings.ToUpper(chain))
		if url := os.Getenv(key); url != "" {
			urls[chain] = url
		}
	}

	return ChainsConfig{
		Enabled:      enabled,
		ExplorerURLs: urls,
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice gets an environment variable as a comma-separated list
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
