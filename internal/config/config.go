// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// server mode, external API keys, timeouts and bot constraints.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// LINE Bot Configuration
	LineChannelToken  string
	LineChannelSecret string

	// AI itinerary generation
	GeminiAPIKey string // Primary provider (Gemini)
	OpenAIAPIKey string // Fallback provider (OpenAI)
	GeminiModel  string // Optional model override
	OpenAIModel  string // Optional model override

	// External APIs
	OpenWeatherAPIKey  string
	GooglePlacesAPIKey string

	// Sentry
	SentryDSN string

	// Metrics Authentication
	MetricsUsername string // Username for /metrics Basic Auth (default: "prometheus")
	MetricsPassword string // Password for /metrics Basic Auth (empty = no auth)

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Data Configuration
	DataDir string // Data directory for the SQLite database

	// External API client settings
	APITimeout    time.Duration
	APIMaxRetries int

	// Bot Configuration (embedded)
	Bot BotConfig
}

// BotConfig holds bot-specific configuration
type BotConfig struct {
	// Timeouts
	WebhookTimeout time.Duration // Timeout for webhook bot processing (see timeouts.go)

	// Conversation flow timeouts
	FlowTimeout         time.Duration // Inactivity deadline for multi-step flows (default: 10m)
	ReminderFlowTimeout time.Duration // Inactivity deadline for single-step reminder flows (default: 5m)

	// Rate Limits (Token Bucket Algorithm)
	UserRateLimitBurst        float64 // Maximum burst tokens per user (default: 15)
	UserRateLimitRefillPerSec float64 // Tokens refilled per second (default: 0.1 = 1 per 10s)
	GlobalRateRPS             float64 // Global reply rate limit in requests per second (default: 100)

	// AI generation limits
	TourRateLimitBurst     float64 // Burst tokens for itinerary generation per user (default: 3)
	TourRateRefillPerHour  float64 // Itinerary tokens refilled per hour (default: 6)
	MaxConcurrentTourJobs  int     // In-flight async generation jobs (default: 8)
	WeatherCacheTTLMinutes int     // Weather lookup cache TTL in minutes (default: 10)

	// LINE API Constraints
	MaxMessagesPerReply int // Maximum messages per reply (LINE API limit: 5)
	MaxEventsPerWebhook int // Maximum events per webhook (default: 100)
	MinReplyTokenLength int // Minimum reply token length (default: 10)
	MaxMessageLength    int // Maximum message length (LINE API limit: 20000)
	MaxPostbackDataSize int // Maximum postback data size (LINE API limit: 300)

	// Business Limits
	MaxGroupsPerList    int // Maximum groups shown in a list reply (default: 10)
	MaxRemindersPerUser int // Maximum health reminders per user (default: 20)
	MaxTourPlansPerUser int // Maximum saved tour plans per user (default: 10)
	MaxFamilyLinks      int // Maximum family links per user (default: 10)
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		LineChannelToken:  getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineChannelSecret: getEnv("LINE_CHANNEL_SECRET", ""),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", ""),

		OpenWeatherAPIKey:  getEnv("OPENWEATHER_API_KEY", ""),
		GooglePlacesAPIKey: getEnv("GOOGLE_PLACES_API_KEY", ""),

		SentryDSN: getEnv("SENTRY_DSN", ""),

		MetricsUsername: getEnv("METRICS_USERNAME", "prometheus"),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		Port:            getEnv("PORT", "10000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", GracefulShutdown),

		DataDir: getEnv("DATA_DIR", "./data"),

		APITimeout:    getDurationEnv("API_TIMEOUT", ExternalAPIRequest),
		APIMaxRetries: getIntEnv("API_MAX_RETRIES", 3),

		Bot: BotConfig{
			WebhookTimeout:            getDurationEnv("WEBHOOK_TIMEOUT", WebhookProcessing),
			FlowTimeout:               getDurationEnv("FLOW_TIMEOUT", 10*time.Minute),
			ReminderFlowTimeout:       getDurationEnv("REMINDER_FLOW_TIMEOUT", 5*time.Minute),
			UserRateLimitBurst:        getFloatEnv("USER_RATE_LIMIT_BURST", 15.0),
			UserRateLimitRefillPerSec: getFloatEnv("USER_RATE_LIMIT_REFILL_PER_SEC", 0.1), // 1 per 10s
			GlobalRateRPS:             getFloatEnv("GLOBAL_RATE_LIMIT_RPS", 100.0),
			TourRateLimitBurst:        getFloatEnv("TOUR_RATE_LIMIT_BURST", 3.0),
			TourRateRefillPerHour:     getFloatEnv("TOUR_RATE_REFILL_PER_HOUR", 6.0),
			MaxConcurrentTourJobs:     getIntEnv("MAX_CONCURRENT_TOUR_JOBS", 8),
			WeatherCacheTTLMinutes:    getIntEnv("WEATHER_CACHE_TTL_MINUTES", 10),
			MaxMessagesPerReply:       LINEMaxMessagesPerReply,
			MaxEventsPerWebhook:       100,
			MinReplyTokenLength:       10,
			MaxMessageLength:          LINEMaxTextMessageLength,
			MaxPostbackDataSize:       LINEMaxPostbackDataLength,
			MaxGroupsPerList:          10,
			MaxRemindersPerUser:       20,
			MaxTourPlansPerUser:       10,
			MaxFamilyLinks:            10,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LINE API constraint constants
const (
	LINEMaxMessagesPerReply   = 5
	LINEMaxTextMessageLength  = 20000
	LINEMaxPostbackDataLength = 300
)

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.LineChannelToken == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_ACCESS_TOKEN is required"))
	}
	if c.LineChannelSecret == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_SECRET is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	if c.APITimeout <= 0 {
		errs = append(errs, fmt.Errorf("API_TIMEOUT must be positive, got %v", c.APITimeout))
	}
	if c.APIMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("API_MAX_RETRIES cannot be negative, got %d", c.APIMaxRetries))
	}
	if err := c.Bot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bot config: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks bot configuration invariants
func (b *BotConfig) Validate() error {
	var errs []error

	if b.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %v", b.WebhookTimeout))
	}
	if b.FlowTimeout <= 0 {
		errs = append(errs, fmt.Errorf("FLOW_TIMEOUT must be positive, got %v", b.FlowTimeout))
	}
	if b.ReminderFlowTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REMINDER_FLOW_TIMEOUT must be positive, got %v", b.ReminderFlowTimeout))
	}
	if b.UserRateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("USER_RATE_LIMIT_BURST must be positive, got %v", b.UserRateLimitBurst))
	}
	if b.MaxMessagesPerReply <= 0 || b.MaxMessagesPerReply > LINEMaxMessagesPerReply {
		errs = append(errs, fmt.Errorf("MaxMessagesPerReply must be in [1,%d], got %d", LINEMaxMessagesPerReply, b.MaxMessagesPerReply))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "carelink.db")
}

// HasAIProvider returns true if at least one AI provider is configured.
func (c *Config) HasAIProvider() bool {
	return c.GeminiAPIKey != "" || c.OpenAIAPIKey != ""
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
