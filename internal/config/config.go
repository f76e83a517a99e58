package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string

	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIMaxTokens   int
	OpenAITemperature float64
	OpenAITimeout     time.Duration

	GatewayBaseURL string
	GatewayAPIKey  string
	GatewayTimeout time.Duration

	AgentPersona     string
	HistoryWindow    int
	AvailabilityDays int

	IdempotencyWindow        time.Duration
	AllowConflictingBookings bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIMaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 300),
		OpenAITemperature: getEnvAsFloat("OPENAI_TEMPERATURE", 0.7),
		OpenAITimeout:     getEnvAsDuration("OPENAI_TIMEOUT", 30*time.Second),

		GatewayBaseURL: getEnv("GATEWAY_BASE_URL", ""),
		GatewayAPIKey:  getEnv("GATEWAY_API_KEY", ""),
		GatewayTimeout: getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),

		AgentPersona:     getEnv("AGENT_PERSONA", ""),
		HistoryWindow:    getEnvAsInt("HISTORY_WINDOW", 8),
		AvailabilityDays: getEnvAsInt("AVAILABILITY_DAYS", 7),

		IdempotencyWindow:        getEnvAsDuration("IDEMPOTENCY_WINDOW", 5*time.Minute),
		AllowConflictingBookings: getEnvAsBool("ALLOW_CONFLICTING_BOOKINGS", true),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
