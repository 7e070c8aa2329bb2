// Package config loads runtime configuration from the environment
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Fikei1151/nia/pkg/validation"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all configuration for the nia service
type Config struct {
	Database DatabaseConfig `json:"database"`
	OpenAI   OpenAIConfig   `json:"openai"`
	App      AppConfig      `json:"app"`
}

type DatabaseConfig struct {
	Driver         string `json:"driver" validate:"oneof=postgres sqlite memory"`
	URL            string `json:"url" validate:"required_if=Driver postgres"`
	SQLitePath     string `json:"sqlite_path" validate:"required_if=Driver sqlite"`
	MaxConnections int    `json:"max_connections" validate:"min=1"`
	MinConnections int    `json:"min_connections" validate:"min=0"`
	TableName      string `json:"table_name" validate:"required"`

	// In-process store record encoding.
	MemoryCodec       string `json:"memory_codec" validate:"oneof=msgpack json"`
	MemoryCompression string `json:"memory_compression" validate:"oneof=none gzip zstd"`
}

type OpenAIConfig struct {
	APIKey      string        `json:"-"`
	BaseURL     string        `json:"base_url" validate:"omitempty,url"`
	Model       string        `json:"model" validate:"required"`
	MaxTokens   int           `json:"max_tokens" validate:"min=1"`
	Temperature float64       `json:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `json:"timeout"`
}

type AppConfig struct {
	Addr           string        `json:"addr" validate:"required"`
	LogLevel       string        `json:"log_level" validate:"oneof=debug info warn error"`
	LogFormat      string        `json:"log_format" validate:"oneof=json text"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:         strings.ToLower(getEnvWithDefault("DATABASE_DRIVER", DriverSQLite)),
			URL:            getEnvWithDefault("DATABASE_URL", ""),
			SQLitePath:     getEnvWithDefault("SQLITE_PATH", "nia.db"),
			MaxConnections: getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MinConnections: getEnvAsInt("DB_MIN_CONNECTIONS", 1),
			TableName:      getEnvWithDefault("CHECKPOINT_TABLE", "chat_history"),

			MemoryCodec:       strings.ToLower(getEnvWithDefault("MEMORY_CODEC", "msgpack")),
			MemoryCompression: strings.ToLower(getEnvWithDefault("MEMORY_COMPRESSION", "zstd")),
		},
		OpenAI: OpenAIConfig{
			APIKey:      getEnvWithDefault("OPENAI_API_KEY", ""),
			BaseURL:     getEnvWithDefault("OPENAI_BASE_URL", ""),
			Model:       getEnvWithDefault("OPENAI_MODEL", "gpt-4o-mini"),
			MaxTokens:   getEnvAsInt("OPENAI_MAX_TOKENS", 1024),
			Temperature: getEnvAsFloat("OPENAI_TEMPERATURE", 0.7),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
		},
		App: AppConfig{
			Addr:           getEnvWithDefault("NIA_ADDR", ":8080"),
			LogLevel:       strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
			LogFormat:      strings.ToLower(getEnvWithDefault("LOG_FORMAT", "json")),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 90*time.Second),
		},
	}

	if err := validation.ValidateStruct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field rules the tags cannot express
func (c *Config) Validate() error {
	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("DB_MIN_CONNECTIONS (%d) exceeds DB_MAX_CONNECTIONS (%d)",
			c.Database.MinConnections, c.Database.MaxConnections)
	}
	if c.App.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}

// HasOpenAI reports whether an API key was configured. The server still starts
// without one; turns then fail with a configuration error.
func (c *Config) HasOpenAI() bool {
	return c.OpenAI.APIKey != ""
}

// Helper functions for environment variable parsing

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
