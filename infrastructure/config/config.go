package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the relay's process-level configuration, loaded once at
// startup from environment variables. Runtime-tunable limits live in the
// limits file instead; see Limits.
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// WebSocket configuration
	ReadBufferSize  int
	WriteBufferSize int

	// LimitsPath points at the hot-reloadable limits file. Empty disables
	// watching and the built-in defaults apply.
	LimitsPath string

	// Logging
	LogLevel string

	// Feature flags
	EnableMetrics bool
	EnableCORS    bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		ReadBufferSize:  getEnvInt("WS_READ_BUFFER_SIZE", 1024),
		WriteBufferSize: getEnvInt("WS_WRITE_BUFFER_SIZE", 1024),

		LimitsPath: getEnv("LIMITS_PATH", ""),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.ServerAddress == "" {
		return fmt.Errorf("SERVER_ADDRESS must not be empty")
	}
	if c.ReadBufferSize <= 0 || c.WriteBufferSize <= 0 {
		return fmt.Errorf("websocket buffer sizes must be positive")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
