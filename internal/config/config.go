package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Vital-signs service
	Host string
	Port int

	// Local cache (sqlite)
	CachePath string

	// Remote record store (PostgREST-style REST API). An empty RemoteURL
	// means no backend is configured and the engine runs local-only.
	RemoteURL    string
	RemoteAPIKey string

	// Service-role key used by the vital-signs job. Bypasses row-level
	// security, so it is never handed to the engine.
	ServiceRoleKey string

	// Shared secret guarding the /check-vital-signs endpoint
	InternalAPIKey string

	// Cron expression (5-field) for the scheduled reap
	ReaperSchedule string

	// Metrics
	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    int

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables. Nothing is required:
// an unset REMOTE_URL degrades the engine to offline mode instead of
// failing, per the local-first design.
func Load() (*Config, error) {
	cfg := &Config{
		Host:           getEnv("HOST", "localhost"),
		Port:           getEnvInt("PORT", 4201),
		CachePath:      getEnv("CACHE_PATH", "./cache.db"),
		RemoteURL:      os.Getenv("REMOTE_URL"),
		RemoteAPIKey:   os.Getenv("REMOTE_ANON_KEY"),
		ServiceRoleKey: os.Getenv("SERVICE_ROLE_KEY"),
		InternalAPIKey: os.Getenv("INTERNAL_API_KEY"),
		ReaperSchedule: getEnv("REAPER_SCHEDULE", "0 3 * * *"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsHost:    getEnv("METRICS_HOST", "localhost"),
		MetricsPort:    getEnvInt("METRICS_PORT", 9101),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	if cfg.RemoteURL != "" && cfg.RemoteAPIKey == "" {
		return nil, fmt.Errorf("REMOTE_ANON_KEY is required when REMOTE_URL is set")
	}

	return cfg, nil
}

// LoadService loads configuration for the vital-signs service, which cannot
// run without a backend. It fails fast if required variables are missing.
func LoadService() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	var missingVars []string
	if cfg.RemoteURL == "" {
		missingVars = append(missingVars, "REMOTE_URL")
	}
	if cfg.ServiceRoleKey == "" {
		missingVars = append(missingVars, "SERVICE_ROLE_KEY")
	}
	if cfg.InternalAPIKey == "" {
		missingVars = append(missingVars, "INTERNAL_API_KEY")
	}

	if len(missingVars) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	return cfg, nil
}

// Offline reports whether no remote store is configured.
func (c *Config) Offline() bool {
	return c.RemoteURL == ""
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
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

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
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
