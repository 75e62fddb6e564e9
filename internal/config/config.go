package config

import (
	"fmt"
	"os"
	"strings"
)

// Config holds server configuration loaded from environment variables.
type Config struct {
	Port            string
	Env             string
	DatabaseURL     string
	SessionStoreURL string
	AIModelPath     string
	LLMAPIURL       string
	LLMAPIKey       string
}

// Load reads configuration from the environment. DATABASE_URL and
// SESSION_STORE_URL have no safe defaults; loading fails with every missing
// name listed so a bad deployment is diagnosed in one pass.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            envOrDefault("PORT", "3000"),
		Env:             envOrDefault("ENV", "development"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SessionStoreURL: os.Getenv("SESSION_STORE_URL"),
		AIModelPath:     os.Getenv("AI_MODEL_PATH"),
		LLMAPIURL:       envOrDefault("LLM_API_URL", "https://api.openai.com/v1"),
		LLMAPIKey:       os.Getenv("LLM_API_KEY"),
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.SessionStoreURL == "" {
		missing = append(missing, "SESSION_STORE_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// IsDevelopment reports whether the server is running outside production.
func (c *Config) IsDevelopment() bool {
	return c.Env != "production"
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
