package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken         string
	DiscordApplicationID string

	// Code source API
	CodesAPIBase string

	// Database
	DatabasePath string

	// Polling
	PollIntervalSeconds int

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:         os.Getenv("DISCORD_TOKEN"),
		DiscordApplicationID: os.Getenv("CLIENT_ID"),
		CodesAPIBase:         os.Getenv("CODES_API_BASE"),
		DatabasePath:         getEnvOrDefault("DATABASE_PATH", "./data/bot.db"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
	}

	// Parse polling interval (reference cadence: every 5 minutes)
	pollStr := getEnvOrDefault("POLL_INTERVAL_SECONDS", "300")
	poll, err := strconv.Atoi(pollStr)
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL_SECONDS: %w", err)
	}
	cfg.PollIntervalSeconds = poll

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
