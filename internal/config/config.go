package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Schedule configuration
	CheckInterval time.Duration
	CheckSchedule string // optional cron expression, overrides CheckInterval
	RunOnce       bool
	Workers       int

	// Local database
	DatabasePath string

	// Pass report archive: Azure Blob Storage, or a local directory
	StorageAccount   string
	StorageContainer string
	ArchiveDir       string
	ArchiveRetention int

	// Count sources
	SimulateCounts     bool
	SimulationSeed     int64
	CountAPIURL        string
	CountAPIToken      string
	TwitterBearerToken string
	YouTubeAPIKey      string

	// Notification configuration
	TelegramBotToken string
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string

	// Insights
	TopMoversLimit int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		CheckInterval: time.Duration(getIntEnv("CHECK_INTERVAL_SECONDS", 300)) * time.Second,
		CheckSchedule: getEnv("CHECK_SCHEDULE", ""),
		Workers:       getIntEnv("WORKERS", 1),

		DatabasePath: getEnv("DATABASE_PATH", "data/followers.db"),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "follower-passes"),
		ArchiveDir:       getEnv("ARCHIVE_DIR", ""),
		ArchiveRetention: getIntEnv("ARCHIVE_RETENTION", 500),

		SimulateCounts:     getBoolEnv("SIMULATE_COUNTS", true),
		SimulationSeed:     getInt64Env("SIMULATION_SEED", time.Now().UnixNano()),
		CountAPIURL:        getEnv("COUNT_API_URL", ""),
		CountAPIToken:      getEnv("COUNT_API_TOKEN", ""),
		TwitterBearerToken: getEnv("TWITTER_BEARER_TOKEN", ""),
		YouTubeAPIKey:      getEnv("YOUTUBE_API_KEY", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getIntEnv("SMTP_PORT", 587),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),

		TopMoversLimit: getIntEnv("TOP_MOVERS_LIMIT", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for inconsistent values. It is exported so
// that flag overrides applied after Load can be re-checked.
func (c *Config) Validate() error {
	if c.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL_SECONDS must be positive")
	}

	if c.CheckSchedule != "" {
		if _, err := cron.ParseStandard(c.CheckSchedule); err != nil {
			return fmt.Errorf("CHECK_SCHEDULE is not a valid cron expression: %w", err)
		}
	}

	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1")
	}

	if c.TopMoversLimit < 1 {
		return fmt.Errorf("TOP_MOVERS_LIMIT must be at least 1")
	}

	if c.SMTPHost != "" && (c.SMTPUsername == "" || c.SMTPPassword == "") {
		return fmt.Errorf("SMTP_USERNAME and SMTP_PASSWORD are required when SMTP_HOST is set")
	}

	if (c.StorageAccount != "" || c.ArchiveDir != "") && c.ArchiveRetention < 1 {
		return fmt.Errorf("ARCHIVE_RETENTION must be at least 1 when an archive is configured")
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
