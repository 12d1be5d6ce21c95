package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/azure/follower-milestone-bot/internal/config"
	"github.com/azure/follower-milestone-bot/internal/monitoring"
	"github.com/azure/follower-milestone-bot/internal/notifications"
	"github.com/azure/follower-milestone-bot/internal/sources"
	"github.com/azure/follower-milestone-bot/internal/storage"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "follower-bot",
	Short: "Follower Milestone Bot - follower count tracking with milestone alerts",
	Long: `Follower Milestone Bot polls follower counts for registered social media
profiles, keeps an append-only history of every observation and sends a
one-time notification when a profile reaches its configured milestone.`,
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env and the environment and configures logging
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})
}

func openStore(cfg *config.Config) (*storage.SQLite, error) {
	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.DatabasePath, err)
	}
	return store, nil
}

// openArchive returns the configured pass report archive, or nil when none is
func openArchive(ctx context.Context, cfg *config.Config) (storage.ArchiveStorage, error) {
	switch {
	case cfg.StorageAccount != "":
		return storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
	case cfg.ArchiveDir != "":
		return storage.NewLocalArchive(cfg.ArchiveDir)
	default:
		logrus.Info("No pass report archive configured")
		return nil, nil
	}
}

// newEngine wires the reconciliation service from configuration
func newEngine(ctx context.Context, cfg *config.Config, store storage.Store) (*monitoring.Service, error) {
	router := sources.NewRouterFromConfig(cfg)
	if !router.IsEnabled() {
		return nil, fmt.Errorf("no count source available: set SIMULATE_COUNTS=true or configure an API")
	}

	archive, err := openArchive(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive: %w", err)
	}

	channel := notifications.NewService(cfg)
	return monitoring.NewService(cfg, store, router, channel, archive), nil
}
