package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 300*time.Second, cfg.CheckInterval)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 5, cfg.TopMoversLimit)
	assert.True(t, cfg.SimulateCounts)
	assert.Empty(t, cfg.CheckSchedule)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CHECK_INTERVAL_SECONDS", "60")
	t.Setenv("CHECK_SCHEDULE", "*/5 * * * *")
	t.Setenv("WORKERS", "4")
	t.Setenv("SIMULATE_COUNTS", "false")
	t.Setenv("SIMULATION_SEED", "42")
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.CheckInterval)
	assert.Equal(t, "*/5 * * * *", cfg.CheckSchedule)
	assert.Equal(t, 4, cfg.Workers)
	assert.False(t, cfg.SimulateCounts)
	assert.Equal(t, int64(42), cfg.SimulationSeed)
	assert.Equal(t, "token", cfg.TelegramBotToken)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{CheckInterval: time.Minute, Workers: 1, TopMoversLimit: 5, ArchiveRetention: 10}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "Valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:    "Zero interval",
			mutate:  func(c *Config) { c.CheckInterval = 0 },
			wantErr: "CHECK_INTERVAL_SECONDS",
		},
		{
			name:    "Invalid cron expression",
			mutate:  func(c *Config) { c.CheckSchedule = "every five minutes" },
			wantErr: "CHECK_SCHEDULE",
		},
		{
			name:    "No workers",
			mutate:  func(c *Config) { c.Workers = 0 },
			wantErr: "WORKERS",
		},
		{
			name:    "SMTP host without credentials",
			mutate:  func(c *Config) { c.SMTPHost = "smtp.example.com" },
			wantErr: "SMTP_USERNAME",
		},
		{
			name: "Archive without retention",
			mutate: func(c *Config) {
				c.StorageAccount = "acct"
				c.ArchiveRetention = 0
			},
			wantErr: "ARCHIVE_RETENTION",
		},
		{
			name: "Local archive without retention",
			mutate: func(c *Config) {
				c.ArchiveDir = "/tmp/passes"
				c.ArchiveRetention = -1
			},
			wantErr: "ARCHIVE_RETENTION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
