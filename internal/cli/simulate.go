package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/azure/follower-milestone-bot/internal/config"
	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/azure/follower-milestone-bot/internal/monitoring"
	"github.com/azure/follower-milestone-bot/internal/notifications"
	"github.com/azure/follower-milestone-bot/internal/sources"
	"github.com/azure/follower-milestone-bot/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run reconciliation passes against simulated counts in memory",
	Long: `Simulate seeds an in-memory store with demo profiles just below their
milestones and runs passes against the simulated count source. Notifications
are logged instead of delivered and nothing is persisted.`,
	RunE: runSimulate,
}

type demoProfile struct {
	platform  models.Platform
	handle    string
	base      int64
	milestone int64
}

var demoProfiles = []demoProfile{
	{models.PlatformTwitter, "gopher", 980, 1000},
	{models.PlatformInstagram, "gopher.photos", 4960, 5000},
	{models.PlatformYouTube, "gophertalks", 9990, 10000},
	{models.PlatformTwitter, "slowgrower", 1200, 2000},
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().Int("passes", 10, "Number of passes to run")
	simulateCmd.Flags().Int64("seed", 1, "Seed of the simulated count source")
	simulateCmd.Flags().Int("workers", 2, "Profiles reconciled concurrently")
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	passes, _ := cmd.Flags().GetInt("passes")
	seed, _ := cmd.Flags().GetInt64("seed")
	workers, _ := cmd.Flags().GetInt("workers")
	if passes < 1 {
		return fmt.Errorf("--passes must be at least 1")
	}
	if workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg := &config.Config{Workers: workers}
	store := storage.NewMemory()
	defer store.Close()

	source := sources.NewSimulatedSource(seed)
	for _, demo := range demoProfiles {
		profile := &models.TrackedProfile{
			Owner:                "demo",
			Platform:             demo.platform,
			Handle:               demo.handle,
			CurrentFollowerCount: demo.base,
		}
		if _, err := store.UpsertProfile(ctx, profile); err != nil {
			return err
		}
		rule := &models.AlertRule{
			ProfileID:          profile.ID,
			MilestoneFollowers: demo.milestone,
			Destination:        "@" + demo.handle,
			IsActive:           true,
		}
		if _, err := store.SetAlertRule(ctx, rule); err != nil {
			return err
		}
		source.SetBaseCount(demo.platform, demo.handle, demo.base)
	}

	engine := monitoring.NewService(cfg, store, source, notifications.NewService(cfg), nil)

	fmt.Fprintf(out, "Running %d simulated passes over %d profiles (seed %d)\n\n", passes, len(demoProfiles), seed)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PASS\tOK\tTRANSIENT\tFATAL\tALERTS")
	for i := 1; i <= passes; i++ {
		report, err := engine.RunPass(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\n", i,
			report.Count(models.OutcomeOK),
			report.Count(models.OutcomeSkippedTransient),
			report.Count(models.OutcomeSkippedFatal),
			report.AlertsFired())
		if report.Cancelled {
			break
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	profiles, err := store.ListProfiles(ctx, "demo")
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROFILE\tFOLLOWERS\tMILESTONE\tNOTIFIED")
	for _, p := range profiles {
		rule, err := store.GetAlertRule(ctx, p.ID)
		if err != nil {
			return err
		}
		sent, err := store.ListNotifications(ctx, storage.NotificationQuery{ProfileID: p.ID})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "@%s (%s)\t%s\t%s\t%d\n",
			p.Handle, p.Platform, humanize.Comma(p.CurrentFollowerCount), humanize.Comma(rule.MilestoneFollowers), len(sent))
	}
	return w.Flush()
}
