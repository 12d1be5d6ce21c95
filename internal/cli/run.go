package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/azure/follower-milestone-bot/internal/insights"
	"github.com/azure/follower-milestone-bot/internal/scheduler"
	"github.com/azure/follower-milestone-bot/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile follower counts once or on a schedule",
	Long: `Run reconciliation passes over every tracked profile.

With --once a single pass runs and its report is printed. Otherwise passes
repeat every --interval seconds, measured from the end of the previous pass,
or on the --cron schedule, and the ops HTTP server is started. SIGINT and
SIGTERM stop the loop between passes.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("once", false, "Run a single pass and exit")
	runCmd.Flags().Int("interval", 0, "Seconds between passes (default CHECK_INTERVAL_SECONDS or 300)")
	runCmd.Flags().String("cron", "", "Cron expression to schedule passes instead of a fixed interval")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if once, _ := cmd.Flags().GetBool("once"); once {
		cfg.RunOnce = true
	}
	if interval, _ := cmd.Flags().GetInt("interval"); interval != 0 {
		cfg.CheckInterval = time.Duration(interval) * time.Second
	}
	if expr, _ := cmd.Flags().GetString("cron"); expr != "" {
		cfg.CheckSchedule = expr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := newEngine(ctx, cfg, store)
	if err != nil {
		return err
	}
	schedulerService := scheduler.NewService(engine)

	if cfg.RunOnce {
		report, err := schedulerService.RunOnce(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	}

	logrus.Info("Starting Follower Milestone Bot")

	calculator := insights.NewCalculator(store)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      server.New(ctx, engine, store, calculator, cfg.TopMoversLimit),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Errorf("HTTP server failed: %v", err)
			stop()
		}
	}()

	if cfg.CheckSchedule != "" {
		if err := schedulerService.Start(ctx, cfg.CheckSchedule); err != nil {
			return err
		}
		<-ctx.Done()
		schedulerService.Stop()
	} else if err := schedulerService.RunPeriodic(ctx, cfg.CheckInterval); err != nil {
		return err
	}

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}
	engine.WaitIdle()

	logrus.Info("Server exited")
	return nil
}
