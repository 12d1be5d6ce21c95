package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/azure/follower-milestone-bot/internal/sources"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe <platform> <handle>",
	Short: "Fetch one follower count through the configured sources",
	Long: `Probe checks connectivity of the count source serving a platform by
fetching a single follower count. Nothing is written to the database.`,
	Args: cobra.ExactArgs(2),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Duration("timeout", 30*time.Second, "Fetch timeout")
}

func runProbe(cmd *cobra.Command, args []string) error {
	platform, err := models.ParsePlatform(args[0])
	if err != nil {
		return err
	}
	handle := args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	router := sources.NewRouterFromConfig(cfg)
	src, ok := router.SourceFor(platform)
	if !ok {
		fmt.Fprintf(out, "%s: DISABLED (no source configured)\n", platform)
		return sources.ErrUnsupportedPlatform
	}

	fmt.Fprintf(out, "Probing @%s on %s via %s... ", handle, platform, src.GetName())
	result, err := src.FetchFollowerCount(ctx, platform, handle)
	if err != nil {
		fmt.Fprintf(out, "ERROR: %v\n", err)
		return err
	}

	fmt.Fprintf(out, "OK (%s followers)\n", humanize.Comma(result.FollowerCount))
	return nil
}
