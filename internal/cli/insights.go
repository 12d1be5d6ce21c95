package cli

import (
	"encoding/json"
	"io"

	"github.com/azure/follower-milestone-bot/internal/insights"
	"github.com/spf13/cobra"
)

var insightsCmd = &cobra.Command{
	Use:   "insights <profile-id>",
	Short: "Show 24 hour follower change for a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runInsights,
}

var insightsTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Show profiles with the largest 24 hour follower change",
	RunE:  runInsightsTop,
}

func init() {
	rootCmd.AddCommand(insightsCmd)
	insightsCmd.AddCommand(insightsTopCmd)

	insightsTopCmd.Flags().StringP("owner", "o", "", "Only rank profiles of this owner")
	insightsTopCmd.Flags().IntP("limit", "n", 0, "Entries per list (default TOP_MOVERS_LIMIT)")
}

func runInsights(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := insights.NewCalculator(store).ProfileInsights(cmd.Context(), id)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runInsightsTop(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	owner, _ := cmd.Flags().GetString("owner")
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = cfg.TopMoversLimit
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	movers, err := insights.NewCalculator(store).TopMovers(cmd.Context(), owner, limit)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), movers)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
