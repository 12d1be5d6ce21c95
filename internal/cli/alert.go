package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/azure/follower-milestone-bot/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Manage milestone alerts",
}

var alertSetCmd = &cobra.Command{
	Use:   "set <profile-id>",
	Short: "Create or replace the milestone rule of a profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertSet,
}

var alertHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded milestone notifications",
	RunE:  runAlertHistory,
}

func init() {
	rootCmd.AddCommand(alertCmd)
	alertCmd.AddCommand(alertSetCmd)
	alertCmd.AddCommand(alertHistoryCmd)

	alertSetCmd.Flags().Int64P("milestone", "m", 0, "Follower count that triggers the alert")
	alertSetCmd.Flags().StringP("destination", "d", "", "Telegram chat id, email address or Teams webhook URL")
	alertSetCmd.Flags().Bool("disabled", false, "Store the rule as inactive")
	_ = alertSetCmd.MarkFlagRequired("milestone")

	alertHistoryCmd.Flags().Int64("profile", 0, "Only show notifications of this profile")
	alertHistoryCmd.Flags().StringP("owner", "o", "", "Only show notifications of this owner")
}

func runAlertSet(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	milestone, _ := cmd.Flags().GetInt64("milestone")
	destination, _ := cmd.Flags().GetString("destination")
	disabled, _ := cmd.Flags().GetBool("disabled")
	if milestone <= 0 {
		return fmt.Errorf("--milestone must be positive")
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

	rule := &models.AlertRule{
		ProfileID:          id,
		MilestoneFollowers: milestone,
		Destination:        destination,
		IsActive:           !disabled,
	}
	if _, err := store.SetAlertRule(cmd.Context(), rule); err != nil {
		return err
	}

	state := "active"
	if !rule.IsActive {
		state = "inactive"
	}
	target := rule.Destination
	if target == "" {
		target = "no destination"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Alert for profile %d set at %s followers (%s, %s)\n",
		id, humanize.Comma(rule.MilestoneFollowers), state, target)
	return nil
}

func runAlertHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	profileID, _ := cmd.Flags().GetInt64("profile")
	owner, _ := cmd.Flags().GetString("owner")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListNotifications(cmd.Context(), storage.NotificationQuery{ProfileID: profileID, Owner: owner})
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No milestone notifications recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROFILE\tMILESTONE\tFOLLOWERS\tSENT\tCREATED")
	for _, n := range list {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%t\t%s\n",
			n.ID, n.ProfileID, humanize.Comma(n.MilestoneFollowers), humanize.Comma(n.FollowerCountAtAlert), n.Sent, formatTime(n.CreatedAt))
	}
	return w.Flush()
}
