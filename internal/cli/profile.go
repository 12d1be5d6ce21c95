package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage tracked profiles",
}

var profileAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Track a profile, or reset the count of an existing one",
	RunE:  runProfileAdd,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked profiles",
	RunE:  runProfileList,
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <profile-id>",
	Short: "Stop tracking a profile and delete its history",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileRemove,
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileAddCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileRemoveCmd)

	profileAddCmd.Flags().StringP("owner", "o", "", "Owner of the profile")
	profileAddCmd.Flags().StringP("platform", "p", "", "Platform (twitter, instagram, youtube)")
	profileAddCmd.Flags().String("handle", "", "Account handle")
	profileAddCmd.Flags().Int64("followers", 0, "Initial follower count")
	_ = profileAddCmd.MarkFlagRequired("owner")
	_ = profileAddCmd.MarkFlagRequired("platform")
	_ = profileAddCmd.MarkFlagRequired("handle")

	profileListCmd.Flags().StringP("owner", "o", "", "Only list profiles of this owner")
}

func runProfileAdd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	owner, _ := cmd.Flags().GetString("owner")
	platformName, _ := cmd.Flags().GetString("platform")
	handle, _ := cmd.Flags().GetString("handle")
	followers, _ := cmd.Flags().GetInt64("followers")

	platform, err := models.ParsePlatform(platformName)
	if err != nil {
		return err
	}
	if followers < 0 {
		return fmt.Errorf("--followers must not be negative")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	profile := &models.TrackedProfile{
		Owner:                owner,
		Platform:             platform,
		Handle:               handle,
		CurrentFollowerCount: followers,
	}
	created, err := store.UpsertProfile(cmd.Context(), profile)
	if err != nil {
		return err
	}

	verb := "Updated"
	if created {
		verb = "Created"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s profile %d: @%s on %s with %s followers\n",
		verb, profile.ID, profile.Handle, profile.Platform, humanize.Comma(profile.CurrentFollowerCount))
	return nil
}

func runProfileList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	owner, _ := cmd.Flags().GetString("owner")

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	profiles, err := store.ListProfiles(cmd.Context(), owner)
	if err != nil {
		return err
	}

	if len(profiles) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No profiles tracked.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOWNER\tPLATFORM\tHANDLE\tFOLLOWERS\tLAST CHECKED")
	for _, p := range profiles {
		lastChecked := "never"
		if p.LastChecked != nil {
			lastChecked = humanize.Time(*p.LastChecked)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t@%s\t%s\t%s\n",
			p.ID, p.Owner, p.Platform, p.Handle, humanize.Comma(p.CurrentFollowerCount), lastChecked)
	}
	return w.Flush()
}

func runProfileRemove(cmd *cobra.Command, args []string) error {
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

	if err := store.DeleteProfile(cmd.Context(), id); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed profile %d\n", id)
	return nil
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid profile id %q", value)
	}
	return id, nil
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
