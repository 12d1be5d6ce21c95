package notifications

import (
	"fmt"
	"html"

	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/dustin/go-humanize"
)

// FormatMilestoneMessage renders the HTML message sent when a profile reaches
// its milestone
func FormatMilestoneMessage(handle string, platform models.Platform, milestone, currentCount int64) string {
	return fmt.Sprintf(
		"🎉 <b>Milestone Achieved!</b>\n\n"+
			"Profile: <b>@%s</b> (%s)\n"+
			"Reached: <b>%s</b> followers\n"+
			"Milestone: <b>%s</b> followers\n\n"+
			"Congratulations! 🚀",
		html.EscapeString(handle), platform,
		humanize.Comma(currentCount),
		humanize.Comma(milestone),
	)
}
