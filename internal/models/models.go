package models

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the social network a profile lives on
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformYouTube   Platform = "youtube"
)

// ParsePlatform validates a platform name
func ParsePlatform(value string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(value))); p {
	case PlatformTwitter, PlatformInstagram, PlatformYouTube:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported platform %q", value)
	}
}

// TrackedProfile is a social media account whose follower count is polled
type TrackedProfile struct {
	ID                   int64      `json:"id"`
	Owner                string     `json:"owner"`
	Platform             Platform   `json:"platform"`
	Handle               string     `json:"handle"`
	CurrentFollowerCount int64      `json:"current_follower_count"`
	LastChecked          *time.Time `json:"last_checked"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// AlertRule is the single milestone rule attached to a profile
type AlertRule struct {
	ID                 int64     `json:"id"`
	ProfileID          int64     `json:"profile_id"`
	MilestoneFollowers int64     `json:"milestone_followers"`
	Destination        string    `json:"destination,omitempty"` // telegram chat id, email or webhook URL
	IsActive           bool      `json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// FollowerSample is one recorded observation. Samples are never updated.
type FollowerSample struct {
	ID            int64     `json:"id"`
	ProfileID     int64     `json:"profile_id"`
	FollowerCount int64     `json:"follower_count"`
	RecordedAt    time.Time `json:"recorded_at"`
}

// AlertNotification records that a milestone was reached
type AlertNotification struct {
	ID                   int64     `json:"id"`
	ProfileID            int64     `json:"profile_id"`
	MilestoneFollowers   int64     `json:"milestone_followers"`
	FollowerCountAtAlert int64     `json:"follower_count_at_alert"`
	Message              string    `json:"message"`
	Sent                 bool      `json:"sent"`
	CreatedAt            time.Time `json:"created_at"`
}

// CountResult is what a count source returns for one profile
type CountResult struct {
	Platform      Platform  `json:"platform"`
	Handle        string    `json:"handle"`
	FollowerCount int64     `json:"follower_count"`
	ObservedAt    time.Time `json:"observed_at"`
}

// Outcome classifies how one profile fared during a reconciliation pass
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeSkippedTransient Outcome = "skipped-transient"
	OutcomeSkippedFatal     Outcome = "skipped-fatal"
)

// ProfileResult is the per-profile entry in a PassReport
type ProfileResult struct {
	ProfileID     int64    `json:"profile_id"`
	Platform      Platform `json:"platform"`
	Handle        string   `json:"handle"`
	Outcome       Outcome  `json:"outcome"`
	PreviousCount int64    `json:"previous_count"`
	FollowerCount int64    `json:"follower_count"`
	AlertFired    bool     `json:"alert_fired"`
	Milestone     int64    `json:"milestone,omitempty"`
	Delivered     bool     `json:"delivered"`
	Error         string   `json:"error,omitempty"`
}

// PassReport summarises one reconciliation pass over all profiles
type PassReport struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Cancelled  bool            `json:"cancelled"`
	Results    []ProfileResult `json:"results"`
}

// Count returns how many results have the given outcome
func (r *PassReport) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// AlertsFired returns how many milestone alerts were created in the pass
func (r *PassReport) AlertsFired() int {
	n := 0
	for _, res := range r.Results {
		if res.AlertFired {
			n++
		}
	}
	return n
}

// ProfileInsights is the 24h view of a single profile
type ProfileInsights struct {
	ProfileID                   int64            `json:"profile_id"`
	Handle                      string           `json:"username"`
	Platform                    Platform         `json:"platform"`
	CurrentFollowerCount        int64            `json:"current_follower_count"`
	LastChecked                 *time.Time       `json:"last_checked"`
	FollowerChange24h           int64            `json:"follower_change_24h"`
	FollowerChangePercentage24h float64          `json:"follower_change_percentage_24h"`
	RecentHistory               []FollowerSample `json:"recent_history"`
}

// Mover describes one profile's change over the insights window
type Mover struct {
	ProfileID                int64    `json:"profile_id"`
	Handle                   string   `json:"username"`
	Platform                 Platform `json:"platform"`
	FollowerChange           int64    `json:"follower_change"`
	FollowerChangePercentage float64  `json:"follower_change_percentage"`
	OldCount                 int64    `json:"old_count"`
	NewCount                 int64    `json:"new_count"`
}

// TopMovers ranks profiles by follower change
type TopMovers struct {
	TopIncreases []Mover `json:"top_increases"`
	TopDecreases []Mover `json:"top_decreases"`
	Period       string  `json:"period"`
}
