package insights

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/azure/follower-milestone-bot/internal/storage"
)

const (
	// Window is the period insights are computed over
	Window = 24 * time.Hour
	// RecentHistoryLimit is how many samples a profile's insights include
	RecentHistoryLimit = 10
	// DefaultTopMoversLimit caps each top movers list when no limit is given
	DefaultTopMoversLimit = 5

	windowLabel = "24 hours"
)

// Store is the read access insights need
type Store interface {
	GetProfile(ctx context.Context, id int64) (*models.TrackedProfile, error)
	ListProfiles(ctx context.Context, owner string) ([]models.TrackedProfile, error)
	ListSamples(ctx context.Context, query storage.SampleQuery) ([]models.FollowerSample, error)
}

// Calculator derives read-only follower analytics from recorded samples
type Calculator struct {
	store Store
	now   func() time.Time
}

// NewCalculator creates a calculator over store
func NewCalculator(store Store) *Calculator {
	return &Calculator{
		store: store,
		now:   time.Now,
	}
}

// SetClock replaces the time source used to place the window
func (c *Calculator) SetClock(now func() time.Time) {
	c.now = now
}

// PercentageChange returns the change from oldCount to newCount in percent,
// rounded to two decimals. A zero baseline yields 0.
func PercentageChange(oldCount, newCount int64) float64 {
	if oldCount == 0 {
		return 0
	}
	return roundTo2(float64(newCount-oldCount) / float64(oldCount) * 100)
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ProfileInsights compares a profile's current count with its count at the
// start of the window. The baseline is the oldest sample recorded at or
// before that moment; without one the change is zero.
func (c *Calculator) ProfileInsights(ctx context.Context, profileID int64) (*models.ProfileInsights, error) {
	profile, err := c.store.GetProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}

	baseline, err := c.store.ListSamples(ctx, storage.SampleQuery{
		ProfileID: profileID,
		Until:     c.now().Add(-Window),
		Limit:     1,
		Ascending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline sample: %w", err)
	}

	oldCount := profile.CurrentFollowerCount
	if len(baseline) > 0 {
		oldCount = baseline[0].FollowerCount
	}

	recent, err := c.store.ListSamples(ctx, storage.SampleQuery{
		ProfileID: profileID,
		Limit:     RecentHistoryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load recent samples: %w", err)
	}
	if recent == nil {
		recent = []models.FollowerSample{}
	}

	return &models.ProfileInsights{
		ProfileID:                   profile.ID,
		Handle:                      profile.Handle,
		Platform:                    profile.Platform,
		CurrentFollowerCount:        profile.CurrentFollowerCount,
		LastChecked:                 profile.LastChecked,
		FollowerChange24h:           profile.CurrentFollowerCount - oldCount,
		FollowerChangePercentage24h: PercentageChange(oldCount, profile.CurrentFollowerCount),
		RecentHistory:               recent,
	}, nil
}

// OwnerInsights returns ProfileInsights for every profile of owner
func (c *Calculator) OwnerInsights(ctx context.Context, owner string) ([]models.ProfileInsights, error) {
	profiles, err := c.store.ListProfiles(ctx, owner)
	if err != nil {
		return nil, err
	}

	result := make([]models.ProfileInsights, 0, len(profiles))
	for _, p := range profiles {
		insight, err := c.ProfileInsights(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, *insight)
	}
	return result, nil
}

// TopMovers ranks the profiles of owner (all profiles when empty) by the
// change between their earliest and latest sample inside the window. Only
// profiles with at least two samples in the window take part. Increases are
// sorted largest first, decreases most negative first, ties keep profile order.
func (c *Calculator) TopMovers(ctx context.Context, owner string, limit int) (*models.TopMovers, error) {
	if limit <= 0 {
		limit = DefaultTopMoversLimit
	}

	profiles, err := c.store.ListProfiles(ctx, owner)
	if err != nil {
		return nil, err
	}

	since := c.now().Add(-Window)
	increases := []models.Mover{}
	decreases := []models.Mover{}

	for _, p := range profiles {
		samples, err := c.store.ListSamples(ctx, storage.SampleQuery{ProfileID: p.ID, Since: since})
		if err != nil {
			return nil, fmt.Errorf("failed to load samples for profile %d: %w", p.ID, err)
		}
		if len(samples) < 2 {
			continue
		}

		// samples are newest first
		latest, earliest := samples[0], samples[len(samples)-1]
		mover := models.Mover{
			ProfileID:                p.ID,
			Handle:                   p.Handle,
			Platform:                 p.Platform,
			FollowerChange:           latest.FollowerCount - earliest.FollowerCount,
			FollowerChangePercentage: PercentageChange(earliest.FollowerCount, latest.FollowerCount),
			OldCount:                 earliest.FollowerCount,
			NewCount:                 latest.FollowerCount,
		}

		switch {
		case mover.FollowerChange > 0:
			increases = append(increases, mover)
		case mover.FollowerChange < 0:
			decreases = append(decreases, mover)
		}
	}

	sort.SliceStable(increases, func(i, j int) bool {
		return increases[i].FollowerChange > increases[j].FollowerChange
	})
	sort.SliceStable(decreases, func(i, j int) bool {
		return decreases[i].FollowerChange < decreases[j].FollowerChange
	})

	return &models.TopMovers{
		TopIncreases: truncate(increases, limit),
		TopDecreases: truncate(decreases, limit),
		Period:       windowLabel,
	}, nil
}

func truncate(movers []models.Mover, limit int) []models.Mover {
	if len(movers) > limit {
		return movers[:limit]
	}
	return movers
}
