package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/go-resty/resty/v2"
)

const youTubeAPIBaseURL = "https://www.googleapis.com"

// YouTubeSource reads channel subscriber counts from the YouTube Data API
type YouTubeSource struct {
	apiKey  string
	baseURL string
	client  *resty.Client
}

type youTubeChannelsResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			SubscriberCount       string `json:"subscriberCount"`
			HiddenSubscriberCount bool   `json:"hiddenSubscriberCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// NewYouTubeSource creates a new YouTube source
func NewYouTubeSource(apiKey string) *YouTubeSource {
	return &YouTubeSource{
		apiKey:  apiKey,
		baseURL: youTubeAPIBaseURL,
		client: resty.New().
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", "Follower-Milestone-Bot/1.0"),
	}
}

func (y *YouTubeSource) GetName() string {
	return "youtube"
}

func (y *YouTubeSource) IsEnabled() bool {
	return y.apiKey != ""
}

func (y *YouTubeSource) FetchFollowerCount(ctx context.Context, platform models.Platform, handle string) (*models.CountResult, error) {
	if platform != models.PlatformYouTube {
		return nil, fmt.Errorf("youtube source cannot serve %s: %w", platform, ErrUnsupportedPlatform)
	}
	if !y.IsEnabled() {
		return nil, fmt.Errorf("youtube source disabled - missing API key: %w", ErrUnsupportedPlatform)
	}

	resp, err := y.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part":      "statistics",
			"forHandle": "@" + strings.TrimPrefix(handle, "@"),
			"key":       y.apiKey,
		}).
		Get(y.baseURL + "/youtube/v3/channels")
	if err != nil {
		return nil, fmt.Errorf("youtube request failed: %v: %w", err, ErrTransient)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("youtube API returned status %d: %w", resp.StatusCode(), ErrTransient)
	}

	var channels youTubeChannelsResponse
	if err := json.Unmarshal(resp.Body(), &channels); err != nil {
		return nil, fmt.Errorf("failed to parse YouTube response: %v: %w", err, ErrTransient)
	}

	if len(channels.Items) == 0 {
		return nil, fmt.Errorf("youtube channel %s: %w", handle, ErrUnknownHandle)
	}

	stats := channels.Items[0].Statistics
	if stats.HiddenSubscriberCount {
		return nil, fmt.Errorf("youtube channel %s hides its subscriber count: %w", handle, ErrUnknownHandle)
	}

	count, err := strconv.ParseInt(stats.SubscriberCount, 10, 64)
	if err != nil || count < 0 {
		return nil, fmt.Errorf("invalid subscriber count %q: %w", stats.SubscriberCount, ErrTransient)
	}

	return &models.CountResult{
		Platform:      platform,
		Handle:        handle,
		FollowerCount: count,
		ObservedAt:    time.Now().UTC(),
	}, nil
}
