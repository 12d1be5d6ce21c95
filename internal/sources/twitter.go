package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const twitterAPIBaseURL = "https://api.twitter.com"

// TwitterSource reads follower counts from the Twitter/X v2 users API
type TwitterSource struct {
	bearerToken string
	baseURL     string
	client      *resty.Client
}

type twitterUserResponse struct {
	Data *struct {
		ID            string `json:"id"`
		Username      string `json:"username"`
		PublicMetrics struct {
			FollowersCount *int64 `json:"followers_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// NewTwitterSource creates a new Twitter source
func NewTwitterSource(bearerToken string) *TwitterSource {
	return &TwitterSource{
		bearerToken: bearerToken,
		baseURL:     twitterAPIBaseURL,
		client: resty.New().
			SetTimeout(30*time.Second).
			SetHeader("User-Agent", "Follower-Milestone-Bot/1.0"),
	}
}

func (t *TwitterSource) GetName() string {
	return "twitter"
}

func (t *TwitterSource) IsEnabled() bool {
	return t.bearerToken != ""
}

func (t *TwitterSource) FetchFollowerCount(ctx context.Context, platform models.Platform, handle string) (*models.CountResult, error) {
	if platform != models.PlatformTwitter {
		return nil, fmt.Errorf("twitter source cannot serve %s: %w", platform, ErrUnsupportedPlatform)
	}
	if !t.IsEnabled() {
		return nil, fmt.Errorf("twitter source disabled - missing bearer token: %w", ErrUnsupportedPlatform)
	}

	username := strings.TrimPrefix(handle, "@")
	lookupURL := fmt.Sprintf("%s/2/users/by/username/%s?user.fields=public_metrics", t.baseURL, url.PathEscape(username))

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+t.bearerToken).
		Get(lookupURL)
	if err != nil {
		return nil, fmt.Errorf("twitter request failed: %v: %w", err, ErrTransient)
	}

	// Rate limiting: skip this profile for the pass instead of waiting
	if resp.StatusCode() == 429 {
		if resetTime := resp.Header().Get("x-rate-limit-reset"); resetTime != "" {
			logrus.Infof("Twitter rate limit will reset at: %s", resetTime)
		}
		return nil, fmt.Errorf("twitter API rate limit hit for @%s: %w", username, ErrTransient)
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("twitter API returned status %d: %s: %w", resp.StatusCode(), string(resp.Body()), ErrTransient)
	}

	var user twitterUserResponse
	if err := json.Unmarshal(resp.Body(), &user); err != nil {
		return nil, fmt.Errorf("failed to parse Twitter response: %v: %w", err, ErrTransient)
	}

	if user.Data == nil {
		if len(user.Errors) > 0 {
			logrus.Debugf("Twitter lookup for @%s: %s", username, user.Errors[0].Detail)
		}
		return nil, fmt.Errorf("twitter user @%s: %w", username, ErrUnknownHandle)
	}

	followers := user.Data.PublicMetrics.FollowersCount
	if followers == nil || *followers < 0 {
		return nil, fmt.Errorf("twitter response has no follower count for @%s: %w", username, ErrTransient)
	}

	return &models.CountResult{
		Platform:      platform,
		Handle:        handle,
		FollowerCount: *followers,
		ObservedAt:    time.Now().UTC(),
	}, nil
}
