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

// HTTPSource reads follower counts from a JSON endpoint of the form
// GET {baseURL}/followers/{platform}/{handle}
type HTTPSource struct {
	baseURL string
	token   string
	client  *resty.Client
}

type httpCountResponse struct {
	FollowerCount *int64 `json:"follower_count"`
	ObservedAt    string `json:"observed_at"`
}

// NewHTTPSource creates a source backed by a generic count API
func NewHTTPSource(baseURL, token string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: resty.New().
			SetTimeout(15*time.Second).
			SetHeader("User-Agent", "Follower-Milestone-Bot/1.0"),
	}
}

func (h *HTTPSource) GetName() string {
	return "http"
}

func (h *HTTPSource) IsEnabled() bool {
	return h.baseURL != ""
}

func (h *HTTPSource) FetchFollowerCount(ctx context.Context, platform models.Platform, handle string) (*models.CountResult, error) {
	if !h.IsEnabled() {
		return nil, fmt.Errorf("http source has no base URL: %w", ErrUnsupportedPlatform)
	}

	endpoint := fmt.Sprintf("%s/followers/%s/%s", h.baseURL, url.PathEscape(string(platform)), url.PathEscape(handle))

	req := h.client.R().SetContext(ctx)
	if h.token != "" {
		req.SetHeader("Authorization", "Bearer "+h.token)
	}

	resp, err := req.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("request %s: %v: %w", endpoint, err, ErrTransient)
	}

	if resp.StatusCode() == 404 {
		return nil, fmt.Errorf("%s/%s: %w", platform, handle, ErrUnknownHandle)
	}

	if resp.StatusCode() != 200 {
		logrus.Debugf("Count API error for %s/%s: status %d, body: %s", platform, handle, resp.StatusCode(), string(resp.Body()))
		return nil, fmt.Errorf("count API returned status %d: %w", resp.StatusCode(), ErrTransient)
	}

	var body httpCountResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("failed to parse count response: %v: %w", err, ErrTransient)
	}

	if body.FollowerCount == nil || *body.FollowerCount < 0 {
		return nil, fmt.Errorf("count response missing a non-negative follower_count: %w", ErrTransient)
	}

	observedAt := time.Now().UTC()
	if body.ObservedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, body.ObservedAt); err == nil {
			observedAt = parsed.UTC()
		}
	}

	return &models.CountResult{
		Platform:      platform,
		Handle:        handle,
		FollowerCount: *body.FollowerCount,
		ObservedAt:    observedAt,
	}, nil
}
