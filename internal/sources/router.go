package sources

import (
	"context"
	"fmt"

	"github.com/azure/follower-milestone-bot/internal/config"
	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// Router dispatches fetches to the source registered for each platform,
// falling back to a default source when one is configured
type Router struct {
	byPlatform map[models.Platform]Source
	fallback   Source
}

// Ensure Router implements Source
var _ Source = (*Router)(nil)

// NewRouter creates a router with an optional fallback source
func NewRouter(fallback Source) *Router {
	return &Router{
		byPlatform: make(map[models.Platform]Source),
		fallback:   fallback,
	}
}

// NewRouterFromConfig wires every source enabled by the configuration
func NewRouterFromConfig(cfg *config.Config) *Router {
	var fallback Source
	if cfg.SimulateCounts {
		fallback = NewSimulatedSource(cfg.SimulationSeed)
	}
	router := NewRouter(fallback)

	if cfg.CountAPIURL != "" {
		httpSource := NewHTTPSource(cfg.CountAPIURL, cfg.CountAPIToken)
		for _, platform := range []models.Platform{models.PlatformTwitter, models.PlatformInstagram, models.PlatformYouTube} {
			router.Register(platform, httpSource)
		}
	}

	// Native integrations take precedence over the generic endpoint
	router.Register(models.PlatformTwitter, NewTwitterSource(cfg.TwitterBearerToken))
	router.Register(models.PlatformYouTube, NewYouTubeSource(cfg.YouTubeAPIKey))

	return router
}

// Register routes a platform to src. Disabled sources are ignored.
func (r *Router) Register(platform models.Platform, src Source) {
	if !src.IsEnabled() {
		logrus.Debugf("Source %s disabled, not serving %s", src.GetName(), platform)
		return
	}
	r.byPlatform[platform] = src
	logrus.Infof("Source %s serving %s", src.GetName(), platform)
}

// SourceFor reports which source would serve a platform
func (r *Router) SourceFor(platform models.Platform) (Source, bool) {
	if src, ok := r.byPlatform[platform]; ok {
		return src, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

func (r *Router) GetName() string {
	return "router"
}

func (r *Router) IsEnabled() bool {
	return len(r.byPlatform) > 0 || r.fallback != nil
}

func (r *Router) FetchFollowerCount(ctx context.Context, platform models.Platform, handle string) (*models.CountResult, error) {
	src, ok := r.SourceFor(platform)
	if !ok {
		return nil, fmt.Errorf("no source for %s: %w", platform, ErrUnsupportedPlatform)
	}
	return src.FetchFollowerCount(ctx, platform, handle)
}
