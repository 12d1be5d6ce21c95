package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/azure/follower-milestone-bot/internal/config"
	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedSource_GrowthStaysInRange(t *testing.T) {
	source := NewSimulatedSource(7)
	ctx := context.Background()

	first, err := source.FetchFollowerCount(ctx, models.PlatformTwitter, "gopher")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first.FollowerCount, int64(500+1-2))
	assert.LessOrEqual(t, first.FollowerCount, int64(2000+5+3))

	previous := first.FollowerCount
	for i := 0; i < 50; i++ {
		next, err := source.FetchFollowerCount(ctx, models.PlatformTwitter, "gopher")
		require.NoError(t, err)
		// base grows by 1..5 and jitter spans -2..+3, so consecutive reads differ by at most 10
		assert.GreaterOrEqual(t, next.FollowerCount-previous, int64(1-5))
		assert.LessOrEqual(t, next.FollowerCount-previous, int64(5+5))
		previous = next.FollowerCount
	}
}

func TestSimulatedSource_SameSeedIsDeterministic(t *testing.T) {
	a := NewSimulatedSource(42)
	b := NewSimulatedSource(42)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ra, err := a.FetchFollowerCount(ctx, models.PlatformInstagram, "gopher")
		require.NoError(t, err)
		rb, err := b.FetchFollowerCount(ctx, models.PlatformInstagram, "gopher")
		require.NoError(t, err)
		assert.Equal(t, ra.FollowerCount, rb.FollowerCount)
	}
}

func TestSimulatedSource_InstancesAreIndependent(t *testing.T) {
	a := NewSimulatedSource(1)
	b := NewSimulatedSource(1)
	ctx := context.Background()

	a.SetBaseCount(models.PlatformTwitter, "gopher", 10_000)
	ra, err := a.FetchFollowerCount(ctx, models.PlatformTwitter, "gopher")
	require.NoError(t, err)
	rb, err := b.FetchFollowerCount(ctx, models.PlatformTwitter, "gopher")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, ra.FollowerCount, int64(10_000-1))
	assert.LessOrEqual(t, rb.FollowerCount, int64(2008))
}

func TestSimulatedSource_ClampsAtZero(t *testing.T) {
	source := NewSimulatedSource(3)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		source.SetBaseCount(models.PlatformTwitter, "tiny", -5)
		result, err := source.FetchFollowerCount(ctx, models.PlatformTwitter, "tiny")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.FollowerCount, int64(0))
	}
}

func TestSimulatedSource_Reset(t *testing.T) {
	source := NewSimulatedSource(5)
	ctx := context.Background()

	source.SetBaseCount(models.PlatformTwitter, "gopher", 1_000_000)
	source.Reset(models.PlatformTwitter, "gopher")

	result, err := source.FetchFollowerCount(ctx, models.PlatformTwitter, "gopher")
	require.NoError(t, err)
	assert.Less(t, result.FollowerCount, int64(1_000_000))
}

func TestHTTPSource_FetchFollowerCount(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCount int64
		wantErr   error
	}{
		{
			name:      "Valid response",
			status:    http.StatusOK,
			body:      `{"follower_count": 1234, "observed_at": "2026-10-01T12:00:00Z"}`,
			wantCount: 1234,
		},
		{
			name:    "Server error",
			status:  http.StatusBadGateway,
			body:    `oops`,
			wantErr: ErrTransient,
		},
		{
			name:    "Malformed body",
			status:  http.StatusOK,
			body:    `{"follower_count": "lots"}`,
			wantErr: ErrTransient,
		},
		{
			name:    "Missing count",
			status:  http.StatusOK,
			body:    `{}`,
			wantErr: ErrTransient,
		},
		{
			name:    "Negative count",
			status:  http.StatusOK,
			body:    `{"follower_count": -1}`,
			wantErr: ErrTransient,
		},
		{
			name:    "Unknown handle",
			status:  http.StatusNotFound,
			body:    `{}`,
			wantErr: ErrUnknownHandle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/followers/instagram/gopher", r.URL.Path)
				assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			source := NewHTTPSource(server.URL+"/", "secret")
			result, err := source.FetchFollowerCount(context.Background(), models.PlatformInstagram, "gopher")

			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, result.FollowerCount)
			assert.Equal(t, 2026, result.ObservedAt.Year())
		})
	}
}

func TestHTTPSource_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPSource(url, "").FetchFollowerCount(context.Background(), models.PlatformTwitter, "gopher")
	assert.True(t, errors.Is(err, ErrTransient))
}

func TestTwitterSource_IsEnabled(t *testing.T) {
	tests := []struct {
		name        string
		bearerToken string
		expected    bool
	}{
		{
			name:        "Token provided",
			bearerToken: "bearer_token",
			expected:    true,
		},
		{
			name:        "No token",
			bearerToken: "",
			expected:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewTwitterSource(tt.bearerToken)
			assert.Equal(t, tt.expected, source.IsEnabled())
		})
	}
}

func TestTwitterSource_FetchFollowerCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/users/by/username/gopher":
			assert.Equal(t, "public_metrics", r.URL.Query().Get("user.fields"))
			_, _ = w.Write([]byte(`{"data":{"id":"1","username":"gopher","public_metrics":{"followers_count":4321}}}`))
		case "/2/users/by/username/limited":
			w.Header().Set("x-rate-limit-reset", "1700000000")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"errors":[{"title":"Not Found Error","detail":"Could not find user"}]}`))
		}
	}))
	defer server.Close()

	source := NewTwitterSource("token")
	source.baseURL = server.URL
	ctx := context.Background()

	result, err := source.FetchFollowerCount(ctx, models.PlatformTwitter, "@gopher")
	require.NoError(t, err)
	assert.Equal(t, int64(4321), result.FollowerCount)
	assert.Equal(t, "@gopher", result.Handle)

	_, err = source.FetchFollowerCount(ctx, models.PlatformTwitter, "limited")
	assert.True(t, errors.Is(err, ErrTransient))

	_, err = source.FetchFollowerCount(ctx, models.PlatformTwitter, "missing")
	assert.True(t, errors.Is(err, ErrUnknownHandle))

	_, err = source.FetchFollowerCount(ctx, models.PlatformInstagram, "gopher")
	assert.True(t, errors.Is(err, ErrUnsupportedPlatform))
}

func TestYouTubeSource_FetchFollowerCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/youtube/v3/channels", r.URL.Path)
		assert.Equal(t, "api_key", r.URL.Query().Get("key"))
		switch r.URL.Query().Get("forHandle") {
		case "@gopher":
			_, _ = w.Write([]byte(`{"items":[{"id":"UC1","statistics":{"subscriberCount":"98765"}}]}`))
		case "@hidden":
			_, _ = w.Write([]byte(`{"items":[{"id":"UC2","statistics":{"hiddenSubscriberCount":true}}]}`))
		case "@garbled":
			_, _ = w.Write([]byte(`{"items":[{"id":"UC3","statistics":{"subscriberCount":"many"}}]}`))
		default:
			_, _ = w.Write([]byte(`{"items":[]}`))
		}
	}))
	defer server.Close()

	source := NewYouTubeSource("api_key")
	source.baseURL = server.URL
	ctx := context.Background()

	result, err := source.FetchFollowerCount(ctx, models.PlatformYouTube, "gopher")
	require.NoError(t, err)
	assert.Equal(t, int64(98765), result.FollowerCount)

	_, err = source.FetchFollowerCount(ctx, models.PlatformYouTube, "hidden")
	assert.True(t, errors.Is(err, ErrUnknownHandle))

	_, err = source.FetchFollowerCount(ctx, models.PlatformYouTube, "garbled")
	assert.True(t, errors.Is(err, ErrTransient))

	_, err = source.FetchFollowerCount(ctx, models.PlatformYouTube, "nobody")
	assert.True(t, errors.Is(err, ErrUnknownHandle))
}

func TestRouter_Dispatch(t *testing.T) {
	fallback := NewSimulatedSource(1)
	router := NewRouter(fallback)
	router.Register(models.PlatformTwitter, NewTwitterSource(""))

	src, ok := router.SourceFor(models.PlatformTwitter)
	require.True(t, ok)
	assert.Equal(t, "simulated", src.GetName(), "disabled sources are not registered")

	router.Register(models.PlatformYouTube, NewYouTubeSource("key"))
	src, ok = router.SourceFor(models.PlatformYouTube)
	require.True(t, ok)
	assert.Equal(t, "youtube", src.GetName())

	noFallback := NewRouter(nil)
	assert.False(t, noFallback.IsEnabled())
	_, err := noFallback.FetchFollowerCount(context.Background(), models.PlatformInstagram, "gopher")
	assert.True(t, errors.Is(err, ErrUnsupportedPlatform))
}

func TestNewRouterFromConfig(t *testing.T) {
	cfg := &config.Config{
		SimulateCounts:     false,
		CountAPIURL:        "http://counts.internal",
		TwitterBearerToken: "token",
	}
	router := NewRouterFromConfig(cfg)

	src, ok := router.SourceFor(models.PlatformTwitter)
	require.True(t, ok)
	assert.Equal(t, "twitter", src.GetName())

	src, ok = router.SourceFor(models.PlatformInstagram)
	require.True(t, ok)
	assert.Equal(t, "http", src.GetName())

	src, ok = router.SourceFor(models.PlatformYouTube)
	require.True(t, ok)
	assert.Equal(t, "http", src.GetName())
}
