package monitoring

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/azure/follower-milestone-bot/internal/config"
	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/azure/follower-milestone-bot/internal/notifications"
	"github.com/azure/follower-milestone-bot/internal/sources"
	"github.com/azure/follower-milestone-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockArchiveStorage keeps archived blobs in memory
type MockArchiveStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMockArchiveStorage() *MockArchiveStorage {
	return &MockArchiveStorage{
		data: make(map[string][]byte),
	}
}

func (m *MockArchiveStorage) Store(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = data
	return nil
}

func (m *MockArchiveStorage) Retrieve(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, exists := m.data[name]; exists {
		return data, nil
	}
	return nil, fmt.Errorf("blob %s: %w", name, storage.ErrNotFound)
}

func (m *MockArchiveStorage) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.data {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (m *MockArchiveStorage) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, name)
	return nil
}

func TestIntegration_SimulatedGrowthOverSQLite(t *testing.T) {
	ctx := context.Background()

	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "followers.db"))
	require.NoError(t, err)
	defer store.Close()

	source := sources.NewSimulatedSource(2024)
	channel := notifications.NewService(&config.Config{}) // Telegram and email in mock mode
	archive := NewMockArchiveStorage()
	cfg := &config.Config{Workers: 2, ArchiveRetention: 5}
	service := NewService(cfg, store, source, channel, archive)

	const (
		startCount = int64(900)
		milestone  = int64(1000)
		passes     = 40
	)

	profile := &models.TrackedProfile{Owner: "alice", Platform: models.PlatformInstagram, Handle: "gopher", CurrentFollowerCount: startCount}
	_, err = store.UpsertProfile(ctx, profile)
	require.NoError(t, err)
	_, err = store.SetAlertRule(ctx, &models.AlertRule{ProfileID: profile.ID, MilestoneFollowers: milestone, Destination: "12345", IsActive: true})
	require.NoError(t, err)

	other := &models.TrackedProfile{Owner: "bob", Platform: models.PlatformTwitter, Handle: "rustacean", CurrentFollowerCount: 0}
	_, err = store.UpsertProfile(ctx, other)
	require.NoError(t, err)

	source.SetBaseCount(models.PlatformInstagram, "gopher", 975)

	for i := 0; i < passes; i++ {
		report, err := service.RunPass(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, report.Count(models.OutcomeOK), "pass %d", i)
	}

	samples, err := store.ListSamples(ctx, storage.SampleQuery{ProfileID: profile.ID})
	require.NoError(t, err)
	require.Len(t, samples, passes)

	// Replay the recorded history oldest first; every crossing must have exactly one notification
	var expected []int64
	previous := startCount
	for i := len(samples) - 1; i >= 0; i-- {
		if MilestoneCrossed(previous, milestone, samples[i].FollowerCount) {
			expected = append(expected, samples[i].FollowerCount)
		}
		previous = samples[i].FollowerCount
	}
	require.NotEmpty(t, expected, "simulated growth should cross the milestone")

	list, err := store.ListNotifications(ctx, storage.NotificationQuery{ProfileID: profile.ID})
	require.NoError(t, err)
	require.Len(t, list, len(expected))
	for i, n := range list {
		assert.Equal(t, expected[len(expected)-1-i], n.FollowerCountAtAlert)
		assert.Equal(t, milestone, n.MilestoneFollowers)
		assert.True(t, n.Sent, "mock mode delivery always succeeds")
		assert.Contains(t, n.Message, "Milestone Achieved!")
	}

	current, err := store.GetProfile(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, samples[0].FollowerCount, current.CurrentFollowerCount)

	otherNotifications, err := store.ListNotifications(ctx, storage.NotificationQuery{ProfileID: other.ID})
	require.NoError(t, err)
	assert.Empty(t, otherNotifications)

	// The archive is pruned to the configured retention
	names, err := service.ListPassReports(ctx)
	require.NoError(t, err)
	require.Len(t, names, cfg.ArchiveRetention)
	assert.True(t, sort.IsSorted(sort.Reverse(sort.StringSlice(names))))

	report, err := service.GetPassReport(ctx, names[0])
	require.NoError(t, err)
	assert.Len(t, report.Results, 2)
	assert.False(t, report.Cancelled)

	_, err = service.GetPassReport(ctx, "../secrets.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_ArchiveDisabled(t *testing.T) {
	service := NewService(&config.Config{}, storage.NewMemory(), sources.NewSimulatedSource(1), &MockChannel{}, nil)

	_, err := service.ListPassReports(context.Background())
	assert.ErrorIs(t, err, ErrArchiveDisabled)
	_, err = service.GetPassReport(context.Background(), "x.json")
	assert.ErrorIs(t, err, ErrArchiveDisabled)
}
