package sources

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/sirupsen/logrus"
)

type profileKey struct {
	platform models.Platform
	handle   string
}

// SimulatedSource produces organic-looking follower growth without calling
// any upstream API. Each instance owns its base counts, so independent
// instances never influence each other.
type SimulatedSource struct {
	mu         sync.Mutex
	rng        *rand.Rand
	baseCounts map[profileKey]int64
	now        func() time.Time
}

// NewSimulatedSource creates a simulated source whose randomness is fully
// determined by seed
func NewSimulatedSource(seed int64) *SimulatedSource {
	return &SimulatedSource{
		rng:        rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
		baseCounts: make(map[profileKey]int64),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *SimulatedSource) GetName() string {
	return "simulated"
}

func (s *SimulatedSource) IsEnabled() bool {
	return true
}

// FetchFollowerCount grows the base count by 1-5 and reports it with a
// jitter of -2..+3, never below zero
func (s *SimulatedSource) FetchFollowerCount(ctx context.Context, platform models.Platform, handle string) (*models.CountResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := profileKey{platform: platform, handle: handle}
	base, ok := s.baseCounts[key]
	if !ok {
		base = 500 + s.rng.Int64N(1501)
		logrus.Debugf("Simulated source seeding %s/%s at %d followers", platform, handle, base)
	}

	base += 1 + s.rng.Int64N(5)
	s.baseCounts[key] = base

	count := base + s.rng.Int64N(6) - 2
	if count < 0 {
		count = 0
	}

	return &models.CountResult{
		Platform:      platform,
		Handle:        handle,
		FollowerCount: count,
		ObservedAt:    s.now(),
	}, nil
}

// SetBaseCount pins the base count for a profile
func (s *SimulatedSource) SetBaseCount(platform models.Platform, handle string, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseCounts[profileKey{platform: platform, handle: handle}] = count
}

// Reset forgets the base count so the next fetch seeds a new one
func (s *SimulatedSource) Reset(platform models.Platform, handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.baseCounts, profileKey{platform: platform, handle: handle})
}
