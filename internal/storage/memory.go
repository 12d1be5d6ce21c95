package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/azure/follower-milestone-bot/internal/models"
)

// Memory is an in-process Store used for simulations and tests
type Memory struct {
	mu            sync.Mutex
	profiles      map[int64]*models.TrackedProfile
	rules         map[int64]*models.AlertRule // keyed by profile id
	samples       map[int64][]models.FollowerSample
	notifications []models.AlertNotification

	nextProfileID      int64
	nextRuleID         int64
	nextSampleID       int64
	nextNotificationID int64

	now func() time.Time
}

// Ensure Memory implements Store
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[int64]*models.TrackedProfile),
		rules:    make(map[int64]*models.AlertRule),
		samples:  make(map[int64][]models.FollowerSample),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) UpsertProfile(ctx context.Context, profile *models.TrackedProfile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, existing := range m.profiles {
		if existing.Owner == profile.Owner && existing.Platform == profile.Platform && existing.Handle == profile.Handle {
			existing.CurrentFollowerCount = profile.CurrentFollowerCount
			existing.UpdatedAt = now
			*profile = *existing
			return false, nil
		}
	}

	m.nextProfileID++
	stored := *profile
	stored.ID = m.nextProfileID
	stored.LastChecked = nil
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.profiles[stored.ID] = &stored
	*profile = stored
	return true, nil
}

func (m *Memory) GetProfile(ctx context.Context, id int64) (*models.TrackedProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getProfileLocked(id)
}

func (m *Memory) getProfileLocked(id int64) (*models.TrackedProfile, error) {
	profile, ok := m.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %d: %w", id, ErrNotFound)
	}
	clone := *profile
	return &clone, nil
}

func (m *Memory) ListProfiles(ctx context.Context, owner string) ([]models.TrackedProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var profiles []models.TrackedProfile
	for _, profile := range m.profiles {
		if owner == "" || profile.Owner == owner {
			profiles = append(profiles, *profile)
		}
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles, nil
}

func (m *Memory) UpdateFollowerCount(ctx context.Context, id int64, count int64, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateFollowerCountLocked(id, count, checkedAt)
}

func (m *Memory) updateFollowerCountLocked(id int64, count int64, checkedAt time.Time) error {
	profile, ok := m.profiles[id]
	if !ok {
		return fmt.Errorf("profile %d: %w", id, ErrNotFound)
	}
	checked := checkedAt.UTC()
	profile.CurrentFollowerCount = count
	profile.LastChecked = &checked
	profile.UpdatedAt = m.now()
	return nil
}

func (m *Memory) DeleteProfile(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.profiles[id]; !ok {
		return fmt.Errorf("profile %d: %w", id, ErrNotFound)
	}
	delete(m.profiles, id)
	delete(m.rules, id)
	delete(m.samples, id)

	kept := m.notifications[:0]
	for _, n := range m.notifications {
		if n.ProfileID != id {
			kept = append(kept, n)
		}
	}
	m.notifications = kept
	return nil
}

func (m *Memory) AppendSample(ctx context.Context, sample *models.FollowerSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendSampleLocked(sample)
}

func (m *Memory) appendSampleLocked(sample *models.FollowerSample) error {
	if _, ok := m.profiles[sample.ProfileID]; !ok {
		return fmt.Errorf("profile %d: %w", sample.ProfileID, ErrNotFound)
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = m.now()
	}
	sample.RecordedAt = sample.RecordedAt.UTC()

	history := m.samples[sample.ProfileID]
	if n := len(history); n > 0 && sample.RecordedAt.Before(history[n-1].RecordedAt) {
		sample.RecordedAt = history[n-1].RecordedAt
	}

	m.nextSampleID++
	sample.ID = m.nextSampleID
	m.samples[sample.ProfileID] = append(history, *sample)
	return nil
}

func (m *Memory) ListSamples(ctx context.Context, query SampleQuery) ([]models.FollowerSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.samples[query.ProfileID]
	var result []models.FollowerSample
	for n := 0; n < len(history); n++ {
		i := len(history) - 1 - n
		if query.Ascending {
			i = n
		}
		s := history[i]
		if !query.Since.IsZero() && s.RecordedAt.Before(query.Since) {
			continue
		}
		if !query.Until.IsZero() && s.RecordedAt.After(query.Until) {
			continue
		}
		result = append(result, s)
		if query.Limit > 0 && len(result) == query.Limit {
			break
		}
	}
	return result, nil
}

func (m *Memory) SetAlertRule(ctx context.Context, rule *models.AlertRule) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.profiles[rule.ProfileID]; !ok {
		return false, fmt.Errorf("profile %d: %w", rule.ProfileID, ErrNotFound)
	}

	now := m.now()
	if existing, ok := m.rules[rule.ProfileID]; ok {
		existing.MilestoneFollowers = rule.MilestoneFollowers
		existing.Destination = rule.Destination
		existing.IsActive = rule.IsActive
		existing.UpdatedAt = now
		*rule = *existing
		return false, nil
	}

	m.nextRuleID++
	stored := *rule
	stored.ID = m.nextRuleID
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.rules[rule.ProfileID] = &stored
	*rule = stored
	return true, nil
}

func (m *Memory) GetAlertRule(ctx context.Context, profileID int64) (*models.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[profileID]
	if !ok {
		return nil, fmt.Errorf("alert rule for profile %d: %w", profileID, ErrNotFound)
	}
	clone := *rule
	return &clone, nil
}

func (m *Memory) ActiveAlertRule(ctx context.Context, profileID int64) (*models.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeAlertRuleLocked(profileID), nil
}

func (m *Memory) activeAlertRuleLocked(profileID int64) *models.AlertRule {
	rule, ok := m.rules[profileID]
	if !ok || !rule.IsActive {
		return nil
	}
	clone := *rule
	return &clone
}

func (m *Memory) CreateNotification(ctx context.Context, notification *models.AlertNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createNotificationLocked(notification)
}

func (m *Memory) createNotificationLocked(notification *models.AlertNotification) error {
	if _, ok := m.profiles[notification.ProfileID]; !ok {
		return fmt.Errorf("profile %d: %w", notification.ProfileID, ErrNotFound)
	}
	m.nextNotificationID++
	notification.ID = m.nextNotificationID
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = m.now()
	}
	m.notifications = append(m.notifications, *notification)
	return nil
}

func (m *Memory) MarkNotificationSent(ctx context.Context, id int64, sent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.notifications {
		if m.notifications[i].ID == id {
			m.notifications[i].Sent = sent
			return nil
		}
	}
	return fmt.Errorf("notification %d: %w", id, ErrNotFound)
}

func (m *Memory) ListNotifications(ctx context.Context, query NotificationQuery) ([]models.AlertNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.AlertNotification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if query.ProfileID != 0 && n.ProfileID != query.ProfileID {
			continue
		}
		if query.Owner != "" {
			profile, ok := m.profiles[n.ProfileID]
			if !ok || profile.Owner != query.Owner {
				continue
			}
		}
		result = append(result, n)
	}
	return result, nil
}

// WithinTx holds the store lock for the duration of fn and applies the staged
// writes only when fn succeeds.
func (m *Memory) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, updates: make(map[int64]models.TrackedProfile)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return tx.commit()
}

func (m *Memory) Close() error {
	return nil
}

type memoryTx struct {
	store         *Memory
	updates       map[int64]models.TrackedProfile
	samples       []*models.FollowerSample
	notifications []*models.AlertNotification
}

func (t *memoryTx) GetProfile(ctx context.Context, id int64) (*models.TrackedProfile, error) {
	if staged, ok := t.updates[id]; ok {
		return &staged, nil
	}
	return t.store.getProfileLocked(id)
}

func (t *memoryTx) UpdateFollowerCount(ctx context.Context, id int64, count int64, checkedAt time.Time) error {
	profile, err := t.GetProfile(ctx, id)
	if err != nil {
		return err
	}
	checked := checkedAt.UTC()
	profile.CurrentFollowerCount = count
	profile.LastChecked = &checked
	t.updates[id] = *profile
	return nil
}

func (t *memoryTx) AppendSample(ctx context.Context, sample *models.FollowerSample) error {
	if _, err := t.GetProfile(ctx, sample.ProfileID); err != nil {
		return err
	}
	t.samples = append(t.samples, sample)
	return nil
}

func (t *memoryTx) ActiveAlertRule(ctx context.Context, profileID int64) (*models.AlertRule, error) {
	return t.store.activeAlertRuleLocked(profileID), nil
}

func (t *memoryTx) CreateNotification(ctx context.Context, notification *models.AlertNotification) error {
	if _, err := t.GetProfile(ctx, notification.ProfileID); err != nil {
		return err
	}
	t.notifications = append(t.notifications, notification)
	return nil
}

func (t *memoryTx) commit() error {
	for id, staged := range t.updates {
		if err := t.store.updateFollowerCountLocked(id, staged.CurrentFollowerCount, *staged.LastChecked); err != nil {
			return err
		}
	}
	for _, sample := range t.samples {
		if err := t.store.appendSampleLocked(sample); err != nil {
			return err
		}
	}
	for _, notification := range t.notifications {
		if err := t.store.createNotificationLocked(notification); err != nil {
			return err
		}
	}
	return nil
}
