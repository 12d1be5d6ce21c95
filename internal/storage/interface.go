package storage

import (
	"context"
	"errors"
	"time"

	"github.com/azure/follower-milestone-bot/internal/models"
)

// ErrNotFound is returned when a profile, rule or notification does not exist
var ErrNotFound = errors.New("not found")

// ArchiveStorage defines the contract for blob-style archive operations
type ArchiveStorage interface {
	Store(ctx context.Context, name string, data []byte) error
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// SampleQuery selects follower samples for one profile. Zero Since/Until leave
// the window unbounded on that side; Limit <= 0 returns every match.
type SampleQuery struct {
	ProfileID int64
	Since     time.Time
	Until     time.Time
	Limit     int
	Ascending bool // oldest first instead of newest first
}

// NotificationQuery filters alert notifications. Zero values match everything.
type NotificationQuery struct {
	ProfileID int64
	Owner     string
}

// ProfileStore holds the current state of every tracked profile
type ProfileStore interface {
	// UpsertProfile creates the profile identified by (owner, platform, handle)
	// or, if it exists, overwrites its current follower count.
	UpsertProfile(ctx context.Context, profile *models.TrackedProfile) (bool, error)
	GetProfile(ctx context.Context, id int64) (*models.TrackedProfile, error)
	// ListProfiles returns profiles ordered by id. An empty owner lists all.
	ListProfiles(ctx context.Context, owner string) ([]models.TrackedProfile, error)
	UpdateFollowerCount(ctx context.Context, id int64, count int64, checkedAt time.Time) error
	// DeleteProfile removes the profile together with its rule, samples and notifications.
	DeleteProfile(ctx context.Context, id int64) error
}

// HistoryStore is the append-only ledger of follower samples. There is no way
// to update or delete an individual sample.
type HistoryStore interface {
	AppendSample(ctx context.Context, sample *models.FollowerSample) error
	// ListSamples returns matching samples newest first unless the query is Ascending.
	ListSamples(ctx context.Context, query SampleQuery) ([]models.FollowerSample, error)
}

// AlertStore holds milestone rules and the notifications they produced
type AlertStore interface {
	SetAlertRule(ctx context.Context, rule *models.AlertRule) (bool, error)
	GetAlertRule(ctx context.Context, profileID int64) (*models.AlertRule, error)
	// ActiveAlertRule returns nil without error when the profile has no active rule.
	ActiveAlertRule(ctx context.Context, profileID int64) (*models.AlertRule, error)
	CreateNotification(ctx context.Context, notification *models.AlertNotification) error
	MarkNotificationSent(ctx context.Context, id int64, sent bool) error
	// ListNotifications returns matching notifications newest first.
	ListNotifications(ctx context.Context, query NotificationQuery) ([]models.AlertNotification, error)
}

// Tx is the set of operations available inside WithinTx. Either all of the
// writes made through it are committed or none are.
type Tx interface {
	GetProfile(ctx context.Context, id int64) (*models.TrackedProfile, error)
	UpdateFollowerCount(ctx context.Context, id int64, count int64, checkedAt time.Time) error
	AppendSample(ctx context.Context, sample *models.FollowerSample) error
	ActiveAlertRule(ctx context.Context, profileID int64) (*models.AlertRule, error)
	CreateNotification(ctx context.Context, notification *models.AlertNotification) error
}

// Store combines every persistence concern of the tracker
type Store interface {
	ProfileStore
	HistoryStore
	AlertStore

	// WithinTx runs fn atomically. A non-nil error from fn rolls back every write.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
