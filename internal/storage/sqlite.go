package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/azure/follower-milestone-bot/internal/models"

	_ "modernc.org/sqlite"
)

// SQLite implements Store on top of an SQLite database
type SQLite struct {
	db *sql.DB
}

// Ensure SQLite implements Store
var _ Store = (*SQLite)(nil)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection serialises writers; reconciliation transactions are short.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) UpsertProfile(ctx context.Context, profile *models.TrackedProfile) (bool, error) {
	var created bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		var id int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM profiles WHERE owner = ? AND platform = ? AND handle = ?`,
			profile.Owner, string(profile.Platform), profile.Handle,
		).Scan(&id)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			result, err := tx.ExecContext(ctx,
				`INSERT INTO profiles (owner, platform, handle, current_follower_count, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				profile.Owner, string(profile.Platform), profile.Handle,
				profile.CurrentFollowerCount, toUnix(now), toUnix(now),
			)
			if err != nil {
				return fmt.Errorf("insert profile: %w", err)
			}
			if id, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("read profile id: %w", err)
			}
			created = true
		case err != nil:
			return fmt.Errorf("lookup profile: %w", err)
		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE profiles SET current_follower_count = ?, updated_at = ? WHERE id = ?`,
				profile.CurrentFollowerCount, toUnix(now), id,
			); err != nil {
				return fmt.Errorf("update profile: %w", err)
			}
		}

		stored, err := getProfile(ctx, tx, id)
		if err != nil {
			return err
		}
		*profile = *stored
		return nil
	})
	return created, err
}

func (s *SQLite) GetProfile(ctx context.Context, id int64) (*models.TrackedProfile, error) {
	return getProfile(ctx, s.db, id)
}

func (s *SQLite) ListProfiles(ctx context.Context, owner string) ([]models.TrackedProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles`
	var args []any
	if owner != "" {
		query += ` WHERE owner = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.TrackedProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (s *SQLite) UpdateFollowerCount(ctx context.Context, id int64, count int64, checkedAt time.Time) error {
	return updateFollowerCount(ctx, s.db, id, count, checkedAt)
}

func (s *SQLite) DeleteProfile(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"alert_notifications", "follower_samples", "alert_rules"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE profile_id = ?", id); err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}
		return expectRow(result, fmt.Sprintf("profile %d", id))
	})
}

func (s *SQLite) AppendSample(ctx context.Context, sample *models.FollowerSample) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return appendSample(ctx, tx, sample)
	})
}

func (s *SQLite) ListSamples(ctx context.Context, query SampleQuery) ([]models.FollowerSample, error) {
	conditions := []string{"profile_id = ?"}
	args := []any{query.ProfileID}

	if !query.Since.IsZero() {
		conditions = append(conditions, "recorded_at >= ?")
		args = append(args, toUnix(query.Since))
	}
	if !query.Until.IsZero() {
		conditions = append(conditions, "recorded_at <= ?")
		args = append(args, toUnix(query.Until))
	}

	order := ` ORDER BY recorded_at DESC, id DESC`
	if query.Ascending {
		order = ` ORDER BY recorded_at ASC, id ASC`
	}
	stmt := `SELECT id, profile_id, follower_count, recorded_at FROM follower_samples WHERE ` +
		strings.Join(conditions, " AND ") + order
	if query.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, query.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []models.FollowerSample
	for rows.Next() {
		var sample models.FollowerSample
		var recordedAt int64
		if err := rows.Scan(&sample.ID, &sample.ProfileID, &sample.FollowerCount, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan sample row: %w", err)
		}
		sample.RecordedAt = fromUnix(recordedAt)
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func (s *SQLite) SetAlertRule(ctx context.Context, rule *models.AlertRule) (bool, error) {
	var created bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getProfile(ctx, tx, rule.ProfileID); err != nil {
			return err
		}

		now := toUnix(time.Now().UTC())
		result, err := tx.ExecContext(ctx,
			`UPDATE alert_rules SET milestone_followers = ?, destination = ?, is_active = ?, updated_at = ?
			 WHERE profile_id = ?`,
			rule.MilestoneFollowers, rule.Destination, rule.IsActive, now, rule.ProfileID,
		)
		if err != nil {
			return fmt.Errorf("update alert rule: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("check rows affected: %w", err)
		} else if n == 0 {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO alert_rules (profile_id, milestone_followers, destination, is_active, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				rule.ProfileID, rule.MilestoneFollowers, rule.Destination, rule.IsActive, now, now,
			); err != nil {
				return fmt.Errorf("insert alert rule: %w", err)
			}
			created = true
		}

		stored, err := getAlertRule(ctx, tx, rule.ProfileID, false)
		if err != nil {
			return err
		}
		*rule = *stored
		return nil
	})
	return created, err
}

func (s *SQLite) GetAlertRule(ctx context.Context, profileID int64) (*models.AlertRule, error) {
	return getAlertRule(ctx, s.db, profileID, false)
}

func (s *SQLite) ActiveAlertRule(ctx context.Context, profileID int64) (*models.AlertRule, error) {
	return activeAlertRule(ctx, s.db, profileID)
}

func (s *SQLite) CreateNotification(ctx context.Context, notification *models.AlertNotification) error {
	return createNotification(ctx, s.db, notification)
}

func (s *SQLite) MarkNotificationSent(ctx context.Context, id int64, sent bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE alert_notifications SET sent = ? WHERE id = ?`, sent, id)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return expectRow(result, fmt.Sprintf("notification %d", id))
}

func (s *SQLite) ListNotifications(ctx context.Context, query NotificationQuery) ([]models.AlertNotification, error) {
	stmt := `SELECT n.id, n.profile_id, n.milestone_followers, n.follower_count_at_alert, n.message, n.sent, n.created_at
		FROM alert_notifications n JOIN profiles p ON p.id = n.profile_id`
	var conditions []string
	var args []any
	if query.ProfileID != 0 {
		conditions = append(conditions, "n.profile_id = ?")
		args = append(args, query.ProfileID)
	}
	if query.Owner != "" {
		conditions = append(conditions, "p.owner = ?")
		args = append(args, query.Owner)
	}
	if len(conditions) > 0 {
		stmt += " WHERE " + strings.Join(conditions, " AND ")
	}
	stmt += " ORDER BY n.created_at DESC, n.id DESC"

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.AlertNotification
	for rows.Next() {
		var n models.AlertNotification
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.ProfileID, &n.MilestoneFollowers, &n.FollowerCountAtAlert,
			&n.Message, &n.Sent, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification row: %w", err)
		}
		n.CreatedAt = fromUnix(createdAt)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (s *SQLite) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&sqliteTx{tx: tx})
	})
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// inTx rolls back unless fn returns nil and the commit succeeds. The rollback
// also runs when fn panics, so the single connection is always released.
func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetProfile(ctx context.Context, id int64) (*models.TrackedProfile, error) {
	return getProfile(ctx, t.tx, id)
}

func (t *sqliteTx) UpdateFollowerCount(ctx context.Context, id int64, count int64, checkedAt time.Time) error {
	return updateFollowerCount(ctx, t.tx, id, count, checkedAt)
}

func (t *sqliteTx) AppendSample(ctx context.Context, sample *models.FollowerSample) error {
	return appendSample(ctx, t.tx, sample)
}

func (t *sqliteTx) ActiveAlertRule(ctx context.Context, profileID int64) (*models.AlertRule, error) {
	return activeAlertRule(ctx, t.tx, profileID)
}

func (t *sqliteTx) CreateNotification(ctx context.Context, notification *models.AlertNotification) error {
	return createNotification(ctx, t.tx, notification)
}

const profileColumns = `id, owner, platform, handle, current_follower_count, last_checked, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.TrackedProfile, error) {
	var p models.TrackedProfile
	var platform string
	var lastChecked sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&p.ID, &p.Owner, &platform, &p.Handle, &p.CurrentFollowerCount,
		&lastChecked, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Platform = models.Platform(platform)
	if lastChecked.Valid {
		t := fromUnix(lastChecked.Int64)
		p.LastChecked = &t
	}
	p.CreatedAt = fromUnix(createdAt)
	p.UpdatedAt = fromUnix(updatedAt)
	return &p, nil
}

func getProfile(ctx context.Context, q queryer, id int64) (*models.TrackedProfile, error) {
	p, err := scanProfile(q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func updateFollowerCount(ctx context.Context, q queryer, id int64, count int64, checkedAt time.Time) error {
	result, err := q.ExecContext(ctx,
		`UPDATE profiles SET current_follower_count = ?, last_checked = ?, updated_at = ? WHERE id = ?`,
		count, toUnix(checkedAt), toUnix(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("update follower count: %w", err)
	}
	return expectRow(result, fmt.Sprintf("profile %d", id))
}

func appendSample(ctx context.Context, q queryer, sample *models.FollowerSample) error {
	if _, err := getProfile(ctx, q, sample.ProfileID); err != nil {
		return err
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now().UTC()
	}

	var latest int64
	if err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(recorded_at), 0) FROM follower_samples WHERE profile_id = ?`, sample.ProfileID,
	).Scan(&latest); err != nil {
		return fmt.Errorf("read latest sample: %w", err)
	}
	recordedAt := toUnix(sample.RecordedAt)
	if recordedAt < latest {
		recordedAt = latest
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO follower_samples (profile_id, follower_count, recorded_at) VALUES (?, ?, ?)`,
		sample.ProfileID, sample.FollowerCount, recordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	if sample.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("read sample id: %w", err)
	}
	sample.RecordedAt = fromUnix(recordedAt)
	return nil
}

func getAlertRule(ctx context.Context, q queryer, profileID int64, activeOnly bool) (*models.AlertRule, error) {
	query := `SELECT id, profile_id, milestone_followers, destination, is_active, created_at, updated_at
		FROM alert_rules WHERE profile_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}

	var r models.AlertRule
	var createdAt, updatedAt int64
	err := q.QueryRowContext(ctx, query, profileID).Scan(&r.ID, &r.ProfileID, &r.MilestoneFollowers,
		&r.Destination, &r.IsActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert rule for profile %d: %w", profileID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert rule: %w", err)
	}
	r.CreatedAt = fromUnix(createdAt)
	r.UpdatedAt = fromUnix(updatedAt)
	return &r, nil
}

func activeAlertRule(ctx context.Context, q queryer, profileID int64) (*models.AlertRule, error) {
	rule, err := getAlertRule(ctx, q, profileID, true)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return rule, err
}

func createNotification(ctx context.Context, q queryer, n *models.AlertNotification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	result, err := q.ExecContext(ctx,
		`INSERT INTO alert_notifications (profile_id, milestone_followers, follower_count_at_alert, message, sent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ProfileID, n.MilestoneFollowers, n.FollowerCountAtAlert, n.Message, n.Sent, toUnix(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	if n.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("read notification id: %w", err)
	}
	return nil
}

func expectRow(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
