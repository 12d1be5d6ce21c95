package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/azure/follower-milestone-bot/internal/config"
	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/azure/follower-milestone-bot/internal/notifications"
	"github.com/azure/follower-milestone-bot/internal/sources"
	"github.com/azure/follower-milestone-bot/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const passReportPrefix = "passes/"

var (
	// ErrPassInProgress is returned when a pass is requested while another runs
	ErrPassInProgress = errors.New("reconciliation pass already in progress")
	// ErrArchiveDisabled is returned by report lookups when no archive is configured
	ErrArchiveDisabled = errors.New("pass report archive not configured")
)

// Service reconciles tracked profiles against their count source and fires
// milestone alerts
type Service struct {
	config  *config.Config
	store   storage.Store
	source  sources.Source
	channel notifications.Channel
	archive storage.ArchiveStorage
	now     func() time.Time

	passMu  sync.Mutex
	metrics *Metrics
	mu      sync.RWMutex
}

// Metrics holds reconciliation metrics
type Metrics struct {
	TotalPasses      int                    `json:"total_passes"`
	TotalAlertsFired int                    `json:"total_alerts_fired"`
	LastRunID        string                 `json:"last_run_id"`
	LastRun          time.Time              `json:"last_run"`
	LastRunDuration  string                 `json:"last_run_duration"`
	LastRunCancelled bool                   `json:"last_run_cancelled"`
	ProfilesChecked  int                    `json:"profiles_checked"`
	OutcomeBreakdown map[models.Outcome]int `json:"outcome_breakdown"`
	AlertsFired      int                    `json:"alerts_fired"`
	DeliveryFailures int                    `json:"delivery_failures"`
}

// NewService creates a new reconciliation service. archive may be nil.
func NewService(cfg *config.Config, store storage.Store, source sources.Source, channel notifications.Channel, archive storage.ArchiveStorage) *Service {
	return &Service{
		config:  cfg,
		store:   store,
		source:  source,
		channel: channel,
		archive: archive,
		now:     time.Now,
		metrics: &Metrics{
			OutcomeBreakdown: make(map[models.Outcome]int),
		},
	}
}

// SetClock replaces the time source used for samples and reports
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// MilestoneCrossed reports whether a move from oldCount to newCount reaches
// milestone coming from strictly below it
func MilestoneCrossed(oldCount, milestone, newCount int64) bool {
	return oldCount < milestone && milestone <= newCount
}

// RunPass reconciles every tracked profile once. It returns ErrPassInProgress
// without doing anything if another pass is running.
func (s *Service) RunPass(ctx context.Context) (*models.PassReport, error) {
	if !s.passMu.TryLock() {
		return nil, ErrPassInProgress
	}
	defer s.passMu.Unlock()

	return s.runPass(ctx)
}

// TriggerPass starts a pass in the background and returns immediately
func (s *Service) TriggerPass(ctx context.Context) error {
	if !s.passMu.TryLock() {
		return ErrPassInProgress
	}

	go func() {
		defer s.passMu.Unlock()
		if _, err := s.runPass(ctx); err != nil {
			logrus.Errorf("Triggered reconciliation pass failed: %v", err)
		}
	}()
	return nil
}

// WaitIdle blocks until no pass is running
func (s *Service) WaitIdle() {
	s.passMu.Lock()
	defer s.passMu.Unlock()
}

func (s *Service) runPass(ctx context.Context) (*models.PassReport, error) {
	report := &models.PassReport{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
	}
	logger := logrus.WithField("run_id", report.RunID)

	profiles, err := s.store.ListProfiles(ctx, "")
	if err != nil {
		logger.Errorf("Failed to list profiles: %v", err)
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	logger.Infof("Starting reconciliation pass over %d profiles", len(profiles))

	workers := s.config.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(profiles) {
		workers = len(profiles)
	}

	results := make([]models.ProfileResult, len(profiles))
	processed := make([]bool, len(profiles))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.reconcileProfile(ctx, &profiles[i])
				processed[i] = true
			}
		}()
	}

dispatch:
	for i := range profiles {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		select {
		case <-ctx.Done():
			report.Cancelled = true
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	for i, done := range processed {
		if done {
			report.Results = append(report.Results, results[i])
		}
	}
	report.FinishedAt = s.now()

	s.updateMetrics(report)
	s.archiveReport(context.WithoutCancel(ctx), report)

	logger.WithFields(logrus.Fields{
		"ok":                report.Count(models.OutcomeOK),
		"skipped_transient": report.Count(models.OutcomeSkippedTransient),
		"skipped_fatal":     report.Count(models.OutcomeSkippedFatal),
		"alerts_fired":      report.AlertsFired(),
		"cancelled":         report.Cancelled,
	}).Infof("Reconciliation pass completed in %v", report.FinishedAt.Sub(report.StartedAt))

	return report, nil
}

// reconcileProfile fetches a fresh count for one profile, records it and
// evaluates its milestone rule. It never panics and never returns an error:
// every failure is folded into the result outcome.
func (s *Service) reconcileProfile(ctx context.Context, profile *models.TrackedProfile) (result models.ProfileResult) {
	result = models.ProfileResult{
		ProfileID: profile.ID,
		Platform:  profile.Platform,
		Handle:    profile.Handle,
	}
	logger := logrus.WithFields(logrus.Fields{
		"profile_id": profile.ID,
		"platform":   profile.Platform,
		"handle":     profile.Handle,
	})

	defer func() {
		if r := recover(); r != nil {
			result.Outcome = models.OutcomeSkippedFatal
			result.Error = fmt.Sprintf("panic: %v", r)
			logger.WithField("outcome", result.Outcome).Errorf("Recovered from panic during reconciliation: %v", r)
		}
	}()

	count, err := s.source.FetchFollowerCount(ctx, profile.Platform, profile.Handle)
	if err == nil && (count == nil || count.FollowerCount < 0) {
		err = fmt.Errorf("invalid follower count from %s: %w", s.source.GetName(), sources.ErrTransient)
	}
	if err != nil {
		result.Outcome = classifyError(err)
		result.Error = err.Error()
		logger.WithField("outcome", result.Outcome).Warnf("Skipping profile this pass: %v", err)
		return result
	}
	newCount := count.FollowerCount

	var (
		rule         *models.AlertRule
		notification *models.AlertNotification
	)
	checkedAt := s.now()
	err = s.store.WithinTx(ctx, func(tx storage.Tx) error {
		rule, notification = nil, nil

		current, err := tx.GetProfile(ctx, profile.ID)
		if err != nil {
			return err
		}
		oldCount := current.CurrentFollowerCount
		result.PreviousCount = oldCount

		if err := tx.UpdateFollowerCount(ctx, profile.ID, newCount, checkedAt); err != nil {
			return err
		}
		if err := tx.AppendSample(ctx, &models.FollowerSample{
			ProfileID:     profile.ID,
			FollowerCount: newCount,
			RecordedAt:    checkedAt,
		}); err != nil {
			return err
		}

		rule, err = tx.ActiveAlertRule(ctx, profile.ID)
		if err != nil {
			return err
		}
		if rule == nil || !MilestoneCrossed(oldCount, rule.MilestoneFollowers, newCount) {
			return nil
		}

		notification = &models.AlertNotification{
			ProfileID:            profile.ID,
			MilestoneFollowers:   rule.MilestoneFollowers,
			FollowerCountAtAlert: newCount,
			Message:              notifications.FormatMilestoneMessage(current.Handle, current.Platform, rule.MilestoneFollowers, newCount),
			CreatedAt:            checkedAt,
		}
		return tx.CreateNotification(ctx, notification)
	})
	if err != nil {
		result.Outcome = classifyError(err)
		result.Error = err.Error()
		logger.WithField("outcome", result.Outcome).Errorf("Failed to record follower count: %v", err)
		return result
	}

	result.Outcome = models.OutcomeOK
	result.FollowerCount = newCount
	logger.WithFields(logrus.Fields{
		"outcome":        result.Outcome,
		"previous_count": result.PreviousCount,
		"follower_count": newCount,
	}).Debug("Profile reconciled")

	if notification == nil {
		return result
	}

	result.AlertFired = true
	result.Milestone = notification.MilestoneFollowers
	logger = logger.WithField("milestone", notification.MilestoneFollowers)
	logger.Infof("Milestone reached with %d followers", newCount)

	if strings.TrimSpace(rule.Destination) == "" {
		logger.Warn("Alert rule has no destination, delivery skipped")
		return result
	}

	// The milestone is already committed; delivery finishes even if the pass is cancelled
	deliveryCtx := context.WithoutCancel(ctx)
	result.Delivered = s.channel.Send(deliveryCtx, rule.Destination, notification.Message)
	if err := s.store.MarkNotificationSent(deliveryCtx, notification.ID, result.Delivered); err != nil {
		result.Error = err.Error()
		logger.Errorf("Failed to record delivery outcome: %v", err)
	}
	if !result.Delivered {
		logger.Warn("Milestone notification was not delivered")
	}

	return result
}

// classifyError maps a fetch or store failure to a skip outcome. Cancellation
// and upstream hiccups are retried next pass; anything else is fatal.
func classifyError(err error) models.Outcome {
	if errors.Is(err, sources.ErrTransient) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return models.OutcomeSkippedTransient
	}
	return models.OutcomeSkippedFatal
}

func (s *Service) updateMetrics(report *models.PassReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.TotalPasses++
	s.metrics.LastRunID = report.RunID
	s.metrics.LastRun = report.FinishedAt
	s.metrics.LastRunDuration = report.FinishedAt.Sub(report.StartedAt).String()
	s.metrics.LastRunCancelled = report.Cancelled
	s.metrics.ProfilesChecked = len(report.Results)
	s.metrics.AlertsFired = report.AlertsFired()
	s.metrics.TotalAlertsFired += s.metrics.AlertsFired

	s.metrics.OutcomeBreakdown = make(map[models.Outcome]int)
	s.metrics.DeliveryFailures = 0
	for _, res := range report.Results {
		s.metrics.OutcomeBreakdown[res.Outcome]++
		if res.AlertFired && !res.Delivered {
			s.metrics.DeliveryFailures++
		}
	}
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}

func passReportName(report *models.PassReport) string {
	return fmt.Sprintf("%s-%s.json", report.StartedAt.UTC().Format("2006-01-02-15-04-05.000000000"), report.RunID)
}

func (s *Service) archiveReport(ctx context.Context, report *models.PassReport) {
	if s.archive == nil {
		return
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logrus.Errorf("Failed to marshal pass report: %v", err)
		return
	}

	if err := s.archive.Store(ctx, passReportPrefix+passReportName(report), data); err != nil {
		logrus.Errorf("Failed to archive pass report: %v", err)
		return
	}

	s.pruneArchive(ctx)
}

// pruneArchive keeps only the newest ArchiveRetention reports. Report names
// start with their UTC start time, so lexical order is chronological.
func (s *Service) pruneArchive(ctx context.Context) {
	retention := s.config.ArchiveRetention
	if retention <= 0 {
		return
	}

	names, err := s.archive.List(ctx, passReportPrefix)
	if err != nil {
		logrus.Errorf("Failed to list archived pass reports: %v", err)
		return
	}
	if len(names) <= retention {
		return
	}

	sort.Strings(names)
	for _, name := range names[:len(names)-retention] {
		if err := s.archive.Delete(ctx, name); err != nil {
			logrus.Errorf("Failed to prune pass report %s: %v", name, err)
		}
	}
}

// ListPassReports returns archived report names, newest first
func (s *Service) ListPassReports(ctx context.Context) ([]string, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}

	names, err := s.archive.List(ctx, passReportPrefix)
	if err != nil {
		return nil, err
	}

	result := make([]string, 0, len(names))
	for _, name := range names {
		result = append(result, strings.TrimPrefix(name, passReportPrefix))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(result)))
	return result, nil
}

// GetPassReport loads one archived report by the name ListPassReports returned
func (s *Service) GetPassReport(ctx context.Context, name string) (*models.PassReport, error) {
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	if name == "" || strings.Contains(name, "/") {
		return nil, storage.ErrNotFound
	}

	data, err := s.archive.Retrieve(ctx, passReportPrefix+name)
	if err != nil {
		return nil, err
	}

	var report models.PassReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode pass report %s: %w", name, err)
	}
	return &report, nil
}
