package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/azure/follower-milestone-bot/internal/models"
	"github.com/azure/follower-milestone-bot/internal/monitoring"
	"github.com/azure/follower-milestone-bot/internal/storage"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// PassService is the reconciliation engine as seen by the HTTP layer
type PassService interface {
	GetMetrics() string
	TriggerPass(ctx context.Context) error
	ListPassReports(ctx context.Context) ([]string, error)
	GetPassReport(ctx context.Context, name string) (*models.PassReport, error)
}

// ReadStore is the read-only store access the HTTP layer needs
type ReadStore interface {
	GetProfile(ctx context.Context, id int64) (*models.TrackedProfile, error)
	ListSamples(ctx context.Context, query storage.SampleQuery) ([]models.FollowerSample, error)
	ListNotifications(ctx context.Context, query storage.NotificationQuery) ([]models.AlertNotification, error)
}

// InsightsService computes derived follower analytics
type InsightsService interface {
	ProfileInsights(ctx context.Context, profileID int64) (*models.ProfileInsights, error)
	TopMovers(ctx context.Context, owner string, limit int) (*models.TopMovers, error)
}

// Server exposes health, metrics, manual triggering and read-only history
type Server struct {
	baseCtx        context.Context
	passes         PassService
	store          ReadStore
	insights       InsightsService
	topMoversLimit int
	router         *mux.Router
}

// New builds the router. Passes started through /trigger run under baseCtx.
func New(baseCtx context.Context, passes PassService, store ReadStore, insights InsightsService, topMoversLimit int) *Server {
	s := &Server{
		baseCtx:        baseCtx,
		passes:         passes,
		store:          store,
		insights:       insights,
		topMoversLimit: topMoversLimit,
		router:         mux.NewRouter(),
	}

	s.router.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	s.router.HandleFunc("/metrics", s.metricsHandler).Methods("GET")
	s.router.HandleFunc("/trigger", s.triggerHandler).Methods("POST")
	s.router.HandleFunc("/profiles/{id:[0-9]+}/history", s.historyHandler).Methods("GET")
	s.router.HandleFunc("/profiles/{id:[0-9]+}/insights", s.profileInsightsHandler).Methods("GET")
	s.router.HandleFunc("/insights/top", s.topMoversHandler).Methods("GET")
	s.router.HandleFunc("/notifications", s.notificationsHandler).Methods("GET")
	s.router.HandleFunc("/passes", s.passesHandler).Methods("GET")
	s.router.HandleFunc("/passes/{name}", s.passReportHandler).Methods("GET")

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.passes.GetMetrics()))
}

func (s *Server) triggerHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.passes.TriggerPass(s.baseCtx); err != nil {
		if errors.Is(err, monitoring.ErrPassInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		logrus.Errorf("Manual reconciliation trigger failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to trigger reconciliation pass")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Reconciliation pass triggered"})
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetProfile(r.Context(), id); err != nil {
		s.storeError(w, err)
		return
	}

	query := storage.SampleQuery{ProfileID: id}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		query.Limit = limit
	}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		query.Since = since
	}

	samples, err := s.store.ListSamples(r.Context(), query)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if samples == nil {
		samples = []models.FollowerSample{}
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) profileInsightsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := profileID(w, r)
	if !ok {
		return
	}

	result, err := s.insights.ProfileInsights(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) topMoversHandler(w http.ResponseWriter, r *http.Request) {
	limit := s.topMoversLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	result, err := s.insights.TopMovers(r.Context(), r.URL.Query().Get("owner"), limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	query := storage.NotificationQuery{Owner: r.URL.Query().Get("owner")}
	if v := r.URL.Query().Get("profile_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "profile_id must be an integer")
			return
		}
		query.ProfileID = id
	}

	list, err := s.store.ListNotifications(r.Context(), query)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if list == nil {
		list = []models.AlertNotification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) passesHandler(w http.ResponseWriter, r *http.Request) {
	names, err := s.passes.ListPassReports(r.Context())
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": names})
}

func (s *Server) passReportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.passes.GetPassReport(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, monitoring.ErrArchiveDisabled):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logrus.Errorf("Request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func profileID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
