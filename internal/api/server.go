// Package api exposes the service over HTTP: alert ingestion, predictions,
// analyst classification, training triggers, model version management,
// settings, and Prometheus metrics.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"alertguard/internal/alert"
	"alertguard/internal/features"
	"alertguard/internal/ingest"
	"alertguard/internal/ml"
	"alertguard/internal/sched"
	"alertguard/internal/storage"
	"alertguard/internal/versioning"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server hosts the HTTP API.
type Server struct {
	engine    *ingest.Engine
	runtime   *ml.Runtime
	store     *storage.Store
	versions  *versioning.Store
	scheduler *sched.Scheduler
	metrics   MetricsInterface
	apiKey    string
	threshold float64

	server *http.Server
}

// MetricsInterface defines the metrics methods the API layer reports to.
type MetricsInterface interface {
	HumanLabelsInc()
	RollbacksInc()
	ErrorsInc()
}

// Deps bundles the components the server fronts.
type Deps struct {
	Engine    *ingest.Engine
	Runtime   *ml.Runtime
	Store     *storage.Store
	Versions  *versioning.Store
	Scheduler *sched.Scheduler
	Metrics   MetricsInterface
	APIKey    string
	Threshold float64
}

// New creates the HTTP server listening on addr.
func New(addr string, deps Deps) *Server {
	s := &Server{
		engine:    deps.Engine,
		runtime:   deps.Runtime,
		store:     deps.Store,
		versions:  deps.Versions,
		scheduler: deps.Scheduler,
		metrics:   deps.Metrics,
		apiKey:    deps.APIKey,
		threshold: deps.Threshold,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/events", s.auth(s.handleEvents))
	mux.HandleFunc("POST /api/v1/predict", s.auth(s.handlePredict))
	mux.HandleFunc("POST /api/v1/classify", s.auth(s.handleClassify))
	mux.HandleFunc("POST /api/v1/train", s.auth(s.handleTrain))
	mux.HandleFunc("GET /api/v1/models", s.auth(s.handleListModels))
	mux.HandleFunc("POST /api/v1/models/{id}/promote", s.auth(s.handlePromote))
	mux.HandleFunc("POST /api/v1/models/{id}/rollback", s.auth(s.handleRollback))
	mux.HandleFunc("GET /api/v1/model", s.auth(s.handleModelInfo))
	mux.HandleFunc("GET /api/v1/settings", s.auth(s.handleGetSettings))
	mux.HandleFunc("PUT /api/v1/settings", s.auth(s.handleUpdateSettings))
	mux.HandleFunc("GET /api/v1/scheduler", s.auth(s.handleSchedulerStatus))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // training trigger can block for a while
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the underlying HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// auth enforces the bearer token when an API key is configured.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var rec alert.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid alert payload: %v", err))
		return
	}
	if len(rec) == 0 {
		writeError(w, http.StatusBadRequest, "empty alert payload")
		return
	}

	res, err := s.engine.HandleAlert(rec)
	if err != nil {
		log.Error().Err(err).Msg("alert ingestion failed")
		writeError(w, http.StatusInternalServerError, "failed to store alert")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type predictResponse struct {
	Label        string   `json:"label"`
	Score        *float64 `json:"score"`
	ModelVersion string   `json:"model_version,omitempty"`
}

// handlePredict scores an alert without persisting it. Useful for analysts
// probing the model and for the SIEM backend's what-if view.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var rec alert.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid alert payload: %v", err))
		return
	}
	pred := s.runtime.Predict(features.Extract(rec))
	writeJSON(w, http.StatusOK, predictResponse{
		Label:        pred.Label,
		Score:        pred.Score,
		ModelVersion: pred.VersionID,
	})
}

type classifyRequest struct {
	AlertID string `json:"alert_id"`
	Label   string `json:"label"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.AlertID == "" {
		writeError(w, http.StatusBadRequest, "alert_id is required")
		return
	}
	if req.Label != alert.LabelMalicious && req.Label != alert.LabelBenign {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("label must be %q or %q", alert.LabelMalicious, alert.LabelBenign))
		return
	}
	if _, err := s.store.GetAlert(req.AlertID); err != nil {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err := s.store.SaveLabel(req.AlertID, req.Label, alert.ProvenanceHuman); err != nil {
		log.Error().Err(err).Str("alert_id", req.AlertID).Msg("failed to save label")
		writeError(w, http.StatusInternalServerError, "failed to save label")
		return
	}
	if s.metrics != nil {
		s.metrics.HumanLabelsInc()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"alert_id": req.AlertID,
		"label":    req.Label,
	})
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	result, err := s.scheduler.RunNow(r.Context())
	switch {
	case errors.Is(err, sched.ErrTrainingInProgress):
		writeError(w, http.StatusConflict, "training already in progress")
	case errors.Is(err, ml.ErrInsufficientTrainingData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		log.Error().Err(err).Msg("manual training run failed")
		if s.metrics != nil {
			s.metrics.ErrorsInc()
		}
		writeError(w, http.StatusInternalServerError, "training failed")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	versions, err := s.versions.List(0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list model versions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	s.changeProduction(w, r, false)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	s.changeProduction(w, r, true)
}

// changeProduction promotes or rolls back to the version in the URL, then
// reloads the runtime from the republished production artifact.
func (s *Server) changeProduction(w http.ResponseWriter, r *http.Request, rollback bool) {
	id := r.PathValue("id")

	var err error
	if rollback {
		err = s.versions.Rollback(id)
	} else {
		err = s.versions.Promote(id)
	}
	switch {
	case errors.Is(err, versioning.ErrVersionNotFound):
		writeError(w, http.StatusNotFound, "model version not found")
		return
	case errors.Is(err, versioning.ErrAlreadyProduction):
		writeError(w, http.StatusConflict, "version is already in production")
		return
	case err != nil:
		log.Error().Err(err).Str("version", id).Bool("rollback", rollback).Msg("production change failed")
		writeError(w, http.StatusInternalServerError, "failed to change production version")
		return
	}

	if err := s.runtime.Reload(s.versions.CurrentArtifactPath(), id, s.threshold); err != nil {
		// The catalog switched but serving did not. Surface loudly; the
		// stale model keeps serving until the next successful reload.
		log.Error().Err(err).Str("version", id).Msg("model reload after production change failed")
		if s.metrics != nil {
			s.metrics.ErrorsInc()
		}
		writeError(w, http.StatusInternalServerError, "version switched but model reload failed")
		return
	}

	if rollback && s.metrics != nil {
		s.metrics.RollbacksInc()
	}
	v, err := s.versions.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read model version")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	info := s.runtime.Info()
	prod, err := s.versions.Production()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read production version")
		return
	}
	resp := map[string]any{
		"loaded":  info.Loaded,
		"version": info.VersionID,
	}
	if info.Loaded {
		resp["loaded_at"] = info.LoadedAt
		resp["threshold"] = info.Threshold
	}
	if prod != nil {
		resp["production"] = prod
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch storage.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	updated, err := s.store.UpdateSettings(patch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.scheduler.Reconfigure(updated)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.runtime.Info()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"model_loaded": info.Loaded,
	})
}
