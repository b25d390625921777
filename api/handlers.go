package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeafMist/news-provenance/internal/config"
	"github.com/DeafMist/news-provenance/internal/elasticsearch"
	"github.com/DeafMist/news-provenance/internal/models"
	"github.com/DeafMist/news-provenance/internal/pipeline"
	"github.com/DeafMist/news-provenance/internal/task"
	"github.com/DeafMist/news-provenance/internal/timeline"
)

const maxBodyBytes = 10 << 20

type sourceSearcher interface {
	SearchSources(ctx context.Context, params elasticsearch.SearchParams) (*elasticsearch.SearchResult, error)
	Health(ctx context.Context) error
}

type historyReader interface {
	Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error)
}

type server struct {
	log     *slog.Logger
	cfg     *config.API
	svc     *pipeline.Service
	es      sourceSearcher
	history historyReader
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", s.handleCreateQuery)
		r.Get("/query/{id}", s.handleQueryResult)
		r.Get("/query/{id}/status", s.handleStatus(s.svc.QueryStatus))

		r.Post("/verification", s.handleCreateVerification)
		r.Get("/verification/{id}", s.handleVerificationResult)
		r.Get("/verification/{id}/status", s.handleStatus(s.svc.VerificationStatus))

		r.Post("/timeline", s.handleCreateTimeline)
		r.Post("/timeline/build", s.handleBuildTimeline)
		r.Get("/timeline/{id}", s.handleTimelineResult)
		r.Get("/timeline/{id}/status", s.handleStatus(s.svc.TimelineStatus))

		r.Get("/sources", s.handleSources)
		r.Get("/history", s.handleHistory)
	})
	return r
}

type errorResponse struct {
	Success bool       `json:"success"`
	Error   string     `json:"error"`
	Task    *task.Info `json:"task,omitempty"`
}

type taskResponse struct {
	Success bool      `json:"success"`
	TaskID  string    `json:"task_id"`
	Task    task.Info `json:"task"`
}

func fail(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeTaskError maps task and pipeline errors onto HTTP statuses.
func writeTaskError(w http.ResponseWriter, info task.Info, err error) {
	resp := errorResponse{Error: err.Error()}
	if info.ID != "" {
		resp.Task = &info
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, task.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, task.ErrNotFinished), errors.Is(err, pipeline.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, task.ErrFailed):
		resp.Error = info.ErrorMessage
	case errors.Is(err, pipeline.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", pipeline.ErrInvalidInput, err)
	}
	return nil
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.es.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleStatus(get func(string) (task.Info, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := get(chi.URLParam(r, "id"))
		if err != nil {
			writeTaskError(w, info, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Success bool      `json:"success"`
			Task    task.Info `json:"task"`
		}{true, info})
	}
}

type queryRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

func (s *server) handleCreateQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(r, &req); err != nil {
		writeTaskError(w, task.Info{}, err)
		return
	}
	info, err := s.svc.SubmitQuery(req.Query, req.Mode)
	if err != nil {
		writeTaskError(w, task.Info{}, err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskResponse{Success: true, TaskID: info.ID, Task: info})
}

func (s *server) handleQueryResult(w http.ResponseWriter, r *http.Request) {
	info, res, err := s.svc.QueryResult(chi.URLParam(r, "id"))
	if err != nil {
		writeTaskError(w, info, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool      `json:"success"`
		Task    task.Info `json:"task"`
		pipeline.QueryResult
	}{true, info, res})
}

type verificationRequest struct {
	Query  string `json:"query"`
	Report string `json:"report"`
	TaskID string `json:"task_id"`
}

func (s *server) handleCreateVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := decodeBody(r, &req); err != nil {
		writeTaskError(w, task.Info{}, err)
		return
	}
	info, err := s.svc.SubmitVerification(req.Query, req.Report, req.TaskID)
	if err != nil {
		writeTaskError(w, task.Info{}, err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskResponse{Success: true, TaskID: info.ID, Task: info})
}

func (s *server) handleVerificationResult(w http.ResponseWriter, r *http.Request) {
	info, v, err := s.svc.VerificationResult(chi.URLParam(r, "id"))
	if err != nil {
		writeTaskError(w, info, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool      `json:"success"`
		Task    task.Info `json:"task"`
		models.Verification
	}{true, info, v})
}

type timelineRequest struct {
	State  *models.ResearchState `json:"state"`
	TaskID string                `json:"task_id"`
}

func (s *server) handleCreateTimeline(w http.ResponseWriter, r *http.Request) {
	var req timelineRequest
	if err := decodeBody(r, &req); err != nil {
		writeTaskError(w, task.Info{}, err)
		return
	}
	info, err := s.svc.SubmitTimeline(req.State, req.TaskID)
	if err != nil {
		writeTaskError(w, task.Info{}, err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskResponse{Success: true, TaskID: info.ID, Task: info})
}

func (s *server) handleTimelineResult(w http.ResponseWriter, r *http.Request) {
	info, tl, err := s.svc.TimelineResult(chi.URLParam(r, "id"))
	if err != nil {
		writeTaskError(w, info, err)
		return
	}
	writeJSON(w, http.StatusOK, timelineResponse{Success: true, Task: &info, Timeline: tl})
}

type timelineResponse struct {
	Success bool       `json:"success"`
	Task    *task.Info `json:"task,omitempty"`
	timeline.Timeline
}

func (s *server) handleBuildTimeline(w http.ResponseWriter, r *http.Request) {
	var req timelineRequest
	if err := decodeBody(r, &req); err != nil {
		writeTaskError(w, task.Info{}, err)
		return
	}
	if req.State == nil {
		writeTaskError(w, task.Info{}, fmt.Errorf("%w: state is required", pipeline.ErrInvalidInput))
		return
	}

	info, tl, err := s.svc.BuildTimeline(*req.State)
	if err != nil {
		s.log.Warn("timeline build failed", slog.String("task_id", info.ID), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, timelineResponse{Task: &info, Timeline: tl})
		return
	}
	writeJSON(w, http.StatusOK, timelineResponse{Success: true, Task: &info, Timeline: tl})
}

func (s *server) handleSources(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := r.URL.Query()
	params := elasticsearch.SearchParams{
		Query:   strings.TrimSpace(q.Get("q")),
		Website: strings.TrimSpace(q.Get("website")),
		TaskID:  strings.TrimSpace(q.Get("task_id")),
		From:    clampInt(q.Get("from"), 0, 10_000),
		Size:    clampInt(q.Get("size"), s.cfg.DefaultPage, s.cfg.MaxPage),
		Start:   parseTime(q.Get("start")),
		End:     parseTime(q.Get("end")),
	}

	result, err := s.es.SearchSources(ctx, params)
	if err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(r.URL.Query().Get("limit"), 20, 200)
	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Success bool                  `json:"success"`
		History []models.HistoryEntry `json:"history"`
	}{true, entries})
}

// parseTime accepts RFC 3339 timestamps and plain dates.
func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
