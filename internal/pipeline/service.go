// Package pipeline runs query, verification and timeline tasks in the
// background and exposes their progress through task registries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/news-provenance/internal/agent"
	"github.com/DeafMist/news-provenance/internal/models"
	"github.com/DeafMist/news-provenance/internal/task"
	"github.com/DeafMist/news-provenance/internal/timeline"
)

const (
	ModeDeep  = "deep"
	ModeQuick = "quick"

	defaultMaxConcurrent = 4
	defaultTaskTTL       = 24 * time.Hour
)

var (
	// ErrInvalidInput is returned when a submission is missing required data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrClosed is returned for submissions after Close.
	ErrClosed = errors.New("pipeline closed")
)

// Researcher runs the research agent.
type Researcher interface {
	Research(ctx context.Context, query, mode string) (agent.Report, error)
}

// Verifier judges a report against its query.
type Verifier interface {
	Verify(ctx context.Context, query, report string) (models.Verification, error)
}

// Publisher forwards the search results of a research run to the archive.
type Publisher interface {
	PublishState(ctx context.Context, taskID, query string, state models.ResearchState) (int, error)
}

// HistoryRecorder persists finished queries.
type HistoryRecorder interface {
	Record(ctx context.Context, entry models.HistoryEntry) error
}

// QueryResult is the payload of a query task. Report and State are stashed
// as soon as research finishes, before verification runs.
type QueryResult struct {
	Query        string                `json:"query"`
	Mode         string                `json:"mode"`
	Report       string                `json:"report"`
	State        *models.ResearchState `json:"state,omitempty"`
	Verification *models.Verification  `json:"verification,omitempty"`
	SourceCount  int                   `json:"source_count"`
}

// Options tunes a Service. Publisher and History are optional.
type Options struct {
	MaxConcurrent int
	TaskTTL       time.Duration
	Publisher     Publisher
	History       HistoryRecorder
}

// Service owns the task registries and the worker goroutines.
type Service struct {
	researcher Researcher
	verifier   Verifier
	publisher  Publisher
	history    HistoryRecorder
	builder    *timeline.Builder
	log        *slog.Logger
	ttl        time.Duration

	queries       *task.Registry[QueryResult]
	verifications *task.Registry[models.Verification]
	timelines     *task.Registry[timeline.Timeline]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	group  errgroup.Group
}

// New creates a Service. Call Close to stop it. A nil logger discards output.
func New(researcher Researcher, verifier Verifier, builder *timeline.Builder, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.TaskTTL <= 0 {
		opts.TaskTTL = defaultTaskTTL
	}
	if builder == nil {
		builder = timeline.NewBuilder(nil, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		researcher:    researcher,
		verifier:      verifier,
		publisher:     opts.Publisher,
		history:       opts.History,
		builder:       builder,
		log:           logger,
		ttl:           opts.TaskTTL,
		queries:       task.NewRegistry[QueryResult](task.KindQuery),
		verifications: task.NewRegistry[models.Verification](task.KindVerification),
		timelines:     task.NewRegistry[timeline.Timeline](task.KindTimeline),
		ctx:           ctx,
		cancel:        cancel,
	}
	s.group.SetLimit(opts.MaxConcurrent)
	return s
}

// spawn queues run on the worker group. Submissions never block; tasks wait
// in pending state until a slot frees up.
func (s *Service) spawn(id string, fail func(string, error) error, run func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.group.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("task panicked: %v", r)
					s.log.Error("task crashed", slog.String("task_id", id), slog.Any("err", err))
					_ = fail(id, err)
				}
			}()
			if err := s.ctx.Err(); err != nil {
				_ = fail(id, err)
				return nil
			}
			run(s.ctx)
			return nil
		})
	}()
}

func normalizeMode(mode string) string {
	if strings.TrimSpace(mode) == ModeQuick {
		return ModeQuick
	}
	return ModeDeep
}

// SubmitQuery starts a research run followed by verification.
func (s *Service) SubmitQuery(query, mode string) (task.Info, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return task.Info{}, fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if s.ctx.Err() != nil {
		return task.Info{}, ErrClosed
	}
	mode = normalizeMode(mode)

	info := s.queries.Create(query, mode)
	s.log.Info("query submitted", slog.String("task_id", info.ID), slog.String("mode", mode))
	s.spawn(info.ID, s.queries.Fail, func(ctx context.Context) {
		s.runQuery(ctx, info.ID, query, mode)
	})
	return info, nil
}

func (s *Service) runQuery(ctx context.Context, id, query, mode string) {
	log := s.log.With(slog.String("task_id", id))
	_ = s.queries.Progress(id, 10)

	_ = s.queries.Progress(id, 30)
	rep, err := s.researcher.Research(ctx, query, mode)
	if err != nil {
		log.Error("research failed", slog.Any("err", err))
		_ = s.queries.Fail(id, err)
		return
	}

	state := rep.State
	sources := len(state.SearchResults())
	_ = s.queries.Stash(id, func(p *QueryResult) {
		p.Query = query
		p.Mode = mode
		p.Report = rep.Report
		p.State = &state
		p.SourceCount = sources
	})
	_ = s.queries.Progress(id, 80)

	if s.publisher != nil && sources > 0 {
		if _, err := s.publisher.PublishState(ctx, id, query, state); err != nil {
			log.Warn("archive publish failed", slog.Any("err", err))
		}
	}

	verification, err := s.verifier.Verify(ctx, query, rep.Report)
	if err != nil {
		log.Warn("verification failed", slog.Any("err", err))
		verification = models.Verification{
			Verdict:   models.VerdictUndetermined,
			Summary:   err.Error(),
			Query:     query,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Error:     err.Error(),
		}
	}

	// history is written before Complete so every completed query is listed
	if s.history != nil {
		entry := models.HistoryEntry{
			TaskID:      id,
			Query:       query,
			Mode:        mode,
			Verdict:     verification.Verdict,
			SourceCount: sources,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.history.Record(ctx, entry); err != nil {
			log.Warn("record history failed", slog.Any("err", err))
		}
	}

	_ = s.queries.Complete(id, QueryResult{
		Query:        query,
		Mode:         mode,
		Report:       rep.Report,
		State:        &state,
		Verification: &verification,
		SourceCount:  sources,
	})
	log.Info("query completed", slog.Int("sources", sources), slog.String("verdict", string(verification.Verdict)))
}

// SubmitVerification verifies report against query. When report is empty and
// taskID names a query task, the report (and query, if empty) come from it.
func (s *Service) SubmitVerification(query, report, taskID string) (task.Info, error) {
	query = strings.TrimSpace(query)
	report = strings.TrimSpace(report)
	taskID = strings.TrimSpace(taskID)

	if report == "" && taskID != "" {
		info, payload, err := s.queries.Peek(taskID)
		if err != nil {
			return task.Info{}, err
		}
		report = payload.Report
		if query == "" {
			query = info.Query
		}
	}
	if query == "" || report == "" {
		return task.Info{}, fmt.Errorf("%w: query and report are required", ErrInvalidInput)
	}
	if s.ctx.Err() != nil {
		return task.Info{}, ErrClosed
	}

	info := s.verifications.Create(query, "")
	s.spawn(info.ID, s.verifications.Fail, func(ctx context.Context) {
		s.runVerification(ctx, info.ID, query, report)
	})
	return info, nil
}

func (s *Service) runVerification(ctx context.Context, id, query, report string) {
	_ = s.verifications.Progress(id, 10)
	_ = s.verifications.Progress(id, 30)

	_ = s.verifications.Progress(id, 50)
	v, err := s.verifier.Verify(ctx, query, report)
	if err != nil {
		s.log.Error("verification failed", slog.String("task_id", id), slog.Any("err", err))
		_ = s.verifications.Fail(id, err)
		return
	}
	_ = s.verifications.Complete(id, v)
}

// SubmitTimeline builds a timeline in the background. state wins over
// taskID; otherwise the stashed state of the query task is used.
func (s *Service) SubmitTimeline(state *models.ResearchState, taskID string) (task.Info, error) {
	state, err := s.resolveState(state, taskID)
	if err != nil {
		return task.Info{}, err
	}
	if s.ctx.Err() != nil {
		return task.Info{}, ErrClosed
	}

	info := s.timelines.Create(state.Query, "")
	s.spawn(info.ID, s.timelines.Fail, func(ctx context.Context) {
		s.runTimeline(info.ID, *state)
	})
	return info, nil
}

func (s *Service) resolveState(state *models.ResearchState, taskID string) (*models.ResearchState, error) {
	if state != nil {
		return state, nil
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return nil, fmt.Errorf("%w: state or task_id is required", ErrInvalidInput)
	}
	info, payload, err := s.queries.Peek(taskID)
	if err != nil {
		return nil, err
	}
	if payload.State == nil {
		return nil, fmt.Errorf("%w: task %s has no research state yet", ErrInvalidInput, taskID)
	}
	st := *payload.State
	if st.Query == "" {
		st.Query = info.Query
	}
	return &st, nil
}

func (s *Service) runTimeline(id string, state models.ResearchState) {
	_ = s.timelines.Progress(id, 10)
	_ = s.timelines.Progress(id, 30)

	_ = s.timelines.Progress(id, 50)
	tl, err := s.builder.Build(state)
	if err == nil && tl.Failed() {
		err = errors.New(tl.Error)
	}
	if err != nil {
		_ = s.timelines.Stash(id, func(p *timeline.Timeline) { *p = tl })
		_ = s.timelines.Fail(id, err)
		return
	}
	_ = s.timelines.Complete(id, tl)
}

// BuildTimeline builds synchronously. The task is still registered so it can
// be fetched again by ID. On failure the error-shaped timeline is returned
// alongside the error.
func (s *Service) BuildTimeline(state models.ResearchState) (task.Info, timeline.Timeline, error) {
	info := s.timelines.Create(state.Query, "")
	s.runTimeline(info.ID, state)

	info, tl, err := s.timelines.Peek(info.ID)
	if err != nil {
		return info, tl, err
	}
	if info.Status == task.StatusError {
		return info, tl, fmt.Errorf("%w: %s", task.ErrFailed, info.ErrorMessage)
	}
	return info, tl, nil
}

// QueryStatus returns the state of a query task.
func (s *Service) QueryStatus(id string) (task.Info, error) { return s.queries.Get(id) }

// QueryResult returns the payload of a completed query task.
func (s *Service) QueryResult(id string) (task.Info, QueryResult, error) { return s.queries.Result(id) }

// VerificationStatus returns the state of a verification task.
func (s *Service) VerificationStatus(id string) (task.Info, error) { return s.verifications.Get(id) }

// VerificationResult returns the payload of a completed verification task.
func (s *Service) VerificationResult(id string) (task.Info, models.Verification, error) {
	return s.verifications.Result(id)
}

// TimelineStatus returns the state of a timeline task.
func (s *Service) TimelineStatus(id string) (task.Info, error) { return s.timelines.Get(id) }

// TimelineResult returns the payload of a completed timeline task.
func (s *Service) TimelineResult(id string) (task.Info, timeline.Timeline, error) {
	return s.timelines.Result(id)
}

// Prune drops terminal tasks older than the TTL from every registry.
func (s *Service) Prune(now time.Time) int {
	cutoff := now.Add(-s.ttl)
	removed := s.queries.Prune(cutoff) + s.verifications.Prune(cutoff) + s.timelines.Prune(cutoff)
	if removed > 0 {
		s.log.Info("pruned tasks", slog.Int("removed", removed))
	}
	return removed
}

// StartPruner prunes on every interval tick until Close.
func (s *Service) StartPruner(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case now := <-ticker.C:
				s.Prune(now)
			}
		}
	}()
}

// Close cancels running tasks and waits for every worker to return.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
	_ = s.group.Wait()
}
