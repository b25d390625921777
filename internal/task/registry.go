// Package task tracks asynchronous query, verification and timeline jobs.
package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names a family of tasks. Each kind has its own Registry.
type Kind string

const (
	KindQuery        Kind = "query"
	KindVerification Kind = "verification"
	KindTimeline     Kind = "timeline"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further transitions will happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

var (
	// ErrNotFound is returned for unknown task IDs.
	ErrNotFound = errors.New("task not found")
	// ErrNotFinished is returned when a result is requested too early.
	ErrNotFinished = errors.New("task not finished")
	// ErrFailed wraps the failure message of a task that ended in error.
	ErrFailed = errors.New("task failed")
)

// Info is the externally visible state of a task.
type Info struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Query        string    `json:"query,omitempty"`
	Mode         string    `json:"mode,omitempty"`
	Status       Status    `json:"status"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	HasResult    bool      `json:"has_result"`
}

type record[R any] struct {
	info    Info
	payload R
}

// Registry stores the tasks of one kind. R is the payload produced by the
// task; it may be filled in gradually with Stash before Complete.
type Registry[R any] struct {
	mu    sync.Mutex
	kind  Kind
	tasks map[string]*record[R]
	now   func() time.Time
}

// NewRegistry creates an empty registry for kind.
func NewRegistry[R any](kind Kind) *Registry[R] {
	return &Registry[R]{
		kind:  kind,
		tasks: make(map[string]*record[R]),
		now:   time.Now,
	}
}

// Create registers a pending task and returns its info.
func (r *Registry[R]) Create(query, mode string) Info {
	now := r.now().UTC()
	info := Info{
		ID:        fmt.Sprintf("%s_%s", r.kind, uuid.NewString()),
		Kind:      r.kind,
		Query:     query,
		Mode:      mode,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[info.ID] = &record[R]{info: info}
	return info
}

func (r *Registry[R]) update(id string, fn func(rec *record[R])) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(rec)
	rec.info.UpdatedAt = r.now().UTC()
	return nil
}

// Progress marks the task running at the given percentage.
func (r *Registry[R]) Progress(id string, progress int) error {
	return r.update(id, func(rec *record[R]) {
		rec.info.Status = StatusRunning
		rec.info.Progress = min(max(progress, 0), 100)
	})
}

// Stash lets a running task attach partial output to its payload.
func (r *Registry[R]) Stash(id string, fn func(payload *R)) error {
	return r.update(id, func(rec *record[R]) {
		fn(&rec.payload)
	})
}

// Complete stores the final payload and marks the task completed.
func (r *Registry[R]) Complete(id string, payload R) error {
	return r.update(id, func(rec *record[R]) {
		rec.payload = payload
		rec.info.Status = StatusCompleted
		rec.info.Progress = 100
		rec.info.HasResult = true
	})
}

// Fail marks the task as errored. Any stashed payload is kept.
func (r *Registry[R]) Fail(id string, cause error) error {
	return r.update(id, func(rec *record[R]) {
		rec.info.Status = StatusError
		rec.info.Progress = 0
		rec.info.ErrorMessage = cause.Error()
	})
}

// Get returns the current info of a task.
func (r *Registry[R]) Get(id string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[id]
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.info, nil
}

// Result returns the payload of a completed task. Unfinished tasks yield
// ErrNotFinished and failed ones ErrFailed; the info is returned either way.
func (r *Registry[R]) Result(id string) (Info, R, error) {
	info, payload, err := r.Peek(id)
	if err != nil {
		return info, payload, err
	}

	var zero R
	switch info.Status {
	case StatusCompleted:
		return info, payload, nil
	case StatusError:
		return info, zero, fmt.Errorf("%w: %s", ErrFailed, info.ErrorMessage)
	default:
		return info, zero, ErrNotFinished
	}
}

// Peek returns the payload whatever the status, including partial output.
func (r *Registry[R]) Peek(id string) (Info, R, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.tasks[id]
	if !ok {
		var zero R
		return Info{}, zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.info, rec.payload, nil
}

// List returns all tasks, newest first.
func (r *Registry[R]) List() []Info {
	r.mu.Lock()
	out := make([]Info, 0, len(r.tasks))
	for _, rec := range r.tasks {
		out = append(out, rec.info)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Prune drops terminal tasks last updated before cutoff and returns how many
// were removed. Pending and running tasks are never pruned.
func (r *Registry[R]) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, rec := range r.tasks {
		if rec.info.Status.Terminal() && rec.info.UpdatedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
		}
	}
	return removed
}
