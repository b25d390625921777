// Package client is a Go client for the news-provenance API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DeafMist/news-provenance/internal/models"
	"github.com/DeafMist/news-provenance/internal/pipeline"
	"github.com/DeafMist/news-provenance/internal/task"
	"github.com/DeafMist/news-provenance/internal/timeline"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultPollInterval   = 2 * time.Second
)

// ErrTimeout is returned when a task does not finish before the poll timeout.
var ErrTimeout = errors.New("timed out waiting for task")

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
	Task       *task.Info
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Client calls the task API.
type Client struct {
	http    *http.Client
	baseURL string
}

// New creates a client for baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type envelope struct {
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
	Task    *task.Info `json:"task,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var env envelope
		if json.Unmarshal(data, &env) == nil && env.Error != "" {
			apiErr.Message = env.Error
			apiErr.Task = env.Task
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type taskResponse struct {
	Task task.Info `json:"task"`
}

func (c *Client) status(ctx context.Context, kind task.Kind, id string) (task.Info, error) {
	var out taskResponse
	err := c.do(ctx, http.MethodGet, "/api/"+string(kind)+"/"+url.PathEscape(id)+"/status", nil, &out)
	return out.Task, err
}

// CreateQuery submits a research query.
func (c *Client) CreateQuery(ctx context.Context, query, mode string) (task.Info, error) {
	var out taskResponse
	in := map[string]string{"query": query, "mode": mode}
	if err := c.do(ctx, http.MethodPost, "/api/query", in, &out); err != nil {
		return task.Info{}, err
	}
	return out.Task, nil
}

// QueryStatus returns the state of a query task.
func (c *Client) QueryStatus(ctx context.Context, id string) (task.Info, error) {
	return c.status(ctx, task.KindQuery, id)
}

// QueryResult fetches the result of a completed query task.
func (c *Client) QueryResult(ctx context.Context, id string) (task.Info, pipeline.QueryResult, error) {
	var out struct {
		Task task.Info `json:"task"`
		pipeline.QueryResult
	}
	err := c.do(ctx, http.MethodGet, "/api/query/"+url.PathEscape(id), nil, &out)
	return out.Task, out.QueryResult, err
}

// CreateTimeline submits a timeline build for the state of a query task.
func (c *Client) CreateTimeline(ctx context.Context, queryTaskID string) (task.Info, error) {
	var out taskResponse
	in := map[string]string{"task_id": queryTaskID}
	if err := c.do(ctx, http.MethodPost, "/api/timeline", in, &out); err != nil {
		return task.Info{}, err
	}
	return out.Task, nil
}

// TimelineStatus returns the state of a timeline task.
func (c *Client) TimelineStatus(ctx context.Context, id string) (task.Info, error) {
	return c.status(ctx, task.KindTimeline, id)
}

// TimelineResult fetches a finished timeline.
func (c *Client) TimelineResult(ctx context.Context, id string) (task.Info, timeline.Timeline, error) {
	var out struct {
		Task task.Info `json:"task"`
		timeline.Timeline
	}
	err := c.do(ctx, http.MethodGet, "/api/timeline/"+url.PathEscape(id), nil, &out)
	return out.Task, out.Timeline, err
}

// BuildTimeline builds a timeline synchronously on the server.
func (c *Client) BuildTimeline(ctx context.Context, state models.ResearchState) (timeline.Timeline, error) {
	var out struct {
		timeline.Timeline
	}
	in := map[string]any{"state": state}
	if err := c.do(ctx, http.MethodPost, "/api/timeline/build", in, &out); err != nil {
		return timeline.Timeline{}, err
	}
	return out.Timeline, nil
}

// PollOptions controls WaitFor*.
type PollOptions struct {
	Interval   time.Duration
	Timeout    time.Duration
	OnProgress func(task.Info)
}

// WaitForQuery polls until the query task finishes.
func (c *Client) WaitForQuery(ctx context.Context, id string, opts PollOptions) (task.Info, error) {
	return c.wait(ctx, task.KindQuery, id, opts)
}

// WaitForTimeline polls until the timeline task finishes.
func (c *Client) WaitForTimeline(ctx context.Context, id string, opts PollOptions) (task.Info, error) {
	return c.wait(ctx, task.KindTimeline, id, opts)
}

func (c *Client) wait(ctx context.Context, kind task.Kind, id string, opts PollOptions) (task.Info, error) {
	if opts.Interval <= 0 {
		opts.Interval = defaultPollInterval
	}
	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	last := -1
	for {
		info, err := c.status(ctx, kind, id)
		if err != nil {
			return info, err
		}
		if opts.OnProgress != nil && info.Progress != last {
			opts.OnProgress(info)
			last = info.Progress
		}
		switch info.Status {
		case task.StatusCompleted:
			return info, nil
		case task.StatusError:
			return info, fmt.Errorf("%w: %s", task.ErrFailed, info.ErrorMessage)
		}

		select {
		case <-ctx.Done():
			return info, ctx.Err()
		case <-deadline:
			return info, fmt.Errorf("%w %s after %s", ErrTimeout, id, opts.Timeout)
		case <-ticker.C:
		}
	}
}
