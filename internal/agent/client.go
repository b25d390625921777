// Package agent talks to the external research and verification agents.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/DeafMist/news-provenance/internal/models"
)

const (
	DefaultTimeout = 50 * time.Minute
	maxErrorBody   = 512
)

// ErrNotConfigured is returned when the agent has no base URL.
var ErrNotConfigured = errors.New("agent not configured")

// Config holds connection settings for one agent.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RateLimit is requests per second; zero disables throttling.
	RateLimit float64
	Burst     int
}

// Client is a JSON-over-HTTP agent client.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

// New creates a client. An empty BaseURL yields a client whose calls fail
// with ErrNotConfigured.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limiter: limiter,
	}
}

// Configured reports whether the client has somewhere to send requests.
func (c *Client) Configured() bool { return c.baseURL != "" }

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, msg)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Report is the output of a research run.
type Report struct {
	Report string               `json:"report"`
	State  models.ResearchState `json:"state"`
}

type researchRequest struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

// Research runs the research agent for query.
func (c *Client) Research(ctx context.Context, query, mode string) (Report, error) {
	var out Report
	if err := c.post(ctx, "/research", researchRequest{Query: query, Mode: mode}, &out); err != nil {
		return Report{}, fmt.Errorf("research: %w", err)
	}
	if out.State.Query == "" {
		out.State.Query = query
	}
	return out, nil
}

type verifyRequest struct {
	Query  string `json:"query"`
	Report string `json:"report"`
}

type verifyResponse struct {
	Verdict string `json:"verdict"`
	Summary string `json:"summary"`
}

// Verify asks the verifier to judge report as an answer to query.
func (c *Client) Verify(ctx context.Context, query, report string) (models.Verification, error) {
	var out verifyResponse
	if err := c.post(ctx, "/verify", verifyRequest{Query: query, Report: report}, &out); err != nil {
		return models.Verification{}, fmt.Errorf("verify: %w", err)
	}
	return models.Verification{
		Verdict:   models.ParseVerdict(out.Verdict),
		Summary:   out.Summary,
		Query:     query,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}
