// Package daemonctl is the HTTP client for droverd's control API, used
// by the drover CLI.
package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"drover/internal/config"
	"drover/internal/daemon"
	"drover/internal/scheduler"
)

// Client talks to one droverd instance.
type Client struct {
	base string
	http *http.Client
}

// New builds a client against the configured API bind address.
func New(cfg *config.Config) *Client {
	return &Client{
		base: "http://" + strings.TrimSpace(cfg.Paths.APIBind),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewForAddress builds a client against an explicit host:port.
func NewForAddress(addr string) *Client {
	return &Client{
		base: "http://" + strings.TrimSpace(addr),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// apiError is the JSON error envelope the daemon returns.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is droverd running? %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		var envelope apiError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr == nil && envelope.Error != "" {
			return fmt.Errorf("daemon: %s", envelope.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (daemon.Status, error) {
	var status daemon.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &status)
	return status, err
}

// History fetches recent deliveries, newest first.
func (c *Client) History(ctx context.Context) ([]scheduler.HistoryEntry, error) {
	var payload struct {
		Entries []scheduler.HistoryEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, "/api/history", nil, &payload)
	return payload.Entries, err
}

// TargetView mirrors the daemon's pooled target listing.
type TargetView struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Injected bool   `json:"injected"`
}

// Targets fetches the pooled targets.
func (c *Client) Targets(ctx context.Context) ([]TargetView, error) {
	var payload struct {
		Targets []TargetView `json:"targets"`
	}
	err := c.do(ctx, http.MethodGet, "/api/targets", nil, &payload)
	return payload.Targets, err
}

// StatsReport carries the aggregated payload counters.
type StatsReport struct {
	Stats       map[string]float64 `json:"stats"`
	AwayActions map[string]float64 `json:"awayActions"`
}

// Stats fetches the aggregated payload counters.
func (c *Client) Stats(ctx context.Context) (StatsReport, error) {
	var report StatsReport
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &report)
	return report, err
}

// ResetStats zeroes the payload counters on every connection.
func (c *Client) ResetStats(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/stats/reset", nil, nil)
}

// SetFocus reports a window focus change to the daemon.
func (c *Client) SetFocus(ctx context.Context, focused bool) error {
	return c.do(ctx, http.MethodPost, "/api/focus",
		map[string]bool{"focused": focused}, nil)
}

// QueueCommand issues one of start/pause/resume/skip/reset.
func (c *Client) QueueCommand(ctx context.Context, command string) error {
	return c.do(ctx, http.MethodPost, "/api/queue/"+command, nil, nil)
}

// QueueStop stops a run and reports whether anything was running.
func (c *Client) QueueStop(ctx context.Context) (bool, error) {
	var payload struct {
		Stopped bool `json:"stopped"`
	}
	err := c.do(ctx, http.MethodPost, "/api/queue/stop", nil, &payload)
	return payload.Stopped, err
}

// SetQuota updates the quota gate.
func (c *Client) SetQuota(ctx context.Context, exhausted bool) error {
	return c.do(ctx, http.MethodPost, "/api/quota",
		map[string]bool{"exhausted": exhausted}, nil)
}

// SetConversation pins deliveries to a conversation target.
func (c *Client) SetConversation(ctx context.Context, target string) error {
	return c.do(ctx, http.MethodPost, "/api/conversation",
		map[string]string{"target": target}, nil)
}

// TaskView mirrors the daemon's task listing.
type TaskView struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tasks fetches the persisted task list.
func (c *Client) Tasks(ctx context.Context) ([]TaskView, error) {
	var payload struct {
		Tasks []TaskView `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &payload)
	return payload.Tasks, err
}

// AddTask appends a prompt to the task list.
func (c *Client) AddTask(ctx context.Context, text string) (int64, error) {
	var payload struct {
		ID int64 `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/tasks",
		map[string]string{"text": text}, &payload)
	return payload.ID, err
}

// ClearTasks removes every persisted task.
func (c *Client) ClearTasks(ctx context.Context) (int64, error) {
	var payload struct {
		Removed int64 `json:"removed"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/tasks", nil, &payload)
	return payload.Removed, err
}
