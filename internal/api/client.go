// Package api is the HTTP client for the job-execution collaborator:
// the poll/start/stop surface the trackers bind against, plus the jobs
// table the CLI lists.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// JobStatus is the collaborator's job snapshot shape.
type JobStatus struct {
	JobID           string `json:"job_id"`
	JobType         string `json:"job_type,omitempty"`
	Status          string `json:"status"`
	ProgressCurrent int    `json:"progress_current"`
	ProgressTotal   int    `json:"progress_total"`
	ErrorMessage    string `json:"error_message,omitempty"`
	Username        string `json:"username,omitempty"`
	Source          string `json:"source,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// StartedJob is the response to a start call.
type StartedJob struct {
	JobID string `json:"job_id"`
}

// APIError carries the collaborator's error detail and HTTP status.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// Client talks to the rooksync HTTP API.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient creates a client for the given base URL (scheme://host[:port]).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// StartImport starts a game-import job for a platform username.
func (c *Client) StartImport(ctx context.Context, username, source string, maxGames int) (string, error) {
	var out StartedJob
	err := c.postJSON(ctx, "/api/import/start", map[string]any{
		"username":  username,
		"source":    source,
		"max_games": maxGames,
	}, &out)
	return out.JobID, err
}

// ImportStatus returns the most recent import job.
func (c *Client) ImportStatus(ctx context.Context) (JobStatus, error) {
	jobs, err := c.ListJobs(ctx, "import", "", 1)
	if err != nil {
		return JobStatus{}, err
	}
	if len(jobs) == 0 {
		return JobStatus{Status: "no_jobs"}, nil
	}
	return jobs[0], nil
}

// StartAnalysis starts a bulk-analysis job over unanalyzed games.
func (c *Client) StartAnalysis(ctx context.Context) (string, error) {
	var out StartedJob
	err := c.postJSON(ctx, "/api/analysis/start", nil, &out)
	return out.JobID, err
}

// AnalysisStatus returns the running or most recent analysis job.
func (c *Client) AnalysisStatus(ctx context.Context) (JobStatus, error) {
	var out JobStatus
	err := c.getJSON(ctx, "/api/analysis/status", &out)
	return out, err
}

// StopAnalysis requests cancellation of a running analysis job.
func (c *Client) StopAnalysis(ctx context.Context, jobID string) error {
	return c.postJSON(ctx, "/api/analysis/stop/"+url.PathEscape(jobID), nil, nil)
}

// StartSync triggers a manual game synchronization.
func (c *Client) StartSync(ctx context.Context) error {
	return c.postJSON(ctx, "/api/sync/start", nil, nil)
}

// SyncStatus returns the most recent sync job.
func (c *Client) SyncStatus(ctx context.Context) (JobStatus, error) {
	var out JobStatus
	err := c.getJSON(ctx, "/api/sync/status", &out)
	return out, err
}

// Backfill kinds map to their own endpoint groups.
var backfillPaths = map[string]string{
	"backfill_eco":     "backfill-eco",
	"backfill_phases":  "backfill-phases",
	"backfill_tactics": "backfill-tactics",
}

func backfillPath(kind string) (string, error) {
	p, ok := backfillPaths[kind]
	if !ok {
		return "", fmt.Errorf("unknown backfill kind %q", kind)
	}
	return p, nil
}

// StartBackfill starts a backfill job of the given kind.
func (c *Client) StartBackfill(ctx context.Context, kind string) (string, error) {
	p, err := backfillPath(kind)
	if err != nil {
		return "", err
	}
	var out StartedJob
	err = c.postJSON(ctx, "/api/"+p+"/start", nil, &out)
	return out.JobID, err
}

// BackfillStatus returns the running or most recent backfill job.
func (c *Client) BackfillStatus(ctx context.Context, kind string) (JobStatus, error) {
	p, err := backfillPath(kind)
	if err != nil {
		return JobStatus{}, err
	}
	var out JobStatus
	err = c.getJSON(ctx, "/api/"+p+"/status", &out)
	return out, err
}

// BackfillPending returns how many games still need the backfill.
func (c *Client) BackfillPending(ctx context.Context, kind string) (int, error) {
	p, err := backfillPath(kind)
	if err != nil {
		return 0, err
	}
	var out struct {
		PendingCount int `json:"pending_count"`
	}
	err = c.getJSON(ctx, "/api/"+p+"/pending", &out)
	return out.PendingCount, err
}

// StartDeleteAll starts the bulk delete job wiping all imported data.
func (c *Client) StartDeleteAll(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/data/all", nil)
	if err != nil {
		return "", err
	}
	var out StartedJob
	err = c.do(req, &out)
	return out.JobID, err
}

// DeleteAllStatus returns the running or most recent bulk delete job.
func (c *Client) DeleteAllStatus(ctx context.Context) (JobStatus, error) {
	var out JobStatus
	err := c.getJSON(ctx, "/api/data/delete-status", &out)
	return out, err
}

// ListJobs lists recent jobs, optionally filtered by type and status.
func (c *Client) ListJobs(ctx context.Context, jobType, status string, limit int) ([]JobStatus, error) {
	q := url.Values{}
	if jobType != "" {
		q.Set("type", jobType)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []JobStatus
	err := c.getJSON(ctx, path, &out)
	return out, err
}

// DeleteJob removes a finished job from the table.
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var detail struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&detail)
		return &APIError{StatusCode: resp.StatusCode, Detail: detail.Detail}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
