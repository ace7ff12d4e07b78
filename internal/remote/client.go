package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"botops-console/internal/config"
	"botops-console/internal/util"
)

var (
	ErrJobNotFound = errors.New("job not found on remote host")
	ErrUnavailable = errors.New("process manager unavailable")
)

// Client talks to the process manager on the scraping host. Bots are
// registered there as named jobs; the console starts, stops, and inspects
// them over the manager's HTTP API.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.Remote.BaseURL, "/"),
		authToken: cfg.Remote.AuthToken,
		httpClient: &http.Client{
			Timeout: cfg.Remote.Timeout,
		},
	}
}

// JobStatus is the process state reported by the manager.
type JobStatus struct {
	JobName   string `json:"job_name"`
	State     string `json:"state"`
	PID       int    `json:"pid,omitempty"`
	UptimeSec int64  `json:"uptime_seconds,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// StartJob asks the manager to start a named job.
func (c *Client) StartJob(ctx context.Context, jobName string) error {
	return c.post(ctx, fmt.Sprintf("/jobs/%s/start", url.PathEscape(jobName)))
}

// StopJob asks the manager to stop a named job.
func (c *Client) StopJob(ctx context.Context, jobName string) error {
	return c.post(ctx, fmt.Sprintf("/jobs/%s/stop", url.PathEscape(jobName)))
}

// GetJobStatus reports the current state of a named job.
func (c *Client) GetJobStatus(ctx context.Context, jobName string) (*JobStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/jobs/%s", url.PathEscape(jobName)), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrJobNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp)
	}

	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode job status: %w", err)
	}

	return &status, nil
}

// HealthCheck probes the manager's health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health endpoint returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		util.Error("Process manager request failed",
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrJobNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.errorFromResponse(resp)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
}
