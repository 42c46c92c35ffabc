// Package clickup is a small read-only client for the ClickUp v2 REST API
// and the task source built on it.
package clickup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.clickup.com/api/v2"

// maxResponseSize bounds response body reads.
const maxResponseSize int64 = 32 << 20

// Config holds configuration for a ClickUp Client.
type Config struct {
	// BaseURL defaults to "https://api.clickup.com/api/v2".
	BaseURL string

	// APIKey is a personal API token, sent as the Authorization header.
	APIKey string

	// TeamID is the workspace (team) whose tasks are listed.
	TeamID string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Timeout bounds each request. Defaults to 15 seconds.
	Timeout time.Duration

	Logger *slog.Logger
}

// Client issues authenticated GET requests to ClickUp.
type Client struct {
	baseURL    string
	apiKey     string
	teamID     string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		teamID:     cfg.TeamID,
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.timeout <= 0 {
		c.timeout = 15 * time.Second
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// APIError is a non-2xx response from ClickUp. ClickUp error bodies look
// like {"err": "Token invalid", "ECODE": "OAUTH_025"}.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("clickup: HTTP %d: %s (%s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("clickup: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a rejected API key.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Task is the subset of a ClickUp task used for briefings.
type Task struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      struct {
		Status string `json:"status"`
	} `json:"status"`
	Assignees []struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"assignees"`
	// DueDate is milliseconds since the epoch, sent as a string or null.
	DueDate json.Number `json:"due_date"`
	URL     string      `json:"url"`
}

// TaskQuery selects tasks from the team task endpoint.
type TaskQuery struct {
	Page          int
	IncludeClosed bool
	Subtasks      bool
	DueAfter      time.Time
	DueBefore     time.Time
}

func (q TaskQuery) values() url.Values {
	v := url.Values{}
	v.Set("include_closed", fmt.Sprint(q.IncludeClosed))
	v.Set("subtasks", fmt.Sprint(q.Subtasks))
	v.Set("page", fmt.Sprint(q.Page))
	if !q.DueAfter.IsZero() {
		v.Set("due_date_gt", fmt.Sprint(q.DueAfter.UnixMilli()))
	}
	if !q.DueBefore.IsZero() {
		v.Set("due_date_lt", fmt.Sprint(q.DueBefore.UnixMilli()))
	}
	return v
}

// TeamTasks returns one page of tasks for the configured team.
func (c *Client) TeamTasks(ctx context.Context, q TaskQuery) ([]Task, error) {
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	path := "/team/" + url.PathEscape(c.teamID) + "/task?" + q.values().Encode()
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("clickup: build request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("clickup: GET %s: %w", strings.SplitN(path, "?", 2)[0], err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("clickup: reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("clickup: decode response: %w", err)
	}
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var payload struct {
		Err   string `json:"err"`
		ECode string `json:"ECODE"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Err != "" {
		apiErr.Message = payload.Err
		apiErr.Code = payload.ECode
		return apiErr
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	apiErr.Message = msg
	return apiErr
}
