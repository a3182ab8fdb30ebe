package ankrmcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Synchronous invocations include an LLM extraction and an
// upstream Ankr call, so it is longer than a plain REST timeout.
const DefaultHTTPTimeout = 60 * time.Second

// Client wraps the HTTP interactions with the ankrmcpd REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Action describes one entry of the action catalogue.
type Action struct {
	Name        string   `json:"name"`
	Similes     []string `json:"similes"`
	Description string   `json:"description"`
	Examples    []string `json:"examples,omitempty"`
}

// Chain describes a blockchain supported by the multichain API.
type Chain struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Network string `json:"network"`
}

// Message is the chat message handed to an action.
type Message struct {
	ID     string `json:"id,omitempty"`
	Text   string `json:"text"`
	RoomID string `json:"room_id,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// PayloadError is the structured error attached to failed invocations.
type PayloadError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

// Payload carries the validated request and raw upstream response.
type Payload struct {
	Success  bool            `json:"success"`
	Request  map[string]any  `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    *PayloadError   `json:"error,omitempty"`
}

// Result is the text and payload delivered by one invocation.
type Result struct {
	Text    string  `json:"text"`
	Payload Payload `json:"payload"`
}

// TaskSubmission represents the payload required to create a new task.
type TaskSubmission struct {
	ID       string         `json:"id,omitempty"`
	Action   string         `json:"action"`
	Input    string         `json:"input"`
	RoomID   string         `json:"room_id,omitempty"`
	UserID   string         `json:"user_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskResult is the outcome stored for a completed task.
type TaskResult struct {
	Text     string          `json:"text"`
	Request  map[string]any  `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Task contains the full view of an asynchronous invocation.
type Task struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Input      string         `json:"input"`
	RoomID     string         `json:"room_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     *TaskResult    `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Done reports whether the task reached a terminal status.
func (t Task) Done() bool {
	return t.Status == "succeeded" || t.Status == "failed"
}

// TaskQuery filters ListTasks.
type TaskQuery struct {
	Statuses  []string
	Action    string
	RoomID    string
	UserID    string
	ErrorCode string
	Query     string
	HasResult *bool
	Limit     int
	Offset    int
	Ascending bool
}

// ActionStats counts the tasks of one action.
type ActionStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// TaskStats aggregates task counts by status and by action. Retrying counts
// pending tasks that already failed at least once.
type TaskStats struct {
	Total     int                    `json:"total"`
	Pending   int                    `json:"pending"`
	Retrying  int                    `json:"retrying"`
	Running   int                    `json:"running"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
	ByAction  map[string]ActionStats `json:"by_action,omitempty"`
}

// TaskList is one page of tasks.
type TaskList struct {
	Tasks []Task           `json:"tasks"`
	Stats TaskStats        `json:"stats"`
	Page  map[string]int64 `json:"page"`
}

// Invocation is one record of the invocation history.
type Invocation struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Method     string         `json:"method"`
	RoomID     string         `json:"room_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	Input      string         `json:"input"`
	Request    map[string]any `json:"request,omitempty"`
	Text       string         `json:"text"`
	Outcome    string         `json:"outcome"`
	LastStage  string         `json:"last_stage"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationNs int64          `json:"duration"`
	CreatedAt  int64          `json:"created_at"`
}

// Health is the liveness summary reported by /healthz.
type Health struct {
	Status  string `json:"status"`
	Actions int    `json:"actions"`
	Chains  int    `json:"chains"`
	Tasks   bool   `json:"tasks"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("ankrmcp api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("ankrmcp api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the ankrmcpd API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken sets the static bearer token sent with every request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = strings.TrimSpace(token)
}

// Health queries the liveness endpoint.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var health Health
	if err := c.get(ctx, "/healthz", nil, &health); err != nil {
		return Health{}, err
	}
	return health, nil
}

// Actions lists the action catalogue.
func (c *Client) Actions(ctx context.Context) ([]Action, error) {
	var actions []Action
	if err := c.get(ctx, "/api/v1/actions", nil, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// Chains lists supported chains; network may be "", "mainnet" or "testnet".
func (c *Client) Chains(ctx context.Context, network string) ([]Chain, error) {
	query := url.Values{}
	if network != "" {
		query.Set("network", network)
	}
	var chains []Chain
	if err := c.get(ctx, "/api/v1/chains", query, &chains); err != nil {
		return nil, err
	}
	return chains, nil
}

// Invoke runs an action synchronously. When the pipeline fails the server
// still delivers an "Error in ..." result; it is returned together with the
// *APIError.
func (c *Client) Invoke(ctx context.Context, action string, msg Message) (Result, error) {
	var result Result
	status, data, err := c.roundTrip(ctx, http.MethodPost, "/api/v1/actions/"+url.PathEscape(action), nil, msg)
	if err != nil {
		return Result{}, err
	}
	if status >= 400 {
		if jsonErr := json.Unmarshal(data, &result); jsonErr == nil && result.Text != "" {
			apiErr := &APIError{StatusCode: status, Message: result.Text}
			if result.Payload.Error != nil {
				apiErr.Code = result.Payload.Error.Code
				apiErr.Message = result.Payload.Error.Message
			}
			return result, apiErr
		}
		return Result{}, decodeError(status, data)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

// SubmitTask enqueues an asynchronous invocation.
func (c *Client) SubmitTask(ctx context.Context, submission TaskSubmission) (Task, error) {
	var task Task
	if err := c.post(ctx, "/api/v1/tasks", submission, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// GetTask fetches task details by identifier.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var task Task
	if err := c.get(ctx, "/api/v1/tasks/"+url.PathEscape(taskID), nil, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}

// ListTasks returns one page of tasks matching the query.
func (c *Client) ListTasks(ctx context.Context, q TaskQuery) (TaskList, error) {
	query := url.Values{}
	if len(q.Statuses) > 0 {
		query.Set("status", strings.Join(q.Statuses, ","))
	}
	for key, value := range map[string]string{
		"action":     q.Action,
		"room":       q.RoomID,
		"user":       q.UserID,
		"error_code": q.ErrorCode,
	} {
		if value != "" {
			query.Set(key, value)
		}
	}
	if q.Query != "" {
		query.Set("q", q.Query)
	}
	if q.HasResult != nil {
		query.Set("has_result", strconv.FormatBool(*q.HasResult))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		query.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Ascending {
		query.Set("order", "asc")
	}
	var list TaskList
	if err := c.get(ctx, "/api/v1/tasks", query, &list); err != nil {
		return TaskList{}, err
	}
	return list, nil
}

// WaitForTask polls GetTask until the task is done or ctx ends.
func (c *Client) WaitForTask(ctx context.Context, taskID string, interval time.Duration) (Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		task, err := c.GetTask(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if task.Done() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Invocations returns the most recent invocation records.
func (c *Client) Invocations(ctx context.Context, limit int) ([]Invocation, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var records []Invocation
	if err := c.get(ctx, "/api/v1/invocations", query, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	status, data, err := c.roundTrip(ctx, http.MethodPost, endpoint, nil, payload)
	if err != nil {
		return err
	}
	return decodeInto(status, data, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	status, data, err := c.roundTrip(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return decodeInto(status, data, out)
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, query url.Values, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, method, endpoint, query, body)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func decodeInto(status int, data []byte, out any) error {
	if status >= 400 {
		return decodeError(status, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	if len(data) > 0 {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		envelope.Error = apiErr
		if err := json.Unmarshal(data, &envelope); err != nil {
			_ = json.Unmarshal(data, apiErr)
		}
		apiErr.StatusCode = status
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
