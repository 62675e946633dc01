package joblinesdk

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
)

// Client is a minimal Jobline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type Job struct {
	ID                 string   `json:"id"`
	OwnerID            string   `json:"owner_id"`
	Title              string   `json:"title"`
	Notes              string   `json:"notes,omitempty"`
	BusinessFunctionID *string  `json:"business_function_id,omitempty"`
	DueDate            *string  `json:"due_date,omitempty"`
	IsDone             bool     `json:"is_done"`
	NextTaskID         *string  `json:"next_task_id,omitempty"`
	TaskIDs            []string `json:"task_ids"`
	CreatedAt          string   `json:"created_at"`
	UpdatedAt          string   `json:"updated_at"`
}

type Task struct {
	ID            string   `json:"id"`
	JobID         string   `json:"job_id"`
	Title         string   `json:"title"`
	Owner         *string  `json:"owner,omitempty"`
	Date          *string  `json:"date,omitempty"`
	RequiredHours *float64 `json:"required_hours,omitempty"`
	FocusLevel    *string  `json:"focus_level,omitempty"`
	JoyLevel      *string  `json:"joy_level,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	Tags          []string `json:"tags"`
	Completed     bool     `json:"completed"`
	NextTask      bool     `json:"next_task"`
	Position      int      `json:"position"`
}

type BusinessFunction struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JobCount int    `json:"job_count"`
}

type PI struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	TargetValue float64 `json:"target_value"`
}

type Mapping struct {
	ID            string  `json:"id"`
	JobID         string  `json:"job_id"`
	PIID          string  `json:"pi_id"`
	JobName       string  `json:"job_name"`
	PIName        string  `json:"pi_name"`
	PITarget      float64 `json:"pi_target"`
	PIImpactValue float64 `json:"pi_impact_value"`
	Notes         string  `json:"notes,omitempty"`
}

// TaskOwner is a person tasks can be assigned to.
type TaskOwner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type QBO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	TargetValue float64 `json:"target_value"`
}

type QBOMapping struct {
	ID        string  `json:"id"`
	PIID      string  `json:"pi_id"`
	QBOID     string  `json:"qbo_id"`
	PIName    string  `json:"pi_name"`
	QBOName   string  `json:"qbo_name"`
	QBOImpact float64 `json:"qbo_impact"`
	Notes     string  `json:"notes,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

type ImpactSummary struct {
	Evaluated int    `json:"evaluated"`
	Updated   int    `json:"updated"`
	Rule      string `json:"rule"`
}

type PITotal struct {
	PIID         string  `json:"pi_id"`
	Name         string  `json:"name"`
	Target       float64 `json:"target"`
	Impact       float64 `json:"impact"`
	Progress     float64 `json:"progress"`
	MappingCount int     `json:"mapping_count"`
}

type BusinessFunctionTotal struct {
	BusinessFunctionID string  `json:"business_function_id"`
	Name               string  `json:"name"`
	JobCount           int     `json:"job_count"`
	Impact             float64 `json:"impact"`
}

type QBOTotal struct {
	QBOID        string  `json:"qbo_id"`
	Name         string  `json:"name"`
	Target       float64 `json:"target"`
	Impact       float64 `json:"impact"`
	Progress     float64 `json:"progress"`
	MappingCount int     `json:"mapping_count"`
}

type ImpactTotals struct {
	PIs               []PITotal               `json:"pis"`
	BusinessFunctions []BusinessFunctionTotal `json:"business_functions"`
	QBOs              []QBOTotal              `json:"qbos"`
}

type WhoAmI struct {
	OwnerID string `json:"owner_id"`
	Source  string `json:"source"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// StatusCode returns the HTTP status of an *APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// PaginatedJobs wraps list responses with cursors.
type PaginatedJobs struct {
	Items      []Job  `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type itemsOf[T any] struct {
	Items []T `json:"items"`
}

// CreateJob creates a job. fields may carry notes, business_function_id,
// due_date or is_done.
func (c *Client) CreateJob(ctx context.Context, title string, fields map[string]any) (Job, error) {
	body := map[string]any{"title": title}
	for k, v := range fields {
		body[k] = v
	}
	var resp Job
	err := c.do(ctx, http.MethodPost, c.path("jobs"), body, &resp)
	return resp, err
}

func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodGet, c.path("jobs/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// ListJobs lists jobs; query may hold done, business_function_id, limit and cursor.
func (c *Client) ListJobs(ctx context.Context, query url.Values) (PaginatedJobs, error) {
	var resp PaginatedJobs
	err := c.do(ctx, http.MethodGet, withQuery(c.path("jobs"), query), nil, &resp)
	return resp, err
}

// UpdateJob sends a partial update. A nil value in patch is sent as JSON null.
func (c *Client) UpdateJob(ctx context.Context, id string, patch map[string]any) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPatch, c.path("jobs/"+url.PathEscape(id)), patch, &resp)
	return resp, err
}

func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.path("jobs/"+url.PathEscape(id)), nil, nil)
}

// SetNextTask marks taskID as the job's next task; "none" clears it.
func (c *Client) SetNextTask(ctx context.Context, jobID, taskID string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPut, c.path("jobs/"+url.PathEscape(jobID)+"/next-task"), map[string]any{"task_id": taskID}, &resp)
	return resp, err
}

func (c *Client) ClearNextTask(ctx context.Context, jobID string) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodDelete, c.path("jobs/"+url.PathEscape(jobID)+"/next-task"), nil, &resp)
	return resp, err
}

// ToggleDone sets is_done on every listed job and returns how many changed.
func (c *Client) ToggleDone(ctx context.Context, ids []string, done bool) (int, error) {
	var resp struct {
		Changed int `json:"changed"`
	}
	err := c.do(ctx, http.MethodPost, c.path("jobs/done"), map[string]any{"ids": ids, "is_done": done}, &resp)
	return resp.Changed, err
}

func (c *Client) JobTasks(ctx context.Context, jobID string) ([]Task, error) {
	var resp itemsOf[Task]
	err := c.do(ctx, http.MethodGet, c.path("jobs/"+url.PathEscape(jobID)+"/tasks"), nil, &resp)
	return resp.Items, err
}

// CreateTask appends a task to jobID. fields may carry any optional task field.
func (c *Client) CreateTask(ctx context.Context, jobID, title string, fields map[string]any) (Task, error) {
	body := map[string]any{"job_id": jobID, "title": title}
	for k, v := range fields {
		body[k] = v
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.path("tasks"), body, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, c.path("tasks/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// UpdateTask sends a partial update. A nil value in patch is sent as JSON null.
func (c *Client) UpdateTask(ctx context.Context, id string, patch map[string]any) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, c.path("tasks/"+url.PathEscape(id)), patch, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.path("tasks/"+url.PathEscape(id)), nil, nil)
}

// BatchTasks fetches several tasks at once; unknown ids are skipped.
func (c *Client) BatchTasks(ctx context.Context, ids []string) ([]Task, error) {
	var resp itemsOf[Task]
	endpoint := withQuery(c.path("tasks/batch"), url.Values{"ids": {strings.Join(ids, ",")}})
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) CreateBusinessFunction(ctx context.Context, name string) (BusinessFunction, error) {
	var resp BusinessFunction
	err := c.do(ctx, http.MethodPost, c.path("business-functions"), map[string]any{"name": name}, &resp)
	return resp, err
}

func (c *Client) ListBusinessFunctions(ctx context.Context) ([]BusinessFunction, error) {
	var resp itemsOf[BusinessFunction]
	err := c.do(ctx, http.MethodGet, c.path("business-functions"), nil, &resp)
	return resp.Items, err
}

func (c *Client) CreatePI(ctx context.Context, name string, target float64) (PI, error) {
	var resp PI
	err := c.do(ctx, http.MethodPost, c.path("pis"), map[string]any{"name": name, "target_value": target}, &resp)
	return resp, err
}

// CreateMapping maps a job to a PI. fields may carry pi_target,
// pi_impact_value or notes.
func (c *Client) CreateMapping(ctx context.Context, jobID, piID string, fields map[string]any) (Mapping, error) {
	body := map[string]any{"job_id": jobID, "pi_id": piID}
	for k, v := range fields {
		body[k] = v
	}
	var resp Mapping
	err := c.do(ctx, http.MethodPost, c.path("mappings"), body, &resp)
	return resp, err
}

// ListMappings lists mappings, optionally filtered by job_id and pi_id.
func (c *Client) ListMappings(ctx context.Context, query url.Values) ([]Mapping, error) {
	var resp itemsOf[Mapping]
	err := c.do(ctx, http.MethodGet, withQuery(c.path("mappings"), query), nil, &resp)
	return resp.Items, err
}

func (c *Client) CreateTaskOwner(ctx context.Context, name string) (TaskOwner, error) {
	var resp TaskOwner
	err := c.do(ctx, http.MethodPost, c.path("owners"), map[string]any{"name": name}, &resp)
	return resp, err
}

func (c *Client) ListTaskOwners(ctx context.Context) ([]TaskOwner, error) {
	var resp itemsOf[TaskOwner]
	err := c.do(ctx, http.MethodGet, c.path("owners"), nil, &resp)
	return resp.Items, err
}

func (c *Client) DeleteTaskOwner(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.path("owners/"+url.PathEscape(id)), nil, nil)
}

func (c *Client) CreateQBO(ctx context.Context, name string, target float64) (QBO, error) {
	var resp QBO
	err := c.do(ctx, http.MethodPost, c.path("qbos"), map[string]any{"name": name, "target_value": target}, &resp)
	return resp, err
}

func (c *Client) ListQBOs(ctx context.Context) ([]QBO, error) {
	var resp itemsOf[QBO]
	err := c.do(ctx, http.MethodGet, c.path("qbos"), nil, &resp)
	return resp.Items, err
}

func (c *Client) CreateQBOMapping(ctx context.Context, piID, qboID string, impact float64) (QBOMapping, error) {
	var resp QBOMapping
	body := map[string]any{"pi_id": piID, "qbo_id": qboID, "qbo_impact": impact}
	err := c.do(ctx, http.MethodPost, c.path("qbo-mappings"), body, &resp)
	return resp, err
}

// ListQBOMappings lists PI to QBO mappings, optionally filtered by pi_id and qbo_id.
func (c *Client) ListQBOMappings(ctx context.Context, query url.Values) ([]QBOMapping, error) {
	var resp itemsOf[QBOMapping]
	err := c.do(ctx, http.MethodGet, withQuery(c.path("qbo-mappings"), query), nil, &resp)
	return resp.Items, err
}

func (c *Client) RecalculateImpact(ctx context.Context) (ImpactSummary, error) {
	var resp ImpactSummary
	err := c.do(ctx, http.MethodPost, c.path("impact/recalculate"), nil, &resp)
	return resp, err
}

func (c *Client) ImpactTotals(ctx context.Context) (ImpactTotals, error) {
	var resp ImpactTotals
	err := c.do(ctx, http.MethodGet, c.path("impact/totals"), nil, &resp)
	return resp, err
}

func (c *Client) JobCounts(ctx context.Context) (map[string]int, error) {
	resp := map[string]int{}
	err := c.do(ctx, http.MethodGet, c.path("impact/job-counts"), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery(c.path("events"), q), nil, &resp)
	return resp, err
}

func (c *Client) Me(ctx context.Context) (WhoAmI, error) {
	var resp WhoAmI
	err := c.do(ctx, http.MethodGet, c.path("me"), nil, &resp)
	return resp, err
}

// DevLogin mints a development token for ownerID and stores it on the client.
func (c *Client) DevLogin(ctx context.Context, ownerID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, c.path("auth/dev/login"), map[string]any{"owner_id": ownerID}, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) path(p string) string {
	base := strings.Trim(c.BasePath, "/")
	if base == "" {
		return strings.TrimLeft(p, "/")
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
