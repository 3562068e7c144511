package sprintlenssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Sprintlens HTTP API client. Every request carries the
// company in X-Company-Id, so one client talks to one tenant.
type Client struct {
	BaseURL     string
	BasePath    string
	CompanyID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, companyID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		BasePath:  "/v1",
		CompanyID: companyID,
		Timeout:   10 * time.Second,
	}
}

// Query refines the date-filtered analytics views. Zero values are omitted.
type Query struct {
	ProjectID string
	StartDate string
	EndDate   string
}

func (q Query) values() url.Values {
	v := url.Values{}
	if q.ProjectID != "" {
		v.Set("projectId", q.ProjectID)
	}
	if q.StartDate != "" {
		v.Set("startDate", q.StartDate)
	}
	if q.EndDate != "" {
		v.Set("endDate", q.EndDate)
	}
	return v
}

type ProductivityReport struct {
	General struct {
		TotalTasks        int     `json:"totalTasks"`
		CompletedTasks    int     `json:"completedTasks"`
		TotalPlannedHours float64 `json:"totalPlannedHours"`
		TotalActualHours  float64 `json:"totalActualHours"`
		CompletionRate    float64 `json:"completionRate"`
		Efficiency        float64 `json:"efficiency"`
	} `json:"general"`
	ByMember []struct {
		MemberID   string `json:"memberId"`
		MemberName string `json:"memberName"`
		Throughput
	} `json:"byMember"`
	BySprint []struct {
		SprintID   string `json:"sprintId"`
		SprintName string `json:"sprintName"`
		Throughput
	} `json:"bySprint"`
}

// Throughput is shared by the member and sprint rows of ProductivityReport.
type Throughput struct {
	TotalTasks     int     `json:"totalTasks"`
	CompletedTasks int     `json:"completedTasks"`
	PlannedHours   float64 `json:"plannedHours"`
	ActualHours    float64 `json:"actualHours"`
	Velocity       float64 `json:"velocity"`
	CompletionRate float64 `json:"completionRate"`
}

// Spend is planned vs actual cost; Variance is actual minus planned.
type Spend struct {
	Planned  float64 `json:"planned"`
	Actual   float64 `json:"actual"`
	Variance float64 `json:"variance"`
}

type CostReport struct {
	Total     Spend `json:"total"`
	ByProject []struct {
		ProjectID   string `json:"projectId"`
		ProjectName string `json:"projectName"`
		Spend
	} `json:"byProject"`
	ByMember []struct {
		MemberID   string `json:"memberId"`
		MemberName string `json:"memberName"`
		Spend
	} `json:"byMember"`
}

type TimeReport struct {
	ByStatus []struct {
		Status  string  `json:"status"`
		AvgDays float64 `json:"avgDays"`
		Count   int     `json:"count"`
	} `json:"byStatus"`
	ByMember []struct {
		MemberID   string  `json:"memberId"`
		MemberName string  `json:"memberName"`
		AvgDays    float64 `json:"avgDays"`
		Count      int     `json:"count"`
		TotalHours float64 `json:"totalHours"`
	} `json:"byMember"`
}

type QualityReport struct {
	General struct {
		TotalTasks     int     `json:"totalTasks"`
		CompletedTasks int     `json:"completedTasks"`
		BlockedTasks   int     `json:"blockedTasks"`
		CompletionRate float64 `json:"completionRate"`
		BlockRate      float64 `json:"blockRate"`
	} `json:"general"`
	BySprint []struct {
		SprintID       string  `json:"sprintId"`
		SprintName     string  `json:"sprintName"`
		TotalTasks     int     `json:"totalTasks"`
		CompletedTasks int     `json:"completedTasks"`
		BlockedTasks   int     `json:"blockedTasks"`
		CompletionRate float64 `json:"completionRate"`
	} `json:"bySprint"`
}

type HeatmapDay struct {
	Date       string `json:"date"`
	Created    int    `json:"created"`
	Completed  int    `json:"completed"`
	InProgress int    `json:"inProgress"`
}

type ProjectSummary struct {
	ProjectID      string         `json:"projectId"`
	ProjectName    string         `json:"projectName"`
	TotalTasks     int            `json:"totalTasks"`
	CompletedTasks int            `json:"completedTasks"`
	BlockedTasks   int            `json:"blockedTasks"`
	CompletionRate float64        `json:"completionRate"`
	PlannedHours   float64        `json:"plannedHours"`
	ActualHours    float64        `json:"actualHours"`
	PlannedCost    float64        `json:"plannedCost"`
	ActualCost     float64        `json:"actualCost"`
	Variance       float64        `json:"variance"`
	StatusCounts   map[string]int `json:"statusCounts"`
}

// Project represents the API project model.
type Project struct {
	ID                string   `json:"id"`
	CompanyID         string   `json:"company_id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	DefaultHourlyRate *float64 `json:"default_hourly_rate,omitempty"`
	CreatedAt         string   `json:"created_at"`
}

// Sprint represents the API sprint model.
type Sprint struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name"`
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// Task represents the API task model. Pointer fields are omitted when unset,
// so the same struct serves as a create request.
type Task struct {
	ID                 string   `json:"id,omitempty"`
	ProjectID          string   `json:"project_id,omitempty"`
	SprintID           *string  `json:"sprint_id,omitempty"`
	AssigneeID         *string  `json:"assignee_id,omitempty"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	Status             string   `json:"status,omitempty"`
	EstimateHours      *float64 `json:"estimate_hours,omitempty"`
	ActualHours        *float64 `json:"actual_hours,omitempty"`
	HourlyRateOverride *float64 `json:"hourly_rate_override,omitempty"`
	CostOverride       *float64 `json:"cost_override,omitempty"`
	StartDate          *string  `json:"start_date,omitempty"`
	DueDate            *string  `json:"due_date,omitempty"`
	CreatedAt          string   `json:"created_at,omitempty"`
	UpdatedAt          string   `json:"updated_at,omitempty"`
}

// TaskUpdate changes only the fields that are set. Clear resets numeric fields
// (estimate_hours, actual_hours, hourly_rate_override, cost_override).
type TaskUpdate struct {
	Title              *string  `json:"title,omitempty"`
	Description        *string  `json:"description,omitempty"`
	Status             *string  `json:"status,omitempty"`
	SprintID           *string  `json:"sprint_id,omitempty"`
	AssigneeID         *string  `json:"assignee_id,omitempty"`
	EstimateHours      *float64 `json:"estimate_hours,omitempty"`
	ActualHours        *float64 `json:"actual_hours,omitempty"`
	HourlyRateOverride *float64 `json:"hourly_rate_override,omitempty"`
	CostOverride       *float64 `json:"cost_override,omitempty"`
	StartDate          *string  `json:"start_date,omitempty"`
	DueDate            *string  `json:"due_date,omitempty"`
	Clear              []string `json:"clear,omitempty"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func (c *Client) Productivity(ctx context.Context, q Query) (ProductivityReport, error) {
	var resp ProductivityReport
	err := c.do(ctx, http.MethodGet, withQuery("analytics/productivity", q.values()), nil, &resp)
	return resp, err
}

func (c *Client) Costs(ctx context.Context, q Query) (CostReport, error) {
	var resp CostReport
	err := c.do(ctx, http.MethodGet, withQuery("analytics/costs", q.values()), nil, &resp)
	return resp, err
}

func (c *Client) Time(ctx context.Context, q Query) (TimeReport, error) {
	var resp TimeReport
	err := c.do(ctx, http.MethodGet, withQuery("analytics/time", q.values()), nil, &resp)
	return resp, err
}

func (c *Client) Quality(ctx context.Context, q Query) (QualityReport, error) {
	var resp QualityReport
	err := c.do(ctx, http.MethodGet, withQuery("analytics/quality", q.values()), nil, &resp)
	return resp, err
}

// Heatmap returns per-day activity, optionally for one project.
func (c *Client) Heatmap(ctx context.Context, projectID string) ([]HeatmapDay, error) {
	var resp struct {
		Heatmap []HeatmapDay `json:"heatmap"`
	}
	v := url.Values{}
	if projectID != "" {
		v.Set("projectId", projectID)
	}
	err := c.do(ctx, http.MethodGet, withQuery("analytics/activity-heatmap", v), nil, &resp)
	return resp.Heatmap, err
}

func (c *Client) CompareProjects(ctx context.Context) ([]ProjectSummary, error) {
	var resp struct {
		Comparison []ProjectSummary `json:"comparison"`
	}
	err := c.do(ctx, http.MethodGet, "analytics/compare-projects", nil, &resp)
	return resp.Comparison, err
}

func (c *Client) ProjectSummary(ctx context.Context, projectID string) (ProjectSummary, error) {
	var resp ProjectSummary
	err := c.do(ctx, http.MethodGet, projectPath(projectID, "summary"), nil, &resp)
	return resp, err
}

// Projects lists the projects the caller can see.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

func (c *Client) CreateProject(ctx context.Context, name, description string, defaultHourlyRate *float64) (Project, error) {
	body := map[string]any{"name": name}
	if description != "" {
		body["description"] = description
	}
	if defaultHourlyRate != nil {
		body["default_hourly_rate"] = *defaultHourlyRate
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

func (c *Client) CreateSprint(ctx context.Context, projectID, name, startDate, endDate string) (Sprint, error) {
	body := map[string]any{"name": name}
	if startDate != "" {
		body["start_date"] = startDate
	}
	if endDate != "" {
		body["end_date"] = endDate
	}
	var resp Sprint
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "sprints"), body, &resp)
	return resp, err
}

func (c *Client) CreateTask(ctx context.Context, projectID string, t Task) (Task, error) {
	t.ProjectID = ""
	t.CreatedAt, t.UpdatedAt = "", ""
	var resp Task
	err := c.do(ctx, http.MethodPost, projectPath(projectID, "tasks"), t, &resp)
	return resp, err
}

func (c *Client) UpdateTask(ctx context.Context, projectID, taskID string, u TaskUpdate) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, projectPath(projectID, "tasks/"+url.PathEscape(taskID)), u, &resp)
	return resp, err
}

// ListTasks returns tasks of a project, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, projectID, status string, limit int) ([]Task, error) {
	v := url.Values{}
	if status != "" {
		v.Set("status", status)
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, withQuery(projectPath(projectID, "tasks"), v), nil, &resp)
	return resp, err
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
	req.Header.Set("Content-Type", "application/json")
	if c.CompanyID != "" {
		req.Header.Set("X-Company-Id", c.CompanyID)
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
		return decodeError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.Details = envelope.Error.Details
	}
	return apiErr
}

func projectPath(projectID, p string) string {
	return fmt.Sprintf("projects/%s/%s", url.PathEscape(projectID), strings.TrimLeft(p, "/"))
}

func withQuery(endpoint string, v url.Values) string {
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}

func (c *Client) base() string {
	basePath := c.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(basePath, "/")
}
