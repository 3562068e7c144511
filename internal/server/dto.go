package server

import (
	"sprintlens/internal/domain"
)

// Request payloads

type analyticsParams struct {
	ProjectID string `query:"projectId" doc:"Limit the view to one project of the active company"`
	StartDate string `query:"startDate" doc:"Earliest task creation date (YYYY-MM-DD or RFC3339)"`
	EndDate   string `query:"endDate" doc:"Latest task creation date (YYYY-MM-DD or RFC3339)"`
}

type CreateProjectRequest struct {
	ID                *string  `json:"id,omitempty"`
	Name              string   `json:"name"`
	Description       *string  `json:"description,omitempty"`
	DefaultHourlyRate *float64 `json:"default_hourly_rate,omitempty" minimum:"0" maximum:"1000000"`
	OwnerID           *string  `json:"owner_id,omitempty" doc:"Defaults to the caller"`
}

type CreateSprintRequest struct {
	ID        *string `json:"id,omitempty"`
	Name      string  `json:"name"`
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
}

type CreateTaskRequest struct {
	ID                 *string  `json:"id,omitempty"`
	Title              string   `json:"title"`
	Description        *string  `json:"description,omitempty"`
	Status             *string  `json:"status,omitempty" enum:"BACKLOG,TODO,IN_PROGRESS,REVIEW,DONE,BLOCKED"`
	SprintID           *string  `json:"sprint_id,omitempty"`
	AssigneeID         *string  `json:"assignee_id,omitempty"`
	EstimateHours      *float64 `json:"estimate_hours,omitempty" minimum:"0" maximum:"1000000"`
	ActualHours        *float64 `json:"actual_hours,omitempty" minimum:"0" maximum:"1000000"`
	HourlyRateOverride *float64 `json:"hourly_rate_override,omitempty" minimum:"0" maximum:"1000000"`
	CostOverride       *float64 `json:"cost_override,omitempty" minimum:"0" maximum:"1000000000"`
	StartDate          *string  `json:"start_date,omitempty"`
	DueDate            *string  `json:"due_date,omitempty"`
}

// UpdateTaskRequest changes only the fields present. An empty string clears
// sprint_id, assignee_id, start_date or due_date; numeric fields are cleared
// by naming them in clear.
type UpdateTaskRequest struct {
	Title              *string  `json:"title,omitempty"`
	Description        *string  `json:"description,omitempty"`
	Status             *string  `json:"status,omitempty" enum:"BACKLOG,TODO,IN_PROGRESS,REVIEW,DONE,BLOCKED"`
	SprintID           *string  `json:"sprint_id,omitempty"`
	AssigneeID         *string  `json:"assignee_id,omitempty"`
	EstimateHours      *float64 `json:"estimate_hours,omitempty" minimum:"0" maximum:"1000000"`
	ActualHours        *float64 `json:"actual_hours,omitempty" minimum:"0" maximum:"1000000"`
	HourlyRateOverride *float64 `json:"hourly_rate_override,omitempty" minimum:"0" maximum:"1000000"`
	CostOverride       *float64 `json:"cost_override,omitempty" minimum:"0" maximum:"1000000000"`
	StartDate          *string  `json:"start_date,omitempty"`
	DueDate            *string  `json:"due_date,omitempty"`
	Clear              []string `json:"clear,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID                string   `json:"id"`
	CompanyID         string   `json:"company_id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	DefaultHourlyRate *float64 `json:"default_hourly_rate,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
}

type SprintResponse struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name"`
	StartDate *string `json:"start_date,omitempty" format:"date-time"`
	EndDate   *string `json:"end_date,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type TaskResponse struct {
	ID                 string            `json:"id"`
	ProjectID          string            `json:"project_id"`
	SprintID           *string           `json:"sprint_id,omitempty"`
	AssigneeID         *string           `json:"assignee_id,omitempty"`
	Title              string            `json:"title"`
	Description        string            `json:"description,omitempty"`
	Status             domain.TaskStatus `json:"status" enum:"BACKLOG,TODO,IN_PROGRESS,REVIEW,DONE,BLOCKED"`
	EstimateHours      *float64          `json:"estimate_hours,omitempty"`
	ActualHours        *float64          `json:"actual_hours,omitempty"`
	HourlyRateOverride *float64          `json:"hourly_rate_override,omitempty"`
	CostOverride       *float64          `json:"cost_override,omitempty"`
	StartDate          *string           `json:"start_date,omitempty" format:"date-time"`
	DueDate            *string           `json:"due_date,omitempty" format:"date-time"`
	CreatedAt          string            `json:"created_at" format:"date-time"`
	UpdatedAt          string            `json:"updated_at" format:"date-time"`
}

// Conversion helpers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse(p)
}

func sprintResponse(s domain.Sprint) SprintResponse {
	return SprintResponse(s)
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse(t)
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
