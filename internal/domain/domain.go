package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the fixed-width UTC layout used for every persisted timestamp,
// so lexical order in SQL matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

const dateLayout = "2006-01-02"

type TaskStatus string

const (
	StatusBacklog    TaskStatus = "BACKLOG"
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusReview     TaskStatus = "REVIEW"
	StatusDone       TaskStatus = "DONE"
	StatusBlocked    TaskStatus = "BLOCKED"
)

// TaskStatuses lists every status in board order.
var TaskStatuses = []TaskStatus{StatusBacklog, StatusTodo, StatusInProgress, StatusReview, StatusDone, StatusBlocked}

func (s TaskStatus) Valid() bool {
	for _, v := range TaskStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ParseTaskStatus accepts any casing and dashes for underscores ("in-progress").
func ParseTaskStatus(v string) (TaskStatus, error) {
	s := TaskStatus(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(v), "-", "_")))
	if !s.Valid() {
		return "", fmt.Errorf("invalid task status %q", v)
	}
	return s, nil
}

// Company roles.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
	RoleViewer  = "viewer"
)

var CompanyRoles = []string{RoleOwner, RoleAdmin, RoleManager, RoleMember, RoleViewer}

// Project roles.
const (
	ProjectRoleOwner  = "owner"
	ProjectRoleMember = "member"
)

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts RFC3339 (with or without fractional seconds) and plain
// YYYY-MM-DD dates, which resolve to midnight UTC.
func ParseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: expected RFC3339 or YYYY-MM-DD", v)
}

// NormalizeTime re-formats an accepted timestamp into TimeLayout.
func NormalizeTime(v string) (string, error) {
	t, err := ParseTime(v)
	if err != nil {
		return "", err
	}
	return FormatTime(t), nil
}

type Company struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type User struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	HourlyRate *float64 `json:"hourly_rate,omitempty"`
	CreatedAt  string   `json:"created_at" format:"date-time"`
}

type CompanyMember struct {
	CompanyID string `json:"company_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

type Project struct {
	ID                string   `json:"id"`
	CompanyID         string   `json:"company_id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	DefaultHourlyRate *float64 `json:"default_hourly_rate,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
}

type ProjectMember struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

type Sprint struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name"`
	StartDate *string `json:"start_date,omitempty" format:"date-time"`
	EndDate   *string `json:"end_date,omitempty" format:"date-time"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Task struct {
	ID                 string     `json:"id"`
	ProjectID          string     `json:"project_id"`
	SprintID           *string    `json:"sprint_id,omitempty"`
	AssigneeID         *string    `json:"assignee_id,omitempty"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Status             TaskStatus `json:"status" enum:"BACKLOG,TODO,IN_PROGRESS,REVIEW,DONE,BLOCKED"`
	EstimateHours      *float64   `json:"estimate_hours,omitempty"`
	ActualHours        *float64   `json:"actual_hours,omitempty"`
	HourlyRateOverride *float64   `json:"hourly_rate_override,omitempty"`
	CostOverride       *float64   `json:"cost_override,omitempty"`
	StartDate          *string    `json:"start_date,omitempty" format:"date-time"`
	DueDate            *string    `json:"due_date,omitempty" format:"date-time"`
	CreatedAt          string     `json:"created_at" format:"date-time"`
	UpdatedAt          string     `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	CompanyID  string `json:"company_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
