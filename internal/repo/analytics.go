package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"sprintlens/internal/analytics"
	"sprintlens/internal/domain"
)

// TaskScope narrows the analytics read. CompanyID is mandatory; the other
// fields are optional and combine with AND.
type TaskScope struct {
	CompanyID string
	ProjectID string
	// ProjectIDs applies only when RestrictProjects is set. An empty list with
	// RestrictProjects matches nothing.
	ProjectIDs       []string
	RestrictProjects bool
	From             *time.Time
	To               *time.Time
}

var errMissingCompany = errors.New("task scope requires a company")

// Where renders the scope as a SQL predicate over tasks t joined to projects p.
func (s TaskScope) Where() (string, []any, error) {
	if s.CompanyID == "" {
		return "", nil, errMissingCompany
	}
	clauses := []string{"p.company_id = ?"}
	args := []any{s.CompanyID}
	if s.ProjectID != "" {
		clauses = append(clauses, "t.project_id = ?")
		args = append(args, s.ProjectID)
	}
	if s.RestrictProjects {
		if len(s.ProjectIDs) == 0 {
			clauses = append(clauses, "1=0")
		} else {
			in, inArgs, err := sqlx.In("t.project_id IN (?)", s.ProjectIDs)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, in)
			args = append(args, inArgs...)
		}
	}
	if s.From != nil {
		clauses = append(clauses, "t.created_at >= ?")
		args = append(args, domain.FormatTime(*s.From))
	}
	if s.To != nil {
		clauses = append(clauses, "t.created_at <= ?")
		args = append(args, domain.FormatTime(*s.To))
	}
	return strings.Join(clauses, " AND "), args, nil
}

type analyticsRow struct {
	ID                 string          `db:"id"`
	Status             string          `db:"status"`
	EstimateHours      sql.NullFloat64 `db:"estimate_hours"`
	ActualHours        sql.NullFloat64 `db:"actual_hours"`
	HourlyRateOverride sql.NullFloat64 `db:"hourly_rate_override"`
	CostOverride       sql.NullFloat64 `db:"cost_override"`
	StartDate          sql.NullString  `db:"start_date"`
	DueDate            sql.NullString  `db:"due_date"`
	CreatedAt          string          `db:"created_at"`
	ProjectID          string          `db:"project_id"`
	ProjectName        string          `db:"project_name"`
	ProjectRate        sql.NullFloat64 `db:"project_rate"`
	SprintID           sql.NullString  `db:"sprint_id"`
	SprintName         sql.NullString  `db:"sprint_name"`
	AssigneeID         sql.NullString  `db:"assignee_id"`
	AssigneeName       sql.NullString  `db:"assignee_name"`
	AssigneeRate       sql.NullFloat64 `db:"assignee_rate"`
}

const analyticsSelect = `SELECT
  t.id, t.status, t.estimate_hours, t.actual_hours, t.hourly_rate_override, t.cost_override,
  t.start_date, t.due_date, t.created_at,
  p.id AS project_id, p.name AS project_name, p.default_hourly_rate AS project_rate,
  s.id AS sprint_id, s.name AS sprint_name,
  u.id AS assignee_id, u.name AS assignee_name, u.hourly_rate AS assignee_rate
FROM tasks t
JOIN projects p ON p.id = t.project_id
LEFT JOIN sprints s ON s.id = t.sprint_id
LEFT JOIN users u ON u.id = t.assignee_id`

// ListAnalyticsTasks loads every task in scope with its project, sprint and
// assignee, ordered by creation time then id.
func (r Repo) ListAnalyticsTasks(ctx context.Context, scope TaskScope) ([]analytics.Task, error) {
	where, args, err := scope.Where()
	if err != nil {
		return nil, err
	}
	query := analyticsSelect + " WHERE " + where + " ORDER BY t.created_at ASC, t.id ASC"
	var rows []analyticsRow
	if err := sqlx.NewDb(r.DB, "sqlite3").SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list analytics tasks: %w", err)
	}
	tasks := make([]analytics.Task, 0, len(rows))
	for _, row := range rows {
		t, err := row.task()
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", row.ID, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (row analyticsRow) task() (analytics.Task, error) {
	created, err := domain.ParseTime(row.CreatedAt)
	if err != nil {
		return analytics.Task{}, err
	}
	t := analytics.Task{
		ID:                 row.ID,
		Status:             domain.TaskStatus(row.Status),
		EstimateHours:      floatPtr(row.EstimateHours),
		ActualHours:        floatPtr(row.ActualHours),
		HourlyRateOverride: floatPtr(row.HourlyRateOverride),
		CostOverride:       floatPtr(row.CostOverride),
		Project: analytics.ProjectRef{
			ID:                row.ProjectID,
			Name:              row.ProjectName,
			DefaultHourlyRate: floatPtr(row.ProjectRate),
		},
		CreatedAt: created,
	}
	if row.SprintID.Valid {
		t.Sprint = &analytics.SprintRef{ID: row.SprintID.String, Name: row.SprintName.String}
	}
	if row.AssigneeID.Valid {
		t.Assignee = &analytics.AssigneeRef{
			ID:         row.AssigneeID.String,
			Name:       row.AssigneeName.String,
			HourlyRate: floatPtr(row.AssigneeRate),
		}
	}
	if t.StartDate, err = optionalTime(row.StartDate); err != nil {
		return t, err
	}
	if t.DueDate, err = optionalTime(row.DueDate); err != nil {
		return t, err
	}
	return t, nil
}

func optionalTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := domain.ParseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
