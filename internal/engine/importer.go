package engine

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"sprintlens/internal/domain"
	"sprintlens/internal/events"
	"sprintlens/internal/repo"
)

// ImportColumns lists the accepted CSV header names. Only title is required.
var ImportColumns = []string{
	"title", "status", "sprint_id", "assignee_id",
	"estimate_hours", "actual_hours", "hourly_rate_override", "cost_override",
	"start_date", "due_date", "description",
}

type ImportResult struct {
	ProjectID string   `json:"project_id"`
	Created   int      `json:"created"`
	TaskIDs   []string `json:"task_ids"`
}

// ImportTasks reads tasks from CSV. Every row is validated before anything is
// written; all rows are then inserted in one transaction.
func (e Engine) ImportTasks(ctx context.Context, projectID string, r io.Reader, actorID string) (ImportResult, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return ImportResult{}, notFound("project", projectID)
	}
	if err != nil {
		return ImportResult{}, err
	}
	rd := csv.NewReader(r)
	rd.TrimLeadingSpace = true
	header, err := rd.Read()
	if errors.Is(err, io.EOF) {
		return ImportResult{}, invalid("csv", "empty file")
	}
	if err != nil {
		return ImportResult{}, invalid("csv", "%v", err)
	}
	cols, err := importHeader(header)
	if err != nil {
		return ImportResult{}, err
	}
	rd.FieldsPerRecord = len(header)

	var tasks []domain.Task
	for line := 2; ; line++ {
		record, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ImportResult{}, invalid("csv", "%v", err)
		}
		opts, err := importRow(cols, record)
		if err != nil {
			return ImportResult{}, rowError(line, err)
		}
		opts.ProjectID = p.ID
		opts.ActorID = actorID
		t, err := e.prepareTask(ctx, p, opts)
		if err != nil {
			return ImportResult{}, rowError(line, err)
		}
		tasks = append(tasks, t)
	}
	if len(tasks) == 0 {
		return ImportResult{}, invalid("csv", "no task rows")
	}

	res := ImportResult{ProjectID: p.ID, TaskIDs: make([]string, 0, len(tasks))}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range tasks {
			if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
				return fmt.Errorf("insert task %q: %w", t.Title, err)
			}
			if err := e.appendTaskCreated(ctx, tx, p, t, actorID); err != nil {
				return err
			}
			res.TaskIDs = append(res.TaskIDs, t.ID)
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type: events.TasksImported, CompanyID: p.CompanyID, EntityKind: "project", EntityID: p.ID, ActorID: actorID,
			Payload: events.EventPayload{"count": len(tasks)},
		})
	})
	if err != nil {
		return ImportResult{}, err
	}
	res.Created = len(res.TaskIDs)
	return res, nil
}

func importHeader(header []string) (map[string]int, error) {
	known := map[string]bool{}
	for _, c := range ImportColumns {
		known[c] = true
	}
	cols := map[string]int{}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if !known[name] {
			return nil, invalid("csv", "unknown column %q", h)
		}
		if _, dup := cols[name]; dup {
			return nil, invalid("csv", "duplicate column %q", h)
		}
		cols[name] = i
	}
	if _, ok := cols["title"]; !ok {
		return nil, invalid("csv", "title column is required")
	}
	return cols, nil
}

func importRow(cols map[string]int, record []string) (TaskCreateOptions, error) {
	get := func(name string) string {
		if i, ok := cols[name]; ok {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	opts := TaskCreateOptions{
		Title:       get("title"),
		Status:      get("status"),
		SprintID:    get("sprint_id"),
		AssigneeID:  get("assignee_id"),
		StartDate:   get("start_date"),
		DueDate:     get("due_date"),
		Description: get("description"),
	}
	for _, f := range []struct {
		name string
		out  **float64
	}{
		{"estimate_hours", &opts.EstimateHours},
		{"actual_hours", &opts.ActualHours},
		{"hourly_rate_override", &opts.HourlyRateOverride},
		{"cost_override", &opts.CostOverride},
	} {
		raw := get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			return opts, invalid(f.name, "not a number: %q", raw)
		}
		*f.out = &v
	}
	return opts, nil
}

func rowError(line int, err error) error {
	var verr ValidationError
	if errors.As(err, &verr) {
		verr.Message = fmt.Sprintf("line %d: %s", line, verr.Message)
		return verr
	}
	return fmt.Errorf("line %d: %w", line, err)
}
