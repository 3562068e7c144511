package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"sprintlens/internal/domain"
	"sprintlens/internal/events"
	"sprintlens/internal/repo"
)

// inTx runs fn in a transaction committed only when fn succeeds.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func newID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}

type CompanyCreateOptions struct {
	ID      string
	Name    string `validate:"required"`
	OwnerID string
	ActorID string
}

// CreateCompany creates a tenant and, when OwnerID is given, makes that user its owner.
func (e Engine) CreateCompany(ctx context.Context, opts CompanyCreateOptions) (domain.Company, error) {
	if err := checkOptions(opts); err != nil {
		return domain.Company{}, err
	}
	if opts.OwnerID != "" {
		if _, err := e.Repo.GetUser(ctx, opts.OwnerID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.Company{}, notFound("user", opts.OwnerID)
			}
			return domain.Company{}, err
		}
	}
	c := domain.Company{ID: newID(opts.ID), Name: strings.TrimSpace(opts.Name), CreatedAt: domain.FormatTime(e.now())}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertCompany(ctx, tx, c); err != nil {
			return fmt.Errorf("insert company: %w", err)
		}
		if opts.OwnerID != "" {
			m := domain.CompanyMember{CompanyID: c.ID, UserID: opts.OwnerID, Role: domain.RoleOwner}
			if err := e.Repo.UpsertCompanyMember(ctx, tx, m); err != nil {
				return fmt.Errorf("add owner: %w", err)
			}
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type: events.CompanyCreated, CompanyID: c.ID, EntityKind: "company", EntityID: c.ID, ActorID: opts.ActorID,
			Payload: events.EventPayload{"name": c.Name, "owner_id": opts.OwnerID},
		})
	})
	if err != nil {
		return domain.Company{}, err
	}
	return c, nil
}

type UserCreateOptions struct {
	ID         string
	Name       string   `validate:"required"`
	Email      string   `validate:"omitempty,email"`
	HourlyRate *float64 `validate:"omitempty,gte=0,lte=1000000"`
	ActorID    string
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	if err := checkOptions(opts); err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:         newID(opts.ID),
		Name:       strings.TrimSpace(opts.Name),
		Email:      strings.TrimSpace(opts.Email),
		HourlyRate: opts.HourlyRate,
		CreatedAt:  domain.FormatTime(e.now()),
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type: events.UserCreated, EntityKind: "user", EntityID: u.ID, ActorID: opts.ActorID,
			Payload: events.EventPayload{"name": u.Name},
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

type CompanyMemberOptions struct {
	CompanyID string `validate:"required"`
	UserID    string `validate:"required"`
	Role      string `validate:"required,oneof=owner admin manager member viewer"`
	ActorID   string
}

// AddCompanyMember adds the user to the company or changes their role.
func (e Engine) AddCompanyMember(ctx context.Context, opts CompanyMemberOptions) (domain.CompanyMember, error) {
	if err := checkOptions(opts); err != nil {
		return domain.CompanyMember{}, err
	}
	if _, err := e.Repo.GetCompany(ctx, opts.CompanyID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.CompanyMember{}, notFound("company", opts.CompanyID)
		}
		return domain.CompanyMember{}, err
	}
	if _, err := e.Repo.GetUser(ctx, opts.UserID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.CompanyMember{}, notFound("user", opts.UserID)
		}
		return domain.CompanyMember{}, err
	}
	m := domain.CompanyMember{CompanyID: opts.CompanyID, UserID: opts.UserID, Role: opts.Role}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertCompanyMember(ctx, tx, m); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type: events.CompanyMemberAdded, CompanyID: m.CompanyID, EntityKind: "user", EntityID: m.UserID, ActorID: opts.ActorID,
			Payload: events.EventPayload{"role": m.Role},
		})
	})
	if err != nil {
		return domain.CompanyMember{}, err
	}
	return m, nil
}

type ProjectCreateOptions struct {
	ID                string
	CompanyID         string `validate:"required"`
	Name              string `validate:"required"`
	Description       string
	DefaultHourlyRate *float64 `validate:"omitempty,gte=0,lte=1000000"`
	// OwnerID becomes the project owner; it must belong to the company.
	OwnerID string
	ActorID string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if err := checkOptions(opts); err != nil {
		return domain.Project{}, err
	}
	if _, err := e.Repo.GetCompany(ctx, opts.CompanyID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Project{}, notFound("company", opts.CompanyID)
		}
		return domain.Project{}, err
	}
	if opts.OwnerID != "" {
		if err := e.requireCompanyMember(ctx, opts.CompanyID, opts.OwnerID, "owner_id"); err != nil {
			return domain.Project{}, err
		}
	}
	p := domain.Project{
		ID:                newID(opts.ID),
		CompanyID:         opts.CompanyID,
		Name:              strings.TrimSpace(opts.Name),
		Description:       opts.Description,
		DefaultHourlyRate: opts.DefaultHourlyRate,
		CreatedAt:         domain.FormatTime(e.now()),
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		if opts.OwnerID != "" {
			m := domain.ProjectMember{ProjectID: p.ID, UserID: opts.OwnerID, Role: domain.ProjectRoleOwner}
			if err := e.Repo.UpsertProjectMember(ctx, tx, m); err != nil {
				return fmt.Errorf("add project owner: %w", err)
			}
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type: events.ProjectCreated, CompanyID: p.CompanyID, EntityKind: "project", EntityID: p.ID, ActorID: opts.ActorID,
			Payload: events.EventPayload{"name": p.Name, "default_hourly_rate": p.DefaultHourlyRate},
		})
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) requireCompanyMember(ctx context.Context, companyID, userID, field string) error {
	_, err := e.Repo.CompanyRole(ctx, companyID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return invalid(field, "user %s is not a member of company %s", userID, companyID)
	}
	return err
}

type ProjectMemberOptions struct {
	ProjectID string `validate:"required"`
	UserID    string `validate:"required"`
	Role      string `validate:"required,oneof=owner member"`
	ActorID   string
}

func (e Engine) AddProjectMember(ctx context.Context, opts ProjectMemberOptions) (domain.ProjectMember, error) {
	if err := checkOptions(opts); err != nil {
		return domain.ProjectMember{}, err
	}
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.ProjectMember{}, notFound("project", opts.ProjectID)
	}
	if err != nil {
		return domain.ProjectMember{}, err
	}
	if err := e.requireCompanyMember(ctx, p.CompanyID, opts.UserID, "user_id"); err != nil {
		return domain.ProjectMember{}, err
	}
	m := domain.ProjectMember{ProjectID: p.ID, UserID: opts.UserID, Role: opts.Role}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertProjectMember(ctx, tx, m); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type: events.ProjectMemberAdded, CompanyID: p.CompanyID, EntityKind: "project", EntityID: p.ID, ActorID: opts.ActorID,
			Payload: events.EventPayload{"user_id": m.UserID, "role": m.Role},
		})
	})
	if err != nil {
		return domain.ProjectMember{}, err
	}
	return m, nil
}

type SprintCreateOptions struct {
	ID        string
	ProjectID string `validate:"required"`
	Name      string `validate:"required"`
	StartDate string
	EndDate   string
	ActorID   string
}

func (e Engine) CreateSprint(ctx context.Context, opts SprintCreateOptions) (domain.Sprint, error) {
	if err := checkOptions(opts); err != nil {
		return domain.Sprint{}, err
	}
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Sprint{}, notFound("project", opts.ProjectID)
	}
	if err != nil {
		return domain.Sprint{}, err
	}
	s := domain.Sprint{ID: newID(opts.ID), ProjectID: p.ID, Name: strings.TrimSpace(opts.Name), CreatedAt: domain.FormatTime(e.now())}
	if s.StartDate, err = normalizeOptionalTime("start_date", opts.StartDate); err != nil {
		return domain.Sprint{}, err
	}
	if s.EndDate, err = normalizeOptionalTime("end_date", opts.EndDate); err != nil {
		return domain.Sprint{}, err
	}
	if s.StartDate != nil && s.EndDate != nil && *s.EndDate < *s.StartDate {
		return domain.Sprint{}, invalid("end_date", "must not be before start_date")
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertSprint(ctx, tx, s); err != nil {
			return fmt.Errorf("insert sprint: %w", err)
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type: events.SprintCreated, CompanyID: p.CompanyID, EntityKind: "sprint", EntityID: s.ID, ActorID: opts.ActorID,
			Payload: events.EventPayload{"project_id": p.ID, "name": s.Name},
		})
	})
	if err != nil {
		return domain.Sprint{}, err
	}
	return s, nil
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	ID                 string
	ProjectID          string `validate:"required"`
	SprintID           string
	AssigneeID         string
	Title              string `validate:"required"`
	Description        string
	Status             string   `validate:"omitempty,taskstatus"`
	EstimateHours      *float64 `validate:"omitempty,gte=0,lte=1000000"`
	ActualHours        *float64 `validate:"omitempty,gte=0,lte=1000000"`
	HourlyRateOverride *float64 `validate:"omitempty,gte=0,lte=1000000"`
	CostOverride       *float64 `validate:"omitempty,gte=0,lte=1000000000"`
	StartDate          string
	DueDate            string
	ActorID            string
}

// prepareTask validates the options against the project and builds the row.
func (e Engine) prepareTask(ctx context.Context, p domain.Project, opts TaskCreateOptions) (domain.Task, error) {
	if err := checkOptions(opts); err != nil {
		return domain.Task{}, err
	}
	status := domain.StatusBacklog
	if opts.Status != "" {
		status, _ = domain.ParseTaskStatus(opts.Status)
	}
	now := domain.FormatTime(e.now())
	t := domain.Task{
		ID:                 newID(opts.ID),
		ProjectID:          p.ID,
		Title:              strings.TrimSpace(opts.Title),
		Description:        opts.Description,
		Status:             status,
		EstimateHours:      opts.EstimateHours,
		ActualHours:        opts.ActualHours,
		HourlyRateOverride: opts.HourlyRateOverride,
		CostOverride:       opts.CostOverride,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.checkTaskRefs(ctx, p, opts.SprintID, opts.AssigneeID); err != nil {
		return domain.Task{}, err
	}
	t.SprintID = optionalString(opts.SprintID)
	t.AssigneeID = optionalString(opts.AssigneeID)
	var err error
	if t.StartDate, err = normalizeOptionalTime("start_date", opts.StartDate); err != nil {
		return domain.Task{}, err
	}
	if t.DueDate, err = normalizeOptionalTime("due_date", opts.DueDate); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// checkTaskRefs ensures the sprint belongs to the project and the assignee
// belongs to the project's company.
func (e Engine) checkTaskRefs(ctx context.Context, p domain.Project, sprintID, assigneeID string) error {
	if sprintID != "" {
		s, err := e.Repo.GetSprint(ctx, sprintID)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && s.ProjectID != p.ID) {
			return invalid("sprint_id", "sprint %s not in project %s", sprintID, p.ID)
		}
		if err != nil {
			return err
		}
	}
	if assigneeID != "" {
		if err := e.requireCompanyMember(ctx, p.CompanyID, assigneeID, "assignee_id"); err != nil {
			return err
		}
	}
	return nil
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Task{}, notFound("project", opts.ProjectID)
	}
	if err != nil {
		return domain.Task{}, err
	}
	t, err := e.prepareTask(ctx, p, opts)
	if err != nil {
		return domain.Task{}, err
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return e.appendTaskCreated(ctx, tx, p, t, opts.ActorID)
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) appendTaskCreated(ctx context.Context, tx *sql.Tx, p domain.Project, t domain.Task, actorID string) error {
	return e.Events.Append(ctx, tx, events.Entry{
		Type: events.TaskCreated, CompanyID: p.CompanyID, EntityKind: "task", EntityID: t.ID, ActorID: actorID,
		Payload: events.EventPayload{"project_id": p.ID, "title": t.Title, "status": t.Status},
	})
}

// TaskUpdateOptions changes only the fields that are set. An empty string
// clears SprintID, AssigneeID, StartDate or DueDate; Clear lists numeric
// fields to reset to null (estimate_hours, actual_hours,
// hourly_rate_override, cost_override).
type TaskUpdateOptions struct {
	ID                 string `validate:"required"`
	ProjectID          string
	Title              *string
	Description        *string
	Status             *string `validate:"omitempty,taskstatus"`
	SprintID           *string
	AssigneeID         *string
	EstimateHours      *float64 `validate:"omitempty,gte=0,lte=1000000"`
	ActualHours        *float64 `validate:"omitempty,gte=0,lte=1000000"`
	HourlyRateOverride *float64 `validate:"omitempty,gte=0,lte=1000000"`
	CostOverride       *float64 `validate:"omitempty,gte=0,lte=1000000000"`
	StartDate          *string
	DueDate            *string
	Clear              []string
	ActorID            string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	if err := checkOptions(opts); err != nil {
		return domain.Task{}, err
	}
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && opts.ProjectID != "" && t.ProjectID != opts.ProjectID) {
		return domain.Task{}, notFound("task", opts.ID)
	}
	if err != nil {
		return domain.Task{}, err
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return domain.Task{}, err
	}
	oldStatus := t.Status
	if opts.Title != nil {
		if strings.TrimSpace(*opts.Title) == "" {
			return domain.Task{}, invalid("title", "is required")
		}
		t.Title = strings.TrimSpace(*opts.Title)
	}
	if opts.Description != nil {
		t.Description = *opts.Description
	}
	if opts.Status != nil && *opts.Status != "" {
		t.Status, _ = domain.ParseTaskStatus(*opts.Status)
	}
	sprintID, assigneeID := "", ""
	if opts.SprintID != nil {
		sprintID = *opts.SprintID
		t.SprintID = optionalString(sprintID)
	}
	if opts.AssigneeID != nil {
		assigneeID = *opts.AssigneeID
		t.AssigneeID = optionalString(assigneeID)
	}
	if err := e.checkTaskRefs(ctx, p, sprintID, assigneeID); err != nil {
		return domain.Task{}, err
	}
	for _, f := range []struct {
		in  *float64
		out **float64
	}{
		{opts.EstimateHours, &t.EstimateHours},
		{opts.ActualHours, &t.ActualHours},
		{opts.HourlyRateOverride, &t.HourlyRateOverride},
		{opts.CostOverride, &t.CostOverride},
	} {
		if f.in != nil {
			v := *f.in
			*f.out = &v
		}
	}
	for _, field := range opts.Clear {
		switch field {
		case "estimate_hours":
			t.EstimateHours = nil
		case "actual_hours":
			t.ActualHours = nil
		case "hourly_rate_override":
			t.HourlyRateOverride = nil
		case "cost_override":
			t.CostOverride = nil
		default:
			return domain.Task{}, invalid("clear", "unknown field %s", field)
		}
	}
	if opts.StartDate != nil {
		if t.StartDate, err = normalizeOptionalTime("start_date", *opts.StartDate); err != nil {
			return domain.Task{}, err
		}
	}
	if opts.DueDate != nil {
		if t.DueDate, err = normalizeOptionalTime("due_date", *opts.DueDate); err != nil {
			return domain.Task{}, err
		}
	}
	t.UpdatedAt = domain.FormatTime(e.now())
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return err
		}
		entry := events.Entry{
			Type: events.TaskUpdated, CompanyID: p.CompanyID, EntityKind: "task", EntityID: t.ID, ActorID: opts.ActorID,
			Payload: events.EventPayload{"project_id": p.ID},
		}
		if t.Status != oldStatus {
			entry.Type = events.TaskStatusChanged
			entry.Payload["from"] = oldStatus
			entry.Payload["to"] = t.Status
		}
		return e.Events.Append(ctx, tx, entry)
	})
	if err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// CreateAPIKey issues a key for the user. The plain key is only returned here.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name, actorID string) (domain.APIKey, string, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.APIKey{}, "", invalid("user_id", "is required")
	}
	if _, err := e.Repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.APIKey{}, "", notFound("user", userID)
		}
		return domain.APIKey{}, "", err
	}
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := "sl_" + hex.EncodeToString(raw)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: domain.FormatTime(e.now()),
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.Entry{
			Type: events.APIKeyCreated, EntityKind: "api_key", EntityID: key.ID, ActorID: actorID,
			Payload: events.EventPayload{"user_id": userID, "name": name},
		})
	})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}
