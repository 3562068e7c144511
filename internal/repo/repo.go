package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sprintlens/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// --- companies ---

func (r Repo) InsertCompany(ctx context.Context, tx *sql.Tx, c domain.Company) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO companies(id,name,created_at) VALUES (?,?,?)`, c.ID, c.Name, c.CreatedAt)
	return err
}

func (r Repo) GetCompany(ctx context.Context, id string) (domain.Company, error) {
	var c domain.Company
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM companies WHERE id=?`, id).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM companies ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Company
	for rows.Next() {
		var c domain.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- users ---

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,name,email,hourly_rate,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Name, nullable(u.Email), nullableFloatPtr(u.HourlyRate), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var email sql.NullString
	var rate sql.NullFloat64
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,email,hourly_rate,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &email, &rate, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Email = email.String
	u.HourlyRate = floatPtr(rate)
	return u, nil
}

// --- projects ---

const projectColumns = `id,company_id,name,COALESCE(description,''),default_hourly_rate,created_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var rate sql.NullFloat64
	if err := scan(&p.ID, &p.CompanyID, &p.Name, &p.Description, &rate, &p.CreatedAt); err != nil {
		return p, err
	}
	p.DefaultHourlyRate = floatPtr(rate)
	return p, nil
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,company_id,name,description,default_hourly_rate,created_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.CompanyID, p.Name, nullable(p.Description), nullableFloatPtr(p.DefaultHourlyRate), p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// GetCompanyProject returns the project only when it belongs to the company.
// A project owned by another tenant is reported as ErrNotFound.
func (r Repo) GetCompanyProject(ctx context.Context, companyID, projectID string) (domain.Project, error) {
	p, err := scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=? AND company_id=?`, projectID, companyID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

type ProjectFilters struct {
	CompanyID string
	// MemberID limits the listing to projects the user belongs to.
	MemberID string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	if f.CompanyID != "" {
		clauses = append(clauses, "company_id=?")
		args = append(args, f.CompanyID)
	}
	if f.MemberID != "" {
		clauses = append(clauses, "id IN (SELECT project_id FROM project_members WHERE user_id=?)")
		args = append(args, f.MemberID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// --- sprints ---

func (r Repo) InsertSprint(ctx context.Context, tx *sql.Tx, s domain.Sprint) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sprints(id,project_id,name,start_date,end_date,created_at) VALUES (?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.Name, nullableStringPtr(s.StartDate), nullableStringPtr(s.EndDate), s.CreatedAt)
	return err
}

func (r Repo) GetSprint(ctx context.Context, id string) (domain.Sprint, error) {
	var s domain.Sprint
	var start, end sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,start_date,end_date,created_at FROM sprints WHERE id=?`, id).
		Scan(&s.ID, &s.ProjectID, &s.Name, &start, &end, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.StartDate = stringPtr(start)
	s.EndDate = stringPtr(end)
	return s, nil
}

// --- tasks ---

const taskColumns = `id,project_id,sprint_id,assignee_id,title,description,status,estimate_hours,actual_hours,hourly_rate_override,cost_override,start_date,due_date,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var sprintID, assigneeID, description, startDate, dueDate sql.NullString
	var estimate, actual, rate, cost sql.NullFloat64
	err := scan(&t.ID, &t.ProjectID, &sprintID, &assigneeID, &t.Title, &description, &t.Status,
		&estimate, &actual, &rate, &cost, &startDate, &dueDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.SprintID = stringPtr(sprintID)
	t.AssigneeID = stringPtr(assigneeID)
	t.Description = description.String
	t.EstimateHours = floatPtr(estimate)
	t.ActualHours = floatPtr(actual)
	t.HourlyRateOverride = floatPtr(rate)
	t.CostOverride = floatPtr(cost)
	t.StartDate = stringPtr(startDate)
	t.DueDate = stringPtr(dueDate)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, nullableStringPtr(t.SprintID), nullableStringPtr(t.AssigneeID), t.Title, nullable(t.Description), string(t.Status),
		nullableFloatPtr(t.EstimateHours), nullableFloatPtr(t.ActualHours), nullableFloatPtr(t.HourlyRateOverride), nullableFloatPtr(t.CostOverride),
		nullableStringPtr(t.StartDate), nullableStringPtr(t.DueDate), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET sprint_id=?, assignee_id=?, title=?, description=?, status=?, estimate_hours=?, actual_hours=?, hourly_rate_override=?, cost_override=?, start_date=?, due_date=?, updated_at=? WHERE id=?`,
		nullableStringPtr(t.SprintID), nullableStringPtr(t.AssigneeID), t.Title, nullable(t.Description), string(t.Status),
		nullableFloatPtr(t.EstimateHours), nullableFloatPtr(t.ActualHours), nullableFloatPtr(t.HourlyRateOverride), nullableFloatPtr(t.CostOverride),
		nullableStringPtr(t.StartDate), nullableStringPtr(t.DueDate), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

type TaskFilters struct {
	ProjectID  string
	SprintID   string
	AssigneeID string
	Status     string
	Limit      int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.SprintID != "" {
		clauses = append(clauses, "sprint_id=?")
		args = append(args, f.SprintID)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at, id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// --- events ---

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, companyID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if companyID != "" {
		clauses = append(clauses, "company_id=?")
		args = append(args, companyID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(company_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE %s ORDER BY id ASC LIMIT ?`,
		strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.CompanyID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID, optionally for one company.
func (r Repo) LatestEventID(ctx context.Context, companyID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if companyID != "" {
		query += ` WHERE company_id=?`
		args = append(args, companyID)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
