package repo_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintlens/internal/db"
	"sprintlens/internal/domain"
	"sprintlens/internal/migrate"
	"sprintlens/internal/repo"
)

const ts = "2024-05-01T10:00:00.000Z"

func f(v float64) *float64 { return &v }
func s(v string) *string  { return &v }

func openRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	return repo.Repo{DB: conn}, ctx
}

func withTx(t *testing.T, r repo.Repo, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := r.DB.Begin()
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

// seed creates companies c1 and c2 with one project each, a sprint and an
// assignee in c1, two tasks in c1 and one task in c2.
func seed(t *testing.T, r repo.Repo, ctx context.Context) {
	withTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.InsertCompany(ctx, tx, domain.Company{ID: "c1", Name: "One", CreatedAt: ts}))
		require.NoError(t, r.InsertCompany(ctx, tx, domain.Company{ID: "c2", Name: "Two", CreatedAt: ts}))
		require.NoError(t, r.InsertUser(ctx, tx, domain.User{ID: "u1", Name: "Ann", HourlyRate: f(30), CreatedAt: ts}))
		require.NoError(t, r.UpsertCompanyMember(ctx, tx, domain.CompanyMember{CompanyID: "c1", UserID: "u1", Role: "member"}))
		require.NoError(t, r.InsertProject(ctx, tx, domain.Project{ID: "p1", CompanyID: "c1", Name: "P1", DefaultHourlyRate: f(10), CreatedAt: ts}))
		require.NoError(t, r.InsertProject(ctx, tx, domain.Project{ID: "p2", CompanyID: "c2", Name: "P2", CreatedAt: ts}))
		require.NoError(t, r.UpsertProjectMember(ctx, tx, domain.ProjectMember{ProjectID: "p1", UserID: "u1", Role: "member"}))
		require.NoError(t, r.InsertSprint(ctx, tx, domain.Sprint{ID: "s1", ProjectID: "p1", Name: "Sprint 1", CreatedAt: ts}))
		tasks := []domain.Task{
			{ID: "t1", ProjectID: "p1", SprintID: s("s1"), AssigneeID: s("u1"), Title: "one", Status: domain.StatusDone,
				EstimateHours: f(2), ActualHours: f(3), StartDate: s("2024-05-01T00:00:00.000Z"), DueDate: s("2024-05-03T00:00:00.000Z"),
				CreatedAt: "2024-05-01T10:00:00.000Z", UpdatedAt: ts},
			{ID: "t2", ProjectID: "p1", Title: "two", Status: domain.StatusTodo, CostOverride: f(0),
				CreatedAt: "2024-05-02T10:00:00.000Z", UpdatedAt: ts},
			{ID: "t3", ProjectID: "p2", Title: "other tenant", Status: domain.StatusTodo,
				CreatedAt: "2024-05-01T11:00:00.000Z", UpdatedAt: ts},
		}
		for _, task := range tasks {
			require.NoError(t, r.InsertTask(ctx, tx, task))
		}
	})
}

func TestTaskScopeWhere(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args, err := repo.TaskScope{CompanyID: "c1", ProjectID: "p1", From: &from}.Where()
	require.NoError(t, err)
	assert.Equal(t, "p.company_id = ? AND t.project_id = ? AND t.created_at >= ?", where)
	assert.Equal(t, []any{"c1", "p1", "2024-01-01T00:00:00.000Z"}, args)

	where, args, err = repo.TaskScope{CompanyID: "c1", RestrictProjects: true, ProjectIDs: []string{"a", "b"}}.Where()
	require.NoError(t, err)
	assert.Equal(t, "p.company_id = ? AND t.project_id IN (?, ?)", where)
	assert.Equal(t, []any{"c1", "a", "b"}, args)

	where, _, err = repo.TaskScope{CompanyID: "c1", RestrictProjects: true}.Where()
	require.NoError(t, err)
	assert.Contains(t, where, "1=0")

	_, _, err = repo.TaskScope{}.Where()
	assert.Error(t, err)
}

func TestListAnalyticsTasksJoinsRelations(t *testing.T) {
	r, ctx := openRepo(t)
	seed(t, r, ctx)

	tasks, err := r.ListAnalyticsTasks(ctx, repo.TaskScope{CompanyID: "c1"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	first := tasks[0]
	assert.Equal(t, "t1", first.ID)
	require.NotNil(t, first.Assignee)
	assert.Equal(t, "Ann", first.Assignee.Name)
	assert.Equal(t, 30.0, *first.Assignee.HourlyRate)
	require.NotNil(t, first.Sprint)
	assert.Equal(t, "Sprint 1", first.Sprint.Name)
	assert.Equal(t, 10.0, *first.Project.DefaultHourlyRate)
	require.NotNil(t, first.StartDate)
	assert.Equal(t, 48*time.Hour, first.DueDate.Sub(*first.StartDate))

	second := tasks[1]
	assert.Nil(t, second.Assignee)
	assert.Nil(t, second.Sprint)
	assert.Nil(t, second.EstimateHours)
	require.NotNil(t, second.CostOverride, "zero cost override must survive the round trip")
	assert.Equal(t, 0.0, *second.CostOverride)
}

func TestListAnalyticsTasksScopes(t *testing.T) {
	r, ctx := openRepo(t)
	seed(t, r, ctx)

	to := time.Date(2024, 5, 1, 23, 59, 0, 0, time.UTC)
	tasks, err := r.ListAnalyticsTasks(ctx, repo.TaskScope{CompanyID: "c1", To: &to})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].ID)

	tasks, err = r.ListAnalyticsTasks(ctx, repo.TaskScope{CompanyID: "c1", ProjectID: "p2"})
	require.NoError(t, err)
	assert.Empty(t, tasks, "a project of another company never matches")

	tasks, err = r.ListAnalyticsTasks(ctx, repo.TaskScope{CompanyID: "c1", RestrictProjects: true})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCompanyProjectLookup(t *testing.T) {
	r, ctx := openRepo(t)
	seed(t, r, ctx)

	p, err := r.GetCompanyProject(ctx, "c1", "p1")
	require.NoError(t, err)
	assert.Equal(t, "P1", p.Name)

	_, err = r.GetCompanyProject(ctx, "c1", "p2")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	projects, err := r.ListProjects(ctx, repo.ProjectFilters{CompanyID: "c1", MemberID: "u1"})
	require.NoError(t, err)
	require.Len(t, projects, 1)

	ids, err := r.MemberProjectIDs(ctx, "c2", "u1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMembershipRoles(t *testing.T) {
	r, ctx := openRepo(t)
	seed(t, r, ctx)

	role, err := r.CompanyRole(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "member", role)

	withTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.UpsertCompanyMember(ctx, tx, domain.CompanyMember{CompanyID: "c1", UserID: "u1", Role: "admin"}))
	})
	role, err = r.CompanyRole(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	_, err = r.CompanyRole(ctx, "c2", "u1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = r.ProjectRole(ctx, "p2", "u1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUpdateTaskClearsFields(t *testing.T) {
	r, ctx := openRepo(t)
	seed(t, r, ctx)

	task, err := r.GetTask(ctx, "t1")
	require.NoError(t, err)
	task.SprintID = nil
	task.ActualHours = nil
	task.Status = domain.StatusReview
	withTx(t, r, func(tx *sql.Tx) {
		require.NoError(t, r.UpdateTask(ctx, tx, task))
	})
	got, err := r.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, got.SprintID)
	assert.Nil(t, got.ActualHours)
	assert.Equal(t, domain.StatusReview, got.Status)

	withTx(t, r, func(tx *sql.Tx) {
		assert.ErrorIs(t, r.UpdateTask(ctx, tx, domain.Task{ID: "missing", Status: domain.StatusTodo}), repo.ErrNotFound)
	})
}

func TestAPIKeys(t *testing.T) {
	r, ctx := openRepo(t)
	seed(t, r, ctx)

	hash := repo.HashAPIKey(" secret ")
	assert.Equal(t, repo.HashAPIKey("secret"), hash)
	require.NoError(t, r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", UserID: "u1", KeyHash: hash}))

	key, err := r.GetAPIKeyByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "u1", key.UserID)

	keys, err := r.ListAPIKeys(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, r.DeleteAPIKey(ctx, "k1"))
	_, err = r.GetAPIKeyByHash(ctx, hash)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, r.DeleteAPIKey(ctx, "k1"), repo.ErrNotFound)
}
