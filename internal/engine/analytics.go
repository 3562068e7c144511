package engine

import (
	"context"

	"go.uber.org/zap"

	"sprintlens/internal/analytics"
	"sprintlens/internal/repo"
)

// Analytics view names, used for logging and metrics labels.
const (
	ViewProductivity = "productivity"
	ViewCosts        = "costs"
	ViewTime         = "time"
	ViewQuality      = "quality"
	ViewHeatmap      = "activity-heatmap"
	ViewCompare      = "compare-projects"
	ViewSummary      = "project-summary"
)

// runView loads the scoped tasks and reduces them. Every call re-reads the
// store; nothing is cached between requests.
func runView[R any](ctx context.Context, e Engine, view string, scope repo.TaskScope, reduce func([]analytics.Task) R) (R, error) {
	var zero R
	started := e.now()
	tasks, err := e.Repo.ListAnalyticsTasks(ctx, scope)
	if err != nil {
		return zero, err
	}
	out := reduce(tasks)
	elapsed := e.now().Sub(started)
	if e.Metrics != nil {
		e.Metrics.ObserveView(view, len(tasks), elapsed)
	}
	e.log().Debug("analytics view computed",
		zap.String("view", view),
		zap.String("company_id", scope.CompanyID),
		zap.String("project_id", scope.ProjectID),
		zap.Int("tasks", len(tasks)),
		zap.Duration("elapsed", elapsed))
	return out, nil
}

// elevatedScope applies the access checks shared by the company-wide views
// and then builds the task scope.
func (e Engine) elevatedScope(ctx context.Context, a Actor, q AnalyticsQuery) (repo.TaskScope, error) {
	if _, err := e.ElevatedAccess(ctx, a); err != nil {
		return repo.TaskScope{}, err
	}
	return e.BuildTaskScope(ctx, a.CompanyID, q)
}

func (e Engine) Productivity(ctx context.Context, a Actor, q AnalyticsQuery) (analytics.ProductivityReport, error) {
	scope, err := e.elevatedScope(ctx, a, q)
	if err != nil {
		return analytics.ProductivityReport{}, err
	}
	return runView(ctx, e, ViewProductivity, scope, analytics.Productivity)
}

func (e Engine) Costs(ctx context.Context, a Actor, q AnalyticsQuery) (analytics.CostReport, error) {
	scope, err := e.elevatedScope(ctx, a, q)
	if err != nil {
		return analytics.CostReport{}, err
	}
	return runView(ctx, e, ViewCosts, scope, analytics.Costs)
}

func (e Engine) Timing(ctx context.Context, a Actor, q AnalyticsQuery) (analytics.TimeReport, error) {
	scope, err := e.elevatedScope(ctx, a, q)
	if err != nil {
		return analytics.TimeReport{}, err
	}
	return runView(ctx, e, ViewTime, scope, analytics.Timing)
}

func (e Engine) Quality(ctx context.Context, a Actor, q AnalyticsQuery) (analytics.QualityReport, error) {
	scope, err := e.elevatedScope(ctx, a, q)
	if err != nil {
		return analytics.QualityReport{}, err
	}
	return runView(ctx, e, ViewQuality, scope, analytics.Quality)
}

// Heatmap is open to every company member. A project filter requires access
// to that project; without one, only admins and elevated roles see every
// project, other members their own.
// No date range applies to this view.
func (e Engine) Heatmap(ctx context.Context, a Actor, projectID string) (analytics.HeatmapReport, error) {
	role, err := e.CompanyAccess(ctx, a)
	if err != nil {
		return analytics.HeatmapReport{}, err
	}
	scope := repo.TaskScope{CompanyID: a.CompanyID}
	switch {
	case projectID != "":
		p, err := e.ProjectAccess(ctx, a, projectID)
		if err != nil {
			return analytics.HeatmapReport{}, err
		}
		scope.ProjectID = p.ID
	case !e.seesAllProjects(role):
		ids, err := e.Repo.MemberProjectIDs(ctx, a.CompanyID, a.UserID)
		if err != nil {
			return analytics.HeatmapReport{}, err
		}
		scope.RestrictProjects = true
		scope.ProjectIDs = ids
	}
	return runView(ctx, e, ViewHeatmap, scope, analytics.Heatmap)
}

// CompareProjects summarizes every project of the company, idle ones included.
func (e Engine) CompareProjects(ctx context.Context, a Actor) (analytics.ComparisonReport, error) {
	if _, err := e.ElevatedAccess(ctx, a); err != nil {
		return analytics.ComparisonReport{}, err
	}
	projects, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{CompanyID: a.CompanyID})
	if err != nil {
		return analytics.ComparisonReport{}, err
	}
	refs := make([]analytics.ProjectRef, 0, len(projects))
	for _, p := range projects {
		refs = append(refs, analytics.ProjectRef{ID: p.ID, Name: p.Name, DefaultHourlyRate: p.DefaultHourlyRate})
	}
	scope := repo.TaskScope{CompanyID: a.CompanyID}
	return runView(ctx, e, ViewCompare, scope, func(tasks []analytics.Task) analytics.ComparisonReport {
		return analytics.CompareProjects(refs, tasks)
	})
}

// ProjectSummary rolls up one project for its members and company admins.
func (e Engine) ProjectSummary(ctx context.Context, a Actor, projectID string) (analytics.ProjectSummary, error) {
	p, err := e.ProjectAccess(ctx, a, projectID)
	if err != nil {
		return analytics.ProjectSummary{}, err
	}
	ref := analytics.ProjectRef{ID: p.ID, Name: p.Name, DefaultHourlyRate: p.DefaultHourlyRate}
	scope := repo.TaskScope{CompanyID: a.CompanyID, ProjectID: p.ID}
	return runView(ctx, e, ViewSummary, scope, func(tasks []analytics.Task) analytics.ProjectSummary {
		return analytics.Summarize(ref, tasks)
	})
}
