package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"sprintlens/internal/domain"
	"sprintlens/internal/engine/auth"
	"sprintlens/internal/repo"
)

// AnalyticsQuery holds the optional refinements of an analytics request.
// Dates are ISO strings; a bare date means midnight UTC of that day.
type AnalyticsQuery struct {
	ProjectID string
	StartDate string
	EndDate   string
}

// BuildTaskScope validates the refinements against the company and returns
// the scope for the analytics read.
func (e Engine) BuildTaskScope(ctx context.Context, companyID string, q AnalyticsQuery) (repo.TaskScope, error) {
	if companyID == "" {
		return repo.TaskScope{}, auth.ScopingError{}
	}
	scope := repo.TaskScope{CompanyID: companyID}
	if id := strings.TrimSpace(q.ProjectID); id != "" {
		p, err := e.Repo.GetCompanyProject(ctx, companyID, id)
		if errors.Is(err, repo.ErrNotFound) {
			return repo.TaskScope{}, notFound("project", id)
		}
		if err != nil {
			return repo.TaskScope{}, err
		}
		scope.ProjectID = p.ID
	}
	var err error
	if scope.From, err = parseBound("start_date", q.StartDate); err != nil {
		return repo.TaskScope{}, err
	}
	if scope.To, err = parseBound("end_date", q.EndDate); err != nil {
		return repo.TaskScope{}, err
	}
	return scope, nil
}

func parseBound(field, v string) (*time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	t, err := domain.ParseTime(v)
	if err != nil {
		return nil, invalid(field, "%v", err)
	}
	return &t, nil
}
