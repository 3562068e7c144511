package engine

import (
	"context"
	"errors"
	"slices"

	"sprintlens/internal/domain"
	"sprintlens/internal/engine/auth"
	"sprintlens/internal/repo"
)

// Actor is the acting user within an active company.
type Actor struct {
	UserID    string
	CompanyID string
}

// CompanyAccess resolves the actor's company role. Checks run in a fixed
// order: company context, then identity, then membership.
func (e Engine) CompanyAccess(ctx context.Context, a Actor) (string, error) {
	if a.CompanyID == "" {
		return "", auth.ScopingError{}
	}
	if a.UserID == "" {
		return "", auth.AuthenticationError{}
	}
	return e.Auth.CompanyRole(ctx, a.CompanyID, a.UserID)
}

// ElevatedAccess additionally requires a role allowed to read company-wide analytics.
func (e Engine) ElevatedAccess(ctx context.Context, a Actor) (string, error) {
	role, err := e.CompanyAccess(ctx, a)
	if err != nil {
		return "", err
	}
	allowed := e.Config.Analytics.ElevatedRoles
	if !slices.Contains(allowed, role) {
		return role, auth.ForbiddenError{Scope: "company", Required: allowed}
	}
	return role, nil
}

// RequireCompanyAdmin admits company owners and admins.
func (e Engine) RequireCompanyAdmin(ctx context.Context, a Actor) error {
	role, err := e.CompanyAccess(ctx, a)
	if err != nil {
		return err
	}
	if !auth.IsCompanyAdmin(role) {
		return auth.ForbiddenError{Scope: "company", Required: []string{domain.RoleOwner, domain.RoleAdmin}}
	}
	return nil
}

// ProjectAccess resolves a project inside the actor's company and checks the
// actor may use it. A project of another company is reported as not found.
func (e Engine) ProjectAccess(ctx context.Context, a Actor, projectID string, projectRoles ...string) (domain.Project, error) {
	role, err := e.CompanyAccess(ctx, a)
	if err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetCompanyProject(ctx, a.CompanyID, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Project{}, notFound("project", projectID)
	}
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.Auth.RequireProjectAccess(ctx, role, p.ID, a.UserID, projectRoles...); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// VisibleProjects lists the company projects the actor may see: all of them
// for admins and elevated roles, otherwise only those the actor belongs to.
func (e Engine) VisibleProjects(ctx context.Context, a Actor) ([]domain.Project, error) {
	role, err := e.CompanyAccess(ctx, a)
	if err != nil {
		return nil, err
	}
	f := repo.ProjectFilters{CompanyID: a.CompanyID}
	if !e.seesAllProjects(role) {
		f.MemberID = a.UserID
	}
	return e.Repo.ListProjects(ctx, f)
}

func (e Engine) seesAllProjects(role string) bool {
	return auth.IsCompanyAdmin(role) || slices.Contains(e.Config.Analytics.ElevatedRoles, role)
}
