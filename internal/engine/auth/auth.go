package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"sprintlens/internal/domain"
	"sprintlens/internal/repo"
)

// ScopingError means no active company was supplied with the request.
type ScopingError struct{}

func (ScopingError) Error() string { return "an active company is required" }

// AuthenticationError means the request carries no resolvable user.
type AuthenticationError struct {
	Reason string
}

func (e AuthenticationError) Error() string {
	if e.Reason == "" {
		return "authentication required"
	}
	return "authentication required: " + e.Reason
}

// ForbiddenError indicates a missing membership or role.
type ForbiddenError struct {
	Scope    string
	Required []string
}

func (e ForbiddenError) Error() string {
	if len(e.Required) == 0 {
		return fmt.Sprintf("%s membership required", e.Scope)
	}
	return fmt.Sprintf("%s role required: one of %v", e.Scope, e.Required)
}

// Service answers membership questions for a company and its projects.
type Service struct {
	DB *sql.DB
}

func (s Service) repo() repo.Repo { return repo.Repo{DB: s.DB} }

// CompanyRole returns the member's role. Non-members get a ForbiddenError.
func (s Service) CompanyRole(ctx context.Context, companyID, userID string) (string, error) {
	role, err := s.repo().CompanyRole(ctx, companyID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ForbiddenError{Scope: "company"}
	}
	return role, err
}

// RequireCompanyRole checks the member holds one of the allowed roles.
func (s Service) RequireCompanyRole(ctx context.Context, companyID, userID string, allowed []string) (string, error) {
	role, err := s.CompanyRole(ctx, companyID, userID)
	if err != nil {
		return "", err
	}
	if !slices.Contains(allowed, role) {
		return role, ForbiddenError{Scope: "company", Required: allowed}
	}
	return role, nil
}

// IsCompanyAdmin reports whether the company role can see and manage every project.
func IsCompanyAdmin(role string) bool {
	return role == domain.RoleOwner || role == domain.RoleAdmin
}

// ProjectRole returns the user's project role, or "" when not a member.
func (s Service) ProjectRole(ctx context.Context, projectID, userID string) (string, error) {
	role, err := s.repo().ProjectRole(ctx, projectID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", nil
	}
	return role, err
}

// RequireProjectAccess admits company admins/owners and members of the
// project holding one of the allowed project roles (any role when empty).
func (s Service) RequireProjectAccess(ctx context.Context, companyRole, projectID, userID string, allowed ...string) error {
	if IsCompanyAdmin(companyRole) {
		return nil
	}
	role, err := s.ProjectRole(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if role == "" {
		return ForbiddenError{Scope: "project"}
	}
	if len(allowed) > 0 && !slices.Contains(allowed, role) {
		return ForbiddenError{Scope: "project", Required: allowed}
	}
	return nil
}
