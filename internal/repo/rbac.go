package repo

import (
	"context"
	"database/sql"
	"errors"

	"sprintlens/internal/domain"
)

func (r Repo) UpsertCompanyMember(ctx context.Context, tx *sql.Tx, m domain.CompanyMember) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO company_members(company_id, user_id, role) VALUES (?,?,?)
ON CONFLICT(company_id, user_id) DO UPDATE SET role=excluded.role`, m.CompanyID, m.UserID, m.Role)
	return err
}

func (r Repo) UpsertProjectMember(ctx context.Context, tx *sql.Tx, m domain.ProjectMember) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_members(project_id, user_id, role) VALUES (?,?,?)
ON CONFLICT(project_id, user_id) DO UPDATE SET role=excluded.role`, m.ProjectID, m.UserID, m.Role)
	return err
}

// CompanyRole returns the caller's role in the company, ErrNotFound when the
// user is not a member.
func (r Repo) CompanyRole(ctx context.Context, companyID, userID string) (string, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM company_members WHERE company_id=? AND user_id=?`, companyID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return role, err
}

// ProjectRole returns the user's role in the project, ErrNotFound when the
// user is not a member.
func (r Repo) ProjectRole(ctx context.Context, projectID, userID string) (string, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return role, err
}

func (r Repo) ListCompanyMembers(ctx context.Context, companyID string) ([]domain.CompanyMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT company_id, user_id, role FROM company_members WHERE company_id=? ORDER BY user_id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []domain.CompanyMember
	for rows.Next() {
		var m domain.CompanyMember
		if err := rows.Scan(&m.CompanyID, &m.UserID, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// MemberProjectIDs lists the company's projects the user is a member of.
func (r Repo) MemberProjectIDs(ctx context.Context, companyID, userID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT pm.project_id FROM project_members pm
JOIN projects p ON p.id = pm.project_id
WHERE p.company_id=? AND pm.user_id=?
ORDER BY p.created_at, p.id`, companyID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
