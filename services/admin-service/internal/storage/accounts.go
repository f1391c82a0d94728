package storage

import (
	"context"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

// The four account tables share one username namespace.
const accountsByUsername = `
	SELECT role, id, username, password_hash, organisation_id FROM (
		SELECT 'superadmin' AS role, id, username, password_hash, 0::bigint AS organisation_id FROM super_admins WHERE username = $1
		UNION ALL
		SELECT 'organisation', id, username, password_hash, id FROM organisations WHERE username = $1
		UNION ALL
		SELECT 'working_point', id, username, password_hash, organisation_id FROM working_points WHERE username = $1
		UNION ALL
		SELECT 'specialist', id, username, password_hash, organisation_id FROM specialists WHERE username = $1
	) accounts
`

func (s *Store) accounts(ctx context.Context, username string) ([]model.Account, error) {
	rows, err := s.q.Query(ctx, accountsByUsername, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		var a model.Account
		var role string
		if err := rows.Scan(&role, &a.ID, &a.Username, &a.PasswordHash, &a.OrganisationID); err != nil {
			return nil, err
		}
		a.Role = model.Role(role)
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// UsernameTaken reports whether username belongs to any account other than
// (selfRole, selfID). Pass an empty role for new accounts.
func (s *Store) UsernameTaken(ctx context.Context, username string, selfRole model.Role, selfID int64) (bool, error) {
	if username == "" {
		return false, nil
	}
	accounts, err := s.accounts(ctx, username)
	if err != nil {
		return false, err
	}
	for _, a := range accounts {
		if a.Role == selfRole && a.ID == selfID {
			continue
		}
		return true, nil
	}
	return false, nil
}

// FindAccount resolves a login. Accounts without a password cannot log in.
func (s *Store) FindAccount(ctx context.Context, username string) (model.Account, error) {
	accounts, err := s.accounts(ctx, username)
	if err != nil {
		return model.Account{}, err
	}
	for _, a := range accounts {
		if a.PasswordHash != "" {
			return a, nil
		}
	}
	return model.Account{}, ErrNotFound
}

// PrincipalFor expands an account into its scope ids.
func PrincipalFor(a model.Account) model.Principal {
	p := model.Principal{
		Role:           a.Role,
		AccountID:      a.ID,
		Username:       a.Username,
		OrganisationID: a.OrganisationID,
	}
	switch a.Role {
	case model.RoleWorkingPoint:
		p.WorkingPointID = a.ID
	case model.RoleSpecialist:
		p.SpecialistID = a.ID
	}
	return p
}

func (s *Store) CreateSuperAdmin(ctx context.Context, username, passwordHash string) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO super_admins (username, password_hash)
		VALUES ($1, $2)
		RETURNING id
	`, username, passwordHash).Scan(&id)
	return id, mapErr(err)
}
