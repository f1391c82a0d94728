package storage

import (
	"context"
	"strconv"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

const organisationColumns = `id, alias, company_name, email, phone, country, username, created_at, updated_at`

func scanOrganisation(row interface{ Scan(...any) error }) (model.Organisation, error) {
	var o model.Organisation
	err := row.Scan(&o.ID, &o.Alias, &o.CompanyName, &o.Email, &o.Phone, &o.Country, &o.Username, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (s *Store) ListOrganisations(ctx context.Context, search string, limit, offset int) ([]model.Organisation, error) {
	w := &where{}
	if search != "" {
		w.add("(alias ILIKE ? OR company_name ILIKE ?)", "%"+search+"%")
	}
	limitArg := w.next(clampLimit(limit, 50, 500))
	offsetArg := w.next(max(offset, 0))

	rows, err := s.q.Query(ctx, `
		SELECT `+organisationColumns+`
		FROM organisations
		`+w.sql()+`
		ORDER BY company_name, id
		LIMIT `+limitArg+` OFFSET `+offsetArg, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Organisation
	for rows.Next() {
		o, err := scanOrganisation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *Store) GetOrganisation(ctx context.Context, id int64) (model.Organisation, error) {
	o, err := scanOrganisation(s.q.QueryRow(ctx, `
		SELECT `+organisationColumns+`
		FROM organisations
		WHERE id = $1
	`, id))
	return o, mapErr(err)
}

func (s *Store) OrganisationIDByAlias(ctx context.Context, alias string) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `SELECT id FROM organisations WHERE alias = $1`, alias).Scan(&id)
	return id, mapErr(err)
}

func (s *Store) CreateOrganisation(ctx context.Context, o model.Organisation, passwordHash string) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO organisations (alias, company_name, email, phone, country, username, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, o.Alias, o.CompanyName, o.Email, o.Phone, o.Country, o.Username, passwordHash).Scan(&id)
	return id, mapErr(err)
}

// UpdateOrganisation keeps the stored password when passwordHash is empty.
func (s *Store) UpdateOrganisation(ctx context.Context, o model.Organisation, passwordHash string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE organisations
		SET alias = $2,
		    company_name = $3,
		    email = $4,
		    phone = $5,
		    country = $6,
		    username = $7,
		    password_hash = COALESCE(NULLIF($8, ''), password_hash),
		    updated_at = now()
		WHERE id = $1
	`, o.ID, o.Alias, o.CompanyName, o.Email, o.Phone, o.Country, o.Username, passwordHash)
	if err != nil {
		return mapErr(err)
	}
	return affected(tag.RowsAffected())
}

// organisationCascade lists the deletes that remove an organisation and
// everything hanging off it, children first.
var organisationCascade = []string{
	`DELETE FROM google_calendar_sync_queue WHERE booking_id IN (SELECT id FROM bookings WHERE organisation_id = $1)
	    OR specialist_id IN (SELECT id FROM specialists WHERE organisation_id = $1)`,
	`DELETE FROM bookings WHERE organisation_id = $1`,
	`DELETE FROM services WHERE organisation_id = $1`,
	`DELETE FROM working_program WHERE specialist_id IN (SELECT id FROM specialists WHERE organisation_id = $1)
	    OR working_point_id IN (SELECT id FROM working_points WHERE organisation_id = $1)`,
	`DELETE FROM specialist_time_off WHERE specialist_id IN (SELECT id FROM specialists WHERE organisation_id = $1)`,
	`DELETE FROM workingpoint_time_off WHERE working_point_id IN (SELECT id FROM working_points WHERE organisation_id = $1)`,
	`DELETE FROM google_calendar_credentials WHERE specialist_id IN (SELECT id FROM specialists WHERE organisation_id = $1)`,
	`DELETE FROM specialists WHERE organisation_id = $1`,
	`DELETE FROM working_points WHERE organisation_id = $1`,
}

// DeleteOrganisation removes the organisation and all dependent rows in one
// transaction and emits admin.organisation.deleted.v1.
func (s *Store) DeleteOrganisation(ctx context.Context, id int64) error {
	return s.InTx(ctx, func(tx *Store) error {
		for _, stmt := range organisationCascade {
			if _, err := tx.q.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		tag, err := tx.q.Exec(ctx, `DELETE FROM organisations WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if err := affected(tag.RowsAffected()); err != nil {
			return err
		}
		return tx.Emit(ctx, "organisation", strconv.FormatInt(id, 10), "admin.organisation.deleted.v1", map[string]any{
			"organisation_id": id,
		})
	})
}
