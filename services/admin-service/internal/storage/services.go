package storage

import (
	"context"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

const serviceColumns = `id, organisation_id, working_point_id, COALESCE(specialist_id, 0), name, duration_minutes, price::text, currency, suspended, deleted, created_at`

func scanService(row interface{ Scan(...any) error }) (model.Service, error) {
	var sv model.Service
	err := row.Scan(&sv.ID, &sv.OrganisationID, &sv.WorkingPointID, &sv.SpecialistID, &sv.Name, &sv.DurationMinutes,
		&sv.Price, &sv.Currency, &sv.Suspended, &sv.Deleted, &sv.CreatedAt)
	return sv, err
}

func (s *Store) ListServices(ctx context.Context, workingPointID, specialistID int64, includeDeleted bool) ([]model.Service, error) {
	w := &where{}
	w.add("working_point_id = ?", workingPointID)
	if specialistID > 0 {
		w.add("specialist_id = ?", specialistID)
	}
	if !includeDeleted {
		w.add("deleted = ?", false)
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		`+w.sql()+`
		ORDER BY name, id
	`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		sv, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *Store) GetService(ctx context.Context, id int64) (model.Service, error) {
	sv, err := scanService(s.q.QueryRow(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE id = $1
	`, id))
	return sv, mapErr(err)
}

// CreateService stores a service; SpecialistID zero means any specialist.
func (s *Store) CreateService(ctx context.Context, sv model.Service) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO services (organisation_id, working_point_id, specialist_id, name, duration_minutes, price, currency)
		VALUES ($1, $2, NULLIF($3, 0), $4, $5, $6::numeric, $7)
		RETURNING id
	`, sv.OrganisationID, sv.WorkingPointID, sv.SpecialistID, sv.Name, sv.DurationMinutes, sv.Price, sv.Currency).Scan(&id)
	return id, mapErr(err)
}

func (s *Store) UpdateService(ctx context.Context, sv model.Service) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE services
		SET specialist_id = NULLIF($2, 0),
		    name = $3,
		    duration_minutes = $4,
		    price = $5::numeric,
		    currency = $6,
		    updated_at = now()
		WHERE id = $1 AND NOT deleted
	`, sv.ID, sv.SpecialistID, sv.Name, sv.DurationMinutes, sv.Price, sv.Currency)
	if err != nil {
		return mapErr(err)
	}
	return affected(tag.RowsAffected())
}

func (s *Store) SetServiceSuspended(ctx context.Context, id int64, suspended bool) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE services
		SET suspended = $2, updated_at = now()
		WHERE id = $1 AND NOT deleted
	`, id, suspended)
	if err != nil {
		return err
	}
	return affected(tag.RowsAffected())
}

// SoftDeleteService hides the service while keeping booking history intact.
func (s *Store) SoftDeleteService(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE services
		SET deleted = true, suspended = true, updated_at = now()
		WHERE id = $1 AND NOT deleted
	`, id)
	if err != nil {
		return err
	}
	return affected(tag.RowsAffected())
}
