package storage

import (
	"context"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

const workingPointColumns = `id, organisation_id, name, address, country, language, currency, timezone, phone, booking_phone, lead_person_name, username, created_at, updated_at`

func scanWorkingPoint(row interface{ Scan(...any) error }) (model.WorkingPoint, error) {
	var p model.WorkingPoint
	err := row.Scan(&p.ID, &p.OrganisationID, &p.Name, &p.Address, &p.Country, &p.Language, &p.Currency, &p.Timezone,
		&p.Phone, &p.BookingPhone, &p.LeadPersonName, &p.Username, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) ListWorkingPoints(ctx context.Context, organisationID int64) ([]model.WorkingPoint, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+workingPointColumns+`
		FROM working_points
		WHERE organisation_id = $1
		ORDER BY name, id
	`, organisationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WorkingPoint
	for rows.Next() {
		p, err := scanWorkingPoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *Store) GetWorkingPoint(ctx context.Context, id int64) (model.WorkingPoint, error) {
	p, err := scanWorkingPoint(s.q.QueryRow(ctx, `
		SELECT `+workingPointColumns+`
		FROM working_points
		WHERE id = $1
	`, id))
	return p, mapErr(err)
}

func (s *Store) CreateWorkingPoint(ctx context.Context, p model.WorkingPoint, passwordHash string) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO working_points (organisation_id, name, address, country, language, currency, timezone, phone, booking_phone, lead_person_name, username, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, p.OrganisationID, p.Name, p.Address, p.Country, p.Language, p.Currency, p.Timezone, p.Phone, p.BookingPhone, p.LeadPersonName, p.Username, passwordHash).Scan(&id)
	return id, mapErr(err)
}

func (s *Store) UpdateWorkingPoint(ctx context.Context, p model.WorkingPoint, passwordHash string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE working_points
		SET name = $2,
		    address = $3,
		    country = $4,
		    language = $5,
		    currency = $6,
		    timezone = $7,
		    phone = $8,
		    booking_phone = $9,
		    lead_person_name = $10,
		    username = $11,
		    password_hash = COALESCE(NULLIF($12, ''), password_hash),
		    updated_at = now()
		WHERE id = $1
	`, p.ID, p.Name, p.Address, p.Country, p.Language, p.Currency, p.Timezone, p.Phone, p.BookingPhone, p.LeadPersonName, p.Username, passwordHash)
	if err != nil {
		return mapErr(err)
	}
	return affected(tag.RowsAffected())
}

// DeleteWorkingPoint refuses while future bookings exist; past and cancelled
// bookings go with the working point.
func (s *Store) DeleteWorkingPoint(ctx context.Context, id int64) error {
	return s.InTx(ctx, func(tx *Store) error {
		var future int
		if err := tx.q.QueryRow(ctx, `
			SELECT count(*) FROM bookings
			WHERE working_point_id = $1 AND status = 'booked' AND start_time > now()
		`, id).Scan(&future); err != nil {
			return err
		}
		if future > 0 {
			return ErrInUse
		}
		for _, stmt := range []string{
			`DELETE FROM google_calendar_sync_queue WHERE booking_id IN (SELECT id FROM bookings WHERE working_point_id = $1)`,
			`DELETE FROM bookings WHERE working_point_id = $1`,
			`DELETE FROM services WHERE working_point_id = $1`,
			`DELETE FROM working_program WHERE working_point_id = $1`,
			`DELETE FROM workingpoint_time_off WHERE working_point_id = $1`,
		} {
			if _, err := tx.q.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		tag, err := tx.q.Exec(ctx, `DELETE FROM working_points WHERE id = $1`, id)
		if err != nil {
			return err
		}
		return affected(tag.RowsAffected())
	})
}
