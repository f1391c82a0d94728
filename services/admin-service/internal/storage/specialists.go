package storage

import (
	"context"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

const specialistColumns = `s.id, s.organisation_id, s.name, s.speciality, s.email, s.phone, s.username, s.created_at, s.updated_at`

func scanSpecialist(row interface{ Scan(...any) error }) (model.Specialist, error) {
	var sp model.Specialist
	err := row.Scan(&sp.ID, &sp.OrganisationID, &sp.Name, &sp.Speciality, &sp.Email, &sp.Phone, &sp.Username, &sp.CreatedAt, &sp.UpdatedAt)
	return sp, err
}

// ListSpecialists returns an organisation's specialists. A non-zero
// workingPointID keeps only those with a working program there.
func (s *Store) ListSpecialists(ctx context.Context, organisationID, workingPointID int64) ([]model.Specialist, error) {
	w := &where{}
	w.add("s.organisation_id = ?", organisationID)
	if workingPointID > 0 {
		w.add("EXISTS (SELECT 1 FROM working_program wp WHERE wp.specialist_id = s.id AND wp.working_point_id = ?)", workingPointID)
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+specialistColumns+`
		FROM specialists s
		`+w.sql()+`
		ORDER BY s.name, s.id
	`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Specialist
	for rows.Next() {
		sp, err := scanSpecialist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *Store) GetSpecialist(ctx context.Context, id int64) (model.Specialist, error) {
	sp, err := scanSpecialist(s.q.QueryRow(ctx, `
		SELECT `+specialistColumns+`
		FROM specialists s
		WHERE s.id = $1
	`, id))
	return sp, mapErr(err)
}

// SpecialistWorksAt reports whether the specialist has any working program
// row at the working point.
func (s *Store) SpecialistWorksAt(ctx context.Context, specialistID, workingPointID int64) (bool, error) {
	var ok bool
	err := s.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM working_program WHERE specialist_id = $1 AND working_point_id = $2)
	`, specialistID, workingPointID).Scan(&ok)
	return ok, err
}

func (s *Store) CreateSpecialist(ctx context.Context, sp model.Specialist, passwordHash string) (int64, error) {
	var id int64
	err := s.q.QueryRow(ctx, `
		INSERT INTO specialists (organisation_id, name, speciality, email, phone, username, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, sp.OrganisationID, sp.Name, sp.Speciality, sp.Email, sp.Phone, sp.Username, passwordHash).Scan(&id)
	return id, mapErr(err)
}

func (s *Store) UpdateSpecialist(ctx context.Context, sp model.Specialist, passwordHash string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE specialists
		SET name = $2,
		    speciality = $3,
		    email = $4,
		    phone = $5,
		    username = $6,
		    password_hash = COALESCE(NULLIF($7, ''), password_hash),
		    updated_at = now()
		WHERE id = $1
	`, sp.ID, sp.Name, sp.Speciality, sp.Email, sp.Phone, sp.Username, passwordHash)
	if err != nil {
		return mapErr(err)
	}
	return affected(tag.RowsAffected())
}

func (s *Store) DeleteSpecialist(ctx context.Context, id int64) error {
	return s.InTx(ctx, func(tx *Store) error {
		var future int
		if err := tx.q.QueryRow(ctx, `
			SELECT count(*) FROM bookings
			WHERE specialist_id = $1 AND status = 'booked' AND start_time > now()
		`, id).Scan(&future); err != nil {
			return err
		}
		if future > 0 {
			return ErrInUse
		}
		for _, stmt := range []string{
			`DELETE FROM google_calendar_sync_queue WHERE specialist_id = $1`,
			`DELETE FROM bookings WHERE specialist_id = $1`,
			`UPDATE services SET specialist_id = NULL, updated_at = now() WHERE specialist_id = $1`,
			`DELETE FROM working_program WHERE specialist_id = $1`,
			`DELETE FROM specialist_time_off WHERE specialist_id = $1`,
			`DELETE FROM google_calendar_credentials WHERE specialist_id = $1`,
		} {
			if _, err := tx.q.Exec(ctx, stmt, id); err != nil {
				return err
			}
		}
		tag, err := tx.q.Exec(ctx, `DELETE FROM specialists WHERE id = $1`, id)
		if err != nil {
			return err
		}
		return affected(tag.RowsAffected())
	})
}
