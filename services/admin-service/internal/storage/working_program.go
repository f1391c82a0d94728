package storage

import (
	"context"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

const workingDayColumns = `specialist_id, working_point_id, day_of_week, shift1_start, shift1_end, shift2_start, shift2_end, shift3_start, shift3_end`

func scanWorkingDay(row interface{ Scan(...any) error }) (model.WorkingDay, error) {
	var d model.WorkingDay
	err := row.Scan(&d.SpecialistID, &d.WorkingPointID, &d.DayOfWeek,
		&d.Shifts[0].Start, &d.Shifts[0].End,
		&d.Shifts[1].Start, &d.Shifts[1].End,
		&d.Shifts[2].Start, &d.Shifts[2].End)
	return d, err
}

func (s *Store) queryWorkingDays(ctx context.Context, w *where) ([]model.WorkingDay, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+workingDayColumns+`
		FROM working_program
		`+w.sql()+`
		ORDER BY day_of_week, working_point_id
	`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WorkingDay
	for rows.Next() {
		d, err := scanWorkingDay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ListWorkingProgram returns a specialist's schedule, optionally limited to
// one working point.
func (s *Store) ListWorkingProgram(ctx context.Context, specialistID, workingPointID int64) ([]model.WorkingDay, error) {
	w := &where{}
	w.add("specialist_id = ?", specialistID)
	if workingPointID > 0 {
		w.add("working_point_id = ?", workingPointID)
	}
	return s.queryWorkingDays(ctx, w)
}

// OtherPointDays returns the specialist's rows for day at every working
// point except excludePoint.
func (s *Store) OtherPointDays(ctx context.Context, specialistID int64, day int, excludePoint int64) ([]model.WorkingDay, error) {
	w := &where{}
	w.add("specialist_id = ?", specialistID)
	w.add("day_of_week = ?", day)
	w.add("working_point_id <> ?", excludePoint)
	return s.queryWorkingDays(ctx, w)
}

func (s *Store) UpsertWorkingDay(ctx context.Context, d model.WorkingDay) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO working_program (`+workingDayColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (specialist_id, working_point_id, day_of_week) DO UPDATE
		SET shift1_start = EXCLUDED.shift1_start,
		    shift1_end = EXCLUDED.shift1_end,
		    shift2_start = EXCLUDED.shift2_start,
		    shift2_end = EXCLUDED.shift2_end,
		    shift3_start = EXCLUDED.shift3_start,
		    shift3_end = EXCLUDED.shift3_end,
		    updated_at = now()
	`, d.SpecialistID, d.WorkingPointID, d.DayOfWeek,
		d.Shifts[0].Start, d.Shifts[0].End,
		d.Shifts[1].Start, d.Shifts[1].End,
		d.Shifts[2].Start, d.Shifts[2].End)
	return mapErr(err)
}

// DeleteWorkingDays removes one day, or the whole program at the working
// point when day is zero.
func (s *Store) DeleteWorkingDays(ctx context.Context, specialistID, workingPointID int64, day int) (int64, error) {
	w := &where{}
	w.add("specialist_id = ?", specialistID)
	w.add("working_point_id = ?", workingPointID)
	if day > 0 {
		w.add("day_of_week = ?", day)
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM working_program `+w.sql(), w.args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
