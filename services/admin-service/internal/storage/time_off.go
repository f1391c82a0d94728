package storage

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

// TimeOffKind selects specialist_time_off or workingpoint_time_off.
type TimeOffKind int

const (
	SpecialistTimeOff TimeOffKind = iota + 1
	WorkingPointTimeOff
)

func (k TimeOffKind) table() (table, owner string, err error) {
	switch k {
	case SpecialistTimeOff:
		return "specialist_time_off", "specialist_id", nil
	case WorkingPointTimeOff:
		return "workingpoint_time_off", "working_point_id", nil
	}
	return "", "", fmt.Errorf("unknown time off kind %d", k)
}

// ListTimeOff returns periods of ownerID overlapping [from, to]; empty bounds
// are open.
func (s *Store) ListTimeOff(ctx context.Context, kind TimeOffKind, ownerID int64, from, to string) ([]model.TimeOff, error) {
	table, owner, err := kind.table()
	if err != nil {
		return nil, err
	}
	w := &where{}
	w.add(owner+" = ?", ownerID)
	if from != "" {
		w.add("end_date >= ?::date", from)
	}
	if to != "" {
		w.add("start_date <= ?::date", to)
	}
	rows, err := s.q.Query(ctx, `
		SELECT id, `+owner+`, to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'), reason
		FROM `+table+`
		`+w.sql()+`
		ORDER BY start_date, id
	`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TimeOff
	for rows.Next() {
		var t model.TimeOff
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.StartDate, &t.EndDate, &t.Reason); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *Store) CreateTimeOff(ctx context.Context, kind TimeOffKind, t model.TimeOff) (int64, error) {
	table, owner, err := kind.table()
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.q.QueryRow(ctx, `
		INSERT INTO `+table+` (`+owner+`, start_date, end_date, reason)
		VALUES ($1, $2::date, $3::date, $4)
		RETURNING id
	`, t.OwnerID, t.StartDate, t.EndDate, t.Reason).Scan(&id)
	return id, mapErr(err)
}

// GetTimeOff is used to authorise deletes against the owning row.
func (s *Store) GetTimeOff(ctx context.Context, kind TimeOffKind, id int64) (model.TimeOff, error) {
	table, owner, err := kind.table()
	if err != nil {
		return model.TimeOff{}, err
	}
	var t model.TimeOff
	err = s.q.QueryRow(ctx, `
		SELECT id, `+owner+`, to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'), reason
		FROM `+table+`
		WHERE id = $1
	`, id).Scan(&t.ID, &t.OwnerID, &t.StartDate, &t.EndDate, &t.Reason)
	return t, mapErr(err)
}

func (s *Store) DeleteTimeOff(ctx context.Context, kind TimeOffKind, id int64) error {
	table, _, err := kind.table()
	if err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affected(tag.RowsAffected())
}
