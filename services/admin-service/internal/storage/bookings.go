package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

const bookingColumns = `id, organisation_id, working_point_id, specialist_id, service_id, client_name, client_phone,
	start_time, end_time, service_name, price::text, status, source, google_event_id, created_at, cancelled_at`

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(&b.ID, &b.OrganisationID, &b.WorkingPointID, &b.SpecialistID, &b.ServiceID, &b.ClientName, &b.ClientPhone,
		&b.StartTime, &b.EndTime, &b.ServiceName, &b.Price, &b.Status, &b.Source, &b.GoogleEventID, &b.CreatedAt, &b.CancelledAt)
	return b, err
}

func bookingWhere(f model.BookingFilter) *where {
	w := &where{}
	if f.OrganisationID > 0 {
		w.add("organisation_id = ?", f.OrganisationID)
	}
	if f.WorkingPointID > 0 {
		w.add("working_point_id = ?", f.WorkingPointID)
	}
	if f.SpecialistID > 0 {
		w.add("specialist_id = ?", f.SpecialistID)
	}
	if !f.From.IsZero() {
		w.add("start_time >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.add("start_time < ?", f.To)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	return w
}

func (s *Store) ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	w := bookingWhere(f)
	limitArg := w.next(clampLimit(f.Limit, 100, 1000))
	offsetArg := w.next(max(f.Offset, 0))

	rows, err := s.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		`+w.sql()+`
		ORDER BY start_time DESC, id DESC
		LIMIT `+limitArg+` OFFSET `+offsetArg, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *Store) GetBooking(ctx context.Context, id int64) (model.Booking, error) {
	b, err := scanBooking(s.q.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id))
	return b, mapErr(err)
}

// CancelBooking flips a booked booking to cancelled, queues removal of its
// calendar event and emits admin.booking.cancelled.v1, all in one
// transaction. Cancelling twice is a conflict.
func (s *Store) CancelBooking(ctx context.Context, id int64, actor string) (model.Booking, error) {
	var out model.Booking
	err := s.InTx(ctx, func(tx *Store) error {
		b, err := scanBooking(tx.q.QueryRow(ctx, `
			UPDATE bookings
			SET status = 'cancelled', cancelled_at = now()
			WHERE id = $1 AND status = 'booked'
			RETURNING `+bookingColumns, id))
		if err != nil {
			if !errors.Is(mapErr(err), ErrNotFound) {
				return err
			}
			if _, getErr := tx.GetBooking(ctx, id); getErr != nil {
				return getErr
			}
			return fmt.Errorf("%w: booking already cancelled", ErrConflict)
		}
		if err := tx.EnqueueSync(ctx, b.ID, b.SpecialistID, model.SyncDelete, b.GoogleEventID); err != nil {
			return err
		}
		if err := tx.Emit(ctx, "booking", strconv.FormatInt(b.ID, 10), "admin.booking.cancelled.v1", map[string]any{
			"booking_id":       b.ID,
			"organisation_id":  b.OrganisationID,
			"working_point_id": b.WorkingPointID,
			"specialist_id":    b.SpecialistID,
			"start_time":       b.StartTime.UTC().Format(time.RFC3339),
			"cancelled_by":     actor,
		}); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// Statistics aggregates bookings in [From, To) by the requested dimension.
// Revenue only counts bookings that were not cancelled.
func (s *Store) Statistics(ctx context.Context, f model.StatsFilter) ([]model.StatRow, error) {
	var key, label, join string
	switch f.Group {
	case model.GroupSpecialist:
		key, label, join = "b.specialist_id::text", "COALESCE(sp.name, '')", "LEFT JOIN specialists sp ON sp.id = b.specialist_id"
	case model.GroupService:
		key, label, join = "b.service_id::text", "MAX(b.service_name)", ""
	case model.GroupWorkingPoint:
		key, label, join = "b.working_point_id::text", "COALESCE(p.name, '')", "LEFT JOIN working_points p ON p.id = b.working_point_id"
	case model.GroupDay:
		key, label, join = "to_char(b.start_time, 'YYYY-MM-DD')", "to_char(b.start_time, 'YYYY-MM-DD')", ""
	default:
		return nil, fmt.Errorf("unknown statistics group %q", f.Group)
	}
	// label is grouped too unless it is an aggregate
	groupBy := key
	if f.Group != model.GroupService {
		groupBy = key + ", " + label
	}

	w := &where{}
	if f.OrganisationID > 0 {
		w.add("b.organisation_id = ?", f.OrganisationID)
	}
	if f.WorkingPointID > 0 {
		w.add("b.working_point_id = ?", f.WorkingPointID)
	}
	if f.SpecialistID > 0 {
		w.add("b.specialist_id = ?", f.SpecialistID)
	}
	if !f.From.IsZero() {
		w.add("b.start_time >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.add("b.start_time < ?", f.To)
	}

	rows, err := s.q.Query(ctx, `
		SELECT `+key+` AS key,
		       `+label+` AS label,
		       count(*) AS bookings,
		       count(*) FILTER (WHERE b.status = 'cancelled') AS cancelled,
		       COALESCE(sum(b.price) FILTER (WHERE b.status = 'booked'), 0)::numeric(12,2)::text AS revenue
		FROM bookings b
		`+join+`
		`+w.sql()+`
		GROUP BY `+groupBy+`
		ORDER BY 1
	`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StatRow
	for rows.Next() {
		var r model.StatRow
		if err := rows.Scan(&r.Key, &r.Label, &r.Bookings, &r.Cancelled, &r.Revenue); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
