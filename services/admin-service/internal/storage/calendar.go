package storage

import (
	"context"
	"time"

	otelx "github.com/md-rashed-zaman/bookingadmin/libs/otel"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

func (s *Store) GetCredentials(ctx context.Context, specialistID int64) (model.CalendarCredentials, error) {
	var c model.CalendarCredentials
	err := s.q.QueryRow(ctx, `
		SELECT specialist_id, access_token, refresh_token, token_type, expiry, calendar_id, calendar_name, status, updated_at
		FROM google_calendar_credentials
		WHERE specialist_id = $1
	`, specialistID).Scan(&c.SpecialistID, &c.AccessToken, &c.RefreshToken, &c.TokenType, &c.Expiry, &c.CalendarID, &c.CalendarName, &c.Status, &c.UpdatedAt)
	return c, mapErr(err)
}

// UpsertCredentials stores a fresh grant. A reconnect keeps the selected
// calendar and clears a previous revocation.
func (s *Store) UpsertCredentials(ctx context.Context, c model.CalendarCredentials) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO google_calendar_credentials (specialist_id, access_token, refresh_token, token_type, expiry, status)
		VALUES ($1, $2, $3, $4, $5, 'connected')
		ON CONFLICT (specialist_id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), google_calendar_credentials.refresh_token),
		    token_type = EXCLUDED.token_type,
		    expiry = EXCLUDED.expiry,
		    status = 'connected',
		    updated_at = now()
	`, c.SpecialistID, c.AccessToken, c.RefreshToken, c.TokenType, c.Expiry)
	return mapErr(err)
}

func (s *Store) SelectCalendar(ctx context.Context, specialistID int64, calendarID, calendarName string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE google_calendar_credentials
		SET calendar_id = $2, calendar_name = $3, updated_at = now()
		WHERE specialist_id = $1 AND status = 'connected'
	`, specialistID, calendarID, calendarName)
	if err != nil {
		return err
	}
	return affected(tag.RowsAffected())
}

func (s *Store) DeleteCredentials(ctx context.Context, specialistID int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM google_calendar_credentials WHERE specialist_id = $1`, specialistID)
	if err != nil {
		return err
	}
	return affected(tag.RowsAffected())
}

// EnqueueSync adds a pending calendar sync row carrying the caller's trace.
func (s *Store) EnqueueSync(ctx context.Context, bookingID, specialistID int64, action, googleEventID string) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := s.q.Exec(ctx, `
		INSERT INTO google_calendar_sync_queue (booking_id, specialist_id, action, google_event_id, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, bookingID, specialistID, action, googleEventID, traceparent, tracestate)
	return err
}

// EnqueueFutureBookings queues a create row for every future booked booking
// of the specialist that has no event yet.
func (s *Store) EnqueueFutureBookings(ctx context.Context, specialistID int64) (int64, error) {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	tag, err := s.q.Exec(ctx, `
		INSERT INTO google_calendar_sync_queue (booking_id, specialist_id, action, traceparent, tracestate)
		SELECT b.id, b.specialist_id, 'create', $2, $3
		FROM bookings b
		WHERE b.specialist_id = $1
		  AND b.status = 'booked'
		  AND b.start_time > now()
		  AND b.google_event_id = ''
		  AND NOT EXISTS (
		      SELECT 1 FROM google_calendar_sync_queue q
		      WHERE q.booking_id = b.id AND q.status = 'pending'
		  )
	`, specialistID, traceparent, tracestate)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DropPendingSync discards queued work for a specialist, e.g. on disconnect.
func (s *Store) DropPendingSync(ctx context.Context, specialistID int64) (int64, error) {
	tag, err := s.q.Exec(ctx, `
		DELETE FROM google_calendar_sync_queue
		WHERE specialist_id = $1 AND status = 'pending'
	`, specialistID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListSyncQueue(ctx context.Context, status string, specialistID int64, limit, offset int) ([]model.SyncRow, error) {
	w := &where{}
	if status != "" {
		w.add("status = ?", status)
	}
	if specialistID > 0 {
		w.add("specialist_id = ?", specialistID)
	}
	limitArg := w.next(clampLimit(limit, 100, 1000))
	offsetArg := w.next(max(offset, 0))
	rows, err := s.q.Query(ctx, `
		SELECT id, booking_id, specialist_id, action, google_event_id, status, attempts, max_attempts, next_run_at, last_error, note, created_at
		FROM google_calendar_sync_queue
		`+w.sql()+`
		ORDER BY id DESC
		LIMIT `+limitArg+` OFFSET `+offsetArg, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SyncRow
	for rows.Next() {
		var r model.SyncRow
		if err := rows.Scan(&r.ID, &r.BookingID, &r.SpecialistID, &r.Action, &r.GoogleEventID, &r.Status, &r.Attempts, &r.MaxAttempts, &r.NextRunAt, &r.LastError, &r.Note, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// RetrySync resets a failed row so the worker picks it up again.
func (s *Store) RetrySync(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE google_calendar_sync_queue
		SET status = 'pending', attempts = 0, next_run_at = $2, last_error = '', updated_at = now()
		WHERE id = $1 AND status = 'failed'
	`, id, time.Now().UTC())
	if err != nil {
		return err
	}
	return affected(tag.RowsAffected())
}

// SyncCounts returns queue row counts per status.
func (s *Store) SyncCounts(ctx context.Context, specialistID int64) (map[string]int64, error) {
	w := &where{}
	if specialistID > 0 {
		w.add("specialist_id = ?", specialistID)
	}
	rows, err := s.q.Query(ctx, `
		SELECT status, count(*)
		FROM google_calendar_sync_queue
		`+w.sql()+`
		GROUP BY status
	`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{model.SyncPending: 0, model.SyncDone: 0, model.SyncFailed: 0}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// RevokeCredentials flags a grant Google no longer honours. The row stays so
// the back-office can show why sync stopped.
func (s *Store) RevokeCredentials(ctx context.Context, specialistID int64) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE google_calendar_credentials
		SET status = 'revoked', access_token = '', updated_at = now()
		WHERE specialist_id = $1
	`, specialistID)
	if err != nil {
		return err
	}
	return affected(tag.RowsAffected())
}
