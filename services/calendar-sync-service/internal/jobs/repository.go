package jobs

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bookingadmin/libs/db"
	otelx "github.com/md-rashed-zaman/bookingadmin/libs/otel"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"

	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Job is one google_calendar_sync_queue row.
type Job struct {
	ID            int64
	BookingID     int64
	SpecialistID  int64
	Action        string
	GoogleEventID string
	Attempts      int
	MaxAttempts   int
	NextRunAt     time.Time
	Traceparent   string
	Tracestate    string
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Enqueue adds a pending row unless the same booking already has a pending
// row for the same action.
func (r *Repository) Enqueue(ctx context.Context, q db.Querier, bookingID, specialistID int64, action, googleEventID string) (bool, error) {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	tag, err := q.Exec(ctx, `
		INSERT INTO google_calendar_sync_queue (booking_id, specialist_id, action, google_event_id, traceparent, tracestate)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE NOT EXISTS (
		    SELECT 1 FROM google_calendar_sync_queue
		    WHERE booking_id = $1 AND action = $3 AND status = 'pending'
		)
	`, bookingID, specialistID, action, googleEventID, traceparent, tracestate)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimDue leases up to limit due rows by pushing next_run_at to leaseUntil
// in one statement, so no lock is held while Google is called. A row whose
// worker dies before recording an outcome becomes due again once the lease
// runs out.
func (r *Repository) ClaimDue(ctx context.Context, q db.Querier, limit int, leaseUntil time.Time) ([]Job, error) {
	rows, err := q.Query(ctx, `
		UPDATE google_calendar_sync_queue
		SET next_run_at = $2, updated_at = now()
		WHERE id IN (
		    SELECT id FROM google_calendar_sync_queue
		    WHERE status = 'pending' AND next_run_at <= now()
		    ORDER BY next_run_at, id
		    LIMIT $1
		    FOR UPDATE SKIP LOCKED
		)
		RETURNING id, booking_id, specialist_id, action, google_event_id, attempts, max_attempts, next_run_at, traceparent, tracestate
	`, limit, leaseUntil)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.BookingID, &j.SpecialistID, &j.Action, &j.GoogleEventID, &j.Attempts, &j.MaxAttempts, &j.NextRunAt, &j.Traceparent, &j.Tracestate); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].ID < jobs[k].ID })
	return jobs, nil
}

// MarkDone closes a row. eventID, when set, replaces the stored event id.
func (r *Repository) MarkDone(ctx context.Context, tx pgx.Tx, id int64, note, eventID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE google_calendar_sync_queue
		SET status = 'done',
		    note = $2,
		    google_event_id = COALESCE(NULLIF($3, ''), google_event_id),
		    last_error = '',
		    updated_at = now()
		WHERE id = $1
	`, id, note, eventID)
	return err
}

func (r *Repository) MarkRetry(ctx context.Context, tx pgx.Tx, id int64, attempts int, nextRunAt time.Time, lastError string) error {
	_, err := tx.Exec(ctx, `
		UPDATE google_calendar_sync_queue
		SET attempts = $2,
		    next_run_at = $3,
		    last_error = $4,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, nextRunAt, lastError)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, id int64, attempts int, lastError string) error {
	_, err := tx.Exec(ctx, `
		UPDATE google_calendar_sync_queue
		SET status = 'failed',
		    attempts = $2,
		    last_error = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, lastError)
	return err
}

// PurgeDone deletes finished rows last touched before the cutoff.
func (r *Repository) PurgeDone(ctx context.Context, q db.Querier, before time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM google_calendar_sync_queue
		WHERE status = 'done' AND updated_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountByStatus always reports every status, zero included.
func (r *Repository) CountByStatus(ctx context.Context, q db.Querier) (map[string]int64, error) {
	out := map[string]int64{StatusPending: 0, StatusDone: 0, StatusFailed: 0}
	rows, err := q.Query(ctx, `
		SELECT status, count(*)
		FROM google_calendar_sync_queue
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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

// Queue binds the repository to a pool for callers outside a transaction.
type Queue struct {
	q    db.Querier
	repo *Repository
}

func NewQueue(q db.Querier, repo *Repository) Queue {
	return Queue{q: q, repo: repo}
}

func (b Queue) PurgeDone(ctx context.Context, before time.Time) (int64, error) {
	return b.repo.PurgeDone(ctx, b.q, before)
}

func (b Queue) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return b.repo.CountByStatus(ctx, b.q)
}
