package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bookingadmin/libs/gcal"
	"github.com/md-rashed-zaman/bookingadmin/libs/outbox"
)

var (
	jobCols     = []string{"id", "booking_id", "specialist_id", "action", "google_event_id", "attempts", "max_attempts", "next_run_at", "traceparent", "tracestate"}
	credCols    = []string{"access_token", "refresh_token", "token_type", "expiry", "calendar_id", "status"}
	bookingCols = []string{"id", "client_name", "client_phone", "service_name", "specialist", "point", "address", "timezone", "start_time", "end_time", "status", "google_event_id"}
)

// timeArg matches a time.Time argument by instant.
type timeArg time.Time

func (a timeArg) Match(v any) bool {
	t, ok := v.(time.Time)
	return ok && t.Equal(time.Time(a))
}

type fixture struct {
	w    *Worker
	mock pgxmock.PgxPoolIface
	now  time.Time
}

func newFixture(t *testing.T, google http.HandlerFunc) *fixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	srv := httptest.NewServer(google)
	t.Cleanup(srv.Close)

	oauth := gcal.NewOAuth(gcal.Config{ClientID: "cid", ClientSecret: "secret", TokenURL: srv.URL + "/token"}, srv.Client())
	cal := gcal.NewClient(srv.URL, srv.Client(), 0)
	w := NewWorker(mock, NewRepository(), outbox.NewRepository(), cal, oauth, slog.New(slog.NewTextHandler(io.Discard, nil)), WorkerConfig{
		BatchSize:   10,
		BackoffBase: 30 * time.Second,
		BackoffMax:  10 * time.Minute,
	})
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	return &fixture{w: w, mock: mock, now: now}
}

func (f *fixture) jobRow(id, bookingID, specialistID int64, action, eventID string, attempts int) []any {
	return []any{id, bookingID, specialistID, action, eventID, attempts, 5, f.now.Add(5 * time.Minute), "", ""}
}

func (f *fixture) expectClaim(rows ...[]any) {
	r := pgxmock.NewRows(jobCols)
	for _, row := range rows {
		r.AddRow(row...)
	}
	f.mock.ExpectQuery("RETURNING id, booking_id").WithArgs(10, timeArg(f.now.Add(5*time.Minute))).WillReturnRows(r)
}

func (f *fixture) expectJob(action, eventID string, attempts int) {
	f.expectClaim(f.jobRow(1, 11, 3, action, eventID, attempts))
}

func (f *fixture) expectCredentials(expiry time.Time) {
	f.mock.ExpectQuery("FROM google_calendar_credentials").WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(credCols).AddRow("at", "rt", "Bearer", expiry, "cal1", "connected"))
}

func (f *fixture) expectBooking(status, eventID string) {
	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	f.mock.ExpectQuery("FROM bookings b").WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows(bookingCols).AddRow(int64(11), "Ana", "+359888", "Haircut", "Maria", "Center", "Main St 1", "Europe/Sofia", start, start.Add(30*time.Minute), status, eventID))
}

func TestCreateInsertsEventAndStoresID(t *testing.T) {
	var got gcal.Event
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/calendars/cal1/events", r.URL.Path)
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"bk11j1"}`))
	})

	f.expectJob(ActionCreate, "", 0)
	f.expectCredentials(time.Now().Add(time.Hour))
	f.expectBooking("booked", "")
	f.mock.ExpectBegin()
	f.mock.ExpectExec("UPDATE bookings SET google_event_id = \\$2").WithArgs(int64(11), "bk11j1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec("SET status = 'done'").WithArgs(int64(1), "", "bk11j1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	n, err := f.w.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "bk11j1", got.ID)
	assert.Equal(t, "Haircut - Ana", got.Summary)
	assert.Equal(t, "Center, Main St 1", got.Location)
	assert.Equal(t, "Europe/Sofia", got.Start.TimeZone)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

// A row re-run after its outcome was lost finds its own event already
// inserted and links it instead of creating a second one.
func TestCreateRerunReusesInsertedEvent(t *testing.T) {
	var posts atomic.Int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":409,"message":"The requested identifier already exists.","errors":[{"reason":"duplicate"}]}}`))
	})

	f.expectJob(ActionCreate, "", 0)
	f.expectCredentials(time.Now().Add(time.Hour))
	f.expectBooking("booked", "")
	f.mock.ExpectBegin()
	f.mock.ExpectExec("UPDATE bookings SET google_event_id = \\$2").WithArgs(int64(11), "bk11j1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec("SET status = 'done'").WithArgs(int64(1), "", "bk11j1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	_, err := f.w.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), posts.Load())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMissingCalendarIsSkipped(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected google call %s %s", r.Method, r.URL.Path)
	})

	f.expectJob(ActionCreate, "", 0)
	f.mock.ExpectQuery("FROM google_calendar_credentials").WithArgs(int64(3)).WillReturnRows(pgxmock.NewRows(credCols))
	f.mock.ExpectBegin()
	f.mock.ExpectExec("SET status = 'done'").WithArgs(int64(1), NoteNoCalendar, "").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	_, err := f.w.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRecordFailureKeepsOtherRowsCommitted(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected google call %s %s", r.Method, r.URL.Path)
	})

	f.expectClaim(f.jobRow(1, 11, 3, ActionCreate, "", 0), f.jobRow(2, 12, 4, ActionCreate, "", 0))
	f.mock.ExpectQuery("FROM google_calendar_credentials").WithArgs(int64(3)).WillReturnRows(pgxmock.NewRows(credCols))
	f.mock.ExpectBegin()
	f.mock.ExpectExec("SET status = 'done'").WithArgs(int64(1), NoteNoCalendar, "").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()
	f.mock.ExpectQuery("FROM google_calendar_credentials").WithArgs(int64(4)).WillReturnRows(pgxmock.NewRows(credCols))
	f.mock.ExpectBegin()
	f.mock.ExpectExec("SET status = 'done'").WithArgs(int64(2), NoteNoCalendar, "").WillReturnError(errors.New("connection reset"))
	f.mock.ExpectRollback()

	n, err := f.w.ProcessBatch(context.Background())
	assert.Equal(t, 2, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync 2")
	assert.NotContains(t, err.Error(), "sync 1")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRevokedGrantFailsRowAndMarksCredentials(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	})

	f.expectJob(ActionCreate, "", 0)
	f.expectCredentials(time.Now().Add(-time.Hour))
	f.mock.ExpectExec("SET status = 'revoked'").WithArgs(int64(3)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectBegin()
	f.mock.ExpectExec("SET status = 'failed'").WithArgs(int64(1), 1, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("calendar_sync", "1", FailedEventType, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	_, err := f.w.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestServerErrorSchedulesRetry(t *testing.T) {
	var posts atomic.Int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	f.expectJob(ActionCreate, "", 1)
	f.expectCredentials(time.Now().Add(time.Hour))
	f.expectBooking("booked", "")
	f.mock.ExpectBegin()
	f.mock.ExpectExec("SET attempts = \\$2").
		WithArgs(int64(1), 2, timeArg(f.now.Add(time.Minute)), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	_, err := f.w.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), posts.Load())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLastAttemptFails(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	f.expectJob(ActionCreate, "", 4)
	f.expectCredentials(time.Now().Add(time.Hour))
	f.expectBooking("booked", "")
	f.mock.ExpectBegin()
	f.mock.ExpectExec("SET status = 'failed'").WithArgs(int64(1), 5, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec("INSERT INTO outbox_events").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	_, err := f.w.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteTreatsGoneAsSuccess(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/calendars/cal1/events/evt-9", r.URL.Path)
		w.WriteHeader(http.StatusGone)
	})

	f.expectJob(ActionDelete, "evt-9", 0)
	f.expectCredentials(time.Now().Add(time.Hour))
	f.mock.ExpectBegin()
	f.mock.ExpectExec("SET google_event_id = '' WHERE id = \\$1 AND google_event_id = \\$2").WithArgs(int64(11), "evt-9").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec("SET status = 'done'").WithArgs(int64(1), "", "evt-9").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	_, err := f.w.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteFallsBackToBookingEvent(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendars/cal1/events/evt-3", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	f.expectJob(ActionDelete, "", 0)
	f.expectCredentials(time.Now().Add(time.Hour))
	f.expectBooking("cancelled", "evt-3")
	f.mock.ExpectBegin()
	f.mock.ExpectExec("SET google_event_id = ''").WithArgs(int64(11), "evt-3").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec("SET status = 'done'").WithArgs(int64(1), "", "evt-3").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	_, err := f.w.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateRecreatesMissingEvent(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPut:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
		case http.MethodPost:
			_, _ = w.Write([]byte(`{"id":"bk11j1"}`))
		}
	})

	f.expectJob(ActionUpdate, "", 0)
	f.expectCredentials(time.Now().Add(time.Hour))
	f.expectBooking("booked", "evt-old")
	f.mock.ExpectBegin()
	f.mock.ExpectExec("UPDATE bookings SET google_event_id = \\$2").WithArgs(int64(11), "bk11j1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec("SET status = 'done'").WithArgs(int64(1), "", "bk11j1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectCommit()

	_, err := f.w.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEmptyBatchOpensNoTransaction(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})
	f.expectClaim()

	n, err := f.w.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEventIDIsBase32Hex(t *testing.T) {
	id := eventIDFor(Job{ID: 1234, BookingID: 98765})
	assert.Equal(t, "bk98765j1234", id)
	assert.GreaterOrEqual(t, len(id), 5)
	for _, c := range id {
		assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'v'), "char %q", c)
	}
}

func TestRetryDelayDoublesUpToMax(t *testing.T) {
	w := &Worker{backoffBase: 30 * time.Second, backoffMax: 2 * time.Minute}
	assert.Equal(t, 30*time.Second, w.retryDelay(1))
	assert.Equal(t, time.Minute, w.retryDelay(2))
	assert.Equal(t, 2*time.Minute, w.retryDelay(3))
	assert.Equal(t, 2*time.Minute, w.retryDelay(6))
}

func TestClassify(t *testing.T) {
	assert.False(t, isPermanent(classify(&gcal.APIError{Status: http.StatusServiceUnavailable})))
	assert.False(t, isPermanent(classify(&gcal.APIError{Status: http.StatusTooManyRequests})))
	assert.False(t, isPermanent(classify(&gcal.APIError{Status: http.StatusForbidden, Reason: "rateLimitExceeded"})))
	assert.True(t, isPermanent(classify(&gcal.APIError{Status: http.StatusForbidden, Reason: "forbidden"})))
	assert.False(t, isPermanent(classify(errors.New("dial tcp: connection refused"))))
	assert.True(t, isPermanent(backoff.Permanent(errors.New("x"))))
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("x", maxErrorLen+20)
	assert.Len(t, truncate(long), maxErrorLen)
	assert.Equal(t, "short", truncate("short"))

	cut := truncate(strings.Repeat("x", maxErrorLen-1) + "é")
	assert.Equal(t, strings.Repeat("x", maxErrorLen-1), cut)
	assert.Equal(t, "bad \uFFFD nul", truncate("bad \xff nul\x00"))
}
