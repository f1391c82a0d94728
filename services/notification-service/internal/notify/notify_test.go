package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bookingadmin/libs/kafkax"
	"github.com/md-rashed-zaman/bookingadmin/libs/outbox"
	"github.com/md-rashed-zaman/bookingadmin/services/notification-service/internal/storage"
)

type sentSMS struct{ to, body string }

type fakeSMS struct {
	sent []sentSMS
	err  error
}

func (f *fakeSMS) ProviderID() string { return "fake-sms" }

func (f *fakeSMS) Send(_ context.Context, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentSMS{to, body})
	return nil
}

type sentMail struct{ to, subject, body string }

type fakeEmail struct {
	sent []sentMail
	err  error
}

func (f *fakeEmail) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

type fixture struct {
	mock  pgxmock.PgxPoolIface
	sms   *fakeSMS
	email *fakeEmail
	cfg   Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &fixture{mock: mock, sms: &fakeSMS{}, email: &fakeEmail{}, cfg: Config{CancellationSMS: true}}
}

func (f *fixture) handle(t *testing.T, msg kafka.Message) error {
	t.Helper()
	f.mock.ExpectBegin()
	tx, err := f.mock.Begin(context.Background())
	require.NoError(t, err)

	d := NewDispatcher(storage.NewRepository(), outbox.NewRepository(), f.sms, f.email, f.cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.now = func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }
	return d.Handle(context.Background(), tx, msg)
}

func kafkaMessage(eventType, payload string) kafka.Message {
	return kafka.Message{
		Topic:   eventType,
		Headers: kafkax.MetaHeaders(kafkax.EventMeta{EventID: "e1", EventType: eventType}),
		Value:   []byte(payload),
	}
}

func bookingRow(phone string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "client_name", "client_phone", "service_name", "point", "timezone", "start_time"}).
		AddRow(int64(11), "Ana", phone, "Haircut", "Center", "UTC", time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))
}

func TestCancellationSendsSMS(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("FROM bookings b").WithArgs(int64(11)).WillReturnRows(bookingRow("+40700000000"))
	f.mock.ExpectExec("INSERT INTO notifications").
		WithArgs("e1", "booking_cancelled", "booking:11", "sms", "+40700000000", pgxmock.AnyArg(), "fake-sms", storage.StatusSent, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("notification", "booking:11", EventSent, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, f.handle(t, kafkaMessage(EventBookingCancelled, `{"booking_id":11,"cancelled_by":"admin"}`)))
	require.NoError(t, f.mock.ExpectationsWereMet())
	require.Len(t, f.sms.sent, 1)
	assert.Equal(t, "Hi Ana, your Haircut appointment at Center on 03 Jun 2024 09:00 was cancelled.", f.sms.sent[0].body)
}

func TestCancellationWithoutPhoneIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("FROM bookings b").WithArgs(int64(11)).WillReturnRows(bookingRow(" "))
	f.mock.ExpectExec("INSERT INTO notifications").
		WithArgs("e1", "booking_cancelled", "booking:11", "sms", "", pgxmock.AnyArg(), "", storage.StatusSkipped, "no phone on file").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, f.handle(t, kafkaMessage(EventBookingCancelled, `{"booking_id":11}`)))
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Empty(t, f.sms.sent)
}

func TestCancellationSendFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.sms.err = errors.New("gateway down")
	f.mock.ExpectQuery("FROM bookings b").WithArgs(int64(11)).WillReturnRows(bookingRow("+40700000000"))
	f.mock.ExpectExec("INSERT INTO notifications").
		WithArgs("e1", "booking_cancelled", "booking:11", "sms", "+40700000000", pgxmock.AnyArg(), "fake-sms", storage.StatusFailed, "gateway down").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("notification", "booking:11", EventFailed, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, f.handle(t, kafkaMessage(EventBookingCancelled, `{"booking_id":11}`)))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancellationOfMissingBookingIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("FROM bookings b").WithArgs(int64(11)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	f.mock.ExpectExec("INSERT INTO notifications").
		WithArgs("e1", "booking_cancelled", "booking:11", "sms", "", "", "", storage.StatusSkipped, "booking not found").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, f.handle(t, kafkaMessage(EventBookingCancelled, `{"booking_id":11}`)))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSyncFailureMailsAlertAddress(t *testing.T) {
	f := newFixture(t)
	f.cfg.AlertEmail = "ops@example.com"
	f.mock.ExpectExec("INSERT INTO notifications").
		WithArgs("e1", "calendar_sync_failed", "sync:7", "email", "ops@example.com", pgxmock.AnyArg(), "smtp", storage.StatusSent, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("notification", "sync:7", EventSent, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	payload := `{"sync_id":7,"booking_id":11,"specialist_id":3,"action":"create","attempts":5,"error":"google api 500"}`
	require.NoError(t, f.handle(t, kafkaMessage(EventSyncFailed, payload)))
	require.NoError(t, f.mock.ExpectationsWereMet())
	require.Len(t, f.email.sent, 1)
	assert.Equal(t, "Google Calendar sync failed for booking 11", f.email.sent[0].subject)
	assert.Contains(t, f.email.sent[0].body, "Last error: google api 500")
}

func TestSyncFailureFallsBackToSpecialist(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("SELECT email FROM specialists").WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"email"}).AddRow("maria@example.com"))
	f.mock.ExpectExec("INSERT INTO notifications").
		WithArgs("e1", "calendar_sync_failed", "sync:7", "email", "maria@example.com", pgxmock.AnyArg(), "smtp", storage.StatusSent, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("notification", "sync:7", EventSent, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, f.handle(t, kafkaMessage(EventSyncFailed, `{"sync_id":7,"booking_id":11,"specialist_id":3}`)))
	require.NoError(t, f.mock.ExpectationsWereMet())
	require.Len(t, f.email.sent, 1)
	assert.Equal(t, "maria@example.com", f.email.sent[0].to)
}

func TestMalformedEventsAreDropped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handle(t, kafkaMessage(EventBookingCancelled, `not json`)))
	require.NoError(t, f.handle(t, kafkaMessage(EventSyncFailed, `{"booking_id":11}`)))
	require.NoError(t, f.handle(t, kafkaMessage("booking.rescheduled.v2", `{}`)))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancellationTextFallbacks(t *testing.T) {
	b := storage.Booking{Timezone: "Not/AZone", Start: time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)}
	assert.Equal(t, "Your appointment on 03 Jun 2024 09:30 was cancelled.", cancellationText(b))
}
