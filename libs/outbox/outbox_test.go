package outbox

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
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

var outboxColumns = []string{"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "payload", "traceparent", "tracestate", "created_at"}

func newPublisher(t *testing.T) (*Publisher, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPublisher(mock, NewRepository(), logger, PublisherConfig{Brokers: "kafka:9092", Source: "admin-service"}), mock
}

func TestPublishBatchMarksPublished(t *testing.T) {
	p, mock := newPublisher(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM outbox_events").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows(outboxColumns).
			AddRow(int64(1), "e-1", "organisation", "7", "admin.organisation.created.v1", []byte(`{"id":7}`), "", "", time.Now()).
			AddRow(int64(2), "e-2", "booking", "9", "admin.booking.cancelled.v1", []byte(`{"id":9}`), "", "", time.Now()))
	mock.ExpectExec("UPDATE outbox_events").
		WithArgs([]int64{1, 2}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	w := &fakeWriter{}
	n, err := p.PublishBatch(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "admin.organisation.created.v1", w.msgs[0].Topic)
	assert.Equal(t, []byte("7"), w.msgs[0].Key)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishBatchLeavesRowsOnWriteFailure(t *testing.T) {
	p, mock := newPublisher(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM outbox_events").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows(outboxColumns).
			AddRow(int64(1), "e-1", "organisation", "7", "admin.organisation.created.v1", []byte(`{}`), "", "", time.Now()))
	mock.ExpectRollback()

	_, err := p.PublishBatch(context.Background(), &fakeWriter{err: errors.New("broker down")})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent("booking", "12", "admin.booking.cancelled.v1", map[string]any{"booking_id": 12})
	require.NoError(t, err)
	assert.JSONEq(t, `{"booking_id":12}`, string(evt.Payload))
}
