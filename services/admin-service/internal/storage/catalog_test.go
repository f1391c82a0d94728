package storage

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

func TestListServicesHidesDeletedByDefault(t *testing.T) {
	s, mock := newMock(t)
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM services\s+WHERE working_point_id = \$1 AND deleted = \$2`).
		WithArgs(int64(2), false).
		WillReturnRows(pgxmock.NewRows([]string{"id", "organisation_id", "working_point_id", "specialist_id", "name", "duration_minutes", "price", "currency", "suspended", "deleted", "created_at"}).
			AddRow(int64(5), int64(1), int64(2), int64(0), "Haircut", 30, "45.00", "RON", false, false, created))

	out, err := s.ListServices(context.Background(), 2, 0, false)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Haircut", out[0].Name)
	assert.Equal(t, "45.00", out[0].Price)
	assert.Zero(t, out[0].SpecialistID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteServiceMissing(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec("SET deleted = true, suspended = true").WithArgs(int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, s.SoftDeleteService(context.Background(), 5), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateServiceUnknownSpecialist(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery("INSERT INTO services").
		WithArgs(int64(1), int64(2), int64(99), "Haircut", 30, "45", "RON").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	_, err := s.CreateService(context.Background(), model.Service{
		OrganisationID: 1, WorkingPointID: 2, SpecialistID: 99,
		Name: "Haircut", DurationMinutes: 30, Price: "45", Currency: "RON",
	})
	assert.ErrorIs(t, err, ErrInvalidReference)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeOffTables(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(`FROM specialist_time_off\s+WHERE specialist_id = \$1 AND end_date >= \$2::date`).
		WithArgs(int64(4), "2024-06-01").
		WillReturnRows(pgxmock.NewRows([]string{"id", "specialist_id", "start", "end", "reason"}).
			AddRow(int64(1), int64(4), "2024-06-10", "2024-06-12", "holiday"))
	out, err := s.ListTimeOff(ctx, SpecialistTimeOff, 4, "2024-06-01", "")
	require.NoError(t, err)
	assert.Equal(t, []model.TimeOff{{ID: 1, OwnerID: 4, StartDate: "2024-06-10", EndDate: "2024-06-12", Reason: "holiday"}}, out)

	mock.ExpectQuery("INSERT INTO workingpoint_time_off").
		WithArgs(int64(2), "2024-12-24", "2024-12-26", "closed").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(8)))
	id, err := s.CreateTimeOff(ctx, WorkingPointTimeOff, model.TimeOff{OwnerID: 2, StartDate: "2024-12-24", EndDate: "2024-12-26", Reason: "closed"})
	require.NoError(t, err)
	assert.Equal(t, int64(8), id)

	_, err = s.ListTimeOff(ctx, TimeOffKind(7), 1, "", "")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWorkingDayWritesAllShifts(t *testing.T) {
	s, mock := newMock(t)
	d := model.WorkingDay{SpecialistID: 4, WorkingPointID: 2, DayOfWeek: 1}
	d.Shifts[0] = model.Shift{Start: "09:00", End: "13:00"}
	d.Shifts[1] = model.Shift{Start: "14:00", End: "18:00"}

	mock.ExpectExec("ON CONFLICT \\(specialist_id, working_point_id, day_of_week\\) DO UPDATE").
		WithArgs(int64(4), int64(2), 1, "09:00", "13:00", "14:00", "18:00", "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertWorkingDay(context.Background(), d))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeAuditDeletesBeforeCutoff(t *testing.T) {
	s, mock := newMock(t)
	before := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("DELETE FROM audit_events WHERE created_at < \\$1").WithArgs(before).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	n, err := s.PurgeAudit(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
