package csvimport

import (
	"context"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
)

func newImporter(t *testing.T) (*Importer, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	im := New(storage.New(mock), nil)
	im.hash = func(p string) (string, error) { return "hashed:" + p, nil }
	return im, mock
}

func noRows() *pgxmock.Rows { return pgxmock.NewRows([]string{"id"}) }

func idRow(id int64) *pgxmock.Rows { return pgxmock.NewRows([]string{"id"}).AddRow(id) }

var accountColumns = []string{"role", "id", "username", "password_hash", "organisation_id"}

func TestParseKeepsFileOrderAndLines(t *testing.T) {
	in := `# ORGANISATIONS
alias,company_name
acme,Acme Ltd

# working_program
specialist_key,working_point_key,day_of_week,shift1_start,shift1_end
s1,p1,1,09:00,12:00
`
	p, err := parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Empty(t, p.errs)
	require.Len(t, p.rows, 2)
	assert.Equal(t, SectionOrganisations, p.rows[0].section)
	assert.Equal(t, 3, p.rows[0].line)
	assert.Equal(t, "Acme Ltd", p.rows[0].get("company_name"))
	assert.Equal(t, SectionWorkingProgram, p.rows[1].section)
	assert.Equal(t, 7, p.rows[1].line)
}

func TestParseErrors(t *testing.T) {
	in := `acme,Acme
# CUSTOMERS
a,b
# SERVICES
name,price
x,1
# SPECIALISTS
key,organisation_alias,name
s1,acme,Ana,extra
`
	p, err := parse(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, p.errs, 4)
	assert.Equal(t, RowError{Line: 1, Message: "data before any section marker"}, p.errs[0])
	assert.Equal(t, RowError{Line: 2, Section: "CUSTOMERS", Message: "unknown section"}, p.errs[1])
	assert.Equal(t, 5, p.errs[2].Line)
	assert.Contains(t, p.errs[2].Message, "working_point_key")
	assert.Equal(t, 9, p.errs[3].Line)
}

func TestImportRejectsMalformedFileWithoutTouchingDatabase(t *testing.T) {
	im, mock := newImporter(t)

	res, err := im.Import(context.Background(), strings.NewReader("# PATIENTS\nname\nx\n"), false)
	require.NoError(t, err)
	assert.False(t, res.Committed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "unknown section", res.Errors[0].Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportRowErrorRollsBackEverything(t *testing.T) {
	im, mock := newImporter(t)
	in := `# ORGANISATIONS
alias,company_name
Bad Alias,Broken
acme,Acme Ltd
acme,Acme Again
`
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM organisations WHERE alias").WithArgs("acme").WillReturnRows(noRows())
	mock.ExpectQuery("INSERT INTO organisations").WillReturnRows(idRow(1))
	mock.ExpectRollback()

	res, err := im.Import(context.Background(), strings.NewReader(in), false)
	require.NoError(t, err)
	assert.False(t, res.Committed)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 3, res.Errors[0].Line)
	assert.Equal(t, 5, res.Errors[1].Line)
	assert.Contains(t, res.Errors[1].Message, "repeated in file")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportDryRunRollsBack(t *testing.T) {
	im, mock := newImporter(t)
	in := "# ORGANISATIONS\nalias,company_name,username,password\nacme,Acme Ltd,acme-admin,secret-pass\n"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM organisations WHERE alias").WithArgs("acme").WillReturnRows(noRows())
	mock.ExpectQuery("FROM super_admins WHERE username").WithArgs("acme-admin").WillReturnRows(pgxmock.NewRows(accountColumns))
	mock.ExpectQuery("INSERT INTO organisations").
		WithArgs("acme", "Acme Ltd", "", "", "", "acme-admin", "hashed:secret-pass").
		WillReturnRows(idRow(1))
	mock.ExpectRollback()

	res, err := im.Import(context.Background(), strings.NewReader(in), true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.False(t, res.Committed)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Created["ORGANISATIONS"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportUsernameTakenInDatabase(t *testing.T) {
	im, mock := newImporter(t)
	in := "# ORGANISATIONS\nalias,company_name,username,password\nacme,Acme Ltd,anna,secret-pass\n"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM organisations WHERE alias").WithArgs("acme").WillReturnRows(noRows())
	mock.ExpectQuery("FROM super_admins WHERE username").WithArgs("anna").
		WillReturnRows(pgxmock.NewRows(accountColumns).AddRow("specialist", int64(9), "anna", "h", int64(2)))
	mock.ExpectRollback()

	res, err := im.Import(context.Background(), strings.NewReader(in), false)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, `username "anna" already exists`, res.Errors[0].Message)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportCommitsAllSections(t *testing.T) {
	im, mock := newImporter(t)
	in := `# ORGANISATIONS
alias,company_name
acme,Acme Ltd
# WORKING POINTS
key,organisation_alias,name,timezone,currency
p1,acme,Downtown,Europe/Bucharest,RON
p2,acme,Uptown,,
# SPECIALISTS
key,organisation_alias,name
s1,acme,Ana
# WORKING_PROGRAM
specialist_key,working_point_key,day_of_week,shift1_start,shift1_end,shift2_start,shift2_end
s1,p1,1,09:00,12:00,13:00,17:00
s1,p2,1,11:00,14:00,,
s1,p2,2,08:00,10:00,,
# SERVICES
working_point_key,specialist_key,name,duration_minutes,price,currency
p1,s1,Consult,30,150,
`
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM organisations WHERE alias").WithArgs("acme").WillReturnRows(noRows())
	mock.ExpectQuery("INSERT INTO organisations").WillReturnRows(idRow(1))
	mock.ExpectQuery("INSERT INTO working_points").
		WithArgs(int64(1), "Downtown", "", "", "", "RON", "Europe/Bucharest", "", "", "", "", "").
		WillReturnRows(idRow(10))
	mock.ExpectQuery("INSERT INTO working_points").
		WithArgs(int64(1), "Uptown", "", "", "", "EUR", "UTC", "", "", "", "", "").
		WillReturnRows(idRow(11))
	mock.ExpectQuery("INSERT INTO specialists").WillReturnRows(idRow(20))
	mock.ExpectExec("INSERT INTO working_program").
		WithArgs(int64(20), int64(10), 1, "09:00", "12:00", "13:00", "17:00", "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO working_program").
		WithArgs(int64(20), int64(11), 2, "08:00", "10:00", "", "", "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("INSERT INTO services").
		WithArgs(int64(1), int64(10), int64(20), "Consult", 30, "150.00", "RON").
		WillReturnRows(idRow(30))
	mock.ExpectRollback()

	res, err := im.Import(context.Background(), strings.NewReader(in), false)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 14, res.Errors[0].Line)
	assert.Contains(t, res.Errors[0].Message, "overlap")
	require.NoError(t, mock.ExpectationsWereMet())

	// Same file without the overlapping row commits and emits one event.
	im, mock = newImporter(t)
	in = strings.Replace(in, "s1,p2,1,11:00,14:00,,\n", "", 1)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM organisations WHERE alias").WithArgs("acme").WillReturnRows(noRows())
	mock.ExpectQuery("INSERT INTO organisations").WillReturnRows(idRow(1))
	mock.ExpectQuery("INSERT INTO working_points").WillReturnRows(idRow(10))
	mock.ExpectQuery("INSERT INTO working_points").WillReturnRows(idRow(11))
	mock.ExpectQuery("INSERT INTO specialists").WillReturnRows(idRow(20))
	mock.ExpectExec("INSERT INTO working_program").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO working_program").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("INSERT INTO services").WillReturnRows(idRow(30))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("import", pgxmock.AnyArg(), "admin.import.completed.v1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	res, err = im.Import(context.Background(), strings.NewReader(in), false)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.True(t, res.Committed)
	assert.Equal(t, map[string]int{
		"ORGANISATIONS":   1,
		"WORKING POINTS":  2,
		"SPECIALISTS":     1,
		"WORKING PROGRAM": 2,
		"SERVICES":        1,
	}, res.Created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportUnknownOrganisationAlias(t *testing.T) {
	im, mock := newImporter(t)
	in := "# SPECIALISTS\nkey,organisation_alias,name\ns1,ghost,Ana\n"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM organisations WHERE alias").WithArgs("ghost").WillReturnRows(noRows())
	mock.ExpectRollback()

	res, err := im.Import(context.Background(), strings.NewReader(in), false)
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, RowError{Line: 3, Section: "SPECIALISTS", Message: `unknown organisation "ghost"`}, res.Errors[0])
	require.NoError(t, mock.ExpectationsWereMet())
}
