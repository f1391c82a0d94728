package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var rows = []model.StatRow{
	{Key: "1", Label: "Dr. Pop", Bookings: 10, Cancelled: 2, Revenue: "400.50"},
	{Key: "2", Label: "<b>Ana</b>", Bookings: 3, Cancelled: 0, Revenue: "90.5"},
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestTotals(t *testing.T) {
	tot := Totals(rows)
	assert.Equal(t, int64(13), tot.Bookings)
	assert.Equal(t, int64(2), tot.Cancelled)
	assert.Equal(t, "491.00", tot.Revenue)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, model.GroupSpecialist, rows))
	assert.Equal(t, "Specialist,Bookings,Cancelled,Revenue\nDr. Pop,10,2,400.50\n<b>Ana</b>,3,0,90.5\n", buf.String())
}

func TestWriteHTMLEscapes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatHTML, model.GroupService, rows))
	out := buf.String()
	assert.Contains(t, out, "<th>Service</th>")
	assert.Contains(t, out, "&lt;b&gt;Ana&lt;/b&gt;")
	assert.Contains(t, out, "<th>491.00</th>")

	buf.Reset()
	require.NoError(t, Write(&buf, FormatHTML, model.GroupDay, nil))
	assert.Contains(t, buf.String(), "No data")
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, model.GroupWorkingPoint, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"Working point", "Bookings", "Cancelled", "Revenue"}, got[0])
	assert.Equal(t, "Dr. Pop", got[1][0])
	assert.Equal(t, "Total", got[3][0])
	assert.Equal(t, []string{"Statistics"}, f.GetSheetList())
}

func TestFilename(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "statistics_day_20240301_20240331.xlsx", Filename(model.GroupDay, from, to, FormatXLSX))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", FormatXLSX.ContentType())
}
