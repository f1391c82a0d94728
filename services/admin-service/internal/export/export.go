// Package export renders statistics rows as CSV, an HTML table fragment or
// an XLSX workbook.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/xuri/excelize/v2"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatHTML Format = "html"
	FormatXLSX Format = "xlsx"
)

var ErrUnknownFormat = errors.New("unknown export format")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatHTML, FormatXLSX:
		return f, nil
	case "":
		return FormatCSV, nil
	}
	return "", ErrUnknownFormat
}

func (f Format) ContentType() string {
	switch f {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename is used for Content-Disposition.
func Filename(group model.StatsGroup, from, to time.Time, f Format) string {
	return fmt.Sprintf("statistics_%s_%s_%s.%s", group, from.Format("20060102"), to.Format("20060102"), f)
}

func headers(group model.StatsGroup) []string {
	return []string{groupTitle(group), "Bookings", "Cancelled", "Revenue"}
}

func groupTitle(group model.StatsGroup) string {
	switch group {
	case model.GroupService:
		return "Service"
	case model.GroupWorkingPoint:
		return "Working point"
	case model.GroupDay:
		return "Day"
	}
	return "Specialist"
}

// Write renders rows in format f.
func Write(w io.Writer, f Format, group model.StatsGroup, rows []model.StatRow) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, group, rows)
	case FormatHTML:
		return writeHTML(w, group, rows)
	case FormatXLSX:
		return writeXLSX(w, group, rows)
	}
	return ErrUnknownFormat
}

func writeCSV(w io.Writer, group model.StatsGroup, rows []model.StatRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers(group)); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{r.Label, strconv.FormatInt(r.Bookings, 10), strconv.FormatInt(r.Cancelled, 10), r.Revenue}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var tableTmpl = template.Must(template.New("stats").Parse(`<table class="stats-table">
<thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr><td>{{.Label}}</td><td>{{.Bookings}}</td><td>{{.Cancelled}}</td><td>{{.Revenue}}</td></tr>
{{- else}}
<tr><td colspan="4">No data</td></tr>
{{- end}}
</tbody>
<tfoot><tr><th>Total</th><th>{{.Total.Bookings}}</th><th>{{.Total.Cancelled}}</th><th>{{.Total.Revenue}}</th></tr></tfoot>
</table>
`))

func writeHTML(w io.Writer, group model.StatsGroup, rows []model.StatRow) error {
	return tableTmpl.Execute(w, map[string]any{
		"Headers": headers(group),
		"Rows":    rows,
		"Total":   Totals(rows),
	})
}

// Totals sums rows. Revenue is summed in cents to avoid float drift.
func Totals(rows []model.StatRow) model.StatRow {
	var t model.StatRow
	var cents int64
	for _, r := range rows {
		t.Bookings += r.Bookings
		t.Cancelled += r.Cancelled
		cents += toCents(r.Revenue)
	}
	t.Label = "Total"
	t.Revenue = fmt.Sprintf("%d.%02d", cents/100, cents%100)
	return t
}

func toCents(s string) int64 {
	whole, frac, _ := strings.Cut(strings.TrimSpace(s), ".")
	w, _ := strconv.ParseInt(whole, 10, 64)
	frac = (frac + "00")[:2]
	f, _ := strconv.ParseInt(frac, 10, 64)
	return w*100 + f
}

const sheetName = "Statistics"

func writeXLSX(w io.Writer, group model.StatsGroup, rows []model.StatRow) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	if err := setRow(f, 1, toAny(headers(group))); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", "D1", headerStyle); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}
	for i, r := range rows {
		rev, _ := strconv.ParseFloat(r.Revenue, 64)
		if err := setRow(f, i+2, []any{r.Label, r.Bookings, r.Cancelled, rev}); err != nil {
			return err
		}
	}
	t := Totals(rows)
	rev, _ := strconv.ParseFloat(t.Revenue, 64)
	if err := setRow(f, len(rows)+2, []any{t.Label, t.Bookings, t.Cancelled, rev}); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "A", "A", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "B", "D", 14); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func setRow(f *excelize.File, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
