// Package csvimport loads organisations, working points, specialists,
// working program rows and services from one section-delimited CSV file.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

type Section string

const (
	SectionOrganisations  Section = "ORGANISATIONS"
	SectionWorkingPoints  Section = "WORKING POINTS"
	SectionSpecialists    Section = "SPECIALISTS"
	SectionWorkingProgram Section = "WORKING PROGRAM"
	SectionServices       Section = "SERVICES"
)

var required = map[Section][]string{
	SectionOrganisations:  {"alias", "company_name"},
	SectionWorkingPoints:  {"key", "organisation_alias", "name"},
	SectionSpecialists:    {"key", "organisation_alias", "name"},
	SectionWorkingProgram: {"specialist_key", "working_point_key", "day_of_week", "shift1_start", "shift1_end"},
	SectionServices:       {"working_point_key", "name", "duration_minutes", "price"},
}

// RowError points at a 1-based line of the input.
type RowError struct {
	Line    int    `json:"line"`
	Section string `json:"section"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d [%s]: %s", e.Line, e.Section, e.Message)
}

type row struct {
	line    int
	section Section
	fields  map[string]string
}

func (r row) get(col string) string {
	return strings.TrimSpace(r.fields[col])
}

// parsed keeps data rows in file order so references only resolve to
// rows that appear earlier.
type parsed struct {
	rows []row
	errs []RowError
}

// sectionName maps "# WORKING_PROGRAM" and "# working points" alike.
func sectionName(marker string) Section {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(marker), "#"))
	s = strings.ToUpper(strings.ReplaceAll(s, "_", " "))
	return Section(strings.Join(strings.Fields(s), " "))
}

func parse(r io.Reader) (*parsed, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	p := &parsed{}
	var (
		current Section
		header  []string
		skip    bool
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				p.errs = append(p.errs, RowError{Line: perr.Line, Section: string(current), Message: perr.Err.Error()})
				return p, nil
			}
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if blank(rec) {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(rec[0]), "#") {
			name := sectionName(rec[0])
			if _, ok := required[name]; !ok {
				p.errs = append(p.errs, RowError{Line: line, Section: string(name), Message: "unknown section"})
				current, header, skip = "", nil, true
				continue
			}
			current, header, skip = name, nil, false
			continue
		}
		if skip {
			continue
		}
		if current == "" {
			p.errs = append(p.errs, RowError{Line: line, Message: "data before any section marker"})
			skip = true
			continue
		}
		if header == nil {
			header = normalizeHeader(rec)
			if missing := missingColumns(current, header); len(missing) > 0 {
				p.errs = append(p.errs, RowError{Line: line, Section: string(current), Message: "missing columns: " + strings.Join(missing, ", ")})
				skip = true
			}
			continue
		}
		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				fields[col] = rec[i]
			}
		}
		if len(rec) > len(header) {
			p.errs = append(p.errs, RowError{Line: line, Section: string(current), Message: fmt.Sprintf("expected %d columns, got %d", len(header), len(rec))})
			continue
		}
		p.rows = append(p.rows, row{line: line, section: current, fields: fields})
	}
	return p, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func normalizeHeader(rec []string) []string {
	out := make([]string, len(rec))
	for i, h := range rec {
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

func missingColumns(s Section, header []string) []string {
	have := map[string]bool{}
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, col := range required[s] {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	return missing
}
