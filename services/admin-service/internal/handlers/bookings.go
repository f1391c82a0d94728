package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/export"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/validate"
)

// dateRange reads from/to as YYYY-MM-DD (to inclusive) or RFC3339 and
// returns a half-open interval.
func dateRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if from, err = parseBound(q.Get("from"), false); err != nil {
		return from, to, errors.New("from must be YYYY-MM-DD or RFC3339")
	}
	if to, err = parseBound(q.Get("to"), true); err != nil {
		return from, to, errors.New("to must be YYYY-MM-DD or RFC3339")
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return from, to, errors.New("to must be after from")
	}
	return from, to, nil
}

func parseBound(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(validate.DateLayout, raw); err == nil {
		if upper {
			t = t.AddDate(0, 0, 1)
		}
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *Handler) Bookings(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("id") {
		h.GetBooking(w, r)
		return
	}
	var f model.BookingFilter
	var err error
	for key, dst := range map[string]*int64{
		"organisation_id":  &f.OrganisationID,
		"working_point_id": &f.WorkingPointID,
		"specialist_id":    &f.SpecialistID,
	} {
		if *dst, err = optionalID(r, key); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if f.From, f.To, err = dateRange(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch f.Status = r.URL.Query().Get("status"); f.Status {
	case "", model.BookingBooked, model.BookingCancelled:
	default:
		writeError(w, http.StatusBadRequest, "status must be booked or cancelled")
		return
	}
	f.Limit, f.Offset = paging(r)
	scopeBookings(principal(r), &f)

	list, err := h.store.ListBookings(r.Context(), f)
	if err != nil {
		h.fail(w, r, err, "failed to list bookings")
		return
	}
	if list == nil {
		list = []model.Booking{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := h.store.GetBooking(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to load booking")
		return
	}
	if !canSeeBooking(principal(r), b) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	b, err := h.store.GetBooking(r.Context(), req.ID)
	if err != nil {
		h.fail(w, r, err, "failed to load booking")
		return
	}
	p := principal(r)
	if !canSeeBooking(p, b) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	b, err = h.store.CancelBooking(r.Context(), req.ID, p.Username)
	if err != nil {
		h.fail(w, r, err, "failed to cancel booking")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// statsFilter parses the statistics query. The range defaults to the last
// 30 days.
func (h *Handler) statsFilter(r *http.Request) (model.StatsFilter, error) {
	var f model.StatsFilter
	var err error
	for key, dst := range map[string]*int64{
		"organisation_id":  &f.OrganisationID,
		"working_point_id": &f.WorkingPointID,
		"specialist_id":    &f.SpecialistID,
	} {
		if *dst, err = optionalID(r, key); err != nil {
			return f, err
		}
	}
	if f.From, f.To, err = dateRange(r); err != nil {
		return f, err
	}
	if f.To.IsZero() {
		f.To = h.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 1)
	}
	if f.From.IsZero() {
		f.From = f.To.AddDate(0, 0, -30)
	}
	f.Group = model.StatsGroup(r.URL.Query().Get("group"))
	if f.Group == "" {
		f.Group = model.GroupSpecialist
	}
	if !f.Group.Valid() {
		return f, errors.New("group must be specialist, service, working_point or day")
	}

	bf := model.BookingFilter{OrganisationID: f.OrganisationID, WorkingPointID: f.WorkingPointID, SpecialistID: f.SpecialistID}
	scopeBookings(principal(r), &bf)
	f.OrganisationID, f.WorkingPointID, f.SpecialistID = bf.OrganisationID, bf.WorkingPointID, bf.SpecialistID
	return f, nil
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	f, err := h.statsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := h.store.Statistics(r.Context(), f)
	if err != nil {
		h.fail(w, r, err, "failed to load statistics")
		return
	}
	if rows == nil {
		rows = []model.StatRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group": f.Group,
		"from":  f.From,
		"to":    f.To,
		"rows":  rows,
		"total": export.Totals(rows),
	})
}

// ExportStatistics streams the statistics as csv, html or xlsx.
func (h *Handler) ExportStatistics(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "format must be csv, html or xlsx")
		return
	}
	f, err := h.statsFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := h.store.Statistics(r.Context(), f)
	if err != nil {
		h.fail(w, r, err, "failed to load statistics")
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, format, f.Group, rows); err != nil {
		h.fail(w, r, err, "failed to render export")
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	if format != export.FormatHTML {
		w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(f.Group, f.From, f.To.AddDate(0, 0, -1), format)+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
