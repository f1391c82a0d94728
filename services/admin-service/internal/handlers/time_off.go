package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/validate"
)

// TimeOff serves one of the two time off tables.
type TimeOff struct {
	h    *Handler
	kind storage.TimeOffKind
}

func (h *Handler) TimeOff(kind storage.TimeOffKind) *TimeOff {
	return &TimeOff{h: h, kind: kind}
}

// authorize checks access to the owning specialist or working point.
func (t *TimeOff) authorize(w http.ResponseWriter, r *http.Request, ownerID int64, write bool) bool {
	if t.kind == storage.SpecialistTimeOff {
		_, ok := t.h.specialistByID(w, r, ownerID, write)
		return ok
	}
	wp, err := t.h.store.GetWorkingPoint(r.Context(), ownerID)
	if err != nil {
		t.h.fail(w, r, err, "failed to load working point")
		return false
	}
	p := principal(r)
	if canManagePoint(p, wp) {
		return true
	}
	if !write && p.Role == model.RoleSpecialist && p.OrganisationID == wp.OrganisationID {
		return true
	}
	writeError(w, http.StatusForbidden, "forbidden")
	return false
}

func (t *TimeOff) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := queryID(r, "owner_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, to := strings.TrimSpace(r.URL.Query().Get("from")), strings.TrimSpace(r.URL.Query().Get("to"))
	for field, v := range map[string]string{"from": from, "to": to} {
		if v == "" {
			continue
		}
		if _, err := validate.Date(field, v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if !t.authorize(w, r, ownerID, false) {
		return
	}
	list, err := t.h.store.ListTimeOff(r.Context(), t.kind, ownerID, from, to)
	if err != nil {
		t.h.fail(w, r, err, "failed to list time off")
		return
	}
	if list == nil {
		list = []model.TimeOff{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (t *TimeOff) Create(w http.ResponseWriter, r *http.Request) {
	var req model.TimeOff
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.StartDate = strings.TrimSpace(req.StartDate)
	req.EndDate = strings.TrimSpace(req.EndDate)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.OwnerID <= 0 {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	if err := validate.DateRange(req.StartDate, req.EndDate); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !t.authorize(w, r, req.OwnerID, true) {
		return
	}
	id, err := t.h.store.CreateTimeOff(r.Context(), t.kind, req)
	if err != nil {
		t.h.fail(w, r, err, "failed to create time off")
		return
	}
	req.ID = id
	writeJSON(w, http.StatusCreated, req)
}

func (t *TimeOff) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	row, err := t.h.store.GetTimeOff(r.Context(), t.kind, id)
	if err != nil {
		t.h.fail(w, r, err, "failed to load time off")
		return
	}
	if !t.authorize(w, r, row.OwnerID, true) {
		return
	}
	if err := t.h.store.DeleteTimeOff(r.Context(), t.kind, id); err != nil {
		t.h.fail(w, r, err, "failed to delete time off")
		return
	}
	writeMessage(w, http.StatusOK, "deleted")
}
