package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/validate"
)

type serviceRequest struct {
	WorkingPointID  int64  `json:"working_point_id"`
	SpecialistID    int64  `json:"specialist_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	Currency        string `json:"currency"`
}

// pointFor loads a working point and checks management rights.
func (h *Handler) pointFor(w http.ResponseWriter, r *http.Request, id int64) (model.WorkingPoint, bool) {
	wp, err := h.store.GetWorkingPoint(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to load working point")
		return wp, false
	}
	if !canManagePoint(principal(r), wp) {
		writeError(w, http.StatusForbidden, "forbidden")
		return wp, false
	}
	return wp, true
}

func (h *Handler) buildService(w http.ResponseWriter, r *http.Request, req serviceRequest, wp model.WorkingPoint) (model.Service, bool) {
	sv := model.Service{
		OrganisationID:  wp.OrganisationID,
		WorkingPointID:  wp.ID,
		SpecialistID:    req.SpecialistID,
		Name:            strings.TrimSpace(req.Name),
		DurationMinutes: req.DurationMinutes,
	}
	if err := validate.Required("name", sv.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return sv, false
	}
	if err := validate.Duration(sv.DurationMinutes); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return sv, false
	}
	price, err := validate.Price(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return sv, false
	}
	sv.Price = price
	if sv.Currency, err = validate.Currency(req.Currency, wp.Currency); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return sv, false
	}
	if sv.SpecialistID > 0 {
		sp, err := h.store.GetSpecialist(r.Context(), sv.SpecialistID)
		if err != nil {
			h.fail(w, r, err, "failed to load specialist")
			return sv, false
		}
		if sp.OrganisationID != wp.OrganisationID {
			writeError(w, http.StatusBadRequest, "specialist belongs to another organisation")
			return sv, false
		}
	}
	return sv, true
}

func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	pointID, err := queryID(r, "working_point_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	specialistID, err := optionalID(r, "specialist_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wp, err := h.store.GetWorkingPoint(r.Context(), pointID)
	if err != nil {
		h.fail(w, r, err, "failed to load working point")
		return
	}
	p := principal(r)
	if !canManagePoint(p, wp) {
		ok := false
		if p.Role == model.RoleSpecialist {
			ok, err = h.store.SpecialistWorksAt(r.Context(), p.SpecialistID, wp.ID)
			if err != nil {
				h.fail(w, r, err, "failed to list services")
				return
			}
		}
		if !ok {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	list, err := h.store.ListServices(r.Context(), pointID, specialistID, includeDeleted)
	if err != nil {
		h.fail(w, r, err, "failed to list services")
		return
	}
	if list == nil {
		list = []model.Service{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.WorkingPointID <= 0 {
		writeError(w, http.StatusBadRequest, "working_point_id is required")
		return
	}
	wp, ok := h.pointFor(w, r, req.WorkingPointID)
	if !ok {
		return
	}
	sv, ok := h.buildService(w, r, req, wp)
	if !ok {
		return
	}
	id, err := h.store.CreateService(r.Context(), sv)
	if err != nil {
		h.fail(w, r, err, "failed to create service")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// serviceFor loads the service named by ?id= and checks management rights
// on its working point.
func (h *Handler) serviceFor(w http.ResponseWriter, r *http.Request, id int64) (model.Service, model.WorkingPoint, bool) {
	sv, err := h.store.GetService(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to load service")
		return sv, model.WorkingPoint{}, false
	}
	wp, ok := h.pointFor(w, r, sv.WorkingPointID)
	return sv, wp, ok
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	current, wp, ok := h.serviceFor(w, r, id)
	if !ok {
		return
	}
	var req serviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sv, ok := h.buildService(w, r, req, wp)
	if !ok {
		return
	}
	sv.ID = current.ID
	if err := h.store.UpdateService(r.Context(), sv); err != nil {
		h.fail(w, r, err, "failed to update service")
		return
	}
	writeMessage(w, http.StatusOK, "updated")
}

func (h *Handler) SuspendService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        int64 `json:"id"`
		Suspended bool  `json:"suspended"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if _, _, ok := h.serviceFor(w, r, req.ID); !ok {
		return
	}
	if err := h.store.SetServiceSuspended(r.Context(), req.ID, req.Suspended); err != nil {
		h.fail(w, r, err, "failed to update service")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "suspended": req.Suspended})
}

func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, _, ok := h.serviceFor(w, r, id); !ok {
		return
	}
	if err := h.store.SoftDeleteService(r.Context(), id); err != nil {
		h.fail(w, r, err, "failed to delete service")
		return
	}
	writeMessage(w, http.StatusOK, "deleted")
}
