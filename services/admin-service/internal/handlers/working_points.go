package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/validate"
)

const defaultCurrency = "EUR"

type workingPointRequest struct {
	OrganisationID int64  `json:"organisation_id"`
	Name           string `json:"name"`
	Address        string `json:"address"`
	Country        string `json:"country"`
	Language       string `json:"language"`
	Currency       string `json:"currency"`
	Timezone       string `json:"timezone"`
	Phone          string `json:"phone"`
	BookingPhone   string `json:"booking_phone"`
	LeadPersonName string `json:"lead_person_name"`
	credentials
}

func (req *workingPointRequest) validate(creating bool) (model.WorkingPoint, string, string) {
	p := model.WorkingPoint{
		OrganisationID: req.OrganisationID,
		Name:           strings.TrimSpace(req.Name),
		Address:        strings.TrimSpace(req.Address),
		Country:        strings.TrimSpace(req.Country),
		Language:       strings.TrimSpace(req.Language),
		Phone:          strings.TrimSpace(req.Phone),
		BookingPhone:   strings.TrimSpace(req.BookingPhone),
		LeadPersonName: strings.TrimSpace(req.LeadPersonName),
	}
	if err := validate.Required("name", p.Name); err != nil {
		return p, "", err.Error()
	}
	tz, err := validate.Timezone(req.Timezone)
	if err != nil {
		return p, "", err.Error()
	}
	p.Timezone = tz
	cur, err := validate.Currency(req.Currency, defaultCurrency)
	if err != nil {
		return p, "", err.Error()
	}
	p.Currency = cur
	hash, msg := req.hash(creating)
	p.Username = req.Username
	return p, hash, msg
}

func (h *Handler) WorkingPoints(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("id") {
		h.GetWorkingPoint(w, r)
		return
	}
	p := principal(r)
	orgID, err := optionalID(r, "organisation_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !isSuper(p) {
		orgID = p.OrganisationID
	}
	if orgID == 0 {
		writeError(w, http.StatusBadRequest, "organisation_id is required")
		return
	}
	list, err := h.store.ListWorkingPoints(r.Context(), orgID)
	if err != nil {
		h.fail(w, r, err, "failed to list working points")
		return
	}
	if p.Role == model.RoleWorkingPoint || p.Role == model.RoleSpecialist {
		list = h.visiblePoints(r, p, list)
	}
	writeJSON(w, http.StatusOK, list)
}

// visiblePoints narrows a list for working point and specialist accounts.
func (h *Handler) visiblePoints(r *http.Request, p model.Principal, list []model.WorkingPoint) []model.WorkingPoint {
	out := []model.WorkingPoint{}
	for _, wp := range list {
		switch p.Role {
		case model.RoleWorkingPoint:
			if wp.ID == p.WorkingPointID {
				out = append(out, wp)
			}
		case model.RoleSpecialist:
			ok, err := h.store.SpecialistWorksAt(r.Context(), p.SpecialistID, wp.ID)
			if err != nil {
				h.logger.Error("specialist schedule lookup failed", "err", err)
				continue
			}
			if ok {
				out = append(out, wp)
			}
		}
	}
	return out
}

func (h *Handler) GetWorkingPoint(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wp, err := h.store.GetWorkingPoint(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to load working point")
		return
	}
	if !canManagePoint(principal(r), wp) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, wp)
}

func (h *Handler) CreateWorkingPoint(w http.ResponseWriter, r *http.Request) {
	var req workingPointRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := principal(r)
	if !isSuper(p) {
		req.OrganisationID = p.OrganisationID
	}
	if req.OrganisationID <= 0 {
		writeError(w, http.StatusBadRequest, "organisation_id is required")
		return
	}
	wp, hash, msg := req.validate(true)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	err := h.store.InTx(ctx, func(tx *storage.Store) error {
		if err := organisationExists(ctx, tx, wp.OrganisationID); err != nil {
			return err
		}
		if err := checkUsername(ctx, tx, wp.Username, "", 0); err != nil {
			return err
		}
		id, err := tx.CreateWorkingPoint(ctx, wp, hash)
		wp.ID = id
		return err
	})
	if err != nil {
		h.fail(w, r, err, "failed to create working point")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": wp.ID})
}

func (h *Handler) UpdateWorkingPoint(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	current, err := h.store.GetWorkingPoint(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to load working point")
		return
	}
	if !canManagePoint(principal(r), current) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req workingPointRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wp, hash, msg := req.validate(false)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	wp.ID = id
	wp.OrganisationID = current.OrganisationID

	ctx := r.Context()
	err = h.store.InTx(ctx, func(tx *storage.Store) error {
		if err := checkUsername(ctx, tx, wp.Username, model.RoleWorkingPoint, id); err != nil {
			return err
		}
		return tx.UpdateWorkingPoint(ctx, wp, hash)
	})
	if err != nil {
		h.fail(w, r, err, "failed to update working point")
		return
	}
	writeMessage(w, http.StatusOK, "updated")
}

func (h *Handler) DeleteWorkingPoint(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	wp, err := h.store.GetWorkingPoint(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to load working point")
		return
	}
	if !ownsOrganisation(principal(r), wp.OrganisationID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := h.store.DeleteWorkingPoint(r.Context(), id); err != nil {
		h.fail(w, r, err, "failed to delete working point")
		return
	}
	h.audit(r, "working_point.deleted", principal(r).Username, map[string]any{"working_point_id": id, "organisation_id": wp.OrganisationID})
	writeMessage(w, http.StatusOK, "deleted")
}
