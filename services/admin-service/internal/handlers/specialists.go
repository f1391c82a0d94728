package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/validate"
)

type specialistRequest struct {
	OrganisationID int64  `json:"organisation_id"`
	Name           string `json:"name"`
	Speciality     string `json:"speciality"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	credentials
}

func (req *specialistRequest) validate(creating bool) (model.Specialist, string, string) {
	sp := model.Specialist{
		OrganisationID: req.OrganisationID,
		Name:           strings.TrimSpace(req.Name),
		Speciality:     strings.TrimSpace(req.Speciality),
		Email:          strings.TrimSpace(req.Email),
		Phone:          strings.TrimSpace(req.Phone),
	}
	if err := validate.Required("name", sp.Name); err != nil {
		return sp, "", err.Error()
	}
	if err := validate.Email(sp.Email); err != nil {
		return sp, "", err.Error()
	}
	hash, msg := req.hash(creating)
	sp.Username = req.Username
	return sp, hash, msg
}

// loadSpecialist fetches the specialist named by the id query parameter
// and checks read or write access. It writes the response on failure.
func (h *Handler) loadSpecialist(w http.ResponseWriter, r *http.Request, param string, write bool) (model.Specialist, bool) {
	id, err := queryID(r, param)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return model.Specialist{}, false
	}
	return h.specialistByID(w, r, id, write)
}

func (h *Handler) specialistByID(w http.ResponseWriter, r *http.Request, id int64, write bool) (model.Specialist, bool) {
	sp, err := h.store.GetSpecialist(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to load specialist")
		return sp, false
	}
	p := principal(r)
	allowed := canManageSpecialist(p, sp)
	if !allowed && !write {
		allowed, err = h.canViewSpecialist(r.Context(), p, sp)
		if err != nil {
			h.fail(w, r, err, "failed to load specialist")
			return sp, false
		}
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "forbidden")
		return sp, false
	}
	return sp, true
}

func (h *Handler) Specialists(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("id") {
		sp, ok := h.loadSpecialist(w, r, "id", false)
		if ok {
			writeJSON(w, http.StatusOK, sp)
		}
		return
	}
	p := principal(r)
	orgID, err := optionalID(r, "organisation_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pointID, err := optionalID(r, "working_point_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch p.Role {
	case model.RoleSuperAdmin:
	case model.RoleOrganisation:
		orgID = p.OrganisationID
	case model.RoleWorkingPoint:
		orgID, pointID = p.OrganisationID, p.WorkingPointID
	case model.RoleSpecialist:
		sp, err := h.store.GetSpecialist(r.Context(), p.SpecialistID)
		if err != nil {
			h.fail(w, r, err, "failed to list specialists")
			return
		}
		writeJSON(w, http.StatusOK, []model.Specialist{sp})
		return
	}
	if orgID == 0 {
		writeError(w, http.StatusBadRequest, "organisation_id is required")
		return
	}
	list, err := h.store.ListSpecialists(r.Context(), orgID, pointID)
	if err != nil {
		h.fail(w, r, err, "failed to list specialists")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) CreateSpecialist(w http.ResponseWriter, r *http.Request) {
	var req specialistRequest
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
	sp, hash, msg := req.validate(true)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	err := h.store.InTx(ctx, func(tx *storage.Store) error {
		if err := organisationExists(ctx, tx, sp.OrganisationID); err != nil {
			return err
		}
		if err := checkUsername(ctx, tx, sp.Username, "", 0); err != nil {
			return err
		}
		id, err := tx.CreateSpecialist(ctx, sp, hash)
		sp.ID = id
		return err
	})
	if err != nil {
		h.fail(w, r, err, "failed to create specialist")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": sp.ID})
}

func (h *Handler) UpdateSpecialist(w http.ResponseWriter, r *http.Request) {
	current, ok := h.loadSpecialist(w, r, "id", true)
	if !ok {
		return
	}
	var req specialistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sp, hash, msg := req.validate(false)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	sp.ID = current.ID
	sp.OrganisationID = current.OrganisationID

	ctx := r.Context()
	err := h.store.InTx(ctx, func(tx *storage.Store) error {
		if err := checkUsername(ctx, tx, sp.Username, model.RoleSpecialist, sp.ID); err != nil {
			return err
		}
		return tx.UpdateSpecialist(ctx, sp, hash)
	})
	if err != nil {
		h.fail(w, r, err, "failed to update specialist")
		return
	}
	writeMessage(w, http.StatusOK, "updated")
}

func (h *Handler) DeleteSpecialist(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.loadSpecialist(w, r, "id", true)
	if !ok {
		return
	}
	if !ownsOrganisation(principal(r), sp.OrganisationID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := h.store.DeleteSpecialist(r.Context(), sp.ID); err != nil {
		h.fail(w, r, err, "failed to delete specialist")
		return
	}
	h.audit(r, "specialist.deleted", principal(r).Username, map[string]any{"specialist_id": sp.ID, "organisation_id": sp.OrganisationID})
	writeMessage(w, http.StatusOK, "deleted")
}
