package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/validate"
)

type organisationRequest struct {
	Alias       string `json:"alias"`
	CompanyName string `json:"company_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Country     string `json:"country"`
	credentials
}

func (req *organisationRequest) validate(creating bool) (model.Organisation, string, string) {
	o := model.Organisation{
		Alias:       strings.ToLower(strings.TrimSpace(req.Alias)),
		CompanyName: strings.TrimSpace(req.CompanyName),
		Email:       strings.TrimSpace(req.Email),
		Phone:       strings.TrimSpace(req.Phone),
		Country:     strings.TrimSpace(req.Country),
	}
	if err := validate.Alias(o.Alias); err != nil {
		return o, "", err.Error()
	}
	if err := validate.Required("company_name", o.CompanyName); err != nil {
		return o, "", err.Error()
	}
	if err := validate.Email(o.Email); err != nil {
		return o, "", err.Error()
	}
	hash, msg := req.hash(creating)
	o.Username = req.Username
	return o, hash, msg
}

// Organisations serves GET (list, or one with ?id=) for the collection.
func (h *Handler) Organisations(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("id") {
		h.GetOrganisation(w, r)
		return
	}
	p := principal(r)
	if !isSuper(p) {
		o, err := h.store.GetOrganisation(r.Context(), p.OrganisationID)
		if err != nil {
			h.fail(w, r, err, "failed to load organisation")
			return
		}
		writeJSON(w, http.StatusOK, []model.Organisation{o})
		return
	}
	limit, offset := paging(r)
	list, err := h.store.ListOrganisations(r.Context(), strings.TrimSpace(r.URL.Query().Get("search")), limit, offset)
	if err != nil {
		h.fail(w, r, err, "failed to list organisations")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) GetOrganisation(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ownsOrganisation(principal(r), id) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	o, err := h.store.GetOrganisation(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to load organisation")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) CreateOrganisation(w http.ResponseWriter, r *http.Request) {
	var req organisationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, hash, msg := req.validate(true)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	err := h.store.InTx(ctx, func(tx *storage.Store) error {
		if err := checkUsername(ctx, tx, o.Username, "", 0); err != nil {
			return err
		}
		id, err := tx.CreateOrganisation(ctx, o, hash)
		if err != nil {
			return err
		}
		o.ID = id
		return tx.Emit(ctx, "organisation", strconv.FormatInt(id, 10), "admin.organisation.created.v1", o)
	})
	if err != nil {
		h.fail(w, r, err, "failed to create organisation")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": o.ID})
}

func (h *Handler) UpdateOrganisation(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ownsOrganisation(principal(r), id) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req organisationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, hash, msg := req.validate(false)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	o.ID = id

	ctx := r.Context()
	err = h.store.InTx(ctx, func(tx *storage.Store) error {
		if err := checkUsername(ctx, tx, o.Username, model.RoleOrganisation, id); err != nil {
			return err
		}
		if err := tx.UpdateOrganisation(ctx, o, hash); err != nil {
			return err
		}
		return tx.Emit(ctx, "organisation", strconv.FormatInt(id, 10), "admin.organisation.updated.v1", o)
	})
	if err != nil {
		h.fail(w, r, err, "failed to update organisation")
		return
	}
	writeMessage(w, http.StatusOK, "updated")
}

func (h *Handler) DeleteOrganisation(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.DeleteOrganisation(r.Context(), id); err != nil {
		h.fail(w, r, err, "failed to delete organisation")
		return
	}
	h.audit(r, "organisation.deleted", principal(r).Username, map[string]any{"organisation_id": id})
	writeMessage(w, http.StatusOK, "deleted")
}
