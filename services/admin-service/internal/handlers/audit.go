package handlers

import (
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.store.ListAudit(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err, "failed to list audit events")
		return
	}
	if events == nil {
		events = []model.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
