package handlers

import (
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/workers"
)

func (h *Handler) Workers(w http.ResponseWriter, r *http.Request) {
	st, err := h.workers.Status(r.Context())
	if errors.Is(err, workers.ErrCommand) {
		writeError(w, http.StatusBadGateway, "failed to read worker status")
		return
	}
	if err != nil {
		h.fail(w, r, err, "failed to read worker status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type workerAction struct {
	Name   string `json:"name"`
	Action string `json:"action"`
}

func (h *Handler) WorkerAction(w http.ResponseWriter, r *http.Request) {
	var req workerAction
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := h.workers.Do(r.Context(), req.Name, req.Action)
	switch {
	case errors.Is(err, workers.ErrUnknownWorker), errors.Is(err, workers.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, workers.ErrNoProcess):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, workers.ErrCommand):
		h.audit(r, "worker.action_failed", principal(r).Username, map[string]any{"worker": req.Name, "action": req.Action})
		writeError(w, http.StatusBadGateway, "worker command failed")
		return
	case err != nil:
		h.fail(w, r, err, "worker action failed")
		return
	}
	h.audit(r, "worker.action", principal(r).Username, map[string]any{"worker": req.Name, "action": req.Action})
	writeMessage(w, http.StatusOK, req.Action+" applied to "+req.Name)
}
