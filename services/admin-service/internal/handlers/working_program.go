package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/schedule"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
)

var errShiftOverlap = errors.New("shifts overlap the specialist's program at another working point")

// programTarget loads and authorises the specialist/working point pair a
// working program change applies to.
func (h *Handler) programTarget(w http.ResponseWriter, r *http.Request, specialistID, pointID int64) bool {
	wp, err := h.store.GetWorkingPoint(r.Context(), pointID)
	if err != nil {
		h.fail(w, r, err, "failed to load working point")
		return false
	}
	if !canManagePoint(principal(r), wp) {
		writeError(w, http.StatusForbidden, "forbidden")
		return false
	}
	sp, err := h.store.GetSpecialist(r.Context(), specialistID)
	if err != nil {
		h.fail(w, r, err, "failed to load specialist")
		return false
	}
	if sp.OrganisationID != wp.OrganisationID {
		writeError(w, http.StatusBadRequest, "specialist and working point belong to different organisations")
		return false
	}
	return true
}

func (h *Handler) WorkingProgram(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.loadSpecialist(w, r, "specialist_id", false)
	if !ok {
		return
	}
	pointID, err := optionalID(r, "working_point_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	days, err := h.store.ListWorkingProgram(r.Context(), sp.ID, pointID)
	if err != nil {
		h.fail(w, r, err, "failed to load working program")
		return
	}
	if days == nil {
		days = []model.WorkingDay{}
	}
	writeJSON(w, http.StatusOK, days)
}

func (h *Handler) PutWorkingDay(w http.ResponseWriter, r *http.Request) {
	var day model.WorkingDay
	if err := decodeJSON(r, &day); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if day.SpecialistID <= 0 || day.WorkingPointID <= 0 {
		writeError(w, http.StatusBadRequest, "specialist_id and working_point_id are required")
		return
	}
	day.Shifts = schedule.Normalize(day.Shifts)
	if err := schedule.ValidateDay(day); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.programTarget(w, r, day.SpecialistID, day.WorkingPointID) {
		return
	}

	ctx := r.Context()
	err := h.store.InTx(ctx, func(tx *storage.Store) error {
		others, err := tx.OtherPointDays(ctx, day.SpecialistID, day.DayOfWeek, day.WorkingPointID)
		if err != nil {
			return err
		}
		for _, o := range others {
			if schedule.Overlaps(o.Shifts, day.Shifts) {
				return errShiftOverlap
			}
		}
		return tx.UpsertWorkingDay(ctx, day)
	})
	if errors.Is(err, errShiftOverlap) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.fail(w, r, err, "failed to save working program")
		return
	}
	writeJSON(w, http.StatusOK, day)
}

// DeleteWorkingDays removes one day, or the whole program at the working
// point when day_of_week is omitted.
func (h *Handler) DeleteWorkingDays(w http.ResponseWriter, r *http.Request) {
	specialistID, err := queryID(r, "specialist_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pointID, err := queryID(r, "working_point_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	day := 0
	if raw := r.URL.Query().Get("day_of_week"); raw != "" {
		day, err = strconv.Atoi(raw)
		if err != nil || day < 1 || day > 7 {
			writeError(w, http.StatusBadRequest, schedule.ErrInvalidDay.Error())
			return
		}
	}
	if !h.programTarget(w, r, specialistID, pointID) {
		return
	}
	n, err := h.store.DeleteWorkingDays(r.Context(), specialistID, pointID, day)
	if err != nil {
		h.fail(w, r, err, "failed to delete working program")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}
