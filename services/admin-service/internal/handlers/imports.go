package handlers

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Import accepts the CSV as a multipart "file" field or as the raw body.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxImportBytes)

	var src io.Reader = r.Body
	var tooLarge *http.MaxBytesError
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()
		src = file
	}

	res, err := h.importer.Import(r.Context(), src, dryRun)
	var malformed *csv.ParseError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	case errors.As(err, &malformed):
		writeError(w, http.StatusBadRequest, "malformed csv: "+malformed.Error())
		return
	case err != nil:
		h.fail(w, r, err, "import failed")
		return
	}
	if res.Committed {
		h.audit(r, "import.committed", principal(r).Username, map[string]any{
			"batch_id": res.BatchID,
			"created":  res.Created,
		})
	}
	status := http.StatusOK
	if len(res.Errors) > 0 {
		status = http.StatusUnprocessableEntity
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeBody(w, envelope{Success: len(res.Errors) == 0, Message: importMessage(res.Committed, res.DryRun, len(res.Errors)), Data: res})
}

func importMessage(committed, dryRun bool, errs int) string {
	switch {
	case errs > 0:
		return strconv.Itoa(errs) + " row errors, nothing imported"
	case dryRun:
		return "dry run passed, nothing imported"
	case committed:
		return "imported"
	}
	return ""
}
