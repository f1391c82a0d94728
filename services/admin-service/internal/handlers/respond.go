package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/bookingadmin/libs/httpx"
	"github.com/md-rashed-zaman/bookingadmin/libs/runtime"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: status < 400, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: status < 400, Message: msg})
}

func writeBody(w http.ResponseWriter, e envelope) {
	_ = json.NewEncoder(w).Encode(e)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeMessage(w, status, msg)
}

// fail maps storage errors to client responses. Anything unexpected is
// logged, reported to Sentry and answered with msg; the cause never reaches
// the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, storage.ErrInvalidReference):
		writeError(w, http.StatusBadRequest, "invalid reference")
	case errors.Is(err, storage.ErrInUse):
		writeError(w, http.StatusConflict, "has future bookings")
	case errors.Is(err, errUsernameTaken):
		writeError(w, http.StatusConflict, "username already exists")
	default:
		h.logger.Error(msg,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		runtime.CaptureError(r.Context(), err, map[string]any{"path": r.URL.Path})
		writeError(w, http.StatusInternalServerError, msg)
	}
}

var errUsernameTaken = errors.New("username taken")

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid json body")
	}
	return nil
}

// queryID reads a positive int64 query parameter.
func queryID(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return id, nil
}

// optionalID is like queryID but returns zero when the parameter is absent.
func optionalID(r *http.Request, key string) (int64, error) {
	if strings.TrimSpace(r.URL.Query().Get(key)) == "" {
		return 0, nil
	}
	return queryID(r, key)
}

func paging(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// methods dispatches by HTTP method and answers 405 otherwise.
type methods map[string]http.Handler

func (m methods) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := m[r.Method]; ok {
		h.ServeHTTP(w, r)
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
