package handlers

import (
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/bookingadmin/libs/httpx"
	"github.com/md-rashed-zaman/bookingadmin/libs/metrics"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/webhooks"
)

var sourcePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ReceiveWebhook logs an inbound delivery. Deliveries with a bad signature
// are kept as rejected so operators can see them.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	if !sourcePattern.MatchString(source) {
		writeError(w, http.StatusNotFound, "unknown webhook source")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	valid := webhooks.Verify(h.cfg.WebhookSecret, r.Header.Get(webhooks.SignatureHeader), body)
	metrics.WebhooksReceived.WithLabelValues(source, strconv.FormatBool(valid)).Inc()

	entry := model.WebhookLog{
		CorrelationID: uuid.NewString(),
		Source:        source,
		EventType:     webhooks.EventType(r.Header, body),
		Headers:       webhooks.FilterHeaders(r.Header),
		Payload:       webhooks.Text(body),
		RemoteAddr:    httpx.ClientIP(r),
		Status:        model.WebhookReceived,
	}
	if !valid {
		entry.Status = model.WebhookRejected
	}
	id, err := h.store.InsertWebhookLog(r.Context(), entry)
	if err != nil {
		h.fail(w, r, err, "failed to store webhook")
		return
	}
	h.logger.Info("webhook received",
		"source", source,
		"event_type", entry.EventType,
		"status", entry.Status,
		"correlation_id", entry.CorrelationID,
	)
	if !valid {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "correlation_id": entry.CorrelationID})
}

func (h *Handler) WebhookLogs(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("id") {
		h.GetWebhookLog(w, r)
		return
	}
	q := r.URL.Query()
	f := model.WebhookFilter{Source: q.Get("source"), Status: q.Get("status")}
	switch f.Status {
	case "", model.WebhookReceived, model.WebhookRejected:
	default:
		writeError(w, http.StatusBadRequest, "status must be received or rejected")
		return
	}
	var err error
	if f.From, f.To, err = dateRange(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.Limit, f.Offset = paging(r)
	logs, err := h.store.ListWebhookLogs(r.Context(), f)
	if err != nil {
		h.fail(w, r, err, "failed to list webhook logs")
		return
	}
	if logs == nil {
		logs = []model.WebhookLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) GetWebhookLog(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l, err := h.store.GetWebhookLog(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to load webhook log")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) DeleteWebhookLog(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.DeleteWebhookLog(r.Context(), id); err != nil {
		h.fail(w, r, err, "failed to delete webhook log")
		return
	}
	writeMessage(w, http.StatusOK, "deleted")
}

func (h *Handler) PurgeWebhookLogs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OlderThanDays int `json:"older_than_days"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OlderThanDays < 1 {
		writeError(w, http.StatusBadRequest, "older_than_days must be at least 1")
		return
	}
	before := h.now().Add(-time.Duration(req.OlderThanDays) * 24 * time.Hour)
	n, err := h.store.PurgeWebhookLogs(r.Context(), before)
	if err != nil {
		h.fail(w, r, err, "failed to purge webhook logs")
		return
	}
	metrics.PurgedRows.WithLabelValues("webhook_logs").Add(float64(n))
	h.audit(r, "webhook_logs.purged", principal(r).Username, map[string]any{"older_than_days": req.OlderThanDays, "deleted": n})
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}
