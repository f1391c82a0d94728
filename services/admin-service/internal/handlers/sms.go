package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/bookingadmin/libs/sms"
)

type smsTest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// TestSMS sends one message through the configured provider. The outcome is
// audited either way.
func (h *Handler) TestSMS(w http.ResponseWriter, r *http.Request) {
	var req smsTest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.To, req.Body = strings.TrimSpace(req.To), strings.TrimSpace(req.Body)
	if req.To == "" || req.Body == "" {
		writeError(w, http.StatusBadRequest, "to and body are required")
		return
	}
	if len(req.Body) > 480 {
		writeError(w, http.StatusBadRequest, "body must be at most 480 characters")
		return
	}

	err := h.sms.Send(r.Context(), req.To, req.Body)
	meta := map[string]any{"to": req.To, "provider": h.sms.ProviderID(), "ok": err == nil}
	if err != nil {
		meta["error"] = err.Error()
	}
	h.audit(r, "sms.test", principal(r).Username, meta)

	switch {
	case errors.Is(err, sms.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "sms provider not configured")
	case err != nil:
		h.logger.Warn("test sms failed", "provider", h.sms.ProviderID(), "err", err)
		writeError(w, http.StatusBadGateway, "sms provider rejected the message")
	default:
		writeMessage(w, http.StatusOK, "sent via "+h.sms.ProviderID())
	}
}
