package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/libs/auth"
	"github.com/md-rashed-zaman/bookingadmin/libs/gcal"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
	"golang.org/x/oauth2"
)

const (
	statePurpose = "gcal_connect"
	stateTTL     = 10 * time.Minute
)

func (h *Handler) calendarEnabled(w http.ResponseWriter) bool {
	if h.oauth == nil || !h.oauth.Enabled() || h.cfg.StateSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "google calendar not configured")
		return false
	}
	return true
}

// ConnectCalendar redirects to the Google consent screen.
func (h *Handler) ConnectCalendar(w http.ResponseWriter, r *http.Request) {
	if !h.calendarEnabled(w) {
		return
	}
	sp, ok := h.loadSpecialist(w, r, "specialist_id", true)
	if !ok {
		return
	}
	p := principal(r)
	state, err := auth.SignHS256(auth.NewClaims(strconv.FormatInt(sp.ID, 10), string(p.Role), statePurpose, stateTTL, h.now()), h.cfg.StateSecret)
	if err != nil {
		h.fail(w, r, err, "failed to start google authorization")
		return
	}
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

var callbackPage = template.Must(template.New("callback").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Google Calendar</title></head>
<body>
<h1>{{if .OK}}Google Calendar connected{{else}}Google Calendar not connected{{end}}</h1>
<p>{{.Message}}</p>
<p>You can close this window.</p>
</body></html>
`))

func renderCallback(w http.ResponseWriter, status int, ok bool, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = callbackPage.Execute(w, map[string]any{"OK": ok, "Message": msg})
}

// CalendarCallback completes the authorization-code flow. It is public: the
// signed state carries the specialist.
func (h *Handler) CalendarCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil || !h.oauth.Enabled() {
		renderCallback(w, http.StatusServiceUnavailable, false, "Google Calendar is not configured.")
		return
	}
	q := r.URL.Query()
	claims, err := auth.ParseAndVerifyHS256(q.Get("state"), h.cfg.StateSecret, statePurpose, h.now())
	if err != nil {
		renderCallback(w, http.StatusBadRequest, false, "The authorization link is invalid or has expired.")
		return
	}
	specialistID, err := strconv.ParseInt(claims.Sub, 10, 64)
	if err != nil {
		renderCallback(w, http.StatusBadRequest, false, "The authorization link is invalid.")
		return
	}
	if e := q.Get("error"); e != "" {
		h.logger.Info("google authorization declined", "specialist_id", specialistID, "error", e)
		renderCallback(w, http.StatusOK, false, "Access was not granted.")
		return
	}
	code := q.Get("code")
	if code == "" {
		renderCallback(w, http.StatusBadRequest, false, "Missing authorization code.")
		return
	}

	tok, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("google code exchange failed", "specialist_id", specialistID, "err", err)
		renderCallback(w, http.StatusBadGateway, false, "Google rejected the authorization. Please try again.")
		return
	}
	if err := h.store.UpsertCredentials(r.Context(), credentialsFromToken(specialistID, tok)); err != nil {
		h.logger.Error("store google credentials failed", "specialist_id", specialistID, "err", err)
		renderCallback(w, http.StatusInternalServerError, false, "Could not save the connection.")
		return
	}
	if h.calendar != nil {
		h.calendar.InvalidateCalendars(claims.Sub)
	}
	h.audit(r, "google_calendar.connected", "specialist:"+claims.Sub, map[string]any{"specialist_id": specialistID, "initiated_by": claims.Role})
	renderCallback(w, http.StatusOK, true, "Choose the calendar to sync bookings into from the back-office.")
}

func credentialsFromToken(specialistID int64, tok *oauth2.Token) model.CalendarCredentials {
	return model.CalendarCredentials{
		SpecialistID: specialistID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Status:       model.CredentialsConnected,
	}
}

// accessToken returns a valid token for the specialist, persisting a
// refreshed one.
func (h *Handler) accessToken(ctx context.Context, c model.CalendarCredentials) (string, error) {
	tok := &oauth2.Token{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken, TokenType: c.TokenType, Expiry: c.Expiry}
	fresh, changed, err := h.oauth.Refresh(ctx, tok)
	if err != nil {
		return "", err
	}
	if changed {
		if err := h.store.UpsertCredentials(ctx, credentialsFromToken(c.SpecialistID, fresh)); err != nil {
			return "", err
		}
	}
	return fresh.AccessToken, nil
}

func (h *Handler) connectedCredentials(w http.ResponseWriter, r *http.Request, specialistID int64) (model.CalendarCredentials, bool) {
	c, err := h.store.GetCredentials(r.Context(), specialistID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && c.Status != model.CredentialsConnected) {
		writeError(w, http.StatusConflict, "google calendar not connected")
		return c, false
	}
	if err != nil {
		h.fail(w, r, err, "failed to load google credentials")
		return c, false
	}
	return c, true
}

func (h *Handler) ListCalendars(w http.ResponseWriter, r *http.Request) {
	if !h.calendarEnabled(w) {
		return
	}
	if h.calendar == nil {
		writeError(w, http.StatusServiceUnavailable, "google calendar not configured")
		return
	}
	sp, ok := h.loadSpecialist(w, r, "specialist_id", true)
	if !ok {
		return
	}
	c, ok := h.connectedCredentials(w, r, sp.ID)
	if !ok {
		return
	}
	token, err := h.accessToken(r.Context(), c)
	if err != nil {
		h.googleFailure(w, r, sp.ID, err)
		return
	}
	cals, err := h.calendar.ListCalendars(r.Context(), token, strconv.FormatInt(sp.ID, 10))
	if err != nil {
		h.googleFailure(w, r, sp.ID, err)
		return
	}
	if cals == nil {
		cals = []gcal.Calendar{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"selected": c.CalendarID, "calendars": cals})
}

// googleFailure marks revoked grants and answers 502 for other upstream
// errors.
func (h *Handler) googleFailure(w http.ResponseWriter, r *http.Request, specialistID int64, err error) {
	if gcal.IsInvalidGrant(err) {
		if rerr := h.store.RevokeCredentials(r.Context(), specialistID); rerr != nil && !errors.Is(rerr, storage.ErrNotFound) {
			h.logger.Error("mark google credentials revoked failed", "specialist_id", specialistID, "err", rerr)
		}
		writeError(w, http.StatusConflict, "google access was revoked, connect again")
		return
	}
	h.logger.Error("google calendar request failed", "specialist_id", specialistID, "err", err)
	writeError(w, http.StatusBadGateway, "google calendar request failed")
}

type calendarSelection struct {
	SpecialistID int64  `json:"specialist_id"`
	CalendarID   string `json:"calendar_id"`
	CalendarName string `json:"calendar_name"`
}

// SelectCalendar sets the target calendar and queues existing future
// bookings for creation there.
func (h *Handler) SelectCalendar(w http.ResponseWriter, r *http.Request) {
	var req calendarSelection
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.SpecialistID <= 0 || req.CalendarID == "" {
		writeError(w, http.StatusBadRequest, "specialist_id and calendar_id are required")
		return
	}
	if _, ok := h.specialistByID(w, r, req.SpecialistID, true); !ok {
		return
	}
	if _, ok := h.connectedCredentials(w, r, req.SpecialistID); !ok {
		return
	}
	var queued int64
	ctx := r.Context()
	err := h.store.InTx(ctx, func(tx *storage.Store) error {
		if err := tx.SelectCalendar(ctx, req.SpecialistID, req.CalendarID, req.CalendarName); err != nil {
			return err
		}
		var err error
		queued, err = tx.EnqueueFutureBookings(ctx, req.SpecialistID)
		return err
	})
	if err != nil {
		h.fail(w, r, err, "failed to select calendar")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calendar_id": req.CalendarID, "queued": queued})
}

type calendarStatus struct {
	Connected    bool             `json:"connected"`
	Status       string           `json:"status,omitempty"`
	CalendarID   string           `json:"calendar_id,omitempty"`
	CalendarName string           `json:"calendar_name,omitempty"`
	UpdatedAt    *time.Time       `json:"updated_at,omitempty"`
	Queue        map[string]int64 `json:"queue"`
}

func (h *Handler) CalendarStatus(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.loadSpecialist(w, r, "specialist_id", false)
	if !ok {
		return
	}
	var st calendarStatus
	c, err := h.store.GetCredentials(r.Context(), sp.ID)
	switch {
	case err == nil:
		st.Connected = c.Status == model.CredentialsConnected
		st.Status, st.CalendarID, st.CalendarName = c.Status, c.CalendarID, c.CalendarName
		st.UpdatedAt = &c.UpdatedAt
	case !errors.Is(err, storage.ErrNotFound):
		h.fail(w, r, err, "failed to load google credentials")
		return
	}
	if st.Queue, err = h.store.SyncCounts(r.Context(), sp.ID); err != nil {
		h.fail(w, r, err, "failed to load sync queue")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type specialistRef struct {
	SpecialistID int64 `json:"specialist_id"`
}

func (h *Handler) specialistFromBody(w http.ResponseWriter, r *http.Request) (model.Specialist, bool) {
	var req specialistRef
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return model.Specialist{}, false
	}
	if req.SpecialistID <= 0 {
		writeError(w, http.StatusBadRequest, "specialist_id is required")
		return model.Specialist{}, false
	}
	return h.specialistByID(w, r, req.SpecialistID, true)
}

// DisconnectCalendar revokes at Google best effort, then forgets the grant
// and drops pending sync rows.
func (h *Handler) DisconnectCalendar(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.specialistFromBody(w, r)
	if !ok {
		return
	}
	c, err := h.store.GetCredentials(r.Context(), sp.ID)
	if err != nil {
		h.fail(w, r, err, "failed to load google credentials")
		return
	}
	if h.oauth != nil {
		token := c.RefreshToken
		if token == "" {
			token = c.AccessToken
		}
		if err := h.oauth.Revoke(r.Context(), token); err != nil {
			h.logger.Warn("google revoke failed", "specialist_id", sp.ID, "err", err)
		}
	}
	var dropped int64
	ctx := r.Context()
	err = h.store.InTx(ctx, func(tx *storage.Store) error {
		if err := tx.DeleteCredentials(ctx, sp.ID); err != nil {
			return err
		}
		dropped, err = tx.DropPendingSync(ctx, sp.ID)
		return err
	})
	if err != nil {
		h.fail(w, r, err, "failed to disconnect google calendar")
		return
	}
	if h.calendar != nil {
		h.calendar.InvalidateCalendars(strconv.FormatInt(sp.ID, 10))
	}
	h.audit(r, "google_calendar.disconnected", principal(r).Username, map[string]any{"specialist_id": sp.ID})
	writeJSON(w, http.StatusOK, map[string]any{"dropped": dropped})
}

func (h *Handler) ResyncCalendar(w http.ResponseWriter, r *http.Request) {
	sp, ok := h.specialistFromBody(w, r)
	if !ok {
		return
	}
	c, ok := h.connectedCredentials(w, r, sp.ID)
	if !ok {
		return
	}
	if c.CalendarID == "" {
		writeError(w, http.StatusConflict, "no calendar selected")
		return
	}
	queued, err := h.store.EnqueueFutureBookings(r.Context(), sp.ID)
	if err != nil {
		h.fail(w, r, err, "failed to queue resync")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queued": queued})
}

func (h *Handler) SyncQueue(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", model.SyncPending, model.SyncDone, model.SyncFailed:
	default:
		writeError(w, http.StatusBadRequest, "status must be pending, done or failed")
		return
	}
	specialistID, err := optionalID(r, "specialist_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset := paging(r)
	rows, err := h.store.ListSyncQueue(r.Context(), status, specialistID, limit, offset)
	if err != nil {
		h.fail(w, r, err, "failed to list sync queue")
		return
	}
	if rows == nil {
		rows = []model.SyncRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) RetrySync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := h.store.RetrySync(r.Context(), req.ID); err != nil {
		h.fail(w, r, err, "failed to retry sync row")
		return
	}
	writeMessage(w, http.StatusOK, "queued")
}
