package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/sessions"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/validate"
)

const SessionCookie = "bo_session"

type ctxKey int

const principalKey ctxKey = iota

func ContextWithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(model.Principal)
	return p, ok
}

func principal(r *http.Request) model.Principal {
	p, _ := PrincipalFromContext(r.Context())
	return p
}

func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}

// authed resolves the session and enforces roles. No roles means any
// logged-in account.
func (h *Handler) authed(next http.HandlerFunc, roles ...model.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := h.sessions.Resolve(r.Context(), sessionToken(r))
		if errors.Is(err, sessions.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		if err != nil {
			h.fail(w, r, err, "failed to load session")
			return
		}
		if len(roles) > 0 && !hasRole(s.Principal.Role, roles) {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r.WithContext(ContextWithPrincipal(r.Context(), s.Principal)))
	})
}

func hasRole(role model.Role, roles []model.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	Principal model.Principal `json:"principal"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}

	acc, err := h.store.FindAccount(r.Context(), req.Username)
	if errors.Is(err, storage.ErrNotFound) {
		h.logger.Info("login rejected", "username", req.Username, "reason", "unknown")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		h.fail(w, r, err, "failed to login")
		return
	}
	if !validate.CheckPassword(acc.PasswordHash, req.Password) {
		h.logger.Info("login rejected", "username", req.Username, "reason", "password")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	p := storage.PrincipalFor(acc)
	token, s, err := h.sessions.Create(r.Context(), p)
	if err != nil {
		h.fail(w, r, err, "failed to create session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	h.audit(r, "auth.login", p.Username, map[string]any{"role": p.Role})
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: s.ExpiresAt, Principal: p})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context(), sessionToken(r)); err != nil {
		h.fail(w, r, err, "failed to logout")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, principal(r))
}

// audit records an admin action. Failures are logged and never fail the
// request that triggered them.
func (h *Handler) audit(r *http.Request, eventType, actor string, metadata map[string]any) {
	if err := h.store.RecordAudit(r.Context(), eventType, actor, metadata); err != nil {
		h.logger.Error("audit write failed", "event_type", eventType, "err", err)
	}
}
