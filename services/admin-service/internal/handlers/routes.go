package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/bookingadmin/libs/httpx"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
)

const webhookPrefix = "/api/v1/webhooks/"

var (
	superOnly = []model.Role{model.RoleSuperAdmin}
	owners    = []model.Role{model.RoleSuperAdmin, model.RoleOrganisation}
	managers  = []model.Role{model.RoleSuperAdmin, model.RoleOrganisation, model.RoleWorkingPoint}
)

// Register mounts the back-office API on mux. Role gates are coarse; row
// level scope is checked inside each handler.
func (h *Handler) Register(mux *http.ServeMux) {
	login := httpx.RateLimit(h.loginLimiter, httpx.LimitOptions{Scope: "login", FailOpen: true, Logger: h.logger})

	routes := map[string]http.Handler{
		"/api/v1/auth/login":  methods{http.MethodPost: login(http.HandlerFunc(h.Login))},
		"/api/v1/auth/logout": methods{http.MethodPost: http.HandlerFunc(h.Logout)},
		"/api/v1/auth/me":     methods{http.MethodGet: h.authed(h.Me)},

		"/api/v1/organisations": methods{
			http.MethodGet:    h.authed(h.Organisations),
			http.MethodPost:   h.authed(h.CreateOrganisation, superOnly...),
			http.MethodPut:    h.authed(h.UpdateOrganisation, owners...),
			http.MethodDelete: h.authed(h.DeleteOrganisation, superOnly...),
		},
		"/api/v1/working-points": methods{
			http.MethodGet:    h.authed(h.WorkingPoints),
			http.MethodPost:   h.authed(h.CreateWorkingPoint, owners...),
			http.MethodPut:    h.authed(h.UpdateWorkingPoint, managers...),
			http.MethodDelete: h.authed(h.DeleteWorkingPoint, owners...),
		},
		"/api/v1/specialists": methods{
			http.MethodGet:    h.authed(h.Specialists),
			http.MethodPost:   h.authed(h.CreateSpecialist, owners...),
			http.MethodPut:    h.authed(h.UpdateSpecialist),
			http.MethodDelete: h.authed(h.DeleteSpecialist, owners...),
		},
		"/api/v1/working-program": methods{
			http.MethodGet:    h.authed(h.WorkingProgram),
			http.MethodPut:    h.authed(h.PutWorkingDay, managers...),
			http.MethodDelete: h.authed(h.DeleteWorkingDays, managers...),
		},
		"/api/v1/services": methods{
			http.MethodGet:    h.authed(h.Services),
			http.MethodPost:   h.authed(h.CreateService, managers...),
			http.MethodPut:    h.authed(h.UpdateService, managers...),
			http.MethodDelete: h.authed(h.DeleteService, managers...),
		},
		"/api/v1/services/suspend": methods{http.MethodPost: h.authed(h.SuspendService, managers...)},

		"/api/v1/bookings":           methods{http.MethodGet: h.authed(h.Bookings)},
		"/api/v1/bookings/cancel":    methods{http.MethodPost: h.authed(h.CancelBooking)},
		"/api/v1/statistics":         methods{http.MethodGet: h.authed(h.Statistics)},
		"/api/v1/statistics/export":  methods{http.MethodGet: h.authed(h.ExportStatistics)},
		"/api/v1/import":             methods{http.MethodPost: h.authed(h.Import, superOnly...)},
		"/api/v1/audit":              methods{http.MethodGet: h.authed(h.Audit, superOnly...)},
		"/api/v1/sms/test":           methods{http.MethodPost: h.authed(h.TestSMS, superOnly...)},
		"/api/v1/workers":            methods{http.MethodGet: h.authed(h.Workers, superOnly...)},
		"/api/v1/workers/action":     methods{http.MethodPost: h.authed(h.WorkerAction, superOnly...)},
		"/api/v1/webhook-logs/purge": methods{http.MethodPost: h.authed(h.PurgeWebhookLogs, superOnly...)},
		"/api/v1/webhook-logs": methods{
			http.MethodGet:    h.authed(h.WebhookLogs, superOnly...),
			http.MethodDelete: h.authed(h.DeleteWebhookLog, superOnly...),
		},

		"/api/v1/google-calendar/connect":     methods{http.MethodGet: h.authed(h.ConnectCalendar)},
		"/api/v1/google-calendar/callback":    methods{http.MethodGet: http.HandlerFunc(h.CalendarCallback)},
		"/api/v1/google-calendar/calendars":   methods{http.MethodGet: h.authed(h.ListCalendars)},
		"/api/v1/google-calendar/calendar":    methods{http.MethodPut: h.authed(h.SelectCalendar)},
		"/api/v1/google-calendar/status":      methods{http.MethodGet: h.authed(h.CalendarStatus)},
		"/api/v1/google-calendar/disconnect":  methods{http.MethodPost: h.authed(h.DisconnectCalendar)},
		"/api/v1/google-calendar/resync":      methods{http.MethodPost: h.authed(h.ResyncCalendar)},
		"/api/v1/google-calendar/queue":       methods{http.MethodGet: h.authed(h.SyncQueue, superOnly...)},
		"/api/v1/google-calendar/queue/retry": methods{http.MethodPost: h.authed(h.RetrySync, superOnly...)},
	}
	for _, kind := range []struct {
		path string
		kind storage.TimeOffKind
	}{
		{"/api/v1/time-off/specialists", storage.SpecialistTimeOff},
		{"/api/v1/time-off/working-points", storage.WorkingPointTimeOff},
	} {
		t := h.TimeOff(kind.kind)
		routes[kind.path] = methods{
			http.MethodGet:    h.authed(t.List),
			http.MethodPost:   h.authed(t.Create),
			http.MethodDelete: h.authed(t.Delete),
		}
	}

	h.paths = make(map[string]struct{}, len(routes))
	for path, handler := range routes {
		mux.Handle(path, handler)
		h.paths[path] = struct{}{}
	}
	mux.Handle("POST "+webhookPrefix+"{source}", http.HandlerFunc(h.ReceiveWebhook))
}

// Route collapses a request path to a bounded label for metrics. Call it
// after Register.
func (h *Handler) Route(r *http.Request) string {
	p := r.URL.Path
	if strings.HasPrefix(p, webhookPrefix) {
		return webhookPrefix + "{source}"
	}
	if _, ok := h.paths[p]; ok {
		return p
	}
	switch p {
	case "/healthz", "/readyz", "/metrics":
		return p
	}
	return "other"
}
