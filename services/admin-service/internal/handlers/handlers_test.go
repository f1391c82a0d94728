package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bookingadmin/libs/auth"
	"github.com/md-rashed-zaman/bookingadmin/libs/gcal"
	"github.com/md-rashed-zaman/bookingadmin/libs/httpx"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/sessions"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/validate"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/webhooks"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/workers"
)

type testServer struct {
	h        *Handler
	mux      *http.ServeMux
	mock     pgxmock.PgxPoolIface
	sessions *sessions.Manager
}

func newTestServer(t *testing.T, opts ...func(*Deps)) *testServer {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mgr := sessions.NewManager(sessions.NewMemoryBackend(), time.Hour)
	d := Deps{
		Store:    storage.New(mock),
		Sessions: mgr,
		Config:   Config{StateSecret: "state-secret"},
	}
	for _, o := range opts {
		o(&d)
	}
	h := New(d)
	mux := http.NewServeMux()
	h.Register(mux)
	return &testServer{h: h, mux: mux, mock: mock, sessions: mgr}
}

func (s *testServer) token(t *testing.T, p model.Principal) string {
	t.Helper()
	tok, _, err := s.sessions.Create(context.Background(), p)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

var (
	root = model.Principal{Role: model.RoleSuperAdmin, AccountID: 1, Username: "root"}
	acme = model.Principal{Role: model.RoleOrganisation, AccountID: 2, Username: "acme", OrganisationID: 2}
)

var accountColumns = []string{"role", "id", "username", "password_hash", "organisation_id"}

func TestLoginSetsSessionCookie(t *testing.T) {
	s := newTestServer(t)
	hash, err := validate.HashPassword("secret1")
	require.NoError(t, err)

	s.mock.ExpectQuery("FROM super_admins WHERE username").
		WithArgs("root").
		WillReturnRows(pgxmock.NewRows(accountColumns).AddRow("superadmin", int64(1), "root", hash, int64(0)))
	s.mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := s.do(http.MethodPost, "/api/v1/auth/login", "", strings.NewReader(`{"username":"root","password":"secret1"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	me := s.do(http.MethodGet, "/api/v1/auth/me", cookie.Value, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Contains(t, me.Body.String(), `"role":"superadmin"`)
	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	s := newTestServer(t)
	hash, err := validate.HashPassword("secret1")
	require.NoError(t, err)

	s.mock.ExpectQuery("FROM super_admins WHERE username").
		WithArgs("root").
		WillReturnRows(pgxmock.NewRows(accountColumns).AddRow("superadmin", int64(1), "root", hash, int64(0)))

	rec := s.do(http.MethodPost, "/api/v1/auth/login", "", strings.NewReader(`{"username":"root","password":"nope-nope"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeEnvelope(t, rec).Message)
}

func TestLoginIsRateLimited(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.LoginLimiter = httpx.NewMemoryLimiter(1, time.Minute) })

	first := s.do(http.MethodPost, "/api/v1/auth/login", "", strings.NewReader(`{`))
	assert.Equal(t, http.StatusBadRequest, first.Code)
	second := s.do(http.MethodPost, "/api/v1/auth/login", "", strings.NewReader(`{`))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestLogoutIsIdempotent(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, root)

	for range 2 {
		rec := s.do(http.MethodPost, "/api/v1/auth/logout", tok, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/auth/me", tok, nil).Code)
}

func TestSessionAndRoleGates(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v1/organisations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/organisations", s.token(t, acme), strings.NewReader(`{}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPatch, "/api/v1/organisations", s.token(t, root), nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOrganisationCannotReadAnother(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/v1/organisations?id=9", s.token(t, acme), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookSignature(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Config.WebhookSecret = "s3cret" })
	body := `{"type":"sms.delivered","id":"m-1"}`

	s.mock.ExpectQuery("INSERT INTO webhook_logs").
		WithArgs(pgxmock.AnyArg(), "twilio", "sms.delivered", pgxmock.AnyArg(), body, pgxmock.AnyArg(), model.WebhookRejected).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/twilio", strings.NewReader(body))
	req.Header.Set(webhooks.SignatureHeader, "sha256=00")
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	s.mock.ExpectQuery("INSERT INTO webhook_logs").
		WithArgs(pgxmock.AnyArg(), "twilio", "sms.delivered", pgxmock.AnyArg(), body, pgxmock.AnyArg(), model.WebhookReceived).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(2)))
	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/twilio", strings.NewReader(body))
	req.Header.Set(webhooks.SignatureHeader, webhooks.Sign("s3cret", []byte(body)))
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "correlation_id")
	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestWebhookRejectsOddSourceAndLargeBody(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Config.MaxWebhookBody = 8 })

	rec := s.do(http.MethodPost, "/api/v1/webhooks/Bad.Source", "", strings.NewReader(`{}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/webhooks/stripe", "", strings.NewReader(`{"type":"too long for the limit"}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPurgeWebhookLogsValidates(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, root)

	rec := s.do(http.MethodPost, "/api/v1/webhook-logs/purge", tok, strings.NewReader(`{"older_than_days":0}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.mock.ExpectExec("DELETE FROM webhook_logs WHERE created_at").WillReturnResult(pgxmock.NewResult("DELETE", 4))
	s.mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	rec = s.do(http.MethodPost, "/api/v1/webhook-logs/purge", tok, strings.NewReader(`{"older_than_days":30}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted":4`)
}

type scriptedRunner struct {
	calls [][]string
	fail  map[string]error
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return nil, r.fail[name]
}

type exitStatus int

func (e exitStatus) Error() string { return "exit status" }
func (e exitStatus) ExitCode() int { return int(e) }

func TestWorkerActionStatuses(t *testing.T) {
	runner := &scriptedRunner{fail: map[string]error{"pkill": exitStatus(1)}}
	ctl := workers.NewController([]workers.Worker{{Name: "reminders", Unit: "reminders.service", Pattern: "reminder-worker"}}, runner, nil)
	s := newTestServer(t, func(d *Deps) { d.Workers = ctl })
	tok := s.token(t, root)

	rec := s.do(http.MethodPost, "/api/v1/workers/action", tok, strings.NewReader(`{"name":"ghost","action":"start"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/workers/action", tok, strings.NewReader(`{"name":"reminders","action":"explode"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/workers/action", tok, strings.NewReader(`{"name":"reminders","action":"kill"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)

	s.mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	rec = s.do(http.MethodPost, "/api/v1/workers/action", tok, strings.NewReader(`{"name":"reminders","action":"restart"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"systemctl", "restart", "reminders.service"}, runner.calls[len(runner.calls)-1])

	runner.fail["systemctl"] = errors.New("unit failed")
	s.mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	rec = s.do(http.MethodPost, "/api/v1/workers/action", tok, strings.NewReader(`{"name":"reminders","action":"stop"}`))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "worker command failed", decodeEnvelope(t, rec).Message)
	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestWorkersSuperadminOnly(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/v1/workers", s.token(t, acme), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTestSMSAudits(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, root)

	rec := s.do(http.MethodPost, "/api/v1/sms/test", tok, strings.NewReader(`{"to":""}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.mock.ExpectExec("INSERT INTO audit_events").
		WithArgs("sms.test", "root", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	rec = s.do(http.MethodPost, "/api/v1/sms/test", tok, strings.NewReader(`{"to":"+359888000111","body":"hello"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sent via sms-noop", decodeEnvelope(t, rec).Message)
	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestExportStatisticsCSV(t *testing.T) {
	s := newTestServer(t)
	s.mock.ExpectQuery("LEFT JOIN specialists").
		WillReturnRows(pgxmock.NewRows([]string{"key", "label", "bookings", "cancelled", "revenue"}).
			AddRow("3", "Maria", int64(10), int64(2), "160.00"))

	rec := s.do(http.MethodGet, "/api/v1/statistics/export?format=csv&from=2024-01-01&to=2024-01-31", s.token(t, root), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `attachment; filename="statistics_specialist_20240101_20240131.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Contains(t, rec.Body.String(), "Maria")

	rec = s.do(http.MethodGet, "/api/v1/statistics/export?format=pdf", s.token(t, root), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatisticsScopedToOrganisation(t *testing.T) {
	s := newTestServer(t)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.mock.ExpectQuery("GROUP BY").
		WithArgs(int64(2), from, from.AddDate(0, 0, 7)).
		WillReturnRows(pgxmock.NewRows([]string{"key", "label", "bookings", "cancelled", "revenue"}))

	rec := s.do(http.MethodGet, "/api/v1/statistics?organisation_id=99&group=day&from=2024-01-01&to=2024-01-07", s.token(t, acme), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"rows":[]`)
	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestConnectCalendarNeedsConfiguration(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/v1/google-calendar/connect?specialist_id=3", s.token(t, root), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCalendarCallback(t *testing.T) {
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	defer google.Close()

	oauth := gcal.NewOAuth(gcal.Config{ClientID: "cid", ClientSecret: "cs", RedirectURL: "http://cb", TokenURL: google.URL + "/token"}, google.Client())
	s := newTestServer(t, func(d *Deps) { d.OAuth = oauth })

	rec := s.do(http.MethodGet, "/api/v1/google-calendar/callback?code=c&state=forged", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	state, err := auth.SignHS256(auth.NewClaims("7", "organisation", statePurpose, stateTTL, time.Now()), "state-secret")
	require.NoError(t, err)
	s.mock.ExpectExec("INSERT INTO google_calendar_credentials").
		WithArgs(int64(7), "at", "rt", "Bearer", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	s.mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec = s.do(http.MethodGet, "/api/v1/google-calendar/callback?code=c&state="+state, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Google Calendar connected")
	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestSyncQueueRejectsUnknownStatus(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/api/v1/google-calendar/queue?status=weird", s.token(t, root), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportRejectsMalformedFileWithoutDatabase(t *testing.T) {
	s := newTestServer(t)
	body := bytes.NewBufferString("# NOPE\na,b\n")
	rec := s.do(http.MethodPost, "/api/v1/import?dry_run=true", s.token(t, root), body)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	e := decodeEnvelope(t, rec)
	assert.False(t, e.Success)
	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestRouteLabels(t *testing.T) {
	s := newTestServer(t)
	label := func(path string) string {
		return s.h.Route(httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, "/api/v1/bookings", label("/api/v1/bookings?id=4"))
	assert.Equal(t, "/api/v1/webhooks/{source}", label("/api/v1/webhooks/stripe"))
	assert.Equal(t, "other", label("/api/v1/does-not-exist/123"))
	assert.Equal(t, "/healthz", label("/healthz"))
}

func TestCreateSpecialistRequiredFields(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, acme)

	cases := map[string]string{
		`{"speciality":"dentist"}`:                 "name is required",
		`{"name":"Maria","email":"not-an-email"}`: "invalid email",
	}
	for body, msg := range cases {
		rec := s.do(http.MethodPost, "/api/v1/specialists", tok, strings.NewReader(body))
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		e := decodeEnvelope(t, rec)
		assert.False(t, e.Success)
		assert.Equal(t, msg, e.Message)
	}

	rec := s.do(http.MethodPost, "/api/v1/specialists", s.token(t, root), strings.NewReader(`{"name":"Maria"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "organisation_id is required", decodeEnvelope(t, rec).Message)
	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestPutWorkingDayValidatesBeforeDatabase(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, acme)

	cases := map[string]string{
		`{"day_of_week":1,"shifts":[{"start":"09:00","end":"17:00"}]}`:                                    "specialist_id and working_point_id are required",
		`{"specialist_id":4,"working_point_id":2,"day_of_week":8,"shifts":[{"start":"09:00","end":"17:00"}]}`: "day_of_week must be between 1 and 7",
		`{"specialist_id":4,"working_point_id":2,"day_of_week":1,"shifts":[{"start":"09:00","end":""}]}`:      "shift 1: shift start and end must both be set",
	}
	for body, msg := range cases {
		rec := s.do(http.MethodPut, "/api/v1/working-program", tok, strings.NewReader(body))
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, msg, decodeEnvelope(t, rec).Message, body)
	}
	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestImportOversizedMultipartIs413(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Config.MaxImportBytes = 64 })

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "staff.csv")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("Maria,dentist\n"), 50))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token(t, root))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/import", strings.NewReader("--x--"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	req.Header.Set("Authorization", "Bearer "+s.token(t, root))
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, s.mock.ExpectationsWereMet())
}

func TestWebhookStoresBinaryPayloadAsText(t *testing.T) {
	s := newTestServer(t)
	body := "{\"type\":\"caf\xc3\"}\x00\xff"

	s.mock.ExpectQuery("INSERT INTO webhook_logs").
		WithArgs(pgxmock.AnyArg(), "stripe", pgxmock.AnyArg(), pgxmock.AnyArg(), "{\"type\":\"caf\uFFFD\"}\uFFFD", pgxmock.AnyArg(), model.WebhookReceived).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	rec := s.do(http.MethodPost, "/api/v1/webhooks/stripe", "", strings.NewReader(body))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, s.mock.ExpectationsWereMet())
}
