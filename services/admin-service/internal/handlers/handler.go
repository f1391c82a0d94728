// Package handlers is the back-office JSON API. Every handler follows the
// same steps: session and role check, input validation, storage calls,
// then the {success, message, data} envelope.
package handlers

import (
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/libs/gcal"
	"github.com/md-rashed-zaman/bookingadmin/libs/httpx"
	"github.com/md-rashed-zaman/bookingadmin/libs/sms"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/csvimport"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/sessions"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/workers"
)

type Config struct {
	// StateSecret signs the OAuth state parameter.
	StateSecret string
	// WebhookSecret enables signature checks on inbound webhooks.
	WebhookSecret  string
	CookieSecure   bool
	MaxImportBytes int64
	MaxWebhookBody int64
}

type Deps struct {
	Store        *storage.Store
	Sessions     *sessions.Manager
	Importer     *csvimport.Importer
	Workers      *workers.Controller
	SMS          sms.Sender
	OAuth        *gcal.OAuth
	Calendar     *gcal.Client
	LoginLimiter httpx.Limiter
	Logger       *slog.Logger
	Config       Config
}

type Handler struct {
	store        *storage.Store
	sessions     *sessions.Manager
	importer     *csvimport.Importer
	workers      *workers.Controller
	sms          sms.Sender
	oauth        *gcal.OAuth
	calendar     *gcal.Client
	loginLimiter httpx.Limiter
	logger       *slog.Logger
	cfg          Config
	now          func() time.Time
	paths        map[string]struct{}
}

func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Importer == nil {
		d.Importer = csvimport.New(d.Store, d.Logger)
	}
	if d.Workers == nil {
		d.Workers = workers.NewController(nil, nil, d.Logger)
	}
	if d.SMS == nil {
		d.SMS = sms.NewNoopSender()
	}
	if d.LoginLimiter == nil {
		d.LoginLimiter = httpx.NewMemoryLimiter(10, time.Minute)
	}
	if d.Config.MaxImportBytes <= 0 {
		d.Config.MaxImportBytes = 10 << 20
	}
	if d.Config.MaxWebhookBody <= 0 {
		d.Config.MaxWebhookBody = 1 << 20
	}
	return &Handler{
		store:        d.Store,
		sessions:     d.Sessions,
		importer:     d.Importer,
		workers:      d.Workers,
		sms:          d.SMS,
		oauth:        d.OAuth,
		calendar:     d.Calendar,
		loginLimiter: d.LoginLimiter,
		logger:       d.Logger,
		cfg:          d.Config,
		now:          time.Now,
	}
}
