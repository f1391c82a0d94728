// Package maintenance registers the admin service's retention jobs.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/libs/cronx"
	"github.com/md-rashed-zaman/bookingadmin/libs/metrics"
)

type WebhookPurger interface {
	PurgeWebhookLogs(ctx context.Context, before time.Time) (int64, error)
}

type AuditPurger interface {
	PurgeAudit(ctx context.Context, before time.Time) (int64, error)
}

// Store is satisfied by *storage.Store.
type Store interface {
	WebhookPurger
	AuditPurger
}

type Config struct {
	WebhookRetentionDays int    `env:"WEBHOOK_RETENTION_DAYS" envDefault:"30"`
	AuditRetentionDays   int    `env:"AUDIT_RETENTION_DAYS" envDefault:"365"`
	Schedule             string `env:"MAINTENANCE_SCHEDULE" envDefault:"15 3 * * *"`
}

// WebhookPurge deletes webhook logs older than the retention window. A
// non-positive retention disables the job.
func WebhookPurge(store WebhookPurger, cfg Config, logger *slog.Logger, now func() time.Time) cronx.Job {
	return cronx.Job{
		Name: "webhook-log-purge",
		Spec: cfg.Schedule,
		Run: func(ctx context.Context) error {
			if cfg.WebhookRetentionDays <= 0 {
				return nil
			}
			before := now().Add(-time.Duration(cfg.WebhookRetentionDays) * 24 * time.Hour)
			n, err := store.PurgeWebhookLogs(ctx, before)
			if err != nil {
				return err
			}
			metrics.PurgedRows.WithLabelValues("webhook_logs").Add(float64(n))
			if n > 0 {
				logger.Info("webhook logs purged", "deleted", n, "before", before)
			}
			return nil
		},
	}
}

// AuditPurge deletes audit events older than the retention window. A
// non-positive retention keeps them forever.
func AuditPurge(store AuditPurger, cfg Config, logger *slog.Logger, now func() time.Time) cronx.Job {
	return cronx.Job{
		Name: "audit-purge",
		Spec: cfg.Schedule,
		Run: func(ctx context.Context) error {
			if cfg.AuditRetentionDays <= 0 {
				return nil
			}
			before := now().Add(-time.Duration(cfg.AuditRetentionDays) * 24 * time.Hour)
			n, err := store.PurgeAudit(ctx, before)
			if err != nil {
				return err
			}
			metrics.PurgedRows.WithLabelValues("audit_events").Add(float64(n))
			if n > 0 {
				logger.Info("audit events purged", "deleted", n, "before", before)
			}
			return nil
		},
	}
}

// Register adds every maintenance job to s.
func Register(s *cronx.Scheduler, store Store, cfg Config, logger *slog.Logger) error {
	if err := s.Add(WebhookPurge(store, cfg, logger, time.Now)); err != nil {
		return err
	}
	return s.Add(AuditPurge(store, cfg, logger, time.Now))
}
