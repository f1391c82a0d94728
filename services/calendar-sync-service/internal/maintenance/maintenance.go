// Package maintenance registers the sync queue's retention and gauge jobs.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/libs/cronx"
	"github.com/md-rashed-zaman/bookingadmin/libs/metrics"
)

type Queue interface {
	PurgeDone(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type Config struct {
	RetentionDays int    `env:"SYNC_RETENTION_DAYS" envDefault:"14"`
	PurgeSchedule string `env:"SYNC_PURGE_SCHEDULE" envDefault:"30 3 * * *"`
	GaugeSchedule string `env:"SYNC_GAUGE_SCHEDULE" envDefault:"@every 1m"`
}

// PurgeDone removes done rows older than the retention window. A
// non-positive retention disables the job.
func PurgeDone(q Queue, cfg Config, logger *slog.Logger, now func() time.Time) cronx.Job {
	return cronx.Job{
		Name: "sync-queue-purge",
		Spec: cfg.PurgeSchedule,
		Run: func(ctx context.Context) error {
			if cfg.RetentionDays <= 0 {
				return nil
			}
			before := now().Add(-time.Duration(cfg.RetentionDays) * 24 * time.Hour)
			n, err := q.PurgeDone(ctx, before)
			if err != nil {
				return err
			}
			metrics.PurgedRows.WithLabelValues("google_calendar_sync_queue").Add(float64(n))
			if n > 0 {
				logger.Info("sync queue purged", "deleted", n, "before", before)
			}
			return nil
		},
	}
}

// QueueDepth publishes the row count per status, failed rows included.
func QueueDepth(q Queue, cfg Config) cronx.Job {
	return cronx.Job{
		Name:    "sync-queue-depth",
		Spec:    cfg.GaugeSchedule,
		Timeout: 30 * time.Second,
		Run: func(ctx context.Context) error {
			counts, err := q.CountByStatus(ctx)
			if err != nil {
				return err
			}
			for status, n := range counts {
				metrics.CalendarSyncQueueDepth.WithLabelValues(status).Set(float64(n))
			}
			return nil
		},
	}
}

func Register(s *cronx.Scheduler, q Queue, cfg Config, logger *slog.Logger) error {
	if err := s.Add(PurgeDone(q, cfg, logger, time.Now)); err != nil {
		return err
	}
	return s.Add(QueueDepth(q, cfg))
}
