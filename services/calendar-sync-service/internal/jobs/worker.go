package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/bookingadmin/libs/db"
	"github.com/md-rashed-zaman/bookingadmin/libs/metrics"
	otelx "github.com/md-rashed-zaman/bookingadmin/libs/otel"
	"github.com/md-rashed-zaman/bookingadmin/libs/outbox"
)

const FailedEventType = "calendar.sync.failed.v1"

const maxErrorLen = 500

// recordTimeout bounds the transaction that stores a row's outcome. It
// outlives shutdown so a finished Google call is not left unrecorded.
const recordTimeout = 10 * time.Second

type Worker struct {
	pool        db.Querier
	repo        *Repository
	outbox      *outbox.Repository
	calendar    Calendar
	oauth       TokenRefresher
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	backoffBase time.Duration
	backoffMax  time.Duration
	jitter      float64
	lease       time.Duration
	now         func() time.Time
}

type WorkerConfig struct {
	Interval    time.Duration `env:"SYNC_INTERVAL" envDefault:"2s"`
	BatchSize   int           `env:"SYNC_BATCH_SIZE" envDefault:"50"`
	BackoffBase time.Duration `env:"SYNC_BACKOFF_BASE" envDefault:"30s"`
	BackoffMax  time.Duration `env:"SYNC_BACKOFF_MAX" envDefault:"1h"`
	// Jitter is the backoff randomization factor, 0 for fixed delays.
	Jitter float64 `env:"SYNC_BACKOFF_JITTER" envDefault:"0.2"`
	// Lease is how long a claimed row stays hidden from other workers.
	Lease time.Duration `env:"SYNC_LEASE" envDefault:"5m"`
}

func NewWorker(pool db.Querier, repo *Repository, outboxRepo *outbox.Repository, calendar Calendar, oauth TokenRefresher, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		cfg.Jitter = 0
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	return &Worker{
		pool:        pool,
		repo:        repo,
		outbox:      outboxRepo,
		calendar:    calendar,
		oauth:       oauth,
		logger:      logger,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
		jitter:      cfg.Jitter,
		lease:       cfg.Lease,
		now:         time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("calendar sync batch failed", "err", err)
			}
		}
	}
}

// ProcessBatch claims up to one batch of due rows and syncs them one by
// one. Each outcome is committed on its own, so a failure to record one row
// leaves the others in place. It returns how many rows it claimed.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	jobs, err := w.repo.ClaimDue(ctx, w.pool, w.batchSize, w.now().UTC().Add(w.lease))
	if err != nil {
		return 0, err
	}
	var errs []error
	for _, job := range jobs {
		if ctx.Err() != nil {
			// Unstarted rows come back when their lease runs out.
			break
		}
		if err := w.process(ctx, job); err != nil {
			w.logger.Error("calendar sync outcome not recorded", "sync_id", job.ID, "err", err)
			errs = append(errs, fmt.Errorf("sync %d: %w", job.ID, err))
		}
	}
	return len(jobs), errors.Join(errs...)
}

// process syncs one row and records the outcome. Only database errors are
// returned; Google failures are written to the row.
func (w *Worker) process(ctx context.Context, job Job) error {
	jobCtx := otelx.ContextWithTraceContext(ctx, job.Traceparent, job.Tracestate)
	jobCtx, span := otel.Tracer("calendar-sync").Start(jobCtx, "calendar.sync",
		trace.WithAttributes(
			attribute.Int64("sync.id", job.ID),
			attribute.Int64("booking.id", job.BookingID),
			attribute.String("sync.action", job.Action),
		),
	)
	defer span.End()

	res, syncErr := w.sync(jobCtx, job)
	attempts := job.Attempts + 1

	var outcome string
	var record func(ctx context.Context, tx pgx.Tx) error
	switch {
	case syncErr == nil:
		outcome = "done"
		if res.note != "" {
			outcome = "skipped"
		}
		record = func(ctx context.Context, tx pgx.Tx) error {
			if err := w.linkBooking(ctx, tx, job, res); err != nil {
				return err
			}
			return w.repo.MarkDone(ctx, tx, job.ID, res.note, res.eventID)
		}
	case isPermanent(syncErr) || attempts >= job.MaxAttempts:
		outcome = "failed"
		span.RecordError(syncErr)
		span.SetStatus(codes.Error, "sync failed")
		w.logger.Error("calendar sync failed", "sync_id", job.ID, "booking_id", job.BookingID, "attempts", attempts, "err", syncErr)
		record = func(ctx context.Context, tx pgx.Tx) error {
			if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, truncate(syncErr.Error())); err != nil {
				return err
			}
			return w.emitFailed(ctx, tx, job, attempts, syncErr)
		}
	default:
		outcome = "retry"
		span.RecordError(syncErr)
		next := w.now().UTC().Add(w.retryDelay(attempts))
		w.logger.Warn("calendar sync will retry", "sync_id", job.ID, "attempts", attempts, "next_run_at", next, "err", syncErr)
		record = func(ctx context.Context, tx pgx.Tx) error {
			return w.repo.MarkRetry(ctx, tx, job.ID, attempts, next, truncate(syncErr.Error()))
		}
	}

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(jobCtx), recordTimeout)
	defer cancel()
	err := db.InTx(recCtx, w.pool, func(tx pgx.Tx) error { return record(recCtx, tx) })
	if err != nil {
		span.RecordError(err)
		return err
	}
	metrics.CalendarSyncProcessed.WithLabelValues(job.Action, outcome).Inc()
	return nil
}

func (w *Worker) linkBooking(ctx context.Context, tx pgx.Tx, job Job, res result) error {
	switch {
	case res.link:
		return setBookingEventID(ctx, tx, job.BookingID, res.eventID)
	case res.unlink:
		return clearBookingEventID(ctx, tx, job.BookingID, res.eventID)
	}
	return nil
}

func (w *Worker) emitFailed(ctx context.Context, tx pgx.Tx, job Job, attempts int, cause error) error {
	evt, err := outbox.NewEvent("calendar_sync", strconv.FormatInt(job.ID, 10), FailedEventType, map[string]any{
		"sync_id":       job.ID,
		"booking_id":    job.BookingID,
		"specialist_id": job.SpecialistID,
		"action":        job.Action,
		"attempts":      attempts,
		"error":         truncate(cause.Error()),
		"failed_at":     w.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return w.outbox.Insert(ctx, tx, evt)
}

// retryDelay is the exponential delay before attempt+1, capped at
// backoffMax.
func (w *Worker) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.backoffBase
	b.MaxInterval = w.backoffMax
	b.Multiplier = 2
	b.RandomizationFactor = w.jitter
	d := w.backoffBase
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// truncate makes an error message fit last_error: valid UTF-8 without NUL
// bytes, at most maxErrorLen bytes, cut on a rune boundary.
func truncate(s string) string {
	s = strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
	if len(s) <= maxErrorLen {
		return s
	}
	n := maxErrorLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
