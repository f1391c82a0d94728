// Package cronx runs periodic maintenance jobs on robfig/cron with slog
// logging.
package cronx

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type slogAdapter struct {
	logger *slog.Logger
}

// Info is routine scheduler chatter, so it goes to debug.
func (l slogAdapter) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l slogAdapter) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "err", err)...)
}

// Job is one named periodic task. Run receives a context bounded by Timeout.
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	logger *slog.Logger
}

// New returns a scheduler whose jobs stop when ctx is cancelled. Overlapping
// runs of the same job are skipped.
func New(ctx context.Context, logger *slog.Logger) *Scheduler {
	a := slogAdapter{logger: logger.With("component", "cron")}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(a), cron.WithChain(cron.Recover(a), cron.SkipIfStillRunning(a))),
		ctx:    ctx,
		logger: logger,
	}
}

func (s *Scheduler) Add(j Job) error {
	_, err := s.cron.AddFunc(j.Spec, func() { s.run(j) })
	return err
}

func (s *Scheduler) run(j Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := j.Run(ctx); err != nil {
		s.logger.Error("cron job failed", "job", j.Name, "err", err)
		return
	}
	s.logger.Debug("cron job finished", "job", j.Name, "took", time.Since(start))
}

func (s *Scheduler) Start() { s.cron.Start() }

// Shutdown waits up to 30s for running jobs.
func (s *Scheduler) Shutdown() {
	ctx, cancel := context.WithTimeout(s.cron.Stop(), 30*time.Second)
	defer cancel()
	<-ctx.Done()
}
