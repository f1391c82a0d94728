package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/md-rashed-zaman/bookingadmin/libs/metrics"
)

var (
	ErrUnknownWorker = errors.New("unknown worker")
	ErrUnknownAction = errors.New("unknown action")
	ErrNoProcess     = errors.New("no matching process")
	ErrCommand       = errors.New("command failed")
)

const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
	ActionKill    = "kill"
)

type Process struct {
	User     string  `json:"user"`
	PID      int     `json:"pid"`
	CPU      float64 `json:"cpu"`
	Mem      float64 `json:"mem"`
	RSS      uint64  `json:"rss_bytes"`
	RSSHuman string  `json:"rss"`
	Start    string  `json:"start"`
	Command  string  `json:"command"`
}

type Status struct {
	Worker
	Active    string    `json:"active"`
	Processes []Process `json:"processes"`
}

type Controller struct {
	workers []Worker
	runner  Runner
	logger  *slog.Logger
	timeout time.Duration
}

func NewController(workers []Worker, runner Runner, logger *slog.Logger) *Controller {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{workers: workers, runner: runner, logger: logger, timeout: 15 * time.Second}
}

func (c *Controller) Workers() []Worker { return c.workers }

func (c *Controller) lookup(name string) (Worker, bool) {
	for _, w := range c.workers {
		if w.Name == name {
			return w, true
		}
	}
	return Worker{}, false
}

// Status reports unit state and matching processes for every worker.
func (c *Controller) Status(ctx context.Context) ([]Status, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ps, err := c.runner.Run(ctx, "ps", "aux")
	if err != nil {
		c.logger.Error("ps aux failed", "err", err)
		return nil, ErrCommand
	}
	procs := ParsePS(ps)

	out := make([]Status, 0, len(c.workers))
	for _, w := range c.workers {
		st := Status{Worker: w, Active: c.unitState(ctx, w.Unit), Processes: []Process{}}
		for _, p := range procs {
			if strings.Contains(p.Command, w.Pattern) {
				st.Processes = append(st.Processes, p)
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// unitState returns systemctl is-active output. The command exits non-zero
// for anything but "active", so output wins over the error.
func (c *Controller) unitState(ctx context.Context, unit string) string {
	raw, err := c.runner.Run(ctx, "systemctl", "is-active", unit)
	state := strings.TrimSpace(string(raw))
	if state != "" && !strings.Contains(state, "\n") {
		return state
	}
	if err != nil {
		c.logger.Warn("systemctl is-active failed", "unit", unit, "err", err)
	}
	return "unknown"
}

// Do applies action to the named worker.
func (c *Controller) Do(ctx context.Context, name, action string) error {
	w, ok := c.lookup(name)
	if !ok {
		return ErrUnknownWorker
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		raw []byte
		err error
	)
	switch action {
	case ActionStart, ActionStop, ActionRestart:
		raw, err = c.runner.Run(ctx, "systemctl", action, w.Unit)
	case ActionKill:
		raw, err = c.runner.Run(ctx, "pkill", "-f", w.Pattern)
		if exitCode(err) == 1 {
			metrics.WorkerActions.WithLabelValues(w.Name, action, "no_process").Inc()
			return ErrNoProcess
		}
	default:
		return ErrUnknownAction
	}
	if err != nil {
		metrics.WorkerActions.WithLabelValues(w.Name, action, "error").Inc()
		c.logger.Error("worker action failed", "worker", w.Name, "action", action, "output", strings.TrimSpace(string(raw)), "err", err)
		return fmt.Errorf("%w: %s %s", ErrCommand, action, w.Name)
	}
	metrics.WorkerActions.WithLabelValues(w.Name, action, "ok").Inc()
	c.logger.Info("worker action applied", "worker", w.Name, "action", action)
	return nil
}

// ParsePS parses `ps aux` output. RSS is reported by ps in KiB.
func ParsePS(raw []byte) []Process {
	var out []Process
	for i, line := range strings.Split(string(raw), "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		f := strings.Fields(line)
		if len(f) < 11 {
			continue
		}
		pid, err := strconv.Atoi(f[1])
		if err != nil {
			continue
		}
		cpu, _ := strconv.ParseFloat(f[2], 64)
		mem, _ := strconv.ParseFloat(f[3], 64)
		rssKiB, _ := strconv.ParseUint(f[5], 10, 64)
		out = append(out, Process{
			User:     f[0],
			PID:      pid,
			CPU:      cpu,
			Mem:      mem,
			RSS:      rssKiB * 1024,
			RSSHuman: humanize.IBytes(rssKiB * 1024),
			Start:    f[8],
			Command:  strings.Join(f[10:], " "),
		})
	}
	return out
}
