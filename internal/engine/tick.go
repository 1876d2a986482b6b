package engine

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Runner drives a Simulation until no sick agents remain.
type Runner struct {
	Sim         *Simulation
	Interval    time.Duration // Minimum wall time per step (0 = as fast as possible)
	MaxSteps    int           // Stop after this many steps (0 = until the outbreak ends)
	ReportEvery int           // Log counts every N steps (0 = never)

	// Callbacks, populated during setup.
	OnStep func(sim *Simulation) // After every step, and once for the initial state
	OnDone func(sim *Simulation) // When the loop exits for any reason

	running  atomic.Bool
	stopped  atomic.Bool
	started  time.Time
	finished time.Time
}

// NewRunner creates a runner for sim with default settings.
func NewRunner(sim *Simulation) *Runner {
	return &Runner{Sim: sim}
}

// Run steps the simulation. Blocks until the outbreak ends, MaxSteps is
// reached, or Stop is called.
func (r *Runner) Run() {
	r.running.Store(true)
	defer r.running.Store(false)

	r.started = time.Now()
	slog.Info("simulation started",
		"population", humanize.Comma(int64(len(r.Sim.Agents))),
		"sick", r.Sim.Counts().Sick,
		"tick", r.Sim.Tick,
	)

	if r.OnStep != nil {
		r.OnStep(r.Sim)
	}

	for !r.Sim.Done() && !r.stopped.Load() {
		if r.MaxSteps > 0 && r.Sim.Tick >= r.MaxSteps {
			slog.Warn("step limit reached before the outbreak ended", "max_steps", r.MaxSteps)
			break
		}

		start := time.Now()
		c := r.Sim.Step()

		if r.OnStep != nil {
			r.OnStep(r.Sim)
		}
		if r.ReportEvery > 0 && r.Sim.Tick%r.ReportEvery == 0 {
			slog.Info("progress",
				"tick", r.Sim.Tick,
				"healthy", c.Healthy,
				"sick", c.Sick,
				"immune", c.Immune,
			)
		}

		// Sleep for the remainder of the step interval.
		if elapsed := time.Since(start); elapsed < r.Interval {
			time.Sleep(r.Interval - elapsed)
		}
	}

	r.finished = time.Now()
	c := r.Sim.Counts()
	slog.Info("simulation stopped",
		"tick", r.Sim.Tick,
		"healthy", c.Healthy,
		"sick", c.Sick,
		"immune", c.Immune,
		"over", r.Sim.Done(),
		"elapsed", r.Elapsed().String(),
		"started", humanize.Time(r.started),
	)

	if r.OnDone != nil {
		r.OnDone(r.Sim)
	}
}

// Stop halts the loop after the current step. Safe to call from another goroutine.
func (r *Runner) Stop() {
	r.stopped.Store(true)
}

// Running reports whether Run is in progress.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Elapsed returns the wall time Run took, or has taken so far.
func (r *Runner) Elapsed() time.Duration {
	if r.started.IsZero() {
		return 0
	}
	if r.finished.IsZero() {
		return time.Since(r.started)
	}
	return r.finished.Sub(r.started)
}
