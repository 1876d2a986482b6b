// Command episim runs the epidemic simulation until no sick agents remain.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/episim/internal/api"
	"github.com/talgya/episim/internal/engine"
	"github.com/talgya/episim/internal/entropy"
	"github.com/talgya/episim/internal/persistence"
	"github.com/talgya/episim/internal/render"
)

func main() {
	o, err := parseOptions(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "episim:", err)
		os.Exit(2)
	}

	out, tty, closeLog, err := logOutput(o)
	if err != nil {
		fmt.Fprintln(os.Stderr, "episim:", err)
		os.Exit(1)
	}
	defer closeLog()
	logger, err := newLogger(o, out, tty)
	if err != nil {
		fmt.Fprintln(os.Stderr, "episim:", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	elapsed, err := run(o)
	if err != nil {
		slog.Error("run failed", "error", err)
		fmt.Fprintln(os.Stderr, "episim:", err)
		os.Exit(1)
	}
	fmt.Printf("Elapsed time is %.6f seconds\n", elapsed.Seconds())
}

func run(o *options) (time.Duration, error) {
	cfg := o.cfg
	slog.Info("episim starting",
		"preset", o.preset,
		"population", cfg.PopulationSize,
		"seed", cfg.Seed,
		"localised", cfg.Localised,
		"restricted", cfg.RestrictMotion,
		"quarantine", cfg.Quarantine,
	)

	sim, err := engine.NewSimulation(cfg, entropy.NewSeeded(cfg.Seed))
	if err != nil {
		return 0, err
	}

	// ── Outputs ───────────────────────────────────────────────────────
	var outputs render.Multi
	defer func() {
		if err := outputs.Close(); err != nil {
			slog.Error("closing outputs", "error", err)
		}
	}()

	var recorder *persistence.Recorder
	var db *persistence.DB
	if o.dbPath != "" {
		db, err = persistence.Open(o.dbPath)
		if err != nil {
			return 0, err
		}
		defer db.Close()
		recorder, err = db.BeginRun(o.preset, cfg)
		if err != nil {
			return 0, err
		}
		slog.Info("archiving run", "path", o.dbPath, "run_id", recorder.ID())
		outputs = append(outputs, recorder)
	}

	if o.chartDir != "" {
		c, err := render.NewChart(o.chartDir, o.frameSize)
		if err != nil {
			return 0, err
		}
		outputs = append(outputs, render.Every(o.frameEvery, c))
	}
	if o.videoPath != "" {
		v, err := render.NewVideo(o.videoPath, o.frameSize, o.fps)
		if err != nil {
			return 0, err
		}
		outputs = append(outputs, render.Every(o.frameEvery, v))
	}
	if o.geojsonDir != "" {
		g, err := render.NewGeoJSON(o.geojsonDir, render.Zones(cfg))
		if err != nil {
			return 0, err
		}
		outputs = append(outputs, render.Every(o.frameEvery, g))
	}
	if o.logSteps {
		outputs = append(outputs, render.Log{})
	}

	var quit <-chan struct{}
	if o.terminal {
		term, err := render.NewTerminal()
		if err != nil {
			return 0, err
		}
		quit = term.Quit()
		outputs = append(outputs, term)
	}

	var server *api.Server
	if o.apiPort > 0 {
		server = &api.Server{Config: cfg, DB: db, Port: o.apiPort}
		if recorder != nil {
			server.RunID = recorder.ID()
		}
		server.Start()
		outputs = append(outputs, server)
	}

	// ── Runner ────────────────────────────────────────────────────────
	runner := engine.NewRunner(sim)
	runner.Interval = o.interval
	runner.MaxSteps = o.maxSteps
	runner.ReportEvery = o.reportEvery
	runner.OnStep = func(sim *engine.Simulation) {
		if len(outputs) == 0 {
			return
		}
		if err := outputs.Render(sim.Snapshot()); err != nil {
			slog.Error("render failed", "tick", sim.Tick, "error", err)
		}
	}
	runner.OnDone = func(sim *engine.Simulation) {
		if recorder == nil {
			return
		}
		if err := recorder.Finish(sim.Snapshot()); err != nil {
			slog.Error("archive failed", "run_id", recorder.ID(), "error", err)
		}
	}

	// Graceful shutdown on SIGINT/SIGTERM or a quit key in the live view.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			slog.Info("received signal, stopping")
		case <-quit:
			slog.Info("quit requested from terminal")
		case <-finished:
			return
		}
		runner.Stop()
	}()

	runner.Run()
	close(finished)

	if server != nil {
		// No more steps: end open streams with the final state.
		server.Close()
		if o.linger > 0 && ctx.Err() == nil {
			slog.Info("run over, API stays up", "linger", o.linger)
			select {
			case <-time.After(o.linger):
			case <-ctx.Done():
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("API shutdown", "error", err)
		}
	}

	return runner.Elapsed(), nil
}
