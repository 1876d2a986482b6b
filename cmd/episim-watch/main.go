// Command episim-watch follows a running episim instance through its HTTP API,
// logging progress until the outbreak ends and optionally charting the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/talgya/episim/internal/engine"
	"github.com/talgya/episim/internal/render"
	"github.com/talgya/episim/internal/watch"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	apiURL := envOrDefault("EPISIM_API_URL", "http://localhost:8080")
	intervalMS := envIntOrDefault("EPISIM_WATCH_INTERVAL_MS", 1000)
	maxFailures := envIntOrDefault("EPISIM_WATCH_MAX_FAILURES", 5)
	chartPath := os.Getenv("EPISIM_WATCH_CHART")

	if intervalMS <= 0 {
		slog.Error("EPISIM_WATCH_INTERVAL_MS must be positive", "value", intervalMS)
		os.Exit(1)
	}
	if maxFailures <= 0 {
		slog.Error("EPISIM_WATCH_MAX_FAILURES must be positive", "value", maxFailures)
		os.Exit(1)
	}

	interval := time.Duration(intervalMS) * time.Millisecond
	slog.Info("episim watcher starting", "api_url", apiURL, "interval", interval)

	observer := watch.NewObserver(apiURL)

	slog.Info("waiting for episim API...")
	waitForAPI(observer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := watch.Follow(ctx, observer, interval, maxFailures, logObservation(observer))
	report(observer, chartPath)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		slog.Info("received signal, shutting down")
	default:
		slog.Error("stopped following", "error", err)
		os.Exit(1)
	}
}

// logObservation logs each successful poll with the current phase.
func logObservation(observer *watch.Observer) func(*watch.Observation) {
	return func(obs *watch.Observation) {
		s := watch.Summarize(observer.History())
		slog.Info("observed",
			"step", obs.Status.Step,
			"new_steps", len(obs.New),
			"healthy", obs.Status.Healthy,
			"sick", obs.Status.Sick,
			"immune", obs.Status.Immune,
			"phase", s.Phase,
		)
	}
}

func report(observer *watch.Observer, chartPath string) {
	hist := observer.History()
	s := watch.Summarize(hist)
	slog.Info("outbreak summary",
		"steps", humanize.Comma(int64(s.Steps)),
		"peak_sick", s.PeakSick,
		"peak_step", s.PeakStep,
		"attack_rate", fmt.Sprintf("%.1f%%", 100*s.AttackRate),
		"phase", s.Phase,
	)
	if chartPath == "" || len(hist) == 0 {
		return
	}
	snap := &engine.Snapshot{Step: len(hist) - 1, History: hist}
	if err := render.WriteHistoryPNG(chartPath, snap, render.DefaultPanelSize); err != nil {
		slog.Error("chart failed", "path", chartPath, "error", err)
		return
	}
	slog.Info("chart written", "path", chartPath)
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(observer *watch.Observer) {
	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for !observer.Ready() {
		if time.Now().After(deadline) {
			slog.Error("episim API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("episim not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	slog.Info("episim API is ready")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
