package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/talgya/episim/internal/engine"
	"github.com/talgya/episim/internal/render"
	"github.com/talgya/episim/internal/space"
)

// options collects everything main needs to set up a run. Flags default to
// EPISIM_* environment variables, which in turn default to the built-in values.
type options struct {
	preset string
	cfg    engine.Config

	interval    time.Duration
	maxSteps    int
	reportEvery int
	logSteps    bool

	dbPath     string
	chartDir   string
	videoPath  string
	geojsonDir string
	frameEvery int
	frameSize  int
	fps        int
	terminal   bool
	apiPort    int
	linger     time.Duration

	logLevel  string
	logFormat string
	logFile   string
}

func parseOptions(args []string) (*options, error) {
	fs := flag.NewFlagSet("episim", flag.ContinueOnError)
	o := &options{}

	fs.StringVar(&o.preset, "preset", envOrDefault("EPISIM_PRESET", "baseline"),
		"policy preset: "+strings.Join(engine.PresetNames(), ", "))
	// Run parameters apply over the preset only when given, so every value
	// reaches Validate as typed.
	given := make(map[string]string)
	for _, p := range params {
		p := p
		usage := fmt.Sprintf("%s (env %s, default from preset)", p.usage, p.env)
		record := func(v string) error {
			given[p.flag] = v
			return nil
		}
		if p.isBool {
			fs.BoolFunc(p.flag, usage, record)
		} else {
			fs.Func(p.flag, usage, record)
		}
	}

	fs.DurationVar(&o.interval, "interval", envDurationOrDefault("EPISIM_INTERVAL", 0), "minimum wall time per step")
	fs.IntVar(&o.maxSteps, "max-steps", envIntOrDefault("EPISIM_MAX_STEPS", 0), "stop after this many steps (0 = until the outbreak ends)")
	fs.IntVar(&o.reportEvery, "report-every", envIntOrDefault("EPISIM_REPORT_EVERY", 10), "log progress every N steps (0 = never)")
	fs.BoolVar(&o.logSteps, "log-steps", envBoolOrDefault("EPISIM_LOG_STEPS", false), "log the counts of every step")

	fs.StringVar(&o.dbPath, "db", envOrDefault("EPISIM_DB", ""), "SQLite run archive path (empty = no archive)")
	fs.StringVar(&o.chartDir, "chart-dir", envOrDefault("EPISIM_CHART_DIR", ""), "write PNG frames to this directory")
	fs.StringVar(&o.videoPath, "video", envOrDefault("EPISIM_VIDEO", ""), "write an MJPEG AVI to this path")
	fs.StringVar(&o.geojsonDir, "geojson-dir", envOrDefault("EPISIM_GEOJSON_DIR", ""), "write GeoJSON snapshots to this directory")
	fs.IntVar(&o.frameEvery, "frame-every", envIntOrDefault("EPISIM_FRAME_EVERY", 1), "render files every N steps")
	fs.IntVar(&o.frameSize, "frame-size", envIntOrDefault("EPISIM_FRAME_SIZE", render.DefaultPanelSize), "frame panel size in pixels")
	fs.IntVar(&o.fps, "fps", envIntOrDefault("EPISIM_FPS", 10), "video frames per second")
	fs.BoolVar(&o.terminal, "terminal", envBoolOrDefault("EPISIM_TERMINAL", false), "draw the population live in the terminal")
	fs.IntVar(&o.apiPort, "api-port", envIntOrDefault("EPISIM_API_PORT", 0), "serve the observation API on this port (0 = off)")
	fs.DurationVar(&o.linger, "linger", envDurationOrDefault("EPISIM_LINGER", 0), "keep the API up this long after the run ends")

	fs.StringVar(&o.logLevel, "log-level", envOrDefault("EPISIM_LOG_LEVEL", "info"), "debug, info, warn or error")
	fs.StringVar(&o.logFormat, "log-format", envOrDefault("EPISIM_LOG_FORMAT", "auto"), "text, json or auto")
	fs.StringVar(&o.logFile, "log-file", envOrDefault("EPISIM_LOG_FILE", ""), "write logs to this file instead of stderr")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg, err := engine.Preset(o.preset)
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		v, ok := given[p.flag]
		if !ok {
			if v, ok = os.LookupEnv(p.env); !ok || v == "" {
				continue
			}
		}
		if err := p.apply(&cfg, v); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o.cfg = cfg

	if o.frameEvery <= 0 {
		return nil, fmt.Errorf("frame-every must be positive, got %d", o.frameEvery)
	}
	return o, nil
}

// runParam is a Config field settable from the command line or environment.
type runParam struct {
	flag, env, usage string
	isBool           bool
	apply            func(cfg *engine.Config, v string) error
}

var params = []runParam{
	{flag: "seed", env: "EPISIM_SEED", usage: "random seed",
		apply: func(c *engine.Config, v string) error { return parseInt64("seed", v, &c.Seed) }},
	{flag: "population", env: "EPISIM_POPULATION", usage: "population size",
		apply: func(c *engine.Config, v string) error { return parseInt("population_size", v, &c.PopulationSize) }},
	{flag: "initial-sick", env: "EPISIM_INITIAL_SICK", usage: "initially sick agents",
		apply: func(c *engine.Config, v string) error { return parseInt("initial_sick", v, &c.InitialSick) }},
	{flag: "infect-radius", env: "EPISIM_INFECT_RADIUS", usage: "infection radius",
		apply: func(c *engine.Config, v string) error {
			var r float64
			if err := parseFloat("infect_radius", v, &r); err != nil {
				return err
			}
			if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
				return &engine.ConfigError{Param: "infect_radius", Value: r, Reason: "must be a finite non-negative number"}
			}
			c.InfectDistance2 = r * r
			return nil
		}},
	{flag: "time-to-recover", env: "EPISIM_TIME_TO_RECOVER", usage: "steps sick before immunity",
		apply: func(c *engine.Config, v string) error { return parseInt("time_to_recover", v, &c.TimeToRecover) }},
	{flag: "motion-noise", env: "EPISIM_MOTION_NOISE", usage: "per-step motion scale",
		apply: func(c *engine.Config, v string) error { return parseFloat("motion_noise", v, &c.MotionNoise) }},
	{flag: "localised", env: "EPISIM_LOCALISED", usage: "seed the outbreak from the localised zone", isBool: true,
		apply: func(c *engine.Config, v string) error { return parseBool("localised", v, &c.Localised) }},
	{flag: "localised-zone", env: "EPISIM_LOCALISED_ZONE", usage: "localised zone as x0,x1,y0,y1",
		apply: func(c *engine.Config, v string) error { return parseZone("localised_zone", v, &c.LocalisedZone) }},
	{flag: "restrict-motion", env: "EPISIM_RESTRICT_MOTION", usage: "sick agents stand still", isBool: true,
		apply: func(c *engine.Config, v string) error { return parseBool("restrict_motion", v, &c.RestrictMotion) }},
	{flag: "quarantine", env: "EPISIM_QUARANTINE", usage: "block crossings of the quarantine zone", isBool: true,
		apply: func(c *engine.Config, v string) error { return parseBool("quarantine", v, &c.Quarantine) }},
	{flag: "quarantine-zone", env: "EPISIM_QUARANTINE_ZONE", usage: "quarantine zone as x0,x1,y0,y1",
		apply: func(c *engine.Config, v string) error { return parseZone("quarantine_zone", v, &c.QuarantineZone) }},
	{flag: "quarantine-effectiveness", env: "EPISIM_QUARANTINE_EFFECTIVENESS", usage: "probability a quarantine crossing is blocked",
		apply: func(c *engine.Config, v string) error {
			return parseFloat("quarantine_effectiveness", v, &c.QuarantineEffectiveness)
		}},
}

func parseInt(param, v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return &engine.ConfigError{Param: param, Value: v, Reason: "not an integer"}
	}
	*dst = n
	return nil
}

func parseInt64(param, v string, dst *int64) error {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return &engine.ConfigError{Param: param, Value: v, Reason: "not an integer"}
	}
	*dst = n
	return nil
}

func parseFloat(param, v string, dst *float64) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return &engine.ConfigError{Param: param, Value: v, Reason: "not a number"}
	}
	*dst = f
	return nil
}

func parseBool(param, v string, dst *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return &engine.ConfigError{Param: param, Value: v, Reason: "not a boolean"}
	}
	*dst = b
	return nil
}

func parseZone(param, v string, dst *space.Zone) error {
	z, err := space.ParseZone(v)
	if err != nil {
		return &engine.ConfigError{Param: param, Value: v, Reason: err.Error()}
	}
	*dst = z
	return nil
}

// newLogger builds the process logger. Text output goes to terminals, JSON
// everywhere else, unless the format is forced.
func newLogger(o *options, w io.Writer, tty bool) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", o.logLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch o.logFormat {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "auto", "":
		if tty {
			return slog.New(slog.NewTextHandler(w, opts)), nil
		}
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", o.logFormat)
	}
}

// logOutput picks where logs go. The live terminal view owns stdout and stderr,
// so without a log file its logs are dropped.
func logOutput(o *options) (io.Writer, bool, func() error, error) {
	if o.logFile != "" {
		f, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, false, nil, fmt.Errorf("open log file: %w", err)
		}
		return f, false, f.Close, nil
	}
	if o.terminal {
		return io.Discard, false, func() error { return nil }, nil
	}
	tty := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	return os.Stderr, tty, func() error { return nil }, nil
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

func envBoolOrDefault(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
