package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/talgya/episim/internal/space"
)

// ErrInvalidConfig is wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError names the parameter that made a configuration unusable.
type ConfigError struct {
	Param  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%v: %s", e.Param, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// Config holds the parameters of one simulation run.
type Config struct {
	PopulationSize  int     `json:"population_size"`
	InitialSick     int     `json:"initial_sick"`      // Advisory when Localised is set
	InfectDistance2 float64 `json:"infect_distance2"`  // Squared radius under which infection occurs
	TimeToRecover   int     `json:"time_to_recover"`   // Steps sick before turning immune
	MotionNoise     float64 `json:"motion_noise"`      // Base per-step displacement scale

	Localised     bool       `json:"localised"` // Seed the outbreak from LocalisedZone
	LocalisedZone space.Zone `json:"localised_zone"`

	RestrictMotion bool `json:"restrict_motion"` // Sick agents stand still

	Quarantine              bool       `json:"quarantine"`
	QuarantineZone          space.Zone `json:"quarantine_zone"`
	QuarantineEffectiveness float64    `json:"quarantine_effectiveness"` // Probability a crossing is blocked

	Seed int64 `json:"seed"`
}

// DefaultConfig returns the reference parameter set: 100 agents, 5 initially sick,
// infection radius 0.025, recovery after 25 steps.
func DefaultConfig() Config {
	return Config{
		PopulationSize:          100,
		InitialSick:             5,
		InfectDistance2:         0.025 * 0.025,
		TimeToRecover:           25,
		MotionNoise:             0.05,
		LocalisedZone:           space.NewZone(0.4, 0.6, 0.4, 0.6),
		QuarantineZone:          space.NewZone(0.35, 0.65, 0.35, 0.65),
		QuarantineEffectiveness: 0.95,
		Seed:                    0,
	}
}

var presets = map[string]func(*Config){
	"baseline":   func(*Config) {},
	"localised":  func(c *Config) { c.Localised = true },
	"restricted": func(c *Config) { c.RestrictMotion = true },
	"quarantine": func(c *Config) { c.Quarantine = true },
}

// Preset returns DefaultConfig with the named policy switched on.
func Preset(name string) (Config, error) {
	apply, ok := presets[name]
	if !ok {
		return Config{}, &ConfigError{Param: "preset", Value: name, Reason: "unknown preset"}
	}
	cfg := DefaultConfig()
	apply(&cfg)
	return cfg, nil
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate rejects any configuration a run cannot start from.
// Values are never clamped or defaulted.
func (c Config) Validate() error {
	if c.PopulationSize <= 0 {
		return &ConfigError{"population_size", c.PopulationSize, "must be positive"}
	}
	if c.InitialSick < 0 {
		return &ConfigError{"initial_sick", c.InitialSick, "must not be negative"}
	}
	if c.InitialSick > c.PopulationSize {
		return &ConfigError{"initial_sick", c.InitialSick,
			fmt.Sprintf("exceeds population size %d", c.PopulationSize)}
	}
	if !finite(c.InfectDistance2) || c.InfectDistance2 < 0 {
		return &ConfigError{"infect_distance2", c.InfectDistance2, "must be a finite non-negative number"}
	}
	if c.TimeToRecover < 0 {
		return &ConfigError{"time_to_recover", c.TimeToRecover, "must not be negative"}
	}
	if !finite(c.MotionNoise) || c.MotionNoise < 0 {
		return &ConfigError{"motion_noise", c.MotionNoise, "must be a finite non-negative number"}
	}
	if c.Localised {
		if err := c.LocalisedZone.Validate(); err != nil {
			return &ConfigError{"localised_zone", c.LocalisedZone, err.Error()}
		}
	}
	if c.Quarantine {
		if err := c.QuarantineZone.Validate(); err != nil {
			return &ConfigError{"quarantine_zone", c.QuarantineZone, err.Error()}
		}
		p := c.QuarantineEffectiveness
		if math.IsNaN(p) || p < 0 || p > 1 {
			return &ConfigError{"quarantine_effectiveness", p, "must be a probability in [0,1]"}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
