// Package engine advances an epidemic over a population of moving agents.
//
// A step runs motion, the quarantine correction, the pairwise infection scan
// with recovery, and bookkeeping, in that order. All randomness comes from the
// single entropy.Source handed to NewSimulation.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/talgya/episim/internal/agents"
	"github.com/talgya/episim/internal/entropy"
)

// Simulation holds the population and history of one run.
type Simulation struct {
	Config  Config
	Agents  agents.Population
	Tick    int             // Steps taken so far
	History []agents.Counts // One entry per step, starting with the initial state

	rng  entropy.Source
	prev []orb.Point // Pre-motion positions, reused across steps
}

// NewSimulation validates cfg, places the population, and seeds the outbreak.
// Placement draws come first from rng, then the random outbreak sample.
func NewSimulation(cfg Config, rng entropy.Source) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	spawner := agents.NewSpawner(rng, cfg.MotionNoise)
	pop := spawner.SpawnPopulation(cfg.PopulationSize)

	var seeded []int
	if cfg.Localised {
		seeded = spawner.SeedZone(pop, cfg.LocalisedZone)
		if len(seeded) != cfg.InitialSick {
			slog.Warn("localised outbreak size differs from initial_sick",
				"initial_sick", cfg.InitialSick,
				"in_zone", len(seeded),
			)
		}
	} else {
		var err error
		seeded, err = spawner.SeedRandom(pop, cfg.InitialSick)
		if err != nil {
			return nil, fmt.Errorf("seed outbreak: %w", err)
		}
	}

	s := &Simulation{
		Config: cfg,
		Agents: pop,
		rng:    rng,
		prev:   make([]orb.Point, len(pop)),
	}
	s.History = append(s.History, pop.Counts())

	slog.Debug("simulation initialised",
		"population", len(pop),
		"sick", len(seeded),
		"localised", cfg.Localised,
		"quarantine", cfg.Quarantine,
		"restrict_motion", cfg.RestrictMotion,
	)
	return s, nil
}

// Step advances the run by one tick and returns the new counts.
func (s *Simulation) Step() agents.Counts {
	if s.Config.Quarantine {
		s.moveWithQuarantine()
	} else {
		s.move()
	}

	n := len(s.Agents)
	for i := 0; i < n; i++ {
		s.interact(i)
		s.advanceIllness(i)
	}

	c := s.Agents.Counts()
	s.History = append(s.History, c)
	s.Tick++

	slog.Debug("step", "tick", s.Tick, "healthy", c.Healthy, "sick", c.Sick, "immune", c.Immune)
	return c
}

// Counts returns the most recent aggregate counts.
func (s *Simulation) Counts() agents.Counts {
	return s.History[len(s.History)-1]
}

// Done reports whether no sick agents remain. Once true it stays true.
func (s *Simulation) Done() bool {
	return s.Counts().Sick == 0
}
