// Agent spawning: places the initial population and seeds the outbreak.
package agents

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/talgya/episim/internal/entropy"
	"github.com/talgya/episim/internal/space"
)

// Spawner creates the population for a run.
type Spawner struct {
	rng       entropy.Source
	baseNoise float64
}

// NewSpawner creates a spawner drawing from rng. Every agent starts with baseNoise motion.
func NewSpawner(rng entropy.Source, baseNoise float64) *Spawner {
	return &Spawner{rng: rng, baseNoise: baseNoise}
}

// SpawnPopulation places count healthy agents uniformly in the unit square.
// Draw order: x then y, agent by agent.
func (s *Spawner) SpawnPopulation(count int) Population {
	pop := make(Population, count)
	for i := range pop {
		x := entropy.Uniform(s.rng, 0, 1)
		y := entropy.Uniform(s.rng, 0, 1)
		pop[i] = Agent{
			Position:    orb.Point{x, y},
			State:       Healthy,
			MotionNoise: s.baseNoise,
		}
	}
	return pop
}

// SeedRandom marks count distinct agents, chosen uniformly, as sick.
// Returns the chosen indices.
func (s *Spawner) SeedRandom(pop Population, count int) ([]int, error) {
	if count < 0 || count > len(pop) {
		return nil, fmt.Errorf("cannot seed %d sick agents in a population of %d", count, len(pop))
	}
	chosen := entropy.Sample(s.rng, len(pop), count)
	for _, i := range chosen {
		pop[i].Infect()
	}
	return chosen, nil
}

// SeedZone marks every agent strictly inside zone as sick, however many that is.
// Consumes no random draws. Returns the chosen indices.
func (s *Spawner) SeedZone(pop Population, zone space.Zone) []int {
	var chosen []int
	for i := range pop {
		if zone.Contains(pop[i].Position) {
			pop[i].Infect()
			chosen = append(chosen, i)
		}
	}
	return chosen
}
