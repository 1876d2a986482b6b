// Motion: random displacement clamped to the unit square, plus the quarantine barrier.
package engine

import (
	"github.com/talgya/episim/internal/entropy"
	"github.com/talgya/episim/internal/space"
)

// move displaces every agent by a normal magnitude along an upper-half-plane angle.
// Two draws per agent in index order, even for agents that stand still.
func (s *Simulation) move() {
	for i := range s.Agents {
		a := &s.Agents[i]
		r := s.rng.NormFloat64() * a.MotionNoise
		theta := entropy.Angle(s.rng)
		a.Position = space.ClampUnit(space.Displace(a.Position, r, theta))
	}
}

// moveWithQuarantine runs move, then undoes zone crossings with probability
// QuarantineEffectiveness. Entering and leaving the zone are treated alike;
// one draw is taken per crossing agent, in index order.
func (s *Simulation) moveWithQuarantine() {
	for i := range s.Agents {
		s.prev[i] = s.Agents[i].Position
	}

	s.move()

	zone := s.Config.QuarantineZone
	p := s.Config.QuarantineEffectiveness
	for i := range s.Agents {
		a := &s.Agents[i]
		if zone.Contains(a.Position) == zone.Contains(s.prev[i]) {
			continue
		}
		if s.rng.Float64() < p {
			a.Position = s.prev[i]
		}
	}
}
