// Infection and recovery.
package engine

import (
	"github.com/talgya/episim/internal/agents"
	"github.com/talgya/episim/internal/space"
)

// interact checks agent i against every agent j > i. States are updated in place,
// so an agent infected earlier in the scan can pass the infection on in the same step.
func (s *Simulation) interact(i int) {
	r2 := s.Config.InfectDistance2
	ai := &s.Agents[i]
	for j := i + 1; j < len(s.Agents); j++ {
		aj := &s.Agents[j]
		if space.Dist2(ai.Position, aj.Position) >= r2 {
			continue
		}
		if aj.State == agents.Sick {
			ai.Infect()
		}
		if ai.State == agents.Sick {
			aj.Infect()
		}
	}
}

// advanceIllness advances agent i's illness. An agent turns immune once it has been
// sick for more than TimeToRecover steps.
func (s *Simulation) advanceIllness(i int) {
	a := &s.Agents[i]
	if a.State != agents.Sick {
		return
	}
	if a.SickSteps > s.Config.TimeToRecover {
		a.Recover(s.Config.MotionNoise)
		return
	}
	a.SickSteps++
	if s.Config.RestrictMotion {
		a.MotionNoise = 0
	}
}
