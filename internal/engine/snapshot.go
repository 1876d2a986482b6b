package engine

import (
	"github.com/paulmach/orb"

	"github.com/talgya/episim/internal/agents"
)

// AgentView is the part of an agent a renderer sees.
type AgentView struct {
	Position orb.Point          `json:"position"`
	State    agents.HealthState `json:"state"`
}

// Snapshot is a copy of the run at one step, safe to hand to other goroutines.
type Snapshot struct {
	Step    int             `json:"step"`
	Agents  []AgentView     `json:"agents"`
	History []agents.Counts `json:"history"`
}

// Counts returns the counts of the snapshot's step.
func (s *Snapshot) Counts() agents.Counts {
	if len(s.History) == 0 {
		return agents.Counts{}
	}
	return s.History[len(s.History)-1]
}

// Done reports whether the snapshot has no sick agents.
func (s *Snapshot) Done() bool {
	return s.Counts().Sick == 0
}

// Snapshot copies the current positions, states, and history.
func (s *Simulation) Snapshot() *Snapshot {
	views := make([]AgentView, len(s.Agents))
	for i := range s.Agents {
		views[i] = AgentView{Position: s.Agents[i].Position, State: s.Agents[i].State}
	}
	hist := make([]agents.Counts, len(s.History))
	copy(hist, s.History)
	return &Snapshot{Step: s.Tick, Agents: views, History: hist}
}
