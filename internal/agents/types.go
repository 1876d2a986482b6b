// Package agents provides the agent data model and population setup.
package agents

import (
	"fmt"

	"github.com/paulmach/orb"
)

// HealthState is an agent's position in the Healthy → Sick → Immune progression.
// The numeric order matches the progression; states never decrease.
type HealthState uint8

const (
	Healthy HealthState = iota
	Sick
	Immune
)

var healthNames = [...]string{"healthy", "sick", "immune"}

func (h HealthState) String() string {
	if int(h) < len(healthNames) {
		return healthNames[h]
	}
	return fmt.Sprintf("HealthState(%d)", uint8(h))
}

// ParseHealthState is the inverse of HealthState.String.
func ParseHealthState(s string) (HealthState, error) {
	for i, name := range healthNames {
		if name == s {
			return HealthState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown health state %q", s)
}

// MarshalText encodes the state by name, so JSON carries "sick" rather than 1.
func (h HealthState) MarshalText() ([]byte, error) {
	if int(h) >= len(healthNames) {
		return nil, fmt.Errorf("invalid health state %d", uint8(h))
	}
	return []byte(healthNames[h]), nil
}

func (h *HealthState) UnmarshalText(b []byte) error {
	v, err := ParseHealthState(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Agent is one individual moving in the unit square.
type Agent struct {
	Position    orb.Point   `json:"position"`
	State       HealthState `json:"state"`
	SickSteps   int         `json:"sick_steps"`   // Steps spent sick; frozen once immune
	MotionNoise float64     `json:"motion_noise"` // Scale of per-step displacement
}

// Infect moves a healthy agent to Sick. Sick and immune agents are unaffected.
// Returns true if the state changed.
func (a *Agent) Infect() bool {
	if a.State != Healthy {
		return false
	}
	a.State = Sick
	a.SickSteps = 0
	return true
}

// Recover moves a sick agent to Immune and restores its motion.
func (a *Agent) Recover(baseNoise float64) {
	if a.State != Sick {
		return
	}
	a.State = Immune
	a.MotionNoise = baseNoise
}

// Counts is the number of agents in each health state.
type Counts struct {
	Healthy int `json:"healthy" db:"healthy"`
	Sick    int `json:"sick" db:"sick"`
	Immune  int `json:"immune" db:"immune"`
}

// Total is the population size the counts describe.
func (c Counts) Total() int {
	return c.Healthy + c.Sick + c.Immune
}

// Population is the index-stable set of agents in a run.
type Population []Agent

// Counts tallies agents by health state.
func (p Population) Counts() Counts {
	var c Counts
	for i := range p {
		switch p[i].State {
		case Healthy:
			c.Healthy++
		case Sick:
			c.Sick++
		case Immune:
			c.Immune++
		}
	}
	return c
}

// Positions returns a copy of every agent's position, in index order.
func (p Population) Positions() []orb.Point {
	out := make([]orb.Point, len(p))
	for i := range p {
		out[i] = p[i].Position
	}
	return out
}
