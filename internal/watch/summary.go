package watch

import "github.com/talgya/episim/internal/agents"

// Phase labels where an outbreak stands.
type Phase string

const (
	PhaseUnknown   Phase = "UNKNOWN"
	PhaseGrowing   Phase = "GROWING"
	PhaseDeclining Phase = "DECLINING"
	PhaseOver      Phase = "OVER"
)

// Summary holds diagnostics derived from a count history.
type Summary struct {
	Steps      int     // Steps taken; the history holds Steps+1 entries
	PeakSick   int     // Largest sick count seen
	PeakStep   int     // First step at which PeakSick was reached
	AttackRate float64 // Share of the population ever infected
	Phase      Phase
}

// Summarize computes a Summary from a history indexed by step.
func Summarize(history []agents.Counts) Summary {
	s := Summary{Phase: PhaseUnknown}
	if len(history) == 0 {
		return s
	}
	s.Steps = len(history) - 1
	for step, c := range history {
		if c.Sick > s.PeakSick {
			s.PeakSick = c.Sick
			s.PeakStep = step
		}
	}

	last := history[len(history)-1]
	// Agents never become healthy again, so everyone not healthy was infected.
	if total := last.Total(); total > 0 {
		s.AttackRate = float64(last.Sick+last.Immune) / float64(total)
	}

	switch {
	case last.Sick == 0:
		s.Phase = PhaseOver
	case len(history) >= 2 && last.Sick < history[len(history)-2].Sick:
		s.Phase = PhaseDeclining
	case len(history) >= 2:
		s.Phase = PhaseGrowing
	}
	return s
}
