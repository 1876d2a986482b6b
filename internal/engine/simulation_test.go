package engine

import (
	"reflect"
	"testing"

	"github.com/paulmach/orb"

	"github.com/talgya/episim/internal/agents"
	"github.com/talgya/episim/internal/entropy"
	"github.com/talgya/episim/internal/space"
)

// scriptedSource replays fixed draws and records the order they were taken in.
type scriptedSource struct {
	floats []float64
	norms  []float64
	calls  []string
}

func (s *scriptedSource) Float64() float64 {
	s.calls = append(s.calls, "float")
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *scriptedSource) NormFloat64() float64 {
	s.calls = append(s.calls, "norm")
	if len(s.norms) == 0 {
		return 0
	}
	v := s.norms[0]
	s.norms = s.norms[1:]
	return v
}

func (s *scriptedSource) Intn(n int) int {
	s.calls = append(s.calls, "intn")
	return 0
}

// newFixedSim builds a simulation around a hand-placed population.
func newFixedSim(cfg Config, pop agents.Population, rng entropy.Source) *Simulation {
	for i := range pop {
		if pop[i].MotionNoise == 0 {
			pop[i].MotionNoise = cfg.MotionNoise
		}
	}
	return &Simulation{
		Config:  cfg,
		Agents:  pop,
		History: []agents.Counts{pop.Counts()},
		rng:     rng,
		prev:    make([]orb.Point, len(pop)),
	}
}

func checkInvariants(t *testing.T, sim *Simulation, prevStates []agents.HealthState) {
	t.Helper()
	c := sim.Counts()
	if c.Total() != len(sim.Agents) {
		t.Fatalf("tick %d: counts %+v do not sum to %d", sim.Tick, c, len(sim.Agents))
	}
	for i, a := range sim.Agents {
		if a.State > agents.Immune {
			t.Fatalf("tick %d: agent %d has invalid state %d", sim.Tick, i, a.State)
		}
		if a.Position[0] < 0 || a.Position[0] > 1 || a.Position[1] < 0 || a.Position[1] > 1 {
			t.Fatalf("tick %d: agent %d left the unit square: %v", sim.Tick, i, a.Position)
		}
		if prevStates != nil && a.State < prevStates[i] {
			t.Fatalf("tick %d: agent %d regressed from %v to %v", sim.Tick, i, prevStates[i], a.State)
		}
	}
}

func states(sim *Simulation) []agents.HealthState {
	out := make([]agents.HealthState, len(sim.Agents))
	for i := range sim.Agents {
		out[i] = sim.Agents[i].State
	}
	return out
}

func runToEnd(t *testing.T, cfg Config) *Simulation {
	t.Helper()
	sim, err := NewSimulation(cfg, entropy.NewSeeded(cfg.Seed))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	checkInvariants(t, sim, nil)
	for !sim.Done() {
		before := states(sim)
		sim.Step()
		checkInvariants(t, sim, before)
		if sim.Tick > 10000 {
			t.Fatal("run did not terminate")
		}
	}
	return sim
}

func TestRunInvariants(t *testing.T) {
	for _, name := range PresetNames() {
		cfg, _ := Preset(name)
		cfg.Seed = 3
		cfg.InfectDistance2 = 0.05 * 0.05
		sim := runToEnd(t, cfg)

		if len(sim.History) != sim.Tick+1 {
			t.Errorf("%s: expected %d history entries, got %d", name, sim.Tick+1, len(sim.History))
		}
		for i := 1; i < len(sim.History); i++ {
			prev, cur := sim.History[i-1], sim.History[i]
			if cur.Immune < prev.Immune {
				t.Errorf("%s: immune count fell at step %d: %d -> %d", name, i, prev.Immune, cur.Immune)
			}
			if prev.Sick == 0 && cur.Sick != 0 {
				t.Errorf("%s: sickness reappeared at step %d", name, i)
			}
			if cur.Healthy > prev.Healthy {
				t.Errorf("%s: healthy count rose at step %d", name, i)
			}
		}
	}
}

func TestDeterministicHistory(t *testing.T) {
	cfg, _ := Preset("quarantine")
	cfg.Seed = 99
	cfg.InfectDistance2 = 0.04 * 0.04

	a := runToEnd(t, cfg)
	b := runToEnd(t, cfg)
	if !reflect.DeepEqual(a.History, b.History) {
		t.Fatal("same seed produced different histories")
	}
	if !reflect.DeepEqual(a.Agents, b.Agents) {
		t.Fatal("same seed produced different final populations")
	}

	cfg.Seed = 100
	c := runToEnd(t, cfg)
	if reflect.DeepEqual(a.Agents.Positions(), c.Agents.Positions()) {
		t.Error("different seeds should not produce identical positions")
	}
}

func TestInitialHistoryRecordsActualCounts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 5
	cfg.Localised = true
	sim, err := NewSimulation(cfg, entropy.NewSeeded(cfg.Seed))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	inZone := 0
	for _, a := range sim.Agents {
		if cfg.LocalisedZone.Contains(a.Position) {
			inZone++
			if a.State != agents.Sick {
				t.Errorf("agent in localised zone is %v, want sick", a.State)
			}
		} else if a.State != agents.Healthy {
			t.Errorf("agent outside localised zone is %v, want healthy", a.State)
		}
	}
	want := agents.Counts{Healthy: cfg.PopulationSize - inZone, Sick: inZone}
	if len(sim.History) != 1 || sim.History[0] != want {
		t.Errorf("expected initial history [%+v], got %v", want, sim.History)
	}
	if sim.Tick != 0 {
		t.Errorf("expected tick 0, got %d", sim.Tick)
	}
}

func TestLocalisedOutbreakMayBeEmpty(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PopulationSize = 1
	cfg.InitialSick = 1
	cfg.Localised = true
	cfg.LocalisedZone = space.NewZone(0.999999, 1, 0.999999, 1)
	sim, err := NewSimulation(cfg, entropy.NewSeeded(1))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	if !sim.Done() {
		t.Error("an outbreak with nobody in the zone should be over immediately")
	}
}

// All ten agents in range of each other, two sick, zero motion, recovery threshold 0.
func TestScenarioChainInfectionThenRecovery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PopulationSize = 10
	cfg.InitialSick = 2
	cfg.InfectDistance2 = 2
	cfg.MotionNoise = 0
	cfg.TimeToRecover = 0

	pop := make(agents.Population, 10)
	for i := range pop {
		pop[i].Position = orb.Point{float64(i) / 10, float64(i) / 10}
	}
	pop[0].Infect()
	pop[1].Infect()
	sim := newFixedSim(cfg, pop, entropy.NewSeeded(1))

	c := sim.Step()
	if c != (agents.Counts{Sick: 10}) {
		t.Fatalf("after step 1 expected all sick, got %+v", c)
	}
	for i, a := range sim.Agents {
		if a.SickSteps != 1 {
			t.Errorf("agent %d: expected 1 sick step, got %d", i, a.SickSteps)
		}
	}

	c = sim.Step()
	if c != (agents.Counts{Immune: 10}) {
		t.Fatalf("after step 2 expected all immune, got %+v", c)
	}
	if !sim.Done() || sim.Tick != 2 {
		t.Errorf("expected run over at tick 2, got done=%v tick=%d", sim.Done(), sim.Tick)
	}
	want := []agents.Counts{{Healthy: 8, Sick: 2}, {Sick: 10}, {Immune: 10}}
	if !reflect.DeepEqual(sim.History, want) {
		t.Errorf("history = %v, want %v", sim.History, want)
	}
}

// With a zero radius no pair is ever in range, even agents sharing a position.
func TestScenarioNoTransmission(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InfectDistance2 = 0
	cfg.TimeToRecover = 4
	cfg.Seed = 8

	sim, err := NewSimulation(cfg, entropy.NewSeeded(cfg.Seed))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	sim.Agents[0].Position = sim.Agents[1].Position

	// Sick for TimeToRecover+1 increments, immune on the following step.
	for step := 1; step <= cfg.TimeToRecover+1; step++ {
		c := sim.Step()
		if c.Sick != cfg.InitialSick || c.Immune != 0 {
			t.Fatalf("step %d: expected %d sick and none immune, got %+v", step, cfg.InitialSick, c)
		}
	}
	c := sim.Step()
	if c.Sick != 0 || c.Immune != cfg.InitialSick || c.Healthy != cfg.PopulationSize-cfg.InitialSick {
		t.Fatalf("expected cohort to recover at step %d, got %+v", cfg.TimeToRecover+2, c)
	}
	if !sim.Done() {
		t.Error("run should be over")
	}
}

// A fully effective quarantine never lets membership of the zone change.
func TestScenarioSealedQuarantine(t *testing.T) {
	cfg, _ := Preset("quarantine")
	cfg.QuarantineEffectiveness = 1
	cfg.MotionNoise = 0.1
	cfg.Seed = 21
	cfg.InfectDistance2 = 0.04 * 0.04

	sim, err := NewSimulation(cfg, entropy.NewSeeded(cfg.Seed))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	initial := make([]bool, len(sim.Agents))
	for i, a := range sim.Agents {
		initial[i] = cfg.QuarantineZone.Contains(a.Position)
	}

	for step := 0; step < 200 && !sim.Done(); step++ {
		sim.Step()
		for i, a := range sim.Agents {
			if got := cfg.QuarantineZone.Contains(a.Position); got != initial[i] {
				t.Fatalf("step %d: agent %d crossed the quarantine boundary (inside=%v)", sim.Tick, i, got)
			}
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 2
	sim, err := NewSimulation(cfg, entropy.NewSeeded(cfg.Seed))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	sim.Step()
	snap := sim.Snapshot()
	if snap.Step != 1 || len(snap.History) != 2 || len(snap.Agents) != cfg.PopulationSize {
		t.Fatalf("unexpected snapshot shape: step=%d history=%d agents=%d",
			snap.Step, len(snap.History), len(snap.Agents))
	}
	if snap.Counts() != sim.Counts() {
		t.Errorf("snapshot counts %+v != simulation counts %+v", snap.Counts(), sim.Counts())
	}

	pos := snap.Agents[0].Position
	sim.Step()
	if snap.Agents[0].Position != pos || len(snap.History) != 2 {
		t.Error("stepping the simulation mutated an earlier snapshot")
	}
}
