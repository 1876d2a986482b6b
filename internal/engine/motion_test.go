package engine

import (
	"math"
	"reflect"
	"testing"

	"github.com/paulmach/orb"

	"github.com/talgya/episim/internal/agents"
	"github.com/talgya/episim/internal/space"
)

func near(a, b orb.Point) bool {
	return math.Abs(a[0]-b[0]) < 1e-12 && math.Abs(a[1]-b[1]) < 1e-12
}

func TestMoveDrawsMagnitudeThenAnglePerAgent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MotionNoise = 0.1
	pop := agents.Population{
		{Position: orb.Point{0.5, 0.5}},
		{Position: orb.Point{0.2, 0.2}},
	}
	// Agent 0: r = 1*0.1 along θ = π/2. Agent 1: r = -2*0.1 along θ = 0.
	rng := &scriptedSource{norms: []float64{1, -2}, floats: []float64{0.5, 0}}
	sim := newFixedSim(cfg, pop, rng)

	sim.move()

	if want := []string{"norm", "float", "norm", "float"}; !reflect.DeepEqual(rng.calls, want) {
		t.Errorf("draw order = %v, want %v", rng.calls, want)
	}
	if p := sim.Agents[0].Position; !near(p, orb.Point{0.5, 0.6}) {
		t.Errorf("agent 0 moved to %v, want (0.5, 0.6)", p)
	}
	if p := sim.Agents[1].Position; !near(p, orb.Point{0.0, 0.2}) {
		t.Errorf("agent 1 moved to %v, want (0, 0.2)", p)
	}
}

func TestMoveClampsAtCorners(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MotionNoise = 1
	pop := agents.Population{
		{Position: orb.Point{0, 0}},
		{Position: orb.Point{1, 1}},
	}
	// Agent 0 pushed down-left (negative radius, θ = π/4); agent 1 pushed up (θ = π/2).
	rng := &scriptedSource{norms: []float64{-3, 3}, floats: []float64{0.25, 0.5}}
	sim := newFixedSim(cfg, pop, rng)

	sim.move()

	if p := sim.Agents[0].Position; p != (orb.Point{0, 0}) {
		t.Errorf("agent at origin escaped to %v", p)
	}
	if p := sim.Agents[1].Position; p[0] < 0 || p[0] > 1 || p[1] != 1 {
		t.Errorf("agent at (1,1) escaped to %v", p)
	}
}

func TestStationaryAgentsStillConsumeDraws(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MotionNoise = 0
	pop := agents.Population{{Position: orb.Point{0.3, 0.3}}, {Position: orb.Point{0.7, 0.7}}}
	rng := &scriptedSource{norms: []float64{5, 5}, floats: []float64{0.1, 0.9}}
	sim := newFixedSim(cfg, pop, rng)
	sim.Agents[0].MotionNoise = 0
	sim.Agents[1].MotionNoise = 0

	sim.move()

	if len(rng.calls) != 4 {
		t.Errorf("expected 4 draws, got %d", len(rng.calls))
	}
	if sim.Agents[0].Position != (orb.Point{0.3, 0.3}) || sim.Agents[1].Position != (orb.Point{0.7, 0.7}) {
		t.Error("agents with zero noise moved")
	}
}

func TestQuarantineBlocksCrossingsBothWays(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quarantine = true
	cfg.QuarantineZone = space.NewZone(0.4, 0.6, 0.4, 0.6)
	cfg.QuarantineEffectiveness = 0.5
	cfg.MotionNoise = 0.1

	pop := agents.Population{
		{Position: orb.Point{0.45, 0.5}}, // inside, steps out along +x
		{Position: orb.Point{0.35, 0.5}}, // outside, steps in along +x
		{Position: orb.Point{0.1, 0.1}},  // outside, stays outside
		{Position: orb.Point{0.35, 0.5}}, // outside, steps in, crossing allowed
	}
	rng := &scriptedSource{
		norms: []float64{2, 1, 1, 1},
		// Four angle draws (θ = 0), then one crossing draw per crossing agent.
		floats: []float64{0, 0, 0, 0, 0.1, 0.2, 0.9},
	}
	sim := newFixedSim(cfg, pop, rng)

	sim.moveWithQuarantine()

	wantCalls := []string{"norm", "float", "norm", "float", "norm", "float", "norm", "float", "float", "float", "float"}
	if !reflect.DeepEqual(rng.calls, wantCalls) {
		t.Errorf("draw order = %v, want %v", rng.calls, wantCalls)
	}
	if p := sim.Agents[0].Position; p != (orb.Point{0.45, 0.5}) {
		t.Errorf("exit should have been blocked, agent 0 at %v", p)
	}
	if p := sim.Agents[1].Position; p != (orb.Point{0.35, 0.5}) {
		t.Errorf("entry should have been blocked, agent 1 at %v", p)
	}
	if p := sim.Agents[2].Position; !near(p, orb.Point{0.2, 0.1}) {
		t.Errorf("non-crossing agent should move freely, agent 2 at %v", p)
	}
	if p := sim.Agents[3].Position; !near(p, orb.Point{0.45, 0.5}) {
		t.Errorf("crossing with a high draw should stand, agent 3 at %v", p)
	}
}

func TestRestrictedSickAgentsStandStill(t *testing.T) {
	cfg, _ := Preset("restricted")
	cfg.InfectDistance2 = 0
	cfg.TimeToRecover = 3
	cfg.MotionNoise = 0.05
	cfg.Seed = 4

	pop := agents.Population{
		{Position: orb.Point{0.5, 0.5}},
		{Position: orb.Point{0.2, 0.8}},
	}
	pop[0].Infect()
	sim := newFixedSim(cfg, pop, &scriptedSource{norms: []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, floats: make([]float64, 12)})

	// The first step still moves the sick agent. Its noise is zeroed at its first
	// illness check and stays zero until it recovers.
	sim.Step()
	if sim.Agents[0].MotionNoise != 0 {
		t.Fatalf("sick agent noise should be 0, got %v", sim.Agents[0].MotionNoise)
	}
	pinned := sim.Agents[0].Position
	for sim.Agents[0].State == agents.Sick {
		sim.Step()
		if sim.Agents[0].State == agents.Sick && sim.Agents[0].Position != pinned {
			t.Fatalf("restricted sick agent moved at tick %d", sim.Tick)
		}
	}
	if sim.Agents[0].MotionNoise != cfg.MotionNoise {
		t.Errorf("immune agent noise should be restored to %v, got %v", cfg.MotionNoise, sim.Agents[0].MotionNoise)
	}
	if sim.Agents[1].MotionNoise != cfg.MotionNoise {
		t.Errorf("healthy agent noise changed to %v", sim.Agents[1].MotionNoise)
	}
}
