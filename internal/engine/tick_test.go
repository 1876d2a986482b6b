package engine

import (
	"testing"
	"time"

	"github.com/talgya/episim/internal/entropy"
)

func newTestRunner(t *testing.T, seed int64) *Runner {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = seed
	cfg.InfectDistance2 = 0.05 * 0.05
	cfg.TimeToRecover = 10
	sim, err := NewSimulation(cfg, entropy.NewSeeded(seed))
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	return NewRunner(sim)
}

func TestRunnerRunsUntilOutbreakEnds(t *testing.T) {
	r := newTestRunner(t, 1)

	var seen []int
	done := 0
	r.OnStep = func(sim *Simulation) { seen = append(seen, sim.Tick) }
	r.OnDone = func(sim *Simulation) { done++ }
	r.Run()

	if !r.Sim.Done() {
		t.Fatal("runner returned with sick agents remaining")
	}
	if done != 1 {
		t.Errorf("OnDone called %d times", done)
	}
	if len(seen) != r.Sim.Tick+1 {
		t.Fatalf("OnStep called %d times for %d steps", len(seen), r.Sim.Tick)
	}
	for i, tick := range seen {
		if tick != i {
			t.Errorf("OnStep call %d saw tick %d", i, tick)
		}
	}
	if r.Running() {
		t.Error("runner still reports running")
	}
	if r.Elapsed() <= 0 {
		t.Error("elapsed time not recorded")
	}
}

func TestRunnerMaxSteps(t *testing.T) {
	r := newTestRunner(t, 2)
	r.MaxSteps = 3
	r.Run()
	if r.Sim.Tick != 3 {
		t.Errorf("expected to stop at tick 3, got %d", r.Sim.Tick)
	}
}

func TestRunnerStopFromCallback(t *testing.T) {
	r := newTestRunner(t, 3)
	r.OnStep = func(sim *Simulation) {
		if !r.Running() {
			t.Error("Running() false inside OnStep")
		}
		if sim.Tick == 2 {
			r.Stop()
		}
	}
	r.Run()
	if r.Sim.Tick != 2 {
		t.Errorf("expected to stop at tick 2, got %d", r.Sim.Tick)
	}
}

func TestRunnerInterval(t *testing.T) {
	r := newTestRunner(t, 4)
	r.MaxSteps = 3
	r.Interval = 10 * time.Millisecond
	start := time.Now()
	r.Run()
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("three steps at 10ms took only %v", elapsed)
	}
}
