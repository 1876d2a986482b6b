// Package persistence provides the SQLite run archive.
// Every run is recorded as it happens: its configuration, the per-step counts,
// and the final population. Runs are reports; nothing is ever resumed from them.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/episim/internal/agents"
	"github.com/talgya/episim/internal/engine"
)

// DB wraps a SQLite connection for the run archive.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		preset TEXT NOT NULL,
		seed INTEGER NOT NULL,
		population INTEGER NOT NULL,
		config_json TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		steps INTEGER NOT NULL DEFAULT 0,
		healthy INTEGER NOT NULL DEFAULT 0,
		sick INTEGER NOT NULL DEFAULT 0,
		immune INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS history (
		run_id TEXT NOT NULL REFERENCES runs(id),
		step INTEGER NOT NULL,
		healthy INTEGER NOT NULL,
		sick INTEGER NOT NULL,
		immune INTEGER NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE TABLE IF NOT EXISTS agents (
		run_id TEXT NOT NULL REFERENCES runs(id),
		idx INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		state TEXT NOT NULL,
		PRIMARY KEY (run_id, idx)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is one archived simulation run.
type Run struct {
	ID         string     `json:"id" db:"id"`
	Preset     string     `json:"preset" db:"preset"`
	Seed       int64      `json:"seed" db:"seed"`
	Population int        `json:"population" db:"population"`
	ConfigJSON string     `json:"-" db:"config_json"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Steps      int        `json:"steps" db:"steps"`
	agents.Counts
}

// Config decodes the configuration the run was started with.
func (r *Run) Config() (engine.Config, error) {
	var cfg engine.Config
	if err := json.Unmarshal([]byte(r.ConfigJSON), &cfg); err != nil {
		return cfg, fmt.Errorf("decode config of run %s: %w", r.ID, err)
	}
	return cfg, nil
}

// BeginRun registers a new run and returns a recorder for its steps.
func (db *DB) BeginRun(preset string, cfg engine.Config) (*Recorder, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	id := uuid.New()
	_, err = db.conn.Exec(`INSERT INTO runs
		(id, preset, seed, population, config_json, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), preset, cfg.Seed, cfg.PopulationSize, string(cfgJSON), time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run %s: %w", id, err)
	}

	slog.Info("run registered", "run_id", id, "preset", preset, "seed", cfg.Seed)
	return &Recorder{db: db, id: id}, nil
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	return runs, err
}

// GetRun returns a single run.
func (db *DB) GetRun(id string) (*Run, error) {
	var run Run
	if err := db.conn.Get(&run, "SELECT * FROM runs WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

// History returns the per-step counts of a run in step order.
func (db *DB) History(id string) ([]agents.Counts, error) {
	var hist []agents.Counts
	err := db.conn.Select(&hist,
		"SELECT healthy, sick, immune FROM history WHERE run_id = ? ORDER BY step",
		id,
	)
	return hist, err
}

// FinalAgents returns the positions and states recorded when a run finished.
func (db *DB) FinalAgents(id string) ([]engine.AgentView, error) {
	var rows []struct {
		X     float64 `db:"x"`
		Y     float64 `db:"y"`
		State string  `db:"state"`
	}
	if err := db.conn.Select(&rows, "SELECT x, y, state FROM agents WHERE run_id = ? ORDER BY idx", id); err != nil {
		return nil, err
	}
	out := make([]engine.AgentView, len(rows))
	for i, r := range rows {
		st, err := agents.ParseHealthState(r.State)
		if err != nil {
			return nil, fmt.Errorf("agent %d of run %s: %w", i, id, err)
		}
		out[i] = engine.AgentView{State: st}
		out[i].Position[0], out[i].Position[1] = r.X, r.Y
	}
	return out, nil
}
