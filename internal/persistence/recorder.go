package persistence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/episim/internal/engine"
)

// Recorder appends one run's steps to the archive. It satisfies render.Renderer.
type Recorder struct {
	db       *DB
	id       uuid.UUID
	lastStep int
	recorded bool
}

// ID returns the run identifier.
func (r *Recorder) ID() string {
	return r.id.String()
}

// Render stores every history entry not yet written, so throttled callers lose nothing.
func (r *Recorder) Render(snap *engine.Snapshot) error {
	from := 0
	if r.recorded {
		from = r.lastStep + 1
	}
	if from >= len(snap.History) {
		return nil
	}

	tx, err := r.db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for step := from; step < len(snap.History); step++ {
		c := snap.History[step]
		_, err := tx.Exec(
			"INSERT INTO history (run_id, step, healthy, sick, immune) VALUES (?, ?, ?, ?, ?)",
			r.id.String(), step, c.Healthy, c.Sick, c.Immune,
		)
		if err != nil {
			return fmt.Errorf("insert step %d of run %s: %w", step, r.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.lastStep = len(snap.History) - 1
	r.recorded = true
	return nil
}

// Finish stores the final population and closes the run record.
func (r *Recorder) Finish(snap *engine.Snapshot) error {
	if err := r.Render(snap); err != nil {
		return fmt.Errorf("flush history: %w", err)
	}

	tx, err := r.db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT OR REPLACE INTO agents (run_id, idx, x, y, state) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, a := range snap.Agents {
		if _, err := stmt.Exec(r.id.String(), i, a.Position[0], a.Position[1], a.State.String()); err != nil {
			return fmt.Errorf("insert agent %d: %w", i, err)
		}
	}

	c := snap.Counts()
	_, err = tx.Exec(`UPDATE runs SET finished_at = ?, steps = ?, healthy = ?, sick = ?, immune = ?
		WHERE id = ?`,
		time.Now().UTC(), snap.Step, c.Healthy, c.Sick, c.Immune, r.id.String(),
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", r.id, err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("run archived", "run_id", r.id, "steps", snap.Step, "agents", len(snap.Agents))
	return nil
}
