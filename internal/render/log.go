package render

import (
	"fmt"
	"log/slog"

	"github.com/talgya/episim/internal/engine"
)

// Log reports each snapshot's counts through slog.
type Log struct {
	Logger *slog.Logger // nil = slog.Default()
}

func (l Log) Render(snap *engine.Snapshot) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := snap.Counts()
	logger.Info(fmt.Sprintf("iter: %d", snap.Step),
		"healthy", c.Healthy,
		"sick", c.Sick,
		"immune", c.Immune,
	)
	return nil
}
