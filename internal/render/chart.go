package render

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/talgya/episim/internal/engine"
)

// Chart writes each snapshot as a PNG frame named frame_NNNNN.png under Dir.
type Chart struct {
	Dir  string
	Size int // Panel size in pixels (0 = DefaultPanelSize)
}

// NewChart creates the output directory.
func NewChart(dir string, size int) (*Chart, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create chart dir: %w", err)
	}
	return &Chart{Dir: dir, Size: size}, nil
}

func (c *Chart) Render(snap *engine.Snapshot) error {
	img, err := Frame(snap, c.Size)
	if err != nil {
		return fmt.Errorf("chart frame %d: %w", snap.Step, err)
	}
	path := c.Path(snap.Step)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("chart frame %d: %w", snap.Step, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Path returns the file a given step is written to.
func (c *Chart) Path(step int) string {
	return filepath.Join(c.Dir, fmt.Sprintf("frame_%05d.png", step))
}

// WriteHistoryPNG writes only the count history of snap as a PNG chart.
func WriteHistoryPNG(path string, snap *engine.Snapshot, size int) error {
	if size <= 0 {
		size = DefaultPanelSize
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("history chart: %w", err)
	}
	defer f.Close()
	if err := historyChart(snap, size).Render(chart.PNG, f); err != nil {
		return fmt.Errorf("render history chart: %w", err)
	}
	return f.Close()
}
