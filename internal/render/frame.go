// Frame drawing: agent scatter on the left, count history on the right.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/talgya/episim/internal/agents"
	"github.com/talgya/episim/internal/engine"
)

// DefaultPanelSize is the edge length in pixels of each half of a frame.
const DefaultPanelSize = 480

var stateColors = map[agents.HealthState]drawing.Color{
	agents.Healthy: chart.ColorGreen,
	agents.Sick:    chart.ColorRed,
	agents.Immune:  chart.ColorBlue,
}

// Frame draws a snapshot as two size×size panels side by side.
func Frame(snap *engine.Snapshot, size int) (*image.RGBA, error) {
	if size <= 0 {
		size = DefaultPanelSize
	}
	scatter, err := renderPNG(scatterChart(snap, size))
	if err != nil {
		return nil, fmt.Errorf("scatter: %w", err)
	}
	history, err := renderPNG(historyChart(snap, size))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, 2*size, size))
	draw.Draw(frame, frame.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(frame, image.Rect(0, 0, size, size), scatter, scatter.Bounds().Min, draw.Src)
	draw.Draw(frame, image.Rect(size, 0, 2*size, size), history, history.Bounds().Min, draw.Src)
	return frame, nil
}

func scatterChart(snap *engine.Snapshot, size int) chart.Chart {
	xs := make(map[agents.HealthState][]float64)
	ys := make(map[agents.HealthState][]float64)
	for _, a := range snap.Agents {
		xs[a.State] = append(xs[a.State], a.Position[0])
		ys[a.State] = append(ys[a.State], a.Position[1])
	}

	var series []chart.Series
	for _, st := range []agents.HealthState{agents.Healthy, agents.Sick, agents.Immune} {
		if len(xs[st]) == 0 {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name: st.String(),
			Style: chart.Style{
				StrokeWidth: chart.Disabled,
				DotWidth:    3,
				DotColor:    stateColors[st],
			},
			XValues: xs[st],
			YValues: ys[st],
		})
	}

	return chart.Chart{
		Title:  fmt.Sprintf("iter: %d", snap.Step),
		Width:  size,
		Height: size,
		XAxis: chart.XAxis{
			Name:  "x",
			Range: &chart.ContinuousRange{Min: -0.1, Max: 1.1},
		},
		YAxis: chart.YAxis{
			Name:  "y",
			Range: &chart.ContinuousRange{Min: -0.1, Max: 1.1},
		},
		Series: series,
	}
}

func historyChart(snap *engine.Snapshot, size int) chart.Chart {
	n := len(snap.History)
	steps := make([]float64, n)
	healthy := make([]float64, n)
	sick := make([]float64, n)
	immune := make([]float64, n)
	population := 0
	for i, c := range snap.History {
		steps[i] = float64(i)
		healthy[i] = float64(c.Healthy)
		sick[i] = float64(c.Sick)
		immune[i] = float64(c.Immune)
		population = c.Total()
	}

	xMax := float64(n - 1)
	if xMax < 1 {
		xMax = 1
	}
	yMax := float64(population)
	if yMax < 1 {
		yMax = 1
	}

	line := func(name string, st agents.HealthState, ys []float64) chart.ContinuousSeries {
		return chart.ContinuousSeries{
			Name:    name,
			Style:   chart.Style{StrokeColor: stateColors[st], StrokeWidth: 2},
			XValues: steps,
			YValues: ys,
		}
	}

	graph := chart.Chart{
		Width:  size,
		Height: size,
		XAxis: chart.XAxis{
			Name:  "iter",
			Range: &chart.ContinuousRange{Min: 0, Max: xMax},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		YAxis: chart.YAxis{
			Name:  "number of people",
			Range: &chart.ContinuousRange{Min: 0, Max: yMax},
		},
		Series: []chart.Series{
			line("healthy", agents.Healthy, healthy),
			line("sick", agents.Sick, sick),
			line("immune", agents.Immune, immune),
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return graph
}

func renderPNG(graph chart.Chart) (image.Image, error) {
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	img, err := png.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	return img, nil
}
