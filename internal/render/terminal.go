package render

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-isatty"

	"github.com/talgya/episim/internal/agents"
	"github.com/talgya/episim/internal/engine"
)

// ErrNotTerminal is returned when the live view is requested without a terminal.
var ErrNotTerminal = errors.New("stdout is not a terminal")

var stateStyles = map[agents.HealthState]tcell.Style{
	agents.Healthy: tcell.StyleDefault.Foreground(tcell.ColorGreen),
	agents.Sick:    tcell.StyleDefault.Foreground(tcell.ColorRed),
	agents.Immune:  tcell.StyleDefault.Foreground(tcell.ColorBlue),
}

// Terminal draws the population live in the terminal. Row 0 holds the counts,
// the last row the key help, and the square in between the agents.
type Terminal struct {
	screen tcell.Screen

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
}

// NewTerminal takes over the controlling terminal.
func NewTerminal() (*Terminal, error) {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return nil, ErrNotTerminal
	}
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("open screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("init screen: %w", err)
	}
	return NewTerminalWithScreen(screen), nil
}

// NewTerminalWithScreen draws onto an already initialised screen.
func NewTerminalWithScreen(screen tcell.Screen) *Terminal {
	t := &Terminal{
		screen: screen,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.pollEvents()
	return t
}

// Quit is closed when the user presses q, Esc or Ctrl-C.
func (t *Terminal) Quit() <-chan struct{} {
	return t.quit
}

func (t *Terminal) pollEvents() {
	defer close(t.done)
	for {
		ev := t.screen.PollEvent()
		switch ev := ev.(type) {
		case nil:
			return // Screen finalised
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC ||
				(ev.Key() == tcell.KeyRune && ev.Rune() == 'q') {
				t.quitOnce.Do(func() { close(t.quit) })
			}
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

func (t *Terminal) Render(snap *engine.Snapshot) error {
	t.screen.Clear()
	w, h := t.screen.Size()
	c := snap.Counts()

	header := fmt.Sprintf("iter: %d  healthy %d  sick %d  immune %d", snap.Step, c.Healthy, c.Sick, c.Immune)
	t.drawText(0, 0, header, tcell.StyleDefault.Bold(true))

	// Terminal cells are about twice as tall as wide, so the square is 2*side columns.
	side := h - 2
	if side > w/2 {
		side = w / 2
	}
	if side >= 2 {
		for _, a := range snap.Agents {
			col := int(a.Position[0] * float64(2*side-1))
			row := 1 + int((1-a.Position[1])*float64(side-1))
			t.screen.SetContent(col, row, '●', nil, stateStyles[a.State])
		}
	}

	t.drawText(0, h-1, "q: quit", tcell.StyleDefault.Dim(true))
	t.screen.Show()
	return nil
}

func (t *Terminal) drawText(x, y int, s string, style tcell.Style) {
	for _, r := range s {
		t.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

// Close restores the terminal.
func (t *Terminal) Close() error {
	t.screen.Fini()
	<-t.done
	return nil
}
