// Package render turns simulation snapshots into something a person can look at.
// Renderers never drive the simulation; they only consume what a step produced.
package render

import (
	"errors"
	"io"

	"github.com/talgya/episim/internal/engine"
)

// Renderer consumes one snapshot per step, starting with the initial state.
type Renderer interface {
	Render(snap *engine.Snapshot) error
}

// Func adapts a plain function to Renderer.
type Func func(snap *engine.Snapshot) error

func (f Func) Render(snap *engine.Snapshot) error {
	return f(snap)
}

// Multi fans a snapshot out to several renderers.
type Multi []Renderer

// Render calls every renderer, even after one fails, and joins the errors.
func (m Multi) Render(snap *engine.Snapshot) error {
	var errs []error
	for _, r := range m {
		if err := r.Render(snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every renderer that holds resources.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Every passes through one snapshot in n, plus any snapshot where the outbreak is over.
func Every(n int, r Renderer) Renderer {
	if n <= 1 {
		return r
	}
	return &every{n: n, next: r}
}

type every struct {
	n    int
	next Renderer
}

func (e *every) Render(snap *engine.Snapshot) error {
	if snap.Step%e.n != 0 && !snap.Done() {
		return nil
	}
	return e.next.Render(snap)
}

func (e *every) Close() error {
	if c, ok := e.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
