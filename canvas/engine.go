// Package canvas drives one drawing surface: it feeds input events through
// the interaction machine, applies the resulting effects to the viewport and
// the sync client, and keeps the raster up to date.
package canvas

import (
	"image"
	"io"
	"log/slog"

	"github.com/fogleman/gg"

	"drawing-board/input"
	"drawing-board/render"
	"drawing-board/shape"
	"drawing-board/syncclient"
	"drawing-board/viewport"
)

// Options configures a new Engine.
type Options struct {
	Theme  render.Theme
	Tool   input.Tool
	Logger *slog.Logger
	// NewID overrides shape id generation, mostly for tests.
	NewID input.IDFunc
}

// Engine represents one canvas: its surface, viewport and interaction state.
type Engine struct {
	renderer *render.Renderer
	surface  *gg.Context
	client   *syncclient.Client
	logger   *slog.Logger
	newID    input.IDFunc

	state     input.State
	vp        viewport.Viewport
	theme     render.Theme
	shapes    []shape.Shape
	preview   shape.Shape
	textEntry *input.TextEntry

	rendered bool
}

// New creates an engine with a blank surface of the given size.
func New(width, height int, renderer *render.Renderer, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		renderer: renderer,
		surface:  render.NewSurface(width, height),
		logger:   logger,
		newID:    opts.NewID,
		state:    input.State{Phase: input.Idle, Tool: opts.Tool},
		vp:       viewport.Identity(),
		theme:    opts.Theme,
	}
	e.Redraw()
	return e
}

// Attach connects the engine to the room's sync client. The client should be
// built with OnRender set to the engine's Render method.
func (e *Engine) Attach(c *syncclient.Client) {
	e.client = c
	e.shapes = c.Shapes()
	e.Redraw()
}

// Render replaces the displayed shape list and redraws. It is the sync
// client's render callback.
func (e *Engine) Render(shapes []shape.Shape) {
	e.shapes = shapes
	e.Redraw()
}

// Redraw repaints the whole surface, then the in-progress preview.
func (e *Engine) Redraw() {
	e.renderer.Render(e.surface, e.shapes, e.vp, e.theme)
	if e.preview != nil {
		e.renderer.RenderPreview(e.surface, e.preview, e.vp, e.theme)
	}
	e.rendered = true
}

// Handle runs one input event through the interaction machine and applies
// its effect.
func (e *Engine) Handle(ev input.Event) input.Effect {
	next, eff := input.Step(e.state, e.vp, ev, e.newID)
	e.state = next
	e.rendered = false

	if next.Phase != input.Drawing {
		e.preview = nil
	} else if eff.Preview != nil {
		e.preview = eff.Preview
	}
	if eff.HideTextEntry {
		e.textEntry = nil
	}
	if eff.ShowTextEntry != nil {
		e.textEntry = eff.ShowTextEntry
	}
	if eff.Pan != nil {
		e.vp = e.vp.Pan(*eff.Pan)
	}
	if eff.Zoom != nil {
		e.vp = e.vp.Zoom(eff.Zoom.At, eff.Zoom.Factor)
	}
	if eff.ResetView {
		e.vp = viewport.Identity()
	}
	if eff.Erase != nil {
		e.erase(*eff.Erase)
	}
	if eff.Commit != nil {
		if e.client != nil {
			e.client.CommitLocal(eff.Commit)
		} else {
			e.logger.Warn("dropping commit, no room attached", "id", eff.Commit.ShapeID())
		}
	}
	if eff.Redraw && !e.rendered {
		e.Redraw()
	}
	return eff
}

func (e *Engine) erase(world shape.Point) {
	if e.client == nil {
		return
	}
	tol := input.EraseTolerance / viewport.Clamp(e.vp.Scale)
	s, ok := e.client.Collection().TopmostAt(world, tol)
	if !ok {
		return
	}
	e.logger.Debug("erasing shape", "id", s.ShapeID())
	e.client.DeleteLocal(s.ShapeID())
}

// ClearAll empties the canvas for the whole room.
func (e *Engine) ClearAll() {
	if e.client != nil {
		e.client.ClearAll()
	}
}

// SetTheme switches palettes and redraws.
func (e *Engine) SetTheme(t render.Theme) {
	if t == e.theme {
		return
	}
	e.theme = t
	e.Redraw()
}

// Theme returns the active theme.
func (e *Engine) Theme() render.Theme { return e.theme }

// Viewport returns the current transform.
func (e *Engine) Viewport() viewport.Viewport { return e.vp }

// State returns the interaction state.
func (e *Engine) State() input.State { return e.state }

// TextEntry returns the open label editor, or nil.
func (e *Engine) TextEntry() *input.TextEntry { return e.textEntry }

// Frame returns the current raster.
func (e *Engine) Frame() image.Image { return e.surface.Image() }

// SavePNG writes the current raster as PNG.
func (e *Engine) SavePNG(w io.Writer) error {
	return render.EncodePNG(e.surface, w)
}
