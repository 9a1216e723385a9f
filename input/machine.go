// Package input interprets pointer and keyboard events against the selected
// tool. Step is a pure function: it never touches a surface, a viewport or
// the network, it only describes what the caller should do next.
package input

import (
	"fmt"
	"math"
	"strings"

	"drawing-board/shape"
	"drawing-board/viewport"
)

// Tool is the drawing tool the primary button uses.
type Tool int

// Tools
const (
	ToolStroke Tool = iota
	ToolRectangle
	ToolEllipse
	ToolLabel
	ToolEraser
)

var toolNames = map[Tool]string{
	ToolStroke:    "pencil",
	ToolRectangle: "rect",
	ToolEllipse:   "circle",
	ToolLabel:     "text",
	ToolEraser:    "eraser",
}

// String returns the tool name accepted by ParseTool.
func (t Tool) String() string {
	if n, ok := toolNames[t]; ok {
		return n
	}
	return fmt.Sprintf("tool(%d)", int(t))
}

// ParseTool parses pencil, rect, circle, text or eraser.
func ParseTool(s string) (Tool, error) {
	for t, n := range toolNames {
		if n == s {
			return t, nil
		}
	}
	return ToolStroke, fmt.Errorf("unknown tool %q", s)
}

// Phase is the coarse mode of the interaction machine.
type Phase int

// Phases
const (
	Idle Phase = iota
	Drawing
	Panning
	TextEditing
)

// String returns the phase name for logs.
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Drawing:
		return "drawing"
	case Panning:
		return "panning"
	case TextEditing:
		return "text-editing"
	}
	return "unknown"
}

// Button numbers follow the DOM MouseEvent.button convention.
type Button int

// Buttons
const (
	ButtonPrimary   Button = 0
	ButtonAuxiliary Button = 1
	ButtonSecondary Button = 2
)

// Gesture thresholds.
const (
	// MinDragSize is the world-unit size a rectangle or circle must exceed to
	// be committed.
	MinDragSize = 5.0
	// EraseTolerance is the world-unit hit slop for the eraser.
	EraseTolerance = 4.0
)

// State is the interaction state of one canvas. The zero value is Idle with
// the stroke tool selected.
type State struct {
	Phase Phase
	Tool  Tool
	// Anchor is the world-space drag start (Drawing) or text anchor
	// (TextEditing).
	Anchor shape.Point
	// Current is the latest world-space pointer position while Drawing.
	Current shape.Point
	// Points accumulates the freehand stroke.
	Points []shape.Point
	// LastPointer is the previous screen-space position while Panning.
	LastPointer shape.Point
	// Text is the text entry buffer while TextEditing.
	Text string
}

// Event is one of the concrete event types below.
type Event interface{ isEvent() }

// PointerDown represents a button press.
type PointerDown struct {
	Pos    shape.Point // screen space
	Button Button
}

// PointerMove represents pointer motion in screen space.
type PointerMove struct{ Pos shape.Point }

// PointerUp represents a button release in screen space.
type PointerUp struct{ Pos shape.Point }

// Wheel represents one wheel notch; positive DeltaY zooms out.
type Wheel struct {
	Pos    shape.Point
	DeltaY float64
}

// TextInput replaces the text entry buffer with Text.
type TextInput struct{ Text string }

// KeyDown carries a DOM key name such as Enter.
type KeyDown struct{ Key string }

// Blur means the text field lost focus.
type Blur struct{}

// SelectTool switches the active tool.
type SelectTool struct{ Tool Tool }

// ResetView restores the identity viewport.
type ResetView struct{}

func (PointerDown) isEvent() {}
func (PointerMove) isEvent() {}
func (PointerUp) isEvent() {}
func (Wheel) isEvent() {}
func (TextInput) isEvent() {}
func (KeyDown) isEvent() {}
func (Blur) isEvent() {}
func (SelectTool) isEvent() {}
func (ResetView) isEvent() {}

// Keys the text entry reacts to.
const (
	KeyEnter  = "Enter"
	KeyEscape = "Escape"
)

// TextEntry describes where the caller should show an inline text field.
type TextEntry struct {
	Screen   shape.Point
	FontSize float64
}

// Zoom is a wheel gesture at a screen point.
type Zoom struct {
	At     shape.Point
	Factor float64
}

// Effect is what a transition asks of its caller. Several fields may be set
// at once; the zero value means nothing to do.
type Effect struct {
	Commit        shape.Shape
	Preview       shape.Shape
	Pan           *shape.Point
	Zoom          *Zoom
	ShowTextEntry *TextEntry
	HideTextEntry bool
	Erase         *shape.Point
	ResetView     bool
	Redraw        bool
}

// IDFunc produces identifiers for committed shapes.
type IDFunc func() string

// Step applies ev to s under the viewport vp.
func Step(s State, vp viewport.Viewport, ev Event, newID IDFunc) (State, Effect) {
	if newID == nil {
		newID = shape.NewID
	}
	switch e := ev.(type) {
	case SelectTool:
		next := State{Phase: Idle, Tool: e.Tool}
		return next, Effect{HideTextEntry: s.Phase == TextEditing, Redraw: s.Phase != Idle}
	case Wheel:
		return s, Effect{Zoom: &Zoom{At: e.Pos, Factor: viewport.WheelFactor(e.DeltaY)}, Redraw: true}
	case ResetView:
		return s, Effect{ResetView: true, Redraw: true}
	}

	switch s.Phase {
	case Idle:
		return stepIdle(s, vp, ev, newID)
	case Drawing:
		return stepDrawing(s, vp, ev, newID)
	case Panning:
		return stepPanning(s, ev)
	case TextEditing:
		return stepText(s, vp, ev, newID)
	}
	return s, Effect{}
}

func stepIdle(s State, vp viewport.Viewport, ev Event, newID IDFunc) (State, Effect) {
	down, ok := ev.(PointerDown)
	if !ok {
		return s, Effect{}
	}
	if down.Button == ButtonAuxiliary || down.Button == ButtonSecondary {
		return State{Phase: Panning, Tool: s.Tool, LastPointer: down.Pos}, Effect{}
	}
	if down.Button != ButtonPrimary {
		return s, Effect{}
	}
	world := vp.ScreenToWorld(down.Pos)
	switch s.Tool {
	case ToolLabel:
		return beginText(s.Tool, world), Effect{ShowTextEntry: textEntryAt(world, vp)}
	case ToolEraser:
		return s, Effect{Erase: &world}
	case ToolStroke:
		return State{Phase: Drawing, Tool: s.Tool, Anchor: world, Current: world, Points: []shape.Point{world}}, Effect{}
	default:
		return State{Phase: Drawing, Tool: s.Tool, Anchor: world, Current: world}, Effect{}
	}
}

func stepDrawing(s State, vp viewport.Viewport, ev Event, newID IDFunc) (State, Effect) {
	switch e := ev.(type) {
	case PointerMove:
		world := vp.ScreenToWorld(e.Pos)
		next := s
		next.Current = world
		if s.Tool == ToolStroke {
			next.Points = append(append([]shape.Point(nil), s.Points...), world)
		}
		return next, Effect{Preview: preview(next), Redraw: true}
	case PointerUp:
		world := vp.ScreenToWorld(e.Pos)
		done := s
		done.Current = world
		idle := State{Phase: Idle, Tool: s.Tool}
		if committed := finish(done, newID); committed != nil {
			return idle, Effect{Commit: committed, Redraw: true}
		}
		return idle, Effect{Redraw: true}
	}
	return s, Effect{}
}

func stepPanning(s State, ev Event) (State, Effect) {
	switch e := ev.(type) {
	case PointerMove:
		d := e.Pos.Sub(s.LastPointer)
		next := s
		next.LastPointer = e.Pos
		return next, Effect{Pan: &d, Redraw: true}
	case PointerUp:
		return State{Phase: Idle, Tool: s.Tool}, Effect{}
	}
	return s, Effect{}
}

func stepText(s State, vp viewport.Viewport, ev Event, newID IDFunc) (State, Effect) {
	switch e := ev.(type) {
	case TextInput:
		next := s
		next.Text = e.Text
		return next, Effect{}
	case KeyDown:
		switch e.Key {
		case KeyEnter:
			return commitText(s, newID)
		case KeyEscape:
			return State{Phase: Idle, Tool: s.Tool}, Effect{HideTextEntry: true}
		}
		return s, Effect{}
	case Blur:
		return commitText(s, newID)
	case PointerDown:
		// Clicking elsewhere blurs the open entry first.
		idle, eff := commitText(s, newID)
		if e.Button != ButtonPrimary || s.Tool != ToolLabel {
			return idle, eff
		}
		world := vp.ScreenToWorld(e.Pos)
		eff.HideTextEntry = false
		eff.ShowTextEntry = textEntryAt(world, vp)
		return beginText(s.Tool, world), eff
	}
	return s, Effect{}
}

func beginText(tool Tool, world shape.Point) State {
	return State{Phase: TextEditing, Tool: tool, Anchor: world}
}

func textEntryAt(world shape.Point, vp viewport.Viewport) *TextEntry {
	return &TextEntry{
		Screen:   vp.WorldToScreen(world),
		FontSize: shape.DefaultFontSize * viewport.Clamp(vp.Scale),
	}
}

func commitText(s State, newID IDFunc) (State, Effect) {
	idle := State{Phase: Idle, Tool: s.Tool}
	text := strings.TrimSpace(s.Text)
	if text == "" {
		return idle, Effect{HideTextEntry: true}
	}
	l := shape.Label{
		ID:       newID(),
		X:        s.Anchor.X,
		Y:        s.Anchor.Y + shape.DefaultFontSize,
		Text:     text,
		FontSize: shape.DefaultFontSize,
	}
	return idle, Effect{Commit: l, HideTextEntry: true, Redraw: true}
}

// preview builds the uncommitted shape for a Drawing state.
func preview(s State) shape.Shape {
	switch s.Tool {
	case ToolRectangle:
		return shape.NormalizedRect("", s.Anchor, s.Current)
	case ToolEllipse:
		return shape.EllipseFromDrag("", s.Anchor, s.Current)
	case ToolStroke:
		if len(s.Points) < 2 {
			return nil
		}
		return shape.Stroke{Points: s.Points}
	}
	return nil
}

// finish returns the committed shape, or nil when the gesture is below the
// size threshold and should be treated as an accidental click.
func finish(s State, newID IDFunc) shape.Shape {
	switch s.Tool {
	case ToolRectangle:
		dx, dy := s.Current.X-s.Anchor.X, s.Current.Y-s.Anchor.Y
		if math.Abs(dx) <= MinDragSize && math.Abs(dy) <= MinDragSize {
			return nil
		}
		return shape.NormalizedRect(newID(), s.Anchor, s.Current)
	case ToolEllipse:
		e := shape.EllipseFromDrag("", s.Anchor, s.Current)
		if e.Radius <= MinDragSize {
			return nil
		}
		e.ID = newID()
		return e
	case ToolStroke:
		if len(s.Points) < 2 {
			return nil
		}
		return shape.Stroke{ID: newID(), Points: append([]shape.Point(nil), s.Points...)}
	}
	return nil
}
