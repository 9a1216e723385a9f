package canvas

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"drawing-board/input"
	"drawing-board/protocol"
	"drawing-board/render"
	"drawing-board/shape"
	"drawing-board/syncclient"
	"drawing-board/viewport"
)

type fakeTransport struct {
	sent []protocol.Message
}

func (f *fakeTransport) Send(msg protocol.Message) error {
	f.sent = append(f.sent, msg)
	return nil
}

func pixel(img image.Image, x, y int) color.RGBA {
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

func hexColor(t *testing.T, s string) color.RGBA {
	t.Helper()
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return color.RGBA{r, g, b, 0xff}
}

func sequentialIDs() input.IDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("shape_%d", n)
	}
}

func newEngine(t *testing.T, tool input.Tool) (*Engine, *syncclient.Client, *fakeTransport) {
	t.Helper()
	r, err := render.New(nil)
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	e := New(120, 80, r, Options{Tool: tool, Theme: render.Light, NewID: sequentialIDs()})
	tr := &fakeTransport{}
	c := syncclient.New("42", tr, nil, syncclient.Options{OnRender: e.Render})
	e.Attach(c)
	return e, c, tr
}

func drag(e *Engine, from, to shape.Point) input.Effect {
	e.Handle(input.PointerDown{Pos: from, Button: input.ButtonPrimary})
	e.Handle(input.PointerMove{Pos: to})
	return e.Handle(input.PointerUp{Pos: to})
}

func TestRectangleDragCommitsSendsAndPaints(t *testing.T) {
	e, c, tr := newEngine(t, input.ToolRectangle)
	eff := drag(e, shape.Point{X: 10, Y: 10}, shape.Point{X: 60, Y: 40})
	if eff.Commit == nil {
		t.Fatalf("expected a commit")
	}
	want := shape.Rectangle{ID: "shape_1", X: 10, Y: 10, Width: 50, Height: 30}
	if got, _ := c.Collection().Get("shape_1"); got != shape.Shape(want) {
		t.Fatalf("collection has %+v, want %+v", got, want)
	}
	if len(tr.sent) != 1 || tr.sent[0].Type != protocol.TypeChat {
		t.Fatalf("sent %+v", tr.sent)
	}

	bg := hexColor(t, render.Light.Palette().Background)
	if got := pixel(e.Frame(), 35, 10); got == bg {
		t.Fatalf("top edge not painted")
	}
	if got := pixel(e.Frame(), 35, 25); got != bg {
		t.Fatalf("interior should stay background, got %v", got)
	}
}

func TestTinyDragIsDiscarded(t *testing.T) {
	e, c, tr := newEngine(t, input.ToolRectangle)
	drag(e, shape.Point{X: 10, Y: 10}, shape.Point{X: 13, Y: 13})
	if c.Collection().Len() != 0 || len(tr.sent) != 0 {
		t.Fatalf("3x3 drag should not commit")
	}
	if e.State().Phase != input.Idle {
		t.Fatalf("phase = %v", e.State().Phase)
	}
}

func TestPreviewIsPaintedWhileDragging(t *testing.T) {
	e, _, _ := newEngine(t, input.ToolRectangle)
	e.Handle(input.PointerDown{Pos: shape.Point{X: 10, Y: 10}, Button: input.ButtonPrimary})
	e.Handle(input.PointerMove{Pos: shape.Point{X: 60, Y: 40}})

	got := pixel(e.Frame(), 35, 10)
	if got == hexColor(t, render.Light.Palette().Background) || got.B <= got.R {
		t.Fatalf("expected preview blue on the edge, got %v", got)
	}
	e.Handle(input.PointerUp{Pos: shape.Point{X: 60, Y: 40}})
	if e.preview != nil {
		t.Fatalf("preview should be gone after the gesture")
	}
}

func TestPanAndZoomMoveTheViewport(t *testing.T) {
	e, _, _ := newEngine(t, input.ToolStroke)
	e.Handle(input.PointerDown{Pos: shape.Point{X: 10, Y: 10}, Button: input.ButtonSecondary})
	e.Handle(input.PointerMove{Pos: shape.Point{X: 30, Y: 5}})
	e.Handle(input.PointerUp{Pos: shape.Point{X: 30, Y: 5}})
	if vp := e.Viewport(); vp.OffsetX != 20 || vp.OffsetY != -5 {
		t.Fatalf("offset = %v,%v", vp.OffsetX, vp.OffsetY)
	}

	m := shape.Point{X: 50, Y: 40}
	before := e.Viewport().ScreenToWorld(m)
	e.Handle(input.Wheel{Pos: m, DeltaY: -100})
	after := e.Viewport().ScreenToWorld(m)
	if e.Viewport().Scale != viewport.ZoomInFactor {
		t.Fatalf("scale = %v", e.Viewport().Scale)
	}
	if math.Abs(before.X-after.X) > 1e-9 || math.Abs(before.Y-after.Y) > 1e-9 {
		t.Fatalf("zoom moved the point under the cursor: %v -> %v", before, after)
	}

	e.Handle(input.ResetView{})
	if e.Viewport() != viewport.Identity() {
		t.Fatalf("reset left %+v", e.Viewport())
	}
}

func TestEraserDeletesTopmost(t *testing.T) {
	e, c, tr := newEngine(t, input.ToolRectangle)
	drag(e, shape.Point{X: 10, Y: 10}, shape.Point{X: 60, Y: 40})
	drag(e, shape.Point{X: 20, Y: 20}, shape.Point{X: 70, Y: 50})

	e.Handle(input.SelectTool{Tool: input.ToolEraser})
	e.Handle(input.PointerDown{Pos: shape.Point{X: 40, Y: 30}, Button: input.ButtonPrimary})

	if c.Collection().Contains("shape_2") || !c.Collection().Contains("shape_1") {
		t.Fatalf("expected only the topmost shape erased, have %d shapes", c.Collection().Len())
	}
	last := tr.sent[len(tr.sent)-1]
	if last != protocol.DeleteShape("42", "shape_2") {
		t.Fatalf("last sent %+v", last)
	}
}

func TestLabelEntryCommitsOnEnter(t *testing.T) {
	e, c, _ := newEngine(t, input.ToolLabel)
	e.Handle(input.PointerDown{Pos: shape.Point{X: 15, Y: 30}, Button: input.ButtonPrimary})
	entry := e.TextEntry()
	if entry == nil || entry.Screen != (shape.Point{X: 15, Y: 30}) {
		t.Fatalf("text entry = %+v", entry)
	}
	e.Handle(input.TextInput{Text: "hello"})
	e.Handle(input.KeyDown{Key: input.KeyEnter})
	if e.TextEntry() != nil {
		t.Fatalf("entry should close after commit")
	}
	got, ok := c.Collection().Get("shape_1")
	if !ok {
		t.Fatalf("label not committed")
	}
	l := got.(shape.Label)
	if l.Text != "hello" || l.X != 15 || l.Y != 50 || l.FontSize != shape.DefaultFontSize {
		t.Fatalf("label = %+v", l)
	}
}

func TestRemoteEventsRedraw(t *testing.T) {
	e, c, _ := newEngine(t, input.ToolStroke)
	body, err := protocol.EncodeChat(shape.Rectangle{ID: "r1", X: 10, Y: 10, Width: 50, Height: 30})
	if err != nil {
		t.Fatal(err)
	}
	c.OnRemoteEvent(protocol.Chat("42", body))
	bg := hexColor(t, render.Light.Palette().Background)
	if pixel(e.Frame(), 35, 10) == bg {
		t.Fatalf("remote shape not painted")
	}
	c.OnRemoteEvent(protocol.ClearCanvas("42"))
	if pixel(e.Frame(), 35, 10) != bg {
		t.Fatalf("clear not painted")
	}
}

func TestThemeSwitchAndPNG(t *testing.T) {
	e, _, _ := newEngine(t, input.ToolStroke)
	e.SetTheme(render.Dark)
	if got := pixel(e.Frame(), 5, 5); got != hexColor(t, render.Dark.Palette().Background) {
		t.Fatalf("dark background got %v", got)
	}
	var buf bytes.Buffer
	if err := e.SavePNG(&buf); err != nil {
		t.Fatalf("png: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 120 || img.Bounds().Dy() != 80 {
		t.Fatalf("bounds %v", img.Bounds())
	}
}
