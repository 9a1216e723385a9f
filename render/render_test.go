package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"drawing-board/shape"
	"drawing-board/viewport"
)

func hexColor(t *testing.T, s string) color.RGBA {
	t.Helper()
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b); err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return color.RGBA{r, g, b, 0xff}
}

func pixel(img image.Image, x, y int) color.RGBA {
	r, g, b, a := img.At(x, y).RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

func countNot(img image.Image, rect image.Rectangle, c color.RGBA) int {
	n := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if pixel(img, x, y) != c {
				n++
			}
		}
	}
	return n
}

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New(nil)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	return r
}

func TestRenderPaintsBackgroundPerTheme(t *testing.T) {
	r := newRenderer(t)
	for _, theme := range []Theme{Light, Dark} {
		dc := NewSurface(40, 40)
		r.Render(dc, nil, viewport.Identity(), theme)
		want := hexColor(t, theme.Palette().Background)
		if got := pixel(dc.Image(), 20, 20); got != want {
			t.Fatalf("%s: background got %v, want %v", theme, got, want)
		}
	}
}

func TestRenderRectangleOutline(t *testing.T) {
	r := newRenderer(t)
	dc := NewSurface(100, 100)
	shapes := []shape.Shape{shape.Rectangle{ID: "r1", X: 10, Y: 10, Width: 50, Height: 30}}
	r.Render(dc, shapes, viewport.Identity(), Light)

	bg := hexColor(t, Light.Palette().Background)
	img := dc.Image()
	if pixel(img, 10, 25) == bg {
		t.Fatalf("expected ink on the left edge of the rectangle")
	}
	if pixel(img, 35, 25) != bg {
		t.Fatalf("expected rectangle interior to stay background")
	}
	if pixel(img, 80, 80) != bg {
		t.Fatalf("expected area outside the rectangle to stay background")
	}
}

func TestRenderAppliesViewport(t *testing.T) {
	r := newRenderer(t)
	dc := NewSurface(120, 120)
	shapes := []shape.Shape{shape.Rectangle{ID: "r1", X: 10, Y: 10, Width: 20, Height: 20}}
	r.Render(dc, shapes, viewport.Viewport{Scale: 2, OffsetX: 5, OffsetY: 5}, Light)

	bg := hexColor(t, Light.Palette().Background)
	img := dc.Image()
	// world x=10 lands on screen x=25
	if pixel(img, 25, 45) == bg {
		t.Fatalf("expected ink at the transformed left edge")
	}
	if pixel(img, 10, 45) != bg {
		t.Fatalf("expected untransformed position to stay background")
	}
}

func TestRenderSkipsMalformedEntries(t *testing.T) {
	r := newRenderer(t)
	dc := NewSurface(100, 100)
	shapes := []shape.Shape{
		nil,
		shape.Stroke{ID: "short", Points: []shape.Point{{X: 1, Y: 1}}},
		shape.Ellipse{ID: "c1", CenterX: 50, CenterY: 50, Radius: 20},
	}
	before := len(shapes)
	r.Render(dc, shapes, viewport.Identity(), Dark)

	if len(shapes) != before || shapes[0] != nil {
		t.Fatalf("render mutated its input")
	}
	bg := hexColor(t, Dark.Palette().Background)
	if pixel(dc.Image(), 70, 50) == bg {
		t.Fatalf("expected the valid circle to be painted after skipped entries")
	}
}

func TestRenderStrokeAndLabel(t *testing.T) {
	r := newRenderer(t)
	dc := NewSurface(200, 100)
	shapes := []shape.Shape{
		shape.Stroke{ID: "p1", Points: []shape.Point{{X: 10, Y: 80}, {X: 60, Y: 80}, {X: 60, Y: 90}}},
		shape.Label{ID: "t1", X: 100, Y: 40, Text: "HELLO", FontSize: 20},
	}
	r.Render(dc, shapes, viewport.Identity(), Light)

	bg := hexColor(t, Light.Palette().Background)
	img := dc.Image()
	if pixel(img, 30, 80) == bg {
		t.Fatalf("expected stroke ink at (30,80)")
	}
	if n := countNot(img, image.Rect(100, 20, 190, 42), bg); n == 0 {
		t.Fatalf("expected label glyphs to be painted")
	}
}

func TestRenderPreviewUsesPreviewColor(t *testing.T) {
	r := newRenderer(t)
	dc := NewSurface(100, 100)
	r.Render(dc, nil, viewport.Identity(), Light)
	r.RenderPreview(dc, shape.Rectangle{ID: "", X: 10, Y: 10, Width: 50, Height: 50}, viewport.Identity(), Light)

	bg := hexColor(t, Light.Palette().Background)
	got := pixel(dc.Image(), 10, 30)
	if got == bg || got.B <= got.R {
		t.Fatalf("expected a blue preview edge, got %v", got)
	}
}

func TestEncodePNG(t *testing.T) {
	r := newRenderer(t)
	dc := NewSurface(16, 16)
	r.Render(dc, nil, viewport.Identity(), Dark)
	var buf bytes.Buffer
	if err := EncodePNG(dc, &buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 16 {
		t.Fatalf("unexpected width %d", img.Bounds().Dx())
	}
}

func TestParseTheme(t *testing.T) {
	if th, err := ParseTheme(" Dark "); err != nil || th != Dark {
		t.Fatalf("expected dark, got %v %v", th, err)
	}
	if _, err := ParseTheme("sepia"); err == nil {
		t.Fatalf("expected error for unknown theme")
	}
}
