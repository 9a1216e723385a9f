// Package render paints shape collections onto a gg raster surface.
package render

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"drawing-board/shape"
	"drawing-board/viewport"
)

// LineWidth is the stroke width in world units.
const LineWidth = 2.0

// Renderer redraws a full shape set on every call. It holds no canvas state
// besides a cache of font faces, so one Renderer can serve many surfaces.
type Renderer struct {
	log   *slog.Logger
	font  *truetype.Font
	faces map[float64]font.Face
	mu    sync.Mutex
}

// New loads the label font and returns a renderer.
func New(logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return &Renderer{
		log:   logger,
		font:  f,
		faces: make(map[float64]font.Face),
	}, nil
}

// NewSurface allocates a blank raster surface.
func NewSurface(width, height int) *gg.Context {
	return gg.NewContext(width, height)
}

// EncodePNG writes the surface's current pixels to w.
func EncodePNG(dc *gg.Context, w io.Writer) error {
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// Render clears dc, paints the theme background and then every shape in
// order under the viewport transform. Nil or invalid entries are skipped.
func (r *Renderer) Render(dc *gg.Context, shapes []shape.Shape, vp viewport.Viewport, theme Theme) {
	p := theme.Palette()
	dc.Identity()
	dc.ClearPath()
	dc.SetHexColor(p.Background)
	dc.Clear()

	r.withTransform(dc, vp, func() {
		dc.SetHexColor(p.Ink)
		for i, s := range shapes {
			if s == nil {
				r.log.Warn("skipping malformed shape", "index", i, "err", "nil shape")
				continue
			}
			if err := s.Validate(); err != nil {
				r.log.Warn("skipping malformed shape", "index", i, "id", s.ShapeID(), "err", err)
				continue
			}
			r.paint(dc, s)
		}
	})
}

// RenderPreview paints a single uncommitted shape on top of whatever dc
// already holds. The shape is not validated beyond a nil check since
// in-progress geometry is often degenerate.
func (r *Renderer) RenderPreview(dc *gg.Context, s shape.Shape, vp viewport.Viewport, theme Theme) {
	if s == nil {
		return
	}
	r.withTransform(dc, vp, func() {
		dc.SetHexColor(theme.Palette().Preview)
		r.paint(dc, s)
	})
}

func (r *Renderer) withTransform(dc *gg.Context, vp viewport.Viewport, fn func()) {
	scale := viewport.Clamp(vp.Scale)
	dc.Push()
	defer dc.Pop()
	dc.Translate(vp.OffsetX, vp.OffsetY)
	dc.Scale(scale, scale)
	// gg strokes in device space, so widen the pen with the zoom.
	dc.SetLineWidth(LineWidth * scale)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	fn()
}

func (r *Renderer) paint(dc *gg.Context, s shape.Shape) {
	switch v := s.(type) {
	case shape.Rectangle:
		dc.DrawRectangle(v.X, v.Y, v.Width, v.Height)
		dc.Stroke()
	case shape.Ellipse:
		radius := v.Radius
		if radius < 0 {
			radius = -radius
		}
		dc.DrawCircle(v.CenterX, v.CenterY, radius)
		dc.Stroke()
	case shape.Stroke:
		if len(v.Points) < 2 {
			return
		}
		dc.MoveTo(v.Points[0].X, v.Points[0].Y)
		for _, pt := range v.Points[1:] {
			dc.LineTo(pt.X, pt.Y)
		}
		dc.Stroke()
	case shape.Label:
		dc.SetFontFace(r.face(v.FontSize))
		dc.DrawString(v.Text, v.X, v.Y)
	default:
		r.log.Warn("skipping shape of unknown variant", "type", fmt.Sprintf("%T", s))
	}
}

func (r *Renderer) face(size float64) font.Face {
	if size <= 0 {
		size = shape.DefaultFontSize
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.faces[size]; ok {
		return f
	}
	f := truetype.NewFace(r.font, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	r.faces[size] = f
	return f
}
