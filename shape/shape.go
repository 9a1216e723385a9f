package shape

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the wire tag carried in the "type" field of every shape.
type Kind string

// Wire tags, matching the browser client.
const (
	KindRectangle Kind = "rect"
	KindEllipse   Kind = "circle"
	KindStroke    Kind = "pencil"
	KindLabel     Kind = "text"
)

// DefaultFontSize is the font size labels are committed with.
const DefaultFontSize = 20.0

// Decode and validation errors.
var (
	ErrUnknownType = errors.New("unknown shape type")
	ErrInvalid     = errors.New("invalid shape")
)

// Point is a position in world space unless stated otherwise.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+o.
func (p Point) Add(o Point) Point { return Point{p.X + o.X, p.Y + o.Y} }

// Sub returns p-o.
func (p Point) Sub(o Point) Point { return Point{p.X - o.X, p.Y - o.Y} }

// Scale multiplies both coordinates by f.
func (p Point) Scale(f float64) Point { return Point{p.X * f, p.Y * f} }

// Distance is the euclidean distance to o.
func (p Point) Distance(o Point) float64 { return math.Hypot(p.X-o.X, p.Y-o.Y) }

func (p Point) finite() bool { return finite(p.X) && finite(p.Y) }
func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Shape is one drawable primitive. The set of variants is closed:
// Rectangle, Ellipse, Stroke and Label.
type Shape interface {
	ShapeID() string
	Kind() Kind
	// Validate reports whether the shape is structurally paintable.
	Validate() error
	// Contains reports whether p lies on or within tol of the shape.
	Contains(p Point, tol float64) bool
	isShape()
}

// Rectangle is an axis-aligned box anchored at its top-left corner.
type Rectangle struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Ellipse is a circle described by its center and radius.
type Ellipse struct {
	ID      string  `json:"id"`
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Radius  float64 `json:"radius"`
}

// Stroke is a freehand polyline.
type Stroke struct {
	ID     string  `json:"id"`
	Points []Point `json:"points"`
}

// Label is a single line of text whose anchor is the text baseline.
type Label struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Text     string  `json:"text"`
	FontSize float64 `json:"fontSize"`
}

func (Rectangle) isShape() {}
func (Ellipse) isShape() {}
func (Stroke) isShape() {}
func (Label) isShape() {}

// ShapeID returns the identifier used for deletes.
func (r Rectangle) ShapeID() string { return r.ID }

// ShapeID returns the identifier used for deletes.
func (e Ellipse) ShapeID() string { return e.ID }

// ShapeID returns the identifier used for deletes.
func (s Stroke) ShapeID() string { return s.ID }

// ShapeID returns the identifier used for deletes.
func (l Label) ShapeID() string { return l.ID }

// Kind returns the wire tag.
func (Rectangle) Kind() Kind { return KindRectangle }

// Kind returns the wire tag.
func (Ellipse) Kind() Kind { return KindEllipse }

// Kind returns the wire tag.
func (Stroke) Kind() Kind { return KindStroke }

// Kind returns the wire tag.
func (Label) Kind() Kind { return KindLabel }

// Validate rejects missing ids and non-finite or negative geometry.
func (r Rectangle) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: rect without id", ErrInvalid)
	case !finite(r.X) || !finite(r.Y) || !finite(r.Width) || !finite(r.Height):
		return fmt.Errorf("%w: rect %s has non-finite geometry", ErrInvalid, r.ID)
	case r.Width < 0 || r.Height < 0:
		return fmt.Errorf("%w: rect %s is not normalized", ErrInvalid, r.ID)
	}
	return nil
}

// Validate rejects missing ids and non-finite or negative radii.
func (e Ellipse) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: circle without id", ErrInvalid)
	case !finite(e.CenterX) || !finite(e.CenterY) || !finite(e.Radius):
		return fmt.Errorf("%w: circle %s has non-finite geometry", ErrInvalid, e.ID)
	case e.Radius < 0:
		return fmt.Errorf("%w: circle %s has negative radius", ErrInvalid, e.ID)
	}
	return nil
}

// Validate rejects strokes with fewer than two finite points.
func (s Stroke) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: pencil without id", ErrInvalid)
	}
	if len(s.Points) < 2 {
		return fmt.Errorf("%w: pencil %s has %d points", ErrInvalid, s.ID, len(s.Points))
	}
	for _, p := range s.Points {
		if !p.finite() {
			return fmt.Errorf("%w: pencil %s has non-finite point", ErrInvalid, s.ID)
		}
	}
	return nil
}

// Validate rejects empty text and bad geometry.
func (l Label) Validate() error {
	switch {
	case l.ID == "":
		return fmt.Errorf("%w: text without id", ErrInvalid)
	case strings.TrimSpace(l.Text) == "":
		return fmt.Errorf("%w: text %s is empty", ErrInvalid, l.ID)
	case !finite(l.X) || !finite(l.Y) || !finite(l.FontSize) || l.FontSize <= 0:
		return fmt.Errorf("%w: text %s has bad geometry", ErrInvalid, l.ID)
	}
	return nil
}

// Contains reports whether p is inside the box grown by tol.
func (r Rectangle) Contains(p Point, tol float64) bool {
	return p.X >= r.X-tol && p.X <= r.X+r.Width+tol &&
		p.Y >= r.Y-tol && p.Y <= r.Y+r.Height+tol
}

// Contains reports whether p is inside the circle grown by tol.
func (e Ellipse) Contains(p Point, tol float64) bool {
	return p.Distance(Point{e.CenterX, e.CenterY}) <= math.Abs(e.Radius)+tol
}

// Contains reports whether p is within tol of any segment.
func (s Stroke) Contains(p Point, tol float64) bool {
	for i := 1; i < len(s.Points); i++ {
		if segmentDistance(p, s.Points[i-1], s.Points[i]) <= tol {
			return true
		}
	}
	return false
}

// Contains approximates the label's extent with an average glyph advance of
// 0.6em, since glyph metrics are only known to the renderer.
func (l Label) Contains(p Point, tol float64) bool {
	w := float64(len([]rune(l.Text))) * l.FontSize * 0.6
	return p.X >= l.X-tol && p.X <= l.X+w+tol &&
		p.Y >= l.Y-l.FontSize-tol && p.Y <= l.Y+tol
}

func segmentDistance(p, a, b Point) float64 {
	ab := b.Sub(a)
	lenSq := ab.X*ab.X + ab.Y*ab.Y
	if lenSq == 0 {
		return p.Distance(a)
	}
	t := ((p.X-a.X)*ab.X + (p.Y-a.Y)*ab.Y) / lenSq
	t = math.Max(0, math.Min(1, t))
	return p.Distance(a.Add(ab.Scale(t)))
}

// NormalizedRect builds the rectangle spanned by two drag corners with a
// non-negative width and height.
func NormalizedRect(id string, a, b Point) Rectangle {
	return Rectangle{
		ID:     id,
		X:      math.Min(a.X, b.X),
		Y:      math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
	}
}

// EllipseFromDrag builds the circle whose diameter is the drag segment a-b.
func EllipseFromDrag(id string, a, b Point) Ellipse {
	return Ellipse{
		ID:      id,
		CenterX: (a.X + b.X) / 2,
		CenterY: (a.Y + b.Y) / 2,
		Radius:  a.Distance(b) / 2,
	}
}

// NewID returns an identifier of the form shape_<unix-ms>_<suffix>.
func NewID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("shape_%d_%s", time.Now().UnixMilli(), suffix)
}

// MarshalJSON adds the "type" tag.
func (r Rectangle) MarshalJSON() ([]byte, error) {
	type plain Rectangle
	return json.Marshal(struct {
		Type Kind `json:"type"`
		plain
	}{KindRectangle, plain(r)})
}

// MarshalJSON adds the "type" tag.
func (e Ellipse) MarshalJSON() ([]byte, error) {
	type plain Ellipse
	return json.Marshal(struct {
		Type Kind `json:"type"`
		plain
	}{KindEllipse, plain(e)})
}

// MarshalJSON adds the "type" tag.
func (s Stroke) MarshalJSON() ([]byte, error) {
	type plain Stroke
	return json.Marshal(struct {
		Type Kind `json:"type"`
		plain
	}{KindStroke, plain(s)})
}

// MarshalJSON adds the "type" tag.
func (l Label) MarshalJSON() ([]byte, error) {
	type plain Label
	return json.Marshal(struct {
		Type Kind `json:"type"`
		plain
	}{KindLabel, plain(l)})
}

// Decode parses one shape object, dispatching on its "type" field.
func Decode(data []byte) (Shape, error) {
	var tag struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("failed to read shape tag: %w", err)
	}
	var (
		s   Shape
		err error
	)
	switch tag.Type {
	case KindRectangle:
		var r Rectangle
		err = json.Unmarshal(data, &r)
		s = r
	case KindEllipse:
		var e Ellipse
		err = json.Unmarshal(data, &e)
		s = e
	case KindStroke:
		var st Stroke
		err = json.Unmarshal(data, &st)
		s = st
	case KindLabel:
		var l Label
		err = json.Unmarshal(data, &l)
		s = l
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", tag.Type, err)
	}
	return s, nil
}
