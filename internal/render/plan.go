package render

import "github.com/okultahta/tahta-server/internal/stroke"

// Kind selects the drawing primitive.
type Kind int

const (
	// KindPath is an open polyline through Points.
	KindPath Kind = iota
	// KindCircle is a circle outline around Center.
	KindCircle
	// KindRect is a rectangle outline with origin (X, Y) and signed size (W, H).
	KindRect
)

// Primitive is the exact geometric form of one stroke.
type Primitive struct {
	Kind   Kind
	Points []stroke.Point
	Center stroke.Point
	Radius float64
	X, Y   float64
	W, H   float64
	Width  float64
	Color  string
	// Erase paints with destination-out compositing.
	Erase bool
}

// Plan maps committed strokes, then the live stroke if any, to primitives in
// paint order. Degenerate shapes produce nothing.
func Plan(strokes []stroke.Stroke, live *stroke.Stroke) []Primitive {
	out := make([]Primitive, 0, len(strokes)+1)
	for i := range strokes {
		if p, ok := primitive(strokes[i]); ok {
			out = append(out, p)
		}
	}
	if live != nil {
		if p, ok := primitive(*live); ok {
			out = append(out, p)
		}
	}
	return out
}

func primitive(s stroke.Stroke) (Primitive, bool) {
	switch sh := s.Shape().(type) {
	case stroke.Freehand:
		p := Primitive{
			Kind:   KindPath,
			Points: sh.Points,
			Width:  s.Width(),
			Color:  s.Color,
			Erase:  sh.Erase,
		}
		if sh.Erase {
			p.Color = ""
		}
		return p, true
	case stroke.Circle:
		return Primitive{
			Kind:   KindCircle,
			Center: sh.Anchor,
			Radius: sh.Radius(),
			Width:  s.Width(),
			Color:  s.Color,
		}, true
	case stroke.Rectangle:
		w, h := sh.Size()
		return Primitive{
			Kind:  KindRect,
			X:     sh.Anchor.X,
			Y:     sh.Anchor.Y,
			W:     w,
			H:     h,
			Width: s.Width(),
			Color: s.Color,
		}, true
	default:
		return Primitive{}, false
	}
}
