package stroke

// Shape is the tool-specific interpretation of a stroke's points.
// It is one of Freehand, Circle or Rectangle.
type Shape interface {
	isShape()
}

// Freehand is a path through every recorded point.
type Freehand struct {
	Points []Point
	Erase  bool
}

// Circle is centered on Anchor and passes through Edge.
type Circle struct {
	Anchor Point
	Edge   Point
}

// Radius is the distance from the anchor to the edge.
func (c Circle) Radius() float64 {
	return c.Anchor.Dist(c.Edge)
}

// Rectangle spans from Anchor to the opposite corner Edge.
// Width and height may be negative.
type Rectangle struct {
	Anchor Point
	Edge   Point
}

// Size returns the signed width and height of the rectangle.
func (r Rectangle) Size() (w, h float64) {
	return r.Edge.X - r.Anchor.X, r.Edge.Y - r.Anchor.Y
}

func (Freehand) isShape()  {}
func (Circle) isShape()    {}
func (Rectangle) isShape() {}

// Shape converts the stroke into its tagged form.
// It returns nil for an empty stroke or a shape with fewer than two points.
func (s Stroke) Shape() Shape {
	if len(s.Points) == 0 {
		return nil
	}
	switch s.Tool {
	case ToolCircle:
		if len(s.Points) < 2 {
			return nil
		}
		return Circle{Anchor: s.First(), Edge: s.Last()}
	case ToolSquare:
		if len(s.Points) < 2 {
			return nil
		}
		return Rectangle{Anchor: s.First(), Edge: s.Last()}
	case ToolEraser:
		return Freehand{Points: s.Points, Erase: true}
	default:
		return Freehand{Points: s.Points}
	}
}

// Committable reports whether the stroke may be appended to a session.
func (s Stroke) Committable() bool {
	return s.Shape() != nil
}
