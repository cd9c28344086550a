package stroke

import (
	"errors"
	"fmt"
	"math"
)

// Tool identifies the drawing instrument a stroke was made with.
type Tool string

const (
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
	ToolBrush  Tool = "brush"
	ToolCircle Tool = "circle"
	ToolSquare Tool = "square"
)

const (
	// EraserWidth is the fixed line width of the eraser, independent of Size.
	EraserWidth = 20.0
	// BrushScale multiplies Size for brush strokes.
	BrushScale = 2.0
)

// ErrInvalidStroke is returned by Validate for malformed strokes.
var ErrInvalidStroke = errors.New("invalid stroke")

// Valid reports whether t is a known tool.
func (t Tool) Valid() bool {
	switch t {
	case ToolPen, ToolEraser, ToolBrush, ToolCircle, ToolSquare:
		return true
	default:
		return false
	}
}

// IsShape reports whether the tool interprets its points as anchor and edge.
func (t Tool) IsShape() bool {
	return t == ToolCircle || t == ToolSquare
}

// Point is a coordinate in canvas pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Stroke is one continuous drawing action.
type Stroke struct {
	Points []Point `json:"points"`
	Color  string  `json:"color"`
	Size   float64 `json:"size"`
	Tool   Tool    `json:"tool"`
}

// New starts a stroke at p using the given tool configuration.
func New(p Point, cfg ToolConfig) Stroke {
	return Stroke{
		Points: []Point{p},
		Color:  cfg.Color,
		Size:   cfg.Size,
		Tool:   cfg.Tool,
	}
}

// Validate checks the structural invariants of a stroke.
func (s Stroke) Validate() error {
	if len(s.Points) == 0 {
		return fmt.Errorf("%w: no points", ErrInvalidStroke)
	}
	if !s.Tool.Valid() {
		return fmt.Errorf("%w: unknown tool %q", ErrInvalidStroke, s.Tool)
	}
	if s.Tool != ToolEraser && !(s.Size > 0) {
		return fmt.Errorf("%w: size must be positive", ErrInvalidStroke)
	}
	for _, p := range s.Points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("%w: non-finite point", ErrInvalidStroke)
		}
	}
	return nil
}

// Clone returns a deep copy of s.
func (s Stroke) Clone() Stroke {
	out := s
	out.Points = append([]Point(nil), s.Points...)
	return out
}

// First returns the anchor point. The stroke must be non-empty.
func (s Stroke) First() Point {
	return s.Points[0]
}

// Last returns the most recent point. The stroke must be non-empty.
func (s Stroke) Last() Point {
	return s.Points[len(s.Points)-1]
}

// Width returns the effective line width used when painting the stroke.
func (s Stroke) Width() float64 {
	switch s.Tool {
	case ToolEraser:
		return EraserWidth
	case ToolBrush:
		return s.Size * BrushScale
	default:
		return s.Size
	}
}

// CloneAll deep copies a stroke list. A nil input yields an empty list.
func CloneAll(strokes []Stroke) []Stroke {
	out := make([]Stroke, len(strokes))
	for i, s := range strokes {
		out[i] = s.Clone()
	}
	return out
}

// Equal reports whether two stroke lists hold the same strokes in the same order.
func Equal(a, b []Stroke) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Tool != b[i].Tool || a[i].Color != b[i].Color || a[i].Size != b[i].Size {
			return false
		}
		if len(a[i].Points) != len(b[i].Points) {
			return false
		}
		for j := range a[i].Points {
			if a[i].Points[j] != b[i].Points[j] {
				return false
			}
		}
	}
	return true
}
