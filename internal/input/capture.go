// Package input turns pointer gestures into strokes.
package input

import "github.com/okultahta/tahta-server/internal/stroke"

// State is the gesture state of a Capture.
type State int

const (
	StateIdle State = iota
	StateDrawing
)

func (s State) String() string {
	if s == StateDrawing {
		return "drawing"
	}
	return "idle"
}

// ActionKind tells the owner of the stroke list what to do with a gesture step.
type ActionKind int

const (
	// ActionNone means the event changed nothing.
	ActionNone ActionKind = iota
	// ActionAppend appends Stroke to the authoritative list.
	ActionAppend
	// ActionExtend appends Point to the last element of the list.
	ActionExtend
	// ActionLive replaces the live shape with Stroke.
	ActionLive
)

// Action is the result of feeding one pointer event to a Capture.
type Action struct {
	Kind   ActionKind
	Stroke stroke.Stroke
	Point  stroke.Point
}

// Rect is the on-screen bounds of the drawing surface.
type Rect struct {
	Left, Top float64
}

// Local converts client coordinates to surface-local coordinates.
func Local(clientX, clientY float64, bounds Rect) stroke.Point {
	return stroke.Point{X: clientX - bounds.Left, Y: clientY - bounds.Top}
}

// Capture tracks one pointer gesture at a time.
// Freehand strokes are handed to the owner on pointer-down so they render
// while they grow; shapes stay in the capture as the live shape until commit.
type Capture struct {
	state   State
	tool    stroke.Tool
	current stroke.Stroke
}

// State returns the current gesture state.
func (c *Capture) State() State {
	return c.state
}

// Live returns the in-progress shape, or nil when no shape gesture is active.
func (c *Capture) Live() *stroke.Stroke {
	if c.state != StateDrawing || !c.tool.IsShape() {
		return nil
	}
	live := c.current.Clone()
	return &live
}

// Down starts a stroke at p with the given tool snapshot.
// A Down while already drawing abandons the previous gesture.
func (c *Capture) Down(p stroke.Point, cfg stroke.ToolConfig) Action {
	c.state = StateDrawing
	c.tool = cfg.Tool
	c.current = stroke.New(p, cfg)

	if cfg.Tool.IsShape() {
		return Action{Kind: ActionLive, Stroke: c.current.Clone()}
	}
	return Action{Kind: ActionAppend, Stroke: c.current.Clone()}
}

// Move records p for the active gesture.
func (c *Capture) Move(p stroke.Point) Action {
	if c.state != StateDrawing {
		return Action{}
	}
	if c.tool.IsShape() {
		c.current.Points = []stroke.Point{c.current.First(), p}
		return Action{Kind: ActionLive, Stroke: c.current.Clone()}
	}
	c.current.Points = append(c.current.Points, p)
	return Action{Kind: ActionExtend, Point: p}
}

// Up ends the gesture. It returns the finished stroke and whether it should
// be committed. Shapes with fewer than two points are discarded.
func (c *Capture) Up() (stroke.Stroke, bool) {
	if c.state != StateDrawing {
		return stroke.Stroke{}, false
	}
	done := c.current
	c.state = StateIdle
	c.current = stroke.Stroke{}
	if !done.Committable() {
		return stroke.Stroke{}, false
	}
	return done, true
}

// Cancel drops the active gesture without committing it.
func (c *Capture) Cancel() {
	c.state = StateIdle
	c.current = stroke.Stroke{}
}
