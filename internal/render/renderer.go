package render

import (
	"fmt"
	"image"
	"io"

	"github.com/gogpu/gg"

	"github.com/okultahta/tahta-server/internal/stroke"
)

// DefaultBackground is the solid color the surface is cleared to.
const DefaultBackground = "#ffffff"

// Renderer replays stroke lists onto a raster surface.
// It is not safe for concurrent use.
type Renderer struct {
	dc         *gg.Context
	scratch    *gg.Context
	background gg.RGBA
	frames     uint64
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithBackground sets the clear color as a hex string.
func WithBackground(hex string) Option {
	return func(r *Renderer) {
		r.background = gg.Hex(hex)
	}
}

// New creates a renderer with a width x height surface.
func New(width, height int, opts ...Option) (*Renderer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	r := &Renderer{
		dc:         gg.NewContext(width, height),
		background: gg.Hex(DefaultBackground),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.dc.ClearWithColor(r.background)
	return r, nil
}

// Size returns the surface dimensions.
func (r *Renderer) Size() (width, height int) {
	return r.dc.Width(), r.dc.Height()
}

// Frames returns how many full replays have been painted.
func (r *Renderer) Frames() uint64 {
	return r.frames
}

// Render clears the surface and paints every committed stroke followed by
// the live stroke.
func (r *Renderer) Render(strokes []stroke.Stroke, live *stroke.Stroke) error {
	r.dc.ClearWithColor(r.background)
	for _, p := range Plan(strokes, live) {
		if err := r.paint(p); err != nil {
			return err
		}
	}
	r.frames++
	return nil
}

// Resize resets the surface to the new dimensions and replays the full list.
func (r *Renderer) Resize(width, height int, strokes []stroke.Stroke, live *stroke.Stroke) error {
	if err := r.dc.Resize(width, height); err != nil {
		return fmt.Errorf("resize surface: %w", err)
	}
	if r.scratch != nil {
		_ = r.scratch.Close()
		r.scratch = nil
	}
	return r.Render(strokes, live)
}

// Image returns a copy of the current surface.
func (r *Renderer) Image() image.Image {
	return r.dc.Image()
}

// EncodePNG writes the current surface as PNG.
func (r *Renderer) EncodePNG(w io.Writer) error {
	return r.dc.EncodePNG(w)
}

// Close releases the drawing contexts.
func (r *Renderer) Close() error {
	if r.scratch != nil {
		_ = r.scratch.Close()
	}
	return r.dc.Close()
}

func (r *Renderer) paint(p Primitive) error {
	if p.Erase {
		return r.erase(p)
	}

	dc := r.dc
	dc.SetLineJoin(gg.LineJoinRound)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineWidth(p.Width)
	dc.SetHexColor(p.Color)

	switch p.Kind {
	case KindPath:
		if c, ok := dot(p.Points); ok {
			dc.DrawCircle(c.X, c.Y, p.Width/2)
			if err := dc.Fill(); err != nil {
				return fmt.Errorf("fill dot: %w", err)
			}
			return nil
		}
		tracePath(dc, p.Points)
	case KindCircle:
		dc.DrawCircle(p.Center.X, p.Center.Y, p.Radius)
	case KindRect:
		dc.DrawRectangle(p.X, p.Y, p.W, p.H)
	}
	if err := dc.Stroke(); err != nil {
		return fmt.Errorf("stroke %v: %w", p.Kind, err)
	}
	return nil
}

// erase rasterizes the eraser path into a coverage mask and removes that
// coverage from the surface (destination-out). The main context keeps its
// normal compositing, so nothing carries over to the next stroke.
func (r *Renderer) erase(p Primitive) error {
	w, h := r.Size()
	if r.scratch == nil || r.scratch.Width() != w || r.scratch.Height() != h {
		if r.scratch != nil {
			_ = r.scratch.Close()
		}
		r.scratch = gg.NewContext(w, h)
	}

	sc := r.scratch
	sc.Clear()
	sc.SetLineJoin(gg.LineJoinRound)
	sc.SetLineCap(gg.LineCapRound)
	sc.SetLineWidth(p.Width)
	sc.SetRGBA(1, 1, 1, 1)
	if c, ok := dot(p.Points); ok {
		sc.DrawCircle(c.X, c.Y, p.Width/2)
		if err := sc.Fill(); err != nil {
			return fmt.Errorf("fill eraser mask: %w", err)
		}
	} else {
		tracePath(sc, p.Points)
		if err := sc.Stroke(); err != nil {
			return fmt.Errorf("stroke eraser mask: %w", err)
		}
	}

	mask := sc.ResizeTarget().Data()
	dst := r.dc.ResizeTarget().Data()
	for i := 3; i < len(dst) && i < len(mask); i += 4 {
		cov := mask[i]
		if cov == 0 {
			continue
		}
		keep := uint32(255 - cov)
		for c := i - 3; c <= i; c++ {
			dst[c] = uint8(uint32(dst[c]) * keep / 255)
		}
	}
	return nil
}

func tracePath(dc *gg.Context, pts []stroke.Point) {
	if len(pts) == 0 {
		return
	}
	dc.MoveTo(pts[0].X, pts[0].Y)
	for _, pt := range pts {
		dc.LineTo(pt.X, pt.Y)
	}
}

// dot reports whether the path has zero length, which the rasterizer would
// drop. A click without a drag still leaves a round mark.
func dot(pts []stroke.Point) (stroke.Point, bool) {
	if len(pts) == 0 {
		return stroke.Point{}, false
	}
	for _, pt := range pts[1:] {
		if pt != pts[0] {
			return stroke.Point{}, false
		}
	}
	return pts[0], true
}
