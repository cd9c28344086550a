package render

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okultahta/tahta-server/internal/stroke"
)

func pen(color string, size float64, pts ...stroke.Point) stroke.Stroke {
	return stroke.Stroke{Points: pts, Color: color, Size: size, Tool: stroke.ToolPen}
}

func TestPlanRectangleFromAnchorToLatestPoint(t *testing.T) {
	sq := stroke.Stroke{
		Points: []stroke.Point{{X: 10, Y: 10}, {X: 110, Y: 60}},
		Color:  "#000000",
		Size:   3,
		Tool:   stroke.ToolSquare,
	}

	prims := Plan([]stroke.Stroke{sq}, nil)
	require.Len(t, prims, 1)
	p := prims[0]
	assert.Equal(t, KindRect, p.Kind)
	assert.Equal(t, 10.0, p.X)
	assert.Equal(t, 10.0, p.Y)
	assert.Equal(t, 100.0, p.W)
	assert.Equal(t, 50.0, p.H)
}

func TestPlanRectangleMayExtendBackwards(t *testing.T) {
	sq := stroke.Stroke{
		Points: []stroke.Point{{X: 50, Y: 50}, {X: 20, Y: 10}},
		Size:   1,
		Tool:   stroke.ToolSquare,
	}
	p := Plan([]stroke.Stroke{sq}, nil)[0]
	assert.Equal(t, -30.0, p.W)
	assert.Equal(t, -40.0, p.H)
}

func TestPlanCircleRadiusIsAnchorToLatestDistance(t *testing.T) {
	c := stroke.Stroke{
		Points: []stroke.Point{{X: 100, Y: 100}, {X: 400, Y: 5}, {X: 130, Y: 140}},
		Color:  "#0000FF",
		Size:   2,
		Tool:   stroke.ToolCircle,
	}
	p := Plan([]stroke.Stroke{c}, nil)[0]
	assert.Equal(t, KindCircle, p.Kind)
	assert.Equal(t, stroke.Point{X: 100, Y: 100}, p.Center)
	assert.InDelta(t, math.Hypot(30, 40), p.Radius, 1e-12)
}

func TestPlanWidthsPerTool(t *testing.T) {
	pts := []stroke.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}
	strokes := []stroke.Stroke{
		{Points: pts, Color: "#000000", Size: 4, Tool: stroke.ToolPen},
		{Points: pts, Color: "#000000", Size: 4, Tool: stroke.ToolBrush},
		{Points: pts, Color: "#FF0000", Size: 4, Tool: stroke.ToolEraser},
	}
	prims := Plan(strokes, nil)
	require.Len(t, prims, 3)
	assert.Equal(t, 4.0, prims[0].Width)
	assert.Equal(t, 8.0, prims[1].Width)
	assert.Equal(t, 20.0, prims[2].Width)
	assert.True(t, prims[2].Erase)
	assert.Empty(t, prims[2].Color, "eraser ignores color")
}

func TestPlanSkipsDegenerateShapesAndAppendsLive(t *testing.T) {
	degenerate := stroke.Stroke{Points: []stroke.Point{{X: 1, Y: 1}}, Size: 1, Tool: stroke.ToolCircle}
	live := stroke.Stroke{Points: []stroke.Point{{X: 1, Y: 1}, {X: 5, Y: 1}}, Size: 1, Tool: stroke.ToolCircle}
	committed := pen("#000000", 1, stroke.Point{X: 3, Y: 3})

	prims := Plan([]stroke.Stroke{committed, degenerate}, &live)
	require.Len(t, prims, 2)
	assert.Equal(t, KindPath, prims[0].Kind)
	assert.Equal(t, KindCircle, prims[1].Kind)
}

func TestPlanPathPassesThroughEveryPointInOrder(t *testing.T) {
	pts := []stroke.Point{{X: 5, Y: 5}, {X: 20, Y: 7}, {X: 9, Y: 30}, {X: 40, Y: 40}}
	p := Plan([]stroke.Stroke{pen("#000000", 2, pts...)}, nil)[0]
	assert.Equal(t, pts, p.Points)
}

func TestRenderIsDeterministic(t *testing.T) {
	strokes := []stroke.Stroke{
		pen("#FF0000", 3, stroke.Point{X: 10, Y: 10}, stroke.Point{X: 80, Y: 60}),
		{Points: []stroke.Point{{X: 60, Y: 60}, {X: 90, Y: 60}}, Color: "#0000FF", Size: 2, Tool: stroke.ToolCircle},
		{Points: []stroke.Point{{X: 20, Y: 20}, {X: 40, Y: 40}}, Tool: stroke.ToolEraser},
	}

	first := encode(t, strokes)
	second := encode(t, strokes)
	assert.True(t, bytes.Equal(first, second), "replaying the same list must produce identical output")
}

func TestRenderPaintsPenAndBackground(t *testing.T) {
	r, err := New(100, 100)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Render([]stroke.Stroke{
		pen("#FF0000", 6, stroke.Point{X: 10, Y: 50}, stroke.Point{X: 90, Y: 50}),
	}, nil))

	img := r.Image()
	assertRGBA(t, img, 50, 50, 255, 0, 0, 255)
	assertRGBA(t, img, 50, 10, 255, 255, 255, 255)
	assert.Equal(t, uint64(1), r.Frames())
}

func TestEraserClearsAndDoesNotLeak(t *testing.T) {
	r, err := New(100, 100)
	require.NoError(t, err)
	defer r.Close()

	strokes := []stroke.Stroke{
		pen("#000000", 10, stroke.Point{X: 10, Y: 50}, stroke.Point{X: 90, Y: 50}),
		{Points: []stroke.Point{{X: 50, Y: 30}, {X: 50, Y: 70}}, Tool: stroke.ToolEraser},
		pen("#00FF00", 6, stroke.Point{X: 10, Y: 20}, stroke.Point{X: 90, Y: 20}),
	}
	require.NoError(t, r.Render(strokes, nil))

	img := r.Image()
	_, _, _, a := img.At(50, 50).RGBA()
	assert.Equal(t, uint32(0), a, "eraser removes the surface under it")
	assertRGBA(t, img, 20, 50, 0, 0, 0, 255)
	assertRGBA(t, img, 50, 20, 0, 255, 0, 255)
}

func TestSinglePointStrokesLeaveADot(t *testing.T) {
	r, err := New(40, 40)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Render([]stroke.Stroke{
		pen("#000000", 10, stroke.Point{X: 20, Y: 20}),
		pen("#0000FF", 6, stroke.Point{X: 8, Y: 8}, stroke.Point{X: 8, Y: 8}),
	}, nil))

	img := r.Image()
	assertRGBA(t, img, 20, 20, 0, 0, 0, 255)
	assertRGBA(t, img, 8, 8, 0, 0, 255, 255)
	assertRGBA(t, img, 35, 35, 255, 255, 255, 255)
}

func TestEraserClickClearsADot(t *testing.T) {
	r, err := New(40, 40)
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Render([]stroke.Stroke{
		pen("#000000", 10, stroke.Point{X: 5, Y: 20}, stroke.Point{X: 35, Y: 20}),
		{Points: []stroke.Point{{X: 20, Y: 20}}, Tool: stroke.ToolEraser},
	}, nil))

	img := r.Image()
	_, _, _, a := img.At(20, 20).RGBA()
	assert.Equal(t, uint32(0), a)
	assertRGBA(t, img, 6, 20, 0, 0, 0, 255)
}

func TestResizeReplaysFullList(t *testing.T) {
	r, err := New(50, 50)
	require.NoError(t, err)
	defer r.Close()

	strokes := []stroke.Stroke{pen("#0000FF", 6, stroke.Point{X: 100, Y: 100}, stroke.Point{X: 140, Y: 100})}
	require.NoError(t, r.Render(strokes, nil))

	require.NoError(t, r.Resize(200, 150, strokes, nil))
	w, h := r.Size()
	assert.Equal(t, 200, w)
	assert.Equal(t, 150, h)
	assertRGBA(t, r.Image(), 120, 100, 0, 0, 255, 255)
}

func TestNewRejectsEmptySurface(t *testing.T) {
	_, err := New(0, 10)
	assert.Error(t, err)
}

func encode(t *testing.T, strokes []stroke.Stroke) []byte {
	t.Helper()
	r, err := New(120, 120)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Render(strokes, nil))

	var buf bytes.Buffer
	require.NoError(t, r.EncodePNG(&buf))
	_, err = png.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return buf.Bytes()
}

func assertRGBA(t *testing.T, img image.Image, x, y int, r, g, b, a uint8) {
	t.Helper()
	cr, cg, cb, ca := img.At(x, y).RGBA()
	got := [4]uint8{uint8(cr >> 8), uint8(cg >> 8), uint8(cb >> 8), uint8(ca >> 8)}
	assert.Equal(t, [4]uint8{r, g, b, a}, got, "pixel (%d,%d)", x, y)
}
