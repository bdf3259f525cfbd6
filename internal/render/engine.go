// Package render rasterizes the replay chart.
//
// The engine reads a Frame snapshot and draws it onto an RGBA image. It never
// modifies the snapshot. Frames carry a FrameKey; rendering the same key
// twice returns the cached image.
package render

import (
	"image"
	"image/png"
	"io"
	"math"
	"sync"

	"github.com/atlas-desktop/portfolio-replay/internal/viewport"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"github.com/atlas-desktop/portfolio-replay/pkg/utils"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Theme colors
var (
	ColorBackground = drawing.Color{R: 11, G: 11, B: 15, A: 255}
	ColorPrimary    = drawing.Color{R: 255, G: 0, B: 67, A: 255}
	ColorGrid       = drawing.Color{R: 255, G: 0, B: 67, A: 51}
	ColorHighlight  = drawing.Color{R: 255, G: 255, B: 255, A: 230}
	ColorHoverGuide = drawing.Color{R: 255, G: 255, B: 255, A: 110}
	ColorDragFill   = drawing.Color{R: 255, G: 0, B: 67, A: 38}
	ColorDragEdge   = drawing.Color{R: 255, G: 0, B: 67, A: 140}
)

const (
	lineWidth         = 2.0
	selectedLineWidth = 3.0
	highlightWidth    = 4.0
	dotRadius         = 4.0
	ghostAlpha        = 77
	yTickCount        = 6

	// PlaceholderText is drawn when no dataset is loaded
	PlaceholderText = "Load a result file to start the replay"
)

// Series is one dataset as the renderer sees it
type Series struct {
	ID        string
	Color     types.RGBColor
	PnL       []float64
	Anomalies []types.AnomalyPoint
}

// DragRect is an in-progress zoom selection in canvas x coordinates
type DragRect struct {
	X0, X1 float64
}

// FrameKey identifies everything a frame depends on. Owners bump the
// revision counters whenever the matching state changes.
type FrameKey struct {
	DatasetsRev  uint64
	Index        int
	Zoom         types.ZoomRange
	Filters      types.FilterSet
	HoverRev     uint64
	SelectedID   string
	HighlightRev uint64
	DragRev      uint64
	Width        int
	Height       int
}

// Frame is a read-only snapshot to draw
type Frame struct {
	Key          FrameKey
	Mapper       *viewport.Mapper
	Series       []Series
	CurrentIndex int
	Filters      types.FilterSet
	Hover        *types.HoverPoint
	Highlight    *types.HighlightedSegment
	Drag         *DragRect
	SelectedID   string
}

// Options tune the drawing
type Options struct {
	SplineTension  float64
	ShowGhostCurve bool
}

// Engine draws frames and caches the last one
type Engine struct {
	mu     sync.Mutex
	logger *zap.Logger
	opts   Options

	lastKey FrameKey
	cached  *image.RGBA
	hits    []HitRegion
	renders int
}

// NewEngine creates a render engine
func NewEngine(logger *zap.Logger, opts Options) *Engine {
	return &Engine{
		logger: logger,
		opts:   opts,
	}
}

// Render draws the frame unless its key matches the previous frame. The
// boolean reports whether drawing happened.
func (e *Engine) Render(f *Frame) (*image.RGBA, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cached != nil && f.Key == e.lastKey {
		return e.cached, false
	}

	img, hits := e.draw(f)
	e.cached = img
	e.hits = hits
	e.lastKey = f.Key
	e.renders++

	return img, true
}

// RenderCount returns how many frames were actually drawn
func (e *Engine) RenderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renders
}

// HitRegions returns the anomaly glyphs of the last drawn frame. It is a
// diagnostic view; picking recomputes glyph positions from the viewport
// mapper so it works before any frame is drawn.
func (e *Engine) HitRegions() []HitRegion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]HitRegion(nil), e.hits...)
}

// Invalidate forces the next Render to draw
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cached = nil
}

// EncodePNG writes an image as PNG
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

func toDrawingColor(c types.RGBColor, alpha uint8) drawing.Color {
	return drawing.Color{R: c.R, G: c.G, B: c.B, A: alpha}
}

func (e *Engine) draw(f *Frame) (*image.RGBA, []HitRegion) {
	m := f.Mapper
	width, height := m.Canvas()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(ColorBackground), image.Point{}, draw.Src)

	gc, err := drawing.NewRasterGraphicContext(img)
	if err != nil {
		e.logger.Error("Failed to create graphic context", zap.Error(err))
		return img, nil
	}

	e.drawAxes(img, gc, m)

	if len(f.Series) == 0 {
		left, top, right, bottom := m.PlotRect()
		drawText(img, int((left+right)/2), int((top+bottom)/2), PlaceholderText, ColorPrimary, AlignCenter)
		return img, nil
	}

	start, end := m.Window()
	for _, s := range f.Series {
		e.drawSeries(gc, m, s, start, end, f.CurrentIndex, s.ID == f.SelectedID)
	}

	hits := make([]HitRegion, 0)
	for _, s := range f.Series {
		hits = append(hits, drawAnomalies(gc, m, s, start, end, f.Filters)...)
	}

	if f.Highlight != nil {
		for _, s := range f.Series {
			if s.ID == f.Highlight.DatasetID {
				e.drawHighlight(gc, m, s, *f.Highlight, start, end)
				break
			}
		}
	}

	if f.Drag != nil {
		drawDragRect(gc, m, *f.Drag)
	}
	if f.Hover != nil {
		drawHoverGuide(gc, m, *f.Hover)
	}

	return img, hits
}

func (e *Engine) drawAxes(img *image.RGBA, gc *drawing.RasterGraphicContext, m *viewport.Mapper) {
	left, top, right, bottom := m.PlotRect()
	yMin, yMax := m.ValueRange()

	gc.SetLineWidth(1)
	gc.SetStrokeColor(ColorGrid)
	for _, v := range NiceTicks(yMin, yMax, yTickCount) {
		y := m.ValueToPixelY(v)
		gc.MoveTo(left, y)
		gc.LineTo(right, y)
		gc.Stroke()

		drawText(img, int(left)-6, int(y)+4, utils.FormatNumber(v, 2), ColorPrimary, AlignRight)
	}

	gc.SetStrokeColor(ColorPrimary)
	gc.MoveTo(left, top)
	gc.LineTo(left, bottom)
	gc.LineTo(right, bottom)
	gc.Stroke()

	start, end := m.Window()
	drawText(img, int(left), int(bottom)+16, utils.FormatNumber(float64(start), 0), ColorPrimary, AlignLeft)
	drawText(img, int(right), int(bottom)+16, utils.FormatNumber(float64(end), 0), ColorPrimary, AlignRight)

	if yMin < 0 && yMax > 0 {
		y := m.ValueToPixelY(0)
		gc.SetLineDash([]float64{2, 2}, 0)
		gc.MoveTo(left, y)
		gc.LineTo(right, y)
		gc.Stroke()
		gc.SetLineDash(nil, 0)
	}
}

// runs splits [from, to] into stretches of finite values
func runs(m *viewport.Mapper, pnl []float64, from, to int) [][]Point {
	var out [][]Point
	var cur []Point
	for i := from; i <= to; i++ {
		v := pnl[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, Point{X: m.DataIndexToPixelX(i), Y: m.ValueToPixelY(v)})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func (e *Engine) strokeCurve(gc *drawing.RasterGraphicContext, points []Point) {
	if len(points) == 0 {
		return
	}
	gc.MoveTo(points[0].X, points[0].Y)
	for _, seg := range CardinalSpline(points, e.opts.SplineTension) {
		gc.CubicCurveTo(seg.C1.X, seg.C1.Y, seg.C2.X, seg.C2.Y, seg.To.X, seg.To.Y)
	}
	gc.Stroke()
}

func (e *Engine) drawSeries(gc *drawing.RasterGraphicContext, m *viewport.Mapper, s Series, start, end, current int, selected bool) {
	last := min(end, len(s.PnL)-1)
	if last < start {
		return
	}

	if e.opts.ShowGhostCurve {
		gc.SetLineWidth(lineWidth)
		gc.SetStrokeColor(toDrawingColor(s.Color, ghostAlpha))
		for _, run := range runs(m, s.PnL, start, last) {
			e.strokeCurve(gc, run)
		}
	}

	activeEnd := min(current, last)
	if activeEnd < start {
		return
	}

	width := lineWidth
	if selected {
		width = selectedLineWidth
	}
	gc.SetLineWidth(width)
	gc.SetStrokeColor(toDrawingColor(s.Color, 255))
	for _, run := range runs(m, s.PnL, start, activeEnd) {
		e.strokeCurve(gc, run)
	}

	// The dot marks the current step only while this series has a value there
	if current <= last {
		v := s.PnL[current]
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			x, y := m.DataIndexToPixelX(current), m.ValueToPixelY(v)
			gc.SetFillColor(toDrawingColor(s.Color, 255))
			circlePath(gc, x, y, dotRadius)
			gc.Fill()
		}
	}
}

// drawAnomalies marks every anomaly of an enabled kind inside the window,
// including steps playback has not reached yet
func drawAnomalies(gc *drawing.RasterGraphicContext, m *viewport.Mapper, s Series, start, end int, filters types.FilterSet) []HitRegion {
	hits := make([]HitRegion, 0)
	outline := drawing.Color{R: 255, G: 255, B: 255, A: 200}
	fill := toDrawingColor(s.Color, 255)

	for _, a := range s.Anomalies {
		if !filters.Enabled(a.Kind) {
			continue
		}
		if a.StepIndex < start || a.StepIndex > end || a.StepIndex >= len(s.PnL) {
			continue
		}
		v := s.PnL[a.StepIndex]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}

		x, y := m.DataIndexToPixelX(a.StepIndex), m.ValueToPixelY(v)
		drawMarker(gc, a.Kind, x, y, fill, outline)
		hits = append(hits, HitRegion{
			DatasetID: s.ID,
			Step:      a.StepIndex,
			Kind:      a.Kind,
			X:         x,
			Y:         y,
			Radius:    MarkerRadius + 1,
		})
	}
	return hits
}

func (e *Engine) drawHighlight(gc *drawing.RasterGraphicContext, m *viewport.Mapper, s Series, h types.HighlightedSegment, start, end int) {
	from := max(h.StartIndex, start)
	to := min(h.EndIndex, end, len(s.PnL)-1)
	if to <= from {
		return
	}

	gc.SetLineWidth(highlightWidth)
	gc.SetStrokeColor(ColorHighlight)
	for _, run := range runs(m, s.PnL, from, to) {
		e.strokeCurve(gc, run)
	}
}

func drawDragRect(gc *drawing.RasterGraphicContext, m *viewport.Mapper, d DragRect) {
	left, top, right, bottom := m.PlotRect()
	x0 := math.Max(math.Min(d.X0, d.X1), left)
	x1 := math.Min(math.Max(d.X0, d.X1), right)
	if x1 <= x0 {
		return
	}

	gc.SetFillColor(ColorDragFill)
	gc.SetStrokeColor(ColorDragEdge)
	gc.SetLineWidth(1)
	gc.MoveTo(x0, top)
	gc.LineTo(x1, top)
	gc.LineTo(x1, bottom)
	gc.LineTo(x0, bottom)
	gc.Close()
	gc.FillStroke()
}

func drawHoverGuide(gc *drawing.RasterGraphicContext, m *viewport.Mapper, h types.HoverPoint) {
	_, top, _, bottom := m.PlotRect()

	gc.SetLineWidth(1)
	gc.SetStrokeColor(ColorHoverGuide)
	gc.MoveTo(h.PixelX, top)
	gc.LineTo(h.PixelX, bottom)
	gc.Stroke()

	gc.SetFillColor(ColorHighlight)
	circlePath(gc, h.PixelX, h.PixelY, 3)
	gc.Fill()
}
