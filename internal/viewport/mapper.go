// Package viewport maps between data space (step index, PnL value) and
// canvas pixels for the current zoom window.
package viewport

import (
	"math"

	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"github.com/atlas-desktop/portfolio-replay/pkg/utils"
)

// DefaultMinSelectionPx is the narrowest drag that counts as a zoom
const DefaultMinSelectionPx = 10

// Mapper converts coordinates for one canvas.
//
// Index mapping: x = left + (i - start) * plotWidth / (end - start).
// PixelXToDataIndex floors, so interior steps round-trip exactly while a
// pixel past the last step clamps back to the window end.
type Mapper struct {
	width, height  int
	margins        types.Margins
	minSelectionPx float64

	maxIndex int
	zoom     types.ZoomRange

	yMin, yMax float64
}

// NewMapper creates a mapper for a canvas
func NewMapper(width, height int, margins types.Margins, minSelectionPx float64) *Mapper {
	if minSelectionPx <= 0 {
		minSelectionPx = DefaultMinSelectionPx
	}
	m := &Mapper{
		margins:        margins,
		minSelectionPx: minSelectionPx,
		yMin:           -1,
		yMax:           1,
	}
	m.SetCanvas(width, height)
	return m
}

// SetCanvas resizes the canvas
func (m *Mapper) SetCanvas(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	m.width, m.height = width, height
}

// Canvas returns the canvas size
func (m *Mapper) Canvas() (int, int) { return m.width, m.height }

// Margins returns the plot margins
func (m *Mapper) Margins() types.Margins { return m.margins }

// PlotWidth is the drawable width inside the margins
func (m *Mapper) PlotWidth() float64 {
	w := float64(m.width - m.margins.Left - m.margins.Right)
	if w < 1 {
		return 1
	}
	return w
}

// PlotHeight is the drawable height inside the margins
func (m *Mapper) PlotHeight() float64 {
	h := float64(m.height - m.margins.Top - m.margins.Bottom)
	if h < 1 {
		return 1
	}
	return h
}

// PlotRect returns the plot area as left, top, right, bottom
func (m *Mapper) PlotRect() (float64, float64, float64, float64) {
	left := float64(m.margins.Left)
	top := float64(m.margins.Top)
	return left, top, left + m.PlotWidth(), top + m.PlotHeight()
}

// InPlot reports whether a canvas point lies inside the plot area
func (m *Mapper) InPlot(x, y float64) bool {
	left, top, right, bottom := m.PlotRect()
	return x >= left && x <= right && y >= top && y <= bottom
}

// SetMaxIndex updates the full index range. A zoom that no longer fits is
// clamped, and dropped when it collapses.
func (m *Mapper) SetMaxIndex(n int) {
	if n < 0 {
		n = 0
	}
	m.maxIndex = n
	if !m.zoom.Set {
		return
	}
	m.zoom.Start = utils.ClampInt(m.zoom.Start, 0, n)
	m.zoom.End = utils.ClampInt(m.zoom.End, 0, n)
	if m.zoom.End <= m.zoom.Start {
		m.zoom = types.ZoomRange{}
	}
}

// MaxIndex returns the full range end
func (m *Mapper) MaxIndex() int { return m.maxIndex }

// Zoom returns the zoom range; an unset range means the full series
func (m *Mapper) Zoom() types.ZoomRange { return m.zoom }

// Window returns the effective visible index range
func (m *Mapper) Window() (start, end int) {
	if m.zoom.Set {
		return m.zoom.Start, m.zoom.End
	}
	return 0, m.maxIndex
}

// DataIndexToPixelX maps a step index to a canvas x coordinate
func (m *Mapper) DataIndexToPixelX(i int) float64 {
	return m.IndexToPixelX(float64(i))
}

// IndexToPixelX maps a fractional step index to a canvas x coordinate
func (m *Mapper) IndexToPixelX(i float64) float64 {
	start, end := m.Window()
	span := float64(end - start)
	if span <= 0 {
		return float64(m.margins.Left)
	}
	return float64(m.margins.Left) + (i-float64(start))*m.PlotWidth()/span
}

// PixelXToDataIndex maps a canvas x coordinate to the step index at or
// before it, clamped to the visible window
func (m *Mapper) PixelXToDataIndex(x float64) int {
	start, end := m.Window()
	span := float64(end - start)
	if span <= 0 {
		return start
	}
	raw := (x-float64(m.margins.Left))*span/m.PlotWidth() + float64(start)
	return utils.ClampInt(int(math.Floor(raw+1e-9)), start, end)
}

// NearestDataIndex maps a canvas x coordinate to the closest step index
func (m *Mapper) NearestDataIndex(x float64) int {
	start, end := m.Window()
	span := float64(end - start)
	if span <= 0 {
		return start
	}
	raw := (x-float64(m.margins.Left))*span/m.PlotWidth() + float64(start)
	return utils.ClampInt(int(math.Round(raw)), start, end)
}

// ValueRange returns the padded y range
func (m *Mapper) ValueRange() (float64, float64) { return m.yMin, m.yMax }

// UpdateValueRange sets the y range from the data extent. The range always
// includes zero and is padded by 20% of its span, or by 1 when flat.
func (m *Mapper) UpdateValueRange(lo, hi float64) {
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		lo, hi = 0, 0
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	lo = math.Min(lo, 0)
	hi = math.Max(hi, 0)

	pad := (hi - lo) * 0.2
	if pad == 0 {
		pad = 1
	}
	m.yMin, m.yMax = lo-pad, hi+pad
}

// ValueToPixelY maps a PnL value to a canvas y coordinate; larger values
// sit higher on the canvas
func (m *Mapper) ValueToPixelY(v float64) float64 {
	span := m.yMax - m.yMin
	if span <= 0 {
		return float64(m.margins.Top) + m.PlotHeight()/2
	}
	return float64(m.margins.Top) + (m.yMax-v)/span*m.PlotHeight()
}

// PixelYToValue is the inverse of ValueToPixelY
func (m *Mapper) PixelYToValue(y float64) float64 {
	span := m.yMax - m.yMin
	return m.yMax - (y-float64(m.margins.Top))/m.PlotHeight()*span
}

// SetZoom zooms to the steps under a pixel span. It returns false, leaving
// the zoom unchanged, when the span is narrower than the minimum selection or
// covers a single step.
func (m *Mapper) SetZoom(pixelStart, pixelEnd float64) bool {
	if pixelEnd < pixelStart {
		pixelStart, pixelEnd = pixelEnd, pixelStart
	}
	if pixelEnd-pixelStart < m.minSelectionPx {
		return false
	}

	start := m.PixelXToDataIndex(pixelStart)
	end := m.PixelXToDataIndex(pixelEnd)
	return m.SetZoomIndices(start, end)
}

// SetZoomIndices zooms to an index range
func (m *Mapper) SetZoomIndices(start, end int) bool {
	if end < start {
		start, end = end, start
	}
	start = utils.ClampInt(start, 0, m.maxIndex)
	end = utils.ClampInt(end, 0, m.maxIndex)
	if end <= start {
		return false
	}
	m.zoom = types.ZoomRange{Start: start, End: end, Set: true}
	return true
}

// ResetZoom shows the full range again
func (m *Mapper) ResetZoom() {
	m.zoom = types.ZoomRange{}
}
