package render

import (
	"math"

	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// MarkerRadius is the size of anomaly glyphs in pixels
const MarkerRadius = 5.0

// HitRegion is a drawn anomaly glyph
type HitRegion struct {
	DatasetID string            `json:"datasetId"`
	Step      int               `json:"step"`
	Kind      types.AnomalyKind `json:"kind"`
	X         float64           `json:"x"`
	Y         float64           `json:"y"`
	Radius    float64           `json:"radius"`
}

// Contains reports whether a canvas point falls on the glyph
func (h HitRegion) Contains(x, y float64) bool {
	return math.Hypot(x-h.X, y-h.Y) <= h.Radius
}

func circlePath(gc *drawing.RasterGraphicContext, x, y, r float64) {
	gc.MoveTo(x+r, y)
	gc.ArcTo(x, y, r, r, 0, 2*math.Pi)
	gc.Close()
}

// trianglePath draws an upward triangle centred on (x, y)
func trianglePath(gc *drawing.RasterGraphicContext, x, y, r float64) {
	h := r * math.Sqrt(3) / 2
	gc.MoveTo(x, y-r)
	gc.LineTo(x+h, y+r/2)
	gc.LineTo(x-h, y+r/2)
	gc.Close()
}

func drawMarker(gc *drawing.RasterGraphicContext, kind types.AnomalyKind, x, y float64, fill, outline drawing.Color) {
	gc.SetFillColor(fill)
	gc.SetStrokeColor(outline)
	gc.SetLineWidth(1.5)

	switch kind {
	case types.AnomalyFalsePositive:
		circlePath(gc, x, y, MarkerRadius)
	case types.AnomalyFalseNegative:
		trianglePath(gc, x, y, MarkerRadius+1)
	default:
		return
	}
	gc.FillStroke()
}
