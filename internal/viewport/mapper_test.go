package viewport_test

import (
	"math"
	"testing"

	"github.com/atlas-desktop/portfolio-replay/internal/viewport"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
)

func TestIndexRoundTripInZoom(t *testing.T) {
	m := viewport.NewMapper(1000, 500, types.Margins{}, 10)
	m.SetMaxIndex(200)
	if !m.SetZoomIndices(10, 110) {
		t.Fatal("SetZoomIndices rejected a valid range")
	}

	x := m.DataIndexToPixelX(55)
	if x != 450 {
		t.Errorf("Expected x=450, got %v", x)
	}
	if got := m.PixelXToDataIndex(x); got != 55 {
		t.Errorf("Expected round trip to 55, got %d", got)
	}

	for i := 10; i <= 110; i++ {
		if got := m.PixelXToDataIndex(m.DataIndexToPixelX(i)); got != i {
			t.Fatalf("Round trip failed at %d: got %d", i, got)
		}
	}
}

func TestPixelToIndexClampsToWindow(t *testing.T) {
	m := viewport.NewMapper(1064, 500, types.Margins{Left: 64}, 10)
	m.SetMaxIndex(100)

	if got := m.PixelXToDataIndex(0); got != 0 {
		t.Errorf("Left of plot should clamp to 0, got %d", got)
	}
	if got := m.PixelXToDataIndex(5000); got != 100 {
		t.Errorf("Right of plot should clamp to 100, got %d", got)
	}
}

func TestSetZoomRejectsNarrowSpans(t *testing.T) {
	m := viewport.NewMapper(1000, 500, types.Margins{}, 10)
	m.SetMaxIndex(1000)

	if m.SetZoom(100, 105) {
		t.Error("A 5px span should be rejected")
	}
	if m.Zoom().Set {
		t.Error("Rejected zoom must leave the range unset")
	}

	if !m.SetZoom(300, 100) {
		t.Fatal("Reversed span should be accepted")
	}
	z := m.Zoom()
	if z.Start != 100 || z.End != 300 {
		t.Errorf("Expected zoom {100, 300}, got %+v", z)
	}

	m.ResetZoom()
	if start, end := m.Window(); start != 0 || end != 1000 {
		t.Errorf("Expected full window after reset, got [%d, %d]", start, end)
	}
}

func TestSetZoomRejectsSingleIndex(t *testing.T) {
	m := viewport.NewMapper(1000, 500, types.Margins{}, 10)
	m.SetMaxIndex(2)

	// 2 steps over 1000px: both ends land on step 0
	if m.SetZoom(10, 40) {
		t.Error("A span covering one step should be rejected")
	}
}

func TestValueRangeIncludesZero(t *testing.T) {
	m := viewport.NewMapper(1000, 500, types.Margins{}, 10)

	m.UpdateValueRange(100, 200)
	lo, hi := m.ValueRange()
	if lo != -40 || hi != 240 {
		t.Errorf("Expected [-40, 240], got [%v, %v]", lo, hi)
	}

	m.UpdateValueRange(0, 0)
	lo, hi = m.ValueRange()
	if lo != -1 || hi != 1 {
		t.Errorf("Expected [-1, 1] for a flat range, got [%v, %v]", lo, hi)
	}

	m.UpdateValueRange(math.NaN(), 5)
	if lo, hi = m.ValueRange(); lo != -1 || hi != 1 {
		t.Errorf("Non-finite extents should fall back to [-1, 1], got [%v, %v]", lo, hi)
	}
}

func TestValueToPixelYInverted(t *testing.T) {
	m := viewport.NewMapper(1000, 520, types.Margins{Top: 20}, 10)
	m.UpdateValueRange(-10, 10)

	top := m.ValueToPixelY(14)
	bottom := m.ValueToPixelY(-14)
	if top != 20 || bottom != 520 {
		t.Errorf("Expected y range [20, 520], got [%v, %v]", top, bottom)
	}
	if v := m.PixelYToValue(m.ValueToPixelY(3.5)); math.Abs(v-3.5) > 1e-9 {
		t.Errorf("Expected 3.5 back, got %v", v)
	}
}

func TestSetMaxIndexDropsCollapsedZoom(t *testing.T) {
	m := viewport.NewMapper(1000, 500, types.Margins{}, 10)
	m.SetMaxIndex(100)
	m.SetZoomIndices(50, 80)

	m.SetMaxIndex(60)
	if z := m.Zoom(); z.End != 60 {
		t.Errorf("Expected zoom end clamped to 60, got %+v", z)
	}

	m.SetMaxIndex(40)
	if m.Zoom().Set {
		t.Error("Zoom entirely past the new end should be dropped")
	}
}

func TestInPlot(t *testing.T) {
	m := viewport.NewMapper(200, 100, types.Margins{Left: 20, Right: 10, Top: 5, Bottom: 15}, 10)

	if !m.InPlot(20, 5) || !m.InPlot(190, 85) {
		t.Error("Plot corners should be inside")
	}
	if m.InPlot(10, 50) || m.InPlot(100, 95) {
		t.Error("Margins should be outside the plot")
	}
}
