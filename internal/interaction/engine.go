// Package interaction turns pointer events into hover, pin and highlight
// state using the same coordinate mapping as the renderer.
package interaction

import (
	"math"
	"sync"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/playback"
	"github.com/atlas-desktop/portfolio-replay/internal/viewport"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"github.com/atlas-desktop/portfolio-replay/pkg/utils"
	"go.uber.org/zap"
)

// Defaults for pointer tolerances
const (
	DefaultHoverTolerancePx = 12.0
	DefaultClickTolerancePx = 8.0
	DefaultHoverDebounce    = 50 * time.Millisecond
)

// Scene is the read-only state a pointer event is resolved against
type Scene struct {
	Mapper    *viewport.Mapper
	Datasets  []*types.Dataset
	Anomalies map[string][]types.AnomalyPoint
	Filters   types.FilterSet
}

// ClickOutcome describes what a click hit
type ClickOutcome int

const (
	ClickMiss ClickOutcome = iota
	ClickAnomalyMatched
	ClickAnomalyUnmatched
	ClickPoint
	ClickPointNoTrades
)

func (o ClickOutcome) String() string {
	switch o {
	case ClickAnomalyMatched:
		return "anomaly_matched"
	case ClickAnomalyUnmatched:
		return "anomaly_unmatched"
	case ClickPoint:
		return "point"
	case ClickPointNoTrades:
		return "point_no_trades"
	}
	return "miss"
}

// ClickResult reports the target of a click
type ClickResult struct {
	Outcome   ClickOutcome `json:"outcome"`
	DatasetID string       `json:"datasetId,omitempty"`
	Step      int          `json:"step"`
	CloseStep int          `json:"closeStep,omitempty"`
}

// UpResult reports how a pointer release was handled
type UpResult struct {
	Zoomed bool         `json:"zoomed"`
	Click  *ClickResult `json:"click,omitempty"`
}

// Config tunes the engine
type Config struct {
	HoverTolerancePx float64
	ClickTolerancePx float64
	HoverDebounce    time.Duration
	Scheduler        playback.Scheduler

	// Guard is held while a debounced hover commits
	Guard sync.Locker

	// OnHoverCommit runs with Guard held after a debounced hover changes
	OnHoverCommit func(*types.HoverPoint)
}

// Revisions count changes to each piece of interaction state
type Revisions struct {
	Hover     uint64
	Pinned    uint64
	Highlight uint64
	Drag      uint64
}

// Engine owns hover, pinned detail, highlight and drag state.
//
// Methods do no locking; callers serialize them with Config.Guard.
type Engine struct {
	logger *zap.Logger
	cfg    Config
	hover  *Debouncer

	hoverPoint *types.HoverPoint
	pinned     *types.PinnedTradeDetail
	highlight  *types.HighlightedSegment

	dragging bool
	dragX0   float64
	dragX1   float64

	revs Revisions
}

// NewEngine creates an interaction engine
func NewEngine(logger *zap.Logger, cfg Config) *Engine {
	if cfg.HoverTolerancePx <= 0 {
		cfg.HoverTolerancePx = DefaultHoverTolerancePx
	}
	if cfg.ClickTolerancePx <= 0 {
		cfg.ClickTolerancePx = DefaultClickTolerancePx
	}
	if cfg.HoverDebounce <= 0 {
		cfg.HoverDebounce = DefaultHoverDebounce
	}
	if cfg.Guard == nil {
		cfg.Guard = &sync.Mutex{}
	}

	return &Engine{
		logger: logger,
		cfg:    cfg,
		hover:  NewDebouncer(cfg.Scheduler, cfg.HoverDebounce, cfg.Guard),
	}
}

// Hover returns the committed hover target
func (e *Engine) Hover() *types.HoverPoint { return e.hoverPoint }

// Pinned returns the pinned trade list
func (e *Engine) Pinned() *types.PinnedTradeDetail { return e.pinned }

// Highlight returns the highlighted segment
func (e *Engine) Highlight() *types.HighlightedSegment { return e.highlight }

// Drag returns the current drag extent
func (e *Engine) Drag() (x0, x1 float64, ok bool) {
	return e.dragX0, e.dragX1, e.dragging
}

// Revisions returns the change counters
func (e *Engine) Revisions() Revisions { return e.revs }

// HoverPending reports whether a hover commit is waiting on the debounce
func (e *Engine) HoverPending() bool { return e.hover.Pending() }

// PointerMove extends an active drag, or resolves the hover target and
// commits it after the debounce window
func (e *Engine) PointerMove(s Scene, x, y float64) {
	if e.dragging {
		e.dragX1 = x
		e.revs.Drag++
		return
	}
	if e.pinned != nil {
		e.hover.Cancel()
		return
	}

	var target *types.HoverPoint
	if s.Mapper.InPlot(x, y) {
		target = e.nearestPoint(s, x, y, e.cfg.HoverTolerancePx)
	}

	e.hover.Submit(func() { e.commitHover(target) })
}

// PointerLeave clears the hover target immediately
func (e *Engine) PointerLeave() {
	e.hover.Cancel()
	e.setHover(nil)
}

func (e *Engine) commitHover(target *types.HoverPoint) {
	if !e.setHover(target) {
		return
	}
	if e.cfg.OnHoverCommit != nil {
		e.cfg.OnHoverCommit(target)
	}
}

func (e *Engine) setHover(target *types.HoverPoint) bool {
	if sameHover(e.hoverPoint, target) {
		return false
	}
	e.hoverPoint = target
	e.revs.Hover++
	return true
}

func sameHover(a, b *types.HoverPoint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.DatasetID == b.DatasetID && a.StepIndex == b.StepIndex
}

// PointerDown starts a zoom drag when inside the plot
func (e *Engine) PointerDown(s Scene, x, y float64) bool {
	if !s.Mapper.InPlot(x, y) {
		return false
	}
	e.dragging = true
	e.dragX0, e.dragX1 = x, x
	e.revs.Drag++
	return true
}

// PointerUp ends a drag. A wide enough drag zooms; anything narrower is
// handled as a click at the release point.
func (e *Engine) PointerUp(s Scene, x, y float64) UpResult {
	if !e.dragging {
		r := e.Click(s, x, y)
		return UpResult{Click: &r}
	}

	x0 := e.dragX0
	e.dragging = false
	e.revs.Drag++

	if s.Mapper.SetZoom(x0, x) {
		zoom := s.Mapper.Zoom()
		e.logger.Debug("Zoom committed", zap.Int("start", zoom.Start), zap.Int("end", zoom.End))
		return UpResult{Zoomed: true}
	}

	r := e.Click(s, x, y)
	return UpResult{Click: &r}
}

// CancelDrag drops an in-progress drag without zooming
func (e *Engine) CancelDrag() {
	if e.dragging {
		e.dragging = false
		e.revs.Drag++
	}
}

// Click inspects the anomaly or curve point under the pointer
func (e *Engine) Click(s Scene, x, y float64) ClickResult {
	if ds, a, ok := e.nearestAnomaly(s, x, y); ok {
		return e.inspectAnomaly(ds, a)
	}

	p := e.nearestPoint(s, x, y, e.cfg.ClickTolerancePx)
	if p == nil {
		return ClickResult{Outcome: ClickMiss}
	}

	ds := findDataset(s.Datasets, p.DatasetID)
	closed := ds.Series.ClosedPositions[p.StepIndex]
	if len(closed) == 0 {
		return ClickResult{Outcome: ClickPointNoTrades, DatasetID: ds.ID, Step: p.StepIndex}
	}

	entries := make([]types.TradeDetailRecord, 0, len(closed))
	for _, cp := range closed {
		entries = append(entries, TradeDetail(ds, cp, p.StepIndex))
	}
	e.pin(&types.PinnedTradeDetail{Entries: entries})

	return ClickResult{Outcome: ClickPoint, DatasetID: ds.ID, Step: p.StepIndex, CloseStep: p.StepIndex}
}

// inspectAnomaly looks for the trade opened at the anomaly's step by
// scanning later closes for a matching buy index
func (e *Engine) inspectAnomaly(ds *types.Dataset, a types.AnomalyPoint) ClickResult {
	closedHistory := ds.Series.ClosedPositions
	for step := a.StepIndex + 1; step < len(closedHistory); step++ {
		for _, cp := range closedHistory[step] {
			if cp.BuyIndex != a.StepIndex {
				continue
			}

			e.setHighlight(&types.HighlightedSegment{DatasetID: ds.ID, StartIndex: a.StepIndex, EndIndex: step})
			e.pin(&types.PinnedTradeDetail{Entries: []types.TradeDetailRecord{TradeDetail(ds, cp, step)}})

			return ClickResult{Outcome: ClickAnomalyMatched, DatasetID: ds.ID, Step: a.StepIndex, CloseStep: step}
		}
	}

	e.logger.Debug("No close found for anomaly",
		zap.String("dataset", ds.ID),
		zap.Int("step", a.StepIndex),
	)
	e.setHighlight(nil)
	return ClickResult{Outcome: ClickAnomalyUnmatched, DatasetID: ds.ID, Step: a.StepIndex}
}

func (e *Engine) pin(p *types.PinnedTradeDetail) {
	e.pinned = p
	e.revs.Pinned++

	// The pinned panel replaces hover information
	e.hover.Cancel()
	e.setHover(nil)
}

func (e *Engine) setHighlight(h *types.HighlightedSegment) {
	if e.highlight == nil && h == nil {
		return
	}
	e.highlight = h
	e.revs.Highlight++
}

// DoubleClick clears the pinned detail and the highlight. Zoom is left as is.
func (e *Engine) DoubleClick() {
	if e.pinned != nil {
		e.pinned = nil
		e.revs.Pinned++
	}
	e.setHighlight(nil)
}

// PinnedNext shows the next pinned entry. It stops at the last one.
func (e *Engine) PinnedNext() bool { return e.movePinned(1) }

// PinnedPrev shows the previous pinned entry. It stops at the first one.
func (e *Engine) PinnedPrev() bool { return e.movePinned(-1) }

func (e *Engine) movePinned(delta int) bool {
	if e.pinned == nil {
		return false
	}
	next := e.pinned.ActiveIndex + delta
	if next < 0 || next >= len(e.pinned.Entries) {
		return false
	}
	e.pinned.ActiveIndex = next
	e.revs.Pinned++
	return true
}

// ForgetDataset clears any state that refers to a removed dataset
func (e *Engine) ForgetDataset(id string) {
	e.hover.Cancel()
	if e.hoverPoint != nil && e.hoverPoint.DatasetID == id {
		e.setHover(nil)
	}
	if e.highlight != nil && e.highlight.DatasetID == id {
		e.setHighlight(nil)
	}

	if e.pinned == nil {
		return
	}
	kept := make([]types.TradeDetailRecord, 0, len(e.pinned.Entries))
	for _, entry := range e.pinned.Entries {
		if entry.DatasetID != id {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(e.pinned.Entries) {
		return
	}
	if len(kept) == 0 {
		e.pinned = nil
	} else {
		active := e.pinned.ActiveIndex
		if active >= len(kept) {
			active = len(kept) - 1
		}
		e.pinned = &types.PinnedTradeDetail{Entries: kept, ActiveIndex: active}
	}
	e.revs.Pinned++
}

// Reset clears all interaction state
func (e *Engine) Reset() {
	e.hover.Cancel()
	e.setHover(nil)
	e.CancelDrag()
	e.DoubleClick()
}

// nearestPoint finds the dataset whose value at the pointer's step lies
// closest to the pointer, within tolerance
func (e *Engine) nearestPoint(s Scene, x, y, tolerance float64) *types.HoverPoint {
	step := s.Mapper.NearestDataIndex(x)

	var best *types.HoverPoint
	bestDist := tolerance
	for _, ds := range s.Datasets {
		pnl := ds.Series.PnL
		if step >= len(pnl) || !finite(pnl[step]) {
			continue
		}
		px, py := s.Mapper.DataIndexToPixelX(step), s.Mapper.ValueToPixelY(pnl[step])
		d := math.Hypot(px-x, py-y)
		if d > tolerance {
			continue
		}
		if best == nil || d < bestDist {
			best = &types.HoverPoint{PixelX: px, PixelY: py, DatasetID: ds.ID, StepIndex: step}
			bestDist = d
		}
	}
	return best
}

// nearestAnomaly considers only glyphs that are drawn: enabled kind and
// inside the zoom window
func (e *Engine) nearestAnomaly(s Scene, x, y float64) (*types.Dataset, types.AnomalyPoint, bool) {
	start, end := s.Mapper.Window()

	var bestDS *types.Dataset
	var best types.AnomalyPoint
	bestDist := 0.0
	for _, ds := range s.Datasets {
		pnl := ds.Series.PnL
		for _, a := range s.Anomalies[ds.ID] {
			if !s.Filters.Enabled(a.Kind) {
				continue
			}
			if a.StepIndex < start || a.StepIndex > end || a.StepIndex >= len(pnl) {
				continue
			}
			if !finite(pnl[a.StepIndex]) {
				continue
			}

			px, py := s.Mapper.DataIndexToPixelX(a.StepIndex), s.Mapper.ValueToPixelY(pnl[a.StepIndex])
			d := math.Hypot(px-x, py-y)
			if d > e.cfg.ClickTolerancePx {
				continue
			}
			if bestDS == nil || d < bestDist {
				bestDS, best, bestDist = ds, a, d
			}
		}
	}
	return bestDS, best, bestDS != nil
}

// TradeDetail builds the pinned record of a position closed at closeStep
func TradeDetail(ds *types.Dataset, cp types.ClosedPosition, closeStep int) types.TradeDetailRecord {
	ts := ds.Series
	rec := types.TradeDetailRecord{
		DatasetID:     ds.ID,
		Symbol:        cp.Symbol,
		OpenStep:      cp.BuyIndex,
		CloseStep:     closeStep,
		CloseDate:     ts.DateLabel(closeStep),
		PriceOpen:     cp.InitialPriceClose,
		PriceClose:    cp.CurrentPriceClose,
		Quantity:      cp.AssetQuantity,
		Value:         cp.Value,
		PnL:           cp.ProfitAndLoss,
		PnLPercentage: cp.ProfitAndLossPercentage,
	}

	if cp.BuyIndex >= 0 && cp.BuyIndex < ts.Len() {
		rec.OpenDate = ts.DateLabel(cp.BuyIndex)
		if cp.BuyIndex < len(ts.ChoiceEvaluation) {
			if ev := ts.ChoiceEvaluation[cp.BuyIndex]; ev != nil {
				rec.SelectedSymbol = ev.SelectedSymbol
				rec.BestSymbol = ev.BestSymbol
				rec.BestChoice = ev.CorrectChoice == 1
			}
		}
	}

	rec.Labels = types.TradeDetailLabels{
		TimeOpen:   utils.FormatField("timeOpen", rec.OpenDate),
		TimeClosed: utils.FormatField("timeClosed", rec.CloseDate),
		PriceOpen:  utils.FormatField("priceOpen", rec.PriceOpen),
		PriceClose: utils.FormatField("priceClose", rec.PriceClose),
		Quantity:   utils.FormatField("quantity", rec.Quantity),
		PnL:        utils.FormatField("pnl", rec.PnL),
		BestChoice: utils.FormatField("bestChoice", rec.BestSymbol),
	}
	return rec
}

func findDataset(datasets []*types.Dataset, id string) *types.Dataset {
	for _, ds := range datasets {
		if ds.ID == id {
			return ds
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
