// Package session owns the replay state and serializes every command,
// playback tick and frame render under one lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/data"
	"github.com/atlas-desktop/portfolio-replay/internal/decision"
	"github.com/atlas-desktop/portfolio-replay/internal/events"
	"github.com/atlas-desktop/portfolio-replay/internal/interaction"
	"github.com/atlas-desktop/portfolio-replay/internal/playback"
	"github.com/atlas-desktop/portfolio-replay/internal/registry"
	"github.com/atlas-desktop/portfolio-replay/internal/render"
	"github.com/atlas-desktop/portfolio-replay/internal/report"
	"github.com/atlas-desktop/portfolio-replay/internal/telemetry"
	"github.com/atlas-desktop/portfolio-replay/internal/viewport"
	"github.com/atlas-desktop/portfolio-replay/internal/workers"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"go.uber.org/zap"
)

var (
	ErrUnknownDataset = errors.New("unknown dataset")
	ErrNoStore        = errors.New("no result store configured")
	ErrUnknownFilter  = errors.New("unknown anomaly filter")
)

// Options wires a session to its collaborators. Only Viewer is required.
type Options struct {
	Viewer    types.ViewerConfig
	Scheduler playback.Scheduler
	Pool      *workers.Pool
	Store     *data.Store
	Bus       *events.EventBus
}

// Session is the single owner of the replay state
type Session struct {
	mu     sync.Mutex
	logger *zap.Logger

	registry    *registry.Registry
	clock       *playback.Clock
	mapper      *viewport.Mapper
	classifier  *decision.Classifier
	interaction *interaction.Engine
	renderer    *render.Engine
	reports     *report.Calculator
	store       *data.Store
	bus         *events.EventBus

	filters     types.FilterSet
	datasetsRev uint64
	version     uint64
}

// New creates an empty session
func New(logger *zap.Logger, opts Options) (*Session, error) {
	cfg := opts.Viewer
	palette, err := registry.ParsePalette(cfg.Palette)
	if err != nil {
		return nil, fmt.Errorf("invalid palette: %w", err)
	}

	s := &Session{
		logger:     logger,
		registry:   registry.New(logger.Named("registry"), opts.Pool, palette),
		mapper:     viewport.NewMapper(cfg.CanvasWidth, cfg.CanvasHeight, cfg.Margins, cfg.MinSelectionPx),
		classifier: decision.NewClassifier(logger.Named("classifier")),
		renderer: render.NewEngine(logger.Named("render"), render.Options{
			SplineTension:  cfg.SplineTension,
			ShowGhostCurve: cfg.ShowGhostCurve,
		}),
		reports: report.NewCalculator(logger.Named("report")),
		store:   opts.Store,
		bus:     opts.Bus,
		filters: types.FilterSet{FalsePositives: true, FalseNegatives: true},
	}

	s.clock = playback.NewClock(logger.Named("playback"), playback.ClockConfig{
		SpeedMs:       cfg.SpeedMs,
		FrameInterval: cfg.FrameInterval,
		Scheduler:     opts.Scheduler,
		Guard:         &s.mu,
		OnAdvance:     s.onAdvance,
	})
	s.interaction = interaction.NewEngine(logger.Named("interaction"), interaction.Config{
		HoverTolerancePx: cfg.HoverTolerancePx,
		ClickTolerancePx: cfg.ClickTolerancePx,
		HoverDebounce:    cfg.HoverDebounce,
		Scheduler:        opts.Scheduler,
		Guard:            &s.mu,
		OnHoverCommit:    s.onHoverCommit,
	})
	s.mapper.UpdateValueRange(0, 0)

	return s, nil
}

// Callbacks below run with s.mu held

func (s *Session) onAdvance(index int, stopped bool) {
	s.version++
	s.publish(events.NewIndexAdvancedEvent(index, stopped))
}

func (s *Session) onHoverCommit(*types.HoverPoint) {
	s.changed("hover")
}

func (s *Session) changed(reason string) {
	s.version++
	s.publish(events.NewStateChangedEvent(reason))
}

func (s *Session) publish(e events.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

// Playback

// Play starts playback; it reports false when there is nothing to play
func (s *Session) Play() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.clock.Play()
	if ok {
		s.changed("play")
	}
	return ok
}

// Pause stops playback
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock.Pause()
	s.changed("pause")
}

// Seek jumps to a step and returns the clamped index
func (s *Session) Seek(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.clock.Seek(index)
	s.changed("seek")
	return i
}

// Step moves by delta steps and returns the new index
func (s *Session) Step(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.clock.Step(delta)
	s.changed("step")
	return i
}

// SetSpeed sets the playback interval and returns the clamped value
func (s *Session) SetSpeed(ms int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.clock.SetSpeed(ms)
	s.changed("speed")
	return v
}

// Datasets

// AddFiles parses and appends result files. The whole batch becomes visible
// at once; bad files are reported and skipped.
func (s *Session) AddFiles(ctx context.Context, files []types.RawFile) ([]*types.Dataset, []registry.LoadFailure) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added, failures := s.registry.Add(ctx, files)
	for _, f := range failures {
		s.publish(events.NewLoadFailedEvent(f.Name, f.Err))
	}
	if len(added) > 0 {
		ids := make([]string, len(added))
		for i, ds := range added {
			ids[i] = ds.ID
		}
		s.datasetsChanged(ids, nil)
	}
	return added, failures
}

// LoadFromStore reads a named file from the result store and adds it
func (s *Session) LoadFromStore(ctx context.Context, name string) (*types.Dataset, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	raw, err := s.store.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	added, failures := s.AddFiles(ctx, []types.RawFile{raw})
	if len(failures) > 0 {
		return nil, failures[0]
	}
	if len(added) == 0 {
		return nil, fmt.Errorf("load %s: nothing added", name)
	}
	return added[0], nil
}

// LoadURL fetches a result file over HTTP and adds it
func (s *Session) LoadURL(ctx context.Context, fetcher *data.Fetcher, url string) (*types.Dataset, error) {
	raw, err := fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	added, failures := s.AddFiles(ctx, []types.RawFile{{Name: data.NameFromURL(url), Data: raw}})
	if len(failures) > 0 {
		return nil, failures[0]
	}
	if len(added) == 0 {
		return nil, fmt.Errorf("load %s: nothing added", url)
	}
	return added[0], nil
}

// RemoveDataset drops a dataset
func (s *Session) RemoveDataset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registry.Remove(id) {
		return fmt.Errorf("remove %q: %w", id, ErrUnknownDataset)
	}
	s.datasetsChanged(nil, []string{id})
	return nil
}

// SetColor changes a dataset's display color
func (s *Session) SetColor(id string, color types.RGBColor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registry.UpdateColor(id, color) {
		return fmt.Errorf("color %q: %w", id, ErrUnknownDataset)
	}
	s.datasetsRev++
	s.changed("color")
	return nil
}

// SelectDataset picks the dataset shown in the metrics panels
func (s *Session) SelectDataset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registry.Select(id) {
		return fmt.Errorf("select %q: %w", id, ErrUnknownDataset)
	}
	s.changed("select")
	return nil
}

// datasetsChanged refreshes every component that depends on the dataset set
func (s *Session) datasetsChanged(added, removed []string) {
	s.datasetsRev++

	maxIndex := s.registry.MaxIndex()
	s.clock.Reset()
	s.clock.SetMaxIndex(maxIndex)
	s.mapper.SetMaxIndex(maxIndex)
	s.refreshValueRange()

	list := s.registry.List()
	ids := make([]string, len(list))
	for i, ds := range list {
		ids[i] = ds.ID
	}
	s.classifier.Retain(ids)
	for _, id := range removed {
		s.interaction.ForgetDataset(id)
	}

	s.version++
	s.publish(events.NewDatasetsChangedEvent(added, removed, len(list)))
	s.logger.Debug("Dataset set changed",
		zap.Int("count", len(list)),
		zap.Int("max_index", maxIndex),
	)
}

func (s *Session) refreshValueRange() {
	start, end := s.mapper.Window()
	lo, hi, ok := s.registry.PnLRange(start, end)
	if !ok {
		lo, hi = 0, 0
	}
	s.mapper.UpdateValueRange(lo, hi)
}

// View

// SetZoomPixels zooms to the steps under a canvas x span
func (s *Session) SetZoomPixels(x0, x1 float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mapper.SetZoom(x0, x1) {
		s.logger.Debug("Zoom selection rejected", zap.Float64("x0", x0), zap.Float64("x1", x1))
		return false
	}
	s.zoomed()
	return true
}

// SetZoomRange zooms to an index range
func (s *Session) SetZoomRange(start, end int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mapper.SetZoomIndices(start, end) {
		return false
	}
	s.zoomed()
	return true
}

// ResetZoom shows the full range
func (s *Session) ResetZoom() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mapper.ResetZoom()
	s.zoomed()
}

func (s *Session) zoomed() {
	s.refreshValueRange()
	s.changed("zoom")
}

// ToggleFilter flips the visibility of one anomaly kind and returns the new
// filter set
func (s *Session) ToggleFilter(kind types.AnomalyKind) (types.FilterSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case types.AnomalyFalsePositive:
		s.filters.FalsePositives = !s.filters.FalsePositives
	case types.AnomalyFalseNegative:
		s.filters.FalseNegatives = !s.filters.FalseNegatives
	default:
		return s.filters, fmt.Errorf("%q: %w", kind, ErrUnknownFilter)
	}
	s.changed("filter")
	return s.filters, nil
}

// SetCanvas resizes the drawing surface
func (s *Session) SetCanvas(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mapper.SetCanvas(width, height)
	s.changed("canvas")
}

// Pointer input

func (s *Session) scene() interaction.Scene {
	list := s.registry.List()
	anomalies := make(map[string][]types.AnomalyPoint, len(list))
	for _, ds := range list {
		anomalies[ds.ID] = s.classifier.Anomalies(ds)
	}
	return interaction.Scene{
		Mapper:    s.mapper,
		Datasets:  list,
		Anomalies: anomalies,
		Filters:   s.filters,
	}
}

// PointerMove updates the drag rectangle or schedules a hover commit
func (s *Session) PointerMove(x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.interaction.Revisions().Drag
	s.interaction.PointerMove(s.scene(), x, y)
	if s.interaction.Revisions().Drag != before {
		s.version++
	}
}

// PointerLeave clears the hover target
func (s *Session) PointerLeave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interaction.PointerLeave()
	s.changed("hover")
}

// PointerDown starts a zoom drag inside the plot area
func (s *Session) PointerDown(x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.interaction.PointerDown(s.scene(), x, y)
	if ok {
		s.version++
	}
	return ok
}

// PointerUp finishes a drag as a zoom, or treats it as a click
func (s *Session) PointerUp(x, y float64) interaction.UpResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.interaction.PointerUp(s.scene(), x, y)
	if res.Zoomed {
		s.zoomed()
	} else {
		s.changed("click")
	}
	return res
}

// Click picks an anomaly glyph or a curve point
func (s *Session) Click(x, y float64) interaction.ClickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.interaction.Click(s.scene(), x, y)
	s.changed("click")
	return res
}

// DoubleClick clears the pinned detail
func (s *Session) DoubleClick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.interaction.DoubleClick()
	s.changed("unpin")
}

// PinnedNext shows the next pinned trade
func (s *Session) PinnedNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.interaction.PinnedNext()
	if ok {
		s.changed("pinned")
	}
	return ok
}

// PinnedPrev shows the previous pinned trade
func (s *Session) PinnedPrev() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.interaction.PinnedPrev()
	if ok {
		s.changed("pinned")
	}
	return ok
}

// Rendering

// RenderFrame draws the current state. The boolean reports whether a new
// image was drawn or the previous one reused.
func (s *Session) RenderFrame() (*image.RGBA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	width, height := s.mapper.Canvas()
	revs := s.interaction.Revisions()
	list := s.registry.List()

	series := make([]render.Series, len(list))
	for i, ds := range list {
		series[i] = render.Series{
			ID:        ds.ID,
			Color:     ds.Color,
			PnL:       ds.Series.PnL,
			Anomalies: s.classifier.Anomalies(ds),
		}
	}

	frame := &render.Frame{
		Key: render.FrameKey{
			DatasetsRev:  s.datasetsRev,
			Index:        s.clock.Index(),
			Zoom:         s.mapper.Zoom(),
			Filters:      s.filters,
			HoverRev:     revs.Hover,
			SelectedID:   s.registry.SelectedID(),
			HighlightRev: revs.Highlight,
			DragRev:      revs.Drag,
			Width:        width,
			Height:       height,
		},
		Mapper:       s.mapper,
		Series:       series,
		CurrentIndex: s.clock.Index(),
		Filters:      s.filters,
		Hover:        s.interaction.Hover(),
		Highlight:    s.interaction.Highlight(),
		SelectedID:   s.registry.SelectedID(),
	}
	if x0, x1, ok := s.interaction.Drag(); ok {
		frame.Drag = &render.DragRect{X0: x0, X1: x1}
	}

	start := time.Now()
	img, drawn := s.renderer.Render(frame)
	if drawn {
		telemetry.RenderDuration.Observe(time.Since(start).Seconds())
		telemetry.FramesRendered.WithLabelValues("drawn").Inc()
	} else {
		telemetry.FramesRendered.WithLabelValues("cached").Inc()
	}
	return img, drawn
}

// HitRegions returns the anomaly glyphs of the last drawn frame
func (s *Session) HitRegions() []render.HitRegion {
	return s.renderer.HitRegions()
}

// RenderCount returns how many frames were actually drawn
func (s *Session) RenderCount() int {
	return s.renderer.RenderCount()
}

// Close stops playback and any pending hover commit
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clock.Pause()
	s.interaction.Reset()
}
