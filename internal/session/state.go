package session

import (
	"fmt"

	"github.com/atlas-desktop/portfolio-replay/internal/decision"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
)

// DatasetView is a dataset as listed to clients
type DatasetView struct {
	ID             string         `json:"id"`
	DisplayName    string         `json:"displayName"`
	FileName       string         `json:"fileName"`
	Color          types.RGBColor `json:"color"`
	Length         int            `json:"length"`
	Selected       bool           `json:"selected"`
	FalsePositives int            `json:"falsePositives"`
	FalseNegatives int            `json:"falseNegatives"`
}

// Canvas is the drawing surface size
type Canvas struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Snapshot is a consistent copy of the session state
type Snapshot struct {
	Version         uint64                    `json:"version"`
	Datasets        []DatasetView             `json:"datasets"`
	SelectedID      string                    `json:"selectedId"`
	Playback        types.PlaybackState       `json:"playback"`
	Zoom            types.ZoomRange           `json:"zoom"`
	WindowStart     int                       `json:"windowStart"`
	WindowEnd       int                       `json:"windowEnd"`
	ValueMin        float64                   `json:"valueMin"`
	ValueMax        float64                   `json:"valueMax"`
	Filters         types.FilterSet           `json:"filters"`
	Hover           *types.HoverPoint         `json:"hover,omitempty"`
	Pinned          *types.PinnedTradeDetail  `json:"pinned,omitempty"`
	Highlight       *types.HighlightedSegment `json:"highlight,omitempty"`
	ControlsEnabled bool                      `json:"controlsEnabled"`
	Canvas          Canvas                    `json:"canvas"`
}

// State returns a snapshot of everything a client displays
func (s *Session) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.registry.List()
	selected := s.registry.SelectedID()

	views := make([]DatasetView, len(list))
	for i, ds := range list {
		fp, fn := decision.Counts(s.classifier.Anomalies(ds))
		views[i] = DatasetView{
			ID:             ds.ID,
			DisplayName:    ds.DisplayName,
			FileName:       ds.FileName,
			Color:          ds.Color,
			Length:         ds.Length,
			Selected:       ds.ID == selected,
			FalsePositives: fp,
			FalseNegatives: fn,
		}
	}

	start, end := s.mapper.Window()
	lo, hi := s.mapper.ValueRange()
	width, height := s.mapper.Canvas()

	snap := Snapshot{
		Version:         s.version,
		Datasets:        views,
		SelectedID:      selected,
		Playback:        s.clock.Snapshot(),
		Zoom:            s.mapper.Zoom(),
		WindowStart:     start,
		WindowEnd:       end,
		ValueMin:        lo,
		ValueMax:        hi,
		Filters:         s.filters,
		ControlsEnabled: len(list) > 0 && s.clock.MaxIndex() > 0,
		Canvas:          Canvas{Width: width, Height: height},
	}

	if h := s.interaction.Hover(); h != nil {
		hover := *h
		snap.Hover = &hover
	}
	if p := s.interaction.Pinned(); p != nil {
		snap.Pinned = &types.PinnedTradeDetail{
			Entries:     append([]types.TradeDetailRecord(nil), p.Entries...),
			ActiveIndex: p.ActiveIndex,
		}
	}
	if h := s.interaction.Highlight(); h != nil {
		highlight := *h
		snap.Highlight = &highlight
	}

	return snap
}

// Datasets lists the loaded datasets
func (s *Session) Datasets() []DatasetView {
	return s.State().Datasets
}

// Metrics returns the selected dataset's values at the current step. ok is
// false when nothing is selected.
func (s *Session) Metrics() (types.StepMetrics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds := s.registry.Selected()
	if ds == nil || ds.Series.Len() == 0 {
		return types.StepMetrics{}, false
	}
	ts := ds.Series
	i := s.stepFor(ts)

	return types.StepMetrics{
		DatasetID:      ds.ID,
		Step:           i,
		Date:           ts.DateLabel(i),
		Cash:           ts.Cash[i],
		Cashout:        ts.Cashout[i],
		PositionsValue: ts.PositionsValue[i],
		PnL:            ts.PnL[i],
		Equity:         ts.Equity[i],
	}, true
}

// Positions returns the selected dataset's open and closed positions at the
// current step
func (s *Session) Positions() (types.StepPositions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ds := s.registry.Selected()
	if ds == nil || ds.Series.Len() == 0 {
		return types.StepPositions{}, false
	}
	ts := ds.Series
	i := s.stepFor(ts)

	return types.StepPositions{
		DatasetID: ds.ID,
		Step:      i,
		Open:      append([]types.Position{}, ts.OpenPositions[i]...),
		Closed:    append([]types.ClosedPosition{}, ts.ClosedPositions[i]...),
	}, true
}

// stepFor clamps the current index to a shorter series
func (s *Session) stepFor(ts *types.TimeSeries) int {
	i := s.clock.Index()
	if last := ts.Len() - 1; i > last {
		i = last
	}
	return i
}

// Report summarizes one dataset
func (s *Session) Report(id string) (*types.DatasetReport, error) {
	s.mu.Lock()
	ds, ok := s.registry.Get(id)
	var anomalies []types.AnomalyPoint
	if ok {
		anomalies = s.classifier.Anomalies(ds)
	}
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("report %q: %w", id, ErrUnknownDataset)
	}
	return s.reports.Calculate(ds, anomalies), nil
}
