// Package types provides shared type definitions for the portfolio replay viewer.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NullSymbol is the sentinel used by result files when no asset was chosen.
const NullSymbol = "NULL"

// Position is an open position at a given step
type Position struct {
	Symbol            string  `json:"symbol"`
	AssetQuantity     float64 `json:"asset_quantity"`
	InitialPriceClose float64 `json:"initial_price_close"`
	CurrentPriceClose float64 `json:"current_price_close"`
	Value             float64 `json:"value"`
}

// ClosedPosition is a position closed at a given step.
// BuyIndex refers to the step at which the position was opened in the same dataset.
type ClosedPosition struct {
	Position
	BuyIndex                int     `json:"buy_index"`
	ProfitAndLoss           float64 `json:"profit_and_loss"`
	ProfitAndLossPercentage float64 `json:"profit_and_loss_percentage"`
}

// DecisionEvaluation compares the asset picked at a step with the best one in hindsight
type DecisionEvaluation struct {
	SelectedSymbol string `json:"selected_symbol"`
	BestSymbol     string `json:"best_symbol"`
	CorrectChoice  int    `json:"correct_choice"`
}

// TimeSeries is one normalized result file. Every slice has the same length.
type TimeSeries struct {
	Dates            []time.Time           `json:"dates"`
	RawDates         []string              `json:"rawDates"`
	Cash             []float64             `json:"cash"`
	Cashout          []float64             `json:"cashout"`
	PositionsValue   []float64             `json:"positionsValue"`
	PnL              []float64             `json:"pnl"`
	Equity           []float64             `json:"equity"`
	OpenPositions    [][]Position          `json:"openPositions"`
	ClosedPositions  [][]ClosedPosition    `json:"closedPositions"`
	ChoiceEvaluation []*DecisionEvaluation `json:"choiceEvaluation"`
}

// Len returns the number of steps in the series
func (ts *TimeSeries) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.PnL)
}

// DateLabel returns the raw date string at step i, or "" when out of range
func (ts *TimeSeries) DateLabel(i int) string {
	if ts == nil || i < 0 || i >= len(ts.RawDates) {
		return ""
	}
	return ts.RawDates[i]
}

// RGBColor is a display color, serialized as #RRGGBB
type RGBColor struct {
	R uint8
	G uint8
	B uint8
}

// Hex returns the color as #RRGGBB
func (c RGBColor) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// String implements fmt.Stringer
func (c RGBColor) String() string { return c.Hex() }

// MarshalJSON encodes the color as a hex string
func (c RGBColor) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Hex())
}

// UnmarshalJSON decodes a hex string
func (c *RGBColor) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseRGBColor(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseRGBColor parses #RRGGBB, RRGGBB or #RGB
func ParseRGBColor(s string) (RGBColor, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return RGBColor{}, fmt.Errorf("invalid color %q: expected #RRGGBB", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return RGBColor{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return RGBColor{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Dataset is a loaded result file
type Dataset struct {
	ID          string      `json:"id"`
	DisplayName string      `json:"displayName"`
	FileName    string      `json:"fileName"`
	Color       RGBColor    `json:"color"`
	Series      *TimeSeries `json:"-"`
	Length      int         `json:"length"`
	LoadedAt    time.Time   `json:"loadedAt"`
}

// RawFile is a named, not yet parsed result file
type RawFile struct {
	Name string
	Data []byte
}

// ZoomRange is the visible index window. Set == false means the full range.
type ZoomRange struct {
	Start int  `json:"start"`
	End   int  `json:"end"`
	Set   bool `json:"set"`
}

// PlaybackState is the shared playback position
type PlaybackState struct {
	CurrentIndex int  `json:"currentIndex"`
	IsPlaying    bool `json:"isPlaying"`
	SpeedMs      int  `json:"speedMs"`
	MaxIndex     int  `json:"maxIndex"`
}

// AnomalyKind classifies a suboptimal decision
type AnomalyKind string

const (
	AnomalyNone          AnomalyKind = ""
	AnomalyFalsePositive AnomalyKind = "false_positive"
	AnomalyFalseNegative AnomalyKind = "false_negative"
)

// AnomalyPoint is a step whose decision disagrees with the best choice
type AnomalyPoint struct {
	DatasetID      string      `json:"datasetId"`
	StepIndex      int         `json:"stepIndex"`
	Kind           AnomalyKind `json:"kind"`
	SelectedSymbol string      `json:"selectedSymbol"`
	BestSymbol     string      `json:"bestSymbol"`
}

// FilterSet selects which anomaly kinds are drawn and pickable
type FilterSet struct {
	FalsePositives bool `json:"falsePositives"`
	FalseNegatives bool `json:"falseNegatives"`
}

// Enabled reports whether the kind is shown
func (f FilterSet) Enabled(kind AnomalyKind) bool {
	switch kind {
	case AnomalyFalsePositive:
		return f.FalsePositives
	case AnomalyFalseNegative:
		return f.FalseNegatives
	}
	return false
}

// HoverPoint is the committed hover target
type HoverPoint struct {
	PixelX    float64 `json:"pixelX"`
	PixelY    float64 `json:"pixelY"`
	DatasetID string  `json:"datasetId"`
	StepIndex int     `json:"stepIndex"`
}

// TradeDetailRecord is one trade shown in the pinned detail panel
type TradeDetailRecord struct {
	DatasetID      string            `json:"datasetId"`
	Symbol         string            `json:"symbol"`
	OpenStep       int               `json:"openStep"`
	CloseStep      int               `json:"closeStep"`
	OpenDate       string            `json:"timeOpen"`
	CloseDate      string            `json:"timeClosed"`
	PriceOpen      float64           `json:"priceOpen"`
	PriceClose     float64           `json:"priceClose"`
	Quantity       float64           `json:"quantity"`
	Value          float64           `json:"value"`
	PnL            float64           `json:"pnl"`
	PnLPercentage  float64           `json:"pnlPercentage"`
	SelectedSymbol string            `json:"selectedSymbol,omitempty"`
	BestSymbol     string            `json:"bestChoice,omitempty"`
	BestChoice     bool              `json:"isBestChoice"`
	Labels         TradeDetailLabels `json:"labels"`
}

// TradeDetailLabels holds the display strings of a trade detail
type TradeDetailLabels struct {
	TimeOpen   string `json:"timeOpen"`
	TimeClosed string `json:"timeClosed"`
	PriceOpen  string `json:"priceOpen"`
	PriceClose string `json:"priceClose"`
	Quantity   string `json:"quantity"`
	PnL        string `json:"pnl"`
	BestChoice string `json:"bestChoice"`
}

// PinnedTradeDetail is the click-held list of trades
type PinnedTradeDetail struct {
	Entries     []TradeDetailRecord `json:"entries"`
	ActiveIndex int                 `json:"activeIndex"`
}

// Active returns the currently shown entry
func (p *PinnedTradeDetail) Active() *TradeDetailRecord {
	if p == nil || p.ActiveIndex < 0 || p.ActiveIndex >= len(p.Entries) {
		return nil
	}
	return &p.Entries[p.ActiveIndex]
}

// HighlightedSegment marks the open-to-close span of an inspected trade
type HighlightedSegment struct {
	DatasetID  string `json:"datasetId"`
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
}

// StepMetrics are the values of one dataset at one step
type StepMetrics struct {
	DatasetID      string  `json:"datasetId"`
	Step           int     `json:"step"`
	Date           string  `json:"date"`
	Cash           float64 `json:"cash"`
	Cashout        float64 `json:"cashout"`
	PositionsValue float64 `json:"positionsValue"`
	PnL            float64 `json:"pnl"`
	Equity         float64 `json:"equity"`
}

// StepPositions are the open and closed positions of one dataset at one step
type StepPositions struct {
	DatasetID string           `json:"datasetId"`
	Step      int              `json:"step"`
	Open      []Position       `json:"open"`
	Closed    []ClosedPosition `json:"closed"`
}

// DatasetReport summarizes a whole run
type DatasetReport struct {
	DatasetID        string  `json:"datasetId"`
	Steps            int     `json:"steps"`
	FinalPnL         string  `json:"finalPnl"`
	PeakEquity       string  `json:"peakEquity"`
	MaxDrawdown      string  `json:"maxDrawdown"`
	MaxDrawdownPct   float64 `json:"maxDrawdownPct"`
	ClosedTrades     int     `json:"closedTrades"`
	WinningTrades    int     `json:"winningTrades"`
	LosingTrades     int     `json:"losingTrades"`
	WinRate          float64 `json:"winRate"`
	ProfitFactor     float64 `json:"profitFactor"`
	AvgWin           string  `json:"avgWin"`
	AvgLoss          string  `json:"avgLoss"`
	StepPnLMean      float64 `json:"stepPnlMean"`
	StepPnLStdDev    float64 `json:"stepPnlStdDev"`
	FalsePositives   int     `json:"falsePositives"`
	FalseNegatives   int     `json:"falseNegatives"`
	Evaluations      int     `json:"evaluations"`
	DecisionAccuracy float64 `json:"decisionAccuracy"`
}
