// Package data loads and validates portfolio backtest result files.
package data

import (
	"encoding/json"
	"time"

	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"github.com/atlas-desktop/portfolio-replay/pkg/utils"
)

// DefaultFileName is the result file the server tries to load from the
// result directory at startup (data.default_file)
const DefaultFileName = "Ⲗ_consolidated_json.json"

// resultFile mirrors the on-disk JSON layout
type resultFile struct {
	DateList          []string                    `json:"date_list"`
	AvailableMoney    []float64                   `json:"available_money"`
	OpenPositionValue []float64                   `json:"open_position_value"`
	Cashout           []float64                   `json:"cashout"`
	CumulatedPnL      []float64                   `json:"cumulated_profit_and_loss"`
	OpenPosition      [][]types.Position          `json:"open_position"`
	ClosePosition     [][]types.ClosedPosition    `json:"close_position"`
	ChoiceEvaluation  []*types.DecisionEvaluation `json:"choice_evaluation"`
}

// Parse normalizes one raw result file into a TimeSeries.
// It never returns a partially populated series: on error the series is nil.
func Parse(raw []byte) (*types.TimeSeries, error) {
	var rf resultFile
	if err := json.Unmarshal(raw, &rf); err != nil {
		return nil, &FormatError{Kind: KindMalformed, Err: err}
	}

	if len(rf.AvailableMoney) == 0 {
		return nil, &FormatError{Kind: KindMissingField, Field: "available_money"}
	}
	if rf.DateList == nil {
		return nil, &FormatError{Kind: KindMissingField, Field: "date_list"}
	}

	n := len(rf.DateList)
	if len(rf.AvailableMoney) != n {
		return nil, &FormatError{Kind: KindInconsistentLength, Field: "available_money", Expected: n, Got: len(rf.AvailableMoney)}
	}

	required := []struct {
		name    string
		present bool
		length  int
	}{
		{"open_position_value", rf.OpenPositionValue != nil, len(rf.OpenPositionValue)},
		{"cashout", rf.Cashout != nil, len(rf.Cashout)},
		{"cumulated_profit_and_loss", rf.CumulatedPnL != nil, len(rf.CumulatedPnL)},
		{"open_position", rf.OpenPosition != nil, len(rf.OpenPosition)},
		{"close_position", rf.ClosePosition != nil, len(rf.ClosePosition)},
	}
	for _, f := range required {
		if !f.present {
			return nil, &FormatError{Kind: KindMissingField, Field: f.name}
		}
		if f.length != n {
			return nil, &FormatError{Kind: KindInconsistentLength, Field: f.name, Expected: n, Got: f.length}
		}
	}
	if rf.ChoiceEvaluation != nil && len(rf.ChoiceEvaluation) != n {
		return nil, &FormatError{Kind: KindInconsistentLength, Field: "choice_evaluation", Expected: n, Got: len(rf.ChoiceEvaluation)}
	}

	ts := &types.TimeSeries{
		Dates:            make([]time.Time, n),
		RawDates:         make([]string, n),
		Cash:             make([]float64, n),
		Cashout:          make([]float64, n),
		PositionsValue:   make([]float64, n),
		PnL:              make([]float64, n),
		Equity:           make([]float64, n),
		OpenPositions:    make([][]types.Position, n),
		ClosedPositions:  make([][]types.ClosedPosition, n),
		ChoiceEvaluation: make([]*types.DecisionEvaluation, n),
	}

	copy(ts.RawDates, rf.DateList)
	copy(ts.Cash, rf.AvailableMoney)
	copy(ts.Cashout, rf.Cashout)
	copy(ts.PositionsValue, rf.OpenPositionValue)
	copy(ts.PnL, rf.CumulatedPnL)
	copy(ts.OpenPositions, rf.OpenPosition)
	copy(ts.ClosedPositions, rf.ClosePosition)
	if rf.ChoiceEvaluation != nil {
		copy(ts.ChoiceEvaluation, rf.ChoiceEvaluation)
	}

	for i := 0; i < n; i++ {
		if t, ok := utils.ParseTimestamp(rf.DateList[i]); ok {
			ts.Dates[i] = t
		}
		ts.Equity[i] = ts.Cash[i] + ts.PositionsValue[i]
	}

	return ts, nil
}
