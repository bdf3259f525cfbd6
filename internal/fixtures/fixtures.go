// Package fixtures builds synthetic result files for tests and demos.
package fixtures

import (
	"encoding/json"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/data"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
)

// Result is a result file under construction
type Result struct {
	Dates          []string
	Cash           []float64
	PositionsValue []float64
	Cashout        []float64
	PnL            []float64
	Open           [][]types.Position
	Closed         [][]types.ClosedPosition
	Choices        []*types.DecisionEvaluation
}

// NewResult returns an n-step result with a gently rising PnL curve
func NewResult(n int) *Result {
	r := &Result{
		Dates:          make([]string, n),
		Cash:           make([]float64, n),
		PositionsValue: make([]float64, n),
		Cashout:        make([]float64, n),
		PnL:            make([]float64, n),
		Open:           make([][]types.Position, n),
		Closed:         make([][]types.ClosedPosition, n),
		Choices:        make([]*types.DecisionEvaluation, n),
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		r.Dates[i] = start.Add(time.Duration(i) * time.Hour).Format(time.RFC3339)
		r.Cash[i] = 1000
		r.PnL[i] = float64(i)
		r.Open[i] = []types.Position{}
		r.Closed[i] = []types.ClosedPosition{}
	}
	return r
}

// WithPnL overwrites the PnL curve from step 0
func (r *Result) WithPnL(values ...float64) *Result {
	copy(r.PnL, values)
	return r
}

// Choice sets the decision evaluation at a step
func (r *Result) Choice(step int, selected, best string) *Result {
	correct := 0
	if selected == best {
		correct = 1
	}
	r.Choices[step] = &types.DecisionEvaluation{SelectedSymbol: selected, BestSymbol: best, CorrectChoice: correct}
	return r
}

// Close appends a closed position at a step
func (r *Result) Close(step int, cp types.ClosedPosition) *Result {
	r.Closed[step] = append(r.Closed[step], cp)
	return r
}

// Hold appends an open position at a step
func (r *Result) Hold(step int, p types.Position) *Result {
	r.Open[step] = append(r.Open[step], p)
	r.PositionsValue[step] += p.Value
	return r
}

// JSON encodes the result in the on-disk layout
func (r *Result) JSON() []byte {
	doc := map[string]interface{}{
		"date_list":                 r.Dates,
		"available_money":           r.Cash,
		"open_position_value":       r.PositionsValue,
		"cashout":                   r.Cashout,
		"cumulated_profit_and_loss": r.PnL,
		"open_position":             r.Open,
		"close_position":            r.Closed,
		"choice_evaluation":         r.Choices,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return raw
}

// File wraps the encoded result as a named raw file
func (r *Result) File(name string) types.RawFile {
	return types.RawFile{Name: name, Data: r.JSON()}
}

// Series parses the result, panicking on error
func (r *Result) Series() *types.TimeSeries {
	ts, err := data.Parse(r.JSON())
	if err != nil {
		panic(err)
	}
	return ts
}

// Dataset wraps the parsed result in a registry-style dataset
func (r *Result) Dataset(id string, color types.RGBColor) *types.Dataset {
	ts := r.Series()
	return &types.Dataset{
		ID:          id,
		DisplayName: id,
		FileName:    id + ".json",
		Color:       color,
		Series:      ts,
		Length:      ts.Len(),
	}
}

// Trade builds a closed position
func Trade(symbol string, buyIndex int, open, closePrice, qty float64) types.ClosedPosition {
	pnl := (closePrice - open) * qty
	pct := 0.0
	if open != 0 {
		pct = (closePrice - open) / open * 100
	}
	return types.ClosedPosition{
		Position: types.Position{
			Symbol:            symbol,
			AssetQuantity:     qty,
			InitialPriceClose: open,
			CurrentPriceClose: closePrice,
			Value:             closePrice * qty,
		},
		BuyIndex:                buyIndex,
		ProfitAndLoss:           pnl,
		ProfitAndLossPercentage: pct,
	}
}
