// Package report summarizes a loaded backtest run.
package report

import (
	"math"

	"github.com/atlas-desktop/portfolio-replay/internal/decision"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"github.com/atlas-desktop/portfolio-replay/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Calculator computes run summaries
type Calculator struct {
	logger *zap.Logger
}

// NewCalculator creates a report calculator
func NewCalculator(logger *zap.Logger) *Calculator {
	return &Calculator{logger: logger}
}

// Calculate summarizes a dataset. anomalies may be nil, in which case the
// dataset is scanned directly.
func (c *Calculator) Calculate(ds *types.Dataset, anomalies []types.AnomalyPoint) *types.DatasetReport {
	rep := &types.DatasetReport{
		FinalPnL:    "0",
		PeakEquity:  "0",
		MaxDrawdown: "0",
		AvgWin:      "0",
		AvgLoss:     "0",
	}
	if ds == nil || ds.Series == nil {
		return rep
	}
	ts := ds.Series
	rep.DatasetID = ds.ID
	rep.Steps = ts.Len()
	if rep.Steps == 0 {
		return rep
	}

	if anomalies == nil {
		anomalies = decision.Scan(ds)
	}
	rep.FalsePositives, rep.FalseNegatives = decision.Counts(anomalies)

	c.curveStats(ts, rep)
	c.tradeStats(ts, rep)
	c.decisionStats(ts, rep)

	c.logger.Debug("Report calculated",
		zap.String("dataset", ds.ID),
		zap.Int("steps", rep.Steps),
		zap.Int("closed_trades", rep.ClosedTrades),
	)
	return rep
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (c *Calculator) curveStats(ts *types.TimeSeries, rep *types.DatasetReport) {
	for i := len(ts.PnL) - 1; i >= 0; i-- {
		if finite(ts.PnL[i]) {
			rep.FinalPnL = decimal.NewFromFloat(ts.PnL[i]).StringFixed(2)
			break
		}
	}

	equity := make([]float64, 0, len(ts.Equity))
	curve := make([]decimal.Decimal, 0, len(ts.Equity))
	for _, v := range ts.Equity {
		if !finite(v) {
			continue
		}
		equity = append(equity, v)
		curve = append(curve, decimal.NewFromFloat(v))
	}
	if len(equity) > 0 {
		rep.PeakEquity = decimal.NewFromFloat(floats.Max(equity)).StringFixed(2)
	}

	dd, ddPct := utils.CalculateMaxDrawdown(curve)
	rep.MaxDrawdown = dd.StringFixed(2)
	rep.MaxDrawdownPct, _ = ddPct.Float64()

	// Per-step PnL changes
	changes := make([]float64, 0, len(ts.PnL))
	for i := 1; i < len(ts.PnL); i++ {
		if finite(ts.PnL[i]) && finite(ts.PnL[i-1]) {
			changes = append(changes, ts.PnL[i]-ts.PnL[i-1])
		}
	}
	switch {
	case len(changes) > 1:
		rep.StepPnLMean, rep.StepPnLStdDev = stat.MeanStdDev(changes, nil)
	case len(changes) == 1:
		rep.StepPnLMean = changes[0]
	}
}

func (c *Calculator) tradeStats(ts *types.TimeSeries, rep *types.DatasetReport) {
	var pnls []decimal.Decimal
	totalWins, totalLosses := decimal.Zero, decimal.Zero

	for _, closed := range ts.ClosedPositions {
		for _, cp := range closed {
			if !finite(cp.ProfitAndLoss) {
				continue
			}
			pnl := decimal.NewFromFloat(cp.ProfitAndLoss)
			pnls = append(pnls, pnl)

			if pnl.GreaterThan(decimal.Zero) {
				rep.WinningTrades++
				totalWins = totalWins.Add(pnl)
			} else if pnl.LessThan(decimal.Zero) {
				rep.LosingTrades++
				totalLosses = totalLosses.Add(pnl.Abs())
			}
		}
	}

	rep.ClosedTrades = len(pnls)
	if rep.ClosedTrades == 0 {
		return
	}

	rep.WinRate = float64(rep.WinningTrades) / float64(rep.ClosedTrades)
	if rep.WinningTrades > 0 {
		rep.AvgWin = totalWins.Div(decimal.NewFromInt(int64(rep.WinningTrades))).StringFixed(2)
	}
	if rep.LosingTrades > 0 {
		rep.AvgLoss = totalLosses.Div(decimal.NewFromInt(int64(rep.LosingTrades))).StringFixed(2)
	}
	rep.ProfitFactor, _ = utils.CalculateProfitFactor(pnls).Float64()
}

func (c *Calculator) decisionStats(ts *types.TimeSeries, rep *types.DatasetReport) {
	correct := 0
	for _, ev := range ts.ChoiceEvaluation {
		if ev == nil {
			continue
		}
		rep.Evaluations++
		if ev.CorrectChoice == 1 {
			correct++
		}
	}
	if rep.Evaluations > 0 {
		rep.DecisionAccuracy = float64(correct) / float64(rep.Evaluations)
	}
}
