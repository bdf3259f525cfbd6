package report_test

import (
	"math"
	"testing"

	"github.com/atlas-desktop/portfolio-replay/internal/fixtures"
	"github.com/atlas-desktop/portfolio-replay/internal/report"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"go.uber.org/zap"
)

func TestCalculateSummarizesRun(t *testing.T) {
	ds := fixtures.NewResult(5).
		Hold(1, types.Position{Symbol: "BTC", AssetQuantity: 2, InitialPriceClose: 100, CurrentPriceClose: 100, Value: 200}).
		Close(2, fixtures.Trade("BTC", 0, 100, 110, 1)).
		Close(4, fixtures.Trade("ETH", 1, 50, 45, 2)).
		Choice(1, "BTC", "NULL").
		Choice(2, "NULL", "ETH").
		Choice(3, "BTC", "BTC").
		Dataset("run", types.RGBColor{})

	rep := report.NewCalculator(zap.NewNop()).Calculate(ds, nil)

	if rep.DatasetID != "run" || rep.Steps != 5 {
		t.Fatalf("Unexpected header %+v", rep)
	}
	if rep.FinalPnL != "4.00" {
		t.Errorf("Expected final PnL 4.00, got %s", rep.FinalPnL)
	}
	if rep.PeakEquity != "1200.00" || rep.MaxDrawdown != "200.00" {
		t.Errorf("Expected peak 1200.00 and drawdown 200.00, got %s and %s", rep.PeakEquity, rep.MaxDrawdown)
	}
	if math.Abs(rep.MaxDrawdownPct-1.0/6.0) > 1e-9 {
		t.Errorf("Expected drawdown pct 1/6, got %f", rep.MaxDrawdownPct)
	}
	if rep.ClosedTrades != 2 || rep.WinningTrades != 1 || rep.LosingTrades != 1 {
		t.Errorf("Unexpected trade counts %+v", rep)
	}
	if rep.WinRate != 0.5 || rep.ProfitFactor != 1 {
		t.Errorf("Expected win rate 0.5 and profit factor 1, got %f and %f", rep.WinRate, rep.ProfitFactor)
	}
	if rep.AvgWin != "10.00" || rep.AvgLoss != "10.00" {
		t.Errorf("Expected average win/loss 10.00, got %s and %s", rep.AvgWin, rep.AvgLoss)
	}
	if rep.StepPnLMean != 1 || rep.StepPnLStdDev != 0 {
		t.Errorf("Expected step mean 1 and stddev 0, got %f and %f", rep.StepPnLMean, rep.StepPnLStdDev)
	}
	if rep.FalsePositives != 1 || rep.FalseNegatives != 1 {
		t.Errorf("Expected 1 FP and 1 FN, got %d and %d", rep.FalsePositives, rep.FalseNegatives)
	}
	if rep.Evaluations != 3 || math.Abs(rep.DecisionAccuracy-1.0/3.0) > 1e-9 {
		t.Errorf("Expected 3 evaluations at 1/3 accuracy, got %d at %f", rep.Evaluations, rep.DecisionAccuracy)
	}
}

func TestCalculateWithoutTrades(t *testing.T) {
	ds := fixtures.NewResult(1).Dataset("flat", types.RGBColor{})

	rep := report.NewCalculator(zap.NewNop()).Calculate(ds, []types.AnomalyPoint{})

	if rep.ClosedTrades != 0 || rep.WinRate != 0 || rep.ProfitFactor != 0 {
		t.Errorf("Expected empty trade stats, got %+v", rep)
	}
	if rep.MaxDrawdown != "0.00" || rep.AvgWin != "0" {
		t.Errorf("Unexpected money fields %+v", rep)
	}
	if rep.StepPnLStdDev != 0 || rep.Evaluations != 0 {
		t.Errorf("Unexpected step stats %+v", rep)
	}
}

func TestCalculateNilDataset(t *testing.T) {
	rep := report.NewCalculator(zap.NewNop()).Calculate(nil, nil)
	if rep.Steps != 0 || rep.FinalPnL != "0" {
		t.Errorf("Expected zero report, got %+v", rep)
	}
}
