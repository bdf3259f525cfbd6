package data_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/atlas-desktop/portfolio-replay/internal/data"
)

// buildResult returns a valid result document with n steps
func buildResult(n int) map[string]interface{} {
	dates := make([]string, n)
	cash := make([]float64, n)
	posValue := make([]float64, n)
	cashout := make([]float64, n)
	pnl := make([]float64, n)
	open := make([][]map[string]interface{}, n)
	closed := make([][]map[string]interface{}, n)
	choices := make([]interface{}, n)

	for i := 0; i < n; i++ {
		dates[i] = fmt.Sprintf("2024-01-%02dT00:00:00Z", i+1)
		cash[i] = 1000 - float64(i)*10
		posValue[i] = float64(i) * 12.5
		pnl[i] = float64(i)*2.5 - 3
		open[i] = []map[string]interface{}{}
		closed[i] = []map[string]interface{}{}
		if i%2 == 0 {
			choices[i] = map[string]interface{}{"selected_symbol": "BTC", "best_symbol": "BTC", "correct_choice": 1}
		}
	}

	return map[string]interface{}{
		"date_list":                 dates,
		"available_money":           cash,
		"open_position_value":       posValue,
		"cashout":                   cashout,
		"cumulated_profit_and_loss": pnl,
		"open_position":             open,
		"close_position":            closed,
		"choice_evaluation":         choices,
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal fixture: %v", err)
	}
	return raw
}

func TestParseValidFile(t *testing.T) {
	raw := mustJSON(t, buildResult(12))

	ts, err := data.Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	n := ts.Len()
	if n != 12 {
		t.Fatalf("Expected 12 steps, got %d", n)
	}

	lengths := map[string]int{
		"dates":            len(ts.Dates),
		"rawDates":         len(ts.RawDates),
		"cash":             len(ts.Cash),
		"cashout":          len(ts.Cashout),
		"positionsValue":   len(ts.PositionsValue),
		"pnl":              len(ts.PnL),
		"equity":           len(ts.Equity),
		"openPositions":    len(ts.OpenPositions),
		"closedPositions":  len(ts.ClosedPositions),
		"choiceEvaluation": len(ts.ChoiceEvaluation),
	}
	for name, l := range lengths {
		if l != n {
			t.Errorf("%s has length %d, expected %d", name, l, n)
		}
	}

	for i := 0; i < n; i++ {
		if ts.Equity[i] != ts.Cash[i]+ts.PositionsValue[i] {
			t.Errorf("equity[%d] = %v, want %v", i, ts.Equity[i], ts.Cash[i]+ts.PositionsValue[i])
		}
	}

	if ts.Dates[0].IsZero() {
		t.Error("Expected first date to be parsed")
	}
	if ts.ChoiceEvaluation[0] == nil || ts.ChoiceEvaluation[1] != nil {
		t.Error("Expected choice evaluation to preserve nulls")
	}
}

func TestParseDoesNotMutateInput(t *testing.T) {
	raw := mustJSON(t, buildResult(5))
	before := string(raw)

	if _, err := data.Parse(raw); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if string(raw) != before {
		t.Error("Parse mutated its input")
	}
}

func TestParseRejectsLengthMismatch(t *testing.T) {
	fields := []string{
		"available_money",
		"open_position_value",
		"cashout",
		"cumulated_profit_and_loss",
		"open_position",
		"close_position",
		"choice_evaluation",
	}

	for _, field := range fields {
		t.Run(field, func(t *testing.T) {
			doc := buildResult(6)
			short := buildResult(4)
			doc[field] = short[field]

			ts, err := data.Parse(mustJSON(t, doc))
			if ts != nil {
				t.Fatal("Expected no series on error")
			}
			if !errors.Is(err, data.ErrInconsistentLength) {
				t.Fatalf("Expected inconsistent length error, got %v", err)
			}

			var fe *data.FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("Expected *FormatError, got %T", err)
			}
			if fe.Field != field {
				t.Errorf("Expected field %s, got %s", field, fe.Field)
			}
		})
	}
}

func TestParseRejectsMissingFields(t *testing.T) {
	for _, field := range []string{"date_list", "available_money", "cashout", "close_position"} {
		doc := buildResult(3)
		delete(doc, field)

		ts, err := data.Parse(mustJSON(t, doc))
		if ts != nil || !errors.Is(err, data.ErrMissingField) {
			t.Errorf("%s: expected missing field error, got %v", field, err)
		}
	}
}

func TestParseChoiceEvaluationOptional(t *testing.T) {
	doc := buildResult(4)
	delete(doc, "choice_evaluation")

	ts, err := data.Parse(mustJSON(t, doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(ts.ChoiceEvaluation) != 4 {
		t.Fatalf("Expected 4 empty evaluations, got %d", len(ts.ChoiceEvaluation))
	}
	for i, ev := range ts.ChoiceEvaluation {
		if ev != nil {
			t.Errorf("evaluation %d should be nil", i)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := data.Parse([]byte("{not json"))
	if !errors.Is(err, data.ErrMalformed) {
		t.Fatalf("Expected malformed error, got %v", err)
	}
}

func TestParseClosedPositionFields(t *testing.T) {
	doc := buildResult(8)
	closed := doc["close_position"].([][]map[string]interface{})
	closed[7] = []map[string]interface{}{{
		"symbol":                     "ETH",
		"asset_quantity":             2.0,
		"initial_price_close":        100.0,
		"current_price_close":        110.0,
		"value":                      220.0,
		"buy_index":                  3,
		"profit_and_loss":            20.0,
		"profit_and_loss_percentage": 10.0,
	}}

	ts, err := data.Parse(mustJSON(t, doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cp := ts.ClosedPositions[7][0]
	if cp.Symbol != "ETH" || cp.BuyIndex != 3 || cp.ProfitAndLoss != 20 || cp.CurrentPriceClose != 110 {
		t.Errorf("Unexpected closed position: %+v", cp)
	}
}
