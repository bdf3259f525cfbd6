// Package utils provides utility functions for the portfolio replay viewer.
package utils

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const consolidatedSuffix = "_consolidated_json.json"

var printer = message.NewPrinter(language.AmericanEnglish)

// GenerateDatasetID builds a process-unique dataset ID from a file name.
// UUIDv7 is time ordered, so two loads of the same file never collide.
func GenerateDatasetID(fileName string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s-%s", fileName, id.String())
}

// OperatorName derives a display name from a result file name.
func OperatorName(fileName string) string {
	name := strings.TrimSpace(fileName)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	switch {
	case strings.HasSuffix(name, consolidatedSuffix):
		name = strings.TrimSuffix(name, consolidatedSuffix)
	case strings.HasSuffix(strings.ToLower(name), ".json"):
		name = name[:len(name)-len(".json")]
	}
	if name == "" {
		return fileName
	}
	return name
}

// FormatNumber formats n with US grouping and a fixed number of decimals.
func FormatNumber(n float64, decimals int) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "N/A"
	}
	if decimals < 0 {
		decimals = 0
	}
	return printer.Sprintf(fmt.Sprintf("%%.%df", decimals), n)
}

// FormatField formats a detail-panel value based on its field name.
func FormatField(key string, value interface{}) string {
	if value == nil {
		return "N/A"
	}
	k := strings.ToLower(key)
	switch v := value.(type) {
	case float64:
		switch {
		case strings.Contains(k, "price"):
			return FormatNumber(v, 6)
		case strings.Contains(k, "profit") || strings.Contains(k, "pnl"):
			return FormatNumber(v, 2) + "$"
		default:
			return FormatNumber(v, 2)
		}
	case int:
		return FormatNumber(float64(v), 0)
	case string:
		if v == "" || v == "NULL" {
			return "N/A"
		}
		if strings.Contains(k, "date") || strings.Contains(k, "time") {
			return FormatDate(v)
		}
		return v
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	}
	return fmt.Sprint(value)
}

// FormatDate renders an ISO-8601 timestamp as "Jan 2, 2006, 03:04 PM".
// Unparsable input is returned unchanged.
func FormatDate(raw string) string {
	t, ok := ParseTimestamp(raw)
	if !ok {
		return raw
	}
	return t.Format("Jan 2, 2006, 03:04 PM")
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses the ISO-8601 variants found in result files.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ClampInt limits v to [lo, hi]. When hi < lo the result is lo.
func ClampInt(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

// CalculateMaxDrawdown returns the largest peak-to-trough drop of an equity
// curve, as an amount and as a fraction of the peak.
func CalculateMaxDrawdown(equity []decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if len(equity) < 2 {
		return decimal.Zero, decimal.Zero
	}

	maxDrawdown := decimal.Zero
	maxDrawdownPct := decimal.Zero
	peak := equity[0]

	for _, value := range equity {
		if value.GreaterThan(peak) {
			peak = value
		}
		drawdown := peak.Sub(value)
		if drawdown.GreaterThan(maxDrawdown) {
			maxDrawdown = drawdown
			if peak.GreaterThan(decimal.Zero) {
				maxDrawdownPct = drawdown.Div(peak)
			}
		}
	}

	return maxDrawdown, maxDrawdownPct
}

// CalculateProfitFactor calculates profit factor (gross profit / gross loss).
func CalculateProfitFactor(pnls []decimal.Decimal) decimal.Decimal {
	grossProfit := decimal.Zero
	grossLoss := decimal.Zero

	for _, pnl := range pnls {
		if pnl.GreaterThan(decimal.Zero) {
			grossProfit = grossProfit.Add(pnl)
		} else {
			grossLoss = grossLoss.Add(pnl.Abs())
		}
	}

	if grossLoss.IsZero() {
		if grossProfit.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(100) // capped when there are no losses
	}

	return grossProfit.Div(grossLoss)
}
