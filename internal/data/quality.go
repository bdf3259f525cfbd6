// Package data provides quality checks for parsed result files.
// Checks are advisory: a low score is logged and reported, never rejected.
package data

import (
	"fmt"
	"math"

	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"go.uber.org/zap"
)

// Issue types
const (
	IssueNoData           = "NO_DATA"
	IssueNonFinite        = "NON_FINITE_VALUE"
	IssueBadDate          = "BAD_DATE"
	IssueDateOrder        = "DATE_ORDER"
	IssueDanglingBuyIndex = "DANGLING_BUY_INDEX"
)

// QualityValidator checks result-file integrity
type QualityValidator struct {
	logger *zap.Logger

	// MaxIssuesPerCheck caps how many issues a single check reports
	MaxIssuesPerCheck int
}

// DataIssue represents a data quality problem
type DataIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"` // "critical", "high", "medium", "low"
	Step     int    `json:"step"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
}

// QualityReport summarizes data quality assessment
type QualityReport struct {
	Name         string      `json:"name"`
	TotalSteps   int         `json:"total_steps"`
	Issues       []DataIssue `json:"issues"`
	QualityScore int         `json:"quality_score"` // 0-100
	IsUsable     bool        `json:"is_usable"`

	NonFiniteCount   int `json:"non_finite_count"`
	DateIssueCount   int `json:"date_issue_count"`
	DanglingRefCount int `json:"dangling_ref_count"`

	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// NewQualityValidator creates a validator with default settings
func NewQualityValidator(logger *zap.Logger) *QualityValidator {
	return &QualityValidator{
		logger:            logger,
		MaxIssuesPerCheck: 50,
	}
}

// Validate runs all quality checks on a parsed series
func (qv *QualityValidator) Validate(ts *types.TimeSeries, name string) *QualityReport {
	n := ts.Len()
	if n == 0 {
		return &QualityReport{
			Name:     name,
			Issues:   []DataIssue{{Type: IssueNoData, Severity: "critical", Message: "No steps in series"}},
			IsUsable: false,
		}
	}

	issues := make([]DataIssue, 0)

	// Check 1: NaN / Inf values
	issues = append(issues, qv.checkNonFinite(ts)...)

	// Check 2: unparsable and out-of-order dates
	issues = append(issues, qv.checkDates(ts)...)

	// Check 3: closed positions that point outside their own history
	issues = append(issues, qv.checkBuyIndexes(ts)...)

	score := qv.calculateQualityScore(n, issues)

	report := &QualityReport{
		Name:             name,
		TotalSteps:       n,
		Issues:           issues,
		QualityScore:     score,
		IsUsable:         score >= 70 && !hasCriticalIssues(issues),
		NonFiniteCount:   countIssuesByType(issues, IssueNonFinite),
		DateIssueCount:   countIssuesByType(issues, IssueBadDate, IssueDateOrder),
		DanglingRefCount: countIssuesByType(issues, IssueDanglingBuyIndex),
		StartDate:        ts.DateLabel(0),
		EndDate:          ts.DateLabel(n - 1),
	}

	if len(issues) > 0 {
		qv.logger.Debug("Quality issues found",
			zap.String("name", name),
			zap.Int("issues", len(issues)),
			zap.Int("score", score),
		)
	}

	return report
}

// checkNonFinite flags NaN and infinite numbers
func (qv *QualityValidator) checkNonFinite(ts *types.TimeSeries) []DataIssue {
	issues := make([]DataIssue, 0)
	fields := []struct {
		name   string
		values []float64
	}{
		{"available_money", ts.Cash},
		{"cashout", ts.Cashout},
		{"open_position_value", ts.PositionsValue},
		{"cumulated_profit_and_loss", ts.PnL},
	}

	for _, f := range fields {
		for i, v := range f.values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				if len(issues) >= qv.MaxIssuesPerCheck {
					return issues
				}
				issues = append(issues, DataIssue{
					Type:     IssueNonFinite,
					Severity: "high",
					Step:     i,
					Field:    f.name,
					Message:  fmt.Sprintf("non-finite value %v", v),
				})
			}
		}
	}

	return issues
}

// checkDates flags unparsable and non-chronological dates
func (qv *QualityValidator) checkDates(ts *types.TimeSeries) []DataIssue {
	issues := make([]DataIssue, 0)

	for i := range ts.Dates {
		if len(issues) >= qv.MaxIssuesPerCheck {
			break
		}
		if ts.Dates[i].IsZero() {
			issues = append(issues, DataIssue{
				Type:     IssueBadDate,
				Severity: "low",
				Step:     i,
				Field:    "date_list",
				Message:  fmt.Sprintf("unparsable date %q", ts.RawDates[i]),
			})
			continue
		}
		if i > 0 && !ts.Dates[i-1].IsZero() && ts.Dates[i].Before(ts.Dates[i-1]) {
			issues = append(issues, DataIssue{
				Type:     IssueDateOrder,
				Severity: "medium",
				Step:     i,
				Field:    "date_list",
				Message:  "date is earlier than the previous step",
			})
		}
	}

	return issues
}

// checkBuyIndexes flags closed positions whose buy_index is not an earlier step
func (qv *QualityValidator) checkBuyIndexes(ts *types.TimeSeries) []DataIssue {
	issues := make([]DataIssue, 0)

	for step, closed := range ts.ClosedPositions {
		for _, cp := range closed {
			if cp.BuyIndex >= 0 && cp.BuyIndex < step {
				continue
			}
			if len(issues) >= qv.MaxIssuesPerCheck {
				return issues
			}
			issues = append(issues, DataIssue{
				Type:     IssueDanglingBuyIndex,
				Severity: "medium",
				Step:     step,
				Field:    "close_position",
				Message:  fmt.Sprintf("%s closed at step %d references buy_index %d", cp.Symbol, step, cp.BuyIndex),
			})
		}
	}

	return issues
}

// calculateQualityScore returns a 0-100 score
func (qv *QualityValidator) calculateQualityScore(totalSteps int, issues []DataIssue) int {
	if totalSteps == 0 {
		return 0
	}

	// Weight issues by severity
	penaltyPoints := 0.0
	for _, issue := range issues {
		switch issue.Severity {
		case "critical":
			penaltyPoints += 10.0
		case "high":
			penaltyPoints += 5.0
		case "medium":
			penaltyPoints += 2.0
		case "low":
			penaltyPoints += 0.5
		}
	}

	// Longer series tolerate more small issues
	normalizedPenalty := penaltyPoints / math.Max(1, float64(totalSteps)/100) * 10
	score := 100.0 - math.Min(normalizedPenalty, 100)

	return int(math.Max(0, math.Min(100, score)))
}

func hasCriticalIssues(issues []DataIssue) bool {
	for _, issue := range issues {
		if issue.Severity == "critical" {
			return true
		}
	}
	return false
}

func countIssuesByType(issues []DataIssue, issueTypes ...string) int {
	count := 0
	typeSet := make(map[string]bool)
	for _, t := range issueTypes {
		typeSet[t] = true
	}
	for _, issue := range issues {
		if typeSet[issue.Type] {
			count++
		}
	}
	return count
}
