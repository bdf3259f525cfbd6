// Package decision flags steps where the chosen symbol disagrees with the
// best available choice.
package decision

import (
	"sync"

	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"go.uber.org/zap"
)

func isSet(s string) bool {
	return s != "" && s != types.NullSymbol
}

// Classify returns the anomaly kind of one decision.
//
// A false positive picked something when it should have picked another
// symbol or nothing. A false negative picked nothing when a best symbol
// existed.
func Classify(ev *types.DecisionEvaluation) types.AnomalyKind {
	if ev == nil {
		return types.AnomalyNone
	}
	sel, best := ev.SelectedSymbol, ev.BestSymbol

	fp := isSet(sel) && (best == types.NullSymbol || best != sel)
	fn := sel == types.NullSymbol && isSet(best)

	switch {
	case fp && !fn:
		return types.AnomalyFalsePositive
	case fn && !fp:
		return types.AnomalyFalseNegative
	}
	return types.AnomalyNone
}

// Scan classifies every step of a dataset
func Scan(ds *types.Dataset) []types.AnomalyPoint {
	points := make([]types.AnomalyPoint, 0)
	if ds == nil || ds.Series == nil {
		return points
	}
	for i, ev := range ds.Series.ChoiceEvaluation {
		kind := Classify(ev)
		if kind == types.AnomalyNone {
			continue
		}
		points = append(points, types.AnomalyPoint{
			DatasetID:      ds.ID,
			StepIndex:      i,
			Kind:           kind,
			SelectedSymbol: ev.SelectedSymbol,
			BestSymbol:     ev.BestSymbol,
		})
	}
	return points
}

// Counts tallies points by kind
func Counts(points []types.AnomalyPoint) (falsePositives, falseNegatives int) {
	for _, p := range points {
		switch p.Kind {
		case types.AnomalyFalsePositive:
			falsePositives++
		case types.AnomalyFalseNegative:
			falseNegatives++
		}
	}
	return falsePositives, falseNegatives
}

type entry struct {
	series *types.TimeSeries
	points []types.AnomalyPoint
}

// Classifier memoizes Scan per dataset
type Classifier struct {
	mu     sync.Mutex
	logger *zap.Logger
	cache  map[string]entry
	scans  int
}

// NewClassifier creates an empty classifier
func NewClassifier(logger *zap.Logger) *Classifier {
	return &Classifier{
		logger: logger,
		cache:  make(map[string]entry),
	}
}

// Anomalies returns the anomalies of a dataset. The result is shared and
// must not be modified.
func (c *Classifier) Anomalies(ds *types.Dataset) []types.AnomalyPoint {
	if ds == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.cache[ds.ID]; ok && e.series == ds.Series {
		return e.points
	}

	points := Scan(ds)
	c.cache[ds.ID] = entry{series: ds.Series, points: points}
	c.scans++

	fp, fn := Counts(points)
	c.logger.Debug("Classified decisions",
		zap.String("dataset", ds.ID),
		zap.Int("false_positives", fp),
		zap.Int("false_negatives", fn),
	)
	return points
}

// Invalidate drops one dataset's cached result
func (c *Classifier) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, id)
}

// Retain drops every cached result not in ids
func (c *Classifier) Retain(ids []string) {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.cache {
		if _, ok := keep[id]; !ok {
			delete(c.cache, id)
		}
	}
}

// Scans returns how many datasets were classified from scratch
func (c *Classifier) Scans() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scans
}
