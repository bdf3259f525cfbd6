// Package registry holds the set of loaded datasets and their display colors.
package registry

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/atlas-desktop/portfolio-replay/internal/data"
	"github.com/atlas-desktop/portfolio-replay/internal/workers"
	"github.com/atlas-desktop/portfolio-replay/pkg/types"
	"github.com/atlas-desktop/portfolio-replay/pkg/utils"
	"go.uber.org/zap"
)

// LoadFailure reports a file that was skipped during a batch load
type LoadFailure struct {
	Name string `json:"name"`
	Err  error  `json:"-"`
}

func (f LoadFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Name, f.Err)
}

func (f LoadFailure) Unwrap() error { return f.Err }

// MarshalText lets failures be reported as JSON strings
func (f LoadFailure) MarshalText() ([]byte, error) {
	return []byte(f.Error()), nil
}

// Registry owns the loaded datasets
type Registry struct {
	mu         sync.RWMutex
	logger     *zap.Logger
	pool       *workers.Pool
	quality    *data.QualityValidator
	palette    []types.RGBColor
	datasets   []*types.Dataset
	selectedID string

	newID func(fileName string) string
	now   func() time.Time
}

// New creates a registry. pool may be nil, in which case files are parsed
// sequentially on the caller's goroutine.
func New(logger *zap.Logger, pool *workers.Pool, palette []types.RGBColor) *Registry {
	if len(palette) == 0 {
		palette = DefaultPalette()
	}
	return &Registry{
		logger:   logger,
		pool:     pool,
		quality:  data.NewQualityValidator(logger),
		palette:  append([]types.RGBColor(nil), palette...),
		datasets: make([]*types.Dataset, 0),
		newID:    utils.GenerateDatasetID,
		now:      time.Now,
	}
}

// DefaultPalette returns the preset colors
func DefaultPalette() []types.RGBColor {
	palette, _ := ParsePalette(types.DefaultPalette)
	return palette
}

// ParsePalette converts hex strings to colors
func ParsePalette(hexes []string) ([]types.RGBColor, error) {
	palette := make([]types.RGBColor, 0, len(hexes))
	for _, h := range hexes {
		c, err := types.ParseRGBColor(h)
		if err != nil {
			return nil, err
		}
		palette = append(palette, c)
	}
	return palette, nil
}

// Add parses each file independently and appends the ones that parsed in a
// single step. A bad file is skipped and reported; it never aborts the batch.
func (r *Registry) Add(ctx context.Context, files []types.RawFile) ([]*types.Dataset, []LoadFailure) {
	series := make([]*types.TimeSeries, len(files))
	jobs := make([]func() error, len(files))
	for i, f := range files {
		i, f := i, f
		jobs[i] = func() error {
			ts, err := data.Parse(f.Data)
			if err != nil {
				return err
			}
			series[i] = ts
			return nil
		}
	}

	var errs []error
	if r.pool != nil {
		errs = r.pool.RunAll(ctx, jobs)
	} else {
		errs = make([]error, len(jobs))
		for i, job := range jobs {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				continue
			}
			errs[i] = job()
		}
	}

	failures := make([]LoadFailure, 0)
	for i, err := range errs {
		if err != nil {
			failures = append(failures, LoadFailure{Name: files[i].Name, Err: err})
			r.logger.Warn("Skipping result file", zap.String("name", files[i].Name), zap.Error(err))
			continue
		}
		report := r.quality.Validate(series[i], files[i].Name)
		if !report.IsUsable {
			r.logger.Warn("Result file has quality issues",
				zap.String("name", files[i].Name),
				zap.Int("score", report.QualityScore),
				zap.Int("issues", len(report.Issues)),
			)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	added := make([]*types.Dataset, 0, len(files))
	current := append([]*types.Dataset(nil), r.datasets...)
	for i, f := range files {
		if errs[i] != nil {
			continue
		}
		ds := &types.Dataset{
			ID:          r.newID(f.Name),
			DisplayName: utils.OperatorName(f.Name),
			FileName:    f.Name,
			Color:       assignColor(r.palette, current),
			Series:      series[i],
			Length:      series[i].Len(),
			LoadedAt:    r.now(),
		}
		current = append(current, ds)
		added = append(added, ds)
	}

	r.datasets = current
	if r.selectedID == "" && len(r.datasets) > 0 {
		r.selectedID = r.datasets[0].ID
	}

	if len(added) > 0 {
		r.logger.Info("Datasets loaded",
			zap.Int("added", len(added)),
			zap.Int("failed", len(failures)),
			zap.Int("total", len(r.datasets)),
		)
	}

	return added, failures
}

// AssignColor picks the least used palette color among existing datasets.
// Ties go to the earliest palette entry.
func (r *Registry) AssignColor(existing []*types.Dataset) types.RGBColor {
	return assignColor(r.palette, existing)
}

func assignColor(palette []types.RGBColor, existing []*types.Dataset) types.RGBColor {
	if len(palette) == 0 {
		return types.RGBColor{R: 255, G: 255, B: 255}
	}

	usage := make([]int, len(palette))
	for _, ds := range existing {
		for i, c := range palette {
			if c == ds.Color {
				usage[i]++
				break
			}
		}
	}

	best := 0
	for i := 1; i < len(palette); i++ {
		if usage[i] < usage[best] {
			best = i
		}
	}
	return palette[best]
}

// Remove deletes a dataset. Removing the selected dataset moves the selection
// to the first remaining one, or to none.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return false
	}

	next := make([]*types.Dataset, 0, len(r.datasets)-1)
	next = append(next, r.datasets[:idx]...)
	next = append(next, r.datasets[idx+1:]...)
	r.datasets = next

	if r.selectedID == id {
		r.selectedID = ""
		if len(r.datasets) > 0 {
			r.selectedID = r.datasets[0].ID
		}
	}

	return true
}

// UpdateColor changes a dataset's color
func (r *Registry) UpdateColor(id string, color types.RGBColor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return false
	}

	// Replace rather than mutate so earlier snapshots stay unchanged
	updated := *r.datasets[idx]
	updated.Color = color
	next := append([]*types.Dataset(nil), r.datasets...)
	next[idx] = &updated
	r.datasets = next

	return true
}

// Select marks a dataset as the one shown in the metrics panels
func (r *Registry) Select(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(id) < 0 {
		return false
	}
	r.selectedID = id
	return true
}

// Selected returns the selected dataset, or nil
func (r *Registry) Selected() *types.Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if idx := r.indexOf(r.selectedID); idx >= 0 {
		return r.datasets[idx]
	}
	return nil
}

// SelectedID returns the selected dataset ID, or ""
func (r *Registry) SelectedID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selectedID
}

// Get returns a dataset by ID
func (r *Registry) Get(id string) (*types.Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if idx := r.indexOf(id); idx >= 0 {
		return r.datasets[idx], true
	}
	return nil, false
}

// List returns the datasets in load order. The slice is a copy.
func (r *Registry) List() []*types.Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]*types.Dataset(nil), r.datasets...)
}

// Len returns the number of datasets
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.datasets)
}

// MaxIndex returns the last step of the longest series, or 0 when empty
func (r *Registry) MaxIndex() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	maxIndex := 0
	for _, ds := range r.datasets {
		if n := ds.Series.Len() - 1; n > maxIndex {
			maxIndex = n
		}
	}
	return maxIndex
}

// PnLRange returns the min and max PnL over all datasets within [start, end].
// ok is false when no dataset has a step in the window.
func (r *Registry) PnLRange(start, end int) (lo, hi float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return PnLRange(r.datasets, start, end)
}

// PnLRange computes the PnL extent of the given datasets within [start, end]
func PnLRange(datasets []*types.Dataset, start, end int) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	if start < 0 {
		start = 0
	}

	for _, ds := range datasets {
		pnl := ds.Series.PnL
		last := end
		if last > len(pnl)-1 {
			last = len(pnl) - 1
		}
		for i := start; i <= last; i++ {
			v := pnl[i]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
			ok = true
		}
	}

	if !ok {
		return 0, 0, false
	}
	return lo, hi, true
}

func (r *Registry) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, ds := range r.datasets {
		if ds.ID == id {
			return i
		}
	}
	return -1
}
