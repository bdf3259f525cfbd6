package render

import "math"

// NiceTicks returns evenly spaced round values covering [lo, hi]. The step
// is 1, 2, 2.5 or 5 times a power of ten, chosen so that at most maxTicks
// values are produced.
func NiceTicks(lo, hi float64, maxTicks int) []float64 {
	if maxTicks < 2 || math.IsNaN(lo) || math.IsNaN(hi) || hi <= lo {
		return nil
	}

	step := niceStep((hi - lo) / float64(maxTicks-1))
	first := math.Ceil(lo/step) * step

	ticks := make([]float64, 0, maxTicks)
	for v := first; v <= hi+step*1e-9; v += step {
		// Avoid -0 and accumulated float noise in labels
		r := math.Round(v/step) * step
		if r == 0 {
			r = 0
		}
		ticks = append(ticks, r)
	}
	return ticks
}

func niceStep(raw float64) float64 {
	exp := math.Floor(math.Log10(raw))
	base := math.Pow(10, exp)
	frac := raw / base

	switch {
	case frac <= 1:
		return base
	case frac <= 2:
		return 2 * base
	case frac <= 2.5:
		return 2.5 * base
	case frac <= 5:
		return 5 * base
	}
	return 10 * base
}
