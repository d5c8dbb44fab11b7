package sim

import (
	"fmt"
	"math"
	"sort"
)

// ConvergenceMetrics reports how stable the running statistics of the cost
// outcomes were at the last checkpoint. Stabilities live in [0,1]; 1.0 means
// the statistic did not move between checkpoints.
type ConvergenceMetrics struct {
	MeanStability           float64            `json:"mean_stability"`
	VarianceStability       float64            `json:"variance_stability"`
	PercentileStability     map[string]float64 `json:"percentile_stability"`
	Converged               bool               `json:"converged"`
	IterationsToConvergence int                `json:"iterations_to_convergence,omitempty"`
}

// trackedPercentiles are the quantiles whose stability gates convergence.
var trackedPercentiles = []float64{0.50, 0.90}

// monitor tracks running-statistic stability across checkpoints, the same
// framing as a process-behavior baseline: successive observations of the
// same statistic should settle inside a narrow band once the sample is
// large enough.
type monitor struct {
	threshold       float64
	checkpoints     int
	prevMean        float64
	prevVariance    float64
	prevPercentiles map[float64]float64
}

func newMonitor(threshold float64) *monitor {
	return &monitor{
		threshold:       threshold,
		prevPercentiles: make(map[float64]float64),
	}
}

// observe computes stability metrics over the outcomes accumulated so far.
// The first checkpoint establishes the baseline and never converges.
func (m *monitor) observe(outcomes []float64, iterationsDone int) ConvergenceMetrics {
	mean, variance := meanVariance(outcomes)

	sorted := make([]float64, len(outcomes))
	copy(sorted, outcomes)
	sort.Float64s(sorted)

	metrics := ConvergenceMetrics{
		PercentileStability: make(map[string]float64, len(trackedPercentiles)),
	}

	if m.checkpoints > 0 {
		metrics.MeanStability = stability(mean, m.prevMean)
		metrics.VarianceStability = stability(variance, m.prevVariance)
	}

	allStable := m.checkpoints > 0 &&
		metrics.MeanStability >= m.threshold &&
		metrics.VarianceStability >= m.threshold

	for _, p := range trackedPercentiles {
		value := quantileSorted(sorted, p)
		s := 0.0
		if m.checkpoints > 0 {
			s = stability(value, m.prevPercentiles[p])
		}
		metrics.PercentileStability[percentileKey(p)] = s
		if s < m.threshold {
			allStable = false
		}
		m.prevPercentiles[p] = value
	}

	m.prevMean = mean
	m.prevVariance = variance
	m.checkpoints++

	if allStable {
		metrics.Converged = true
		metrics.IterationsToConvergence = iterationsDone
	}
	return metrics
}

// stability maps the relative movement of a statistic between checkpoints to
// [0,1]: identical values score 1.0, a full-magnitude move scores 0.
func stability(current, previous float64) float64 {
	denom := math.Max(math.Abs(previous), 1e-9)
	s := 1 - math.Abs(current-previous)/denom
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func percentileKey(p float64) string {
	return fmt.Sprintf("P%d", int(math.Round(p*100)))
}

func meanVariance(values []float64) (mean, variance float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / n

	if len(values) < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	variance = ss / (n - 1)
	return mean, variance
}

// quantileSorted cuts a percentile out of an ascending sample by index, the
// same scheme the output generator uses. Monotone non-decreasing in p.
func quantileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
