// Package output turns raw outcome samples into the analytics consumers
// read: budget-compliance probabilities, percentile ladders, value-at-risk
// figures, and distribution summaries.
package output

import (
	"fmt"
	"math"
	"sort"

	"riskmc/internal/sim"
)

// ComplianceLevel buckets a compliance probability for presentation.
type ComplianceLevel string

const (
	ComplianceVeryHigh ComplianceLevel = "VERY_HIGH"
	ComplianceHigh     ComplianceLevel = "HIGH"
	ComplianceMedium   ComplianceLevel = "MEDIUM"
	ComplianceLow      ComplianceLevel = "LOW"
)

// LevelFor maps a compliance probability to its level. The mapping is a
// deterministic step function of the probability alone.
func LevelFor(probability float64) ComplianceLevel {
	switch {
	case probability >= 0.95:
		return ComplianceVeryHigh
	case probability >= 0.90:
		return ComplianceHigh
	case probability >= 0.70:
		return ComplianceMedium
	default:
		return ComplianceLow
	}
}

// DefaultConfidenceLevels are used when the caller passes none.
var DefaultConfidenceLevels = []float64{0.80, 0.90, 0.95}

// percentileLadder is the ascending set reported in percentile analyses.
var percentileLadder = []float64{0.10, 0.20, 0.30, 0.40, 0.50, 0.60, 0.70, 0.80, 0.90, 0.95, 0.99}

// Interval is an ordered confidence interval over outcomes.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// BudgetComplianceResult reports how likely the cost outcomes are to stay
// within a target budget.
type BudgetComplianceResult struct {
	TargetBudget          float64             `json:"target_budget"`
	ComplianceProbability float64             `json:"compliance_probability"`
	ComplianceLevel       ComplianceLevel     `json:"compliance_level"`
	CostAtRisk            float64             `json:"cost_at_risk"`
	ConfidenceIntervals   map[string]Interval `json:"confidence_intervals"`
	PercentileAnalysis    map[string]float64  `json:"percentile_analysis"`
}

// BudgetCompliance computes compliance analytics for a target budget.
// CostAtRisk is the expected overrun E[max(X - budget, 0)], which is
// non-increasing in the budget; confidence intervals are central and nested.
func BudgetCompliance(results *sim.Results, targetBudget float64, confidenceLevels []float64) (*BudgetComplianceResult, error) {
	if results == nil || len(results.CostOutcomes) == 0 {
		return nil, fmt.Errorf("budget compliance: no cost outcomes to analyze")
	}
	if len(confidenceLevels) == 0 {
		confidenceLevels = DefaultConfidenceLevels
	}
	for _, c := range confidenceLevels {
		if c <= 0 || c >= 1 {
			return nil, fmt.Errorf("budget compliance: confidence level must be within (0,1), got %.3f", c)
		}
	}

	outcomes := results.CostOutcomes
	sorted := make([]float64, len(outcomes))
	copy(sorted, outcomes)
	sort.Float64s(sorted)

	within := 0
	overrun := 0.0
	for _, x := range outcomes {
		if x <= targetBudget {
			within++
		} else {
			overrun += x - targetBudget
		}
	}
	probability := float64(within) / float64(len(outcomes))

	intervals := make(map[string]Interval, len(confidenceLevels))
	for _, c := range confidenceLevels {
		intervals[levelKey(c)] = Interval{
			Lower: quantileSorted(sorted, (1-c)/2),
			Upper: quantileSorted(sorted, (1+c)/2),
		}
	}

	return &BudgetComplianceResult{
		TargetBudget:          targetBudget,
		ComplianceProbability: probability,
		ComplianceLevel:       LevelFor(probability),
		CostAtRisk:            overrun / float64(len(outcomes)),
		ConfidenceIntervals:   intervals,
		PercentileAnalysis:    percentileMap(sorted),
	}, nil
}

// ValueAtRisk returns the outcome quantile at each confidence level. Values
// lie within the data range and are non-decreasing in the level.
func ValueAtRisk(outcomes []float64, confidenceLevels []float64) (map[string]float64, error) {
	sorted, err := checkedSort(outcomes, confidenceLevels)
	if err != nil {
		return nil, err
	}
	if len(confidenceLevels) == 0 {
		confidenceLevels = DefaultConfidenceLevels
	}

	out := make(map[string]float64, len(confidenceLevels))
	for _, c := range confidenceLevels {
		out[levelKey(c)] = quantileSorted(sorted, c)
	}
	return out, nil
}

// ConditionalValueAtRisk returns the expected outcome beyond the VaR cut at
// each confidence level; CVaR at a level is always >= VaR at that level.
func ConditionalValueAtRisk(outcomes []float64, confidenceLevels []float64) (map[string]float64, error) {
	sorted, err := checkedSort(outcomes, confidenceLevels)
	if err != nil {
		return nil, err
	}
	if len(confidenceLevels) == 0 {
		confidenceLevels = DefaultConfidenceLevels
	}

	out := make(map[string]float64, len(confidenceLevels))
	for _, c := range confidenceLevels {
		idx := quantileIndex(len(sorted), c)
		tail := sorted[idx:]
		sum := 0.0
		for _, v := range tail {
			sum += v
		}
		out[levelKey(c)] = sum / float64(len(tail))
	}
	return out, nil
}

// DistributionSummary describes an outcome sample's shape. Median is always
// identical to P50 and CoefficientOfVariation to StdDev/Mean.
type DistributionSummary struct {
	Count                  int                `json:"count"`
	Mean                   float64            `json:"mean"`
	Median                 float64            `json:"median"`
	StdDev                 float64            `json:"std_dev"`
	Min                    float64            `json:"min"`
	Max                    float64            `json:"max"`
	Percentiles            map[string]float64 `json:"percentiles"`
	CoefficientOfVariation float64            `json:"coefficient_of_variation"`
}

// Summarize computes a distribution summary of an outcome sample.
func Summarize(outcomes []float64) (*DistributionSummary, error) {
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("distribution summary: no outcomes to analyze")
	}

	sorted := make([]float64, len(outcomes))
	copy(sorted, outcomes)
	sort.Float64s(sorted)

	n := float64(len(sorted))
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / n

	variance := 0.0
	if len(sorted) > 1 {
		ss := 0.0
		for _, v := range sorted {
			d := v - mean
			ss += d * d
		}
		variance = ss / (n - 1)
	}
	stdDev := math.Sqrt(variance)

	percentiles := percentileMap(sorted)
	cv := 0.0
	if mean != 0 {
		cv = stdDev / mean
	}

	return &DistributionSummary{
		Count:                  len(sorted),
		Mean:                   mean,
		Median:                 percentiles["P50"],
		StdDev:                 stdDev,
		Min:                    sorted[0],
		Max:                    sorted[len(sorted)-1],
		Percentiles:            percentiles,
		CoefficientOfVariation: cv,
	}, nil
}

func checkedSort(outcomes []float64, confidenceLevels []float64) ([]float64, error) {
	if len(outcomes) == 0 {
		return nil, fmt.Errorf("no outcomes to analyze")
	}
	for _, c := range confidenceLevels {
		if c <= 0 || c >= 1 {
			return nil, fmt.Errorf("confidence level must be within (0,1), got %.3f", c)
		}
	}
	sorted := make([]float64, len(outcomes))
	copy(sorted, outcomes)
	sort.Float64s(sorted)
	return sorted, nil
}

func percentileMap(sorted []float64) map[string]float64 {
	out := make(map[string]float64, len(percentileLadder))
	for _, p := range percentileLadder {
		out[fmt.Sprintf("P%d", int(math.Round(p*100)))] = quantileSorted(sorted, p)
	}
	return out
}

func levelKey(c float64) string {
	return fmt.Sprintf("%.2f", c)
}

func quantileIndex(n int, p float64) int {
	idx := int(p * float64(n))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// quantileSorted cuts a percentile out of an ascending sample by index,
// matching the engine's convergence monitor so reported figures agree.
func quantileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[quantileIndex(len(sorted), p)]
}
