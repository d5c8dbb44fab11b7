// Package validate performs pre-flight and post-hoc statistical validation:
// distribution parameter legality, goodness-of-fit against historical
// samples, and mathematical consistency of correlation matrices. Poor fits
// are legitimate outcomes, not programming errors, so they are reported
// through ValidationResult instead of being raised.
package validate

import (
	"fmt"
	"math"
	"sort"

	"riskmc/internal/dist"
	"riskmc/internal/risk"
)

// DefaultSignificanceLevel is the alpha used for goodness-of-fit tests when
// the caller does not specify one.
const DefaultSignificanceLevel = 0.05

// ValidationResult aggregates validation findings. Errors make the model
// unusable; warnings do not.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// NewValidationResult returns a passing result with no findings.
func NewValidationResult() ValidationResult {
	return ValidationResult{IsValid: true}
}

// AddError records a failure and marks the result invalid.
func (v *ValidationResult) AddError(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
	v.IsValid = false
}

// AddWarning records a non-fatal finding.
func (v *ValidationResult) AddWarning(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// Merge folds another result into this one.
func (v *ValidationResult) Merge(other ValidationResult) {
	v.Errors = append(v.Errors, other.Errors...)
	v.Warnings = append(v.Warnings, other.Warnings...)
	if !other.IsValid {
		v.IsValid = false
	}
}

// ValidateDistribution checks parameter legality and, when historical data is
// provided, runs a two-sided Kolmogorov-Smirnov test against the model CDF at
// the given significance level. A statistically poor fit yields
// is_valid=false with the test statistic in the error text; it never panics
// or returns a Go error.
func ValidateDistribution(d dist.Distribution, historical []float64, significance float64) ValidationResult {
	res := NewValidationResult()
	if d == nil {
		res.AddError("distribution must not be nil")
		return res
	}
	if significance <= 0 || significance >= 1 {
		significance = DefaultSignificanceLevel
	}

	// Parameter legality: reconstruct through the boundary constructor so the
	// same constraints apply regardless of how the value was built.
	if _, err := dist.FromSpec(d.Type(), d.Params(), d.Bounds()); err != nil {
		res.AddError("%v", err)
		return res
	}

	if len(historical) == 0 {
		return res
	}
	if len(historical) < 5 {
		res.AddWarning("only %d historical samples; goodness-of-fit test skipped (needs at least 5)", len(historical))
		return res
	}

	stat, pValue := KolmogorovSmirnov(historical, d.CDF)
	if pValue < significance {
		res.AddError(
			"%s distribution rejected by Kolmogorov-Smirnov test: D=%.4f, p=%.4f < alpha=%.2f over %d samples",
			d.Type(), stat, pValue, significance, len(historical),
		)
	}
	return res
}

// ValidateCorrelationMatrix checks coefficient bounds, the unit diagonal,
// symmetry, and positive semi-definiteness. A nil matrix is valid (risks are
// then independent).
func ValidateCorrelationMatrix(m *risk.CorrelationMatrix) ValidationResult {
	res := NewValidationResult()
	if m == nil {
		return res
	}

	ids := m.RiskIDs()
	for i, a := range ids {
		self, _ := m.Correlation(a, a)
		if self != 1.0 {
			res.AddError("correlation matrix: self-correlation for %q is %.3f, must be 1.0", a, self)
		}
		for _, b := range ids[i+1:] {
			ab, _ := m.Correlation(a, b)
			ba, _ := m.Correlation(b, a)
			if ab != ba {
				res.AddError("correlation matrix: asymmetric pair (%s, %s): %.3f vs %.3f", a, b, ab, ba)
			}
			if ab < -1 || ab > 1 {
				res.AddError("correlation for pair (%s, %s) must be between -1 and 1, got %.3f", a, b, ab)
			}
		}
	}

	psd, err := m.IsPositiveSemiDefinite()
	if err != nil {
		res.AddError("correlation matrix: %v", err)
		return res
	}
	if !psd {
		minEig, _ := m.MinEigenvalue()
		res.AddError("correlation matrix is not positive definite (smallest eigenvalue %.6f); the implied correlation structure is not realizable", minEig)
	}
	return res
}

// ValidateModel runs the full pre-flight check over a risk set and its
// optional correlation matrix. Every failure names the offending entity.
func ValidateModel(risks []risk.Risk, m *risk.CorrelationMatrix) ValidationResult {
	res := NewValidationResult()
	if len(risks) == 0 {
		res.AddError("risk list must not be empty")
		return res
	}

	known := make(map[string]bool, len(risks))
	for _, r := range risks {
		if err := r.Validate(); err != nil {
			res.AddError("%v", err)
		}
		if r.ID != "" {
			if known[r.ID] {
				res.AddError("duplicate risk id %q: ids must be unique within a simulation run", r.ID)
			}
			known[r.ID] = true
		}
		if r.Distribution != nil {
			res.Merge(ValidateDistribution(r.Distribution, nil, DefaultSignificanceLevel))
		}
	}

	for _, r := range risks {
		for _, dep := range r.CorrelationDependencies {
			if !known[dep] {
				res.AddWarning("risk %q declares a correlation dependency on unknown risk %q", r.ID, dep)
			}
		}
	}

	if m != nil {
		res.Merge(ValidateCorrelationMatrix(m))
		for _, id := range m.RiskIDs() {
			if !known[id] {
				res.AddError("correlation matrix references risk %q which is not part of the model", id)
			}
		}
	}
	return res
}

// SuggestCorrelationMatrixFixes proposes a concrete repair for an invalid
// matrix without mutating the input. For a valid matrix it states that no fix
// is needed.
func SuggestCorrelationMatrixFixes(m *risk.CorrelationMatrix) []string {
	if m == nil {
		return []string{"no correlation matrix supplied; nothing to fix"}
	}
	if res := ValidateCorrelationMatrix(m); res.IsValid {
		return []string{"correlation matrix is valid; no fixes needed"}
	}

	repaired, err := m.NearestValid()
	if err != nil {
		return []string{fmt.Sprintf("matrix is invalid and automatic repair failed (%v); reduce the magnitude of the strongest off-diagonal coefficients", err)}
	}

	suggestions := []string{"replace the matrix with its nearest valid counterpart (negative eigenvalues clipped, diagonal rescaled to 1.0):"}
	ids := m.RiskIDs()
	for i, a := range ids {
		for _, b := range ids[i+1:] {
			oldC, _ := m.Correlation(a, b)
			newC, _ := repaired.Correlation(a, b)
			if math.Abs(oldC-newC) > 1e-4 {
				suggestions = append(suggestions, fmt.Sprintf("set correlation (%s, %s) to %.3f (was %.3f)", a, b, newC, oldC))
			}
		}
	}
	if len(suggestions) == 1 {
		suggestions = append(suggestions, "coefficients are individually plausible but jointly inconsistent; weaken the strongest pairs slightly")
	}
	return suggestions
}

// KolmogorovSmirnov computes the two-sided K-S statistic of a sample against
// a model CDF, plus the asymptotic p-value of the null hypothesis that the
// sample was drawn from that distribution.
func KolmogorovSmirnov(sample []float64, cdf func(float64) float64) (statistic, pValue float64) {
	n := len(sample)
	if n == 0 {
		return 0, 1
	}

	sorted := make([]float64, n)
	copy(sorted, sample)
	sort.Float64s(sorted)

	d := 0.0
	for i, x := range sorted {
		fx := cdf(x)
		upper := float64(i+1)/float64(n) - fx
		lower := fx - float64(i)/float64(n)
		if upper > d {
			d = upper
		}
		if lower > d {
			d = lower
		}
	}
	return d, ksPValue(d, n)
}

// ksPValue evaluates the asymptotic Kolmogorov distribution tail
// Q(lambda) = 2 * sum_{k>=1} (-1)^{k-1} exp(-2 k^2 lambda^2).
func ksPValue(d float64, n int) float64 {
	if d <= 0 {
		return 1
	}
	sqrtN := math.Sqrt(float64(n))
	lambda := (sqrtN + 0.12 + 0.11/sqrtN) * d

	sum := 0.0
	sign := 1.0
	for k := 1; k <= 100; k++ {
		term := sign * math.Exp(-2*float64(k*k)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-12 {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
