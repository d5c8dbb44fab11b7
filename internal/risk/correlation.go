package risk

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"riskmc/internal/dist"
)

// eigenvalues this close to zero still count as positive semi-definite;
// finite-precision decompositions of valid matrices routinely dip below zero.
const psdTolerance = 1e-9

// CorrelationPair is one off-diagonal coefficient between two risks.
type CorrelationPair struct {
	A           string  `json:"risk_a"`
	B           string  `json:"risk_b"`
	Coefficient float64 `json:"coefficient"`
}

// CorrelationMatrix is the symmetric linear-correlation structure over a set
// of risks. The diagonal is fixed at 1.0 and coefficients are range-checked
// at construction; positive semi-definiteness is checked separately by the
// validator before sampling.
type CorrelationMatrix struct {
	ids   []string
	index map[string]int
	sym   *mat.SymDense
}

// NewCorrelationMatrix builds a matrix from off-diagonal pairs over the given
// risk id set. The id order is preserved and defines the sampling order.
func NewCorrelationMatrix(pairs []CorrelationPair, riskIDs []string) (*CorrelationMatrix, error) {
	if len(riskIDs) == 0 {
		return nil, fmt.Errorf("correlation matrix: risk id set must not be empty")
	}

	index := make(map[string]int, len(riskIDs))
	for i, id := range riskIDs {
		if id == "" {
			return nil, fmt.Errorf("correlation matrix: risk ids must not be empty strings")
		}
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("correlation matrix: duplicate risk id %q", id)
		}
		index[id] = i
	}

	n := len(riskIDs)
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		sym.SetSym(i, i, 1.0)
	}

	seen := make(map[[2]int]float64)
	for _, p := range pairs {
		i, ok := index[p.A]
		if !ok {
			return nil, fmt.Errorf("correlation matrix: unknown risk id %q in pair (%s, %s)", p.A, p.A, p.B)
		}
		j, ok := index[p.B]
		if !ok {
			return nil, fmt.Errorf("correlation matrix: unknown risk id %q in pair (%s, %s)", p.B, p.A, p.B)
		}
		if i == j {
			return nil, fmt.Errorf("correlation matrix: self-correlation for %q is fixed at 1.0 and cannot be set", p.A)
		}
		if p.Coefficient < -1 || p.Coefficient > 1 {
			return nil, fmt.Errorf("correlation for pair (%s, %s) must be between -1 and 1, got %.3f", p.A, p.B, p.Coefficient)
		}

		key := [2]int{min(i, j), max(i, j)}
		if prev, ok := seen[key]; ok && prev != p.Coefficient {
			return nil, fmt.Errorf("correlation matrix: conflicting coefficients for pair (%s, %s): %.3f vs %.3f", p.A, p.B, prev, p.Coefficient)
		}
		seen[key] = p.Coefficient
		sym.SetSym(i, j, p.Coefficient)
	}

	ids := make([]string, n)
	copy(ids, riskIDs)
	return &CorrelationMatrix{ids: ids, index: index, sym: sym}, nil
}

// RiskIDs returns the risk ids in matrix order.
func (c *CorrelationMatrix) RiskIDs() []string {
	ids := make([]string, len(c.ids))
	copy(ids, c.ids)
	return ids
}

// Dim returns the number of risks in the matrix.
func (c *CorrelationMatrix) Dim() int { return len(c.ids) }

// Contains reports whether the matrix covers the given risk id.
func (c *CorrelationMatrix) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Correlation returns the coefficient between two risk ids. The second return
// is false when either id is not part of the matrix.
func (c *CorrelationMatrix) Correlation(a, b string) (float64, bool) {
	i, ok := c.index[a]
	if !ok {
		return 0, false
	}
	j, ok := c.index[b]
	if !ok {
		return 0, false
	}
	return c.sym.At(i, j), true
}

// MinEigenvalue returns the smallest eigenvalue of the matrix.
func (c *CorrelationMatrix) MinEigenvalue() (float64, error) {
	var es mat.EigenSym
	if !es.Factorize(c.sym, false) {
		return 0, fmt.Errorf("correlation matrix: eigenvalue decomposition failed")
	}
	vals := es.Values(nil)
	minVal := math.Inf(1)
	for _, v := range vals {
		if v < minVal {
			minVal = v
		}
	}
	return minVal, nil
}

// IsPositiveSemiDefinite reports whether all eigenvalues are >= -psdTolerance.
func (c *CorrelationMatrix) IsPositiveSemiDefinite() (bool, error) {
	minEig, err := c.MinEigenvalue()
	if err != nil {
		return false, err
	}
	return minEig >= -psdTolerance, nil
}

// NearestValid returns the closest valid correlation matrix in the spectral
// sense: negative eigenvalues are clipped to a small positive floor, the
// matrix is reassembled and rescaled back to a unit diagonal. The receiver is
// not modified.
func (c *CorrelationMatrix) NearestValid() (*CorrelationMatrix, error) {
	n := c.Dim()
	var es mat.EigenSym
	if !es.Factorize(c.sym, true) {
		return nil, fmt.Errorf("correlation matrix: eigenvalue decomposition failed")
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	const floor = 1e-8
	clipped := make([]float64, n)
	for i, v := range vals {
		clipped[i] = math.Max(v, floor)
	}

	// B = V * diag(clipped) * V^T
	b := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += vecs.At(i, k) * clipped[k] * vecs.At(j, k)
			}
			b.Set(i, j, sum)
		}
	}

	// Rescale to a unit diagonal so the repaired matrix is a correlation
	// matrix again.
	scale := make([]float64, n)
	for i := 0; i < n; i++ {
		scale[i] = math.Sqrt(b.At(i, i))
	}

	var pairs []CorrelationPair
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			coeff := b.At(i, j) / (scale[i] * scale[j])
			coeff = math.Max(-1, math.Min(1, coeff))
			pairs = append(pairs, CorrelationPair{A: c.ids[i], B: c.ids[j], Coefficient: coeff})
		}
	}
	return NewCorrelationMatrix(pairs, c.ids)
}

// factor returns a k x k matrix F with F F^T equal to the correlation matrix:
// the Cholesky factor when the matrix is positive definite, otherwise a
// spectral square root with negative eigenvalues clipped to zero.
func (c *CorrelationMatrix) factor() ([][]float64, error) {
	n := c.Dim()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}

	var ch mat.Cholesky
	if ch.Factorize(c.sym) {
		var l mat.TriDense
		ch.LTo(&l)
		for i := 0; i < n; i++ {
			for j := 0; j <= i; j++ {
				out[i][j] = l.At(i, j)
			}
		}
		return out, nil
	}

	// Semi-definite or numerically borderline: fall back to the spectral
	// square root of the nearest PSD matrix.
	var es mat.EigenSym
	if !es.Factorize(c.sym, true) {
		return nil, fmt.Errorf("correlation matrix: factorization failed")
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	for j, v := range vals {
		root := math.Sqrt(math.Max(v, 0))
		for i := 0; i < n; i++ {
			out[i][j] = vecs.At(i, j) * root
		}
	}
	return out, nil
}

// CopulaSampler draws correlated impact vectors through a Gaussian copula:
// iid standard normals are mixed through the matrix factor to induce the
// target linear correlation, then each coordinate is mapped through its own
// marginal's quantile function.
type CopulaSampler struct {
	dists  []dist.Distribution
	factor [][]float64 // nil means fully independent marginals
	k      int
}

// NewCopulaSampler pairs one distribution per matrix risk id, in matrix
// order. A nil matrix yields an independent sampler.
func NewCopulaSampler(dists []dist.Distribution, m *CorrelationMatrix) (*CopulaSampler, error) {
	if len(dists) == 0 {
		return nil, fmt.Errorf("copula sampler: at least one distribution is required")
	}
	for i, d := range dists {
		if d == nil {
			return nil, fmt.Errorf("copula sampler: distribution %d is nil", i)
		}
	}

	s := &CopulaSampler{dists: dists, k: len(dists)}
	if m != nil {
		if m.Dim() != len(dists) {
			return nil, fmt.Errorf("copula sampler: %d distributions for a %d-dimensional matrix", len(dists), m.Dim())
		}
		f, err := m.factor()
		if err != nil {
			return nil, err
		}
		s.factor = f
	}
	return s, nil
}

// Dim returns the number of marginals.
func (s *CopulaSampler) Dim() int { return s.k }

// Draw fills out with one correlated impact vector. z is caller-provided
// scratch of length Dim to keep the per-iteration path allocation-free.
func (s *CopulaSampler) Draw(rng *rand.Rand, z, out []float64) {
	for j := 0; j < s.k; j++ {
		z[j] = rng.NormFloat64()
	}
	for i := 0; i < s.k; i++ {
		x := z[i]
		if s.factor != nil {
			// Cholesky factors carry zeros above the diagonal and spectral
			// fallback factors are dense, so a full row product covers both.
			x = 0
			for j := 0; j < s.k; j++ {
				x += s.factor[i][j] * z[j]
			}
		}
		u := distuv.UnitNormal.CDF(x)
		out[i] = s.dists[i].Quantile(u)
	}
}

// GenerateCorrelatedSamples draws n impact vectors (rows) for k marginals
// (columns) under the given correlation structure.
func GenerateCorrelatedSamples(dists []dist.Distribution, m *CorrelationMatrix, n int, rng *rand.Rand) ([][]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("correlated samples: n must be > 0, got %d", n)
	}
	s, err := NewCopulaSampler(dists, m)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, n)
	z := make([]float64, s.Dim())
	for i := range out {
		out[i] = make([]float64, s.Dim())
		s.Draw(rng, z, out[i])
	}
	return out, nil
}

// CrossImpactModel is a directed annotation describing how the realization of
// one risk statistically amplifies or dampens another, layered on top of a
// correlation matrix for cost/schedule cross-effects.
type CrossImpactModel struct {
	PrimaryRiskID          string  `json:"primary_risk_id"`
	SecondaryRiskID        string  `json:"secondary_risk_id"`
	CorrelationCoefficient float64 `json:"correlation_coefficient"`
	ImpactMultiplier       float64 `json:"impact_multiplier"`
}

// ModelCrossImpacts builds a validated cross-impact annotation.
func ModelCrossImpacts(primaryID, secondaryID string, correlation, multiplier float64) (CrossImpactModel, error) {
	if primaryID == "" || secondaryID == "" {
		return CrossImpactModel{}, fmt.Errorf("cross impact: risk ids must not be empty")
	}
	if primaryID == secondaryID {
		return CrossImpactModel{}, fmt.Errorf("cross impact: primary and secondary risk must be distinct, both are %q", primaryID)
	}
	if correlation < -1 || correlation > 1 {
		return CrossImpactModel{}, fmt.Errorf("cross impact (%s -> %s): correlation must be between -1 and 1, got %.3f", primaryID, secondaryID, correlation)
	}
	if multiplier < 0 {
		return CrossImpactModel{}, fmt.Errorf("cross impact (%s -> %s): impact_multiplier must be >= 0, got %.3f", primaryID, secondaryID, multiplier)
	}
	return CrossImpactModel{
		PrimaryRiskID:          primaryID,
		SecondaryRiskID:        secondaryID,
		CorrelationCoefficient: correlation,
		ImpactMultiplier:       multiplier,
	}, nil
}

// EmpiricalCorrelation computes the Pearson correlation of two equally sized
// samples. Mismatched or empty inputs yield 0.
func EmpiricalCorrelation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	n := float64(len(a))
	sumA, sumB := 0.0, 0.0
	sumA2, sumB2 := 0.0, 0.0
	sumAB := 0.0

	for i := range a {
		sumA += a[i]
		sumB += b[i]
		sumA2 += a[i] * a[i]
		sumB2 += b[i] * b[i]
		sumAB += a[i] * b[i]
	}

	num := (n * sumAB) - (sumA * sumB)
	den := math.Sqrt((n*sumA2 - sumA*sumA) * (n*sumB2 - sumB*sumB))
	if den == 0 {
		return 0
	}
	return num / den
}
