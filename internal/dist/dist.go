// Package dist defines the probability distributions a risk's impact can
// follow. Every distribution is a validated, immutable value: construction
// fails on illegal parameters, and recalibration produces a new instance
// rather than mutating an existing one.
package dist

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// Type identifies a distribution family.
type Type string

const (
	TypeNormal     Type = "NORMAL"
	TypeTriangular Type = "TRIANGULAR"
	TypeUniform    Type = "UNIFORM"
	TypeBeta       Type = "BETA"
	TypeLogNormal  Type = "LOGNORMAL"
)

// IsValid reports whether the type is a known family.
func (t Type) IsValid() bool {
	switch t {
	case TypeNormal, TypeTriangular, TypeUniform, TypeBeta, TypeLogNormal:
		return true
	default:
		return false
	}
}

// InvalidParameterError reports an illegal distribution parameter along with
// the constraint it violates.
type InvalidParameterError struct {
	Dist       Type
	Param      string
	Constraint string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("%s distribution: parameter %q must satisfy %s", e.Dist, e.Param, e.Constraint)
}

// Bounds optionally clips sampled values to [Low, High].
type Bounds struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

// Distribution is a validated probability distribution over impact values.
// Implementations are immutable value types.
type Distribution interface {
	Type() Type
	// Params exposes the parameters as a plain map for serialization at the
	// boundary. Internally the concrete types carry typed fields.
	Params() map[string]float64
	Bounds() *Bounds
	Mean() float64
	// Quantile maps p in (0,1) to an impact value, respecting Bounds.
	Quantile(p float64) float64
	// CDF evaluates the cumulative distribution function at x.
	CDF(x float64) float64
	// Sample draws n finite values using rng via inverse-transform sampling.
	Sample(n int, rng *rand.Rand) []float64
}

// quantile draws never hit the open ends of (0,1), keeping inverse-transform
// results finite for unbounded families.
const probEps = 1e-12

func clampProb(p float64) float64 {
	if p < probEps {
		return probEps
	}
	if p > 1-probEps {
		return 1 - probEps
	}
	return p
}

func clipTo(b *Bounds, v float64) float64 {
	if b == nil {
		return v
	}
	if v < b.Low {
		return b.Low
	}
	if v > b.High {
		return b.High
	}
	return v
}

func validateBounds(t Type, b *Bounds) error {
	if b != nil && b.Low >= b.High {
		return &InvalidParameterError{Dist: t, Param: "bounds", Constraint: "low < high"}
	}
	return nil
}

func sampleInverse(d Distribution, n int, rng *rand.Rand) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Quantile(rng.Float64())
	}
	return out
}

// Normal is a Gaussian impact distribution.
type Normal struct {
	MeanValue float64
	StdDev    float64
	Clip      *Bounds
}

// NewNormal constructs a validated normal distribution. bounds may be nil.
func NewNormal(mean, stdDev float64, bounds *Bounds) (Normal, error) {
	d := Normal{MeanValue: mean, StdDev: stdDev, Clip: bounds}
	if err := d.validate(); err != nil {
		return Normal{}, err
	}
	return d, nil
}

func (d Normal) validate() error {
	if !(d.StdDev > 0) {
		return &InvalidParameterError{Dist: TypeNormal, Param: "std", Constraint: "std > 0"}
	}
	return validateBounds(TypeNormal, d.Clip)
}

func (d Normal) Type() Type      { return TypeNormal }
func (d Normal) Bounds() *Bounds { return d.Clip }
func (d Normal) Mean() float64   { return clipTo(d.Clip, d.MeanValue) }

func (d Normal) Params() map[string]float64 {
	return map[string]float64{"mean": d.MeanValue, "std": d.StdDev}
}

func (d Normal) Quantile(p float64) float64 {
	return clipTo(d.Clip, distuv.Normal{Mu: d.MeanValue, Sigma: d.StdDev}.Quantile(clampProb(p)))
}

func (d Normal) CDF(x float64) float64 {
	return distuv.Normal{Mu: d.MeanValue, Sigma: d.StdDev}.CDF(x)
}

func (d Normal) Sample(n int, rng *rand.Rand) []float64 { return sampleInverse(d, n, rng) }

// Triangular is a three-point estimate distribution (min, mode, max).
type Triangular struct {
	Min  float64
	Mode float64
	Max  float64
	Clip *Bounds
}

// NewTriangular constructs a validated triangular distribution.
func NewTriangular(min, mode, max float64, bounds *Bounds) (Triangular, error) {
	d := Triangular{Min: min, Mode: mode, Max: max, Clip: bounds}
	if err := d.validate(); err != nil {
		return Triangular{}, err
	}
	return d, nil
}

func (d Triangular) validate() error {
	if !(d.Min < d.Max) {
		return &InvalidParameterError{Dist: TypeTriangular, Param: "min", Constraint: "min < max"}
	}
	if d.Mode < d.Min || d.Mode > d.Max {
		return &InvalidParameterError{Dist: TypeTriangular, Param: "mode", Constraint: "min <= mode <= max"}
	}
	return validateBounds(TypeTriangular, d.Clip)
}

func (d Triangular) Type() Type      { return TypeTriangular }
func (d Triangular) Bounds() *Bounds { return d.Clip }

func (d Triangular) Params() map[string]float64 {
	return map[string]float64{"min": d.Min, "mode": d.Mode, "max": d.Max}
}

func (d Triangular) dist() distuv.Triangle {
	return distuv.NewTriangle(d.Min, d.Max, d.Mode, nil)
}

func (d Triangular) Mean() float64 { return clipTo(d.Clip, d.dist().Mean()) }

func (d Triangular) Quantile(p float64) float64 {
	return clipTo(d.Clip, d.dist().Quantile(clampProb(p)))
}

func (d Triangular) CDF(x float64) float64 { return d.dist().CDF(x) }

func (d Triangular) Sample(n int, rng *rand.Rand) []float64 { return sampleInverse(d, n, rng) }

// Uniform is a flat distribution over [Min, Max].
type Uniform struct {
	Min  float64
	Max  float64
	Clip *Bounds
}

// NewUniform constructs a validated uniform distribution.
func NewUniform(min, max float64, bounds *Bounds) (Uniform, error) {
	d := Uniform{Min: min, Max: max, Clip: bounds}
	if err := d.validate(); err != nil {
		return Uniform{}, err
	}
	return d, nil
}

func (d Uniform) validate() error {
	if !(d.Min < d.Max) {
		return &InvalidParameterError{Dist: TypeUniform, Param: "min", Constraint: "min < max"}
	}
	return validateBounds(TypeUniform, d.Clip)
}

func (d Uniform) Type() Type      { return TypeUniform }
func (d Uniform) Bounds() *Bounds { return d.Clip }
func (d Uniform) Mean() float64   { return clipTo(d.Clip, (d.Min+d.Max)/2) }

func (d Uniform) Params() map[string]float64 {
	return map[string]float64{"min": d.Min, "max": d.Max}
}

func (d Uniform) Quantile(p float64) float64 {
	return clipTo(d.Clip, d.Min+(d.Max-d.Min)*clampProb(p))
}

func (d Uniform) CDF(x float64) float64 {
	return distuv.Uniform{Min: d.Min, Max: d.Max}.CDF(x)
}

func (d Uniform) Sample(n int, rng *rand.Rand) []float64 { return sampleInverse(d, n, rng) }

// Beta is a beta distribution on [0,1], typically scaled by a risk's
// baseline impact.
type Beta struct {
	Alpha float64
	Beta  float64
	Clip  *Bounds
}

// NewBeta constructs a validated beta distribution.
func NewBeta(alpha, beta float64, bounds *Bounds) (Beta, error) {
	d := Beta{Alpha: alpha, Beta: beta, Clip: bounds}
	if err := d.validate(); err != nil {
		return Beta{}, err
	}
	return d, nil
}

func (d Beta) validate() error {
	if !(d.Alpha > 0) {
		return &InvalidParameterError{Dist: TypeBeta, Param: "alpha", Constraint: "alpha > 0"}
	}
	if !(d.Beta > 0) {
		return &InvalidParameterError{Dist: TypeBeta, Param: "beta", Constraint: "beta > 0"}
	}
	return validateBounds(TypeBeta, d.Clip)
}

func (d Beta) Type() Type      { return TypeBeta }
func (d Beta) Bounds() *Bounds { return d.Clip }
func (d Beta) Mean() float64   { return clipTo(d.Clip, d.Alpha/(d.Alpha+d.Beta)) }

func (d Beta) Params() map[string]float64 {
	return map[string]float64{"alpha": d.Alpha, "beta": d.Beta}
}

func (d Beta) Quantile(p float64) float64 {
	return clipTo(d.Clip, distuv.Beta{Alpha: d.Alpha, Beta: d.Beta}.Quantile(clampProb(p)))
}

func (d Beta) CDF(x float64) float64 {
	return distuv.Beta{Alpha: d.Alpha, Beta: d.Beta}.CDF(x)
}

func (d Beta) Sample(n int, rng *rand.Rand) []float64 { return sampleInverse(d, n, rng) }

// LogNormal is a log-normal distribution parameterized on the log scale.
type LogNormal struct {
	Mu    float64
	Sigma float64
	Clip  *Bounds
}

// NewLogNormal constructs a validated log-normal distribution.
func NewLogNormal(mu, sigma float64, bounds *Bounds) (LogNormal, error) {
	d := LogNormal{Mu: mu, Sigma: sigma, Clip: bounds}
	if err := d.validate(); err != nil {
		return LogNormal{}, err
	}
	return d, nil
}

func (d LogNormal) validate() error {
	if !(d.Sigma > 0) {
		return &InvalidParameterError{Dist: TypeLogNormal, Param: "sigma", Constraint: "sigma > 0"}
	}
	return validateBounds(TypeLogNormal, d.Clip)
}

func (d LogNormal) Type() Type      { return TypeLogNormal }
func (d LogNormal) Bounds() *Bounds { return d.Clip }

func (d LogNormal) Mean() float64 {
	return clipTo(d.Clip, math.Exp(d.Mu+d.Sigma*d.Sigma/2))
}

func (d LogNormal) Params() map[string]float64 {
	return map[string]float64{"mu": d.Mu, "sigma": d.Sigma}
}

func (d LogNormal) Quantile(p float64) float64 {
	return clipTo(d.Clip, distuv.LogNormal{Mu: d.Mu, Sigma: d.Sigma}.Quantile(clampProb(p)))
}

func (d LogNormal) CDF(x float64) float64 {
	return distuv.LogNormal{Mu: d.Mu, Sigma: d.Sigma}.CDF(x)
}

func (d LogNormal) Sample(n int, rng *rand.Rand) []float64 { return sampleInverse(d, n, rng) }

// FromSpec builds a distribution from boundary data (a type tag plus a
// parameter map), converting the open map into the internal typed
// representation. Missing keys surface as InvalidParameterError rather than
// zero-value surprises at sample time.
func FromSpec(t Type, params map[string]float64, bounds *Bounds) (Distribution, error) {
	get := func(key string) (float64, error) {
		v, ok := params[key]
		if !ok {
			return 0, &InvalidParameterError{Dist: t, Param: key, Constraint: "be present"}
		}
		return v, nil
	}

	switch t {
	case TypeNormal:
		mean, err := get("mean")
		if err != nil {
			return nil, err
		}
		std, err := get("std")
		if err != nil {
			return nil, err
		}
		return NewNormal(mean, std, bounds)
	case TypeTriangular:
		min, err := get("min")
		if err != nil {
			return nil, err
		}
		mode, err := get("mode")
		if err != nil {
			return nil, err
		}
		max, err := get("max")
		if err != nil {
			return nil, err
		}
		return NewTriangular(min, mode, max, bounds)
	case TypeUniform:
		min, err := get("min")
		if err != nil {
			return nil, err
		}
		max, err := get("max")
		if err != nil {
			return nil, err
		}
		return NewUniform(min, max, bounds)
	case TypeBeta:
		alpha, err := get("alpha")
		if err != nil {
			return nil, err
		}
		beta, err := get("beta")
		if err != nil {
			return nil, err
		}
		return NewBeta(alpha, beta, bounds)
	case TypeLogNormal:
		mu, err := get("mu")
		if err != nil {
			return nil, err
		}
		sigma, err := get("sigma")
		if err != nil {
			return nil, err
		}
		return NewLogNormal(mu, sigma, bounds)
	default:
		return nil, fmt.Errorf("unknown distribution type %q", t)
	}
}
