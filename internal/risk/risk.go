// Package risk holds the immutable model entities of a simulation run
// (risks, mitigation strategies, correlation structure) and the correlation
// analyzer that builds, checks, and samples from correlated risk sets.
package risk

import (
	"fmt"

	"riskmc/internal/dist"
)

// Category classifies the source of a risk.
type Category string

const (
	CategorySchedule  Category = "schedule"
	CategoryCost      Category = "cost"
	CategoryTechnical Category = "technical"
	CategoryResource  Category = "resource"
	CategoryExternal  Category = "external"
	CategoryQuality   Category = "quality"
)

// IsValid reports whether the category is a known value.
func (c Category) IsValid() bool {
	switch c {
	case CategorySchedule, CategoryCost, CategoryTechnical, CategoryResource, CategoryExternal, CategoryQuality:
		return true
	default:
		return false
	}
}

// ImpactType selects which outcome dimension a risk contributes to.
type ImpactType string

const (
	ImpactCost     ImpactType = "cost"
	ImpactSchedule ImpactType = "schedule"
)

// IsValid reports whether the impact type is a known value.
func (t ImpactType) IsValid() bool {
	return t == ImpactCost || t == ImpactSchedule
}

// MitigationStrategy describes one mitigation owned by a risk. Its expected
// effectiveness reduces the realized impact deterministically during a run.
type MitigationStrategy struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Description        string  `json:"description,omitempty"`
	Cost               float64 `json:"cost"`
	Effectiveness      float64 `json:"effectiveness"`
	ImplementationTime float64 `json:"implementation_time"` // days
}

// Validate checks the strategy's numeric invariants.
func (m MitigationStrategy) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("mitigation strategy id must not be empty")
	}
	if m.Cost < 0 {
		return fmt.Errorf("mitigation %q: cost must be >= 0, got %.2f", m.ID, m.Cost)
	}
	if m.Effectiveness < 0 || m.Effectiveness > 1 {
		return fmt.Errorf("mitigation %q: effectiveness must be within [0,1], got %.3f", m.ID, m.Effectiveness)
	}
	if m.ImplementationTime < 0 {
		return fmt.Errorf("mitigation %q: implementation_time must be >= 0, got %.1f", m.ID, m.ImplementationTime)
	}
	return nil
}

// Risk is a read-only input to a simulation run.
type Risk struct {
	ID                      string
	Name                    string
	Category                Category
	Impact                  ImpactType
	Distribution            dist.Distribution
	BaselineImpact          float64
	CorrelationDependencies []string
	Mitigations             []MitigationStrategy
}

// Validate checks the risk's structural invariants. Statistical soundness
// (goodness of fit, matrix definiteness) is the validator's job.
func (r Risk) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("risk id must not be empty")
	}
	if r.Name == "" {
		return fmt.Errorf("risk %q: name must not be empty", r.ID)
	}
	if !r.Category.IsValid() {
		return fmt.Errorf("risk %q: unknown category %q", r.ID, r.Category)
	}
	if !r.Impact.IsValid() {
		return fmt.Errorf("risk %q: impact_type must be cost or schedule, got %q", r.ID, r.Impact)
	}
	if r.Distribution == nil {
		return fmt.Errorf("risk %q: distribution must be set", r.ID)
	}
	if r.BaselineImpact < 0 {
		return fmt.Errorf("risk %q: baseline_impact must be >= 0, got %.2f", r.ID, r.BaselineImpact)
	}
	for _, m := range r.Mitigations {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("risk %q: %w", r.ID, err)
		}
	}
	return nil
}

// MitigationResidual returns the deterministic factor remaining after all
// mitigation strategies are applied: the product of (1 - effectiveness).
func (r Risk) MitigationResidual() float64 {
	residual := 1.0
	for _, m := range r.Mitigations {
		residual *= 1 - m.Effectiveness
	}
	return residual
}
