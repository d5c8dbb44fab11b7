// Package model is the boundary layer for risk-model files: YAML or JSON
// documents describing risks, correlations, cross impacts and the simulation
// configuration, decoded and built into the domain types the engine consumes.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"riskmc/internal/dist"
	"riskmc/internal/risk"
	"riskmc/internal/sim"
)

// DistributionSpec is the serialized form of a distribution.
type DistributionSpec struct {
	Type       string             `json:"type" yaml:"type"`
	Parameters map[string]float64 `json:"parameters" yaml:"parameters"`
	BoundLow   *float64           `json:"bound_low,omitempty" yaml:"bound_low,omitempty"`
	BoundHigh  *float64           `json:"bound_high,omitempty" yaml:"bound_high,omitempty"`
}

// Build constructs the distribution, validating type and parameters.
func (s DistributionSpec) Build() (dist.Distribution, error) {
	var bounds *dist.Bounds
	if s.BoundLow != nil || s.BoundHigh != nil {
		if s.BoundLow == nil || s.BoundHigh == nil {
			return nil, fmt.Errorf("distribution bounds must set both bound_low and bound_high")
		}
		bounds = &dist.Bounds{Low: *s.BoundLow, High: *s.BoundHigh}
	}
	return dist.FromSpec(dist.Type(strings.ToUpper(s.Type)), s.Parameters, bounds)
}

// MitigationSpec is the serialized form of a mitigation strategy.
type MitigationSpec struct {
	ID                 string  `json:"id" yaml:"id"`
	Name               string  `json:"name" yaml:"name"`
	Description        string  `json:"description,omitempty" yaml:"description,omitempty"`
	Cost               float64 `json:"cost" yaml:"cost"`
	Effectiveness      float64 `json:"effectiveness" yaml:"effectiveness"`
	ImplementationTime float64 `json:"implementation_time" yaml:"implementation_time"`
}

// RiskSpec is the serialized form of one risk.
type RiskSpec struct {
	ID             string           `json:"id" yaml:"id"`
	Name           string           `json:"name" yaml:"name"`
	Category       string           `json:"category" yaml:"category"`
	ImpactType     string           `json:"impact_type" yaml:"impact_type"`
	Distribution   DistributionSpec `json:"distribution" yaml:"distribution"`
	BaselineImpact float64          `json:"baseline_impact" yaml:"baseline_impact"`
	DependsOn      []string         `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Mitigations    []MitigationSpec `json:"mitigations,omitempty" yaml:"mitigations,omitempty"`
}

// CorrelationPairSpec is one serialized pairwise correlation.
type CorrelationPairSpec struct {
	RiskA       string  `json:"risk_a" yaml:"risk_a"`
	RiskB       string  `json:"risk_b" yaml:"risk_b"`
	Correlation float64 `json:"correlation" yaml:"correlation"`
}

// CrossImpactSpec is one serialized cross-impact annotation.
type CrossImpactSpec struct {
	PrimaryRisk   string  `json:"primary_risk" yaml:"primary_risk"`
	SecondaryRisk string  `json:"secondary_risk" yaml:"secondary_risk"`
	Correlation   float64 `json:"correlation" yaml:"correlation"`
	Multiplier    float64 `json:"multiplier" yaml:"multiplier"`
}

// File is a complete risk-model document.
type File struct {
	Name         string                `json:"name,omitempty" yaml:"name,omitempty"`
	Risks        []RiskSpec            `json:"risks" yaml:"risks"`
	Correlations []CorrelationPairSpec `json:"correlations,omitempty" yaml:"correlations,omitempty"`
	CrossImpacts []CrossImpactSpec     `json:"cross_impacts,omitempty" yaml:"cross_impacts,omitempty"`

	// Simulation holds configuration overrides; Preset names a base
	// configuration the overrides are applied on top of.
	Preset     string         `json:"preset,omitempty" yaml:"preset,omitempty"`
	Simulation map[string]any `json:"simulation,omitempty" yaml:"simulation,omitempty"`
}

// Model is the built, engine-ready form of a model file.
type Model struct {
	Name         string
	Risks        []risk.Risk
	Matrix       *risk.CorrelationMatrix // nil when the file has no correlations
	CrossImpacts []risk.CrossImpactModel
	Config       sim.Config
}

// LoadFile reads and builds a model document. The extension picks the codec:
// .json is JSON, everything else is YAML.
func LoadFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}

	var f File
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode model file %s: %w", filepath.Base(path), err)
	}
	return f.Build()
}

// Build turns the document into engine-ready domain values. Errors carry the
// offending risk id or pair so file authors can find the line.
func (f File) Build() (*Model, error) {
	if len(f.Risks) == 0 {
		return nil, fmt.Errorf("model must declare at least one risk")
	}

	risks := make([]risk.Risk, 0, len(f.Risks))
	ids := make([]string, 0, len(f.Risks))
	for _, rs := range f.Risks {
		d, err := rs.Distribution.Build()
		if err != nil {
			return nil, fmt.Errorf("risk %q: %w", rs.ID, err)
		}

		mitigations := make([]risk.MitigationStrategy, 0, len(rs.Mitigations))
		for _, ms := range rs.Mitigations {
			mitigations = append(mitigations, risk.MitigationStrategy{
				ID:                 ms.ID,
				Name:               ms.Name,
				Description:        ms.Description,
				Cost:               ms.Cost,
				Effectiveness:      ms.Effectiveness,
				ImplementationTime: ms.ImplementationTime,
			})
		}

		r := risk.Risk{
			ID:                      rs.ID,
			Name:                    rs.Name,
			Category:                risk.Category(strings.ToLower(rs.Category)),
			Impact:                  risk.ImpactType(strings.ToLower(rs.ImpactType)),
			Distribution:            d,
			BaselineImpact:          rs.BaselineImpact,
			CorrelationDependencies: rs.DependsOn,
			Mitigations:             mitigations,
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		risks = append(risks, r)
		ids = append(ids, r.ID)
	}

	var matrix *risk.CorrelationMatrix
	if len(f.Correlations) > 0 {
		pairs := make([]risk.CorrelationPair, 0, len(f.Correlations))
		correlated := make(map[string]bool)
		for _, ps := range f.Correlations {
			pairs = append(pairs, risk.CorrelationPair{
				A:           ps.RiskA,
				B:           ps.RiskB,
				Coefficient: ps.Correlation,
			})
			correlated[ps.RiskA] = true
			correlated[ps.RiskB] = true
		}
		var matrixIDs []string
		for _, id := range ids {
			if correlated[id] {
				matrixIDs = append(matrixIDs, id)
			}
		}
		m, err := risk.NewCorrelationMatrix(pairs, matrixIDs)
		if err != nil {
			return nil, err
		}
		matrix = m
	}

	crossImpacts := make([]risk.CrossImpactModel, 0, len(f.CrossImpacts))
	for _, cs := range f.CrossImpacts {
		ci, err := risk.ModelCrossImpacts(cs.PrimaryRisk, cs.SecondaryRisk, cs.Correlation, cs.Multiplier)
		if err != nil {
			return nil, err
		}
		crossImpacts = append(crossImpacts, ci)
	}

	cfg := sim.DefaultConfig()
	if f.Preset != "" {
		preset, err := sim.Preset(f.Preset)
		if err != nil {
			return nil, err
		}
		cfg = preset
	}
	if len(f.Simulation) > 0 {
		merged := cfg.ToMap()
		for k, v := range f.Simulation {
			merged[k] = v
		}
		overridden, err := sim.FromMap(merged)
		if err != nil {
			return nil, err
		}
		cfg = overridden
	}

	return &Model{
		Name:         f.Name,
		Risks:        risks,
		Matrix:       matrix,
		CrossImpacts: crossImpacts,
		Config:       cfg,
	}, nil
}
