package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"riskmc/internal/dist"
)

const yamlModel = `
name: Platform migration
risks:
  - id: api_breakage
    name: API breakage during cutover
    category: technical
    impact_type: cost
    baseline_impact: 5000
    distribution:
      type: triangular
      parameters: {min: 1000, mode: 4000, max: 12000}
    mitigations:
      - id: m1
        name: Contract tests
        cost: 800
        effectiveness: 0.4
  - id: vendor_delay
    name: Vendor hardware delay
    category: external
    impact_type: schedule
    distribution:
      type: NORMAL
      parameters: {mean: 20, std: 5}
      bound_low: 0
      bound_high: 60
  - id: attrition
    name: Key engineer attrition
    category: resource
    impact_type: cost
    distribution:
      type: uniform
      parameters: {min: 0, max: 30000}
correlations:
  - {risk_a: api_breakage, risk_b: vendor_delay, correlation: 0.6}
cross_impacts:
  - {primary_risk: vendor_delay, secondary_risk: api_breakage, correlation: 0.6, multiplier: 1.5}
preset: fast
simulation:
  iterations: 3000
  random_seed: 17
`

func writeModel(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
	return path
}

func TestLoadFileYAML(t *testing.T) {
	m, err := LoadFile(writeModel(t, "migration.yaml", yamlModel))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if m.Name != "Platform migration" {
		t.Errorf("name = %q", m.Name)
	}
	if len(m.Risks) != 3 {
		t.Fatalf("got %d risks, want 3", len(m.Risks))
	}

	api := m.Risks[0]
	if api.ID != "api_breakage" || api.BaselineImpact != 5000 {
		t.Errorf("first risk wrong: %+v", api)
	}
	if api.Distribution.Type() != dist.TypeTriangular {
		t.Errorf("distribution type = %v", api.Distribution.Type())
	}
	if len(api.Mitigations) != 1 || api.Mitigations[0].Effectiveness != 0.4 {
		t.Errorf("mitigations not carried: %+v", api.Mitigations)
	}

	// Type casing in the file must not matter.
	if m.Risks[1].Distribution.Type() != dist.TypeNormal {
		t.Errorf("uppercase type not recognized: %v", m.Risks[1].Distribution.Type())
	}

	if m.Matrix == nil {
		t.Fatal("correlation matrix not built")
	}
	if got, ok := m.Matrix.Correlation("api_breakage", "vendor_delay"); !ok || got != 0.6 {
		t.Errorf("correlation = %v (ok=%v), want 0.6", got, ok)
	}
	if len(m.CrossImpacts) != 1 {
		t.Errorf("cross impacts = %d, want 1", len(m.CrossImpacts))
	}

	// Preset base with file overrides on top.
	if m.Config.Iterations != 3000 {
		t.Errorf("iterations = %d, want the override 3000", m.Config.Iterations)
	}
	if m.Config.Seed == nil || *m.Config.Seed != 17 {
		t.Errorf("seed override not applied: %v", m.Config.Seed)
	}
	if m.Config.ConvergenceThreshold != 0.90 {
		t.Errorf("threshold = %v, want the fast preset's 0.90", m.Config.ConvergenceThreshold)
	}
}

func TestLoadFileJSON(t *testing.T) {
	jsonModel := `{
		"risks": [
			{
				"id": "r1",
				"name": "Scope creep",
				"category": "cost",
				"impact_type": "cost",
				"distribution": {"type": "normal", "parameters": {"mean": 1000, "std": 200}}
			}
		]
	}`
	m, err := LoadFile(writeModel(t, "model.json", jsonModel))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(m.Risks) != 1 || m.Risks[0].ID != "r1" {
		t.Errorf("risks = %+v", m.Risks)
	}
	if m.Matrix != nil {
		t.Error("matrix built with no correlations declared")
	}
	// No preset, no overrides: the defaults stand.
	if m.Config.Iterations != 10000 {
		t.Errorf("iterations = %d, want the default", m.Config.Iterations)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := LoadFile(writeModel(t, "bad.json", "{not json")); err == nil {
		t.Error("malformed JSON accepted")
	}
	if _, err := LoadFile(writeModel(t, "bad.yaml", "risks: [\n")); err == nil {
		t.Error("malformed YAML accepted")
	}
}

func TestBuildValidation(t *testing.T) {
	base := func() File {
		return File{
			Risks: []RiskSpec{{
				ID:         "r1",
				Name:       "Scope creep",
				Category:   "cost",
				ImpactType: "cost",
				Distribution: DistributionSpec{
					Type:       "normal",
					Parameters: map[string]float64{"mean": 1000, "std": 200},
				},
			}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(f *File)
		wantSub string
	}{
		{"NoRisks", func(f *File) { f.Risks = nil }, "at least one risk"},
		{"BadDistributionType", func(f *File) { f.Risks[0].Distribution.Type = "gaussianish" }, "r1"},
		{"MissingParameter", func(f *File) { f.Risks[0].Distribution.Parameters = map[string]float64{"mean": 1} }, "std"},
		{"BadCategory", func(f *File) { f.Risks[0].Category = "vibes" }, "category"},
		{"OneSidedBounds", func(f *File) {
			low := 0.0
			f.Risks[0].Distribution.BoundLow = &low
		}, "bound_low and bound_high"},
		{"UnknownCorrelationRisk", func(f *File) {
			f.Correlations = []CorrelationPairSpec{{RiskA: "r1", RiskB: "ghost", Correlation: 0.5}}
		}, "ghost"},
		{"UnknownPreset", func(f *File) { f.Preset = "turbo" }, "preset"},
		{"BadOverride", func(f *File) {
			f.Simulation = map[string]any{"iterations": "many"}
		}, "iterations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := base()
			tt.mutate(&f)
			_, err := f.Build()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestBuildCaseInsensitiveEnums(t *testing.T) {
	f := File{
		Risks: []RiskSpec{{
			ID:         "r1",
			Name:       "Scope creep",
			Category:   "Cost",
			ImpactType: "COST",
			Distribution: DistributionSpec{
				Type:       "Normal",
				Parameters: map[string]float64{"mean": 1000, "std": 200},
			},
		}},
	}
	m, err := f.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Risks[0].Category != "cost" || m.Risks[0].Impact != "cost" {
		t.Errorf("enums not normalized: %+v", m.Risks[0])
	}
}
